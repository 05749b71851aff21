package hub

import "testing"

func TestResolveName(t *testing.T) {
	tests := []struct {
		name   string
		parent string
		raw    string
		want   string
	}{
		{"no_placeholder", "Kitchen", "Ceiling Lamp", "Ceiling Lamp"},
		{"parent_name", "Kitchen", "{$EPN} Switch", "Kitchen Switch"},
		{"parent_name_alone", "Hall Dimmer", "{$EPN}", "Hall Dimmer"},
		{"empty_parent_trims", "", "{$EPN} Switch", "Switch"},
		{"bare_braces", "Kitchen", "{Scene} Button", "Scene Button"},
		{"two_placeholders", "Porch", "{$EPN} {Night} Light", "Porch Night Light"},
		{"empty_braces", "Kitchen", "{}", ""},
		{"unterminated_left_alone", "Kitchen", "{oops Switch", "{oops Switch"},
		{"empty_raw", "Kitchen", "", ""},
		{"unicode", "Спальня", "{$EPN} лампа", "Спальня лампа"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ResolveName(tc.parent, tc.raw); got != tc.want {
				t.Errorf("ResolveName(%q, %q) = %q, want %q", tc.parent, tc.raw, got, tc.want)
			}
		})
	}
}
