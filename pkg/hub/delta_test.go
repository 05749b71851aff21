package hub

import (
	"reflect"
	"testing"

	"github.com/gatelink-dev/gatelink/pkg/protocol"
)

func TestParseDeltasChannelUpdate(t *testing.T) {
	body := protocol.MapOf(
		protocol.Field("_schg", protocol.MapOf(
			protocol.Field("H1/dev1/L1", protocol.MapOf(
				protocol.Field("val", protocol.Int(0)),
			)),
		)),
	)

	deltas := parseDeltas(body)
	if len(deltas) != 1 {
		t.Fatalf("parseDeltas returned %d deltas, want 1", len(deltas))
	}
	upd, ok := deltas[0].(ChannelUpdate)
	if !ok {
		t.Fatalf("delta type = %T, want ChannelUpdate", deltas[0])
	}
	want := ChannelUpdate{
		HubID:    "H1",
		DeviceID: "dev1",
		Channel:  "L1",
		Fields:   Channel{"val": int64(0)},
	}
	if !reflect.DeepEqual(upd, want) {
		t.Errorf("update = %+v, want %+v", upd, want)
	}
}

func TestParseDeltasMultipleUpdates(t *testing.T) {
	body := protocol.MapOf(
		protocol.Field("_schg", protocol.MapOf(
			protocol.Field("H1/dev1/L1", protocol.MapOf(protocol.Field("val", protocol.Int(1)))),
			protocol.Field("H1/dev2/L3", protocol.MapOf(protocol.Field("val", protocol.Int(254)))),
		)),
	)

	deltas := parseDeltas(body)
	if len(deltas) != 2 {
		t.Fatalf("parseDeltas returned %d deltas, want 2", len(deltas))
	}
	first := deltas[0].(ChannelUpdate)
	second := deltas[1].(ChannelUpdate)
	if first.DeviceID != "dev1" || second.DeviceID != "dev2" {
		t.Errorf("device order = %s, %s, want dev1, dev2", first.DeviceID, second.DeviceID)
	}
	if second.Fields["val"] != int64(254) {
		t.Errorf("dev2 val = %v, want 254", second.Fields["val"])
	}
}

func TestParseDeltasDeletionForms(t *testing.T) {
	tests := []struct {
		name string
		sdel protocol.Value
		want []DeviceDeleted
	}{
		{
			"single_text",
			protocol.Text("H1/dev9"),
			[]DeviceDeleted{{HubID: "H1", DeviceID: "dev9"}},
		},
		{
			"list_of_paths",
			protocol.ListOf(protocol.Text("H1/dev1"), protocol.Text("H1/dev2")),
			[]DeviceDeleted{{HubID: "H1", DeviceID: "dev1"}, {HubID: "H1", DeviceID: "dev2"}},
		},
		{
			"path_keyed_map",
			protocol.MapOf(protocol.Field("H1/dev5", protocol.Null())),
			[]DeviceDeleted{{HubID: "H1", DeviceID: "dev5"}},
		},
		{
			"channel_path_still_deletes_device",
			protocol.Text("H1/dev3/L1"),
			[]DeviceDeleted{{HubID: "H1", DeviceID: "dev3"}},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			body := protocol.MapOf(protocol.Field("_sdel", tc.sdel))
			deltas := parseDeltas(body)
			if len(deltas) != len(tc.want) {
				t.Fatalf("got %d deltas, want %d", len(deltas), len(tc.want))
			}
			for i, d := range deltas {
				del, ok := d.(DeviceDeleted)
				if !ok {
					t.Fatalf("delta %d type = %T, want DeviceDeleted", i, d)
				}
				if del != tc.want[i] {
					t.Errorf("delta %d = %+v, want %+v", i, del, tc.want[i])
				}
			}
		})
	}
}

func TestParseDeltasMixed(t *testing.T) {
	body := protocol.MapOf(
		protocol.Field("_schg", protocol.MapOf(
			protocol.Field("H1/dev1/L1", protocol.MapOf(protocol.Field("val", protocol.Int(1)))),
		)),
		protocol.Field("_sdel", protocol.Text("H1/dev2")),
	)

	deltas := parseDeltas(body)
	if len(deltas) != 2 {
		t.Fatalf("parseDeltas returned %d deltas, want 2", len(deltas))
	}
	if _, ok := deltas[0].(ChannelUpdate); !ok {
		t.Errorf("first delta type = %T, want ChannelUpdate", deltas[0])
	}
	if _, ok := deltas[1].(DeviceDeleted); !ok {
		t.Errorf("second delta type = %T, want DeviceDeleted", deltas[1])
	}
}

func TestParseDeltasIgnoresMalformed(t *testing.T) {
	tests := []struct {
		name string
		body protocol.Value
	}{
		{"not_a_map", protocol.Text("_schg")},
		{"no_delta_keys", protocol.MapOf(protocol.Field("ret", protocol.Int(0)))},
		{"schg_not_map", protocol.MapOf(protocol.Field("_schg", protocol.Int(1)))},
		{"short_path", protocol.MapOf(protocol.Field("_schg", protocol.MapOf(
			protocol.Field("dev1/L1", protocol.MapOf(protocol.Field("val", protocol.Int(1)))),
		)))},
		{"empty_path_component", protocol.MapOf(protocol.Field("_schg", protocol.MapOf(
			protocol.Field("H1//L1", protocol.MapOf(protocol.Field("val", protocol.Int(1)))),
		)))},
		{"fields_not_map", protocol.MapOf(protocol.Field("_schg", protocol.MapOf(
			protocol.Field("H1/dev1/L1", protocol.Int(3)),
		)))},
		{"sdel_number", protocol.MapOf(protocol.Field("_sdel", protocol.Int(9)))},
		{"sdel_bare_hub", protocol.MapOf(protocol.Field("_sdel", protocol.Text("H1")))},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if deltas := parseDeltas(tc.body); deltas != nil {
				t.Errorf("parseDeltas = %+v, want nil", deltas)
			}
		})
	}
}

func TestSplitChannelPath(t *testing.T) {
	tests := []struct {
		path string
		hub  string
		dev  string
		ch   string
		ok   bool
	}{
		{"H1/dev1/L1", "H1", "dev1", "L1", true},
		{"hub-2/ir_remote/K4", "hub-2", "ir_remote", "K4", true},
		{"H1/dev1", "", "", "", false},
		{"H1/dev1/L1/extra", "", "", "", false},
		{"", "", "", "", false},
		{"//", "", "", "", false},
	}
	for _, tc := range tests {
		hub, dev, ch, ok := splitChannelPath(tc.path)
		if hub != tc.hub || dev != tc.dev || ch != tc.ch || ok != tc.ok {
			t.Errorf("splitChannelPath(%q) = (%q, %q, %q, %v), want (%q, %q, %q, %v)",
				tc.path, hub, dev, ch, ok, tc.hub, tc.dev, tc.ch, tc.ok)
		}
	}
}

func TestParseDeltasInterestingFieldTypes(t *testing.T) {
	body := protocol.MapOf(
		protocol.Field("_schg", protocol.MapOf(
			protocol.Field("H1/dev1/L1", protocol.MapOf(
				protocol.Field("val", protocol.Bool(true)),
				protocol.Field("name", protocol.Text("Porch")),
				protocol.Field("bright", protocol.Int(200)),
				protocol.Field("stale", protocol.Null()),
			)),
		)),
	)

	deltas := parseDeltas(body)
	if len(deltas) != 1 {
		t.Fatalf("parseDeltas returned %d deltas, want 1", len(deltas))
	}
	fields := deltas[0].(ChannelUpdate).Fields
	if fields["val"] != true {
		t.Errorf("val = %v, want true", fields["val"])
	}
	if fields["name"] != "Porch" {
		t.Errorf("name = %v, want Porch", fields["name"])
	}
	if fields["bright"] != int64(200) {
		t.Errorf("bright = %v, want 200", fields["bright"])
	}
	if _, ok := fields["stale"]; ok {
		t.Error("null field survived, want it dropped")
	}
}
