package hub

import (
	"regexp"
	"strings"
)

// Hub device names carry template placeholders: {$EPN} expands to the
// parent device's name, any other {X} to the bare X.
var namePlaceholder = regexp.MustCompile(`\{([^{}]*)\}`)

// ResolveName expands the placeholders in a raw display name. parent is
// the owning device's resolved name, used for {$EPN}; pass an empty string
// at the device level. The result is trimmed of surrounding whitespace so
// an absent parent does not leave a dangling separator.
func ResolveName(parent, raw string) string {
	if !strings.ContainsRune(raw, '{') {
		return raw
	}
	out := namePlaceholder.ReplaceAllStringFunc(raw, func(m string) string {
		inner := m[1 : len(m)-1]
		if inner == "$EPN" {
			return parent
		}
		return inner
	})
	return strings.TrimSpace(out)
}
