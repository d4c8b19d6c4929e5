// Package layout holds the keyboard layouts the dongle can emulate.
package layout

import (
	"fmt"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Layout is one selectable keyboard layout.
type Layout struct {
	// Value is the token the dongle understands, e.g. UK_WINLIN.
	Value string
	// Label is the human-readable name.
	Label string
}

// Default is the layout assumed before the dongle announced one.
const Default = "UK_WINLIN"

type region struct {
	prefix string
	label  string
	mac    bool
}

var catalog = func() *orderedmap.OrderedMap[string, Layout] {
	m := orderedmap.New[string, Layout]()
	for _, l := range []region{
		{"UK", "UK", true},
		{"IE", "IE", true},
		{"US", "US", true},
		{"DE", "DE", true},
		{"FR", "FR", true},
		{"ES", "ES", true},
		{"IT", "IT", true},
		{"PT_PT", "PT-PT", true},
		{"PT_BR", "PT-BR", true},
		{"SE", "SE", false},
		{"NO", "NO", false},
		{"DK", "DK", false},
		{"FI", "FI", false},
		{"CH_DE", "CH-DE", false},
		{"CH_FR", "CH-FR", false},
		{"TR", "TR", true},
	} {
		win := l.prefix + "_WINLIN"
		m.Set(win, Layout{Value: win, Label: fmt.Sprintf("Layout %s Windows/Linux", l.label)})
		if l.mac {
			mac := l.prefix + "_MAC"
			m.Set(mac, Layout{Value: mac, Label: fmt.Sprintf("Layout %s Mac", l.label)})
		}
	}
	return m
}()

// Lookup returns the layout for value. Matching ignores case and surrounding space.
func Lookup(value string) (Layout, bool) {
	return catalog.Get(strings.ToUpper(strings.TrimSpace(value)))
}

// Valid reports whether value names a known layout.
func Valid(value string) bool {
	_, ok := Lookup(value)
	return ok
}

// All returns every layout in display order.
func All() []Layout {
	out := make([]Layout, 0, catalog.Len())
	for pair := catalog.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// Label returns the display name of value, or value itself when unknown.
func Label(value string) string {
	if l, ok := Lookup(value); ok {
		return l.Label
	}
	return value
}
