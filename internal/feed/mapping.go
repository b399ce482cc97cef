package feed

import (
	"strings"

	"github.com/dukerupert/feedgen/internal/domain"
)

// Format is an output feed format.
type Format string

const (
	FormatXML Format = "xml" // Google Shopping RSS
	FormatCSV Format = "csv"
	FormatYML Format = "yml" // Yandex Market
)

// Formats lists every supported format.
var Formats = []Format{FormatXML, FormatCSV, FormatYML}

// ParseFormat accepts a format name in any case.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	switch f {
	case FormatXML, FormatCSV, FormatYML:
		return f, nil
	}
	return "", domain.Errorf(domain.EINVALID, "feed.parse_format", "unknown feed format %q", s)
}

// Mapping is an ordered table of output field name to Binding.
// Keys are unique; Set on an existing key replaces the binding in place.
type Mapping struct {
	keys     []string
	bindings map[string]Binding
}

// Entry is one mapping row.
type Entry struct {
	Name    string
	Binding Binding
}

// NewMapping builds a mapping from entries in order.
func NewMapping(entries ...Entry) *Mapping {
	m := &Mapping{bindings: make(map[string]Binding, len(entries))}
	for _, e := range entries {
		m.Set(e.Name, e.Binding)
	}
	return m
}

// Set replaces the binding of an existing key without moving it, or appends a new key.
func (m *Mapping) Set(name string, b Binding) {
	if m.bindings == nil {
		m.bindings = make(map[string]Binding)
	}
	if _, ok := m.bindings[name]; !ok {
		m.keys = append(m.keys, name)
	}
	m.bindings[name] = b
}

// Get returns the binding of a key.
func (m *Mapping) Get(name string) (Binding, bool) {
	if m == nil {
		return Binding{}, false
	}
	b, ok := m.bindings[name]
	return b, ok
}

// Keys returns the keys in order.
func (m *Mapping) Keys() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.keys...)
}

// Len returns the number of keys.
func (m *Mapping) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Entries returns the rows in order.
func (m *Mapping) Entries() []Entry {
	if m == nil {
		return nil
	}
	out := make([]Entry, len(m.keys))
	for i, k := range m.keys {
		out[i] = Entry{Name: k, Binding: m.bindings[k]}
	}
	return out
}

// Clone returns an independent copy.
func (m *Mapping) Clone() *Mapping {
	return NewMapping(m.Entries()...)
}

// Merge overlays overrides on base. Base keys keep their position with
// overridden bindings replaced in place; keys new to base are appended in
// override order. Neither input is modified.
func Merge(base, overrides *Mapping) *Mapping {
	out := base.Clone()
	for _, e := range overrides.Entries() {
		out.Set(e.Name, e.Binding)
	}
	return out
}

// DefaultMapping returns the built-in mapping of a format.
func DefaultMapping(f Format) *Mapping {
	switch f {
	case FormatXML:
		return NewMapping(
			Entry{"id", Element("ID")},
			Entry{"title", Element("NAME")},
			Entry{"link", Element("LINK")},
			Entry{"description", Element("TEXT")},
			Entry{"condition", Literal(ConditionNewXML)},
			Entry{"availability", Element("AVAILABLE_XML")},
			Entry{"image_link", Element("IMG")},
			Entry{"identifier_exists", Literal("no")},
		)
	case FormatCSV:
		return NewMapping(
			Entry{"id", Element("ID")},
			Entry{"title", Element("NAME")},
			Entry{"link", Element("LINK")},
			Entry{"image_link", Element("IMG")},
			Entry{"price", Literal("")},
			Entry{"description", Element("TEXT")},
			Entry{"availability", Element("AVAILABLE_CSV")},
			Entry{"condition", Literal(ConditionNewCSV)},
			Entry{"brand", Literal("")},
			Entry{"google_product_category", Literal("")},
		)
	case FormatYML:
		return NewMapping(
			Entry{"url", Element("LINK")},
			Entry{"price", Element("PRICE")},
			Entry{"currencyId", Element("CURRENCY")},
			Entry{"categoryId", Element("SECTION_ID")},
			Entry{"picture", Element("IMG")},
			Entry{"name", Element("NAME")},
			Entry{"description", Element("TEXT")},
		)
	}
	return NewMapping()
}

// PriceBinding renders "amount currency", as Google Shopping expects.
var PriceBinding = Computed(func(rec *Record) string {
	return rec.PriceLabel()
})
