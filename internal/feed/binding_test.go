package feed_test

import (
	"testing"

	"github.com/dukerupert/feedgen/internal/feed"
	"github.com/stretchr/testify/assert"
)

func TestParseBinding(t *testing.T) {
	tests := []struct {
		name      string
		expr      string
		wantKind  feed.BindingKind
		wantField string
		wantStr   string
	}{
		{"leading dot reads element", ".NAME", feed.BindElement, "NAME", "element.NAME"},
		{"element scope", "element.LINK", feed.BindElement, "LINK", "element.LINK"},
		{"parent scope", "parent.SECTION_ID", feed.BindParent, "SECTION_ID", "parent.SECTION_ID"},
		{"unknown scope is literal", "www.example.com", feed.BindLiteral, "", "www.example.com"},
		{"no dot is literal", "no", feed.BindLiteral, "", "no"},
		{"empty is literal", "", feed.BindLiteral, "", ""},
		{"only the first dot splits", ".PROPERTY_A.B", feed.BindElement, "PROPERTY_A.B", "element.PROPERTY_A.B"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := feed.ParseBinding(tt.expr)
			assert.Equal(t, tt.wantKind, b.Kind())
			assert.Equal(t, tt.wantField, b.Field())
			assert.Equal(t, tt.wantStr, b.String())
		})
	}
}

func TestResolve(t *testing.T) {
	parent := &feed.ParentRecord{
		ID:         7,
		Name:       "Hoodie",
		SectionID:  3,
		Properties: map[string][]string{"BRAND": {"Acme"}},
	}
	variant := &feed.Record{
		ID:         42,
		Name:       "Hoodie XL",
		MorePhoto:  []string{"https://shop.test/a.jpg", "https://shop.test/b.jpg"},
		Properties: map[string][]string{"COLOR": {"red", "blue"}},
		Parent:     parent,
	}
	standalone := &feed.Record{ID: 1, Name: "Mug"}

	tests := []struct {
		name    string
		binding feed.Binding
		rec     *feed.Record
		want    string
	}{
		{"element field", feed.ParseBinding(".NAME"), variant, "Hoodie XL"},
		{"multi-value returns first", feed.ParseBinding(".MORE_PHOTO"), variant, "https://shop.test/a.jpg"},
		{"property returns first value", feed.ParseBinding("element.PROPERTY_COLOR"), variant, "red"},
		{"parent field", feed.ParseBinding("parent.SECTION_ID"), variant, "3"},
		{"parent property", feed.ParseBinding("parent.PROPERTY_BRAND"), variant, "Acme"},
		{"parent without parent", feed.ParseBinding("parent.NAME"), standalone, ""},
		{"unknown field", feed.ParseBinding(".NOPE"), variant, ""},
		{"literal", feed.ParseBinding("no"), variant, "no"},
		{"computed", feed.Computed(func(r *feed.Record) string { return r.Name + "!" }), standalone, "Mug!"},
		{"computed reads parent", feed.Computed(func(r *feed.Record) string { return r.Parent.Name }), variant, "Hoodie"},
		{"nil computed", feed.Computed(nil), standalone, ""},
		{"zero binding", feed.Binding{}, standalone, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, feed.Resolve(tt.binding, tt.rec))
		})
	}
}

func TestRecord_AvailabilityLabel(t *testing.T) {
	in := &feed.Record{Quantity: 3, Available: true}
	out := &feed.Record{Quantity: 0, Available: false}

	assert.Equal(t, feed.AvailableXML, in.AvailabilityLabel(feed.FormatXML))
	assert.Equal(t, feed.NotAvailableXML, out.AvailabilityLabel(feed.FormatXML))
	assert.Equal(t, feed.AvailableCSV, in.AvailabilityLabel(feed.FormatCSV))
	assert.Equal(t, feed.NotAvailableCSV, out.AvailabilityLabel(feed.FormatCSV))
	assert.Equal(t, "true", in.AvailabilityLabel(feed.FormatYML))
	assert.Equal(t, "false", out.AvailabilityLabel(feed.FormatYML))
}
