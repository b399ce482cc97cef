package feed

import (
	"strconv"
	"strings"

	"github.com/dukerupert/feedgen/internal/domain"
)

// Availability and condition labels, per format.
const (
	AvailableXML    = "в наличии"
	NotAvailableXML = "нет в наличии"
	ConditionNewXML = "новый"

	AvailableCSV    = "in stock"
	NotAvailableCSV = "out of stock"
	ConditionNewCSV = "new"

	AvailableYML    = "true"
	NotAvailableYML = "false"
)

// propertyPrefix addresses the property bag from a binding: "element.PROPERTY_COLOR".
const propertyPrefix = "PROPERTY_"

// Record is a catalog row enriched for serialization.
type Record struct {
	ID        int64
	Name      string
	Code      string
	SectionID int64
	Link      string

	// Image is the resolved absolute image URL, empty when every fallback tier is empty.
	Image string

	Text      string
	Quantity  float64
	Available bool

	Price    domain.Price
	HasPrice bool

	// MorePhoto holds absolute URLs of additional images.
	MorePhoto []string

	Properties map[string][]string

	// Parent is set for variants whose parent could be loaded.
	Parent *ParentRecord
}

// ParentRecord is the canonical product a variant links to.
type ParentRecord struct {
	ID          int64
	Name        string
	Link        string
	SectionID   int64
	SectionCode string
	Text        string
	Properties  map[string][]string

	detailPicture  int64
	previewPicture int64
	morePhoto      []int64
}

// HasImage reports whether any image tier resolved.
func (r *Record) HasImage() bool {
	return r.Image != ""
}

// AvailabilityLabel returns the availability label of the given format.
func (r *Record) AvailabilityLabel(f Format) string {
	switch f {
	case FormatCSV:
		return pick(r.Available, AvailableCSV, NotAvailableCSV)
	case FormatYML:
		return pick(r.Available, AvailableYML, NotAvailableYML)
	default:
		return pick(r.Available, AvailableXML, NotAvailableXML)
	}
}

// PriceLabel renders "amount currency", or "" when no price resolved.
func (r *Record) PriceLabel() string {
	if !r.HasPrice {
		return ""
	}
	return strings.TrimSpace(r.Price.Amount.String() + " " + r.Price.Currency)
}

// Field returns the values of a named field. Scalar fields yield a single
// value; MORE_PHOTO and properties may yield several. Unknown names yield nil.
func (r *Record) Field(name string) []string {
	switch name {
	case "ID":
		return one(strconv.FormatInt(r.ID, 10))
	case "NAME":
		return one(r.Name)
	case "CODE":
		return one(r.Code)
	case "SECTION_ID":
		return one(formatID(r.SectionID))
	case "LINK":
		return one(r.Link)
	case "IMG":
		return one(r.Image)
	case "TEXT":
		return one(r.Text)
	case "QUANTITY":
		return one(strconv.FormatFloat(r.Quantity, 'f', -1, 64))
	case "AVAILABLE":
		return one(strconv.FormatBool(r.Available))
	case "AVAILABLE_XML":
		return one(r.AvailabilityLabel(FormatXML))
	case "AVAILABLE_CSV":
		return one(r.AvailabilityLabel(FormatCSV))
	case "AVAILABLE_YML":
		return one(r.AvailabilityLabel(FormatYML))
	case "PRICE":
		if !r.HasPrice {
			return one("")
		}
		return one(r.Price.Amount.String())
	case "CURRENCY":
		return one(r.Price.Currency)
	case "MORE_PHOTO":
		return r.MorePhoto
	}
	if code, ok := strings.CutPrefix(name, propertyPrefix); ok {
		return r.Properties[code]
	}
	return nil
}

// Field returns the values of a named parent field. See Record.Field.
func (p *ParentRecord) Field(name string) []string {
	switch name {
	case "ID":
		return one(strconv.FormatInt(p.ID, 10))
	case "NAME":
		return one(p.Name)
	case "LINK":
		return one(p.Link)
	case "TEXT":
		return one(p.Text)
	case "SECTION_ID":
		return one(formatID(p.SectionID))
	case "SECTION_CODE":
		return one(p.SectionCode)
	}
	if code, ok := strings.CutPrefix(name, propertyPrefix); ok {
		return p.Properties[code]
	}
	return nil
}

func one(v string) []string {
	return []string{v}
}

func formatID(id int64) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}

func pick(cond bool, yes, no string) string {
	if cond {
		return yes
	}
	return no
}
