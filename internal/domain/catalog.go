package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CATALOG DOMAIN TYPES
// =============================================================================

// PropertyMorePhoto is the property code holding additional image file IDs.
const PropertyMorePhoto = "MORE_PHOTO"

// CatalogElement is one raw product row as stored in the catalog.
// Picture fields hold file IDs; zero means no picture.
type CatalogElement struct {
	ID            int64
	CatalogID     int64
	SectionID     int64
	SectionCode   string
	Code          string
	Name          string
	DetailPageURL string

	PreviewPicture int64
	DetailPicture  int64

	PreviewText string
	DetailText  string

	// Quantity is the on-hand stock.
	Quantity float64

	// ParentLink is the ID of the parent product for variants, zero otherwise.
	ParentLink int64

	// Properties is the multi-value property bag keyed by property code,
	// values in stored order.
	Properties map[string][]string

	Active bool
}

// MorePhoto returns the additional image file IDs from the property bag,
// skipping values that are not positive integers.
func (e *CatalogElement) MorePhoto() []int64 {
	return parseFileIDs(e.Properties[PropertyMorePhoto])
}

// Section is a catalog category node.
type Section struct {
	ID        int64
	CatalogID int64
	ParentID  *int64
	Name      string
	Code      string
}

// Price is a resolved price for one product.
type Price struct {
	Amount   decimal.Decimal
	Currency string
}

// Site holds the display name and canonical host of a storefront.
type Site struct {
	ID         string
	Name       string
	ServerName string
}

// ElementFilter selects catalog elements for export.
type ElementFilter struct {
	CatalogID int64

	// ActiveOnly restricts the result to active elements.
	ActiveOnly bool

	// PriceField is the price type code; only elements with a price >= 0
	// of that type match.
	PriceField string

	// Limit caps the number of rows, zero means unlimited.
	Limit int

	// Select lists requested fields. Stores may return more.
	Select []string
}

// =============================================================================
// EXTERNAL COLLABORATORS
// =============================================================================

// CatalogStore reads products, sections and files from the catalog backend.
type CatalogStore interface {
	// ListElements returns elements matching the filter in catalog sort order.
	ListElements(ctx context.Context, filter ElementFilter) ([]CatalogElement, error)

	// GetElement returns a single element by ID regardless of its active flag.
	// Returns ErrElementNotFound when absent.
	GetElement(ctx context.Context, id int64) (*CatalogElement, error)

	// ListSections returns the sections of a catalog in tree sort order.
	ListSections(ctx context.Context, catalogID int64) ([]Section, error)

	// FilePath returns the site-relative path of a stored file.
	// Returns ErrFileNotFound when absent.
	FilePath(ctx context.Context, fileID int64) (string, error)
}

// PriceService resolves the price a customer pays.
type PriceService interface {
	// OptimalPrice returns the lowest applicable price of a product for the
	// given quantity on a site. Returns ErrPriceNotFound when none applies.
	OptimalPrice(ctx context.Context, productID int64, quantity int, siteID string) (*Price, error)
}

// SiteService looks up storefront configuration.
type SiteService interface {
	// GetSite returns ErrSiteNotFound when the site does not exist.
	GetSite(ctx context.Context, siteID string) (*Site, error)
}

// =============================================================================
// DOMAIN ERRORS
// =============================================================================

var (
	ErrElementNotFound = &Error{Code: ENOTFOUND, Message: "Catalog element not found"}
	ErrFileNotFound    = &Error{Code: ENOTFOUND, Message: "File not found"}
	ErrPriceNotFound   = &Error{Code: ENOTFOUND, Message: "Price not found"}
	ErrSiteNotFound    = &Error{Code: ENOTFOUND, Message: "Site not found"}
)
