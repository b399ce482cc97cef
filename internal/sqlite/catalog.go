// Package sqlite implements the catalog collaborators on an embedded SQLite
// database, for offline exports and local development.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"

	"github.com/dukerupert/feedgen/internal/domain"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

// DriverName is the database/sql driver registered by modernc.org/sqlite.
const DriverName = "sqlite"

// Open opens a SQLite database. A single connection is kept so that
// in-memory databases survive across queries.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// CatalogStore implements domain.CatalogStore using SQLite.
type CatalogStore struct {
	db *sql.DB
}

var _ domain.CatalogStore = (*CatalogStore)(nil)

// NewCatalogStore creates a new SQLite-backed catalog store.
func NewCatalogStore(db *sql.DB) *CatalogStore {
	return &CatalogStore{db: db}
}

const elementColumns = `
	e.id, e.catalog_id, COALESCE(e.section_id, 0), COALESCE(s.code, ''),
	e.code, e.name, e.detail_page_url,
	COALESCE(e.preview_picture, 0), COALESCE(e.detail_picture, 0),
	e.preview_text, e.detail_text, CAST(e.quantity AS REAL),
	COALESCE(e.parent_link, 0), e.active`

type scanner interface {
	Scan(dest ...any) error
}

func scanElement(row scanner) (domain.CatalogElement, error) {
	var e domain.CatalogElement
	err := row.Scan(
		&e.ID, &e.CatalogID, &e.SectionID, &e.SectionCode,
		&e.Code, &e.Name, &e.DetailPageURL,
		&e.PreviewPicture, &e.DetailPicture,
		&e.PreviewText, &e.DetailText, &e.Quantity,
		&e.ParentLink, &e.Active,
	)
	return e, err
}

// ListElements returns elements matching the filter with their properties.
func (s *CatalogStore) ListElements(ctx context.Context, filter domain.ElementFilter) ([]domain.CatalogElement, error) {
	query := `
SELECT ` + elementColumns + `
FROM catalog_elements e
LEFT JOIN catalog_sections s ON s.id = e.section_id
WHERE e.catalog_id = ?
  AND (? = 0 OR e.active = 1)
  AND (? = '' OR EXISTS (
      SELECT 1 FROM catalog_prices p
      WHERE p.element_id = e.id AND p.price_type = ? AND p.amount >= 0
  ))
ORDER BY e.sort, e.id`
	args := []any{filter.CatalogID, boolInt(filter.ActiveOnly), filter.PriceField, filter.PriceField}
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.Internal(err, "catalog.list_elements", "failed to list elements")
	}
	defer rows.Close()

	var elements []domain.CatalogElement
	for rows.Next() {
		e, err := scanElement(rows)
		if err != nil {
			return nil, domain.Internal(err, "catalog.list_elements", "failed to scan element")
		}
		elements = append(elements, e)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Internal(err, "catalog.list_elements", "failed to read elements")
	}
	rows.Close()

	if err := s.attachProperties(ctx, elements); err != nil {
		return nil, err
	}
	return elements, nil
}

// GetElement returns one element regardless of its active flag.
func (s *CatalogStore) GetElement(ctx context.Context, id int64) (*domain.CatalogElement, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT `+elementColumns+`
FROM catalog_elements e
LEFT JOIN catalog_sections s ON s.id = e.section_id
WHERE e.id = ?`, id)

	e, err := scanElement(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound("catalog.get_element", "element", strconv.FormatInt(id, 10))
		}
		return nil, domain.Internal(err, "catalog.get_element", "failed to get element")
	}

	elements := []domain.CatalogElement{e}
	if err := s.attachProperties(ctx, elements); err != nil {
		return nil, err
	}
	return &elements[0], nil
}

func (s *CatalogStore) attachProperties(ctx context.Context, elements []domain.CatalogElement) error {
	if len(elements) == 0 {
		return nil
	}

	ids := make([]any, len(elements))
	index := make(map[int64]int, len(elements))
	for i, e := range elements {
		ids[i] = e.ID
		index[e.ID] = i
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	rows, err := s.db.QueryContext(ctx, `
SELECT element_id, code, value
FROM catalog_element_properties
WHERE element_id IN (`+placeholders+`)
ORDER BY element_id, code, position`, ids...)
	if err != nil {
		return domain.Internal(err, "catalog.list_properties", "failed to list properties")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			elementID   int64
			code, value string
		)
		if err := rows.Scan(&elementID, &code, &value); err != nil {
			return domain.Internal(err, "catalog.list_properties", "failed to scan property")
		}
		e := &elements[index[elementID]]
		if e.Properties == nil {
			e.Properties = make(map[string][]string)
		}
		e.Properties[code] = append(e.Properties[code], value)
	}
	if err := rows.Err(); err != nil {
		return domain.Internal(err, "catalog.list_properties", "failed to read properties")
	}
	return nil
}

// ListSections returns the sections of a catalog.
func (s *CatalogStore) ListSections(ctx context.Context, catalogID int64) ([]domain.Section, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, catalog_id, parent_id, name, code
FROM catalog_sections
WHERE catalog_id = ?
ORDER BY sort, id`, catalogID)
	if err != nil {
		return nil, domain.Internal(err, "catalog.list_sections", "failed to list sections")
	}
	defer rows.Close()

	var sections []domain.Section
	for rows.Next() {
		var (
			sec    domain.Section
			parent sql.NullInt64
		)
		if err := rows.Scan(&sec.ID, &sec.CatalogID, &parent, &sec.Name, &sec.Code); err != nil {
			return nil, domain.Internal(err, "catalog.list_sections", "failed to scan section")
		}
		if parent.Valid {
			p := parent.Int64
			sec.ParentID = &p
		}
		sections = append(sections, sec)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Internal(err, "catalog.list_sections", "failed to read sections")
	}
	return sections, nil
}

// FilePath returns the site-relative path of a file.
func (s *CatalogStore) FilePath(ctx context.Context, fileID int64) (string, error) {
	var path string
	err := s.db.QueryRowContext(ctx, `SELECT path FROM catalog_files WHERE id = ?`, fileID).Scan(&path)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", domain.NotFound("catalog.file_path", "file", strconv.FormatInt(fileID, 10))
		}
		return "", domain.Internal(err, "catalog.file_path", "failed to get file")
	}
	return path, nil
}

// =============================================================================
// PRICES AND SITES
// =============================================================================

// PriceService implements domain.PriceService using SQLite.
type PriceService struct {
	db *sql.DB
}

var _ domain.PriceService = (*PriceService)(nil)

// NewPriceService creates a new SQLite-backed price service.
func NewPriceService(db *sql.DB) *PriceService {
	return &PriceService{db: db}
}

// OptimalPrice returns the lowest applicable price of a product.
func (s *PriceService) OptimalPrice(ctx context.Context, productID int64, quantity int, siteID string) (*domain.Price, error) {
	var amount, currency string
	err := s.db.QueryRowContext(ctx, `
SELECT CAST(amount AS TEXT), currency
FROM catalog_prices
WHERE element_id = ?
  AND amount >= 0
  AND (quantity_from IS NULL OR quantity_from <= ?)
  AND (quantity_to IS NULL OR quantity_to >= ?)
  AND (site_id IS NULL OR site_id = ?)
ORDER BY amount ASC, id ASC
LIMIT 1`, productID, quantity, quantity, siteID).Scan(&amount, &currency)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPriceNotFound
		}
		return nil, domain.Internal(err, "price.optimal", "failed to get price")
	}

	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, domain.Internal(err, "price.optimal", "invalid price amount")
	}
	return &domain.Price{Amount: d, Currency: currency}, nil
}

// SiteService implements domain.SiteService using SQLite.
type SiteService struct {
	db *sql.DB
}

var _ domain.SiteService = (*SiteService)(nil)

// NewSiteService creates a new SQLite-backed site service.
func NewSiteService(db *sql.DB) *SiteService {
	return &SiteService{db: db}
}

// GetSite returns the site or domain.ErrSiteNotFound.
func (s *SiteService) GetSite(ctx context.Context, siteID string) (*domain.Site, error) {
	site := domain.Site{ID: siteID}
	err := s.db.QueryRowContext(ctx, `SELECT name, server_name FROM sites WHERE id = ?`, siteID).
		Scan(&site.Name, &site.ServerName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSiteNotFound
		}
		return nil, domain.Internal(err, "site.get", "failed to get site")
	}
	return &site, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
