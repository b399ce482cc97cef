package postgres

import (
	"context"
	"errors"
	"strconv"

	"github.com/dukerupert/feedgen/internal/domain"
	"github.com/jackc/pgx/v5"
)

// CatalogStore implements domain.CatalogStore using PostgreSQL.
type CatalogStore struct {
	db DBTX
}

// Compile-time check that CatalogStore implements domain.CatalogStore.
var _ domain.CatalogStore = (*CatalogStore)(nil)

// NewCatalogStore creates a new PostgreSQL-backed catalog store.
func NewCatalogStore(db DBTX) *CatalogStore {
	return &CatalogStore{db: db}
}

const elementColumns = `
	e.id, e.catalog_id, COALESCE(e.section_id, 0), COALESCE(s.code, ''),
	e.code, e.name, e.detail_page_url,
	COALESCE(e.preview_picture, 0), COALESCE(e.detail_picture, 0),
	e.preview_text, e.detail_text, e.quantity::float8,
	COALESCE(e.parent_link, 0), e.active`

const listElementsQuery = `
SELECT ` + elementColumns + `
FROM catalog_elements e
LEFT JOIN catalog_sections s ON s.id = e.section_id
WHERE e.catalog_id = $1
  AND ($2::boolean = FALSE OR e.active = TRUE)
  AND ($3::text = '' OR EXISTS (
      SELECT 1 FROM catalog_prices p
      WHERE p.element_id = e.id AND p.price_type = $3 AND p.amount >= 0
  ))
ORDER BY e.sort, e.id
LIMIT NULLIF($4::int, 0)`

const getElementQuery = `
SELECT ` + elementColumns + `
FROM catalog_elements e
LEFT JOIN catalog_sections s ON s.id = e.section_id
WHERE e.id = $1`

const listPropertiesQuery = `
SELECT element_id, code, value
FROM catalog_element_properties
WHERE element_id = ANY($1)
ORDER BY element_id, code, position`

// =============================================================================
// ELEMENTS
// =============================================================================

// ListElements returns elements matching the filter with their properties.
func (s *CatalogStore) ListElements(ctx context.Context, filter domain.ElementFilter) ([]domain.CatalogElement, error) {
	rows, err := s.db.Query(ctx, listElementsQuery, filter.CatalogID, filter.ActiveOnly, filter.PriceField, filter.Limit)
	if err != nil {
		return nil, domain.Internal(err, "catalog.list_elements", "failed to list elements")
	}

	elements, err := pgx.CollectRows(rows, scanElement)
	if err != nil {
		return nil, domain.Internal(err, "catalog.list_elements", "failed to scan elements")
	}

	if err := s.attachProperties(ctx, elements); err != nil {
		return nil, err
	}
	return elements, nil
}

// GetElement returns one element regardless of its active flag.
func (s *CatalogStore) GetElement(ctx context.Context, id int64) (*domain.CatalogElement, error) {
	rows, err := s.db.Query(ctx, getElementQuery, id)
	if err != nil {
		return nil, domain.Internal(err, "catalog.get_element", "failed to get element")
	}

	elem, err := pgx.CollectOneRow(rows, scanElement)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NotFound("catalog.get_element", "element", strconv.FormatInt(id, 10))
		}
		return nil, domain.Internal(err, "catalog.get_element", "failed to scan element")
	}

	elements := []domain.CatalogElement{elem}
	if err := s.attachProperties(ctx, elements); err != nil {
		return nil, err
	}
	return &elements[0], nil
}

func scanElement(row pgx.CollectableRow) (domain.CatalogElement, error) {
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

// attachProperties loads the property bags of elements in one query.
func (s *CatalogStore) attachProperties(ctx context.Context, elements []domain.CatalogElement) error {
	if len(elements) == 0 {
		return nil
	}

	ids := make([]int64, len(elements))
	index := make(map[int64]int, len(elements))
	for i, e := range elements {
		ids[i] = e.ID
		index[e.ID] = i
	}

	rows, err := s.db.Query(ctx, listPropertiesQuery, ids)
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

// =============================================================================
// SECTIONS AND FILES
// =============================================================================

// ListSections returns the sections of a catalog.
func (s *CatalogStore) ListSections(ctx context.Context, catalogID int64) ([]domain.Section, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, catalog_id, parent_id, name, code
		FROM catalog_sections
		WHERE catalog_id = $1
		ORDER BY sort, id`, catalogID)
	if err != nil {
		return nil, domain.Internal(err, "catalog.list_sections", "failed to list sections")
	}

	sections, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Section, error) {
		var sec domain.Section
		err := row.Scan(&sec.ID, &sec.CatalogID, &sec.ParentID, &sec.Name, &sec.Code)
		return sec, err
	})
	if err != nil {
		return nil, domain.Internal(err, "catalog.list_sections", "failed to scan sections")
	}
	return sections, nil
}

// FilePath returns the site-relative path of a file.
func (s *CatalogStore) FilePath(ctx context.Context, fileID int64) (string, error) {
	var path string
	err := s.db.QueryRow(ctx, `SELECT path FROM catalog_files WHERE id = $1`, fileID).Scan(&path)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", domain.NotFound("catalog.file_path", "file", strconv.FormatInt(fileID, 10))
		}
		return "", domain.Internal(err, "catalog.file_path", "failed to get file")
	}
	return path, nil
}
