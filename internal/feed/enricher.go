package feed

import (
	"context"
	"log/slog"
	"strings"

	"github.com/dukerupert/feedgen/internal/domain"
)

// DefaultSelectFields is the field list requested from the catalog store.
// The configured price field is appended per query.
var DefaultSelectFields = []string{
	"ID", "CATALOG_ID", "CODE", "SECTION_ID", "NAME", "PREVIEW_PICTURE", "PROPERTY_MORE_PHOTO",
	"DETAIL_PICTURE", "DETAIL_PAGE_URL", "DETAIL_TEXT", "PREVIEW_TEXT", "PROPERTY_PARENT_LINK",
	"QUANTITY",
}

// Query selects the catalog rows to enrich.
type Query struct {
	CatalogID  int64
	PriceField string

	// Debug limits the result to a single row.
	Debug bool
}

// Stats summarizes one enrichment run.
type Stats struct {
	Rows            int
	Variants        int
	ParentLookups   int
	ParentCacheHits int
	MissingParents  int
	MissingPrices   int
	MissingImages   int
}

// Enricher turns catalog rows into export records.
type Enricher struct {
	store   domain.CatalogStore
	prices  domain.PriceService
	siteID  string
	baseURL string
	logger  *slog.Logger
}

// NewEnricher creates an enricher that resolves prices for siteID and
// prefixes relative paths with baseURL ("https://shop.example").
func NewEnricher(store domain.CatalogStore, prices domain.PriceService, siteID, baseURL string, logger *slog.Logger) *Enricher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Enricher{
		store:   store,
		prices:  prices,
		siteID:  siteID,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

// Enrich loads all active elements with a non-negative price of q.PriceField
// and returns them enriched, in catalog order.
//
// Missing prices, pictures and parents degrade to empty values. Only store
// failures on the element listing abort the run.
func (e *Enricher) Enrich(ctx context.Context, q Query) ([]Record, Stats, error) {
	var stats Stats

	filter := domain.ElementFilter{
		CatalogID:  q.CatalogID,
		ActiveOnly: true,
		PriceField: q.PriceField,
		Select:     append(append([]string(nil), DefaultSelectFields...), q.PriceField),
	}
	if q.Debug {
		filter.Limit = 1
	}

	rows, err := e.store.ListElements(ctx, filter)
	if err != nil {
		return nil, stats, domain.Internal(err, "feed.enrich", "failed to list catalog elements")
	}

	// Parents are cached for this run only; nil marks a parent that failed to load.
	parents := make(map[int64]*ParentRecord)

	records := make([]Record, 0, len(rows))
	for i := range rows {
		row := &rows[i]
		rec := e.buildRecord(ctx, row, &stats)

		if row.ParentLink > 0 {
			stats.Variants++
			parent, cached := parents[row.ParentLink]
			if cached {
				stats.ParentCacheHits++
			} else {
				stats.ParentLookups++
				parent = e.loadParent(ctx, row.ParentLink)
				parents[row.ParentLink] = parent
			}

			if parent != nil {
				rec.Parent = parent
				rec.SectionID = parent.SectionID
				if rec.Image == "" {
					rec.Image = e.resolveImage(ctx, parent.detailPicture, parent.previewPicture, parent.morePhoto)
				}
			} else {
				stats.MissingParents++
			}
		}

		if rec.Image == "" {
			stats.MissingImages++
		}
		records = append(records, rec)
	}
	stats.Rows = len(records)

	e.logger.Debug("catalog enriched",
		"catalog_id", q.CatalogID,
		"rows", stats.Rows,
		"variants", stats.Variants,
		"parent_lookups", stats.ParentLookups,
		"parent_cache_hits", stats.ParentCacheHits,
		"missing_prices", stats.MissingPrices,
		"missing_images", stats.MissingImages,
	)

	return records, stats, nil
}

func (e *Enricher) buildRecord(ctx context.Context, row *domain.CatalogElement, stats *Stats) Record {
	morePhotoIDs := row.MorePhoto()
	morePhoto := make([]string, 0, len(morePhotoIDs))
	for _, id := range morePhotoIDs {
		if u := e.fileURL(ctx, id); u != "" {
			morePhoto = append(morePhoto, u)
		}
	}

	image := e.fileURL(ctx, row.DetailPicture)
	if image == "" {
		image = e.fileURL(ctx, row.PreviewPicture)
	}
	if image == "" && len(morePhoto) > 0 {
		image = morePhoto[0]
	}

	rec := Record{
		ID:         row.ID,
		Name:       row.Name,
		Code:       row.Code,
		SectionID:  row.SectionID,
		Link:       e.url(row.DetailPageURL),
		Image:      image,
		Text:       descriptionText(row.PreviewText, row.DetailText),
		Quantity:   row.Quantity,
		Available:  row.Quantity > 0,
		MorePhoto:  morePhoto,
		Properties: row.Properties,
	}

	price, err := e.prices.OptimalPrice(ctx, row.ID, 1, e.siteID)
	if err != nil {
		stats.MissingPrices++
		e.logger.Debug("price unavailable", "element_id", row.ID, "error", err)
	} else {
		rec.Price = *price
		rec.HasPrice = true
	}

	return rec
}

func (e *Enricher) loadParent(ctx context.Context, id int64) *ParentRecord {
	row, err := e.store.GetElement(ctx, id)
	if err != nil {
		level := slog.LevelWarn
		if domain.IsCode(err, domain.ENOTFOUND) {
			level = slog.LevelDebug
		}
		e.logger.Log(ctx, level, "parent unavailable", "parent_id", id, "error", err)
		return nil
	}

	return &ParentRecord{
		ID:             row.ID,
		Name:           row.Name,
		Link:           e.url(row.DetailPageURL),
		SectionID:      row.SectionID,
		SectionCode:    row.SectionCode,
		Text:           descriptionText(row.PreviewText, row.DetailText),
		Properties:     row.Properties,
		detailPicture:  row.DetailPicture,
		previewPicture: row.PreviewPicture,
		morePhoto:      row.MorePhoto(),
	}
}

// resolveImage walks detail picture, preview picture, then additional images.
func (e *Enricher) resolveImage(ctx context.Context, detail, preview int64, more []int64) string {
	if u := e.fileURL(ctx, detail); u != "" {
		return u
	}
	if u := e.fileURL(ctx, preview); u != "" {
		return u
	}
	for _, id := range more {
		if u := e.fileURL(ctx, id); u != "" {
			return u
		}
	}
	return ""
}

// fileURL returns "" for zero IDs and files the store cannot resolve.
func (e *Enricher) fileURL(ctx context.Context, fileID int64) string {
	if fileID <= 0 {
		return ""
	}
	path, err := e.store.FilePath(ctx, fileID)
	if err != nil || path == "" {
		if err != nil && !domain.IsCode(err, domain.ENOTFOUND) {
			e.logger.Warn("file lookup failed", "file_id", fileID, "error", err)
		}
		return ""
	}
	return e.url(path)
}

// url makes a site-relative path absolute. Absolute URLs pass through.
func (e *Enricher) url(path string) string {
	if path == "" {
		return e.baseURL
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return e.baseURL + path
}

// descriptionText prefers the preview text and falls back to the detail text.
func descriptionText(preview, detail string) string {
	if preview != "" {
		return StripMarkup(preview)
	}
	return StripMarkup(detail)
}
