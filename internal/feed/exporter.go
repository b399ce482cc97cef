package feed

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/dukerupert/feedgen/internal/domain"
)

// ExportResult describes one written feed file.
type ExportResult struct {
	Path     string
	Format   Format
	Records  int
	Duration time.Duration
	Stats    Stats
}

// Exporter generates feed files for one catalog.
//
// Enriched records are loaded on the first export and reused by every later
// export of the same Exporter, so one instance can write the XML, CSV and YML
// feeds of a catalog from a single catalog pass. Mapping overrides accumulate
// for the lifetime of the instance.
//
// An Exporter is not safe for concurrent use.
type Exporter struct {
	store  domain.CatalogStore
	prices domain.PriceService
	logger *slog.Logger
	now    func() time.Time

	siteID       string
	protocol     string
	site         domain.Site
	documentRoot string

	catalogID       int64
	parentCatalogID int64
	priceField      string
	debug           bool

	csvDelimiter rune
	ymlEncoding  string
	company      string

	overrides map[Format]*Mapping

	records []Record
	stats   Stats
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Exporter) { e.logger = l }
}

// WithProtocol sets the URL scheme used for links, "http" by default.
func WithProtocol(protocol string) Option {
	return func(e *Exporter) { e.protocol = strings.TrimSuffix(protocol, "://") }
}

// WithDocumentRoot sets the directory export paths are relative to.
func WithDocumentRoot(dir string) Option {
	return func(e *Exporter) { e.documentRoot = dir }
}

// WithClock overrides the generation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Exporter) { e.now = now }
}

// NewExporter creates an exporter for siteID and loads the site info.
// A missing site degrades to an empty channel title and a bare protocol URL.
func NewExporter(ctx context.Context, store domain.CatalogStore, prices domain.PriceService, sites domain.SiteService, siteID string, opts ...Option) (*Exporter, error) {
	e := &Exporter{
		store:        store,
		prices:       prices,
		logger:       slog.Default(),
		now:          time.Now,
		siteID:       siteID,
		protocol:     "http",
		csvDelimiter: DefaultCSVDelimiter,
		ymlEncoding:  EncodingUTF8,
		overrides: map[Format]*Mapping{
			FormatXML: NewMapping(),
			FormatCSV: NewMapping(),
			FormatYML: NewMapping(),
		},
	}
	for _, opt := range opts {
		opt(e)
	}

	site, err := sites.GetSite(ctx, siteID)
	switch {
	case err == nil:
		e.site = *site
	case domain.IsCode(err, domain.ENOTFOUND):
		e.logger.Warn("site not found, feed links will lack a host", "site_id", siteID)
		e.site = domain.Site{ID: siteID}
	default:
		return nil, domain.Internal(err, "feed.new_exporter", "failed to load site info")
	}

	// YML keeps numeric price and currencyId columns.
	e.AddMappingXML("price", PriceBinding)
	e.AddMappingCSV("price", PriceBinding)

	return e, nil
}

// SetCatalogID sets the catalog to export.
func (e *Exporter) SetCatalogID(id int64) { e.catalogID = id }

// SetParentCatalogID sets the catalog whose sections form the YML category
// tree, for setups where variants live in their own catalog.
func (e *Exporter) SetParentCatalogID(id int64) { e.parentCatalogID = id }

// SetPriceField sets the price type used to filter exported elements.
func (e *Exporter) SetPriceField(field string) { e.priceField = field }

// SetDebug limits enrichment to a single element.
func (e *Exporter) SetDebug(debug bool) { e.debug = debug }

// SetCSVDelimiter sets the CSV column separator.
func (e *Exporter) SetCSVDelimiter(d rune) {
	if d == 0 {
		d = DefaultCSVDelimiter
	}
	e.csvDelimiter = d
}

// SetYMLEncoding sets the YML output encoding (utf-8 or windows-1251).
func (e *Exporter) SetYMLEncoding(enc string) { e.ymlEncoding = enc }

// SetCompany sets the YML company name. Defaults to the site name.
func (e *Exporter) SetCompany(company string) { e.company = company }

// AddMappingXML registers a mapping entry for the XML feed.
func (e *Exporter) AddMappingXML(name string, b Binding) { e.overrides[FormatXML].Set(name, b) }

// AddMappingCSV registers a mapping entry for the CSV feed.
func (e *Exporter) AddMappingCSV(name string, b Binding) { e.overrides[FormatCSV].Set(name, b) }

// AddMappingYML registers a mapping entry for the YML feed.
func (e *Exporter) AddMappingYML(name string, b Binding) { e.overrides[FormatYML].Set(name, b) }

// AddMappingAll registers the same mapping entry for every format.
func (e *Exporter) AddMappingAll(name string, b Binding) {
	for _, f := range Formats {
		e.overrides[f].Set(name, b)
	}
}

// Mapping returns the effective mapping of a format: defaults merged with
// every override registered so far.
func (e *Exporter) Mapping(f Format) *Mapping {
	return Merge(DefaultMapping(f), e.overrides[f])
}

// SiteURL returns the protocol-qualified site URL.
func (e *Exporter) SiteURL() string {
	return e.protocol + "://" + e.site.ServerName
}

// Records returns the cached records, loading them on first use.
func (e *Exporter) Records(ctx context.Context) ([]Record, error) {
	if len(e.records) > 0 {
		return e.records, nil
	}

	enricher := NewEnricher(e.store, e.prices, e.siteID, e.SiteURL(), e.logger)
	records, stats, err := enricher.Enrich(ctx, Query{
		CatalogID:  e.catalogID,
		PriceField: e.priceField,
		Debug:      e.debug,
	})
	if err != nil {
		return nil, err
	}
	e.records = records
	e.stats = stats
	return records, nil
}

// Stats returns the statistics of the last enrichment pass.
func (e *Exporter) Stats() Stats { return e.stats }

// Reset drops cached records so the next export re-reads the catalog.
func (e *Exporter) Reset() {
	e.records = nil
	e.stats = Stats{}
}

// Export writes the feed of the given format to fileName under the document root.
// An existing file at that path is replaced.
func (e *Exporter) Export(ctx context.Context, fileName string, format Format) (*ExportResult, error) {
	const op = "feed.export"
	start := time.Now()

	if e.catalogID <= 0 {
		return nil, domain.Invalid(op, "catalog id is required")
	}
	if e.priceField == "" {
		return nil, domain.Invalid(op, "price field is required")
	}
	if _, err := ParseFormat(string(format)); err != nil {
		return nil, err
	}
	if fileName == "" {
		return nil, domain.Invalid(op, "file name is required")
	}

	records, err := e.Records(ctx)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(e.documentRoot, filepath.FromSlash(fileName))
	mapping := e.Mapping(format)
	channel := Channel{Title: e.site.Name, Link: e.SiteURL(), Company: e.company}

	var n int
	switch format {
	case FormatXML:
		n, err = writeXML(path, channel, mapping, records)
	case FormatCSV:
		n, err = writeCSV(path, e.csvDelimiter, mapping, records)
	case FormatYML:
		var sections []domain.Section
		sections, err = e.sections(ctx)
		if err == nil {
			n, err = writeYML(path, channel, ymlOptions{
				Encoding:    e.ymlEncoding,
				GeneratedAt: e.now(),
				Sections:    sections,
			}, mapping, records)
		}
	}
	if err != nil {
		return nil, domain.Internal(err, op, "failed to write "+string(format)+" feed")
	}

	result := &ExportResult{
		Path:     path,
		Format:   format,
		Records:  n,
		Duration: time.Since(start),
		Stats:    e.stats,
	}

	e.logger.Info("feed exported",
		"format", format,
		"path", path,
		"records", n,
		"duration", result.Duration,
	)

	return result, nil
}

func (e *Exporter) sections(ctx context.Context) ([]domain.Section, error) {
	catalogID := e.catalogID
	if e.parentCatalogID > 0 {
		catalogID = e.parentCatalogID
	}
	sections, err := e.store.ListSections(ctx, catalogID)
	if err != nil {
		return nil, domain.Internal(err, "feed.sections", "failed to list sections")
	}
	return sections, nil
}
