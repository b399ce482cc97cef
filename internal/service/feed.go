package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/feedgen/internal"
	"github.com/dukerupert/feedgen/internal/domain"
	"github.com/dukerupert/feedgen/internal/events"
	"github.com/dukerupert/feedgen/internal/feed"
	"github.com/dukerupert/feedgen/internal/storage"
	"github.com/dukerupert/feedgen/internal/telemetry"
	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
)

// FeedService runs configured export profiles.
type FeedService interface {
	// RunProfile enriches the profile's catalog once and writes every feed
	// it lists. Feeds that fail do not stop the remaining ones; their errors
	// are joined into the returned error alongside a partial result.
	RunProfile(ctx context.Context, name string) (*RunResult, error)

	// RunAll runs every profile in file order.
	RunAll(ctx context.Context) ([]*RunResult, error)

	// Profiles lists the configured profiles.
	Profiles() []internal.Profile
}

// RunResult summarizes one profile run.
type RunResult struct {
	RunID     string        `json:"run_id"`
	Profile   string        `json:"profile"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Stats     feed.Stats    `json:"stats"`
	Feeds     []FeedResult  `json:"feeds"`
}

// FeedResult describes one feed file of a run.
type FeedResult struct {
	Format  string `json:"format"`
	Path    string `json:"path"`
	URL     string `json:"url,omitempty"`
	Records int    `json:"records"`
	Error   string `json:"error,omitempty"`

	// Retired lists previous publish keys removed after this publish.
	Retired []string `json:"retired,omitempty"`
}

// FeedServiceConfig holds the collaborators and site settings of the service.
type FeedServiceConfig struct {
	Store    domain.CatalogStore
	Prices   domain.PriceService
	Sites    domain.SiteService
	Profiles *internal.Profiles

	// Storage publishes finished feeds. Nil disables publishing.
	Storage storage.Storage

	// Events announces finished feeds. Nil disables events.
	Events events.Publisher

	// Metrics may be nil.
	Metrics *telemetry.FeedMetrics

	Logger *slog.Logger

	SiteID       string
	Protocol     string
	DocumentRoot string

	// Now defaults to time.Now.
	Now func() time.Time
}

type feedService struct {
	cfg    FeedServiceConfig
	logger *slog.Logger

	// locks holds one *sync.Mutex per profile name.
	locks sync.Map
}

// NewFeedService creates a FeedService.
func NewFeedService(cfg FeedServiceConfig) (FeedService, error) {
	if cfg.Store == nil || cfg.Prices == nil || cfg.Sites == nil {
		return nil, fmt.Errorf("catalog store, price service and site service are required")
	}
	if cfg.Profiles == nil {
		return nil, fmt.Errorf("profiles are required")
	}
	if cfg.Events == nil {
		cfg.Events = events.NoopPublisher{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &feedService{
		cfg:    cfg,
		logger: cfg.Logger,
	}, nil
}

func (s *feedService) Profiles() []internal.Profile {
	return s.cfg.Profiles.All()
}

func (s *feedService) RunAll(ctx context.Context) ([]*RunResult, error) {
	var (
		results []*RunResult
		errs    []error
	)
	for _, p := range s.cfg.Profiles.All() {
		res, err := s.RunProfile(ctx, p.Name)
		if res != nil {
			results = append(results, res)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("profile %s: %w", p.Name, err))
		}
		if ctx.Err() != nil {
			break
		}
	}
	return results, errors.Join(errs...)
}

func (s *feedService) RunProfile(ctx context.Context, name string) (*RunResult, error) {
	const op = "feed.run_profile"

	profile, ok := s.cfg.Profiles.Get(name)
	if !ok {
		return nil, domain.NotFound(op, "profile", name)
	}

	mu := s.lock(name)
	if !mu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer mu.Unlock()

	result := &RunResult{
		RunID:     uuid.NewString(),
		Profile:   name,
		StartedAt: s.cfg.Now(),
	}
	logger := s.logger.With("profile", name, "run_id", result.RunID)
	logger.Info("feed run started", "catalog_id", profile.CatalogID, "feeds", len(profile.Feeds))

	exp, err := s.newExporter(ctx, profile, logger)
	if err != nil {
		telemetry.CaptureExportError(err, name, "", nil)
		return nil, err
	}

	spanCtx, finish := telemetry.StartSpan(ctx, "feed.enrich", name)
	enrichStart := time.Now()
	_, err = exp.Records(spanCtx)
	finish()
	if err != nil {
		for _, target := range profile.Feeds {
			s.cfg.Metrics.RecordExport(name, target.Format, 0, 0, err)
		}
		telemetry.CaptureExportError(err, name, "", map[string]interface{}{"run_id": result.RunID})
		logger.Error("catalog enrichment failed", "error", err)
		return nil, err
	}

	result.Stats = exp.Stats()
	s.cfg.Metrics.RecordEnrichment(name, time.Since(enrichStart),
		result.Stats.ParentLookups, result.Stats.ParentCacheHits,
		result.Stats.MissingPrices, result.Stats.MissingImages)
	if result.Stats.Rows == 0 {
		logger.Warn("catalog query matched no active priced elements")
		telemetry.CaptureMessage("feed run matched no records", sentry.LevelWarning, map[string]interface{}{
			"profile":    name,
			"catalog_id": profile.CatalogID,
			"run_id":     result.RunID,
		})
	}

	var errs []error
	for _, target := range profile.Feeds {
		fr, err := s.exportTarget(ctx, exp, profile, target, result.RunID, logger)
		result.Feeds = append(result.Feeds, fr)
		if err != nil {
			errs = append(errs, err)
		}
	}

	result.Duration = time.Since(result.StartedAt)
	logger.Info("feed run finished",
		"duration", result.Duration,
		"records", result.Stats.Rows,
		"failed_feeds", len(errs),
	)

	return result, errors.Join(errs...)
}

// newExporter builds an exporter configured for profile, mapping overrides included.
func (s *feedService) newExporter(ctx context.Context, profile internal.Profile, logger *slog.Logger) (*feed.Exporter, error) {
	exp, err := feed.NewExporter(ctx, s.cfg.Store, s.cfg.Prices, s.cfg.Sites, s.cfg.SiteID,
		feed.WithLogger(logger),
		feed.WithProtocol(s.cfg.Protocol),
		feed.WithDocumentRoot(s.cfg.DocumentRoot),
		feed.WithClock(s.cfg.Now),
	)
	if err != nil {
		return nil, err
	}

	exp.SetCatalogID(profile.CatalogID)
	exp.SetParentCatalogID(profile.ParentCatalogID)
	exp.SetPriceField(profile.PriceField)
	exp.SetDebug(profile.Debug)
	exp.SetCompany(profile.Company)

	for _, m := range profile.Mappings.All {
		exp.AddMappingAll(m.Field, feed.ParseBinding(m.Value))
	}
	for _, m := range profile.Mappings.XML {
		exp.AddMappingXML(m.Field, feed.ParseBinding(m.Value))
	}
	for _, m := range profile.Mappings.CSV {
		exp.AddMappingCSV(m.Field, feed.ParseBinding(m.Value))
	}
	for _, m := range profile.Mappings.YML {
		exp.AddMappingYML(m.Field, feed.ParseBinding(m.Value))
	}

	return exp, nil
}

// exportTarget writes one feed, then publishes it and announces it.
// Publishing failures fail the feed; event failures are only logged.
func (s *feedService) exportTarget(ctx context.Context, exp *feed.Exporter, profile internal.Profile, target internal.FeedTarget, runID string, logger *slog.Logger) (FeedResult, error) {
	fr := FeedResult{Format: target.Format, Path: target.Path}

	format, err := feed.ParseFormat(target.Format)
	if err != nil {
		fr.Error = domain.ErrorMessage(err)
		return fr, err
	}
	switch format {
	case feed.FormatCSV:
		exp.SetCSVDelimiter(target.DelimiterRune())
	case feed.FormatYML:
		exp.SetYMLEncoding(target.Encoding)
	}

	res, err := exp.Export(ctx, target.Path, format)
	if err != nil {
		s.cfg.Metrics.RecordExport(profile.Name, target.Format, 0, 0, err)
		telemetry.CaptureExportError(err, profile.Name, target.Format, map[string]interface{}{"run_id": runID, "path": target.Path})
		logger.Error("feed export failed", "format", target.Format, "path", target.Path, "error", err)
		fr.Error = domain.ErrorMessage(err)
		return fr, fmt.Errorf("%s: %w", target.Path, err)
	}
	s.cfg.Metrics.RecordExport(profile.Name, target.Format, res.Records, res.Duration, nil)
	fr.Path = res.Path
	fr.Records = res.Records

	if s.cfg.Storage != nil && target.PublishKey != "" {
		url, err := storage.PublishFile(ctx, s.cfg.Storage, target.PublishKey, res.Path, storage.ContentType(target.Format))
		if err != nil {
			s.cfg.Metrics.RecordPublishFailure(profile.Name, target.Format)
			telemetry.CaptureExportError(err, profile.Name, target.Format, map[string]interface{}{"run_id": runID, "key": target.PublishKey})
			logger.Error("feed publish failed", "format", target.Format, "key", target.PublishKey, "error", err)
			fr.Error = "publish failed"
			return fr, fmt.Errorf("publish %s: %w", target.PublishKey, err)
		}
		fr.URL = url
		logger.Info("feed published", "format", target.Format, "url", url)

		fr.Retired = s.retireKeys(ctx, target, logger)
	}

	err = s.cfg.Events.PublishExport(ctx, events.ExportCompleted{
		RunID:       runID,
		Profile:     profile.Name,
		Format:      target.Format,
		Path:        res.Path,
		URL:         fr.URL,
		Records:     res.Records,
		GeneratedAt: s.cfg.Now(),
	})
	s.cfg.Metrics.RecordEvent(err)
	if err != nil {
		logger.Warn("export event not sent", "format", target.Format, "error", err)
	}

	telemetry.AddBreadcrumb("feed", "feed exported", map[string]interface{}{
		"profile": profile.Name,
		"format":  target.Format,
		"records": res.Records,
	})

	return fr, nil
}

// retireKeys removes objects left under the target's previous publish keys.
// Cleanup failures are logged; the new feed is already live.
func (s *feedService) retireKeys(ctx context.Context, target internal.FeedTarget, logger *slog.Logger) []string {
	keys := make([]string, 0, len(target.RetiredKeys))
	for _, k := range target.RetiredKeys {
		if k != target.PublishKey {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil
	}

	removed, err := storage.RetireKeys(ctx, s.cfg.Storage, keys)
	if err != nil {
		logger.Warn("retired feed cleanup failed", "format", target.Format, "error", err)
	}
	if len(removed) > 0 {
		logger.Info("retired feed objects removed", "format", target.Format, "keys", removed)
	}
	return removed
}

func (s *feedService) lock(name string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(name, &sync.Mutex{})
	return mu.(*sync.Mutex)
}
