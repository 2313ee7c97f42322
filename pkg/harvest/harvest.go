package harvest

import (
	"context"
	"fmt"
	"time"

	"civharvest/pkg/checkpoint"
	"civharvest/pkg/civitai"
	"civharvest/pkg/config"
	"civharvest/pkg/errors"
	"civharvest/pkg/logger"
	"civharvest/pkg/models"
	"civharvest/pkg/paginator"
	"civharvest/pkg/ratelimit"
	"civharvest/pkg/records"

	"github.com/google/uuid"
)

// DefaultItemDelay separates consecutive detail fetches.
const DefaultItemDelay = 200 * time.Millisecond

// API is the subset of the tRPC surface a harvest needs. *civitai.API
// implements it.
type API interface {
	paginator.Fetcher
	GenerationData(ctx context.Context, imageID int64) (models.DetailRecord, error)
	VotableTags(ctx context.Context, imageID int64) ([]models.Tag, error)
}

// Settings are fixed for the lifetime of a Harvester.
type Settings struct {
	// ItemDelay is the pause between detail fetches. Zero means
	// DefaultItemDelay; use a negative value to disable pacing.
	ItemDelay time.Duration
	// CDNBase overrides records.DefaultCDNBase.
	CDNBase string
	Logger  logger.Logger
}

// SettingsFromConfig derives harvester settings from the loaded config.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		ItemDelay: cfg.Harvest.ItemDelay,
		CDNBase:   cfg.API.ImageCDNBase,
	}
}

// Options tune a single Scrape call.
type Options struct {
	// Limit caps the number of listed items; zero or less means all.
	Limit    int
	MaxPages int
	// Prefs are the browsing filters. Nil means
	// civitai.DefaultBrowsingPrefs.
	Prefs    *civitai.BrowsingPrefs
	SkipTags bool
	// Checkpointer receives pagination progress after every page.
	Checkpointer paginator.Checkpointer
	// Resume continues pagination from a saved checkpoint.
	Resume *checkpoint.Checkpoint
	// Stored reports images the output already holds. On a resumed run
	// they are not fetched again.
	Stored func(imageID int64) bool
	// OnRecord is called with every finished record, in order. An error
	// ends the run.
	OnRecord func(rec *records.MergedRecord) error
	// RunID names the run; empty means a fresh uuid.
	RunID string
	// Observer follows progress. Optional.
	Observer Observer
}

// Observer receives progress events from Scrape, in order, on the calling
// goroutine.
type Observer interface {
	Listed(n int)
	Recorded(rec *records.MergedRecord)
	Skipped(imageID int64, err error)
}

// OptionsFromConfig builds scrape options out of the harvest section.
func OptionsFromConfig(cfg config.HarvestConfig) Options {
	prefs := civitai.PrefsFromConfig(cfg)
	return Options{
		Limit:    cfg.Limit,
		MaxPages: cfg.MaxPages,
		Prefs:    &prefs,
		SkipTags: !cfg.FetchTags,
	}
}

// SkippedItem is a listed image that produced no record.
type SkippedItem struct {
	ImageID int64
	Reason  string
	Err     error
}

// Report describes one harvest run.
type Report struct {
	RunID        string
	CollectionID int64
	Records      []*records.MergedRecord
	Pagination   *paginator.State
	Listed       int
	Skipped      []SkippedItem
	TagFailures  int
	// AlreadyStored counts listed images a resumed run did not fetch
	// because the output already had them.
	AlreadyStored int

	StartedAt      time.Time
	FinishedAt     time.Time
	ListDuration   time.Duration
	DetailDuration time.Duration
}

// Duration is the wall time of the run.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Complete reports whether the whole collection was listed and every
// listed image produced a record.
func (r *Report) Complete() bool {
	return r.Pagination != nil &&
		r.Pagination.Status == paginator.StatusExhausted &&
		r.Pagination.Err == nil &&
		len(r.Skipped) == 0
}

// Metrics summarizes the run for logging.
func (r *Report) Metrics() map[string]interface{} {
	m := map[string]interface{}{
		"run_id":       r.RunID,
		"listed":       r.Listed,
		"records":      len(r.Records),
		"skipped":      len(r.Skipped),
		"tag_failures": r.TagFailures,
		"stored":       r.AlreadyStored,
		"list_time":    r.ListDuration.String(),
		"detail_time":  r.DetailDuration.String(),
		"total_time":   r.Duration().String(),
	}
	if r.Pagination != nil {
		m["pagination"] = string(r.Pagination.Status)
		m["fetches"] = r.Pagination.Fetches
	}
	return m
}

// Harvester turns a collection into merged records.
type Harvester struct {
	api    API
	merger *records.Merger
	pacer  ratelimit.Limiter
	logger logger.Logger
	now    func() time.Time
}

// New creates a Harvester over api.
func New(api API, s Settings) *Harvester {
	delay := s.ItemDelay
	if delay == 0 {
		delay = DefaultItemDelay
	}
	if delay < 0 {
		delay = 0
	}
	log := s.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	return &Harvester{
		api:    api,
		merger: records.NewMerger(s.CDNBase),
		pacer:  ratelimit.NewPacer(delay),
		logger: log,
		now:    time.Now,
	}
}

// Scrape harvests collectionID. The report is returned even on error and
// holds every record finished before the failure.
func (h *Harvester) Scrape(ctx context.Context, collectionID int64, opts Options) (*Report, error) {
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	report := &Report{
		RunID:        runID,
		CollectionID: collectionID,
		StartedAt:    h.now(),
	}
	log := h.logger.WithFields(map[string]interface{}{
		"run_id":        report.RunID,
		"collection_id": collectionID,
	})

	prefs := civitai.DefaultBrowsingPrefs()
	if opts.Prefs != nil {
		prefs = *opts.Prefs
	}

	logger.LogComponentStart(log, "harvest", map[string]interface{}{
		"limit":          opts.Limit,
		"max_pages":      opts.MaxPages,
		"browsing_level": prefs.BrowsingLevel,
		"tags":           !opts.SkipTags,
		"resume":         opts.Resume != nil,
	})

	p := paginator.New(h.api, paginator.Options{
		Prefs:        prefs,
		MaxPages:     opts.MaxPages,
		Checkpointer: opts.Checkpointer,
		Logger:       log,
	})
	if opts.Resume != nil {
		p.Resume(opts.Resume)
	}

	listStart := h.now()
	listed, err := p.Paginate(ctx, collectionID, opts.Limit)
	report.ListDuration = h.now().Sub(listStart)
	report.Pagination = listed.State
	report.Listed = len(listed.Items)
	if err != nil {
		if fatal(ctx, err) {
			return h.finish(log, report, err)
		}
		log.WithError(err).WarnWithFields("pagination stopped early, harvesting the partial list", map[string]interface{}{
			"listed": len(listed.Items),
		})
	}

	pending := listed.Items
	if opts.Resume != nil && opts.Stored != nil {
		pending = make([]models.ListItem, 0, len(listed.Items))
		for _, item := range listed.Items {
			if opts.Stored(item.ID) {
				report.AlreadyStored++
				continue
			}
			pending = append(pending, item)
		}
		if report.AlreadyStored > 0 {
			log.InfoWithFields("skipping images already in the output", map[string]interface{}{
				"stored":  report.AlreadyStored,
				"pending": len(pending),
			})
		}
	}

	if opts.Observer != nil {
		opts.Observer.Listed(len(pending))
	}

	h.pacer.Reset()
	for _, item := range pending {
		if err := h.pacer.Wait(ctx); err != nil {
			return h.finish(log, report, err)
		}

		rec, err := h.harvestItem(ctx, log, item, opts, report)
		if err != nil {
			if fatal(ctx, err) {
				return h.finish(log, report, err)
			}
			report.Skipped = append(report.Skipped, SkippedItem{
				ImageID: item.ID,
				Reason:  "generation data unavailable",
				Err:     err,
			})
			logger.LogItemSkipped(log, item.ID, "generation data unavailable", err)
			if opts.Observer != nil {
				opts.Observer.Skipped(item.ID, err)
			}
			continue
		}

		report.Records = append(report.Records, rec)
		if opts.OnRecord != nil {
			if err := opts.OnRecord(rec); err != nil {
				return h.finish(log, report, fmt.Errorf("record %d: %w", rec.ImageID, err))
			}
		}
		if opts.Observer != nil {
			opts.Observer.Recorded(rec)
		}
	}

	return h.finish(log, report, nil)
}

func (h *Harvester) harvestItem(ctx context.Context, log logger.Logger, item models.ListItem, opts Options, report *Report) (*records.MergedRecord, error) {
	detail, err := h.api.GenerationData(ctx, item.ID)
	if err != nil {
		return nil, fmt.Errorf("generation data for image %d: %w", item.ID, err)
	}

	rec := h.merger.Merge(item, detail)
	if opts.SkipTags {
		return rec, nil
	}

	tags, err := h.api.VotableTags(ctx, item.ID)
	if err != nil {
		if fatal(ctx, err) {
			return nil, fmt.Errorf("tags for image %d: %w", item.ID, err)
		}
		report.TagFailures++
		log.WithError(err).WithField("image_id", item.ID).Warn("tag lookup failed, keeping record without tags")
		return rec, nil
	}
	return rec.WithTags(civitai.TagNames(tags)), nil
}

// fatal reports whether err should end the whole run: every later request
// would fail the same way.
func fatal(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.IsType(err, errors.ErrorTypeAuth)
}

func (h *Harvester) finish(log logger.Logger, report *Report, err error) (*Report, error) {
	report.FinishedAt = h.now()
	report.DetailDuration = report.Duration() - report.ListDuration
	logger.LogMetrics(log, "harvest", report.Metrics())
	if err != nil {
		log.WithError(err).Error("harvest aborted")
		logger.LogComponentStop(log, "harvest", "aborted")
		return report, err
	}
	logger.LogComponentStop(log, "harvest", "completed")
	return report, nil
}
