package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"civharvest/pkg/checkpoint"
	"civharvest/pkg/civitai"
	"civharvest/pkg/config"
	"civharvest/pkg/harvest"
	"civharvest/pkg/logger"
	"civharvest/pkg/records"
	"civharvest/pkg/storage"
	"civharvest/pkg/ui"
	"civharvest/pkg/ui/tui"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	// Harvest command flags
	outputDir     string
	outputFormat  string
	sqlitePath    string
	limit         int
	maxPages      int
	itemDelay     time.Duration
	browsingLevel int
	presetName    string
	noTags        bool
	resume        bool
	forceRestart  bool
	useTUI        bool
)

// harvestCmd represents the harvest command
var harvestCmd = &cobra.Command{
	Use:   "harvest <collection-id>",
	Short: "Harvest every image of a collection",
	Long: `Walk a collection page by page, then fetch generation data and tags for
every listed image and write one merged record per image.

The session token is looked up in this order:
  - the token cache (auth.cache_file or CIVITAI_SESSION_CACHE)
  - CIVITAI_SESSION_COOKIE / CIVITAI_SESSION_TOKEN
  - auth.acquire_command, when configured
  - auth.session_cookie in the config file

Progress is checkpointed after every page. With --resume an interrupted
harvest continues from the last saved page.`,
	Example: `  # Harvest a collection to ./harvest/collection-11035255.json
  civharvest harvest 11035255

  # Stream JSON Lines and stop after 100 images
  civharvest harvest 11035255 --format jsonl --limit 100

  # Keep a SQLite database with run history
  civharvest harvest 11035255 --format sqlite --sqlite-path ~/civitai.db

  # Use the account's "some" browsing preset and the dashboard
  civharvest harvest https://civitai.com/collections/11035255 --preset some --tui`,
	Args: cobra.ExactArgs(1),
	RunE: runHarvest,
}

func init() {
	rootCmd.AddCommand(harvestCmd)

	harvestCmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory (default ./harvest)")
	harvestCmd.Flags().StringVarP(&outputFormat, "format", "f", "", "output format: json, jsonl, sqlite or none")
	harvestCmd.Flags().StringVar(&sqlitePath, "sqlite-path", "", "database file for --format sqlite")
	harvestCmd.Flags().IntVarP(&limit, "limit", "n", -1, "maximum number of images (0 for all)")
	harvestCmd.Flags().IntVar(&maxPages, "max-pages", -1, "maximum number of pages to fetch (0 for no limit)")
	harvestCmd.Flags().DurationVar(&itemDelay, "item-delay", -1, "pause between image detail fetches")
	harvestCmd.Flags().IntVar(&browsingLevel, "browsing-level", 0, "browsing level flags (1 PG, 2 PG-13, 4 R, 8 X, 16 XXX)")
	harvestCmd.Flags().StringVar(&presetName, "preset", "", "apply the account's browsing preset of this type")
	harvestCmd.Flags().BoolVar(&noTags, "no-tags", false, "skip the votable tags lookup")
	harvestCmd.Flags().BoolVar(&resume, "resume", false, "resume from the last checkpoint")
	harvestCmd.Flags().BoolVar(&forceRestart, "force-restart", false, "discard any checkpoint and start over")
	harvestCmd.Flags().BoolVar(&useTUI, "tui", false, "show a full-screen dashboard")
}

func harvestFlags(cmd *cobra.Command) map[string]interface{} {
	flags := map[string]interface{}{
		"output":         outputDir,
		"format":         outputFormat,
		"sqlite-path":    sqlitePath,
		"limit":          limit,
		"max-pages":      maxPages,
		"item-delay":     itemDelay,
		"browsing-level": browsingLevel,
		"preset":         presetName,
		"no-tags":        noTags,
	}
	if cmd.Flags().Changed("resume") {
		flags["resume"] = resume
	}
	return flags
}

func runHarvest(cmd *cobra.Command, args []string) error {
	collectionID, err := parseID(args[0], "collection")
	if err != nil {
		return err
	}

	cfg, err := loadConfig(harvestFlags(cmd))
	if err != nil {
		return err
	}

	log, err := setupLogger(cfg, useTUI)
	if err != nil {
		return err
	}
	logger.LogComponentStart(log, "civharvest", map[string]interface{}{
		"version":       version,
		"collection_id": collectionID,
		"format":        cfg.Output.Format,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !useTUI {
		ui.PrintLogo()
		ui.PrintInfo("Collection", civitai.CollectionPageURL(collectionID))
	}

	run := harvestRun{
		CollectionID: collectionID,
		ForceRestart: forceRestart,
		Dashboard:    useTUI,
		Verbose:      verbose,
		Out:          os.Stderr,
		Logger:       log,
	}
	if quiet {
		run.Out = io.Discard
	}

	report, err := run.Execute(ctx, cfg)
	if err != nil {
		if report != nil && len(report.Records) > 0 {
			ui.PrintWarning(fmt.Sprintf("stopped early, %d records were kept", len(report.Records)))
		}
		return err
	}
	if !report.Complete() {
		ui.PrintWarning("harvest incomplete; rerun with --resume to continue")
	} else {
		ui.PrintSuccess("Harvest complete")
	}
	return nil
}

// harvestRun wires config, credentials, checkpoint, sink and progress
// reporting around a single harvest.Scrape call.
type harvestRun struct {
	CollectionID int64
	ForceRestart bool
	Dashboard    bool
	Verbose      bool
	// CheckpointDir overrides the user data directory.
	CheckpointDir string
	Out           io.Writer
	Logger        logger.Logger
}

// Execute runs the harvest. The report is returned even on error.
func (r harvestRun) Execute(ctx context.Context, cfg *config.Config) (*harvest.Report, error) {
	log := r.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	out := r.Out
	if out == nil {
		out = os.Stderr
	}

	sess, err := connect(ctx, cfg, log, true)
	if err != nil {
		return nil, err
	}

	prefs, err := r.browsingPrefs(ctx, sess.api, cfg, log)
	if err != nil {
		return nil, err
	}

	if info, err := sess.api.Collection(ctx, r.CollectionID); err != nil {
		log.WithError(err).Warn("collection info unavailable")
	} else {
		log.InfoWithFields("collection", map[string]interface{}{
			"name":  info.Name,
			"owner": info.Owner,
			"type":  info.Type,
		})
	}

	ckpt, resumeFrom, err := r.checkpoint(cfg, log)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	sink, err := storage.NewSink(storage.SinkOptions{
		Format:       cfg.Output.Format,
		Directory:    cfg.Output.Directory,
		SQLitePath:   cfg.Output.SQLitePath,
		CollectionID: r.CollectionID,
		RunID:        runID,
		Logger:       log,
	})
	if err != nil {
		return nil, err
	}

	opts := harvest.OptionsFromConfig(cfg.Harvest)
	opts.Prefs = &prefs
	opts.Checkpointer = ckpt
	opts.Resume = resumeFrom
	opts.RunID = runID
	opts.OnRecord = func(rec *records.MergedRecord) error {
		return sink.Write(ctx, rec)
	}
	if idx, ok := sink.(storage.Index); ok {
		opts.Stored = func(imageID int64) bool {
			has, err := idx.Has(ctx, imageID)
			if err != nil {
				log.WithError(err).WithField("image_id", imageID).Warn("output lookup failed, fetching again")
				return false
			}
			return has
		}
	}

	settings := harvest.SettingsFromConfig(cfg)
	settings.Logger = log
	h := harvest.New(sess.api, settings)

	var report *harvest.Report
	var scrapeErr error
	if r.Dashboard {
		report, scrapeErr = r.scrapeWithDashboard(ctx, h, opts, sink, out, log)
	} else {
		display := ui.NewProgressDisplay(out, r.CollectionID, r.Verbose)
		opts.Observer = display
		report, scrapeErr = h.Scrape(ctx, r.CollectionID, opts)
		display.Complete(report, sink.Location())
	}

	if err := finishSink(sink, report, scrapeErr); err != nil {
		log.WithError(err).Error("failed to finalize output")
		if scrapeErr == nil {
			scrapeErr = err
		}
	}
	return report, scrapeErr
}

// scrapeWithDashboard runs the harvest behind the bubbletea dashboard.
// Quitting the dashboard cancels the harvest.
func (r harvestRun) scrapeWithDashboard(ctx context.Context, h *harvest.Harvester, opts harvest.Options, sink storage.Sink, out io.Writer, log logger.Logger) (*harvest.Report, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	dash := tui.NewTUI(r.CollectionID)
	opts.Observer = dash

	type result struct {
		report *harvest.Report
		err    error
	}
	done := make(chan result, 1)
	go func() {
		report, err := h.Scrape(ctx, r.CollectionID, opts)
		if err != nil {
			dash.LogError("%v", err)
		}
		dash.Complete(report, sink.Location())
		done <- result{report, err}
	}()

	if err := dash.Start(); err != nil {
		log.WithError(err).Error("dashboard failed")
	}
	// the dashboard also ends when the user quits
	cancel()
	res := <-done

	ui.NewProgressDisplay(out, r.CollectionID, false).Complete(res.report, sink.Location())
	return res.report, res.err
}

func (r harvestRun) browsingPrefs(ctx context.Context, api *civitai.API, cfg *config.Config, log logger.Logger) (civitai.BrowsingPrefs, error) {
	prefs := civitai.PrefsFromConfig(cfg.Harvest)
	if cfg.Harvest.Preset == "" {
		return prefs, nil
	}

	presets, err := api.BrowsingPresets(ctx)
	if err != nil {
		return prefs, fmt.Errorf("failed to fetch browsing presets: %w", err)
	}
	preset, exact, ok := civitai.FindPreset(presets, cfg.Harvest.Preset)
	if !ok {
		log.WithField("preset", cfg.Harvest.Preset).Warn("account has no browsing presets, using configured browsing level")
		return prefs, nil
	}
	if !exact {
		log.WithFields(map[string]interface{}{
			"wanted": cfg.Harvest.Preset,
			"using":  preset.Type,
		}).Warn("browsing preset not found, using the first one")
	}
	prefs = civitai.ApplyPreset(prefs, preset)
	log.InfoWithFields("browsing preset applied", map[string]interface{}{
		"preset":         preset.Type,
		"browsing_level": prefs.BrowsingLevel,
		"ratings":        civitai.ExplainBrowsingLevel(prefs.BrowsingLevel),
	})
	return prefs, nil
}

func (r harvestRun) checkpoint(cfg *config.Config, log logger.Logger) (*checkpoint.Manager, *checkpoint.Checkpoint, error) {
	var (
		m   *checkpoint.Manager
		err error
	)
	if r.CheckpointDir != "" {
		m, err = checkpoint.NewManagerInDir(r.CheckpointDir, r.CollectionID)
	} else {
		m, err = checkpoint.NewManager(r.CollectionID)
	}
	if err != nil {
		return nil, nil, err
	}
	m.SetLogger(log)

	if r.ForceRestart {
		if err := m.Delete(); err != nil {
			log.WithError(err).Warn("failed to delete checkpoint")
		}
		return m, nil, nil
	}
	if !cfg.Harvest.Resume {
		return m, nil, nil
	}

	cp, err := m.Load()
	if err != nil {
		log.WithError(err).Warn("ignoring unreadable checkpoint")
		return m, nil, nil
	}
	return m, cp, nil
}

// finishSink records the run outcome (for sinks that keep history) and
// closes the sink.
func finishSink(sink storage.Sink, report *harvest.Report, scrapeErr error) error {
	var errs []error
	if rec, ok := sink.(storage.RunRecorder); ok && report != nil {
		run := storage.Run{
			ID:           report.RunID,
			CollectionID: report.CollectionID,
			StartedAt:    report.StartedAt,
			FinishedAt:   report.FinishedAt,
			Status:       runStatus(report, scrapeErr),
			Listed:       report.Listed,
			Records:      len(report.Records),
			Skipped:      len(report.Skipped),
		}
		if scrapeErr != nil {
			run.Error = scrapeErr.Error()
		}
		if err := rec.FinishRun(context.Background(), run); err != nil {
			errs = append(errs, fmt.Errorf("failed to record run: %w", err))
		}
	}
	if err := sink.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func runStatus(report *harvest.Report, err error) string {
	switch {
	case err != nil:
		return "aborted"
	case report.Complete():
		return "completed"
	default:
		return "partial"
	}
}
