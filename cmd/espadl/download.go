package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"espadl/pkg/auth"
	"espadl/pkg/config"
	errs "espadl/pkg/errors"
	"espadl/pkg/espa"
	"espadl/pkg/history"
	"espadl/pkg/logger"
	"espadl/pkg/ratelimit"
	"espadl/pkg/retriever"
	"espadl/pkg/retry"
	"espadl/pkg/storage"
	"espadl/pkg/transfer"
	"espadl/pkg/ui"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// Download command flags
var (
	email      string
	orderID    string
	targetDir  string
	username   string
	password   string
	host       string
	verbose    bool
	sourceKind string
	concurrent int
	pauseMin   time.Duration
	pauseMax   time.Duration
	maxRetries int
)

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download all completed scenes of an order",
	Long:  ui.Banner + "\n\n" + epilog,
	Example: `  # Download every completed order
  espadl download -e me@example.com -o ALL -d /data/espa

  # Download one order through the JSON API, two scenes at a time
  espadl download -e me@example.com -o espa-me@example.com-0101 -d /data/espa --source api --concurrent 2`,
	Args: cobra.NoArgs,
	RunE: runDownload,
}

func init() {
	rootCmd.AddCommand(downloadCmd)
	addDownloadFlags(downloadCmd)
}

// addDownloadFlags registers the download flags on cmd; the root command
// carries them too so that "espadl -e ... -o ... -d ..." works
func addDownloadFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&email, "email", "e", "", "email address for the user that submitted the order")
	f.StringVarP(&orderID, "order", "o", "", "which order to download (use ALL for every order)")
	f.StringVarP(&targetDir, "target-directory", "d", "", "where to store the downloaded scenes")
	f.StringVarP(&username, "username", "u", "", "EE/ESPA account username")
	f.StringVarP(&password, "password", "p", "", "EE/ESPA account password")
	f.StringVarP(&host, "host", "i", "", "ESPA host (default "+config.DefaultHost+")")
	f.BoolVarP(&verbose, "verbose", "v", false, "be vocal about process")
	f.StringVar(&sourceKind, "source", "", "order listing to use: feed or api")
	f.IntVar(&concurrent, "concurrent", 1, "number of scenes downloaded in parallel")
	f.DurationVar(&pauseMin, "pause-min", 5*time.Second, "minimum pause between chunks of one scene")
	f.DurationVar(&pauseMax, "pause-max", 30*time.Second, "maximum pause between chunks of one scene")
	f.IntVar(&maxRetries, "max-retries", 3, "attempts per request before a scene is given up for this run")
}

func downloadFlags(cmd *cobra.Command) map[string]interface{} {
	flags := globalFlags(cmd)
	set := cmd.Flags().Changed

	strs := map[string]string{
		"email":            email,
		"target-directory": targetDir,
		"username":         username,
		"password":         password,
		"host":             host,
		"source":           sourceKind,
	}
	for name, v := range strs {
		if set(name) {
			flags[name] = v
		}
	}
	if set("verbose") {
		flags["verbose"] = verbose
	}
	if set("concurrent") {
		flags["concurrent"] = concurrent
	}
	if set("pause-min") {
		flags["pause-min"] = pauseMin
	}
	if set("pause-max") {
		flags["pause-max"] = pauseMax
	}
	if set("max-retries") {
		flags["max-retries"] = maxRetries
	}
	return flags
}

func runDownload(cmd *cobra.Command, args []string) error {
	cfg, err := setup(downloadFlags(cmd))
	if err != nil {
		return err
	}
	log := logger.GetLogger()

	order := strings.TrimSpace(orderID)
	var missing []string
	if cfg.ESPA.Email == "" {
		missing = append(missing, "--email")
	}
	if order == "" {
		missing = append(missing, "--order")
	}
	if cfg.Output.BaseDirectory == "" {
		missing = append(missing, "--target-directory")
	}
	if len(missing) > 0 {
		return fmt.Errorf("required flags not set: %s", strings.Join(missing, ", "))
	}

	if err := resolveCredentials(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ui.PrintBanner(version)
	hist := openHistory(cfg, log)

	runID := uuid.NewString()
	var rec *history.Record
	if hist != nil {
		rec = hist.Begin(cfg.ESPA.Email, order, cfg.ESPA.Host)
		runID = rec.RunID
	}
	log = log.WithField("run_id", runID)

	retryCfg := retry.FromSettings(ctx, cfg.Retry, log)
	limiter := ratelimit.PerMinute(cfg.RateLimit.RequestsPerMinute)

	client := espa.NewClient(espa.ClientOptions{
		Host:      cfg.ESPA.Host,
		Username:  cfg.ESPA.Username,
		Password:  cfg.ESPA.Password,
		UserAgent: cfg.ESPA.UserAgent,
		Timeout:   cfg.ESPA.RequestTimeout,
		Limiter:   limiter,
		Retry:     retryCfg,
	}, log)
	source, err := espa.NewSource(cfg.ESPA.Source, client, cfg.ESPA.Email)
	if err != nil {
		return err
	}

	reporter := ui.NewReporter(ui.Output(), cfg.Output.Verbose)
	fetcher := transfer.NewClient(transfer.Options{
		UserAgent:    cfg.ESPA.UserAgent,
		ChunkTimeout: cfg.Download.ChunkTimeout,
		Limiter:      limiter,
	}, log)
	store := storage.New(cfg.Output.BaseDirectory, fetcher,
		storage.WithVerbose(cfg.Output.Verbose),
		storage.WithReporter(reporter),
		storage.WithPacer(ratelimit.NewRandomPause(cfg.Download.PauseMin, cfg.Download.PauseMax)),
		storage.WithRetry(retryCfg),
		storage.WithLogger(log),
	)

	reporter.Retrieving(cfg.ESPA.Source, order)
	r := retriever.New(source, store, retriever.Options{
		Concurrency: cfg.Download.ConcurrentItems,
		Reporter:    reporter,
		Logger:      log,
	})
	summary, runErr := r.Run(ctx, order)

	if rec != nil {
		rec.Downloaded, rec.Skipped, rec.Failed = summary.Downloaded, summary.Skipped, summary.Failed
		if runErr != nil {
			rec.Aborted = runErr.Error()
		}
		if err := hist.Save(rec); err != nil {
			log.WithError(err).Warn("failed to save run history")
		}
	}

	if runErr != nil {
		return describeRunError(runErr)
	}

	reporter.Summary()
	if !summary.OK() {
		for _, f := range summary.Failures {
			log.WithError(f.Err).WithField("file", f.Scene.FileName).Error("scene not downloaded")
		}
		return fmt.Errorf("%d of %d scenes failed; rerun to resume them", summary.Failed, summary.Listed-summary.Duplicates)
	}
	return nil
}

// resolveCredentials fills missing username or password from stored
// credentials
func resolveCredentials(cfg *config.Config) error {
	if cfg.ESPA.Username != "" && cfg.ESPA.Password != "" {
		return nil
	}

	manager, err := auth.NewManager()
	if err != nil {
		logger.WithError(err).Warn("credential store unavailable")
	} else {
		cfg.ESPA.Username, cfg.ESPA.Password, _ = manager.Resolve(cfg.ESPA.Username, cfg.ESPA.Password)
	}

	if cfg.ESPA.Username == "" || cfg.ESPA.Password == "" {
		return errors.New("no ESPA credentials: pass --username and --password, run 'espadl auth login', or set " +
			auth.EnvUsername + " and " + auth.EnvPassword)
	}
	return nil
}

// openHistory returns nil when history is disabled or unusable, after
// warning about runs scheduled too close together
func openHistory(cfg *config.Config, log logger.Logger) *history.Manager {
	if !cfg.History.Enabled {
		return nil
	}
	hist, err := history.NewManager(cfg.History.Directory, cfg.ESPA.Email, log)
	if err != nil {
		log.WithError(err).Warn("run history disabled")
		return nil
	}
	if elapsed, soon := hist.TooSoon(time.Now(), cfg.History.MinInterval); soon {
		ui.PrintWarning("Previous run started "+humanize.Time(time.Now().Add(-elapsed)),
			"please do not run more often than once every "+cfg.History.MinInterval.String())
	}
	return hist
}

func describeRunError(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return errors.New("interrupted; partial downloads are kept and resume on the next run")
	case errs.Is(err, errs.ErrorTypeAuth):
		return fmt.Errorf("ESPA rejected the credentials: %w", err)
	case errs.Is(err, errs.ErrorTypeNotFound):
		return fmt.Errorf("order not found: %w", err)
	default:
		return err
	}
}
