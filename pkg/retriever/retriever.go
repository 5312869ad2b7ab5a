package retriever

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"espadl/internal/downloader"
	"espadl/pkg/espa"
	"espadl/pkg/logger"
	"espadl/pkg/storage"
)

// Storer persists one scene and knows where it lives on disk
type Storer interface {
	downloader.Storer
	Locate(scene espa.Scene) storage.Location
}

// Reporter is told about every finished item
type Reporter interface {
	Failed(scene espa.Scene, err error)
	Record(skipped bool, written int64, err error)
}

// Options configures a Retriever
type Options struct {
	// Concurrency is the number of items stored in parallel. Values below 1 mean 1.
	Concurrency int
	Reporter    Reporter
	Logger      logger.Logger
}

// Failure is a scene that could not be stored
type Failure struct {
	Scene espa.Scene
	Err   error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s/%s: %v", f.Scene.OrderID, f.Scene.FileName, f.Err)
}

// Summary tallies the outcome of a run
type Summary struct {
	OrderID    string
	Listed     int
	Duplicates int
	Downloaded int
	Skipped    int
	Failed     int
	Bytes      int64
	Failures   []Failure
	Duration   time.Duration
}

// OK reports whether every listed scene is on disk
func (s *Summary) OK() bool {
	return s.Failed == 0
}

// Retriever lists the completed scenes of an order and stores each of them
type Retriever struct {
	source      espa.Source
	store       Storer
	reporter    Reporter
	concurrency int
	logger      logger.Logger
}

// New creates a Retriever
func New(source espa.Source, store Storer, opts Options) *Retriever {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Logger == nil {
		opts.Logger = logger.GetLogger()
	}
	if opts.Reporter == nil {
		opts.Reporter = nopReporter{}
	}
	return &Retriever{
		source:      source,
		store:       store,
		reporter:    opts.Reporter,
		concurrency: opts.Concurrency,
		logger:      opts.Logger,
	}
}

// Run downloads every completed scene of orderID, or of all orders when
// orderID is espa.AllOrders. A listing failure aborts the run before any
// directory is touched. Item failures are recorded in the Summary and do not
// stop the run; the returned error is then nil.
func (r *Retriever) Run(ctx context.Context, orderID string) (*Summary, error) {
	start := time.Now()
	summary := &Summary{OrderID: orderID}
	log := r.logger.WithField("order_id", orderID)

	log.Info("listing completed scenes")
	scenes, err := r.source.ListCompleted(ctx, orderID)
	if err != nil {
		log.WithError(err).Error("listing failed")
		return summary, fmt.Errorf("failed to list order %s: %w", orderID, err)
	}
	summary.Listed = len(scenes)

	scenes = r.dedupe(scenes)
	summary.Duplicates = summary.Listed - len(scenes)
	log.InfoWithFields("scenes listed", map[string]interface{}{
		"count":      len(scenes),
		"duplicates": summary.Duplicates,
	})

	if len(scenes) > 0 {
		r.storeAll(ctx, scenes, summary)
	}
	summary.Duration = time.Since(start)

	sort.SliceStable(summary.Failures, func(i, j int) bool {
		return summary.Failures[i].Scene.FileName < summary.Failures[j].Scene.FileName
	})

	log.InfoWithFields("run finished", map[string]interface{}{
		"downloaded": summary.Downloaded,
		"skipped":    summary.Skipped,
		"failed":     summary.Failed,
		"bytes":      summary.Bytes,
		"duration":   summary.Duration,
	})

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

// dedupe drops scenes that resolve to the same final path, keeping the first
func (r *Retriever) dedupe(scenes []espa.Scene) []espa.Scene {
	seen := make(map[string]bool, len(scenes))
	out := scenes[:0:0]
	for _, s := range scenes {
		final := r.store.Locate(s).Final
		if seen[final] {
			r.logger.DebugWithFields("duplicate scene dropped", map[string]interface{}{
				"order_id": s.OrderID,
				"file":     s.FileName,
			})
			continue
		}
		seen[final] = true
		out = append(out, s)
	}
	return out
}

func (r *Retriever) storeAll(ctx context.Context, scenes []espa.Scene, summary *Summary) {
	pool := downloader.NewWorkerPool(ctx, r.concurrency, r.store, r.logger)
	pool.Start()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for res := range pool.Results() {
			r.collect(res, summary)
		}
	}()

	var unsent []espa.Scene
	var submitErr error
	for i, s := range scenes {
		if err := pool.Submit(downloader.Job{Index: i, Scene: s}); err != nil {
			r.logger.WithError(err).Warn("stopped queueing scenes")
			unsent, submitErr = scenes[i:], err
			break
		}
	}
	pool.Stop()
	wg.Wait()

	// scenes that never reached the pool fail like the ones drained from it
	for _, s := range unsent {
		r.collect(downloader.Result{Job: downloader.Job{Scene: s}, Error: submitErr}, summary)
	}
}

func (r *Retriever) collect(res downloader.Result, summary *Summary) {
	out := res.Outcome
	summary.Bytes += out.Written
	r.reporter.Record(out.Skipped, out.Written, res.Error)

	switch {
	case res.Error != nil:
		summary.Failed++
		summary.Failures = append(summary.Failures, Failure{Scene: res.Job.Scene, Err: res.Error})
		r.reporter.Failed(res.Job.Scene, res.Error)
	case out.Skipped:
		summary.Skipped++
	default:
		summary.Downloaded++
	}
}

type nopReporter struct{}

func (nopReporter) Failed(espa.Scene, error) {}
func (nopReporter) Record(bool, int64, error) {}
