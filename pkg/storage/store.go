package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	errs "espadl/pkg/errors"
	"espadl/pkg/espa"
	"espadl/pkg/logger"
	"espadl/pkg/ratelimit"
	"espadl/pkg/retry"
)

// Fetcher reads remote objects
type Fetcher interface {
	// Size returns the total size of the object at url
	Size(ctx context.Context, url string) (int64, error)
	// FetchFrom writes the object from byte offset on into w
	FetchFrom(ctx context.Context, url string, offset int64, w io.Writer) (int64, error)
}

// Reporter receives the user-visible status of a store operation
type Reporter interface {
	CreatedDirectory(dir string)
	Downloading(scene espa.Scene, dir string, offset, total int64)
	Progress(scene espa.Scene, offset, total int64)
	AlreadyStored(scene espa.Scene, path string)
	Completed(scene espa.Scene, path string, total int64)
}

// Result describes the outcome of Store for one scene
type Result struct {
	Scene    espa.Scene
	Location Location
	// Skipped is set when the final file already existed
	Skipped bool
	// ResumedFrom is the size of the partial file found at start
	ResumedFrom int64
	// Written counts bytes appended during this call
	Written  int64
	Total    int64
	Duration time.Duration
}

// Store downloads scenes into <baseDir>/<orderID>/<fileName>. The final
// path is written only by renaming a complete .part file.
type Store struct {
	baseDir  string
	fetcher  Fetcher
	verbose  bool
	reporter Reporter
	pacer    ratelimit.Pacer
	retry    *retry.Config
	logger   logger.Logger
}

// Option configures a Store
type Option func(*Store)

// WithVerbose reports scenes that are skipped because they are already stored
func WithVerbose(verbose bool) Option {
	return func(s *Store) { s.verbose = verbose }
}

// WithReporter sets the status line sink
func WithReporter(r Reporter) Option {
	return func(s *Store) { s.reporter = r }
}

// WithPacer sets the delay inserted between chunks
func WithPacer(p ratelimit.Pacer) Option {
	return func(s *Store) { s.pacer = p }
}

// WithRetry sets the retry policy for size and range requests
func WithRetry(cfg *retry.Config) Option {
	return func(s *Store) { s.retry = cfg }
}

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New creates a Store rooted at baseDir
func New(baseDir string, fetcher Fetcher, opts ...Option) *Store {
	s := &Store{
		baseDir:  baseDir,
		fetcher:  fetcher,
		reporter: nopReporter{},
		pacer:    ratelimit.NewRandomPause(5*time.Second, 30*time.Second),
		retry:    &retry.Config{MaxAttempts: 1},
		logger:   logger.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Locate returns the paths of scene
func (s *Store) Locate(scene espa.Scene) Location {
	return Locate(s.baseDir, scene.OrderID, scene.FileName)
}

// IsStored reports whether the final file of scene exists
func (s *Store) IsStored(scene espa.Scene) bool {
	info, err := os.Stat(s.Locate(scene).Final)
	return err == nil && !info.IsDir()
}

// Store makes sure scene is present at its final path, resuming a previous
// partial download when one exists. Calling it again for a stored scene is
// a no-op. On failure the .part file is left in place for the next run.
func (s *Store) Store(ctx context.Context, scene espa.Scene) (Result, error) {
	start := time.Now()
	res := Result{Scene: scene}
	if err := scene.Validate(); err != nil {
		return res, err
	}

	loc := s.Locate(scene)
	res.Location = loc
	log := s.logger.WithFields(map[string]interface{}{
		"order_id": scene.OrderID,
		"file":     scene.FileName,
	})

	if s.IsStored(scene) {
		res.Skipped = true
		if s.verbose {
			s.reporter.AlreadyStored(scene, loc.Final)
		}
		log.Debug("already stored")
		return res, nil
	}

	created, err := ensureDir(loc.Dir)
	if err != nil {
		return res, errs.Wrap(errs.ErrorTypeStorage, err, "failed to create target directory")
	}
	if created {
		s.reporter.CreatedDirectory(loc.Dir)
	}

	cfg := s.retry.WithContext(ctx)
	if cfg.Logger == nil {
		cfg.Logger = log
	}

	total, err := retry.DoWithResult(func() (int64, error) {
		return s.fetcher.Size(ctx, scene.SourceURL)
	}, cfg)
	if err != nil {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		return res, errs.Wrap(errs.ErrorTypeMetadata, err, "failed to determine size of "+scene.Name)
	}
	res.Total = total

	offset, err := touch(loc.Temp)
	if err != nil {
		return res, errs.Wrap(errs.ErrorTypeStorage, err, "failed to open partial file")
	}
	res.ResumedFrom = offset
	if offset > total {
		return res, errs.Newf(errs.ErrorTypeStorage,
			"partial file %s holds %d bytes but the remote object has %d", loc.Temp, offset, total)
	}

	s.reporter.Downloading(scene, loc.Dir, offset, total)
	log.InfoWithFields("downloading", map[string]interface{}{
		"offset": offset,
		"total":  total,
	})

	for offset < total {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		err := retry.Do(func() error {
			n, err := s.appendChunk(ctx, scene.SourceURL, loc.Temp, total)
			res.Written += n
			return err
		}, cfg)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			if errs.Is(err, errs.ErrorTypeStorage) {
				return res, err
			}
			return res, errs.Wrap(errs.ErrorTypeTransfer, err, "failed to download "+scene.Name)
		}

		if offset, err = fileSize(loc.Temp); err != nil {
			return res, errs.Wrap(errs.ErrorTypeStorage, err, "failed to stat partial file")
		}
		if offset > total {
			return res, errs.Newf(errs.ErrorTypeStorage,
				"partial file %s grew to %d bytes, more than the remote %d", loc.Temp, offset, total)
		}
		s.reporter.Progress(scene, offset, total)

		if offset < total {
			if err := s.pacer.Pause(ctx); err != nil {
				return res, err
			}
		}
	}

	// commit point
	if err := os.Rename(loc.Temp, loc.Final); err != nil {
		return res, errs.Wrap(errs.ErrorTypeStorage, err, "failed to finalize download")
	}

	res.Duration = time.Since(start)
	s.reporter.Completed(scene, loc.Final, total)
	logger.LogTransfer(log, scene.OrderID, scene.FileName, res.Written, false, nil)
	return res, nil
}

// appendChunk fetches from the current end of the partial file and appends
// to it. A chunk that delivers nothing counts as a failed transfer.
func (s *Store) appendChunk(ctx context.Context, url, temp string, total int64) (int64, error) {
	f, err := os.OpenFile(temp, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return 0, errs.Wrap(errs.ErrorTypeStorage, err, "failed to open partial file")
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return 0, errs.Wrap(errs.ErrorTypeStorage, err, "failed to stat partial file")
	}
	offset := info.Size()
	if offset >= total {
		return 0, f.Close()
	}

	n, fetchErr := s.fetcher.FetchFrom(ctx, url, offset, f)
	syncErr := f.Sync()
	closeErr := f.Close()

	switch {
	case fetchErr != nil:
		return n, fetchErr
	case syncErr != nil:
		return n, errs.Wrap(errs.ErrorTypeStorage, syncErr, "failed to flush partial file")
	case closeErr != nil:
		return n, errs.Wrap(errs.ErrorTypeStorage, closeErr, "failed to close partial file")
	case n == 0:
		return 0, errs.Newf(errs.ErrorTypeTransfer, "no data received at offset %d", offset)
	}
	return n, nil
}

// ensureDir creates dir and its parents, reporting whether it was missing
func ensureDir(dir string) (bool, error) {
	info, err := os.Stat(dir)
	switch {
	case err == nil && info.IsDir():
		return false, nil
	case err == nil:
		return false, fmt.Errorf("%s exists and is not a directory", dir)
	case !errors.Is(err, os.ErrNotExist):
		return false, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return false, err
	}
	return true, nil
}

// touch creates path if needed and returns its size
func touch(path string) (int64, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return 0, err
	}
	info, err := f.Stat()
	closeErr := f.Close()
	if err != nil {
		return 0, err
	}
	return info.Size(), closeErr
}

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

type nopReporter struct{}

func (nopReporter) CreatedDirectory(string) {}
func (nopReporter) Downloading(espa.Scene, string, int64, int64) {}
func (nopReporter) Progress(espa.Scene, int64, int64) {}
func (nopReporter) AlreadyStored(espa.Scene, string) {}
func (nopReporter) Completed(espa.Scene, string, int64) {}
