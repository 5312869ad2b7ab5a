package retriever

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	errs "espadl/pkg/errors"
	"espadl/pkg/espa"
	"espadl/pkg/logger"
	"espadl/pkg/ratelimit"
	"espadl/pkg/storage"
	"espadl/pkg/transfer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	user  = "landsat"
	pass  = "s3cret"
	email = "me@example.com"
)

var fifty = bytes.Repeat([]byte("x"), 50)

// espaServer serves a status feed behind basic auth and the scene objects
// without it, counting requests per path.
type espaServer struct {
	*httptest.Server
	mu      sync.Mutex
	feed    string
	objects map[string][]byte
	hits    map[string]int
}

func newESPAServer(t *testing.T, objects map[string][]byte) *espaServer {
	t.Helper()
	s := &espaServer{objects: objects, hits: map[string]int{}}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

func (s *espaServer) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.hits[r.Method+" "+r.URL.Path]++
	feed := s.feed
	obj, isObject := s.objects[r.URL.Path]
	s.mu.Unlock()

	if isObject {
		http.ServeContent(w, r, filepath.Base(r.URL.Path), time.Time{}, bytes.NewReader(obj))
		return
	}
	u, p, ok := r.BasicAuth()
	if !ok || u != user || p != pass {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if r.URL.Path == "/ordering/status/"+email+"/rss/" {
		fmt.Fprint(w, feed)
		return
	}
	http.NotFound(w, r)
}

func (s *espaServer) setFeed(feed string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feed = feed
}

func (s *espaServer) hitCount(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[key]
}

func rss(items ...string) string {
	return `<?xml version="1.0" encoding="UTF-8"?><rss version="2.0"><channel><title>ESPA</title>` +
		strings.Join(items, "") + `</channel></rss>`
}

func rssItem(link, status, order string) string {
	return fmt.Sprintf(`<item><title>%s</title><link>%s</link><description>scene_status:%s,orderid:%s,orderdate:2024-01-01</description></item>`,
		filepath.Base(link), link, status, order)
}

func newRetriever(t *testing.T, srv *espaServer, password, base string, concurrency int) (*Retriever, *recorder) {
	t.Helper()
	log := logger.NewNopLogger()
	client := espa.NewClient(espa.ClientOptions{
		Host:     srv.URL,
		Username: user,
		Password: password,
		Timeout:  5 * time.Second,
	}, log)
	fetcher := transfer.NewClient(transfer.Options{UserAgent: "espadl-test"}, log)
	store := storage.New(base, fetcher, storage.WithPacer(ratelimit.NoPause{}), storage.WithLogger(log))

	rec := &recorder{}
	return New(espa.NewFeedSource(client, email), store, Options{
		Concurrency: concurrency,
		Reporter:    rec,
		Logger:      log,
	}), rec
}

type recorder struct {
	mu      sync.Mutex
	failed  []string
	records int
}

func (r *recorder) Failed(scene espa.Scene, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, scene.FileName)
}

func (r *recorder) Record(bool, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records++
}

func TestRunDownloadsMissingAndSkipsStored(t *testing.T) {
	srv := newESPAServer(t, map[string][]byte{
		"/orders/O1/a.tar.gz": fifty,
		"/orders/O1/b.tar.gz": []byte("already here"),
	})
	srv.setFeed(rss(
		rssItem(srv.URL+"/orders/O1/a.tar.gz", "complete", "O1"),
		rssItem(srv.URL+"/orders/O1/b.tar.gz", "complete", "O1"),
	))

	base := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(base, "O1"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(base, "O1", "b.tar.gz"), []byte("already here"), 0644))

	r, rec := newRetriever(t, srv, pass, base, 1)
	summary, err := r.Run(context.Background(), "O1")
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Downloaded)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, int64(50), summary.Bytes)
	assert.True(t, summary.OK())
	assert.Equal(t, 2, rec.records)

	got, err := os.ReadFile(filepath.Join(base, "O1", "a.tar.gz"))
	require.NoError(t, err)
	assert.Equal(t, fifty, got)
	assert.NoFileExists(t, filepath.Join(base, "O1", "a.tar.gz"+storage.TempSuffix))
	assert.Equal(t, 0, srv.hitCount("HEAD /orders/O1/b.tar.gz"), "stored scenes are not touched")
	assert.Equal(t, 0, srv.hitCount("GET /orders/O1/b.tar.gz"))

	// second run is a no-op
	summary, err = r.Run(context.Background(), "O1")
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Downloaded)
	assert.Equal(t, 2, summary.Skipped)
	assert.Equal(t, 1, srv.hitCount("GET /orders/O1/a.tar.gz"))
}

func TestRunAuthFailureCreatesNothing(t *testing.T) {
	srv := newESPAServer(t, map[string][]byte{"/orders/O1/a.tar.gz": fifty})
	srv.setFeed(rss(rssItem(srv.URL+"/orders/O1/a.tar.gz", "complete", "O1")))

	base := t.TempDir()
	r, _ := newRetriever(t, srv, "wrong", base, 1)
	_, err := r.Run(context.Background(), "O1")

	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrorTypeAuth))
	assert.True(t, errs.IsFatal(err))

	entries, err := os.ReadDir(base)
	require.NoError(t, err)
	assert.Empty(t, entries, "no directory may be created when listing fails")
}

func TestRunFiltersIncompleteAndOtherOrders(t *testing.T) {
	srv := newESPAServer(t, map[string][]byte{
		"/orders/O1/a.tar.gz": fifty,
		"/orders/O1/c.tar.gz": fifty,
		"/orders/O2/d.tar.gz": fifty,
	})
	srv.setFeed(rss(
		rssItem(srv.URL+"/orders/O1/a.tar.gz", "complete", "O1"),
		rssItem(srv.URL+"/orders/O1/c.tar.gz", "processing", "O1"),
		rssItem(srv.URL+"/orders/O2/d.tar.gz", "complete", "O2"),
	))

	base := t.TempDir()
	r, _ := newRetriever(t, srv, pass, base, 1)
	summary, err := r.Run(context.Background(), "O1")
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Downloaded)
	assert.FileExists(t, filepath.Join(base, "O1", "a.tar.gz"))
	assert.NoFileExists(t, filepath.Join(base, "O1", "c.tar.gz"))
	assert.NoDirExists(t, filepath.Join(base, "O2"))
}

func TestRunAllOrdersKeepsDirectoriesApart(t *testing.T) {
	srv := newESPAServer(t, map[string][]byte{
		"/orders/O1/a.tar.gz": fifty,
		"/orders/O2/a.tar.gz": []byte("other"),
	})
	srv.setFeed(rss(
		rssItem(srv.URL+"/orders/O1/a.tar.gz", "complete", "O1"),
		rssItem(srv.URL+"/orders/O2/a.tar.gz", "complete", "O2"),
	))

	base := t.TempDir()
	r, _ := newRetriever(t, srv, pass, base, 2)
	summary, err := r.Run(context.Background(), espa.AllOrders)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Downloaded)

	got, err := os.ReadFile(filepath.Join(base, "O2", "a.tar.gz"))
	require.NoError(t, err)
	assert.Equal(t, "other", string(got))
}

func TestRunEmptyListing(t *testing.T) {
	srv := newESPAServer(t, nil)
	srv.setFeed(rss())

	base := t.TempDir()
	r, _ := newRetriever(t, srv, pass, base, 1)
	summary, err := r.Run(context.Background(), "O1")
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Listed)
	assert.True(t, summary.OK())
}

// stubSource and stubStore exercise per-item isolation without a server
type stubSource struct {
	scenes []espa.Scene
	err    error
}

func (s stubSource) ListCompleted(context.Context, string) ([]espa.Scene, error) {
	return s.scenes, s.err
}

type stubStore struct {
	mu     sync.Mutex
	fail   map[string]error
	stored []string
}

func (s *stubStore) Store(ctx context.Context, scene espa.Scene) (storage.Result, error) {
	s.mu.Lock()
	s.stored = append(s.stored, scene.FileName)
	s.mu.Unlock()
	if err := s.fail[scene.FileName]; err != nil {
		return storage.Result{Scene: scene}, err
	}
	return storage.Result{Scene: scene, Written: 10, Total: 10}, nil
}

func (s *stubStore) Locate(scene espa.Scene) storage.Location {
	return storage.Locate("/base", scene.OrderID, scene.FileName)
}

func TestRunIsolatesItemFailures(t *testing.T) {
	src := stubSource{scenes: []espa.Scene{
		espa.NewScene("http://dl/O1/a.tar.gz", "O1"),
		espa.NewScene("http://dl/O1/b.tar.gz", "O1"),
		espa.NewScene("http://dl/O1/c.tar.gz", "O1"),
	}}
	store := &stubStore{fail: map[string]error{
		"b.tar.gz": errs.New(errs.ErrorTypeTransfer, "connection reset"),
	}}
	rec := &recorder{}

	summary, err := New(src, store, Options{Reporter: rec, Logger: logger.NewNopLogger()}).
		Run(context.Background(), "O1")
	require.NoError(t, err)

	assert.Equal(t, []string{"a.tar.gz", "b.tar.gz", "c.tar.gz"}, store.stored)
	assert.Equal(t, 2, summary.Downloaded)
	assert.Equal(t, 1, summary.Failed)
	assert.False(t, summary.OK())
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, "b.tar.gz", summary.Failures[0].Scene.FileName)
	assert.True(t, errs.Is(summary.Failures[0].Err, errs.ErrorTypeTransfer))
	assert.Equal(t, []string{"b.tar.gz"}, rec.failed)
}

func TestRunDeduplicatesByFinalPath(t *testing.T) {
	src := stubSource{scenes: []espa.Scene{
		espa.NewScene("http://dl/O1/a.tar.gz", "O1"),
		espa.NewScene("http://mirror/O1/a.tar.gz", "O1"),
	}}
	store := &stubStore{}

	summary, err := New(src, store, Options{Logger: logger.NewNopLogger()}).Run(context.Background(), "O1")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Listed)
	assert.Equal(t, 1, summary.Duplicates)
	assert.Equal(t, []string{"a.tar.gz"}, store.stored)
}

func TestRunListingErrorIsReturned(t *testing.T) {
	boom := errs.New(errs.ErrorTypeNotFound, "order unknown")
	store := &stubStore{}

	_, err := New(stubSource{err: boom}, store, Options{Logger: logger.NewNopLogger()}).
		Run(context.Background(), "O9")
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.Empty(t, store.stored)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := stubSource{scenes: []espa.Scene{
		espa.NewScene("http://dl/O1/a.tar.gz", "O1"),
		espa.NewScene("http://dl/O1/b.tar.gz", "O1"),
		espa.NewScene("http://dl/O1/c.tar.gz", "O1"),
	}}
	store := &stubStore{}
	summary, err := New(src, store, Options{Logger: logger.NewNopLogger()}).Run(ctx, "O1")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, summary.Downloaded)
	assert.Empty(t, store.stored)

	// every listed scene is accounted for, queued or not
	assert.Equal(t, 3, summary.Failed)
	require.Len(t, summary.Failures, 3)
	assert.Equal(t, "a.tar.gz", summary.Failures[0].Scene.FileName)
	assert.ErrorIs(t, summary.Failures[2].Err, context.Canceled)
	assert.Equal(t, summary.Listed-summary.Duplicates, summary.Downloaded+summary.Skipped+summary.Failed)
}
