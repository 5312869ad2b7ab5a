package transfer

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	errs "espadl/pkg/errors"
	"espadl/pkg/logger"
	"espadl/pkg/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var payload = []byte("0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMN") // 50 bytes

func newClient() *Client {
	return NewClient(Options{UserAgent: "espadl-test"}, logger.NewNopLogger())
}

func TestSize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		assert.Equal(t, "espadl-test", r.UserAgent())
		http.ServeContent(w, r, "a.tar.gz", time.Time{}, bytes.NewReader(payload))
	}))
	defer srv.Close()

	size, err := newClient().Size(context.Background(), srv.URL+"/a.tar.gz")
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), size)
}

func TestSizeErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
		case "/broken":
			w.WriteHeader(http.StatusBadGateway)
		case "/nolength":
			// a flushed response carries no Content-Length
			w.WriteHeader(http.StatusOK)
			w.(http.Flusher).Flush()
		}
	}))
	defer srv.Close()

	c := newClient()

	_, err := c.Size(context.Background(), srv.URL+"/missing")
	assert.True(t, errs.Is(err, errs.ErrorTypeNotFound))

	_, err = c.Size(context.Background(), srv.URL+"/broken")
	assert.True(t, errs.Is(err, errs.ErrorTypeServerError))

	_, err = c.Size(context.Background(), srv.URL+"/nolength")
	assert.True(t, errs.Is(err, errs.ErrorTypeMetadata))

	_, err = c.Size(context.Background(), "http://127.0.0.1:1/unreachable")
	assert.True(t, errs.Is(err, errs.ErrorTypeNetwork))
}

func TestFetchFromRange(t *testing.T) {
	var gotRange string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRange = r.Header.Get("Range")
		http.ServeContent(w, r, "a.tar.gz", time.Time{}, bytes.NewReader(payload))
	}))
	defer srv.Close()

	var buf bytes.Buffer
	n, err := newClient().FetchFrom(context.Background(), srv.URL, 20, &buf)
	require.NoError(t, err)
	assert.Equal(t, "bytes=20-", gotRange)
	assert.Equal(t, int64(30), n)
	assert.Equal(t, payload[20:], buf.Bytes())
}

func TestFetchFromZeroOffset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "a.tar.gz", time.Time{}, bytes.NewReader(payload))
	}))
	defer srv.Close()

	var buf bytes.Buffer
	n, err := newClient().FetchFrom(context.Background(), srv.URL, 0, &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(50), n)
	assert.Equal(t, payload, buf.Bytes())
}

func TestFetchFromIgnoredRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		w.Write(payload)
	}))
	defer srv.Close()

	var buf bytes.Buffer
	n, err := newClient().FetchFrom(context.Background(), srv.URL, 45, &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.Equal(t, payload[45:], buf.Bytes())
}

func TestFetchFromMismatchedContentRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes 0-49/%d", len(payload)))
		w.WriteHeader(http.StatusPartialContent)
		w.Write(payload)
	}))
	defer srv.Close()

	var buf bytes.Buffer
	_, err := newClient().FetchFrom(context.Background(), srv.URL, 10, &buf)
	assert.True(t, errs.Is(err, errs.ErrorTypeTransfer))
	assert.Zero(t, buf.Len(), "nothing may be written when the server resumes elsewhere")
}

func TestFetchFromUnsatisfiableRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "a.tar.gz", time.Time{}, bytes.NewReader(payload))
	}))
	defer srv.Close()

	_, err := newClient().FetchFrom(context.Background(), srv.URL, 80, &bytes.Buffer{})
	assert.True(t, errs.Is(err, errs.ErrorTypeStorage))
}

func TestFetchFromCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newClient().FetchFrom(ctx, srv.URL, 0, &bytes.Buffer{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFetchFromChunkTimeoutIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "50")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(payload[:10])
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := NewClient(Options{ChunkTimeout: 50 * time.Millisecond}, logger.NewNopLogger())
	var buf bytes.Buffer
	n, err := c.FetchFrom(context.Background(), srv.URL, 0, &buf)
	require.Error(t, err)
	assert.Equal(t, int64(10), n)
	assert.True(t, errs.Is(err, errs.ErrorTypeTransfer))
	assert.NotErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, retry.DefaultRetryIf(err))
}

func TestContentRangeStart(t *testing.T) {
	start, ok := contentRangeStart("bytes 20-49/50")
	assert.True(t, ok)
	assert.Equal(t, int64(20), start)

	_, ok = contentRangeStart("bytes */50")
	assert.False(t, ok)
	_, ok = contentRangeStart("")
	assert.False(t, ok)
}
