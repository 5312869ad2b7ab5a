package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	errs "espadl/pkg/errors"
	"espadl/pkg/logger"
	"espadl/pkg/ratelimit"
)

// Options configures a Client
type Options struct {
	UserAgent string
	// ChunkTimeout bounds one range request including its body; zero means none.
	ChunkTimeout time.Duration
	HTTPClient   *http.Client
	Limiter      ratelimit.Limiter
}

// Client fetches scene archives from the object endpoint
type Client struct {
	httpClient   *http.Client
	userAgent    string
	chunkTimeout time.Duration
	limiter      ratelimit.Limiter
	logger       logger.Logger
}

// NewClient creates a transfer client
func NewClient(opts Options, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		// no overall timeout: archives are large, ChunkTimeout bounds requests instead
		httpClient = &http.Client{}
	}
	limiter := opts.Limiter
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	return &Client{
		httpClient:   httpClient,
		userAgent:    opts.UserAgent,
		chunkTimeout: opts.ChunkTimeout,
		limiter:      limiter,
		logger:       log.WithField("component", "transfer"),
	}
}

// Size returns the total size of the object at url, read from the
// Content-Length of a HEAD response. Transport failures keep their network
// or server classification so that callers can retry them.
func (c *Client) Size(ctx context.Context, url string) (int64, error) {
	resp, err := c.do(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, errs.FromStatus(resp.StatusCode, "object size request rejected")
	}

	size := resp.ContentLength
	if size < 0 {
		// net/http reports -1 when the header is absent or unparsable
		raw := resp.Header.Get("Content-Length")
		if raw == "" {
			return 0, errs.New(errs.ErrorTypeMetadata, "object size unknown: no Content-Length header")
		}
		if size, err = strconv.ParseInt(raw, 10, 64); err != nil || size < 0 {
			return 0, errs.Newf(errs.ErrorTypeMetadata, "invalid Content-Length %q", raw)
		}
	}
	return size, nil
}

// FetchFrom requests the object from byte offset on and copies the body to w.
// It returns the number of bytes written. A server that ignores the range and
// answers 200 has its first offset bytes discarded.
func (c *Client) FetchFrom(ctx context.Context, url string, offset int64, w io.Writer) (int64, error) {
	if c.chunkTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.chunkTimeout)
		defer cancel()
	}

	header := http.Header{}
	header.Set("Range", fmt.Sprintf("bytes=%d-", offset))

	resp, err := c.do(ctx, http.MethodGet, url, header)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusPartialContent:
		if start, ok := contentRangeStart(resp.Header.Get("Content-Range")); ok && start != offset {
			return 0, errs.Newf(errs.ErrorTypeTransfer, "server resumed at byte %d, requested %d", start, offset).
				WithCode(resp.StatusCode)
		}
	case http.StatusOK:
		if offset > 0 {
			c.logger.WarnWithFields("server ignored range request, skipping already stored bytes", map[string]interface{}{
				"url":    url,
				"offset": offset,
			})
			if _, err := io.CopyN(io.Discard, resp.Body, offset); err != nil {
				return 0, errs.Wrap(errs.ErrorTypeTransfer, err, "failed to skip already stored bytes")
			}
		}
	case http.StatusRequestedRangeNotSatisfiable:
		return 0, errs.Newf(errs.ErrorTypeStorage, "partial file is larger than the remote object (offset %d)", offset).
			WithCode(resp.StatusCode)
	default:
		return 0, errs.FromStatus(resp.StatusCode, "range request rejected")
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		if isTimeout(ctx) {
			return n, errs.Newf(errs.ErrorTypeTransfer, "chunk timed out after %d bytes", n)
		}
		if ctx.Err() != nil {
			return n, ctx.Err()
		}
		return n, errs.Wrap(errs.ErrorTypeTransfer, err, fmt.Sprintf("transfer interrupted after %d bytes", n))
	}
	return n, nil
}

func (c *Client) do(ctx context.Context, method, url string, header http.Header) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeUnknown, err, "failed to create request")
	}
	for k, v := range header {
		req.Header[k] = v
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(ctx) {
			return nil, errs.Newf(errs.ErrorTypeNetwork, "%s %s timed out", method, url)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errs.Wrap(errs.ErrorTypeNetwork, err, "network error")
	}
	logger.LogRequest(c.logger, method, url, resp.StatusCode, time.Since(start))
	return resp, nil
}

// isTimeout distinguishes an expired deadline from cancellation of the whole
// run. Timeout errors are returned without the context error in their chain
// so that retry.DefaultRetryIf classifies them by type.
func isTimeout(ctx context.Context) bool {
	return errors.Is(ctx.Err(), context.DeadlineExceeded)
}

// contentRangeStart parses the first byte position of "bytes <start>-<end>/<size>"
func contentRangeStart(header string) (int64, bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(header), "bytes ")
	if !ok {
		return 0, false
	}
	start, _, ok := strings.Cut(rest, "-")
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimSpace(start), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
