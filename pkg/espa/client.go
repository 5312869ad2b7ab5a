package espa

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	errs "espadl/pkg/errors"
	"espadl/pkg/logger"
	"espadl/pkg/ratelimit"
	"espadl/pkg/retry"
)

// maxBodySize bounds listing responses
const maxBodySize = 32 << 20

// ClientOptions configures a Client
type ClientOptions struct {
	Host      string
	Username  string
	Password  string
	UserAgent string
	Timeout   time.Duration

	// HTTPClient overrides the transport; Timeout is ignored when set.
	HTTPClient *http.Client
	Limiter    ratelimit.Limiter
	Retry      *retry.Config
}

// Client talks to the ESPA order-status service using basic auth
type Client struct {
	httpClient *http.Client
	host       string
	username   string
	password   string
	userAgent  string
	limiter    ratelimit.Limiter
	retry      *retry.Config
	logger     logger.Logger
}

// NewClient creates a new ESPA client
func NewClient(opts ClientOptions, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	limiter := opts.Limiter
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	retryCfg := opts.Retry
	if retryCfg == nil {
		retryCfg = &retry.Config{MaxAttempts: 1}
	}
	host := opts.Host
	if host == "" {
		host = DefaultHost
	}

	return &Client{
		httpClient: httpClient,
		host:       host,
		username:   opts.Username,
		password:   opts.Password,
		userAgent:  opts.UserAgent,
		limiter:    limiter,
		retry:      retryCfg,
		logger:     log,
	}
}

// DefaultHost is used when no host is configured
const DefaultHost = "https://espa.cr.usgs.gov"

// Host returns the service base URL
func (c *Client) Host() string {
	return c.host
}

// Get fetches url and returns its body. Transient failures are retried;
// auth and not-found responses are returned immediately.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	cfg := c.retry.WithContext(ctx)
	if cfg.Logger == nil {
		cfg.Logger = c.logger
	}
	return retry.DoWithResult(func() ([]byte, error) {
		return c.getOnce(ctx, url)
	}, cfg)
}

func (c *Client) getOnce(ctx context.Context, url string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeUnknown, err, "failed to create request")
	}
	req.SetBasicAuth(c.username, c.password)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.ErrorWithFields("HTTP request failed", map[string]interface{}{
			"method":   req.Method,
			"url":      url,
			"error":    err.Error(),
			"duration": time.Since(start),
		})
		return nil, errs.Wrap(errs.ErrorTypeNetwork, err, "network error")
	}
	defer resp.Body.Close()

	logger.LogRequest(c.logger, req.Method, url, resp.StatusCode, time.Since(start))

	if err := c.checkResponseStatus(resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeNetwork, err, "failed to read response body")
	}
	return body, nil
}

// checkResponseStatus maps non-2xx responses to classified errors
func (c *Client) checkResponseStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var message string
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		message = "user authentication failed"
	case http.StatusNotFound:
		message = "there was a problem retrieving your order, verify your order id is correct"
	case http.StatusTooManyRequests:
		message = "rate limit exceeded"
	default:
		message = fmt.Sprintf("unexpected status code: %d", resp.StatusCode)
	}
	return errs.FromStatus(resp.StatusCode, message)
}
