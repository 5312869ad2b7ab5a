// Package retry provides exponential backoff and retry logic for the
// transient failures seen while talking to ESPA: dropped connections,
// throttling and 5xx responses on listing, HEAD and range requests.
//
// Basic usage:
//
//	err := retry.Do(func() error {
//		_, err := fetcher.FetchFrom(ctx, url, offset, w)
//		return err
//	}, retry.FromSettings(ctx, cfg.Retry, log))
//
// Errors classified by espadl/pkg/errors drive the decision: auth, not_found,
// metadata, storage and parsing errors are returned immediately, while
// network, rate_limit, server_error and transfer errors are retried. When
// ErrorBackoff is set the delay depends on the error type, so throttling
// backs off far longer than a reset connection.
//
// Context cancellation stops both the operation loop and any pending wait.
package retry
