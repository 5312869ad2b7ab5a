// Package transfer fetches scene archives over plain HTTP(S).
//
// Size issues a HEAD request and reads Content-Length. FetchFrom issues an
// open-ended range request ("Range: bytes=<offset>-") and streams the body
// into the caller's writer, normally the .part file opened for append.
package transfer
