// Package history remembers when espadl last ran for an account.
//
// The ESPA operators ask bulk clients not to run more often than once per
// hour. After every run a small JSON record is written to
//   - Linux: ~/.local/share/espadl/history/<email>.json
//   - macOS: ~/Library/Application Support/espadl/history/<email>.json
//   - Windows: %APPDATA%/espadl/history/<email>.json
//
// and the next run warns when it starts too soon after the previous one.
// The record is advisory only. Whether a scene is stored is always decided
// by the filesystem, never by this history.
package history
