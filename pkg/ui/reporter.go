package ui

import (
	"fmt"
	"io"
	"sync"
	"time"

	"espadl/pkg/espa"

	"github.com/dustin/go-humanize"
)

// Reporter prints the status lines of a download run
type Reporter struct {
	mu        sync.Mutex
	w         io.Writer
	verbose   bool
	startTime time.Time

	downloaded int
	skipped    int
	failed     int
	bytes      int64
}

// NewReporter creates a reporter writing to w. Per-chunk progress is only
// printed when verbose is set.
func NewReporter(w io.Writer, verbose bool) *Reporter {
	return &Reporter{
		w:         w,
		verbose:   verbose,
		startTime: time.Now(),
	}
}

func (r *Reporter) printf(format string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, format, args...)
}

// Retrieving announces the listing call
func (r *Reporter) Retrieving(source, orderID string) {
	r.printf("Retrieving %s for order %s\n", source, orderID)
}

// CreatedDirectory reports a newly created order directory
func (r *Reporter) CreatedDirectory(dir string) {
	r.printf("Created target directory: %s\n", dir)
}

// Downloading reports the start or resumption of a transfer
func (r *Reporter) Downloading(scene espa.Scene, dir string, offset, total int64) {
	if offset > 0 {
		r.printf("Downloading %s to %s %s\n", Cyan(scene.Name), dir,
			Dim(fmt.Sprintf("(resuming at %s of %s)", humanize.Bytes(uint64(offset)), humanize.Bytes(uint64(total)))))
		return
	}
	r.printf("Downloading %s to %s %s\n", Cyan(scene.Name), dir, Dim("("+humanize.Bytes(uint64(total))+")"))
}

// Progress reports a finished chunk
func (r *Reporter) Progress(scene espa.Scene, offset, total int64) {
	if !r.verbose {
		return
	}
	r.printf("  %s %s / %s (%s)\n", scene.Name,
		humanize.Bytes(uint64(offset)), humanize.Bytes(uint64(total)), percent(offset, total))
}

// AlreadyStored reports a skipped scene
func (r *Reporter) AlreadyStored(scene espa.Scene, path string) {
	r.printf("%s already downloaded, skipping\n", scene.Name)
}

// Completed reports a finalized scene
func (r *Reporter) Completed(scene espa.Scene, path string, total int64) {
	r.printf("%s %s %s\n", Green("Completed"), scene.Name, Dim("("+humanize.Bytes(uint64(total))+")"))
}

// Failed reports a scene whose store failed
func (r *Reporter) Failed(scene espa.Scene, err error) {
	r.printf("%s %s: %v\n", Red("Failed"), scene.Name, err)
}

// Record tallies one finished item for the closing summary
func (r *Reporter) Record(skipped bool, written int64, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case err != nil:
		r.failed++
	case skipped:
		r.skipped++
	default:
		r.downloaded++
	}
	r.bytes += written
}

// Summary prints totals for the run
func (r *Reporter) Summary() {
	r.mu.Lock()
	downloaded, skipped, failed, bytes := r.downloaded, r.skipped, r.failed, r.bytes
	elapsed := time.Since(r.startTime).Round(time.Second)
	r.mu.Unlock()

	line := fmt.Sprintf("Downloaded %d, skipped %d, transferred %s in %s",
		downloaded, skipped, humanize.Bytes(uint64(bytes)), elapsed)
	if failed > 0 {
		line += ", " + Red(fmt.Sprintf("%d failed", failed))
	}
	r.printf("%s\n", line)
}

func percent(offset, total int64) string {
	if total <= 0 {
		return "100%"
	}
	return fmt.Sprintf("%.0f%%", float64(offset)*100/float64(total))
}
