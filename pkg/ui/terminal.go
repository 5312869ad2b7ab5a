package ui

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// Banner is printed at the start of a download run
const Banner = "ESPA Bulk Download Client"

var (
	mu      sync.Mutex
	out     io.Writer = os.Stdout
	colored           = true
)

// SetOutput redirects the Print helpers; quiet mode passes io.Discard and
// nil restores stdout
func SetOutput(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	mu.Lock()
	defer mu.Unlock()
	out = w
}

// Output returns the writer used by the Print helpers
func Output() io.Writer {
	mu.Lock()
	defer mu.Unlock()
	return out
}

// SetColor enables or disables ANSI colors
func SetColor(enabled bool) {
	mu.Lock()
	defer mu.Unlock()
	colored = enabled
}

// Color functions for terminal output
var (
	Cyan    = colorize("\033[36m%s\033[0m")
	Yellow  = colorize("\033[33m%s\033[0m")
	Red     = colorize("\033[31m%s\033[0m")
	Green   = colorize("\033[32m%s\033[0m")
	Magenta = colorize("\033[35m%s\033[0m")
	Dim     = colorize("\033[2m%s\033[0m")
)

// colorize returns a function that wraps text with ANSI color codes
func colorize(colorString string) func(string) string {
	return func(text string) string {
		mu.Lock()
		enabled := colored
		mu.Unlock()
		if !enabled {
			return text
		}
		return fmt.Sprintf(colorString, text)
	}
}

func writeLine(s string) {
	fmt.Fprintln(Output(), s)
}

// PrintBanner prints the client name and version
func PrintBanner(version string) {
	writeLine(Cyan(fmt.Sprintf("%s %s", Banner, version)))
}

// PrintError prints an error message in red
func PrintError(msg string, args ...interface{}) {
	if len(args) > 0 {
		writeLine(Red(msg + ": " + fmt.Sprintf("%v", args[0])))
	} else {
		writeLine(Red(msg))
	}
}

// PrintSuccess prints a success message in green
func PrintSuccess(msg string) {
	writeLine(Green(msg))
}

// PrintInfo prints an info message in cyan
func PrintInfo(label string, value string) {
	fmt.Fprintf(Output(), "%s: %s\n", Cyan(label), Yellow(value))
}

// PrintWarning prints a warning message in yellow
func PrintWarning(msg string, args ...interface{}) {
	if len(args) > 0 {
		writeLine(Yellow(msg + ": " + fmt.Sprintf("%v", args[0])))
	} else {
		writeLine(Yellow(msg))
	}
}

// PrintHighlight prints a highlighted message in magenta
func PrintHighlight(msg string) {
	writeLine(Magenta(msg))
}
