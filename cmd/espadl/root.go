package main

import (
	"fmt"
	"io"
	"os"
	"runtime"

	"espadl/pkg/config"
	"espadl/pkg/logger"
	"espadl/pkg/ui"

	"github.com/spf13/cobra"
)

var (
	// Version information, set through -ldflags
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
	logFile    string
	noColor    bool
	quiet      bool
)

const epilog = `Retrieves all completed scenes for the user/order
and places them into the target directory.
Scenes are organized by order.

It is safe to cancel and restart the client, as it will
only download scenes one time (per directory).

*** Important ***
If you intend to automate execution of this program,
please take care to ensure only 1 instance runs at a time.
Also please do not schedule execution more frequently than
once per hour.

------------
Examples:
------------
Linux/Mac: espadl -e your_email@server.com -o ALL -d /some/directory/with/free/space

Windows:   espadl.exe -e your_email@server.com -o ALL -d C:\some\directory\with\free\space`

// rootCmd downloads when called without a subcommand
var rootCmd = &cobra.Command{
	Use:           "espadl",
	Short:         "ESPA bulk download client",
	Long:          ui.Banner + "\n\n" + epilog,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.NoArgs,
	RunE:          runDownload,
}

// Execute runs the command tree and exits non-zero on any error
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// errors go to stderr even in quiet mode
		fmt.Fprintln(os.Stderr, ui.Red("Error: "+err.Error()))
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./.espadl.yaml or $HOME/.config/espadl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also write logs to this file, rotated")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all output except errors")

	addDownloadFlags(rootCmd)

	rootCmd.SetVersionTemplate(`ESPA Bulk Download Client {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// globalFlags collects the persistent flags that were set explicitly
func globalFlags(cmd *cobra.Command) map[string]interface{} {
	flags := make(map[string]interface{})
	if cmd.Flags().Changed("log-level") {
		flags["log-level"] = logLevel
	}
	if cmd.Flags().Changed("log-file") {
		flags["log-file"] = logFile
	}
	if cmd.Flags().Changed("no-color") {
		flags["no-color"] = noColor
	}
	if cmd.Flags().Changed("quiet") {
		flags["quiet"] = quiet
	}
	return flags
}

// setup loads the configuration and applies its logging and console settings
func setup(flags map[string]interface{}) (*config.Config, error) {
	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return nil, err
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	ui.SetColor(!cfg.Output.NoColor)
	if cfg.Output.Quiet {
		ui.SetOutput(io.Discard)
	}
	return cfg, nil
}
