package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"espadl/pkg/config"
	"espadl/pkg/ui"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage espadl configuration files.

Configuration is loaded from, in order of priority:
  - Command line flags
  - Environment variables (ESPA_*)
  - .env files (./.env, $HOME/.espadl.env)
  - Configuration file (YAML or TOML)
  - Default values`,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a configuration file with the default values",
	Long: `Create a configuration file holding every option at its default value.

The file is created as '.espadl.yaml' in the current directory unless a
different path is given with --config.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(initCmd, showCmd, validateCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configFile
	if path == "" {
		path = ".espadl.yaml"
	}

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("configuration file already exists: %s", path)
	}

	cfg := config.DefaultConfig()
	cfg.ESPA.Email = "your_email@server.com"
	cfg.Output.BaseDirectory = filepath.Join(".", "espa")
	if err := cfg.Save(path); err != nil {
		return err
	}

	ui.PrintSuccess("Configuration file created: " + path)
	fmt.Fprintln(cmd.OutOrStdout(), "\nNext steps:")
	fmt.Fprintln(cmd.OutOrStdout(), "1. Edit the email and base_directory values")
	fmt.Fprintln(cmd.OutOrStdout(), "2. Run 'espadl auth login' to store your ERS credentials")
	fmt.Fprintln(cmd.OutOrStdout(), "3. Run 'espadl config validate' to check the configuration")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, globalFlags(cmd))
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg.Redacted())
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}

	ui.PrintHighlight("Current Configuration")
	fmt.Fprint(cmd.OutOrStdout(), string(data))
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, globalFlags(cmd))
	if err != nil {
		return err
	}

	var problems []error
	if cfg.Output.BaseDirectory != "" {
		if err := os.MkdirAll(cfg.Output.BaseDirectory, 0755); err != nil {
			problems = append(problems, fmt.Errorf("cannot create output directory: %w", err))
		}
	}
	if cfg.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0755); err != nil {
			problems = append(problems, fmt.Errorf("cannot create log directory: %w", err))
		}
	}
	if err := errors.Join(problems...); err != nil {
		return err
	}

	if cfg.ESPA.Email == "" {
		ui.PrintWarning("No email configured", "pass --email when downloading")
	}
	if cfg.Output.BaseDirectory == "" {
		ui.PrintWarning("No base directory configured", "pass --target-directory when downloading")
	}

	ui.PrintSuccess("Configuration is valid")
	ui.PrintInfo("Host", cfg.ESPA.Host)
	ui.PrintInfo("Source", cfg.ESPA.Source)
	ui.PrintInfo("Concurrent scenes", fmt.Sprint(cfg.Download.ConcurrentItems))
	ui.PrintInfo("Pause between chunks", fmt.Sprintf("%s - %s", cfg.Download.PauseMin, cfg.Download.PauseMax))
	ui.PrintInfo("Max retries", fmt.Sprint(cfg.Retry.MaxAttempts))
	ui.PrintInfo("Log level", cfg.Logging.Level)
	return nil
}
