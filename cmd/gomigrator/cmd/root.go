package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags at build time)
var (
	Version = "0.0.1-dev"
	Commit  = "unknown"
)

// CLI flags that override config file values
var (
	cfgFile      string
	logLevel     string
	logFormat    string
	pageSize     int
	sleepSeconds float64
	maxInstances int
)

var rootCmd = &cobra.Command{
	Use:   "gomigrator",
	Short: "Process engine history and runtime migrator",
	Long: `A CLI tool for migrating a legacy process engine's history and live
process instances into a target engine, resumable at any point.

Features:
  - Dependency-ordered history pipelines, one per entity type
  - Idempotent resume through a migration ledger (MySQL or SQLite)
  - Skipped records with reasons, retry and listing
  - Runtime instance transplant through start-listener jobs
  - Verification of migrated keys against the target tables`,
	Version: Version,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	// Config file flag
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "gomigrator.yaml",
		"Path to configuration file")

	// Logging overrides
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"Override log format (json, text)")

	// Processing overrides
	rootCmd.PersistentFlags().IntVar(&pageSize, "page-size", 0,
		"Override page size (legacy records fetched per query)")
	rootCmd.PersistentFlags().Float64Var(&sleepSeconds, "sleep", 0,
		"Override sleep seconds between pages")
	rootCmd.PersistentFlags().IntVar(&maxInstances, "max-instances", 0,
		"Override the maximum number of runtime instances started per run")
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

// CLIOverrides contains flag values that override config file settings
type CLIOverrides struct {
	LogLevel     string
	LogFormat    string
	PageSize     int
	SleepSeconds float64
	MaxInstances int
}

// GetCLIOverrides returns the CLI flag override values
func GetCLIOverrides() CLIOverrides {
	return CLIOverrides{
		LogLevel:     logLevel,
		LogFormat:    logFormat,
		PageSize:     pageSize,
		SleepSeconds: sleepSeconds,
		MaxInstances: maxInstances,
	}
}
