package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	logLevel       string // Log verbosity level
	techniquesFile string // Optional YAML file overriding the built-in technique table
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "joinrace",
	Short: "Detect race-condition anomalies in room-join logs",
	Long: `joinrace pairs start and terminal events from room-join logs into sessions,
flags sessions that violate concurrency invariants, and summarizes the result
as CSV, spreadsheet, chart and SQLite output.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)
	},
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")
	rootCmd.PersistentFlags().StringVar(&techniquesFile, "techniques_file", "", "YAML file adding or overriding technique definitions")
}
