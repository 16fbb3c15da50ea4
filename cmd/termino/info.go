package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/srg/termino/inspector"
)

// infoCmd represents the info command
var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Inspect the terminal a sketch would run on",
	Long: `Reports the state of the standard streams and, when stdin is a terminal,
its line-discipline attributes: window size, the input/output/control/local
flags, the read thresholds, and exactly which of those raw mode would
change. Nothing is modified.

Useful before running a sketch to understand what raw mode will do, and
after a suspicious exit to verify the terminal came back intact.`,
	Args: cobra.NoArgs,
	RunE: runInfo,
}

var infoFormat string

func init() {
	infoCmd.Flags().StringVarP(&infoFormat, "format", "f", "table", "Output format (table, json)")
}

func runInfo(cmd *cobra.Command, args []string) error {
	// Validate format parameter
	validFormats := []string{"table", "json"}
	isValidFormat := false
	for _, format := range validFormats {
		if infoFormat == format {
			isValidFormat = true
			break
		}
	}
	if !isValidFormat {
		return fmt.Errorf("invalid format '%s': must be one of %v", infoFormat, validFormats)
	}

	// Configure logger based on --log-level and --verbose flags
	logger, err := configureLogger(cmd, "verbose")
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	report, err := inspector.Inspect(os.Stdin, nil, logger)
	if err != nil {
		return err
	}

	if infoFormat == "json" {
		return report.WriteJSON(os.Stdout)
	}
	return report.WriteTable(os.Stdout)
}
