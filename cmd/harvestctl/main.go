// Package main provides the harvestctl CLI for running and replaying
// affiliation harvests.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/helixir/affiliation-harvester/internal/domain"
	"github.com/helixir/affiliation-harvester/internal/observability"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "harvestctl",
	Short: "Harvest affiliation-correlated works and author profiles from Scopus",
	Long: `harvestctl runs the affiliation harvest pipeline from the command line.

A harvest searches Scopus for works affiliated with the target institutions,
correlates the matched authors, and fetches their author profiles. The
correlated result is written as JSON; logs go to stderr.

Examples:
  harvestctl run --affiliations affiliations.yaml --year-floor 2015
  harvestctl run --affiliations affiliations.yaml --dump-dir pages -o result.json
  harvestctl replay --dir pages --affiliations affiliations.yaml`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(replayCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// newLogger builds a console logger on stderr so stdout stays reserved for
// the result document.
func newLogger() zerolog.Logger {
	return observability.NewLogger(observability.LoggingConfig{
		Level:  logLevel,
		Format: "console",
		Output: "stderr",
	})
}

// writeResult writes the correlated result as indented JSON and summarizes
// any failed partition on stderr. A partial result still exits zero; the
// partition lists exactly the units to retry.
func writeResult(result *domain.HarvestResult, path string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	data = append(data, '\n')

	if path != "" {
		if err := os.WriteFile(path, data, 0644); err != nil {
			return fmt.Errorf("writing result: %w", err)
		}
	} else if _, err := os.Stdout.Write(data); err != nil {
		return fmt.Errorf("writing result: %w", err)
	}

	fmt.Fprintf(os.Stderr, "works: %d, authors: %d, total results: %d\n",
		len(result.Works), len(result.Authors), result.TotalResults)
	if offsets := result.FailedOffsets(); len(offsets) > 0 {
		fmt.Fprintf(os.Stderr, "failed page offsets: %v\n", offsets)
	}
	if ids := result.FailedAuthorIDs(); len(ids) > 0 {
		fmt.Fprintf(os.Stderr, "failed author ids: %s\n", strings.Join(ids, ", "))
	}
	return nil
}
