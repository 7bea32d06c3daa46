package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/helixir/affiliation-harvester/internal/affiliations"
	"github.com/helixir/affiliation-harvester/internal/harvest"
)

var (
	replayDir             string
	replayAffiliationFile string
	replayOutputFile      string
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Rebuild a harvest result from dumped pages",
	Long: `Replay recomputes the correlated result from raw pages and author
documents previously written with --dump-dir. No network requests are made,
so replays need no API key and ignore the rate gates.`,
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().StringVarP(&replayDir, "dir", "d", "pages", "Directory holding dumped pages and author documents")
	replayCmd.Flags().StringVarP(&replayAffiliationFile, "affiliations", "a", "affiliations.yaml", "Affiliation YAML file")
	replayCmd.Flags().StringVarP(&replayOutputFile, "output", "o", "", "Output file (default: stdout)")
}

func runReplay(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	entries, _, err := affiliations.Load(replayAffiliationFile)
	if err != nil {
		return fmt.Errorf("load affiliations: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Replay never fetches, so no client is needed.
	harvester := harvest.New(nil, harvest.WithLogger(logger))

	runID := uuid.New().String()
	result, err := harvester.Replay(ctx, runID, replayDir, entries)
	if err != nil {
		return fmt.Errorf("replay failed: %w", err)
	}

	return writeResult(result, replayOutputFile)
}
