package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/helixir/affiliation-harvester/internal/affiliations"
	"github.com/helixir/affiliation-harvester/internal/config"
	"github.com/helixir/affiliation-harvester/internal/harvest"
	"github.com/helixir/affiliation-harvester/internal/scopus"
)

var (
	affiliationFile string
	yearFloor       int
	dumpDir         string
	outputFile      string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a harvest against the live Scopus API",
	Long: `Run a full harvest: search works for the target affiliations, extract
and correlate the matched authors, then fetch their author profiles.

The result is written as JSON to stdout, or to --output when given. A run
with failed pages or failed author profiles still succeeds; the failed units
are listed in the result and summarized on stderr so they can be retried.

The Scopus API key is read from AFFHARVEST_SCOPUS_API_KEY.`,
	RunE: runHarvest,
}

func init() {
	runCmd.Flags().StringVarP(&affiliationFile, "affiliations", "a", "affiliations.yaml", "Affiliation YAML file")
	runCmd.Flags().IntVar(&yearFloor, "year-floor", 0, "Only include works published after this year")
	runCmd.Flags().StringVar(&dumpDir, "dump-dir", "", "Directory to dump raw pages and author documents to")
	runCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
}

func runHarvest(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Scopus.APIKey == "" {
		return fmt.Errorf("AFFHARVEST_SCOPUS_API_KEY is not set")
	}

	logger := newLogger()

	entries, _, err := affiliations.Load(affiliationFile)
	if err != nil {
		return fmt.Errorf("load affiliations: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := scopus.New(scopus.Config{
		APIKey:            cfg.Scopus.APIKey,
		BaseURL:           cfg.Scopus.BaseURL,
		Timeout:           cfg.Scopus.Timeout,
		MaxRetries:        cfg.Scopus.MaxRetries,
		RetryDelay:        cfg.Scopus.RetryDelay,
		RateLimit:         cfg.Scopus.RateLimit,
		PageSize:          cfg.Harvest.PageSize,
		SearchGateLimit:   cfg.Harvest.SearchGateLimit,
		SearchGatePeriod:  cfg.Harvest.SearchGatePeriod,
		AuthorGateLimit:   cfg.Harvest.AuthorGateLimit,
		AuthorGatePeriod:  cfg.Harvest.AuthorGatePeriod,
		GateRetryInterval: cfg.Harvest.GateRetryInterval,
	})

	harvester := harvest.New(client, harvest.WithLogger(logger))

	dir := dumpDir
	if dir == "" && cfg.Dump.Enabled {
		dir = cfg.Dump.Dir
	}

	runID := uuid.New().String()
	result, err := harvester.Run(ctx, runID, harvest.Request{
		Affiliations: entries,
		YearFloor:    yearFloor,
		DumpDir:      dir,
	})
	if err != nil {
		return fmt.Errorf("harvest failed: %w", err)
	}

	return writeResult(result, outputFile)
}
