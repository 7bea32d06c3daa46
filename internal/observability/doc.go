// Package observability provides logging, metrics, and tracing support for
// the affiliation harvester service.
//
// # Overview
//
// The observability package provides:
//
//   - Structured logging with zerolog
//   - Prometheus metrics for harvests, pages, profiles, and the rate gate
//   - Context helpers for propagating observability data
//
// # Logging
//
// Create a logger from configuration:
//
//	cfg := observability.LoggingConfig{
//	    Level:     "info",
//	    Format:    "json",
//	    Output:    "stdout",
//	    AddSource: true,
//	}
//
//	logger := observability.NewLogger(cfg)
//	logger.Info().Str("run_id", runID).Msg("harvest started")
//
// Add harvest run context to logger:
//
//	logger = observability.WithRunContext(logger, runID, len(affiliations), yearFloor)
//
// # Metrics
//
// Initialize metrics:
//
//	metrics := observability.NewMetrics("affiliation_harvester")
//
// Record metrics:
//
//	metrics.RecordHarvestStarted()
//	metrics.RecordPageFetched()
//	metrics.RecordWorksExtracted(25)
//
// # Context Helpers
//
// Store and retrieve request context:
//
//	ctx = observability.WithRequestID(ctx, requestID)
//	ctx = observability.WithRunID(ctx, runID)
//
//	reqID := observability.RequestIDFromContext(ctx)
//	runID := observability.RunIDFromContext(ctx)
//
// # Standard Fields
//
// Common fields used across the service:
//
//   - request_id: HTTP request identifier
//   - run_id: Harvest run identifier
//   - offset: Pagination offset of a result page
//   - author_id: Author profile identifier
//   - gate: Rate gate name (search, author)
//   - trace_id: Distributed trace identifier
//
// # Thread Safety
//
// All components are safe for concurrent use from multiple goroutines.
package observability
