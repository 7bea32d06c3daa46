package domain

import (
	"time"
)

// Event type constants for harvest lifecycle events.
const (
	EventTypeHarvestStarted   = "harvest.started"
	EventTypeHarvestCompleted = "harvest.completed"
	EventTypeHarvestFailed    = "harvest.failed"
)

// HarvestEvent is the payload published for harvest lifecycle events.
type HarvestEvent struct {
	RunID          string    `json:"run_id"`
	EventType      string    `json:"event_type"`
	AffiliationIDs []string  `json:"affiliation_ids"`
	YearFloor      int       `json:"year_floor"`
	TotalResults   int       `json:"total_results,omitempty"`
	Works          int       `json:"works,omitempty"`
	Authors        int       `json:"authors,omitempty"`
	FailedPages    int       `json:"failed_pages,omitempty"`
	FailedAuthors  int       `json:"failed_authors,omitempty"`
	Error          string    `json:"error,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}
