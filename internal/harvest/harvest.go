// Package harvest orchestrates affiliation harvest runs.
//
// A run walks the works search for the target affiliations, merges every
// page into one correlated result, then fetches and extracts the profile of
// each matched author. Failed pages and failed authors never abort the run;
// they are reported in the result partition so a retry can target exactly
// those. Only the priming fetch is fatal.
package harvest

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/affiliation-harvester/internal/domain"
	"github.com/helixir/affiliation-harvester/internal/events"
	"github.com/helixir/affiliation-harvester/internal/fetch"
	"github.com/helixir/affiliation-harvester/internal/observability"
	"github.com/helixir/affiliation-harvester/internal/pagestore"
	"github.com/helixir/affiliation-harvester/internal/scopus"
)

// publishTimeout bounds lifecycle event delivery. Events are published on a
// detached context so a canceled run still announces its failure.
const publishTimeout = 5 * time.Second

// Client is the slice of the Scopus client the harvester depends on.
type Client interface {
	SearchPages(ctx context.Context, affiliationIDs []string, yearFloor int) (*fetch.PageSet, error)
	FetchAuthorProfiles(ctx context.Context, authorIDs []string) (*fetch.BatchResult, error)
}

var _ Client = (*scopus.Client)(nil)

// StatusReporter receives phase transitions while a run is in flight.
// Terminal states are recorded by the caller together with the result.
type StatusReporter interface {
	SetStatus(runID string, status domain.RunStatus)
}

// Request describes one harvest run.
type Request struct {
	// Affiliations is the target affiliation set. Required.
	Affiliations []domain.AffiliationEntry `json:"affiliations"`
	// YearFloor restricts the search to works published after this year.
	// Zero means no restriction.
	YearFloor int `json:"year_floor,omitempty"`
	// DumpDir, when set, receives every raw page and author document.
	DumpDir string `json:"dump_dir,omitempty"`
}

// Harvester runs the search and profile pipeline against a Scopus client.
type Harvester struct {
	client    Client
	publisher events.Publisher
	status    StatusReporter
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

// Option configures a Harvester.
type Option func(*Harvester)

// WithPublisher sets the lifecycle event publisher.
func WithPublisher(p events.Publisher) Option {
	return func(h *Harvester) {
		if p != nil {
			h.publisher = p
		}
	}
}

// WithStatusReporter sets the sink for phase transitions.
func WithStatusReporter(r StatusReporter) Option {
	return func(h *Harvester) { h.status = r }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *observability.Metrics) Option {
	return func(h *Harvester) { h.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(h *Harvester) { h.logger = logger }
}

// New creates a Harvester for the given client. Events are discarded and
// logs dropped unless configured otherwise.
func New(client Client, opts ...Option) *Harvester {
	h := &Harvester{
		client:    client,
		publisher: events.NoopPublisher{},
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With().Str("component", "harvester").Logger()
	return h
}

// Run executes one harvest. The returned result carries the partition of
// failed pages and authors; a non-nil error means the run produced nothing.
func (h *Harvester) Run(ctx context.Context, runID string, req Request) (*domain.HarvestResult, error) {
	target := domain.NewAffiliationSet(req.Affiliations)
	if len(target) == 0 {
		return nil, domain.NewValidationError("affiliations", "at least one affiliation with an id is required")
	}

	logger := h.logger.With().Str("run_id", runID).Logger()
	ids := affiliationIDs(req.Affiliations)
	start := time.Now()

	if h.metrics != nil {
		h.metrics.RecordHarvestStarted()
	}
	h.publish(logger, domain.HarvestEvent{
		RunID:          runID,
		EventType:      domain.EventTypeHarvestStarted,
		AffiliationIDs: ids,
		YearFloor:      req.YearFloor,
	})
	logger.Info().
		Strs("affiliation_ids", ids).
		Int("year_floor", req.YearFloor).
		Msg("starting harvest")

	h.setStatus(runID, domain.RunStatusSearching)
	pageSet, err := h.client.SearchPages(ctx, ids, req.YearFloor)
	if err != nil {
		return nil, h.fail(logger, runID, start, fmt.Errorf("searching works: %w", err))
	}

	if req.DumpDir != "" {
		h.dumpPages(logger, req.DumpDir, pageSet.Pages)
	}

	pageFailures := make([]domain.PageFailure, 0, len(pageSet.Failed))
	for _, f := range pageSet.Failed {
		pageFailures = append(pageFailures, f)
		if h.metrics != nil {
			h.metrics.RecordPageFailed("fetch")
		}
		logger.Warn().Int("offset", f.Offset).Str("reason", f.Reason).Msg("page fetch failed")
	}

	acc, parseFailures, _ := h.extractPages(logger, pageSet.Pages, target)
	pageFailures = append(pageFailures, parseFailures...)
	sort.Slice(pageFailures, func(i, j int) bool { return pageFailures[i].Offset < pageFailures[j].Offset })

	works := acc.works()
	authorIDs := acc.authorIDs()
	if h.metrics != nil {
		h.metrics.RecordPagesPerHarvest(len(pageSet.Pages))
		h.metrics.RecordWorksExtracted(len(works))
		h.metrics.RecordAuthorLinksMatched(len(authorIDs))
	}
	logger.Info().
		Int("total_results", pageSet.Total).
		Int("pages", len(pageSet.Pages)).
		Int("works", len(works)).
		Int("matched_authors", len(authorIDs)).
		Msg("work extraction finished")

	h.setStatus(runID, domain.RunStatusProfiling)
	profiles := []domain.AuthorProfile{}
	var authorFailures []domain.AuthorFailure
	if len(authorIDs) > 0 {
		batch, err := h.client.FetchAuthorProfiles(ctx, authorIDs)
		if err != nil {
			return nil, h.fail(logger, runID, start, fmt.Errorf("fetching author profiles: %w", err))
		}
		if req.DumpDir != "" {
			h.dumpAuthors(logger, req.DumpDir, batch.Documents)
		}
		profiles, authorFailures = h.extractAuthors(logger, batch, target)
	}

	result := &domain.HarvestResult{
		Works:         works,
		Authors:       profiles,
		WorkAuthors:   acc.workAuthors,
		AuthorWorks:   acc.authorWorks,
		TotalResults:  pageSet.Total,
		FailedPages:   pageFailures,
		FailedAuthors: authorFailures,
		Duration:      time.Since(start),
	}

	if h.metrics != nil {
		if result.Clean() {
			h.metrics.RecordHarvestCompleted(result.Duration.Seconds())
		} else {
			h.metrics.RecordHarvestPartial(result.Duration.Seconds())
		}
	}
	h.publish(logger, domain.HarvestEvent{
		RunID:          runID,
		EventType:      domain.EventTypeHarvestCompleted,
		AffiliationIDs: ids,
		YearFloor:      req.YearFloor,
		TotalResults:   result.TotalResults,
		Works:          len(result.Works),
		Authors:        len(result.Authors),
		FailedPages:    len(result.FailedPages),
		FailedAuthors:  len(result.FailedAuthors),
	})
	logger.Info().
		Int("works", len(result.Works)).
		Int("authors", len(result.Authors)).
		Int("failed_pages", len(result.FailedPages)).
		Int("failed_authors", len(result.FailedAuthors)).
		Dur("duration", result.Duration).
		Msg("harvest finished")

	return result, nil
}

// Replay rebuilds a harvest result from a previously dumped store instead of
// the live API. Author ids referenced by the stored pages but missing from
// the store land in the failure partition. Replay recomputes only; it emits
// no lifecycle events and records no harvest metrics.
func (h *Harvester) Replay(ctx context.Context, runID string, dir string, affiliations []domain.AffiliationEntry) (*domain.HarvestResult, error) {
	target := domain.NewAffiliationSet(affiliations)
	if len(target) == 0 {
		return nil, domain.NewValidationError("affiliations", "at least one affiliation with an id is required")
	}

	logger := h.logger.With().Str("run_id", runID).Str("dir", dir).Logger()
	start := time.Now()

	store := pagestore.New(dir)
	pages, err := store.LoadPages()
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, domain.NewNotFoundError("search pages", dir)
	}

	acc, pageFailures, total := h.extractPages(logger, pages, target)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	docs, err := store.LoadAuthors()
	if err != nil {
		return nil, err
	}
	docByID := make(map[string][]byte, len(docs))
	for _, doc := range docs {
		docByID[doc.Key] = doc.Body
	}

	authorIDs := acc.authorIDs()
	stored := fetch.BatchResult{}
	for _, id := range authorIDs {
		body, ok := docByID[id]
		if !ok {
			stored.Failed = append(stored.Failed, fetch.KeyFailure{Key: id, Reason: "author document not in store"})
			continue
		}
		stored.Documents = append(stored.Documents, fetch.RawDocument{Key: id, Body: body})
	}
	profiles, authorFailures := h.extractAuthors(logger, &stored, target)

	result := &domain.HarvestResult{
		Works:         acc.works(),
		Authors:       profiles,
		WorkAuthors:   acc.workAuthors,
		AuthorWorks:   acc.authorWorks,
		TotalResults:  total,
		FailedPages:   pageFailures,
		FailedAuthors: authorFailures,
		Duration:      time.Since(start),
	}
	logger.Info().
		Int("pages", len(pages)).
		Int("works", len(result.Works)).
		Int("authors", len(result.Authors)).
		Msg("replay finished")
	return result, nil
}

// extractPages parses and merges every page, partitioning the ones that do
// not parse. The returned total is the envelope count from the offset zero
// page when present; live runs use the paginator's count instead.
func (h *Harvester) extractPages(logger zerolog.Logger, pages []fetch.RawPage, target domain.AffiliationSet) (*accumulator, []domain.PageFailure, int) {
	acc := newAccumulator()
	var failures []domain.PageFailure
	total := 0

	for _, page := range pages {
		parsed, err := scopus.ParseSearchPage(page.Body, page.Offset)
		if err != nil {
			failures = append(failures, domain.PageFailure{Offset: page.Offset, Reason: err.Error()})
			if h.metrics != nil {
				h.metrics.RecordPageFailed("malformed")
			}
			logger.Warn().Int("offset", page.Offset).Err(err).Msg("skipping malformed page")
			continue
		}
		if page.Offset == 0 {
			total = parsed.TotalResults
		}

		for _, dup := range acc.merge(page.Offset, scopus.ExtractWorks(parsed, target)) {
			if h.metrics != nil {
				h.metrics.RecordDuplicateWorkID()
			}
			logger.Warn().
				Str("work_id", dup.WorkID).
				Int("first_offset", dup.FirstOffset).
				Int("offset", dup.Offset).
				Msg("duplicate work id across pages")
		}
		if h.metrics != nil {
			h.metrics.RecordPageFetched()
		}
	}

	return acc, failures, total
}

// extractAuthors parses every fetched author document and partitions the
// ones that fail. Fetch-level failures carry straight through.
func (h *Harvester) extractAuthors(logger zerolog.Logger, batch *fetch.BatchResult, target domain.AffiliationSet) ([]domain.AuthorProfile, []domain.AuthorFailure) {
	profiles := make([]domain.AuthorProfile, 0, len(batch.Documents))
	var failures []domain.AuthorFailure

	for _, f := range batch.Failed {
		failures = append(failures, domain.AuthorFailure{AuthorID: f.Key, Reason: f.Reason})
		if h.metrics != nil {
			h.metrics.RecordProfileFailed("fetch")
		}
		logger.Warn().Str("author_id", f.Key).Str("reason", f.Reason).Msg("author fetch failed")
	}

	for _, doc := range batch.Documents {
		parsed, err := scopus.ParseAuthorDocument(doc.Body, doc.Key)
		if err == nil {
			var profile *domain.AuthorProfile
			profile, err = scopus.ExtractAuthorProfile(parsed, doc.Key, target)
			if err == nil {
				profiles = append(profiles, *profile)
				if h.metrics != nil {
					h.metrics.RecordProfileExtracted(len(profile.Departments))
				}
				continue
			}
		}
		failures = append(failures, domain.AuthorFailure{AuthorID: doc.Key, Reason: err.Error()})
		if h.metrics != nil {
			h.metrics.RecordProfileFailed("malformed")
		}
		logger.Warn().Str("author_id", doc.Key).Err(err).Msg("skipping malformed author document")
	}

	sort.Slice(failures, func(i, j int) bool { return failures[i].AuthorID < failures[j].AuthorID })
	return profiles, failures
}

func (h *Harvester) dumpPages(logger zerolog.Logger, dir string, pages []fetch.RawPage) {
	store := pagestore.New(dir)
	for _, page := range pages {
		if err := store.SavePage(page.Offset, page.Body); err != nil {
			logger.Warn().Int("offset", page.Offset).Err(err).Msg("failed to dump page")
		}
	}
}

func (h *Harvester) dumpAuthors(logger zerolog.Logger, dir string, docs []fetch.RawDocument) {
	store := pagestore.New(dir)
	for _, doc := range docs {
		if err := store.SaveAuthor(doc.Key, doc.Body); err != nil {
			logger.Warn().Str("author_id", doc.Key).Err(err).Msg("failed to dump author document")
		}
	}
}

// fail records the failure, announces it, and returns err unchanged.
func (h *Harvester) fail(logger zerolog.Logger, runID string, start time.Time, err error) error {
	if h.metrics != nil {
		h.metrics.RecordHarvestFailed(time.Since(start).Seconds())
	}
	h.publish(logger, domain.HarvestEvent{
		RunID:     runID,
		EventType: domain.EventTypeHarvestFailed,
		Error:     err.Error(),
	})
	logger.Error().Err(err).Msg("harvest failed")
	return err
}

func (h *Harvester) setStatus(runID string, status domain.RunStatus) {
	if h.status != nil {
		h.status.SetStatus(runID, status)
	}
}

// publish delivers one lifecycle event on a detached context so delivery
// survives run cancellation. Failures are logged, never propagated.
func (h *Harvester) publish(logger zerolog.Logger, event domain.HarvestEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := h.publisher.Publish(ctx, event); err != nil {
		logger.Warn().Err(err).Str("event_type", event.EventType).Msg("failed to publish harvest event")
	}
}

func affiliationIDs(entries []domain.AffiliationEntry) []string {
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.ID != "" {
			ids = append(ids, e.ID)
		}
	}
	return ids
}
