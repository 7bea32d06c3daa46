package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the affiliation harvester.
// Metrics are organized by subsystem: harvests, pages, profiles, the rate
// gate, and outbound API requests. All counters and histograms are registered
// via promauto for automatic registration with the default Prometheus registry.
type Metrics struct {
	// HarvestsStarted counts the total number of harvest runs initiated.
	HarvestsStarted prometheus.Counter

	// HarvestsCompleted counts runs that finished with every unit succeeding.
	HarvestsCompleted prometheus.Counter

	// HarvestsPartial counts runs that finished with at least one failed page or profile.
	HarvestsPartial prometheus.Counter

	// HarvestsFailed counts runs that ended in outright failure.
	HarvestsFailed prometheus.Counter

	// HarvestDuration observes the end-to-end duration of harvest runs in seconds.
	HarvestDuration prometheus.Histogram

	// PagesFetched counts result pages fetched successfully.
	PagesFetched prometheus.Counter

	// PagesFailed counts result pages that contributed no records, labeled by reason.
	PagesFailed *prometheus.CounterVec

	// PagesPerHarvest observes the distribution of page counts per run.
	PagesPerHarvest prometheus.Histogram

	// WorksExtracted counts work records extracted across all runs.
	WorksExtracted prometheus.Counter

	// DuplicateWorkIDs counts work identifiers seen on more than one page.
	DuplicateWorkIDs prometheus.Counter

	// AuthorLinksMatched counts work-author correlations that passed the affiliation filter.
	AuthorLinksMatched prometheus.Counter

	// ProfilesExtracted counts author profiles extracted successfully.
	ProfilesExtracted prometheus.Counter

	// ProfilesFailed counts author profiles that contributed no record, labeled by reason.
	ProfilesFailed *prometheus.CounterVec

	// ProfilesEmptyDepartments counts profiles whose current affiliations no
	// longer match the target set.
	ProfilesEmptyDepartments prometheus.Counter

	// GateAdmissions counts rate gate admissions, labeled by gate.
	GateAdmissions *prometheus.CounterVec

	// GateWaitDuration observes time spent waiting for a rate gate permit in
	// seconds, labeled by gate.
	GateWaitDuration *prometheus.HistogramVec

	// APIRequestsTotal counts outbound HTTP requests, labeled by endpoint.
	APIRequestsTotal *prometheus.CounterVec

	// APIRequestsFailed counts failed outbound HTTP requests, labeled by endpoint and error type.
	APIRequestsFailed *prometheus.CounterVec

	// APIRequestDuration observes outbound HTTP request duration in seconds, labeled by endpoint.
	APIRequestDuration *prometheus.HistogramVec

	// APIRateLimited counts rate limit responses from the upstream API.
	APIRateLimited prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		// Harvests
		HarvestsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "harvests_started_total",
			Help:      "Total number of harvest runs started",
		}),
		HarvestsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "harvests_completed_total",
			Help:      "Total number of harvest runs completed with no failed units",
		}),
		HarvestsPartial: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "harvests_partial_total",
			Help:      "Total number of harvest runs completed with failed pages or profiles",
		}),
		HarvestsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "harvests_failed_total",
			Help:      "Total number of harvest runs that failed outright",
		}),
		HarvestDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "harvest_duration_seconds",
			Help:      "Duration of harvest runs in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200, 1800, 3600},
		}),

		// Pages
		PagesFetched: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_fetched_total",
			Help:      "Total number of search result pages fetched",
		}),
		PagesFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_failed_total",
			Help:      "Total number of search result pages that contributed no records",
		}, []string{"reason"}),
		PagesPerHarvest: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pages_per_harvest",
			Help:      "Number of result pages fetched per harvest run",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 500},
		}),

		// Works
		WorksExtracted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "works_extracted_total",
			Help:      "Total number of work records extracted",
		}),
		DuplicateWorkIDs: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_work_ids_total",
			Help:      "Total number of work identifiers seen on more than one page",
		}),
		AuthorLinksMatched: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "author_links_matched_total",
			Help:      "Total number of work-author links that passed the affiliation filter",
		}),

		// Profiles
		ProfilesExtracted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "profiles_extracted_total",
			Help:      "Total number of author profiles extracted",
		}),
		ProfilesFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "profiles_failed_total",
			Help:      "Total number of author profiles that contributed no record",
		}, []string{"reason"}),
		ProfilesEmptyDepartments: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "profiles_empty_departments_total",
			Help:      "Total number of profiles with no current affiliation matching the target set",
		}),

		// Rate gate
		GateAdmissions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_admissions_total",
			Help:      "Total number of rate gate admissions by gate",
		}, []string{"gate"}),
		GateWaitDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gate_wait_duration_seconds",
			Help:      "Time spent waiting for a rate gate permit in seconds",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"gate"}),

		// Outbound API
		APIRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Total number of outbound API requests",
		}, []string{"endpoint"}),
		APIRequestsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_failed_total",
			Help:      "Total number of failed outbound API requests",
		}, []string{"endpoint", "error_type"}),
		APIRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_duration_seconds",
			Help:      "Duration of outbound API requests in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"endpoint"}),
		APIRateLimited: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_rate_limited_total",
			Help:      "Total number of rate limit responses from the upstream API",
		}),
	}
}

// RecordHarvestStarted records that a harvest run has started.
func (m *Metrics) RecordHarvestStarted() {
	m.HarvestsStarted.Inc()
}

// RecordHarvestCompleted records a run that finished with no failed units.
func (m *Metrics) RecordHarvestCompleted(durationSeconds float64) {
	m.HarvestsCompleted.Inc()
	m.HarvestDuration.Observe(durationSeconds)
}

// RecordHarvestPartial records a run that finished with failed units.
func (m *Metrics) RecordHarvestPartial(durationSeconds float64) {
	m.HarvestsPartial.Inc()
	m.HarvestDuration.Observe(durationSeconds)
}

// RecordHarvestFailed records a run that failed outright.
func (m *Metrics) RecordHarvestFailed(durationSeconds float64) {
	m.HarvestsFailed.Inc()
	m.HarvestDuration.Observe(durationSeconds)
}

// RecordPageFetched records one successfully fetched result page.
func (m *Metrics) RecordPageFetched() {
	m.PagesFetched.Inc()
}

// RecordPageFailed records a page that contributed no records.
func (m *Metrics) RecordPageFailed(reason string) {
	m.PagesFailed.WithLabelValues(reason).Inc()
}

// RecordPagesPerHarvest records how many pages one run fetched.
func (m *Metrics) RecordPagesPerHarvest(count int) {
	m.PagesPerHarvest.Observe(float64(count))
}

// RecordWorksExtracted records work records extracted from one page.
func (m *Metrics) RecordWorksExtracted(count int) {
	m.WorksExtracted.Add(float64(count))
}

// RecordDuplicateWorkID records a work identifier seen on more than one page.
func (m *Metrics) RecordDuplicateWorkID() {
	m.DuplicateWorkIDs.Inc()
}

// RecordAuthorLinksMatched records affiliation-filtered work-author links.
func (m *Metrics) RecordAuthorLinksMatched(count int) {
	m.AuthorLinksMatched.Add(float64(count))
}

// RecordProfileExtracted records one extracted author profile.
func (m *Metrics) RecordProfileExtracted(departments int) {
	m.ProfilesExtracted.Inc()
	if departments == 0 {
		m.ProfilesEmptyDepartments.Inc()
	}
}

// RecordProfileFailed records an author profile that contributed no record.
func (m *Metrics) RecordProfileFailed(reason string) {
	m.ProfilesFailed.WithLabelValues(reason).Inc()
}

// RecordGateAdmission records one rate gate admission.
func (m *Metrics) RecordGateAdmission(gate string, waitSeconds float64) {
	m.GateAdmissions.WithLabelValues(gate).Inc()
	m.GateWaitDuration.WithLabelValues(gate).Observe(waitSeconds)
}

// RecordAPIRequest records an outbound API request.
func (m *Metrics) RecordAPIRequest(endpoint string, durationSeconds float64) {
	m.APIRequestsTotal.WithLabelValues(endpoint).Inc()
	m.APIRequestDuration.WithLabelValues(endpoint).Observe(durationSeconds)
}

// RecordAPIRequestFailed records a failed outbound API request.
func (m *Metrics) RecordAPIRequestFailed(endpoint, errorType string) {
	m.APIRequestsFailed.WithLabelValues(endpoint, errorType).Inc()
}

// RecordAPIRateLimited records a rate limit response from the upstream API.
func (m *Metrics) RecordAPIRateLimited() {
	m.APIRateLimited.Inc()
}
