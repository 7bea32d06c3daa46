// Package domain provides domain models and business logic for the
// Affiliation Harvester service.
package domain

import (
	"time"
)

// RunStatus represents the lifecycle states of a harvest run.
type RunStatus string

const (
	RunStatusAccepted  RunStatus = "accepted"
	RunStatusSearching RunStatus = "searching"
	RunStatusProfiling RunStatus = "profiling"
	RunStatusCompleted RunStatus = "completed"
	RunStatusPartial   RunStatus = "partial"
	RunStatusFailed    RunStatus = "failed"
)

// IsTerminal returns true if the status represents a final state that will not change.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusPartial, RunStatusFailed:
		return true
	default:
		return false
	}
}

// AffiliationEntry identifies one institutional unit in the target set.
// The working set of entries defines membership for all downstream filtering
// and is immutable once a run starts.
type AffiliationEntry struct {
	Name string `json:"name" yaml:"name"`
	ID   string `json:"id" yaml:"id"`
}

// AffiliationSet answers membership queries against the target affiliation ids.
type AffiliationSet map[string]struct{}

// NewAffiliationSet builds the membership set from the given entries.
func NewAffiliationSet(entries []AffiliationEntry) AffiliationSet {
	set := make(AffiliationSet, len(entries))
	for _, e := range entries {
		if e.ID != "" {
			set[e.ID] = struct{}{}
		}
	}
	return set
}

// Contains reports whether the given affiliation id is in the target set.
func (s AffiliationSet) Contains(id string) bool {
	_, ok := s[id]
	return ok
}

// WorkRecord is one bibliographic record returned by the works search.
type WorkRecord struct {
	// WorkID is the unique external identifier of the work.
	WorkID string `json:"work_id"`

	// Fields holds the descriptive metadata of the entry keyed by local tag
	// name. When the same tag appears more than once, the last occurrence
	// wins.
	Fields map[string]string `json:"fields"`

	// AuthorNames lists every author name on the entry in document order,
	// before any affiliation filtering.
	AuthorNames []string `json:"author_names"`

	// CitedByCount is nil when the entry carries no citation count.
	CitedByCount *int `json:"cited_by_count,omitempty"`
}

// WorkAuthorsIndex maps a work id to the profile URLs of the authors on that
// work whose affiliation matched the target set. A key with an empty list is
// a work none of whose listed authors matched.
type WorkAuthorsIndex map[string][]string

// Add appends author profile URLs for a work, creating the key if absent.
// Later pages extend the list; nothing is ever overwritten.
func (idx WorkAuthorsIndex) Add(workID string, authorURLs ...string) {
	if _, ok := idx[workID]; !ok {
		idx[workID] = []string{}
	}
	idx[workID] = append(idx[workID], authorURLs...)
}

// AuthorWorksIndex maps an author id to the work ids that listed the author,
// the inverse of WorkAuthorsIndex keyed by the trailing path segment of the
// author's profile URL.
type AuthorWorksIndex map[string][]string

// Add appends a work id for an author, creating the key if absent.
func (idx AuthorWorksIndex) Add(authorID string, workIDs ...string) {
	if _, ok := idx[authorID]; !ok {
		idx[authorID] = []string{}
	}
	idx[authorID] = append(idx[authorID], workIDs...)
}

// DepartmentKindCurrent marks an affiliation block that is presently active
// on an author profile, as opposed to historical.
const DepartmentKindCurrent = "Current"

// Department is one matched current affiliation on an author profile.
type Department struct {
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	Parent string `json:"parent,omitempty"`
}

// AuthorProfile holds the identity fields and matched current affiliations of
// one author. An empty Departments list is a legitimate terminal state: the
// author matched during work search but the profile no longer reflects the
// target institution.
type AuthorProfile struct {
	AuthorID    string       `json:"author_id"`
	IndexedName string       `json:"indexed_name"`
	Surname     string       `json:"surname"`
	GivenName   string       `json:"given_name"`
	Departments []Department `json:"departments"`
}

// PageFailure records one result page that contributed no records.
type PageFailure struct {
	Offset int    `json:"offset"`
	Reason string `json:"reason"`
}

// AuthorFailure records one author profile that contributed no record.
type AuthorFailure struct {
	AuthorID string `json:"author_id"`
	Reason   string `json:"reason"`
}

// HarvestResult is the correlated output of one harvest run. Failed units are
// reported alongside the partial result so retries can target exactly those.
type HarvestResult struct {
	Works       []WorkRecord     `json:"works"`
	Authors     []AuthorProfile  `json:"authors"`
	WorkAuthors WorkAuthorsIndex `json:"work_authors"`
	AuthorWorks AuthorWorksIndex `json:"author_works"`

	// TotalResults is the authoritative count reported by the search envelope.
	TotalResults int `json:"total_results"`

	FailedPages   []PageFailure   `json:"failed_pages,omitempty"`
	FailedAuthors []AuthorFailure `json:"failed_authors,omitempty"`

	Duration time.Duration `json:"duration"`
}

// FailedOffsets returns the page offsets that failed, in recorded order.
func (r *HarvestResult) FailedOffsets() []int {
	offsets := make([]int, 0, len(r.FailedPages))
	for _, f := range r.FailedPages {
		offsets = append(offsets, f.Offset)
	}
	return offsets
}

// FailedAuthorIDs returns the author ids that failed, in recorded order.
func (r *HarvestResult) FailedAuthorIDs() []string {
	ids := make([]string, 0, len(r.FailedAuthors))
	for _, f := range r.FailedAuthors {
		ids = append(ids, f.AuthorID)
	}
	return ids
}

// Clean reports whether every page and every profile contributed records.
func (r *HarvestResult) Clean() bool {
	return len(r.FailedPages) == 0 && len(r.FailedAuthors) == 0
}
