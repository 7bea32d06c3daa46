package harvest

import (
	"sort"

	"github.com/helixir/affiliation-harvester/internal/domain"
	"github.com/helixir/affiliation-harvester/internal/scopus"
)

// DuplicateWork reports one work id seen on more than one page.
type DuplicateWork struct {
	WorkID      string
	FirstOffset int
	Offset      int
}

// accumulator merges per-page extractions into run-wide state. Works keep
// their first-appearance position with the last-merged record, and index
// values stay unique in first-appearance order.
type accumulator struct {
	order       []string
	byID        map[string]domain.WorkRecord
	firstOffset map[string]int

	workAuthors domain.WorkAuthorsIndex
	authorWorks domain.AuthorWorksIndex

	workAuthorSeen map[string]map[string]struct{}
	authorWorkSeen map[string]map[string]struct{}
}

func newAccumulator() *accumulator {
	return &accumulator{
		byID:           make(map[string]domain.WorkRecord),
		firstOffset:    make(map[string]int),
		workAuthors:    make(domain.WorkAuthorsIndex),
		authorWorks:    make(domain.AuthorWorksIndex),
		workAuthorSeen: make(map[string]map[string]struct{}),
		authorWorkSeen: make(map[string]map[string]struct{}),
	}
}

// merge folds one page's extraction into the accumulator and returns the
// duplicate work ids it ran into.
func (a *accumulator) merge(offset int, ex *scopus.PageExtraction) []DuplicateWork {
	var dupes []DuplicateWork

	for _, work := range ex.Works {
		if first, seen := a.firstOffset[work.WorkID]; seen {
			dupes = append(dupes, DuplicateWork{
				WorkID:      work.WorkID,
				FirstOffset: first,
				Offset:      offset,
			})
		} else {
			a.firstOffset[work.WorkID] = offset
			a.order = append(a.order, work.WorkID)
		}
		a.byID[work.WorkID] = work
	}

	for workID, urls := range ex.WorkAuthors {
		a.workAuthors.Add(workID)
		seen, ok := a.workAuthorSeen[workID]
		if !ok {
			seen = make(map[string]struct{})
			a.workAuthorSeen[workID] = seen
		}
		for _, u := range urls {
			if _, dup := seen[u]; dup {
				continue
			}
			seen[u] = struct{}{}
			a.workAuthors.Add(workID, u)
		}
	}

	for authorID, workIDs := range ex.AuthorWorks {
		seen, ok := a.authorWorkSeen[authorID]
		if !ok {
			seen = make(map[string]struct{})
			a.authorWorkSeen[authorID] = seen
		}
		for _, w := range workIDs {
			if _, dup := seen[w]; dup {
				continue
			}
			seen[w] = struct{}{}
			a.authorWorks.Add(authorID, w)
		}
	}

	return dupes
}

// works returns the merged records in first-appearance order.
func (a *accumulator) works() []domain.WorkRecord {
	records := make([]domain.WorkRecord, 0, len(a.order))
	for _, id := range a.order {
		records = append(records, a.byID[id])
	}
	return records
}

// authorIDs returns every matched author id, sorted so profile fetches run
// in a deterministic order.
func (a *accumulator) authorIDs() []string {
	ids := make([]string, 0, len(a.authorWorks))
	for id := range a.authorWorks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
