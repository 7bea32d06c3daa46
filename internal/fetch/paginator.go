package fetch

import (
	"context"
	"fmt"
	"sync"

	"github.com/helixir/affiliation-harvester/internal/domain"
)

// DefaultPageSize is the default number of results per page.
const DefaultPageSize = 25

// FetchFunc fetches the raw body for one page offset.
type FetchFunc func(ctx context.Context, offset int) ([]byte, error)

// CountFunc extracts the authoritative total result count from the priming
// page body.
type CountFunc func(body []byte) (int, error)

// RawPage is one fetched page body together with the offset it answers.
type RawPage struct {
	Offset int
	Body   []byte
}

// PageSet is the outcome of one pagination run: the pages that succeeded,
// ordered by offset, the authoritative total reported by the envelope, and
// the offsets that failed.
type PageSet struct {
	Pages  []RawPage
	Total  int
	Failed []domain.PageFailure
}

// Paginator learns the total result count from a priming fetch at offset
// zero, then fans the remaining page fetches out concurrently. Throttling is
// entirely the fetch function's concern, typically a Requester holding a
// Gate scoped to this run.
type Paginator struct {
	pageSize int
	fetch    FetchFunc
	count    CountFunc
}

// NewPaginator creates a paginator over pages of pageSize results.
func NewPaginator(pageSize int, fetch FetchFunc, count CountFunc) *Paginator {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Paginator{
		pageSize: pageSize,
		fetch:    fetch,
		count:    count,
	}
}

// Run issues the priming fetch, then fetches every remaining offset
// concurrently and reassembles the results in ascending offset order,
// independent of completion order. A failed page lands in Failed and does
// not cancel its siblings. A failed priming fetch, or an unparsable total,
// fails the whole run with ErrPrimingFetch.
func (p *Paginator) Run(ctx context.Context) (*PageSet, error) {
	priming, err := p.fetch(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: offset 0: %w", domain.ErrPrimingFetch, err)
	}
	total, err := p.count(priming)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing total results: %w", domain.ErrPrimingFetch, err)
	}

	offsets := p.offsets(total)

	type slot struct {
		body []byte
		err  error
	}
	slots := make([]slot, len(offsets))

	var wg sync.WaitGroup
	for i, offset := range offsets {
		wg.Add(1)
		go func(i, offset int) {
			defer wg.Done()
			body, err := p.fetch(ctx, offset)
			slots[i] = slot{body: body, err: err}
		}(i, offset)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	set := &PageSet{
		Pages: make([]RawPage, 0, len(offsets)+1),
		Total: total,
	}
	set.Pages = append(set.Pages, RawPage{Offset: 0, Body: priming})
	for i, s := range slots {
		if s.err != nil {
			set.Failed = append(set.Failed, domain.PageFailure{
				Offset: offsets[i],
				Reason: s.err.Error(),
			})
			continue
		}
		set.Pages = append(set.Pages, RawPage{Offset: offsets[i], Body: s.body})
	}
	return set, nil
}

// offsets returns the page offsets remaining after the priming page:
// pageSize, 2*pageSize, ... strictly below total.
func (p *Paginator) offsets(total int) []int {
	var offsets []int
	for off := p.pageSize; off < total; off += p.pageSize {
		offsets = append(offsets, off)
	}
	return offsets
}
