package fetch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/affiliation-harvester/internal/domain"
)

// recordingFetch returns a fetch function that records every requested
// offset and answers with a body naming that offset, sleeping per-offset
// delays first when given.
func recordingFetch(delays map[int]time.Duration) (FetchFunc, func() []int) {
	var mu sync.Mutex
	var offsets []int

	fetch := func(ctx context.Context, offset int) ([]byte, error) {
		if d, ok := delays[offset]; ok {
			time.Sleep(d)
		}
		mu.Lock()
		offsets = append(offsets, offset)
		mu.Unlock()
		return []byte(fmt.Sprintf("body-%d", offset)), nil
	}
	recorded := func() []int {
		mu.Lock()
		defer mu.Unlock()
		out := make([]int, len(offsets))
		copy(out, offsets)
		return out
	}
	return fetch, recorded
}

func countOf(total int) CountFunc {
	return func([]byte) (int, error) {
		return total, nil
	}
}

func TestNewPaginator(t *testing.T) {
	t.Run("applies default page size", func(t *testing.T) {
		p := NewPaginator(0, nil, nil)
		assert.Equal(t, DefaultPageSize, p.pageSize)

		p = NewPaginator(-5, nil, nil)
		assert.Equal(t, DefaultPageSize, p.pageSize)
	})

	t.Run("keeps a custom page size", func(t *testing.T) {
		p := NewPaginator(10, nil, nil)
		assert.Equal(t, 10, p.pageSize)
	})
}

func TestPaginator_Run(t *testing.T) {
	t.Run("one fetch when the total fits in one page", func(t *testing.T) {
		fetch, recorded := recordingFetch(nil)
		p := NewPaginator(25, fetch, countOf(3))

		set, err := p.Run(context.Background())

		require.NoError(t, err)
		assert.Equal(t, 3, set.Total)
		assert.Equal(t, []int{0}, recorded())
		require.Len(t, set.Pages, 1)
		assert.Equal(t, 0, set.Pages[0].Offset)
		assert.Empty(t, set.Failed)
	})

	t.Run("two fetches when the total spills into a second page", func(t *testing.T) {
		fetch, recorded := recordingFetch(nil)
		p := NewPaginator(25, fetch, countOf(30))

		set, err := p.Run(context.Background())

		require.NoError(t, err)
		assert.Equal(t, 30, set.Total)
		assert.ElementsMatch(t, []int{0, 25}, recorded())
		require.Len(t, set.Pages, 2)
		assert.Equal(t, 0, set.Pages[0].Offset)
		assert.Equal(t, 25, set.Pages[1].Offset)
	})

	t.Run("zero total still yields the priming page", func(t *testing.T) {
		fetch, recorded := recordingFetch(nil)
		p := NewPaginator(25, fetch, countOf(0))

		set, err := p.Run(context.Background())

		require.NoError(t, err)
		assert.Equal(t, 0, set.Total)
		assert.Equal(t, []int{0}, recorded())
		require.Len(t, set.Pages, 1)
		assert.Equal(t, "body-0", string(set.Pages[0].Body))
	})

	t.Run("no extra fetch when the total is an exact multiple", func(t *testing.T) {
		fetch, recorded := recordingFetch(nil)
		p := NewPaginator(25, fetch, countOf(50))

		set, err := p.Run(context.Background())

		require.NoError(t, err)
		assert.ElementsMatch(t, []int{0, 25}, recorded())
		require.Len(t, set.Pages, 2)
	})

	t.Run("pages come back in offset order regardless of completion order", func(t *testing.T) {
		// The lowest concurrent offset finishes last.
		fetch, recorded := recordingFetch(map[int]time.Duration{
			25: 60 * time.Millisecond,
			50: 30 * time.Millisecond,
			75: 5 * time.Millisecond,
		})
		p := NewPaginator(25, fetch, countOf(100))

		set, err := p.Run(context.Background())

		require.NoError(t, err)
		assert.Len(t, recorded(), 4)

		gotOffsets := make([]int, 0, len(set.Pages))
		for _, page := range set.Pages {
			gotOffsets = append(gotOffsets, page.Offset)
			assert.Equal(t, fmt.Sprintf("body-%d", page.Offset), string(page.Body))
		}
		assert.Equal(t, []int{0, 25, 50, 75}, gotOffsets)
	})

	t.Run("a failed page does not abort its siblings", func(t *testing.T) {
		fetchErr := errors.New("boom")
		fetch := func(ctx context.Context, offset int) ([]byte, error) {
			if offset == 50 {
				return nil, fetchErr
			}
			return []byte(fmt.Sprintf("body-%d", offset)), nil
		}
		p := NewPaginator(25, fetch, countOf(100))

		set, err := p.Run(context.Background())

		require.NoError(t, err)

		gotOffsets := make([]int, 0, len(set.Pages))
		for _, page := range set.Pages {
			gotOffsets = append(gotOffsets, page.Offset)
		}
		assert.Equal(t, []int{0, 25, 75}, gotOffsets)

		require.Len(t, set.Failed, 1)
		assert.Equal(t, 50, set.Failed[0].Offset)
		assert.Contains(t, set.Failed[0].Reason, "boom")
	})

	t.Run("priming fetch failure fails the whole run", func(t *testing.T) {
		fetchErr := domain.NewTransportError("http://example.com", 500, "oops")
		var calls int
		fetch := func(ctx context.Context, offset int) ([]byte, error) {
			calls++
			return nil, fetchErr
		}
		p := NewPaginator(25, fetch, countOf(100))

		set, err := p.Run(context.Background())

		require.Error(t, err)
		assert.Nil(t, set)
		assert.ErrorIs(t, err, domain.ErrPrimingFetch)
		assert.ErrorIs(t, err, domain.ErrTransport)
		assert.Equal(t, 1, calls, "no sibling fetches after a failed priming fetch")
	})

	t.Run("unparsable total fails the whole run", func(t *testing.T) {
		fetch, _ := recordingFetch(nil)
		countErr := errors.New("no totalResults element")
		p := NewPaginator(25, fetch, func([]byte) (int, error) {
			return 0, countErr
		})

		set, err := p.Run(context.Background())

		require.Error(t, err)
		assert.Nil(t, set)
		assert.ErrorIs(t, err, domain.ErrPrimingFetch)
		assert.ErrorIs(t, err, countErr)
	})

	t.Run("count receives the priming body", func(t *testing.T) {
		fetch, _ := recordingFetch(nil)
		var seen string
		p := NewPaginator(25, fetch, func(body []byte) (int, error) {
			seen = string(body)
			return 10, nil
		})

		_, err := p.Run(context.Background())

		require.NoError(t, err)
		assert.Equal(t, "body-0", seen)
	})

	t.Run("returns the context error when canceled mid-run", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())

		fetch := func(ctx context.Context, offset int) ([]byte, error) {
			if offset > 0 {
				cancel()
				return nil, ctx.Err()
			}
			return []byte("priming"), nil
		}
		p := NewPaginator(25, fetch, countOf(100))

		set, err := p.Run(ctx)

		require.Error(t, err)
		assert.Nil(t, set)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestPaginator_offsets(t *testing.T) {
	testCases := []struct {
		name     string
		pageSize int
		total    int
		expected []int
	}{
		{name: "zero total", pageSize: 25, total: 0, expected: nil},
		{name: "total within one page", pageSize: 25, total: 25, expected: nil},
		{name: "one result over", pageSize: 25, total: 26, expected: []int{25}},
		{name: "several pages", pageSize: 25, total: 80, expected: []int{25, 50, 75}},
		{name: "exact multiple", pageSize: 20, total: 60, expected: []int{20, 40}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := NewPaginator(tc.pageSize, nil, nil)
			assert.Equal(t, tc.expected, p.offsets(tc.total))
		})
	}
}
