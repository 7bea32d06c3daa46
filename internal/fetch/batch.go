package fetch

import (
	"context"
	"sync"
)

// KeyedFetchFunc fetches the raw body for one key, such as an author id.
type KeyedFetchFunc func(ctx context.Context, key string) ([]byte, error)

// RawDocument is one fetched body together with the key that requested it.
type RawDocument struct {
	Key  string
	Body []byte
}

// KeyFailure records one key whose fetch contributed no document.
type KeyFailure struct {
	Key    string
	Reason string
}

// BatchResult holds the documents that succeeded, in submission order, plus
// the failed partition.
type BatchResult struct {
	Documents []RawDocument
	Failed    []KeyFailure
}

// FetchAll fetches every key concurrently and returns the documents in the
// order the keys were given, independent of completion order. A failed key
// lands in Failed and does not cancel its siblings. As with the paginator,
// throttling belongs to the fetch function.
func FetchAll(ctx context.Context, keys []string, fetch KeyedFetchFunc) (*BatchResult, error) {
	type slot struct {
		body []byte
		err  error
	}
	slots := make([]slot, len(keys))

	var wg sync.WaitGroup
	for i, key := range keys {
		wg.Add(1)
		go func(i int, key string) {
			defer wg.Done()
			body, err := fetch(ctx, key)
			slots[i] = slot{body: body, err: err}
		}(i, key)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &BatchResult{
		Documents: make([]RawDocument, 0, len(keys)),
	}
	for i, s := range slots {
		if s.err != nil {
			res.Failed = append(res.Failed, KeyFailure{
				Key:    keys[i],
				Reason: s.err.Error(),
			})
			continue
		}
		res.Documents = append(res.Documents, RawDocument{Key: keys[i], Body: s.body})
	}
	return res, nil
}
