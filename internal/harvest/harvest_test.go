package harvest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/affiliation-harvester/internal/domain"
	"github.com/helixir/affiliation-harvester/internal/fetch"
	"github.com/helixir/affiliation-harvester/internal/observability"
	"github.com/helixir/affiliation-harvester/internal/pagestore"
)

const harvestPage0XML = `<?xml version="1.0" encoding="UTF-8"?>
<search-results xmlns="http://www.w3.org/2005/Atom" xmlns:opensearch="http://a9.com/-/spec/opensearch/1.1/" xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:prism="http://prismstandard.org/namespaces/basic/2.0/">
  <opensearch:totalResults>27</opensearch:totalResults>
  <entry>
    <dc:identifier>SCOPUS_ID:85011111111</dc:identifier>
    <dc:title>Sliding Window Admission Control</dc:title>
    <prism:publicationName>Journal of Protocol Engineering</prism:publicationName>
    <citedby-count>42</citedby-count>
    <author seq="1">
      <authid>7004212771</authid>
      <authname>Cote A.</authname>
      <author-url>https://api.elsevier.com/content/author/author_id/7004212771</author-url>
      <afid>60025272</afid>
    </author>
    <author seq="2">
      <authid>9999999999</authid>
      <authname>Visitor V.</authname>
      <author-url>https://api.elsevier.com/content/author/author_id/9999999999</author-url>
      <afid>60999999</afid>
    </author>
  </entry>
  <entry>
    <dc:identifier>SCOPUS_ID:85022222222</dc:identifier>
    <dc:title>Unrelated Work</dc:title>
    <author seq="1">
      <authid>8888888888</authid>
      <authname>Other O.</authname>
      <author-url>https://api.elsevier.com/content/author/author_id/8888888888</author-url>
      <afid>60111111</afid>
    </author>
  </entry>
</search-results>`

const harvestPage25XML = `<?xml version="1.0" encoding="UTF-8"?>
<search-results xmlns="http://www.w3.org/2005/Atom" xmlns:opensearch="http://a9.com/-/spec/opensearch/1.1/" xmlns:dc="http://purl.org/dc/elements/1.1/">
  <opensearch:totalResults>27</opensearch:totalResults>
  <entry>
    <dc:identifier>SCOPUS_ID:85033333333</dc:identifier>
    <dc:title>Cursor Injection Strategies</dc:title>
    <author seq="1">
      <authid>7004212771</authid>
      <authname>Cote A.</authname>
      <author-url>https://api.elsevier.com/content/author/author_id/7004212771</author-url>
      <afid>60025272</afid>
    </author>
    <author seq="2">
      <authid>7005203078</authid>
      <authname>Martin B.</authname>
      <author-url>https://api.elsevier.com/content/author/author_id/7005203078</author-url>
      <afid>60000001</afid>
    </author>
  </entry>
</search-results>`

const harvestPage25DupXML = `<?xml version="1.0" encoding="UTF-8"?>
<search-results xmlns="http://www.w3.org/2005/Atom" xmlns:opensearch="http://a9.com/-/spec/opensearch/1.1/" xmlns:dc="http://purl.org/dc/elements/1.1/">
  <opensearch:totalResults>27</opensearch:totalResults>
  <entry>
    <dc:identifier>SCOPUS_ID:85011111111</dc:identifier>
    <dc:title>Sliding Window Admission Control</dc:title>
    <citedby-count>43</citedby-count>
    <author seq="1">
      <authid>7004212771</authid>
      <authname>Cote A.</authname>
      <author-url>https://api.elsevier.com/content/author/author_id/7004212771</author-url>
      <afid>60025272</afid>
    </author>
  </entry>
</search-results>`

func authorDocXML(id, afid, dept string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<author-retrieval-response xmlns="http://www.elsevier.com/xml/svapi/author/dtd" xmlns:dc="http://purl.org/dc/elements/1.1/">
  <coredata>
    <dc:identifier>AUTHOR_ID:%s</dc:identifier>
  </coredata>
  <author-profile>
    <preferred-name>
      <indexed-name>Author %s</indexed-name>
      <surname>Surname</surname>
      <given-name>Given</given-name>
    </preferred-name>
    <affiliation-current>
      <affiliation affiliation-id="%s">
        <ip-doc>
          <preferred-name>%s</preferred-name>
        </ip-doc>
      </affiliation>
    </affiliation-current>
  </author-profile>
</author-retrieval-response>`, id, id, afid, dept)
}

var harvestAffiliations = []domain.AffiliationEntry{
	{Name: "Department of Biochemistry", ID: "60025272"},
	{Name: "Laurier Institute", ID: "60000001"},
}

// fakeClient serves canned pages and author documents while recording the
// arguments it was called with.
type fakeClient struct {
	mu sync.Mutex

	pageSet   *fetch.PageSet
	searchErr error
	// authorDocs maps author id to document body; missing ids become
	// fetch-level failures, mirroring the live client's partitioning.
	authorDocs map[string]string
	batchErr   error

	searchCalls       int
	profileCalls      int
	gotAffiliationIDs []string
	gotYearFloor      int
	gotAuthorIDs      []string
}

func (c *fakeClient) SearchPages(_ context.Context, affiliationIDs []string, yearFloor int) (*fetch.PageSet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.searchCalls++
	c.gotAffiliationIDs = affiliationIDs
	c.gotYearFloor = yearFloor
	if c.searchErr != nil {
		return nil, c.searchErr
	}
	return c.pageSet, nil
}

func (c *fakeClient) FetchAuthorProfiles(_ context.Context, authorIDs []string) (*fetch.BatchResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.profileCalls++
	c.gotAuthorIDs = authorIDs
	if c.batchErr != nil {
		return nil, c.batchErr
	}

	result := &fetch.BatchResult{}
	for _, id := range authorIDs {
		body, ok := c.authorDocs[id]
		if !ok {
			result.Failed = append(result.Failed, fetch.KeyFailure{Key: id, Reason: "status 404"})
			continue
		}
		result.Documents = append(result.Documents, fetch.RawDocument{Key: id, Body: []byte(body)})
	}
	return result, nil
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []domain.HarvestEvent
	err    error
}

func (p *capturingPublisher) Publish(_ context.Context, event domain.HarvestEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *capturingPublisher) Close() error { return nil }

func (p *capturingPublisher) captured() []domain.HarvestEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.HarvestEvent{}, p.events...)
}

type statusRecorder struct {
	mu       sync.Mutex
	statuses []domain.RunStatus
}

func (r *statusRecorder) SetStatus(_ string, status domain.RunStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
}

func (r *statusRecorder) recorded() []domain.RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.RunStatus{}, r.statuses...)
}

func twoPageClient() *fakeClient {
	return &fakeClient{
		pageSet: &fetch.PageSet{
			Pages: []fetch.RawPage{
				{Offset: 0, Body: []byte(harvestPage0XML)},
				{Offset: 25, Body: []byte(harvestPage25XML)},
			},
			Total: 27,
		},
		authorDocs: map[string]string{
			"7004212771": authorDocXML("7004212771", "60025272", "Department of Biochemistry"),
			"7005203078": authorDocXML("7005203078", "60000001", "Laurier Institute"),
		},
	}
}

func TestNew(t *testing.T) {
	h := New(&fakeClient{})
	assert.NotNil(t, h.publisher)
	assert.Nil(t, h.metrics)
	assert.Nil(t, h.status)
}

func TestHarvester_Run(t *testing.T) {
	t.Run("correlates works and authors across pages", func(t *testing.T) {
		client := twoPageClient()
		publisher := &capturingPublisher{}
		status := &statusRecorder{}
		h := New(client, WithPublisher(publisher), WithStatusReporter(status))

		result, err := h.Run(context.Background(), "run-1", Request{
			Affiliations: harvestAffiliations,
			YearFloor:    2015,
		})
		require.NoError(t, err)

		assert.Equal(t, []string{"60025272", "60000001"}, client.gotAffiliationIDs)
		assert.Equal(t, 2015, client.gotYearFloor)

		assert.Equal(t, 27, result.TotalResults)
		require.Len(t, result.Works, 3)
		assert.Equal(t, "85011111111", result.Works[0].WorkID)
		assert.Equal(t, "85022222222", result.Works[1].WorkID)
		assert.Equal(t, "85033333333", result.Works[2].WorkID)

		assert.Equal(t, "Sliding Window Admission Control", result.Works[0].Fields["title"])
		assert.Equal(t, "Journal of Protocol Engineering", result.Works[0].Fields["publicationName"])
		require.NotNil(t, result.Works[0].CitedByCount)
		assert.Equal(t, 42, *result.Works[0].CitedByCount)
		assert.Equal(t, []string{"Cote A.", "Visitor V."}, result.Works[0].AuthorNames)
		assert.Nil(t, result.Works[1].CitedByCount)

		assert.Equal(t, []string{
			"https://api.elsevier.com/content/author/author_id/7004212771",
		}, result.WorkAuthors["85011111111"])
		assert.Equal(t, []string{}, result.WorkAuthors["85022222222"])
		assert.Equal(t, []string{
			"https://api.elsevier.com/content/author/author_id/7004212771",
			"https://api.elsevier.com/content/author/author_id/7005203078",
		}, result.WorkAuthors["85033333333"])
		assert.Equal(t, []string{"85011111111", "85033333333"}, result.AuthorWorks["7004212771"])
		assert.Equal(t, []string{"85033333333"}, result.AuthorWorks["7005203078"])

		assert.Equal(t, []string{"7004212771", "7005203078"}, client.gotAuthorIDs)
		require.Len(t, result.Authors, 2)
		assert.Equal(t, domain.AuthorProfile{
			AuthorID:    "7004212771",
			IndexedName: "Author 7004212771",
			Surname:     "Surname",
			GivenName:   "Given",
			Departments: []domain.Department{
				{Name: "Department of Biochemistry", Kind: domain.DepartmentKindCurrent},
			},
		}, result.Authors[0])
		assert.Equal(t, "7005203078", result.Authors[1].AuthorID)

		assert.True(t, result.Clean())
		assert.Greater(t, result.Duration, time.Duration(0))
		assert.Equal(t, []domain.RunStatus{domain.RunStatusSearching, domain.RunStatusProfiling}, status.recorded())

		events := publisher.captured()
		require.Len(t, events, 2)
		assert.Equal(t, domain.EventTypeHarvestStarted, events[0].EventType)
		assert.Equal(t, []string{"60025272", "60000001"}, events[0].AffiliationIDs)
		assert.Equal(t, 2015, events[0].YearFloor)
		assert.Equal(t, domain.EventTypeHarvestCompleted, events[1].EventType)
		assert.Equal(t, 27, events[1].TotalResults)
		assert.Equal(t, 3, events[1].Works)
		assert.Equal(t, 2, events[1].Authors)
		assert.Zero(t, events[1].FailedPages)
	})

	t.Run("requires an affiliation with an id", func(t *testing.T) {
		client := twoPageClient()
		h := New(client)

		_, err := h.Run(context.Background(), "run-1", Request{})
		require.ErrorIs(t, err, domain.ErrInvalidInput)

		_, err = h.Run(context.Background(), "run-1", Request{
			Affiliations: []domain.AffiliationEntry{{Name: "No ID"}},
		})
		require.ErrorIs(t, err, domain.ErrInvalidInput)
		assert.Zero(t, client.searchCalls)
	})

	t.Run("priming failure aborts the run", func(t *testing.T) {
		client := twoPageClient()
		client.searchErr = fmt.Errorf("%w: offset 0: status 500", domain.ErrPrimingFetch)
		publisher := &capturingPublisher{}
		h := New(client, WithPublisher(publisher))

		_, err := h.Run(context.Background(), "run-1", Request{Affiliations: harvestAffiliations})
		require.ErrorIs(t, err, domain.ErrPrimingFetch)
		assert.Contains(t, err.Error(), "searching works")
		assert.Zero(t, client.profileCalls)

		events := publisher.captured()
		require.Len(t, events, 2)
		assert.Equal(t, domain.EventTypeHarvestStarted, events[0].EventType)
		assert.Equal(t, domain.EventTypeHarvestFailed, events[1].EventType)
		assert.NotEmpty(t, events[1].Error)
	})

	t.Run("failed and malformed pages are partitioned", func(t *testing.T) {
		client := twoPageClient()
		client.pageSet = &fetch.PageSet{
			Pages: []fetch.RawPage{
				{Offset: 0, Body: []byte(harvestPage0XML)},
				{Offset: 25, Body: []byte("<search-results")},
			},
			Total:  77,
			Failed: []domain.PageFailure{{Offset: 50, Reason: "status 502"}},
		}
		h := New(client)

		result, err := h.Run(context.Background(), "run-1", Request{Affiliations: harvestAffiliations})
		require.NoError(t, err)

		assert.False(t, result.Clean())
		require.Len(t, result.FailedPages, 2)
		assert.Equal(t, 25, result.FailedPages[0].Offset)
		assert.Contains(t, result.FailedPages[0].Reason, "search page")
		assert.Equal(t, domain.PageFailure{Offset: 50, Reason: "status 502"}, result.FailedPages[1])

		require.Len(t, result.Works, 2)
		assert.Equal(t, []int{25, 50}, result.FailedOffsets())
	})

	t.Run("duplicate work id takes the last record", func(t *testing.T) {
		client := twoPageClient()
		client.pageSet = &fetch.PageSet{
			Pages: []fetch.RawPage{
				{Offset: 0, Body: []byte(harvestPage0XML)},
				{Offset: 25, Body: []byte(harvestPage25DupXML)},
			},
			Total: 27,
		}
		h := New(client)

		result, err := h.Run(context.Background(), "run-1", Request{Affiliations: harvestAffiliations})
		require.NoError(t, err)

		require.Len(t, result.Works, 2)
		assert.Equal(t, "85011111111", result.Works[0].WorkID)
		require.NotNil(t, result.Works[0].CitedByCount)
		assert.Equal(t, 43, *result.Works[0].CitedByCount)

		assert.Equal(t, []string{
			"https://api.elsevier.com/content/author/author_id/7004212771",
		}, result.WorkAuthors["85011111111"])
		assert.Equal(t, []string{"85011111111"}, result.AuthorWorks["7004212771"])
	})

	t.Run("author failures are partitioned", func(t *testing.T) {
		client := twoPageClient()
		delete(client.authorDocs, "7005203078")
		client.authorDocs["7004212771"] = "<author-retrieval"
		h := New(client)

		result, err := h.Run(context.Background(), "run-1", Request{Affiliations: harvestAffiliations})
		require.NoError(t, err)

		assert.Empty(t, result.Authors)
		require.Len(t, result.FailedAuthors, 2)
		assert.Equal(t, "7004212771", result.FailedAuthors[0].AuthorID)
		assert.Contains(t, result.FailedAuthors[0].Reason, "author profile")
		assert.Equal(t, domain.AuthorFailure{AuthorID: "7005203078", Reason: "status 404"}, result.FailedAuthors[1])
		assert.False(t, result.Clean())
	})

	t.Run("profile phase skipped when nothing matched", func(t *testing.T) {
		client := twoPageClient()
		h := New(client)

		result, err := h.Run(context.Background(), "run-1", Request{
			Affiliations: []domain.AffiliationEntry{{Name: "Elsewhere", ID: "60777777"}},
		})
		require.NoError(t, err)

		assert.Zero(t, client.profileCalls)
		assert.NotNil(t, result.Authors)
		assert.Empty(t, result.Authors)
		require.Len(t, result.Works, 3)
		assert.Equal(t, []string{}, result.WorkAuthors["85011111111"])
	})

	t.Run("profile fetch error aborts the run", func(t *testing.T) {
		client := twoPageClient()
		client.batchErr = context.Canceled
		h := New(client)

		_, err := h.Run(context.Background(), "run-1", Request{Affiliations: harvestAffiliations})
		require.ErrorIs(t, err, context.Canceled)
		assert.Contains(t, err.Error(), "fetching author profiles")
	})

	t.Run("dump directory receives raw documents", func(t *testing.T) {
		client := twoPageClient()
		h := New(client)
		dir := t.TempDir()

		_, err := h.Run(context.Background(), "run-1", Request{
			Affiliations: harvestAffiliations,
			DumpDir:      dir,
		})
		require.NoError(t, err)

		store := pagestore.New(dir)
		pages, err := store.LoadPages()
		require.NoError(t, err)
		require.Len(t, pages, 2)
		assert.Equal(t, harvestPage0XML, string(pages[0].Body))

		docs, err := store.LoadAuthors()
		require.NoError(t, err)
		assert.Len(t, docs, 2)
	})

	t.Run("publish failures never fail the run", func(t *testing.T) {
		client := twoPageClient()
		publisher := &capturingPublisher{err: fmt.Errorf("broker unreachable")}
		h := New(client, WithPublisher(publisher))

		result, err := h.Run(context.Background(), "run-1", Request{Affiliations: harvestAffiliations})
		require.NoError(t, err)
		assert.True(t, result.Clean())
	})
}

func TestHarvester_RunMetrics(t *testing.T) {
	metrics := observability.NewMetrics("harvest_run_metrics_test")
	client := twoPageClient()
	h := New(client, WithMetrics(metrics))

	_, err := h.Run(context.Background(), "run-1", Request{Affiliations: harvestAffiliations})
	require.NoError(t, err)

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.HarvestsStarted))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.HarvestsCompleted))
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.HarvestsFailed))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.PagesFetched))
	assert.Equal(t, float64(3), testutil.ToFloat64(metrics.WorksExtracted))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.AuthorLinksMatched))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.ProfilesExtracted))
}

func TestHarvester_Replay(t *testing.T) {
	t.Run("rebuilds the result from a dump", func(t *testing.T) {
		dir := t.TempDir()
		live := twoPageClient()
		h := New(live)
		_, err := h.Run(context.Background(), "run-live", Request{
			Affiliations: harvestAffiliations,
			DumpDir:      dir,
		})
		require.NoError(t, err)

		offline := New(&fakeClient{})
		result, err := offline.Replay(context.Background(), "run-replay", dir, harvestAffiliations)
		require.NoError(t, err)

		assert.Equal(t, 27, result.TotalResults)
		require.Len(t, result.Works, 3)
		assert.Equal(t, "85011111111", result.Works[0].WorkID)
		require.Len(t, result.Authors, 2)
		assert.Equal(t, "7004212771", result.Authors[0].AuthorID)
		assert.True(t, result.Clean())
	})

	t.Run("missing author document lands in the partition", func(t *testing.T) {
		dir := t.TempDir()
		store := pagestore.New(dir)
		require.NoError(t, store.SavePage(0, []byte(harvestPage0XML)))
		require.NoError(t, store.SavePage(25, []byte(harvestPage25XML)))
		require.NoError(t, store.SaveAuthor("7004212771",
			[]byte(authorDocXML("7004212771", "60025272", "Department of Biochemistry"))))

		h := New(&fakeClient{})
		result, err := h.Replay(context.Background(), "run-replay", dir, harvestAffiliations)
		require.NoError(t, err)

		require.Len(t, result.Authors, 1)
		require.Len(t, result.FailedAuthors, 1)
		assert.Equal(t, domain.AuthorFailure{
			AuthorID: "7005203078",
			Reason:   "author document not in store",
		}, result.FailedAuthors[0])
	})

	t.Run("missing directory", func(t *testing.T) {
		h := New(&fakeClient{})
		_, err := h.Replay(context.Background(), "run-replay", t.TempDir()+"/absent", harvestAffiliations)
		require.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("store without pages", func(t *testing.T) {
		dir := t.TempDir()
		store := pagestore.New(dir)
		require.NoError(t, store.SaveAuthor("7004212771", []byte("<author/>")))

		h := New(&fakeClient{})
		_, err := h.Replay(context.Background(), "run-replay", dir, harvestAffiliations)
		require.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("requires an affiliation with an id", func(t *testing.T) {
		h := New(&fakeClient{})
		_, err := h.Replay(context.Background(), "run-replay", t.TempDir(), nil)
		require.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}
