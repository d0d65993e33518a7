package arxiv

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arxivist/arxivist-backend/internal/domain"
	"github.com/arxivist/arxivist-backend/internal/papersources"
)

// ---------------------------------------------------------------------------
// Atom fixtures
// ---------------------------------------------------------------------------

const sampleEntryXML = `<entry>
    <id>http://arxiv.org/abs/2401.00001v2</id>
    <updated>2024-01-03T09:00:00Z</updated>
    <published>2024-01-01T18:30:00Z</published>
    <title>Attention Is
      Still All You Need</title>
    <summary>  We revisit
      transformers.  </summary>
    <author><name>Ada Lovelace</name></author>
    <author><name> Alan Turing </name></author>
    <arxiv:doi xmlns:arxiv="http://arxiv.org/schemas/atom">10.1234/example</arxiv:doi>
    <arxiv:comment xmlns:arxiv="http://arxiv.org/schemas/atom">12 pages</arxiv:comment>
    <link href="http://arxiv.org/abs/2401.00001v2" rel="alternate" type="text/html"/>
    <link title="pdf" href="http://arxiv.org/pdf/2401.00001v2" rel="related" type="application/pdf"/>
    <arxiv:primary_category xmlns:arxiv="http://arxiv.org/schemas/atom" term="cs.AI" scheme="http://arxiv.org/schemas/atom"/>
    <category term="cs.AI" scheme="http://arxiv.org/schemas/atom"/>
    <category term="cs.LG" scheme="http://arxiv.org/schemas/atom"/>
  </entry>`

const errorFeedXML = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <opensearch:totalResults xmlns:opensearch="http://a9.com/-/spec/opensearch/1.1/">1</opensearch:totalResults>
  <entry>
    <id>http://arxiv.org/api/errors#incorrect_id_format_for_not-an-id</id>
    <title>Error</title>
    <summary>incorrect id format for not-an-id</summary>
    <updated>2024-01-01T00:00:00-05:00</updated>
  </entry>
</feed>`

func feedXML(total, start int, entries ...string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <opensearch:totalResults xmlns:opensearch="http://a9.com/-/spec/opensearch/1.1/">%d</opensearch:totalResults>
  <opensearch:startIndex xmlns:opensearch="http://a9.com/-/spec/opensearch/1.1/">%d</opensearch:startIndex>
  <opensearch:itemsPerPage xmlns:opensearch="http://a9.com/-/spec/opensearch/1.1/">%d</opensearch:itemsPerPage>
  %s
</feed>`, total, start, len(entries), strings.Join(entries, "\n"))
}

// numberedEntry returns an entry whose publication time decreases with n so
// that a descending feed is produced by increasing n.
func numberedEntry(n int) string {
	published := time.Date(2024, 1, 1, 23, 0, 0, 0, time.UTC).Add(-time.Duration(n) * time.Minute)
	return fmt.Sprintf(`<entry>
    <id>http://arxiv.org/abs/2401.%05dv1</id>
    <published>%s</published>
    <updated>%s</updated>
    <title>Paper %d</title>
    <summary>Abstract %d</summary>
    <author><name>Author %d</name></author>
    <category term="cs.AI"/>
  </entry>`, n, published.Format(time.RFC3339), published.Format(time.RFC3339), n, n, n)
}

// fakeArxiv serves a fixed corpus of total records honoring start and
// max_results. Pages listed in emptyAt come back empty emptyTimes times.
type fakeArxiv struct {
	mu         sync.Mutex
	total      int
	emptyAt    map[int]int
	requests   []*http.Request
	statusCode int
}

func (f *fakeArxiv) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.requests = append(f.requests, r)
	f.mu.Unlock()

	if f.statusCode != 0 {
		w.WriteHeader(f.statusCode)
		_, _ = w.Write([]byte("upstream exploded"))
		return
	}

	start, _ := strconv.Atoi(r.URL.Query().Get("start"))
	size, _ := strconv.Atoi(r.URL.Query().Get("max_results"))

	f.mu.Lock()
	if remaining, ok := f.emptyAt[start]; ok && remaining != 0 {
		if remaining > 0 {
			f.emptyAt[start] = remaining - 1
		}
		f.mu.Unlock()
		_, _ = w.Write([]byte(feedXML(f.total, start)))
		return
	}
	f.mu.Unlock()

	var entries []string
	for i := start; i < start+size && i < f.total; i++ {
		entries = append(entries, numberedEntry(i))
	}
	_, _ = w.Write([]byte(feedXML(f.total, start, entries...)))
}

func (f *fakeArxiv) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeArxiv) request(i int) *http.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[i]
}

func newTestClient(t *testing.T, handler http.Handler, cfg Config) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg.BaseURL = server.URL + "/api"
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Millisecond
	}
	httpClient := papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Name:       SourceName,
		RateLimit:  1000,
		BurstSize:  100,
		MaxRetries: -1,
	})
	return NewWithHTTPClient(cfg, httpClient, zerolog.Nop())
}

func drainCursor(t *testing.T, cur papersources.Cursor) ([]papersources.Record, error) {
	t.Helper()
	var out []papersources.Record
	for {
		rec, err := cur.Next()
		if err != nil {
			return out, err
		}
		out = append(out, *rec)
	}
}

// ---------------------------------------------------------------------------
// Config
// ---------------------------------------------------------------------------

func TestConfig_ApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.applyDefaults()

	assert.Equal(t, DefaultBaseURL, cfg.BaseURL)
	assert.Equal(t, DefaultTimeout, cfg.Timeout)
	assert.Equal(t, DefaultRateLimit, cfg.RateLimit)
	assert.Equal(t, DefaultBurstSize, cfg.BurstSize)
	assert.Equal(t, DefaultPageSize, cfg.PageSize)
	assert.Equal(t, DefaultEmptyPageRetries, cfg.EmptyPageRetries)

	cfg = Config{PageSize: 5000, EmptyPageRetries: -1}
	cfg.applyDefaults()
	assert.Equal(t, MaxPageSize, cfg.PageSize)
	assert.Equal(t, 0, cfg.EmptyPageRetries)
}

// ---------------------------------------------------------------------------
// Query URL
// ---------------------------------------------------------------------------

func TestClient_BuildQueryURL(t *testing.T) {
	c := NewWithHTTPClient(Config{BaseURL: "https://export.arxiv.org/api/"}, nil, zerolog.Nop())

	t.Run("filter with sorting", func(t *testing.T) {
		raw, err := c.buildQueryURL(papersources.Query{
			Filter:    "submittedDate:[202401010000 TO 202401012359] AND cat:cs.AI",
			SortBy:    papersources.SortBySubmittedDate,
			SortOrder: papersources.SortDescending,
		}, 100, 50)
		require.NoError(t, err)

		assert.True(t, strings.HasPrefix(raw, "https://export.arxiv.org/api/query?"))
		req := httptest.NewRequest(http.MethodGet, raw, nil)
		q := req.URL.Query()
		assert.Equal(t, "submittedDate:[202401010000 TO 202401012359] AND cat:cs.AI", q.Get("search_query"))
		assert.Equal(t, "100", q.Get("start"))
		assert.Equal(t, "50", q.Get("max_results"))
		assert.Equal(t, "submittedDate", q.Get("sortBy"))
		assert.Equal(t, "descending", q.Get("sortOrder"))
		assert.Empty(t, q.Get("id_list"))
	})

	t.Run("id list without filter", func(t *testing.T) {
		raw, err := c.buildQueryURL(papersources.Query{IDList: []string{"2401.00001", "hep-th/9901001"}}, 0, 1)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, raw, nil)
		q := req.URL.Query()
		assert.Equal(t, "2401.00001,hep-th/9901001", q.Get("id_list"))
		assert.False(t, q.Has("search_query"))
		assert.False(t, q.Has("sortBy"))
	})
}

// ---------------------------------------------------------------------------
// Entry mapping
// ---------------------------------------------------------------------------

func TestEntryToRecord(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(feedXML(1, 0, sampleEntryXML)))
	})
	c := newTestClient(t, handler, Config{})

	recs, err := drainCursor(t, c.Results(context.Background(), papersources.Query{IDList: []string{"2401.00001"}, MaxResults: 1}))
	require.ErrorIs(t, err, papersources.Done)
	require.Len(t, recs, 1)

	rec := recs[0]
	assert.Equal(t, "http://arxiv.org/abs/2401.00001v2", rec.EntryID)
	assert.Equal(t, "Attention Is Still All You Need", rec.Title)
	assert.Equal(t, "We revisit transformers.", rec.Abstract)
	assert.Equal(t, []string{"Ada Lovelace", "Alan Turing"}, rec.Authors)
	assert.Equal(t, time.Date(2024, 1, 1, 18, 30, 0, 0, time.UTC), rec.Published.UTC())
	assert.Equal(t, time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC), rec.Updated.UTC())
	assert.Equal(t, "http://arxiv.org/pdf/2401.00001v2", rec.PDFURL)
	assert.Equal(t, []string{"cs.AI", "cs.LG"}, rec.Categories)
	assert.Equal(t, "cs.AI", rec.PrimaryCategory)
	assert.Equal(t, "10.1234/example", rec.DOI)
	assert.Equal(t, "12 pages", rec.Comment)
}

func TestEntryToRecord_Fallbacks(t *testing.T) {
	t.Run("missing pdf link and updated", func(t *testing.T) {
		rec := entryToRecord(&Entry{
			ID:        "http://arxiv.org/abs/2401.00002v1",
			Published: "2024-01-02T00:00:00Z",
		})
		require.NotNil(t, rec)
		assert.Equal(t, "http://arxiv.org/pdf/2401.00002v1", rec.PDFURL)
		assert.True(t, rec.Updated.Equal(rec.Published))
		assert.NotNil(t, rec.Categories)
		assert.Empty(t, rec.Categories)
	})

	t.Run("missing id is skipped", func(t *testing.T) {
		assert.Nil(t, entryToRecord(&Entry{Published: "2024-01-02T00:00:00Z"}))
	})

	t.Run("unparseable published is skipped", func(t *testing.T) {
		assert.Nil(t, entryToRecord(&Entry{ID: "http://arxiv.org/abs/x", Published: "yesterday"}))
	})
}

// ---------------------------------------------------------------------------
// Cursor paging
// ---------------------------------------------------------------------------

func TestCursor_PagesUntilCap(t *testing.T) {
	fake := &fakeArxiv{total: 500}
	c := newTestClient(t, fake, Config{PageSize: 100})

	recs, err := drainCursor(t, c.Results(context.Background(), papersources.Query{Filter: "cat:cs.AI", MaxResults: 250}))

	require.ErrorIs(t, err, papersources.Done)
	assert.Len(t, recs, 250)
	assert.Equal(t, 3, fake.requestCount())
	assert.Equal(t, "0", fake.request(0).URL.Query().Get("start"))
	assert.Equal(t, "100", fake.request(1).URL.Query().Get("start"))
	assert.Equal(t, "200", fake.request(2).URL.Query().Get("start"))
	assert.Equal(t, "50", fake.request(2).URL.Query().Get("max_results"), "last page asks only for the remainder")
	assert.Equal(t, "/api/query", fake.request(0).URL.Path)
}

func TestCursor_StopsAtTotalResults(t *testing.T) {
	fake := &fakeArxiv{total: 130}
	c := newTestClient(t, fake, Config{PageSize: 100})

	recs, err := drainCursor(t, c.Results(context.Background(), papersources.Query{Filter: "cat:cs.AI", MaxResults: 2000}))

	require.ErrorIs(t, err, papersources.Done)
	assert.Len(t, recs, 130)
	assert.Equal(t, 2, fake.requestCount())
	assert.Equal(t, "30", fake.request(1).URL.Query().Get("max_results"))
}

func TestCursor_IsLazy(t *testing.T) {
	fake := &fakeArxiv{total: 500}
	c := newTestClient(t, fake, Config{PageSize: 10})

	cur := c.Results(context.Background(), papersources.Query{MaxResults: 100})
	assert.Equal(t, 0, fake.requestCount(), "no request before Next")

	for i := 0; i < 10; i++ {
		_, err := cur.Next()
		require.NoError(t, err)
	}
	assert.Equal(t, 1, fake.requestCount())

	_, err := cur.Next()
	require.NoError(t, err)
	assert.Equal(t, 2, fake.requestCount())
}

func TestCursor_EmptyFirstPageIsDone(t *testing.T) {
	fake := &fakeArxiv{total: 0}
	c := newTestClient(t, fake, Config{})

	cur := c.Results(context.Background(), papersources.Query{IDList: []string{"2511.11570"}, MaxResults: 1})
	rec, err := cur.Next()

	assert.Nil(t, rec)
	assert.ErrorIs(t, err, papersources.Done)

	_, err = cur.Next()
	assert.ErrorIs(t, err, papersources.Done, "terminal condition is sticky")
	assert.Equal(t, 1, fake.requestCount())
}

func TestCursor_UnexpectedEmptyPage(t *testing.T) {
	fake := &fakeArxiv{total: 300, emptyAt: map[int]int{100: -1}}
	c := newTestClient(t, fake, Config{PageSize: 100, EmptyPageRetries: 2})

	recs, err := drainCursor(t, c.Results(context.Background(), papersources.Query{MaxResults: 300}))

	require.Error(t, err)
	assert.ErrorIs(t, err, papersources.ErrUnexpectedEmptyPage)
	var emptyErr *papersources.UnexpectedEmptyPageError
	require.True(t, errors.As(err, &emptyErr))
	assert.Equal(t, 100, emptyErr.Start)
	assert.Len(t, recs, 100, "records before the empty page are still yielded")
	assert.Equal(t, 4, fake.requestCount(), "one page plus the empty page and two retries")
}

func TestCursor_EmptyPageRecoversOnRetry(t *testing.T) {
	fake := &fakeArxiv{total: 150, emptyAt: map[int]int{100: 1}}
	c := newTestClient(t, fake, Config{PageSize: 100, EmptyPageRetries: 2})

	recs, err := drainCursor(t, c.Results(context.Background(), papersources.Query{MaxResults: 150}))

	require.ErrorIs(t, err, papersources.Done)
	assert.Len(t, recs, 150)
}

func TestCursor_APIErrorEntry(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(errorFeedXML))
	})
	c := newTestClient(t, handler, Config{})

	_, err := c.Results(context.Background(), papersources.Query{IDList: []string{"not-an-id"}, MaxResults: 1}).Next()

	require.Error(t, err)
	var apiErr *domain.ExternalAPIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "incorrect id format for not-an-id", apiErr.Message)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestCursor_NonOKStatus(t *testing.T) {
	fake := &fakeArxiv{statusCode: http.StatusBadRequest}
	c := newTestClient(t, fake, Config{})

	_, err := c.Results(context.Background(), papersources.Query{Filter: "cat:cs.AI", MaxResults: 5}).Next()

	require.Error(t, err)
	assert.NotErrorIs(t, err, papersources.Done)
	var apiErr *domain.ExternalAPIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "upstream exploded", apiErr.Message)
}

func TestCursor_MalformedXML(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<feed><entry>"))
	})
	c := newTestClient(t, handler, Config{})

	_, err := c.Results(context.Background(), papersources.Query{Filter: "cat:cs.AI"}).Next()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding response")
}

func TestCursor_DefaultCapIsOnePage(t *testing.T) {
	fake := &fakeArxiv{total: 500}
	c := newTestClient(t, fake, Config{PageSize: 20})

	recs, err := drainCursor(t, c.Results(context.Background(), papersources.Query{}))

	require.ErrorIs(t, err, papersources.Done)
	assert.Len(t, recs, 20)
}

func TestErrorType(t *testing.T) {
	assert.Equal(t, "rate_limited", errorType(domain.NewRateLimitError(SourceName, time.Second)))
	assert.Equal(t, "status_503", errorType(domain.NewExternalAPIError(SourceName, 503, "", nil)))
	assert.Equal(t, "timeout", errorType(fmt.Errorf("executing request: %w", context.DeadlineExceeded)))
	assert.Equal(t, "decode", errorType(errors.New("decoding response: EOF")))
	assert.Equal(t, "network", errorType(errors.New("dial tcp: refused")))
}
