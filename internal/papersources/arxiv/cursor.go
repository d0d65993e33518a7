package arxiv

import (
	"context"
	"time"

	"github.com/arxivist/arxivist-backend/internal/papersources"
)

// cursor walks arXiv result pages on demand.
type cursor struct {
	ctx    context.Context
	client *Client
	query  papersources.Query

	// limit is the total record cap; 0 means a single page's worth.
	limit int

	start   int // offset of the next page to request
	total   int // totalResults reported by the first page
	pages   int
	yielded int

	buf []papersources.Record
	pos int
	err error
}

func newCursor(ctx context.Context, c *Client, q papersources.Query) *cursor {
	limit := q.MaxResults
	if limit <= 0 {
		limit = c.config.PageSize
	}
	return &cursor{
		ctx:    ctx,
		client: c,
		query:  q,
		limit:  limit,
	}
}

// Next implements papersources.Cursor.
func (c *cursor) Next() (*papersources.Record, error) {
	if c.err != nil {
		return nil, c.err
	}

	for c.pos >= len(c.buf) {
		if err := c.advance(); err != nil {
			c.err = err
			c.buf = nil
			return nil, err
		}
	}

	rec := &c.buf[c.pos]
	c.pos++
	c.yielded++
	return rec, nil
}

// advance loads the next non-empty page into buf or returns the terminal
// condition.
func (c *cursor) advance() error {
	if c.yielded >= c.limit {
		return papersources.Done
	}
	if c.pages > 0 && c.start >= c.total {
		return papersources.Done
	}

	size := min(c.client.config.PageSize, c.limit-c.yielded)
	if c.pages > 0 {
		size = min(size, c.total-c.start)
	}

	pageURL, err := c.client.buildQueryURL(c.query, c.start, size)
	if err != nil {
		return err
	}

	feed, err := c.fetchWithEmptyRetry(pageURL)
	if err != nil {
		return err
	}

	first := c.pages == 0
	c.pages++
	if first {
		c.total = feed.TotalResults
	}

	if len(feed.Entries) == 0 {
		if first || c.start >= c.total {
			return papersources.Done
		}
		return &papersources.UnexpectedEmptyPageError{URL: pageURL, Start: c.start}
	}

	c.start += len(feed.Entries)

	records := make([]papersources.Record, 0, len(feed.Entries))
	for i := range feed.Entries {
		if rec := entryToRecord(&feed.Entries[i]); rec != nil {
			records = append(records, *rec)
		} else {
			c.client.logger.Debug().Str("entry_id", feed.Entries[i].ID).Msg("skipping malformed arXiv entry")
		}
	}
	if over := c.yielded + len(records) - c.limit; over > 0 {
		records = records[:len(records)-over]
	}

	c.buf = records
	c.pos = 0

	c.client.logger.Debug().
		Int("start", c.start-len(feed.Entries)).
		Int("entries", len(feed.Entries)).
		Int("total", c.total).
		Msg("fetched arXiv page")
	return nil
}

// fetchWithEmptyRetry re-requests a page that came back empty past the first
// page, since arXiv intermittently serves empty pages for valid offsets.
func (c *cursor) fetchWithEmptyRetry(pageURL string) (*Feed, error) {
	feed, err := c.client.fetchPage(c.ctx, pageURL)
	if err != nil || c.pages == 0 {
		return feed, err
	}

	for attempt := 1; len(feed.Entries) == 0 && attempt <= c.client.config.EmptyPageRetries; attempt++ {
		c.client.logger.Warn().
			Int("start", c.start).
			Int("attempt", attempt).
			Msg("arXiv returned an empty page, retrying")

		if err := sleepCtx(c.ctx, c.client.config.RetryDelay); err != nil {
			return nil, err
		}
		if feed, err = c.client.fetchPage(c.ctx, pageURL); err != nil {
			return nil, err
		}
	}
	return feed, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
