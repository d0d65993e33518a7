// Package papersources defines the boundary between the retrieval service and
// the upstream paper index.
//
// A Provider turns a Query into a lazy Cursor of native Records. Cursors fetch
// pages on demand, so a caller that stops early never pays for pages it did not
// read. The shared HTTP transport used by provider implementations (rate
// limiting and retries) also lives here.
//
// Example usage:
//
//	provider := arxiv.New(cfg)
//	cur := provider.Results(ctx, papersources.Query{
//		Filter:     "submittedDate:[202401010000 TO 202401012359] AND cat:cs.AI",
//		MaxResults: 5,
//		SortBy:     papersources.SortBySubmittedDate,
//		SortOrder:  papersources.SortDescending,
//	})
//	for {
//		rec, err := cur.Next()
//		if errors.Is(err, papersources.Done) {
//			break
//		}
//		...
//	}
package papersources

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Done is returned by Cursor.Next when no more records are available.
var Done = errors.New("no more records")

// ErrUnexpectedEmptyPage indicates that the provider returned an empty page
// before its advertised result count was reached.
var ErrUnexpectedEmptyPage = errors.New("unexpected empty page")

// UnexpectedEmptyPageError carries the request that produced the empty page.
type UnexpectedEmptyPageError struct {
	URL   string
	Start int
}

// Error implements the error interface.
func (e *UnexpectedEmptyPageError) Error() string {
	return fmt.Sprintf("unexpected empty page at offset %d: %s", e.Start, e.URL)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *UnexpectedEmptyPageError) Unwrap() error {
	return ErrUnexpectedEmptyPage
}

// SortBy names the field a provider orders results by.
type SortBy string

// SortOrder is the direction of a sort.
type SortOrder string

const (
	SortByRelevance       SortBy = "relevance"
	SortByLastUpdatedDate SortBy = "lastUpdatedDate"
	SortBySubmittedDate   SortBy = "submittedDate"

	SortAscending  SortOrder = "ascending"
	SortDescending SortOrder = "descending"
)

// Query describes one bounded retrieval.
type Query struct {
	// Filter is a provider filter expression. It may be empty when IDList is set.
	Filter string

	// IDList restricts results to the given provider identifiers.
	IDList []string

	// MaxResults caps the total number of records the cursor yields.
	// A value of 0 or less means the provider's own page size is the cap.
	MaxResults int

	SortBy    SortBy
	SortOrder SortOrder
}

// Record is the provider-native form of one paper.
type Record struct {
	// EntryID is the provider's canonical URI, e.g. "http://arxiv.org/abs/2401.01234v1".
	EntryID string

	Title    string
	Authors  []string
	Abstract string

	Published time.Time
	Updated   time.Time

	PDFURL     string
	Categories []string

	PrimaryCategory string
	Comment         string
	JournalRef      string
	DOI             string
}

// Cursor is a finite, non-restartable sequence of records.
// Cursors are not safe for concurrent use.
type Cursor interface {
	// Next returns the next record. It returns Done when the sequence is
	// exhausted, or an error wrapping ErrUnexpectedEmptyPage if the provider
	// stopped yielding records early. Any other error is a retrieval failure.
	// Once Next returns an error, every later call returns the same error.
	Next() (*Record, error)
}

// Provider is the upstream paper index.
type Provider interface {
	// Results returns a lazy cursor over the records matching q. No request is
	// made until the first call to Next.
	Results(ctx context.Context, q Query) Cursor

	// Name returns a human-readable name for this provider.
	// Used for logging, metrics, and error attribution.
	Name() string
}
