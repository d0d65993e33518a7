package papers

import (
	"time"

	"github.com/arxivist/arxivist-backend/internal/domain"
	"github.com/arxivist/arxivist-backend/internal/papersources"
)

// ToPaper maps a provider record into the public Paper schema.
//
// Updated is left nil when the provider's revision timestamp equals the
// publication timestamp. Authors and Categories are never nil.
func ToPaper(rec *papersources.Record) domain.Paper {
	authors := make([]string, len(rec.Authors))
	copy(authors, rec.Authors)

	categories := make([]string, len(rec.Categories))
	copy(categories, rec.Categories)

	var updated *time.Time
	if !rec.Updated.IsZero() && !rec.Updated.Equal(rec.Published) {
		u := rec.Updated
		updated = &u
	}

	return domain.Paper{
		ArxivID:    domain.ArxivIDFromEntryID(rec.EntryID),
		Title:      rec.Title,
		Summary:    rec.Abstract,
		Authors:    authors,
		Published:  rec.Published,
		Updated:    updated,
		PDFURL:     rec.PDFURL,
		Categories: categories,
		EntryID:    rec.EntryID,
	}
}
