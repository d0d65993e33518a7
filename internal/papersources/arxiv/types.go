package arxiv

import (
	"encoding/xml"
	"strings"
)

// errorIDPrefix marks the pseudo-entry arXiv returns instead of an HTTP error
// when a query is malformed.
const errorIDPrefix = "http://arxiv.org/api/errors"

// Feed represents the Atom XML response from the arXiv API.
type Feed struct {
	XMLName      xml.Name `xml:"feed"`
	TotalResults int      `xml:"totalResults"`
	StartIndex   int      `xml:"startIndex"`
	ItemsPerPage int      `xml:"itemsPerPage"`
	Entries      []Entry  `xml:"entry"`
}

// apiError returns the error entry if the feed reports a query error.
func (f *Feed) apiError() *Entry {
	for i := range f.Entries {
		if f.Entries[i].isError() {
			return &f.Entries[i]
		}
	}
	return nil
}

// Entry represents a single arXiv paper in the Atom feed.
type Entry struct {
	ID              string     `xml:"id"`        // "http://arxiv.org/abs/2301.12345v1"
	Title           string     `xml:"title"`
	Summary         string     `xml:"summary"`   // abstract
	Published       string     `xml:"published"` // "2023-01-15T18:30:00Z"
	Updated         string     `xml:"updated"`
	Authors         []Author   `xml:"author"`
	Categories      []Category `xml:"category"`
	Links           []Link     `xml:"link"`
	DOI             string     `xml:"doi"`
	JournalRef      string     `xml:"journal_ref"`
	Comment         string     `xml:"comment"`
	PrimaryCategory Category   `xml:"primary_category"`
}

func (e *Entry) isError() bool {
	return strings.HasPrefix(strings.TrimSpace(e.ID), errorIDPrefix)
}

// Author is an author element. arXiv only guarantees the name.
type Author struct {
	Name string `xml:"name"`
}

// Category represents an arXiv subject category.
type Category struct {
	Term string `xml:"term,attr"`
}

// Link represents a link element in the Atom feed.
type Link struct {
	Href  string `xml:"href,attr"`
	Rel   string `xml:"rel,attr"`
	Type  string `xml:"type,attr"`
	Title string `xml:"title,attr"`
}
