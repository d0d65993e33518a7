package domain

import (
	"strings"
	"time"
)

// Paper is the normalized representation of one arXiv record.
type Paper struct {
	// ArxivID is the final path segment of EntryID, version suffix included.
	ArxivID string `json:"arxiv_id"`

	Title   string   `json:"title"`
	Summary string   `json:"summary"`
	Authors []string `json:"authors"`

	// Published is the first-submission timestamp. It is never zero.
	Published time.Time `json:"published"`

	// Updated is set only when the provider's revision timestamp differs
	// from Published.
	Updated *time.Time `json:"updated"`

	PDFURL string `json:"pdf_url"`

	// Categories is never nil so that it serializes as [] rather than null.
	Categories []string `json:"categories"`

	// EntryID is the provider's canonical URI for the record.
	EntryID string `json:"entry_id"`
}

// AISummary is a four-section synopsis attached to a single paper.
type AISummary struct {
	Overview   string `json:"overview"`
	Background string `json:"background"`
	Methods    string `json:"methods"`
	Results    string `json:"results"`
}

// PaperDetail is a Paper augmented with a generated summary.
// It is only produced by single-ID lookups.
type PaperDetail struct {
	Paper
	AISummary AISummary `json:"ai_summary"`
}

// ArxivIDFromEntryID returns the substring of entryID after its last '/'.
//
//	"http://arxiv.org/abs/2401.01234v1" -> "2401.01234v1"
//	"http://arxiv.org/abs/hep-th/9901001v1" -> "9901001v1"
func ArxivIDFromEntryID(entryID string) string {
	if i := strings.LastIndex(entryID, "/"); i >= 0 {
		return entryID[i+1:]
	}
	return entryID
}
