package arxiv

import (
	"fmt"
	"strings"
	"time"
)

// queryDateLayout is the compact date form arXiv expects inside
// submittedDate ranges.
const queryDateLayout = "20060102"

// FormatDateForQuery renders date as YYYYMMDD using its own calendar fields.
// No time zone conversion is applied.
func FormatDateForQuery(date time.Time) string {
	return date.Format(queryDateLayout)
}

// BuildDateRangeQuery returns a submittedDate filter covering every minute of
// start's day through the last minute of end's day. A start after end is not
// rejected; arXiv simply matches nothing.
func BuildDateRangeQuery(start, end time.Time) string {
	return fmt.Sprintf("submittedDate:[%s0000 TO %s2359]",
		FormatDateForQuery(start), FormatDateForQuery(end))
}

// BuildCategoryFilter returns the cat: filter for category, or "" when
// category is blank.
func BuildCategoryFilter(category string) string {
	category = strings.TrimSpace(category)
	if category == "" {
		return ""
	}
	return "cat:" + category
}

// And conjoins the non-empty filters with arXiv's AND operator.
func And(filters ...string) string {
	parts := make([]string, 0, len(filters))
	for _, f := range filters {
		if f = strings.TrimSpace(f); f != "" {
			parts = append(parts, f)
		}
	}
	return strings.Join(parts, " AND ")
}
