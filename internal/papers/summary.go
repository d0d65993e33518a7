package papers

import (
	"fmt"
	"strings"

	"github.com/arxivist/arxivist-backend/internal/domain"
)

// SummaryFunc produces the AISummary attached to a paper detail. Any
// implementation may be substituted, including one backed by a model.
type SummaryFunc func(domain.Paper) domain.AISummary

// TemplateSummary fills the four summary sections from the paper's title and
// categories. It is deterministic and makes no external calls.
func TemplateSummary(p domain.Paper) domain.AISummary {
	field := "its field"
	if len(p.Categories) > 0 {
		field = p.Categories[0]
	}
	areas := "no listed categories"
	if len(p.Categories) > 0 {
		areas = strings.Join(p.Categories, ", ")
	}

	return domain.AISummary{
		Overview: fmt.Sprintf("%q is an arXiv paper in %s.", p.Title, field),
		Background: fmt.Sprintf(
			"The work sits within %s and addresses open questions raised by prior research in %s.",
			areas, field),
		Methods: fmt.Sprintf(
			"The authors develop and analyze the approach described in %q using techniques common to %s.",
			p.Title, field),
		Results: fmt.Sprintf(
			"The paper reports findings relevant to %s; see the full text for quantitative results.",
			field),
	}
}
