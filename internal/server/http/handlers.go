package httpserver

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/arxivist/arxivist-backend/internal/domain"
	"github.com/arxivist/arxivist-backend/internal/observability"
	"github.com/arxivist/arxivist-backend/internal/papers"
)

const dateLayout = "2006-01-02"

// Envelope messages. The list failure prefix is part of the public contract.
const (
	messageListFailed   = "获取论文失败"
	messageDetailFailed = "获取论文详情失败"
	messagePaperMissing = "论文未找到"
)

// categoryPattern accepts arXiv category codes such as "cs.AI", "math.NT",
// "hep-th" and "astro-ph.CO".
var categoryPattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z-]*(\.[a-zA-Z][a-zA-Z-]*)?$`)

// listPapersQuery holds the query parameters of the list endpoint.
type listPapersQuery struct {
	StartDate  string `validate:"omitempty,datetime=2006-01-02"`
	MaxResults int
	Category   string `validate:"omitempty,max=32,arxiv_category"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Registration only fails for an empty tag.
	_ = v.RegisterValidation("arxiv_category", func(fl validator.FieldLevel) bool {
		return categoryPattern.MatchString(fl.Field().String())
	})
	return v
}

// listPapers handles GET {prefix}/papers/.
// It returns papers submitted from start_date through today, newest first.
func (s *Server) listPapers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	today := s.papers.Today()

	params, err := s.parseListQuery(r, today)
	if err != nil {
		writeEnvelope(w, r, codeUnprocessable, err.Error(), nil)
		return
	}

	result, err := s.papers.FetchPapers(ctx, params)
	if err != nil {
		logger := observability.WithRequestContext(ctx, s.logger)
		logger.Error().Err(err).Msg("list papers failed")
		writeEnvelope(w, r, codeInternal, fmt.Sprintf("%s: %v", messageListFailed, err), nil)
		return
	}

	start := today
	if params.StartDate != nil {
		start = *params.StartDate
	}

	writeEnvelope(w, r, codeOK, messageOK, paperListData{
		Papers:    result,
		Total:     len(result),
		DateRange: dateRange(start, today),
	})
}

// parseListQuery validates the list query parameters and converts them into
// fetch parameters. The end of the window is always today.
func (s *Server) parseListQuery(r *http.Request, today time.Time) (papers.FetchParams, error) {
	values := r.URL.Query()
	q := listPapersQuery{
		StartDate:  strings.TrimSpace(values.Get("start_date")),
		MaxResults: s.cfg.DefaultResults,
		Category:   strings.TrimSpace(values.Get("category")),
	}

	if raw := strings.TrimSpace(values.Get("max_results")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return papers.FetchParams{}, domain.NewValidationError("max_results", "must be an integer")
		}
		q.MaxResults = n
	}

	if err := s.validate.Struct(q); err != nil {
		return papers.FetchParams{}, validationMessage(err)
	}
	if err := s.validate.Var(q.MaxResults, fmt.Sprintf("min=1,max=%d", s.cfg.MaxResults)); err != nil {
		return papers.FetchParams{}, domain.NewValidationError("max_results", fmt.Sprintf("must be between 1 and %d", s.cfg.MaxResults))
	}

	params := papers.FetchParams{
		EndDate:    &today,
		MaxResults: q.MaxResults,
		Category:   q.Category,
	}
	if q.StartDate != "" {
		start, err := time.ParseInLocation(dateLayout, q.StartDate, today.Location())
		if err != nil {
			return papers.FetchParams{}, domain.NewValidationError("start_date", "must be formatted as YYYY-MM-DD")
		}
		params.StartDate = &start
	}
	return params, nil
}

// validationMessage turns validator errors into a client-facing
// *domain.ValidationError.
func validationMessage(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return domain.NewValidationError("query", "invalid query parameters")
	}
	switch fe := verrs[0]; fe.StructField() {
	case "StartDate":
		return domain.NewValidationError("start_date", "must be formatted as YYYY-MM-DD")
	case "Category":
		return domain.NewValidationError("category", "must be an arXiv category code such as cs.AI")
	default:
		return domain.NewValidationError(strings.ToLower(fe.Field()), "invalid value")
	}
}

// dateRange renders the display window: the start date alone when it is
// today, otherwise "<start> 至 <today>".
func dateRange(start, today time.Time) string {
	from := start.Format(dateLayout)
	to := today.Format(dateLayout)
	if from == to {
		return from
	}
	return from + " 至 " + to
}

// getPaper handles GET {prefix}/papers/{arxiv_id}. Identifiers may contain
// slashes, as old-style IDs such as hep-th/9901001 do.
func (s *Server) getPaper(w http.ResponseWriter, r *http.Request) {
	arxivID := chi.URLParam(r, "*")
	// chi routes on the escaped path when it differs from the decoded one.
	if decoded, err := url.PathUnescape(arxivID); err == nil {
		arxivID = decoded
	}
	arxivID = strings.Trim(arxivID, "/")
	if arxivID == "" {
		s.listPapers(w, r)
		return
	}

	detail, err := s.papers.FetchPaperByID(r.Context(), arxivID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeEnvelope(w, r, codeOK, messageOK, detail)
}

// writeDomainError maps domain errors of the detail endpoint onto envelope
// codes. Upstream error details reach the client only for 500 outcomes.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeEnvelope(w, r, codeNotFound, messagePaperMissing, nil)
	case errors.Is(err, domain.ErrInvalidInput):
		writeEnvelope(w, r, codeUnprocessable, err.Error(), nil)
	default:
		logger := observability.WithRequestContext(r.Context(), s.logger)
		logger.Error().Err(err).Msg("get paper failed")
		writeEnvelope(w, r, codeInternal, fmt.Sprintf("%s: %v", messageDetailFailed, err), nil)
	}
}
