// Package papers is the retrieval adapter between the HTTP boundary and the
// paper provider. It turns date windows and identifiers into bounded,
// newest-first lists of domain papers.
package papers

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/arxivist/arxivist-backend/internal/domain"
	"github.com/arxivist/arxivist-backend/internal/observability"
	"github.com/arxivist/arxivist-backend/internal/papersources"
	"github.com/arxivist/arxivist-backend/internal/papersources/arxiv"
)

// DefaultMaxResults applies when a caller passes a non-positive cap.
const DefaultMaxResults = 100

// Config controls the adapter's defaults.
type Config struct {
	// DefaultResults is the cap used when FetchParams.MaxResults is not positive.
	DefaultResults int

	// StrictLookupErrors makes FetchPaperByID surface provider failures as
	// retrieval errors instead of reporting the paper as not found.
	StrictLookupErrors bool
}

// FetchParams selects papers submitted within a date window.
type FetchParams struct {
	// StartDate is the first day of the window. Nil means today.
	StartDate *time.Time

	// EndDate is the last day of the window, inclusive. Nil means today.
	EndDate *time.Time

	// MaxResults is an absolute cap on the returned list.
	MaxResults int

	// Category restricts results to one arXiv category, e.g. "cs.AI".
	Category string
}

// Option customizes a Service.
type Option func(*Service)

// WithSummarizer replaces the summary generator used for paper details.
func WithSummarizer(fn SummaryFunc) Option {
	return func(s *Service) {
		if fn != nil {
			s.summarize = fn
		}
	}
}

// WithClock replaces the source of "today".
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMetrics records search and lookup metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// Service fetches papers from a provider. It holds no per-request state and
// is safe for concurrent use.
type Service struct {
	provider  papersources.Provider
	config    Config
	summarize SummaryFunc
	now       func() time.Time
	logger    zerolog.Logger
	metrics   *observability.Metrics
}

// NewService creates a Service backed by provider.
func NewService(provider papersources.Provider, cfg Config, logger zerolog.Logger, opts ...Option) *Service {
	if cfg.DefaultResults <= 0 {
		cfg.DefaultResults = DefaultMaxResults
	}

	s := &Service{
		provider:  provider,
		config:    cfg,
		summarize: TemplateSummary,
		now:       time.Now,
		logger:    logger.With().Str("component", "papers").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Today returns the current date according to the service clock.
func (s *Service) Today() time.Time {
	return s.now()
}

// FetchPapers returns at most MaxResults papers submitted within the window,
// newest first.
//
// If the provider stops with an unexpected empty page, the papers gathered so
// far are returned without error. Any other provider failure is returned as a
// *domain.RetrievalError.
func (s *Service) FetchPapers(ctx context.Context, params FetchParams) ([]domain.Paper, error) {
	started := time.Now()
	source := s.provider.Name()

	today := s.now()
	from, to := today, today
	if params.StartDate != nil {
		from = *params.StartDate
	}
	if params.EndDate != nil {
		to = *params.EndDate
	}

	limit := params.MaxResults
	if limit <= 0 {
		limit = s.config.DefaultResults
	}

	filter := arxiv.And(arxiv.BuildDateRangeQuery(from, to), arxiv.BuildCategoryFilter(params.Category))
	logger := observability.WithSearchContext(observability.WithRequestContext(ctx, s.logger), filter, source)

	if s.metrics != nil {
		s.metrics.RecordSearchStarted(source)
	}

	cur := s.provider.Results(ctx, papersources.Query{
		Filter:     filter,
		MaxResults: limit,
		SortBy:     papersources.SortBySubmittedDate,
		SortOrder:  papersources.SortDescending,
	})

	out := make([]domain.Paper, 0, min(limit, DefaultMaxResults))
	for len(out) < limit {
		rec, err := cur.Next()
		if errors.Is(err, papersources.Done) {
			break
		}
		if errors.Is(err, papersources.ErrUnexpectedEmptyPage) {
			logger.Warn().Err(err).Int("collected", len(out)).Msg("provider returned an empty page, keeping partial results")
			if s.metrics != nil {
				s.metrics.RecordEmptyPageAbsorbed(source)
			}
			break
		}
		if err != nil {
			if s.metrics != nil {
				s.metrics.RecordSearchFailed(source, time.Since(started).Seconds())
			}
			return nil, domain.NewRetrievalError("fetching papers", err)
		}
		out = append(out, ToPaper(rec))
	}

	slices.SortStableFunc(out, func(a, b domain.Paper) int {
		return b.Published.Compare(a.Published)
	})

	if s.metrics != nil {
		s.metrics.RecordSearchCompleted(source, len(out), time.Since(started).Seconds())
	}
	logger.Debug().Int("count", len(out)).Int("limit", limit).Msg("fetched papers")

	return out, nil
}

// FetchPaperByID looks up one paper by arXiv identifier and attaches a
// generated summary.
//
// A lookup with no match returns a *domain.NotFoundError. Unless
// Config.StrictLookupErrors is set, provider failures are reported the same
// way; in strict mode they are returned as a *domain.RetrievalError.
func (s *Service) FetchPaperByID(ctx context.Context, arxivID string) (*domain.PaperDetail, error) {
	arxivID = strings.TrimSpace(arxivID)
	if arxivID == "" {
		return nil, domain.NewValidationError("arxiv_id", "must not be empty")
	}
	// arXiv reads a comma in id_list as a separator between identifiers.
	if strings.Contains(arxivID, ",") {
		return nil, domain.NewValidationError("arxiv_id", "must be a single identifier")
	}

	logger := observability.WithPaperContext(observability.WithRequestContext(ctx, s.logger), arxivID)

	cur := s.provider.Results(ctx, papersources.Query{
		IDList:     []string{arxivID},
		MaxResults: 1,
	})

	rec, err := cur.Next()
	switch {
	case err == nil:
	case errors.Is(err, papersources.Done), errors.Is(err, papersources.ErrUnexpectedEmptyPage):
		s.recordLookup(observability.LookupNotFound)
		return nil, domain.NewNotFoundError("paper", arxivID)
	case s.config.StrictLookupErrors:
		s.recordLookup(observability.LookupFailed)
		return nil, domain.NewRetrievalError("fetching paper "+arxivID, err)
	default:
		logger.Warn().Err(err).Msg("paper lookup failed, reporting as not found")
		s.recordLookup(observability.LookupFailed)
		return nil, domain.NewNotFoundError("paper", arxivID)
	}

	paper := ToPaper(rec)
	detail := &domain.PaperDetail{
		Paper:     paper,
		AISummary: s.summarize(paper),
	}

	s.recordLookup(observability.LookupFound)
	if s.metrics != nil {
		s.metrics.RecordSummaryGenerated()
	}
	return detail, nil
}

func (s *Service) recordLookup(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordLookup(outcome)
	}
}
