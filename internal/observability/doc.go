// Package observability provides logging, metrics, and request context
// helpers for the arXivist backend.
//
// # Logging
//
// Create a logger from configuration:
//
//	logger := observability.NewLogger(observability.LoggingConfig{
//	    Level:  "info",
//	    Format: "json",
//	    Output: "stdout",
//	})
//	logger.Info().Str("category", "cs.AI").Msg("fetching papers")
//
// Attach the IDs the HTTP layer stored on the request context:
//
//	logger = observability.WithRequestContext(ctx, logger)
//
// # Metrics
//
// Metrics are registered with the default Prometheus registry:
//
//	metrics := observability.NewMetrics("arxivist")
//	metrics.RecordSearchStarted("arXiv")
//	metrics.RecordLookup(observability.LookupNotFound)
//
// Because promauto registers globally, NewMetrics must be called once per
// namespace per process.
//
// # Standard Fields
//
//   - request_id: chi request identifier
//   - correlation_id: caller-supplied X-Correlation-ID
//   - source: upstream provider name ("arXiv")
//   - arxiv_id: identifier of a single-paper lookup
//   - filter: provider filter expression of a search
package observability
