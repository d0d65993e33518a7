package httpserver

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/arxivist/arxivist-backend/internal/domain"
)

// Envelope codes. The transport status of a handled request is always 200;
// the outcome is carried here.
const (
	codeOK            = http.StatusOK
	codeNotFound      = http.StatusNotFound
	codeUnprocessable = http.StatusUnprocessableEntity
	codeInternal      = http.StatusInternalServerError
)

const messageOK = "success"

// envelope is the uniform response wrapper for every papers endpoint.
type envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// paperListData is the payload of a successful list request.
type paperListData struct {
	Papers    []domain.Paper `json:"papers"`
	Total     int            `json:"total"`
	DateRange string         `json:"date_range"`
}

type welcomeResponse struct {
	Message string `json:"message"`
	Name    string `json:"name"`
	Version string `json:"version"`
}

type healthResponse struct {
	Status string `json:"status"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Best-effort log; headers already sent.
		_ = err
	}
}

// writeEnvelope writes an envelope with transport status 200 and records the
// envelope code for the request metrics.
func writeEnvelope(w http.ResponseWriter, r *http.Request, code int, message string, data any) {
	setOutcome(r.Context(), code)
	writeJSON(w, http.StatusOK, envelope{Code: code, Message: message, Data: data})
}

type outcomeKey struct{}

// withOutcome returns a context carrying a slot for the envelope code.
func withOutcome(ctx context.Context) (context.Context, *int) {
	code := new(int)
	return context.WithValue(ctx, outcomeKey{}, code), code
}

func setOutcome(ctx context.Context, code int) {
	if p, ok := ctx.Value(outcomeKey{}).(*int); ok {
		*p = code
	}
}
