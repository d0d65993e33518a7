package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLoggingConfig(t *testing.T) {
	cfg := DefaultLoggingConfig()

	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, "stdout", cfg.Output)
	assert.False(t, cfg.AddSource)
}

func TestNewLogger(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.TraceLevel) })

	t.Run("json output carries timestamp and level", func(t *testing.T) {
		var buf bytes.Buffer
		logger := newLogger(LoggingConfig{Level: "debug", Format: "json"}, &buf)

		logger.Debug().Str("category", "cs.AI").Msg("fetching papers")

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "debug", entry["level"])
		assert.Equal(t, "cs.AI", entry["category"])
		assert.Equal(t, "fetching papers", entry["message"])
		assert.Contains(t, entry, "time")
	})

	t.Run("level filters lower entries", func(t *testing.T) {
		var buf bytes.Buffer
		logger := newLogger(LoggingConfig{Level: "warn", Format: "json"}, &buf)

		logger.Info().Msg("hidden")
		assert.Empty(t, buf.String())

		logger.Warn().Msg("shown")
		assert.Contains(t, buf.String(), "shown")
	})

	t.Run("console format is not json", func(t *testing.T) {
		var buf bytes.Buffer
		logger := newLogger(LoggingConfig{Level: "info", Format: "console"}, &buf)

		logger.Info().Msg("hello")
		assert.Contains(t, buf.String(), "hello")
		assert.False(t, json.Valid(buf.Bytes()))
	})

	t.Run("public constructor accepts stderr", func(t *testing.T) {
		logger := NewLogger(LoggingConfig{Level: "info", Format: "pretty", Output: "stderr"})
		assert.NotEqual(t, zerolog.Logger{}, logger)
	})
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"WARNING", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"panic", zerolog.PanicLevel},
		{"unknown", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLevel(tt.input))
		})
	}
}

func TestValidLevel(t *testing.T) {
	assert.True(t, ValidLevel("debug"))
	assert.True(t, ValidLevel("WARNING"))
	assert.False(t, ValidLevel("verbose"))
	assert.False(t, ValidLevel(""))
}

func TestWithRequestContext(t *testing.T) {
	t.Run("adds ids present on the context", func(t *testing.T) {
		var buf bytes.Buffer
		ctx := WithCorrelationID(WithRequestID(context.Background(), "req-1"), "corr-1")

		logger := WithRequestContext(ctx, zerolog.New(&buf))
		logger.Info().Msg("handled")

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "req-1", entry["request_id"])
		assert.Equal(t, "corr-1", entry["correlation_id"])
	})

	t.Run("omits absent ids", func(t *testing.T) {
		var buf bytes.Buffer

		logger := WithRequestContext(context.Background(), zerolog.New(&buf))
		logger.Info().Msg("handled")

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.NotContains(t, entry, "request_id")
		assert.NotContains(t, entry, "correlation_id")
	})
}

func TestWithSearchAndPaperContext(t *testing.T) {
	var buf bytes.Buffer
	logger := WithSearchContext(zerolog.New(&buf), "cat:cs.AI", "arXiv")
	logger = WithPaperContext(logger, "2401.00001")
	logger.Info().Msg("chained")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "cat:cs.AI", entry["filter"])
	assert.Equal(t, "arXiv", entry["source"])
	assert.Equal(t, "2401.00001", entry["arxiv_id"])
}
