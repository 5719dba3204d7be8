package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingsync/pkg/logger"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestNew(t *testing.T) {
	t.Run("json by default", func(t *testing.T) {
		buf := &bytes.Buffer{}
		log := logger.New(logger.WithOutput(buf))
		log.Info("hello")
		entry := decode(t, buf)
		assert.Equal(t, "INFO", entry["level"])
		assert.Equal(t, "hello", entry["msg"])
	})

	t.Run("text formatter", func(t *testing.T) {
		buf := &bytes.Buffer{}
		logger.New(logger.WithOutput(buf), logger.WithTextFormatter()).Info("hello")
		assert.Contains(t, buf.String(), "level=INFO")
		assert.Contains(t, buf.String(), "msg=hello")
	})

	t.Run("static attributes", func(t *testing.T) {
		buf := &bytes.Buffer{}
		logger.New(logger.WithOutput(buf), logger.WithAttr(slog.String("svc", "test"))).Info("msg")
		assert.Equal(t, "test", decode(t, buf)["svc"])
	})

	t.Run("context extractors", func(t *testing.T) {
		buf := &bytes.Buffer{}
		type key struct{}
		log := logger.New(
			logger.WithOutput(buf),
			logger.WithContextExtractors(nil, func(ctx context.Context) (slog.Attr, bool) {
				if v, ok := ctx.Value(key{}).(string); ok {
					return slog.String("request_id", v), true
				}
				return slog.Attr{}, false
			}),
		)

		log.InfoContext(context.WithValue(context.Background(), key{}, "req-42"), "with id")
		assert.Equal(t, "req-42", decode(t, buf)["request_id"])

		buf.Reset()
		log.With(slog.String("component", "x")).InfoContext(context.Background(), "without id")
		entry := decode(t, buf)
		assert.NotContains(t, entry, "request_id")
		assert.Equal(t, "x", entry["component"])
	})

	t.Run("level", func(t *testing.T) {
		buf := &bytes.Buffer{}
		log := logger.New(logger.WithOutput(buf), logger.WithLevel(slog.LevelWarn))
		log.Info("dropped")
		assert.Empty(t, buf.String())
	})

	t.Run("invalid format panics", func(t *testing.T) {
		assert.Panics(t, func() { logger.New(logger.WithFormat("xml")) })
	})
}

func TestNew_Redaction(t *testing.T) {
	buf := &bytes.Buffer{}
	log := logger.New(logger.WithOutput(buf), logger.WithRedactedKeys("Stripe-Signature"))
	log.Info("provider call",
		slog.String("secret_key", "sk_live_123"),
		slog.String("stripe-signature", "t=1,v1=abc"),
		logger.Group("request", slog.String("Authorization", "Bearer abc")),
		logger.CustomerID("cus_1"),
	)

	out := buf.String()
	assert.NotContains(t, out, "sk_live_123")
	assert.NotContains(t, out, "v1=abc")
	assert.NotContains(t, out, "Bearer abc")
	assert.Contains(t, out, "cus_1")
	assert.Equal(t, "[REDACTED]", decode(t, buf)["secret_key"])
}

func TestParseEnvironment(t *testing.T) {
	tests := map[string]logger.Environment{
		"production": logger.Production,
		"PROD":       logger.Production,
		"stage":      logger.Staging,
		"staging":    logger.Staging,
		"":           logger.Development,
		"local":      logger.Development,
	}
	for in, want := range tests {
		assert.Equal(t, want, logger.ParseEnvironment(in), in)
	}
}

func TestFromConfig(t *testing.T) {
	t.Run("production profile with level override", func(t *testing.T) {
		buf := &bytes.Buffer{}
		log := logger.New(
			logger.FromConfig(logger.Config{Env: "prod", Level: "warn"}, "billingsync"),
			logger.WithOutput(buf),
		)
		log.Info("dropped")
		assert.Empty(t, buf.String())

		log.Warn("kept")
		entry := decode(t, buf)
		assert.Equal(t, "billingsync", entry["service"])
		assert.Equal(t, "production", entry["env"])
	})

	t.Run("development profile is text at debug", func(t *testing.T) {
		buf := &bytes.Buffer{}
		log := logger.New(
			logger.FromConfig(logger.Config{Env: "development", Level: "loud"}, "billingsync"),
			logger.WithOutput(buf),
		)
		log.Debug("visible")
		assert.Contains(t, buf.String(), "visible")
		assert.Contains(t, buf.String(), "env=development")
		assert.Contains(t, buf.String(), "service=billingsync")
	})
}

func TestSetAsDefault(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	buf := &bytes.Buffer{}
	logger.SetAsDefault(logger.New(logger.WithOutput(buf)))
	slog.Info("default")
	assert.Equal(t, "default", decode(t, buf)["msg"])
}
