package logger_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/trendwatch/pkg/logger"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("json format with static attrs", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		log := logger.New(
			logger.WithOutput(&buf),
			logger.WithFormat(logger.FormatJSON),
			logger.WithAttr(slog.String("service", "trendwatch")),
		)

		log.Info("hello", logger.ClientID("c1"))

		var record map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
		assert.Equal(t, "hello", record["msg"])
		assert.Equal(t, "trendwatch", record["service"])
		assert.Equal(t, "c1", record["client_id"])
	})

	t.Run("level filter", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		log := logger.New(logger.WithOutput(&buf), logger.WithLevel(slog.LevelWarn))

		log.Info("dropped")
		assert.Zero(t, buf.Len())

		log.Warn("kept")
		assert.NotZero(t, buf.Len())
	})

	t.Run("invalid format panics", func(t *testing.T) {
		t.Parallel()
		assert.Panics(t, func() {
			logger.New(logger.WithFormat("xml"))
		})
	})
}

func TestAttrs(t *testing.T) {
	t.Parallel()

	assert.Equal(t, slog.Attr{}, logger.Error(nil))
	assert.Equal(t, slog.Attr{}, logger.UserID(""))
	assert.Equal(t, "user_id", logger.UserID("u1").Key)
	assert.Equal(t, "event_type", logger.EventType("search").Key)
	assert.Equal(t, "retry_count", logger.RetryCount(2).Key)
}
