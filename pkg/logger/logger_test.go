package logger

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerLevels(t *testing.T) {
	cases := []struct {
		level   string
		enabled slog.Level
		muted   slog.Level
	}{
		{"debug", slog.LevelDebug, slog.LevelDebug - 4},
		{"info", slog.LevelInfo, slog.LevelDebug},
		{"warn", slog.LevelWarn, slog.LevelInfo},
		{"warning", slog.LevelWarn, slog.LevelInfo},
		{"error", slog.LevelError, slog.LevelWarn},
		{"", slog.LevelInfo, slog.LevelDebug},
		{"bogus", slog.LevelInfo, slog.LevelDebug},
		{"DEBUG", slog.LevelDebug, slog.LevelDebug - 4},
	}

	for _, tc := range cases {
		t.Run("LOG_LEVEL="+tc.level, func(t *testing.T) {
			t.Setenv("LOG_LEVEL", tc.level)
			log := NewLogger()
			require.NotNil(t, log)

			ctx := context.Background()
			assert.True(t, log.Enabled(ctx, tc.enabled))
			assert.False(t, log.Enabled(ctx, tc.muted))
		})
	}
}

func TestScopeAttr(t *testing.T) {
	attr := Scope("kg.repo")
	assert.Equal(t, "scope", attr.Key)
	assert.Equal(t, "kg.repo", attr.Value.String())
}

func TestErrorAttr(t *testing.T) {
	err := errors.New("boom")
	attr := Error(err)
	assert.Equal(t, "error", attr.Key)
	assert.Equal(t, err, attr.Value.Any())
}
