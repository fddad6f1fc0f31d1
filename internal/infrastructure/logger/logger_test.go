package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func TestNew(t *testing.T) {
	log, err := New(&Config{Level: "debug", Format: "json", Output: "stdout"})
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(zapcore.DebugLevel))

	log, err = New(&Config{Level: "warn", Format: "console", Output: "stderr"})
	require.NoError(t, err)
	assert.False(t, log.Core().Enabled(zapcore.InfoLevel))

	t.Run("unknown level falls back to info", func(t *testing.T) {
		log, err := New(&Config{Level: "verbose", Format: "json", Output: "stdout"})
		require.NoError(t, err)
		assert.True(t, log.Core().Enabled(zapcore.InfoLevel))
		assert.False(t, log.Core().Enabled(zapcore.DebugLevel))
	})

	t.Run("unwritable file path is an error", func(t *testing.T) {
		_, err := New(&Config{Level: "info", Format: "json", Output: "/missing-dir/app.log"})
		assert.Error(t, err)
	})
}

func TestGormLogger_Trace(t *testing.T) {
	ctx := context.Background()
	stmt := func() (string, int64) { return "SELECT 1", 1 }

	t.Run("statement logs at debug", func(t *testing.T) {
		core, logs := observer.New(zapcore.DebugLevel)
		gl := NewGormLogger(zap.New(core), "info")

		gl.Trace(ctx, time.Now(), stmt, nil)

		entries := logs.All()
		require.Len(t, entries, 1)
		assert.Equal(t, "query", entries[0].Message)
		assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	})

	t.Run("failure logs at error", func(t *testing.T) {
		core, logs := observer.New(zapcore.DebugLevel)
		gl := NewGormLogger(zap.New(core), "warn")

		gl.Trace(ctx, time.Now(), stmt, errors.New("disk I/O error"))

		entries := logs.All()
		require.Len(t, entries, 1)
		assert.Equal(t, "query failed", entries[0].Message)
		assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	})

	t.Run("record not found is suppressed", func(t *testing.T) {
		core, logs := observer.New(zapcore.DebugLevel)
		gl := NewGormLogger(zap.New(core), "warn")

		gl.Trace(ctx, time.Now(), stmt, gormlogger.ErrRecordNotFound)

		assert.Zero(t, logs.Len())
	})

	t.Run("slow statement logs at warn", func(t *testing.T) {
		core, logs := observer.New(zapcore.DebugLevel)
		gl := NewGormLogger(zap.New(core), "warn")

		gl.Trace(ctx, time.Now().Add(-time.Second), stmt, nil)

		entries := logs.All()
		require.Len(t, entries, 1)
		assert.Equal(t, "slow query", entries[0].Message)
		assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	})
}
