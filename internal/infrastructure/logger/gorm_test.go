package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func observedGormLogger(level gormlogger.LogLevel) (*GormLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return NewGormLogger(zap.New(core), level), logs
}

func noQuery() (string, int64) { return "SELECT * FROM sync_batches", 1 }

func TestGormLogger_TraceError(t *testing.T) {
	gl, logs := observedGormLogger(gormlogger.Error)

	gl.Trace(context.Background(), time.Now(), noQuery, errors.New("connection reset"))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "query failed", entry.Message)
	assert.Equal(t, "SELECT * FROM sync_batches", entry.ContextMap()["query"])
}

func TestGormLogger_TraceIgnoresNotFound(t *testing.T) {
	gl, logs := observedGormLogger(gormlogger.Error)

	gl.Trace(context.Background(), time.Now(), noQuery, gormlogger.ErrRecordNotFound)

	assert.Equal(t, 0, logs.Len(), "not-found lookups are routine, never errors")
}

func TestGormLogger_TraceSlowQuery(t *testing.T) {
	gl, logs := observedGormLogger(gormlogger.Warn)
	gl = gl.WithSlowThreshold(time.Nanosecond)

	gl.Trace(context.Background(), time.Now().Add(-time.Millisecond), noQuery, nil)

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "slow query", logs.All()[0].Message)
}

func TestGormLogger_TraceCarriesSweepID(t *testing.T) {
	gl, logs := observedGormLogger(gormlogger.Info)
	gl = gl.WithSlowThreshold(0)

	ctx, _ := WithSweepID(context.Background(), zap.NewNop(), "3f0a")
	gl.Trace(ctx, time.Now(), noQuery, nil)

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "3f0a", logs.All()[0].ContextMap()["sweep_id"])
}

func TestGormLogger_SilentLogsNothing(t *testing.T) {
	gl, logs := observedGormLogger(gormlogger.Silent)

	gl.Trace(context.Background(), time.Now(), noQuery, errors.New("boom"))
	gl.Info(context.Background(), "ignored")

	assert.Equal(t, 0, logs.Len())
}
