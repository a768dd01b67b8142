package logger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func newObservedGormLogger(level gormlogger.LogLevel, opts ...GormLoggerOption) (*GormLogger, *observer.ObservedLogs) {
	core, recorded := observer.New(zapcore.DebugLevel)
	return NewGormLogger(zap.New(core), level, opts...), recorded
}

func selectJobs() (string, int64) {
	return "SELECT * FROM generation_jobs WHERE expires_at < now()", 3
}

func TestGormLogger_Options(t *testing.T) {
	gl, _ := newObservedGormLogger(gormlogger.Info,
		WithSlowThreshold(500*time.Millisecond),
		WithIgnoreRecordNotFoundError(false),
	)

	assert.Equal(t, 500*time.Millisecond, gl.slowThreshold)
	assert.False(t, gl.ignoreRecordNotFoundError)

	var _ gormlogger.Interface = gl
}

func TestGormLogger_LogModeCopies(t *testing.T) {
	gl, _ := newObservedGormLogger(gormlogger.Info)
	warn, ok := gl.LogMode(gormlogger.Warn).(*GormLogger)
	require.True(t, ok)

	assert.Equal(t, gormlogger.Info, gl.logLevel)
	assert.Equal(t, gormlogger.Warn, warn.logLevel)
}

func TestGormLogger_LevelGating(t *testing.T) {
	gl, recorded := newObservedGormLogger(gormlogger.Warn)

	gl.Info(context.Background(), "migrating %s", "generation_jobs")
	gl.Warn(context.Background(), "slow %d", 42)
	gl.Error(context.Background(), "broken")

	logs := recorded.All()
	require.Len(t, logs, 2)
	assert.Equal(t, "slow 42", logs[0].Message)
	assert.Equal(t, zapcore.ErrorLevel, logs[1].Level)
}

func TestGormLogger_Trace(t *testing.T) {
	t.Run("error", func(t *testing.T) {
		gl, recorded := newObservedGormLogger(gormlogger.Error)
		gl.Trace(context.Background(), time.Now(), selectJobs, errors.New("connection reset"))
		assert.Equal(t, 1, recorded.FilterMessage("SQL Error").Len())
	})

	t.Run("record not found ignored", func(t *testing.T) {
		gl, recorded := newObservedGormLogger(gormlogger.Error)
		gl.Trace(context.Background(), time.Now(), selectJobs, gormlogger.ErrRecordNotFound)
		assert.Zero(t, recorded.Len())
	})

	t.Run("slow query", func(t *testing.T) {
		gl, recorded := newObservedGormLogger(gormlogger.Warn, WithSlowThreshold(time.Nanosecond))
		gl.Trace(context.Background(), time.Now().Add(-time.Second), selectJobs, nil)
		logs := recorded.All()
		require.Len(t, logs, 1)
		assert.Contains(t, logs[0].Message, "SLOW SQL")
	})

	t.Run("silent", func(t *testing.T) {
		gl, recorded := newObservedGormLogger(gormlogger.Silent)
		gl.Trace(context.Background(), time.Now(), selectJobs, nil)
		assert.Zero(t, recorded.Len())
	})
}

func TestGormLogger_Trace_TagsContextIDs(t *testing.T) {
	gl, recorded := newObservedGormLogger(gormlogger.Info)

	ctx := context.WithValue(context.Background(), RequestIDKey, "req-1")
	ctx = context.WithValue(ctx, JobIDKey, "job-7")
	gl.Trace(ctx, time.Now(), selectJobs, nil)

	logs := recorded.FilterMessage("SQL Query").All()
	require.Len(t, logs, 1)
	fields := logs[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "job-7", fields["job_id"])
	assert.Equal(t, int64(3), fields["rows"])
}

func TestGormLogger_Trace_TagsJobContext(t *testing.T) {
	gl, recorded := newObservedGormLogger(gormlogger.Info)

	ctx, _ := WithJobID(context.Background(), zap.NewNop(), "job-7")
	ctx, _ = WithDocumentType(ctx, nil, "NPC_SHEET")
	ctx, _ = WithUserID(ctx, nil, "user-3")
	gl.Trace(ctx, time.Now(), selectJobs, nil)
	gl.Warn(ctx, "retrying %s", "claim")

	logs := recorded.All()
	require.Len(t, logs, 2)
	for _, entry := range logs {
		fields := entry.ContextMap()
		assert.Equal(t, "job-7", fields["job_id"])
		assert.Equal(t, "NPC_SHEET", fields["document_type"])
		assert.Equal(t, "user-3", fields["user_id"])
		assert.NotContains(t, fields, "request_id")
	}
	assert.Equal(t, "retrying claim", logs[1].Message)
}

func TestGormLogger_Trace_TruncatesLongSQL(t *testing.T) {
	long := "INSERT INTO generation_jobs (generation_options) VALUES ('" + strings.Repeat("x", 100) + "')"
	statement := func() (string, int64) { return long, 1 }

	gl, recorded := newObservedGormLogger(gormlogger.Info, WithMaxSQLLength(20))
	gl.Trace(context.Background(), time.Now(), statement, nil)
	logged := recorded.All()[0].ContextMap()["sql"].(string)
	assert.True(t, strings.HasPrefix(logged, long[:20]))
	assert.Contains(t, logged, fmt.Sprintf("(%d bytes)", len(long)))

	gl, recorded = newObservedGormLogger(gormlogger.Info, WithMaxSQLLength(0))
	gl.Trace(context.Background(), time.Now(), statement, nil)
	assert.Equal(t, long, recorded.All()[0].ContextMap()["sql"])
}

func TestMapGormLogLevel(t *testing.T) {
	tests := map[string]gormlogger.LogLevel{
		"silent":  gormlogger.Silent,
		"error":   gormlogger.Error,
		"warn":    gormlogger.Warn,
		"info":    gormlogger.Info,
		"debug":   gormlogger.Info,
		"unknown": gormlogger.Warn,
		"":        gormlogger.Warn,
	}
	for level, expected := range tests {
		assert.Equal(t, expected, MapGormLogLevel(level), level)
	}
}
