package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBTracingConfig configures query spans
type DBTracingConfig struct {
	Enabled bool
	// DBSystem names the database in spans, e.g. "postgresql" or "sqlite"
	DBSystem string
	// SlowQueryThreshold flags spans of slower queries (default: 200ms)
	SlowQueryThreshold time.Duration
	// IncludeVariables keeps bound values in db.statement
	IncludeVariables bool
}

type queryStartKey struct{}

// RegisterDBTracing installs otelgorm on db, plus callbacks that annotate
// each query span with table, affected rows, errors and slow-query marks.
func RegisterDBTracing(db *gorm.DB, cfg DBTracingConfig, logger *zap.Logger) error {
	if !cfg.Enabled {
		return nil
	}
	if cfg.SlowQueryThreshold <= 0 {
		cfg.SlowQueryThreshold = 200 * time.Millisecond
	}

	opts := []otelgorm.Option{otelgorm.WithDBName(cfg.DBSystem)}
	if !cfg.IncludeVariables {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}

	before := func(tx *gorm.DB) {
		if tx.Statement.Context != nil {
			tx.Statement.Context = context.WithValue(tx.Statement.Context, queryStartKey{}, time.Now())
		}
	}
	after := func(tx *gorm.DB) { annotateQuerySpan(tx, cfg.SlowQueryThreshold) }

	cb := db.Callback()
	steps := []error{
		cb.Create().Before("gorm:create").Register("sheets_trace:before_create", before),
		cb.Query().Before("gorm:query").Register("sheets_trace:before_query", before),
		cb.Update().Before("gorm:update").Register("sheets_trace:before_update", before),
		cb.Delete().Before("gorm:delete").Register("sheets_trace:before_delete", before),
		cb.Row().Before("gorm:row").Register("sheets_trace:before_row", before),
		cb.Raw().Before("gorm:raw").Register("sheets_trace:before_raw", before),
		cb.Create().After("gorm:create").Register("sheets_trace:after_create", after),
		cb.Query().After("gorm:query").Register("sheets_trace:after_query", after),
		cb.Update().After("gorm:update").Register("sheets_trace:after_update", after),
		cb.Delete().After("gorm:delete").Register("sheets_trace:after_delete", after),
		cb.Row().After("gorm:row").Register("sheets_trace:after_row", after),
		cb.Raw().After("gorm:raw").Register("sheets_trace:after_raw", after),
	}
	if err := errors.Join(steps...); err != nil {
		return err
	}

	logger.Info("Database tracing enabled",
		zap.String("db_system", cfg.DBSystem),
		zap.Duration("slow_query_threshold", cfg.SlowQueryThreshold))
	return nil
}

func annotateQuerySpan(tx *gorm.DB, slowAfter time.Duration) {
	ctx := tx.Statement.Context
	if ctx == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	if tx.Statement.RowsAffected >= 0 {
		span.SetAttributes(attribute.Int64("db.rows_affected", tx.Statement.RowsAffected))
	}
	if tx.Statement.Table != "" {
		span.SetAttributes(attribute.String("db.sql.table", tx.Statement.Table))
	}
	if tx.Error != nil && !errors.Is(tx.Error, gorm.ErrRecordNotFound) {
		span.SetStatus(codes.Error, tx.Error.Error())
		span.RecordError(tx.Error)
	}

	if start, ok := ctx.Value(queryStartKey{}).(time.Time); ok {
		if elapsed := time.Since(start); elapsed > slowAfter {
			span.SetAttributes(
				attribute.Bool("db.slow_query", true),
				attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
			)
		}
	}
}
