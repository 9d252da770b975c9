package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Batch lifecycle actions used as the action attribute
const (
	ActionCreated    = "created"
	ActionCommitted  = "committed"
	ActionDiscarded  = "discarded"
	ActionRolledBack = "rolled_back"
)

// Outcomes of a commit or rollback run
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
)

// ImportMetrics tracks the import pipeline: staged rows, batch lifecycle,
// commit and rollback throughput.
//
// All methods are safe on a nil receiver so callers can run without metrics.
type ImportMetrics struct {
	logger *zap.Logger

	batchesTotal     *Counter
	rowsStagedTotal  *Counter
	rowsCommitted    *Counter
	rollbackRecords  *Counter
	commitDuration   *Histogram
	rollbackDuration *Histogram
	openBatchRows    *Gauge
}

// ImportMetricsConfig holds configuration for import metrics.
type ImportMetricsConfig struct {
	Meter  metric.Meter
	Logger *zap.Logger
}

// NewImportMetrics creates the import instruments on the given meter
func NewImportMetrics(cfg ImportMetricsConfig) (*ImportMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &ImportMetrics{logger: logger}

	var err error
	if m.batchesTotal, err = NewCounter(cfg.Meter,
		"salesplan_import_batches_total",
		"Import batch lifecycle transitions by action",
		"{batches}",
	); err != nil {
		return nil, err
	}
	if m.rowsStagedTotal, err = NewCounter(cfg.Meter,
		"salesplan_import_rows_staged_total",
		"Export rows staged by match status",
		"{rows}",
	); err != nil {
		return nil, err
	}
	if m.rowsCommitted, err = NewCounter(cfg.Meter,
		"salesplan_import_rows_committed_total",
		"Staging rows written to the permanent store",
		"{rows}",
	); err != nil {
		return nil, err
	}
	if m.rollbackRecords, err = NewCounter(cfg.Meter,
		"salesplan_import_rollback_records_total",
		"Permanent records touched by rollbacks by kind and outcome",
		"{records}",
	); err != nil {
		return nil, err
	}
	if m.commitDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "salesplan_import_commit_duration_seconds",
		Description: "Duration of batch commits",
		Unit:        "s",
		Boundaries:  BatchDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if m.rollbackDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "salesplan_import_rollback_duration_seconds",
		Description: "Duration of batch rollbacks",
		Unit:        "s",
		Boundaries:  BatchDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if m.openBatchRows, err = NewGauge(cfg.Meter,
		"salesplan_import_open_batch_rows",
		"Staging rows held by the open batch",
		"{rows}",
	); err != nil {
		return nil, err
	}

	return m, nil
}

// RecordBatch counts one lifecycle transition
func (m *ImportMetrics) RecordBatch(ctx context.Context, action string) {
	if m == nil {
		return
	}
	m.batchesTotal.Inc(ctx, AttrAction.String(action))
}

// RecordRowsStaged counts staged rows per match status and sets the open batch gauge
func (m *ImportMetrics) RecordRowsStaged(ctx context.Context, byStatus map[string]int) {
	if m == nil {
		return
	}
	total := 0
	for status, n := range byStatus {
		total += n
		if n > 0 {
			m.rowsStagedTotal.Add(ctx, int64(n), AttrMatchStatus.String(status))
		}
	}
	m.openBatchRows.Record(ctx, int64(total))
}

// RecordBatchClosed resets the open batch gauge
func (m *ImportMetrics) RecordBatchClosed(ctx context.Context) {
	if m == nil {
		return
	}
	m.openBatchRows.Record(ctx, 0)
}

// RecordRowCommitted counts one committed row
func (m *ImportMetrics) RecordRowCommitted(ctx context.Context, matchStatus string) {
	if m == nil {
		return
	}
	m.rowsCommitted.Inc(ctx, AttrMatchStatus.String(matchStatus))
}

// RecordCommit records the duration and outcome of a commit run
func (m *ImportMetrics) RecordCommit(ctx context.Context, d time.Duration, outcome string) {
	if m == nil {
		return
	}
	m.commitDuration.RecordDuration(ctx, d, AttrOutcome.String(outcome))
}

// RecordRollback records the duration and outcome of a rollback run
func (m *ImportMetrics) RecordRollback(ctx context.Context, d time.Duration, outcome string) {
	if m == nil {
		return
	}
	m.rollbackDuration.RecordDuration(ctx, d, AttrOutcome.String(outcome))
}

// RecordRollbackRecords counts records a rollback deleted, kept, reverted or failed on
func (m *ImportMetrics) RecordRollbackRecords(ctx context.Context, kind, outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.rollbackRecords.Add(ctx, int64(n), AttrRecordKind.String(kind), AttrOutcome.String(outcome))
}

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewImportMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}
