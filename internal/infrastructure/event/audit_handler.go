package event

import (
	"context"

	"github.com/salesplan/backend/internal/domain/bulk"
	"github.com/salesplan/backend/internal/domain/shared"
	"github.com/salesplan/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// AuditLogHandler writes one structured audit line per batch lifecycle event.
type AuditLogHandler struct {
	logger *zap.Logger
}

// NewAuditLogHandler creates an audit handler writing to the "audit" logger
func NewAuditLogHandler(l *zap.Logger) *AuditLogHandler {
	if l == nil {
		l = zap.NewNop()
	}
	return &AuditLogHandler{logger: l.Named("audit")}
}

// EventTypes implements shared.EventHandler
func (h *AuditLogHandler) EventTypes() []string {
	return []string{
		bulk.EventTypeBatchCreated,
		bulk.EventTypeBatchCommitted,
		bulk.EventTypeBatchDiscarded,
		bulk.EventTypeBatchRolledBack,
	}
}

// Handle implements shared.EventHandler
func (h *AuditLogHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	fields := []zap.Field{
		zap.String("event_type", event.EventType()),
		zap.String("event_id", event.EventID().String()),
		zap.String("batch_id", event.AggregateID().String()),
		zap.Time("occurred_at", event.OccurredAt()),
	}

	switch e := event.(type) {
	case *bulk.BatchCreatedEvent:
		fields = append(fields, zap.String("file_name", e.FileName), zap.Int("total_rows", e.TotalRows))
	case *bulk.BatchCommittedEvent:
		fields = append(fields,
			zap.Int("new", e.Counts.New),
			zap.Int("updated", e.Counts.Updated),
			zap.Int("skipped", e.Counts.Skipped),
		)
	}

	logger.WithLogger(ctx, h.logger).Info("import batch event", fields...)
	return nil
}

var _ shared.EventHandler = (*AuditLogHandler)(nil)
