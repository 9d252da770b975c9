package bulk

import "github.com/salesplan/backend/internal/domain/shared"

// Event types published by the import batch aggregate
const (
	EventTypeBatchCreated    = "import.batch.created"
	EventTypeBatchCommitted  = "import.batch.committed"
	EventTypeBatchDiscarded  = "import.batch.discarded"
	EventTypeBatchRolledBack = "import.batch.rolled_back"

	aggregateTypeImportBatch = "ImportBatch"
)

// BatchCreatedEvent is raised when an export has been staged
type BatchCreatedEvent struct {
	shared.BaseDomainEvent
	FileName  string `json:"file_name"`
	TotalRows int    `json:"total_rows"`
}

// NewBatchCreatedEvent creates a BatchCreatedEvent
func NewBatchCreatedEvent(b *ImportBatch) *BatchCreatedEvent {
	return &BatchCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeBatchCreated, aggregateTypeImportBatch, b.ID),
		FileName:        b.FileName,
		TotalRows:       b.TotalRows,
	}
}

// BatchCommittedEvent is raised when a batch completed
type BatchCommittedEvent struct {
	shared.BaseDomainEvent
	Counts BatchCounts `json:"counts"`
}

// NewBatchCommittedEvent creates a BatchCommittedEvent
func NewBatchCommittedEvent(b *ImportBatch) *BatchCommittedEvent {
	return &BatchCommittedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeBatchCommitted, aggregateTypeImportBatch, b.ID),
		Counts:          b.Counts,
	}
}

// BatchDiscardedEvent is raised when an open batch is abandoned
type BatchDiscardedEvent struct {
	shared.BaseDomainEvent
}

// NewBatchDiscardedEvent creates a BatchDiscardedEvent
func NewBatchDiscardedEvent(b *ImportBatch) *BatchDiscardedEvent {
	return &BatchDiscardedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeBatchDiscarded, aggregateTypeImportBatch, b.ID),
	}
}

// BatchRolledBackEvent is raised when a completed batch was undone
type BatchRolledBackEvent struct {
	shared.BaseDomainEvent
}

// NewBatchRolledBackEvent creates a BatchRolledBackEvent
func NewBatchRolledBackEvent(b *ImportBatch) *BatchRolledBackEvent {
	return &BatchRolledBackEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeBatchRolledBack, aggregateTypeImportBatch, b.ID),
	}
}
