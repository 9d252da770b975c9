package bulk

import (
	"time"

	"github.com/google/uuid"
	"github.com/salesplan/backend/internal/domain/shared"
)

// BatchStatus represents the lifecycle state of an import batch
type BatchStatus string

const (
	BatchStatusOpen       BatchStatus = "open"
	BatchStatusCompleted  BatchStatus = "completed"
	BatchStatusDiscarded  BatchStatus = "discarded"
	BatchStatusRolledBack BatchStatus = "rolled_back"
)

// IsValid checks if the status is valid
func (s BatchStatus) IsValid() bool {
	switch s {
	case BatchStatusOpen, BatchStatusCompleted, BatchStatusDiscarded, BatchStatusRolledBack:
		return true
	}
	return false
}

// IsTerminal returns true if no further transition is possible
func (s BatchStatus) IsTerminal() bool {
	return s == BatchStatusDiscarded || s == BatchStatusRolledBack
}

// batchTransitions is the complete set of legal lifecycle moves
var batchTransitions = map[BatchStatus][]BatchStatus{
	BatchStatusOpen:      {BatchStatusCompleted, BatchStatusDiscarded},
	BatchStatusCompleted: {BatchStatusRolledBack},
}

// CanTransitionTo reports whether the lifecycle allows moving to next
func (s BatchStatus) CanTransitionTo(next BatchStatus) bool {
	for _, allowed := range batchTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// BatchCounts are the aggregate counters stored when a batch completes
type BatchCounts struct {
	New     int `json:"new"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

// ImportBatch is one ingestion attempt of a CRM export
type ImportBatch struct {
	shared.BaseAggregateRoot
	FileName     string
	FileSize     int64
	Encoding     string
	Delimiter    string
	TotalRows    int
	ArchiveKey   string
	Status       BatchStatus
	CreatedBy    *uuid.UUID
	Counts       BatchCounts
	CompletedAt  *time.Time
	CompletedBy  *uuid.UUID
	DiscardedAt  *time.Time
	DiscardedBy  *uuid.UUID
	RolledBackAt *time.Time
	RolledBackBy *uuid.UUID
}

// NewImportBatch creates a batch in the open state
func NewImportBatch(fileName string, fileSize int64, createdBy *uuid.UUID) (*ImportBatch, error) {
	if fileName == "" {
		return nil, shared.NewDomainError("INVALID_FILE_NAME", "File name cannot be empty")
	}
	if fileSize < 0 {
		return nil, shared.NewDomainError("INVALID_FILE_SIZE", "File size cannot be negative")
	}

	batch := &ImportBatch{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		FileName:          fileName,
		FileSize:          fileSize,
		Status:            BatchStatusOpen,
		CreatedBy:         createdBy,
	}
	return batch, nil
}

// IsOpen returns true while the batch accepts staging mutations
func (b *ImportBatch) IsOpen() bool {
	return b.Status == BatchStatusOpen
}

// EnsureOpen returns a *BatchNotOpenError unless the batch is open
func (b *ImportBatch) EnsureOpen() error {
	if !b.IsOpen() {
		return &BatchNotOpenError{BatchID: b.ID, Status: b.Status}
	}
	return nil
}

// Staged records parse metadata once the rows have been matched
func (b *ImportBatch) Staged(encoding, delimiter string, totalRows int) {
	b.Encoding = encoding
	b.Delimiter = delimiter
	b.TotalRows = totalRows
	b.AddDomainEvent(NewBatchCreatedEvent(b))
}

// SetArchiveKey remembers where the raw export was archived
func (b *ImportBatch) SetArchiveKey(key string) {
	b.ArchiveKey = key
	b.Touch()
}

// Complete marks the batch completed after every selected row was committed
func (b *ImportBatch) Complete(by *uuid.UUID, counts BatchCounts) error {
	if err := b.transition(BatchStatusCompleted); err != nil {
		return err
	}
	now := time.Now().UTC()
	b.Counts = counts
	b.CompletedAt = &now
	b.CompletedBy = by
	b.AddDomainEvent(NewBatchCommittedEvent(b))
	return nil
}

// Discard abandons an open batch; the permanent store is never touched
func (b *ImportBatch) Discard(by *uuid.UUID) error {
	if err := b.transition(BatchStatusDiscarded); err != nil {
		return err
	}
	now := time.Now().UTC()
	b.DiscardedAt = &now
	b.DiscardedBy = by
	b.AddDomainEvent(NewBatchDiscardedEvent(b))
	return nil
}

// RollBack marks a completed batch as rolled back
func (b *ImportBatch) RollBack(by *uuid.UUID) error {
	if b.Status == BatchStatusRolledBack {
		return ErrAlreadyRolledBack
	}
	if err := b.transition(BatchStatusRolledBack); err != nil {
		return err
	}
	now := time.Now().UTC()
	b.RolledBackAt = &now
	b.RolledBackBy = by
	b.AddDomainEvent(NewBatchRolledBackEvent(b))
	return nil
}

func (b *ImportBatch) transition(next BatchStatus) error {
	if !b.Status.CanTransitionTo(next) {
		return &InvalidTransitionError{BatchID: b.ID, From: b.Status, To: next}
	}
	b.Status = next
	b.Touch()
	return nil
}
