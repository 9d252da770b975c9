package bulk

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/salesplan/backend/internal/domain/shared"
)

var (
	// ErrAlreadyRolledBack is returned when rolling back a batch twice
	ErrAlreadyRolledBack = shared.NewDomainError("ALREADY_ROLLED_BACK", "Import batch has already been rolled back")

	// ErrSelectionNotAllowed is returned when selecting a row that would not mutate anything
	ErrSelectionNotAllowed = shared.NewDomainError("SELECTION_NOT_ALLOWED", "Unchanged rows cannot be selected")
)

// OpenBatchExistsError is returned when creating a batch while another is open
type OpenBatchExistsError struct {
	BatchID uuid.UUID
}

func (e *OpenBatchExistsError) Error() string {
	if e.BatchID == uuid.Nil {
		return "an import batch is already open"
	}
	return fmt.Sprintf("import batch %s is already open; commit or discard it first", e.BatchID)
}

// BatchNotOpenError is returned when mutating a batch that has left the open state
type BatchNotOpenError struct {
	BatchID uuid.UUID
	Status  BatchStatus
}

func (e *BatchNotOpenError) Error() string {
	return fmt.Sprintf("import batch %s is %s, not open", e.BatchID, e.Status)
}

// InvalidTransitionError is returned for any lifecycle move outside the state machine
type InvalidTransitionError struct {
	BatchID uuid.UUID
	From    BatchStatus
	To      BatchStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("import batch %s cannot go from %s to %s", e.BatchID, e.From, e.To)
}

// RowCommitError reports the row that stopped a commit. Rows before it stay persisted.
type RowCommitError struct {
	RowIndex   int
	RowID      uuid.UUID
	ExternalID string
	Committed  int
	Err        error
}

func (e *RowCommitError) Error() string {
	return fmt.Sprintf("commit stopped at row %d (%d rows committed): %v", e.RowIndex, e.Committed, e.Err)
}

func (e *RowCommitError) Unwrap() error {
	return e.Err
}
