package bulk

import (
	"context"

	"github.com/google/uuid"
)

// BatchFilter defines filtering options for listing batches
type BatchFilter struct {
	Status    *BatchStatus
	SortBy    string
	SortOrder string
}

// BatchListResult is a page of batches
type BatchListResult struct {
	Items      []*ImportBatch
	TotalCount int64
	Page       int
	PageSize   int
}

// ImportBatchRepository persists import batches
type ImportBatchRepository interface {
	// CreateOpen inserts an open batch together with its staging rows in one
	// transaction. Returns *OpenBatchExistsError if another batch is open.
	CreateOpen(ctx context.Context, batch *ImportBatch, rows []*StagingRow) error

	FindByID(ctx context.Context, id uuid.UUID) (*ImportBatch, error)

	// FindOpen returns the open batch or shared.ErrNotFound
	FindOpen(ctx context.Context) (*ImportBatch, error)

	// FindAll lists batches, newest first
	FindAll(ctx context.Context, filter BatchFilter, page, pageSize int) (*BatchListResult, error)

	// Save updates the batch. Returns shared.ErrConcurrencyConflict when the
	// stored version is not the one the batch was loaded with.
	Save(ctx context.Context, batch *ImportBatch) error

	// Close saves a batch that left the open state and purges its staging
	// rows in one transaction
	Close(ctx context.Context, batch *ImportBatch) error
}

// RowFilter narrows the rows of a batch
type RowFilter struct {
	MatchStatus *MatchStatus
	Selected    *bool
	OwnerName   *string
}

// StagingRowRepository persists staging rows
type StagingRowRepository interface {
	// FindByBatch returns the rows ordered by row index
	FindByBatch(ctx context.Context, batchID uuid.UUID, filter RowFilter) ([]*StagingRow, error)

	// FindByID returns shared.ErrNotFound when the row is not in the batch
	FindByID(ctx context.Context, batchID, rowID uuid.UUID) (*StagingRow, error)

	SaveAll(ctx context.Context, rows []*StagingRow) error
}
