// Package importapp implements the CRM export reconciliation workflow: staging
// an uploaded export as an open batch, letting an operator review it, and
// committing or rolling it back.
package importapp

import (
	"context"

	"github.com/google/uuid"
	"github.com/salesplan/backend/internal/domain/shared"
)

// ErrNotArchived is returned when the raw export of a batch is not available
var ErrNotArchived = shared.NewDomainError("NOT_ARCHIVED", "The export of this batch was not archived")

// ExportArchive keeps the raw bytes of uploaded exports
type ExportArchive interface {
	// Store returns the key under which the export was archived; an empty key
	// means it was not archived
	Store(ctx context.Context, batchID uuid.UUID, fileName string, data []byte) (string, error)
	// Fetch returns ErrNotArchived when nothing is stored under key
	Fetch(ctx context.Context, key string) ([]byte, error)
}

// ProgressFunc receives one notification per committed row
type ProgressFunc func(CommitProgress)

// DirectoryInvalidator is implemented by user directories that cache. Rematch
// invalidates before reading so it sees directory changes.
type DirectoryInvalidator interface {
	Invalidate(ctx context.Context) error
}
