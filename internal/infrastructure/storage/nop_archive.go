package storage

import (
	"context"

	"github.com/google/uuid"
	importapp "github.com/salesplan/backend/internal/application/import"
)

var _ importapp.ExportArchive = NopExportArchive{}

// NopExportArchive is used when archiving is disabled. Batches keep an empty
// archive key and fetching always reports ErrArchiveNotFound.
type NopExportArchive struct{}

// Store discards the export
func (NopExportArchive) Store(context.Context, uuid.UUID, string, []byte) (string, error) {
	return "", nil
}

// Fetch always fails with ErrArchiveNotFound
func (NopExportArchive) Fetch(context.Context, string) ([]byte, error) {
	return nil, ErrArchiveNotFound
}
