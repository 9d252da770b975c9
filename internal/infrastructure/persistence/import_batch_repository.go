package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/salesplan/backend/internal/domain/bulk"
	"github.com/salesplan/backend/internal/domain/shared"
	"github.com/salesplan/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

const stagingInsertBatchSize = 200

// GormImportBatchRepository implements ImportBatchRepository using GORM
type GormImportBatchRepository struct {
	db *gorm.DB
}

// NewGormImportBatchRepository creates a new GormImportBatchRepository
func NewGormImportBatchRepository(db *gorm.DB) *GormImportBatchRepository {
	return &GormImportBatchRepository{db: db}
}

// errBatchInsertConflict marks a unique violation raised by the batch insert
// itself, as opposed to one raised while staging its rows
var errBatchInsertConflict = errors.New("import batch insert conflict")

// CreateOpen inserts the batch and its rows in one transaction. The unique
// index on open_marker turns a concurrent second insert into a constraint
// violation, reported as *bulk.OpenBatchExistsError. Violations raised by the
// staging rows are returned as they are.
func (r *GormImportBatchRepository) CreateOpen(ctx context.Context, batch *bulk.ImportBatch, rows []*bulk.StagingRow) error {
	if !batch.IsOpen() {
		return &bulk.InvalidTransitionError{BatchID: batch.ID, From: batch.Status, To: bulk.BatchStatusOpen}
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(models.ImportBatchModelFromDomain(batch)).Error; err != nil {
			if isUniqueViolation(err) {
				return errBatchInsertConflict
			}
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		rowModels := make([]*models.StagingRowModel, len(rows))
		for i, row := range rows {
			rowModels[i] = models.StagingRowModelFromDomain(row)
		}
		if err := tx.CreateInBatches(rowModels, stagingInsertBatchSize).Error; err != nil {
			return fmt.Errorf("failed to stage rows of batch %s: %w", batch.ID, err)
		}
		return nil
	})
	if !errors.Is(err, errBatchInsertConflict) {
		return err
	}

	// the batch id itself may collide; only a stored open batch is a conflict
	open, findErr := r.FindOpen(ctx)
	if findErr == nil && open.ID != batch.ID {
		return &bulk.OpenBatchExistsError{BatchID: open.ID}
	}
	if findErr != nil && !errors.Is(findErr, shared.ErrNotFound) {
		return findErr
	}
	return shared.ErrAlreadyExists
}

// FindByID finds a batch by ID
func (r *GormImportBatchRepository) FindByID(ctx context.Context, id uuid.UUID) (*bulk.ImportBatch, error) {
	var model models.ImportBatchModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindOpen returns the single open batch
func (r *GormImportBatchRepository) FindOpen(ctx context.Context) (*bulk.ImportBatch, error) {
	var model models.ImportBatchModel
	if err := r.db.WithContext(ctx).
		Where("open_marker = ?", models.OpenMarker).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAll returns batches with pagination and filtering. Unknown sort fields
// fall back to created_at DESC.
func (r *GormImportBatchRepository) FindAll(
	ctx context.Context,
	filter bulk.BatchFilter,
	page, pageSize int,
) (*bulk.BatchListResult, error) {
	query := r.db.WithContext(ctx).Model(&models.ImportBatchModel{})
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}

	var totalCount int64
	if err := query.Count(&totalCount).Error; err != nil {
		return nil, err
	}

	if page > 0 && pageSize > 0 {
		offset := (page - 1) * pageSize
		query = query.Offset(offset).Limit(pageSize)
	}

	var batchModels []models.ImportBatchModel
	sortBy := ValidateSortField(filter.SortBy, ImportBatchSortFields, "created_at")
	order := sortBy + " " + ValidateSortOrder(filter.SortOrder)
	if err := query.Order(order).Find(&batchModels).Error; err != nil {
		return nil, err
	}

	batches := make([]*bulk.ImportBatch, len(batchModels))
	for i := range batchModels {
		batches[i] = batchModels[i].ToDomain()
	}

	return &bulk.BatchListResult{
		Items:      batches,
		TotalCount: totalCount,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}

// Save updates the batch, guarded by its version
func (r *GormImportBatchRepository) Save(ctx context.Context, batch *bulk.ImportBatch) error {
	if err := r.update(r.db.WithContext(ctx), batch); err != nil {
		return err
	}
	batch.IncrementVersion()
	return nil
}

// Close saves the batch and purges its staging rows in one transaction
func (r *GormImportBatchRepository) Close(ctx context.Context, batch *bulk.ImportBatch) error {
	if batch.IsOpen() {
		return &bulk.InvalidTransitionError{BatchID: batch.ID, From: batch.Status, To: batch.Status}
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.update(tx, batch); err != nil {
			return err
		}
		return tx.Where("batch_id = ?", batch.ID).Delete(&models.StagingRowModel{}).Error
	})
	if err != nil {
		return err
	}
	batch.IncrementVersion()
	return nil
}

func (r *GormImportBatchRepository) update(db *gorm.DB, batch *bulk.ImportBatch) error {
	model := models.ImportBatchModelFromDomain(batch)
	model.Version = batch.Version + 1

	result := db.Model(&models.ImportBatchModel{}).
		Where("id = ? AND version = ?", batch.ID, batch.Version).
		Select("*").
		Omit("id", "created_at").
		Updates(model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := db.Model(&models.ImportBatchModel{}).Where("id = ?", batch.ID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return shared.ErrNotFound
		}
		return shared.ErrConcurrencyConflict
	}
	return nil
}
