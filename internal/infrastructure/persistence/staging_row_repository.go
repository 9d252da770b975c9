package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/salesplan/backend/internal/domain/bulk"
	"github.com/salesplan/backend/internal/domain/shared"
	"github.com/salesplan/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormStagingRowRepository implements StagingRowRepository using GORM
type GormStagingRowRepository struct {
	db *gorm.DB
}

// NewGormStagingRowRepository creates a new GormStagingRowRepository
func NewGormStagingRowRepository(db *gorm.DB) *GormStagingRowRepository {
	return &GormStagingRowRepository{db: db}
}

// FindByBatch returns the batch rows in parse order
func (r *GormStagingRowRepository) FindByBatch(ctx context.Context, batchID uuid.UUID, filter bulk.RowFilter) ([]*bulk.StagingRow, error) {
	query := r.db.WithContext(ctx).Where("batch_id = ?", batchID)
	if filter.MatchStatus != nil {
		query = query.Where("match_status = ?", *filter.MatchStatus)
	}
	if filter.Selected != nil {
		query = query.Where("is_selected = ?", *filter.Selected)
	}
	if filter.OwnerName != nil {
		query = query.Where("owner_name = ?", *filter.OwnerName)
	}

	var rowModels []models.StagingRowModel
	if err := query.Order("row_index ASC").Find(&rowModels).Error; err != nil {
		return nil, err
	}

	rows := make([]*bulk.StagingRow, len(rowModels))
	for i := range rowModels {
		rows[i] = rowModels[i].ToDomain()
	}
	return rows, nil
}

// FindByID finds a row of a batch
func (r *GormStagingRowRepository) FindByID(ctx context.Context, batchID, rowID uuid.UUID) (*bulk.StagingRow, error) {
	var model models.StagingRowModel
	if err := r.db.WithContext(ctx).
		Where("batch_id = ? AND id = ?", batchID, rowID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// SaveAll persists the rows in one transaction
func (r *GormStagingRowRepository) SaveAll(ctx context.Context, rows []*bulk.StagingRow) error {
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, row := range rows {
			if err := tx.Save(models.StagingRowModelFromDomain(row)).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
