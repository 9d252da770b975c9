package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/salesplan/backend/internal/domain/crm"
	"github.com/salesplan/backend/internal/domain/shared"
	"github.com/salesplan/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// externalIDChunkSize bounds the IN list of a single lookup query
const externalIDChunkSize = 500

// GormOpportunityRepository implements OpportunityRepository using GORM
type GormOpportunityRepository struct {
	db *gorm.DB
}

// NewGormOpportunityRepository creates a new GormOpportunityRepository
func NewGormOpportunityRepository(db *gorm.DB) *GormOpportunityRepository {
	return &GormOpportunityRepository{db: db}
}

// FindByID finds an opportunity by ID
func (r *GormOpportunityRepository) FindByID(ctx context.Context, id uuid.UUID) (*crm.Opportunity, error) {
	var model models.OpportunityModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByExternalIDs loads opportunities keyed by external id
func (r *GormOpportunityRepository) FindByExternalIDs(ctx context.Context, externalIDs []string) (map[string]*crm.Opportunity, error) {
	result := make(map[string]*crm.Opportunity, len(externalIDs))
	for start := 0; start < len(externalIDs); start += externalIDChunkSize {
		end := min(start+externalIDChunkSize, len(externalIDs))

		var oppModels []models.OpportunityModel
		if err := r.db.WithContext(ctx).
			Where("external_id IN ?", externalIDs[start:end]).
			Order("created_at ASC").
			Find(&oppModels).Error; err != nil {
			return nil, err
		}
		for i := range oppModels {
			if _, dup := result[oppModels[i].ExternalID]; dup {
				continue
			}
			result[oppModels[i].ExternalID] = oppModels[i].ToDomain()
		}
	}
	return result, nil
}

// FindByImportRow finds the opportunity created from a staging row
func (r *GormOpportunityRepository) FindByImportRow(ctx context.Context, rowID uuid.UUID) (*crm.Opportunity, error) {
	var model models.OpportunityModel
	if err := r.db.WithContext(ctx).First(&model, "import_row_id = ?", rowID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByImportBatch returns the opportunities a batch created
func (r *GormOpportunityRepository) FindByImportBatch(ctx context.Context, batchID uuid.UUID) ([]*crm.Opportunity, error) {
	var oppModels []models.OpportunityModel
	if err := r.db.WithContext(ctx).
		Where("import_batch_id = ?", batchID).
		Order("created_at ASC").
		Find(&oppModels).Error; err != nil {
		return nil, err
	}
	opps := make([]*crm.Opportunity, len(oppModels))
	for i := range oppModels {
		opps[i] = oppModels[i].ToDomain()
	}
	return opps, nil
}

// Create inserts the opportunity and optionally its new lead atomically
func (r *GormOpportunityRepository) Create(ctx context.Context, opp *crm.Opportunity, lead *crm.Lead) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if lead != nil {
			if err := tx.Create(models.LeadModelFromDomain(lead)).Error; err != nil {
				return err
			}
		}
		return tx.Create(models.OpportunityModelFromDomain(opp)).Error
	})
	if isUniqueViolation(err) {
		return shared.ErrAlreadyExists
	}
	return err
}

// UpdateWithRevision saves the opportunity and records the revision atomically
func (r *GormOpportunityRepository) UpdateWithRevision(ctx context.Context, opp *crm.Opportunity, rev *crm.OpportunityRevision) error {
	revModel, err := models.OpportunityRevisionModelFromDomain(rev)
	if err != nil {
		return err
	}
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := updateOpportunity(tx, opp); err != nil {
			return err
		}
		return tx.Create(revModel).Error
	})
	if isUniqueViolation(err) {
		return shared.ErrAlreadyExists
	}
	return err
}

// FindRevisionByImportRow finds the revision a staging row recorded
func (r *GormOpportunityRepository) FindRevisionByImportRow(ctx context.Context, rowID uuid.UUID) (*crm.OpportunityRevision, error) {
	var model models.OpportunityRevisionModel
	if err := r.db.WithContext(ctx).
		Where("import_row_id = ?", rowID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain()
}

// FindRevisionsByBatch returns every revision a batch recorded, last row
// first, so revisions stacked on one opportunity unwind in reverse
func (r *GormOpportunityRepository) FindRevisionsByBatch(ctx context.Context, batchID uuid.UUID) ([]*crm.OpportunityRevision, error) {
	var revModels []models.OpportunityRevisionModel
	if err := r.db.WithContext(ctx).
		Where("import_batch_id = ?", batchID).
		Order("row_index DESC").
		Find(&revModels).Error; err != nil {
		return nil, err
	}
	revs := make([]*crm.OpportunityRevision, len(revModels))
	for i := range revModels {
		rev, err := revModels[i].ToDomain()
		if err != nil {
			return nil, err
		}
		revs[i] = rev
	}
	return revs, nil
}

// SaveReverted saves the restored opportunity and marks the revision reverted atomically
func (r *GormOpportunityRepository) SaveReverted(ctx context.Context, opp *crm.Opportunity, rev *crm.OpportunityRevision) error {
	revertedAt := time.Now().UTC()
	if rev.RevertedAt != nil {
		revertedAt = *rev.RevertedAt
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := updateOpportunity(tx, opp); err != nil {
			return err
		}
		return tx.Model(&models.OpportunityRevisionModel{}).
			Where("id = ?", rev.ID).
			Update("reverted_at", revertedAt).Error
	})
}

// Delete severs go-live references and removes the opportunity atomically
func (r *GormOpportunityRepository) Delete(ctx context.Context, id uuid.UUID) (int64, error) {
	var decoupled int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.GoLiveModel{}).
			Where("opportunity_id = ?", id).
			Update("opportunity_id", nil)
		if result.Error != nil {
			return result.Error
		}
		decoupled = result.RowsAffected

		result = tx.Delete(&models.OpportunityModel{}, "id = ?", id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return shared.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return decoupled, nil
}

func updateOpportunity(tx *gorm.DB, opp *crm.Opportunity) error {
	result := tx.Model(&models.OpportunityModel{}).
		Where("id = ?", opp.ID).
		Select("*").
		Omit("id", "created_at").
		Updates(models.OpportunityModelFromDomain(opp))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}
