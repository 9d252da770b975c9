package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/salesplan/backend/internal/domain/crm"
	"github.com/salesplan/backend/internal/domain/shared"
	"github.com/salesplan/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormLeadRepository implements LeadRepository using GORM
type GormLeadRepository struct {
	db *gorm.DB
}

// NewGormLeadRepository creates a new GormLeadRepository
func NewGormLeadRepository(db *gorm.DB) *GormLeadRepository {
	return &GormLeadRepository{db: db}
}

// FindByCompanyName returns the oldest lead with the company name, ignoring case
func (r *GormLeadRepository) FindByCompanyName(ctx context.Context, companyName string) (*crm.Lead, error) {
	var model models.LeadModel
	if err := r.db.WithContext(ctx).
		Where("LOWER(company_name) = ?", crm.CompanyKey(companyName)).
		Order("created_at ASC").
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByImportBatch returns the leads a batch created
func (r *GormLeadRepository) FindByImportBatch(ctx context.Context, batchID uuid.UUID) ([]*crm.Lead, error) {
	var leadModels []models.LeadModel
	if err := r.db.WithContext(ctx).
		Where("import_batch_id = ?", batchID).
		Order("created_at ASC").
		Find(&leadModels).Error; err != nil {
		return nil, err
	}
	leads := make([]*crm.Lead, len(leadModels))
	for i := range leadModels {
		leads[i] = leadModels[i].ToDomain()
	}
	return leads, nil
}

// CountOpportunities counts the opportunities still attached to a lead
func (r *GormLeadRepository) CountOpportunities(ctx context.Context, leadID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.OpportunityModel{}).
		Where("lead_id = ?", leadID).
		Count(&count).Error
	return count, err
}

// Delete deletes a lead by ID
func (r *GormLeadRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&models.LeadModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}
