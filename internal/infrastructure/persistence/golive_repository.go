package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/salesplan/backend/internal/domain/crm"
	"github.com/salesplan/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormGoLiveRepository implements GoLiveRepository using GORM
type GormGoLiveRepository struct {
	db *gorm.DB
}

// NewGormGoLiveRepository creates a new GormGoLiveRepository
func NewGormGoLiveRepository(db *gorm.DB) *GormGoLiveRepository {
	return &GormGoLiveRepository{db: db}
}

// Save creates or updates a go-live
func (r *GormGoLiveRepository) Save(ctx context.Context, goLive *crm.GoLive) error {
	return r.db.WithContext(ctx).Save(models.GoLiveModelFromDomain(goLive)).Error
}

// FindByOpportunity returns go-lives referencing an opportunity
func (r *GormGoLiveRepository) FindByOpportunity(ctx context.Context, opportunityID uuid.UUID) ([]*crm.GoLive, error) {
	var goLiveModels []models.GoLiveModel
	if err := r.db.WithContext(ctx).
		Where("opportunity_id = ?", opportunityID).
		Find(&goLiveModels).Error; err != nil {
		return nil, err
	}
	goLives := make([]*crm.GoLive, len(goLiveModels))
	for i := range goLiveModels {
		goLives[i] = goLiveModels[i].ToDomain()
	}
	return goLives, nil
}

// CountByOpportunities counts go-lives referencing any of the opportunities
func (r *GormGoLiveRepository) CountByOpportunities(ctx context.Context, opportunityIDs []uuid.UUID) (int64, error) {
	if len(opportunityIDs) == 0 {
		return 0, nil
	}
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.GoLiveModel{}).
		Where("opportunity_id IN ?", opportunityIDs).
		Count(&count).Error
	return count, err
}
