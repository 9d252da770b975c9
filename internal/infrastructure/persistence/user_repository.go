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

// GormUserRepository reads the user directory using GORM
type GormUserRepository struct {
	db *gorm.DB
}

// NewGormUserRepository creates a new GormUserRepository
func NewGormUserRepository(db *gorm.DB) *GormUserRepository {
	return &GormUserRepository{db: db}
}

// FindAll returns every active user ordered by name
func (r *GormUserRepository) FindAll(ctx context.Context) ([]crm.User, error) {
	var userModels []models.UserModel
	if err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Order("name ASC").
		Find(&userModels).Error; err != nil {
		return nil, err
	}
	users := make([]crm.User, len(userModels))
	for i := range userModels {
		users[i] = userModels[i].ToDomain()
	}
	return users, nil
}

// FindByID finds an active user by ID
func (r *GormUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*crm.User, error) {
	var model models.UserModel
	if err := r.db.WithContext(ctx).
		Where("id = ? AND active = ?", id, true).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	user := model.ToDomain()
	return &user, nil
}
