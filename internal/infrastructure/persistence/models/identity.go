package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/salesplan/backend/internal/domain/crm"
)

// UserModel is the persistence model for a directory user.
type UserModel struct {
	BaseModel
	Name   string `gorm:"type:varchar(200);not null"`
	Email  string `gorm:"type:varchar(200)"`
	Role   string `gorm:"type:varchar(50);not null;default:'sales'"`
	Active bool   `gorm:"not null;default:true"`
}

// TableName returns the table name for GORM
func (UserModel) TableName() string {
	return "users"
}

// ToDomain converts the persistence model to a domain User.
func (m *UserModel) ToDomain() crm.User {
	return crm.User{
		ID:   m.ID,
		Name: m.Name,
		Role: m.Role,
	}
}

// NewUserModel creates an active user row. Used by seeding and tests.
func NewUserModel(name, role string) *UserModel {
	now := time.Now().UTC()
	return &UserModel{
		BaseModel: BaseModel{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		Name:      name,
		Role:      role,
		Active:    true,
	}
}
