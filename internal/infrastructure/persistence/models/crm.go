package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/salesplan/backend/internal/domain/crm"
	"github.com/shopspring/decimal"
)

// OpportunityModel is the persistence model for the Opportunity entity.
type OpportunityModel struct {
	BaseModel
	ExternalID    string           `gorm:"type:varchar(255);index"`
	Name          string           `gorm:"type:varchar(255);not null"`
	Stage         string           `gorm:"type:varchar(100);not null"`
	CloseDate     *time.Time       `gorm:"type:date"`
	CreatedDate   *time.Time       `gorm:"type:date"`
	Rating        string           `gorm:"type:varchar(50)"`
	NextStep      string           `gorm:"type:text"`
	Amount        *decimal.Decimal `gorm:"type:numeric(18,2)"`
	OwnerID       *uuid.UUID       `gorm:"type:uuid;index"`
	Note          string           `gorm:"type:text"`
	LeadID        *uuid.UUID       `gorm:"type:uuid;index"`
	ImportBatchID *uuid.UUID       `gorm:"type:uuid;index"`
	ImportRowID   *uuid.UUID       `gorm:"type:uuid;uniqueIndex"`
}

// TableName returns the table name for GORM
func (OpportunityModel) TableName() string {
	return "opportunities"
}

// ToDomain converts the persistence model to a domain Opportunity.
func (m *OpportunityModel) ToDomain() *crm.Opportunity {
	return &crm.Opportunity{
		BaseEntity:    m.BaseModel.ToDomain(),
		ExternalID:    m.ExternalID,
		Name:          m.Name,
		Stage:         crm.Stage(m.Stage),
		CloseDate:     m.CloseDate,
		CreatedDate:   m.CreatedDate,
		Rating:        m.Rating,
		NextStep:      m.NextStep,
		Amount:        m.Amount,
		OwnerID:       m.OwnerID,
		Note:          m.Note,
		LeadID:        m.LeadID,
		ImportBatchID: m.ImportBatchID,
		ImportRowID:   m.ImportRowID,
	}
}

// FromDomain populates the persistence model from a domain Opportunity.
func (m *OpportunityModel) FromDomain(o *crm.Opportunity) {
	m.FromDomainBaseEntity(o.BaseEntity)
	m.ExternalID = o.ExternalID
	m.Name = o.Name
	m.Stage = o.Stage.String()
	m.CloseDate = o.CloseDate
	m.CreatedDate = o.CreatedDate
	m.Rating = o.Rating
	m.NextStep = o.NextStep
	m.Amount = o.Amount
	m.OwnerID = o.OwnerID
	m.Note = o.Note
	m.LeadID = o.LeadID
	m.ImportBatchID = o.ImportBatchID
	m.ImportRowID = o.ImportRowID
}

// OpportunityModelFromDomain creates a new persistence model from a domain Opportunity.
func OpportunityModelFromDomain(o *crm.Opportunity) *OpportunityModel {
	m := &OpportunityModel{}
	m.FromDomain(o)
	return m
}

// LeadModel is the persistence model for the Lead entity.
type LeadModel struct {
	BaseModel
	CompanyName   string     `gorm:"type:varchar(255);not null;index"`
	OwnerID       *uuid.UUID `gorm:"type:uuid"`
	ImportBatchID *uuid.UUID `gorm:"type:uuid;index"`
}

// TableName returns the table name for GORM
func (LeadModel) TableName() string {
	return "leads"
}

// ToDomain converts the persistence model to a domain Lead.
func (m *LeadModel) ToDomain() *crm.Lead {
	return &crm.Lead{
		BaseEntity:    m.BaseModel.ToDomain(),
		CompanyName:   m.CompanyName,
		OwnerID:       m.OwnerID,
		ImportBatchID: m.ImportBatchID,
	}
}

// LeadModelFromDomain creates a new persistence model from a domain Lead.
func LeadModelFromDomain(l *crm.Lead) *LeadModel {
	m := &LeadModel{
		CompanyName:   l.CompanyName,
		OwnerID:       l.OwnerID,
		ImportBatchID: l.ImportBatchID,
	}
	m.FromDomainBaseEntity(l.BaseEntity)
	return m
}

// GoLiveModel is the persistence model for the GoLive entity.
type GoLiveModel struct {
	BaseModel
	Title         string     `gorm:"type:varchar(255);not null"`
	GoLiveDate    *time.Time `gorm:"type:date"`
	OpportunityID *uuid.UUID `gorm:"type:uuid;index"`
}

// TableName returns the table name for GORM
func (GoLiveModel) TableName() string {
	return "go_lives"
}

// ToDomain converts the persistence model to a domain GoLive.
func (m *GoLiveModel) ToDomain() *crm.GoLive {
	return &crm.GoLive{
		BaseEntity:    m.BaseModel.ToDomain(),
		Title:         m.Title,
		GoLiveDate:    m.GoLiveDate,
		OpportunityID: m.OpportunityID,
	}
}

// GoLiveModelFromDomain creates a new persistence model from a domain GoLive.
func GoLiveModelFromDomain(g *crm.GoLive) *GoLiveModel {
	m := &GoLiveModel{
		Title:         g.Title,
		GoLiveDate:    g.GoLiveDate,
		OpportunityID: g.OpportunityID,
	}
	m.FromDomainBaseEntity(g.BaseEntity)
	return m
}

// OpportunityRevisionModel is the persistence model for an OpportunityRevision.
type OpportunityRevisionModel struct {
	ID            uuid.UUID `gorm:"type:uuid;primary_key"`
	OpportunityID uuid.UUID `gorm:"type:uuid;not null;index"`
	ImportBatchID uuid.UUID `gorm:"type:uuid;not null;index:idx_revisions_batch_row,priority:1"`
	ImportRowID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_revisions_import_row"`
	RowIndex      int       `gorm:"not null;index:idx_revisions_batch_row,priority:2"`
	ChangesJSON   string    `gorm:"column:changes;type:jsonb;not null"`
	CreatedAt     time.Time `gorm:"not null"`
	RevertedAt    *time.Time
}

// TableName returns the table name for GORM
func (OpportunityRevisionModel) TableName() string {
	return "opportunity_revisions"
}

// ToDomain converts the persistence model to a domain OpportunityRevision.
// A changes payload that does not decode is an error.
func (m *OpportunityRevisionModel) ToDomain() (*crm.OpportunityRevision, error) {
	rev := &crm.OpportunityRevision{
		ID:            m.ID,
		OpportunityID: m.OpportunityID,
		ImportBatchID: m.ImportBatchID,
		ImportRowID:   m.ImportRowID,
		RowIndex:      m.RowIndex,
		CreatedAt:     m.CreatedAt,
		RevertedAt:    m.RevertedAt,
	}
	if err := json.Unmarshal([]byte(m.ChangesJSON), &rev.Changes); err != nil {
		return nil, fmt.Errorf("revision %s has unreadable changes: %w", m.ID, err)
	}
	return rev, nil
}

// OpportunityRevisionModelFromDomain creates a new persistence model from a domain OpportunityRevision.
func OpportunityRevisionModelFromDomain(r *crm.OpportunityRevision) (*OpportunityRevisionModel, error) {
	data, err := json.Marshal(r.Changes)
	if err != nil {
		return nil, err
	}
	return &OpportunityRevisionModel{
		ID:            r.ID,
		OpportunityID: r.OpportunityID,
		ImportBatchID: r.ImportBatchID,
		ImportRowID:   r.ImportRowID,
		RowIndex:      r.RowIndex,
		ChangesJSON:   string(data),
		CreatedAt:     r.CreatedAt,
		RevertedAt:    r.RevertedAt,
	}, nil
}

// AllModels lists every model of the schema, for AutoMigrate in tests.
func AllModels() []any {
	return []any{
		&UserModel{},
		&ImportBatchModel{},
		&StagingRowModel{},
		&LeadModel{},
		&OpportunityModel{},
		&GoLiveModel{},
		&OpportunityRevisionModel{},
	}
}
