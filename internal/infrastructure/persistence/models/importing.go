package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/salesplan/backend/internal/domain/bulk"
	"github.com/salesplan/backend/internal/domain/crm"
	"github.com/shopspring/decimal"
)

// OpenMarker is stored in import_batches.open_marker while a batch is open.
// The column carries a unique index, so at most one row can hold it.
const OpenMarker = "open"

// ImportBatchModel is the persistence model for the ImportBatch aggregate.
type ImportBatchModel struct {
	AggregateModel
	FileName     string           `gorm:"type:varchar(255);not null"`
	FileSize     int64            `gorm:"not null;default:0"`
	Encoding     string           `gorm:"type:varchar(50)"`
	Delimiter    string           `gorm:"type:varchar(4)"`
	TotalRows    int              `gorm:"not null;default:0"`
	ArchiveKey   string           `gorm:"type:varchar(500)"`
	Status       bulk.BatchStatus `gorm:"type:varchar(20);not null;default:'open';index"`
	OpenMarker   *string          `gorm:"type:varchar(8);uniqueIndex:uq_import_batches_open_marker"`
	NewCount     int              `gorm:"not null;default:0"`
	UpdatedCount int              `gorm:"not null;default:0"`
	SkippedCount int              `gorm:"not null;default:0"`
	CreatedBy    *uuid.UUID       `gorm:"type:uuid"`
	CompletedAt  *time.Time
	CompletedBy  *uuid.UUID `gorm:"type:uuid"`
	DiscardedAt  *time.Time
	DiscardedBy  *uuid.UUID `gorm:"type:uuid"`
	RolledBackAt *time.Time
	RolledBackBy *uuid.UUID `gorm:"type:uuid"`
}

// TableName returns the table name for GORM
func (ImportBatchModel) TableName() string {
	return "import_batches"
}

// ToDomain converts the persistence model to a domain ImportBatch.
func (m *ImportBatchModel) ToDomain() *bulk.ImportBatch {
	batch := &bulk.ImportBatch{
		FileName:   m.FileName,
		FileSize:   m.FileSize,
		Encoding:   m.Encoding,
		Delimiter:  m.Delimiter,
		TotalRows:  m.TotalRows,
		ArchiveKey: m.ArchiveKey,
		Status:     m.Status,
		CreatedBy:  m.CreatedBy,
		Counts: bulk.BatchCounts{
			New:     m.NewCount,
			Updated: m.UpdatedCount,
			Skipped: m.SkippedCount,
		},
		CompletedAt:  m.CompletedAt,
		CompletedBy:  m.CompletedBy,
		DiscardedAt:  m.DiscardedAt,
		DiscardedBy:  m.DiscardedBy,
		RolledBackAt: m.RolledBackAt,
		RolledBackBy: m.RolledBackBy,
	}
	m.PopulateAggregateRoot(&batch.BaseAggregateRoot)
	return batch
}

// FromDomain populates the persistence model from a domain ImportBatch.
func (m *ImportBatchModel) FromDomain(b *bulk.ImportBatch) {
	m.FromDomainAggregateRoot(b.BaseAggregateRoot)
	m.FileName = b.FileName
	m.FileSize = b.FileSize
	m.Encoding = b.Encoding
	m.Delimiter = b.Delimiter
	m.TotalRows = b.TotalRows
	m.ArchiveKey = b.ArchiveKey
	m.Status = b.Status
	m.NewCount = b.Counts.New
	m.UpdatedCount = b.Counts.Updated
	m.SkippedCount = b.Counts.Skipped
	m.CreatedBy = b.CreatedBy
	m.CompletedAt = b.CompletedAt
	m.CompletedBy = b.CompletedBy
	m.DiscardedAt = b.DiscardedAt
	m.DiscardedBy = b.DiscardedBy
	m.RolledBackAt = b.RolledBackAt
	m.RolledBackBy = b.RolledBackBy

	m.OpenMarker = nil
	if b.Status == bulk.BatchStatusOpen {
		marker := OpenMarker
		m.OpenMarker = &marker
	}
}

// ImportBatchModelFromDomain creates a new persistence model from a domain ImportBatch.
func ImportBatchModelFromDomain(b *bulk.ImportBatch) *ImportBatchModel {
	m := &ImportBatchModel{}
	m.FromDomain(b)
	return m
}

// StagingRowModel is the persistence model for a StagingRow.
type StagingRowModel struct {
	ID              uuid.UUID            `gorm:"type:uuid;primary_key"`
	BatchID         uuid.UUID            `gorm:"type:uuid;not null;index:idx_staging_rows_batch_row,priority:1"`
	RowIndex        int                  `gorm:"not null;index:idx_staging_rows_batch_row,priority:2"`
	LineNumber      int                  `gorm:"not null;default:0"`
	CompanyName     string               `gorm:"type:varchar(255);not null"`
	Stage           string               `gorm:"type:varchar(100);not null"`
	CloseDate       *time.Time           `gorm:"type:date"`
	CreatedDate     *time.Time           `gorm:"type:date"`
	OwnerName       string               `gorm:"type:varchar(255)"`
	Link            string               `gorm:"type:varchar(2048)"`
	ExternalID      string               `gorm:"type:varchar(255);index"`
	Rating          string               `gorm:"type:varchar(50)"`
	NextStep        string               `gorm:"type:text"`
	Amount          *decimal.Decimal     `gorm:"type:numeric(18,2)"`
	HasCloseDate    bool                 `gorm:"not null;default:false"`
	HasRating       bool                 `gorm:"not null;default:false"`
	HasNextStep     bool                 `gorm:"not null;default:false"`
	OpportunityID   *uuid.UUID           `gorm:"type:uuid"`
	MatchedUserID   *uuid.UUID           `gorm:"type:uuid"`
	UserMatchStatus bulk.UserMatchStatus `gorm:"type:varchar(20);not null"`
	MatchStatus     bulk.MatchStatus     `gorm:"type:varchar(20);not null;index"`
	ChangesJSON     string               `gorm:"column:changes;type:jsonb;default:'{}'"`
	IsSelected      bool                 `gorm:"not null;default:false"`
	Note            string               `gorm:"type:text"`
	CreatedAt       time.Time            `gorm:"not null"`
	UpdatedAt       time.Time            `gorm:"not null"`
}

// TableName returns the table name for GORM
func (StagingRowModel) TableName() string {
	return "staging_rows"
}

// ToDomain converts the persistence model to a domain StagingRow.
func (m *StagingRowModel) ToDomain() *bulk.StagingRow {
	row := &bulk.StagingRow{
		ID:      m.ID,
		BatchID: m.BatchID,
		Record: bulk.ExportRecord{
			RowIndex:     m.RowIndex,
			LineNumber:   m.LineNumber,
			CompanyName:  m.CompanyName,
			Stage:        crm.Stage(m.Stage),
			CloseDate:    m.CloseDate,
			CreatedDate:  m.CreatedDate,
			OwnerName:    m.OwnerName,
			Link:         m.Link,
			ExternalID:   m.ExternalID,
			Rating:       m.Rating,
			NextStep:     m.NextStep,
			Amount:       m.Amount,
			HasCloseDate: m.HasCloseDate,
			HasRating:    m.HasRating,
			HasNextStep:  m.HasNextStep,
		},
		OpportunityID:   m.OpportunityID,
		MatchedUserID:   m.MatchedUserID,
		UserMatchStatus: m.UserMatchStatus,
		MatchStatus:     m.MatchStatus,
		IsSelected:      m.IsSelected,
		Note:            m.Note,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}

	if m.ChangesJSON != "" {
		var changes map[string]crm.FieldChange
		if err := json.Unmarshal([]byte(m.ChangesJSON), &changes); err == nil && len(changes) > 0 {
			row.Changes = changes
		}
	}
	return row
}

// FromDomain populates the persistence model from a domain StagingRow.
func (m *StagingRowModel) FromDomain(r *bulk.StagingRow) {
	m.ID = r.ID
	m.BatchID = r.BatchID
	m.RowIndex = r.Record.RowIndex
	m.LineNumber = r.Record.LineNumber
	m.CompanyName = r.Record.CompanyName
	m.Stage = r.Record.Stage.String()
	m.CloseDate = r.Record.CloseDate
	m.CreatedDate = r.Record.CreatedDate
	m.OwnerName = r.Record.OwnerName
	m.Link = r.Record.Link
	m.ExternalID = r.Record.ExternalID
	m.Rating = r.Record.Rating
	m.NextStep = r.Record.NextStep
	m.Amount = r.Record.Amount
	m.HasCloseDate = r.Record.HasCloseDate
	m.HasRating = r.Record.HasRating
	m.HasNextStep = r.Record.HasNextStep
	m.OpportunityID = r.OpportunityID
	m.MatchedUserID = r.MatchedUserID
	m.UserMatchStatus = r.UserMatchStatus
	m.MatchStatus = r.MatchStatus
	m.IsSelected = r.IsSelected
	m.Note = r.Note
	m.CreatedAt = r.CreatedAt
	m.UpdatedAt = r.UpdatedAt

	m.ChangesJSON = "{}"
	if len(r.Changes) > 0 {
		if data, err := json.Marshal(r.Changes); err == nil {
			m.ChangesJSON = string(data)
		}
	}
}

// StagingRowModelFromDomain creates a new persistence model from a domain StagingRow.
func StagingRowModelFromDomain(r *bulk.StagingRow) *StagingRowModel {
	m := &StagingRowModel{}
	m.FromDomain(r)
	return m
}
