package importapp

import (
	"time"

	"github.com/google/uuid"
	"github.com/salesplan/backend/internal/domain/bulk"
	"github.com/salesplan/backend/internal/domain/crm"
	"github.com/shopspring/decimal"
)

// UploadInput is a raw export handed in by the operator
type UploadInput struct {
	FileName   string
	Data       []byte
	Encoding   string // empty uses the configured default
	Delimiter  string // empty detects it from the header line
	UploadedBy *uuid.UUID
}

// BatchResponse describes a batch. Rows is set while the batch is open.
type BatchResponse struct {
	ID           uuid.UUID        `json:"id"`
	FileName     string           `json:"file_name"`
	FileSize     int64            `json:"file_size"`
	Encoding     string           `json:"encoding"`
	Delimiter    string           `json:"delimiter"`
	TotalRows    int              `json:"total_rows"`
	Status       string           `json:"status"`
	Archived     bool             `json:"archived"`
	Counts       bulk.BatchCounts `json:"counts"`
	Rows         *bulk.RowSummary `json:"rows,omitempty"`
	CreatedBy    *uuid.UUID       `json:"created_by,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
	DiscardedAt  *time.Time       `json:"discarded_at,omitempty"`
	RolledBackAt *time.Time       `json:"rolled_back_at,omitempty"`
	Version      int              `json:"version"`
}

// ToBatchResponse converts a batch
func ToBatchResponse(b *bulk.ImportBatch, rows *bulk.RowSummary) *BatchResponse {
	return &BatchResponse{
		ID:           b.ID,
		FileName:     b.FileName,
		FileSize:     b.FileSize,
		Encoding:     b.Encoding,
		Delimiter:    b.Delimiter,
		TotalRows:    b.TotalRows,
		Status:       string(b.Status),
		Archived:     b.ArchiveKey != "",
		Counts:       b.Counts,
		Rows:         rows,
		CreatedBy:    b.CreatedBy,
		CreatedAt:    b.CreatedAt,
		CompletedAt:  b.CompletedAt,
		DiscardedAt:  b.DiscardedAt,
		RolledBackAt: b.RolledBackAt,
		Version:      b.GetVersion(),
	}
}

// BatchListQuery filters the batch history
type BatchListQuery struct {
	Status    string `form:"status" binding:"omitempty,oneof=open completed discarded rolled_back"`
	SortBy    string `form:"sort_by" binding:"omitempty,max=50"`
	SortOrder string `form:"sort_order" binding:"omitempty,oneof=asc desc ASC DESC"`
	Page      int    `form:"page" binding:"omitempty,min=1"`
	PageSize  int    `form:"page_size" binding:"omitempty,min=1,max=100"`
}

// BatchListResponse is a page of batches
type BatchListResponse struct {
	Items      []*BatchResponse `json:"items"`
	TotalCount int64            `json:"total_count"`
	Page       int              `json:"page"`
	PageSize   int              `json:"page_size"`
}

// RowQuery filters the rows of a batch
type RowQuery struct {
	MatchStatus string `form:"match_status" binding:"omitempty,oneof=new changed unchanged conflict pending"`
	Selected    *bool  `form:"selected"`
	OwnerName   string `form:"owner_name"`
}

// RowResponse describes a staging row
type RowResponse struct {
	ID              uuid.UUID                  `json:"id"`
	RowIndex        int                        `json:"row_index"`
	LineNumber      int                        `json:"line_number"`
	ExternalID      string                     `json:"external_id"`
	CompanyName     string                     `json:"company_name"`
	Stage           string                     `json:"stage"`
	OwnerName       string                     `json:"owner_name"`
	CloseDate       string                     `json:"close_date,omitempty"`
	Rating          string                     `json:"rating,omitempty"`
	NextStep        string                     `json:"next_step,omitempty"`
	Amount          *decimal.Decimal           `json:"amount,omitempty"`
	Link            string                     `json:"link"`
	OpportunityID   *uuid.UUID                 `json:"opportunity_id,omitempty"`
	MatchedUserID   *uuid.UUID                 `json:"matched_user_id,omitempty"`
	UserMatchStatus string                     `json:"user_match_status"`
	MatchStatus     string                     `json:"match_status"`
	Changes         map[string]crm.FieldChange `json:"changes,omitempty"`
	IsSelected      bool                       `json:"is_selected"`
	Note            string                     `json:"note,omitempty"`
}

// ToRowResponse converts a staging row
func ToRowResponse(r *bulk.StagingRow) *RowResponse {
	return &RowResponse{
		ID:              r.ID,
		RowIndex:        r.Record.RowIndex,
		LineNumber:      r.Record.LineNumber,
		ExternalID:      r.Record.ExternalID,
		CompanyName:     r.Record.CompanyName,
		Stage:           r.Record.Stage.String(),
		OwnerName:       r.Record.OwnerName,
		CloseDate:       crm.FormatDate(r.Record.CloseDate),
		Rating:          r.Record.Rating,
		NextStep:        r.Record.NextStep,
		Amount:          r.Record.Amount,
		Link:            r.Record.Link,
		OpportunityID:   r.OpportunityID,
		MatchedUserID:   r.MatchedUserID,
		UserMatchStatus: string(r.UserMatchStatus),
		MatchStatus:     string(r.MatchStatus),
		Changes:         r.Changes,
		IsSelected:      r.IsSelected,
		Note:            r.Note,
	}
}

// ToRowResponses converts staging rows
func ToRowResponses(rows []*bulk.StagingRow) []*RowResponse {
	out := make([]*RowResponse, len(rows))
	for i, r := range rows {
		out[i] = ToRowResponse(r)
	}
	return out
}

// BulkSelectionInput toggles every row of a batch, optionally only those in one status
type BulkSelectionInput struct {
	Selected    bool   `json:"selected"`
	MatchStatus string `json:"match_status" binding:"omitempty,oneof=new changed unchanged conflict pending"`
}

// BulkSelectionResult reports a bulk toggle. Unchanged rows are skipped.
type BulkSelectionResult struct {
	Affected int `json:"affected"`
	Skipped  int `json:"skipped"`
}

// AssignmentResult reports a bulk assignment
type AssignmentResult struct {
	Assigned int              `json:"assigned"`
	Rows     *bulk.RowSummary `json:"rows"`
}

// CommitProgress is reported after every committed row
type CommitProgress struct {
	Completed  int       `json:"completed"`
	Total      int       `json:"total"`
	RowID      uuid.UUID `json:"row_id"`
	RowIndex   int       `json:"row_index"`
	ExternalID string    `json:"external_id,omitempty"`
}

// CommitResult reports a commit, complete or stopped at a failing row
type CommitResult struct {
	BatchID        uuid.UUID        `json:"batch_id"`
	Status         string           `json:"status"`
	Total          int              `json:"total"`
	Committed      int              `json:"committed"`
	Inserted       int              `json:"inserted"`
	Updated        int              `json:"updated"`
	AlreadyApplied int              `json:"already_applied"`
	Counts         bulk.BatchCounts `json:"counts"`
	Duration       time.Duration    `json:"duration_ns"`
}

// RollbackPreview lists what a rollback would do
type RollbackPreview struct {
	BatchID               uuid.UUID `json:"batch_id"`
	LeadsToDelete         int       `json:"leads_to_delete"`
	LeadsToKeep           int       `json:"leads_to_keep"`
	OpportunitiesToDelete int       `json:"opportunities_to_delete"`
	OpportunitiesToRevert int       `json:"opportunities_to_revert"`
	GoLivesToDecouple     int64     `json:"go_lives_to_decouple"`
}

// Record kinds reported by a rollback
const (
	RecordKindLead        = "lead"
	RecordKindOpportunity = "opportunity"
	RecordKindRevision    = "revision"
)

// RecordError reports one record a rollback could not clean up
type RecordError struct {
	Kind   string    `json:"kind"`
	ID     uuid.UUID `json:"id"`
	Fields []string  `json:"fields,omitempty"`
	Reason string    `json:"reason"`
}

// RollbackResult reports what a rollback did
type RollbackResult struct {
	BatchID               uuid.UUID     `json:"batch_id"`
	Status                string        `json:"status"`
	LeadsDeleted          int           `json:"leads_deleted"`
	LeadsKept             int           `json:"leads_kept"`
	OpportunitiesDeleted  int           `json:"opportunities_deleted"`
	OpportunitiesReverted int           `json:"opportunities_reverted"`
	GoLivesDecoupled      int64         `json:"go_lives_decoupled"`
	Errors                []RecordError `json:"errors,omitempty"`
}
