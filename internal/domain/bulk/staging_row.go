package bulk

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/salesplan/backend/internal/domain/crm"
)

// MatchStatus classifies a staging row against the permanent store
type MatchStatus string

const (
	MatchStatusNew       MatchStatus = "new"
	MatchStatusChanged   MatchStatus = "changed"
	MatchStatusUnchanged MatchStatus = "unchanged"
	MatchStatusConflict  MatchStatus = "conflict"
	MatchStatusPending   MatchStatus = "pending"
)

// IsValid checks if the match status is valid
func (s MatchStatus) IsValid() bool {
	switch s {
	case MatchStatusNew, MatchStatusChanged, MatchStatusUnchanged, MatchStatusConflict, MatchStatusPending:
		return true
	}
	return false
}

// IsCommittable returns true for rows the commit engine can write
func (s MatchStatus) IsCommittable() bool {
	return s == MatchStatusNew || s == MatchStatusChanged
}

// UserMatchStatus records how the owner of a row was resolved
type UserMatchStatus string

const (
	UserMatchMatched   UserMatchStatus = "matched"
	UserMatchManual    UserMatchStatus = "manual"
	UserMatchUnmatched UserMatchStatus = "unmatched"
)

// IsResolved returns true when the row has an owner
func (s UserMatchStatus) IsResolved() bool {
	return s == UserMatchMatched || s == UserMatchManual
}

// StagingRow is one parsed export row awaiting commit
type StagingRow struct {
	ID              uuid.UUID
	BatchID         uuid.UUID
	Record          ExportRecord
	OpportunityID   *uuid.UUID
	MatchedUserID   *uuid.UUID
	UserMatchStatus UserMatchStatus
	MatchStatus     MatchStatus
	Changes         map[string]crm.FieldChange
	IsSelected      bool
	Note            string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewStagingRow creates a pending row for a record
func NewStagingRow(batchID uuid.UUID, record ExportRecord) *StagingRow {
	now := time.Now().UTC()
	return &StagingRow{
		ID:              uuid.New(),
		BatchID:         batchID,
		Record:          record,
		UserMatchStatus: UserMatchUnmatched,
		MatchStatus:     MatchStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// IsAutoEligible reports a new row in a closed stage that may be committed without owner
func (r *StagingRow) IsAutoEligible() bool {
	return r.OpportunityID == nil && !r.UserMatchStatus.IsResolved() && r.Record.Stage.IsTerminal()
}

// SetSelected toggles inclusion in the commit
func (r *StagingRow) SetSelected(selected bool) error {
	if selected && r.MatchStatus == MatchStatusUnchanged {
		return ErrSelectionNotAllowed
	}
	r.IsSelected = selected
	r.touch()
	return nil
}

// AssignUser sets the owner manually and reclassifies the row
func (r *StagingRow) AssignUser(userID uuid.UUID) {
	id := userID
	r.MatchedUserID = &id
	r.UserMatchStatus = UserMatchManual
	r.classify()
}

// classify derives MatchStatus from the row's match results. It is the only
// place the status is computed.
func (r *StagingRow) classify() {
	var status MatchStatus
	switch {
	case r.OpportunityID == nil:
		status = MatchStatusNew
	case len(r.Changes) > 0:
		status = MatchStatusChanged
	default:
		status = MatchStatusUnchanged
	}

	r.Note = ""
	if !r.UserMatchStatus.IsResolved() {
		if r.IsAutoEligible() {
			r.Note = ownerNote(r.Record.OwnerName)
		} else {
			status = MatchStatusConflict
		}
	}

	r.MatchStatus = status
	if status == MatchStatusUnchanged {
		r.IsSelected = false
	}
	r.touch()
}

func (r *StagingRow) touch() {
	r.UpdatedAt = time.Now().UTC()
}

func ownerNote(ownerName string) string {
	if ownerName == "" {
		return "CRM owner: (not set)"
	}
	return fmt.Sprintf("CRM owner: %s", ownerName)
}

// RowSummary counts the rows of a batch by status
type RowSummary struct {
	Total     int `json:"total"`
	New       int `json:"new"`
	Changed   int `json:"changed"`
	Unchanged int `json:"unchanged"`
	Conflict  int `json:"conflict"`
	Pending   int `json:"pending"`
	Selected  int `json:"selected"`
}

// Summarize counts rows by match status and selection
func Summarize(rows []*StagingRow) RowSummary {
	var s RowSummary
	for _, r := range rows {
		s.Total++
		switch r.MatchStatus {
		case MatchStatusNew:
			s.New++
		case MatchStatusChanged:
			s.Changed++
		case MatchStatusUnchanged:
			s.Unchanged++
		case MatchStatusConflict:
			s.Conflict++
		case MatchStatusPending:
			s.Pending++
		}
		if r.IsSelected {
			s.Selected++
		}
	}
	return s
}

// CompletionCounts derives the counters stored on a completed batch
func CompletionCounts(rows []*StagingRow) BatchCounts {
	var c BatchCounts
	for _, r := range rows {
		switch {
		case r.IsSelected && r.MatchStatus == MatchStatusNew:
			c.New++
		case r.IsSelected && r.MatchStatus == MatchStatusChanged:
			c.Updated++
		default:
			c.Skipped++
		}
	}
	return c
}
