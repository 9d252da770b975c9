package crm

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrEmptyRevision is returned when reverting a revision that holds no changes
var ErrEmptyRevision = errors.New("revision holds no recorded changes")

// OpportunityRevision records the field values one import row overwrote on
// an existing opportunity, so a rollback can restore them. Several rows of a
// batch may revise the same opportunity; each gets its own revision.
type OpportunityRevision struct {
	ID            uuid.UUID
	OpportunityID uuid.UUID
	ImportBatchID uuid.UUID
	ImportRowID   uuid.UUID
	RowIndex      int
	Changes       map[string]FieldChange
	CreatedAt     time.Time
	RevertedAt    *time.Time
}

// NewOpportunityRevision creates the revision of the changes one staging row
// applied
func NewOpportunityRevision(batchID, opportunityID, rowID uuid.UUID, rowIndex int, changes map[string]FieldChange) *OpportunityRevision {
	return &OpportunityRevision{
		ID:            uuid.New(),
		OpportunityID: opportunityID,
		ImportBatchID: batchID,
		ImportRowID:   rowID,
		RowIndex:      rowIndex,
		Changes:       changes,
		CreatedAt:     time.Now().UTC(),
	}
}

// IsReverted returns true once the revision has been undone
func (r *OpportunityRevision) IsReverted() bool {
	return r.RevertedAt != nil
}

// Revert restores every field whose current value is still the one the
// batch wrote. Fields edited after the import are left alone and returned
// as conflicts.
func (r *OpportunityRevision) Revert(opp *Opportunity) (restored, conflicts []string, err error) {
	if len(r.Changes) == 0 {
		return nil, nil, ErrEmptyRevision
	}
	for _, f := range TrackedFields {
		ch, ok := r.Changes[f]
		if !ok {
			continue
		}
		if opp.TrackedValue(f) != ch.To {
			conflicts = append(conflicts, f)
			continue
		}
		if err := opp.SetTrackedValue(f, ch.From); err != nil {
			return nil, nil, err
		}
		restored = append(restored, f)
	}
	now := time.Now().UTC()
	r.RevertedAt = &now
	return restored, conflicts, nil
}
