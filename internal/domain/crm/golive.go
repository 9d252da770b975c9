package crm

import (
	"time"

	"github.com/google/uuid"
	"github.com/salesplan/backend/internal/domain/shared"
)

// GoLive is a downstream record derived from a won opportunity. It may
// reference an opportunity but is never owned by the import subsystem.
type GoLive struct {
	shared.BaseEntity
	Title         string
	GoLiveDate    *time.Time
	OpportunityID *uuid.UUID
}

// NewGoLive creates a go-live linked to an opportunity
func NewGoLive(title string, opportunityID *uuid.UUID) *GoLive {
	return &GoLive{
		BaseEntity:    shared.NewBaseEntity(),
		Title:         title,
		OpportunityID: opportunityID,
	}
}
