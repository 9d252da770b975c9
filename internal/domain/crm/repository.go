package crm

import (
	"context"

	"github.com/google/uuid"
)

// UserRepository gives read access to the user directory
type UserRepository interface {
	// FindAll returns the whole directory
	FindAll(ctx context.Context) ([]User, error)

	// FindByID returns shared.ErrNotFound when the user does not exist
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
}

// OpportunityRepository persists opportunities and their import revisions
type OpportunityRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Opportunity, error)

	// FindByExternalIDs returns the opportunities keyed by external id; misses are absent
	FindByExternalIDs(ctx context.Context, externalIDs []string) (map[string]*Opportunity, error)

	// FindByImportRow returns the opportunity created from a staging row, or shared.ErrNotFound
	FindByImportRow(ctx context.Context, rowID uuid.UUID) (*Opportunity, error)

	FindByImportBatch(ctx context.Context, batchID uuid.UUID) ([]*Opportunity, error)

	// Create inserts the opportunity, and the lead first when lead is not nil, in one transaction
	Create(ctx context.Context, opp *Opportunity, lead *Lead) error

	// UpdateWithRevision saves the opportunity and its revision in one transaction
	UpdateWithRevision(ctx context.Context, opp *Opportunity, rev *OpportunityRevision) error

	// FindRevisionByImportRow returns shared.ErrNotFound when the staging row
	// has not been applied as an update
	FindRevisionByImportRow(ctx context.Context, rowID uuid.UUID) (*OpportunityRevision, error)

	FindRevisionsByBatch(ctx context.Context, batchID uuid.UUID) ([]*OpportunityRevision, error)

	// SaveReverted saves the restored opportunity and marks the revision reverted in one transaction
	SaveReverted(ctx context.Context, opp *Opportunity, rev *OpportunityRevision) error

	// Delete removes the opportunity after nulling every go-live reference to it,
	// in one transaction, and returns the number of go-lives decoupled
	Delete(ctx context.Context, id uuid.UUID) (int64, error)
}

// LeadRepository persists leads
type LeadRepository interface {
	// FindByCompanyName matches case-insensitively, shared.ErrNotFound on miss
	FindByCompanyName(ctx context.Context, companyName string) (*Lead, error)

	FindByImportBatch(ctx context.Context, batchID uuid.UUID) ([]*Lead, error)

	// CountOpportunities counts opportunities still referencing the lead
	CountOpportunities(ctx context.Context, leadID uuid.UUID) (int64, error)

	Delete(ctx context.Context, id uuid.UUID) error
}

// GoLiveRepository persists go-live records
type GoLiveRepository interface {
	Save(ctx context.Context, goLive *GoLive) error

	FindByOpportunity(ctx context.Context, opportunityID uuid.UUID) ([]*GoLive, error)

	// CountByOpportunities counts go-lives referencing any of the opportunities
	CountByOpportunities(ctx context.Context, opportunityIDs []uuid.UUID) (int64, error)
}
