package crm

import (
	"strings"

	"github.com/google/uuid"
	"github.com/salesplan/backend/internal/domain/shared"
)

// Lead is the company-level record an opportunity hangs off
type Lead struct {
	shared.BaseEntity
	CompanyName   string
	OwnerID       *uuid.UUID
	ImportBatchID *uuid.UUID
}

// NewLead creates a lead for a company
func NewLead(companyName string, ownerID *uuid.UUID) *Lead {
	return &Lead{
		BaseEntity:  shared.NewBaseEntity(),
		CompanyName: strings.Join(strings.Fields(companyName), " "),
		OwnerID:     ownerID,
	}
}

// CompanyKey is the case-insensitive lookup key of a company name
func CompanyKey(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
