package crm

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/salesplan/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Opportunity is a permanent sales opportunity record
type Opportunity struct {
	shared.BaseEntity
	ExternalID    string
	Name          string
	Stage         Stage
	CloseDate     *time.Time
	CreatedDate   *time.Time
	Rating        string
	NextStep      string
	Amount        *decimal.Decimal
	OwnerID       *uuid.UUID
	Note          string
	LeadID        *uuid.UUID
	ImportBatchID *uuid.UUID
	ImportRowID   *uuid.UUID
}

// NewOpportunity creates an opportunity with a fresh identity
func NewOpportunity(externalID, name string, stage Stage) (*Opportunity, error) {
	if name == "" {
		return nil, shared.NewDomainError("INVALID_NAME", "Opportunity name cannot be empty")
	}
	return &Opportunity{
		BaseEntity: shared.NewBaseEntity(),
		ExternalID: externalID,
		Name:       name,
		Stage:      stage,
	}, nil
}

// TrackedValue returns the string form of a tracked field
func (o *Opportunity) TrackedValue(field string) string {
	switch field {
	case FieldStage:
		return o.Stage.String()
	case FieldCloseDate:
		return FormatDate(o.CloseDate)
	case FieldRating:
		return o.Rating
	case FieldNextStep:
		return o.NextStep
	}
	return ""
}

// TrackedValues returns all tracked fields keyed by field name
func (o *Opportunity) TrackedValues() map[string]string {
	values := make(map[string]string, len(TrackedFields))
	for _, f := range TrackedFields {
		values[f] = o.TrackedValue(f)
	}
	return values
}

// SetTrackedValue assigns a tracked field from its string form
func (o *Opportunity) SetTrackedValue(field, value string) error {
	switch field {
	case FieldStage:
		o.Stage = Stage(value)
	case FieldCloseDate:
		d, err := ParseDate(value)
		if err != nil {
			return err
		}
		o.CloseDate = d
	case FieldRating:
		o.Rating = value
	case FieldNextStep:
		o.NextStep = value
	default:
		return fmt.Errorf("field %q is not tracked", field)
	}
	o.Touch()
	return nil
}

// Diff compares incoming tracked values with the stored ones.
// Only fields present in incoming are compared.
func (o *Opportunity) Diff(incoming map[string]string) map[string]FieldChange {
	changes := make(map[string]FieldChange)
	for _, f := range TrackedFields {
		to, ok := incoming[f]
		if !ok {
			continue
		}
		from := o.TrackedValue(f)
		if from != to {
			changes[f] = FieldChange{From: from, To: to}
		}
	}
	return changes
}

// ApplyChanges writes the "to" side of every change and returns the
// changes as actually observed against the current record.
func (o *Opportunity) ApplyChanges(changes map[string]FieldChange) (map[string]FieldChange, error) {
	applied := make(map[string]FieldChange, len(changes))
	for _, f := range TrackedFields {
		ch, ok := changes[f]
		if !ok {
			continue
		}
		current := o.TrackedValue(f)
		if current == ch.To {
			continue
		}
		if err := o.SetTrackedValue(f, ch.To); err != nil {
			return nil, err
		}
		applied[f] = FieldChange{From: current, To: ch.To}
	}
	return applied, nil
}
