package bulk

import (
	"time"

	"github.com/salesplan/backend/internal/domain/crm"
	"github.com/shopspring/decimal"
)

// ExportRecord is one normalized data row of a CRM export
type ExportRecord struct {
	RowIndex    int
	LineNumber  int
	CompanyName string
	Stage       crm.Stage
	CloseDate   *time.Time
	CreatedDate *time.Time
	OwnerName   string
	Link        string
	ExternalID  string
	Rating      string
	NextStep    string
	Amount      *decimal.Decimal

	// Optional columns absent from the export are never compared
	HasCloseDate bool
	HasRating    bool
	HasNextStep  bool
}

// TrackedValues returns the tracked fields carried by the export row
func (r ExportRecord) TrackedValues() map[string]string {
	values := map[string]string{crm.FieldStage: r.Stage.String()}
	if r.HasCloseDate {
		values[crm.FieldCloseDate] = crm.FormatDate(r.CloseDate)
	}
	if r.HasRating {
		values[crm.FieldRating] = r.Rating
	}
	if r.HasNextStep {
		values[crm.FieldNextStep] = r.NextStep
	}
	return values
}
