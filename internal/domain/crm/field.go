package crm

import (
	"fmt"
	"time"
)

// Tracked opportunity fields compared during matching and restored on rollback
const (
	FieldStage     = "stage"
	FieldCloseDate = "close_date"
	FieldRating    = "rating"
	FieldNextStep  = "next_step"
)

// TrackedFields lists the tracked fields in a fixed order
var TrackedFields = []string{FieldStage, FieldCloseDate, FieldRating, FieldNextStep}

// DateLayout is the canonical string form of dates inside change sets
const DateLayout = "2006-01-02"

// FieldChange captures the before/after value of one tracked field
type FieldChange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// FormatDate renders an optional date in DateLayout, empty when nil
func FormatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(DateLayout)
}

// ParseDate parses a DateLayout string, returning nil for empty input
func ParseDate(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", value, err)
	}
	return &t, nil
}
