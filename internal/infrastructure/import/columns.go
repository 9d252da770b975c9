package csvimport

import "strings"

// Column keys of the normalized export row
const (
	ColumnName        = "name"
	ColumnStage       = "stage"
	ColumnCloseDate   = "close_date"
	ColumnCreatedDate = "created_date"
	ColumnOwner       = "owner"
	ColumnLink        = "link"
	ColumnRating      = "rating"
	ColumnNextStep    = "next_step"
	ColumnAmount      = "amount"
)

// RequiredColumns must be present in every export header
var RequiredColumns = []string{ColumnName, ColumnStage, ColumnOwner, ColumnLink}

var columnAliases = map[string][]string{
	ColumnName:        {"opportunity name", "opportunity", "name"},
	ColumnStage:       {"stage"},
	ColumnCloseDate:   {"close date", "closing date"},
	ColumnCreatedDate: {"created date", "create date", "created"},
	ColumnOwner:       {"opportunity owner", "owner", "owner name"},
	ColumnLink:        {"link", "url", "opportunity link", "crm link"},
	ColumnRating:      {"rating"},
	ColumnNextStep:    {"next step", "next steps"},
	ColumnAmount:      {"amount", "arr"},
}

var aliasIndex = func() map[string]string {
	idx := make(map[string]string)
	for col, aliases := range columnAliases {
		for _, a := range aliases {
			idx[a] = col
		}
	}
	return idx
}()

// ColumnMap maps column keys to their position in the header
type ColumnMap map[string]int

// MapColumns resolves header names to column keys. The first header matching
// a column wins. Returns a *SchemaError if a required column is missing.
func MapColumns(headers []string) (ColumnMap, error) {
	cols := make(ColumnMap)
	for i, h := range headers {
		key := strings.ToLower(strings.Join(strings.Fields(h), " "))
		col, ok := aliasIndex[key]
		if !ok {
			continue
		}
		if _, seen := cols[col]; !seen {
			cols[col] = i
		}
	}

	var missing []string
	for _, col := range RequiredColumns {
		if _, ok := cols[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &SchemaError{Missing: missing, Headers: headers}
	}
	return cols, nil
}

// Has reports whether the export carries the column
func (m ColumnMap) Has(col string) bool {
	_, ok := m[col]
	return ok
}

// Value returns the row's value for a column, empty when absent
func (m ColumnMap) Value(row *Row, col string) string {
	idx, ok := m[col]
	if !ok {
		return ""
	}
	return row.Get(idx)
}
