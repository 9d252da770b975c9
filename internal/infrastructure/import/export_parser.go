package csvimport

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/salesplan/backend/internal/domain/bulk"
	"github.com/salesplan/backend/internal/domain/crm"
)

// exportRow holds the raw strings of one data row for structural validation
type exportRow struct {
	Name     string `col:"name" validate:"required,max=255"`
	Stage    string `col:"stage" validate:"required,max=100"`
	Owner    string `col:"owner" validate:"max=255"`
	Link     string `col:"link" validate:"max=2048"`
	Rating   string `col:"rating" validate:"max=50"`
	NextStep string `col:"next_step" validate:"max=2000"`
}

// ExportOption configures an ExportParser
type ExportOption func(*ExportParser)

// WithEncoding declares the export encoding; "auto" tries Windows-1252 then UTF-8
func WithEncoding(name string) ExportOption {
	return func(p *ExportParser) {
		p.encoding = name
	}
}

// WithExportDelimiter forces a delimiter instead of detecting it
func WithExportDelimiter(d rune) ExportOption {
	return func(p *ExportParser) {
		p.delimiter = d
	}
}

// WithMaxRows limits the number of data rows (0 means unlimited)
func WithMaxRows(n int) ExportOption {
	return func(p *ExportParser) {
		p.maxRows = n
	}
}

// ExportParser turns raw CRM export bytes into normalized records
type ExportParser struct {
	encoding  string
	delimiter rune
	maxRows   int
	validate  *validator.Validate
}

// ParseResult is the outcome of parsing an export
type ParseResult struct {
	Records   []bulk.ExportRecord
	Encoding  string
	Delimiter rune
	Headers   []string
}

// UnknownStages lists the distinct stage values outside the pipeline
// vocabulary in first-seen order. Such rows are staged as-is.
func (r *ParseResult) UnknownStages() []string {
	var unknown []string
	seen := make(map[crm.Stage]bool)
	for _, rec := range r.Records {
		if rec.Stage.IsKnown() || seen[rec.Stage] {
			continue
		}
		seen[rec.Stage] = true
		unknown = append(unknown, rec.Stage.String())
	}
	return unknown
}

// NewExportParser creates a parser
func NewExportParser(opts ...ExportOption) *ExportParser {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return fld.Tag.Get("col")
	})

	p := &ExportParser{
		encoding: EncodingAuto,
		validate: v,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse decodes the bytes and maps every data row. Any error aborts the
// whole parse; no partial result is returned. Parsing the same bytes again
// yields the same records.
func (p *ExportParser) Parse(data []byte) (*ParseResult, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}

	text, encoding, err := Decode(data, p.encoding)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyFile
	}

	delimiter := p.delimiter
	if delimiter == 0 {
		delimiter = DetectDelimiter(text)
	}

	parser := NewCSVParser(strings.NewReader(text), WithDelimiter(delimiter))
	if err := parser.ParseHeader(); err != nil {
		return nil, err
	}
	cols, err := MapColumns(parser.Headers())
	if err != nil {
		return nil, err
	}

	rows, err := parser.ReadAllRows()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNoDataRows
	}
	if p.maxRows > 0 && len(rows) > p.maxRows {
		return nil, &TooManyRowsError{Limit: p.maxRows, Rows: len(rows)}
	}

	records := make([]bulk.ExportRecord, 0, len(rows))
	for i, row := range rows {
		rec, err := p.mapRow(cols, row)
		if err != nil {
			return nil, err
		}
		rec.RowIndex = i + 1
		records = append(records, rec)
	}

	return &ParseResult{
		Records:   records,
		Encoding:  encoding,
		Delimiter: delimiter,
		Headers:   parser.Headers(),
	}, nil
}

func (p *ExportParser) mapRow(cols ColumnMap, row *Row) (bulk.ExportRecord, error) {
	raw := exportRow{
		Name:     cols.Value(row, ColumnName),
		Stage:    cols.Value(row, ColumnStage),
		Owner:    cols.Value(row, ColumnOwner),
		Link:     cols.Value(row, ColumnLink),
		Rating:   cols.Value(row, ColumnRating),
		NextStep: cols.Value(row, ColumnNextStep),
	}
	if err := p.validate.Struct(raw); err != nil {
		return bulk.ExportRecord{}, malformedFromValidation(row.LineNumber, err)
	}

	rec := bulk.ExportRecord{
		LineNumber:   row.LineNumber,
		CompanyName:  raw.Name,
		Stage:        crm.ParseStage(raw.Stage),
		OwnerName:    raw.Owner,
		Link:         raw.Link,
		ExternalID:   ExternalIDFromLink(raw.Link),
		Rating:       raw.Rating,
		NextStep:     raw.NextStep,
		HasCloseDate: cols.Has(ColumnCloseDate),
		HasRating:    cols.Has(ColumnRating),
		HasNextStep:  cols.Has(ColumnNextStep),
	}

	var err error
	if rec.CloseDate, err = ParseExportDate(cols.Value(row, ColumnCloseDate)); err != nil {
		return rec, &MalformedRowError{Row: row.LineNumber, Field: ColumnCloseDate, Reason: err.Error(), Value: cols.Value(row, ColumnCloseDate)}
	}
	if rec.CreatedDate, err = ParseExportDate(cols.Value(row, ColumnCreatedDate)); err != nil {
		return rec, &MalformedRowError{Row: row.LineNumber, Field: ColumnCreatedDate, Reason: err.Error(), Value: cols.Value(row, ColumnCreatedDate)}
	}
	if rec.Amount, err = ParseAmount(cols.Value(row, ColumnAmount)); err != nil {
		return rec, &MalformedRowError{Row: row.LineNumber, Field: ColumnAmount, Reason: err.Error(), Value: cols.Value(row, ColumnAmount)}
	}
	return rec, nil
}

func malformedFromValidation(line int, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &MalformedRowError{Row: line, Reason: err.Error()}
	}
	fe := verrs[0]
	reason := fe.Tag()
	switch fe.Tag() {
	case "required":
		reason = "value is required"
	case "max":
		reason = fmt.Sprintf("value exceeds %s characters", fe.Param())
	}
	value, _ := fe.Value().(string)
	return &MalformedRowError{Row: line, Field: fe.Field(), Reason: reason, Value: value}
}
