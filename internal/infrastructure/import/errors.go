package csvimport

import (
	"errors"
	"fmt"
	"strings"
)

// Import error codes
const (
	ErrCodeImportInvalidFile   = "ERR_IMPORT_INVALID_FILE"
	ErrCodeImportEmptyFile     = "ERR_IMPORT_EMPTY_FILE"
	ErrCodeImportFileTooLarge  = "ERR_IMPORT_FILE_TOO_LARGE"
	ErrCodeImportNoDataRows    = "ERR_IMPORT_NO_DATA_ROWS"
	ErrCodeImportEncoding      = "ERR_IMPORT_INVALID_ENCODING"
	ErrCodeImportMissingHeader = "ERR_IMPORT_MISSING_HEADER"
	ErrCodeImportSchema        = "ERR_IMPORT_SCHEMA"
	ErrCodeImportMalformedRow  = "ERR_IMPORT_MALFORMED_ROW"
	ErrCodeImportTooManyRows   = "ERR_IMPORT_TOO_MANY_ROWS"
)

// Common import errors
var (
	// ErrEmptyFile is returned when the export is empty
	ErrEmptyFile = errors.New("export file is empty")

	// ErrMissingHeader is returned when the export has no header row
	ErrMissingHeader = errors.New("export file missing header row")

	// ErrNoDataRows is returned when the export has a header but no data rows
	ErrNoDataRows = errors.New("export file contains no data rows")

	// ErrFileTooLarge is returned when the file exceeds maximum size
	ErrFileTooLarge = errors.New("file exceeds maximum allowed size")
)

// SchemaError is returned when required columns are missing from the header
type SchemaError struct {
	Missing []string
	Headers []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("export is missing required columns: %s", strings.Join(e.Missing, ", "))
}

// EncodingError is returned when the bytes cannot be decoded
type EncodingError struct {
	Encoding string
	Tried    []string
	Reason   string
}

func (e *EncodingError) Error() string {
	if len(e.Tried) > 0 {
		return fmt.Sprintf("cannot decode export (tried %s): %s", strings.Join(e.Tried, ", "), e.Reason)
	}
	return fmt.Sprintf("cannot decode export as %s: %s", e.Encoding, e.Reason)
}

// MalformedRowError reports the first invalid data row. Row is the 1-based
// line number in the file.
type MalformedRowError struct {
	Row    int    `json:"row"`
	Field  string `json:"field,omitempty"`
	Reason string `json:"reason"`
	Value  string `json:"value,omitempty"`
}

func (e *MalformedRowError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("row %d, column '%s': %s", e.Row, e.Field, e.Reason)
	}
	return fmt.Sprintf("row %d: %s", e.Row, e.Reason)
}

// TooManyRowsError is returned when an export holds more data rows than the
// configured limit
type TooManyRowsError struct {
	Limit int
	Rows  int
}

func (e *TooManyRowsError) Error() string {
	return fmt.Sprintf("export has %d rows, the limit is %d", e.Rows, e.Limit)
}

// ErrorCode maps a parser error to its import error code
func ErrorCode(err error) string {
	var (
		schemaErr    *SchemaError
		encodingErr  *EncodingError
		malformedErr *MalformedRowError
		tooManyErr   *TooManyRowsError
	)
	switch {
	case errors.As(err, &schemaErr):
		return ErrCodeImportSchema
	case errors.As(err, &encodingErr):
		return ErrCodeImportEncoding
	case errors.As(err, &malformedErr):
		return ErrCodeImportMalformedRow
	case errors.As(err, &tooManyErr):
		return ErrCodeImportTooManyRows
	case errors.Is(err, ErrEmptyFile):
		return ErrCodeImportEmptyFile
	case errors.Is(err, ErrMissingHeader):
		return ErrCodeImportMissingHeader
	case errors.Is(err, ErrNoDataRows):
		return ErrCodeImportNoDataRows
	case errors.Is(err, ErrFileTooLarge):
		return ErrCodeImportFileTooLarge
	}
	return ErrCodeImportInvalidFile
}
