package dto

import (
	"net/http"

	csvimport "github.com/salesplan/backend/internal/infrastructure/import"
)

// Error codes follow ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	ErrCodeUnknown  = "ERR_UNKNOWN"
	ErrCodeInternal = "ERR_INTERNAL"
)

// Input error codes
const (
	ErrCodeValidation      = "ERR_VALIDATION"
	ErrCodeBadRequest      = "ERR_BAD_REQUEST"
	ErrCodeInvalidInput    = "ERR_INVALID_INPUT"
	ErrCodeRequestTooLarge = "ERR_REQUEST_TOO_LARGE"
)

// Resource error codes
const (
	ErrCodeNotFound            = "ERR_NOT_FOUND"
	ErrCodeAlreadyExists       = "ERR_ALREADY_EXISTS"
	ErrCodeConflict            = "ERR_CONFLICT"
	ErrCodeConcurrencyConflict = "ERR_CONCURRENCY_CONFLICT"
	ErrCodeInvalidState        = "ERR_INVALID_STATE"
)

// Import lifecycle error codes. Parser codes live in csvimport.
const (
	ErrCodeImportBatchOpen          = "ERR_IMPORT_BATCH_OPEN"
	ErrCodeImportBatchNotOpen       = "ERR_IMPORT_BATCH_NOT_OPEN"
	ErrCodeImportInvalidTransition  = "ERR_IMPORT_INVALID_TRANSITION"
	ErrCodeImportAlreadyRolledBack  = "ERR_IMPORT_ALREADY_ROLLED_BACK"
	ErrCodeImportSelectionForbidden = "ERR_IMPORT_SELECTION_NOT_ALLOWED"
	ErrCodeImportOwnerUnresolved    = "ERR_IMPORT_OWNER_UNRESOLVED"
	ErrCodeImportCommitFailed       = "ERR_IMPORT_COMMIT_FAILED"
	ErrCodeImportNotArchived        = "ERR_IMPORT_NOT_ARCHIVED"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeUnknown:  http.StatusInternalServerError,
	ErrCodeInternal: http.StatusInternalServerError,

	ErrCodeValidation:      http.StatusBadRequest,
	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeInvalidInput:    http.StatusBadRequest,
	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,

	ErrCodeNotFound:            http.StatusNotFound,
	ErrCodeAlreadyExists:       http.StatusConflict,
	ErrCodeConflict:            http.StatusConflict,
	ErrCodeConcurrencyConflict: http.StatusConflict,
	ErrCodeInvalidState:        http.StatusUnprocessableEntity,

	csvimport.ErrCodeImportInvalidFile:   http.StatusBadRequest,
	csvimport.ErrCodeImportEmptyFile:     http.StatusBadRequest,
	csvimport.ErrCodeImportMissingHeader: http.StatusBadRequest,
	csvimport.ErrCodeImportNoDataRows:    http.StatusBadRequest,
	csvimport.ErrCodeImportFileTooLarge:  http.StatusRequestEntityTooLarge,
	csvimport.ErrCodeImportEncoding:      http.StatusUnprocessableEntity,
	csvimport.ErrCodeImportSchema:        http.StatusUnprocessableEntity,
	csvimport.ErrCodeImportMalformedRow:  http.StatusUnprocessableEntity,
	csvimport.ErrCodeImportTooManyRows:   http.StatusUnprocessableEntity,

	ErrCodeImportBatchOpen:          http.StatusConflict,
	ErrCodeImportBatchNotOpen:       http.StatusConflict,
	ErrCodeImportInvalidTransition:  http.StatusConflict,
	ErrCodeImportAlreadyRolledBack:  http.StatusConflict,
	ErrCodeImportSelectionForbidden: http.StatusUnprocessableEntity,
	ErrCodeImportOwnerUnresolved:    http.StatusUnprocessableEntity,
	ErrCodeImportCommitFailed:       http.StatusInternalServerError,
	ErrCodeImportNotArchived:        http.StatusNotFound,
}

// GetHTTPStatus returns the HTTP status code for an error code.
// Unknown codes map to 500.
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// domainErrorCodes maps shared.DomainError codes to API error codes
var domainErrorCodes = map[string]string{
	"NOT_FOUND":             ErrCodeNotFound,
	"ALREADY_EXISTS":        ErrCodeAlreadyExists,
	"INVALID_INPUT":         ErrCodeInvalidInput,
	"INVALID_STATE":         ErrCodeInvalidState,
	"CONCURRENCY_CONFLICT":  ErrCodeConcurrencyConflict,
	"INVALID_NAME":          ErrCodeInvalidInput,
	"INVALID_FILE_NAME":     ErrCodeInvalidInput,
	"INVALID_FILE_SIZE":     ErrCodeInvalidInput,
	"INVALID_DELIMITER":     ErrCodeInvalidInput,
	"INVALID_STATUS":        ErrCodeInvalidInput,
	"INVALID_MATCH_STATUS":  ErrCodeInvalidInput,
	"INVALID_OWNER_NAME":    ErrCodeInvalidInput,
	"ALREADY_ROLLED_BACK":   ErrCodeImportAlreadyRolledBack,
	"SELECTION_NOT_ALLOWED": ErrCodeImportSelectionForbidden,
	"OWNER_UNRESOLVED":      ErrCodeImportOwnerUnresolved,
	"NOT_ARCHIVED":          ErrCodeImportNotArchived,
}

// NormalizeErrorCode converts a domain error code to its API error code.
// Codes already in API form, or unknown, are returned as-is.
func NormalizeErrorCode(code string) string {
	if apiCode, ok := domainErrorCodes[code]; ok {
		return apiCode
	}
	return code
}
