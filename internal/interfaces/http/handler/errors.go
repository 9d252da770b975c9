package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/salesplan/backend/internal/domain/bulk"
	"github.com/salesplan/backend/internal/domain/shared"
	csvimport "github.com/salesplan/backend/internal/infrastructure/import"
	"github.com/salesplan/backend/internal/interfaces/http/dto"

	importapp "github.com/salesplan/backend/internal/application/import"
)

// apiError is the HTTP rendering of a service error
type apiError struct {
	Status  int
	Code    string
	Message string
	Details map[string]any
}

func newAPIError(code, message string, details map[string]any) apiError {
	return apiError{Status: dto.GetHTTPStatus(code), Code: code, Message: message, Details: details}
}

// toAPIError maps parser, lifecycle and domain errors to stable error codes
// with structured details
func toAPIError(err error) apiError {
	var (
		schemaErr     *csvimport.SchemaError
		encodingErr   *csvimport.EncodingError
		malformedErr  *csvimport.MalformedRowError
		tooManyErr    *csvimport.TooManyRowsError
		openErr       *bulk.OpenBatchExistsError
		notOpenErr    *bulk.BatchNotOpenError
		transitionErr *bulk.InvalidTransitionError
		rowErr        *bulk.RowCommitError
		domainErr     *shared.DomainError
	)

	switch {
	case errors.As(err, &schemaErr):
		return newAPIError(csvimport.ErrCodeImportSchema, err.Error(), map[string]any{
			"missing": schemaErr.Missing,
			"headers": schemaErr.Headers,
		})
	case errors.As(err, &encodingErr):
		details := map[string]any{"reason": encodingErr.Reason}
		if encodingErr.Encoding != "" {
			details["encoding"] = encodingErr.Encoding
		}
		if len(encodingErr.Tried) > 0 {
			details["tried"] = encodingErr.Tried
		}
		return newAPIError(csvimport.ErrCodeImportEncoding, err.Error(), details)
	case errors.As(err, &malformedErr):
		details := map[string]any{"row": malformedErr.Row, "reason": malformedErr.Reason}
		if malformedErr.Field != "" {
			details["field"] = malformedErr.Field
		}
		if malformedErr.Value != "" {
			details["value"] = malformedErr.Value
		}
		return newAPIError(csvimport.ErrCodeImportMalformedRow, err.Error(), details)
	case errors.As(err, &tooManyErr):
		return newAPIError(csvimport.ErrCodeImportTooManyRows, err.Error(), map[string]any{
			"limit": tooManyErr.Limit,
			"rows":  tooManyErr.Rows,
		})
	case errors.Is(err, csvimport.ErrEmptyFile),
		errors.Is(err, csvimport.ErrMissingHeader),
		errors.Is(err, csvimport.ErrNoDataRows),
		errors.Is(err, csvimport.ErrFileTooLarge):
		return newAPIError(csvimport.ErrorCode(err), err.Error(), nil)

	case errors.As(err, &openErr):
		return newAPIError(dto.ErrCodeImportBatchOpen, err.Error(), map[string]any{"batch_id": openErr.BatchID})
	case errors.As(err, &notOpenErr):
		return newAPIError(dto.ErrCodeImportBatchNotOpen, err.Error(), map[string]any{
			"batch_id": notOpenErr.BatchID,
			"status":   notOpenErr.Status,
		})
	case errors.As(err, &transitionErr):
		return newAPIError(dto.ErrCodeImportInvalidTransition, err.Error(), map[string]any{
			"batch_id": transitionErr.BatchID,
			"from":     transitionErr.From,
			"to":       transitionErr.To,
		})
	case errors.As(err, &rowErr):
		return rowCommitError(rowErr)

	case errors.As(err, &domainErr):
		code := dto.NormalizeErrorCode(domainErr.Code)
		if _, known := dto.ErrorCodeHTTPStatus[code]; !known {
			code = dto.ErrCodeInvalidInput
		}
		return newAPIError(code, domainErr.Message, nil)
	}

	return apiError{
		Status:  http.StatusInternalServerError,
		Code:    dto.ErrCodeInternal,
		Message: "An unexpected error occurred",
	}
}

// rowCommitError names the row a commit stopped at. Rows before it stay committed.
func rowCommitError(rowErr *bulk.RowCommitError) apiError {
	details := map[string]any{
		"row_index": rowErr.RowIndex,
		"row_id":    rowErr.RowID,
		"committed": rowErr.Committed,
	}
	if rowErr.ExternalID != "" {
		details["external_id"] = rowErr.ExternalID
	}

	if errors.Is(rowErr, importapp.ErrOwnerUnresolved) {
		details["reason"] = rowErr.Err.Error()
		return newAPIError(dto.ErrCodeImportOwnerUnresolved, rowErr.Error(), details)
	}
	var domainErr *shared.DomainError
	if errors.As(rowErr.Err, &domainErr) {
		details["reason"] = domainErr.Message
	}
	msg := fmt.Sprintf("Commit stopped at row %d after %d rows were committed; fix the cause and commit again",
		rowErr.RowIndex, rowErr.Committed)
	return newAPIError(dto.ErrCodeImportCommitFailed, msg, details)
}
