package dto

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	csvimport "github.com/salesplan/backend/internal/infrastructure/import"
)

func TestGetHTTPStatus(t *testing.T) {
	tests := []struct {
		code     string
		expected int
	}{
		{ErrCodeInternal, http.StatusInternalServerError},
		{ErrCodeValidation, http.StatusBadRequest},
		{ErrCodeRequestTooLarge, http.StatusRequestEntityTooLarge},
		{ErrCodeNotFound, http.StatusNotFound},
		{ErrCodeConcurrencyConflict, http.StatusConflict},
		{csvimport.ErrCodeImportSchema, http.StatusUnprocessableEntity},
		{csvimport.ErrCodeImportFileTooLarge, http.StatusRequestEntityTooLarge},
		{csvimport.ErrCodeImportEmptyFile, http.StatusBadRequest},
		{ErrCodeImportBatchOpen, http.StatusConflict},
		{ErrCodeImportAlreadyRolledBack, http.StatusConflict},
		{ErrCodeImportSelectionForbidden, http.StatusUnprocessableEntity},
		{ErrCodeImportNotArchived, http.StatusNotFound},
		{"UNKNOWN_CODE", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetHTTPStatus(tt.code))
		})
	}
}

func TestNormalizeErrorCode(t *testing.T) {
	tests := map[string]string{
		"NOT_FOUND":             ErrCodeNotFound,
		"CONCURRENCY_CONFLICT":  ErrCodeConcurrencyConflict,
		"INVALID_DELIMITER":     ErrCodeInvalidInput,
		"SELECTION_NOT_ALLOWED": ErrCodeImportSelectionForbidden,
		"ALREADY_ROLLED_BACK":   ErrCodeImportAlreadyRolledBack,
		"OWNER_UNRESOLVED":      ErrCodeImportOwnerUnresolved,
		ErrCodeNotFound:         ErrCodeNotFound,
		"CUSTOM_ERROR":          "CUSTOM_ERROR",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeErrorCode(in), in)
	}
}

func TestDomainCodesHaveStatus(t *testing.T) {
	for domainCode, apiCode := range domainErrorCodes {
		_, ok := ErrorCodeHTTPStatus[apiCode]
		assert.True(t, ok, "%s maps to %s which has no status", domainCode, apiCode)
	}
}

func TestResponses(t *testing.T) {
	t.Run("success with meta", func(t *testing.T) {
		resp := NewSuccessResponseWithMeta([]string{"a"}, 41, 2, 20)
		assert.True(t, resp.Success)
		require.NotNil(t, resp.Meta)
		assert.Equal(t, 3, resp.Meta.TotalPages)

		empty := NewSuccessResponseWithMeta(nil, 0, 1, 0)
		assert.Zero(t, empty.Meta.TotalPages)
	})

	t.Run("error with details", func(t *testing.T) {
		resp := NewErrorResponseWithDetails(csvimport.ErrCodeImportMalformedRow, "row 7: value is required", "req-1",
			map[string]any{"row": 7, "field": "stage"})

		data, err := json.Marshal(resp)
		require.NoError(t, err)

		var decoded map[string]any
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Equal(t, false, decoded["success"])
		errInfo := decoded["error"].(map[string]any)
		assert.Equal(t, "ERR_IMPORT_MALFORMED_ROW", errInfo["code"])
		assert.Equal(t, "req-1", errInfo["request_id"])
		assert.Equal(t, float64(7), errInfo["details"].(map[string]any)["row"])
		assert.NotContains(t, decoded, "data")
	})

	t.Run("empty details omitted", func(t *testing.T) {
		resp := NewErrorResponseWithDetails(ErrCodeNotFound, "missing", "", nil)
		assert.Nil(t, resp.Error.Details)
	})
}
