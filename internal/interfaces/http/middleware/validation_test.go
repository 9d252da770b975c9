package middleware

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type uploadOverrides struct {
	Delimiter string `form:"delimiter" binding:"omitempty,delimiter"`
	UserID    string `json:"user_id" validate:"required,uuid"`
	Status    string `json:"status" validate:"omitempty,oneof=open completed"`
}

func TestValidDelimiter(t *testing.T) {
	v := validator.New()
	require.NoError(t, v.RegisterValidation("delimiter", validDelimiter))

	for in, ok := range map[string]bool{
		"":   true,
		",":  true,
		";":  true,
		"\t": true,
		"|":  true,
		";;": false,
		`"`:  false,
		"\n": false,
	} {
		err := v.Var(in, "delimiter")
		assert.Equal(t, ok, err == nil, "%q", in)
	}
}

func TestValidationMessage(t *testing.T) {
	v := validator.New()

	err := v.Struct(uploadOverrides{UserID: "sam", Status: "closed"})
	var verrs validator.ValidationErrors
	require.ErrorAs(t, err, &verrs)

	msgs := make(map[string]string)
	for _, fe := range verrs {
		msgs[fe.Field()] = ValidationMessage(fe)
	}
	assert.Equal(t, "Invalid UUID format", msgs["UserID"])
	assert.Equal(t, "Must be one of: open completed", msgs["Status"])

	err = v.Struct(uploadOverrides{})
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, "This field is required", ValidationMessage(verrs[0]))
}

func TestSetupValidator(t *testing.T) {
	assert.NotPanics(t, SetupValidator)
}
