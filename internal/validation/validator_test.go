package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/vinstackcode/internal/apperror"
)

type inviteRequest struct {
	UserID string `json:"userId" validate:"required"`
	Role   string `json:"role" validate:"required,oneof=editor commenter viewer"`
	Note   string `json:"note" validate:"max=10"`
}

func TestStruct_Valid(t *testing.T) {
	err := Struct(inviteRequest{UserID: "u1", Role: "editor"})
	assert.NoError(t, err)
}

func TestStruct_ReportsJSONFieldNames(t *testing.T) {
	err := Struct(inviteRequest{Role: "editor"})
	require.Error(t, err)

	assert.True(t, errors.Is(err, apperror.ErrValidation))

	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "userId", appErr.Field)
	assert.Equal(t, "userId is required", appErr.Message)
}

func TestStruct_OneOfAndMax(t *testing.T) {
	err := Struct(inviteRequest{UserID: "u1", Role: "owner", Note: "far too long a note"})
	require.Error(t, err)

	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Contains(t, appErr.Message, "role must be one of: editor commenter viewer")
	assert.Contains(t, appErr.Message, "note must be at most 10 characters")
}

func TestValidator_Singleton(t *testing.T) {
	assert.Same(t, Validator(), Validator())
}
