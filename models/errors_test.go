package models

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAPIError(t *testing.T) {
	err := NewAPIError(ErrCodeExport, "results file could not be read", context.Canceled)
	assert.Equal(t, "EXPORT_FAILED: results file could not be read: context canceled", err.Error())
	assert.True(t, errors.Is(err, context.Canceled))

	var apiErr *APIError
	assert.True(t, errors.As(error(err), &apiErr))

	resp := err.ToResponse()
	assert.False(t, resp.Success)
	assert.Equal(t, &ErrorDetail{Code: ErrCodeExport, Message: "results file could not be read"}, resp.Error)

	bare := NewAPIError(ErrCodeInternal, "boom", nil)
	assert.Equal(t, "INTERNAL_ERROR: boom", bare.Error())
	assert.Nil(t, errors.Unwrap(bare))
}
