package schemas

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesCode(t *testing.T) {
	cause := errors.New("EEXIST")
	err := fmt.Errorf("persist: %w", NewError(ErrCodeDestinationExists, "report.pdf", cause))

	assert.ErrorIs(t, err, ErrDestinationExists)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrFilesystem)
	assert.Equal(t, "persist: report.pdf: EEXIST", err.Error())
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, ErrCodeInvalidTenant, CodeOf(fmt.Errorf("wrapped: %w", ErrInvalidTenant)))
	assert.Equal(t, ErrCodeAutomation, CodeOf(context.DeadlineExceeded))
	assert.Equal(t, ErrCodeAutomation, CodeOf(errors.New("no node matched")))
}

func TestAutomation(t *testing.T) {
	assert.NoError(t, Automation("navigate", nil))

	err := Automation("navigate", context.DeadlineExceeded)
	assert.ErrorIs(t, err, ErrAutomation)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "navigate: context deadline exceeded", err.Error())

	// Typed failures keep their classification.
	typed := fmt.Errorf("login: %w", ErrInvalidCredentials)
	assert.Same(t, typed, Automation("authenticate", typed))
	assert.Equal(t, ErrCodeInvalidCredentials, CodeOf(Automation("authenticate", typed)))
}
