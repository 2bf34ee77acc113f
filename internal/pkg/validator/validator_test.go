package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"segportal/internal/pkg/apperr"
)

type sample struct {
	JobID  string `validate:"required,max=8"`
	Config string `validate:"omitempty,max=4"`
}

func TestValidate_OK(t *testing.T) {
	assert.NoError(t, Validate(sample{JobID: "abc"}))
	assert.Nil(t, Fields(sample{JobID: "abc", Config: "2d"}))
}

func TestValidate_ReportsFields(t *testing.T) {
	fields := Fields(sample{Config: "toolong"})
	assert.Equal(t, "required", fields["JobID"])
	assert.Equal(t, "max", fields["Config"])

	err := Validate(sample{})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Contains(t, err.Error(), "JobID failed required")
}
