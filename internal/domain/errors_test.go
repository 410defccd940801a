package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPersistenceErrorHidesCause(t *testing.T) {
	cause := errors.New("deadlock found when trying to get lock")
	err := fmt.Errorf("commit: %w", &PersistenceError{Op: "commit", Err: cause})

	assert.NotContains(t, err.Error(), "deadlock")
	assert.ErrorIs(t, err, cause)

	var pe *PersistenceError
	assert.True(t, errors.As(err, &pe))
	assert.Equal(t, "commit", pe.Op)
}

func TestIsDomain(t *testing.T) {
	assert.True(t, IsDomain(&InsufficientStockError{Available: 1}))
	assert.True(t, IsDomain(fmt.Errorf("wrapped: %w", &PromoError{Code: "X", Reason: ReasonInvalidPromo})))
	assert.True(t, IsDomain(ErrEmptyCart))
	assert.False(t, IsDomain(errors.New("boom")))
	assert.False(t, IsDomain(&PersistenceError{Op: "x", Err: errors.New("boom")}))
}

func TestValidationErrorMessageIsStable(t *testing.T) {
	err := &ValidationError{Fields: map[string]string{"phone": "Phone is required", "email": "Email is required"}}
	assert.Equal(t, "validation failed: email: Email is required; phone: Phone is required", err.Error())
}
