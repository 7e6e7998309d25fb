package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_Kinds(t *testing.T) {
	validation := NewValidationError("INVALID_AMOUNT", "Payment amount must be positive")
	notFound := NewNotFoundError("invoice", "inv-1")
	transport := NewTransportError("save payment", errors.New("connection refused"))

	assert.True(t, IsValidation(validation))
	assert.False(t, IsNotFound(validation))

	assert.True(t, IsNotFound(notFound))
	assert.Equal(t, `invoice "inv-1" not found`, notFound.Error())

	assert.True(t, IsTransport(transport))
	assert.Equal(t, "billing store unavailable (save payment)", transport.Error())
	assert.EqualError(t, errors.Unwrap(transport), "connection refused")

	assert.False(t, IsValidation(errors.New("plain")))
	assert.False(t, IsNotFound(nil))
}

func TestDomainError_IsMatchesByCode(t *testing.T) {
	err := NewNotFoundError("payment", "p-9")
	wrapped := fmt.Errorf("void payment: %w", err)

	assert.ErrorIs(t, wrapped, ErrNotFound)
	assert.NotErrorIs(t, wrapped, ErrTransport)
	assert.True(t, errors.Is(NewTransportError("fetch", nil), ErrTransport))
}

func TestDomainError_WithCause(t *testing.T) {
	cause := errors.New("bad header")
	base := NewValidationError("INVALID_FILE", "file rejected")
	err := base.WithCause(cause)

	assert.ErrorIs(t, err, cause)
	assert.True(t, IsValidation(err))
	assert.Nil(t, errors.Unwrap(base))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, "EXCEEDS_BALANCE", CodeOf(fmt.Errorf("record: %w", NewValidationError("EXCEEDS_BALANCE", "too much"))))
	assert.Equal(t, "", CodeOf(errors.New("plain")))
	assert.Equal(t, "", CodeOf(nil))
}

func TestFixedClock(t *testing.T) {
	c := FixedClock{}
	assert.True(t, c.Now().IsZero())
	assert.Equal(t, "UTC", SystemClock{}.Now().Location().String())
}
