package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainError_MatchesKindAndCause(t *testing.T) {
	cause := errors.New("driver: permission denied")
	err := WrapError("progress", "CompareAndSet", ErrForbidden, "write rejected", cause)

	assert.ErrorIs(t, err, ErrForbidden)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "progress.CompareAndSet: write rejected: driver: permission denied", err.Error())
}

func TestDomainError_SurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("handler: %w", ErrProgressConflict)

	assert.True(t, IsConflict(err))
	assert.True(t, IsRetryable(err))
	assert.False(t, IsNotFound(err))
}

func TestIsRetryable_PermissionIsFatal(t *testing.T) {
	err := WrapError("progress", "CompareAndSet", ErrForbidden, "denied", ErrServiceUnavailable)
	assert.False(t, IsRetryable(err))
	assert.True(t, IsRetryable(ErrTutorUnavailable))
	assert.False(t, IsRetryable(ErrInvalidUserID))
}

func TestIsValidation(t *testing.T) {
	assert.True(t, IsValidation(ErrInvalidMinutes))
	assert.True(t, IsValidation(ErrUnknownTrigger))
	assert.False(t, IsValidation(ErrSessionNotFound))
}

func TestNewUserID(t *testing.T) {
	id, err := NewUserID("  9f1c2a7e-4b7d-4c1e-9a55-0d8c1b2e3f40 ")
	require.NoError(t, err)
	assert.Equal(t, UserID("9f1c2a7e-4b7d-4c1e-9a55-0d8c1b2e3f40"), id)

	for _, bad := range []string{"", " ", "-leading", "has space", "slash/inside"} {
		_, err := NewUserID(bad)
		assert.ErrorIs(t, err, ErrInvalidID, bad)
	}
}

func TestRank(t *testing.T) {
	assert.True(t, Rank(3).IsTop(10))
	assert.False(t, Unranked.IsTop(10))
	assert.Equal(t, "🥇", Rank(1).Medal())
	assert.Empty(t, Rank(4).Medal())
}
