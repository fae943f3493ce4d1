package llmadapter

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKindRetriable(t *testing.T) {
	assert.True(t, ErrRateLimited.Retriable())
	assert.True(t, ErrTimeout.Retriable())
	assert.True(t, ErrProviderUnavailable.Retriable())
	assert.False(t, ErrSchemaViolation.Retriable())
	assert.False(t, ErrContentFiltered.Retriable())
	assert.False(t, ErrAuth.Retriable())
}

func TestKindOfUnwrapsAdapterError(t *testing.T) {
	wrapped := errors.Join(&Error{Kind: ErrRateLimited, Err: errors.New("boom")})
	assert.Equal(t, ErrRateLimited, KindOf(wrapped))
}

func TestKindOfDefaultsToUnknown(t *testing.T) {
	assert.Equal(t, ErrUnknown, KindOf(errors.New("plain error")))
}
