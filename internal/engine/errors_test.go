package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectionError(t *testing.T) {
	err := &SelectionError{Level: LevelConfidential, Err: ErrNoProvider}
	assert.Contains(t, err.Error(), "CONFIDENTIAL")
	assert.True(t, errors.Is(err, ErrNoProvider))

	wrapped := fmt.Errorf("store: %w", err)
	var selErr *SelectionError
	require.True(t, errors.As(wrapped, &selErr))
	assert.Equal(t, LevelConfidential, selErr.Level)
}

func TestOperationError(t *testing.T) {
	cause := fmt.Errorf("%w: connection reset", ErrProviderFailure)
	err := &OperationError{Op: "retrieve", Provider: "lob", Key: "a/b", Err: cause}

	assert.Equal(t, `retrieve "a/b" on lob: provider operation failed: connection reset`, err.Error())
	assert.True(t, errors.Is(err, ErrProviderFailure))
	assert.False(t, errors.Is(err, ErrNotFound))
}
