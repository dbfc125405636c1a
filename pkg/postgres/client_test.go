package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientRequiresDSN(t *testing.T) {
	_, err := NewClient(Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DSN")
}

func TestCloseWithoutPool(t *testing.T) {
	assert.NoError(t, (&Client{}).Close())
}
