package client

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndValidate(t *testing.T) {
	store := NewInMemoryClientStore()
	svc := NewService(store)
	ctx := context.Background()

	result, err := svc.Register(ctx, "Desktop Agent", []string{"https://example.com/cb"}, []string{"tools:invoke"})
	require.NoError(t, err)

	assert.NotEmpty(t, result.Client.ID)
	assert.True(t, strings.HasPrefix(result.Secret, "pgc_"))
	// Only the hash is stored.
	assert.NotEqual(t, result.Secret, result.Client.Secret)

	validated, err := store.ValidateClient(ctx, result.Client.ID, result.Secret)
	require.NoError(t, err)
	assert.Equal(t, "Desktop Agent", validated.Name)

	_, err = store.ValidateClient(ctx, result.Client.ID, "wrong-secret")
	assert.ErrorIs(t, err, ErrInvalidClientSecret)
}

func TestGetClientNotFound(t *testing.T) {
	store := NewInMemoryClientStore()

	_, err := store.GetClient(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrClientNotFound)
}

func TestDeleteClient(t *testing.T) {
	store := NewInMemoryClientStore()
	svc := NewService(store)
	ctx := context.Background()

	result, err := svc.Register(ctx, "Temp", nil, nil)
	require.NoError(t, err)

	require.NoError(t, store.DeleteClient(ctx, result.Client.ID))
	_, err = store.GetClient(ctx, result.Client.ID)
	assert.ErrorIs(t, err, ErrClientNotFound)
}
