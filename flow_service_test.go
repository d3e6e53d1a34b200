package pairgate

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pairgate/pairgate/log"
)

func newTestFlowService(t *testing.T) (*FlowService, *AuthorizationStore) {
	t.Helper()

	store := NewAuthorizationStore(time.Minute)
	t.Cleanup(store.Close)

	cfg := NewDefaultConfig("http://localhost:8080")
	logger := log.NewZerologAdapter(zerolog.Disabled, false)

	return NewFlowService(store, cfg, logger), store
}

func TestBeginAuthorizationMintsCodes(t *testing.T) {
	flow, store := newTestFlowService(t)

	auth, err := flow.BeginAuthorization(context.Background(), AuthorizationRequest{
		ClientID:    "desktop-agent",
		RedirectURI: "https://example.com/cb",
		State:       "xyz123",
		Scope:       "tools:invoke",
	})
	require.NoError(t, err)

	assert.Regexp(t, `^PAIR-`, auth.UserCode)
	assert.Len(t, auth.AuthCode, 64)
	assert.False(t, auth.Authorized)
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), auth.ExpiresAt, time.Minute)

	stored, err := store.Get(auth.UserCode)
	require.NoError(t, err)
	assert.Equal(t, "xyz123", stored.State)
}

func TestBeginAuthorizationCapturesPKCE(t *testing.T) {
	flow, store := newTestFlowService(t)

	auth, err := flow.BeginAuthorization(context.Background(), AuthorizationRequest{
		ClientID:            "desktop-agent",
		RedirectURI:         "https://example.com/cb",
		CodeChallenge:       "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM",
		CodeChallengeMethod: "S256",
	})
	require.NoError(t, err)

	stored, err := store.Get(auth.UserCode)
	require.NoError(t, err)
	assert.Equal(t, "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM", stored.CodeChallenge)
	assert.Equal(t, "S256", stored.CodeChallengeMethod)
}

func TestBeginDeviceAuthorization(t *testing.T) {
	flow, store := newTestFlowService(t)

	device, err := flow.BeginDeviceAuthorization(context.Background(), "desktop-agent", "tools:invoke")
	require.NoError(t, err)

	assert.Len(t, device.DeviceCode, 64)
	assert.Equal(t, 600, device.ExpiresIn)
	assert.Equal(t, 5, device.Interval)

	stored, err := store.Get(device.UserCode)
	require.NoError(t, err)
	assert.Equal(t, device.DeviceCode, stored.DeviceCode)
	assert.Empty(t, stored.AuthCode)
	assert.Empty(t, stored.RedirectURI)
}

func TestCheckStatusBeforeAndAfterConfirm(t *testing.T) {
	flow, _ := newTestFlowService(t)
	ctx := context.Background()

	auth, err := flow.BeginAuthorization(ctx, AuthorizationRequest{
		ClientID:    "desktop-agent",
		RedirectURI: "https://example.com/cb",
		State:       "xyz123",
	})
	require.NoError(t, err)

	status, err := flow.CheckStatus(ctx, auth.UserCode)
	require.NoError(t, err)
	assert.False(t, status.Authorized)

	result, err := flow.Confirm(ctx, auth.UserCode)
	require.NoError(t, err)
	assert.False(t, result.AlreadyAuthorized)

	status, err = flow.CheckStatus(ctx, auth.UserCode)
	require.NoError(t, err)
	assert.True(t, status.Authorized)
	assert.Equal(t, "https://example.com/cb", status.RedirectURI)
	assert.Equal(t, "xyz123", status.State)
	assert.Equal(t, auth.AuthCode, status.AuthCode)
	assert.Positive(t, status.ExpiresIn)
}

func TestCheckStatusUnknownAndExpired(t *testing.T) {
	flow, store := newTestFlowService(t)
	ctx := context.Background()

	_, err := flow.CheckStatus(ctx, "PAIR-NONE")
	assert.ErrorIs(t, err, ErrAuthorizationNotFound)

	rec := newTestRecord("PAIR-OLDY", -time.Second)
	store.Put(rec)

	_, err = flow.CheckStatus(ctx, "PAIR-OLDY")
	assert.ErrorIs(t, err, ErrAuthorizationExpired)
}

func TestConfirmIdempotent(t *testing.T) {
	flow, _ := newTestFlowService(t)
	ctx := context.Background()

	auth, err := flow.BeginAuthorization(ctx, AuthorizationRequest{
		ClientID:    "desktop-agent",
		RedirectURI: "https://example.com/cb",
	})
	require.NoError(t, err)

	first, err := flow.Confirm(ctx, auth.UserCode)
	require.NoError(t, err)
	assert.False(t, first.AlreadyAuthorized)

	second, err := flow.Confirm(ctx, auth.UserCode)
	require.NoError(t, err)
	assert.True(t, second.AlreadyAuthorized)
}

func TestConfirmBuildsEncodedRedirectURL(t *testing.T) {
	flow, _ := newTestFlowService(t)
	ctx := context.Background()

	auth, err := flow.BeginAuthorization(ctx, AuthorizationRequest{
		ClientID:    "desktop-agent",
		RedirectURI: "https://example.com/cb?env=prod",
		State:       "a b&c",
	})
	require.NoError(t, err)

	result, err := flow.Confirm(ctx, auth.UserCode)
	require.NoError(t, err)

	assert.Contains(t, result.RedirectURL, "code="+auth.AuthCode)
	assert.Contains(t, result.RedirectURL, "state=a+b%26c")
	assert.Contains(t, result.RedirectURL, "env=prod")
}

func TestConfirmExpiredDeletesRecord(t *testing.T) {
	flow, store := newTestFlowService(t)
	ctx := context.Background()

	store.Put(newTestRecord("PAIR-PPPP", -time.Second))

	_, err := flow.Confirm(ctx, "PAIR-PPPP")
	assert.ErrorIs(t, err, ErrAuthorizationExpired)

	_, err = flow.Confirm(ctx, "PAIR-PPPP")
	assert.ErrorIs(t, err, ErrAuthorizationNotFound)
}

func TestConfirmDeviceFlowHasNoRedirect(t *testing.T) {
	flow, _ := newTestFlowService(t)
	ctx := context.Background()

	device, err := flow.BeginDeviceAuthorization(ctx, "desktop-agent", "")
	require.NoError(t, err)

	result, err := flow.Confirm(ctx, device.UserCode)
	require.NoError(t, err)
	assert.Empty(t, result.RedirectURL)
}
