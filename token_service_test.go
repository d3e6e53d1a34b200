package pairgate

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pairgate/pairgate/cache"
	oautherrors "github.com/pairgate/pairgate/errors"
	"github.com/pairgate/pairgate/log"
)

type tokenTestEnv struct {
	flow   *FlowService
	tokens *TokenService
	store  *AuthorizationStore
}

func newTokenTestEnv(t *testing.T) *tokenTestEnv {
	t.Helper()

	store := NewAuthorizationStore(time.Minute)
	t.Cleanup(store.Close)

	tokenStore := cache.NewMemoryTokenStore(time.Minute)
	t.Cleanup(func() { _ = tokenStore.Close() })

	cfg := NewDefaultConfig("http://localhost:8080")
	cfg.StaticAPIKey = "pg_sk_test_static_key"
	logger := log.NewZerologAdapter(zerolog.Disabled, false)

	return &tokenTestEnv{
		flow:   NewFlowService(store, cfg, logger),
		tokens: NewTokenService(store, tokenStore, cfg, logger),
		store:  store,
	}
}

func assertOAuthError(t *testing.T, err error, code string) {
	t.Helper()
	var oauthErr *oautherrors.OAuth2Error
	require.ErrorAs(t, err, &oauthErr)
	assert.Equal(t, code, oauthErr.Code)
}

func TestExchangeAuthorizationCodeSingleUse(t *testing.T) {
	env := newTokenTestEnv(t)
	ctx := context.Background()

	auth, err := env.flow.BeginAuthorization(ctx, AuthorizationRequest{
		ClientID:    "desktop-agent",
		RedirectURI: "https://example.com/cb",
		Scope:       "tools:invoke",
	})
	require.NoError(t, err)

	_, err = env.flow.Confirm(ctx, auth.UserCode)
	require.NoError(t, err)

	resp, err := env.tokens.ExchangeAuthorizationCode(ctx, auth.AuthCode, "desktop-agent")
	require.NoError(t, err)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, "tools:invoke", resp.Scope)

	// Redemption deleted the record; the second attempt fails.
	_, err = env.tokens.ExchangeAuthorizationCode(ctx, auth.AuthCode, "desktop-agent")
	assertOAuthError(t, err, oautherrors.InvalidGrant)
}

func TestExchangeAuthorizationCodeUnconfirmed(t *testing.T) {
	env := newTokenTestEnv(t)
	ctx := context.Background()

	auth, err := env.flow.BeginAuthorization(ctx, AuthorizationRequest{
		ClientID:    "desktop-agent",
		RedirectURI: "https://example.com/cb",
	})
	require.NoError(t, err)

	_, err = env.tokens.ExchangeAuthorizationCode(ctx, auth.AuthCode, "desktop-agent")
	assertOAuthError(t, err, oautherrors.InvalidGrant)
}

func TestExchangeDeviceCodeLifecycle(t *testing.T) {
	env := newTokenTestEnv(t)
	ctx := context.Background()

	device, err := env.flow.BeginDeviceAuthorization(ctx, "desktop-agent", "tools:invoke")
	require.NoError(t, err)

	_, err = env.tokens.ExchangeDeviceCode(ctx, device.DeviceCode)
	assertOAuthError(t, err, oautherrors.AuthorizationPending)

	_, err = env.flow.Confirm(ctx, device.UserCode)
	require.NoError(t, err)

	resp, err := env.tokens.ExchangeDeviceCode(ctx, device.DeviceCode)
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, "tools:invoke", resp.Scope)

	_, err = env.tokens.ExchangeDeviceCode(ctx, device.DeviceCode)
	assertOAuthError(t, err, oautherrors.InvalidGrant)
}

func TestExchangeDeviceCodeExpired(t *testing.T) {
	env := newTokenTestEnv(t)
	ctx := context.Background()

	rec := newTestRecord("PAIR-QQQQ", time.Minute)
	rec.DeviceCode = NewOpaqueToken(32)
	rec.Authorized = true
	rec.ExpiresAt = time.Now().Add(-time.Second)
	env.store.Put(rec)

	_, err := env.tokens.ExchangeDeviceCode(ctx, rec.DeviceCode)
	assertOAuthError(t, err, oautherrors.ExpiredToken)
}

func TestRefreshRotatesPair(t *testing.T) {
	env := newTokenTestEnv(t)
	ctx := context.Background()

	device, err := env.flow.BeginDeviceAuthorization(ctx, "desktop-agent", "tools:invoke")
	require.NoError(t, err)
	_, err = env.flow.Confirm(ctx, device.UserCode)
	require.NoError(t, err)
	old, err := env.tokens.ExchangeDeviceCode(ctx, device.DeviceCode)
	require.NoError(t, err)

	fresh, err := env.tokens.Refresh(ctx, old.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, old.AccessToken, fresh.AccessToken)
	assert.NotEqual(t, old.RefreshToken, fresh.RefreshToken)
	assert.Equal(t, "tools:invoke", fresh.Scope)

	// The old pair is invalidated.
	_, err = env.tokens.Validate(ctx, old.AccessToken)
	assert.ErrorIs(t, err, ErrTokenInvalid)
	_, err = env.tokens.Refresh(ctx, old.RefreshToken)
	assertOAuthError(t, err, oautherrors.InvalidGrant)

	// The new pair works.
	principal, err := env.tokens.Validate(ctx, fresh.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "desktop-agent", principal.ClientID)
}

func TestRefreshOutlivesAccessToken(t *testing.T) {
	store := NewAuthorizationStore(time.Minute)
	t.Cleanup(store.Close)
	tokenStore := cache.NewMemoryTokenStore(time.Minute)
	t.Cleanup(func() { _ = tokenStore.Close() })

	cfg := NewDefaultConfig("http://localhost:8080")
	cfg.AccessTokenTTL = 30 * time.Millisecond
	cfg.RefreshTokenTTL = time.Hour
	logger := log.NewZerologAdapter(zerolog.Disabled, false)
	flow := NewFlowService(store, cfg, logger)
	tokens := NewTokenService(store, tokenStore, cfg, logger)
	ctx := context.Background()

	device, err := flow.BeginDeviceAuthorization(ctx, "desktop-agent", "")
	require.NoError(t, err)
	_, err = flow.Confirm(ctx, device.UserCode)
	require.NoError(t, err)
	pair, err := tokens.ExchangeDeviceCode(ctx, device.DeviceCode)
	require.NoError(t, err)

	// The access token dies on its own schedule.
	assert.Eventually(t, func() bool {
		_, validateErr := tokens.Validate(ctx, pair.AccessToken)
		return validateErr != nil
	}, time.Second, 10*time.Millisecond)

	// The refresh token keeps its longer lifetime and still rotates the pair.
	fresh, err := tokens.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)

	_, err = tokens.Validate(ctx, fresh.AccessToken)
	require.NoError(t, err)
}

func TestRefreshUnknownToken(t *testing.T) {
	env := newTokenTestEnv(t)

	_, err := env.tokens.Refresh(context.Background(), "nope")
	assertOAuthError(t, err, oautherrors.InvalidGrant)
}

func TestRevoke(t *testing.T) {
	env := newTokenTestEnv(t)
	ctx := context.Background()

	device, err := env.flow.BeginDeviceAuthorization(ctx, "desktop-agent", "")
	require.NoError(t, err)
	_, err = env.flow.Confirm(ctx, device.UserCode)
	require.NoError(t, err)
	pair, err := env.tokens.ExchangeDeviceCode(ctx, device.DeviceCode)
	require.NoError(t, err)

	// Revoking by access token kills the pair.
	require.NoError(t, env.tokens.Revoke(ctx, pair.AccessToken))
	_, err = env.tokens.Validate(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	// Unknown tokens revoke without error.
	assert.NoError(t, env.tokens.Revoke(ctx, "unknown-token"))
	assert.NoError(t, env.tokens.Revoke(ctx, ""))
}

func TestRevokeByRefreshToken(t *testing.T) {
	env := newTokenTestEnv(t)
	ctx := context.Background()

	device, err := env.flow.BeginDeviceAuthorization(ctx, "desktop-agent", "")
	require.NoError(t, err)
	_, err = env.flow.Confirm(ctx, device.UserCode)
	require.NoError(t, err)
	pair, err := env.tokens.ExchangeDeviceCode(ctx, device.DeviceCode)
	require.NoError(t, err)

	require.NoError(t, env.tokens.Revoke(ctx, pair.RefreshToken))
	_, err = env.tokens.Validate(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestValidateStaticKey(t *testing.T) {
	env := newTokenTestEnv(t)

	principal, err := env.tokens.Validate(context.Background(), "pg_sk_test_static_key")
	require.NoError(t, err)
	assert.True(t, principal.Static)

	_, err = env.tokens.Validate(context.Background(), "wrong-key")
	assert.ErrorIs(t, err, ErrTokenInvalid)
	_, err = env.tokens.Validate(context.Background(), "")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

// End-to-end: create, confirm, exchange, validate.
func TestRedirectFlowScenario(t *testing.T) {
	env := newTokenTestEnv(t)
	ctx := context.Background()

	auth, err := env.flow.BeginAuthorization(ctx, AuthorizationRequest{
		ClientID:    "desktop-agent",
		RedirectURI: "https://example.com/cb",
		State:       "xyz123",
		Scope:       "tools:invoke",
	})
	require.NoError(t, err)

	result, err := env.flow.Confirm(ctx, auth.UserCode)
	require.NoError(t, err)
	assert.Contains(t, result.RedirectURL, "state=xyz123")

	pair, err := env.tokens.ExchangeAuthorizationCode(ctx, auth.AuthCode, "desktop-agent")
	require.NoError(t, err)
	assert.Equal(t, "tools:invoke", pair.Scope)

	principal, err := env.tokens.Validate(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "desktop-agent", principal.ClientID)
	assert.Equal(t, "tools:invoke", principal.Scope)
}
