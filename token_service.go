package pairgate

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/pairgate/pairgate/cache"
	oautherrors "github.com/pairgate/pairgate/errors"
	"github.com/pairgate/pairgate/log"
)

// ErrTokenInvalid is returned by Validate for unknown, expired or malformed
// bearer tokens.
var ErrTokenInvalid = errors.New("invalid or expired access token")

// TokenResponse is the token endpoint success payload.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope,omitempty"`
}

// Principal identifies the caller admitted by the access guard.
type Principal struct {
	ClientID string
	Scope    string
	// Static is true when the long-lived fallback key was presented rather
	// than an issued token.
	Static bool
}

// TokenService exchanges validated authorization artifacts for bearer token
// pairs, refreshes and revokes them, and validates presented tokens.
type TokenService struct {
	authStore  *AuthorizationStore
	tokenStore cache.TokenStore
	config     *ProviderConfig
	logger     log.Logger
}

// NewTokenService creates a TokenService.
func NewTokenService(authStore *AuthorizationStore, tokenStore cache.TokenStore, config *ProviderConfig, logger log.Logger) *TokenService {
	return &TokenService{
		authStore:  authStore,
		tokenStore: tokenStore,
		config:     config,
		logger:     logger,
	}
}

// ExchangeAuthorizationCode redeems an authorized auth code for a fresh token
// pair. The pending record is deleted in the same critical section that
// matches it, so the code is redeemable exactly once. The presented client_id
// is ignored: client identity is captured at initiation and not re-verified
// here. Every failure mode collapses to invalid_grant.
func (s *TokenService) ExchangeAuthorizationCode(ctx context.Context, code, _ string) (*TokenResponse, error) {
	auth, err := s.authStore.TakeByAuthCode(code)
	if err != nil {
		return nil, oautherrors.NewInvalidGrant("The authorization code is invalid, expired or not yet approved")
	}

	resp, err := s.mintTokenPair(ctx, auth.ClientID, auth.Scope)
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "authorization code exchanged", map[string]interface{}{
		"user_code": auth.UserCode,
		"client_id": auth.ClientID,
	})

	return resp, nil
}

// ExchangeDeviceCode redeems a device code per RFC 8628. A pending record
// yields authorization_pending, an approved-but-expired record yields
// expired_token, and success deletes the record and mints a fresh pair.
func (s *TokenService) ExchangeDeviceCode(ctx context.Context, deviceCode string) (*TokenResponse, error) {
	auth, err := s.authStore.TakeByDeviceCode(deviceCode)
	switch {
	case errors.Is(err, ErrAuthorizationPending):
		return nil, oautherrors.NewAuthorizationPending()
	case errors.Is(err, ErrAuthorizationExpired):
		return nil, oautherrors.NewExpiredToken()
	case err != nil:
		return nil, oautherrors.NewInvalidGrant("The device code is invalid")
	}

	resp, err := s.mintTokenPair(ctx, auth.ClientID, auth.Scope)
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "device code exchanged", map[string]interface{}{
		"user_code": auth.UserCode,
		"client_id": auth.ClientID,
	})

	return resp, nil
}

// Refresh atomically replaces a token pair: the old entry is removed in the
// same critical section that matches the refresh token, so a race between two
// refreshes of the same token yields exactly one winner. The new pair
// preserves the owning client and scope; there is no window in which both
// pairs validate.
func (s *TokenService) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	entry, err := s.tokenStore.TakeByRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, oautherrors.NewInvalidGrant("The refresh token is invalid or expired")
	}

	resp, err := s.mintTokenPair(ctx, entry.ClientID, entry.Scope)
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "token pair refreshed", map[string]interface{}{
		"client_id": entry.ClientID,
	})

	return resp, nil
}

// Revoke deletes the entry matching the presented token, checking the access
// token keyspace first and falling back to a refresh token scan. Revoking an
// unknown token is not an error.
func (s *TokenService) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}

	if entry, err := s.tokenStore.Get(ctx, token); err == nil {
		if err := s.tokenStore.Delete(ctx, entry.TokenValue); err != nil {
			return err
		}
		s.logger.Info(ctx, "access token revoked", map[string]interface{}{
			"client_id": entry.ClientID,
		})
		return nil
	}

	if entry, err := s.tokenStore.TakeByRefreshToken(ctx, token); err == nil {
		s.logger.Info(ctx, "refresh token revoked", map[string]interface{}{
			"client_id": entry.ClientID,
		})
	}

	return nil
}

// Validate checks a presented bearer token against the static fallback key
// and the token store. It is the core of the access guard.
func (s *TokenService) Validate(ctx context.Context, token string) (*Principal, error) {
	if token == "" {
		return nil, ErrTokenInvalid
	}

	if s.config.StaticAPIKey != "" &&
		subtle.ConstantTimeCompare([]byte(token), []byte(s.config.StaticAPIKey)) == 1 {
		return &Principal{ClientID: "static-key", Static: true}, nil
	}

	entry, err := s.tokenStore.Get(ctx, token)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	if time.Now().After(entry.ExpiresAt) {
		return nil, ErrTokenInvalid
	}

	return &Principal{ClientID: entry.ClientID, Scope: entry.Scope}, nil
}

func (s *TokenService) mintTokenPair(ctx context.Context, clientID, scope string) (*TokenResponse, error) {
	now := time.Now()
	entry := &cache.TokenEntry{
		ID:               uuid.NewString(),
		TokenValue:       NewOpaqueToken(32),
		RefreshToken:     NewOpaqueToken(32),
		ClientID:         clientID,
		Scope:            scope,
		IssuedAt:         now,
		ExpiresAt:        now.Add(s.config.AccessTokenTTL),
		RefreshExpiresAt: now.Add(s.config.RefreshTokenTTL),
		LastUsedAt:       now,
	}

	if err := s.tokenStore.Set(ctx, entry); err != nil {
		return nil, oautherrors.NewServerError("Failed to store issued token")
	}

	return &TokenResponse{
		AccessToken:  entry.TokenValue,
		RefreshToken: entry.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(s.config.AccessTokenTTL.Seconds()),
		Scope:        scope,
	}, nil
}
