package cache

import (
	"context"
	"errors"
	"time"
)

// ErrTokenNotFound is returned when a token is absent or already expired.
var ErrTokenNotFound = errors.New("token not found")

// TokenEntry represents an issued access/refresh token pair. The entry is
// keyed by the access token; the refresh token rides along and is redeemed by
// scanning. The entry stays alive until the later of the two deadlines so the
// refresh token remains redeemable after the access token dies.
type TokenEntry struct {
	ID               string    // Unique entry identifier
	TokenValue       string    // The access token string
	RefreshToken     string    // Paired refresh token, replaced together with the access token
	ClientID         string    // Client the pair was issued to
	Scope            string    // Authorized scopes
	IssuedAt         time.Time // When the pair was issued
	ExpiresAt        time.Time // When the access token expires
	RefreshExpiresAt time.Time // When the refresh token expires
	LastUsedAt       time.Time // Last successful validation
}

//go:generate mockgen -source=$GOFILE -destination=../mocks/mock_$GOPACKAGE/mock_$GOFILE -package=mock_$GOPACKAGE
type TokenStore interface {
	Set(ctx context.Context, token *TokenEntry) error
	Get(ctx context.Context, token string) (*TokenEntry, error)
	TakeByRefreshToken(ctx context.Context, refreshToken string) (*TokenEntry, error)
	Delete(ctx context.Context, token string) error
	DeleteExpired(ctx context.Context) error
	Count(ctx context.Context) int
	Close() error
}
