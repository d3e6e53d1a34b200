package client

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// ClientType represents the type of OAuth2 client.
type ClientType string

const (
	// Confidential clients can securely store secrets.
	Confidential ClientType = "confidential"
	// Public clients cannot securely store secrets (desktop agents, SPAs).
	Public ClientType = "public"
)

// Client represents a registered OAuth2 client application. Secret holds the
// bcrypt hash of the client secret; the plaintext is only returned once, at
// registration time.
type Client struct {
	ID            string     `json:"client_id"`
	Secret        string     `json:"-"`
	Type          ClientType `json:"type,omitempty"`
	Name          string     `json:"name,omitempty"`
	RedirectURIs  []string   `json:"redirect_uris,omitempty"`
	AllowedScopes []string   `json:"allowed_scopes,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	IsActive      bool       `json:"is_active"`
}

// NewClientSecret produces a high-entropy client secret value.
func NewClientSecret() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("crypto/rand unavailable: %v", err))
	}
	return "pgc_" + hex.EncodeToString(buf)
}
