package pairgate

import "time"

// GrantTypeDeviceCode is the RFC 8628 device grant URN.
const GrantTypeDeviceCode = "urn:ietf:params:oauth:grant-type:device_code"

// ProviderConfig holds the issuer-level settings for the pairing gateway.
type ProviderConfig struct {
	Issuer             string        `json:"issuer"`
	UserCodePrefix     string        `json:"user_code_prefix"`
	AuthCodeTTL        time.Duration `json:"auth_code_ttl"`
	AccessTokenTTL     time.Duration `json:"access_token_ttl"`
	RefreshTokenTTL    time.Duration `json:"refresh_token_ttl"`
	SweepInterval      time.Duration `json:"sweep_interval"`
	DevicePollInterval time.Duration `json:"device_poll_interval"`

	// StaticAPIKey is accepted by the access guard in addition to issued
	// tokens. Never minted by the token endpoint.
	StaticAPIKey string `json:"-"`
}

// NewDefaultConfig creates a ProviderConfig with sensible defaults.
func NewDefaultConfig(issuer string) *ProviderConfig {
	return &ProviderConfig{
		Issuer:             issuer,
		UserCodePrefix:     "PAIR",
		AuthCodeTTL:        10 * time.Minute,
		AccessTokenTTL:     7 * 24 * time.Hour,
		RefreshTokenTTL:    30 * 24 * time.Hour,
		SweepInterval:      time.Minute,
		DevicePollInterval: 5 * time.Second,
	}
}

// ServerMetadata is the RFC 8414 style discovery document, derived from the
// base URL the request arrived on.
type ServerMetadata struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	DeviceAuthorizationEndpoint       string   `json:"device_authorization_endpoint"`
	RevocationEndpoint                string   `json:"revocation_endpoint"`
	RegistrationEndpoint              string   `json:"registration_endpoint"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported"`
	ScopesSupported                   []string `json:"scopes_supported"`
}

// Metadata builds the discovery document for the given base URL.
func (c *ProviderConfig) Metadata(baseURL string) *ServerMetadata {
	return &ServerMetadata{
		Issuer:                      baseURL,
		AuthorizationEndpoint:       baseURL + "/oauth/authorize",
		TokenEndpoint:               baseURL + "/oauth/token",
		DeviceAuthorizationEndpoint: baseURL + "/oauth/device",
		RevocationEndpoint:          baseURL + "/oauth/revoke",
		RegistrationEndpoint:        baseURL + "/oauth/register",
		ResponseTypesSupported:      []string{"code"},
		GrantTypesSupported: []string{
			"authorization_code",
			"refresh_token",
			GrantTypeDeviceCode,
		},
		TokenEndpointAuthMethodsSupported: []string{
			"client_secret_post",
			"client_secret_basic",
			"none",
		},
		CodeChallengeMethodsSupported: []string{"S256", "plain"},
		ScopesSupported:               []string{"tools:invoke"},
	}
}
