package errors

import "fmt"

// OAuth2Error is the wire form of an OAuth 2.0 error response.
type OAuth2Error struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
	URI         string `json:"error_uri,omitempty"`
	State       string `json:"state,omitempty"`
}

func (e *OAuth2Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Standard OAuth2 error codes used by the token and authorization endpoints.
const (
	InvalidRequest       = "invalid_request"
	InvalidClient        = "invalid_client"
	InvalidGrant         = "invalid_grant"
	InvalidToken         = "invalid_token"
	AuthorizationPending = "authorization_pending"
	ExpiredToken         = "expired_token"
	UnsupportedGrantType = "unsupported_grant_type"
	ServerError          = "server_error"
)

func NewInvalidRequest(description string) *OAuth2Error {
	return &OAuth2Error{
		Code:        InvalidRequest,
		Description: description,
	}
}

func NewInvalidClient(description string) *OAuth2Error {
	return &OAuth2Error{
		Code:        InvalidClient,
		Description: description,
	}
}

// NewInvalidGrant covers every exchange failure where the presented artifact
// is unknown, unauthorized or already redeemed. The cases are deliberately
// not distinguished to the caller.
func NewInvalidGrant(description string) *OAuth2Error {
	return &OAuth2Error{
		Code:        InvalidGrant,
		Description: description,
	}
}

// NewAuthorizationPending tells a polling device client to keep polling.
func NewAuthorizationPending() *OAuth2Error {
	return &OAuth2Error{
		Code:        AuthorizationPending,
		Description: "The authorization request is still pending user approval",
	}
}

// NewExpiredToken is returned when a device code was approved but redeemed
// after its deadline.
func NewExpiredToken() *OAuth2Error {
	return &OAuth2Error{
		Code:        ExpiredToken,
		Description: "The device code has expired",
	}
}

func NewUnsupportedGrantType() *OAuth2Error {
	return &OAuth2Error{
		Code:        UnsupportedGrantType,
		Description: "The authorization grant type is not supported",
	}
}

func NewServerError(description string) *OAuth2Error {
	return &OAuth2Error{
		Code:        ServerError,
		Description: description,
	}
}
