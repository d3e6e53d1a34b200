package pairgate

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/pairgate/pairgate/log"
)

// AuthorizationRequest carries the client-supplied parameters of a
// redirect-code initiation. PKCE fields are captured verbatim and stored with
// the record; they are not cryptographically verified.
type AuthorizationRequest struct {
	ClientID            string
	RedirectURI         string
	State               string
	Scope               string
	CodeChallenge       string
	CodeChallengeMethod string
}

// DeviceAuthorization is the machine-facing result of a device-code
// initiation. Verification URIs are built by the HTTP layer, which knows the
// request host.
type DeviceAuthorization struct {
	DeviceCode string
	UserCode   string
	ExpiresIn  int
	Interval   int
}

// AuthorizationStatus is the poll result for a pending authorization.
type AuthorizationStatus struct {
	Authorized  bool
	RedirectURI string
	AuthCode    string
	State       string
	ExpiresIn   int
}

// ConfirmationResult reports the outcome of the out-of-band confirmation.
type ConfirmationResult struct {
	AlreadyAuthorized bool
	// RedirectURL is the final client redirect for the redirect-code flow,
	// with code and state appended. Empty for device-flow records.
	RedirectURL string
}

// FlowService orchestrates creation, polling and confirmation of pending
// authorizations for both the redirect-code and the device-code variants.
type FlowService struct {
	store  *AuthorizationStore
	config *ProviderConfig
	logger log.Logger
}

// NewFlowService creates a FlowService on top of the given store.
func NewFlowService(store *AuthorizationStore, config *ProviderConfig, logger log.Logger) *FlowService {
	return &FlowService{
		store:  store,
		config: config,
		logger: logger,
	}
}

// BeginAuthorization mints a user code and auth code for a redirect-code
// initiation and stores the pending record.
func (s *FlowService) BeginAuthorization(ctx context.Context, req AuthorizationRequest) (*PendingAuthorization, error) {
	now := time.Now()
	auth := PendingAuthorization{
		UserCode:            NewUserCode(s.config.UserCodePrefix),
		AuthCode:            NewOpaqueToken(32),
		ClientID:            req.ClientID,
		RedirectURI:         req.RedirectURI,
		State:               req.State,
		Scope:               req.Scope,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
		CreatedAt:           now,
		ExpiresAt:           now.Add(s.config.AuthCodeTTL),
	}
	s.store.Put(auth)

	s.logger.Info(ctx, "authorization request created", map[string]interface{}{
		"user_code": auth.UserCode,
		"client_id": auth.ClientID,
	})

	return &auth, nil
}

// BeginDeviceAuthorization mints a user code and device code for a device
// initiation per RFC 8628 and stores the pending record.
func (s *FlowService) BeginDeviceAuthorization(ctx context.Context, clientID, scope string) (*DeviceAuthorization, error) {
	now := time.Now()
	auth := PendingAuthorization{
		UserCode:   NewUserCode(s.config.UserCodePrefix),
		DeviceCode: NewOpaqueToken(32),
		ClientID:   clientID,
		Scope:      scope,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.config.AuthCodeTTL),
	}
	s.store.Put(auth)

	s.logger.Info(ctx, "device authorization created", map[string]interface{}{
		"user_code": auth.UserCode,
		"client_id": clientID,
	})

	return &DeviceAuthorization{
		DeviceCode: auth.DeviceCode,
		UserCode:   auth.UserCode,
		ExpiresIn:  int(s.config.AuthCodeTTL.Seconds()),
		Interval:   int(s.config.DevicePollInterval.Seconds()),
	}, nil
}

// CheckStatus reports the current state of a pending authorization. It
// returns ErrAuthorizationNotFound for unknown codes and
// ErrAuthorizationExpired when the record was observed to die.
func (s *FlowService) CheckStatus(_ context.Context, userCode string) (*AuthorizationStatus, error) {
	auth, err := s.store.Get(userCode)
	if err != nil {
		return nil, err
	}

	return &AuthorizationStatus{
		Authorized:  auth.Authorized,
		RedirectURI: auth.RedirectURI,
		AuthCode:    auth.AuthCode,
		State:       auth.State,
		ExpiresIn:   int(time.Until(auth.ExpiresAt).Seconds()),
	}, nil
}

// Confirm marks a pending authorization as approved by the out-of-band step.
// Confirming an already-authorized code succeeds without mutation. For the
// redirect flow the final redirect URL is computed with code and state
// appended as percent-encoded query parameters; the redirect URI itself is
// trusted as an already-valid absolute URL.
func (s *FlowService) Confirm(ctx context.Context, userCode string) (*ConfirmationResult, error) {
	auth, alreadyAuthorized, err := s.store.Authorize(userCode)
	if err != nil {
		return nil, err
	}

	result := &ConfirmationResult{AlreadyAuthorized: alreadyAuthorized}
	if auth.RedirectURI != "" {
		redirectURL, buildErr := buildRedirectURL(auth.RedirectURI, auth.AuthCode, auth.State)
		if buildErr != nil {
			return nil, buildErr
		}
		result.RedirectURL = redirectURL
	}

	if !alreadyAuthorized {
		s.logger.Info(ctx, "authorization confirmed", map[string]interface{}{
			"user_code": userCode,
			"client_id": auth.ClientID,
		})
	}

	return result, nil
}

var errInvalidRedirectURI = errors.New("invalid redirect uri")

func buildRedirectURL(redirectURI, code, state string) (string, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", errInvalidRedirectURI
	}

	q := u.Query()
	q.Set("code", code)
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}
