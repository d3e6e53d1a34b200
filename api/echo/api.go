package echo

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	pairgate "github.com/pairgate/pairgate"
	"github.com/pairgate/pairgate/client"
	oautherrors "github.com/pairgate/pairgate/errors"
	"github.com/pairgate/pairgate/middleware"
	"github.com/pairgate/pairgate/rpc"
)

// Version is reported by the root and health endpoints.
const Version = "1.0.0"

// OAuth2API holds the HTTP surface of the pairing gateway.
type OAuth2API struct {
	flow       *pairgate.FlowService
	tokens     *pairgate.TokenService
	clients    *client.Service
	authStore  *pairgate.AuthorizationStore
	config     *pairgate.ProviderConfig
	dispatcher *rpc.Dispatcher
	renderer   PageRenderer
}

// NewOAuth2API initializes the API.
func NewOAuth2API(
	flow *pairgate.FlowService,
	tokens *pairgate.TokenService,
	clients *client.Service,
	authStore *pairgate.AuthorizationStore,
	config *pairgate.ProviderConfig,
	dispatcher *rpc.Dispatcher,
	renderer PageRenderer,
) *OAuth2API {
	if config == nil {
		config = pairgate.NewDefaultConfig("http://localhost:8080")
	}
	if renderer == nil {
		renderer = DefaultRenderer{}
	}
	return &OAuth2API{
		flow:       flow,
		tokens:     tokens,
		clients:    clients,
		authStore:  authStore,
		config:     config,
		dispatcher: dispatcher,
		renderer:   renderer,
	}
}

// RegisterRoutes registers all routes on the echo instance.
func (oa *OAuth2API) RegisterRoutes(e *echo.Echo) {
	e.GET("/", oa.RootHandler)
	e.GET("/health", oa.HealthHandler)

	e.GET("/.well-known/oauth-authorization-server", oa.DiscoveryHandler)
	e.GET("/.well-known/mcp_oauth", oa.DiscoveryHandler)

	e.GET("/oauth/authorize", oa.AuthorizeHandler)
	e.GET("/oauth/check", oa.CheckHandler)
	e.POST("/api/authorize-code", oa.ConfirmHandler)
	e.POST("/oauth/device", oa.DeviceAuthorizationHandler)
	e.GET("/device", oa.DeviceVerificationHandler)
	e.POST("/oauth/token", oa.TokenHandler)
	e.POST("/oauth/revoke", oa.RevokeHandler)
	e.POST("/oauth/register", oa.RegisterHandler)

	e.GET("/debug/pending", oa.DebugPendingHandler)

	guard := middleware.AccessGuard(oa.tokens)
	e.GET("/rpc", oa.RPCDescriptorHandler, guard)
	e.POST("/rpc", oa.RPCHandler, guard)
	e.GET("/events", oa.EventsHandler, guard)
}

// RootHandler returns the service descriptor.
func (oa *OAuth2API) RootHandler(c echo.Context) error {
	baseURL := middleware.RequestBaseURL(c)
	return c.JSON(http.StatusOK, map[string]any{
		"name":    oa.dispatcher.Info().Name,
		"version": Version,
		"endpoints": map[string]string{
			"rpc":             baseURL + "/rpc",
			"events":          baseURL + "/events (requires access_token)",
			"oauth_discovery": baseURL + "/.well-known/oauth-authorization-server",
			"authorize":       baseURL + "/oauth/authorize",
			"token":           baseURL + "/oauth/token",
		},
	})
}

// HealthHandler reports liveness and the number of in-flight handshakes.
func (oa *OAuth2API) HealthHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":        "ok",
		"pending_codes": oa.authStore.Len(),
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
	})
}

// DiscoveryHandler returns the authorization server metadata, derived from
// the host the request arrived on.
func (oa *OAuth2API) DiscoveryHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, oa.config.Metadata(middleware.RequestBaseURL(c)))
}

// AuthorizeHandler starts a redirect-code handshake: it mints a pending
// authorization and renders the code-entry page for the human.
func (oa *OAuth2API) AuthorizeHandler(c echo.Context) error {
	req := pairgate.AuthorizationRequest{
		ClientID:            c.QueryParam("client_id"),
		RedirectURI:         c.QueryParam("redirect_uri"),
		State:               c.QueryParam("state"),
		Scope:               c.QueryParam("scope"),
		CodeChallenge:       c.QueryParam("code_challenge"),
		CodeChallengeMethod: c.QueryParam("code_challenge_method"),
	}
	if req.ClientID == "" {
		req.ClientID = "manual-test"
	}

	auth, err := oa.flow.BeginAuthorization(c.Request().Context(), req)
	if err != nil {
		log.Error().Err(err).Msg("failed to create authorization request")
		return c.JSON(http.StatusInternalServerError, oautherrors.NewServerError("Failed to create authorization request"))
	}

	return oa.renderer.AuthorizePage(c, AuthorizePageData{
		UserCode:  auth.UserCode,
		BaseURL:   middleware.RequestBaseURL(c),
		ExpiresIn: int(time.Until(auth.ExpiresAt).Seconds()),
	})
}

type checkResponse struct {
	Authorized  bool   `json:"authorized"`
	Expired     bool   `json:"expired,omitempty"`
	RedirectURI string `json:"redirect_uri,omitempty"`
	AuthCode    string `json:"auth_code,omitempty"`
	State       string `json:"state,omitempty"`
	ExpiresIn   int    `json:"expires_in,omitempty"`
	Error       string `json:"error,omitempty"`
}

// CheckHandler is polled by the authorization page to learn whether the
// out-of-band confirmation happened yet.
func (oa *OAuth2API) CheckHandler(c echo.Context) error {
	userCode := c.QueryParam("code")

	status, err := oa.flow.CheckStatus(c.Request().Context(), userCode)
	switch {
	case errors.Is(err, pairgate.ErrAuthorizationExpired):
		return c.JSON(http.StatusOK, checkResponse{Expired: true})
	case err != nil:
		return c.JSON(http.StatusOK, checkResponse{Error: "code not found"})
	}

	return c.JSON(http.StatusOK, checkResponse{
		Authorized:  status.Authorized,
		RedirectURI: status.RedirectURI,
		AuthCode:    status.AuthCode,
		State:       status.State,
		ExpiresIn:   status.ExpiresIn,
	})
}

type confirmRequest struct {
	Code string `json:"code" form:"code"`
}

type confirmResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message,omitempty"`
	Error       string `json:"error,omitempty"`
	RedirectURL string `json:"redirect_url,omitempty"`
}

// ConfirmHandler is called from the account page once the human entered the
// user code. Confirming an already-authorized code succeeds idempotently.
func (oa *OAuth2API) ConfirmHandler(c echo.Context) error {
	var req confirmRequest
	if err := c.Bind(&req); err != nil || req.Code == "" {
		return c.JSON(http.StatusOK, confirmResponse{Success: false, Error: "Code is required"})
	}

	result, err := oa.flow.Confirm(c.Request().Context(), req.Code)
	switch {
	case errors.Is(err, pairgate.ErrAuthorizationExpired):
		return c.JSON(http.StatusOK, confirmResponse{Success: false, Error: "Code expired"})
	case err != nil:
		return c.JSON(http.StatusOK, confirmResponse{Success: false, Error: "Invalid code"})
	}

	if result.AlreadyAuthorized {
		return c.JSON(http.StatusOK, confirmResponse{Success: true, Message: "Already authorized"})
	}

	return c.JSON(http.StatusOK, confirmResponse{
		Success:     true,
		Message:     "Agent connected successfully",
		RedirectURL: result.RedirectURL,
	})
}

type deviceAuthorizationRequest struct {
	ClientID string `json:"client_id" form:"client_id"`
	Scope    string `json:"scope"     form:"scope"`
}

type deviceAuthorizationResponse struct {
	DeviceCode              string `json:"device_code"`
	UserCode                string `json:"user_code"`
	VerificationURI         string `json:"verification_uri"`
	VerificationURIComplete string `json:"verification_uri_complete"`
	ExpiresIn               int    `json:"expires_in"`
	Interval                int    `json:"interval"`
}

// DeviceAuthorizationHandler starts a device-code handshake per RFC 8628.
func (oa *OAuth2API) DeviceAuthorizationHandler(c echo.Context) error {
	var req deviceAuthorizationRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, oautherrors.NewInvalidRequest("Malformed device authorization request"))
	}
	if req.ClientID == "" {
		req.ClientID = "desktop-agent"
	}

	device, err := oa.flow.BeginDeviceAuthorization(c.Request().Context(), req.ClientID, req.Scope)
	if err != nil {
		log.Error().Err(err).Msg("failed to create device authorization")
		return c.JSON(http.StatusInternalServerError, oautherrors.NewServerError("Failed to create device authorization"))
	}

	baseURL := middleware.RequestBaseURL(c)
	return c.JSON(http.StatusOK, deviceAuthorizationResponse{
		DeviceCode:              device.DeviceCode,
		UserCode:                device.UserCode,
		VerificationURI:         baseURL + "/device",
		VerificationURIComplete: fmt.Sprintf("%s/device?user_code=%s", baseURL, device.UserCode),
		ExpiresIn:               device.ExpiresIn,
		Interval:                device.Interval,
	})
}

// DeviceVerificationHandler renders the page where the human enters the code.
func (oa *OAuth2API) DeviceVerificationHandler(c echo.Context) error {
	return oa.renderer.DevicePage(c, DevicePageData{
		UserCode: c.QueryParam("user_code"),
		BaseURL:  middleware.RequestBaseURL(c),
	})
}

type tokenRequest struct {
	GrantType    string `json:"grant_type"    form:"grant_type"`
	Code         string `json:"code"          form:"code"`
	DeviceCode   string `json:"device_code"   form:"device_code"`
	RefreshToken string `json:"refresh_token" form:"refresh_token"`
	ClientID     string `json:"client_id"     form:"client_id"`
	CodeVerifier string `json:"code_verifier" form:"code_verifier"`
}

// TokenHandler exchanges a grant for a bearer token pair. Supported grants:
// authorization_code, the device-code URN, and refresh_token.
func (oa *OAuth2API) TokenHandler(c echo.Context) error {
	var req tokenRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, oautherrors.NewInvalidRequest("Malformed token request"))
	}

	ctx := c.Request().Context()

	var tokenResponse *pairgate.TokenResponse
	var processErr error

	switch req.GrantType {
	case "authorization_code":
		// code_verifier is captured but not cryptographically checked.
		tokenResponse, processErr = oa.tokens.ExchangeAuthorizationCode(ctx, req.Code, req.ClientID)
	case pairgate.GrantTypeDeviceCode:
		tokenResponse, processErr = oa.tokens.ExchangeDeviceCode(ctx, req.DeviceCode)
	case "refresh_token":
		tokenResponse, processErr = oa.tokens.Refresh(ctx, req.RefreshToken)
	default:
		return c.JSON(http.StatusBadRequest, oautherrors.NewUnsupportedGrantType())
	}

	if processErr != nil {
		var oauthErr *oautherrors.OAuth2Error
		if errors.As(processErr, &oauthErr) {
			log.Debug().Err(oauthErr).Str("grant_type", req.GrantType).Msg("token exchange rejected")
			return c.JSON(http.StatusBadRequest, oauthErr)
		}

		log.Error().Err(processErr).Str("grant_type", req.GrantType).Msg("token exchange failed")
		return c.JSON(http.StatusInternalServerError, oautherrors.NewServerError("Failed to generate token"))
	}

	log.Info().
		Str("client_id", req.ClientID).
		Str("grant_type", req.GrantType).
		Int("expires_in", tokenResponse.ExpiresIn).
		Msg("token issued")

	return c.JSON(http.StatusOK, tokenResponse)
}

type revokeRequest struct {
	Token         string `json:"token"           form:"token"`
	TokenTypeHint string `json:"token_type_hint" form:"token_type_hint"`
}

// RevokeHandler invalidates a token. Per RFC 7009 it always reports success,
// even for unknown tokens.
func (oa *OAuth2API) RevokeHandler(c echo.Context) error {
	var req revokeRequest
	if err := c.Bind(&req); err != nil {
		return c.NoContent(http.StatusOK)
	}

	if err := oa.tokens.Revoke(c.Request().Context(), req.Token); err != nil {
		log.Error().Err(err).Msg("revocation failed internally")
	}

	return c.NoContent(http.StatusOK)
}

type registerRequest struct {
	ClientName   string   `json:"client_name"   form:"client_name"`
	RedirectURIs []string `json:"redirect_uris" form:"redirect_uris"`
	Scope        string   `json:"scope"         form:"scope"`
}

type registerResponse struct {
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	ClientName   string   `json:"client_name,omitempty"`
	RedirectURIs []string `json:"redirect_uris,omitempty"`
}

// RegisterHandler performs dynamic client registration. The plaintext secret
// is returned exactly once; only its hash is stored.
func (oa *OAuth2API) RegisterHandler(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, oautherrors.NewInvalidRequest("Malformed registration request"))
	}

	var scopes []string
	if req.Scope != "" {
		scopes = []string{req.Scope}
	}

	result, err := oa.clients.Register(c.Request().Context(), req.ClientName, req.RedirectURIs, scopes)
	if err != nil {
		log.Error().Err(err).Msg("client registration failed")
		return c.JSON(http.StatusInternalServerError, oautherrors.NewServerError("Failed to register client"))
	}

	return c.JSON(http.StatusCreated, registerResponse{
		ClientID:     result.Client.ID,
		ClientSecret: result.Secret,
		ClientName:   result.Client.Name,
		RedirectURIs: result.Client.RedirectURIs,
	})
}

// DebugPendingHandler lists live pending authorizations for troubleshooting.
func (oa *OAuth2API) DebugPendingHandler(c echo.Context) error {
	pending := oa.authStore.Snapshot()

	type pendingView struct {
		UserCode   string `json:"user_code"`
		Authorized bool   `json:"authorized"`
		CreatedAt  string `json:"created_at"`
		ExpiresIn  int    `json:"expires_in"`
	}

	views := make([]pendingView, 0, len(pending))
	for _, auth := range pending {
		views = append(views, pendingView{
			UserCode:   auth.UserCode,
			Authorized: auth.Authorized,
			CreatedAt:  auth.CreatedAt.UTC().Format(time.RFC3339),
			ExpiresIn:  int(time.Until(auth.ExpiresAt).Seconds()),
		})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"pending_authorizations": views,
		"total_pending":          len(views),
	})
}

// RPCDescriptorHandler answers authenticated GETs with the server identity.
func (oa *OAuth2API) RPCDescriptorHandler(c echo.Context) error {
	info := oa.dispatcher.Info()
	return c.JSON(http.StatusOK, map[string]any{
		"name":    info.Name,
		"version": info.Version,
		"status":  "ready",
		"message": "RPC server ready for JSON-RPC calls via POST",
	})
}

// RPCHandler dispatches an authenticated JSON-RPC 2.0 message.
func (oa *OAuth2API) RPCHandler(c echo.Context) error {
	var req rpc.Request
	if err := c.Bind(&req); err != nil || req.JSONRPC != "2.0" {
		return c.JSON(http.StatusBadRequest, oautherrors.NewInvalidRequest("Expected a JSON-RPC 2.0 message"))
	}

	resp := oa.dispatcher.Dispatch(c.Request().Context(), &req)
	return c.JSON(http.StatusOK, resp)
}

// EventsHandler holds a server-sent-events stream open for the paired agent,
// emitting periodic pings until the client disconnects.
func (oa *OAuth2API) EventsHandler(c echo.Context) error {
	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := fmt.Fprintf(w, "data: {\"type\":\"ping\",\"timestamp\":%q}\n\n",
				time.Now().UTC().Format(time.RFC3339)); err != nil {
				return nil
			}
			w.Flush()
		}
	}
}
