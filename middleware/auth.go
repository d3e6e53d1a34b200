package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	pairgate "github.com/pairgate/pairgate"
	oautherrors "github.com/pairgate/pairgate/errors"
)

// principalContextKey is the echo context key holding the validated Principal.
const principalContextKey = "auth-principal"

// AccessGuard returns an echo middleware that admits requests carrying a
// valid bearer token, presented either in the Authorization header or as the
// access_token query parameter (used by the streaming endpoint). Failures
// respond 401 with a WWW-Authenticate challenge naming the realm and
// error="invalid_token".
func AccessGuard(tokens *pairgate.TokenService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := extractBearerToken(c)

			principal, err := tokens.Validate(c.Request().Context(), token)
			if err != nil {
				log.Debug().
					Str("path", c.Path()).
					Str("remote", c.RealIP()).
					Msg("rejected unauthenticated request")

				challenge := fmt.Sprintf(
					`Bearer realm=%q, error="invalid_token", error_description="The access token is missing or invalid"`,
					RequestBaseURL(c))
				c.Response().Header().Set("WWW-Authenticate", challenge)

				return c.JSON(http.StatusUnauthorized, &oautherrors.OAuth2Error{
					Code:        oautherrors.InvalidToken,
					Description: "Missing or invalid bearer token",
				})
			}

			c.Set(principalContextKey, principal)

			return next(c)
		}
	}
}

// PrincipalFromContext retrieves the Principal stored by AccessGuard.
func PrincipalFromContext(c echo.Context) (*pairgate.Principal, bool) {
	principal, ok := c.Get(principalContextKey).(*pairgate.Principal)
	return principal, ok
}

// extractBearerToken pulls the token from the Authorization header, falling
// back to the access_token query parameter.
func extractBearerToken(c echo.Context) string {
	header := c.Request().Header.Get("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
		return ""
	}
	return c.QueryParam("access_token")
}

// RequestBaseURL derives the externally visible base URL from the request.
// Anything not obviously local is assumed to sit behind a TLS-terminating
// proxy and forced to https.
func RequestBaseURL(c echo.Context) string {
	host := c.Request().Host
	scheme := c.Scheme()
	if !strings.HasPrefix(host, "localhost") && !strings.HasPrefix(host, "127.0.0.1") {
		scheme = "https"
	}
	return scheme + "://" + host
}
