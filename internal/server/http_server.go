package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	echoapi "github.com/pairgate/pairgate/api/echo"
	"github.com/pairgate/pairgate/config"
	"github.com/pairgate/pairgate/log"
)

// NewHTTPServer creates and configures the echo HTTP server.
func NewHTTPServer(cfg *config.ServerConfig, appLogger log.Logger, oauthAPI *echoapi.OAuth2API) *http.Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomw.Recover())

	// The desktop agent calls from a different origin and needs to read the
	// authentication challenge header.
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{echo.HeaderContentType, echo.HeaderAuthorization},
		ExposeHeaders: []string{"WWW-Authenticate"},
		MaxAge:        86400,
	}))

	// Request logging through the injected logger.
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			fields := map[string]interface{}{
				"method":     c.Request().Method,
				"path":       c.Request().URL.Path,
				"status":     c.Response().Status,
				"latency":    time.Since(start).String(),
				"ip":         c.RealIP(),
				"user_agent": c.Request().UserAgent(),
			}
			if err != nil {
				appLogger.Error(c.Request().Context(), "HTTP request failed", err, fields)
			} else {
				appLogger.Info(c.Request().Context(), "HTTP request", fields)
			}
			return err
		}
	})

	oauthAPI.RegisterRoutes(e)

	return &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: e,
		// WriteTimeout stays generous because /events holds the connection
		// open for long-poll streaming.
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}
}
