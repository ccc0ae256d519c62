package http

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/classboard/core/internal/application/services"
	"github.com/classboard/core/internal/infrastructure/logger"
)

// accessTokenParam carries the bearer token for websocket upgrades, which cannot set headers
// from a browser.
const accessTokenParam = "access_token"

// RequireUser validates the bearer token and stores the caller in the context
func RequireUser(auth *services.AuthService, log *logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tokenString := c.QueryParam(accessTokenParam)
			if authHeader := c.Request().Header.Get(echo.HeaderAuthorization); authHeader != "" {
				tokenString = strings.TrimPrefix(authHeader, "Bearer ")
				if tokenString == authHeader {
					return echo.NewHTTPError(http.StatusUnauthorized, "Invalid authorization header format")
				}
			}
			if tokenString == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Missing authorization header")
			}

			identity, err := auth.ValidateToken(tokenString)
			if err != nil {
				log.LogSecurityEvent("invalid_token", "", c.RealIP(), map[string]interface{}{
					"error": err.Error(),
				})
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token")
			}

			c.Set("user", identity.UserID)
			c.Set("user_email", identity.Email)

			return next(c)
		}
	}
}

// getUserIDFromContext extracts the caller set by RequireUser
func getUserIDFromContext(c echo.Context) string {
	userID, _ := c.Get("user").(string)
	return userID
}
