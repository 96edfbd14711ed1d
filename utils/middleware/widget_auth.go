package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/northbeam/portal-api/utils/auth"
	"github.com/northbeam/portal-api/utils/response"
)

const widgetClaimsKey = "widget_claims"

// WidgetAuth verifies widget session tokens
type WidgetAuth struct {
	jwtManager *auth.JWTManager
}

// NewWidgetAuth creates the widget token middleware
func NewWidgetAuth(jwtManager *auth.JWTManager) *WidgetAuth {
	return &WidgetAuth{jwtManager: jwtManager}
}

// Required is middleware that requires a valid widget token
func (m *WidgetAuth) Required() fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return response.Unauthorized(c, "Missing authorization token")
		}

		// Extract token from "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			return response.Unauthorized(c, "Invalid authorization format")
		}

		claims, err := m.jwtManager.ValidateToken(parts[1])
		if err != nil {
			if errors.Is(err, auth.ErrExpiredToken) {
				return response.Unauthorized(c, "Token has expired")
			}
			return response.Unauthorized(c, "Invalid token")
		}

		c.Locals(widgetClaimsKey, claims)
		return c.Next()
	}
}

// GetWidgetClaims returns the verified claims, or nil when the route is not protected
func GetWidgetClaims(c *fiber.Ctx) *auth.WidgetClaims {
	claims, _ := c.Locals(widgetClaimsKey).(*auth.WidgetClaims)
	return claims
}
