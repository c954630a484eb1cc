package middleware

import (
	"hotelmate-backend/constants"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// Permission helper functions to work with existing middleware

// RequirePermissions is a helper function that creates a middleware with specific permissions
func RequirePermissions(permissions ...string) fiber.Handler {
	return IsAuthenticated(permissions)
}

// RequireAnyPermission allows access if user has any of the specified permissions
func RequireAnyPermission(permissions ...string) fiber.Handler {
	// Add "any" to allow flexible permission checking
	allPerms := append(permissions, constants.PermAny)
	return IsAuthenticated(allPerms)
}

// RequireAuthentication only requires valid authentication without specific permissions
func RequireAuthentication() fiber.Handler {
	return IsAuthenticated([]string{constants.PermAny})
}

// StaffIdentity extracts the acting staff identity from the request claims.
// Falls back through username and uuid so audit fields are never empty.
func StaffIdentity(c *fiber.Ctx) string {
	claims, ok := c.Locals("user").(map[string]interface{})
	if !ok {
		if mapClaims, ok := c.Locals("user").(jwt.MapClaims); ok {
			claims = mapClaims
		} else {
			return ""
		}
	}
	if username, ok := claims["username"].(string); ok && username != "" {
		return username
	}
	if uuid, ok := claims["uuid"].(string); ok && uuid != "" {
		return uuid
	}
	return ""
}
