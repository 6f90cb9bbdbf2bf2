package auth

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// RequireOperator ensures the caller holds the operator role.
func RequireOperator() fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return fiber.NewError(http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		}
		if principal.Role != RoleOperator {
			return fiber.NewError(http.StatusForbidden, "operator role required")
		}
		return c.Next()
	}
}
