package auth

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/staylink/verification-service/internal/domain"
)

// RequireUser ensures a partner is authenticated.
func RequireUser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok || principal.Actor != domain.ActorTypePartner || principal.User == nil {
			return fiber.NewError(http.StatusForbidden, "partner account required")
		}
		return c.Next()
	}
}

// RequireOperatorRole ensures the operator principal has one of the allowed roles.
func RequireOperatorRole(allowed ...domain.OperatorRole) fiber.Handler {
	allowedSet := make(map[domain.OperatorRole]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok || principal.Actor != domain.ActorTypeOperator || principal.Operator == nil {
			return fiber.NewError(http.StatusForbidden, "operator role required")
		}
		if len(allowedSet) == 0 {
			return c.Next()
		}
		if _, exists := allowedSet[principal.Operator.Role]; !exists {
			return fiber.NewError(http.StatusForbidden, "insufficient role")
		}
		return c.Next()
	}
}
