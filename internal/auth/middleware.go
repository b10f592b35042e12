package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/staylink/verification-service/internal/domain"
	"github.com/staylink/verification-service/internal/repository"
	apperrors "github.com/staylink/verification-service/pkg/util/errorutil"
)

const principalKey = "auth_principal"

// Principal represents the authenticated caller.
type Principal struct {
	Actor    domain.ActorType
	User     *domain.User
	Operator *domain.Operator
	Role     *domain.OperatorRole
}

// AuthMiddleware validates bearer tokens and loads principals.
type AuthMiddleware struct {
	tokens    *TokenManager
	users     repository.UserRepository
	operators repository.OperatorRepository
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager, users repository.UserRepository, operators repository.OperatorRepository) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, users: users, operators: operators}
}

// Handle enforces authentication for protected routes. Browsers cannot set
// headers on a websocket handshake, so the token may also arrive as the
// access_token query parameter.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	token, err := bearerToken(c)
	if err != nil {
		return err
	}

	claims, err := m.tokens.ParseToken(token)
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}

	principal := &Principal{Actor: claims.Actor, Role: claims.Role}

	switch claims.Actor {
	case domain.ActorTypePartner:
		user, err := m.users.GetByID(c.UserContext(), claims.Subject)
		if err != nil {
			if errors.Is(err, domain.ErrAccountNotFound) {
				return apperrors.NewUnauthorized("user not found")
			}
			return apperrors.MapError(err)
		}
		if user.Status != domain.UserStatusActive {
			return apperrors.NewForbidden("account suspended")
		}
		principal.User = user
	case domain.ActorTypeOperator:
		operator, err := m.operators.GetByID(c.UserContext(), claims.Subject)
		if err != nil {
			if errors.Is(err, domain.ErrAccountNotFound) {
				return apperrors.NewUnauthorized("operator not found")
			}
			return apperrors.MapError(err)
		}
		if !operator.Active {
			return apperrors.NewForbidden("operator inactive")
		}
		principal.Operator = operator
	default:
		return apperrors.NewUnauthorized("unknown subject")
	}

	c.Locals(principalKey, principal)
	return c.Next()
}

func bearerToken(c *fiber.Ctx) (string, error) {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		if token := c.Query("access_token"); token != "" {
			return token, nil
		}
		return "", apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", apperrors.NewUnauthorized("invalid authorization header")
	}
	return parts[1], nil
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}
