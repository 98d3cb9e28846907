package auth

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/loopio/feedback-tracker/internal/domain"
	apperrors "github.com/loopio/feedback-tracker/pkg/util/errorutil"
)

const principalKey = "auth_principal"

// Principal represents the authenticated caller. The user is reloaded on
// every request so role changes and deletions take effect immediately.
type Principal struct {
	User *domain.User
}

// ID returns the caller's user id.
func (p *Principal) ID() string { return p.User.ID }

// Role returns the caller's role.
func (p *Principal) Role() domain.Role { return p.User.Role }

// UserLoader loads the identity a token points at.
type UserLoader interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
}

// AuthMiddleware validates bearer tokens and loads principals.
type AuthMiddleware struct {
	tokens *TokenManager
	users  UserLoader
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager, users UserLoader) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, users: users}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("not authorized, no token")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(strings.TrimSpace(parts[1]))
	if err != nil {
		return apperrors.NewUnauthorized("not authorized, token failed")
	}

	user, err := m.users.GetByID(c.UserContext(), claims.UserID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return apperrors.NewUnauthorized("user not found")
		}
		return apperrors.MapError(err)
	}

	c.Locals(principalKey, &Principal{User: user})
	return c.Next()
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
