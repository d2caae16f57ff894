package auth

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/saber-em-movimento/backend/internal/domain"
	"github.com/saber-em-movimento/backend/internal/repository"
	apperrors "github.com/saber-em-movimento/backend/pkg/util"
)

// UserLoader loads user records for role checks.
type UserLoader interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
}

// RequireRole ensures the authenticated user holds one of the allowed roles.
// It must run after SessionValidator.Handle.
func RequireRole(users UserLoader, allowed ...domain.Role) fiber.Handler {
	allowedSet := make(map[domain.Role]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewAuthError("missing_token")
		}
		if principal.User == nil {
			user, err := users.GetByID(c.UserContext(), principal.UserID)
			if errors.Is(err, repository.ErrNotFound) {
				return apperrors.NewForbidden("no profile for authenticated account")
			}
			if err != nil {
				return apperrors.NewDependencyError("user_lookup_failed", err)
			}
			principal.User = user
		}
		if len(allowedSet) == 0 {
			return c.Next()
		}
		if _, exists := allowedSet[principal.User.Role]; !exists {
			return apperrors.NewForbidden("insufficient role")
		}
		return c.Next()
	}
}
