package auth

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/saber-em-movimento/backend/internal/domain"
	apperrors "github.com/saber-em-movimento/backend/pkg/util"
)

const principalKey = "auth_principal"

// Principal represents the authenticated caller.
type Principal struct {
	UserID   string
	Strategy string
	Token    string
	// User is loaded lazily by role checks.
	User *domain.User
}

// SessionValidator admits requests carrying a bearer token accepted by its
// strategy chain.
type SessionValidator struct {
	chain   Chain
	timeout time.Duration
	logger  *zap.Logger
}

// NewSessionValidator constructs middleware. Strategies run in the given order.
func NewSessionValidator(logger *zap.Logger, perCallTimeout time.Duration, strategies ...TokenStrategy) *SessionValidator {
	return &SessionValidator{chain: Chain(strategies), timeout: perCallTimeout, logger: logger}
}

// Handle enforces authentication for protected routes.
func (v *SessionValidator) Handle(c *fiber.Ctx) error {
	principal, err := v.Validate(c.UserContext(), c.Get(fiber.HeaderAuthorization))
	if err != nil {
		return err
	}
	c.Locals(principalKey, principal)
	return c.Next()
}

// Optional attaches a principal when a valid token is present and lets
// anonymous or invalid callers through.
func (v *SessionValidator) Optional(c *fiber.Ctx) error {
	if c.Get(fiber.HeaderAuthorization) != "" {
		if principal, err := v.Validate(c.UserContext(), c.Get(fiber.HeaderAuthorization)); err == nil {
			c.Locals(principalKey, principal)
		}
	}
	return c.Next()
}

// Validate resolves an Authorization header value to a principal.
func (v *SessionValidator) Validate(ctx context.Context, header string) (*Principal, error) {
	token, ok := BearerToken(header)
	if !ok {
		return nil, apperrors.NewAuthError("missing_token")
	}

	verdict, err := v.chain.Resolve(ctx, token, v.timeout)
	if err != nil {
		v.logger.Error("session validation dependency failed",
			zap.String("strategy", verdict.Strategy),
			zap.Error(err))
		return nil, apperrors.NewDependencyError("session_lookup_failed", err)
	}
	if verdict.Outcome != Accepted {
		v.logger.Debug("session rejected", zap.String("strategy", verdict.Strategy), zap.String("reason", verdict.Reason))
		return nil, apperrors.NewAuthError("invalid_token")
	}

	v.logger.Debug("session accepted", zap.String("strategy", verdict.Strategy), zap.String("user_id", verdict.UserID))
	return &Principal{UserID: verdict.UserID, Strategy: verdict.Strategy, Token: token}, nil
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" value.
func BearerToken(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
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
