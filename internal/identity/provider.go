// Package identity is the identity collaborator: it owns the canonical
// account credential pair and issues session tokens for accounts.
package identity

import (
	"context"
	"errors"
	"time"

	"github.com/saber-em-movimento/backend/internal/auth"
)

var (
	// ErrAlreadyExists is returned when an account with the identifier exists.
	ErrAlreadyExists = errors.New("identity: account already exists")
	// ErrAccountNotFound is returned for an unknown or disabled external id.
	ErrAccountNotFound = errors.New("identity: account not found")
	// ErrInvalidIdentifier is returned when the identifier is not a bare
	// email address.
	ErrInvalidIdentifier = errors.New("identity: malformed identifier")
	// ErrInvalidToken is returned for any token this provider did not issue.
	ErrInvalidToken = auth.ErrInvalidToken
	// ErrTokenExpired is returned for an authentic token past its expiry.
	ErrTokenExpired = auth.ErrTokenExpired
)

// Token is a session token issued for an account.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// Provider is the contract the auth flows use to talk to the identity
// provider.
type Provider interface {
	CreateAccount(ctx context.Context, identifier, secret string) (externalID string, err error)
	VerifyToken(ctx context.Context, token string) (*auth.Claims, error)
	IssueToken(ctx context.Context, externalID string) (Token, error)
	UpdateAccountSecret(ctx context.Context, externalID, newSecret string) error
	// DeleteAccount removes an account. It backs compensation of partially
	// failed registrations.
	DeleteAccount(ctx context.Context, externalID string) error
}
