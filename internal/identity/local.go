package identity

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/saber-em-movimento/backend/internal/auth"
	"github.com/saber-em-movimento/backend/internal/directory"
)

// AccountsCollection holds identity accounts.
const AccountsCollection = "accounts"

// TokenKind selects what IssueToken hands out.
type TokenKind string

const (
	// TokenKindJWT issues signed tokens that VerifyToken can check offline.
	TokenKindJWT TokenKind = "jwt"
	// TokenKindOpaque issues random tokens that only a directory lookup on
	// the stored current token can resolve.
	TokenKindOpaque TokenKind = "opaque"
)

// AccountIndexes lists the indexes the provider relies on.
func AccountIndexes() []directory.IndexSpec {
	return []directory.IndexSpec{
		{Name: "accounts_identifier_uq", Collection: AccountsCollection, Fields: []string{"identifier"}, Unique: true},
	}
}

// LocalProvider is an identity provider backed by the document store.
type LocalProvider struct {
	dir    directory.Directory
	hasher *auth.Hasher
	tokens *auth.TokenManager
	kind   TokenKind
	logger *zap.Logger
	now    func() time.Time
}

// NewLocalProvider builds a provider. Unknown kinds fall back to JWT.
func NewLocalProvider(dir directory.Directory, hasher *auth.Hasher, tokens *auth.TokenManager, kind TokenKind, logger *zap.Logger) *LocalProvider {
	if kind != TokenKindOpaque {
		kind = TokenKindJWT
	}
	return &LocalProvider{dir: dir, hasher: hasher, tokens: tokens, kind: kind, logger: logger, now: time.Now}
}

// Kind reports the token kind this provider issues.
func (p *LocalProvider) Kind() TokenKind {
	return p.kind
}

func (p *LocalProvider) CreateAccount(ctx context.Context, identifier, secret string) (string, error) {
	identifier, err := normalizeIdentifier(identifier)
	if err != nil {
		return "", err
	}

	existing, err := p.dir.QueryEquals(ctx, AccountsCollection, directory.Eq("identifier", identifier))
	if err != nil {
		return "", fmt.Errorf("identity: lookup account: %w", err)
	}
	if len(existing) > 0 {
		return "", ErrAlreadyExists
	}

	hash, err := p.hasher.Hash(secret)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	now := p.now().UTC()
	err = p.dir.Insert(ctx, AccountsCollection, id, directory.Document{
		"id":         id,
		"identifier": identifier,
		"secretHash": hash,
		"disabled":   false,
		"createdAt":  now,
		"updatedAt":  now,
	})
	if errors.Is(err, directory.ErrDuplicate) {
		return "", ErrAlreadyExists
	}
	if err != nil {
		return "", fmt.Errorf("identity: create account: %w", err)
	}

	p.logger.Debug("identity account created", zap.String("external_id", id))
	return id, nil
}

// VerifyToken checks a signed token. Opaque tokens are never verifiable here.
func (p *LocalProvider) VerifyToken(_ context.Context, token string) (*auth.Claims, error) {
	if p.kind == TokenKindOpaque {
		return nil, ErrInvalidToken
	}
	return p.tokens.ParseToken(token)
}

func (p *LocalProvider) IssueToken(ctx context.Context, externalID string) (Token, error) {
	if _, err := p.account(ctx, externalID); err != nil {
		return Token{}, err
	}

	if p.kind == TokenKindOpaque {
		return Token{
			Value:     strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", ""),
			ExpiresAt: p.now().Add(p.tokens.TTL()),
		}, nil
	}

	value, expiresAt, err := p.tokens.GenerateToken(externalID)
	if err != nil {
		return Token{}, fmt.Errorf("identity: sign token: %w", err)
	}
	return Token{Value: value, ExpiresAt: expiresAt}, nil
}

func (p *LocalProvider) UpdateAccountSecret(ctx context.Context, externalID, newSecret string) error {
	if _, err := p.account(ctx, externalID); err != nil {
		return err
	}
	hash, err := p.hasher.Hash(newSecret)
	if err != nil {
		return err
	}
	err = p.dir.Merge(ctx, AccountsCollection, externalID, directory.Document{
		"secretHash": hash,
		"updatedAt":  p.now().UTC(),
	})
	if errors.Is(err, directory.ErrNotFound) {
		return ErrAccountNotFound
	}
	return err
}

func (p *LocalProvider) DeleteAccount(ctx context.Context, externalID string) error {
	err := p.dir.Delete(ctx, AccountsCollection, externalID)
	if errors.Is(err, directory.ErrNotFound) {
		return ErrAccountNotFound
	}
	if err != nil {
		return fmt.Errorf("identity: delete account: %w", err)
	}
	p.logger.Info("identity account deleted", zap.String("external_id", externalID))
	return nil
}

func (p *LocalProvider) account(ctx context.Context, externalID string) (directory.Document, error) {
	if externalID == "" {
		return nil, ErrAccountNotFound
	}
	doc, err := p.dir.GetByKey(ctx, AccountsCollection, externalID)
	if errors.Is(err, directory.ErrNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("identity: load account: %w", err)
	}
	if doc.Bool("disabled") {
		return nil, ErrAccountNotFound
	}
	return doc, nil
}

// normalizeIdentifier accepts only a bare RFC 5322 address and lowercases it.
func normalizeIdentifier(identifier string) (string, error) {
	identifier = strings.TrimSpace(identifier)
	addr, err := mail.ParseAddress(identifier)
	if err != nil || addr.Name != "" || addr.Address != identifier {
		return "", ErrInvalidIdentifier
	}
	return strings.ToLower(addr.Address), nil
}
