package auth

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/saber-em-movimento/backend/internal/domain"
	"github.com/saber-em-movimento/backend/internal/repository"
)

// Outcome is the tagged result of one token strategy.
type Outcome int

const (
	// NotApplicable means the strategy does not recognise the token; the
	// chain moves on.
	NotApplicable Outcome = iota
	// Accepted means the token resolved to a user; the chain stops.
	Accepted
	// Rejected means the token was recognised and refused; the chain stops.
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	default:
		return "not_applicable"
	}
}

// Verdict is what a strategy concluded about a token.
type Verdict struct {
	Outcome  Outcome
	UserID   string
	Reason   string
	Strategy string
}

// TokenStrategy evaluates a bearer token. A returned error means a
// collaborator failed, not that the token is bad.
type TokenStrategy interface {
	Name() string
	Evaluate(ctx context.Context, token string) (Verdict, error)
}

// Chain runs strategies in order until one accepts or rejects.
type Chain []TokenStrategy

// Resolve returns the first Accepted or Rejected verdict. An exhausted chain
// rejects with reason "invalid_token".
func (c Chain) Resolve(ctx context.Context, token string, perCall time.Duration) (Verdict, error) {
	for _, strategy := range c {
		verdict, err := evaluate(ctx, strategy, token, perCall)
		if err != nil {
			return Verdict{Strategy: strategy.Name()}, err
		}
		verdict.Strategy = strategy.Name()
		if verdict.Outcome != NotApplicable {
			return verdict, nil
		}
	}
	return Verdict{Outcome: Rejected, Reason: "invalid_token"}, nil
}

func evaluate(ctx context.Context, strategy TokenStrategy, token string, perCall time.Duration) (Verdict, error) {
	if perCall <= 0 {
		return strategy.Evaluate(ctx, token)
	}
	callCtx, cancel := context.WithTimeout(ctx, perCall)
	defer cancel()
	return strategy.Evaluate(callCtx, token)
}

// TokenVerifier verifies tokens issued by the identity provider.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (*Claims, error)
}

// ProviderStrategy accepts identity provider tokens. With a session check
// configured, an authentic token must also still be the user's current token,
// so logout and password resets revoke signed tokens too.
type ProviderStrategy struct {
	verifier TokenVerifier
	users    UserLoader
	cache    TokenCache
	cacheTTL time.Duration
}

// ProviderOption configures a ProviderStrategy.
type ProviderOption func(*ProviderStrategy)

// WithCurrentSession requires accepted tokens to match the stored current
// token, loaded by key and remembered in cache for at most cacheTTL.
func WithCurrentSession(users UserLoader, cache TokenCache, cacheTTL time.Duration) ProviderOption {
	return func(s *ProviderStrategy) {
		if cache == nil {
			cache = NopTokenCache{}
		}
		s.users, s.cache, s.cacheTTL = users, cache, cacheTTL
	}
}

// NewProviderStrategy wraps a verifier.
func NewProviderStrategy(verifier TokenVerifier, opts ...ProviderOption) *ProviderStrategy {
	s := &ProviderStrategy{verifier: verifier}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ProviderStrategy) Name() string { return "provider" }

func (s *ProviderStrategy) Evaluate(ctx context.Context, token string) (Verdict, error) {
	claims, err := s.verifier.VerifyToken(ctx, token)
	switch {
	case err == nil:
	case errors.Is(err, ErrTokenExpired):
		return Verdict{Outcome: Rejected, Reason: "invalid_token"}, nil
	case errors.Is(err, ErrInvalidToken):
		return Verdict{Outcome: NotApplicable}, nil
	default:
		return Verdict{}, err
	}
	if s.users == nil {
		return Verdict{Outcome: Accepted, UserID: claims.UserID}, nil
	}
	return s.checkCurrent(ctx, token, claims)
}

func (s *ProviderStrategy) checkCurrent(ctx context.Context, token string, claims *Claims) (Verdict, error) {
	if userID, ok, err := s.cache.Get(ctx, token); err == nil && ok && userID == claims.UserID {
		return Verdict{Outcome: Accepted, UserID: userID, Reason: "cached"}, nil
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return Verdict{Outcome: Rejected, Reason: "revoked"}, nil
	}
	if err != nil {
		return Verdict{}, err
	}
	if user.CurrentToken == "" || user.CurrentToken != token {
		return Verdict{Outcome: Rejected, Reason: "revoked"}, nil
	}

	ttl := s.cacheTTL
	if claims.ExpiresAt != nil {
		if remaining := time.Until(claims.ExpiresAt.Time); remaining < ttl {
			ttl = remaining
		}
	}
	if ttl > 0 {
		_ = s.cache.Set(ctx, token, user.ID, ttl)
	}
	return Verdict{Outcome: Accepted, UserID: user.ID}, nil
}

// CurrentTokenLookup finds the user whose last issued token equals token.
type CurrentTokenLookup interface {
	GetByCurrentToken(ctx context.Context, token string) (*domain.User, error)
}

// DirectoryStrategy accepts opaque tokens by an indexed point lookup on the
// stored current token, fronted by an optional cache.
type DirectoryStrategy struct {
	users    CurrentTokenLookup
	cache    TokenCache
	cacheTTL time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewDirectoryStrategy builds the lookup strategy. A nil cache disables caching.
func NewDirectoryStrategy(users CurrentTokenLookup, cache TokenCache, cacheTTL time.Duration, logger *zap.Logger) *DirectoryStrategy {
	if cache == nil {
		cache = NopTokenCache{}
	}
	return &DirectoryStrategy{users: users, cache: cache, cacheTTL: cacheTTL, logger: logger, now: time.Now}
}

func (s *DirectoryStrategy) Name() string { return "directory" }

func (s *DirectoryStrategy) Evaluate(ctx context.Context, token string) (Verdict, error) {
	if userID, ok, err := s.cache.Get(ctx, token); err != nil {
		s.logger.Warn("token cache read failed", zap.Error(err))
	} else if ok {
		return Verdict{Outcome: Accepted, UserID: userID, Reason: "cached"}, nil
	}

	user, err := s.users.GetByCurrentToken(ctx, token)
	if errors.Is(err, repository.ErrNotFound) {
		return Verdict{Outcome: NotApplicable}, nil
	}
	if err != nil {
		return Verdict{}, err
	}

	now := s.now()
	ttl := s.cacheTTL
	if exp := user.CurrentTokenExpiresAt; exp != nil {
		if !now.Before(*exp) {
			return Verdict{Outcome: Rejected, Reason: "invalid_token"}, nil
		}
		if remaining := exp.Sub(now); remaining < ttl {
			ttl = remaining
		}
	}
	if ttl > 0 {
		if err := s.cache.Set(ctx, token, user.ID, ttl); err != nil {
			s.logger.Warn("token cache write failed", zap.Error(err))
		}
	}
	return Verdict{Outcome: Accepted, UserID: user.ID}, nil
}
