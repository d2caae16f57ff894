package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/saber-em-movimento/backend/internal/auth"
	"github.com/saber-em-movimento/backend/internal/config"
	"github.com/saber-em-movimento/backend/internal/directory"
	"github.com/saber-em-movimento/backend/internal/events"
	"github.com/saber-em-movimento/backend/internal/identity"
	"github.com/saber-em-movimento/backend/internal/repository"
)

var errBoom = errors.New("boom")

// flakyDirectory wraps a directory and injects failures per collection.
type flakyDirectory struct {
	directory.Directory

	mu         sync.Mutex
	calls      int
	failInsert map[string]error
	block      bool
}

func (f *flakyDirectory) record() (bool, map[string]error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.block, f.failInsert
}

func (f *flakyDirectory) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *flakyDirectory) Insert(ctx context.Context, collection, key string, doc directory.Document) error {
	block, fail := f.record()
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	if err := fail[collection]; err != nil {
		return err
	}
	return f.Directory.Insert(ctx, collection, key, doc)
}

func (f *flakyDirectory) QueryEquals(ctx context.Context, collection string, filters ...directory.Filter) ([]directory.Document, error) {
	block, _ := f.record()
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.Directory.QueryEquals(ctx, collection, filters...)
}

func (f *flakyDirectory) GetByKey(ctx context.Context, collection, key string) (directory.Document, error) {
	f.record()
	return f.Directory.GetByKey(ctx, collection, key)
}

// spyProvider counts identity calls and can fail token issuance.
type spyProvider struct {
	identity.Provider

	mu        sync.Mutex
	calls     int
	issueErr  error
	deleteErr error
}

func (s *spyProvider) count() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
}

func (s *spyProvider) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *spyProvider) CreateAccount(ctx context.Context, identifier, secret string) (string, error) {
	s.count()
	return s.Provider.CreateAccount(ctx, identifier, secret)
}

func (s *spyProvider) IssueToken(ctx context.Context, externalID string) (identity.Token, error) {
	s.count()
	if s.issueErr != nil {
		return identity.Token{}, s.issueErr
	}
	return s.Provider.IssueToken(ctx, externalID)
}

func (s *spyProvider) DeleteAccount(ctx context.Context, externalID string) error {
	s.count()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	return s.Provider.DeleteAccount(ctx, externalID)
}

type harness struct {
	mem       *directory.Memory
	dir       *flakyDirectory
	provider  *spyProvider
	users     repository.UserRepository
	recon     repository.ReconciliationRepository
	auth      *AuthService
	reconcile *ReconcileService
	logs      *observer.ObservedLogs
}

func testConfig() config.Config {
	return config.Config{
		Auth: config.AuthConfig{
			JWTSecret:               "test-jwt-secret",
			IdentifierKey:           "test-identifier-key",
			IdentifierDomain:        "aprenderemmovimento.com",
			TokenKind:               config.TokenKindJWT,
			AccessTokenTTLMinutes:   60,
			PasswordResetTTLMinutes: 30,
			BcryptCost:              4,
			CallTimeoutMillis:       1000,
		},
	}
}

func newHarness(t *testing.T, mutate ...func(*config.Config)) *harness {
	t.Helper()
	cfg := testConfig()
	for _, m := range mutate {
		m(&cfg)
	}

	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	mem := directory.NewMemory()
	ctx := context.Background()
	require.NoError(t, mem.EnsureIndexes(ctx, repository.UserIndexes()...))
	require.NoError(t, mem.EnsureIndexes(ctx, repository.PasswordResetIndexes()...))
	require.NoError(t, mem.EnsureIndexes(ctx, repository.ReconciliationIndexes()...))
	require.NoError(t, mem.EnsureIndexes(ctx, identity.AccountIndexes()...))
	dir := &flakyDirectory{Directory: mem, failInsert: map[string]error{}}

	hasher := auth.NewHasher(cfg.Auth.BcryptCost)
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL())
	local := identity.NewLocalProvider(dir, hasher, tokens, identity.TokenKind(cfg.Auth.TokenKind), logger)
	provider := &spyProvider{Provider: local}

	users := repository.NewUserRepository(dir)
	recon := repository.NewReconciliationRepository(dir)
	dispatcher := events.NewInMemoryDispatcher(logger)

	reconcile := NewReconcileService(cfg, ReconcileDependencies{
		ReconciliationRepo: recon,
		UserRepo:           users,
		Provider:           provider,
		Dispatcher:         dispatcher,
		Logger:             logger,
	})
	reconcile.RegisterHandlers()
	NewAuditService(dispatcher, logger).RegisterHandlers()

	authService := NewAuthService(cfg, AuthDependencies{
		UserRepo:          users,
		PasswordResetRepo: repository.NewPasswordResetRepository(dir),
		Provider:          provider,
		Dispatcher:        dispatcher,
		Logger:            logger,
	})

	return &harness{
		mem:       mem,
		dir:       dir,
		provider:  provider,
		users:     users,
		recon:     recon,
		auth:      authService,
		reconcile: reconcile,
		logs:      logs,
	}
}

func strPtr(s string) *string { return &s }

func anaInput() RegisterInput {
	return RegisterInput{
		FullName:   "Ana Silva",
		NationalID: "12345678901",
		Role:       "student",
		BirthDate:  "2010-01-01",
	}
}

func (h *harness) register(t *testing.T, in RegisterInput) *RegisterResult {
	t.Helper()
	res, err := h.auth.Register(context.Background(), in)
	require.NoError(t, err)
	return res
}

func withTimeout(d time.Duration) func(*config.Config) {
	return func(c *config.Config) { c.Auth.CallTimeoutMillis = int(d / time.Millisecond) }
}
