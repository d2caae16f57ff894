package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/saber-em-movimento/backend/internal/api/http/handlers"
	"github.com/saber-em-movimento/backend/internal/auth"
	"github.com/saber-em-movimento/backend/internal/config"
	"github.com/saber-em-movimento/backend/internal/directory"
	"github.com/saber-em-movimento/backend/internal/events"
	"github.com/saber-em-movimento/backend/internal/identity"
	"github.com/saber-em-movimento/backend/internal/observability"
	"github.com/saber-em-movimento/backend/internal/persistence"
	"github.com/saber-em-movimento/backend/internal/repository"
	"github.com/saber-em-movimento/backend/internal/service"
)

// runtime holds the long-lived collaborators shared by every command.
type runtime struct {
	cfg        *config.Config
	logger     *zap.Logger
	dir        directory.Directory
	provider   *identity.LocalProvider
	cache      auth.TokenCache
	dispatcher events.Dispatcher
	redis      *persistence.Redis
	closers    []func()
}

// bootstrap loads configuration and opens the directory, the token cache and
// the identity provider. forceMigrations applies postgres migrations even when
// POSTGRES_RUN_MIGRATIONS is off.
func bootstrap(ctx context.Context, forceMigrations bool) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	rt := &runtime{cfg: cfg, logger: logger}
	rt.closers = append(rt.closers, func() { _ = logger.Sync() })

	if err := rt.openDirectory(ctx, forceMigrations); err != nil {
		rt.Close()
		return nil, err
	}
	if err := rt.ensureIndexes(ctx); err != nil {
		rt.Close()
		return nil, err
	}
	if err := rt.openTokenCache(ctx); err != nil {
		rt.Close()
		return nil, err
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL())
	rt.provider = identity.NewLocalProvider(rt.dir, auth.NewHasher(cfg.Auth.BcryptCost), tokens,
		identity.TokenKind(cfg.Auth.TokenKind), logger)
	rt.dispatcher = events.NewInMemoryDispatcher(logger)
	return rt, nil
}

func (rt *runtime) openDirectory(ctx context.Context, forceMigrations bool) error {
	switch rt.cfg.Directory.Backend {
	case config.BackendMongo:
		m, err := persistence.NewMongo(ctx, rt.cfg.Mongo, rt.logger)
		if err != nil {
			return fmt.Errorf("connect mongo: %w", err)
		}
		rt.closers = append(rt.closers, func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			m.Close(closeCtx)
		})
		rt.dir = directory.NewMongo(m.DB)
	case config.BackendPostgres:
		pg, err := persistence.NewPostgres(ctx, rt.cfg.Postgres, rt.logger)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		rt.closers = append(rt.closers, pg.Close)
		if rt.cfg.Postgres.RunMigrations || forceMigrations {
			if err := persistence.RunMigrations(ctx, pg.PoolHandle(), rt.logger); err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}
		}
		rt.dir = directory.NewPostgres(pg.PoolHandle())
	default:
		rt.logger.Warn("using in-memory directory; records are lost on restart")
		rt.dir = directory.NewMemory()
	}
	return nil
}

func (rt *runtime) ensureIndexes(ctx context.Context) error {
	for _, specs := range [][]directory.IndexSpec{
		repository.UserIndexes(),
		repository.PasswordResetIndexes(),
		repository.ReconciliationIndexes(),
		repository.QuestionIndexes(),
		identity.AccountIndexes(),
	} {
		if err := rt.dir.EnsureIndexes(ctx, specs...); err != nil {
			return fmt.Errorf("ensure indexes: %w", err)
		}
	}
	return nil
}

func (rt *runtime) openTokenCache(ctx context.Context) error {
	switch rt.cfg.Auth.TokenCache {
	case config.CacheRedis:
		rt.redis = persistence.NewRedis(ctx, rt.cfg.Redis, rt.logger)
		rt.closers = append(rt.closers, rt.redis.Close)
		rt.cache = auth.NewRedisTokenCache(rt.redis.Client)
	case config.CacheMemory:
		cache, err := auth.NewMemoryTokenCache(rt.cfg.Auth.TokenCacheTTL())
		if err != nil {
			return fmt.Errorf("init token cache: %w", err)
		}
		rt.closers = append(rt.closers, func() { _ = cache.Close() })
		rt.cache = cache
	default:
		rt.cache = auth.NopTokenCache{}
	}
	return nil
}

func (rt *runtime) reconcileService() *service.ReconcileService {
	return service.NewReconcileService(*rt.cfg, service.ReconcileDependencies{
		ReconciliationRepo: repository.NewReconciliationRepository(rt.dir),
		UserRepo:           repository.NewUserRepository(rt.dir),
		Provider:           rt.provider,
		Dispatcher:         rt.dispatcher,
		Logger:             rt.logger,
	})
}

func (rt *runtime) pingers() map[string]handlers.Pinger {
	deps := map[string]handlers.Pinger{"directory": rt.dir}
	if rt.redis != nil {
		deps["redis"] = rt.redis
	}
	return deps
}

// Close releases resources in reverse order of acquisition.
func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}
