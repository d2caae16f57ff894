package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	httptransport "github.com/saber-em-movimento/backend/internal/api/http"
	"github.com/saber-em-movimento/backend/internal/api/http/handlers"
	"github.com/saber-em-movimento/backend/internal/auth"
	"github.com/saber-em-movimento/backend/internal/observability"
	"github.com/saber-em-movimento/backend/internal/repository"
	"github.com/saber-em-movimento/backend/internal/service"
	"github.com/saber-em-movimento/backend/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the HTTP API",
		Action: func(c *cli.Context) error {
			ctx := c.Context
			rt, err := bootstrap(ctx, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			cfg, logger := rt.cfg, rt.logger
			users := repository.NewUserRepository(rt.dir)

			authService := service.NewAuthService(*cfg, service.AuthDependencies{
				UserRepo:          users,
				PasswordResetRepo: repository.NewPasswordResetRepository(rt.dir),
				Provider:          rt.provider,
				TokenCache:        rt.cache,
				Dispatcher:        rt.dispatcher,
				Logger:            logger,
			})
			questionService := service.NewQuestionService(repository.NewQuestionRepository(rt.dir), logger, cfg.Auth.CallTimeout())

			service.NewAuditService(rt.dispatcher, logger).RegisterHandlers()
			reconciler := rt.reconcileService()
			reconciler.RegisterHandlers()

			var reconcileWorker *worker.ReconcileWorker
			if cfg.Reconcile.Enabled {
				reconcileWorker, err = worker.StartReconcileWorker(cfg.Reconcile.Schedule, reconciler, logger)
				if err != nil {
					return err
				}
			}

			sessions := auth.NewSessionValidator(logger, cfg.Auth.CallTimeout(),
				auth.NewProviderStrategy(rt.provider, auth.WithCurrentSession(users, rt.cache, cfg.Auth.TokenCacheTTL())),
				auth.NewDirectoryStrategy(users, rt.cache, cfg.Auth.TokenCacheTTL(), logger),
			)

			metrics := observability.NewMetrics()
			app := fiber.New(fiber.Config{
				AppName:               cfg.App.Name,
				DisableStartupMessage: !cfg.App.IsDevelopment(),
			})
			httptransport.RegisterMiddlewares(app, httptransport.MiddlewareConfig{
				Logger:         logger,
				Metrics:        metrics,
				RequestTimeout: cfg.App.RequestTimeout(),
				AllowedOrigins: cfg.CORS.AllowedOrigins,
			})
			httptransport.RegisterRoutes(app, httptransport.RouteConfig{
				Health:    handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, metrics, rt.pingers()),
				Auth:      handlers.NewAuthHandler(authService),
				Questions: handlers.NewQuestionsHandler(questionService),
				Sessions:  sessions,
				Users:     users,
			})

			listenErr := make(chan error, 1)
			go func() {
				listenErr <- app.Listen(cfg.App.Addr())
			}()
			logger.Info("http server started", zap.String("addr", cfg.App.Addr()))

			select {
			case err := <-listenErr:
				reconcileWorker.Stop(context.Background())
				return fmt.Errorf("listen: %w", err)
			case <-ctx.Done():
			}

			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := app.ShutdownWithContext(shutdownCtx); err != nil {
				logger.Warn("http shutdown", zap.Error(err))
			}
			reconcileWorker.Stop(shutdownCtx)
			return nil
		},
	}
}

func migrateCmd() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply schema migrations and create directory indexes",
		Action: func(c *cli.Context) error {
			rt, err := bootstrap(c.Context, true)
			if err != nil {
				return err
			}
			defer rt.Close()
			rt.logger.Info("directory ready", zap.String("backend", rt.cfg.Directory.Backend))
			return nil
		},
	}
}

func reconcileCmd() *cli.Command {
	return &cli.Command{
		Name:  "reconcile",
		Usage: "Process pending orphaned-account entries once and exit",
		Action: func(c *cli.Context) error {
			rt, err := bootstrap(c.Context, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			report, err := rt.reconcileService().Run(c.Context)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "checked=%d resolved=%d compensated=%d pending=%d failed=%d\n",
				report.Checked, report.Resolved, report.Compensated, report.Pending, report.Failed)
			return nil
		},
	}
}
