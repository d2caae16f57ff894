package http

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/steinfletcher/apitest"
	jsonpath "github.com/steinfletcher/apitest-jsonpath"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/saber-em-movimento/backend/internal/api/http/handlers"
	"github.com/saber-em-movimento/backend/internal/auth"
	"github.com/saber-em-movimento/backend/internal/config"
	"github.com/saber-em-movimento/backend/internal/directory"
	"github.com/saber-em-movimento/backend/internal/events"
	"github.com/saber-em-movimento/backend/internal/identity"
	"github.com/saber-em-movimento/backend/internal/observability"
	"github.com/saber-em-movimento/backend/internal/repository"
	"github.com/saber-em-movimento/backend/internal/service"
)

type testServer struct {
	handler http.HandlerFunc
	auth    *service.AuthService
}

func newTestServer(t *testing.T, tokenKind string) *testServer {
	t.Helper()
	ctx := context.Background()
	logger := zap.NewNop()

	cfg := config.Config{
		App: config.AppConfig{Name: "test", Version: "test", RequestTimeoutSeconds: 5},
		Auth: config.AuthConfig{
			JWTSecret:        "test-jwt-secret",
			IdentifierKey:    "test-identifier-key",
			IdentifierDomain: "aprenderemmovimento.com",
			TokenKind:        tokenKind,
			BcryptCost:       4,
		},
		CORS: config.CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}},
	}

	dir := directory.NewMemory()
	for _, specs := range [][]directory.IndexSpec{
		repository.UserIndexes(),
		repository.PasswordResetIndexes(),
		repository.QuestionIndexes(),
		identity.AccountIndexes(),
	} {
		require.NoError(t, dir.EnsureIndexes(ctx, specs...))
	}

	users := repository.NewUserRepository(dir)
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL())
	provider := identity.NewLocalProvider(dir, auth.NewHasher(cfg.Auth.BcryptCost), tokens, identity.TokenKind(tokenKind), logger)
	cache, err := auth.NewMemoryTokenCache(time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })

	authService := service.NewAuthService(cfg, service.AuthDependencies{
		UserRepo:          users,
		PasswordResetRepo: repository.NewPasswordResetRepository(dir),
		Provider:          provider,
		TokenCache:        cache,
		Dispatcher:        events.NewInMemoryDispatcher(logger),
		Logger:            logger,
	})
	questionService := service.NewQuestionService(repository.NewQuestionRepository(dir), logger, cfg.Auth.CallTimeout())

	sessions := auth.NewSessionValidator(logger, cfg.Auth.CallTimeout(),
		auth.NewProviderStrategy(provider, auth.WithCurrentSession(users, cache, cfg.Auth.TokenCacheTTL())),
		auth.NewDirectoryStrategy(users, cache, cfg.Auth.TokenCacheTTL(), logger),
	)

	metrics := observability.NewMetrics()
	app := fiber.New()
	RegisterMiddlewares(app, MiddlewareConfig{
		Logger:         logger,
		Metrics:        metrics,
		RequestTimeout: cfg.App.RequestTimeout(),
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	})
	RegisterRoutes(app, RouteConfig{
		Health:    handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, metrics, map[string]handlers.Pinger{"directory": dir}),
		Auth:      handlers.NewAuthHandler(authService),
		Questions: handlers.NewQuestionsHandler(questionService),
		Sessions:  sessions,
		Users:     users,
	})

	return &testServer{handler: withRequestURI(adaptor.FiberApp(app)), auth: authService}
}

// withRequestURI fills in RequestURI, which the fiber adaptor routes on and
// client-built requests leave empty.
func withRequestURI(next http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.RequestURI == "" {
			r.RequestURI = r.URL.RequestURI()
		}
		next.ServeHTTP(w, r)
	}
}

func (s *testServer) register(t *testing.T, nationalID, role string) {
	t.Helper()
	_, err := s.auth.Register(context.Background(), service.RegisterInput{
		FullName: "Ana Silva", NationalID: nationalID, Role: role, BirthDate: "2010-01-01",
	})
	require.NoError(t, err)
}

func (s *testServer) login(t *testing.T, nationalID, role string) *service.LoginResult {
	t.Helper()
	res, err := s.auth.Login(context.Background(), service.LoginInput{NationalID: nationalID, Role: role, Secret: nationalID})
	require.NoError(t, err)
	return res
}

func TestRegisterEndpoint(t *testing.T) {
	srv := newTestServer(t, config.TokenKindJWT)

	apitest.New().
		Handler(srv.handler).
		Post("/api/auth/register").
		JSON(`{"fullName":"Ana Silva","nationalId":"12345678901","role":"student","birthDate":"2010-01-01"}`).
		Expect(t).
		Status(http.StatusCreated).
		Assert(jsonpath.Present("$.userId")).
		Assert(jsonpath.Matches("$.identifier", `^12345678901_student_[a-z0-9]{16}@aprenderemmovimento\.com$`)).
		Assert(jsonpath.NotPresent("$.secret")).
		End()

	apitest.New().
		Handler(srv.handler).
		Post("/api/auth/register").
		JSON(`{"fullName":"Ana Silva","nationalId":"12345678901","role":"student","birthDate":"2010-01-01","secret":"other"}`).
		Expect(t).
		Status(http.StatusConflict).
		Assert(jsonpath.Equal("$.error.type", "conflict")).
		End()

	apitest.New().
		Handler(srv.handler).
		Post("/api/auth/register").
		JSON(`{"fullName":"Ana Silva","nationalId":"123","role":"student","birthDate":"2010-01-01"}`).
		Expect(t).
		Status(http.StatusBadRequest).
		Assert(jsonpath.Equal("$.error.type", "validation")).
		Assert(jsonpath.Equal("$.error.code", "invalid_national_id")).
		End()

	apitest.New().
		Handler(srv.handler).
		Post("/api/auth/register").
		JSON(`{"fullName":`).
		Expect(t).
		Status(http.StatusBadRequest).
		Assert(jsonpath.Equal("$.error.code", "invalid_payload")).
		End()
}

func TestLoginEndpoint(t *testing.T) {
	srv := newTestServer(t, config.TokenKindJWT)
	srv.register(t, "12345678901", "student")

	apitest.New().
		Handler(srv.handler).
		Post("/api/auth/login").
		JSON(`{"nationalId":"12345678901","role":"student","secret":"12345678901"}`).
		Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Present("$.token")).
		Assert(jsonpath.Present("$.userId")).
		Assert(jsonpath.Equal("$.role", "student")).
		Assert(jsonpath.Equal("$.fullName", "Ana Silva")).
		End()

	apitest.New().
		Handler(srv.handler).
		Post("/api/auth/login").
		JSON(`{"nationalId":"12345678901","role":"student","secret":"wrong"}`).
		Expect(t).
		Status(http.StatusUnauthorized).
		Assert(jsonpath.Equal("$.error.type", "auth")).
		Assert(jsonpath.Equal("$.error.code", "invalid_credentials")).
		End()

	apitest.New().
		Handler(srv.handler).
		Post("/api/auth/login").
		JSON(`{"secret":"x"}`).
		Expect(t).
		Status(http.StatusBadRequest).
		Assert(jsonpath.Equal("$.error.code", "missing_fields")).
		End()
}

func TestProtectedRoutes(t *testing.T) {
	for _, kind := range []string{config.TokenKindJWT, config.TokenKindOpaque} {
		kind := kind
		t.Run(kind, func(t *testing.T) {
			srv := newTestServer(t, kind)
			srv.register(t, "12345678901", "student")
			session := srv.login(t, "12345678901", "student")

			apitest.New().
				Handler(srv.handler).
				Get("/api/auth/me").
				Header("Authorization", "Bearer "+session.Token).
				Expect(t).
				Status(http.StatusOK).
				Assert(jsonpath.Equal("$.userId", session.UserID)).
				Assert(jsonpath.Equal("$.role", "student")).
				End()

			apitest.New().
				Handler(srv.handler).
				Get("/api/auth/me").
				Expect(t).
				Status(http.StatusUnauthorized).
				Assert(jsonpath.Equal("$.error.code", "missing_token")).
				End()

			apitest.New().
				Handler(srv.handler).
				Get("/api/auth/me").
				Header("Authorization", "Bearer not-a-real-token").
				Expect(t).
				Status(http.StatusUnauthorized).
				Assert(jsonpath.Equal("$.error.code", "invalid_token")).
				End()

			apitest.New().
				Handler(srv.handler).
				Post("/api/auth/logout").
				Header("Authorization", "Bearer "+session.Token).
				Expect(t).
				Status(http.StatusNoContent).
				End()
		})
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	for _, kind := range []string{config.TokenKindJWT, config.TokenKindOpaque} {
		kind := kind
		t.Run(kind, func(t *testing.T) {
			srv := newTestServer(t, kind)
			srv.register(t, "12345678901", "student")
			session := srv.login(t, "12345678901", "student")

			// a first call caches the session
			apitest.New().
				Handler(srv.handler).
				Get("/api/auth/me").
				Header("Authorization", "Bearer "+session.Token).
				Expect(t).
				Status(http.StatusOK).
				End()

			apitest.New().
				Handler(srv.handler).
				Post("/api/auth/logout").
				Header("Authorization", "Bearer "+session.Token).
				Expect(t).
				Status(http.StatusNoContent).
				End()

			apitest.New().
				Handler(srv.handler).
				Get("/api/auth/me").
				Header("Authorization", "Bearer "+session.Token).
				Expect(t).
				Status(http.StatusUnauthorized).
				Assert(jsonpath.Equal("$.error.code", "invalid_token")).
				End()
		})
	}
}

func TestNewLoginSupersedesPreviousToken(t *testing.T) {
	srv := newTestServer(t, config.TokenKindJWT)
	srv.register(t, "12345678901", "student")
	first := srv.login(t, "12345678901", "student")
	second := srv.login(t, "12345678901", "student")

	apitest.New().
		Handler(srv.handler).
		Get("/api/auth/me").
		Header("Authorization", "Bearer "+first.Token).
		Expect(t).
		Status(http.StatusUnauthorized).
		End()

	apitest.New().
		Handler(srv.handler).
		Get("/api/auth/me").
		Header("Authorization", "Bearer "+second.Token).
		Expect(t).
		Status(http.StatusOK).
		End()
}

func TestPasswordResetRevokesToken(t *testing.T) {
	srv := newTestServer(t, config.TokenKindJWT)
	srv.register(t, "12345678901", "student")
	session := srv.login(t, "12345678901", "student")
	ctx := context.Background()

	grant, err := srv.auth.VerifyUserForReset(ctx, session.Identifier, "2010-01-01")
	require.NoError(t, err)

	apitest.New().
		Handler(srv.handler).
		Post("/api/auth/reset-password").
		JSON(`{"resetToken":"` + grant.Token + `","newSecret":"brand-new"}`).
		Expect(t).
		Status(http.StatusNoContent).
		End()

	apitest.New().
		Handler(srv.handler).
		Get("/api/auth/me").
		Header("Authorization", "Bearer "+session.Token).
		Expect(t).
		Status(http.StatusUnauthorized).
		Assert(jsonpath.Equal("$.error.code", "invalid_token")).
		End()

	apitest.New().
		Handler(srv.handler).
		Post("/api/auth/login").
		JSON(`{"identifier":"` + session.Identifier + `","secret":"brand-new"}`).
		Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Present("$.token")).
		End()
}

func TestQuestionEndpoints(t *testing.T) {
	srv := newTestServer(t, config.TokenKindJWT)
	srv.register(t, "11111111111", "teacher")
	srv.register(t, "22222222222", "student")
	teacher := srv.login(t, "11111111111", "teacher")
	student := srv.login(t, "22222222222", "student")

	body := `{"title":"Capitals","statement":"Capital of Brazil?","options":["Rio","Brasília"],"answerIndex":1}`

	apitest.New().
		Handler(srv.handler).
		Post("/api/questions").
		Header("Authorization", "Bearer "+student.Token).
		JSON(body).
		Expect(t).
		Status(http.StatusForbidden).
		Assert(jsonpath.Equal("$.error.type", "forbidden")).
		End()

	apitest.New().
		Handler(srv.handler).
		Post("/api/questions").
		Header("Authorization", "Bearer "+teacher.Token).
		JSON(body).
		Expect(t).
		Status(http.StatusCreated).
		Assert(jsonpath.Equal("$.data.visibility", "public")).
		Assert(jsonpath.Equal("$.data.authorId", teacher.UserID)).
		End()

	apitest.New().
		Handler(srv.handler).
		Get("/api/questions").
		Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Len("$.data", 1)).
		Assert(jsonpath.Equal("$.data[0].title", "Capitals")).
		End()
}

func TestUnknownRouteAndHealth(t *testing.T) {
	srv := newTestServer(t, config.TokenKindJWT)

	apitest.New().
		Handler(srv.handler).
		Get("/nope").
		Expect(t).
		Status(http.StatusNotFound).
		Assert(jsonpath.Equal("$.error.type", "not_found")).
		End()

	apitest.New().
		Handler(srv.handler).
		Get("/health/live").
		Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Equal("$.status", "alive")).
		End()

	apitest.New().
		Handler(srv.handler).
		Get("/health/ready").
		Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Equal("$.dependencies.directory", "ok")).
		End()
}
