package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App       AppConfig
	Directory DirectoryConfig
	Mongo     MongoConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Logger    LoggerConfig
	Auth      AuthConfig
	CORS      CORSConfig
	Reconcile ReconcileConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// Directory backends.
const (
	BackendMemory   = "memory"
	BackendMongo    = "mongo"
	BackendPostgres = "postgres"
)

// DirectoryConfig selects the document store holding user records.
type DirectoryConfig struct {
	Backend string
}

// MongoConfig holds MongoDB connection values.
type MongoConfig struct {
	URI      string
	Database string
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// Token kinds issued by the identity provider.
const (
	TokenKindJWT    = "jwt"
	TokenKindOpaque = "opaque"
)

// Token cache backends.
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret               string
	IdentifierKey           string
	IdentifierDomain        string
	TokenKind               string
	AccessTokenTTLMinutes   int
	PasswordResetTTLMinutes int
	BcryptCost              int
	CallTimeoutMillis       int
	CompensateOrphans       bool
	TokenCache              string
	TokenCacheTTLSeconds    int
}

// CORSConfig lists the browser origins allowed to call the API.
type CORSConfig struct {
	AllowedOrigins []string
}

// ReconcileConfig schedules the orphaned-account reconciliation job.
type ReconcileConfig struct {
	Enabled  bool
	Schedule string
}

const (
	defaultJWTSecret     = "dev-secret"
	defaultIdentifierKey = "dev-identifier-key"
)

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "saber-em-movimento-api"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", getEnv("PORT", "5050")),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Directory: DirectoryConfig{
			Backend: strings.ToLower(getEnv("DIRECTORY_BACKEND", BackendMemory)),
		},
		Mongo: MongoConfig{
			URI:      os.Getenv("MONGO_URI"),
			Database: getEnv("MONGO_DATABASE", "saber_em_movimento"),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:               getEnv("AUTH_JWT_SECRET", defaultJWTSecret),
			IdentifierKey:           getEnv("AUTH_IDENTIFIER_KEY", defaultIdentifierKey),
			IdentifierDomain:        getEnv("AUTH_IDENTIFIER_DOMAIN", "aprenderemmovimento.com"),
			TokenKind:               strings.ToLower(getEnv("AUTH_TOKEN_KIND", TokenKindJWT)),
			AccessTokenTTLMinutes:   getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			PasswordResetTTLMinutes: getEnvAsInt("AUTH_PASSWORD_RESET_TTL_MINUTES", 30),
			BcryptCost:              getEnvAsInt("AUTH_BCRYPT_COST", 10),
			CallTimeoutMillis:       getEnvAsInt("AUTH_CALL_TIMEOUT_MS", 5000),
			CompensateOrphans:       getEnvAsBool("AUTH_COMPENSATE_ORPHANS", false),
			TokenCache:              strings.ToLower(getEnv("TOKEN_CACHE_BACKEND", CacheMemory)),
			TokenCacheTTLSeconds:    getEnvAsInt("TOKEN_CACHE_TTL_SECONDS", 300),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsList("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},
		Reconcile: ReconcileConfig{
			Enabled:  getEnvAsBool("RECONCILE_ENABLED", true),
			Schedule: getEnv("RECONCILE_SCHEDULE", "@every 10m"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects inconsistent settings.
func (c *Config) Validate() error {
	switch c.Directory.Backend {
	case BackendMemory:
	case BackendMongo:
		if c.Mongo.URI == "" {
			return errors.New("MONGO_URI is required for the mongo directory backend")
		}
	case BackendPostgres:
		if c.Postgres.DSN == "" {
			return errors.New("POSTGRES_DSN is required for the postgres directory backend")
		}
	default:
		return fmt.Errorf("unknown DIRECTORY_BACKEND %q", c.Directory.Backend)
	}

	switch c.Auth.TokenKind {
	case TokenKindJWT, TokenKindOpaque:
	default:
		return fmt.Errorf("unknown AUTH_TOKEN_KIND %q", c.Auth.TokenKind)
	}

	switch c.Auth.TokenCache {
	case CacheNone, CacheMemory, CacheRedis:
	default:
		return fmt.Errorf("unknown TOKEN_CACHE_BACKEND %q", c.Auth.TokenCache)
	}

	if !c.App.IsDevelopment() {
		if c.Auth.JWTSecret == defaultJWTSecret {
			return errors.New("AUTH_JWT_SECRET must be set outside development")
		}
		if c.Auth.IdentifierKey == defaultIdentifierKey {
			return errors.New("AUTH_IDENTIFIER_KEY must be set outside development")
		}
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// IsDevelopment reports whether the service runs with development defaults.
func (a AppConfig) IsDevelopment() bool {
	return a.Env == "development" || a.Env == "test"
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// CallTimeout bounds every identity provider and directory call.
func (a AuthConfig) CallTimeout() time.Duration {
	if a.CallTimeoutMillis <= 0 {
		return 5 * time.Second
	}
	return time.Duration(a.CallTimeoutMillis) * time.Millisecond
}

// AccessTokenTTL returns the lifetime of issued session tokens.
func (a AuthConfig) AccessTokenTTL() time.Duration {
	if a.AccessTokenTTLMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(a.AccessTokenTTLMinutes) * time.Minute
}

// PasswordResetTTL returns the lifetime of password reset tokens.
func (a AuthConfig) PasswordResetTTL() time.Duration {
	if a.PasswordResetTTLMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(a.PasswordResetTTLMinutes) * time.Minute
}

// TokenCacheTTL returns how long a resolved token stays cached.
func (a AuthConfig) TokenCacheTTL() time.Duration {
	if a.TokenCacheTTLSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(a.TokenCacheTTLSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
