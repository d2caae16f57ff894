package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/redis/go-redis/v9"
)

// TokenCache remembers which user a directory-resolved token belongs to.
// Keys are SHA-256 digests so raw tokens never reach the cache backend.
type TokenCache interface {
	Get(ctx context.Context, token string) (userID string, ok bool, err error)
	Set(ctx context.Context, token, userID string, ttl time.Duration) error
	Delete(ctx context.Context, token string) error
}

// HashToken hashes a token using SHA256 for use as a cache key.
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// NopTokenCache never hits.
type NopTokenCache struct{}

func (NopTokenCache) Get(context.Context, string) (string, bool, error) { return "", false, nil }

func (NopTokenCache) Set(context.Context, string, string, time.Duration) error { return nil }

func (NopTokenCache) Delete(context.Context, string) error { return nil }

// MemoryTokenCache is an in-process cache on bigcache. bigcache only has a
// global life window, so each entry carries its own expiry as well.
type MemoryTokenCache struct {
	cache *bigcache.BigCache
	now   func() time.Time
}

// NewMemoryTokenCache builds a cache whose entries live at most lifeWindow.
func NewMemoryTokenCache(lifeWindow time.Duration) (*MemoryTokenCache, error) {
	cfg := bigcache.DefaultConfig(lifeWindow)
	cfg.Verbose = false
	cache, err := bigcache.NewBigCache(cfg)
	if err != nil {
		return nil, err
	}
	return &MemoryTokenCache{cache: cache, now: time.Now}, nil
}

func (m *MemoryTokenCache) Get(_ context.Context, token string) (string, bool, error) {
	buf, err := m.cache.Get(HashToken(token))
	if errors.Is(err, bigcache.ErrEntryNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	userID, expiry, found := strings.Cut(string(buf), "|")
	if !found {
		return "", false, nil
	}
	unix, err := strconv.ParseInt(expiry, 10, 64)
	if err != nil || m.now().Unix() >= unix {
		return "", false, nil
	}
	return userID, true, nil
}

func (m *MemoryTokenCache) Set(_ context.Context, token, userID string, ttl time.Duration) error {
	value := userID + "|" + strconv.FormatInt(m.now().Add(ttl).Unix(), 10)
	return m.cache.Set(HashToken(token), []byte(value))
}

func (m *MemoryTokenCache) Delete(_ context.Context, token string) error {
	err := m.cache.Delete(HashToken(token))
	if errors.Is(err, bigcache.ErrEntryNotFound) {
		return nil
	}
	return err
}

// Close releases the cache's background cleaner.
func (m *MemoryTokenCache) Close() error {
	return m.cache.Close()
}

// RedisTokenCache shares resolved tokens between replicas.
type RedisTokenCache struct {
	client *redis.Client
	prefix string
}

// NewRedisTokenCache stores entries under "session:token:<sha256>".
func NewRedisTokenCache(client *redis.Client) *RedisTokenCache {
	return &RedisTokenCache{client: client, prefix: "session:token:"}
}

func (r *RedisTokenCache) Get(ctx context.Context, token string) (string, bool, error) {
	userID, err := r.client.Get(ctx, r.prefix+HashToken(token)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return userID, true, nil
}

func (r *RedisTokenCache) Set(ctx context.Context, token, userID string, ttl time.Duration) error {
	return r.client.Set(ctx, r.prefix+HashToken(token), userID, ttl).Err()
}

func (r *RedisTokenCache) Delete(ctx context.Context, token string) error {
	return r.client.Del(ctx, r.prefix+HashToken(token)).Err()
}
