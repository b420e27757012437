package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// rotateScript deletes the old refresh key and writes the new one in a single
// atomic step, so exactly one concurrent rotation per old token can win.
var rotateScript = redis.NewScript(`
local user = redis.call("GET", KEYS[1])
if not user then
  return false
end
redis.call("DEL", KEYS[1])
redis.call("SET", KEYS[2], user, "PX", ARGV[1])
return user
`)

// redisStore maps both token tables onto keys with native TTLs: refresh
// expiry and revocation purge fall out of redis expiration, so Sweep has
// nothing to do.
type redisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(cfg StoreConfig) (SessionStore, error) {
	if cfg.Redis == nil || cfg.Redis.Addr == "" {
		return nil, errors.New("redis session store requires an address")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	prefix := cfg.Redis.Prefix
	if prefix == "" {
		prefix = "jobtrack:"
	}

	return &redisStore{client: client, prefix: prefix}, nil
}

func (s *redisStore) refreshKey(token string) string {
	return s.prefix + "refresh:" + token
}

func (s *redisStore) revokedKey(token string) string {
	return s.prefix + "revoked:" + token
}

func (s *redisStore) RegisterRefresh(ctx context.Context, token, userID string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}

	if err := s.client.Set(ctx, s.refreshKey(token), userID, ttl).Err(); err != nil {
		return fmt.Errorf("register refresh token: %w", err)
	}
	return nil
}

func (s *redisStore) LookupRefresh(ctx context.Context, token string) (string, error) {
	userID, err := s.client.Get(ctx, s.refreshKey(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrInvalidRefreshToken
		}
		return "", fmt.Errorf("lookup refresh token: %w", err)
	}

	return userID, nil
}

func (s *redisStore) RotateRefresh(ctx context.Context, oldToken, newToken string, expiresAt time.Time) (string, error) {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return "", ErrInvalidRefreshToken
	}

	res, err := rotateScript.Run(ctx, s.client,
		[]string{s.refreshKey(oldToken), s.refreshKey(newToken)},
		ttl.Milliseconds(),
	).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrInvalidRefreshToken
		}
		return "", fmt.Errorf("rotate refresh token: %w", err)
	}

	userID, ok := res.(string)
	if !ok || userID == "" {
		return "", ErrInvalidRefreshToken
	}

	return userID, nil
}

func (s *redisStore) DeleteRefresh(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, s.refreshKey(token)).Err(); err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}
	return nil
}

func (s *redisStore) RevokeAccess(ctx context.Context, token string, purgeAt time.Time) error {
	ttl := time.Until(purgeAt)
	if ttl <= 0 {
		return nil
	}

	// SetNX keeps the original purge time on repeated revocations.
	if err := s.client.SetNX(ctx, s.revokedKey(token), "1", ttl).Err(); err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *redisStore) IsAccessRevoked(ctx context.Context, token string) (bool, error) {
	n, err := s.client.Exists(ctx, s.revokedKey(token)).Result()
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return n > 0, nil
}

func (s *redisStore) Sweep(context.Context) error {
	return nil
}

func (s *redisStore) Close(context.Context) error {
	return s.client.Close()
}
