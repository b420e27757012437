package auth

import (
	"context"
	"fmt"
	"time"
)

// SessionStore holds the server side of the token lifecycle: the refresh
// token registry and the access token revocation list. Implementations must
// be safe for concurrent use, and RotateRefresh must let at most one caller
// win per old token.
type SessionStore interface {
	RegisterRefresh(ctx context.Context, token, userID string, expiresAt time.Time) error

	// LookupRefresh resolves token to the bound user id. Expired entries are
	// deleted on read and reported as ErrInvalidRefreshToken.
	LookupRefresh(ctx context.Context, token string) (string, error)

	// RotateRefresh atomically replaces oldToken with newToken bound to the
	// same user and a fresh expiry, returning the user id. When two callers
	// race on the same old token exactly one succeeds; the loser gets
	// ErrInvalidRefreshToken.
	RotateRefresh(ctx context.Context, oldToken, newToken string, expiresAt time.Time) (string, error)

	DeleteRefresh(ctx context.Context, token string) error

	// RevokeAccess marks an access token invalid until purgeAt. Revoking an
	// already revoked token keeps the original purge time.
	RevokeAccess(ctx context.Context, token string, purgeAt time.Time) error

	IsAccessRevoked(ctx context.Context, token string) (bool, error)

	// Sweep removes revoked entries past their purge time and expired
	// refresh entries, bypassing the lazy sweep throttle.
	Sweep(ctx context.Context) error

	Close(ctx context.Context) error
}

// Driver identifiers supported by the session store factory.
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
)

type StoreConfig struct {
	Driver        string
	SweepInterval time.Duration
	Redis         *RedisConfig
}

type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
	Prefix   string
}

// NewSessionStore selects a store implementation from the configuration.
// Memory suits single-process deployments; redis shares sessions across
// instances.
func NewSessionStore(cfg StoreConfig) (SessionStore, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverMemory
	}

	switch driver {
	case DriverMemory:
		return NewMemoryStore(cfg.SweepInterval), nil
	case DriverRedis:
		return NewRedisStore(cfg)
	default:
		return nil, fmt.Errorf("unsupported session store driver: %s", driver)
	}
}
