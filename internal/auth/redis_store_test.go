package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
)

func newTestRedisStore(t *testing.T) (SessionStore, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	store, err := NewRedisStore(StoreConfig{
		Redis: &RedisConfig{Addr: mr.Addr()},
	})
	if err != nil {
		t.Fatalf("NewRedisStore returned error: %v", err)
	}
	t.Cleanup(func() { _ = store.Close(context.Background()) })

	return store, mr
}

func TestRedisStoreRefreshLifecycle(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestRedisStore(t)

	expiresAt := time.Now().UTC().Add(time.Hour)
	if err := store.RegisterRefresh(ctx, "token-1", "user-1", expiresAt); err != nil {
		t.Fatalf("RegisterRefresh returned error: %v", err)
	}

	userID, err := store.LookupRefresh(ctx, "token-1")
	if err != nil {
		t.Fatalf("LookupRefresh returned error: %v", err)
	}
	if userID != "user-1" {
		t.Fatalf("unexpected user id: %q", userID)
	}

	if _, err := store.LookupRefresh(ctx, "missing"); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected ErrInvalidRefreshToken for missing token, got %v", err)
	}

	if err := store.DeleteRefresh(ctx, "token-1"); err != nil {
		t.Fatalf("DeleteRefresh returned error: %v", err)
	}
	if _, err := store.LookupRefresh(ctx, "token-1"); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected deleted token to be invalid, got %v", err)
	}
}

func TestRedisStoreRefreshExpiry(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedisStore(t)

	if err := store.RegisterRefresh(ctx, "short", "user-1", time.Now().UTC().Add(time.Minute)); err != nil {
		t.Fatalf("RegisterRefresh returned error: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	if _, err := store.LookupRefresh(ctx, "short"); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected expired token to be invalid, got %v", err)
	}
}

func TestRedisStoreRotateInvalidatesOldToken(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestRedisStore(t)

	expiresAt := time.Now().UTC().Add(time.Hour)
	if err := store.RegisterRefresh(ctx, "old", "user-1", expiresAt); err != nil {
		t.Fatalf("RegisterRefresh returned error: %v", err)
	}

	userID, err := store.RotateRefresh(ctx, "old", "new", expiresAt)
	if err != nil {
		t.Fatalf("RotateRefresh returned error: %v", err)
	}
	if userID != "user-1" {
		t.Fatalf("unexpected user id: %q", userID)
	}

	if _, err := store.LookupRefresh(ctx, "old"); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected rotated-away token to be invalid, got %v", err)
	}
	if got, err := store.LookupRefresh(ctx, "new"); err != nil || got != "user-1" {
		t.Fatalf("expected new token to resolve to user-1, got %q, %v", got, err)
	}
}

func TestRedisStoreRotateSingleWinner(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestRedisStore(t)

	expiresAt := time.Now().UTC().Add(time.Hour)
	if err := store.RegisterRefresh(ctx, "contested", "user-1", expiresAt); err != nil {
		t.Fatalf("RegisterRefresh returned error: %v", err)
	}

	const workers = 16
	start := make(chan struct{})
	results := make(chan error, workers)
	var wg sync.WaitGroup
	wg.Add(workers)

	for i := 0; i < workers; i++ {
		next := fmt.Sprintf("next-%d", i)
		go func() {
			defer wg.Done()
			<-start
			_, err := store.RotateRefresh(ctx, "contested", next, expiresAt)
			results <- err
		}()
	}

	close(start)
	wg.Wait()
	close(results)

	success := 0
	for err := range results {
		switch {
		case err == nil:
			success++
		case errors.Is(err, ErrInvalidRefreshToken):
		default:
			t.Fatalf("unexpected rotate error: %v", err)
		}
	}

	if success != 1 {
		t.Fatalf("expected exactly one rotation winner, got %d", success)
	}
}

func TestRedisStoreRevocationExpiresAtPurgeTime(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedisStore(t)

	if err := store.RevokeAccess(ctx, "access-1", time.Now().UTC().Add(time.Hour)); err != nil {
		t.Fatalf("RevokeAccess returned error: %v", err)
	}

	revoked, err := store.IsAccessRevoked(ctx, "access-1")
	if err != nil {
		t.Fatalf("IsAccessRevoked returned error: %v", err)
	}
	if !revoked {
		t.Fatalf("expected token to be revoked")
	}

	mr.FastForward(2 * time.Hour)

	revoked, err = store.IsAccessRevoked(ctx, "access-1")
	if err != nil {
		t.Fatalf("IsAccessRevoked returned error: %v", err)
	}
	if revoked {
		t.Fatalf("expected revocation entry to expire at purge time")
	}
}
