package auth

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

const defaultSweepInterval = time.Hour

type refreshEntry struct {
	userID    string
	expiresAt time.Time
}

// memoryStore keeps both token tables in process memory behind a single
// mutex. Expired revocation entries are purged lazily: whichever revoke call
// crosses the sweep interval pays for the cleanup.
type memoryStore struct {
	mu         sync.Mutex
	refresh    map[string]refreshEntry
	revoked    map[string]time.Time
	sweepEvery time.Duration
	lastSweep  atomic.Int64
}

func NewMemoryStore(sweepInterval time.Duration) SessionStore {
	if sweepInterval <= 0 {
		sweepInterval = defaultSweepInterval
	}

	s := &memoryStore{
		refresh:    make(map[string]refreshEntry),
		revoked:    make(map[string]time.Time),
		sweepEvery: sweepInterval,
	}
	s.lastSweep.Store(time.Now().UnixNano())
	return s
}

func (s *memoryStore) RegisterRefresh(_ context.Context, token, userID string, expiresAt time.Time) error {
	s.mu.Lock()
	s.refresh[token] = refreshEntry{userID: userID, expiresAt: expiresAt}
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) LookupRefresh(_ context.Context, token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.refresh[token]
	if !ok {
		return "", ErrInvalidRefreshToken
	}
	if time.Now().UTC().After(entry.expiresAt) {
		delete(s.refresh, token)
		return "", ErrInvalidRefreshToken
	}

	return entry.userID, nil
}

func (s *memoryStore) RotateRefresh(_ context.Context, oldToken, newToken string, expiresAt time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.refresh[oldToken]
	if !ok {
		return "", ErrInvalidRefreshToken
	}
	if time.Now().UTC().After(entry.expiresAt) {
		delete(s.refresh, oldToken)
		return "", ErrInvalidRefreshToken
	}

	// The whole lookup+delete+insert happens under the lock, so a concurrent
	// rotation of the same old token observes it already gone.
	delete(s.refresh, oldToken)
	s.refresh[newToken] = refreshEntry{userID: entry.userID, expiresAt: expiresAt}

	return entry.userID, nil
}

func (s *memoryStore) DeleteRefresh(_ context.Context, token string) error {
	s.mu.Lock()
	delete(s.refresh, token)
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) RevokeAccess(_ context.Context, token string, purgeAt time.Time) error {
	s.mu.Lock()
	if _, ok := s.revoked[token]; !ok {
		s.revoked[token] = purgeAt
	}
	s.mu.Unlock()

	s.maybeSweep()
	return nil
}

func (s *memoryStore) IsAccessRevoked(_ context.Context, token string) (bool, error) {
	s.mu.Lock()
	_, ok := s.revoked[token]
	s.mu.Unlock()
	return ok, nil
}

// maybeSweep runs the lazy cleanup at most once per sweep interval. The
// timestamp guard is checked before taking the lock and re-checked after it,
// so two callers crossing the threshold together trigger a single sweep.
func (s *memoryStore) maybeSweep() {
	now := time.Now()
	if now.Sub(time.Unix(0, s.lastSweep.Load())) < s.sweepEvery {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if now.Sub(time.Unix(0, s.lastSweep.Load())) < s.sweepEvery {
		return
	}

	s.sweepLocked(now.UTC())
	s.lastSweep.Store(now.UnixNano())
}

func (s *memoryStore) sweepLocked(now time.Time) {
	for token, purgeAt := range s.revoked {
		if now.After(purgeAt) {
			delete(s.revoked, token)
		}
	}
	for token, entry := range s.refresh {
		if now.After(entry.expiresAt) {
			delete(s.refresh, token)
		}
	}
}

func (s *memoryStore) Sweep(_ context.Context) error {
	now := time.Now()

	s.mu.Lock()
	s.sweepLocked(now.UTC())
	s.lastSweep.Store(now.UnixNano())
	s.mu.Unlock()

	return nil
}

func (s *memoryStore) Close(context.Context) error {
	return nil
}
