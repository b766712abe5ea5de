package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned by Resolve when no live session holds the token.
var ErrSessionNotFound = errors.New("session not found")

// Token length bounds. A token is the hex form of a random UUID, so it can be
// at most 32 characters long.
const (
	DefaultTokenLength = 8
	MinTokenLength     = 4
	MaxTokenLength     = 32
)

// Session is one customer's active session.
type Session struct {
	CustomerID int
	Token      string
	CreatedAt  time.Time
	LastSeen   time.Time
}

// Registry is a thread-safe customer <-> token map. Both directions are
// indexed, so Resolve does not scan.
type Registry struct {
	mu         sync.RWMutex
	byCustomer map[int]*Session
	byToken    map[string]*Session
	tokenLen   int
	ttl        time.Duration // 0 disables expiry

	now      func() time.Time   // injectable for deterministic tests
	newToken func(n int) string // injectable for collision tests
}

// New creates a Registry issuing tokens of tokenLen characters. Out-of-range
// lengths fall back to DefaultTokenLength. A ttl of zero means sessions never
// expire.
func New(tokenLen int, ttl time.Duration) *Registry {
	if tokenLen < MinTokenLength || tokenLen > MaxTokenLength {
		tokenLen = DefaultTokenLength
	}
	return &Registry{
		byCustomer: make(map[int]*Session),
		byToken:    make(map[string]*Session),
		tokenLen:   tokenLen,
		ttl:        ttl,
		now:        time.Now,
		newToken:   randomToken,
	}
}

// TTL returns the idle timeout, zero when sessions never expire.
func (r *Registry) TTL() time.Duration { return r.ttl }

// GetOrCreate returns the customer's token, issuing a new one if the customer
// has no live session. created reports whether a new token was issued.
func (r *Registry) GetOrCreate(customerID int) (token string, created bool) {
	if r.ttl == 0 {
		r.mu.RLock()
		s, ok := r.byCustomer[customerID]
		r.mu.RUnlock()
		if ok {
			return s.Token, false
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if s, ok := r.byCustomer[customerID]; ok {
		if !r.expired(s, now) {
			s.LastSeen = now
			return s.Token, false
		}
		r.remove(s)
	}

	tok := r.newToken(r.tokenLen)
	for {
		if _, taken := r.byToken[tok]; !taken {
			break
		}
		tok = r.newToken(r.tokenLen)
	}

	s := &Session{
		CustomerID: customerID,
		Token:      tok,
		CreatedAt:  now,
		LastSeen:   now,
	}
	r.byCustomer[customerID] = s
	r.byToken[tok] = s
	return tok, true
}

// Resolve returns the customer owning token, or ErrSessionNotFound.
func (r *Registry) Resolve(token string) (int, error) {
	if r.ttl == 0 {
		r.mu.RLock()
		defer r.mu.RUnlock()
		s, ok := r.byToken[token]
		if !ok {
			return 0, ErrSessionNotFound
		}
		return s.CustomerID, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byToken[token]
	if !ok {
		return 0, ErrSessionNotFound
	}
	now := r.now()
	if r.expired(s, now) {
		r.remove(s)
		return 0, ErrSessionNotFound
	}
	s.LastSeen = now
	return s.CustomerID, nil
}

// Count returns the number of sessions currently held, including expired
// ones not yet evicted.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byCustomer)
}

// Evict removes sessions idle for longer than the TTL as of now and returns
// how many were removed. It is a no-op when expiry is disabled.
func (r *Registry) Evict(now time.Time) int {
	if r.ttl == 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for _, s := range r.byCustomer {
		if r.expired(s, now) {
			r.remove(s)
			removed++
		}
	}
	return removed
}

// Run evicts idle sessions every half TTL (minimum one second) until ctx is
// cancelled. It returns immediately when expiry is disabled.
func (r *Registry) Run(ctx context.Context) {
	if r.ttl == 0 {
		return
	}
	interval := r.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := r.Evict(now); n > 0 {
				slog.Debug("session: evicted idle sessions", "count", n)
			}
		}
	}
}

// expired reports whether s has been idle past the TTL. Callers hold r.mu.
func (r *Registry) expired(s *Session, now time.Time) bool {
	return r.ttl > 0 && !s.LastSeen.After(now.Add(-r.ttl))
}

// remove drops s from both indexes. Callers hold r.mu for writing.
func (r *Registry) remove(s *Session) {
	delete(r.byCustomer, s.CustomerID)
	delete(r.byToken, s.Token)
}

func randomToken(n int) string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:n]
}
