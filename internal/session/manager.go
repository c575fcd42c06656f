package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/resaleradar/marketscan/internal/logging"
	"github.com/resaleradar/marketscan/internal/market"
)

// ErrSessionUnavailable means the handshake failed; the market yields
// zero results this cycle and is retried on the next acquire.
var ErrSessionUnavailable = errors.New("session unavailable")

// ErrUpstreamRateLimited means the market answered 429; further
// handshakes are suppressed until the cooldown elapses.
var ErrUpstreamRateLimited = errors.New("upstream rate limited")

// Handle is a ready-to-use session for one market.
type Handle struct {
	Market     market.Market
	Client     *Client
	AcquiredAt time.Time
}

// Config tunes the session manager.
type Config struct {
	TTL            time.Duration // session refresh interval
	RequestTimeout time.Duration // per-request (incl. handshake) timeout
	Cooldown       time.Duration // back-off after a 429 handshake
}

// Manager caches one session per market key and refreshes it after the
// TTL. All acquire-or-create work happens under one mutex so two
// callers never race into simultaneous handshakes for the same market.
type Manager struct {
	registry *market.Registry
	cfg      Config

	mu       sync.Mutex
	sessions map[string]*Handle
	cooldown *cooldownTracker
}

// NewManager creates a session manager over the given registry.
func NewManager(registry *market.Registry, cfg Config) *Manager {
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	return &Manager{
		registry: registry,
		cfg:      cfg,
		sessions: make(map[string]*Handle),
		cooldown: newCooldownTracker(cfg.Cooldown),
	}
}

// Acquire returns a cookie-bearing session for the market, performing
// a handshake only when no fresh session is cached. One handshake per
// TTL per market, not per scan.
func (m *Manager) Acquire(ctx context.Context, marketKey string) (*Handle, error) {
	mk, err := m.registry.Lookup(marketKey)
	if err != nil {
		return nil, err
	}

	if m.cooldown.active(marketKey) {
		return nil, fmt.Errorf("%w: market %q cooling down", ErrUpstreamRateLimited, marketKey)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if h, ok := m.sessions[marketKey]; ok && time.Since(h.AcquiredAt) < m.cfg.TTL {
		return h, nil
	}

	h, err := m.handshake(ctx, mk)
	if err != nil {
		delete(m.sessions, marketKey)
		return nil, err
	}
	m.sessions[marketKey] = h
	return h, nil
}

// handshake visits the market's landing page to pick up cookies.
func (m *Manager) handshake(ctx context.Context, mk market.Market) (*Handle, error) {
	client, err := NewClient(m.cfg.RequestTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	}

	resp, err := client.Get(ctx, mk.Host, nil)
	if err != nil {
		logging.Debugf("handshake %s failed: %v", mk.Key, err)
		return nil, fmt.Errorf("%w: handshake %s: %v", ErrSessionUnavailable, mk.Key, err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		m.cooldown.trip(mk.Key)
		return nil, fmt.Errorf("%w: handshake %s", ErrUpstreamRateLimited, mk.Key)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: handshake %s returned %d", ErrSessionUnavailable, mk.Key, resp.StatusCode)
	}

	return &Handle{
		Market:     mk,
		Client:     client,
		AcquiredAt: time.Now(),
	}, nil
}

// NoteRateLimited records an upstream 429 seen outside the handshake.
// The cached session is dropped and further handshakes for the market
// are suppressed until the cooldown elapses.
func (m *Manager) NoteRateLimited(marketKey string) {
	m.cooldown.trip(marketKey)
	m.Invalidate(marketKey)
}

// Invalidate drops a cached session so the next acquire handshakes.
func (m *Manager) Invalidate(marketKey string) {
	m.mu.Lock()
	delete(m.sessions, marketKey)
	m.mu.Unlock()
}

// ActiveSessions returns the number of cached sessions.
func (m *Manager) ActiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
