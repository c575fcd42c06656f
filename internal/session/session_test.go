package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/resaleradar/marketscan/internal/market"
)

func testManager(t *testing.T, host string, cfg Config) *Manager {
	t.Helper()
	reg, err := market.NewRegistry(market.Market{Key: "de", Host: host, Currency: "EUR"})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return NewManager(reg, cfg)
}

func TestAcquire_UnknownMarket(t *testing.T) {
	m := testManager(t, "http://localhost:0", Config{})

	_, err := m.Acquire(context.Background(), "xx")
	if !errors.Is(err, market.ErrUnknownMarket) {
		t.Errorf("expected ErrUnknownMarket, got %v", err)
	}
}

func TestAcquire_HandshakeOncePerTTL(t *testing.T) {
	var hits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc"})
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := testManager(t, srv.URL, Config{TTL: time.Minute})

	h1, err := m.Acquire(context.Background(), "de")
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	h2, err := m.Acquire(context.Background(), "de")
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if h1 != h2 {
		t.Error("fresh session should be reused, not re-handshaken")
	}
	if got := atomic.LoadInt64(&hits); got != 1 {
		t.Errorf("expected exactly 1 handshake, got %d", got)
	}
}

func TestAcquire_RefreshesAfterTTL(t *testing.T) {
	var hits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := testManager(t, srv.URL, Config{TTL: 30 * time.Millisecond})

	if _, err := m.Acquire(context.Background(), "de"); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if _, err := m.Acquire(context.Background(), "de"); err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if got := atomic.LoadInt64(&hits); got != 2 {
		t.Errorf("expected refresh handshake after TTL, got %d handshakes", got)
	}
}

func TestAcquire_SessionUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	m := testManager(t, srv.URL, Config{})

	_, err := m.Acquire(context.Background(), "de")
	if !errors.Is(err, ErrSessionUnavailable) {
		t.Errorf("expected ErrSessionUnavailable, got %v", err)
	}
	if m.ActiveSessions() != 0 {
		t.Error("failed handshake must not cache a session")
	}
}

func TestAcquire_RateLimitCooldown(t *testing.T) {
	var hits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	m := testManager(t, srv.URL, Config{Cooldown: time.Minute})

	_, err := m.Acquire(context.Background(), "de")
	if !errors.Is(err, ErrUpstreamRateLimited) {
		t.Fatalf("expected ErrUpstreamRateLimited, got %v", err)
	}

	// During the cooldown window the manager fails fast instead of
	// hammering the upstream with another handshake.
	_, err = m.Acquire(context.Background(), "de")
	if !errors.Is(err, ErrUpstreamRateLimited) {
		t.Errorf("expected fail-fast during cooldown, got %v", err)
	}
	if got := atomic.LoadInt64(&hits); got != 1 {
		t.Errorf("cooldown should suppress handshakes, got %d", got)
	}
}

func TestClient_PersistsCookies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			http.SetCookie(w, &http.Cookie{Name: "anon_id", Value: "xyz"})
			w.WriteHeader(http.StatusOK)
		case "/check":
			if c, err := r.Cookie("anon_id"); err != nil || c.Value != "xyz" {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	c, err := NewClient(5 * time.Second)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	if _, err := c.Get(context.Background(), srv.URL+"/", nil); err != nil {
		t.Fatalf("handshake: %v", err)
	}
	resp, err := c.Get(context.Background(), srv.URL+"/check", nil)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("cookie not persisted across calls, status %d", resp.StatusCode)
	}
}

func TestClient_DecodesBrotli(t *testing.T) {
	payload := `{"items":[]}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "br")
		bw := brotli.NewWriter(w)
		bw.Write([]byte(payload))
		bw.Close()
	}))
	defer srv.Close()

	c, err := NewClient(5 * time.Second)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	resp, err := c.Get(context.Background(), srv.URL, nil)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(resp.Body) != payload {
		t.Errorf("brotli body not decoded: %q", resp.Body)
	}
}
