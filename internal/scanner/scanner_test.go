package scanner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/resaleradar/marketscan/internal/analyzer"
	"github.com/resaleradar/marketscan/internal/market"
	"github.com/resaleradar/marketscan/internal/model"
	"github.com/resaleradar/marketscan/internal/session"
	"github.com/resaleradar/marketscan/internal/vault"
)

// catalogServer serves a handshake on / and a fixed item list on the
// search path, like the upstream catalog does.
func catalogServer(t *testing.T, items []model.RawListing) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			http.SetCookie(w, &http.Cookie{Name: "anon_id", Value: "t"})
			w.WriteHeader(http.StatusOK)
		case searchPath:
			if r.URL.Query().Get("search_text") == "" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(catalogResponse{Items: items})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func newScanner(t *testing.T, markets []market.Market, cfg Config) (*Scanner, *vault.Vault) {
	t.Helper()
	reg, err := market.NewRegistry(markets...)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	sessions := session.NewManager(reg, session.Config{RequestTimeout: 5 * time.Second})
	store := vault.New(100)
	scorer := analyzer.New(analyzer.DefaultConfig())
	return New(reg, sessions, store, scorer, cfg), store
}

func item(id string, brand string, price float64, favorites int) model.RawListing {
	return model.RawListing{
		ID:            id,
		Title:         brand + " " + id,
		BrandTitle:    brand,
		Price:         price,
		FavoriteCount: favorites,
		URL:           "/items/" + id,
	}
}

func TestScan_EmptyMarketSet(t *testing.T) {
	s, _ := newScanner(t, []market.Market{{Key: "de", Host: "http://localhost:0"}}, Config{})

	_, _, err := s.Scan(context.Background(), "polo", nil)
	if !errors.Is(err, ErrEmptyMarketSet) {
		t.Errorf("expected ErrEmptyMarketSet, got %v", err)
	}
}

func TestScan_UnknownMarket(t *testing.T) {
	s, _ := newScanner(t, []market.Market{{Key: "de", Host: "http://localhost:0"}}, Config{})

	_, _, err := s.Scan(context.Background(), "polo", []string{"de", "zz"})
	if !errors.Is(err, market.ErrUnknownMarket) {
		t.Errorf("expected ErrUnknownMarket, got %v", err)
	}
}

func TestScan_RanksByHypeDescending(t *testing.T) {
	srv := catalogServer(t, []model.RawListing{
		item("1", "gucci", 50, 0),
		item("2", "gucci", 50, 9),
		item("3", "gucci", 50, 3),
	})
	defer srv.Close()

	s, _ := newScanner(t, []market.Market{{Key: "de", Host: srv.URL, Currency: "EUR"}}, Config{})

	listings, report, err := s.Scan(context.Background(), "gucci", []string{"de"})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(listings) != 3 {
		t.Fatalf("expected 3 listings, got %d", len(listings))
	}
	if report.Ingest.Accepted != 3 {
		t.Errorf("expected 3 accepted, got %+v", report.Ingest)
	}
	for i := 1; i < len(listings); i++ {
		if listings[i].Analysis.HypeScore > listings[i-1].Analysis.HypeScore {
			t.Errorf("listings not sorted by hype desc at index %d", i)
		}
	}
	if listings[0].ID != "2" {
		t.Errorf("most favorited listing should rank first, got id %s", listings[0].ID)
	}
}

func TestScan_FailedMarketIsolated(t *testing.T) {
	good := catalogServer(t, []model.RawListing{item("1", "lacoste", 30, 2)})
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	s, _ := newScanner(t, []market.Market{
		{Key: "de", Host: good.URL, Currency: "EUR"},
		{Key: "fr", Host: bad.URL, Currency: "EUR"},
	}, Config{})

	listings, report, err := s.Scan(context.Background(), "lacoste", []string{"de", "fr"})
	if err != nil {
		t.Fatalf("one market failing must not fail the scan: %v", err)
	}
	if len(listings) != 1 {
		t.Errorf("expected the healthy market's listing, got %d", len(listings))
	}
	if len(report.FailedMarkets) != 1 || report.FailedMarkets[0] != "fr" {
		t.Errorf("expected fr reported failed, got %v", report.FailedMarkets)
	}
}

func TestScan_SlowMarketAbandoned(t *testing.T) {
	good := catalogServer(t, []model.RawListing{item("1", "nike", 20, 1)})
	defer good.Close()
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == searchPath {
			time.Sleep(2 * time.Second)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer slow.Close()

	s, _ := newScanner(t, []market.Market{
		{Key: "de", Host: good.URL, Currency: "EUR"},
		{Key: "fr", Host: slow.URL, Currency: "EUR"},
	}, Config{ScanTimeout: 300 * time.Millisecond})

	start := time.Now()
	listings, report, err := s.Scan(context.Background(), "nike", []string{"de", "fr"})
	if err != nil {
		t.Fatalf("timed-out market must not fail the scan: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("scan should abandon the slow worker at the deadline, took %v", elapsed)
	}
	if len(listings) != 1 {
		t.Errorf("expected the fast market's listing, got %d", len(listings))
	}
	if len(report.FailedMarkets) != 1 || report.FailedMarkets[0] != "fr" {
		t.Errorf("expected fr counted as failed, got %v", report.FailedMarkets)
	}
}

func TestScan_URLReconstructedOnce(t *testing.T) {
	// The upstream reports an absolute URL; the stored path drops the
	// host and the scan output prefixes the configured host exactly once.
	raw := item("7", "gucci", 80, 0)
	raw.URL = "https://www.vinted.de/items/7-bag"
	srv := catalogServer(t, []model.RawListing{raw})
	defer srv.Close()

	s, store := newScanner(t, []market.Market{{Key: "de", Host: srv.URL, Currency: "EUR"}}, Config{})

	listings, _, err := s.Scan(context.Background(), "gucci", []string{"de"})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(listings) != 1 {
		t.Fatalf("expected 1 listing, got %d", len(listings))
	}
	want := srv.URL + "/items/7-bag"
	if listings[0].URL != want {
		t.Errorf("expected URL %q, got %q", want, listings[0].URL)
	}
	if strings.Count(listings[0].URL, "http") != 1 {
		t.Errorf("host duplicated in URL: %q", listings[0].URL)
	}
	if !store.Contains("de", "7") {
		t.Error("listing should have been ingested")
	}
}

func TestScan_RepeatedScanDeduplicates(t *testing.T) {
	srv := catalogServer(t, []model.RawListing{item("1", "gucci", 80, 0)})
	defer srv.Close()

	s, store := newScanner(t, []market.Market{{Key: "de", Host: srv.URL, Currency: "EUR"}}, Config{})

	if _, _, err := s.Scan(context.Background(), "gucci", []string{"de"}); err != nil {
		t.Fatalf("first scan: %v", err)
	}
	listings, report, err := s.Scan(context.Background(), "gucci", []string{"de"})
	if err != nil {
		t.Fatalf("second scan: %v", err)
	}
	if store.Len() != 1 {
		t.Errorf("re-scanned listing must not duplicate, vault size %d", store.Len())
	}
	if report.Ingest.Duplicates != 1 {
		t.Errorf("expected 1 duplicate reported, got %+v", report.Ingest)
	}
	if len(listings) != 1 {
		t.Errorf("known listings still appear in results, got %d", len(listings))
	}
}

func TestScan_HTMLFallback(t *testing.T) {
	page := `<html><body><div class="feed">
		<div data-item-id="41" data-price="19.99" data-brand="Dickies">
			<a href="/items/41-work-pant" title="Dickies 874 Work Pant"></a>
			<img src="https://img.example/41.jpg">
		</div>
		<div data-item-id="42" data-price="24.50" data-brand="Dickies">
			<a href="/items/42-khaki" title="Dickies 874 Khaki"></a>
		</div>
	</div></body></html>`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == searchPath {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprint(w, page)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s, _ := newScanner(t, []market.Market{{Key: "de", Host: srv.URL, Currency: "EUR"}}, Config{})

	listings, report, err := s.Scan(context.Background(), "dickies", []string{"de"})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(listings) != 2 {
		t.Fatalf("expected 2 listings from HTML page, got %d (%+v)", len(listings), report.Ingest)
	}
	byID := map[string]string{}
	for _, l := range listings {
		byID[l.ID] = l.Title
	}
	if byID["41"] != "Dickies 874 Work Pant" {
		t.Errorf("unexpected title for 41: %q", byID["41"])
	}
	for _, l := range listings {
		if l.Brand != "dickies" {
			t.Errorf("brand not normalized from HTML: %q", l.Brand)
		}
		if l.Price != 19.99 && l.Price != 24.50 {
			t.Errorf("unexpected price %v", l.Price)
		}
	}
}

func TestParseItems_JSON(t *testing.T) {
	body := []byte(`{"items":[{"id":1001,"title":"Gucci belt","brand_title":"Gucci","price":{"amount":"55.0","currency_code":"EUR"},"favourite_count":4,"url":"/items/1001-belt","photos":[{"url":"https://img.example/b.jpg"}]}]}`)

	items, err := parseItems(body, "application/json")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if items[0].Title != "Gucci belt" || items[0].FavoriteCount != 4 {
		t.Errorf("unexpected item: %+v", items[0])
	}
}
