// Package scanner fans a search query out across markets, feeds the
// vault, and returns listings ranked by hype score.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/resaleradar/marketscan/internal/analyzer"
	"github.com/resaleradar/marketscan/internal/logging"
	"github.com/resaleradar/marketscan/internal/market"
	"github.com/resaleradar/marketscan/internal/model"
	"github.com/resaleradar/marketscan/internal/session"
	"github.com/resaleradar/marketscan/internal/vault"
)

const (
	searchPath = "/api/v2/catalog/items"

	// defaultMaxWorkers caps the pool regardless of how many markets
	// a scan requests, to respect the target's implicit rate limits.
	defaultMaxWorkers = 4
)

// ErrEmptyMarketSet is returned when a scan names no markets.
var ErrEmptyMarketSet = errors.New("empty market set")

// Config tunes the orchestrator.
type Config struct {
	PageSize    int           // listings requested per market per scan
	MaxWorkers  int           // pool size cap
	ScanTimeout time.Duration // global deadline for one scan
	RequestRate rate.Limit    // search requests per second across workers
}

// ScanReport summarizes one scan cycle: which markets contributed
// nothing and what the vault did with the rest. Failures here are
// informational, never fatal.
type ScanReport struct {
	Markets       int
	FailedMarkets []string
	RateLimited   []string
	Ingest        model.IngestSummary
}

// Scanner coordinates sessions, the vault and the analyzer. Per-market
// failures are isolated: a scan returns results for every market that
// succeeded and reports the rest in the ScanReport.
type Scanner struct {
	registry *market.Registry
	sessions *session.Manager
	vault    *vault.Vault
	analyzer *analyzer.Analyzer
	limiter  *rate.Limiter
	cfg      Config
}

// New creates a scanner over explicitly owned collaborators.
func New(registry *market.Registry, sessions *session.Manager, v *vault.Vault, a *analyzer.Analyzer, cfg Config) *Scanner {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 20
	}
	if cfg.ScanTimeout <= 0 {
		cfg.ScanTimeout = 30 * time.Second
	}
	if cfg.RequestRate <= 0 {
		cfg.RequestRate = rate.Limit(2)
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = defaultMaxWorkers
	}
	return &Scanner{
		registry: registry,
		sessions: sessions,
		vault:    v,
		analyzer: a,
		limiter:  rate.NewLimiter(cfg.RequestRate, cfg.MaxWorkers),
		cfg:      cfg,
	}
}

// marketResult is one worker's contribution.
type marketResult struct {
	key         string
	listings    []model.Listing
	summary     model.IngestSummary
	err         error
	rateLimited bool
}

// Scan searches every requested market in parallel, ingests what came
// back, and returns the merged listings ranked by hype score
// descending (ties broken by freshest capture). It errors only on
// configuration misuse: an unknown market key or an empty market set.
func (s *Scanner) Scan(ctx context.Context, query string, marketKeys []string) ([]model.ScoredListing, ScanReport, error) {
	if len(marketKeys) == 0 {
		return nil, ScanReport{}, ErrEmptyMarketSet
	}

	hosts := make(map[string]string, len(marketKeys))
	for _, key := range marketKeys {
		mk, err := s.registry.Lookup(key)
		if err != nil {
			return nil, ScanReport{}, err
		}
		hosts[key] = mk.Host
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ScanTimeout)
	defer cancel()

	workers := len(marketKeys)
	if workers > s.cfg.MaxWorkers {
		workers = s.cfg.MaxWorkers
	}

	jobs := make(chan string, len(marketKeys))
	// Buffered so abandoned workers can still flush their result and
	// exit after the deadline; the collector simply stops listening.
	results := make(chan marketResult, len(marketKeys))

	for w := 0; w < workers; w++ {
		go func() {
			for key := range jobs {
				results <- s.scanMarket(ctx, query, key)
			}
		}()
	}
	for _, key := range marketKeys {
		jobs <- key
	}
	close(jobs)

	report := ScanReport{Markets: len(marketKeys)}
	var merged []model.Listing

	pending := make(map[string]struct{}, len(marketKeys))
	for _, key := range marketKeys {
		pending[key] = struct{}{}
	}

collect:
	for len(pending) > 0 {
		select {
		case res := <-results:
			delete(pending, res.key)
			if res.err != nil {
				logging.Infof("scan: market %s failed: %v", res.key, res.err)
				report.FailedMarkets = append(report.FailedMarkets, res.key)
				if res.rateLimited {
					report.RateLimited = append(report.RateLimited, res.key)
				}
				continue
			}
			report.Ingest.Add(res.summary)
			merged = append(merged, res.listings...)
		case <-ctx.Done():
			// Workers still running are abandoned; their markets
			// count as failed, not fatal.
			for key := range pending {
				report.FailedMarkets = append(report.FailedMarkets, key)
			}
			break collect
		}
	}

	sort.Strings(report.FailedMarkets)

	scored := make([]model.ScoredListing, 0, len(merged))
	for _, l := range merged {
		benchmark := s.vault.Benchmark(l.Brand)
		scored = append(scored, model.ScoredListing{
			Listing:  l,
			URL:      hosts[l.Market] + l.Path,
			Analysis: s.analyzer.Score(l, benchmark),
		})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Analysis.HypeScore != scored[j].Analysis.HypeScore {
			return scored[i].Analysis.HypeScore > scored[j].Analysis.HypeScore
		}
		return scored[i].CapturedAt.After(scored[j].CapturedAt)
	})

	return scored, report, nil
}

// scanMarket runs one market's search: acquire a session, issue the
// query, ingest the response. Any failure yields an empty contribution
// for this cycle only.
func (s *Scanner) scanMarket(ctx context.Context, query, key string) marketResult {
	handle, err := s.sessions.Acquire(ctx, key)
	if err != nil {
		return marketResult{
			key:         key,
			err:         err,
			rateLimited: errors.Is(err, session.ErrUpstreamRateLimited),
		}
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return marketResult{key: key, err: err}
	}

	params := url.Values{}
	params.Set("search_text", query)
	params.Set("per_page", strconv.Itoa(s.cfg.PageSize))
	params.Set("order", "newest_first")

	resp, err := handle.Client.Get(ctx, handle.Market.Host+searchPath, params)
	if err != nil {
		return marketResult{key: key, err: fmt.Errorf("search %s: %w", key, err)}
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		s.sessions.NoteRateLimited(key)
		return marketResult{
			key:         key,
			err:         fmt.Errorf("search %s: %w", key, session.ErrUpstreamRateLimited),
			rateLimited: true,
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return marketResult{key: key, err: fmt.Errorf("search %s: status %d", key, resp.StatusCode)}
	}

	raws, err := parseItems(resp.Body, resp.ContentType)
	if err != nil {
		return marketResult{key: key, err: fmt.Errorf("search %s: %w", key, err)}
	}

	listings, summary := s.vault.Ingest(raws, key)
	logging.Debugf("scan: market %s accepted=%d dup=%d skipped=%d",
		key, summary.Accepted, summary.Duplicates, summary.Skipped)

	return marketResult{key: key, listings: listings, summary: summary}
}
