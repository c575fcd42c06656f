// Package config loads configuration from environment variables with
// fallback to a .env file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/resaleradar/marketscan/internal/analyzer"
	"github.com/resaleradar/marketscan/internal/market"
)

// Target is one brand hunt: the label shown to the user and the query
// sent to the catalogs.
type Target struct {
	Brand string
	Query string
}

// Config holds every tunable the scanner core consumes.
type Config struct {
	// Markets to scan; a subset of the registry.
	Markets []string
	Targets []Target

	// Scoring
	StealThreshold    float64
	FavoriteWeight    float64
	ProfitWeight      float64
	SentimentBaseline float64
	PositiveBonus     float64
	DamagePenalty     float64
	VintageBonus      float64
	LexiconFile       string

	// Vault
	VaultCapacity int

	// Orchestration
	PageSize    int
	MaxWorkers  int
	ScanTimeout time.Duration
	RequestRate float64 // search requests per second

	// Sessions
	SessionTTL     time.Duration
	RequestTimeout time.Duration
	Cooldown       time.Duration

	// Scheduling
	CronSpec string

	LogLevel string
}

// DefaultTargets is the out-of-the-box brand hunt list.
func DefaultTargets() []Target {
	return []Target{
		{Brand: "Ralph Lauren", Query: "Ralph Lauren Vintage"},
		{Brand: "Lacoste", Query: "Lacoste Tracksuit"},
		{Brand: "True Religion", Query: "True Religion Jeans"},
		{Brand: "Football", Query: "Football Tracksuit Vintage"},
		{Brand: "Gucci", Query: "Gucci Vintage"},
	}
}

// Load reads configuration. Priority: environment variables > .env
// file > defaults.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Markets:           splitList(getEnv("MARKETS", "de,fr,pl")),
		Targets:           parseTargets(getEnv("TARGETS", "")),
		StealThreshold:    getEnvFloat("STEAL_THRESHOLD", 0.35),
		FavoriteWeight:    getEnvFloat("FAVORITE_WEIGHT", 2.5),
		ProfitWeight:      getEnvFloat("PROFIT_WEIGHT", 0.8),
		SentimentBaseline: getEnvFloat("SENTIMENT_BASELINE", 50),
		PositiveBonus:     getEnvFloat("SENTIMENT_POSITIVE_BONUS", 8),
		DamagePenalty:     getEnvFloat("SENTIMENT_DAMAGE_PENALTY", 15),
		VintageBonus:      getEnvFloat("SENTIMENT_VINTAGE_BONUS", 10),
		LexiconFile:       getEnv("LEXICON_FILE", ""),
		VaultCapacity:     getEnvInt("VAULT_CAPACITY", 10000),
		PageSize:          getEnvInt("PAGE_SIZE", 20),
		MaxWorkers:        getEnvInt("MAX_WORKERS", 4),
		ScanTimeout:       getEnvDuration("SCAN_TIMEOUT_SECONDS", 30),
		RequestRate:       getEnvFloat("REQUEST_RATE", 2),
		SessionTTL:        getEnvDuration("SESSION_TTL_SECONDS", 600),
		RequestTimeout:    getEnvDuration("REQUEST_TIMEOUT_SECONDS", 10),
		Cooldown:          getEnvDuration("COOLDOWN_SECONDS", 300),
		CronSpec:          getEnv("SCAN_CRON", "@every 1m"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
	}
	if len(cfg.Targets) == 0 {
		cfg.Targets = DefaultTargets()
	}
	if len(cfg.Markets) == 0 {
		return nil, fmt.Errorf("no markets configured")
	}
	return cfg, nil
}

// AnalyzerConfig assembles the scoring config, loading lexicons from
// LEXICON_FILE when set so they stay swappable data.
func (c *Config) AnalyzerConfig() (analyzer.Config, error) {
	ac := analyzer.Config{
		StealThreshold:    c.StealThreshold,
		FavoriteWeight:    c.FavoriteWeight,
		ProfitWeight:      c.ProfitWeight,
		SentimentBaseline: c.SentimentBaseline,
		PositiveBonus:     c.PositiveBonus,
		DamagePenalty:     c.DamagePenalty,
		VintageBonus:      c.VintageBonus,
		SentimentScale:    2,
		Lexicons:          analyzer.DefaultLexicons(),
	}
	if c.LexiconFile != "" {
		data, err := os.ReadFile(c.LexiconFile)
		if err != nil {
			return ac, fmt.Errorf("read lexicon file: %w", err)
		}
		var lex analyzer.Lexicons
		if err := json.Unmarshal(data, &lex); err != nil {
			return ac, fmt.Errorf("parse lexicon file: %w", err)
		}
		ac.Lexicons = lex
	}
	return ac, nil
}

// Registry builds the market registry restricted to the configured
// market keys.
func (c *Config) Registry() (*market.Registry, error) {
	wanted := make(map[string]struct{}, len(c.Markets))
	for _, k := range c.Markets {
		wanted[k] = struct{}{}
	}
	var selected []market.Market
	for _, mk := range market.DefaultMarkets() {
		if _, ok := wanted[mk.Key]; ok {
			selected = append(selected, mk)
			delete(wanted, mk.Key)
		}
	}
	for k := range wanted {
		return nil, fmt.Errorf("%w: %q", market.ErrUnknownMarket, k)
	}
	return market.NewRegistry(selected...)
}

// parseTargets decodes "Brand=query;Brand=query" pairs.
func parseTargets(raw string) []Target {
	var targets []Target
	for _, pair := range strings.Split(raw, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		brand, query, found := strings.Cut(pair, "=")
		if !found || brand == "" || query == "" {
			continue
		}
		targets = append(targets, Target{Brand: strings.TrimSpace(brand), Query: strings.TrimSpace(query)})
	}
	return targets
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallbackSeconds int) time.Duration {
	return time.Duration(getEnvInt(key, fallbackSeconds)) * time.Second
}
