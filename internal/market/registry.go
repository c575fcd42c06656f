// Package market holds the read-only registry of regional catalogs.
package market

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownMarket is returned when a key has no registry entry.
// It is a caller error and is never retried.
var ErrUnknownMarket = errors.New("unknown market")

// Market describes one regional catalog's connection parameters.
type Market struct {
	Key      string
	Host     string // scheme + host, no trailing slash
	Currency string
	Locale   string
}

// Registry maps market keys to their connection parameters. It is
// built once at startup and never mutated afterwards.
type Registry struct {
	markets map[string]Market
}

// NewRegistry builds a registry from the given markets. An empty set
// is a fatal configuration error.
func NewRegistry(markets ...Market) (*Registry, error) {
	if len(markets) == 0 {
		return nil, errors.New("market registry is empty")
	}
	m := make(map[string]Market, len(markets))
	for _, mk := range markets {
		if mk.Key == "" || mk.Host == "" {
			return nil, fmt.Errorf("market entry %q missing key or host", mk.Key)
		}
		m[mk.Key] = mk
	}
	return &Registry{markets: m}, nil
}

// Lookup resolves a market key.
func (r *Registry) Lookup(key string) (Market, error) {
	mk, ok := r.markets[key]
	if !ok {
		return Market{}, fmt.Errorf("%w: %q", ErrUnknownMarket, key)
	}
	return mk, nil
}

// Keys returns all configured market keys, sorted.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.markets))
	for k := range r.markets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// DefaultMarkets covers the regional catalogs the scanner targets out
// of the box.
func DefaultMarkets() []Market {
	return []Market{
		{Key: "de", Host: "https://www.vinted.de", Currency: "EUR", Locale: "de-DE"},
		{Key: "fr", Host: "https://www.vinted.fr", Currency: "EUR", Locale: "fr-FR"},
		{Key: "pl", Host: "https://www.vinted.pl", Currency: "PLN", Locale: "pl-PL"},
		{Key: "es", Host: "https://www.vinted.es", Currency: "EUR", Locale: "es-ES"},
		{Key: "uk", Host: "https://www.vinted.co.uk", Currency: "GBP", Locale: "en-GB"},
	}
}
