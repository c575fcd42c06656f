// Package vault is the bounded, insertion-ordered store of recently
// seen listings and the per-brand price benchmarks derived from them.
package vault

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/resaleradar/marketscan/internal/logging"
	"github.com/resaleradar/marketscan/internal/model"
)

const (
	// DefaultCapacity bounds the store when no capacity is configured.
	DefaultCapacity = 10000

	// fallbackMean is the benchmark mean assumed for brands with no
	// retained samples.
	fallbackMean = 45.0
)

// Vault owns all listing and benchmark state. Ingest runs as a single
// critical section: append, evict and benchmark recompute never
// interleave across callers, and benchmark reads always observe the
// last completed ingest.
type Vault struct {
	capacity int

	mu         sync.Mutex
	entries    []model.Listing
	seen       map[string]struct{} // market|id
	benchmarks map[string]model.Benchmark

	now func() time.Time
}

// New creates a vault with the given capacity. Non-positive capacities
// fall back to DefaultCapacity.
func New(capacity int) *Vault {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Vault{
		capacity:   capacity,
		entries:    make([]model.Listing, 0, capacity),
		seen:       make(map[string]struct{}),
		benchmarks: make(map[string]model.Benchmark),
		now:        time.Now,
	}
}

func identity(marketKey, id string) string {
	return marketKey + "|" + id
}

// Ingest normalizes and stores a batch of raw listings for one market.
// Unparsable listings are skipped and counted. Re-ingesting a known
// (id, market) pair is a no-op that preserves the first-seen record.
// Benchmarks are recomputed for every brand the batch touched.
// The returned slice holds the vault's record for every parsable
// listing in the batch, stored copies included.
func (v *Vault) Ingest(raws []model.RawListing, marketKey string) ([]model.Listing, model.IngestSummary) {
	v.mu.Lock()
	defer v.mu.Unlock()

	var summary model.IngestSummary
	out := make([]model.Listing, 0, len(raws))
	touched := make(map[string]struct{})

	for _, raw := range raws {
		l, err := normalize(raw, marketKey)
		if err != nil {
			logging.Debugf("vault: skipping listing in %s: %v", marketKey, err)
			summary.Skipped++
			continue
		}

		key := identity(marketKey, l.ID)
		if _, dup := v.seen[key]; dup {
			summary.Duplicates++
			out = append(out, v.lookup(key))
			continue
		}

		l.CapturedAt = v.now()
		v.entries = append(v.entries, l)
		v.seen[key] = struct{}{}
		summary.Accepted++
		touched[l.Brand] = struct{}{}
		out = append(out, l)
	}

	// FIFO eviction beyond capacity. Evicted brands need a recompute
	// too, or their benchmarks would drift from the retained data.
	for len(v.entries) > v.capacity {
		oldest := v.entries[0]
		v.entries = v.entries[1:]
		delete(v.seen, identity(oldest.Market, oldest.ID))
		touched[oldest.Brand] = struct{}{}
		summary.Evicted++
	}

	for brand := range touched {
		v.recomputeLocked(brand)
	}

	return out, summary
}

// lookup returns the stored record for a known identity key.
func (v *Vault) lookup(key string) model.Listing {
	for i := len(v.entries) - 1; i >= 0; i-- {
		if identity(v.entries[i].Market, v.entries[i].ID) == key {
			return v.entries[i]
		}
	}
	return model.Listing{}
}

// recomputeLocked rebuilds one brand's benchmark from the current
// vault contents. Caller holds the mutex.
func (v *Vault) recomputeLocked(brand string) {
	var prices []float64
	for _, l := range v.entries {
		if l.Brand == brand {
			prices = append(prices, l.Price)
		}
	}
	if len(prices) == 0 {
		delete(v.benchmarks, brand)
		return
	}
	v.benchmarks[brand] = computeBenchmark(brand, prices)
}

func computeBenchmark(brand string, prices []float64) model.Benchmark {
	var sum float64
	for _, p := range prices {
		sum += p
	}
	mean := sum / float64(len(prices))

	var variance float64
	for _, p := range prices {
		d := p - mean
		variance += d * d
	}
	variance /= float64(len(prices))

	sorted := append([]float64(nil), prices...)
	sort.Float64s(sorted)
	var median float64
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		median = sorted[mid]
	} else {
		median = (sorted[mid-1] + sorted[mid]) / 2
	}

	return model.Benchmark{
		Brand:             brand,
		Mean:              mean,
		Median:            median,
		StandardDeviation: math.Sqrt(variance),
		SampleCount:       len(prices),
	}
}

// Benchmark returns the brand's current price benchmark, or the fixed
// fallback when the brand has no retained samples.
func (v *Vault) Benchmark(brand string) model.Benchmark {
	v.mu.Lock()
	defer v.mu.Unlock()

	if b, ok := v.benchmarks[brand]; ok {
		return b
	}
	return model.Benchmark{
		Brand:  brand,
		Mean:   fallbackMean,
		Median: fallbackMean,
	}
}

// Len returns the number of retained listings.
func (v *Vault) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.entries)
}

// Contains reports whether the (id, market) pair is retained.
func (v *Vault) Contains(marketKey, id string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.seen[identity(marketKey, id)]
	return ok
}
