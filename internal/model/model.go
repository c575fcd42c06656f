package model

import "time"

// Listing is one normalized marketplace item as held in the vault.
type Listing struct {
	ID            string
	Title         string
	Brand         string // lowercased, "unknown" when missing
	Price         float64
	FavoriteCount int
	PhotoURL      string
	Path          string // locator relative to the market host
	Market        string
	CapturedAt    time.Time
}

// RawListing mirrors the loose JSON shape the catalog endpoint returns.
// Price may arrive as a bare value or nested under a currency object;
// the direct field wins when both are present.
type RawListing struct {
	ID             any        `json:"id"`
	Title          string     `json:"title"`
	BrandTitle     string     `json:"brand_title"`
	Price          any        `json:"price"`
	TotalItemPrice *RawPrice  `json:"total_item_price"`
	FavoriteCount  int        `json:"favourite_count"`
	URL            string     `json:"url"`
	Photo          *RawPhoto  `json:"photo"`
	Photos         []RawPhoto `json:"photos"`
}

// RawPrice is the nested currency-object form of a price.
type RawPrice struct {
	Amount       string `json:"amount"`
	CurrencyCode string `json:"currency_code"`
}

// RawPhoto holds the subset of photo metadata we keep.
type RawPhoto struct {
	URL string `json:"url"`
}

// Benchmark aggregates the prices currently retained for one brand.
// Mean is the primary signal; median and stddev travel along for
// consumers that want a robust alternative.
type Benchmark struct {
	Brand             string
	Mean              float64
	Median            float64
	StandardDeviation float64
	SampleCount       int
}

// Analysis is the per-listing scoring result. It is derived on every
// scan cycle and never stored.
type Analysis struct {
	MarketAveragePrice float64
	EstimatedProfit    float64
	IsSteal            bool
	HypeScore          float64
	SentimentScore     float64
}

// ScoredListing pairs a listing with its analysis and the absolute URL
// reconstructed from the market host. This is the shape handed to the
// presentation layer.
type ScoredListing struct {
	Listing
	URL      string
	Analysis Analysis
}

// IngestSummary reports what one ingest batch did.
type IngestSummary struct {
	Accepted   int
	Duplicates int
	Skipped    int
	Evicted    int
}

// Add folds another summary into this one.
func (s *IngestSummary) Add(o IngestSummary) {
	s.Accepted += o.Accepted
	s.Duplicates += o.Duplicates
	s.Skipped += o.Skipped
	s.Evicted += o.Evicted
}
