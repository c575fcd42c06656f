package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/resaleradar/marketscan/internal/analyzer"
	"github.com/resaleradar/marketscan/internal/config"
	"github.com/resaleradar/marketscan/internal/logging"
	"github.com/resaleradar/marketscan/internal/model"
	"github.com/resaleradar/marketscan/internal/scanner"
	"github.com/resaleradar/marketscan/internal/schedule"
	"github.com/resaleradar/marketscan/internal/session"
	"github.com/resaleradar/marketscan/internal/vault"

	"golang.org/x/time/rate"
)

func main() {
	watch := flag.Bool("watch", false, "keep rescanning on the configured cron spec")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("config: %v", err)
	}
	logging.SetLevel(cfg.LogLevel)

	registry, err := cfg.Registry()
	if err != nil {
		logging.Fatalf("registry: %v", err)
	}
	analyzerCfg, err := cfg.AnalyzerConfig()
	if err != nil {
		logging.Fatalf("analyzer config: %v", err)
	}

	sessions := session.NewManager(registry, session.Config{
		TTL:            cfg.SessionTTL,
		RequestTimeout: cfg.RequestTimeout,
		Cooldown:       cfg.Cooldown,
	})
	store := vault.New(cfg.VaultCapacity)
	scorer := analyzer.New(analyzerCfg)
	scan := scanner.New(registry, sessions, store, scorer, scanner.Config{
		PageSize:    cfg.PageSize,
		MaxWorkers:  cfg.MaxWorkers,
		ScanTimeout: cfg.ScanTimeout,
		RequestRate: rate.Limit(cfg.RequestRate),
	})

	ctx := context.Background()
	for _, target := range cfg.Targets {
		listings, report, err := scan.Scan(ctx, target.Query, cfg.Markets)
		if err != nil {
			logging.Fatalf("scan %q: %v", target.Query, err)
		}
		printRanked(target, listings, report)
	}

	if !*watch {
		return
	}

	runner := schedule.New(scan, cfg.Targets, cfg.Markets)
	if err := runner.Start(ctx, cfg.CronSpec); err != nil {
		logging.Fatalf("schedule: %v", err)
	}
	defer runner.Stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logging.Infof("shutting down")
}

func printRanked(target config.Target, listings []model.ScoredListing, report scanner.ScanReport) {
	fmt.Printf("\n== %s (%q) — %d listings", target.Brand, target.Query, len(listings))
	if len(report.FailedMarkets) > 0 {
		fmt.Printf(", failed markets: %s", strings.Join(report.FailedMarkets, ","))
	}
	fmt.Println(" ==")
	for i, l := range listings {
		marker := " "
		if l.Analysis.IsSteal {
			marker = "$"
		}
		fmt.Printf("%2d %s %-8.1f %7.2f (avg %6.2f, +%5.2f) [%s] %s\n",
			i+1, marker, l.Analysis.HypeScore, l.Price, l.Analysis.MarketAveragePrice,
			l.Analysis.EstimatedProfit, l.Market, l.Title)
	}
}
