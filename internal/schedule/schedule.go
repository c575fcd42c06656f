// Package schedule runs recurring scans on a cron spec.
package schedule

import (
	"context"

	"github.com/robfig/cron/v3"

	"github.com/resaleradar/marketscan/internal/config"
	"github.com/resaleradar/marketscan/internal/logging"
	"github.com/resaleradar/marketscan/internal/scanner"
)

// Runner rescans every configured target on a schedule. The original
// tool refreshed once a minute; that remains the default spec.
type Runner struct {
	cron    *cron.Cron
	scanner *scanner.Scanner
	targets []config.Target
	markets []string
}

// New builds a runner over the given scanner and targets.
func New(s *scanner.Scanner, targets []config.Target, markets []string) *Runner {
	return &Runner{
		cron:    cron.New(),
		scanner: s,
		targets: targets,
		markets: markets,
	}
}

// Start registers the scan job and starts the cron loop.
func (r *Runner) Start(ctx context.Context, spec string) error {
	_, err := r.cron.AddFunc(spec, func() { r.runOnce(ctx) })
	if err != nil {
		return err
	}
	r.cron.Start()
	return nil
}

// Stop halts the cron loop, waiting for a running job to finish.
func (r *Runner) Stop() {
	<-r.cron.Stop().Done()
}

func (r *Runner) runOnce(ctx context.Context) {
	for _, target := range r.targets {
		listings, report, err := r.scanner.Scan(ctx, target.Query, r.markets)
		if err != nil {
			logging.Errorf("schedule: scan %q: %v", target.Query, err)
			continue
		}
		steals := 0
		for _, l := range listings {
			if l.Analysis.IsSteal {
				steals++
			}
		}
		logging.Infof("schedule: %s: %d listings, %d steals, %d/%d markets failed",
			target.Brand, len(listings), steals, len(report.FailedMarkets), report.Markets)
	}
}
