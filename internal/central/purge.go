package central

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// defaultPurgeEvery is how often the retention purge runs after the startup
// pass.
const defaultPurgeEvery = 6 * time.Hour

// Purger removes events and closed alerts older than each site's retention
// window. It runs once at startup and then on a fixed interval.
type Purger struct {
	store  *Store
	logger *zap.Logger
	every  time.Duration
	now    func() time.Time
}

// NewPurger creates a Purger. A non-positive interval falls back to the
// default.
func NewPurger(st *Store, every time.Duration, logger *zap.Logger) *Purger {
	if every <= 0 {
		every = defaultPurgeEvery
	}
	return &Purger{
		store:  st,
		logger: logger.Named("purge"),
		every:  every,
		now:    time.Now,
	}
}

// Run purges immediately, then on every tick until ctx is cancelled.
func (p *Purger) Run(ctx context.Context) {
	p.purgeAll(ctx)

	ticker := time.NewTicker(p.every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.purgeAll(ctx)
		}
	}
}

// purgeAll walks all sites and applies each one's retention window.
func (p *Purger) purgeAll(ctx context.Context) {
	sites, err := p.store.ListSites(ctx)
	if err != nil {
		p.logger.Error("list sites for purge failed", zap.Error(err))
		return
	}
	for _, site := range sites {
		days := site.RetentionDays
		if days <= 0 {
			continue
		}
		cutoff := p.now().AddDate(0, 0, -days)
		events, alerts, err := p.store.PurgeBefore(ctx, site.ID, cutoff)
		if err != nil {
			p.logger.Error("purge failed",
				zap.String("site", site.Name), zap.Error(err))
			continue
		}
		if events > 0 || alerts > 0 {
			p.logger.Info("retention purge",
				zap.String("site", site.Name),
				zap.Int64("events", events),
				zap.Int64("alerts", alerts))
		}
	}
}
