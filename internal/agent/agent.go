package agent

import (
	"context"
	"net/http"
	"time"

	"github.com/roomoperable/fleetpulse/internal/policy"
	"github.com/roomoperable/fleetpulse/internal/presence"
	"github.com/roomoperable/fleetpulse/internal/probe"
	"github.com/roomoperable/fleetpulse/pkg/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Agent ties the edge loops together: the presence subscriber, the probe
// cycle with its adaptive delay, and the config-sync loop. The two timed
// loops run on independent cadences so config drift detection is never gated
// by device polling.
type Agent struct {
	cfg        *Config
	local      *LocalStore
	collector  *Collector
	reporter   *Reporter
	syncer     *Syncer
	subscriber *presence.Subscriber
	status     statusTracker
	logger     *zap.Logger
}

// New builds a fully wired Agent from its configuration.
func New(cfg *Config, logger *zap.Logger) (*Agent, error) {
	local := NewLocalStore(cfg.ConfigPath)
	if err := local.Load(); err != nil {
		return nil, err
	}

	cache := presence.NewCache()
	subscriber := presence.NewSubscriber(cfg.MQTT, cache, logger)

	registry := probe.NewRegistry(logger)
	registry.Register(models.DriverPing, probe.NewPingDriver())
	registry.Register(models.DriverSNMP, probe.NewSNMPDriver())
	registry.Register(models.DriverPJLink, probe.NewPJLinkDriver())
	registry.Register(models.DriverZigbee, probe.NewZigbeeDriver(subscriber))

	client := &http.Client{Timeout: cfg.RequestTimeout}
	runtime := NewRuntimeStore()

	return &Agent{
		cfg:        cfg,
		local:      local,
		collector:  NewCollector(registry, runtime, cfg.MaxParallel, logger),
		reporter:   NewReporter(client, cfg.ServerURL, cfg.SiteToken),
		syncer:     NewSyncer(client, cfg.ServerURL, cfg.SiteToken, local, logger),
		subscriber: subscriber,
		logger:     logger.Named("agent"),
	}, nil
}

// Status returns a snapshot of the agent's loop state.
func (a *Agent) Status() Status {
	return a.status.snapshot()
}

// Run starts all loops and blocks until ctx is cancelled. All loops observe
// cancellation within one tick; in-flight probes finish or hit their own
// timeouts.
func (a *Agent) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.subscriber.Run(gctx)
		return nil
	})
	g.Go(func() error {
		a.syncLoop(gctx)
		return nil
	})
	g.Go(func() error {
		a.probeLoop(gctx)
		return nil
	})

	err := g.Wait()
	a.logger.Info("agent stopped")
	return err
}

// probeLoop is the repeating cycle: collect, classify, report, sleep the
// adaptive delay.
func (a *Agent) probeLoop(ctx context.Context) {
	for {
		doc := a.local.Document()
		payload, anyFault := a.collector.RunCycle(ctx, doc)
		if payload.SiteName == "" {
			// Before the first successful sync the document has no name.
			payload.SiteName = a.cfg.SiteName
		}

		okInterval := time.Duration(doc.Reporting.OKIntervalSeconds) * time.Second
		koInterval := time.Duration(doc.Reporting.KOIntervalSeconds) * time.Second
		delay := policy.NextDelay(anyFault, okInterval, koInterval)
		a.status.cycleDone(time.Now(), len(payload.Devices), anyFault, delay)

		if len(payload.Devices) > 0 {
			resp, err := a.reporter.Send(ctx, payload)
			if err != nil {
				a.status.failed(err)
				a.logger.Warn("report failed", zap.Error(err))
			} else {
				a.status.reportDone(time.Now())
				a.logger.Debug("report sent",
					zap.Int("devices", len(payload.Devices)),
					zap.Int("upserted", resp.Upserted),
					zap.Bool("any_fault", anyFault),
					zap.Duration("next_delay", delay))
			}
		}

		if !sleep(ctx, delay) {
			return
		}
	}
}

// syncLoop pulls and reconciles configuration on its own timer. The first
// sync runs immediately so a fresh agent gets its topology before the first
// useful probe cycle.
func (a *Agent) syncLoop(ctx context.Context) {
	for {
		if err := a.syncer.SyncOnce(ctx); err != nil {
			a.status.failed(err)
			a.logger.Warn("config sync failed", zap.Error(err))
		} else {
			a.status.syncDone(time.Now())
		}

		if !sleep(ctx, a.cfg.SyncInterval) {
			return
		}
	}
}

// sleep waits for d or until ctx is done, reporting whether the full delay
// elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = time.Second
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
