package agent

import (
	"context"
	"time"

	"github.com/roomoperable/fleetpulse/internal/policy"
	"github.com/roomoperable/fleetpulse/internal/probe"
	"github.com/roomoperable/fleetpulse/pkg/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Collector runs one probe cycle across the whole topology: probe every
// device concurrently (bounded), classify each observation, and assemble the
// report. A failing driver yields a device row with its diagnostic; it never
// drops the device or aborts the cycle.
type Collector struct {
	registry    *probe.Registry
	runtime     *RuntimeStore
	logger      *zap.Logger
	maxParallel int
	now         func() time.Time
}

// NewCollector creates a Collector with the given parallelism bound.
func NewCollector(registry *probe.Registry, runtime *RuntimeStore, maxParallel int, logger *zap.Logger) *Collector {
	if maxParallel <= 0 {
		maxParallel = 8
	}
	return &Collector{
		registry:    registry,
		runtime:     runtime,
		logger:      logger.Named("collector"),
		maxParallel: maxParallel,
		now:         time.Now,
	}
}

// RunCycle probes and classifies every device in doc. It returns the report
// payload and whether any device's verdict came out fault.
func (c *Collector) RunCycle(ctx context.Context, doc models.ConfigDocument) (models.ReportPayload, bool) {
	devices := doc.Devices
	rows := make([]models.ReportDevice, len(devices))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxParallel)
	for i := range devices {
		g.Go(func() error {
			rows[i] = c.probeOne(gctx, doc, &devices[i])
			return nil
		})
	}
	// Workers never return errors; Wait is just the barrier.
	_ = g.Wait()

	anyFault := false
	for _, row := range rows {
		if row.Verdict == models.VerdictFault {
			anyFault = true
			break
		}
	}

	keep := make(map[string]bool, len(devices))
	for i := range devices {
		keep[devices[i].Address] = true
	}
	c.runtime.Prune(keep)

	return models.ReportPayload{SiteName: doc.SiteName, Devices: rows}, anyFault
}

// probeOne runs a single device through probe, runtime update, and
// classification. Each invocation writes only its own report slot and its
// own runtime entry.
func (c *Collector) probeOne(ctx context.Context, doc models.ConfigDocument, desc *models.DeviceDescriptor) models.ReportDevice {
	now := c.now()
	obs := c.registry.Probe(ctx, desc)
	lastOkAt, offlineFor := c.runtime.Observe(desc.Address, obs, now)

	pol := policy.FromExpectations(desc.Expectations, doc.Timezone)
	verdict := policy.Classify(now, pol, obs.Status, lastOkAt, offlineFor, doc.DoubtAfterDays)

	c.logger.Debug("device probed",
		zap.String("ip", desc.Address),
		zap.String("driver", desc.DriverName()),
		zap.String("status", string(obs.Status)),
		zap.String("verdict", string(verdict)))

	return models.ReportDevice{
		Address:    desc.Address,
		Name:       desc.Name,
		Building:   desc.Building,
		Floor:      desc.Floor,
		Room:       desc.Room,
		DeviceType: desc.DeviceType,
		Driver:     desc.DriverName(),
		Status:     obs.Status,
		Detail:     obs.Detail,
		Metrics:    obs.Metrics,
		Verdict:    verdict,
	}
}
