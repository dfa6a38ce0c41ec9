package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/roomoperable/fleetpulse/internal/probe"
	"github.com/roomoperable/fleetpulse/internal/testutil"
	"github.com/roomoperable/fleetpulse/pkg/models"
	"go.uber.org/zap"
)

// scriptedDriver returns a canned observation (or error) per address.
type scriptedDriver struct {
	obs  map[string]models.Observation
	errs map[string]error
}

func (d *scriptedDriver) Probe(_ context.Context, dev *models.DeviceDescriptor) (models.Observation, error) {
	if err, ok := d.errs[dev.Address]; ok {
		return models.Observation{}, err
	}
	if obs, ok := d.obs[dev.Address]; ok {
		return obs, nil
	}
	return models.Observation{Status: models.StatusOnline, Detail: "ping_ok"}, nil
}

func newTestCollector(t *testing.T, driver probe.Driver) *Collector {
	t.Helper()
	logger := zap.NewNop()
	registry := probe.NewRegistry(logger)
	registry.Register(models.DriverPing, driver)
	return NewCollector(registry, NewRuntimeStore(), 4, logger)
}

func testDocument(addrs ...string) models.ConfigDocument {
	doc := models.ConfigDocument{
		SiteName:  "hq",
		Timezone:  "UTC",
		Reporting: models.Reporting{OKIntervalSeconds: 300, KOIntervalSeconds: 60},
	}
	for _, a := range addrs {
		doc.Devices = append(doc.Devices, testutil.NewDescriptor(testutil.WithAddress(a)))
	}
	return doc
}

func TestRunCycleReportsAllDevices(t *testing.T) {
	driver := &scriptedDriver{
		obs: map[string]models.Observation{
			"10.0.0.1": {Status: models.StatusOnline, Detail: "ping_ok"},
			"10.0.0.2": {Status: models.StatusOffline, Detail: "ping_failed:timeout"},
		},
	}
	c := newTestCollector(t, driver)

	payload, anyFault := c.RunCycle(context.Background(), testDocument("10.0.0.1", "10.0.0.2"))

	if len(payload.Devices) != 2 {
		t.Fatalf("devices = %d, want 2", len(payload.Devices))
	}
	if payload.SiteName != "hq" {
		t.Errorf("SiteName = %q, want hq", payload.SiteName)
	}
	if anyFault {
		t.Error("anyFault = true, want false (grace period suppresses the first offline)")
	}

	byAddr := map[string]models.ReportDevice{}
	for _, d := range payload.Devices {
		byAddr[d.Address] = d
	}
	if byAddr["10.0.0.1"].Verdict != models.VerdictOK {
		t.Errorf("online verdict = %q, want ok", byAddr["10.0.0.1"].Verdict)
	}
	if byAddr["10.0.0.2"].Verdict != models.VerdictUnknown {
		t.Errorf("fresh offline verdict = %q, want unknown (grace)", byAddr["10.0.0.2"].Verdict)
	}
}

func TestRunCycleFaultAfterGraceElapsed(t *testing.T) {
	driver := &scriptedDriver{
		obs: map[string]models.Observation{
			"10.0.0.2": {Status: models.StatusOffline, Detail: "ping_failed:timeout"},
		},
	}
	c := newTestCollector(t, driver)

	t0 := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return t0 }
	c.RunCycle(context.Background(), testDocument("10.0.0.2"))

	// Default alert-after is 300s; 310s into the streak the verdict hardens.
	c.now = func() time.Time { return t0.Add(310 * time.Second) }
	payload, anyFault := c.RunCycle(context.Background(), testDocument("10.0.0.2"))

	if !anyFault {
		t.Fatal("anyFault = false, want true past the grace period")
	}
	if payload.Devices[0].Verdict != models.VerdictFault {
		t.Errorf("verdict = %q, want fault", payload.Devices[0].Verdict)
	}
}

func TestRunCycleIsolatesDriverFailure(t *testing.T) {
	driver := &scriptedDriver{
		errs: map[string]error{
			"10.0.0.1": errors.New("socket exploded"),
		},
		obs: map[string]models.Observation{
			"10.0.0.2": {Status: models.StatusOnline, Detail: "ping_ok"},
		},
	}
	c := newTestCollector(t, driver)

	payload, _ := c.RunCycle(context.Background(), testDocument("10.0.0.1", "10.0.0.2"))

	if len(payload.Devices) != 2 {
		t.Fatalf("devices = %d, want 2 (failing driver must not drop its device)", len(payload.Devices))
	}
	byAddr := map[string]models.ReportDevice{}
	for _, d := range payload.Devices {
		byAddr[d.Address] = d
	}
	failed := byAddr["10.0.0.1"]
	if failed.Status != models.StatusOffline {
		t.Errorf("failed device status = %q, want offline", failed.Status)
	}
	if failed.Detail == "" {
		t.Error("failed device should carry its diagnostic")
	}
	if byAddr["10.0.0.2"].Status != models.StatusOnline {
		t.Error("healthy device affected by the failing one")
	}
}

func TestRunCyclePrunesRemovedDevices(t *testing.T) {
	driver := &scriptedDriver{}
	c := newTestCollector(t, driver)

	c.RunCycle(context.Background(), testDocument("10.0.0.1", "10.0.0.2"))
	if c.runtime.Len() != 2 {
		t.Fatalf("runtime devices = %d, want 2", c.runtime.Len())
	}

	c.RunCycle(context.Background(), testDocument("10.0.0.1"))
	if c.runtime.Len() != 1 {
		t.Errorf("runtime devices = %d, want 1 after topology shrank", c.runtime.Len())
	}
}

func TestRunCycleEmptyTopology(t *testing.T) {
	c := newTestCollector(t, &scriptedDriver{})
	payload, anyFault := c.RunCycle(context.Background(), testDocument())
	if len(payload.Devices) != 0 || anyFault {
		t.Errorf("empty topology: got %d devices, anyFault=%v", len(payload.Devices), anyFault)
	}
}
