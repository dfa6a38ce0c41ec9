package probe

import (
	"context"
	"testing"
	"time"

	"github.com/roomoperable/fleetpulse/internal/presence"
	"github.com/roomoperable/fleetpulse/pkg/models"
)

// fakePresence is a canned presence source.
type fakePresence struct {
	connected bool
	states    map[string]presence.DeviceState
}

func (f *fakePresence) Connected() bool { return f.connected }

func (f *fakePresence) State(name string) (presence.DeviceState, bool) {
	s, ok := f.states[name]
	return s, ok
}

func zigbeeDevice(name string) *models.DeviceDescriptor {
	return &models.DeviceDescriptor{Address: "zigbee:" + name, Driver: models.DriverZigbee}
}

func TestZigbeeRecentlySeenIsOnline(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	src := &fakePresence{connected: true, states: map[string]presence.DeviceState{
		"hall_sensor": {
			LastSeen: now.Add(-10 * time.Minute),
			Fields:   map[string]any{"battery": 87, "temperature": 21.5},
		},
	}}
	d := NewZigbeeDriver(src)
	d.now = func() time.Time { return now }

	obs, err := d.Probe(context.Background(), zigbeeDevice("hall_sensor"))
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if obs.Status != models.StatusOnline {
		t.Errorf("Status = %q, want online", obs.Status)
	}
	if obs.Metrics["battery"] != 87 {
		t.Errorf("battery metric = %v, want 87", obs.Metrics["battery"])
	}
	if obs.Metrics["last_seen_minutes_ago"] != 10 {
		t.Errorf("last_seen_minutes_ago = %v, want 10", obs.Metrics["last_seen_minutes_ago"])
	}
}

func TestZigbeeSilentTooLongIsOffline(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	src := &fakePresence{connected: true, states: map[string]presence.DeviceState{
		"hall_sensor": {LastSeen: now.Add(-90 * time.Minute), Fields: map[string]any{}},
	}}
	d := NewZigbeeDriver(src)
	d.now = func() time.Time { return now }

	obs, err := d.Probe(context.Background(), zigbeeDevice("hall_sensor"))
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if obs.Status != models.StatusOffline {
		t.Errorf("Status = %q, want offline", obs.Status)
	}
	if obs.Detail != "last_seen_90min_ago" {
		t.Errorf("Detail = %q, want last_seen_90min_ago", obs.Detail)
	}
}

func TestZigbeeDisconnectedBrokerIsUnknown(t *testing.T) {
	d := NewZigbeeDriver(&fakePresence{connected: false})

	obs, err := d.Probe(context.Background(), zigbeeDevice("hall_sensor"))
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if obs.Status != models.StatusUnknown {
		t.Errorf("Status = %q, want unknown while broker is down", obs.Status)
	}
	if obs.Detail != "mqtt_disconnected" {
		t.Errorf("Detail = %q, want mqtt_disconnected", obs.Detail)
	}
}

func TestZigbeeNeverObservedIsUnknown(t *testing.T) {
	d := NewZigbeeDriver(&fakePresence{connected: true, states: map[string]presence.DeviceState{}})

	obs, _ := d.Probe(context.Background(), zigbeeDevice("ghost"))
	if obs.Status != models.StatusUnknown {
		t.Errorf("Status = %q, want unknown", obs.Status)
	}
	if obs.Detail != "device_not_in_cache" {
		t.Errorf("Detail = %q, want device_not_in_cache", obs.Detail)
	}
}

func TestZigbeeStaleEntryStillClassified(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	src := &fakePresence{connected: true, states: map[string]presence.DeviceState{
		"hall_sensor": {
			LastSeen: now.Add(-5 * time.Minute),
			Fields:   map[string]any{"battery": 40},
			Stale:    true,
			CacheAge: 7 * time.Minute,
		},
	}}
	d := NewZigbeeDriver(src)
	d.now = func() time.Time { return now }

	obs, _ := d.Probe(context.Background(), zigbeeDevice("hall_sensor"))
	if obs.Status != models.StatusOnline {
		t.Errorf("Status = %q, want online (stale data beats no data)", obs.Status)
	}
	if obs.Metrics["cache_stale"] != true {
		t.Error("cache_stale flag missing on stale entry")
	}
}

func TestZigbeeBadAddressFormat(t *testing.T) {
	d := NewZigbeeDriver(&fakePresence{connected: true})

	obs, _ := d.Probe(context.Background(), &models.DeviceDescriptor{Address: "192.168.1.40", Driver: models.DriverZigbee})
	if obs.Status != models.StatusUnknown {
		t.Errorf("Status = %q, want unknown for a non-zigbee address", obs.Status)
	}
	if obs.Detail != "invalid_zigbee_address" {
		t.Errorf("Detail = %q, want invalid_zigbee_address", obs.Detail)
	}
}
