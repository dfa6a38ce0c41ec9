package probe

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/roomoperable/fleetpulse/internal/presence"
	"github.com/roomoperable/fleetpulse/pkg/models"
)

// zigbeePrefix marks addresses resolved through the presence cache instead of
// the network: "zigbee:<friendly_name>".
const zigbeePrefix = "zigbee:"

// presenceWindow is how recently a device must have reported to count as
// online.
const presenceWindow = 60 * time.Minute

// sensorFields are the payload keys surfaced verbatim as metrics when
// present.
var sensorFields = []string{
	"battery", "linkquality", "state", "brightness",
	"temperature", "humidity", "pressure", "co2", "voc", "pm25",
	"illuminance", "occupancy", "contact", "water_leak", "smoke",
	"tamper", "vibration", "power", "energy", "current", "voltage",
}

// PresenceSource is the narrow view of the presence subscriber the driver
// needs. Keeping it an interface lets tests substitute a fixed cache.
type PresenceSource interface {
	Connected() bool
	State(name string) (presence.DeviceState, bool)
}

// ZigbeeDriver classifies battery-powered mesh devices from the presence
// cache; it never touches the network itself. The background subscriber owns
// freshness of the underlying data.
type ZigbeeDriver struct {
	source PresenceSource
	now    func() time.Time
}

// NewZigbeeDriver creates a zigbee presence driver backed by the given source.
func NewZigbeeDriver(source PresenceSource) *ZigbeeDriver {
	return &ZigbeeDriver{source: source, now: time.Now}
}

// Probe reads the device's cached state and classifies it by last-seen age.
func (d *ZigbeeDriver) Probe(_ context.Context, dev *models.DeviceDescriptor) (models.Observation, error) {
	name, ok := strings.CutPrefix(dev.Address, zigbeePrefix)
	if !ok {
		return models.Observation{
			Status: models.StatusUnknown,
			Detail: "invalid_zigbee_address",
		}, nil
	}
	if name == "" {
		return models.Observation{Status: models.StatusUnknown, Detail: "empty_friendly_name"}, nil
	}

	if d.source == nil || !d.source.Connected() {
		return models.Observation{
			Status:  models.StatusUnknown,
			Detail:  "mqtt_disconnected",
			Metrics: map[string]any{"mqtt_connected": false},
		}, nil
	}

	state, found := d.source.State(name)
	if !found {
		return models.Observation{
			Status:  models.StatusUnknown,
			Detail:  "device_not_in_cache",
			Metrics: map[string]any{"mqtt_connected": true},
		}, nil
	}

	metrics := map[string]any{"mqtt_connected": true}
	for _, field := range sensorFields {
		if v, exists := state.Fields[field]; exists {
			metrics[field] = v
		}
	}
	if state.Stale {
		metrics["cache_stale"] = true
		metrics["cache_age_seconds"] = int(state.CacheAge.Seconds())
	}

	if state.LastSeen.IsZero() {
		return models.Observation{
			Status:  models.StatusUnknown,
			Detail:  "no_last_seen_field",
			Metrics: metrics,
		}, nil
	}

	elapsed := d.now().Sub(state.LastSeen)
	metrics["last_seen_minutes_ago"] = int(elapsed.Minutes())

	if elapsed < presenceWindow {
		return models.Observation{Status: models.StatusOnline, Metrics: metrics}, nil
	}
	return models.Observation{
		Status:  models.StatusOffline,
		Detail:  fmt.Sprintf("last_seen_%dmin_ago", int(elapsed.Minutes())),
		Metrics: metrics,
	}, nil
}
