package probe

import (
	"context"
	"fmt"
	"runtime"
	"time"

	probing "github.com/prometheus-community/pro-bing"

	"github.com/roomoperable/fleetpulse/pkg/models"
)

// PingDriver checks reachability with ICMP echo via pro-bing.
type PingDriver struct{}

// NewPingDriver creates an ICMP ping driver.
func NewPingDriver() *PingDriver {
	return &PingDriver{}
}

// Probe pings the device. Success means at least one reply was received.
func (d *PingDriver) Probe(ctx context.Context, dev *models.DeviceDescriptor) (models.Observation, error) {
	if dev.Address == "" {
		return models.Observation{Status: models.StatusUnknown, Detail: "missing_address"}, nil
	}

	timeout := time.Duration(dev.Ping.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = time.Second
	}
	count := dev.Ping.Count
	if count < 1 {
		count = 1
	}
	if count > 5 {
		count = 5
	}

	pinger, err := probing.NewPinger(dev.Address)
	if err != nil {
		return models.Observation{}, fmt.Errorf("create pinger: %w", err)
	}
	pinger.Count = count
	pinger.Timeout = timeout
	pinger.SetPrivileged(runtime.GOOS == "windows")

	// Run the pinger in a goroutine so the probe honors context cancellation.
	done := make(chan error, 1)
	go func() {
		done <- pinger.Run()
	}()

	select {
	case runErr := <-done:
		stats := pinger.Statistics()
		metrics := map[string]any{
			"ping_sent": stats.PacketsSent,
			"ping_recv": stats.PacketsRecv,
		}

		if runErr != nil {
			return models.Observation{
				Status:  models.StatusOffline,
				Detail:  "ping_failed: " + truncate(runErr.Error()),
				Metrics: metrics,
			}, nil
		}

		if stats.PacketsRecv == 0 {
			metrics["ping_loss_pct"] = 100.0
			return models.Observation{
				Status:  models.StatusOffline,
				Detail:  "ping_failed: all packets lost",
				Metrics: metrics,
			}, nil
		}

		metrics["ping_rtt_ms"] = float64(stats.AvgRtt) / float64(time.Millisecond)
		metrics["ping_loss_pct"] = stats.PacketLoss
		return models.Observation{
			Status:  models.StatusOnline,
			Detail:  "ping_ok",
			Metrics: metrics,
		}, nil

	case <-ctx.Done():
		pinger.Stop()
		return models.Observation{
			Status: models.StatusOffline,
			Detail: "ping_cancelled",
		}, nil
	}
}
