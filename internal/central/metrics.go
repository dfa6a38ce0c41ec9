package central

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the registry's Prometheus counters.
type Metrics struct {
	IngestCycles  prometheus.Counter
	DevicesSeen   prometheus.Counter
	EventsWritten prometheus.Counter
	AlertsOpened  prometheus.Counter
	AlertsClosed  prometheus.Counter
	AuthFailures  prometheus.Counter
}

// NewMetrics creates and registers the counters on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		IngestCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleetpulse_ingest_cycles_total",
			Help: "Number of agent report requests ingested.",
		}),
		DevicesSeen: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleetpulse_ingest_devices_total",
			Help: "Number of device rows processed across all reports.",
		}),
		EventsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleetpulse_events_written_total",
			Help: "Number of device events appended.",
		}),
		AlertsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleetpulse_alerts_opened_total",
			Help: "Number of alerts opened.",
		}),
		AlertsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleetpulse_alerts_closed_total",
			Help: "Number of alerts closed.",
		}),
		AuthFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleetpulse_auth_failures_total",
			Help: "Number of report or config requests rejected for a bad site token.",
		}),
	}
	reg.MustRegister(m.IngestCycles, m.DevicesSeen, m.EventsWritten,
		m.AlertsOpened, m.AlertsClosed, m.AuthFailures)
	return m
}
