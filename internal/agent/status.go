package agent

import (
	"sync"
	"time"
)

// Status is a point-in-time snapshot of the agent's loops, for logs and
// operator inspection.
type Status struct {
	LastCycleAt  time.Time     `json:"last_cycle_at,omitempty"`
	LastReportAt time.Time     `json:"last_report_at,omitempty"`
	LastSyncAt   time.Time     `json:"last_sync_at,omitempty"`
	NextDelay    time.Duration `json:"next_delay,omitempty"`
	Devices      int           `json:"devices"`
	AnyFault     bool          `json:"any_fault"`
	LastError    string        `json:"last_error,omitempty"`
}

// statusTracker guards the snapshot behind a mutex. Loops write their own
// fields; Snapshot returns a copy.
type statusTracker struct {
	mu sync.Mutex
	s  Status
}

func (t *statusTracker) cycleDone(at time.Time, devices int, anyFault bool, next time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.LastCycleAt = at
	t.s.Devices = devices
	t.s.AnyFault = anyFault
	t.s.NextDelay = next
}

func (t *statusTracker) reportDone(at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.LastReportAt = at
	t.s.LastError = ""
}

func (t *statusTracker) syncDone(at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.LastSyncAt = at
}

func (t *statusTracker) failed(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.LastError = err.Error()
}

func (t *statusTracker) snapshot() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.s
}
