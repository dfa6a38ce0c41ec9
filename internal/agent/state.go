package agent

import (
	"sync"
	"time"

	"github.com/roomoperable/fleetpulse/pkg/models"
)

// RuntimeState is the per-device memory the classifier needs across cycles.
type RuntimeState struct {
	LastObservation models.Observation
	LastOkAt        time.Time
	OfflineSince    time.Time
}

// RuntimeStore owns all per-device runtime state. One instance belongs to
// the polling loop; there are no process-wide maps.
type RuntimeStore struct {
	mu     sync.Mutex
	states map[string]*RuntimeState
}

// NewRuntimeStore creates an empty store.
func NewRuntimeStore() *RuntimeStore {
	return &RuntimeStore{states: make(map[string]*RuntimeState)}
}

// Observe folds one observation into the device's state and returns the
// classifier inputs: the last-known-good timestamp and how long the current
// offline streak has lasted (zero when not offline).
func (r *RuntimeStore) Observe(address string, obs models.Observation, now time.Time) (lastOkAt time.Time, offlineFor time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.states[address]
	if !ok {
		st = &RuntimeState{}
		r.states[address] = st
	}
	st.LastObservation = obs

	switch obs.Status {
	case models.StatusOnline:
		st.LastOkAt = now
		st.OfflineSince = time.Time{}
	case models.StatusOffline:
		if st.OfflineSince.IsZero() {
			st.OfflineSince = now
		}
	default:
		// unknown neither extends nor clears an offline streak
	}

	if !st.OfflineSince.IsZero() {
		offlineFor = now.Sub(st.OfflineSince)
	}
	return st.LastOkAt, offlineFor
}

// Get returns a copy of the device's state.
func (r *RuntimeStore) Get(address string) (RuntimeState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.states[address]
	if !ok {
		return RuntimeState{}, false
	}
	return *st, true
}

// Prune drops state for devices no longer in the topology. Called after a
// config merge so removed devices do not leak slots.
func (r *RuntimeStore) Prune(keep map[string]bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for address := range r.states {
		if !keep[address] {
			delete(r.states, address)
		}
	}
}

// Len returns the number of tracked devices.
func (r *RuntimeStore) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.states)
}
