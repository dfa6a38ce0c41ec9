// Package models defines the wire and configuration types shared by the
// FleetPulse edge agent and the central registry.
package models

// Status is the raw reachability reported by a probe driver.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
	StatusUnknown Status = "unknown"
)

// NormalizeStatus maps arbitrary driver output onto the three known states.
func NormalizeStatus(s string) Status {
	switch Status(s) {
	case StatusOnline, StatusOffline:
		return Status(s)
	default:
		return StatusUnknown
	}
}

// Verdict is the policy-interpreted meaning of an Observation. It is derived
// every cycle from the observation, the device policy, and the last-known-good
// timestamp; it is never a source of truth on its own.
type Verdict string

const (
	VerdictOK          Verdict = "ok"
	VerdictFault       Verdict = "fault"
	VerdictExpectedOff Verdict = "expected_off"
	VerdictDoubt       Verdict = "doubt"
	VerdictUnknown     Verdict = "unknown"
)

// Observation is a single probe's raw result. Produced fresh on every probe
// and handed to the classifier; never persisted directly.
type Observation struct {
	Status  Status         `json:"status"`
	Detail  string         `json:"detail,omitempty"`
	Metrics map[string]any `json:"metrics,omitempty"`
}
