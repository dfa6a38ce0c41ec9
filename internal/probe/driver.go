// Package probe implements the protocol-specific reachability drivers and the
// registry that isolates them from each other. A driver answers one question,
// "did this device respond over its protocol", and reports it as an
// Observation; interpreting the answer is the classifier's job.
package probe

import (
	"context"

	"github.com/roomoperable/fleetpulse/pkg/models"
)

// Driver executes one reachability check against one device. Implementations
// return an error only for failures they could not express as an Observation
// themselves; the registry converts such errors (and panics) into offline
// observations so a broken driver can never abort a polling cycle.
type Driver interface {
	Probe(ctx context.Context, dev *models.DeviceDescriptor) (models.Observation, error)
}

// maxDetailLen bounds diagnostic strings so raw protocol output cannot grow
// stored events without limit.
const maxDetailLen = 280

func truncate(s string) string {
	if len(s) <= maxDetailLen {
		return s
	}
	return s[:maxDetailLen-1] + "…"
}
