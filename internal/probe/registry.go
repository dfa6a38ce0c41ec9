package probe

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/roomoperable/fleetpulse/pkg/models"
)

// Registry maps declared driver names to Driver instances. The table is
// populated at startup; an unknown name is a normal outcome, not a lookup
// failure deep inside a cycle.
type Registry struct {
	drivers map[string]Driver
	logger  *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{drivers: make(map[string]Driver), logger: logger}
}

// Register binds a driver name. Later registrations replace earlier ones.
func (r *Registry) Register(name string, d Driver) {
	r.drivers[name] = d
}

// Probe runs the device's declared driver and always returns a usable
// Observation. This is the isolation boundary: driver errors become offline
// observations with a machine-readable detail, driver panics are recovered,
// and unknown driver names short-circuit without invoking anything.
func (r *Registry) Probe(ctx context.Context, dev *models.DeviceDescriptor) (obs models.Observation) {
	name := dev.DriverName()

	d, ok := r.drivers[name]
	if !ok {
		return models.Observation{
			Status: models.StatusUnknown,
			Detail: "unknown_driver:" + name,
		}
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("driver panicked",
				zap.String("driver", name),
				zap.String("device", dev.Address),
				zap.Any("panic", rec),
			)
			obs = models.Observation{
				Status: models.StatusOffline,
				Detail: truncate(fmt.Sprintf("%s_error:panic:%v", name, rec)),
			}
		}
	}()

	result, err := d.Probe(ctx, dev)
	if err != nil {
		return models.Observation{
			Status:  models.StatusOffline,
			Detail:  truncate(fmt.Sprintf("%s_error:%v", name, err)),
			Metrics: result.Metrics,
		}
	}

	result.Status = models.NormalizeStatus(string(result.Status))
	result.Detail = truncate(result.Detail)
	return result
}
