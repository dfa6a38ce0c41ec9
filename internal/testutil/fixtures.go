package testutil

import (
	"github.com/roomoperable/fleetpulse/pkg/models"
)

// NewDescriptor returns a DeviceDescriptor with sensible defaults, suitable
// for test fixtures. Override individual fields via options.
func NewDescriptor(opts ...func(*models.DeviceDescriptor)) models.DeviceDescriptor {
	d := models.DeviceDescriptor{
		Address:    "192.168.1.100",
		Name:       "test-device",
		Building:   "A",
		Floor:      "2",
		Room:       "201",
		DeviceType: "projector",
		Driver:     models.DriverPing,
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// WithAddress sets the device address.
func WithAddress(addr string) func(*models.DeviceDescriptor) {
	return func(d *models.DeviceDescriptor) { d.Address = addr }
}

// WithName sets the device name.
func WithName(name string) func(*models.DeviceDescriptor) {
	return func(d *models.DeviceDescriptor) { d.Name = name }
}

// WithDriver sets the probe driver.
func WithDriver(driver string) func(*models.DeviceDescriptor) {
	return func(d *models.DeviceDescriptor) { d.Driver = driver }
}

// WithExpectations sets the device policy block.
func WithExpectations(exp models.Expectations) func(*models.DeviceDescriptor) {
	return func(d *models.DeviceDescriptor) { d.Expectations = exp }
}

// WithSNMP sets the SNMP field-group.
func WithSNMP(cfg models.SNMPConfig) func(*models.DeviceDescriptor) {
	return func(d *models.DeviceDescriptor) {
		d.Driver = models.DriverSNMP
		d.SNMP = cfg
	}
}

// WithPJLink sets the PJLink field-group.
func WithPJLink(cfg models.PJLinkConfig) func(*models.DeviceDescriptor) {
	return func(d *models.DeviceDescriptor) {
		d.Driver = models.DriverPJLink
		d.PJLink = cfg
	}
}
