package models

import "time"

// Driver names understood by the probe registry.
const (
	DriverPing   = "ping"
	DriverSNMP   = "snmp"
	DriverPJLink = "pjlink"
	DriverZigbee = "zigbee"
)

// PingConfig holds the ping driver parameters for one device.
type PingConfig struct {
	TimeoutSeconds int `json:"timeout_s,omitempty" mapstructure:"timeout_s"`
	Count          int `json:"count,omitempty" mapstructure:"count"`
}

// SNMPConfig is the SNMP field-group. Community is the secret whose ownership
// the field clock arbitrates; UpdatedAt is its last-writer timestamp.
type SNMPConfig struct {
	Community      string    `json:"community,omitempty" mapstructure:"community"`
	Port           int       `json:"port,omitempty" mapstructure:"port"`
	TimeoutSeconds int       `json:"timeout_s,omitempty" mapstructure:"timeout_s"`
	Retries        int       `json:"retries,omitempty" mapstructure:"retries"`
	UpdatedAt      time.Time `json:"updated_at,omitempty" mapstructure:"updated_at"`
}

// PJLinkConfig is the PJLink field-group. Password is timestamp-arbitrated
// like SNMPConfig.Community.
type PJLinkConfig struct {
	Password       string    `json:"password,omitempty" mapstructure:"password"`
	Port           int       `json:"port,omitempty" mapstructure:"port"`
	TimeoutSeconds int       `json:"timeout_s,omitempty" mapstructure:"timeout_s"`
	UpdatedAt      time.Time `json:"updated_at,omitempty" mapstructure:"updated_at"`
}

// Stamp returns the field-group's last-writer timestamp.
func (c SNMPConfig) Stamp() time.Time { return c.UpdatedAt }

// Stamp returns the field-group's last-writer timestamp.
func (c PJLinkConfig) Stamp() time.Time { return c.UpdatedAt }

// ScheduleRule is one expected-on window. Start and End are "HH:MM" in the
// schedule's timezone; a Start later than End crosses midnight.
type ScheduleRule struct {
	Days  []string `json:"days" mapstructure:"days"`
	Start string   `json:"start" mapstructure:"start"`
	End   string   `json:"end" mapstructure:"end"`
}

// Schedule groups the expected-on windows with their timezone.
type Schedule struct {
	Timezone string         `json:"timezone,omitempty" mapstructure:"timezone"`
	Rules    []ScheduleRule `json:"rules,omitempty" mapstructure:"rules"`
}

// Expectations is the per-device policy block: when the device is supposed to
// be on, and how long an offline streak must last before it counts as a fault.
type Expectations struct {
	AlwaysOn          bool     `json:"always_on,omitempty" mapstructure:"always_on"`
	AlertAfterSeconds int      `json:"alert_after_s,omitempty" mapstructure:"alert_after_s"`
	Schedule          Schedule `json:"schedule,omitempty" mapstructure:"schedule"`
}

// DeviceDescriptor is the full configuration of one monitored device. It is
// owned by the config-sync protocol and treated as immutable during a probe
// cycle. Address is the natural key within a site; for zigbee devices it uses
// the "zigbee:<friendly_name>" form instead of an IP.
type DeviceDescriptor struct {
	Address      string       `json:"ip" mapstructure:"ip"`
	Name         string       `json:"name,omitempty" mapstructure:"name"`
	Building     string       `json:"building,omitempty" mapstructure:"building"`
	Floor        string       `json:"floor,omitempty" mapstructure:"floor"`
	Room         string       `json:"room,omitempty" mapstructure:"room"`
	DeviceType   string       `json:"type,omitempty" mapstructure:"type"`
	Driver       string       `json:"driver,omitempty" mapstructure:"driver"`
	Ping         PingConfig   `json:"ping,omitempty" mapstructure:"ping"`
	SNMP         SNMPConfig   `json:"snmp,omitempty" mapstructure:"snmp"`
	PJLink       PJLinkConfig `json:"pjlink,omitempty" mapstructure:"pjlink"`
	Expectations Expectations `json:"expectations,omitempty" mapstructure:"expectations"`
}

// DriverName returns the declared driver, defaulting to ping.
func (d *DeviceDescriptor) DriverName() string {
	if d.Driver == "" {
		return DriverPing
	}
	return d.Driver
}
