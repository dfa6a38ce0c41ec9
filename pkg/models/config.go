package models

import "time"

// Reporting is the site-wide polling cadence pair consumed by the adaptive
// scheduler.
type Reporting struct {
	OKIntervalSeconds int `json:"ok_interval_s" mapstructure:"ok_interval_s"`
	KOIntervalSeconds int `json:"ko_interval_s" mapstructure:"ko_interval_s"`
}

// ConfigDocument is the registry-authoritative configuration returned by a
// config pull. Fingerprint is a content hash over the canonical form of the
// document; agents compare it against their last-applied value and only
// materialize a merge when it differs.
type ConfigDocument struct {
	Fingerprint    string             `json:"config_fingerprint"`
	SiteName       string             `json:"site_name"`
	Timezone       string             `json:"timezone"`
	DoubtAfterDays int                `json:"doubt_after_days"`
	Reporting      Reporting          `json:"reporting"`
	Devices        []DeviceDescriptor `json:"devices"`
}

// ConfigPush is a per-device push of secret-bearing field-groups from an agent
// back to the registry. UpdatedAt is the agent-side edit timestamp; the
// registry accepts the push only if it is strictly newer than the timestamp it
// has on record for the device's driver configuration.
type ConfigPush struct {
	SNMP      *SNMPConfig   `json:"snmp,omitempty"`
	PJLink    *PJLinkConfig `json:"pjlink,omitempty"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// ConfigPushResult reports acceptance or a named conflict. A conflict is an
// expected outcome of concurrent edit, not an error.
type ConfigPushResult struct {
	OK                bool      `json:"ok"`
	Reason            string    `json:"reason,omitempty"`
	RegistryUpdatedAt time.Time `json:"registry_updated_at,omitempty"`
	AgentUpdatedAt    time.Time `json:"agent_updated_at,omitempty"`
}
