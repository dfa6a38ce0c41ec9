package models

// ReportDevice is one device row in an agent report. Metrics carry whatever
// the driver surfaced; the center stores them opaquely.
type ReportDevice struct {
	Address    string         `json:"ip"`
	Name       string         `json:"name,omitempty"`
	Building   string         `json:"building,omitempty"`
	Floor      string         `json:"floor,omitempty"`
	Room       string         `json:"room,omitempty"`
	DeviceType string         `json:"type,omitempty"`
	Driver     string         `json:"driver"`
	Status     Status         `json:"status"`
	Detail     string         `json:"detail,omitempty"`
	Metrics    map[string]any `json:"metrics,omitempty"`
	Verdict    Verdict        `json:"verdict,omitempty"`
}

// ReportPayload is the single request an agent sends per probe cycle.
// The site secret travels in the X-Site-Token header, not in the body.
type ReportPayload struct {
	SiteName string         `json:"site_name"`
	Devices  []ReportDevice `json:"devices"`
}

// ReportResponse acknowledges an ingested report.
type ReportResponse struct {
	OK       bool `json:"ok"`
	Upserted int  `json:"upserted"`
}
