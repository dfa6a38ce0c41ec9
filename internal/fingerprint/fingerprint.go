// Package fingerprint computes the content hash agents and the registry use
// for cheap configuration drift detection. Both sides hash the same canonical
// document; equal fingerprints mean no pull merge is needed.
package fingerprint

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/roomoperable/fleetpulse/pkg/models"
)

// canonicalDevice is the per-device slice of the canonical document. Volatile
// runtime fields (status, verdict, last_seen, metrics) are deliberately
// absent: they change every cycle and must not perturb the fingerprint.
// Field-group timestamps are likewise excluded so that a push that merely
// confirms an identical secret does not look like drift.
type canonicalDevice struct {
	Address    string              `json:"ip"`
	Name       string              `json:"name"`
	Building   string              `json:"building"`
	Floor      string              `json:"floor"`
	Room       string              `json:"room"`
	DeviceType string              `json:"type"`
	Driver     string              `json:"driver"`
	Ping       models.PingConfig   `json:"ping"`
	SNMP       canonicalSNMP       `json:"snmp"`
	PJLink     canonicalPJLink     `json:"pjlink"`
	Expect     models.Expectations `json:"expectations"`
}

type canonicalSNMP struct {
	Community      string `json:"community"`
	Port           int    `json:"port"`
	TimeoutSeconds int    `json:"timeout_s"`
	Retries        int    `json:"retries"`
}

type canonicalPJLink struct {
	Password       string `json:"password"`
	Port           int    `json:"port"`
	TimeoutSeconds int    `json:"timeout_s"`
}

type canonicalDocument struct {
	SiteName       string            `json:"site_name"`
	Timezone       string            `json:"timezone"`
	DoubtAfterDays int               `json:"doubt_after_days"`
	Reporting      models.Reporting  `json:"reporting"`
	Devices        []canonicalDevice `json:"devices"`
}

// Compute hashes the non-volatile configuration of a site. Devices are sorted
// by address so the result is independent of input ordering, and struct-based
// JSON encoding fixes the key order. MD5 is used as a drift detector only,
// never as a security boundary.
func Compute(doc models.ConfigDocument) string {
	canon := canonicalDocument{
		SiteName:       doc.SiteName,
		Timezone:       doc.Timezone,
		DoubtAfterDays: doc.DoubtAfterDays,
		Reporting:      doc.Reporting,
		Devices:        make([]canonicalDevice, 0, len(doc.Devices)),
	}

	for _, d := range doc.Devices {
		canon.Devices = append(canon.Devices, canonicalDevice{
			Address:    d.Address,
			Name:       d.Name,
			Building:   d.Building,
			Floor:      d.Floor,
			Room:       d.Room,
			DeviceType: d.DeviceType,
			Driver:     d.DriverName(),
			Ping:       d.Ping,
			SNMP: canonicalSNMP{
				Community:      d.SNMP.Community,
				Port:           d.SNMP.Port,
				TimeoutSeconds: d.SNMP.TimeoutSeconds,
				Retries:        d.SNMP.Retries,
			},
			PJLink: canonicalPJLink{
				Password:       d.PJLink.Password,
				Port:           d.PJLink.Port,
				TimeoutSeconds: d.PJLink.TimeoutSeconds,
			},
			Expect: d.Expectations,
		})
	}
	sort.Slice(canon.Devices, func(i, j int) bool {
		return canon.Devices[i].Address < canon.Devices[j].Address
	})

	raw, err := json.Marshal(canon)
	if err != nil {
		// Unreachable for a plain struct tree; the value still compares
		// unequal to every real fingerprint.
		return fmt.Sprintf("marshal-error:%v", err)
	}
	sum := md5.Sum(raw)
	return hex.EncodeToString(sum[:])
}
