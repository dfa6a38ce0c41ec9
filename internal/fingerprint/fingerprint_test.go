package fingerprint

import (
	"testing"
	"time"

	"github.com/roomoperable/fleetpulse/pkg/models"
)

func sampleDoc() models.ConfigDocument {
	return models.ConfigDocument{
		SiteName:       "hq",
		Timezone:       "Europe/Paris",
		DoubtAfterDays: 2,
		Reporting:      models.Reporting{OKIntervalSeconds: 300, KOIntervalSeconds: 60},
		Devices: []models.DeviceDescriptor{
			{
				Address: "10.0.0.2",
				Name:    "proj-a",
				Driver:  models.DriverPJLink,
				PJLink:  models.PJLinkConfig{Password: "s3cret", Port: 4352},
			},
			{
				Address: "10.0.0.1",
				Name:    "switch-a",
				Driver:  models.DriverSNMP,
				SNMP:    models.SNMPConfig{Community: "public", Port: 161},
			},
		},
	}
}

func TestComputeStableUnderDeviceReordering(t *testing.T) {
	a := sampleDoc()
	b := sampleDoc()
	b.Devices[0], b.Devices[1] = b.Devices[1], b.Devices[0]

	if Compute(a) != Compute(b) {
		t.Error("fingerprint differs after reordering devices")
	}
}

func TestComputeChangesOnConfigChange(t *testing.T) {
	base := Compute(sampleDoc())

	changed := sampleDoc()
	changed.Devices[1].SNMP.Community = "private"
	if Compute(changed) == base {
		t.Error("fingerprint unchanged after community change")
	}

	changed = sampleDoc()
	changed.Reporting.KOIntervalSeconds = 30
	if Compute(changed) == base {
		t.Error("fingerprint unchanged after cadence change")
	}

	changed = sampleDoc()
	changed.Devices[0].Room = "B-204"
	if Compute(changed) == base {
		t.Error("fingerprint unchanged after topology change")
	}
}

func TestComputeIgnoresVolatileFields(t *testing.T) {
	base := Compute(sampleDoc())

	// Field-group timestamps move on every secret push; drift detection must
	// not care.
	stamped := sampleDoc()
	stamped.Devices[0].PJLink.UpdatedAt = time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	stamped.Devices[1].SNMP.UpdatedAt = time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	if Compute(stamped) != base {
		t.Error("fingerprint changed when only field-group timestamps changed")
	}

	// The document's own fingerprint field is not part of the hash.
	fp := sampleDoc()
	fp.Fingerprint = "whatever"
	if Compute(fp) != base {
		t.Error("fingerprint changed when embedded fingerprint changed")
	}
}
