package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/roomoperable/fleetpulse/pkg/models"
)

// Well-known OIDs queried for liveness. sysUpTime is in hundredths of a
// second, the protocol's native TimeTicks unit; it is surfaced unconverted.
const (
	oidSysDescr  = ".1.3.6.1.2.1.1.1.0"
	oidSysUpTime = ".1.3.6.1.2.1.1.3.0"
)

// SNMPDriver probes devices with an SNMPv2c GET on sysDescr and sysUpTime.
// Any transport or protocol error classifies as offline: the agent did not
// answer, whatever the reason.
type SNMPDriver struct{}

// NewSNMPDriver creates an SNMP driver.
func NewSNMPDriver() *SNMPDriver {
	return &SNMPDriver{}
}

// Probe issues the GET and maps the result onto an Observation.
func (d *SNMPDriver) Probe(ctx context.Context, dev *models.DeviceDescriptor) (models.Observation, error) {
	if dev.Address == "" {
		return models.Observation{Status: models.StatusUnknown, Detail: "missing_address"}, nil
	}

	community := dev.SNMP.Community
	if community == "" {
		community = "public"
	}
	port := dev.SNMP.Port
	if port <= 0 {
		port = 161
	}
	timeout := time.Duration(dev.SNMP.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = time.Second
	}
	retries := dev.SNMP.Retries
	if retries < 0 {
		retries = 0
	}

	metrics := map[string]any{
		"snmp_port":    port,
		"snmp_retries": retries,
	}

	g := &gosnmp.GoSNMP{
		Context:   ctx,
		Target:    dev.Address,
		Port:      uint16(port),
		Community: community,
		Version:   gosnmp.Version2c,
		Timeout:   timeout,
		Retries:   retries,
	}

	if err := g.Connect(); err != nil {
		return models.Observation{
			Status:  models.StatusOffline,
			Detail:  truncate(fmt.Sprintf("snmp_connect: %v", err)),
			Metrics: metrics,
		}, nil
	}
	defer g.Conn.Close()

	pkt, err := g.Get([]string{oidSysDescr, oidSysUpTime})
	if err != nil {
		return models.Observation{
			Status:  models.StatusOffline,
			Detail:  truncate(fmt.Sprintf("snmp_get: %v", err)),
			Metrics: metrics,
		}, nil
	}
	if pkt.Error != gosnmp.NoError {
		return models.Observation{
			Status:  models.StatusOffline,
			Detail:  fmt.Sprintf("snmp_error_status: %v at %d", pkt.Error, pkt.ErrorIndex),
			Metrics: metrics,
		}, nil
	}

	for _, vb := range pkt.Variables {
		switch vb.Name {
		case oidSysDescr:
			if raw, ok := vb.Value.([]byte); ok {
				metrics["sys_descr"] = truncate(string(raw))
			}
		case oidSysUpTime:
			metrics["sys_uptime"] = gosnmp.ToBigInt(vb.Value).Int64()
		}
	}
	metrics["snmp_ok"] = true

	return models.Observation{Status: models.StatusOnline, Metrics: metrics}, nil
}
