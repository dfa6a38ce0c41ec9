package probe

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/roomoperable/fleetpulse/pkg/models"
)

// maxLineBytes bounds a single PJLink response line. The protocol speaks
// short ASCII lines; anything longer is a misbehaving peer.
const maxLineBytes = 512

// pjlinkPowerLabels maps the POWR numeric codes to their meanings.
var pjlinkPowerLabels = map[int]string{
	0: "off",
	1: "on",
	2: "cooling",
	3: "warmup",
}

// PJLinkDriver probes projectors over the PJLink TCP protocol. A completed
// command exchange means online regardless of the reported power state:
// protocol-level reachability, not lamp power, is the liveness signal.
type PJLinkDriver struct{}

// NewPJLinkDriver creates a PJLink driver.
func NewPJLinkDriver() *PJLinkDriver {
	return &PJLinkDriver{}
}

// Probe connects, authenticates if the greeting demands it, and queries the
// power status. Every read and write is bounded by the configured timeout.
func (d *PJLinkDriver) Probe(ctx context.Context, dev *models.DeviceDescriptor) (models.Observation, error) {
	if dev.Address == "" {
		return models.Observation{Status: models.StatusUnknown, Detail: "missing_address"}, nil
	}

	port := dev.PJLink.Port
	if port <= 0 {
		port = 4352
	}
	timeout := time.Duration(dev.PJLink.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	metrics := map[string]any{
		"pjlink_ok":   false,
		"pjlink_port": port,
	}

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(dev.Address, strconv.Itoa(port)))
	if err != nil {
		return models.Observation{
			Status:  models.StatusOffline,
			Detail:  truncate(fmt.Sprintf("pjlink_connect: %v", err)),
			Metrics: metrics,
		}, nil
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(timeout))

	authPrefix, err := handshake(conn, dev.PJLink.Password)
	if err != nil {
		metrics["pjlink_error"] = err.Error()
		return models.Observation{
			Status:  models.StatusOffline,
			Detail:  truncate(fmt.Sprintf("pjlink_handshake: %v", err)),
			Metrics: metrics,
		}, nil
	}
	if authPrefix != "" {
		metrics["pjlink_auth"] = "md5"
	} else {
		metrics["pjlink_auth"] = "none"
	}

	// Auth and command exchange each get the full timeout budget.
	conn.SetDeadline(time.Now().Add(timeout))
	resp, err := command(conn, authPrefix, "%1POWR ?")
	if err != nil {
		metrics["pjlink_error"] = err.Error()
		return models.Observation{
			Status:  models.StatusOffline,
			Detail:  truncate(fmt.Sprintf("pjlink_query: %v", err)),
			Metrics: metrics,
		}, nil
	}

	metrics["pjlink_ok"] = true
	metrics["pjlink_raw_powr"] = resp

	if code, perr := parsePowerResponse(resp); perr != nil {
		metrics["pjlink_error"] = perr.Error()
	} else {
		metrics["pjlink_power"] = code
		label, ok := pjlinkPowerLabels[code]
		if !ok {
			label = "unknown"
		}
		metrics["pjlink_power_label"] = label
	}

	return models.Observation{Status: models.StatusOnline, Metrics: metrics}, nil
}

// handshake reads the greeting and returns the auth prefix to apply to every
// subsequent command: the md5(nonce+password) hex digest when the projector
// requires authentication, "" when it does not.
func handshake(conn net.Conn, password string) (string, error) {
	hello, err := readLine(conn)
	if err != nil {
		return "", fmt.Errorf("read greeting: %w", err)
	}
	if !strings.HasPrefix(hello, "PJLINK") {
		return "", fmt.Errorf("invalid greeting %q", hello)
	}

	parts := strings.Fields(hello)
	if len(parts) < 2 {
		return "", fmt.Errorf("invalid greeting %q", hello)
	}

	switch parts[1] {
	case "0":
		return "", nil
	case "1":
		if len(parts) < 3 {
			return "", fmt.Errorf("auth required but no nonce in %q", hello)
		}
		if password == "" {
			return "", fmt.Errorf("auth required but password missing")
		}
		sum := md5.Sum([]byte(parts[2] + password))
		return hex.EncodeToString(sum[:]), nil
	default:
		return "", fmt.Errorf("unsupported auth mode %q", hello)
	}
}

// command sends one PJLink command, auth-prefixed if needed, and returns the
// response line.
func command(conn net.Conn, authPrefix, cmd string) (string, error) {
	line := authPrefix + cmd + "\r"
	if _, err := conn.Write([]byte(line)); err != nil {
		return "", fmt.Errorf("write %q: %w", cmd, err)
	}
	resp, err := readLine(conn)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	return resp, nil
}

// readLine accumulates bytes one at a time until the \r terminator or the
// byte budget is exhausted. Single-byte reads keep partial lines from
// stalling past the connection deadline.
func readLine(conn net.Conn) (string, error) {
	buf := make([]byte, 0, 64)
	one := make([]byte, 1)
	for len(buf) < maxLineBytes {
		n, err := conn.Read(one)
		if n > 0 {
			if one[0] == '\r' {
				return strings.TrimSpace(string(buf)), nil
			}
			buf = append(buf, one[0])
		}
		if err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("line exceeds %d bytes", maxLineBytes)
}

// parsePowerResponse extracts the numeric code from a "%1POWR=<n>" response.
// ERR responses and malformed lines return an error; the caller still counts
// the device as online because the protocol did answer.
func parsePowerResponse(resp string) (int, error) {
	if resp == "" {
		return 0, fmt.Errorf("empty response")
	}
	if strings.Contains(resp, "ERR") {
		return 0, fmt.Errorf("projector error %q", resp)
	}
	_, value, found := strings.Cut(resp, "=")
	if !found {
		return 0, fmt.Errorf("malformed response %q", resp)
	}
	code, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("malformed power code %q", resp)
	}
	return code, nil
}
