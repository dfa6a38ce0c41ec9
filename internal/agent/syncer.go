package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/roomoperable/fleetpulse/internal/fieldclock"
	"github.com/roomoperable/fleetpulse/pkg/models"
	"go.uber.org/zap"
)

// Syncer reconciles the agent's local document with the central registry.
// Topology and policy are registry-authoritative; secret field-groups are
// timestamp-authoritative in both directions.
type Syncer struct {
	client  *http.Client
	baseURL string
	token   string
	local   *LocalStore
	logger  *zap.Logger
}

// NewSyncer creates a Syncer persisting through local.
func NewSyncer(client *http.Client, baseURL, token string, local *LocalStore, logger *zap.Logger) *Syncer {
	return &Syncer{
		client:  client,
		baseURL: baseURL,
		token:   token,
		local:   local,
		logger:  logger.Named("sync"),
	}
}

// SyncOnce performs one pull/merge/push round. Pull failures abort the
// round; push conflicts do not, they are the protocol's expected outcome for
// a lost edit race.
func (s *Syncer) SyncOnce(ctx context.Context) error {
	remote, err := s.pull(ctx)
	if err != nil {
		return err
	}

	local := s.local.Document()
	if remote.Fingerprint != local.Fingerprint {
		merged := mergeDocuments(local, remote)
		if err := s.local.Replace(merged); err != nil {
			return err
		}
		s.logger.Info("config applied",
			zap.String("fingerprint", remote.Fingerprint),
			zap.Int("devices", len(merged.Devices)))
	}

	s.pushNewer(ctx, local, remote)
	return nil
}

// pull fetches the registry document for this site.
func (s *Syncer) pull(ctx context.Context) (models.ConfigDocument, error) {
	var doc models.ConfigDocument

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		s.baseURL+"/api/v1/config/"+url.PathEscape(s.token), nil)
	if err != nil {
		return doc, fmt.Errorf("build config request: %w", err)
	}

	res, err := s.client.Do(req)
	if err != nil {
		return doc, fmt.Errorf("pull config: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusUnauthorized {
		return doc, ErrUnauthorized
	}
	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return doc, fmt.Errorf("pull config: status %d: %s", res.StatusCode, body)
	}
	if err := json.NewDecoder(res.Body).Decode(&doc); err != nil {
		return doc, fmt.Errorf("decode config: %w", err)
	}
	return doc, nil
}

// mergeDocuments takes the registry document wholesale, then re-applies any
// local secret field-group whose stamp beats the registry's.
func mergeDocuments(local, remote models.ConfigDocument) models.ConfigDocument {
	byAddress := make(map[string]models.DeviceDescriptor, len(local.Devices))
	for _, d := range local.Devices {
		byAddress[d.Address] = d
	}

	merged := remote
	merged.Devices = append([]models.DeviceDescriptor(nil), remote.Devices...)
	for i := range merged.Devices {
		ld, ok := byAddress[merged.Devices[i].Address]
		if !ok {
			continue
		}
		merged.Devices[i].SNMP = fieldclock.Merge(merged.Devices[i].SNMP, ld.SNMP)
		merged.Devices[i].PJLink = fieldclock.Merge(merged.Devices[i].PJLink, ld.PJLink)
	}
	return merged
}

// pushNewer sends every local field-group whose stamp is strictly newer than
// the registry's. A rejected push means the registry raced ahead; the next
// pull will bring its value down.
func (s *Syncer) pushNewer(ctx context.Context, local, remote models.ConfigDocument) {
	remoteByAddress := make(map[string]models.DeviceDescriptor, len(remote.Devices))
	for _, d := range remote.Devices {
		remoteByAddress[d.Address] = d
	}

	for _, ld := range local.Devices {
		rd, ok := remoteByAddress[ld.Address]
		if !ok {
			continue
		}

		push := models.ConfigPush{}
		if fieldclock.Newer(rd.SNMP.UpdatedAt, ld.SNMP.UpdatedAt) {
			snmp := ld.SNMP
			push.SNMP = &snmp
			push.UpdatedAt = ld.SNMP.UpdatedAt
		}
		if fieldclock.Newer(rd.PJLink.UpdatedAt, ld.PJLink.UpdatedAt) {
			pjlink := ld.PJLink
			push.PJLink = &pjlink
			if ld.PJLink.UpdatedAt.After(push.UpdatedAt) {
				push.UpdatedAt = ld.PJLink.UpdatedAt
			}
		}
		if push.SNMP == nil && push.PJLink == nil {
			continue
		}

		result, err := s.pushDevice(ctx, ld.Address, push)
		if err != nil {
			s.logger.Warn("config push failed",
				zap.String("ip", ld.Address), zap.Error(err))
			continue
		}
		if !result.OK {
			s.logger.Info("config push rejected",
				zap.String("ip", ld.Address),
				zap.String("reason", result.Reason),
				zap.Time("registry_updated_at", result.RegistryUpdatedAt),
				zap.Time("agent_updated_at", result.AgentUpdatedAt))
		}
	}
}

func (s *Syncer) pushDevice(ctx context.Context, address string, push models.ConfigPush) (models.ConfigPushResult, error) {
	var result models.ConfigPushResult

	raw, err := json.Marshal(push)
	if err != nil {
		return result, fmt.Errorf("encode push: %w", err)
	}

	endpoint := s.baseURL + "/api/v1/config/" + url.PathEscape(s.token) +
		"/devices/" + url.PathEscape(address)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint,
		bytes.NewReader(raw))
	if err != nil {
		return result, fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := s.client.Do(req)
	if err != nil {
		return result, fmt.Errorf("push config: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return result, fmt.Errorf("push config: status %d: %s", res.StatusCode, body)
	}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return result, fmt.Errorf("decode push response: %w", err)
	}
	return result, nil
}
