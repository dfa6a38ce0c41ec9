package central

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/roomoperable/fleetpulse/internal/event"
	"github.com/roomoperable/fleetpulse/internal/fieldclock"
	"github.com/roomoperable/fleetpulse/internal/fingerprint"
	"github.com/roomoperable/fleetpulse/internal/server"
	"github.com/roomoperable/fleetpulse/pkg/models"
	"go.uber.org/zap"
)

// siteTokenHeader authenticates agent report requests.
const siteTokenHeader = "X-Site-Token"

// Conflict reason returned when a config push loses the field-clock race.
const reasonRegistryNewer = "registry_version_newer"

// Service exposes the registry over HTTP.
type Service struct {
	store     *Store
	lifecycle *Lifecycle
	metrics   *Metrics
	logger    *zap.Logger
}

// NewService wires the registry service. Alert counters follow the bus so
// they stay correct no matter which path opens or closes an alert.
func NewService(st *Store, lc *Lifecycle, bus *event.Bus, m *Metrics, logger *zap.Logger) *Service {
	s := &Service{
		store:     st,
		lifecycle: lc,
		metrics:   m,
		logger:    logger.Named("central"),
	}
	bus.Subscribe(event.TopicAlertOpened, func(ctx context.Context, e event.Event) {
		m.AlertsOpened.Inc()
	})
	bus.Subscribe(event.TopicAlertClosed, func(ctx context.Context, e event.Event) {
		m.AlertsClosed.Inc()
	})
	return s
}

// RegisterRoutes mounts the registry API on mux.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/ingest", s.handleIngest)
	mux.HandleFunc("GET /api/v1/config/{token}", s.handleConfigPull)
	mux.HandleFunc("PATCH /api/v1/config/{token}/devices/{address}", s.handleConfigPush)

	mux.HandleFunc("GET /api/v1/sites", s.handleListSites)
	mux.HandleFunc("POST /api/v1/sites", s.handleCreateSite)
	mux.HandleFunc("POST /api/v1/sites/{id}/token", s.handleRenewToken)
	mux.HandleFunc("PATCH /api/v1/sites/{id}", s.handleUpdateSite)
	mux.HandleFunc("GET /api/v1/sites/{id}/devices", s.handleListDevices)
	mux.HandleFunc("PUT /api/v1/sites/{id}/devices/{address}", s.handleSaveDevice)
	mux.HandleFunc("DELETE /api/v1/sites/{id}/devices/{address}", s.handleDeleteDevice)
	mux.HandleFunc("GET /api/v1/sites/{id}/alerts", s.handleListAlerts)

	mux.HandleFunc("GET /api/v1/devices/{id}/events", s.handleDeviceEvents)
	mux.HandleFunc("GET /api/v1/devices/{id}/uptime", s.handleDeviceUptime)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// authSite resolves the site for a token, writing a problem response and
// returning nil when the token does not match any site.
func (s *Service) authSite(w http.ResponseWriter, r *http.Request, token string) *Site {
	if token == "" {
		s.metrics.AuthFailures.Inc()
		server.Unauthorized(w, "missing site token", r.URL.Path)
		return nil
	}
	site, err := s.store.SiteByToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, ErrSiteNotFound) {
			s.metrics.AuthFailures.Inc()
			server.Unauthorized(w, "unknown site token", r.URL.Path)
			return nil
		}
		s.logger.Error("site lookup failed", zap.Error(err))
		server.InternalError(w, "site lookup failed", r.URL.Path)
		return nil
	}
	return site
}

// handleIngest accepts one agent report cycle. Each device is processed in
// its own transaction; a persistence failure aborts the request without
// touching the remaining devices.
func (s *Service) handleIngest(w http.ResponseWriter, r *http.Request) {
	site := s.authSite(w, r, r.Header.Get(siteTokenHeader))
	if site == nil {
		return
	}

	var payload models.ReportPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		server.BadRequest(w, "invalid report payload: "+err.Error(), r.URL.Path)
		return
	}

	s.metrics.IngestCycles.Inc()

	upserted := 0
	for _, rd := range payload.Devices {
		if rd.Address == "" {
			continue
		}
		if _, err := s.lifecycle.RecordCycle(r.Context(), site, rd); err != nil {
			s.logger.Error("record cycle failed",
				zap.String("site", site.Name),
				zap.String("ip", rd.Address),
				zap.Error(err))
			server.InternalError(w, "persistence failure for "+rd.Address, r.URL.Path)
			return
		}
		upserted++
		s.metrics.DevicesSeen.Inc()
		s.metrics.EventsWritten.Inc()
	}

	s.logger.Debug("report ingested",
		zap.String("site", site.Name),
		zap.Int("devices", upserted))
	writeJSON(w, http.StatusOK, models.ReportResponse{OK: true, Upserted: upserted})
}

// buildConfigDocument assembles the registry-authoritative document for a
// site and stamps it with its fingerprint.
func (s *Service) buildConfigDocument(ctx context.Context, site *Site) (models.ConfigDocument, error) {
	descs, err := s.store.Descriptors(ctx, site.ID)
	if err != nil {
		return models.ConfigDocument{}, err
	}
	doc := models.ConfigDocument{
		SiteName:       site.Name,
		Timezone:       site.Timezone,
		DoubtAfterDays: site.DoubtAfterDays,
		Reporting: models.Reporting{
			OKIntervalSeconds: site.OKIntervalSeconds,
			KOIntervalSeconds: site.KOIntervalSeconds,
		},
		Devices: descs,
	}
	doc.Fingerprint = fingerprint.Compute(doc)
	return doc, nil
}

func (s *Service) handleConfigPull(w http.ResponseWriter, r *http.Request) {
	site := s.authSite(w, r, r.PathValue("token"))
	if site == nil {
		return
	}
	doc, err := s.buildConfigDocument(r.Context(), site)
	if err != nil {
		s.logger.Error("build config document failed", zap.Error(err))
		server.InternalError(w, "config assembly failed", r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// handleConfigPush applies secret field-groups pushed by an agent. Each
// group is accepted only if its stamp is strictly newer than the one on
// record; a losing push gets a named conflict, not an error.
func (s *Service) handleConfigPush(w http.ResponseWriter, r *http.Request) {
	site := s.authSite(w, r, r.PathValue("token"))
	if site == nil {
		return
	}
	address := r.PathValue("address")

	device, err := s.store.DeviceByAddress(r.Context(), site.ID, address)
	if err != nil {
		if errors.Is(err, ErrDeviceNotFound) {
			server.NotFound(w, "no device "+address, r.URL.Path)
			return
		}
		s.logger.Error("device lookup failed", zap.Error(err))
		server.InternalError(w, "device lookup failed", r.URL.Path)
		return
	}

	var push models.ConfigPush
	if err := json.NewDecoder(r.Body).Decode(&push); err != nil {
		server.BadRequest(w, "invalid config push: "+err.Error(), r.URL.Path)
		return
	}
	if push.SNMP == nil && push.PJLink == nil {
		server.BadRequest(w, "config push carries no field-group", r.URL.Path)
		return
	}

	desc := device.Config
	desc.Address = device.Address
	result := models.ConfigPushResult{OK: true}
	changed := false

	if push.SNMP != nil {
		incoming := push.SNMP.UpdatedAt
		if incoming.IsZero() {
			incoming = push.UpdatedAt
		}
		if fieldclock.Newer(desc.SNMP.UpdatedAt, incoming) {
			next := *push.SNMP
			next.UpdatedAt = incoming
			desc.SNMP = next
			changed = true
		} else {
			result.OK = false
			result.Reason = reasonRegistryNewer
			result.RegistryUpdatedAt = desc.SNMP.UpdatedAt
			result.AgentUpdatedAt = incoming
		}
	}

	if push.PJLink != nil {
		incoming := push.PJLink.UpdatedAt
		if incoming.IsZero() {
			incoming = push.UpdatedAt
		}
		if fieldclock.Newer(desc.PJLink.UpdatedAt, incoming) {
			next := *push.PJLink
			next.UpdatedAt = incoming
			desc.PJLink = next
			changed = true
		} else {
			result.OK = false
			result.Reason = reasonRegistryNewer
			result.RegistryUpdatedAt = desc.PJLink.UpdatedAt
			result.AgentUpdatedAt = incoming
		}
	}

	if changed {
		if _, err := s.store.SaveDescriptor(r.Context(), site.ID, desc); err != nil {
			s.logger.Error("save pushed config failed", zap.Error(err))
			server.InternalError(w, "persist failed", r.URL.Path)
			return
		}
	}
	if !result.OK {
		s.logger.Info("config push rejected",
			zap.String("site", site.Name),
			zap.String("ip", address),
			zap.String("reason", result.Reason))
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Service) handleListSites(w http.ResponseWriter, r *http.Request) {
	sites, err := s.store.ListSites(r.Context())
	if err != nil {
		s.logger.Error("list sites failed", zap.Error(err))
		server.InternalError(w, "list sites failed", r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, sites)
}

func (s *Service) handleCreateSite(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		server.BadRequest(w, "site name required", r.URL.Path)
		return
	}
	site, err := s.store.CreateSite(r.Context(), req.Name)
	if err != nil {
		s.logger.Error("create site failed", zap.Error(err))
		server.InternalError(w, "create site failed", r.URL.Path)
		return
	}
	s.logger.Info("site created", zap.String("name", site.Name))
	writeJSON(w, http.StatusCreated, site)
}

// siteFromPath parses the {id} path value and loads the site, writing a
// problem response and returning nil on failure.
func (s *Service) siteFromPath(w http.ResponseWriter, r *http.Request) *Site {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		server.BadRequest(w, "invalid site id", r.URL.Path)
		return nil
	}
	site, err := s.store.SiteByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrSiteNotFound) {
			server.NotFound(w, "no such site", r.URL.Path)
			return nil
		}
		s.logger.Error("site lookup failed", zap.Error(err))
		server.InternalError(w, "site lookup failed", r.URL.Path)
		return nil
	}
	return site
}

func (s *Service) handleRenewToken(w http.ResponseWriter, r *http.Request) {
	site := s.siteFromPath(w, r)
	if site == nil {
		return
	}
	token, err := s.store.RenewSiteToken(r.Context(), site.ID)
	if err != nil {
		s.logger.Error("renew token failed", zap.Error(err))
		server.InternalError(w, "renew token failed", r.URL.Path)
		return
	}
	s.logger.Info("site token renewed", zap.String("name", site.Name))
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Service) handleUpdateSite(w http.ResponseWriter, r *http.Request) {
	site := s.siteFromPath(w, r)
	if site == nil {
		return
	}
	var set SiteSettings
	if err := json.NewDecoder(r.Body).Decode(&set); err != nil {
		server.BadRequest(w, "invalid site settings: "+err.Error(), r.URL.Path)
		return
	}
	updated, err := s.store.UpdateSiteSettings(r.Context(), site.ID, set)
	if err != nil {
		s.logger.Error("update site failed", zap.Error(err))
		server.InternalError(w, "update site failed", r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Service) handleListDevices(w http.ResponseWriter, r *http.Request) {
	site := s.siteFromPath(w, r)
	if site == nil {
		return
	}
	devices, err := s.store.Devices(r.Context(), site.ID)
	if err != nil {
		s.logger.Error("list devices failed", zap.Error(err))
		server.InternalError(w, "list devices failed", r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, devices)
}

// handleSaveDevice creates or replaces a device descriptor. This is the
// admin path that grows the topology; ingest only fills in rows for devices
// it has not seen.
func (s *Service) handleSaveDevice(w http.ResponseWriter, r *http.Request) {
	site := s.siteFromPath(w, r)
	if site == nil {
		return
	}
	var desc models.DeviceDescriptor
	if err := json.NewDecoder(r.Body).Decode(&desc); err != nil {
		server.BadRequest(w, "invalid device descriptor: "+err.Error(), r.URL.Path)
		return
	}
	desc.Address = r.PathValue("address")
	if desc.Address == "" {
		server.BadRequest(w, "device address required", r.URL.Path)
		return
	}
	id, err := s.store.SaveDescriptor(r.Context(), site.ID, desc)
	if err != nil {
		s.logger.Error("save device failed", zap.Error(err))
		server.InternalError(w, "save device failed", r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "ip": desc.Address})
}

func (s *Service) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	site := s.siteFromPath(w, r)
	if site == nil {
		return
	}
	address := r.PathValue("address")
	if err := s.store.DeleteDevice(r.Context(), site.ID, address); err != nil {
		if errors.Is(err, ErrDeviceNotFound) {
			server.NotFound(w, "no device "+address, r.URL.Path)
			return
		}
		s.logger.Error("delete device failed", zap.Error(err))
		server.InternalError(w, "delete device failed", r.URL.Path)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	site := s.siteFromPath(w, r)
	if site == nil {
		return
	}
	includeClosed := r.URL.Query().Get("include_closed") == "true"
	alerts, err := s.store.Alerts(r.Context(), site.ID, includeClosed)
	if err != nil {
		s.logger.Error("list alerts failed", zap.Error(err))
		server.InternalError(w, "list alerts failed", r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

// deviceFromPath parses the {id} path value and loads the device.
func (s *Service) deviceFromPath(w http.ResponseWriter, r *http.Request) *Device {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		server.BadRequest(w, "invalid device id", r.URL.Path)
		return nil
	}
	device, err := s.store.DeviceByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrDeviceNotFound) {
			server.NotFound(w, "no such device", r.URL.Path)
			return nil
		}
		s.logger.Error("device lookup failed", zap.Error(err))
		server.InternalError(w, "device lookup failed", r.URL.Path)
		return nil
	}
	return device
}

func (s *Service) handleDeviceEvents(w http.ResponseWriter, r *http.Request) {
	device := s.deviceFromPath(w, r)
	if device == nil {
		return
	}
	var since time.Time
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			server.BadRequest(w, "since must be RFC3339", r.URL.Path)
			return
		}
		since = t
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	events, err := s.store.EventsSince(r.Context(), device.ID, since, limit)
	if err != nil {
		s.logger.Error("list events failed", zap.Error(err))
		server.InternalError(w, "list events failed", r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Service) handleDeviceUptime(w http.ResponseWriter, r *http.Request) {
	device := s.deviceFromPath(w, r)
	if device == nil {
		return
	}
	since := time.Now().Add(-24 * time.Hour)
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			server.BadRequest(w, "since must be RFC3339", r.URL.Path)
			return
		}
		since = t
	}
	uptime, samples, err := s.store.Uptime(r.Context(), device.ID, since)
	if err != nil {
		s.logger.Error("uptime query failed", zap.Error(err))
		server.InternalError(w, "uptime query failed", r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": device.ID,
		"since":     since.UTC().Format(time.RFC3339),
		"samples":   samples,
		"uptime":    uptime,
	})
}
