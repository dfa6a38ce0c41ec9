package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/roomoperable/fleetpulse/pkg/models"
)

// siteTokenHeader carries the site secret on every request to the center.
const siteTokenHeader = "X-Site-Token"

// ErrUnauthorized is returned when the center rejects the site token.
var ErrUnauthorized = errors.New("site token rejected")

// Reporter sends one report per probe cycle to the central registry.
type Reporter struct {
	client  *http.Client
	baseURL string
	token   string
}

// NewReporter creates a Reporter. The client's timeout bounds every send.
func NewReporter(client *http.Client, baseURL, token string) *Reporter {
	return &Reporter{client: client, baseURL: baseURL, token: token}
}

// Send posts the payload to the ingest endpoint.
func (r *Reporter) Send(ctx context.Context, payload models.ReportPayload) (models.ReportResponse, error) {
	var resp models.ReportResponse

	raw, err := json.Marshal(payload)
	if err != nil {
		return resp, fmt.Errorf("encode report: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		r.baseURL+"/api/v1/ingest", bytes.NewReader(raw))
	if err != nil {
		return resp, fmt.Errorf("build report request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(siteTokenHeader, r.token)

	res, err := r.client.Do(req)
	if err != nil {
		return resp, fmt.Errorf("send report: %w", err)
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusUnauthorized:
		return resp, ErrUnauthorized
	case res.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return resp, fmt.Errorf("report rejected: status %d: %s", res.StatusCode, body)
	}

	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return resp, fmt.Errorf("decode report response: %w", err)
	}
	return resp, nil
}
