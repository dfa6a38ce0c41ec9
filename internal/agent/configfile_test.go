package agent

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/roomoperable/fleetpulse/internal/testutil"
	"github.com/roomoperable/fleetpulse/pkg/models"
)

func TestLocalStoreMissingFileIsEmpty(t *testing.T) {
	ls := NewLocalStore(filepath.Join(t.TempDir(), "devices.json"))
	if err := ls.Load(); err != nil {
		t.Fatalf("Load() with missing file: %v", err)
	}
	doc := ls.Document()
	if len(doc.Devices) != 0 || doc.Fingerprint != "" {
		t.Errorf("expected empty document, got %+v", doc)
	}
}

func TestLocalStoreReplaceAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devices.json")
	ls := NewLocalStore(path)

	doc := models.ConfigDocument{
		Fingerprint: "abc123",
		SiteName:    "hq",
		Timezone:    "Europe/Paris",
		Reporting:   models.Reporting{OKIntervalSeconds: 300, KOIntervalSeconds: 60},
		Devices: []models.DeviceDescriptor{
			testutil.NewDescriptor(testutil.WithAddress("10.0.0.1")),
		},
	}
	if err := ls.Replace(doc); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("persisted file missing: %v", err)
	}

	reloaded := NewLocalStore(path)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	got := reloaded.Document()
	if got.Fingerprint != "abc123" {
		t.Errorf("Fingerprint = %q, want abc123", got.Fingerprint)
	}
	if got.SiteName != "hq" || got.Timezone != "Europe/Paris" {
		t.Errorf("site fields lost: %+v", got)
	}
	if len(got.Devices) != 1 || got.Devices[0].Address != "10.0.0.1" {
		t.Errorf("devices lost: %+v", got.Devices)
	}
}

func TestLocalStoreDocumentIsACopy(t *testing.T) {
	ls := NewLocalStore(filepath.Join(t.TempDir(), "devices.json"))
	if err := ls.Replace(models.ConfigDocument{
		Devices: []models.DeviceDescriptor{
			testutil.NewDescriptor(testutil.WithAddress("10.0.0.1")),
		},
	}); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	doc := ls.Document()
	doc.Devices[0].Address = "mutated"

	if got := ls.Document().Devices[0].Address; got != "10.0.0.1" {
		t.Errorf("internal document mutated through snapshot: %q", got)
	}
}

func TestLocalStoreLoadRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devices.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	ls := NewLocalStore(path)
	if err := ls.Load(); err == nil {
		t.Error("Load() should fail on malformed JSON")
	}
}
