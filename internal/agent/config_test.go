package agent

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	data := "site_name: hq\nsite_token: tok-1\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.ServerURL != "http://localhost:8787" {
		t.Errorf("ServerURL = %q", cfg.ServerURL)
	}
	if cfg.SyncInterval != 5*time.Minute {
		t.Errorf("SyncInterval = %v, want 5m", cfg.SyncInterval)
	}
	if cfg.MaxParallel != 8 {
		t.Errorf("MaxParallel = %d, want 8", cfg.MaxParallel)
	}
	if cfg.RequestTimeout != 15*time.Second {
		t.Errorf("RequestTimeout = %v, want 15s", cfg.RequestTimeout)
	}
}

func TestLoadConfigFileValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	data := `server_url: https://fleet.example.com
site_name: annex
site_token: tok-2
sync_interval: 10m
max_parallel: 4
mqtt:
  broker_url: tcp://broker:1883
  base_topic: zigbee2mqtt
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.ServerURL != "https://fleet.example.com" {
		t.Errorf("ServerURL = %q", cfg.ServerURL)
	}
	if cfg.SyncInterval != 10*time.Minute {
		t.Errorf("SyncInterval = %v", cfg.SyncInterval)
	}
	if cfg.MaxParallel != 4 {
		t.Errorf("MaxParallel = %d", cfg.MaxParallel)
	}
	if cfg.MQTT.BrokerURL != "tcp://broker:1883" {
		t.Errorf("MQTT.BrokerURL = %q", cfg.MQTT.BrokerURL)
	}
}

func TestLoadConfigMissingToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	if err := os.WriteFile(path, []byte("site_name: hq\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for missing site_token")
	}
}

func TestValidateClampsRunawayValues(t *testing.T) {
	cfg := &Config{
		ServerURL:    "http://localhost:8787",
		SiteToken:    "tok",
		SyncInterval: time.Second,
		MaxParallel:  -1,
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.SyncInterval != time.Minute {
		t.Errorf("SyncInterval = %v, want clamped to 1m", cfg.SyncInterval)
	}
	if cfg.MaxParallel != 8 {
		t.Errorf("MaxParallel = %d, want 8", cfg.MaxParallel)
	}
}
