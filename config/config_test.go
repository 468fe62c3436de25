package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tuya-scale/config"
)

const minimal = `
tuya:
  access_id: id
  access_key: ${TUYA_SCALE_TEST_KEY}
  device_id: dev1
`

func TestLoad_DefaultsAndExpansion(t *testing.T) {
	t.Setenv("TUYA_SCALE_TEST_KEY", "from-env")

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(minimal), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.Tuya.AccessKey != "from-env" {
		t.Errorf("access_key: got %q, want from-env", cfg.Tuya.AccessKey)
	}
	if cfg.Tuya.Region != "EU" {
		t.Errorf("region: got %q, want EU", cfg.Tuya.Region)
	}
	if cfg.ScanInterval() != time.Minute {
		t.Errorf("scan interval: got %v, want 1m", cfg.ScanInterval())
	}
	if cfg.RequestTimeout() != 10*time.Second || cfg.RetryDelay() != 2*time.Second {
		t.Errorf("timeouts: got %v / %v", cfg.RequestTimeout(), cfg.RetryDelay())
	}
	if cfg.HTTP.Addr != ":8080" || cfg.MQTT.TopicPrefix != "tuya_scale" || !*cfg.MQTT.Retain {
		t.Errorf("defaults: got %+v %+v", cfg.HTTP, cfg.MQTT)
	}

	creds := cfg.Credentials()
	if creds.AccessID != "id" || creds.AccessSecret != "from-env" || creds.DeviceID != "dev1" {
		t.Errorf("credentials: got %+v", creds)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing credentials",
			yaml:    "tuya:\n  region: EU\n",
			wantErr: "tuya.access_id is required",
		},
		{
			name:    "unknown region",
			yaml:    "tuya:\n  access_id: a\n  access_key: b\n  device_id: c\n  region: MARS\n",
			wantErr: "tuya.region",
		},
		{
			name:    "scan interval too long",
			yaml:    "tuya:\n  access_id: a\n  access_key: b\n  device_id: c\n  scan_interval: 61\n",
			wantErr: "scan_interval",
		},
		{
			name:    "bad retry delay",
			yaml:    "tuya:\n  access_id: a\n  access_key: b\n  device_id: c\n  retry_delay: soon\n",
			wantErr: "retry_delay",
		},
		{
			name:    "mqtt without broker",
			yaml:    "tuya:\n  access_id: a\n  access_key: b\n  device_id: c\nmqtt:\n  enabled: true\n",
			wantErr: "mqtt.broker",
		},
		{
			name:    "malformed yaml",
			yaml:    "tuya: [",
			wantErr: "parsing config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error: got %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestParse_BaseURLOverridesRegion(t *testing.T) {
	yaml := "tuya:\n  access_id: a\n  access_key: b\n  device_id: c\n  region: MARS\n  base_url: http://localhost:9000\n"
	if _, err := config.Parse([]byte(yaml)); err != nil {
		t.Errorf("Parse error: %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
