package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir()) // no config file present
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Addr != ":8000" {
		t.Errorf("server.addr = %q", cfg.Server.Addr)
	}
	if cfg.Buffer.RecentSize != 100 || cfg.Buffer.FlushThreshold != 50 {
		t.Errorf("buffer defaults = %+v", cfg.Buffer)
	}
	if cfg.Liveness.HeartbeatInterval != 25 || cfg.Liveness.PongWait != 60 {
		t.Errorf("liveness defaults = %+v", cfg.Liveness)
	}
	if cfg.Audio.SummaryEvery != 10 {
		t.Errorf("audio.summary_every = %d", cfg.Audio.SummaryEvery)
	}
	if cfg.Database.Path != "sensor_data.db" || cfg.Database.PoolSize != 4 {
		t.Errorf("database defaults = %+v", cfg.Database)
	}
	if cfg.MQTT.Broker != "" {
		t.Errorf("mqtt egress should default to disabled, broker = %q", cfg.MQTT.Broker)
	}
	if got := cfg.Buffer.FlushIntervalDuration().Seconds(); got != 30 {
		t.Errorf("flush interval = %vs", got)
	}
}

func TestLoadFileOverrides(t *testing.T) {
	dir := t.TempDir()
	yaml := `
server:
  addr: ":9100"
buffer:
  recent_size: 250
  flush_threshold: 20
anomaly:
  rules:
    temperature:
      min: -10
      max: 45
mqtt:
  broker: tcp://broker.local:1883
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9100" {
		t.Errorf("server.addr = %q", cfg.Server.Addr)
	}
	if cfg.Buffer.RecentSize != 250 || cfg.Buffer.FlushThreshold != 20 {
		t.Errorf("buffer overrides not applied: %+v", cfg.Buffer)
	}
	// Untouched sections keep their defaults.
	if cfg.Liveness.HeartbeatInterval != 25 {
		t.Errorf("liveness default lost: %+v", cfg.Liveness)
	}
	rule, ok := cfg.Anomaly.Rules["temperature"]
	if !ok || rule.Min != -10 || rule.Max != 45 {
		t.Errorf("anomaly rule = %+v (present=%v)", rule, ok)
	}
	if cfg.MQTT.Broker != "tcp://broker.local:1883" || cfg.MQTT.EventTopic != "telemetry/events" {
		t.Errorf("mqtt = %+v", cfg.MQTT)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"zero recent size", "buffer:\n  recent_size: 0\n"},
		{"negative flush threshold", "buffer:\n  flush_threshold: -5\n"},
		{"heartbeat at pong wait", "liveness:\n  heartbeat_interval_seconds: 60\n"},
		{"zero summary rate", "audio:\n  summary_every: 0\n"},
		{"empty database path", "database:\n  path: \"\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(tt.yaml), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(dir); err == nil {
				t.Fatal("Load accepted an invalid configuration")
			}
		})
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server: [not: a map"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatal("Load accepted malformed YAML")
	}
}
