package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the full server configuration, loaded from an optional
// config.yaml plus environment overrides. Missing keys fall back to
// the defaults below, so the server runs with no config file at all.
type Config struct {
	Server    ServerConfig         `mapstructure:"server"`
	Buffer    BufferConfig         `mapstructure:"buffer"`
	Liveness  LivenessConfig       `mapstructure:"liveness"`
	Dashboard DashboardConfig      `mapstructure:"dashboard"`
	Audio     AudioConfig          `mapstructure:"audio"`
	Database  DatabaseConfig       `mapstructure:"database"`
	MQTT      MQTTConfig           `mapstructure:"mqtt"`
	Anomaly   AnomalyConfig        `mapstructure:"anomaly"`
	Log       LogConfig            `mapstructure:"log"`
}

type ServerConfig struct {
	Addr           string `mapstructure:"addr"`
	StaticDir      string `mapstructure:"static_dir"`
	MaxMessageSize int64  `mapstructure:"max_message_size"`
}

type BufferConfig struct {
	RecentSize     int `mapstructure:"recent_size"`
	FlushThreshold int `mapstructure:"flush_threshold"`
	FlushInterval  int `mapstructure:"flush_interval_seconds"`
}

type LivenessConfig struct {
	HeartbeatInterval int `mapstructure:"heartbeat_interval_seconds"`
	PongWait          int `mapstructure:"pong_wait_seconds"`
	WriteWait         int `mapstructure:"write_wait_seconds"`
}

type DashboardConfig struct {
	InitialDataCount int `mapstructure:"initial_data_count"`
	SendBuffer       int `mapstructure:"send_buffer"`
}

type AudioConfig struct {
	// SummaryEvery controls the reduced sampling of audio summary
	// events: one summary per this many binary frames.
	SummaryEvery int `mapstructure:"summary_every"`
}

type DatabaseConfig struct {
	Path     string `mapstructure:"path"`
	PoolSize int    `mapstructure:"pool_size"`
}

// MQTTConfig enables the optional event egress. An empty broker
// disables it.
type MQTTConfig struct {
	Broker     string `mapstructure:"broker"`
	ClientID   string `mapstructure:"client_id"`
	EventTopic string `mapstructure:"event_topic"`
	AlertTopic string `mapstructure:"alert_topic"`
}

type AnomalyConfig struct {
	Rules map[string]Rule `mapstructure:"rules"`
}

type Rule struct {
	Min float64 `mapstructure:"min"`
	Max float64 `mapstructure:"max"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"` // empty = console
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

func (c BufferConfig) FlushIntervalDuration() time.Duration {
	return time.Duration(c.FlushInterval) * time.Second
}

func (c LivenessConfig) HeartbeatIntervalDuration() time.Duration {
	return time.Duration(c.HeartbeatInterval) * time.Second
}

func (c LivenessConfig) PongWaitDuration() time.Duration {
	return time.Duration(c.PongWait) * time.Second
}

func (c LivenessConfig) WriteWaitDuration() time.Duration {
	return time.Duration(c.WriteWait) * time.Second
}

// Load reads config.yaml from path (a directory), applies environment
// overrides and defaults, and validates the result. A missing file is
// not an error; the defaults carry the server.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(path)
	v.SetEnvPrefix("RELAY")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.static_dir", "./static")
	v.SetDefault("server.max_message_size", 512*1024)

	v.SetDefault("buffer.recent_size", 100)
	v.SetDefault("buffer.flush_threshold", 50)
	v.SetDefault("buffer.flush_interval_seconds", 30)

	v.SetDefault("liveness.heartbeat_interval_seconds", 25)
	v.SetDefault("liveness.pong_wait_seconds", 60)
	v.SetDefault("liveness.write_wait_seconds", 10)

	v.SetDefault("dashboard.initial_data_count", 10)
	v.SetDefault("dashboard.send_buffer", 256)

	v.SetDefault("audio.summary_every", 10)

	v.SetDefault("database.path", "sensor_data.db")
	v.SetDefault("database.pool_size", 4)

	v.SetDefault("mqtt.client_id", "sensor-relay")
	v.SetDefault("mqtt.event_topic", "telemetry/events")
	v.SetDefault("mqtt.alert_topic", "telemetry/alerts")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 3)
}

// Validate rejects configurations that would break the liveness or
// buffering invariants at runtime.
func (c *Config) Validate() error {
	if c.Buffer.RecentSize <= 0 {
		return fmt.Errorf("buffer.recent_size must be positive, got %d", c.Buffer.RecentSize)
	}
	if c.Buffer.FlushThreshold <= 0 {
		return fmt.Errorf("buffer.flush_threshold must be positive, got %d", c.Buffer.FlushThreshold)
	}
	if c.Buffer.FlushInterval <= 0 {
		return fmt.Errorf("buffer.flush_interval_seconds must be positive, got %d", c.Buffer.FlushInterval)
	}
	if c.Liveness.HeartbeatInterval <= 0 {
		return fmt.Errorf("liveness.heartbeat_interval_seconds must be positive, got %d", c.Liveness.HeartbeatInterval)
	}
	if c.Liveness.HeartbeatInterval >= c.Liveness.PongWait {
		return fmt.Errorf("liveness.heartbeat_interval_seconds (%d) must be below pong_wait_seconds (%d)",
			c.Liveness.HeartbeatInterval, c.Liveness.PongWait)
	}
	if c.Audio.SummaryEvery <= 0 {
		return fmt.Errorf("audio.summary_every must be positive, got %d", c.Audio.SummaryEvery)
	}
	if c.Dashboard.InitialDataCount < 0 {
		return fmt.Errorf("dashboard.initial_data_count must not be negative, got %d", c.Dashboard.InitialDataCount)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}
	return nil
}
