package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values can be written as "30s" or
// "5m".
type Duration time.Duration

// UnmarshalYAML decodes a Go duration string, or a bare number of seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("config: invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var secs int64
	if err := value.Decode(&secs); err != nil {
		return fmt.Errorf("config: invalid duration %q", value.Value)
	}
	*d = Duration(time.Duration(secs) * time.Second)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds all application configuration.
type Config struct {
	Arlo    ArloConfig    `yaml:"arlo"`
	HTTP    HTTPConfig    `yaml:"http"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Media   MediaConfig   `yaml:"media"`
	Session SessionConfig `yaml:"session"`
	Log     LogConfig     `yaml:"log"`
}

// ArloConfig holds Arlo cloud API configuration.
type ArloConfig struct {
	APIBase  string `yaml:"api_base"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// BaseStationID pins the daemon to one base station; empty picks the
	// first one discovered.
	BaseStationID string   `yaml:"base_station_id"`
	PollInterval  Duration `yaml:"poll_interval"`
}

// MQTTConfig holds MQTT broker configuration.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	DeviceID    string `yaml:"device_id"`
}

// MediaConfig holds recording library configuration.
type MediaConfig struct {
	// PreloadDays is the lookback window for library queries.
	PreloadDays int `yaml:"preload_days"`
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Addr    string `yaml:"addr"`
	CORSAll bool   `yaml:"cors_allow_all"`
}

// SessionConfig holds session file path configuration.
type SessionConfig struct {
	Path string `yaml:"path"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() Config {
	return Config{
		Arlo: ArloConfig{
			APIBase:      "https://arlo.netgear.com",
			PollInterval: Duration(30 * time.Second),
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
		MQTT: MQTTConfig{
			TopicPrefix: "arlo",
			DeviceID:    "arlo_station_01",
		},
		Media: MediaConfig{
			PreloadDays: 30,
		},
		Session: SessionConfig{
			Path: "/data/session.json",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from a YAML file at path, then overlays environment variables.
// If path is empty, only defaults + env vars are used.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("config: read %s: %w", path, err)
			}
			// file not found is ok, use defaults
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}

	applyEnv(&cfg)

	if cfg.Arlo.PollInterval <= 0 {
		return cfg, fmt.Errorf("config: poll_interval must be positive")
	}
	return cfg, nil
}

// applyEnv overlays environment variables on top of the config.
// Env vars take precedence over YAML values.
func applyEnv(cfg *Config) {
	if v := os.Getenv("ARLO_API_BASE"); v != "" {
		cfg.Arlo.APIBase = v
	}
	if v := os.Getenv("ARLO_USERNAME"); v != "" {
		cfg.Arlo.Username = v
	}
	if v := os.Getenv("ARLO_PASSWORD"); v != "" {
		cfg.Arlo.Password = v
	}
	if v := os.Getenv("ARLO_BASE_STATION_ID"); v != "" {
		cfg.Arlo.BaseStationID = v
	}
	if v := os.Getenv("ARLO_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Arlo.PollInterval = Duration(d)
		}
	}
	if v := os.Getenv("ARLO_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("ARLO_CORS_ALLOW_ALL"); v != "" {
		cfg.HTTP.CORSAll = parseBool(v)
	}
	if v := os.Getenv("ARLO_MQTT_ENABLED"); v != "" {
		cfg.MQTT.Enabled = parseBool(v)
	}
	if v := os.Getenv("ARLO_MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker = v
	}
	if v := os.Getenv("ARLO_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Username = v
	}
	if v := os.Getenv("ARLO_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}
	if v := os.Getenv("ARLO_MQTT_TOPIC_PREFIX"); v != "" {
		cfg.MQTT.TopicPrefix = v
	}
	if v := os.Getenv("ARLO_MQTT_DEVICE_ID"); v != "" {
		cfg.MQTT.DeviceID = v
	}
	if v := os.Getenv("ARLO_MEDIA_PRELOAD_DAYS"); v != "" {
		if days, err := strconv.Atoi(v); err == nil && days > 0 {
			cfg.Media.PreloadDays = days
		}
	}
	if v := os.Getenv("ARLO_SESSION_PATH"); v != "" {
		cfg.Session.Path = v
	}
	if v := os.Getenv("ARLO_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("ARLO_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	b, _ := strconv.ParseBool(s)
	return b
}
