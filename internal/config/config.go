// Package config loads and validates poller configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Source  SourceConfig  `mapstructure:"source"`
	Poller  PollerConfig  `mapstructure:"poller"`
	MQTT    MQTTConfig    `mapstructure:"mqtt"`
	Dedup   DedupConfig   `mapstructure:"dedup"`
	State   StateConfig   `mapstructure:"state"`
	Server  ServerConfig  `mapstructure:"server"`
	Archive ArchiveConfig `mapstructure:"archive"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// SourceConfig describes the dispatch board being polled.
type SourceConfig struct {
	URL            string        `mapstructure:"url"`
	UserAgent      string        `mapstructure:"user_agent"`
	TimeoutSeconds int           `mapstructure:"timeout_seconds"`
	Timezone       string        `mapstructure:"timezone"`
	MaxIncidentAge time.Duration `mapstructure:"max_incident_age"`
	FetchUnits     bool          `mapstructure:"fetch_units"`
}

// PollerConfig governs the polling loop.
type PollerConfig struct {
	IntervalSeconds int      `mapstructure:"interval_seconds"`
	Municipalities  []string `mapstructure:"municipalities"`
}

// MQTTConfig holds broker connectivity and topic settings.
type MQTTConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	ClientID     string `mapstructure:"client_id"`
	Topic        string `mapstructure:"topic"`
	QoS          int    `mapstructure:"qos"`
	SummaryTopic string `mapstructure:"summary_topic"`
}

// DedupConfig controls how long published incidents are remembered.
type DedupConfig struct {
	Retention time.Duration `mapstructure:"retention"`
}

// StateConfig selects where dedup state survives restarts.
type StateConfig struct {
	Provider string `mapstructure:"provider"`
	Path     string `mapstructure:"path"`
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
}

// ServerConfig controls the ops HTTP server.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// ArchiveConfig sets where unparseable pages are kept for postmortems.
type ArchiveConfig struct {
	Dir string `mapstructure:"dir"`
}

// LoggingConfig toggles zap level and development features.
type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CADWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("cadwatch")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/cadwatch/")
		if err := v.ReadInConfig(); err != nil {
			// Missing files fall back to defaults and env; parse errors do not.
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("source.url", "https://webcad.chesco.org/WebCad/webcad.asp")
	v.SetDefault("source.user_agent", "Mozilla/5.0 (compatible; cadwatch/1.0)")
	v.SetDefault("source.timeout_seconds", 30)
	v.SetDefault("source.timezone", "America/New_York")
	v.SetDefault("source.max_incident_age", "8h")
	v.SetDefault("source.fetch_units", true)
	v.SetDefault("poller.interval_seconds", 60)
	v.SetDefault("mqtt.host", "localhost")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.client_id", "cadwatch")
	v.SetDefault("mqtt.topic", "chesco/cad/incidents")
	v.SetDefault("mqtt.qos", 1)
	v.SetDefault("dedup.retention", "24h")
	v.SetDefault("state.provider", "noop")
	v.SetDefault("state.path", "cadwatch-state.json")
	v.SetDefault("state.table", "cad_incidents")
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)

	// Empty defaults keep env-only keys visible to AutomaticEnv.
	v.SetDefault("poller.municipalities", []string{})
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.summary_topic", "")
	v.SetDefault("state.dsn", "")
	v.SetDefault("archive.dir", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if _, err := url.ParseRequestURI(c.Source.URL); err != nil {
		return fmt.Errorf("source.url is not a valid URL: %w", err)
	}
	if c.Source.TimeoutSeconds <= 0 {
		return fmt.Errorf("source.timeout_seconds must be > 0")
	}
	if _, err := time.LoadLocation(c.Source.Timezone); err != nil {
		return fmt.Errorf("source.timezone is not a valid IANA zone: %w", err)
	}
	if c.Source.MaxIncidentAge < 0 {
		return fmt.Errorf("source.max_incident_age must be >= 0")
	}
	if c.Poller.IntervalSeconds <= 0 {
		return fmt.Errorf("poller.interval_seconds must be > 0")
	}
	if c.MQTT.Host == "" {
		return fmt.Errorf("mqtt.host must be set")
	}
	if c.MQTT.Port <= 0 || c.MQTT.Port > 65535 {
		return fmt.Errorf("mqtt.port must be between 1 and 65535")
	}
	if c.MQTT.Topic == "" {
		return fmt.Errorf("mqtt.topic must be set")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1, or 2")
	}
	if c.Dedup.Retention <= 0 {
		return fmt.Errorf("dedup.retention must be > 0")
	}
	if c.Source.MaxIncidentAge > 0 && c.Dedup.Retention < c.Source.MaxIncidentAge {
		return fmt.Errorf("dedup.retention must cover source.max_incident_age")
	}
	switch c.State.Provider {
	case "noop":
	case "file":
		if c.State.Path == "" {
			return fmt.Errorf("state.path must be set when state.provider is 'file'")
		}
	case "postgres":
		if c.State.DSN == "" {
			return fmt.Errorf("state.dsn must be set when state.provider is 'postgres'")
		}
	default:
		return fmt.Errorf("unknown state provider: %s", c.State.Provider)
	}
	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	return nil
}

// PollInterval converts the configured poll cadence into a Duration.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Poller.IntervalSeconds) * time.Second
}

// FetchTimeout converts the per-request HTTP budget into a Duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Source.TimeoutSeconds) * time.Second
}
