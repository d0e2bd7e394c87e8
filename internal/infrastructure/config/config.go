package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for FlashCue Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Scene     SceneConfig     `yaml:"scene"`
	Platform  PlatformConfig  `yaml:"platform"`
	Triggers  TriggersConfig  `yaml:"triggers"`
	Sidecars  []SidecarConfig `yaml:"sidecars"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SceneConfig contains settings for the scene bridge that owns the
// scene-control wire protocol.
type SceneConfig struct {
	// ConnectTimeoutMS bounds a single connect attempt, including the
	// bridge opening its link to the target.
	ConnectTimeoutMS int `yaml:"connect_timeout_ms"`

	// RequestTimeoutMS bounds every other bridge request.
	RequestTimeoutMS int `yaml:"request_timeout_ms"`

	// AutoConnect connects every persisted target at startup.
	AutoConnect bool `yaml:"auto_connect"`
}

// PlatformConfig contains streaming platform settings.
type PlatformConfig struct {
	// BroadcasterID is the platform user whose channel events are consumed.
	BroadcasterID string `yaml:"broadcaster_id"`
}

// TriggersConfig contains trigger engine and flash executor settings.
type TriggersConfig struct {
	// FlashDurationMS is how long a flashed element stays visible when the
	// condition does not set duration_ms.
	FlashDurationMS int `yaml:"flash_duration_ms"`

	// MaxFlashTimeMS is the hard limit for one complete flash sequence.
	MaxFlashTimeMS int `yaml:"max_flash_time_ms"`

	// MaxQueuePerElement caps pending flashes per (session, element).
	MaxQueuePerElement int `yaml:"max_queue_per_element"`

	// DispatchQueuePerSession caps delivered events waiting to be matched
	// per session.
	DispatchQueuePerSession int `yaml:"dispatch_queue_per_session"`

	// ElementCacheTTLMS caches active-scene element listings. 0 disables.
	ElementCacheTTLMS int `yaml:"element_cache_ttl_ms"`

	// ElementCacheSize is the maximum number of cached listings.
	ElementCacheSize int `yaml:"element_cache_size"`
}

// SidecarConfig describes a bridge process Core starts and supervises.
// Timing fields are in seconds; zero picks the supervisor default.
type SidecarConfig struct {
	Name             string   `yaml:"name"`
	Command          []string `yaml:"command"`
	Env              []string `yaml:"env"`
	WorkDir          string   `yaml:"work_dir"`
	RestartOnFailure bool     `yaml:"restart_on_failure"`
	RestartDelay     int      `yaml:"restart_delay"`
	MaxRestartDelay  int      `yaml:"max_restart_delay"`
	MaxRestarts      int      `yaml:"max_restarts"`
	StopTimeout      int      `yaml:"stop_timeout"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: FLASHCUE_SECTION_KEY
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration with environment overrides
// applied. Used when no config file exists.
func Default() *Config {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	return cfg
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:        "./data/flashcue.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "flashcue-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8420,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Scene: SceneConfig{
			ConnectTimeoutMS: 5000,
			RequestTimeoutMS: 2000,
		},
		Triggers: TriggersConfig{
			FlashDurationMS:         4000,
			MaxFlashTimeMS:          90000,
			MaxQueuePerElement:      32,
			DispatchQueuePerSession: 64,
			ElementCacheTTLMS:       2000,
			ElementCacheSize:        256,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FLASHCUE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("FLASHCUE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("FLASHCUE_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("FLASHCUE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("FLASHCUE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("FLASHCUE_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	if v := os.Getenv("FLASHCUE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("FLASHCUE_PLATFORM_BROADCASTER_ID"); v != "" {
		cfg.Platform.BroadcasterID = v
	}

	if v := os.Getenv("FLASHCUE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// maxFlashDurationMS mirrors the per-condition duration_ms ceiling.
const maxFlashDurationMS = 60000

// Validate checks the configuration for errors.
// All problems are reported together rather than stopping at the first.
func (c *Config) Validate() error {
	var errs []string

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Broker.ClientID == "" {
		errs = append(errs, "mqtt.broker.client_id is required")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.Platform.BroadcasterID == "" {
		errs = append(errs, "platform.broadcaster_id is required (set FLASHCUE_PLATFORM_BROADCASTER_ID)")
	}

	if c.Scene.ConnectTimeoutMS <= 0 {
		errs = append(errs, "scene.connect_timeout_ms must be positive")
	}
	if c.Scene.RequestTimeoutMS <= 0 {
		errs = append(errs, "scene.request_timeout_ms must be positive")
	}

	if c.Triggers.FlashDurationMS < 1 || c.Triggers.FlashDurationMS > maxFlashDurationMS {
		errs = append(errs, fmt.Sprintf("triggers.flash_duration_ms must be 1-%d", maxFlashDurationMS))
	}
	if c.Triggers.MaxFlashTimeMS <= c.Triggers.FlashDurationMS {
		errs = append(errs, "triggers.max_flash_time_ms must exceed triggers.flash_duration_ms")
	}
	if c.Triggers.MaxQueuePerElement < 1 {
		errs = append(errs, "triggers.max_queue_per_element must be at least 1")
	}
	if c.Triggers.DispatchQueuePerSession < 1 {
		errs = append(errs, "triggers.dispatch_queue_per_session must be at least 1")
	}
	if c.Triggers.ElementCacheTTLMS < 0 {
		errs = append(errs, "triggers.element_cache_ttl_ms cannot be negative")
	}

	names := make(map[string]bool, len(c.Sidecars))
	for i, sc := range c.Sidecars {
		switch {
		case sc.Name == "":
			errs = append(errs, fmt.Sprintf("sidecars[%d].name is required", i))
		case names[sc.Name]:
			errs = append(errs, fmt.Sprintf("sidecars[%d].name %q is duplicated", i, sc.Name))
		}
		names[sc.Name] = true
		if len(sc.Command) == 0 || sc.Command[0] == "" {
			errs = append(errs, fmt.Sprintf("sidecars[%d].command is required", i))
		}
		if sc.RestartDelay < 0 || sc.MaxRestartDelay < 0 || sc.MaxRestarts < 0 || sc.StopTimeout < 0 {
			errs = append(errs, fmt.Sprintf("sidecars[%d] timings and limits cannot be negative", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// FlashDuration returns the default flash hold time.
func (t TriggersConfig) FlashDuration() time.Duration {
	return time.Duration(t.FlashDurationMS) * time.Millisecond
}

// MaxFlashTime returns the hard limit for one flash sequence.
func (t TriggersConfig) MaxFlashTime() time.Duration {
	return time.Duration(t.MaxFlashTimeMS) * time.Millisecond
}

// ElementCacheTTL returns how long element listings stay cached.
func (t TriggersConfig) ElementCacheTTL() time.Duration {
	return time.Duration(t.ElementCacheTTLMS) * time.Millisecond
}

// ConnectTimeout returns the scene connect timeout.
func (s SceneConfig) ConnectTimeout() time.Duration {
	return time.Duration(s.ConnectTimeoutMS) * time.Millisecond
}

// RequestTimeout returns the scene bridge request timeout.
func (s SceneConfig) RequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutMS) * time.Millisecond
}
