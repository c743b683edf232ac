package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the smart-home daemon and
// its emulators. All configuration is loaded from YAML and can be overridden
// by environment variables.
type Config struct {
	Logging        LoggingConfig        `yaml:"logging"`
	Socket         SocketConfig         `yaml:"socket"`
	Therm          ThermConfig          `yaml:"therm"`
	SocketEmulator SocketEmulatorConfig `yaml:"socket_emulator"`
	ThermEmulator  ThermEmulatorConfig  `yaml:"therm_emulator"`
	Home           HomeConfig           `yaml:"home"`
	MQTT           MQTTConfig           `yaml:"mqtt"`
	InfluxDB       InfluxDBConfig       `yaml:"influxdb"`
	Database       DatabaseConfig       `yaml:"database"`
	API            APIConfig            `yaml:"api"`
	WebSocket      WebSocketConfig      `yaml:"websocket"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SocketConfig configures the TCP outlet controller.
type SocketConfig struct {
	Address     string        `yaml:"address"`
	Timeout     time.Duration `yaml:"timeout"`
	PowerRating float64       `yaml:"power_rating"`
	DeviceID    string        `yaml:"device_id"`
}

// ThermConfig configures the UDP thermometer controller.
type ThermConfig struct {
	ListenAddress      string        `yaml:"listen_address"`
	MaxAge             time.Duration `yaml:"max_age"`
	PollInterval       time.Duration `yaml:"poll_interval"`
	InitialTemperature float64       `yaml:"initial_temperature"`
	// StalePolicy is "repeat" (notify on every poll tick while stale) or
	// "once" (notify on the fresh to stale transition only).
	StalePolicy string `yaml:"stale_policy"`
	DeviceID    string `yaml:"device_id"`
}

// SocketEmulatorConfig configures the TCP outlet emulator.
type SocketEmulatorConfig struct {
	BindAddress string  `yaml:"bind_address"`
	PowerRating float64 `yaml:"power_rating"`
	DeviceID    string  `yaml:"device_id"`
}

// ThermEmulatorConfig configures the UDP thermometer emulator.
type ThermEmulatorConfig struct {
	TargetAddress      string        `yaml:"target_address"`
	Interval           time.Duration `yaml:"interval"`
	InitialTemperature float64       `yaml:"initial_temperature"`
	Scenario           string        `yaml:"scenario"`
	DeviceID           string        `yaml:"device_id"`
}

// HomeConfig describes the house layout served by the daemon.
type HomeConfig struct {
	Name  string       `yaml:"name"`
	Rooms []RoomConfig `yaml:"rooms"`
}

// RoomConfig places controllers in a room.
type RoomConfig struct {
	Name   string `yaml:"name"`
	Socket bool   `yaml:"socket"`
	Therm  bool   `yaml:"therm"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
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

// DatabaseConfig contains SQLite event journal settings.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// APIConfig contains ops HTTP API settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains live event stream settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"` // seconds
	PongTimeout    int `yaml:"pong_timeout"`  // seconds
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: SMARTHOME_SECTION_KEY
// For example: SMARTHOME_SOCKET_ADDRESS, SMARTHOME_API_PORT
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
// applied. Used by the emulator binaries when no config file exists.
func Default() *Config {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	return cfg
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Socket: SocketConfig{
			Address:     "127.0.0.1:7878",
			Timeout:     5 * time.Second,
			PowerRating: 1500,
			DeviceID:    "socket_emulator",
		},
		Therm: ThermConfig{
			ListenAddress:      "127.0.0.1:7879",
			MaxAge:             5 * time.Second,
			PollInterval:       10 * time.Millisecond,
			InitialTemperature: 22,
			StalePolicy:        "repeat",
			DeviceID:           "therm_emulator",
		},
		SocketEmulator: SocketEmulatorConfig{
			BindAddress: "127.0.0.1:7878",
			PowerRating: 1500,
			DeviceID:    "socket_emulator",
		},
		ThermEmulator: ThermEmulatorConfig{
			TargetAddress:      "127.0.0.1:7879",
			Interval:           time.Second,
			InitialTemperature: 22,
			Scenario:           "normal",
			DeviceID:           "therm_emulator",
		},
		Home: HomeConfig{
			Name: "home",
			Rooms: []RoomConfig{
				{Name: "living_room", Socket: true, Therm: true},
			},
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "smarthome",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			URL:           "http://localhost:8086",
			Org:           "smarthome",
			Bucket:        "telemetry",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Database: DatabaseConfig{
			Path:        "./data/smarthome.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: SMARTHOME_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Logging
	if v := os.Getenv("SMARTHOME_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Controllers
	if v := os.Getenv("SMARTHOME_SOCKET_ADDRESS"); v != "" {
		cfg.Socket.Address = v
	}
	if v := os.Getenv("SMARTHOME_SOCKET_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Socket.Timeout = d
		}
	}
	if v := os.Getenv("SMARTHOME_THERM_LISTEN_ADDRESS"); v != "" {
		cfg.Therm.ListenAddress = v
	}
	if v := os.Getenv("SMARTHOME_THERM_MAX_AGE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Therm.MaxAge = d
		}
	}

	// Emulators
	if v := os.Getenv("SMARTHOME_SOCKET_EMULATOR_BIND_ADDRESS"); v != "" {
		cfg.SocketEmulator.BindAddress = v
	}
	if v := os.Getenv("SMARTHOME_SOCKET_EMULATOR_POWER_RATING"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.SocketEmulator.PowerRating = f
		}
	}
	if v := os.Getenv("SMARTHOME_THERM_EMULATOR_TARGET_ADDRESS"); v != "" {
		cfg.ThermEmulator.TargetAddress = v
	}
	if v := os.Getenv("SMARTHOME_THERM_EMULATOR_SCENARIO"); v != "" {
		cfg.ThermEmulator.Scenario = v
	}

	// MQTT
	if v := os.Getenv("SMARTHOME_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("SMARTHOME_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("SMARTHOME_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("SMARTHOME_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Database
	if v := os.Getenv("SMARTHOME_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// API
	if v := os.Getenv("SMARTHOME_API_HOST"); v != "" {
		cfg.API.Host = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Socket.Address == "" {
		errs = append(errs, "socket.address is required")
	}
	if c.Socket.Timeout <= 0 {
		errs = append(errs, "socket.timeout must be positive")
	}
	if c.Socket.PowerRating < 0 {
		errs = append(errs, "socket.power_rating must not be negative")
	}

	if c.Therm.ListenAddress == "" {
		errs = append(errs, "therm.listen_address is required")
	}
	if c.Therm.MaxAge <= 0 {
		errs = append(errs, "therm.max_age must be positive")
	}
	if c.Therm.PollInterval <= 0 {
		errs = append(errs, "therm.poll_interval must be positive")
	}
	switch strings.ToLower(c.Therm.StalePolicy) {
	case "", "repeat", "once":
	default:
		errs = append(errs, "therm.stale_policy must be \"repeat\" or \"once\"")
	}

	if c.SocketEmulator.PowerRating < 0 {
		errs = append(errs, "socket_emulator.power_rating must not be negative")
	}
	if c.ThermEmulator.Interval <= 0 {
		errs = append(errs, "therm_emulator.interval must be positive")
	}

	for i, room := range c.Home.Rooms {
		if room.Name == "" {
			errs = append(errs, fmt.Sprintf("home.rooms[%d].name is required", i))
		}
	}

	if c.MQTT.Enabled && (c.MQTT.QoS < 0 || c.MQTT.QoS > 2) {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when database is enabled")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.API.Enabled && (c.WebSocket.PingInterval <= 0 || c.WebSocket.PongTimeout <= 0) {
		errs = append(errs, "websocket.ping_interval and websocket.pong_timeout must be positive")
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
