package tools

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ztkent/color-meter/tcs34725"
	"gopkg.in/yaml.v3"
)

// Config is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Sensor    SensorConfig    `yaml:"sensor"`
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type SensorConfig struct {
	// Transport is "devfs" (golang.org/x/exp/io/i2c) or "periph".
	Transport       string `yaml:"transport"`
	Bus             string `yaml:"bus"`
	IntegrationTime string `yaml:"integration_time"`
	Gain            string `yaml:"gain"`
	// InterruptPin and LEDPin are periph pin names, e.g. "GPIO4".
	InterruptPin string `yaml:"interrupt_pin"`
	LEDPin       string `yaml:"led_pin"`
	Persistence  int    `yaml:"persistence"`
}

type ServerConfig struct {
	Port      int    `yaml:"port"`
	SSL       bool   `yaml:"ssl"`
	CertFile  string `yaml:"cert_file"`
	KeyFile   string `yaml:"key_file"`
	LocalOnly bool   `yaml:"local_only"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	QoS      int    `yaml:"qos"`
}

// DiscoveryConfig controls the mDNS advertisement of the HTTP service.
type DiscoveryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Instance string `yaml:"instance"`
	// Interface limits advertising to one network interface. Empty means all.
	Interface string `yaml:"interface"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

func DefaultConfig() *Config {
	return &Config{
		Sensor: SensorConfig{
			Transport:       "devfs",
			Bus:             "/dev/i2c-1",
			IntegrationTime: "154ms",
			Gain:            "4x",
			Persistence:     int(tcs34725.TCS34725_PERS_5),
		},
		Server: ServerConfig{
			Port:     80,
			CertFile: "cert.pem",
			KeyFile:  "key.pem",
		},
		Database: DatabaseConfig{
			Path: "colormeter.db",
		},
		MQTT: MQTTConfig{
			Port:     1883,
			ClientID: "colormeter",
			Topic:    "colormeter/threshold",
			QoS:      1,
		},
		Discovery: DiscoveryConfig{
			Enabled:  true,
			Instance: "Color Meter",
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "colormeter.log",
		},
	}
}

// LoadConfig reads path on top of the defaults, then applies environment
// overrides. An empty path skips the file.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("SSL"); v != "" {
		cfg.Server.SSL = v == "true"
		if cfg.Server.SSL && cfg.Server.Port == 80 {
			cfg.Server.Port = 443
		}
	}
	if v := os.Getenv("COLORMETER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("COLORMETER_I2C_BUS"); v != "" {
		cfg.Sensor.Bus = v
	}
	if v := os.Getenv("COLORMETER_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("COLORMETER_MQTT_HOST"); v != "" {
		cfg.MQTT.Host = v
		cfg.MQTT.Enabled = true
	}
}

// Validate checks the sensor settings against the chip's tables.
func (c *Config) Validate() error {
	switch c.Sensor.Transport {
	case "devfs", "periph":
	default:
		return fmt.Errorf("sensor.transport must be devfs or periph, got %q", c.Sensor.Transport)
	}
	if _, err := tcs34725.ParseIntegrationTime(c.Sensor.IntegrationTime); err != nil {
		return err
	}
	if _, err := tcs34725.ParseGain(c.Sensor.Gain); err != nil {
		return err
	}
	if c.Sensor.Persistence < 0 || c.Sensor.Persistence > int(tcs34725.TCS34725_PERS_60) {
		return fmt.Errorf("sensor.persistence must be 0-15, got %d", c.Sensor.Persistence)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Discovery.Enabled && c.Discovery.Instance == "" {
		return fmt.Errorf("discovery.instance is required when discovery is enabled")
	}
	if c.MQTT.Enabled {
		if c.MQTT.Host == "" {
			return fmt.Errorf("mqtt.host is required when mqtt is enabled")
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt.qos must be 0-2, got %d", c.MQTT.QoS)
		}
	}
	return nil
}
