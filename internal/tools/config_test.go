package tools

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{"LOG_LEVEL", "SSL", "COLORMETER_PORT", "COLORMETER_I2C_BUS", "COLORMETER_DB_PATH", "COLORMETER_MQTT_HOST"} {
		t.Setenv(k, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "colormeter.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
sensor:
  transport: periph
  bus: "1"
  integration_time: 24ms
  gain: 16x
  interrupt_pin: GPIO4
server:
  port: 8080
  local_only: true
mqtt:
  enabled: true
  host: broker.local
discovery:
  enabled: false
`), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "periph", cfg.Sensor.Transport)
	assert.Equal(t, "1", cfg.Sensor.Bus)
	assert.Equal(t, "24ms", cfg.Sensor.IntegrationTime)
	assert.Equal(t, "16x", cfg.Sensor.Gain)
	assert.Equal(t, "GPIO4", cfg.Sensor.InterruptPin)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.True(t, cfg.Server.LocalOnly)
	assert.True(t, cfg.MQTT.Enabled)
	assert.Equal(t, "broker.local", cfg.MQTT.Host)
	assert.False(t, cfg.Discovery.Enabled)
	// Untouched keys keep their defaults.
	assert.Equal(t, 1883, cfg.MQTT.Port)
	assert.Equal(t, "colormeter.db", cfg.Database.Path)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("SSL", "true")
	t.Setenv("COLORMETER_I2C_BUS", "/dev/i2c-3")
	t.Setenv("COLORMETER_MQTT_HOST", "mqtt.lan")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Server.SSL)
	assert.Equal(t, 443, cfg.Server.Port)
	assert.Equal(t, "/dev/i2c-3", cfg.Sensor.Bus)
	assert.True(t, cfg.MQTT.Enabled)
	assert.Equal(t, "mqtt.lan", cfg.MQTT.Host)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"transport", func(c *Config) { c.Sensor.Transport = "spi" }},
		{"integration time", func(c *Config) { c.Sensor.IntegrationTime = "3ms" }},
		{"gain", func(c *Config) { c.Sensor.Gain = "2x" }},
		{"persistence", func(c *Config) { c.Sensor.Persistence = 16 }},
		{"port", func(c *Config) { c.Server.Port = 0 }},
		{"mqtt host", func(c *Config) { c.MQTT.Enabled = true }},
		{"mqtt qos", func(c *Config) { c.MQTT.Enabled, c.MQTT.Host, c.MQTT.QoS = true, "x", 3 }},
		{"discovery instance", func(c *Config) { c.Discovery.Instance = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			require.NoError(t, cfg.Validate())
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
