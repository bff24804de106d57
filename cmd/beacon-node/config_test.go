package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simple-beacon/beacon-go/pkg/model"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ":7755", cfg.Stream.Listen)
	assert.True(t, cfg.Discovery.Enabled)
	assert.Nil(t, cfg.Provisioning)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.yaml")
	data := `
node:
  name: desk
  elements: 2
beacon:
  element: 1
  initial: true
  bool_policy: strict
state_file: /var/lib/beacon/state.cbor
provisioning:
  unicast: 0x0010
  app_key_index: 3
  publish_address: 0xC001
  subscriptions: [0xC002, 0xC003]
serial:
  port: /dev/ttyACM0
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "desk", cfg.Node.Name)
	assert.Equal(t, 2, cfg.Node.Elements)
	assert.Equal(t, uint8(model.DefaultTTL), cfg.Node.DefaultTTL, "unset keys keep defaults")
	assert.Equal(t, uint16(1), cfg.Beacon.Element)
	assert.True(t, cfg.Beacon.Initial)
	assert.Equal(t, "strict", cfg.Beacon.BoolPolicy)
	assert.Equal(t, ":7755", cfg.Stream.Listen)
	assert.Equal(t, "/dev/ttyACM0", cfg.Serial.Port)
	assert.Equal(t, "debug", cfg.Log.Level)

	require.NotNil(t, cfg.Provisioning)
	assert.Equal(t, model.Address(0x0010), cfg.Provisioning.Unicast)
	assert.Equal(t, uint16(3), cfg.Provisioning.AppKeyIndex)
	assert.Equal(t, model.Address(0xC001), cfg.Provisioning.PublishAddress)
	assert.Equal(t, []model.Address{0xC002, 0xC003}, cfg.Provisioning.Subscriptions)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("node: [unclosed"), 0644))
	_, err = LoadConfig(path)
	assert.Error(t, err)

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no elements", func(c *Config) { c.Node.Elements = 0 }},
		{"ttl too large", func(c *Config) { c.Node.DefaultTTL = 128 }},
		{"bad uuid", func(c *Config) { c.Node.UUID = "not-a-uuid" }},
		{"element out of range", func(c *Config) { c.Beacon.Element = 1 }},
		{"bad policy", func(c *Config) { c.Beacon.BoolPolicy = "lenient" }},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }},
		{"discovery without stream", func(c *Config) { c.Stream.Listen = "" }},
		{"negative baud", func(c *Config) { c.Serial.Baud = -1 }},
		{"group unicast", func(c *Config) { c.Provisioning = &ProvisioningConfig{Unicast: 0xC000} }},
		{"unicast overflow", func(c *Config) {
			c.Node.Elements = 2
			c.Provisioning = &ProvisioningConfig{Unicast: 0x7FFF}
		}},
		{"virtual publish", func(c *Config) {
			c.Provisioning = &ProvisioningConfig{Unicast: 0x0010, PublishAddress: 0x8001}
		}},
		{"publish ttl", func(c *Config) {
			c.Provisioning = &ProvisioningConfig{Unicast: 0x0010, PublishTTL: 200}
		}},
		{"unicast subscription", func(c *Config) {
			c.Provisioning = &ProvisioningConfig{Unicast: 0x0010, Subscriptions: []model.Address{0x0020}}
		}},
		{"all-nodes subscription", func(c *Config) {
			c.Provisioning = &ProvisioningConfig{Unicast: 0x0010, Subscriptions: []model.Address{model.AddressAllNodes}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestApplyFlags(t *testing.T) {
	var fv flagValues
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	bindFlags(fs, &fv)

	require.NoError(t, fs.Parse([]string{"--listen", "127.0.0.1:9000", "--baud", "9600", "--no-discovery", "--log-level", "warn"}))

	cfg := DefaultConfig()
	cfg.StateFile = "from-file.cbor"
	applyFlags(fs, cfg, &fv)

	assert.Equal(t, "127.0.0.1:9000", cfg.Stream.Listen)
	assert.Equal(t, 9600, cfg.Serial.Baud)
	assert.False(t, cfg.Discovery.Enabled)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "from-file.cbor", cfg.StateFile, "unset flags leave the file value")
}

func TestResetCommand(t *testing.T) {
	dir := t.TempDir()
	state := filepath.Join(dir, "state.cbor")
	require.NoError(t, os.WriteFile(state, []byte{0xA0}, 0644))

	cmd := newRootCmd()
	cmd.SetArgs([]string{"reset", "--state", state})
	cmd.SetOut(&discard{})
	require.NoError(t, cmd.Execute())

	_, err := os.Stat(state)
	assert.True(t, os.IsNotExist(err))
}

type discard struct{}

func (*discard) Write(p []byte) (int, error) { return len(p), nil }
