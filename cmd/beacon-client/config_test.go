package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simple-beacon/beacon-go/pkg/model"
)

func TestLoadClientConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.yaml")
	data := `
unicast: 0x0200
target: 0x0010
app_key_index: 1
groups: [0xC001]
connect: 192.0.2.1:7755
timeout: 2s
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, model.Address(0x0200), cfg.Unicast)
	assert.Equal(t, model.Address(0x0010), cfg.Target)
	assert.Equal(t, uint16(1), cfg.AppKeyIndex)
	assert.Equal(t, []model.Address{0xC001}, cfg.Groups)
	assert.Equal(t, "192.0.2.1:7755", cfg.Connect)
	assert.Equal(t, 2*time.Second, cfg.Timeout)
	assert.Equal(t, DefaultConfig().RetryInterval, cfg.RetryInterval)
	assert.False(t, cfg.needsDiscovery())
}

func TestClientConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"group unicast", func(c *Config) { c.Unicast = 0xC000 }},
		{"virtual target", func(c *Config) { c.Target = 0x8000 }},
		{"target is self", func(c *Config) { c.Target = c.Unicast }},
		{"ttl", func(c *Config) { c.TTL = 128 }},
		{"bad group", func(c *Config) { c.Groups = []model.Address{0x0020} }},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }},
		{"bad level", func(c *Config) { c.Log.Level = "chatty" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.needsDiscovery())
}

func TestClientFlags(t *testing.T) {
	var fv flagValues
	flagged := DefaultConfig()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	bindFlags(fs, &fv, flagged)

	require.NoError(t, fs.Parse([]string{
		"-t", "0x0010",
		"--group", "0xC001", "--group", "49154",
		"--connect", "127.0.0.1:7755",
		"--timeout", "1s",
	}))

	loaded := DefaultConfig()
	loaded.AppKeyIndex = 4
	applyFlags(fs, loaded, flagged, &fv)

	assert.Equal(t, model.Address(0x0010), loaded.Target)
	assert.Equal(t, []model.Address{0xC001, 0xC002}, loaded.Groups)
	assert.Equal(t, "127.0.0.1:7755", loaded.Connect)
	assert.Equal(t, time.Second, loaded.Timeout)
	assert.Equal(t, uint16(4), loaded.AppKeyIndex, "unset flags keep the file value")

	assert.Error(t, fs.Parse([]string{"--target", "0x1FFFF"}))
}

func TestParseOnOff(t *testing.T) {
	for _, s := range []string{"on", "1", "true"} {
		v, err := parseOnOff(s)
		require.NoError(t, err)
		assert.True(t, v, s)
	}
	for _, s := range []string{"off", "0", "false"} {
		v, err := parseOnOff(s)
		require.NoError(t, err)
		assert.False(t, v, s)
	}
	_, err := parseOnOff("maybe")
	assert.Error(t, err)
}
