package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/simple-beacon/beacon-go/internal/logging"
	"github.com/simple-beacon/beacon-go/pkg/beacon"
	"github.com/simple-beacon/beacon-go/pkg/model"
)

// Config is the node configuration, loaded from YAML and overridden by flags.
type Config struct {
	Node         NodeConfig          `yaml:"node"`
	Beacon       BeaconConfig        `yaml:"beacon"`
	StateFile    string              `yaml:"state_file"`
	Provisioning *ProvisioningConfig `yaml:"provisioning"`
	Stream       StreamConfig        `yaml:"stream"`
	Serial       SerialConfig        `yaml:"serial"`
	Discovery    DiscoveryConfig     `yaml:"discovery"`
	Metrics      MetricsConfig       `yaml:"metrics"`
	Capture      CaptureConfig       `yaml:"capture"`
	Log          logging.Config      `yaml:"log"`
}

// NodeConfig describes the node itself.
type NodeConfig struct {
	// Name is announced over mDNS.
	Name string `yaml:"name"`

	// UUID fixes the device UUID. Empty uses the persisted one, or a new one.
	UUID string `yaml:"uuid"`

	Elements   int   `yaml:"elements"`
	DefaultTTL uint8 `yaml:"default_ttl"`
}

// BeaconConfig configures the beacon server model.
type BeaconConfig struct {
	Element    uint16 `yaml:"element"`
	Initial    bool   `yaml:"initial"`
	BoolPolicy string `yaml:"bool_policy"`
}

// ProvisioningConfig is a static configuration applied to a node that has
// no persisted state. It stands in for a provisioner.
type ProvisioningConfig struct {
	Unicast        model.Address   `yaml:"unicast"`
	AppKeyIndex    uint16          `yaml:"app_key_index"`
	PublishAddress model.Address   `yaml:"publish_address"`
	PublishTTL     uint8           `yaml:"publish_ttl"`
	Subscriptions  []model.Address `yaml:"subscriptions"`
}

// StreamConfig configures the TCP proxy bearer. An empty Listen disables it.
type StreamConfig struct {
	Listen string `yaml:"listen"`
	Relay  bool   `yaml:"relay"`
}

// SerialConfig configures the SLIP serial bearer. An empty Port disables it.
type SerialConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

// DiscoveryConfig configures mDNS advertising of the stream bearer.
type DiscoveryConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Interface string `yaml:"interface"`
}

// MetricsConfig configures the Prometheus endpoint. An empty Listen disables it.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// CaptureConfig configures the protocol capture file.
type CaptureConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Node: NodeConfig{
			Elements:   model.DefaultElementCount,
			DefaultTTL: model.DefaultTTL,
		},
		Beacon: BeaconConfig{
			BoolPolicy: beacon.BoolCoerce.String(),
		},
		StateFile: "beacon-state.cbor",
		Stream: StreamConfig{
			Listen: ":7755",
			Relay:  true,
		},
		Discovery: DiscoveryConfig{
			Enabled: true,
		},
		Log: logging.Config{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig reads a YAML file on top of DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	var errs []error

	if c.Node.Elements < 1 {
		errs = append(errs, fmt.Errorf("node.elements must be at least 1"))
	}
	if c.Node.DefaultTTL > 127 {
		errs = append(errs, fmt.Errorf("node.default_ttl %d exceeds 127", c.Node.DefaultTTL))
	}
	if c.Node.UUID != "" {
		if _, err := uuid.Parse(c.Node.UUID); err != nil {
			errs = append(errs, fmt.Errorf("node.uuid: %w", err))
		}
	}
	if int(c.Beacon.Element) >= c.Node.Elements {
		errs = append(errs, fmt.Errorf("beacon.element %d out of range", c.Beacon.Element))
	}
	if _, err := beacon.ParseBoolPolicy(c.Beacon.BoolPolicy); err != nil {
		errs = append(errs, fmt.Errorf("beacon.bool_policy: %w", err))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if c.Discovery.Enabled && c.Stream.Listen == "" {
		errs = append(errs, fmt.Errorf("discovery requires stream.listen"))
	}
	if c.Serial.Baud < 0 {
		errs = append(errs, fmt.Errorf("serial.baud must not be negative"))
	}

	if p := c.Provisioning; p != nil {
		if !p.Unicast.IsUnicast() {
			errs = append(errs, fmt.Errorf("provisioning.unicast %s is not a unicast address", p.Unicast))
		} else if int(p.Unicast)+c.Node.Elements-1 > 0x7FFF {
			errs = append(errs, fmt.Errorf("provisioning.unicast %s leaves no room for %d elements", p.Unicast, c.Node.Elements))
		}
		if p.PublishAddress != model.AddressUnassigned && p.PublishAddress.IsVirtual() {
			errs = append(errs, fmt.Errorf("provisioning.publish_address %s: virtual addresses are not supported", p.PublishAddress))
		}
		if p.PublishTTL > 127 {
			errs = append(errs, fmt.Errorf("provisioning.publish_ttl %d exceeds 127", p.PublishTTL))
		}
		for _, sub := range p.Subscriptions {
			if !sub.IsGroup() || sub == model.AddressAllNodes {
				errs = append(errs, fmt.Errorf("provisioning.subscriptions: %s is not a subscribable group", sub))
			}
		}
	}

	return errors.Join(errs...)
}
