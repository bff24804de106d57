package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/simple-beacon/beacon-go/internal/logging"
	"github.com/simple-beacon/beacon-go/pkg/beacon"
	"github.com/simple-beacon/beacon-go/pkg/discovery"
	"github.com/simple-beacon/beacon-go/pkg/model"
)

// Config is the client configuration.
type Config struct {
	// Unicast is the client's own address.
	Unicast model.Address `yaml:"unicast"`

	// Target receives requests. It is a node address or a group.
	Target model.Address `yaml:"target"`

	AppKeyIndex uint16 `yaml:"app_key_index"`
	TTL         uint8  `yaml:"ttl"`

	// Groups the client listens to, for publications of the servers.
	Groups []model.Address `yaml:"groups"`

	// Connect is a stream bearer address. When it and Serial.Port are empty,
	// the node announcing Target is looked up over mDNS.
	Connect string       `yaml:"connect"`
	Serial  SerialConfig `yaml:"serial"`

	Discovery DiscoveryConfig `yaml:"discovery"`

	Timeout       time.Duration `yaml:"timeout"`
	RetryInterval time.Duration `yaml:"retry_interval"`

	Capture string         `yaml:"capture"`
	Log     logging.Config `yaml:"log"`
}

// SerialConfig selects a serial gateway.
type SerialConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

// DiscoveryConfig configures the mDNS lookup.
type DiscoveryConfig struct {
	Interface string        `yaml:"interface"`
	Timeout   time.Duration `yaml:"timeout"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Unicast:       0x0100,
		Timeout:       beacon.DefaultTimeout,
		RetryInterval: beacon.DefaultRetryInterval,
		Discovery: DiscoveryConfig{
			Timeout: discovery.BrowseTimeout,
		},
		Log: logging.Config{
			Level:  "warn",
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

// Validate checks the parts every command needs.
func (c *Config) Validate() error {
	var errs []error

	if !c.Unicast.IsUnicast() {
		errs = append(errs, fmt.Errorf("unicast %s is not a unicast address", c.Unicast))
	}
	if c.Target != model.AddressUnassigned && c.Target.IsVirtual() {
		errs = append(errs, fmt.Errorf("target %s: virtual addresses are not supported", c.Target))
	}
	if c.Target == c.Unicast {
		errs = append(errs, fmt.Errorf("target %s is the client itself", c.Target))
	}
	if c.TTL > 127 {
		errs = append(errs, fmt.Errorf("ttl %d exceeds 127", c.TTL))
	}
	for _, g := range c.Groups {
		if !g.IsGroup() || g == model.AddressAllNodes {
			errs = append(errs, fmt.Errorf("group %s is not a subscribable group", g))
		}
	}
	if c.Timeout <= 0 || c.RetryInterval <= 0 {
		errs = append(errs, fmt.Errorf("timeout and retry interval must be positive"))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// needsDiscovery reports whether the bearer has to be found over mDNS.
func (c *Config) needsDiscovery() bool {
	return c.Connect == "" && c.Serial.Port == ""
}

// addressValue is a pflag.Value for mesh addresses in hex or decimal.
type addressValue struct {
	addr *model.Address
}

func (v addressValue) String() string {
	if v.addr == nil {
		return ""
	}
	return v.addr.String()
}

func (v addressValue) Set(s string) error {
	a, err := parseAddress(s)
	if err != nil {
		return err
	}
	*v.addr = a
	return nil
}

func (addressValue) Type() string {
	return "address"
}

// addressListValue collects repeated address flags.
type addressListValue struct {
	addrs *[]model.Address
}

func (v addressListValue) String() string {
	if v.addrs == nil {
		return "[]"
	}
	return fmt.Sprint(*v.addrs)
}

func (v addressListValue) Set(s string) error {
	a, err := parseAddress(s)
	if err != nil {
		return err
	}
	*v.addrs = append(*v.addrs, a)
	return nil
}

func (addressListValue) Type() string {
	return "address"
}

// parseAddress accepts 0x-prefixed hex and decimal.
func parseAddress(s string) (model.Address, error) {
	n, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q", s)
	}
	return model.Address(n), nil
}
