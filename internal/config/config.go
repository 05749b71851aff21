package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gatelink-dev/gatelink/pkg/hub"
)

// ConfigFileName is the default configuration file name.
const ConfigFileName = "gatelink.yaml"

// Config is the complete gateway configuration.
type Config struct {
	// Hub configures the TCP connection to the hub.
	Hub HubConfig `yaml:"hub"`

	// Monitor configures the operational HTTP server.
	Monitor MonitorConfig `yaml:"monitor"`

	// Capture configures frame capture.
	Capture CaptureConfig `yaml:"capture"`

	// Logging configures log output.
	Logging LoggingConfig `yaml:"logging"`

	// configPath remembers where the config was loaded from.
	configPath string
}

// HubConfig describes one hub connection.
type HubConfig struct {
	// Address is the hub's TCP endpoint as host:port. When empty, Serial
	// must be set and the gateway discovers the address over mDNS.
	Address string `yaml:"address,omitempty"`

	// Serial is the hub's serial number, used for mDNS discovery when
	// Address is empty.
	Serial string `yaml:"serial,omitempty"`

	// User and Password are the login credentials.
	User     string `yaml:"user"`
	Password string `yaml:"password"`

	// Timeouts and the reconnect schedule. Zero values take the session
	// defaults.
	ConnectTimeout      Duration `yaml:"connect_timeout,omitempty"`
	ReadTimeout         Duration `yaml:"read_timeout,omitempty"`
	WriteTimeout        Duration `yaml:"write_timeout,omitempty"`
	IdleTimeout         Duration `yaml:"idle_timeout,omitempty"`
	ReconnectDelay      Duration `yaml:"reconnect_delay,omitempty"`
	ReconnectMaxDelay   Duration `yaml:"reconnect_max_delay,omitempty"`
	ReconnectMultiplier float64  `yaml:"reconnect_multiplier,omitempty"`
}

// Duration is a time.Duration that reads and writes the "60s" spelling
// in YAML. Bare numbers are accepted as seconds.
type Duration time.Duration

// MarshalYAML renders the duration in time.Duration.String form.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML parses "60s"-style strings and bare numeric seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var secs float64
	if err := value.Decode(&secs); err != nil {
		return fmt.Errorf("invalid duration %q", value.Value)
	}
	*d = Duration(time.Duration(secs * float64(time.Second)))
	return nil
}

// MonitorConfig describes the operational HTTP server.
type MonitorConfig struct {
	// Enabled starts the monitor server.
	Enabled bool `yaml:"enabled"`

	// Addr is the listen address.
	Addr string `yaml:"addr,omitempty"`
}

// CaptureConfig describes frame capture.
type CaptureConfig struct {
	// Enabled taps the session and records every frame.
	Enabled bool `yaml:"enabled"`

	// Dir is the capture store directory.
	Dir string `yaml:"dir,omitempty"`

	// Prefix names new captures.
	Prefix string `yaml:"prefix,omitempty"`
}

// LoggingConfig describes log output.
type LoggingConfig struct {
	// Level is debug, info, warn, or error.
	Level string `yaml:"level,omitempty"`

	// Format is text or json.
	Format string `yaml:"format,omitempty"`
}

// Default returns a configuration with production defaults. Hub address
// and credentials must still be filled in.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// applyDefaults fills zero fields with their defaults.
func (c *Config) applyDefaults() {
	if c.Monitor.Addr == "" {
		c.Monitor.Addr = ":8480"
	}
	if c.Capture.Dir == "" {
		c.Capture.Dir = "captures"
	}
	if c.Capture.Prefix == "" {
		c.Capture.Prefix = "hub"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	c := &Config{}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	c.configPath = path
	return c, nil
}

// Save writes the configuration back to the path it was loaded from.
func (c *Config) Save() error {
	if c.configPath == "" {
		return errors.New("config: no path; use SaveTo")
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the configuration as YAML to path.
func (c *Config) SaveTo(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create %s: %w", dir, err)
		}
	}
	// Credentials live in this file.
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	c.configPath = path
	return nil
}

// Path returns where the config was loaded from or last saved to.
func (c *Config) Path() string {
	return c.configPath
}

// Validate reports the first problem that would make the gateway
// unusable.
func (c *Config) Validate() error {
	if c.Hub.Address == "" && c.Hub.Serial == "" {
		return errors.New("hub needs an address or a serial to discover")
	}
	if c.Hub.ReconnectMultiplier != 0 && c.Hub.ReconnectMultiplier < 1.0 {
		return errors.New("hub.reconnect_multiplier must be at least 1.0")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown logging.level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown logging.format %q", c.Logging.Format)
	}
	return nil
}

// SessionConfig builds the hub session configuration, with file values
// overlaid on the session defaults.
func (c *Config) SessionConfig() *hub.SessionConfig {
	sc := hub.DefaultSessionConfig()
	sc.Address = c.Hub.Address
	sc.UserID = c.Hub.User
	sc.Password = c.Hub.Password
	if c.Hub.ConnectTimeout > 0 {
		sc.ConnectTimeout = time.Duration(c.Hub.ConnectTimeout)
	}
	if c.Hub.ReadTimeout > 0 {
		sc.ReadTimeout = time.Duration(c.Hub.ReadTimeout)
	}
	if c.Hub.WriteTimeout > 0 {
		sc.WriteTimeout = time.Duration(c.Hub.WriteTimeout)
	}
	if c.Hub.IdleTimeout > 0 {
		sc.IdleTimeout = time.Duration(c.Hub.IdleTimeout)
	}
	if c.Hub.ReconnectDelay > 0 {
		sc.ReconnectDelay = time.Duration(c.Hub.ReconnectDelay)
	}
	if c.Hub.ReconnectMaxDelay > 0 {
		sc.ReconnectMaxDelay = time.Duration(c.Hub.ReconnectMaxDelay)
	}
	if c.Hub.ReconnectMultiplier >= 1.0 {
		sc.ReconnectMultiplier = c.Hub.ReconnectMultiplier
	}
	return sc
}
