package console

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the console configuration, loaded from TOML.
type Config struct {
	Prompt      string `toml:"prompt"`
	HelpHeader  string `toml:"help_header"`
	OutputLevel string `toml:"output_level"`
	LogLevel    string `toml:"log_level"`
	LogFile     string `toml:"log_file"`
	HistoryPath string `toml:"history_path"`

	Kibana KibanaConfig `toml:"kibana"`
	Authz  AuthzConfig  `toml:"authz"`
}

// KibanaConfig locates the backend serving response actions.
type KibanaConfig struct {
	URL           string   `toml:"url"`
	Username      string   `toml:"username"`
	Password      string   `toml:"password"`
	APIKey        string   `toml:"api_key"`
	EndpointID    string   `toml:"endpoint_id"`
	PollInterval  Duration `toml:"poll_interval"`
	Timeout       Duration `toml:"timeout"`        // per HTTP request
	ActionTimeout Duration `toml:"action_timeout"` // polling a response action
}

// AuthzConfig lists commands gated behind license and admin checks.
type AuthzConfig struct {
	Enabled            bool     `toml:"enabled"`
	RestrictedCommands []string `toml:"restricted_commands"`
}

// Duration decodes TOML strings such as "2s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Prompt:      "> ",
		HelpHeader:  "Available commands:",
		OutputLevel: "normal",
		LogLevel:    "warn",
		Kibana: KibanaConfig{
			URL:          "http://localhost:5601",
			PollInterval:  Duration{2 * time.Second},
			Timeout:       Duration{30 * time.Second},
			ActionTimeout: Duration{5 * time.Minute},
		},
		Authz: AuthzConfig{
			RestrictedCommands: []string{"kill-process", "suspend-process"},
		},
	}
}

// LoadConfig reads path over the defaults. A missing file yields the
// defaults; environment overrides are applied last.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseConfig decodes TOML text over the defaults.
func ParseConfig(data string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.Decode(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PLANECONSOLE_KIBANA_URL"); v != "" {
		c.Kibana.URL = v
	}
	if v := os.Getenv("PLANECONSOLE_KIBANA_USERNAME"); v != "" {
		c.Kibana.Username = v
	}
	if v := os.Getenv("PLANECONSOLE_KIBANA_PASSWORD"); v != "" {
		c.Kibana.Password = v
	}
	if v := os.Getenv("PLANECONSOLE_KIBANA_API_KEY"); v != "" {
		c.Kibana.APIKey = v
	}
	if v := os.Getenv("PLANECONSOLE_ENDPOINT_ID"); v != "" {
		c.Kibana.EndpointID = v
	}
	if v := os.Getenv("PLANECONSOLE_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("PLANECONSOLE_AUTHZ"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Authz.Enabled = b
		}
	}
}

// Validate checks the configuration for inconsistent values.
func (c Config) Validate() error {
	if _, err := ParseOutputLevel(c.OutputLevel); err != nil {
		return err
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	if c.Kibana.URL != "" {
		u, err := url.Parse(c.Kibana.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid kibana url %q", c.Kibana.URL)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("kibana url must be http or https, got %q", u.Scheme)
		}
	}
	if c.Kibana.APIKey != "" && c.Kibana.Username != "" {
		return errors.New("kibana: set either api_key or username, not both")
	}
	if c.Kibana.PollInterval.Duration < 0 || c.Kibana.Timeout.Duration < 0 || c.Kibana.ActionTimeout.Duration < 0 {
		return errors.New("kibana: durations must not be negative")
	}
	for _, name := range c.Authz.RestrictedCommands {
		if strings.TrimSpace(name) == "" {
			return errors.New("authz: restricted command names must not be empty")
		}
	}
	return nil
}
