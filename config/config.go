// Package config loads the toolbridge YAML configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sweetpotato0/toolbridge/catalog"
	"github.com/sweetpotato0/toolbridge/credentials"
	"gopkg.in/yaml.v3"
)

// Defaults applied by Load when a value is left out.
const (
	DefaultClientName    = "toolbridge"
	DefaultClientVersion = 1
	DefaultCallTimeout   = 30 * time.Second
	DefaultBatchLimit    = 8

	// MinClientNameLength is the shortest client name sent in the handshake.
	MinClientNameLength = 3
)

// Config is the full process configuration.
type Config struct {
	Client      ClientConfig      `yaml:"client"`
	Providers   []ProviderConfig  `yaml:"providers"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Log         LogConfig         `yaml:"log"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Execution   ExecutionConfig   `yaml:"execution"`
}

// ClientConfig is the identity and call behaviour shared by every connection.
type ClientConfig struct {
	Name        string        `yaml:"name"`
	Version     int           `yaml:"version"`
	CallTimeout time.Duration `yaml:"call_timeout"`
	KeepAlive   time.Duration `yaml:"keep_alive"`
}

// ProviderConfig describes one remote tool provider.
type ProviderConfig struct {
	Key          string            `yaml:"key"`
	Address      string            `yaml:"address"`
	Auth         credentials.Auth  `yaml:"auth"`
	Tools        catalog.Selection `yaml:"tools"`
	RequireTools bool              `yaml:"require_tools"`
}

// CredentialsConfig picks the credential store backend.
type CredentialsConfig struct {
	Backend string `yaml:"backend"`
}

// LogConfig mirrors TOOLBRIDGE_LOG_FORMAT and TOOLBRIDGE_LOG_LEVEL.
type LogConfig struct {
	Format string `yaml:"format"`
	Level  string `yaml:"level"`
}

// TelemetryConfig controls tracing.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
	Environment string `yaml:"environment"`
}

// ExecutionConfig bounds acquisition, batches and tool calls.
type ExecutionConfig struct {
	ConnectLimit    int  `yaml:"connect_limit"`
	BatchLimit      int  `yaml:"batch_limit"`
	PartialToolkits bool `yaml:"partial_toolkits"`
	// MaxCalls caps tool calls per process run. Zero means unlimited.
	MaxCalls int `yaml:"max_calls"`
	// DenyTools lists tools that are never called, as "tool" or "provider.tool".
	DenyTools []string `yaml:"deny_tools"`
}

// Load reads the file at path, applies defaults and environment overrides,
// and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML data. Unknown fields are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Client.Name == "" {
		c.Client.Name = DefaultClientName
	}
	if c.Client.Version == 0 {
		c.Client.Version = DefaultClientVersion
	}
	if c.Client.CallTimeout == 0 {
		c.Client.CallTimeout = DefaultCallTimeout
	}
	if c.Execution.BatchLimit == 0 {
		c.Execution.BatchLimit = DefaultBatchLimit
	}
	if c.Credentials.Backend == "" {
		c.Credentials.Backend = "env"
	}
	for i := range c.Providers {
		if c.Providers[i].Tools.Mode == "" {
			c.Providers[i].Tools.Mode = catalog.ModeAll
		}
	}
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("TOOLBRIDGE_CLIENT_NAME"); v != "" {
		c.Client.Name = v
	}
	if v := os.Getenv("TOOLBRIDGE_CLIENT_VERSION"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: TOOLBRIDGE_CLIENT_VERSION: %w", err)
		}
		c.Client.Version = n
	}
	if v := os.Getenv("TOOLBRIDGE_CALL_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: TOOLBRIDGE_CALL_TIMEOUT: %w", err)
		}
		c.Client.CallTimeout = d
	}
	if v := os.Getenv("TOOLBRIDGE_CREDENTIAL_BACKEND"); v != "" {
		c.Credentials.Backend = v
	}
	if v := os.Getenv("TOOLBRIDGE_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("TOOLBRIDGE_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	return nil
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	v := NewValidator()
	v.ValidateMinLength("client.name", strings.TrimSpace(c.Client.Name), MinClientNameLength)
	v.RequirePositive("client.version", c.Client.Version)
	v.ValidateDuration("client.call_timeout", c.Client.CallTimeout)
	v.ValidateDuration("client.keep_alive", c.Client.KeepAlive)
	v.ValidateOneOf("credentials.backend", strings.ToLower(c.Credentials.Backend), "env", "memory", "redis", "postgres", "mongo")
	if c.Log.Level != "" {
		v.ValidateOneOf("log.level", strings.ToLower(c.Log.Level), "debug", "info", "warn", "error")
	}
	if c.Log.Format != "" {
		v.ValidateOneOf("log.format", strings.ToLower(c.Log.Format), "json", "text")
	}
	v.RequireNonNegative("execution.connect_limit", c.Execution.ConnectLimit)
	v.RequirePositive("execution.batch_limit", c.Execution.BatchLimit)
	v.RequireNonNegative("execution.max_calls", c.Execution.MaxCalls)

	seen := make(map[string]bool, len(c.Providers))
	for i, p := range c.Providers {
		field := fmt.Sprintf("providers[%d]", i)
		v.RequireNonEmpty(field+".key", p.Key)
		v.RequireNonEmpty(field+".address", p.Address)
		if p.Key != "" {
			if seen[p.Key] {
				v.Fail(field+".key", fmt.Sprintf("duplicate provider %q", p.Key))
			}
			seen[p.Key] = true
		}
		v.ValidateOneOf(field+".tools.mode", string(p.Tools.Mode),
			string(catalog.ModeAll), string(catalog.ModeSelected), string(catalog.ModeExcept))
	}
	return v.Error()
}

// Provider returns the provider configured under key.
func (c *Config) Provider(key string) (ProviderConfig, bool) {
	for _, p := range c.Providers {
		if p.Key == key {
			return p, true
		}
	}
	return ProviderConfig{}, false
}
