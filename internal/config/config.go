// Package config provides configuration management for the alert bot.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

const (
	// defaultOrderQuantity is used when order.quantity is unset
	defaultOrderQuantity = 1
	// defaultHTTPTimeout is used when broker.http_timeout is unset
	defaultHTTPTimeout = 10 * time.Second
	// defaultDashboardPort is used when dashboard.port is unset
	defaultDashboardPort = 8080
)

// Config represents the complete application configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Discord     DiscordConfig     `yaml:"discord"`
	Broker      BrokerConfig      `yaml:"broker"`
	Order       OrderConfig       `yaml:"order"`
	Dashboard   DashboardConfig   `yaml:"dashboard"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	Mode     string `yaml:"mode"`      // sim | live
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

// DiscordConfig defines the chat-transport settings.
type DiscordConfig struct {
	Token      string `yaml:"token"`
	ChannelID  string `yaml:"channel_id"`
	GatewayURL string `yaml:"gateway_url"` // optional override, defaults to the public gateway
}

// BrokerConfig defines the TradeStation credentials and endpoint. All
// credential fields may be empty: the session then starts degraded and every
// submission fails until they are provided.
type BrokerConfig struct {
	BaseURL           string `yaml:"base_url"`
	ClientID          string `yaml:"client_id"`
	ClientSecret      string `yaml:"client_secret"`
	AccountKey        string `yaml:"account_key"`
	RedirectURI       string `yaml:"redirect_uri"`
	RefreshToken      string `yaml:"refresh_token"`
	HTTPTimeout       string `yaml:"http_timeout"`        // e.g. "10s"
	UseCircuitBreaker bool   `yaml:"use_circuit_breaker"` // trip on repeated broker failures
}

// OrderConfig defines order sizing.
type OrderConfig struct {
	Quantity int `yaml:"quantity"` // contracts per alert, defaults to 1
}

// DashboardConfig defines the status server settings.
type DashboardConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Port      int    `yaml:"port"`
	AuthToken string `yaml:"auth_token"`
}

// Load reads and parses the configuration file from the specified path.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables so secrets stay out of the file
	expanded := os.ExpandEnv(string(data))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// Validate checks that all configuration values are valid and consistent.
// Broker credentials are deliberately not required here: a session with
// missing credentials is constructible and fails per-submission instead.
func (c *Config) Validate() error {
	if c.Environment.Mode != "sim" && c.Environment.Mode != "live" {
		return fmt.Errorf("environment.mode must be 'sim' or 'live'")
	}

	switch c.Environment.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("environment.log_level %q must be one of debug, info, warn, error", c.Environment.LogLevel)
	}

	if c.Discord.Token == "" {
		return fmt.Errorf("discord.token is required")
	}
	if c.Discord.ChannelID == "" {
		return fmt.Errorf("discord.channel_id is required")
	}

	if c.Order.Quantity < 0 {
		return fmt.Errorf("order.quantity (%d) must be >= 0", c.Order.Quantity)
	}

	if c.Broker.HTTPTimeout != "" {
		if _, err := time.ParseDuration(c.Broker.HTTPTimeout); err != nil {
			return fmt.Errorf("broker.http_timeout %q is not a duration: %w", c.Broker.HTTPTimeout, err)
		}
	}

	if c.Dashboard.Enabled && c.Dashboard.Port < 0 {
		return fmt.Errorf("dashboard.port (%d) must be >= 0", c.Dashboard.Port)
	}

	return nil
}

// IsLive reports whether orders go to the live API rather than the simulator.
func (c *Config) IsLive() bool {
	return c.Environment.Mode == "live"
}

// BrokerConfigured reports whether every broker credential is present.
func (c *Config) BrokerConfigured() bool {
	b := c.Broker
	return b.ClientID != "" && b.ClientSecret != "" && b.AccountKey != "" &&
		b.RedirectURI != "" && b.RefreshToken != ""
}

// GetOrderQuantity returns the configured contracts per alert, defaulted.
func (c *Config) GetOrderQuantity() int {
	if c.Order.Quantity == 0 {
		return defaultOrderQuantity
	}
	return c.Order.Quantity
}

// GetHTTPTimeout returns the broker HTTP timeout, defaulted.
func (c *Config) GetHTTPTimeout() time.Duration {
	if c.Broker.HTTPTimeout == "" {
		return defaultHTTPTimeout
	}
	d, err := time.ParseDuration(c.Broker.HTTPTimeout)
	if err != nil {
		return defaultHTTPTimeout
	}
	return d
}

// GetDashboardPort returns the status server port, defaulted.
func (c *Config) GetDashboardPort() int {
	if c.Dashboard.Port == 0 {
		return defaultDashboardPort
	}
	return c.Dashboard.Port
}
