// Package config loads the execution control plane's configuration from
// YAML or JSON files.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/tradewell/execution/risk"
	"github.com/tradewell/execution/schedule"
)

// Config is the complete execution configuration.
type Config struct {
	Mode        string       `json:"mode" yaml:"mode"`                   // "paper" or "live"
	Enabled     bool         `json:"enabled" yaml:"enabled"`             // global trading kill switch
	MaxOrderQty int          `json:"max_order_qty" yaml:"max_order_qty"` // per-leg quantity cap, 0 disables
	Risk        RiskConfig   `json:"risk" yaml:"risk"`
	Retry       RetryConfig  `json:"retry" yaml:"retry"`
	Close       CloseConfig  `json:"close" yaml:"close"`
	Broker      BrokerConfig `json:"broker" yaml:"broker"`
	Audit       AuditConfig  `json:"audit" yaml:"audit"`
	LogLevel    string       `json:"log_level" yaml:"log_level"`
}

// RiskConfig mirrors risk.Caps in file-friendly numeric types.
type RiskConfig struct {
	MaxOrdersPerHour int     `json:"max_orders_per_hour" yaml:"max_orders_per_hour"`
	MaxDailyLoss     float64 `json:"max_daily_loss" yaml:"max_daily_loss"` // 0 disables
	MaxPosition      float64 `json:"max_position" yaml:"max_position"`     // 0 disables
	CapsFile         string  `json:"caps_file,omitempty" yaml:"caps_file,omitempty"`
}

// Caps converts to the risk package's limit type.
func (r RiskConfig) Caps() risk.Caps {
	return risk.Caps{
		MaxOrdersPerHour: r.MaxOrdersPerHour,
		MaxDailyLoss:     decimal.NewFromFloat(r.MaxDailyLoss),
		MaxPosition:      decimal.NewFromFloat(r.MaxPosition),
	}
}

// RetryConfig bounds the live-path broker retries.
type RetryConfig struct {
	Attempts int    `json:"attempts" yaml:"attempts"`
	Backoff  string `json:"backoff" yaml:"backoff"` // e.g. "500ms", "2s"
}

// ParseBackoff converts the backoff string to a duration.
func (r RetryConfig) ParseBackoff() (time.Duration, error) {
	if r.Backoff == "" {
		return 0, nil
	}
	return time.ParseDuration(r.Backoff)
}

// CloseConfig sets when and in which market zone deferred close orders
// submit.
type CloseConfig struct {
	Time     schedule.CloseTime `json:"time" yaml:"time"`
	Timezone string             `json:"timezone" yaml:"timezone"`
}

// BrokerConfig points at the live broker endpoint.
type BrokerConfig struct {
	BaseURL string `json:"base_url" yaml:"base_url"`
}

// AuditConfig selects the audit sinks. Path enables the JSONL file sink;
// DBPath enables the SQLite sink. Both may be set.
type AuditConfig struct {
	Path   string `json:"path,omitempty" yaml:"path,omitempty"`
	DBPath string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

// Default returns the paper-mode defaults: trading enabled, 30 orders/hour,
// three retries at 500ms, close submission 15:59:50 America/New_York, and a
// JSONL audit log under data/.
func Default() *Config {
	return &Config{
		Mode:        "paper",
		Enabled:     true,
		MaxOrderQty: 5,
		Risk: RiskConfig{
			MaxOrdersPerHour: 30,
		},
		Retry: RetryConfig{
			Attempts: 3,
			Backoff:  "500ms",
		},
		Close: CloseConfig{
			Time:     schedule.DefaultCloseTime,
			Timezone: schedule.MarketTimezone,
		},
		Audit: AuditConfig{
			Path: "data/trade_audit.jsonl",
		},
		LogLevel: "info",
	}
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON.
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jerr := json.Unmarshal(data, cfg); jerr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SaveToFile writes the configuration to a file, YAML or JSON by extension.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks the configuration for values the dispatcher cannot run
// with.
func (c *Config) Validate() error {
	if c.Mode != "paper" && c.Mode != "live" {
		return fmt.Errorf("mode must be \"paper\" or \"live\", got %q", c.Mode)
	}
	if c.Risk.MaxOrdersPerHour < 0 {
		return fmt.Errorf("risk.max_orders_per_hour must be >= 0")
	}
	if c.Risk.MaxDailyLoss < 0 {
		return fmt.Errorf("risk.max_daily_loss must be >= 0")
	}
	if c.Risk.MaxPosition < 0 {
		return fmt.Errorf("risk.max_position must be >= 0")
	}
	if c.Retry.Attempts < 1 {
		return fmt.Errorf("retry.attempts must be >= 1")
	}
	if _, err := c.Retry.ParseBackoff(); err != nil {
		return fmt.Errorf("retry.backoff: %w", err)
	}
	ct := c.Close.Time
	if ct.Hour < 0 || ct.Hour > 23 || ct.Minute < 0 || ct.Minute > 59 || ct.Second < 0 || ct.Second > 59 {
		return fmt.Errorf("close.time %02d:%02d:%02d out of range", ct.Hour, ct.Minute, ct.Second)
	}
	if _, err := c.Timezone(); err != nil {
		return err
	}
	if c.Mode == "live" && c.Broker.BaseURL == "" {
		return fmt.Errorf("broker.base_url is required in live mode")
	}
	return nil
}

// Timezone resolves the configured market zone.
func (c *Config) Timezone() (*time.Location, error) {
	name := c.Close.Timezone
	if name == "" {
		name = schedule.MarketTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("close.timezone: %w", err)
	}
	return loc, nil
}
