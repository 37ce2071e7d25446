package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

const (
	DefaultSimpleTimeout   = 5 * time.Second
	DefaultAdvancedTimeout = 10 * time.Second
)

// Config holds the provider list and global settings
type Config struct {
	Providers []Provider `yaml:"rpc_providers"`
	Global    Settings   `yaml:"global_settings"`
}

// Provider is one RPC endpoint under test.
type Provider struct {
	Name    string `yaml:"name"`
	URL     string `yaml:"url"`
	Methods struct {
		Simple   SimpleTest   `yaml:"simple_test"`
		Advanced AdvancedTest `yaml:"advanced_test"`
	} `yaml:"methods"`
}

type SimpleTest struct {
	Method       string  `yaml:"method"`
	Params       []any   `yaml:"params"`
	PingInterval int     `yaml:"ping_interval"` // seconds
	Timeout      float64 `yaml:"timeout"`       // seconds, optional
}

type AdvancedTest struct {
	Enabled      *bool    `yaml:"enabled"`
	PingInterval int      `yaml:"ping_interval"`
	Timeout      float64  `yaml:"timeout"`
	Methods      SubTests `yaml:"methods"`
}

// SubTest is a named advanced probe. Enabled defaults to true when omitted.
type SubTest struct {
	Name       string `yaml:"-"`
	Enabled    *bool  `yaml:"enabled"`
	Method     string `yaml:"method"`
	Params     []any  `yaml:"params"`
	Complexity string `yaml:"complexity"`
}

func (s SubTest) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// SubTests keeps the order in which sub-tests appear in the document.
type SubTests []SubTest

func (s *SubTests) UnmarshalYAML(b []byte) error {
	var order yaml.MapSlice
	if err := yaml.Unmarshal(b, &order); err != nil {
		return err
	}
	var values map[string]SubTest
	if err := yaml.Unmarshal(b, &values); err != nil {
		return err
	}
	out := make(SubTests, 0, len(order))
	for _, item := range order {
		name := fmt.Sprint(item.Key)
		st := values[name]
		st.Name = name
		out = append(out, st)
	}
	*s = out
	return nil
}

// Settings are the global_settings block. Fields tagged envconfig can be
// overridden from the environment.
type Settings struct {
	DatabasePath string `yaml:"database_path" envconfig:"DATABASE_PATH"`
	APIHost      string `yaml:"api_host" envconfig:"API_HOST"`
	APIPort      int    `yaml:"api_port" envconfig:"PORT"`

	SimpleRetentionDays      int `yaml:"simple_data_retention_days" ignored:"true"`
	AdvancedRetentionDays    int `yaml:"advanced_data_retention_days" ignored:"true"`
	AggregationRetentionDays int `yaml:"aggregation_retention_days" ignored:"true"`

	MaintenanceInterval     int     `yaml:"maintenance_interval" ignored:"true"` // seconds
	HealthOKMultiplier      float64 `yaml:"health_ok_multiplier" ignored:"true"`
	HealthWarningMultiplier float64 `yaml:"health_warning_multiplier" ignored:"true"`
	SchedulerTickMS         int     `yaml:"scheduler_tick_ms" ignored:"true"`
	MaxConcurrentProbes     int     `yaml:"max_concurrent_probes" ignored:"true"`

	LogDir   string `yaml:"log_dir" envconfig:"LOG_DIR"`
	LogLevel string `yaml:"log_level" envconfig:"LOG_LEVEL"`
}

// Load reads, overrides, defaults and validates the document at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(raw)
}

// Parse is Load without the file read.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := envconfig.Process("", &cfg.Global); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	g := &c.Global
	if g.DatabasePath == "" {
		g.DatabasePath = "latency_tracker.db"
	}
	if g.APIHost == "" {
		g.APIHost = "0.0.0.0"
	}
	if g.APIPort == 0 {
		g.APIPort = 8000
	}
	if g.SimpleRetentionDays == 0 {
		g.SimpleRetentionDays = 7
	}
	if g.AdvancedRetentionDays == 0 {
		g.AdvancedRetentionDays = 14
	}
	if g.AggregationRetentionDays == 0 {
		g.AggregationRetentionDays = 90
	}
	if g.MaintenanceInterval == 0 {
		g.MaintenanceInterval = 3600
	}
	if g.HealthOKMultiplier == 0 {
		g.HealthOKMultiplier = 2
	}
	if g.HealthWarningMultiplier == 0 {
		g.HealthWarningMultiplier = 4
	}
	if g.SchedulerTickMS == 0 {
		g.SchedulerTickMS = 1000
	}
	if g.MaxConcurrentProbes == 0 {
		g.MaxConcurrentProbes = len(c.Providers)
	}
	if g.LogDir == "" {
		g.LogDir = "logs"
	}
	if g.LogLevel == "" {
		g.LogLevel = "info"
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("%w: at least one provider must be specified", ErrInvalid)
	}
	seen := make(map[string]bool, len(c.Providers))
	for i, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("%w: provider %d has no name", ErrInvalid, i)
		}
		if seen[p.Name] {
			return fmt.Errorf("%w: duplicate provider name %q", ErrInvalid, p.Name)
		}
		seen[p.Name] = true

		u, err := url.Parse(p.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: provider %q has invalid url %q", ErrInvalid, p.Name, p.URL)
		}
		if p.Methods.Simple.Method == "" {
			return fmt.Errorf("%w: provider %q has no simple_test method", ErrInvalid, p.Name)
		}
		if p.Methods.Simple.PingInterval <= 0 {
			return fmt.Errorf("%w: provider %q simple_test ping_interval must be positive", ErrInvalid, p.Name)
		}
		if p.Methods.Simple.Timeout < 0 || p.Methods.Advanced.Timeout < 0 {
			return fmt.Errorf("%w: provider %q timeout cannot be negative", ErrInvalid, p.Name)
		}
		if !p.AdvancedEnabled() {
			continue
		}
		if p.Methods.Advanced.PingInterval <= 0 {
			return fmt.Errorf("%w: provider %q advanced_test ping_interval must be positive", ErrInvalid, p.Name)
		}
		for _, st := range p.Methods.Advanced.Methods {
			if st.IsEnabled() && st.Method == "" {
				return fmt.Errorf("%w: provider %q sub-test %q has no method", ErrInvalid, p.Name, st.Name)
			}
		}
	}

	g := c.Global
	if g.SimpleRetentionDays < 1 || g.AdvancedRetentionDays < 1 || g.AggregationRetentionDays < 1 {
		return fmt.Errorf("%w: retention periods must be at least one day", ErrInvalid)
	}
	if g.AggregationRetentionDays < max(g.SimpleRetentionDays, g.AdvancedRetentionDays) {
		return fmt.Errorf("%w: aggregation_retention_days must be at least the raw retention periods", ErrInvalid)
	}
	if g.APIPort <= 0 || g.APIPort > 65535 {
		return fmt.Errorf("%w: port must be between 1 and 65535", ErrInvalid)
	}
	if g.MaintenanceInterval < 0 || g.SchedulerTickMS < 0 || g.MaxConcurrentProbes < 0 {
		return fmt.Errorf("%w: intervals and limits cannot be negative", ErrInvalid)
	}
	if g.HealthOKMultiplier < 1 || g.HealthWarningMultiplier < g.HealthOKMultiplier {
		return fmt.Errorf("%w: health multipliers must satisfy 1 <= ok <= warning", ErrInvalid)
	}
	return nil
}

// AdvancedEnabled reports whether the provider runs advanced tests at all.
// A missing enabled flag means enabled.
func (p Provider) AdvancedEnabled() bool {
	a := p.Methods.Advanced
	if a.Enabled != nil && !*a.Enabled {
		return false
	}
	for _, st := range a.Methods {
		if st.IsEnabled() {
			return true
		}
	}
	return false
}

// EnabledSubTests returns the enabled advanced sub-tests in document order.
func (p Provider) EnabledSubTests() []SubTest {
	if !p.AdvancedEnabled() {
		return nil
	}
	var out []SubTest
	for _, st := range p.Methods.Advanced.Methods {
		if st.IsEnabled() {
			out = append(out, st)
		}
	}
	return out
}

func (p Provider) SimpleInterval() time.Duration {
	return time.Duration(p.Methods.Simple.PingInterval) * time.Second
}

func (p Provider) AdvancedInterval() time.Duration {
	return time.Duration(p.Methods.Advanced.PingInterval) * time.Second
}

func (p Provider) SimpleTimeout() time.Duration {
	return seconds(p.Methods.Simple.Timeout, DefaultSimpleTimeout)
}

func (p Provider) AdvancedTimeout() time.Duration {
	return seconds(p.Methods.Advanced.Timeout, DefaultAdvancedTimeout)
}

func seconds(v float64, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return time.Duration(v * float64(time.Second))
}

func (s Settings) Addr() string {
	return fmt.Sprintf("%s:%d", s.APIHost, s.APIPort)
}

func (s Settings) MaintenanceEvery() time.Duration {
	return time.Duration(s.MaintenanceInterval) * time.Second
}

func (s Settings) SchedulerTick() time.Duration {
	return time.Duration(s.SchedulerTickMS) * time.Millisecond
}
