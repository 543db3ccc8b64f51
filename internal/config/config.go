// Package config loads trichter settings from YAML and the environment and
// converts them into the domain configs.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/trichter/internal/cognitive"
	"github.com/danielpatrickdp/trichter/internal/gate"
	"github.com/danielpatrickdp/trichter/internal/hyperbion"
	"github.com/danielpatrickdp/trichter/internal/logging"
	"github.com/danielpatrickdp/trichter/internal/policy"
	"github.com/danielpatrickdp/trichter/internal/runner"
	"github.com/danielpatrickdp/trichter/internal/storage"
	"github.com/danielpatrickdp/trichter/internal/tick"
)

// #region types
// Config is the full trichter configuration.
type Config struct {
	Policy    PolicyConfig    `yaml:"policy"`
	Gate      GateConfig      `yaml:"gate"`
	Hyperbion HyperbionConfig `yaml:"hyperbion"`
	Runner    RunnerConfig    `yaml:"runner"`
	Storage   StorageConfig   `yaml:"storage"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Logging   LoggingConfig   `yaml:"logging"`
	Server    ServerConfig    `yaml:"server"`
}

type PolicyConfig struct {
	Variant       string  `yaml:"variant" validate:"oneof=explore exploit homeostasis"`
	TargetDensity float64 `yaml:"target_density,omitempty" validate:"gte=0"`
}

// GateConfig selects a preset. Non-nil overrides replace single thresholds.
type GateConfig struct {
	Preset            string   `yaml:"preset" validate:"omitempty,oneof=default strict relaxed"`
	Epsilon           *float64 `yaml:"epsilon,omitempty" validate:"omitempty,gte=0"`
	PhiThreshold      *float64 `yaml:"phi_threshold,omitempty" validate:"omitempty,gte=0"`
	ResonanceStrength *float64 `yaml:"resonance_strength,omitempty" validate:"omitempty,gte=0"`
}

type HyperbionConfig struct {
	Alpha float64 `yaml:"alpha"`
	Beta  float64 `yaml:"beta"`
}

type RunnerConfig struct {
	Parallelism int           `yaml:"parallelism" validate:"gte=1,lte=1024"`
	RunTimeout  time.Duration `yaml:"run_timeout" validate:"gte=0"`
	BatchSize   int           `yaml:"batch_size" validate:"gte=1"`
	StoreHolds  bool          `yaml:"store_holds"`
}

// StorageConfig picks the backend cognitive outputs are stored in.
type StorageConfig struct {
	Backend     string `yaml:"backend" validate:"oneof=memory sqlite remote"`
	Path        string `yaml:"path,omitempty" validate:"required_if=Backend sqlite"`
	Address     string `yaml:"address,omitempty" validate:"required_if=Backend remote"`
	FireOnly    bool   `yaml:"fire_only"`
	MaxAttempts int    `yaml:"max_attempts" validate:"gte=1,lte=10"`
}

// LedgerConfig picks where commit chains are persisted. "none" keeps them
// in memory only.
type LedgerConfig struct {
	Backend string `yaml:"backend" validate:"oneof=none sqlite badger"`
	Path    string `yaml:"path,omitempty" validate:"required_unless=Backend none"`
}

type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=trace debug info warn error"`
}

type ServerConfig struct {
	GRPCAddr    string `yaml:"grpc_addr" validate:"required,hostname_port"`
	MetricsAddr string `yaml:"metrics_addr" validate:"omitempty,hostname_port"`
}

// #endregion types

// #region defaults
// Default returns Homeostasis, the default gate, four workers and in-memory
// storage.
func Default() *Config {
	h := hyperbion.Default()
	r := runner.DefaultConfig()
	return &Config{
		Policy:    PolicyConfig{Variant: string(policy.Homeostasis)},
		Gate:      GateConfig{Preset: "default"},
		Hyperbion: HyperbionConfig{Alpha: h.Alpha, Beta: h.Beta},
		Runner: RunnerConfig{
			Parallelism: r.Parallelism,
			RunTimeout:  r.RunTimeout,
			BatchSize:   cognitive.DefaultBatchSize,
		},
		Storage: StorageConfig{
			Backend:     storage.TypeMemory,
			MaxAttempts: storage.DefaultRetryConfig().MaxAttempts,
		},
		Ledger:  LedgerConfig{Backend: "none"},
		Logging: LoggingConfig{Level: "info"},
		Server:  ServerConfig{GRPCAddr: "localhost:50061", MetricsAddr: "localhost:9464"},
	}
}

// #endregion defaults

// #region load
// Load reads path, or ~/.trichter/config.yaml when path is empty and that
// file exists, applies TRICHTER_* overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		if home, err := os.UserHomeDir(); err == nil {
			candidate := filepath.Join(home, ".trichter", "config.yaml")
			if _, statErr := os.Stat(candidate); statErr == nil {
				path = candidate
			}
		}
	}
	if path != "" {
		fileCfg, err := LoadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
		cfg = fileCfg
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile parses a YAML file over the defaults. It does not validate.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	cfg.Storage.Path = os.ExpandEnv(cfg.Storage.Path)
	cfg.Ledger.Path = os.ExpandEnv(cfg.Ledger.Path)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TRICHTER_POLICY"); v != "" {
		cfg.Policy.Variant = strings.ToLower(v)
	}
	if v := os.Getenv("TRICHTER_GATE_PRESET"); v != "" {
		cfg.Gate.Preset = strings.ToLower(v)
	}
	if v := os.Getenv("TRICHTER_PARALLELISM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Runner.Parallelism = n
		}
	}
	if v := os.Getenv("TRICHTER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("TRICHTER_STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("TRICHTER_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
}

// #endregion load

// #region validate
var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the struct tags, then that every section converts.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.TickConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// #endregion validate

// #region converters
// PolicyParams returns the preset for the configured variant.
func (c *Config) PolicyParams() (policy.Params, error) {
	v, err := policy.ParseVariant(c.Policy.Variant)
	if err != nil {
		return policy.Params{}, err
	}
	return policy.ForVariant(v, c.Policy.TargetDensity)
}

// GateConfig returns the preset with any overrides applied.
func (c *Config) GateConfig() (gate.Config, error) {
	g, err := gate.Preset(c.Gate.Preset)
	if err != nil {
		return gate.Config{}, err
	}
	if c.Gate.Epsilon != nil {
		g.Epsilon = *c.Gate.Epsilon
	}
	if c.Gate.PhiThreshold != nil {
		g.PhiThreshold = *c.Gate.PhiThreshold
	}
	if c.Gate.ResonanceStrength != nil {
		g.ResonanceStrength = *c.Gate.ResonanceStrength
	}
	return gate.NewConfig(g.Epsilon, g.PhiThreshold, g.ResonanceStrength)
}

// HyperbionParams builds the field constants.
func (c *Config) HyperbionParams() (hyperbion.Hyperbion, error) {
	return hyperbion.New(c.Hyperbion.Alpha, c.Hyperbion.Beta)
}

// TickConfig assembles the per-run pipeline config.
func (c *Config) TickConfig() (tick.Config, error) {
	p, err := c.PolicyParams()
	if err != nil {
		return tick.Config{}, err
	}
	g, err := c.GateConfig()
	if err != nil {
		return tick.Config{}, err
	}
	h, err := c.HyperbionParams()
	if err != nil {
		return tick.Config{}, err
	}
	tc := tick.DefaultConfig()
	tc.Policy = p
	tc.Gate = g
	tc.Hyperbion = h
	return tc, nil
}

// RunnerConfig returns the worker pool config. Sinks is left for the caller.
func (c *Config) RunnerConfig() (runner.Config, error) {
	tc, err := c.TickConfig()
	if err != nil {
		return runner.Config{}, err
	}
	rc := runner.DefaultConfig()
	rc.Parallelism = c.Runner.Parallelism
	rc.RunTimeout = c.Runner.RunTimeout
	rc.StoreHolds = c.Runner.StoreHolds
	rc.Engine.Tick = tc
	rc.Engine.BatchSize = c.Runner.BatchSize
	return rc, nil
}

// RetryConfig returns the storage retry policy.
func (c *Config) RetryConfig() storage.RetryConfig {
	rc := storage.DefaultRetryConfig()
	rc.MaxAttempts = c.Storage.MaxAttempts
	return rc
}

// #endregion converters
