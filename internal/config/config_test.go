package config

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danielpatrickdp/trichter/internal/gate"
	"github.com/danielpatrickdp/trichter/internal/policy"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefault_Validates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	p, err := Default().PolicyParams()
	if err != nil {
		t.Fatalf("PolicyParams: %v", err)
	}
	if p.Variant != policy.Homeostasis || p.TargetDensity != policy.DefaultTargetDensity {
		t.Errorf("unexpected default policy %+v", p)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
policy:
  variant: explore
gate:
  preset: strict
  epsilon: 0.07
runner:
  parallelism: 2
  run_timeout: 5s
  batch_size: 4
storage:
  backend: sqlite
  path: /tmp/trichter.db
`)
	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	// 1. Gate override replaces only epsilon
	g, err := cfg.GateConfig()
	if err != nil {
		t.Fatalf("GateConfig: %v", err)
	}
	want := gate.StrictConfig()
	want.Epsilon = 0.07
	if g != want {
		t.Errorf("gate = %+v, want %+v", g, want)
	}

	// 2. Runner settings flow through to the engine
	rc, err := cfg.RunnerConfig()
	if err != nil {
		t.Fatalf("RunnerConfig: %v", err)
	}
	if rc.Parallelism != 2 || rc.RunTimeout != 5*time.Second || rc.Engine.BatchSize != 4 {
		t.Errorf("unexpected runner config %+v", rc)
	}
	if rc.Engine.Tick.Policy.Variant != policy.Explore || rc.Engine.Tick.Gate != want {
		t.Errorf("tick config not applied: %+v", rc.Engine.Tick)
	}

	// 3. Unset sections keep their defaults
	if cfg.Logging.Level != "info" || cfg.Ledger.Backend != "none" {
		t.Errorf("defaults lost: logging=%q ledger=%q", cfg.Logging.Level, cfg.Ledger.Backend)
	}
}

func TestLoadFromFile_Errors(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := LoadFromFile(writeConfig(t, "policy: [unclosed")); err == nil {
		t.Error("expected error for malformed yaml")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("TRICHTER_POLICY", "Exploit")
	t.Setenv("TRICHTER_GATE_PRESET", "relaxed")
	t.Setenv("TRICHTER_PARALLELISM", "8")
	t.Setenv("TRICHTER_LOG_LEVEL", "TRACE")
	t.Setenv("TRICHTER_STORAGE_BACKEND", "sqlite")
	t.Setenv("TRICHTER_STORAGE_PATH", "/var/lib/trichter/out.db")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Policy.Variant != "exploit" || cfg.Gate.Preset != "relaxed" {
		t.Errorf("policy/gate not overridden: %+v %+v", cfg.Policy, cfg.Gate)
	}
	if cfg.Runner.Parallelism != 8 || cfg.Logging.Level != "trace" {
		t.Errorf("runner/logging not overridden: %+v %+v", cfg.Runner, cfg.Logging)
	}
	if cfg.Storage.Backend != "sqlite" || cfg.Storage.Path != "/var/lib/trichter/out.db" {
		t.Errorf("storage not overridden: %+v", cfg.Storage)
	}
}

func TestLoad_IgnoresMalformedNumber(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("TRICHTER_PARALLELISM", "many")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Runner.Parallelism != Default().Runner.Parallelism {
		t.Errorf("parallelism = %d, want default", cfg.Runner.Parallelism)
	}
}

func TestValidate_Rejects(t *testing.T) {
	neg := -0.1
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown policy", func(c *Config) { c.Policy.Variant = "chaos" }, "Variant"},
		{"zero workers", func(c *Config) { c.Runner.Parallelism = 0 }, "Parallelism"},
		{"sqlite without path", func(c *Config) { c.Storage.Backend = "sqlite" }, "Path"},
		{"remote without address", func(c *Config) { c.Storage.Backend = "remote" }, "Address"},
		{"ledger without path", func(c *Config) { c.Ledger.Backend = "badger" }, "Path"},
		{"unknown level", func(c *Config) { c.Logging.Level = "loud" }, "Level"},
		{"unknown preset", func(c *Config) { c.Gate.Preset = "lenient" }, "Preset"},
		{"negative epsilon", func(c *Config) { c.Gate.Epsilon = &neg }, "Epsilon"},
		{"bad grpc addr", func(c *Config) { c.Server.GRPCAddr = "nowhere" }, "GRPCAddr"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %s", err, tc.want)
			}
		})
	}
}

func TestHyperbionParams(t *testing.T) {
	cfg := Default()
	cfg.Hyperbion.Alpha = 2
	cfg.Hyperbion.Beta = 0.5

	h, err := cfg.HyperbionParams()
	if err != nil {
		t.Fatalf("HyperbionParams: %v", err)
	}
	if h.Alpha != 2 || h.Beta != 0.5 {
		t.Errorf("unexpected constants %+v", h)
	}
	tc, err := cfg.TickConfig()
	if err != nil {
		t.Fatalf("TickConfig: %v", err)
	}
	if tc.Hyperbion != h {
		t.Errorf("tick config carries %+v, want %+v", tc.Hyperbion, h)
	}

	cfg.Hyperbion.Alpha = math.Inf(1)
	if _, err := cfg.HyperbionParams(); err == nil {
		t.Error("expected error for infinite alpha")
	}
}
