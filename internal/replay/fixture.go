package replay

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/trichter/internal/gate"
	"github.com/danielpatrickdp/trichter/internal/ledger"
	"github.com/danielpatrickdp/trichter/internal/policy"
	"github.com/danielpatrickdp/trichter/internal/tick"
)

// #region fixture-types

// Fixture pins the commit hashes a seeded replay must reproduce.
type Fixture struct {
	Description    string   `json:"description" yaml:"description"`
	Seed           string   `json:"seed" yaml:"seed"`
	Ticks          int      `json:"ticks" yaml:"ticks"`
	Particles      int      `json:"particles" yaml:"particles"`
	Contraction    float64  `json:"contraction" yaml:"contraction"`
	Noise          float64  `json:"noise" yaml:"noise"`
	Policy         string   `json:"policy" yaml:"policy"`
	TargetDensity  float64  `json:"target_density,omitempty" yaml:"target_density,omitempty"`
	GatePreset     string   `json:"gate_preset" yaml:"gate_preset"`
	ExpectedHashes []string `json:"expected_hashes" yaml:"expected_hashes"`
}

// MismatchError reports the first commit that differs from the fixture.
type MismatchError struct {
	Index int
	Want  string
	Got   string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("replay: commit %d: want %s, got %s", e.Index, e.Want, e.Got)
}

// #endregion fixture-types

// #region fixture-config

// Config converts the fixture into a replay config.
func (f *Fixture) Config() (Config, error) {
	v, err := policy.ParseVariant(f.Policy)
	if err != nil {
		return Config{}, err
	}
	p, err := policy.ForVariant(v, f.TargetDensity)
	if err != nil {
		return Config{}, err
	}
	g, err := gate.Preset(f.GatePreset)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Seed:        f.Seed,
		Ticks:       f.Ticks,
		Particles:   f.Particles,
		Contraction: f.Contraction,
		Noise:       f.Noise,
		Tick:        tick.DefaultConfig(),
	}
	cfg.Tick.Policy = p
	cfg.Tick.Gate = g
	return cfg, cfg.Validate()
}

// Record builds a fixture from a config and the results it produced.
func Record(description, gatePreset string, cfg Config, results []Result) Fixture {
	f := Fixture{
		Description:    description,
		Seed:           cfg.Seed,
		Ticks:          cfg.Ticks,
		Particles:      cfg.Particles,
		Contraction:    cfg.Contraction,
		Noise:          cfg.Noise,
		Policy:         string(cfg.Tick.Policy.Variant),
		GatePreset:     gatePreset,
		ExpectedHashes: []string{},
	}
	if cfg.Tick.Policy.Variant == policy.Homeostasis {
		f.TargetDensity = cfg.Tick.Policy.TargetDensity
	}
	for _, h := range Hashes(results) {
		f.ExpectedHashes = append(f.ExpectedHashes, h.String())
	}
	return f
}

// Check compares the emitted commit hashes against the fixture.
func (f *Fixture) Check(results []Result) error {
	got := Hashes(results)
	for i := 0; i < max(len(got), len(f.ExpectedHashes)); i++ {
		var want, have string
		if i < len(f.ExpectedHashes) {
			want = f.ExpectedHashes[i]
		}
		if i < len(got) {
			have = got[i].String()
		}
		if want != have {
			return &MismatchError{Index: i, Want: orNone(want), Got: orNone(have)}
		}
	}
	return nil
}

func orNone(s string) string {
	if s == "" {
		return "<none>"
	}
	return s
}

// #endregion fixture-config

// #region fixture-io

// LoadFixture reads a JSON or YAML fixture, chosen by extension.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if isYAML(path) {
		err = yaml.Unmarshal(data, &f)
	} else {
		err = json.Unmarshal(data, &f)
	}
	if err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	for i, h := range f.ExpectedHashes {
		if _, err := ledger.ParseHash(h); err != nil {
			return nil, fmt.Errorf("fixture %s: expected hash %d: %w", path, i, err)
		}
	}
	return &f, nil
}

// SaveFixture writes f as JSON or YAML, chosen by extension.
func SaveFixture(path string, f Fixture) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(f)
	} else {
		data, err = json.MarshalIndent(f, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("encode fixture: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write fixture %s: %w", path, err)
	}
	return nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// #endregion fixture-io
