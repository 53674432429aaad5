// Package config loads the per-vat YAML configuration that gates the
// optional features spec.md §6 and §9 describe: whether the vatstore is
// enabled and whether disavow is permitted, plus a few descriptive and
// operational settings.
//
// Grounded on the teacher's existing gopkg.in/yaml.v2 dependency, carried
// in go.mod but never exercised by the teacher's own runtime -- this is
// the ambient-stack job that gives it one, per the config-layer section
// SPEC_FULL.md calls for.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Config is the YAML-loadable configuration for one vat.
type Config struct {
	// VatName is a human-readable name for this vat. vat.New does not read
	// it; the vatstore namespace comes from VatstorePrefix.
	VatName string `yaml:"vatName"`

	// EnableVatstore gates whether vat.New wires a vstore.Store into
	// Powers.Store; when false, Powers.Store is nil (spec.md §6).
	EnableVatstore bool `yaml:"enableVatstore"`

	// EnableDisavow gates whether vat powers expose Disavow (spec.md §8
	// scenario 6); some embedders may wish to disable it entirely.
	EnableDisavow bool `yaml:"enableDisavow"`

	// LogLevel is one of "debug", "info", "warn", "error". vat.New does not
	// read it, and vatrun run takes its level from --log-level instead.
	LogLevel string `yaml:"logLevel"`

	// VatstorePrefix namespaces this vat's vatstore keys (package vstore).
	VatstorePrefix string `yaml:"vatstorePrefix"`

	// GCMaxRounds bounds gc.Engine.Drain's per-crank iteration count; zero
	// means unbounded (see DESIGN.md's Open Question decision on this).
	GCMaxRounds int `yaml:"gcMaxRounds"`
}

// Default returns a Config with conservative, fully-enabled defaults.
func Default() Config {
	return Config{
		VatName:        "vat",
		EnableVatstore: true,
		EnableDisavow:  true,
		LogLevel:       "info",
		VatstorePrefix: "v.",
		GCMaxRounds:    0,
	}
}

// Load reads and parses a vat configuration file, applying Default() for
// any field the file omits.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}
