// Package config loads and validates bsonmend run settings.
//
// Settings come from an optional YAML file; the CLI overlays explicitly set
// flags on top. The merged result is checked against an embedded CUE schema.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// MaxParallel bounds the number of streams in flight.
const MaxParallel = 64

// Config holds everything a fix or scan run needs.
type Config struct {
	URI          string   `yaml:"uri" json:"uri"`
	Database     string   `yaml:"database" json:"database"`
	Collections  []string `yaml:"collections" json:"collections,omitempty"`
	Confirm      bool     `yaml:"confirm" json:"confirm"`
	DryRun       bool     `yaml:"dry_run" json:"dry_run"`
	Parallel     int      `yaml:"parallel" json:"parallel"`
	Journal      string   `yaml:"journal" json:"journal,omitempty"`
	SkipDeclined bool     `yaml:"skip_declined" json:"skip_declined"`
}

// Default returns the settings used when neither file nor flag says otherwise.
func Default() *Config {
	return &Config{Parallel: 1}
}

// Load reads a YAML config file over the defaults.
// Unknown keys are rejected so typos do not silently fall back to defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Normalize applies the rules that adjust rather than reject settings.
// Interactive confirmation needs one prompt at a time, so --confirm forces a
// single stream.
func (c *Config) Normalize() {
	if c.Confirm && c.Parallel > 1 {
		slog.Warn("confirmation is interactive, processing one collection at a time",
			"requested_parallel", c.Parallel)
		c.Parallel = 1
	}
}

// Validate checks c against the schema.
func (c *Config) Validate() error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	value := ctx.Encode(c)
	if err := value.Err(); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if err := def.Unify(value).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if c.SkipDeclined && c.Journal == "" {
		return errors.New("invalid config: skip_declined requires a journal")
	}
	return nil
}
