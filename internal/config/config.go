// Package config holds the runtime settings of the engine and the CLI.
//
// Settings come from an optional YAML file; command-line flags override
// individual values after loading.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/x3drouter/internal/engine"
	"github.com/roach88/x3drouter/internal/script"
)

// Config holds engine and tracing configuration.
type Config struct {
	// MaxDeliveriesPerFrame caps route deliveries in one frame before the
	// rest of the frame's changes are dropped.
	MaxDeliveriesPerFrame int `yaml:"max_deliveries_per_frame"`

	// LoopPolicy is "equality" or "once_per_frame".
	LoopPolicy string `yaml:"loop_policy"`

	// FrameInterval is the real-time driver's tick period.
	FrameInterval time.Duration `yaml:"frame_interval"`

	Script ScriptConfig `yaml:"script"`
	Trace  TraceConfig  `yaml:"trace"`
}

// ScriptConfig holds Script node settings.
type ScriptConfig struct {
	// Timeout bounds a single script function call.
	Timeout time.Duration `yaml:"timeout"`
}

// TraceConfig controls trace recording.
type TraceConfig struct {
	Enabled bool `yaml:"enabled"`

	// DB is the SQLite trace database path.
	DB string `yaml:"db"`
}

// DefaultTraceDB is the trace database used when none is configured.
const DefaultTraceDB = "x3drouter-trace.db"

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		MaxDeliveriesPerFrame: engine.DefaultMaxDeliveries,
		LoopPolicy:            engine.LoopPolicyEquality.String(),
		FrameInterval:         engine.DefaultFrameInterval,
		Script:                ScriptConfig{Timeout: script.DefaultTimeout},
		Trace:                 TraceConfig{DB: DefaultTraceDB},
	}
}

// Load reads configuration from path on top of the defaults. An empty path
// or a missing file yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML on top of the defaults and validates the result.
// Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	// An empty document decodes to io.EOF and keeps the defaults.
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if c.MaxDeliveriesPerFrame <= 0 {
		errs = append(errs, fmt.Errorf("max_deliveries_per_frame must be > 0, got %d", c.MaxDeliveriesPerFrame))
	}
	if _, ok := engine.ParseLoopPolicy(c.LoopPolicy); !ok {
		errs = append(errs, fmt.Errorf("loop_policy must be \"equality\" or \"once_per_frame\", got %q", c.LoopPolicy))
	}
	if c.FrameInterval <= 0 {
		errs = append(errs, fmt.Errorf("frame_interval must be > 0, got %s", c.FrameInterval))
	}
	if c.Script.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("script.timeout must be > 0, got %s", c.Script.Timeout))
	}
	if c.Trace.Enabled && c.Trace.DB == "" {
		errs = append(errs, errors.New("trace.db is required when trace.enabled is set"))
	}
	return errors.Join(errs...)
}

// EngineOptions converts the configuration into engine options.
func (c *Config) EngineOptions() []engine.EngineOption {
	policy, _ := engine.ParseLoopPolicy(c.LoopPolicy)
	return []engine.EngineOption{
		engine.WithMaxDeliveries(c.MaxDeliveriesPerFrame),
		engine.WithLoopPolicy(policy),
		engine.WithScriptTimeout(c.Script.Timeout),
	}
}
