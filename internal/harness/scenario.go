package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/x3drouter/internal/engine"
)

// Scenario defines a conformance test scenario.
// A scenario loads one scene, evaluates a sequence of frames with external
// inputs, and asserts on the recorded route deliveries and final node state.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Scene is the path to the .cue scene file.
	// Relative paths are resolved against the scenario file location.
	Scene string `yaml:"scene"`

	// RunID is an optional fixed run ID for deterministic traces.
	// If empty, defaults to "test-run-default".
	RunID string `yaml:"run_id,omitempty"`

	// MaxDeliveries overrides the per-frame delivery limit. Zero keeps
	// the engine default.
	MaxDeliveries int `yaml:"max_deliveries,omitempty"`

	// LoopPolicy selects "equality" (default) or "once_per_frame".
	LoopPolicy string `yaml:"loop_policy,omitempty"`

	// IntervalMS spaces the frames of a step with count > 1.
	// Defaults to 16.
	IntervalMS int64 `yaml:"interval_ms,omitempty"`

	// Frames lists the frames to evaluate, in increasing time order.
	Frames []FrameStep `yaml:"frames"`

	// Assertions validate the final trace and state.
	// Supported types: delivered, delivery_order, delivery_count,
	// final_state, overflow, error_count
	Assertions []Assertion `yaml:"assertions"`
}

// FrameStep evaluates one frame, or Count frames IntervalMS apart.
type FrameStep struct {
	// At is the frame time in milliseconds.
	At int64 `yaml:"at"`

	// Count repeats the frame; inputs are applied before the first one.
	Count int `yaml:"count,omitempty"`

	// Inputs are applied at the start of the frame, in order.
	Inputs []engine.ExternalInput `yaml:"inputs,omitempty"`

	// Expect maps "DEF.field" to the value the field must hold once the
	// step's last frame has been published.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// frames returns how many frames the step evaluates.
func (s FrameStep) frames() int {
	if s.Count > 0 {
		return s.Count
	}
	return 1
}

// last returns the time of the step's last frame.
func (s FrameStep) last(interval int64) int64 {
	return s.At + int64(s.frames()-1)*interval
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "delivered": a delivery along Route appears in the trace
	// - "delivery_order": deliveries along Routes first appear in order
	// - "delivery_count": Route carries exactly Count deliveries
	// - "final_state": Node's fields hold Expect after the last frame
	// - "overflow": the delivery breaker tripped in Frame
	// - "error_count": exactly Count runtime errors (of Code) were reported
	Type string `yaml:"type"`

	// Route is "Src.field TO Dest.field" with canonical field names
	// (used by delivered, delivery_count).
	Route string `yaml:"route,omitempty"`

	// Routes is the expected delivery order (used by delivery_order).
	Routes []string `yaml:"routes,omitempty"`

	// Frame restricts the assertion to one frame. Zero means any frame.
	Frame uint64 `yaml:"frame,omitempty"`

	// Value is the expected delivered value (used by delivered).
	Value any `yaml:"value,omitempty"`

	// Accepted is the expected acceptance of the delivery (used by delivered).
	Accepted *bool `yaml:"accepted,omitempty"`

	// Node is the DEF name (used by final_state).
	Node string `yaml:"node,omitempty"`

	// Expect contains expected field values (used by final_state).
	// Subset match - only specified fields are validated.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Count is the expected number of occurrences
	// (used by delivery_count, error_count).
	Count int `yaml:"count,omitempty"`

	// Code filters runtime errors by code (used by error_count).
	Code string `yaml:"code,omitempty"`
}

// Assertion type constants.
const (
	AssertDelivered     = "delivered"
	AssertDeliveryOrder = "delivery_order"
	AssertDeliveryCount = "delivery_count"
	AssertFinalState    = "final_state"
	AssertOverflow      = "overflow"
	AssertErrorCount    = "error_count"
)

// DefaultIntervalMS is the spacing of repeated frames.
const DefaultIntervalMS = 16

// LoadScenario reads and parses a scenario YAML file, resolving the scene
// path relative to the scenario file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving the scene path relative to the provided base path.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Scene != "" && !filepath.IsAbs(scenario.Scene) && basePath != "" {
		scenario.Scene = filepath.Join(basePath, scenario.Scene)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// interval returns the spacing of repeated frames.
func (s *Scenario) interval() int64 {
	if s.IntervalMS > 0 {
		return s.IntervalMS
	}
	return DefaultIntervalMS
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Scene == "" {
		return fmt.Errorf("scene is required")
	}
	if _, err := os.Stat(s.Scene); os.IsNotExist(err) {
		return &SceneNotFoundError{Scenario: s.Name, ScenePath: s.Scene}
	}

	if len(s.Frames) == 0 {
		return fmt.Errorf("frames list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if s.MaxDeliveries < 0 {
		return fmt.Errorf("max_deliveries must be non-negative")
	}
	if _, ok := engine.ParseLoopPolicy(s.LoopPolicy); !ok {
		return fmt.Errorf("unknown loop_policy %q", s.LoopPolicy)
	}

	// Frame times must strictly increase or the engine skips the frame.
	prev := int64(-1)
	for i, step := range s.Frames {
		if step.At < 0 {
			return fmt.Errorf("frames[%d]: at must be non-negative", i)
		}
		if i > 0 && step.At <= prev {
			return fmt.Errorf("frames[%d]: at %d must be greater than the previous frame time %d", i, step.At, prev)
		}
		if step.Count < 0 {
			return fmt.Errorf("frames[%d]: count must be non-negative", i)
		}
		for j, in := range step.Inputs {
			if in.Kind == "" {
				return fmt.Errorf("frames[%d].inputs[%d]: kind is required", i, j)
			}
		}
		for key := range step.Expect {
			if _, _, ok := splitFieldRef(key); !ok {
				return fmt.Errorf("frames[%d].expect: %q is not DEF.field", i, key)
			}
		}
		prev = step.last(s.interval())
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertDelivered:
		if a.Route == "" {
			return fmt.Errorf("assertions[%d]: route is required for delivered", index)
		}
	case AssertDeliveryOrder:
		if len(a.Routes) == 0 {
			return fmt.Errorf("assertions[%d]: routes list is required for delivery_order", index)
		}
	case AssertDeliveryCount:
		if a.Route == "" {
			return fmt.Errorf("assertions[%d]: route is required for delivery_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for delivery_count", index)
		}
	case AssertFinalState:
		if a.Node == "" {
			return fmt.Errorf("assertions[%d]: node is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertOverflow:
		if a.Frame == 0 {
			return fmt.Errorf("assertions[%d]: frame is required for overflow", index)
		}
	case AssertErrorCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for error_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
