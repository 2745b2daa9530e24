package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-gl/mathgl/mgl32"
	"gopkg.in/yaml.v3"

	"github.com/roach88/physync/internal/scene"
)

// Scenario drives a scene file for a fixed number of ticks, applying
// actions between ticks, and checks assertions on the recorded trace.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Scene is the path to the scene file, relative to the scenario file.
	Scene string `yaml:"scene"`

	// Ticks is how many sync windows to run.
	Ticks int `yaml:"ticks"`

	// Actions are applied before the tick they name.
	Actions []Action `yaml:"actions,omitempty"`

	// Assertions validate the trace and the final scene.
	Assertions []Assertion `yaml:"assertions"`
}

// Action is one change made to the scene between ticks.
//
// Do is either a rigid body command name (apply_central_force,
// set_linear_velocity, reset, ...) or one of the scene operations below.
type Action struct {
	// At is the 1-based tick the action runs before.
	At   int    `yaml:"at"`
	Do   string `yaml:"do"`
	Node string `yaml:"node,omitempty"`

	Vector   *mgl32.Vec3 `yaml:"vector,omitempty"`
	Position *mgl32.Vec3 `yaml:"position,omitempty"`
	// Rotation is XYZ Euler degrees, used by reset.
	Rotation *mgl32.Vec3 `yaml:"rotation,omitempty"`
	Scalar   *float32    `yaml:"scalar,omitempty"`
	Flag     *bool       `yaml:"flag,omitempty"`
}

// Scene operations accepted in Action.Do besides rigid body commands.
const (
	DoDeregister  = "deregister"
	DoRegister    = "register"
	DoSetPosition = "set_position"
	DoSetEnabled  = "set_enabled"
	DoMove        = "move"
	DoTeleport    = "teleport"
	DoSetGravity  = "set_gravity"
)

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "event_count": delivered events matching kind/sender/receiver
	// - "event_order": events appear in the given order
	// - "command_count": executed commands matching node/command
	// - "position": a node's final position along one axis
	// - "actor_count": live actors after a tick (0 means the last)
	Type string `yaml:"type"`

	Kind     string `yaml:"kind,omitempty"`
	Sender   string `yaml:"sender,omitempty"`
	Receiver string `yaml:"receiver,omitempty"`
	Node     string `yaml:"node,omitempty"`
	Command  string `yaml:"command,omitempty"`

	// Events for event_order, formatted "kind sender -> receiver".
	Events []string `yaml:"events,omitempty"`

	// Count for event_count, command_count and actor_count.
	Count int `yaml:"count"`

	// Tick for actor_count.
	Tick int64 `yaml:"tick,omitempty"`

	// Axis (x, y or z) and bounds for position.
	Axis  string   `yaml:"axis,omitempty"`
	Above *float32 `yaml:"above,omitempty"`
	Below *float32 `yaml:"below,omitempty"`
}

// Assertion type constants.
const (
	AssertEventCount   = "event_count"
	AssertEventOrder   = "event_order"
	AssertCommandCount = "command_count"
	AssertPosition     = "position"
	AssertActorCount   = "actor_count"
)

// LoadScenario reads and parses a scenario YAML file. The scene path is
// resolved relative to the scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Scene != "" && !filepath.IsAbs(scenario.Scene) {
		scenario.Scene = filepath.Join(filepath.Dir(path), scenario.Scene)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
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
		return fmt.Errorf("scene file not found: %s", s.Scene)
	}

	if s.Ticks <= 0 {
		return fmt.Errorf("ticks must be positive")
	}

	for i, a := range s.Actions {
		if err := validateAction(i, s.Ticks, &a); err != nil {
			return err
		}
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}

	return nil
}

func validateAction(index, ticks int, a *Action) error {
	if a.At < 1 || a.At > ticks {
		return fmt.Errorf("actions[%d]: at must be within 1..%d", index, ticks)
	}
	if a.Do == "" {
		return fmt.Errorf("actions[%d]: do is required", index)
	}

	if kind, ok := scene.ParseCommandKind(a.Do); ok {
		if a.Node == "" {
			return fmt.Errorf("actions[%d]: node is required for %s", index, a.Do)
		}
		return validateCommandArgs(index, kind, a)
	}

	switch a.Do {
	case DoDeregister, DoRegister:
		if a.Node == "" {
			return fmt.Errorf("actions[%d]: node is required for %s", index, a.Do)
		}
	case DoSetPosition, DoMove, DoTeleport:
		if a.Node == "" || a.Vector == nil {
			return fmt.Errorf("actions[%d]: node and vector are required for %s", index, a.Do)
		}
	case DoSetEnabled:
		if a.Node == "" || a.Flag == nil {
			return fmt.Errorf("actions[%d]: node and flag are required for %s", index, a.Do)
		}
	case DoSetGravity:
		if a.Vector == nil {
			return fmt.Errorf("actions[%d]: vector is required for %s", index, a.Do)
		}
	default:
		return fmt.Errorf("actions[%d]: unknown action %q", index, a.Do)
	}
	return nil
}

func validateCommandArgs(index int, kind scene.CommandKind, a *Action) error {
	switch kind {
	case scene.CmdSetMass, scene.CmdSetDensity:
		if a.Scalar == nil {
			return fmt.Errorf("actions[%d]: scalar is required for %s", index, a.Do)
		}
	case scene.CmdSetMassAndInertiaTensor:
		if a.Scalar == nil || a.Vector == nil {
			return fmt.Errorf("actions[%d]: scalar and vector are required for %s", index, a.Do)
		}
	case scene.CmdSetMassAndInertiaMatrix:
		return fmt.Errorf("actions[%d]: %s is not supported in scenarios", index, a.Do)
	case scene.CmdSetKinematic, scene.CmdSetGravityEnabled:
		if a.Flag == nil {
			return fmt.Errorf("actions[%d]: flag is required for %s", index, a.Do)
		}
	case scene.CmdReset:
		if a.Position == nil {
			return fmt.Errorf("actions[%d]: position is required for %s", index, a.Do)
		}
	default:
		if a.Vector == nil {
			return fmt.Errorf("actions[%d]: vector is required for %s", index, a.Do)
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
	case AssertEventCount:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for event_count", index)
		}
	case AssertEventOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for event_order", index)
		}
	case AssertCommandCount:
		if a.Command == "" {
			return fmt.Errorf("assertions[%d]: command is required for command_count", index)
		}
	case AssertPosition:
		if a.Node == "" {
			return fmt.Errorf("assertions[%d]: node is required for position", index)
		}
		if a.Axis != "x" && a.Axis != "y" && a.Axis != "z" {
			return fmt.Errorf("assertions[%d]: axis must be x, y or z", index)
		}
		if a.Above == nil && a.Below == nil {
			return fmt.Errorf("assertions[%d]: above or below is required for position", index)
		}
	case AssertActorCount:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
