// Package scenefile loads declarative scene descriptions from YAML.
//
// A scene file names a world configuration and a tree of nodes:
//
//	name: falling-box
//	world:
//	  gravity: [0, -981, 0]
//	  min_timestep: 16ms
//	nodes:
//	  - name: ground
//	    kind: static
//	    shapes:
//	      - kind: plane
//	  - name: box
//	    kind: dynamic
//	    position: [0, 100, 0]
//	    shapes:
//	      - kind: box
//	        extents: [10, 10, 10]
//
// Files are decoded strictly (unknown keys are errors), checked against the
// embedded CUE schema, and turned into scene nodes by Build.
package scenefile

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"gopkg.in/yaml.v3"
)

// File is the root of a scene document.
type File struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description,omitempty"`
	World       *WorldDoc `yaml:"world,omitempty"`
	Nodes       []NodeDoc `yaml:"nodes"`
}

// WorldDoc overrides world settings. Absent keys keep the world defaults.
type WorldDoc struct {
	Gravity                  *mgl32.Vec3    `yaml:"gravity,omitempty"`
	Running                  *bool          `yaml:"running,omitempty"`
	ForceDebugDraw           *bool          `yaml:"force_debug_draw,omitempty"`
	EnableCCD                *bool          `yaml:"enable_ccd,omitempty"`
	TypicalLength            *float32       `yaml:"typical_length,omitempty"`
	TypicalSpeed             *float32       `yaml:"typical_speed,omitempty"`
	DefaultDensity           *float32       `yaml:"default_density,omitempty"`
	MinTimestep              *time.Duration `yaml:"min_timestep,omitempty"`
	MaxTimestep              *time.Duration `yaml:"max_timestep,omitempty"`
	NumThreads               *int           `yaml:"num_threads,omitempty"`
	ReportKinematicKinematic *bool          `yaml:"report_kinematic_kinematic,omitempty"`
	ReportStaticKinematic    *bool          `yaml:"report_static_kinematic,omitempty"`
}

// NodeDoc describes one node and its subtree. Rotations are XYZ Euler
// angles in degrees.
type NodeDoc struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"`
	ID   string `yaml:"id,omitempty"`

	Position *mgl32.Vec3 `yaml:"position,omitempty"`
	Rotation *mgl32.Vec3 `yaml:"rotation,omitempty"`
	Scale    *mgl32.Vec3 `yaml:"scale,omitempty"`

	Enabled       *bool   `yaml:"enabled,omitempty"`
	DebugDraw     bool    `yaml:"debug_draw,omitempty"`
	FilterGroup   uint8   `yaml:"filter_group,omitempty"`
	IgnoredGroups []uint8 `yaml:"ignored_groups,omitempty"`

	Reports  ReportsDoc   `yaml:"reports,omitempty"`
	Material *MaterialDoc `yaml:"material,omitempty"`
	Shapes   []ShapeDoc   `yaml:"shapes,omitempty"`

	Dynamic    *DynamicDoc    `yaml:"dynamic,omitempty"`
	Controller *ControllerDoc `yaml:"controller,omitempty"`

	Children []NodeDoc `yaml:"children,omitempty"`
}

// ReportsDoc selects the contact and trigger reports a node takes part in.
type ReportsDoc struct {
	SendsContacts    bool `yaml:"sends_contacts,omitempty"`
	ReceivesContacts bool `yaml:"receives_contacts,omitempty"`
	SendsTriggers    bool `yaml:"sends_triggers,omitempty"`
	ReceivesTriggers bool `yaml:"receives_triggers,omitempty"`
}

// MaterialDoc is a per-node material.
type MaterialDoc struct {
	StaticFriction  float32 `yaml:"static_friction"`
	DynamicFriction float32 `yaml:"dynamic_friction"`
	Restitution     float32 `yaml:"restitution"`
}

// ShapeDoc describes one collision shape.
type ShapeDoc struct {
	Kind     string      `yaml:"kind"`
	Extents  *mgl32.Vec3 `yaml:"extents,omitempty"`
	Diameter float32     `yaml:"diameter,omitempty"`
	Height   float32     `yaml:"height,omitempty"`
	Source   string      `yaml:"source,omitempty"`

	Position *mgl32.Vec3 `yaml:"position,omitempty"`
	Rotation *mgl32.Vec3 `yaml:"rotation,omitempty"`
	Scale    *mgl32.Vec3 `yaml:"scale,omitempty"`
}

// DynamicDoc is the parameter block of a dynamic node.
type DynamicDoc struct {
	Kinematic      bool     `yaml:"kinematic,omitempty"`
	GravityEnabled *bool    `yaml:"gravity_enabled,omitempty"`
	Locks          []string `yaml:"locks,omitempty"`

	MassMode      string      `yaml:"mass_mode,omitempty"`
	Mass          *float32    `yaml:"mass,omitempty"`
	Density       *float32    `yaml:"density,omitempty"`
	CenterOfMass  *mgl32.Vec3 `yaml:"center_of_mass,omitempty"`
	InertiaTensor *mgl32.Vec3 `yaml:"inertia_tensor,omitempty"`
	// InertiaMatrix is given as three rows.
	InertiaMatrix *[3]mgl32.Vec3 `yaml:"inertia_matrix,omitempty"`
}

// ControllerDoc is the parameter block of a character controller node.
type ControllerDoc struct {
	Movement      *mgl32.Vec3 `yaml:"movement,omitempty"`
	Gravity       *mgl32.Vec3 `yaml:"gravity,omitempty"`
	MidAirControl *bool       `yaml:"mid_air_control,omitempty"`
	StepOffset    *float32    `yaml:"step_offset,omitempty"`
	ContactOffset *float32    `yaml:"contact_offset,omitempty"`
}

// Load reads, decodes and schema-checks a scene file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scene file: %w", err)
	}
	return ParseNamed(path, data)
}

// Parse decodes and schema-checks a scene document held in memory.
func Parse(data []byte) (*File, error) {
	return ParseNamed("scene.yaml", data)
}

// ParseNamed is Parse with a file name used in error positions.
func ParseNamed(filename string, data []byte) (*File, error) {
	var f File
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := Validate(filename, data); err != nil {
		return nil, fmt.Errorf("invalid scene: %w", err)
	}
	if err := checkNames(f.Nodes); err != nil {
		return nil, fmt.Errorf("invalid scene: %w", err)
	}
	return &f, nil
}

// checkNames rejects duplicate node names anywhere in the tree; scenarios
// and traces address nodes by name.
func checkNames(nodes []NodeDoc) error {
	seen := make(map[string]bool)
	var walk func([]NodeDoc) error
	walk = func(ns []NodeDoc) error {
		for _, n := range ns {
			if seen[n.Name] {
				return &Error{Field: "nodes", Message: fmt.Sprintf("duplicate node name %q", n.Name)}
			}
			seen[n.Name] = true
			if err := walk(n.Children); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(nodes)
}
