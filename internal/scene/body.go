package scene

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/roach88/physync/internal/native"
	"github.com/roach88/physync/internal/xform"
)

// Material is a frontend physics material. A nil *Material on a node means
// the world's shared default material.
type Material struct {
	StaticFriction  float32
	DynamicFriction float32
	Restitution     float32
}

// DefaultMaterial returns the parameters of the world's shared material.
func DefaultMaterial() Material {
	return Material{StaticFriction: 0.5, DynamicFriction: 0.5, Restitution: 0.5}
}

// MassMode selects how a dynamic body's mass properties are derived.
type MassMode int

const (
	// MassDefaultDensity derives mass from the shapes and the world's default density.
	MassDefaultDensity MassMode = iota
	// MassCustomDensity derives mass from the shapes and DynamicBody.Density.
	MassCustomDensity
	// MassExplicit uses DynamicBody.Mass and derives inertia from the shapes.
	MassExplicit
	// MassAndInertiaTensor uses Mass plus an explicit principal inertia tensor.
	MassAndInertiaTensor
	// MassAndInertiaMatrix uses Mass plus a full 3x3 inertia matrix.
	MassAndInertiaMatrix
)

var massModeNames = map[MassMode]string{
	MassDefaultDensity:   "default_density",
	MassCustomDensity:    "custom_density",
	MassExplicit:         "mass",
	MassAndInertiaTensor: "mass_and_inertia_tensor",
	MassAndInertiaMatrix: "mass_and_inertia_matrix",
}

func (m MassMode) String() string {
	if s, ok := massModeNames[m]; ok {
		return s
	}
	return "unknown"
}

// ParseMassMode maps a mass mode name back to a MassMode.
func ParseMassMode(s string) (MassMode, bool) {
	for m, name := range massModeNames {
		if name == s {
			return m, true
		}
	}
	return MassDefaultDensity, false
}

// AxisLocks restrict a dynamic body's degrees of freedom.
type AxisLocks struct {
	LinearX, LinearY, LinearZ    bool
	AngularX, AngularY, AngularZ bool
}

// Flags converts the locks to native lock flags.
func (l AxisLocks) Flags() native.LockFlags {
	var f native.LockFlags
	set := func(on bool, bit native.LockFlags) {
		if on {
			f |= bit
		}
	}
	set(l.LinearX, native.LockLinearX)
	set(l.LinearY, native.LockLinearY)
	set(l.LinearZ, native.LockLinearZ)
	set(l.AngularX, native.LockAngularX)
	set(l.AngularY, native.LockAngularY)
	set(l.AngularZ, native.LockAngularZ)
	return f
}

// DynamicBody is the parameter block of a dynamic node.
//
// The mass properties here are the declared values applied at Init and after
// every shape rebuild. Commands change the native body directly and also
// write through to this block so a rebuilt backend keeps the latest state.
type DynamicBody struct {
	Kinematic      bool
	GravityEnabled bool
	Locks          AxisLocks

	MassMode      MassMode
	Mass          float32
	Density       float32
	CenterOfMass  xform.Pose
	InertiaTensor mgl32.Vec3
	InertiaMatrix mgl32.Mat3

	// KinematicTarget is the scene-space pose pushed to a kinematic body. When
	// unset the node's own scene pose is used.
	KinematicTarget    xform.Pose
	HasKinematicTarget bool

	Commands CommandQueue
}

func newDynamicBody() *DynamicBody {
	return &DynamicBody{
		GravityEnabled: true,
		Mass:           1,
		Density:        0.001,
		CenterOfMass:   xform.Identity(),
		InertiaTensor:  mgl32.Vec3{1, 1, 1},
		InertiaMatrix:  mgl32.Ident3(),
	}
}

// SetKinematicTarget stores a target pose for a kinematic body.
func (d *DynamicBody) SetKinematicTarget(p xform.Pose) {
	d.KinematicTarget = p
	d.HasKinematicTarget = true
}

// ClearKinematicTarget makes the kinematic body follow its node pose again.
func (d *DynamicBody) ClearKinematicTarget() {
	d.HasKinematicTarget = false
}

// ControllerBody is the parameter block of a character controller node.
type ControllerBody struct {
	// Movement is the desired velocity in the node's local frame.
	Movement mgl32.Vec3
	// Gravity accumulates into the controller's free-fall velocity.
	Gravity mgl32.Vec3
	// MidAirControl applies Movement while not grounded.
	MidAirControl bool
	// EnableShapeHitCallback is carried for scene files; the reference engine
	// has no shape-hit reports.
	EnableShapeHitCallback bool

	StepOffset    float32
	ContactOffset float32

	// Collisions holds the flags from the most recent move.
	Collisions native.CollisionFlags

	teleport    mgl32.Vec3
	hasTeleport bool
}

func newControllerBody() *ControllerBody {
	return &ControllerBody{
		MidAirControl: true,
		StepOffset:    0.5,
		ContactOffset: 0.1,
	}
}

// Teleport requests the controller be placed at a scene-space position on
// the next sync instead of moving.
func (c *ControllerBody) Teleport(position mgl32.Vec3) {
	c.teleport = position
	c.hasTeleport = true
}

// TakeTeleport returns and clears a pending teleport.
func (c *ControllerBody) TakeTeleport() (mgl32.Vec3, bool) {
	if !c.hasTeleport {
		return mgl32.Vec3{}, false
	}
	c.hasTeleport = false
	return c.teleport, true
}

// TriggerBody is the parameter block of a trigger node: the set of nodes
// currently overlapping it.
type TriggerBody struct {
	overlaps map[*Node]struct{}
}

func newTriggerBody() *TriggerBody {
	return &TriggerBody{overlaps: make(map[*Node]struct{})}
}

// Enter records other as overlapping. It returns false if it already was.
func (t *TriggerBody) Enter(other *Node) bool {
	if _, ok := t.overlaps[other]; ok {
		return false
	}
	t.overlaps[other] = struct{}{}
	return true
}

// Exit removes other from the overlap set. It returns false if it was not in it.
func (t *TriggerBody) Exit(other *Node) bool {
	if _, ok := t.overlaps[other]; !ok {
		return false
	}
	delete(t.overlaps, other)
	return true
}

// Contains reports whether other currently overlaps the trigger.
func (t *TriggerBody) Contains(other *Node) bool {
	_, ok := t.overlaps[other]
	return ok
}

// CollisionCount returns the number of overlapping nodes.
func (t *TriggerBody) CollisionCount() int {
	return len(t.overlaps)
}

// Forget drops other without an exit event. Used when other leaves the scene.
func (t *TriggerBody) Forget(other *Node) {
	delete(t.overlaps, other)
}
