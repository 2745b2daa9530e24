// Package native defines the boundary to the native physics engine.
//
// Everything behind these interfaces is owned by the engine: actor, shape,
// material and controller objects, the broad/narrow phase and the solver.
// The orchestration layer only creates, mutates and releases those objects
// from the consuming goroutine, strictly between FetchResults and the next
// Simulate call.
//
// Thread-safety model:
//   - Scene.Simulate / Scene.FetchResults: called only by the stepper goroutine
//   - EventCallback methods: invoked by the engine on the stepper goroutine
//   - every other method: consuming goroutine only, never during a step
package native

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/roach88/physync/internal/xform"
)

// Physics creates engine objects that are not bound to a scene yet.
type Physics interface {
	CreateScene(desc SceneDesc) (Scene, error)
	CreateMaterial(staticFriction, dynamicFriction, restitution float32) (Material, error)
	// CreateShape creates an exclusive shape for geom. Exclusive shapes can be
	// attached to exactly one actor.
	CreateShape(geom Geometry, material Material) (Shape, error)
	CreateStatic(pose xform.Pose) (Actor, error)
	CreateDynamic(pose xform.Pose) (RigidDynamic, error)
}

// SceneDesc configures a native scene.
type SceneDesc struct {
	Gravity       mgl32.Vec3
	TypicalLength float32
	TypicalSpeed  float32
	EnableCCD     bool
	// NumThreads is the worker count for the engine's own job system; 0 runs
	// the solver on the calling goroutine.
	NumThreads int

	ReportKinematicKinematic bool
	ReportStaticKinematic    bool

	Callback EventCallback
	Shader   FilterShader
}

// Scene is one simulation space.
type Scene interface {
	AddActor(a Actor)
	RemoveActor(a Actor)
	SetGravity(g mgl32.Vec3)

	// Simulate advances the scene by dt seconds. FetchResults completes the
	// step; with block=true it waits for completion and always returns true.
	Simulate(dt float32)
	FetchResults(block bool) bool

	// SetEventCallback replaces the simulation event callback.
	SetEventCallback(cb EventCallback)

	// CreateController creates a capsule character controller through the
	// scene's controller manager, creating the manager on first use.
	CreateController(desc ControllerDesc) (Controller, error)

	Release()
}

// Actor is a rigid actor: static, dynamic or trigger carrier.
type Actor interface {
	GlobalPose() xform.Pose
	SetGlobalPose(p xform.Pose)

	AttachShape(s Shape)
	DetachShape(s Shape)
	Shapes() []Shape

	SetSimulationEnabled(enabled bool)

	// UserData carries the back-reference to the frontend node.
	UserData() any
	SetUserData(v any)

	Release()
}

// LockFlags restrict the degrees of freedom of a dynamic body.
type LockFlags uint8

const (
	LockLinearX LockFlags = 1 << iota
	LockLinearY
	LockLinearZ
	LockAngularX
	LockAngularY
	LockAngularZ
)

// RigidDynamic is a dynamic actor, optionally kinematic.
type RigidDynamic interface {
	Actor

	AddForce(force mgl32.Vec3, mode ForceMode)
	AddTorque(torque mgl32.Vec3, mode ForceMode)
	// AddForceAtPosition applies force at a world-space point.
	AddForceAtPosition(force, position mgl32.Vec3, mode ForceMode)

	LinearVelocity() mgl32.Vec3
	SetLinearVelocity(v mgl32.Vec3)
	AngularVelocity() mgl32.Vec3
	SetAngularVelocity(v mgl32.Vec3)

	Kinematic() bool
	SetKinematic(kinematic bool)
	SetKinematicTarget(p xform.Pose)

	Mass() float32
	SetMass(mass float32)
	SetMassSpaceInertiaTensor(tensor mgl32.Vec3)
	SetCenterOfMassLocalPose(p xform.Pose)
	// UpdateMassAndInertia recomputes mass and inertia from the attached shapes.
	UpdateMassAndInertia(density float32)
	// SetMassAndUpdateInertia sets the mass and derives inertia from shapes.
	SetMassAndUpdateInertia(mass float32)

	GravityEnabled() bool
	SetGravityEnabled(enabled bool)
	SetLockFlags(flags LockFlags)
}

// ForceMode selects how AddForce/AddTorque interpret their argument.
type ForceMode int

const (
	ModeForce ForceMode = iota
	ModeImpulse
)

// Shape is an exclusive collision shape.
type Shape interface {
	Geometry() Geometry
	LocalPose() xform.Pose
	SetLocalPose(p xform.Pose)
	FilterData() FilterData
	SetFilterData(f FilterData)
	SetTrigger(trigger bool)
	Release()
}

// Material holds surface response parameters.
type Material interface {
	Release()
}

// ControllerDesc configures a capsule character controller.
type ControllerDesc struct {
	Position      mgl32.Vec3
	Radius        float32
	Height        float32
	UpDirection   mgl32.Vec3
	StepOffset    float32
	ContactOffset float32
	Material      Material
	UserData      any
}

// CollisionFlags report which sides of a controller touched during Move.
type CollisionFlags uint8

const (
	CollisionSides CollisionFlags = 1 << iota
	CollisionUp
	CollisionDown
)

// Controller is a kinematic character controller.
type Controller interface {
	// Move sweeps the controller by disp with collision resolution.
	Move(disp mgl32.Vec3, minDist, dt float32, filter FilterData) CollisionFlags
	Position() mgl32.Vec3
	SetPosition(p mgl32.Vec3)
	Resize(height float32)
	SetRadius(radius float32)
	Actor() RigidDynamic
	Release()
}
