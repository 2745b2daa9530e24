package fake

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/roach88/physync/internal/native"
	"github.com/roach88/physync/internal/xform"
)

// Actor implements native.Actor and, when dynamic, native.RigidDynamic.
type Actor struct {
	physics *Physics
	id      uint64
	dynamic bool

	pose     xform.Pose
	shapes   []*Shape
	userData any
	scene    *Scene
	enabled  bool
	released bool

	kinematic      bool
	target         xform.Pose
	hasTarget      bool
	gravityEnabled bool
	locks          native.LockFlags

	mass    float32
	inertia mgl32.Vec3
	com     xform.Pose

	linVel mgl32.Vec3
	angVel mgl32.Vec3
	force  mgl32.Vec3
	torque mgl32.Vec3
}

func newActor(p *Physics, pose xform.Pose, dynamic bool) *Actor {
	return &Actor{
		physics:        p,
		id:             p.id(),
		dynamic:        dynamic,
		pose:           pose,
		enabled:        true,
		gravityEnabled: true,
		mass:           1,
		inertia:        mgl32.Vec3{1, 1, 1},
		com:            xform.Identity(),
	}
}

// IsDynamic reports whether the actor was created with CreateDynamic.
func (a *Actor) IsDynamic() bool { return a.dynamic }

// Released reports whether the actor was released.
func (a *Actor) Released() bool { return a.released }

// Scene returns the scene the actor was added to, or nil.
func (a *Actor) Scene() *Scene { return a.scene }

// SimulationEnabled reports the last SetSimulationEnabled value.
func (a *Actor) SimulationEnabled() bool { return a.enabled }

// LockFlags returns the last SetLockFlags value.
func (a *Actor) LockFlags() native.LockFlags { return a.locks }

// InertiaTensor returns the mass-space inertia tensor.
func (a *Actor) InertiaTensor() mgl32.Vec3 { return a.inertia }

// CenterOfMass returns the center of mass local pose.
func (a *Actor) CenterOfMass() xform.Pose { return a.com }

// KinematicTarget returns the last kinematic target, if any.
func (a *Actor) KinematicTarget() (xform.Pose, bool) { return a.target, a.hasTarget }

func (a *Actor) GlobalPose() xform.Pose { return a.pose }

func (a *Actor) SetGlobalPose(p xform.Pose) {
	a.physics.guard("set global pose")
	a.pose = p
}

func (a *Actor) AttachShape(s native.Shape) {
	a.physics.guard("attach shape")
	fs := s.(*Shape)
	if fs.actor != nil {
		a.physics.violate("exclusive shape attached twice")
		return
	}
	fs.actor = a
	a.shapes = append(a.shapes, fs)
}

func (a *Actor) DetachShape(s native.Shape) {
	a.physics.guard("detach shape")
	fs := s.(*Shape)
	for i, cur := range a.shapes {
		if cur == fs {
			a.shapes = append(a.shapes[:i], a.shapes[i+1:]...)
			fs.actor = nil
			return
		}
	}
}

func (a *Actor) Shapes() []native.Shape {
	out := make([]native.Shape, len(a.shapes))
	for i, s := range a.shapes {
		out[i] = s
	}
	return out
}

func (a *Actor) SetSimulationEnabled(enabled bool) {
	a.physics.guard("set simulation enabled")
	a.enabled = enabled
}

func (a *Actor) UserData() any     { return a.userData }
func (a *Actor) SetUserData(v any) { a.userData = v }

func (a *Actor) Release() {
	a.physics.guard("release actor")
	if a.released {
		a.physics.violate("actor released twice")
		return
	}
	if a.scene != nil {
		a.physics.violate("actor released while in scene")
		a.scene.RemoveActor(a)
	}
	for _, s := range a.shapes {
		s.actor = nil
	}
	a.shapes = nil
	a.released = true
	a.physics.count(func(s *Stats) { s.ActorsReleased++ })
}

func (a *Actor) AddForce(f mgl32.Vec3, mode native.ForceMode) {
	a.physics.guard("add force")
	if a.kinematic {
		return
	}
	if mode == native.ModeImpulse {
		a.linVel = a.linVel.Add(f.Mul(1 / a.safeMass()))
		return
	}
	a.force = a.force.Add(f)
}

func (a *Actor) AddTorque(t mgl32.Vec3, mode native.ForceMode) {
	a.physics.guard("add torque")
	if a.kinematic {
		return
	}
	if mode == native.ModeImpulse {
		a.angVel = a.angVel.Add(xform.CompDiv(t, a.inertia))
		return
	}
	a.torque = a.torque.Add(t)
}

func (a *Actor) AddForceAtPosition(f, position mgl32.Vec3, mode native.ForceMode) {
	a.AddForce(f, mode)
	arm := position.Sub(a.pose.Apply(a.com.Position))
	a.AddTorque(arm.Cross(f), mode)
}

func (a *Actor) LinearVelocity() mgl32.Vec3 { return a.linVel }

func (a *Actor) SetLinearVelocity(v mgl32.Vec3) {
	a.physics.guard("set linear velocity")
	a.linVel = v
}

func (a *Actor) AngularVelocity() mgl32.Vec3 { return a.angVel }

func (a *Actor) SetAngularVelocity(v mgl32.Vec3) {
	a.physics.guard("set angular velocity")
	a.angVel = v
}

func (a *Actor) Kinematic() bool { return a.kinematic }

func (a *Actor) SetKinematic(kinematic bool) {
	a.physics.guard("set kinematic")
	if !kinematic && a.hasStaticOnlyShape() {
		a.physics.violate("simulated dynamic body with static-only geometry")
	}
	a.kinematic = kinematic
	if kinematic {
		a.linVel, a.angVel = mgl32.Vec3{}, mgl32.Vec3{}
		a.force, a.torque = mgl32.Vec3{}, mgl32.Vec3{}
	}
}

func (a *Actor) SetKinematicTarget(p xform.Pose) {
	a.physics.guard("set kinematic target")
	if !a.kinematic {
		a.physics.violate("kinematic target on non-kinematic body")
		return
	}
	a.target = p
	a.hasTarget = true
}

func (a *Actor) Mass() float32 { return a.mass }

func (a *Actor) SetMass(mass float32) {
	a.physics.guard("set mass")
	a.mass = mass
}

func (a *Actor) SetMassSpaceInertiaTensor(t mgl32.Vec3) {
	a.physics.guard("set inertia tensor")
	a.inertia = t
}

func (a *Actor) SetCenterOfMassLocalPose(p xform.Pose) {
	a.physics.guard("set center of mass")
	a.com = p
}

func (a *Actor) UpdateMassAndInertia(density float32) {
	a.physics.guard("update mass and inertia")
	volume := a.volume()
	if volume <= 0 || density <= 0 {
		return
	}
	a.mass = density * volume
	a.inertia = a.derivedInertia(a.mass)
}

func (a *Actor) SetMassAndUpdateInertia(mass float32) {
	a.physics.guard("set mass and update inertia")
	a.mass = mass
	a.inertia = a.derivedInertia(mass)
}

func (a *Actor) GravityEnabled() bool { return a.gravityEnabled }

func (a *Actor) SetGravityEnabled(enabled bool) {
	a.physics.guard("set gravity enabled")
	a.gravityEnabled = enabled
}

func (a *Actor) SetLockFlags(flags native.LockFlags) {
	a.physics.guard("set lock flags")
	a.locks = flags
}

func (a *Actor) safeMass() float32 {
	if a.mass <= 0 {
		return 1
	}
	return a.mass
}

func (a *Actor) hasStaticOnlyShape() bool {
	for _, s := range a.shapes {
		switch s.geom.Type {
		case native.GeometryPlane, native.GeometryTriangleMesh, native.GeometryHeightfield:
			return true
		}
	}
	return false
}

// volume sums the analytic volumes of primitive shapes.
func (a *Actor) volume() float32 {
	var v float64
	for _, s := range a.shapes {
		g := s.geom
		switch g.Type {
		case native.GeometryBox:
			v += 8 * float64(g.HalfExtents[0]*g.HalfExtents[1]*g.HalfExtents[2])
		case native.GeometrySphere:
			r := float64(g.Radius)
			v += 4.0 / 3.0 * math.Pi * r * r * r
		case native.GeometryCapsule:
			r, h := float64(g.Radius), float64(g.HalfHeight)
			v += math.Pi * r * r * (4.0/3.0*r + 2*h)
		}
	}
	return float32(v)
}

// derivedInertia approximates a solid sphere of the bounding radius.
func (a *Actor) derivedInertia(mass float32) mgl32.Vec3 {
	var r float32
	for _, s := range a.shapes {
		if br := s.geom.BoundingRadius(); br > r {
			r = br
		}
	}
	if r == 0 {
		return mgl32.Vec3{1, 1, 1}
	}
	i := 0.4 * mass * r * r
	return mgl32.Vec3{i, i, i}
}

// integrate advances a simulated dynamic body by dt seconds.
func (a *Actor) integrate(gravity mgl32.Vec3, dt float32) {
	if !a.dynamic || !a.enabled {
		return
	}
	if a.kinematic {
		if a.hasTarget {
			a.pose = a.target
			a.hasTarget = false
		}
		return
	}

	accel := a.force.Mul(1 / a.safeMass())
	if a.gravityEnabled {
		accel = accel.Add(gravity)
	}
	a.linVel = a.linVel.Add(accel.Mul(dt))
	a.angVel = a.angVel.Add(xform.CompDiv(a.torque, a.inertia).Mul(dt))
	a.applyLocks()

	a.pose.Position = a.pose.Position.Add(a.linVel.Mul(dt))
	if w := a.angVel.Len(); w > 0 {
		spin := mgl32.QuatRotate(w*dt, a.angVel.Mul(1/w))
		a.pose.Rotation = spin.Mul(a.pose.Rotation).Normalize()
	}
	a.force, a.torque = mgl32.Vec3{}, mgl32.Vec3{}
}

func (a *Actor) applyLocks() {
	bits := []native.LockFlags{native.LockLinearX, native.LockLinearY, native.LockLinearZ}
	for i, b := range bits {
		if a.locks&b != 0 {
			a.linVel[i] = 0
		}
	}
	bits = []native.LockFlags{native.LockAngularX, native.LockAngularY, native.LockAngularZ}
	for i, b := range bits {
		if a.locks&b != 0 {
			a.angVel[i] = 0
		}
	}
}

// simulated reports whether the solver moves the actor.
func (a *Actor) simulated() bool {
	return a.dynamic && !a.kinematic && a.enabled
}

// Shape implements native.Shape.
type Shape struct {
	physics  *Physics
	geom     native.Geometry
	material *Material
	local    xform.Pose
	filter   native.FilterData
	trigger  bool
	actor    *Actor
	released bool
}

func (s *Shape) Geometry() native.Geometry { return s.geom }
func (s *Shape) LocalPose() xform.Pose     { return s.local }

func (s *Shape) SetLocalPose(p xform.Pose) {
	s.physics.guard("set shape pose")
	s.local = p
}

func (s *Shape) FilterData() native.FilterData { return s.filter }

func (s *Shape) SetFilterData(f native.FilterData) {
	s.physics.guard("set filter data")
	s.filter = f
}

// Trigger reports whether the shape is a trigger shape.
func (s *Shape) Trigger() bool { return s.trigger }

func (s *Shape) SetTrigger(trigger bool) {
	s.physics.guard("set trigger")
	s.trigger = trigger
}

// Material returns the material the shape was created with.
func (s *Shape) Material() *Material { return s.material }

func (s *Shape) Release() {
	s.physics.guard("release shape")
	if s.released {
		s.physics.violate("shape released twice")
		return
	}
	if s.actor != nil {
		s.physics.violate("shape released while attached")
	}
	s.released = true
	s.physics.count(func(st *Stats) { st.ShapesReleased++ })
}

// worldCenter returns the scene-space center of the shape.
func (s *Shape) worldCenter(owner xform.Pose) mgl32.Vec3 {
	return owner.Mul(s.local).Position
}
