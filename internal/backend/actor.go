package backend

import (
	"log/slog"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/roach88/physync/internal/native"
	"github.com/roach88/physync/internal/scene"
	"github.com/roach88/physync/internal/xform"
)

// Env is the native context backend actors are built in. It is owned by the
// world and lives as long as the native scene.
type Env struct {
	Physics         native.Physics
	Scene           native.Scene
	DefaultMaterial native.Material
	DefaultDensity  float32
	Cooker          native.Cooker
	Logger          *slog.Logger

	// OnCommand, when set, observes every command right after it executes.
	OnCommand func(node *scene.Node, cmd scene.Command)
}

func (e *Env) logger() *slog.Logger {
	if e == nil || e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

// Actor is the backend counterpart of one physics scene node.
//
// It is a closed variant over the node kinds: static, dynamic, trigger and
// controller. Exactly one of rigid or controller is non-nil once Init
// succeeds; both stay nil when the node's configuration is invalid, and every
// per-tick pass is then a no-op.
//
// CRITICAL: every method runs on the consuming goroutine inside the sync
// window, never while a native step is in flight.
type Actor struct {
	kind   scene.Kind
	handle scene.ActorHandle
	node   *scene.Node
	name   string

	rigid      native.Actor
	dynamic    native.RigidDynamic // same object as rigid for dynamic bodies
	controller native.Controller

	shapes       []native.Shape
	shapeFor     []native.Shape // parallel to the node's descriptors, nil where skipped
	material     native.Material
	ownsMaterial bool
	matSource    *scene.Material
	matValue     scene.Material

	shapesDirty  bool
	filtersDirty bool
	removed      bool
	builtCount   int
	builtScale   mgl32.Vec3
	// pending lists the descriptors whose geometry was not available at
	// the last rebuild.
	pending []int

	lastPose    xform.Pose
	hasLastPose bool
	simEnabled  bool

	freeFall mgl32.Vec3
	grounded bool
}

// New creates an uninitialized backend actor for node.
func New(node *scene.Node, handle scene.ActorHandle) *Actor {
	return &Actor{
		kind:   node.Kind(),
		handle: handle,
		node:   node,
		name:   node.String(),
	}
}

func (a *Actor) Kind() scene.Kind              { return a.kind }
func (a *Actor) Handle() scene.ActorHandle     { return a.handle }
func (a *Actor) Node() *scene.Node             { return a.node }
func (a *Actor) Removed() bool                 { return a.removed }
func (a *Actor) Native() native.Actor          { return a.rigid }
func (a *Actor) Controller() native.Controller { return a.controller }

// ShapesDirty reports whether the native shapes must be rebuilt.
func (a *Actor) ShapesDirty() bool { return a.shapesDirty }

// ShapeCount returns the number of live native shapes.
func (a *Actor) ShapeCount() int { return len(a.shapes) }

// Null reports whether the actor has no native object.
func (a *Actor) Null() bool { return a.rigid == nil && a.controller == nil }

// MarkRemoved detaches the actor from its node. The world releases removed
// actors at the start of the next sync window.
func (a *Actor) MarkRemoved() {
	a.removed = true
	a.node = nil
}

// Init creates the native actor. Configuration problems are returned as
// *Error and leave the actor null; the world logs them and carries on.
func (a *Actor) Init(env *Env) error {
	if a.node == nil || !a.Null() {
		return nil
	}
	a.node.TakeShapesChanged()
	if a.kind == scene.KindController {
		return a.initController(env)
	}
	return a.initRigid(env)
}

// RetryInit re-runs Init for a null actor whose node changed its shapes.
func (a *Actor) RetryInit(env *Env) error {
	if a.node == nil || !a.Null() {
		return nil
	}
	if !a.node.TakeShapesChanged() {
		return nil
	}
	return a.Init(env)
}

func (a *Actor) initRigid(env *Env) error {
	node := a.node
	if len(node.Shapes()) == 0 {
		return newError(ErrCodeNoShapes, a.name, "%s body has no collision shapes", a.kind)
	}

	if err := a.acquireMaterial(env); err != nil {
		return err
	}

	pose := node.ScenePose()
	switch a.kind {
	case scene.KindDynamic:
		d, err := env.Physics.CreateDynamic(pose)
		if err != nil {
			a.releaseMaterial()
			return &Error{Code: ErrCodeNativeFailure, Message: "create dynamic actor", Node: a.name, Err: err}
		}
		a.rigid, a.dynamic = d, d

		body := node.Dynamic
		if !body.Kinematic && node.HasStaticOnlyShapes() {
			env.logger().Warn("dynamic body with static-only shapes forced kinematic",
				"node", a.name)
			body.Kinematic = true
		}
		d.SetKinematic(body.Kinematic)
		d.SetGravityEnabled(body.GravityEnabled)
		d.SetLockFlags(body.Locks.Flags())
	default:
		st, err := env.Physics.CreateStatic(pose)
		if err != nil {
			a.releaseMaterial()
			return &Error{Code: ErrCodeNativeFailure, Message: "create static actor", Node: a.name, Err: err}
		}
		a.rigid = st
	}

	a.rigid.SetUserData(node)
	env.Scene.AddActor(a.rigid)

	a.lastPose, a.hasLastPose = pose, true
	a.simEnabled = true
	a.shapesDirty = true
	a.filtersDirty = false
	a.builtCount = 0

	env.logger().Debug("backend actor created", "node", a.name, "kind", a.kind.String())
	return nil
}

func (a *Actor) acquireMaterial(env *Env) error {
	m := a.node.Material()
	a.matSource = m
	if m == nil {
		a.material, a.ownsMaterial = env.DefaultMaterial, false
		return nil
	}
	a.matValue = *m
	nm, err := env.Physics.CreateMaterial(m.StaticFriction, m.DynamicFriction, m.Restitution)
	if err != nil {
		return &Error{Code: ErrCodeNativeFailure, Message: "create material", Node: a.name, Err: err}
	}
	a.material, a.ownsMaterial = nm, true
	return nil
}

// refreshMaterial swaps the native material when the node's material was
// replaced or edited. The default material is used if creation fails.
func (a *Actor) refreshMaterial(env *Env) {
	m := a.node.Material()
	if m == a.matSource && (m == nil || *m == a.matValue) {
		return
	}
	a.releaseMaterial()
	if err := a.acquireMaterial(env); err != nil {
		env.logger().Warn("material change failed, using default", "node", a.name, "error", err)
		a.material, a.ownsMaterial = env.DefaultMaterial, false
	}
}

func (a *Actor) releaseMaterial() {
	if a.ownsMaterial && a.material != nil {
		a.material.Release()
	}
	a.material, a.ownsMaterial = nil, false
	a.matSource = nil
}

// MarkDirtyShapes consumes the node's change notifications and flags the
// native shapes dirty when they no longer match the descriptors, or when a
// geometry that was pending has become available.
func (a *Actor) MarkDirtyShapes(env *Env, cache *scene.TransformCache) {
	if a.node == nil || a.Null() {
		return
	}
	node := a.node
	if node.TakeShapesChanged() {
		a.shapesDirty = true
	}
	if node.TakeFiltersChanged() {
		a.filtersDirty = true
	}
	if a.shapesDirty {
		return
	}

	descs := node.Shapes()
	scale := cache.SceneTransform(node).Scale
	if len(descs) != a.builtCount || !xform.VecApproxEqual(scale, a.builtScale, xform.Epsilon) {
		a.shapesDirty = true
		return
	}
	for _, i := range a.pending {
		if _, ok := descs[i].Geometry(scale, env.Cooker); ok {
			a.shapesDirty = true
			return
		}
	}
	for i, d := range descs {
		if d.Dirty() {
			a.shapesDirty = true
			return
		}
		if a.kind == scene.KindController {
			continue
		}
		sh := a.shapeFor[i]
		if sh != nil && !sh.LocalPose().ApproxEqual(d.LocalPose(scale), xform.Epsilon) {
			a.shapesDirty = true
			return
		}
	}
}

// RebuildDirtyShapes replaces every native shape when the shapes are dirty.
// Calling it again without an intervening change is a no-op.
func (a *Actor) RebuildDirtyShapes(env *Env, cache *scene.TransformCache) {
	if a.node == nil || a.Null() || !a.shapesDirty {
		return
	}
	if a.kind == scene.KindController {
		a.rebuildController(env, cache)
		return
	}

	node := a.node
	for _, sh := range a.shapes {
		a.rigid.DetachShape(sh)
		sh.Release()
	}
	a.shapes = a.shapes[:0]
	a.refreshMaterial(env)

	descs := node.Shapes()
	scale := cache.SceneTransform(node).Scale
	filter := a.filterData()
	a.shapeFor = make([]native.Shape, len(descs))
	a.pending = a.pending[:0]

	for i, d := range descs {
		geom, ok := d.Geometry(scale, env.Cooker)
		if !ok {
			a.pending = append(a.pending, i)
			d.ClearDirty()
			continue
		}
		sh, err := env.Physics.CreateShape(geom, a.material)
		if err != nil {
			// Retried on the next change to the node's shapes.
			env.logger().Warn("create shape failed", "node", a.name, "shape", d.Kind().String(), "error", err)
			continue
		}
		sh.SetLocalPose(d.LocalPose(scale))
		sh.SetFilterData(filter)
		if a.kind == scene.KindTrigger {
			sh.SetTrigger(true)
		}
		a.rigid.AttachShape(sh)
		a.shapes = append(a.shapes, sh)
		a.shapeFor[i] = sh
		d.ClearDirty()
	}

	a.builtCount = len(descs)
	a.builtScale = scale
	a.shapesDirty = false
	a.filtersDirty = false

	if a.kind == scene.KindDynamic {
		a.updateDynamicAfterRebuild(env)
	}
	env.logger().Debug("shapes rebuilt", "node", a.name, "shapes", len(a.shapes), "pending", len(a.pending))
}

// updateDynamicAfterRebuild keeps bodies with static-only geometry kinematic
// and reapplies the declared mass properties otherwise.
func (a *Actor) updateDynamicAfterRebuild(env *Env) {
	body := a.node.Dynamic
	if a.node.HasStaticOnlyShapes() {
		if !a.dynamic.Kinematic() {
			env.logger().Warn("dynamic body with static-only shapes forced kinematic", "node", a.name)
			a.dynamic.SetKinematic(true)
		}
		body.Kinematic = true
		return
	}
	if len(a.shapes) == 0 {
		return
	}
	a.applyMassProperties(env)
}

func (a *Actor) applyMassProperties(env *Env) {
	body := a.node.Dynamic
	d := a.dynamic
	switch body.MassMode {
	case scene.MassDefaultDensity:
		d.UpdateMassAndInertia(env.DefaultDensity)
	case scene.MassCustomDensity:
		d.UpdateMassAndInertia(body.Density)
	case scene.MassExplicit:
		d.SetMassAndUpdateInertia(body.Mass)
	case scene.MassAndInertiaTensor:
		d.SetMass(body.Mass)
		d.SetMassSpaceInertiaTensor(body.InertiaTensor)
		d.SetCenterOfMassLocalPose(body.CenterOfMass)
	case scene.MassAndInertiaMatrix:
		tensor, frame := Diagonalize(body.InertiaMatrix)
		d.SetMass(body.Mass)
		d.SetMassSpaceInertiaTensor(tensor)
		d.SetCenterOfMassLocalPose(xform.NewPose(body.CenterOfMass.Position, body.CenterOfMass.Rotation.Mul(frame)))
	}
}

// UpdateDefaultDensity recomputes mass for dynamic bodies that use the
// world default density. env.DefaultDensity must already hold the new value.
func (a *Actor) UpdateDefaultDensity(env *Env) {
	if a.dynamic == nil || a.node == nil || a.node.Dynamic == nil {
		return
	}
	if a.node.Dynamic.MassMode != scene.MassDefaultDensity || a.node.HasStaticOnlyShapes() || len(a.shapes) == 0 {
		return
	}
	a.dynamic.UpdateMassAndInertia(env.DefaultDensity)
}

// UpdateFilters reapplies filter data to every native shape when the node's
// collision group or ignore mask changed.
func (a *Actor) UpdateFilters() {
	if a.node == nil || a.Null() || !a.filtersDirty {
		return
	}
	a.filtersDirty = false
	filter := a.filterData()
	for _, sh := range a.shapes {
		sh.SetFilterData(filter)
	}
}

func (a *Actor) filterData() native.FilterData {
	return native.FilterData{
		ID:   1 << a.node.FilterGroup(),
		Mask: a.node.IgnoredGroups(),
	}
}

// Sync reconciles the native actor with its node for one tick of dt seconds.
func (a *Actor) Sync(env *Env, dt float32, cache *scene.TransformCache) {
	if a.node == nil || a.Null() {
		return
	}
	switch a.kind {
	case scene.KindStatic:
		a.syncStatic(cache)
	case scene.KindTrigger:
		a.rigid.SetGlobalPose(cache.SceneTransform(a.node).Pose())
	case scene.KindDynamic:
		a.syncDynamic(env, cache)
	case scene.KindController:
		a.syncController(dt, cache)
	}
}

func (a *Actor) syncStatic(cache *scene.TransformCache) {
	pose := cache.SceneTransform(a.node).Pose()
	if !a.hasLastPose || !pose.ApproxEqual(a.lastPose, xform.Epsilon) {
		a.rigid.SetGlobalPose(pose)
		a.lastPose, a.hasLastPose = pose, true
	}
	if enabled := a.node.Enabled(); enabled != a.simEnabled {
		a.rigid.SetSimulationEnabled(enabled)
		a.simEnabled = enabled
	}
}

func (a *Actor) syncDynamic(env *Env, cache *scene.TransformCache) {
	a.executeCommands(env)

	body := a.node.Dynamic
	if a.dynamic.Kinematic() {
		target := cache.SceneTransform(a.node).Pose()
		if body.HasKinematicTarget {
			target = body.KinematicTarget
		}
		a.dynamic.SetKinematicTarget(target)
		return
	}

	a.node.SetScenePose(a.dynamic.GlobalPose(), cache)
	cache.Invalidate(a.node)
}

// Cleanup releases every native object the actor owns. The shared default
// material is left alone.
func (a *Actor) Cleanup(env *Env) {
	if a.controller != nil {
		a.controller.Release()
		a.controller = nil
	}
	if a.rigid != nil {
		for _, sh := range a.shapes {
			a.rigid.DetachShape(sh)
			sh.Release()
		}
		env.Scene.RemoveActor(a.rigid)
		a.rigid.Release()
		a.rigid, a.dynamic = nil, nil
	}
	a.shapes, a.shapeFor = nil, nil
	a.releaseMaterial()
	env.logger().Debug("backend actor released", "node", a.name, "kind", a.kind.String())
}

// DebugShape describes one live native shape for debug visualization.
type DebugShape struct {
	Node     string
	Geometry native.Geometry
	Pose     xform.Pose
}

// DebugShapes lists the actor's native shapes with their scene poses.
func (a *Actor) DebugShapes() []DebugShape {
	switch {
	case a.rigid != nil:
		owner := a.rigid.GlobalPose()
		out := make([]DebugShape, 0, len(a.shapes))
		for _, sh := range a.shapes {
			out = append(out, DebugShape{Node: a.name, Geometry: sh.Geometry(), Pose: owner.Mul(sh.LocalPose())})
		}
		return out
	case a.controller != nil && a.node != nil && len(a.node.Shapes()) == 1:
		geom, ok := a.node.Shapes()[0].Geometry(a.node.SceneTransform().Scale, nil)
		if !ok {
			return nil
		}
		return []DebugShape{{
			Node:     a.name,
			Geometry: geom,
			Pose:     xform.NewPose(a.controller.Position(), mgl32.QuatIdent()),
		}}
	}
	return nil
}
