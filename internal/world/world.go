// Package world binds a scene graph to a native physics scene.
//
// A World owns the native scene, the backend actors of its nodes, the
// event broker and the stepper goroutine. Tick runs one full cycle: request
// a step, wait for it, then run the sync window where every actor is
// created, destroyed, rebuilt and synchronized.
//
// Thread-safety model:
//   - every exported method: consuming goroutine only
//   - native step and event callbacks: stepper goroutine, never touching
//     actors or nodes directly
//
// INVARIANTS:
//   - actors are created and released only inside the sync window
//   - the sync window never overlaps a native step
//   - a node is bound to at most one actor, and both sides are cleared
//     together
package world

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/roach88/physync/internal/backend"
	"github.com/roach88/physync/internal/broker"
	"github.com/roach88/physync/internal/config"
	"github.com/roach88/physync/internal/native"
	"github.com/roach88/physync/internal/scene"
	"github.com/roach88/physync/internal/stepper"
)

// Error is the typed configuration error returned for invalid nodes.
type Error = backend.Error

var (
	// ErrClosed is returned by Tick and Run after Close.
	ErrClosed = errors.New("world closed")

	// ErrNotRunning is returned by Tick while the world is paused.
	ErrNotRunning = errors.New("world not running")
)

// Option configures a World.
type Option func(*World)

// WithManager registers the world with m instead of the default manager.
func WithManager(m *Manager) Option {
	return func(w *World) { w.manager = m }
}

// WithClock sets the stepper's pacing clock.
func WithClock(c stepper.Clock) Option {
	return func(w *World) { w.clock = c }
}

// WithCooker sets the geometry cooker for mesh and heightfield shapes.
func WithCooker(c native.Cooker) Option {
	return func(w *World) { w.cooker = c }
}

// WithObserver adds a callback invoked with every TickReport.
func WithObserver(fn func(TickReport)) Option {
	return func(w *World) { w.observers = append(w.observers, fn) }
}

// WithPhysics sets the factory used to create the native physics on the
// first world of the process.
func WithPhysics(f native.Factory) Option {
	return func(w *World) { w.factory = f }
}

// WithFoundation replaces the process-wide foundation.
func WithFoundation(f *native.Foundation) Option {
	return func(w *World) { w.foundation = f }
}

// WithConfig replaces the default settings. The settings are normalized.
func WithConfig(c config.World) Option {
	return func(w *World) { w.cfg = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *World) { w.logger = l }
}

// World is one physics simulation bound to a scene root.
type World struct {
	cfg        config.World
	logger     *slog.Logger
	manager    *Manager
	foundation *native.Foundation
	factory    native.Factory
	cooker     native.Cooker
	clock      stepper.Clock
	observers  []func(TickReport)

	root     *scene.Node
	newNodes []*scene.Node
	actors   []*backend.Actor
	byHandle map[scene.ActorHandle]*backend.Actor
	broker   *broker.Broker

	physics     native.Physics
	nscene      native.Scene
	env         *backend.Env
	stepper     *stepper.Stepper
	initialized bool
	closed      bool

	debug  []backend.DebugShape
	report *TickReport

	// deferred holds native scene changes requested while a step was in
	// flight. They run at the start of the next sync window.
	deferred []func()
}

// New creates a world for the scene rooted at root, which may be nil and
// set later with SetScene. The native foundation is acquired immediately;
// a failure there is returned. The native scene is created on the first
// Tick while running.
func New(root *scene.Node, opts ...Option) (*World, error) {
	w := &World{
		cfg:      config.Default(),
		logger:   slog.Default(),
		cooker:   native.NoCooker{},
		clock:    stepper.SystemClock{},
		byHandle: make(map[scene.ActorHandle]*backend.Actor),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.manager == nil {
		w.manager = DefaultManager()
	}
	if w.foundation == nil {
		w.foundation = native.Process()
	}
	w.cfg.Normalize(w.logger)
	w.broker = broker.New(w.logger)

	physics, err := w.foundation.Acquire(w.factory)
	if err != nil {
		return nil, fmt.Errorf("acquire native foundation: %w", err)
	}
	w.physics = physics

	w.manager.add(w)
	if root != nil {
		w.SetScene(root)
	}
	w.manager.claimOrphans(w)
	w.logger.Info("world created", "scene", nodeName(root))
	return w, nil
}

// Scene returns the scene root.
func (w *World) Scene() *scene.Node { return w.root }

// Config returns a copy of the current settings.
func (w *World) Config() config.World { return w.cfg }

// Initialized reports whether the native scene exists.
func (w *World) Initialized() bool { return w.initialized }

// Closed reports whether Close was called.
func (w *World) Closed() bool { return w.closed }

// NativeScene returns the native scene, nil before initialization.
func (w *World) NativeScene() native.Scene { return w.nscene }

// Actors returns the live backend actors in creation order.
func (w *World) Actors() []*backend.Actor { return slices.Clone(w.actors) }

// Pending returns the nodes waiting for actor construction.
func (w *World) Pending() []*scene.Node { return slices.Clone(w.newNodes) }

// ActorFor returns the live actor bound to node.
func (w *World) ActorFor(node *scene.Node) (*backend.Actor, bool) {
	h, ok := node.Actor()
	if !ok {
		return nil, false
	}
	a, ok := w.byHandle[h]
	return a, ok
}

// Bodies returns the nodes of every live actor in creation order.
func (w *World) Bodies() []*scene.Node {
	out := make([]*scene.Node, 0, len(w.actors))
	for _, a := range w.actors {
		if n := a.Node(); n != nil {
			out = append(out, n)
		}
	}
	return out
}

// SetScene switches the world to a new scene root. Every node of the
// previous scene is deregistered; the new scene is scanned for physics
// nodes unless another world already uses it.
func (w *World) SetScene(root *scene.Node) {
	if w.root == root && root != nil {
		return
	}
	prev := w.root
	w.root = root

	for _, a := range slices.Clone(w.actors) {
		if n := a.Node(); n != nil {
			w.manager.DeregisterNode(n)
		}
	}
	for _, n := range w.newNodes {
		w.manager.addOrphan(n)
	}
	w.newNodes = nil

	if root == nil {
		return
	}
	if w.manager.sceneInUse(w, root) {
		err := backend.NewSceneInUseError(root.String())
		w.logger.Warn("scene already associated with a physics world", "scene", root.String(), "error", err)
		return
	}
	w.findPhysicsNodes()
	w.logger.Debug("scene set", "previous", nodeName(prev), "scene", root.String(), "pending", len(w.newNodes))
}

func (w *World) findPhysicsNodes() {
	w.root.Walk(func(n *scene.Node) {
		if !n.Kind().IsPhysics() {
			return
		}
		if _, bound := n.Actor(); bound {
			w.logger.Warn("physics node already associated with a backend actor", "node", n.String())
			return
		}
		w.enqueue(n)
		w.manager.dropOrphan(n)
	})
}

func (w *World) enqueue(node *scene.Node) {
	if !slices.Contains(w.newNodes, node) {
		w.newNodes = append(w.newNodes, node)
	}
}

// forget is the per-world half of Manager.DeregisterNode.
func (w *World) forget(node *scene.Node) {
	w.newNodes = slices.DeleteFunc(w.newNodes, func(x *scene.Node) bool { return x == node })
	if h, ok := node.Actor(); ok {
		if a, mine := w.byHandle[h]; mine {
			a.MarkRemoved()
			node.Unbind()
		}
	}
	w.broker.MarkRemoved(node)
}

// MatchOrphanNodes claims every orphan whose scene root belongs to w.
func (w *World) MatchOrphanNodes() {
	w.manager.claimOrphans(w)
}

func nodeName(n *scene.Node) string {
	if n == nil {
		return ""
	}
	return n.String()
}

// initPhysics creates the native scene, the shared default material and
// the stepper.
func (w *World) initPhysics() error {
	nscene, err := w.physics.CreateScene(w.cfg.SceneDesc(w.broker, native.DefaultFilterShader))
	if err != nil {
		return fmt.Errorf("create native scene: %w", err)
	}
	def := scene.DefaultMaterial()
	mat, err := w.physics.CreateMaterial(def.StaticFriction, def.DynamicFriction, def.Restitution)
	if err != nil {
		nscene.Release()
		return fmt.Errorf("create default material: %w", err)
	}

	w.nscene = nscene
	w.env = &backend.Env{
		Physics:         w.physics,
		Scene:           nscene,
		DefaultMaterial: mat,
		DefaultDensity:  w.cfg.DefaultDensity,
		Cooker:          w.cooker,
		Logger:          w.logger,
		OnCommand:       w.recordCommand,
	}
	w.broker.OnDeliver = w.recordDelivery
	w.stepper = stepper.New(nscene, stepper.WithClock(w.clock), stepper.WithLogger(w.logger))
	w.stepper.Start()
	w.initialized = true
	w.logger.Info("physics initialized",
		"gravity", w.cfg.Gravity,
		"threads", w.cfg.Threads(),
		"ccd", w.cfg.EnableCCD,
	)
	return nil
}

// Tick runs one step of the simulation followed by the sync window and
// returns the resulting report. The first Tick creates the native scene.
func (w *World) Tick(ctx context.Context) (TickReport, error) {
	if w.closed {
		return TickReport{}, ErrClosed
	}
	if !w.cfg.Running {
		return TickReport{}, ErrNotRunning
	}
	if !w.initialized {
		if err := w.initPhysics(); err != nil {
			return TickReport{}, err
		}
	}

	if !w.stepper.InFlight() {
		if err := w.stepper.Request(w.cfg.MinTimestep, w.cfg.MaxTimestep); err != nil {
			return TickReport{}, fmt.Errorf("request step: %w", err)
		}
	}
	tick, err := w.stepper.Wait(ctx)
	if err != nil {
		return TickReport{}, fmt.Errorf("wait for step: %w", err)
	}
	return w.frameFinished(tick), nil
}

// Run ticks until ctx ends, the world is paused or an error occurs.
func (w *World) Run(ctx context.Context) error {
	for w.cfg.Running {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := w.Tick(ctx); err != nil {
			return err
		}
	}
	return nil
}

// frameFinished is the sync window. The order of the passes matters:
// records are flushed while removed nodes are still in the removed-set.
func (w *World) frameFinished(tick stepper.Tick) TickReport {
	report := TickReport{Seq: tick.Seq, Delta: tick.Delta}
	w.report = &report
	defer func() { w.report = nil }()

	w.runDeferred()
	w.MatchOrphanNodes()
	report.Delivered = w.broker.Flush()
	w.cleanupRemovedNodes(&report)
	w.createNewActors(&report)

	dt := float32(tick.Delta.Seconds())
	cache := scene.NewTransformCache()
	for _, a := range w.actors {
		if a.Null() {
			if err := a.RetryInit(w.env); err != nil {
				w.logger.Warn("backend actor still invalid", "node", a.Node().String(), "error", err)
			}
		}
		a.MarkDirtyShapes(w.env, cache)
		if a.ShapesDirty() {
			report.Rebuilt++
		}
		a.RebuildDirtyShapes(w.env, cache)
		a.UpdateFilters()
		a.Sync(w.env, dt, cache)
	}

	w.updateDebugDraw()
	report.Actors = len(w.actors)
	w.logger.Debug("frame finished",
		"seq", report.Seq,
		"delta", report.Delta,
		"actors", report.Actors,
		"delivered", report.Delivered,
	)
	for _, fn := range w.observers {
		fn(report)
	}
	return report
}

func (w *World) cleanupRemovedNodes(report *TickReport) {
	removed := w.broker.Removed()
	triggers := w.triggerNodes()
	for _, n := range removed {
		broker.Forget(n, triggers)
	}

	kept := w.actors[:0]
	for _, a := range w.actors {
		if a.Removed() {
			a.Cleanup(w.env)
			delete(w.byHandle, a.Handle())
			report.Released++
			continue
		}
		kept = append(kept, a)
	}
	clear(w.actors[len(kept):])
	w.actors = kept
	w.broker.ClearRemoved()
}

func (w *World) triggerNodes() []*scene.Node {
	var out []*scene.Node
	for _, a := range w.actors {
		if n := a.Node(); n != nil && a.Kind() == scene.KindTrigger {
			out = append(out, n)
		}
	}
	return out
}

func (w *World) createNewActors(report *TickReport) {
	for _, n := range w.newNodes {
		if _, bound := n.Actor(); bound {
			w.logger.Warn("physics node already associated with a backend actor", "node", n.String())
			continue
		}
		h := w.manager.allocHandle()
		a := backend.New(n, h)
		n.Bind(h)
		if err := a.Init(w.env); err != nil {
			w.logger.Warn("backend actor not created", "node", n.String(), "error", err)
		}
		w.actors = append(w.actors, a)
		w.byHandle[h] = a
		report.Created = append(report.Created, n)
	}
	w.newNodes = nil
}

func (w *World) recordCommand(node *scene.Node, cmd scene.Command) {
	if w.report != nil {
		w.report.Commands = append(w.report.Commands, CommandReport{Node: node, Command: cmd})
	}
}

func (w *World) recordDelivery(r broker.Record) {
	if w.report != nil {
		w.report.Events = append(w.report.Events, r)
	}
}

// Close stops the stepper, releases every actor and the native scene, and
// drops the foundation reference. Nodes of the scene become orphans again.
// Safe to call more than once.
func (w *World) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if w.stepper != nil {
		w.stepper.Stop()
	}
	if w.initialized {
		var discard TickReport
		w.cleanupRemovedNodes(&discard)
		for _, a := range w.actors {
			if n := a.Node(); n != nil {
				n.Unbind()
				w.manager.addOrphan(n)
			}
			a.Cleanup(w.env)
		}
		w.env.DefaultMaterial.Release()
		w.nscene.Release()
	}
	for _, n := range w.newNodes {
		w.manager.addOrphan(n)
	}
	w.actors, w.newNodes, w.debug = nil, nil, nil
	clear(w.byHandle)

	w.manager.remove(w)
	w.foundation.Release()
	w.logger.Info("world closed", "scene", nodeName(w.root))
	return nil
}

// SetGravity changes gravity, pushing it to the native scene if it exists.
func (w *World) SetGravity(g mgl32.Vec3) {
	if w.cfg.Gravity == g {
		return
	}
	w.cfg.Gravity = g
	if w.nscene != nil {
		w.outsideStep(func() { w.nscene.SetGravity(w.cfg.Gravity) })
	}
}

// SetRunning pauses or resumes stepping.
func (w *World) SetRunning(running bool) {
	w.cfg.Running = running
}

// SetForceDebugDraw makes every body visible in the debug snapshot.
func (w *World) SetForceDebugDraw(force bool) {
	if w.cfg.ForceDebugDraw == force {
		return
	}
	w.cfg.ForceDebugDraw = force
	w.updateDebugDraw()
}

// SetMinTimestep sets the lower pacing bound, clamped to [0, max].
func (w *World) SetMinTimestep(d time.Duration) {
	w.cfg.MinTimestep = config.ClampMinTimestep(d, w.cfg.MaxTimestep, w.logger)
}

// SetMaxTimestep sets the upper step clamp, clamped to [0, inf). A minimum
// above the new maximum is lowered to it.
func (w *World) SetMaxTimestep(d time.Duration) {
	w.cfg.MaxTimestep = config.ClampMaxTimestep(d, w.logger)
	w.cfg.MinTimestep = config.ClampMinTimestep(w.cfg.MinTimestep, w.cfg.MaxTimestep, w.logger)
}

// SetDefaultDensity changes the default density and recomputes the mass of
// every dynamic body that uses it.
func (w *World) SetDefaultDensity(d float32) {
	if w.cfg.DefaultDensity == d {
		return
	}
	w.cfg.DefaultDensity = d
	if w.env == nil {
		return
	}
	w.outsideStep(func() {
		if w.env.DefaultDensity == w.cfg.DefaultDensity {
			return
		}
		w.env.DefaultDensity = w.cfg.DefaultDensity
		for _, a := range w.actors {
			a.UpdateDefaultDensity(w.env)
		}
	})
}

// outsideStep runs fn now unless a step is in flight, in which case it runs
// at the start of the next sync window.
func (w *World) outsideStep(fn func()) {
	if w.stepper != nil && w.stepper.InFlight() {
		w.deferred = append(w.deferred, fn)
		return
	}
	fn()
}

func (w *World) runDeferred() {
	for _, fn := range w.deferred {
		fn()
	}
	clear(w.deferred)
	w.deferred = w.deferred[:0]
}

// initOnly applies set when the native scene does not exist yet and warns
// otherwise.
func (w *World) initOnly(name string, set func()) {
	if w.initialized {
		w.logger.Warn("setting has no effect after physics is initialized", "setting", name)
		return
	}
	set()
}

func (w *World) SetEnableCCD(enable bool) {
	w.initOnly("enable_ccd", func() { w.cfg.EnableCCD = enable })
}

// SetTypicalLength ignores non-positive values.
func (w *World) SetTypicalLength(l float32) {
	if l <= 0 {
		w.logger.Warn("typical length must be positive, ignored", "value", l)
		return
	}
	w.initOnly("typical_length", func() { w.cfg.TypicalLength = l })
}

func (w *World) SetTypicalSpeed(s float32) {
	w.initOnly("typical_speed", func() { w.cfg.TypicalSpeed = s })
}

func (w *World) SetNumThreads(n int) {
	w.initOnly("num_threads", func() { w.cfg.NumThreads = n })
}

func (w *World) SetReportKinematicKinematic(report bool) {
	w.initOnly("report_kinematic_kinematic", func() { w.cfg.ReportKinematicKinematic = report })
}

func (w *World) SetReportStaticKinematic(report bool) {
	w.initOnly("report_static_kinematic", func() { w.cfg.ReportStaticKinematic = report })
}
