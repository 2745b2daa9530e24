// Package harness runs scenario files against the reference engine and
// compares the recorded trace with golden files.
//
// A scenario names a scene file, a tick count, actions applied between
// ticks and assertions on the result. Every run is isolated and
// deterministic:
//   - a fresh world manager and native foundation
//   - the fake engine from native/fake
//   - a manual clock, so every step is paced to exactly the minimum timestep
//   - sequential node ids
//   - an in-memory trace store the ticks are written to and read back from
//
// The same scenario therefore always produces the same trace, which is what
// the golden files record.
package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/roach88/physync/internal/native"
	"github.com/roach88/physync/internal/native/fake"
	"github.com/roach88/physync/internal/scene"
	"github.com/roach88/physync/internal/scenefile"
	"github.com/roach88/physync/internal/testutil"
	"github.com/roach88/physync/internal/trace"
	"github.com/roach88/physync/internal/world"
)

const runID = "scenario"

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	// Ticks is the recorded trace, read back from the trace store.
	Ticks []trace.Tick `json:"ticks"`

	// Errors contains assertion failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Final holds the scene-space position of every node after the last
	// tick, by name.
	Final map[string]mgl32.Vec3 `json:"final,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Ticks:  []trace.Tick{},
		Errors: []string{},
		Final:  make(map[string]mgl32.Vec3),
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Option configures Run.
type Option func(*runner)

// WithLogger routes world and stepper logs. Logs are discarded by default.
func WithLogger(l *slog.Logger) Option {
	return func(r *runner) {
		r.logger = l
	}
}

// WithPhysics swaps the fake engine for a preconfigured one.
func WithPhysics(p *fake.Physics) Option {
	return func(r *runner) {
		r.physics = p
	}
}

type runner struct {
	logger  *slog.Logger
	physics *fake.Physics

	manager *world.Manager
	scene   *scenefile.Scene
	world   *world.World
}

// Run executes a scenario and returns the result. The returned error is
// for setup failures; failed assertions are reported in Result.Errors.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	r := &runner{
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		physics: fake.New(),
		manager: world.NewManager(),
	}
	for _, opt := range opts {
		opt(r)
	}

	file, err := scenefile.Load(scenario.Scene)
	if err != nil {
		return nil, fmt.Errorf("failed to load scene: %w", err)
	}
	r.scene, err = scenefile.Build(file, scenefile.WithIDs(testutil.NewSequenceGenerator("node")))
	if err != nil {
		return nil, fmt.Errorf("failed to build scene: %w", err)
	}

	st, err := trace.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory trace: %w", err)
	}
	defer st.Close()

	r.world, err = world.New(r.scene.Root,
		world.WithConfig(r.scene.Config),
		world.WithManager(r.manager),
		world.WithFoundation(&native.Foundation{}),
		world.WithPhysics(fake.Factory(r.physics)),
		world.WithClock(testutil.NewManualClock()),
		world.WithLogger(r.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create world: %w", err)
	}
	defer r.world.Close()

	ctx := context.Background()
	run, err := trace.NewRun(runID, r.scene.Name, nil, r.world.Config())
	if err != nil {
		return nil, err
	}
	if err := st.WriteRun(ctx, run); err != nil {
		return nil, err
	}

	for i := 1; i <= scenario.Ticks; i++ {
		for _, a := range scenario.Actions {
			if a.At != i {
				continue
			}
			if err := r.apply(a); err != nil {
				return nil, fmt.Errorf("tick %d: %w", i, err)
			}
		}

		report, err := r.world.Tick(ctx)
		if errors.Is(err, world.ErrNotRunning) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("tick %d: %w", i, err)
		}
		if err := st.WriteTick(ctx, runID, trace.FromReport(report, r.world.Bodies())); err != nil {
			return nil, fmt.Errorf("tick %d: %w", i, err)
		}
	}

	result := NewResult()
	result.Ticks, err = st.ReadTicks(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to read trace: %w", err)
	}
	for _, n := range r.scene.Nodes() {
		result.Final[n.Name()] = n.ScenePose().Position
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// apply performs one action on the scene or world.
func (r *runner) apply(a Action) error {
	if a.Do == DoSetGravity {
		r.world.SetGravity(*a.Vector)
		return nil
	}

	node, ok := r.scene.Node(a.Node)
	if !ok {
		return fmt.Errorf("%s: unknown node %q", a.Do, a.Node)
	}

	if kind, ok := scene.ParseCommandKind(a.Do); ok {
		if node.Dynamic == nil {
			return fmt.Errorf("%s: node %q is not dynamic", a.Do, a.Node)
		}
		enqueue(node.Dynamic, kind, a)
		return nil
	}

	switch a.Do {
	case DoDeregister:
		r.manager.DeregisterNode(node)
	case DoRegister:
		r.manager.RegisterNode(node)
	case DoSetPosition:
		node.SetPosition(*a.Vector)
	case DoSetEnabled:
		node.SetEnabled(*a.Flag)
	case DoMove, DoTeleport:
		if node.Controller == nil {
			return fmt.Errorf("%s: node %q is not a controller", a.Do, a.Node)
		}
		if a.Do == DoMove {
			node.Controller.Movement = *a.Vector
		} else {
			node.Controller.Teleport(*a.Vector)
		}
	default:
		return fmt.Errorf("unknown action %q", a.Do)
	}
	return nil
}

func enqueue(body *scene.DynamicBody, kind scene.CommandKind, a Action) {
	var vec, pos, rot mgl32.Vec3
	if a.Vector != nil {
		vec = *a.Vector
	}
	if a.Position != nil {
		pos = *a.Position
	}
	if a.Rotation != nil {
		rot = *a.Rotation
	}
	var scalar float32
	if a.Scalar != nil {
		scalar = *a.Scalar
	}
	flag := a.Flag != nil && *a.Flag

	switch kind {
	case scene.CmdApplyCentralForce:
		body.ApplyCentralForce(vec)
	case scene.CmdApplyForce:
		body.ApplyForce(vec, pos)
	case scene.CmdApplyTorque:
		body.ApplyTorque(vec)
	case scene.CmdApplyCentralImpulse:
		body.ApplyCentralImpulse(vec)
	case scene.CmdApplyImpulse:
		body.ApplyImpulse(vec, pos)
	case scene.CmdApplyTorqueImpulse:
		body.ApplyTorqueImpulse(vec)
	case scene.CmdSetAngularVelocity:
		body.SetAngularVelocity(vec)
	case scene.CmdSetLinearVelocity:
		body.SetLinearVelocity(vec)
	case scene.CmdSetMass:
		body.SetMass(scalar)
	case scene.CmdSetDensity:
		body.SetDensity(scalar)
	case scene.CmdSetMassAndInertiaTensor:
		body.SetMassAndInertiaTensor(scalar, vec)
	case scene.CmdSetKinematic:
		body.SetKinematicCommand(flag)
	case scene.CmdSetGravityEnabled:
		body.SetGravityEnabledCommand(flag)
	case scene.CmdReset:
		body.Reset(pos, scenefile.Euler(rot))
	}
}
