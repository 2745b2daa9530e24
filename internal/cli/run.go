package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spf13/cobra"

	"github.com/roach88/physync/internal/native"
	"github.com/roach88/physync/internal/native/fake"
	"github.com/roach88/physync/internal/scene"
	"github.com/roach88/physync/internal/scenefile"
	"github.com/roach88/physync/internal/stepper"
	"github.com/roach88/physync/internal/trace"
	"github.com/roach88/physync/internal/world"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Ticks    int
	Database string
	RunID    string

	// Clock overrides step pacing (for testing). Defaults to the wall clock.
	Clock stepper.Clock

	// IDs overrides run and node id generation (for testing). Defaults to
	// UUIDv7.
	IDs scene.IDGenerator
}

// RunSummary is the output of the run command.
type RunSummary struct {
	RunID     string     `json:"run_id,omitempty"`
	Scene     string     `json:"scene"`
	Ticks     int        `json:"ticks"`
	Created   int        `json:"created"`
	Released  int        `json:"released"`
	Delivered int        `json:"delivered"`
	Commands  int        `json:"commands"`
	Actors    int        `json:"actors"`
	Final     []NodePose `json:"final"`
}

// NodePose is a node's scene-space position after the last tick.
type NodePose struct {
	Node     string     `json:"node"`
	Position mgl32.Vec3 `json:"position"`
}

func (s RunSummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Scene %q: %d tick(s), %d actor(s)\n", s.Scene, s.Ticks, s.Actors)
	fmt.Fprintf(&b, "  created %d, released %d, delivered %d event(s), executed %d command(s)\n",
		s.Created, s.Released, s.Delivered, s.Commands)
	for _, p := range s.Final {
		fmt.Fprintf(&b, "  %-16s %8.3f %8.3f %8.3f\n", p.Node, p.Position[0], p.Position[1], p.Position[2])
	}
	if s.RunID != "" {
		fmt.Fprintf(&b, "Recorded as run %s\n", s.RunID)
	}
	return strings.TrimRight(b.String(), "\n")
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scene-file>",
		Short: "Simulate a scene",
		Long: `Simulate a scene file against the reference engine.

Steps the world for the given number of ticks, paced by the world's
minimum timestep. With --db every tick is recorded to a SQLite trace
database that "physync trace" can read back.

Example:
  physync run ./scenes/ball.yaml --ticks 120
  physync run ./scenes/ball.yaml --ticks 120 --db ./trace.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScene(opts, args[0], cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Ticks, "ticks", 60, "number of ticks to simulate")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite trace database (optional)")
	cmd.Flags().StringVar(&opts.RunID, "run-id", "", "id of the recorded run (default: generated UUIDv7)")

	return cmd
}

func runScene(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose)

	if opts.Ticks <= 0 {
		return NewExitError(ExitCommandError, "--ticks must be positive")
	}

	source, err := os.ReadFile(path)
	if err != nil {
		_ = formatter.Error(ErrCodeFileNotFound, fmt.Sprintf("cannot read scene file: %s", path), nil)
		return WrapExitError(ExitCommandError, "failed to read scene file", err)
	}
	file, err := scenefile.ParseNamed(path, source)
	if err != nil {
		_ = formatter.Error(ErrCodeSceneInvalid, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid scene", err)
	}

	ids := opts.IDs
	if ids == nil {
		ids = scene.UUIDGenerator{}
	}
	built, err := scenefile.Build(file, scenefile.WithIDs(ids))
	if err != nil {
		_ = formatter.Error(ErrCodeSceneInvalid, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid scene", err)
	}

	clock := opts.Clock
	if clock == nil {
		clock = stepper.SystemClock{}
	}
	w, err := world.New(built.Root,
		world.WithConfig(built.Config),
		world.WithManager(world.NewManager()),
		world.WithFoundation(&native.Foundation{}),
		world.WithPhysics(fake.Factory(fake.New())),
		world.WithClock(clock),
		world.WithLogger(logger),
	)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create world", err)
	}
	defer w.Close()

	var st *trace.Store
	runID := ""
	if opts.Database != "" {
		st, err = trace.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open trace database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing trace database", "error", closeErr)
			}
		}()
		runID = opts.RunID
		if runID == "" {
			runID = ids.Generate()
		}
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	if st != nil {
		run, err := trace.NewRun(runID, built.Name, source, w.Config())
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to describe run", err)
		}
		if err := st.WriteRun(ctx, run); err != nil {
			return WrapExitError(ExitCommandError, "failed to record run", err)
		}
	}

	summary := RunSummary{RunID: runID, Scene: built.Name, Final: []NodePose{}}
	for i := 0; i < opts.Ticks; i++ {
		report, err := w.Tick(ctx)
		if errors.Is(err, world.ErrNotRunning) || errors.Is(err, context.Canceled) {
			logger.Info("simulation stopped", "ticks", summary.Ticks, "reason", err)
			break
		}
		if err != nil {
			return WrapExitError(ExitFailure, "simulation error", err)
		}

		summary.Ticks++
		summary.Created += len(report.Created)
		summary.Released += report.Released
		summary.Delivered += report.Delivered
		summary.Commands += len(report.Commands)
		summary.Actors = report.Actors
		formatter.VerboseLog("tick %d: %d actor(s), %d event(s)", report.Seq, report.Actors, report.Delivered)

		if st != nil {
			if err := st.WriteTick(ctx, runID, trace.FromReport(report, w.Bodies())); err != nil {
				return WrapExitError(ExitCommandError, "failed to record tick", err)
			}
		}
	}

	for _, n := range built.Nodes() {
		if !n.Kind().IsPhysics() {
			continue
		}
		summary.Final = append(summary.Final, NodePose{Node: n.Name(), Position: n.ScenePose().Position})
	}
	sort.Slice(summary.Final, func(i, j int) bool { return summary.Final[i].Node < summary.Final[j].Node })

	return formatter.Success(summary)
}

// signalContext cancels on SIGINT or SIGTERM. The command's context is the
// parent when set (for testing).
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
