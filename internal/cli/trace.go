package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/physync/internal/trace"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	RunID    string
	Node     string // optional - filter to one node
}

// TraceResult holds the trace output for one run.
type TraceResult struct {
	Run   trace.Run    `json:"run"`
	Ticks []trace.Tick `json:"ticks"`
	Stats TraceStats   `json:"stats"`
}

// TraceStats holds summary statistics for the run.
type TraceStats struct {
	Ticks    int `json:"ticks"`
	Events   int `json:"events"`
	Commands int `json:"commands"`
	Created  int `json:"created"`
	Released int `json:"released"`
}

// RunList is the trace output when no run is selected.
type RunList struct {
	Runs []trace.Run `json:"runs"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect recorded runs",
		Long: `Inspect runs recorded by "physync run --db".

Without --run, lists the recorded runs. With --run, prints the run's
timeline: per tick the delivered contact and trigger reports, the
executed rigid body commands and the body poses.

Examples:
  physync trace --db ./trace.db
  physync trace --db ./trace.db --run 0190f3c2-...
  physync trace --db ./trace.db --run 0190f3c2-... --node ball --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite trace database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run to show")
	cmd.Flags().StringVar(&opts.Node, "node", "", "only show events, commands and poses of this node")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	// Opening would create an empty database. Reading one that is not there
	// is a usage mistake.
	if _, err := os.Stat(opts.Database); err != nil {
		_ = formatter.Error(ErrCodeFileNotFound, fmt.Sprintf("trace database not found: %s", opts.Database), nil)
		return WrapExitError(ExitCommandError, "trace database not found", err)
	}

	st, err := trace.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open trace database", err)
	}
	defer st.Close()

	if opts.RunID == "" {
		runs, err := st.ListRuns(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list runs", err)
		}
		if formatter.JSON() {
			return formatter.Success(RunList{Runs: runs})
		}
		outputRunsText(formatter.Writer, runs)
		return nil
	}

	run, err := st.ReadRun(ctx, opts.RunID)
	if errors.Is(err, trace.ErrRunNotFound) {
		_ = formatter.Error(ErrCodeRunNotFound, fmt.Sprintf("run not found: %s", opts.RunID), nil)
		return WrapExitError(ExitCommandError, "run not found", err)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}
	ticks, err := st.ReadTicks(ctx, opts.RunID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read ticks", err)
	}
	if opts.Node != "" {
		for i := range ticks {
			ticks[i] = filterTick(ticks[i], opts.Node)
		}
	}

	result := TraceResult{Run: run, Ticks: ticks, Stats: stats(ticks)}
	if formatter.JSON() {
		return formatter.Success(result)
	}
	outputTraceText(formatter.Writer, result, opts.Verbose)
	return nil
}

// filterTick keeps the parts of a tick that mention node. Counters are
// left as recorded.
func filterTick(t trace.Tick, node string) trace.Tick {
	events := make([]trace.Event, 0, len(t.Events))
	for _, e := range t.Events {
		if e.Sender == node || e.Receiver == node {
			events = append(events, e)
		}
	}
	commands := make([]trace.Command, 0, len(t.Commands))
	for _, c := range t.Commands {
		if c.Node == node {
			commands = append(commands, c)
		}
	}
	poses := make([]trace.Pose, 0, 1)
	for _, p := range t.Poses {
		if p.Node == node {
			poses = append(poses, p)
		}
	}
	t.Events, t.Commands, t.Poses = events, commands, poses
	return t
}

func stats(ticks []trace.Tick) TraceStats {
	s := TraceStats{Ticks: len(ticks)}
	for _, t := range ticks {
		s.Events += len(t.Events)
		s.Commands += len(t.Commands)
		s.Created += t.Created
		s.Released += t.Released
	}
	return s
}

func outputRunsText(w io.Writer, runs []trace.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}
	for _, r := range runs {
		fmt.Fprintf(w, "%s  %s  %s\n", r.ID, r.Scene, truncateHash(r.SceneHash))
	}
}

func outputTraceText(w io.Writer, result TraceResult, verbose bool) {
	fmt.Fprintf(w, "Run: %s\n", result.Run.ID)
	fmt.Fprintf(w, "Scene: %s (%s)\n", result.Run.Scene, truncateHash(result.Run.SceneHash))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	for _, t := range result.Ticks {
		fmt.Fprintf(w, "  [%d] %dus actors=%d created=%d released=%d\n",
			t.Seq, t.DeltaMicros, t.Actors, t.Created, t.Released)
		for _, e := range t.Events {
			fmt.Fprintf(w, "       %s %s -> %s\n", e.Kind, e.Sender, e.Receiver)
			if verbose {
				for _, p := range e.Points {
					fmt.Fprintf(w, "         at %v normal %v\n", p.Position, p.Normal)
				}
			}
		}
		for _, c := range t.Commands {
			fmt.Fprintf(w, "       CMD %s %s\n", c.Node, c.Name)
		}
		if verbose {
			for _, p := range t.Poses {
				fmt.Fprintf(w, "       POSE %s %v\n", p.Node, p.Position)
			}
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Ticks:    %d\n", result.Stats.Ticks)
	fmt.Fprintf(w, "  Events:   %d\n", result.Stats.Events)
	fmt.Fprintf(w, "  Commands: %d\n", result.Stats.Commands)
	fmt.Fprintf(w, "  Created:  %d\n", result.Stats.Created)
	fmt.Fprintf(w, "  Released: %d\n", result.Stats.Released)
}

// truncateHash shortens a scene hash for display.
func truncateHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
