package trace

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/physync/internal/broker"
	"github.com/roach88/physync/internal/config"
	"github.com/roach88/physync/internal/native"
	"github.com/roach88/physync/internal/native/fake"
	"github.com/roach88/physync/internal/scene"
	"github.com/roach88/physync/internal/testutil"
	"github.com/roach88/physync/internal/world"
)

func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "trace.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func createTestRun(t *testing.T, s *Store, id string) Run {
	t.Helper()
	r, err := NewRun(id, "test-scene", []byte("name: test-scene\n"), config.Default())
	require.NoError(t, err)
	require.NoError(t, s.WriteRun(context.Background(), r))
	return r
}

func TestOpen_CreatesDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.db")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	assert.NoError(t, s.verifyPragma("journal_mode", "wal"))
	assert.NoError(t, s.verifyPragma("synchronous", "1"))
	assert.NoError(t, s.verifyPragma("busy_timeout", "5000"))
	assert.NoError(t, s.verifyPragma("foreign_keys", "1"))
	assert.NoError(t, s.verifyPragma("user_version", "1"))
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "iteration %d", i)
		require.NoError(t, s.Close())
	}
}

func TestOpen_MigrationCreatesReceiverIndex(t *testing.T) {
	s := createTestStore(t)

	var name string
	err := s.db.QueryRow(`
		SELECT name FROM sqlite_master WHERE type = 'index' AND name = 'idx_events_receiver'
	`).Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "idx_events_receiver", name)
}

func TestClose_NilDB(t *testing.T) {
	assert.NoError(t, (&Store{}).Close())
}

func TestWriteRun_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	r := createTestRun(t, s, "run-1")

	require.NoError(t, s.WriteRun(ctx, r))

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, r, runs[0])
}

func TestListRuns_EmptyIsNotNil(t *testing.T) {
	s := createTestStore(t)

	runs, err := s.ListRuns(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, runs)
	assert.Empty(t, runs)
}

func TestListRuns_OrderedByID(t *testing.T) {
	s := createTestStore(t)
	createTestRun(t, s, "run-b")
	createTestRun(t, s, "run-a")

	runs, err := s.ListRuns(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-a", runs[0].ID)
	assert.Equal(t, "run-b", runs[1].ID)
}

func TestReadRun_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.ReadRun(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)

	_, err = s.ReadTicks(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestWriteTick_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestRun(t, s, "run-1")

	want := []Tick{
		{
			Seq: 1, DeltaMicros: 16667, Actors: 2, Created: 2, Rebuilt: 2,
			Events:   []Event{},
			Commands: []Command{{Node: "box", Name: "set_mass"}},
			Poses: []Pose{
				{Node: "box", Position: mgl32.Vec3{0, 99.5, 0}, Rotation: mgl32.QuatIdent()},
				{Node: "ground", Position: mgl32.Vec3{}, Rotation: mgl32.QuatIdent()},
			},
		},
		{
			Seq: 2, DeltaMicros: 33333, Actors: 2, Delivered: 2,
			Events: []Event{
				{
					Kind: "contact", Sender: "ground", Receiver: "box",
					Points: []Point{{Position: mgl32.Vec3{0, 0, 0}, Normal: mgl32.Vec3{0, 1, 0}, Impulse: mgl32.Vec3{0, 2, 0}}},
				},
				{Kind: "trigger_enter", Sender: "box", Receiver: "zone"},
			},
			Commands: []Command{},
			Poses:    []Pose{},
		},
	}
	for _, tk := range want {
		require.NoError(t, s.WriteTick(ctx, "run-1", tk))
	}

	got, err := s.ReadTicks(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestWriteTick_DuplicateSeqRollsBack(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestRun(t, s, "run-1")

	first := Tick{Seq: 1, Commands: []Command{{Node: "a", Name: "reset"}}}
	require.NoError(t, s.WriteTick(ctx, "run-1", first))

	second := Tick{Seq: 1, Commands: []Command{{Node: "b", Name: "reset"}}}
	assert.Error(t, s.WriteTick(ctx, "run-1", second))

	ticks, err := s.ReadTicks(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, ticks, 1)
	assert.Equal(t, []Command{{Node: "a", Name: "reset"}}, ticks[0].Commands)
}

func TestWriteTick_UnknownRunViolatesForeignKey(t *testing.T) {
	s := createTestStore(t)

	err := s.WriteTick(context.Background(), "ghost", Tick{Seq: 1})
	assert.Error(t, err)
}

func TestSceneHash(t *testing.T) {
	a := SceneHash([]byte("name: a\n"))

	assert.Len(t, a, 64)
	assert.Equal(t, a, SceneHash([]byte("name: a\n")), "stable")
	assert.NotEqual(t, a, SceneHash([]byte("name: b\n")))
}

func TestNewRun_ConfigJSON(t *testing.T) {
	cfg := config.Default()
	cfg.MinTimestep = 10 * time.Millisecond

	r, err := NewRun("run-1", "scene", nil, cfg)
	require.NoError(t, err)

	assert.Contains(t, r.Config, `"min_timestep":"10ms"`)
	assert.Contains(t, r.Config, `"gravity":[0,-981,0]`)
	assert.NotContains(t, r.Config, "\n")
}

func TestFromReport(t *testing.T) {
	a := scene.NewNodeWithID(scene.KindDynamic, "zeta", "z")
	b := scene.NewNodeWithID(scene.KindStatic, "alpha", "a")
	a.SetPosition(mgl32.Vec3{1, 2, 3})

	r := world.TickReport{
		Seq:       4,
		Delta:     20 * time.Millisecond,
		Created:   []*scene.Node{a},
		Released:  1,
		Rebuilt:   1,
		Actors:    2,
		Delivered: 1,
		Events: []broker.Record{{
			Kind:      broker.RecordContact,
			Sender:    b,
			Receiver:  a,
			Positions: []mgl32.Vec3{{1, 0, 0}, {2, 0, 0}},
			Normals:   []mgl32.Vec3{{0, 1, 0}, {0, 1, 0}},
			Impulses:  []mgl32.Vec3{{0, 5, 0}},
		}},
		Commands: []world.CommandReport{{Node: a, Command: scene.Command{Kind: scene.CmdApplyCentralImpulse}}},
	}

	got := FromReport(r, []*scene.Node{a, b})

	assert.Equal(t, int64(4), got.Seq)
	assert.Equal(t, int64(20000), got.DeltaMicros)
	assert.Equal(t, 1, got.Created)
	assert.Equal(t, 1, got.Released)
	require.Len(t, got.Events, 1)
	e := got.Events[0]
	assert.Equal(t, "contact", e.Kind)
	assert.Equal(t, "alpha", e.Sender)
	assert.Equal(t, "zeta", e.Receiver)
	require.Len(t, e.Points, 2)
	assert.Equal(t, mgl32.Vec3{0, 5, 0}, e.Points[0].Impulse)
	assert.Equal(t, mgl32.Vec3{}, e.Points[1].Impulse, "missing impulse stays zero")
	assert.Equal(t, []Command{{Node: "zeta", Name: "apply_central_impulse"}}, got.Commands)

	require.Len(t, got.Poses, 2)
	assert.Equal(t, "alpha", got.Poses[0].Node, "sorted by name")
	assert.Equal(t, mgl32.Vec3{1, 2, 3}, got.Poses[1].Position)
}

func TestRecordWorldRun(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestRun(t, s, "run-1")

	ground := scene.NewNodeWithID(scene.KindStatic, "ground", "ground")
	ground.AddShape(scene.NewPlane())
	box := scene.NewNodeWithID(scene.KindDynamic, "box", "box")
	box.SetPosition(mgl32.Vec3{0, 50, 0})
	box.AddShape(scene.NewBox(mgl32.Vec3{10, 10, 10}))
	root := scene.NewNodeWithID(scene.KindGroup, "root", "root")
	root.AddChild(ground)
	root.AddChild(box)

	w, err := world.New(root,
		world.WithManager(world.NewManager()),
		world.WithFoundation(&native.Foundation{}),
		world.WithPhysics(fake.Factory(fake.New())),
		world.WithClock(testutil.NewManualClock()),
		world.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)
	defer w.Close()

	for i := 0; i < 3; i++ {
		r, err := w.Tick(ctx)
		require.NoError(t, err)
		require.NoError(t, s.WriteTick(ctx, "run-1", FromReport(r, w.Bodies())))
	}

	ticks, err := s.ReadTicks(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, ticks, 3)
	assert.Equal(t, []int64{1, 2, 3}, []int64{ticks[0].Seq, ticks[1].Seq, ticks[2].Seq})
	assert.Equal(t, 2, ticks[0].Created)
	require.Len(t, ticks[2].Poses, 2)
	assert.Equal(t, "box", ticks[2].Poses[0].Node)
	assert.Equal(t, box.ScenePose().Position, ticks[2].Poses[0].Position)
	assert.Less(t, ticks[2].Poses[0].Position.Y(), float32(50))
}
