package trace

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// ErrRunNotFound is returned when a run id is not in the trace.
var ErrRunNotFound = errors.New("run not found")

// ReadRun returns one run.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	var r Run
	err := s.db.QueryRowContext(ctx, `
		SELECT id, scene, scene_hash, config FROM runs WHERE id = ?
	`, id).Scan(&r.ID, &r.Scene, &r.SceneHash, &r.Config)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("read run %s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("read run %s: %w", id, err)
	}
	return r, nil
}

// ListRuns returns every run ordered by id.
//
// Returns an empty slice (not nil) if the trace holds no runs.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, scene, scene_hash, config FROM runs
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Scene, &r.SceneHash, &r.Config); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadTicks returns every tick of a run ordered by seq, with events and
// commands in delivery order and poses by node name.
func (s *Store) ReadTicks(ctx context.Context, runID string) ([]Tick, error) {
	if _, err := s.ReadRun(ctx, runID); err != nil {
		return nil, err
	}

	ticks, err := s.readTickRows(ctx, runID)
	if err != nil {
		return nil, err
	}
	index := make(map[int64]*Tick, len(ticks))
	for i := range ticks {
		index[ticks[i].Seq] = &ticks[i]
	}

	if err := s.readEvents(ctx, runID, index); err != nil {
		return nil, err
	}
	if err := s.readCommands(ctx, runID, index); err != nil {
		return nil, err
	}
	if err := s.readPoses(ctx, runID, index); err != nil {
		return nil, err
	}
	return ticks, nil
}

func (s *Store) readTickRows(ctx context.Context, runID string) ([]Tick, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, delta_us, actors, created, released, rebuilt, delivered
		FROM ticks
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query ticks: %w", err)
	}
	defer rows.Close()

	ticks := []Tick{}
	for rows.Next() {
		t := Tick{Events: []Event{}, Commands: []Command{}, Poses: []Pose{}}
		if err := rows.Scan(&t.Seq, &t.DeltaMicros, &t.Actors, &t.Created, &t.Released, &t.Rebuilt, &t.Delivered); err != nil {
			return nil, fmt.Errorf("scan tick: %w", err)
		}
		ticks = append(ticks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ticks: %w", err)
	}
	return ticks, nil
}

func (s *Store) readEvents(ctx context.Context, runID string, index map[int64]*Tick) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, kind, sender, receiver, points
		FROM events
		WHERE run_id = ?
		ORDER BY seq ASC, idx ASC
	`, runID)
	if err != nil {
		return fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			seq    int64
			e      Event
			points string
		)
		if err := rows.Scan(&seq, &e.Kind, &e.Sender, &e.Receiver, &points); err != nil {
			return fmt.Errorf("scan event: %w", err)
		}
		if e.Points, err = unmarshalPoints(points); err != nil {
			return err
		}
		if t, ok := index[seq]; ok {
			t.Events = append(t.Events, e)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate events: %w", err)
	}
	return nil
}

func (s *Store) readCommands(ctx context.Context, runID string, index map[int64]*Tick) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, node, command
		FROM commands
		WHERE run_id = ?
		ORDER BY seq ASC, idx ASC
	`, runID)
	if err != nil {
		return fmt.Errorf("query commands: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			seq int64
			c   Command
		)
		if err := rows.Scan(&seq, &c.Node, &c.Name); err != nil {
			return fmt.Errorf("scan command: %w", err)
		}
		if t, ok := index[seq]; ok {
			t.Commands = append(t.Commands, c)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate commands: %w", err)
	}
	return nil
}

func (s *Store) readPoses(ctx context.Context, runID string, index map[int64]*Tick) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, node, px, py, pz, qw, qx, qy, qz
		FROM poses
		WHERE run_id = ?
		ORDER BY seq ASC, node COLLATE BINARY ASC
	`, runID)
	if err != nil {
		return fmt.Errorf("query poses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			seq int64
			p   Pose
			pos mgl32.Vec3
			rot mgl32.Quat
		)
		if err := rows.Scan(&seq, &p.Node, &pos[0], &pos[1], &pos[2], &rot.W, &rot.V[0], &rot.V[1], &rot.V[2]); err != nil {
			return fmt.Errorf("scan pose: %w", err)
		}
		p.Position = pos
		p.Rotation = rot
		if t, ok := index[seq]; ok {
			t.Poses = append(t.Poses, p)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate poses: %w", err)
	}
	return nil
}
