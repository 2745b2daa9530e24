package trace

import (
	"context"
	"database/sql"
	"fmt"
)

// WriteRun inserts a run record. Writing the same run id twice is a no-op.
func (s *Store) WriteRun(ctx context.Context, r Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, scene, scene_hash, config)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, r.ID, r.Scene, r.SceneHash, r.Config)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	return nil
}

// WriteTick stores a tick with its events, commands and poses in one
// transaction. The run must exist.
func (s *Store) WriteTick(ctx context.Context, runID string, t Tick) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write tick: begin: %w", err)
	}
	defer tx.Rollback()

	if err := writeTick(ctx, tx, runID, t); err != nil {
		return fmt.Errorf("write tick %d: %w", t.Seq, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write tick %d: commit: %w", t.Seq, err)
	}
	return nil
}

func writeTick(ctx context.Context, tx *sql.Tx, runID string, t Tick) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO ticks (run_id, seq, delta_us, actors, created, released, rebuilt, delivered)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, runID, t.Seq, t.DeltaMicros, t.Actors, t.Created, t.Released, t.Rebuilt, t.Delivered)
	if err != nil {
		return fmt.Errorf("insert tick: %w", err)
	}

	for i, e := range t.Events {
		points, err := marshalPoints(e.Points)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO events (run_id, seq, idx, kind, sender, receiver, points)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, runID, t.Seq, i, e.Kind, e.Sender, e.Receiver, points)
		if err != nil {
			return fmt.Errorf("insert event %d: %w", i, err)
		}
	}

	for i, c := range t.Commands {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO commands (run_id, seq, idx, node, command)
			VALUES (?, ?, ?, ?, ?)
		`, runID, t.Seq, i, c.Node, c.Name)
		if err != nil {
			return fmt.Errorf("insert command %d: %w", i, err)
		}
	}

	for _, p := range t.Poses {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO poses (run_id, seq, node, px, py, pz, qw, qx, qy, qz)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, runID, t.Seq, p.Node,
			p.Position[0], p.Position[1], p.Position[2],
			p.Rotation.W, p.Rotation.V[0], p.Rotation.V[1], p.Rotation.V[2],
		)
		if err != nil {
			return fmt.Errorf("insert pose %s: %w", p.Node, err)
		}
	}

	return nil
}
