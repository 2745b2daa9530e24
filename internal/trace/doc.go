// Package trace records simulation runs in SQLite.
//
// A trace holds runs, and per run one row per sync window:
//   - ticks: step delta and actor counts
//   - events: delivered contact and trigger reports, in delivery order
//   - commands: rigid body commands executed in the window
//   - poses: scene-space pose of every live body after the window
//
// # Ordering
//
// Rows are keyed by (run_id, seq). Queries order by seq, then by delivery
// index or node name, never by wall time, so recording the same scene twice
// with a manual clock yields identical rows.
//
// # Database Configuration
//
//   - WAL mode: a reader can follow a run being recorded
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - foreign_keys=ON
//   - schema version in PRAGMA user_version
package trace
