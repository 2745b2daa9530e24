package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/physync/internal/trace"
)

// TraceSnapshot is the part of a run compared against golden files. Poses
// are left out; position assertions cover them.
type TraceSnapshot struct {
	ScenarioName string         `json:"scenario_name"`
	Ticks        []TickSnapshot `json:"ticks"`
}

// TickSnapshot is one tick of a TraceSnapshot.
type TickSnapshot struct {
	Seq         int64    `json:"seq"`
	DeltaMicros int64    `json:"delta_us"`
	Actors      int      `json:"actors"`
	Created     int      `json:"created"`
	Released    int      `json:"released"`
	Rebuilt     int      `json:"rebuilt"`
	Delivered   int      `json:"delivered"`
	Events      []string `json:"events"`
	Commands    []string `json:"commands"`
}

// Snapshot builds the golden view of a run.
func Snapshot(name string, ticks []trace.Tick) TraceSnapshot {
	s := TraceSnapshot{ScenarioName: name, Ticks: make([]TickSnapshot, 0, len(ticks))}
	for _, t := range ticks {
		ts := TickSnapshot{
			Seq:         t.Seq,
			DeltaMicros: t.DeltaMicros,
			Actors:      t.Actors,
			Created:     t.Created,
			Released:    t.Released,
			Rebuilt:     t.Rebuilt,
			Delivered:   t.Delivered,
			Events:      []string{},
			Commands:    []string{},
		}
		for _, e := range t.Events {
			ts.Events = append(ts.Events, FormatEvent(e))
		}
		for _, c := range t.Commands {
			ts.Commands = append(ts.Commands, c.Node+" "+c.Name)
		}
		s.Ticks = append(s.Ticks, ts)
	}
	return s
}

// MarshalSnapshot renders a snapshot as indented JSON with HTML escaping
// disabled and a trailing newline.
func MarshalSnapshot(s TraceSnapshot) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// RunWithGolden executes a scenario and compares its trace against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns an error if the scenario fails to run. A golden mismatch fails
// the test through goldie.
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...Option) (*Result, error) {
	t.Helper()

	result, err := Run(scenario, opts...)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := MarshalSnapshot(Snapshot(scenarioName, result.Ticks))
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
