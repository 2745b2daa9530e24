package world

import (
	"time"

	"github.com/roach88/physync/internal/backend"
	"github.com/roach88/physync/internal/broker"
	"github.com/roach88/physync/internal/scene"
)

// TickReport summarizes one sync window. It is passed to observers after
// the window and returned by Tick.
type TickReport struct {
	Seq   int64
	Delta time.Duration

	// Created lists nodes whose backend actor was built this tick, valid or
	// not; Released counts actors destroyed.
	Created  []*scene.Node
	Released int

	// Rebuilt counts actors whose native shapes were rebuilt.
	Rebuilt int
	Actors  int

	Delivered int
	Events    []broker.Record
	Commands  []CommandReport
}

// DeltaMillis returns the step delta in milliseconds.
func (r TickReport) DeltaMillis() float32 {
	return float32(r.Delta.Seconds() * 1000)
}

// CommandReport is one command executed during the tick.
type CommandReport struct {
	Node    *scene.Node
	Command scene.Command
}

// updateDebugDraw refreshes the debug snapshot from every actor whose node
// asks for debug drawing, or from all actors when debug drawing is forced.
func (w *World) updateDebugDraw() {
	w.debug = w.debug[:0]
	for _, a := range w.actors {
		n := a.Node()
		if n == nil || a.Null() {
			continue
		}
		if w.cfg.ForceDebugDraw || n.DebugDraw {
			w.debug = append(w.debug, a.DebugShapes()...)
		}
	}
}

// DebugShapes returns the debug snapshot taken at the end of the last sync
// window.
func (w *World) DebugShapes() []backend.DebugShape {
	out := make([]backend.DebugShape, len(w.debug))
	copy(out, w.debug)
	return out
}
