// Package broker carries contact and trigger reports from the simulation
// goroutine to the consuming goroutine.
//
// Reports arrive through native.EventCallback while a step is in flight.
// They are captured as Records into a pending queue and delivered by Flush
// in the next sync window. Nodes deregistered in between are put in the
// removed-set, and Flush drops every record that mentions one of them, so
// no handler ever sees a node that left the scene.
package broker

import (
	"log/slog"
	"sync"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/roach88/physync/internal/native"
	"github.com/roach88/physync/internal/scene"
)

// RecordKind distinguishes captured reports.
type RecordKind int

const (
	RecordContact RecordKind = iota + 1
	RecordTriggerEnter
	RecordTriggerExit
)

func (k RecordKind) String() string {
	switch k {
	case RecordContact:
		return "contact"
	case RecordTriggerEnter:
		return "trigger_enter"
	case RecordTriggerExit:
		return "trigger_exit"
	}
	return "unknown"
}

// Record is one captured report addressed to Receiver. For contacts the
// slices are parallel and normals point from Sender towards Receiver.
type Record struct {
	Kind      RecordKind
	Sender    *scene.Node
	Receiver  *scene.Node
	Positions []mgl32.Vec3
	Impulses  []mgl32.Vec3
	Normals   []mgl32.Vec3
}

// Broker implements native.EventCallback.
//
// Thread-safety model:
//   - OnContact / OnTrigger: stepper goroutine
//   - MarkRemoved, ClearRemoved, Flush: consuming goroutine
//
// The removed-set and the pending queue each have their own mutex and are
// never held together.
type Broker struct {
	logger *slog.Logger

	removedMu sync.Mutex
	removed   map[*scene.Node]struct{}

	pendingMu sync.Mutex
	pending   []Record

	// OnDeliver, when set, observes every record right before delivery.
	OnDeliver func(Record)
}

// New creates an empty broker. A nil logger uses slog.Default.
func New(logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		logger:  logger,
		removed: make(map[*scene.Node]struct{}),
	}
}

// MarkRemoved adds node to the removed-set.
func (b *Broker) MarkRemoved(node *scene.Node) {
	b.removedMu.Lock()
	defer b.removedMu.Unlock()
	b.removed[node] = struct{}{}
}

// IsRemoved reports whether node is in the removed-set.
func (b *Broker) IsRemoved(node *scene.Node) bool {
	b.removedMu.Lock()
	defer b.removedMu.Unlock()
	_, ok := b.removed[node]
	return ok
}

// Removed returns a snapshot of the removed-set.
func (b *Broker) Removed() []*scene.Node {
	b.removedMu.Lock()
	defer b.removedMu.Unlock()
	out := make([]*scene.Node, 0, len(b.removed))
	for n := range b.removed {
		out = append(out, n)
	}
	return out
}

// ClearRemoved empties the removed-set.
func (b *Broker) ClearRemoved() {
	b.removedMu.Lock()
	defer b.removedMu.Unlock()
	clear(b.removed)
}

// Pending returns the number of captured, undelivered records.
func (b *Broker) Pending() int {
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()
	return len(b.pending)
}

func (b *Broker) push(recs ...Record) {
	if len(recs) == 0 {
		return
	}
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()
	b.pending = append(b.pending, recs...)
}

// nodeOf resolves the frontend node from native user data.
func (b *Broker) nodeOf(a native.Actor) *scene.Node {
	if a == nil {
		return nil
	}
	n, _ := a.UserData().(*scene.Node)
	if n == nil || b.IsRemoved(n) {
		return nil
	}
	return n
}

// OnContact implements native.EventCallback.
func (b *Broker) OnContact(pair native.ContactPair) {
	n0, n1 := b.nodeOf(pair.Actor0), b.nodeOf(pair.Actor1)
	if n0 == nil || n1 == nil {
		b.logger.Debug("contact dropped: node gone")
		return
	}

	positions := make([]mgl32.Vec3, len(pair.Points))
	impulses := make([]mgl32.Vec3, len(pair.Points))
	normals := make([]mgl32.Vec3, len(pair.Points))
	for i, p := range pair.Points {
		positions[i], impulses[i], normals[i] = p.Position, p.Impulse, p.Normal
	}

	var recs []Record
	if n0.Reports.SendsContactReports && n1.Reports.ReceivesContactReports {
		recs = append(recs, Record{
			Kind: RecordContact, Sender: n0, Receiver: n1,
			Positions: positions, Impulses: impulses, Normals: normals,
		})
	}
	if n1.Reports.SendsContactReports && n0.Reports.ReceivesContactReports {
		reversed := make([]mgl32.Vec3, len(normals))
		for i, n := range normals {
			reversed[i] = n.Mul(-1)
		}
		recs = append(recs, Record{
			Kind: RecordContact, Sender: n1, Receiver: n0,
			Positions: positions, Impulses: impulses, Normals: reversed,
		})
	}
	b.push(recs...)
}

// OnTrigger implements native.EventCallback.
//
// The trigger node hears about bodies that send trigger reports; a body
// that receives trigger reports hears about the trigger it entered or left.
func (b *Broker) OnTrigger(pairs []native.TriggerPair) {
	var recs []Record
	for _, p := range pairs {
		trig, other := b.nodeOf(p.Trigger), b.nodeOf(p.Other)
		if trig == nil || other == nil {
			b.logger.Debug("trigger report dropped: node gone")
			continue
		}
		kind := RecordTriggerEnter
		if p.Status == native.TriggerLost {
			kind = RecordTriggerExit
		}
		if other.Reports.SendsTriggerReports {
			recs = append(recs, Record{Kind: kind, Sender: other, Receiver: trig})
		}
		if other.Reports.ReceivesTriggerReports {
			recs = append(recs, Record{Kind: kind, Sender: trig, Receiver: other})
		}
	}
	b.push(recs...)
}

// Flush delivers the captured records in capture order and returns how many
// were delivered. Records that mention a removed node are discarded.
//
// CRITICAL: call this on the consuming goroutine before clearing the
// removed-set, so nodes removed since capture are still filtered.
func (b *Broker) Flush() int {
	b.pendingMu.Lock()
	recs := b.pending
	b.pending = nil
	b.pendingMu.Unlock()

	delivered := 0
	for _, r := range recs {
		if r.Sender == nil || r.Receiver == nil || b.IsRemoved(r.Sender) || b.IsRemoved(r.Receiver) {
			continue
		}
		if b.OnDeliver != nil {
			b.OnDeliver(r)
		}
		switch r.Kind {
		case RecordContact:
			r.Receiver.DeliverContact(scene.ContactEvent{
				Body:      r.Sender,
				Positions: r.Positions,
				Impulses:  r.Impulses,
				Normals:   r.Normals,
			})
		case RecordTriggerEnter:
			r.Receiver.DeliverEntered(r.Sender)
		case RecordTriggerExit:
			r.Receiver.DeliverExited(r.Sender)
		}
		delivered++
	}
	if dropped := len(recs) - delivered; dropped > 0 {
		b.logger.Debug("records dropped at flush", "dropped", dropped)
	}
	return delivered
}

// Forget removes node from every trigger's overlap set without exit events.
// Called for nodes leaving the scene so CollisionCount stays accurate.
func Forget(node *scene.Node, triggers []*scene.Node) {
	for _, t := range triggers {
		if t.Trigger != nil {
			t.Trigger.Forget(node)
		}
	}
}
