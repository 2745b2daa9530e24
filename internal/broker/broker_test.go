package broker

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/physync/internal/native"
	"github.com/roach88/physync/internal/scene"
)

// stubActor carries only user data; every other method panics if called.
type stubActor struct {
	native.Actor
	data any
}

func (s *stubActor) UserData() any { return s.data }

func actorFor(n *scene.Node) native.Actor { return &stubActor{data: n} }

type contactLog struct {
	events []scene.ContactEvent
}

func body(name string, sends, receives bool) (*scene.Node, *contactLog) {
	n := scene.NewNodeWithID(scene.KindDynamic, name, name)
	n.Reports.SendsContactReports = sends
	n.Reports.ReceivesContactReports = receives
	log := &contactLog{}
	n.OnBodyContact = func(ev scene.ContactEvent) { log.events = append(log.events, ev) }
	return n, log
}

func pairOf(a, b *scene.Node) native.ContactPair {
	return native.ContactPair{
		Actor0: actorFor(a),
		Actor1: actorFor(b),
		Points: []native.ContactPoint{{
			Position: mgl32.Vec3{1, 2, 3},
			Impulse:  mgl32.Vec3{0, 4, 0},
			Normal:   mgl32.Vec3{0, 1, 0},
		}},
	}
}

func TestOnContact_DirectionalFlags(t *testing.T) {
	tests := []struct {
		name                 string
		aSends, aReceives    bool
		bSends, bReceives    bool
		expectedA, expectedB int
	}{
		{"a sends b receives", true, false, false, true, 0, 1},
		{"b sends a receives", false, true, true, false, 1, 0},
		{"both ways", true, true, true, true, 1, 1},
		{"nobody listens", true, false, true, false, 0, 0},
		{"nobody talks", false, true, false, true, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, logA := body("a", tt.aSends, tt.aReceives)
			b, logB := body("b", tt.bSends, tt.bReceives)
			br := New(nil)

			br.OnContact(pairOf(a, b))
			br.Flush()

			assert.Len(t, logA.events, tt.expectedA)
			assert.Len(t, logB.events, tt.expectedB)
		})
	}
}

func TestOnContact_NormalsFaceReceiver(t *testing.T) {
	a, logA := body("a", true, true)
	b, logB := body("b", true, true)
	br := New(nil)

	br.OnContact(pairOf(a, b))
	require.Equal(t, 2, br.Flush())

	require.Len(t, logB.events, 1)
	assert.Same(t, a, logB.events[0].Body)
	assert.Equal(t, []mgl32.Vec3{{0, 1, 0}}, logB.events[0].Normals)
	assert.Equal(t, []mgl32.Vec3{{1, 2, 3}}, logB.events[0].Positions)
	assert.Equal(t, []mgl32.Vec3{{0, 4, 0}}, logB.events[0].Impulses)

	require.Len(t, logA.events, 1)
	assert.Same(t, b, logA.events[0].Body)
	assert.Equal(t, []mgl32.Vec3{{0, -1, 0}}, logA.events[0].Normals)
	assert.Equal(t, []mgl32.Vec3{{1, 2, 3}}, logA.events[0].Positions)
}

func TestFlush_DropsRecordsOfNodesRemovedAfterCapture(t *testing.T) {
	a, logA := body("a", true, true)
	b, logB := body("b", true, true)
	br := New(nil)

	br.OnContact(pairOf(a, b))
	require.Equal(t, 2, br.Pending())

	br.MarkRemoved(b)

	assert.Equal(t, 0, br.Flush())
	assert.Empty(t, logA.events)
	assert.Empty(t, logB.events)
	assert.Equal(t, 0, br.Pending())
}

func TestOnContact_IgnoresRemovedAndUnboundActors(t *testing.T) {
	a, _ := body("a", true, true)
	b, _ := body("b", true, true)
	br := New(nil)

	br.MarkRemoved(a)
	br.OnContact(pairOf(a, b))
	assert.Equal(t, 0, br.Pending())

	br.OnContact(native.ContactPair{Actor0: &stubActor{}, Actor1: actorFor(b)})
	br.OnContact(native.ContactPair{Actor0: nil, Actor1: actorFor(b)})
	assert.Equal(t, 0, br.Pending())
}

func TestRemovedSet(t *testing.T) {
	a, _ := body("a", false, false)
	br := New(nil)

	assert.False(t, br.IsRemoved(a))
	br.MarkRemoved(a)
	assert.True(t, br.IsRemoved(a))
	assert.Equal(t, []*scene.Node{a}, br.Removed())

	br.ClearRemoved()
	assert.False(t, br.IsRemoved(a))
	assert.Empty(t, br.Removed())
}

func TestFlush_PreservesCaptureOrder(t *testing.T) {
	a, _ := body("a", true, false)
	b, logB := body("b", false, true)
	c, _ := body("c", true, false)
	br := New(nil)

	var seen []RecordKind
	br.OnDeliver = func(r Record) { seen = append(seen, r.Kind) }

	br.OnContact(pairOf(a, b))
	br.OnContact(pairOf(c, b))
	br.Flush()

	require.Len(t, logB.events, 2)
	assert.Same(t, a, logB.events[0].Body)
	assert.Same(t, c, logB.events[1].Body)
	assert.Equal(t, []RecordKind{RecordContact, RecordContact}, seen)
}

type triggerFixture struct {
	trigger *scene.Node
	entered []*scene.Node
	exited  []*scene.Node
}

func newTrigger() *triggerFixture {
	f := &triggerFixture{trigger: scene.NewNodeWithID(scene.KindTrigger, "zone", "zone")}
	f.trigger.OnBodyEntered = func(n *scene.Node) { f.entered = append(f.entered, n) }
	f.trigger.OnBodyExited = func(n *scene.Node) { f.exited = append(f.exited, n) }
	return f
}

func triggerPair(trig, other *scene.Node, status native.TriggerStatus) native.TriggerPair {
	return native.TriggerPair{Trigger: actorFor(trig), Other: actorFor(other), Status: status}
}

func TestOnTrigger_EnterAndExitUpdateOverlap(t *testing.T) {
	f := newTrigger()
	ball := scene.NewNodeWithID(scene.KindDynamic, "ball", "ball")
	ball.Reports.SendsTriggerReports = true
	br := New(nil)

	br.OnTrigger([]native.TriggerPair{triggerPair(f.trigger, ball, native.TriggerFound)})
	br.Flush()

	assert.Equal(t, []*scene.Node{ball}, f.entered)
	assert.True(t, f.trigger.Trigger.Contains(ball))
	assert.Equal(t, 1, f.trigger.Trigger.CollisionCount())

	br.OnTrigger([]native.TriggerPair{triggerPair(f.trigger, ball, native.TriggerLost)})
	br.Flush()

	assert.Equal(t, []*scene.Node{ball}, f.exited)
	assert.Equal(t, 0, f.trigger.Trigger.CollisionCount())
}

func TestOnTrigger_SilentBodyIsNotTracked(t *testing.T) {
	f := newTrigger()
	ball := scene.NewNodeWithID(scene.KindDynamic, "ball", "ball")
	br := New(nil)

	br.OnTrigger([]native.TriggerPair{triggerPair(f.trigger, ball, native.TriggerFound)})
	br.Flush()

	assert.Empty(t, f.entered)
	assert.Equal(t, 0, f.trigger.Trigger.CollisionCount())
}

func TestOnTrigger_ReceivingBodyHearsAboutTrigger(t *testing.T) {
	f := newTrigger()
	ball := scene.NewNodeWithID(scene.KindDynamic, "ball", "ball")
	ball.Reports.ReceivesTriggerReports = true
	var heard []*scene.Node
	ball.OnBodyEntered = func(n *scene.Node) { heard = append(heard, n) }
	br := New(nil)

	br.OnTrigger([]native.TriggerPair{triggerPair(f.trigger, ball, native.TriggerFound)})
	br.Flush()

	assert.Equal(t, []*scene.Node{f.trigger}, heard)
	assert.Empty(t, f.entered)
}

func TestOnTrigger_RemovedBeforeFlush(t *testing.T) {
	f := newTrigger()
	ball := scene.NewNodeWithID(scene.KindDynamic, "ball", "ball")
	ball.Reports.SendsTriggerReports = true
	br := New(nil)

	br.OnTrigger([]native.TriggerPair{triggerPair(f.trigger, ball, native.TriggerFound)})
	br.MarkRemoved(ball)
	br.Flush()

	assert.Empty(t, f.entered)
	assert.Equal(t, 0, f.trigger.Trigger.CollisionCount())
}

func TestForget(t *testing.T) {
	f := newTrigger()
	ball := scene.NewNodeWithID(scene.KindDynamic, "ball", "ball")
	ball.Reports.SendsTriggerReports = true
	br := New(nil)
	br.OnTrigger([]native.TriggerPair{triggerPair(f.trigger, ball, native.TriggerFound)})
	br.Flush()
	require.Equal(t, 1, f.trigger.Trigger.CollisionCount())

	Forget(ball, []*scene.Node{f.trigger, ball})

	assert.Equal(t, 0, f.trigger.Trigger.CollisionCount())
	assert.Empty(t, f.exited)
}
