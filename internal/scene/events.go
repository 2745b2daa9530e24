package scene

import (
	"github.com/go-gl/mathgl/mgl32"
)

// ContactEvent is delivered to a receiver's OnBodyContact handler. The three
// slices are parallel, one entry per contact point. Normals point from Body
// towards the receiver.
type ContactEvent struct {
	Body      *Node
	Positions []mgl32.Vec3
	Impulses  []mgl32.Vec3
	Normals   []mgl32.Vec3
}

// DeliverEntered updates the trigger bookkeeping of n and fires
// OnBodyEntered. It is a no-op if other was already inside.
func (n *Node) DeliverEntered(other *Node) {
	if n.Trigger != nil && !n.Trigger.Enter(other) {
		return
	}
	if n.OnBodyEntered != nil {
		n.OnBodyEntered(other)
	}
}

// DeliverExited updates the trigger bookkeeping of n and fires OnBodyExited.
// It is a no-op if other was not inside.
func (n *Node) DeliverExited(other *Node) {
	if n.Trigger != nil && !n.Trigger.Exit(other) {
		return
	}
	if n.OnBodyExited != nil {
		n.OnBodyExited(other)
	}
}

// DeliverContact fires OnBodyContact.
func (n *Node) DeliverContact(ev ContactEvent) {
	if n.OnBodyContact != nil {
		n.OnBodyContact(ev)
	}
}
