package native

import (
	"github.com/go-gl/mathgl/mgl32"
)

// ContactPoint is one point of a contact pair.
type ContactPoint struct {
	Position mgl32.Vec3
	Impulse  mgl32.Vec3
	Normal   mgl32.Vec3
}

// ContactPair is reported when two actors start touching and at least one of
// them requested contact reports through the filter shader.
type ContactPair struct {
	Actor0, Actor1 Actor
	Points         []ContactPoint
}

// TriggerStatus tells whether a trigger pair started or stopped overlapping.
type TriggerStatus int

const (
	TriggerFound TriggerStatus = iota + 1
	TriggerLost
)

// TriggerPair is reported for trigger shape overlaps.
type TriggerPair struct {
	Trigger Actor
	Other   Actor
	Status  TriggerStatus
}

// EventCallback receives simulation events. Methods are invoked on the
// stepper goroutine inside Simulate/FetchResults and must not mutate the
// scene or the frontend graph.
type EventCallback interface {
	OnContact(pair ContactPair)
	OnTrigger(pairs []TriggerPair)
}

// FilterData is the 32-bit (id, mask) pair attached to a shape. ID has the
// bit of the shape's collision group set; Mask has the bits of the groups it
// ignores.
type FilterData struct {
	ID   uint32
	Mask uint32
}

// PairFlags is the result of the filter shader for a candidate pair.
type PairFlags uint8

const (
	PairSuppress PairFlags = 1 << iota
	PairCollide
	PairNotifyContact
	PairNotifyTrigger
)

// Has reports whether all bits of f are set.
func (p PairFlags) Has(f PairFlags) bool { return p&f == f }

// FilterShader decides how the engine treats a candidate pair.
type FilterShader func(a, b FilterData, aTrigger, bTrigger bool) PairFlags

// DefaultFilterShader suppresses a pair when either side ignores the other's
// group. Pairs involving a trigger report trigger events and do not collide;
// other pairs collide and report contacts.
func DefaultFilterShader(a, b FilterData, aTrigger, bTrigger bool) PairFlags {
	if a.ID&b.Mask != 0 || b.ID&a.Mask != 0 {
		return PairSuppress
	}
	if aTrigger || bTrigger {
		return PairNotifyTrigger
	}
	return PairCollide | PairNotifyContact
}
