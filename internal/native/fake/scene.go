package fake

import (
	"sort"
	"sync"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/roach88/physync/internal/native"
	"github.com/roach88/physync/internal/xform"
)

// contactSlop keeps bodies resting on a plane in the touching set.
const contactSlop = 0.01

type pairKey struct{ a, b uint64 }

func keyOf(a, b *Actor) pairKey {
	if a.id > b.id {
		a, b = b, a
	}
	return pairKey{a.id, b.id}
}

// Scene implements native.Scene.
type Scene struct {
	physics  *Physics
	desc     native.SceneDesc
	gravity  mgl32.Vec3
	callback native.EventCallback

	actors      []*Actor
	controllers []*Controller
	released    bool

	// pairs tracks touching pairs; the value is true for trigger pairs.
	pairs map[pairKey]bool

	mu       sync.Mutex
	steps    []float32
	injected []native.ContactPair
	pending  []native.ContactPair
	triggers []native.TriggerPair
	nextMove *native.CollisionFlags
}

// Desc returns the descriptor the scene was created with.
func (s *Scene) Desc() native.SceneDesc { return s.desc }

// Gravity returns the current gravity.
func (s *Scene) Gravity() mgl32.Vec3 { return s.gravity }

// Released reports whether the scene was released.
func (s *Scene) Released() bool { return s.released }

// Actors returns the actors currently in the scene.
func (s *Scene) Actors() []*Actor {
	return append([]*Actor(nil), s.actors...)
}

// Controllers returns the live controllers.
func (s *Scene) Controllers() []*Controller {
	return append([]*Controller(nil), s.controllers...)
}

// Steps returns the dt of every Simulate call, in seconds.
func (s *Scene) Steps() []float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float32(nil), s.steps...)
}

// InjectContact queues a contact pair that is reported during the next
// FetchResults regardless of geometry.
func (s *Scene) InjectContact(pair native.ContactPair) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.injected = append(s.injected, pair)
}

// SetNextCollisionFlags overrides the flags returned by the next controller
// Move instead of testing against planes.
func (s *Scene) SetNextCollisionFlags(f native.CollisionFlags) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextMove = &f
}

func (s *Scene) takeCollisionFlags() (native.CollisionFlags, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nextMove == nil {
		return 0, false
	}
	f := *s.nextMove
	s.nextMove = nil
	return f, true
}

func (s *Scene) AddActor(a native.Actor) {
	s.physics.guard("add actor")
	fa := a.(*Actor)
	if fa.scene != nil {
		s.physics.violate("actor added twice")
		return
	}
	fa.scene = s
	s.actors = append(s.actors, fa)
}

func (s *Scene) RemoveActor(a native.Actor) {
	s.physics.guard("remove actor")
	fa := a.(*Actor)
	for i, cur := range s.actors {
		if cur == fa {
			s.actors = append(s.actors[:i], s.actors[i+1:]...)
			break
		}
	}
	fa.scene = nil
	for k := range s.pairs {
		if k.a == fa.id || k.b == fa.id {
			delete(s.pairs, k)
		}
	}
}

func (s *Scene) SetGravity(g mgl32.Vec3) {
	s.physics.guard("set gravity")
	s.gravity = g
}

func (s *Scene) SetEventCallback(cb native.EventCallback) {
	s.physics.guard("set event callback")
	s.callback = cb
}

// Simulate integrates every simulated body and detects overlaps. Events
// are held until FetchResults.
func (s *Scene) Simulate(dt float32) {
	s.physics.stepping.Add(1)
	s.physics.count(func(st *Stats) { st.Steps++ })

	s.mu.Lock()
	s.steps = append(s.steps, dt)
	s.pending = append(s.pending, s.injected...)
	s.injected = nil
	s.mu.Unlock()

	for _, a := range s.actors {
		a.integrate(s.gravity, dt)
	}
	s.restOnPlanes()
	s.detect()
}

// FetchResults completes the step and delivers the held events.
func (s *Scene) FetchResults(block bool) bool {
	s.mu.Lock()
	contacts := s.pending
	triggers := s.triggers
	s.pending, s.triggers = nil, nil
	s.mu.Unlock()

	if s.callback != nil {
		for _, c := range contacts {
			s.callback.OnContact(c)
		}
		if len(triggers) > 0 {
			s.callback.OnTrigger(triggers)
		}
	}
	s.physics.stepping.Add(-1)
	return true
}

func (s *Scene) CreateController(desc native.ControllerDesc) (native.Controller, error) {
	s.physics.guard("create controller")
	if s.physics.RefuseControllers {
		return nil, ErrControllerRefused
	}
	actor := newActor(s.physics, xform.NewPose(desc.Position, mgl32.QuatIdent()), true)
	actor.kinematic = true
	actor.userData = desc.UserData
	s.AddActor(actor)

	c := &Controller{scene: s, actor: actor, desc: desc, position: desc.Position}
	s.controllers = append(s.controllers, c)
	s.physics.count(func(st *Stats) { st.ControllersCreated++ })
	return c, nil
}

func (s *Scene) Release() {
	s.physics.guard("release scene")
	if s.released {
		s.physics.violate("scene released twice")
		return
	}
	if len(s.actors) > len(s.controllers) {
		s.physics.violate("scene released with actors")
	}
	s.released = true
}

// planeShape is a plane with its scene-space normal and a point on it.
type planeShape struct {
	shape  *Shape
	normal mgl32.Vec3
	point  mgl32.Vec3
}

// planes collects plane shapes of non-simulated actors. A plane's normal is the
// owner's local +Y axis.
func (s *Scene) planes() []planeShape {
	var out []planeShape
	for _, a := range s.actors {
		if a.simulated() {
			continue
		}
		for _, sh := range a.shapes {
			if sh.geom.Type != native.GeometryPlane || sh.trigger {
				continue
			}
			world := a.pose.Mul(sh.local)
			out = append(out, planeShape{
				shape:  sh,
				normal: world.Rotation.Rotate(mgl32.Vec3{0, 1, 0}),
				point:  world.Position,
			})
		}
	}
	return out
}

// restOnPlanes pushes simulated bodies out of colliding planes and removes
// the velocity component into the plane.
func (s *Scene) restOnPlanes() {
	planes := s.planes()
	if len(planes) == 0 {
		return
	}
	for _, a := range s.actors {
		if !a.simulated() {
			continue
		}
		for _, sh := range a.shapes {
			if sh.trigger {
				continue
			}
			for _, pl := range planes {
				if !s.desc.Shader(sh.filter, pl.shape.filter, false, false).Has(native.PairCollide) {
					continue
				}
				c := sh.worldCenter(a.pose)
				depth := sh.geom.BoundingRadius() - pl.normal.Dot(c.Sub(pl.point))
				if depth <= 0 {
					continue
				}
				a.pose.Position = a.pose.Position.Add(pl.normal.Mul(depth))
				if into := a.linVel.Dot(pl.normal); into < 0 {
					a.linVel = a.linVel.Sub(pl.normal.Mul(into))
				}
			}
		}
	}
}

// detect compares the current overlaps with the touching set of the
// previous step and queues found/lost events.
func (s *Scene) detect() {
	current := make(map[pairKey]bool)
	var contacts []native.ContactPair
	var triggers []native.TriggerPair

	for i := 0; i < len(s.actors); i++ {
		for j := i + 1; j < len(s.actors); j++ {
			a, b := s.actors[i], s.actors[j]
			if !s.reportable(a, b) {
				continue
			}
			for _, sa := range a.shapes {
				for _, sb := range b.shapes {
					flags := s.desc.Shader(sa.filter, sb.filter, sa.trigger, sb.trigger)
					if flags.Has(native.PairSuppress) {
						continue
					}
					point, normal, ok := overlap(a, sa, b, sb)
					if !ok {
						continue
					}
					key := keyOf(a, b)
					isTrigger := flags.Has(native.PairNotifyTrigger)
					if _, seen := current[key]; seen {
						continue
					}
					current[key] = isTrigger
					if _, was := s.pairs[key]; was {
						continue
					}
					switch {
					case isTrigger:
						trig, other := a, b
						if !sa.trigger {
							trig, other = b, a
						}
						triggers = append(triggers, native.TriggerPair{Trigger: trig, Other: other, Status: native.TriggerFound})
					case flags.Has(native.PairNotifyContact):
						contacts = append(contacts, native.ContactPair{
							Actor0: a,
							Actor1: b,
							Points: []native.ContactPoint{{Position: point, Normal: normal}},
						})
					}
				}
			}
		}
	}

	var lost []pairKey
	for key, isTrigger := range s.pairs {
		if _, still := current[key]; !still && isTrigger {
			lost = append(lost, key)
		}
	}
	sort.Slice(lost, func(i, j int) bool {
		if lost[i].a != lost[j].a {
			return lost[i].a < lost[j].a
		}
		return lost[i].b < lost[j].b
	})
	for _, key := range lost {
		a, b := s.actorByID(key.a), s.actorByID(key.b)
		if a == nil || b == nil {
			continue
		}
		trig, other := a, b
		if !hasTriggerShape(a) {
			trig, other = b, a
		}
		triggers = append(triggers, native.TriggerPair{Trigger: trig, Other: other, Status: native.TriggerLost})
	}
	s.pairs = current

	s.mu.Lock()
	s.pending = append(s.pending, contacts...)
	s.triggers = append(s.triggers, triggers...)
	s.mu.Unlock()
}

// reportable applies the kinematic pair reporting rules: pairs where neither
// side is simulated are only reported when the scene enables them.
func (s *Scene) reportable(a, b *Actor) bool {
	if a.simulated() || b.simulated() {
		return true
	}
	aKin, bKin := a.dynamic && a.kinematic, b.dynamic && b.kinematic
	switch {
	case aKin && bKin:
		return s.desc.ReportKinematicKinematic
	case aKin || bKin:
		return s.desc.ReportStaticKinematic
	}
	return false
}

func (s *Scene) actorByID(id uint64) *Actor {
	for _, a := range s.actors {
		if a.id == id {
			return a
		}
	}
	return nil
}

func hasTriggerShape(a *Actor) bool {
	for _, sh := range a.shapes {
		if sh.trigger {
			return true
		}
	}
	return false
}

// overlap tests two shapes. Planes are half-spaces along their local +Y.
func overlap(a *Actor, sa *Shape, b *Actor, sb *Shape) (point, normal mgl32.Vec3, ok bool) {
	if sa.geom.Type == native.GeometryPlane && sb.geom.Type == native.GeometryPlane {
		return point, normal, false
	}
	if sb.geom.Type == native.GeometryPlane {
		p, n, hit := overlap(b, sb, a, sa)
		return p, n.Mul(-1), hit
	}
	cb := sb.worldCenter(b.pose)
	rb := sb.geom.BoundingRadius()
	if sa.geom.Type == native.GeometryPlane {
		world := a.pose.Mul(sa.local)
		n := world.Rotation.Rotate(mgl32.Vec3{0, 1, 0})
		dist := n.Dot(cb.Sub(world.Position))
		if dist >= rb+contactSlop {
			return point, normal, false
		}
		return cb.Sub(n.Mul(dist)), n, true
	}

	ca := sa.worldCenter(a.pose)
	ra := sa.geom.BoundingRadius()
	d := cb.Sub(ca)
	dist := d.Len()
	if dist >= ra+rb+contactSlop {
		return point, normal, false
	}
	normal = mgl32.Vec3{0, 1, 0}
	if dist > 0 {
		normal = d.Mul(1 / dist)
	}
	return ca.Add(normal.Mul(ra - (ra+rb-dist)/2)), normal, true
}
