package fake

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/physync/internal/native"
	"github.com/roach88/physync/internal/xform"
)

type recordingCallback struct {
	contacts []native.ContactPair
	triggers []native.TriggerPair
}

func (r *recordingCallback) OnContact(p native.ContactPair)    { r.contacts = append(r.contacts, p) }
func (r *recordingCallback) OnTrigger(ps []native.TriggerPair) { r.triggers = append(r.triggers, ps...) }

func setupScene(t *testing.T, gravity mgl32.Vec3) (*Physics, *Scene, *recordingCallback) {
	t.Helper()
	p := New()
	cb := &recordingCallback{}
	ns, err := p.CreateScene(native.SceneDesc{Gravity: gravity, Callback: cb})
	require.NoError(t, err)
	return p, ns.(*Scene), cb
}

func addBody(t *testing.T, p *Physics, s *Scene, pos mgl32.Vec3, geom native.Geometry, dynamic bool) *Actor {
	t.Helper()
	pose := xform.NewPose(pos, mgl32.QuatIdent())
	var a native.Actor
	var err error
	if dynamic {
		a, err = p.CreateDynamic(pose)
	} else {
		a, err = p.CreateStatic(pose)
	}
	require.NoError(t, err)
	sh, err := p.CreateShape(geom, nil)
	require.NoError(t, err)
	a.AttachShape(sh)
	s.AddActor(a)
	return a.(*Actor)
}

func step(s *Scene, dt float32) {
	s.Simulate(dt)
	s.FetchResults(true)
}

func TestScene_GravityIntegration(t *testing.T) {
	p, s, _ := setupScene(t, mgl32.Vec3{0, -10, 0})
	box := addBody(t, p, s, mgl32.Vec3{0, 100, 0}, native.Geometry{Type: native.GeometryBox, HalfExtents: mgl32.Vec3{1, 1, 1}}, true)

	step(s, 0.5)

	// v = -5, x = 100 - 2.5
	assert.InDelta(t, -5, box.LinearVelocity().Y(), 1e-5)
	assert.InDelta(t, 97.5, box.GlobalPose().Position.Y(), 1e-4)
	assert.Equal(t, []float32{0.5}, s.Steps())
	assert.Equal(t, 0, p.Stats().Violations)
}

func TestScene_KinematicAndGravityDisabledBodiesDoNotFall(t *testing.T) {
	p, s, _ := setupScene(t, mgl32.Vec3{0, -10, 0})
	geom := native.Geometry{Type: native.GeometrySphere, Radius: 1}
	kin := addBody(t, p, s, mgl32.Vec3{0, 10, 0}, geom, true)
	kin.SetKinematic(true)
	floating := addBody(t, p, s, mgl32.Vec3{10, 10, 0}, geom, true)
	floating.SetGravityEnabled(false)

	step(s, 1)

	assert.Equal(t, float32(10), kin.GlobalPose().Position.Y())
	assert.Equal(t, float32(10), floating.GlobalPose().Position.Y())
}

func TestScene_BodyRestsOnPlane(t *testing.T) {
	p, s, cb := setupScene(t, mgl32.Vec3{0, -10, 0})
	addBody(t, p, s, mgl32.Vec3{}, native.Geometry{Type: native.GeometryPlane}, false)
	ball := addBody(t, p, s, mgl32.Vec3{0, 1.5, 0}, native.Geometry{Type: native.GeometrySphere, Radius: 1}, true)

	for i := 0; i < 10; i++ {
		step(s, 0.1)
	}

	assert.InDelta(t, 1, ball.GlobalPose().Position.Y(), 1e-4)
	require.Len(t, cb.contacts, 1, "contact is reported once when touching begins")
	assert.Equal(t, 0, p.Stats().Violations)
}

func TestScene_TriggerFoundAndLost(t *testing.T) {
	p, s, cb := setupScene(t, mgl32.Vec3{})
	zone := addBody(t, p, s, mgl32.Vec3{}, native.Geometry{Type: native.GeometryBox, HalfExtents: mgl32.Vec3{1, 1, 1}}, false)
	zone.shapes[0].SetTrigger(true)
	ball := addBody(t, p, s, mgl32.Vec3{0, 10, 0}, native.Geometry{Type: native.GeometrySphere, Radius: 1}, true)

	step(s, 0.1)
	assert.Empty(t, cb.triggers)

	ball.SetGlobalPose(xform.NewPose(mgl32.Vec3{}, mgl32.QuatIdent()))
	ball.SetGravityEnabled(false)
	step(s, 0.1)
	require.Len(t, cb.triggers, 1)
	assert.Equal(t, native.TriggerFound, cb.triggers[0].Status)
	assert.Same(t, zone, cb.triggers[0].Trigger)
	assert.Same(t, ball, cb.triggers[0].Other)
	assert.Empty(t, cb.contacts, "trigger pairs do not report contacts")

	ball.SetGlobalPose(xform.NewPose(mgl32.Vec3{0, 10, 0}, mgl32.QuatIdent()))
	step(s, 0.1)
	require.Len(t, cb.triggers, 2)
	assert.Equal(t, native.TriggerLost, cb.triggers[1].Status)
}

func TestScene_FilterSuppressesPair(t *testing.T) {
	p, s, cb := setupScene(t, mgl32.Vec3{})
	geom := native.Geometry{Type: native.GeometrySphere, Radius: 1}
	a := addBody(t, p, s, mgl32.Vec3{}, geom, true)
	b := addBody(t, p, s, mgl32.Vec3{0.5, 0, 0}, geom, true)
	a.shapes[0].SetFilterData(native.FilterData{ID: 1 << 0, Mask: 1 << 1})
	b.shapes[0].SetFilterData(native.FilterData{ID: 1 << 1})

	step(s, 0.1)
	assert.Empty(t, cb.contacts)
}

func TestScene_MutationDuringStepIsViolation(t *testing.T) {
	p, s, _ := setupScene(t, mgl32.Vec3{})
	ball := addBody(t, p, s, mgl32.Vec3{}, native.Geometry{Type: native.GeometrySphere, Radius: 1}, true)

	s.Simulate(0.1)
	ball.SetLinearVelocity(mgl32.Vec3{1, 0, 0})
	s.FetchResults(true)

	assert.Equal(t, 1, p.Stats().Violations)
	assert.Contains(t, p.LastViolation(), "during step")
}

func TestScene_InjectedContactDeliveredOnFetch(t *testing.T) {
	p, s, cb := setupScene(t, mgl32.Vec3{})
	geom := native.Geometry{Type: native.GeometrySphere, Radius: 1}
	a := addBody(t, p, s, mgl32.Vec3{}, geom, true)
	b := addBody(t, p, s, mgl32.Vec3{100, 0, 0}, geom, true)

	s.InjectContact(native.ContactPair{Actor0: a, Actor1: b})
	s.Simulate(0.1)
	assert.Empty(t, cb.contacts, "events wait for FetchResults")
	s.FetchResults(true)
	assert.Len(t, cb.contacts, 1)
}

func TestActor_Counters(t *testing.T) {
	p := New()
	a, err := p.CreateDynamic(xform.Identity())
	require.NoError(t, err)
	sh, err := p.CreateShape(native.Geometry{Type: native.GeometryBox, HalfExtents: mgl32.Vec3{1, 1, 1}}, nil)
	require.NoError(t, err)
	a.AttachShape(sh)
	a.AttachShape(sh)

	stats := p.Stats()
	assert.Equal(t, 1, stats.ShapesCreated)
	assert.Equal(t, 1, stats.Violations, "exclusive shape attached twice")

	a.DetachShape(sh)
	sh.Release()
	a.Release()
	stats = p.Stats()
	assert.Equal(t, 1, stats.ShapesReleased)
	assert.Equal(t, 1, stats.ActorsReleased)
}

func TestActor_MassFromDensity(t *testing.T) {
	p := New()
	a, err := p.CreateDynamic(xform.Identity())
	require.NoError(t, err)
	sh, err := p.CreateShape(native.Geometry{Type: native.GeometryBox, HalfExtents: mgl32.Vec3{50, 50, 50}}, nil)
	require.NoError(t, err)
	a.AttachShape(sh)

	a.UpdateMassAndInertia(0.001)
	assert.InDelta(t, 1000, a.Mass(), 1e-2)
}

func TestController_StopsOnGround(t *testing.T) {
	p, s, _ := setupScene(t, mgl32.Vec3{0, -10, 0})
	addBody(t, p, s, mgl32.Vec3{}, native.Geometry{Type: native.GeometryPlane}, false)

	nc, err := s.CreateController(native.ControllerDesc{Position: mgl32.Vec3{0, 5, 0}, Radius: 1, Height: 2})
	require.NoError(t, err)

	flags := nc.Move(mgl32.Vec3{0, -10, 0}, 0, 0.1, native.FilterData{})
	assert.Equal(t, native.CollisionDown, flags)
	assert.InDelta(t, 2, nc.Position().Y(), 1e-5)

	s.SetNextCollisionFlags(native.CollisionSides)
	assert.Equal(t, native.CollisionSides, nc.Move(mgl32.Vec3{}, 0, 0.1, native.FilterData{}))
}

func TestController_Refused(t *testing.T) {
	p, s, _ := setupScene(t, mgl32.Vec3{})
	p.RefuseControllers = true
	_, err := s.CreateController(native.ControllerDesc{Radius: 1, Height: 2})
	assert.ErrorIs(t, err, ErrControllerRefused)
}

func TestPhysics_FoundationTeardown(t *testing.T) {
	p := New()
	f := &native.Foundation{}
	_, err := f.Acquire(Factory(p))
	require.NoError(t, err)
	f.Release()
	assert.True(t, p.Released())
}
