// Package fake is a small recording implementation of the native engine
// interfaces.
//
// It integrates gravity and applied forces with explicit Euler steps, tests
// overlaps with bounding spheres (planes are half-spaces), stops dynamic
// bodies on planes and keeps controllers above them. It is enough to drive
// the orchestration layer end to end; it is not a physics engine.
//
// Every object counts the calls that the orchestration contract cares
// about (shape creation and release, actor lifetime) and flags any mutation
// made while a step is in flight as a violation.
package fake

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/roach88/physync/internal/native"
	"github.com/roach88/physync/internal/xform"
)

// ErrControllerRefused is returned by CreateController when the physics was
// configured to refuse controllers.
var ErrControllerRefused = errors.New("fake: controller creation refused")

// Stats is a snapshot of the call counters.
type Stats struct {
	ScenesCreated      int
	ActorsCreated      int
	ActorsReleased     int
	ShapesCreated      int
	ShapesReleased     int
	MaterialsCreated   int
	MaterialsReleased  int
	ControllersCreated int
	Steps              int
	Violations         int
}

// Physics implements native.Physics.
//
// Thread-safety: counters are guarded by mu so tests can read them from any
// goroutine. Object methods assume the native threading contract.
type Physics struct {
	// RefuseControllers makes every CreateController call fail.
	RefuseControllers bool

	mu       sync.Mutex
	stats    Stats
	scenes   []*Scene
	released bool
	nextID   uint64

	stepping   atomic.Int32
	violations atomic.Int64
	lastFault  atomic.Value
}

// New returns an empty fake physics.
func New() *Physics {
	return &Physics{}
}

// Factory returns a native.Factory that always hands out p.
func Factory(p *Physics) native.Factory {
	return func() (native.Physics, error) { return p, nil }
}

// Stats returns a snapshot of the counters.
func (p *Physics) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stats
	s.Violations = int(p.violations.Load())
	return s
}

// Scenes returns the scenes created so far.
func (p *Physics) Scenes() []*Scene {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Scene(nil), p.scenes...)
}

// Released reports whether the foundation tore the physics down.
func (p *Physics) Released() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.released
}

// Release is called by native.Foundation on the last reference.
func (p *Physics) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.released = true
}

// LastViolation returns a description of the most recent contract violation.
func (p *Physics) LastViolation() string {
	if v, ok := p.lastFault.Load().(string); ok {
		return v
	}
	return ""
}

func (p *Physics) count(fn func(s *Stats)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(&p.stats)
}

func (p *Physics) id() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	return p.nextID
}

// guard records a violation if a step is in flight.
func (p *Physics) guard(op string) {
	if p.stepping.Load() > 0 {
		p.violations.Add(1)
		p.lastFault.Store(fmt.Sprintf("%s during step", op))
	}
}

func (p *Physics) violate(msg string) {
	p.violations.Add(1)
	p.lastFault.Store(msg)
}

// CreateScene implements native.Physics.
func (p *Physics) CreateScene(desc native.SceneDesc) (native.Scene, error) {
	p.guard("create scene")
	s := &Scene{physics: p, desc: desc, gravity: desc.Gravity, pairs: make(map[pairKey]bool)}
	if s.desc.Shader == nil {
		s.desc.Shader = native.DefaultFilterShader
	}
	s.callback = desc.Callback
	p.mu.Lock()
	p.scenes = append(p.scenes, s)
	p.stats.ScenesCreated++
	p.mu.Unlock()
	return s, nil
}

// CreateMaterial implements native.Physics.
func (p *Physics) CreateMaterial(staticFriction, dynamicFriction, restitution float32) (native.Material, error) {
	p.guard("create material")
	p.count(func(s *Stats) { s.MaterialsCreated++ })
	return &Material{
		physics:         p,
		StaticFriction:  staticFriction,
		DynamicFriction: dynamicFriction,
		Restitution:     restitution,
	}, nil
}

// CreateShape implements native.Physics.
func (p *Physics) CreateShape(geom native.Geometry, material native.Material) (native.Shape, error) {
	p.guard("create shape")
	if geom.Type == 0 {
		return nil, fmt.Errorf("fake: create shape: no geometry type")
	}
	p.count(func(s *Stats) { s.ShapesCreated++ })
	m, _ := material.(*Material)
	return &Shape{physics: p, geom: geom, material: m, local: xform.Identity()}, nil
}

// CreateStatic implements native.Physics.
func (p *Physics) CreateStatic(pose xform.Pose) (native.Actor, error) {
	p.guard("create static")
	p.count(func(s *Stats) { s.ActorsCreated++ })
	return newActor(p, pose, false), nil
}

// CreateDynamic implements native.Physics.
func (p *Physics) CreateDynamic(pose xform.Pose) (native.RigidDynamic, error) {
	p.guard("create dynamic")
	p.count(func(s *Stats) { s.ActorsCreated++ })
	return newActor(p, pose, true), nil
}

// Material implements native.Material.
type Material struct {
	physics         *Physics
	StaticFriction  float32
	DynamicFriction float32
	Restitution     float32
	released        bool
}

// Release implements native.Material.
func (m *Material) Release() {
	m.physics.guard("release material")
	if m.released {
		m.physics.violate("material released twice")
		return
	}
	m.released = true
	m.physics.count(func(s *Stats) { s.MaterialsReleased++ })
}

// Released reports whether the material was released.
func (m *Material) Released() bool { return m.released }
