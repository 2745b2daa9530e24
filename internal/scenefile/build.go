package scenefile

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/roach88/physync/internal/config"
	"github.com/roach88/physync/internal/scene"
	"github.com/roach88/physync/internal/xform"
)

// Scene is a built scene file: a root group node holding the file's nodes
// plus the world configuration it asks for.
type Scene struct {
	Name   string
	Root   *scene.Node
	Config config.World

	byName map[string]*scene.Node
	order  []*scene.Node
}

// Node looks up a built node by its file name.
func (s *Scene) Node(name string) (*scene.Node, bool) {
	n, ok := s.byName[scene.NormalizeName(name)]
	return n, ok
}

// Nodes returns every built node in file order (depth first), root excluded.
func (s *Scene) Nodes() []*scene.Node {
	out := make([]*scene.Node, len(s.order))
	copy(out, s.order)
	return out
}

// BuildOption configures Build.
type BuildOption func(*builder)

// WithIDs sets the generator for nodes without an explicit id. Defaults to
// scene.DefaultIDs.
func WithIDs(ids scene.IDGenerator) BuildOption {
	return func(b *builder) {
		b.ids = ids
	}
}

type builder struct {
	ids   scene.IDGenerator
	scene *Scene
}

// Build turns a parsed file into scene nodes. World settings absent from the
// file keep config.Default values; they are not clamped here.
func Build(f *File, opts ...BuildOption) (*Scene, error) {
	b := &builder{ids: scene.DefaultIDs}
	for _, opt := range opts {
		opt(b)
	}

	s := &Scene{
		Name:   f.Name,
		Config: config.Default(),
		byName: make(map[string]*scene.Node),
	}
	if f.World != nil {
		f.World.apply(&s.Config)
	}
	b.scene = s

	s.Root = scene.NewNodeWithID(scene.KindGroup, f.Name, b.ids.Generate())
	for i := range f.Nodes {
		child, err := b.node(&f.Nodes[i], fmt.Sprintf("nodes.%d", i))
		if err != nil {
			return nil, err
		}
		s.Root.AddChild(child)
	}
	return s, nil
}

func (w *WorldDoc) apply(cfg *config.World) {
	if w.Gravity != nil {
		cfg.Gravity = *w.Gravity
	}
	if w.Running != nil {
		cfg.Running = *w.Running
	}
	if w.ForceDebugDraw != nil {
		cfg.ForceDebugDraw = *w.ForceDebugDraw
	}
	if w.EnableCCD != nil {
		cfg.EnableCCD = *w.EnableCCD
	}
	if w.TypicalLength != nil {
		cfg.TypicalLength = *w.TypicalLength
	}
	if w.TypicalSpeed != nil {
		cfg.TypicalSpeed = *w.TypicalSpeed
	}
	if w.DefaultDensity != nil {
		cfg.DefaultDensity = *w.DefaultDensity
	}
	if w.MinTimestep != nil {
		cfg.MinTimestep = *w.MinTimestep
	}
	if w.MaxTimestep != nil {
		cfg.MaxTimestep = *w.MaxTimestep
	}
	if w.NumThreads != nil {
		cfg.NumThreads = *w.NumThreads
	}
	if w.ReportKinematicKinematic != nil {
		cfg.ReportKinematicKinematic = *w.ReportKinematicKinematic
	}
	if w.ReportStaticKinematic != nil {
		cfg.ReportStaticKinematic = *w.ReportStaticKinematic
	}
}

func (b *builder) node(d *NodeDoc, path string) (*scene.Node, error) {
	kind, ok := scene.ParseKind(d.Kind)
	if !ok {
		return nil, &Error{Field: path + ".kind", Message: fmt.Sprintf("unknown node kind %q", d.Kind)}
	}
	if d.Dynamic != nil && kind != scene.KindDynamic {
		return nil, &Error{Field: path + ".dynamic", Message: fmt.Sprintf("dynamic block on %s node", kind)}
	}
	if d.Controller != nil && kind != scene.KindController {
		return nil, &Error{Field: path + ".controller", Message: fmt.Sprintf("controller block on %s node", kind)}
	}

	id := d.ID
	if id == "" {
		id = b.ids.Generate()
	}
	n := scene.NewNodeWithID(kind, d.Name, id)

	if d.Position != nil {
		n.SetPosition(*d.Position)
	}
	if d.Rotation != nil {
		n.SetRotation(Euler(*d.Rotation))
	}
	if d.Scale != nil {
		n.SetScale(*d.Scale)
	}
	if d.Enabled != nil {
		n.SetEnabled(*d.Enabled)
	}
	n.DebugDraw = d.DebugDraw
	n.SetFilterGroup(d.FilterGroup)

	var mask uint32
	for _, g := range d.IgnoredGroups {
		mask |= 1 << (g % 32)
	}
	n.SetIgnoredGroups(mask)

	n.Reports = scene.ReportFlags{
		SendsContactReports:    d.Reports.SendsContacts,
		ReceivesContactReports: d.Reports.ReceivesContacts,
		SendsTriggerReports:    d.Reports.SendsTriggers,
		ReceivesTriggerReports: d.Reports.ReceivesTriggers,
	}
	if d.Material != nil {
		n.SetMaterial(&scene.Material{
			StaticFriction:  d.Material.StaticFriction,
			DynamicFriction: d.Material.DynamicFriction,
			Restitution:     d.Material.Restitution,
		})
	}

	for i := range d.Shapes {
		s, err := shape(&d.Shapes[i], fmt.Sprintf("%s.shapes.%d", path, i))
		if err != nil {
			return nil, err
		}
		n.AddShape(s)
	}

	if d.Dynamic != nil {
		if err := d.Dynamic.apply(n.Dynamic, path+".dynamic"); err != nil {
			return nil, err
		}
	}
	if d.Controller != nil {
		d.Controller.apply(n.Controller)
	}

	b.scene.byName[n.Name()] = n
	b.scene.order = append(b.scene.order, n)

	for i := range d.Children {
		child, err := b.node(&d.Children[i], fmt.Sprintf("%s.children.%d", path, i))
		if err != nil {
			return nil, err
		}
		n.AddChild(child)
	}
	return n, nil
}

func shape(d *ShapeDoc, path string) (*scene.Shape, error) {
	kind, ok := scene.ParseShapeKind(d.Kind)
	if !ok {
		return nil, &Error{Field: path + ".kind", Message: fmt.Sprintf("unknown shape kind %q", d.Kind)}
	}

	var extents mgl32.Vec3
	if d.Extents != nil {
		extents = *d.Extents
	}

	var s *scene.Shape
	switch kind {
	case scene.ShapeBox:
		s = scene.NewBox(extents)
	case scene.ShapeSphere:
		s = scene.NewSphere(d.Diameter)
	case scene.ShapeCapsule:
		s = scene.NewCapsule(d.Diameter, d.Height)
	case scene.ShapePlane:
		s = scene.NewPlane()
	case scene.ShapeTriangleMesh:
		s = scene.NewTriangleMesh(d.Source)
	case scene.ShapeConvexMesh:
		s = scene.NewConvexMesh(d.Source)
	case scene.ShapeHeightfield:
		s = scene.NewHeightfield(d.Source, extents)
	}

	if d.Position != nil {
		s.SetPosition(*d.Position)
	}
	if d.Rotation != nil {
		s.SetRotation(Euler(*d.Rotation))
	}
	if d.Scale != nil {
		s.SetScale(*d.Scale)
	}
	return s, nil
}

var lockNames = map[string]func(*scene.AxisLocks){
	"linear_x":  func(l *scene.AxisLocks) { l.LinearX = true },
	"linear_y":  func(l *scene.AxisLocks) { l.LinearY = true },
	"linear_z":  func(l *scene.AxisLocks) { l.LinearZ = true },
	"angular_x": func(l *scene.AxisLocks) { l.AngularX = true },
	"angular_y": func(l *scene.AxisLocks) { l.AngularY = true },
	"angular_z": func(l *scene.AxisLocks) { l.AngularZ = true },
}

func (d *DynamicDoc) apply(body *scene.DynamicBody, path string) error {
	body.Kinematic = d.Kinematic
	if d.GravityEnabled != nil {
		body.GravityEnabled = *d.GravityEnabled
	}
	for _, name := range d.Locks {
		set, ok := lockNames[name]
		if !ok {
			return &Error{Field: path + ".locks", Message: fmt.Sprintf("unknown lock %q", name)}
		}
		set(&body.Locks)
	}

	if d.MassMode != "" {
		mode, ok := scene.ParseMassMode(d.MassMode)
		if !ok {
			return &Error{Field: path + ".mass_mode", Message: fmt.Sprintf("unknown mass mode %q", d.MassMode)}
		}
		body.MassMode = mode
	}
	if d.Mass != nil {
		body.Mass = *d.Mass
	}
	if d.Density != nil {
		body.Density = *d.Density
	}
	if d.CenterOfMass != nil {
		body.CenterOfMass = xform.NewPose(*d.CenterOfMass, mgl32.QuatIdent())
	}
	if d.InertiaTensor != nil {
		body.InertiaTensor = *d.InertiaTensor
	}
	if d.InertiaMatrix != nil {
		rows := *d.InertiaMatrix
		body.InertiaMatrix = mgl32.Mat3FromRows(rows[0], rows[1], rows[2])
	}
	return nil
}

func (d *ControllerDoc) apply(c *scene.ControllerBody) {
	if d.Movement != nil {
		c.Movement = *d.Movement
	}
	if d.Gravity != nil {
		c.Gravity = *d.Gravity
	}
	if d.MidAirControl != nil {
		c.MidAirControl = *d.MidAirControl
	}
	if d.StepOffset != nil {
		c.StepOffset = *d.StepOffset
	}
	if d.ContactOffset != nil {
		c.ContactOffset = *d.ContactOffset
	}
}

// Euler converts XYZ Euler angles in degrees to a rotation.
func Euler(deg mgl32.Vec3) mgl32.Quat {
	return mgl32.AnglesToQuat(
		mgl32.DegToRad(deg[0]),
		mgl32.DegToRad(deg[1]),
		mgl32.DegToRad(deg[2]),
		mgl32.XYZ,
	)
}
