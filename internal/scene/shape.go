package scene

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/roach88/physync/internal/native"
	"github.com/roach88/physync/internal/xform"
)

// ShapeKind enumerates collision shape descriptors.
type ShapeKind int

const (
	ShapeBox ShapeKind = iota + 1
	ShapeSphere
	ShapeCapsule
	ShapePlane
	ShapeTriangleMesh
	ShapeConvexMesh
	ShapeHeightfield
)

var shapeKindNames = map[ShapeKind]string{
	ShapeBox:          "box",
	ShapeSphere:       "sphere",
	ShapeCapsule:      "capsule",
	ShapePlane:        "plane",
	ShapeTriangleMesh: "triangle_mesh",
	ShapeConvexMesh:   "convex_mesh",
	ShapeHeightfield:  "heightfield",
}

func (k ShapeKind) String() string {
	if s, ok := shapeKindNames[k]; ok {
		return s
	}
	return "unknown"
}

// ParseShapeKind maps a shape kind name back to a ShapeKind.
func ParseShapeKind(s string) (ShapeKind, bool) {
	for k, name := range shapeKindNames {
		if name == s {
			return k, true
		}
	}
	return 0, false
}

// StaticOnly reports whether the engine refuses this geometry on a
// simulated dynamic body. Such shapes force their body kinematic.
func (k ShapeKind) StaticOnly() bool {
	switch k {
	case ShapePlane, ShapeTriangleMesh, ShapeHeightfield:
		return true
	}
	return false
}

// Shape is a collision shape descriptor attached to a node.
//
// Geometry is derived lazily: Geometry caches the native descriptor until a
// parameter or the owning node's scale changes. Mesh-like kinds go through
// a Cooker and may be unavailable for a while; the rebuild retries them.
type Shape struct {
	kind ShapeKind

	extents  mgl32.Vec3 // box full extents; heightfield footprint
	diameter float32    // sphere, capsule
	height   float32    // capsule cylinder length
	source   string     // mesh, convex, heightfield

	position mgl32.Vec3
	rotation mgl32.Quat
	scale    mgl32.Vec3

	dirty     bool
	cached    native.Geometry
	cachedFor mgl32.Vec3
	hasCache  bool
}

func newShape(kind ShapeKind) *Shape {
	return &Shape{
		kind:     kind,
		rotation: mgl32.QuatIdent(),
		scale:    mgl32.Vec3{1, 1, 1},
		dirty:    true,
	}
}

// NewBox creates a box descriptor with full extents.
func NewBox(extents mgl32.Vec3) *Shape {
	s := newShape(ShapeBox)
	s.extents = extents
	return s
}

// NewSphere creates a sphere descriptor.
func NewSphere(diameter float32) *Shape {
	s := newShape(ShapeSphere)
	s.diameter = diameter
	return s
}

// NewCapsule creates a capsule descriptor. The capsule axis is local X;
// height is the length of the cylindrical part.
func NewCapsule(diameter, height float32) *Shape {
	s := newShape(ShapeCapsule)
	s.diameter = diameter
	s.height = height
	return s
}

// NewPlane creates an infinite plane descriptor.
func NewPlane() *Shape {
	return newShape(ShapePlane)
}

// NewTriangleMesh creates a triangle mesh descriptor cooked from source.
func NewTriangleMesh(source string) *Shape {
	s := newShape(ShapeTriangleMesh)
	s.source = source
	return s
}

// NewConvexMesh creates a convex mesh descriptor cooked from source.
func NewConvexMesh(source string) *Shape {
	s := newShape(ShapeConvexMesh)
	s.source = source
	return s
}

// NewHeightfield creates a heightfield descriptor with the given footprint.
func NewHeightfield(source string, extents mgl32.Vec3) *Shape {
	s := newShape(ShapeHeightfield)
	s.source = source
	s.extents = extents
	return s
}

func (s *Shape) Kind() ShapeKind      { return s.kind }
func (s *Shape) Extents() mgl32.Vec3  { return s.extents }
func (s *Shape) Diameter() float32    { return s.diameter }
func (s *Shape) Height() float32      { return s.height }
func (s *Shape) Source() string       { return s.source }
func (s *Shape) Position() mgl32.Vec3 { return s.position }
func (s *Shape) Rotation() mgl32.Quat { return s.rotation }
func (s *Shape) Scale() mgl32.Vec3    { return s.scale }

// Dirty reports whether a parameter or scale changed since the last rebuild.
func (s *Shape) Dirty() bool { return s.dirty }
func (s *Shape) ClearDirty() { s.dirty = false }

// SetPosition and SetRotation move the shape inside its body. They do not
// set the dirty flag; the rebuilder detects pose drift by comparison.
func (s *Shape) SetPosition(p mgl32.Vec3) { s.position = p }
func (s *Shape) SetRotation(q mgl32.Quat) { s.rotation = q.Normalize() }

func (s *Shape) SetExtents(e mgl32.Vec3) {
	if e == s.extents {
		return
	}
	s.extents = e
	s.invalidate()
}

func (s *Shape) SetDiameter(d float32) {
	if d == s.diameter {
		return
	}
	s.diameter = d
	s.invalidate()
}

func (s *Shape) SetHeight(h float32) {
	if h == s.height {
		return
	}
	s.height = h
	s.invalidate()
}

func (s *Shape) SetSource(src string) {
	if src == s.source {
		return
	}
	s.source = src
	s.invalidate()
}

// SetScale sets the shape's own scale, multiplied with the node scale.
func (s *Shape) SetScale(sc mgl32.Vec3) {
	if sc == s.scale {
		return
	}
	s.scale = sc
	s.invalidate()
}

func (s *Shape) invalidate() {
	s.dirty = true
	s.hasCache = false
}

// LocalPose returns the pose the native shape must have relative to its
// actor: the descriptor position scaled by the node scale, and its rotation.
func (s *Shape) LocalPose(nodeScale mgl32.Vec3) xform.Pose {
	return xform.NewPose(xform.CompMul(s.position, nodeScale), s.rotation)
}

// Geometry returns the native geometry for the shape at the given node scale.
// ok is false when the geometry is not available yet (cooking pending or
// failed) or the parameters are degenerate.
func (s *Shape) Geometry(nodeScale mgl32.Vec3, cooker native.Cooker) (native.Geometry, bool) {
	scale := xform.CompMul(nodeScale, s.scale)
	if s.hasCache && s.cachedFor == scale {
		return s.cached, true
	}

	var geom native.Geometry
	switch s.kind {
	case ShapeBox:
		half := xform.CompMul(s.extents, scale).Mul(0.5)
		geom = native.Geometry{Type: native.GeometryBox, HalfExtents: absVec(half)}
	case ShapeSphere:
		geom = native.Geometry{Type: native.GeometrySphere, Radius: mgl32.Abs(s.diameter * 0.5 * scale.X())}
	case ShapeCapsule:
		radial := scale.Y()
		if mgl32.Abs(scale.Z()) > mgl32.Abs(radial) {
			radial = scale.Z()
		}
		geom = native.Geometry{
			Type:       native.GeometryCapsule,
			Radius:     mgl32.Abs(s.diameter * 0.5 * radial),
			HalfHeight: mgl32.Abs(s.height * 0.5 * scale.X()),
		}
	case ShapePlane:
		geom = native.Geometry{Type: native.GeometryPlane}
	case ShapeTriangleMesh, ShapeConvexMesh, ShapeHeightfield:
		if cooker == nil {
			return native.Geometry{}, false
		}
		g, ok, err := cooker.Cook(native.CookRequest{
			Type:    s.geometryType(),
			Source:  s.source,
			Scale:   scale,
			Extents: s.extents,
		})
		if err != nil || !ok {
			return native.Geometry{}, false
		}
		geom = g
	default:
		return native.Geometry{}, false
	}

	s.cached = geom
	s.cachedFor = scale
	s.hasCache = true
	return geom, true
}

func (s *Shape) geometryType() native.GeometryType {
	switch s.kind {
	case ShapeTriangleMesh:
		return native.GeometryTriangleMesh
	case ShapeConvexMesh:
		return native.GeometryConvexMesh
	case ShapeHeightfield:
		return native.GeometryHeightfield
	}
	return 0
}

func absVec(v mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{mgl32.Abs(v[0]), mgl32.Abs(v[1]), mgl32.Abs(v[2])}
}
