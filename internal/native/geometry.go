package native

import (
	"github.com/go-gl/mathgl/mgl32"
)

// GeometryType enumerates the native shape geometries.
type GeometryType int

const (
	GeometryBox GeometryType = iota + 1
	GeometrySphere
	GeometryCapsule
	GeometryPlane
	GeometryTriangleMesh
	GeometryConvexMesh
	GeometryHeightfield
)

var geometryNames = map[GeometryType]string{
	GeometryBox:          "box",
	GeometrySphere:       "sphere",
	GeometryCapsule:      "capsule",
	GeometryPlane:        "plane",
	GeometryTriangleMesh: "triangle_mesh",
	GeometryConvexMesh:   "convex_mesh",
	GeometryHeightfield:  "heightfield",
}

func (g GeometryType) String() string {
	if s, ok := geometryNames[g]; ok {
		return s
	}
	return "unknown"
}

// Geometry is a geometry descriptor passed to Physics.CreateShape.
//
// Only the fields relevant to Type are meaningful. Mesh and heightfield
// geometries carry an opaque cooked handle produced by a Cooker.
type Geometry struct {
	Type GeometryType

	HalfExtents mgl32.Vec3 // box
	Radius      float32    // sphere, capsule
	HalfHeight  float32    // capsule

	Scale  mgl32.Vec3 // mesh, heightfield
	Cooked any        // mesh, heightfield
}

// BoundingRadius returns the radius of a sphere enclosing the geometry in
// shape-local space. Planes and cooked geometry without a known size return 0.
func (g Geometry) BoundingRadius() float32 {
	switch g.Type {
	case GeometryBox:
		return g.HalfExtents.Len()
	case GeometrySphere:
		return g.Radius
	case GeometryCapsule:
		return g.Radius + g.HalfHeight
	}
	return 0
}

// CookRequest asks a Cooker for mesh or heightfield geometry.
type CookRequest struct {
	Type   GeometryType
	Source string
	Scale  mgl32.Vec3
	// Extents is the heightfield footprint.
	Extents mgl32.Vec3
}

// Cooker is the geometry cooking/caching layer. Cook returns ok=false while
// the geometry is not available yet; the caller retries on a later rebuild.
type Cooker interface {
	Cook(req CookRequest) (geom Geometry, ok bool, err error)
}

// NoCooker never has mesh or heightfield geometry available.
type NoCooker struct{}

// Cook implements Cooker.
func (NoCooker) Cook(CookRequest) (Geometry, bool, error) {
	return Geometry{}, false, nil
}
