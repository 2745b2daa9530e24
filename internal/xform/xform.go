// Package xform holds the rigid-transform helpers shared by the scene graph
// and the native engine boundary.
//
// Poses are position + unit quaternion. Transforms add a per-axis scale and
// are only meaningful on the scene side; the native engine never sees scale
// except baked into shape geometry.
package xform

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Epsilon is the tolerance used when comparing poses derived from the scene
// against poses cached on native objects.
const Epsilon float32 = 1e-5

// Pose is a rigid transform without scale.
type Pose struct {
	Position mgl32.Vec3
	Rotation mgl32.Quat
}

// Identity returns the identity pose.
func Identity() Pose {
	return Pose{Rotation: mgl32.QuatIdent()}
}

// NewPose builds a pose, normalising the rotation.
func NewPose(position mgl32.Vec3, rotation mgl32.Quat) Pose {
	return Pose{Position: position, Rotation: normalize(rotation)}
}

// Mul composes p then q: the result maps q-local points through q and then p.
func (p Pose) Mul(q Pose) Pose {
	return Pose{
		Position: p.Position.Add(p.Rotation.Rotate(q.Position)),
		Rotation: normalize(p.Rotation.Mul(q.Rotation)),
	}
}

// Inverse returns the pose that undoes p.
func (p Pose) Inverse() Pose {
	inv := p.Rotation.Inverse()
	return Pose{
		Position: inv.Rotate(p.Position.Mul(-1)),
		Rotation: inv,
	}
}

// Apply transforms a point from pose-local space to the parent space.
func (p Pose) Apply(v mgl32.Vec3) mgl32.Vec3 {
	return p.Position.Add(p.Rotation.Rotate(v))
}

// ApproxEqual compares two poses component-wise within eps. A quaternion and
// its negation describe the same rotation and compare equal.
func (p Pose) ApproxEqual(q Pose, eps float32) bool {
	if !VecApproxEqual(p.Position, q.Position, eps) {
		return false
	}
	return QuatApproxEqual(p.Rotation, q.Rotation, eps)
}

// QuatApproxEqual reports whether a and b are the same rotation within eps.
func QuatApproxEqual(a, b mgl32.Quat, eps float32) bool {
	if within(a.W, b.W, eps) && VecApproxEqual(a.V, b.V, eps) {
		return true
	}
	return within(a.W, -b.W, eps) && VecApproxEqual(a.V, b.V.Mul(-1), eps)
}

// VecApproxEqual reports whether every component of a and b differs by at
// most eps. The tolerance is absolute, also near zero.
func VecApproxEqual(a, b mgl32.Vec3, eps float32) bool {
	return a.ApproxFuncEqual(b, func(x, y float32) bool { return within(x, y, eps) })
}

// MatApproxEqual is VecApproxEqual for 3x3 matrices.
func MatApproxEqual(a, b mgl32.Mat3, eps float32) bool {
	return a.ApproxFuncEqual(b, func(x, y float32) bool { return within(x, y, eps) })
}

func within(a, b, eps float32) bool {
	return mgl32.Abs(a-b) <= eps
}

// Transform is a scene-side transform: translation, rotation and per-axis scale.
type Transform struct {
	Position mgl32.Vec3
	Rotation mgl32.Quat
	Scale    mgl32.Vec3
}

// IdentityTransform returns a transform with unit scale.
func IdentityTransform() Transform {
	return Transform{Rotation: mgl32.QuatIdent(), Scale: mgl32.Vec3{1, 1, 1}}
}

// Pose strips the scale.
func (t Transform) Pose() Pose {
	return Pose{Position: t.Position, Rotation: t.Rotation}
}

// Compose returns the scene transform of a child whose local transform is
// local, given t as the parent's scene transform. Scale is propagated per
// axis; shear from non-uniform scale under rotation is not modelled.
func (t Transform) Compose(local Transform) Transform {
	return Transform{
		Position: t.Position.Add(t.Rotation.Rotate(CompMul(t.Scale, local.Position))),
		Rotation: normalize(t.Rotation.Mul(local.Rotation)),
		Scale:    CompMul(t.Scale, local.Scale),
	}
}

// LocalFrom maps a scene-space pose into the local space of a node whose
// parent has scene transform t.
func (t Transform) LocalFrom(scene Pose) (mgl32.Vec3, mgl32.Quat) {
	inv := t.Rotation.Inverse()
	pos := CompDiv(inv.Rotate(scene.Position.Sub(t.Position)), t.Scale)
	return pos, normalize(inv.Mul(scene.Rotation))
}

// CompMul multiplies two vectors component-wise.
func CompMul(a, b mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{a[0] * b[0], a[1] * b[1], a[2] * b[2]}
}

// CompDiv divides a by b component-wise. Zero components of b leave the
// corresponding component of a unchanged.
func CompDiv(a, b mgl32.Vec3) mgl32.Vec3 {
	out := a
	for i := 0; i < 3; i++ {
		if b[i] != 0 {
			out[i] = a[i] / b[i]
		}
	}
	return out
}

// MaxComponent returns the largest absolute component of v.
func MaxComponent(v mgl32.Vec3) float32 {
	m := mgl32.Abs(v[0])
	if a := mgl32.Abs(v[1]); a > m {
		m = a
	}
	if a := mgl32.Abs(v[2]); a > m {
		m = a
	}
	return m
}

func normalize(q mgl32.Quat) mgl32.Quat {
	if q.Len() == 0 {
		return mgl32.QuatIdent()
	}
	return q.Normalize()
}
