package backend

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/roach88/physync/internal/native"
	"github.com/roach88/physync/internal/scene"
	"github.com/roach88/physync/internal/xform"
)

// controllerMinDistance is the minimum move distance passed to the native
// controller; shorter moves are skipped by the engine.
const controllerMinDistance = 0.001

func (a *Actor) initController(env *Env) error {
	node := a.node
	shapes := node.Shapes()
	if len(shapes) != 1 || shapes[0].Kind() != scene.ShapeCapsule {
		return newError(ErrCodeInvalidControllerShapes, a.name,
			"character controller needs exactly one capsule shape, has %d", len(shapes))
	}

	st := node.SceneTransform()
	geom, ok := shapes[0].Geometry(st.Scale, nil)
	if !ok {
		return newError(ErrCodeInvalidControllerShapes, a.name, "capsule geometry unavailable")
	}

	if err := a.acquireMaterial(env); err != nil {
		return err
	}

	body := node.Controller
	ctrl, err := env.Scene.CreateController(native.ControllerDesc{
		Position:      st.Position,
		Radius:        geom.Radius,
		Height:        geom.HalfHeight * 2,
		UpDirection:   upDirection(body.Gravity),
		StepOffset:    body.StepOffset,
		ContactOffset: body.ContactOffset,
		Material:      a.material,
		UserData:      node,
	})
	if err != nil || ctrl == nil {
		a.releaseMaterial()
		return &Error{
			Code:    ErrCodeControllerCreateFailed,
			Message: "native controller manager refused the controller",
			Node:    a.name,
			Err:     err,
		}
	}
	if actor := ctrl.Actor(); actor != nil {
		actor.SetUserData(node)
	}

	a.controller = ctrl
	a.freeFall = mgl32.Vec3{}
	a.grounded = false
	a.builtCount = 1
	a.builtScale = st.Scale
	shapes[0].ClearDirty()
	a.shapesDirty = false

	env.logger().Debug("character controller created", "node", a.name,
		"radius", geom.Radius, "height", geom.HalfHeight*2)
	return nil
}

// upDirection is opposite to gravity, or +Y without gravity.
func upDirection(gravity mgl32.Vec3) mgl32.Vec3 {
	if gravity.Len() == 0 {
		return mgl32.Vec3{0, 1, 0}
	}
	return gravity.Mul(-1).Normalize()
}

// rebuildController resizes the capsule instead of recreating it.
func (a *Actor) rebuildController(env *Env, cache *scene.TransformCache) {
	node := a.node
	shapes := node.Shapes()
	scale := cache.SceneTransform(node).Scale
	a.shapesDirty = false
	a.builtCount = len(shapes)
	a.builtScale = scale

	if len(shapes) != 1 || shapes[0].Kind() != scene.ShapeCapsule {
		env.logger().Warn("character controller shape change ignored: needs exactly one capsule",
			"node", a.name, "shapes", len(shapes))
		return
	}
	geom, ok := shapes[0].Geometry(scale, nil)
	if !ok {
		return
	}
	a.controller.SetRadius(geom.Radius)
	a.controller.Resize(geom.HalfHeight * 2)
	shapes[0].ClearDirty()
}

func (a *Actor) syncController(dt float32, cache *scene.TransformCache) {
	node := a.node
	body := node.Controller
	st := cache.SceneTransform(node)

	if pos, ok := body.TakeTeleport(); ok {
		a.controller.SetPosition(pos)
		a.freeFall = mgl32.Vec3{}
	} else {
		var displacement mgl32.Vec3
		if body.MidAirControl || a.grounded {
			displacement = st.Rotation.Rotate(body.Movement)
		}
		a.freeFall = a.freeFall.Add(body.Gravity.Mul(dt))
		displacement = displacement.Add(a.freeFall).Mul(dt)

		flags := a.controller.Move(displacement, controllerMinDistance, dt, a.filterData())
		body.Collisions = flags
		a.grounded = Grounded(body.Gravity, flags, a.freeFall)
		if a.grounded {
			a.freeFall = mgl32.Vec3{}
		}
	}

	node.SetScenePose(xform.NewPose(a.controller.Position(), st.Rotation), cache)
	cache.Invalidate(node)
}

// Grounded decides whether the controller stands on something given the
// collision flags of its last move.
//
// The rule is tuned for vertical gravity; with purely sideways gravity any
// side contact counts as ground, which cannot tell a wall from a floor.
func Grounded(gravity mgl32.Vec3, flags native.CollisionFlags, freeFall mgl32.Vec3) bool {
	up := flags&native.CollisionUp != 0
	down := flags&native.CollisionDown != 0
	sides := flags&native.CollisionSides != 0

	switch {
	case gravity.Y() < 0 && down:
		return true
	case gravity.Y() > 0 && up:
		return true
	case up && freeFall.Y() > 0:
		return true
	}
	sideways := mgl32.Vec2{gravity.X(), gravity.Z()}.Len()
	return mgl32.Abs(gravity.Y()) < xform.Epsilon && sideways > xform.Epsilon && sides
}
