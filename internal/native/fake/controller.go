package fake

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/roach88/physync/internal/native"
	"github.com/roach88/physync/internal/xform"
)

// Controller implements native.Controller as a capsule that slides freely
// and stops on planes.
type Controller struct {
	scene    *Scene
	actor    *Actor
	desc     native.ControllerDesc
	position mgl32.Vec3
	released bool

	moves []mgl32.Vec3
}

// Desc returns the descriptor the controller was created with, with the
// current radius and height applied.
func (c *Controller) Desc() native.ControllerDesc { return c.desc }

// Moves returns every displacement passed to Move.
func (c *Controller) Moves() []mgl32.Vec3 {
	return append([]mgl32.Vec3(nil), c.moves...)
}

// Released reports whether the controller was released.
func (c *Controller) Released() bool { return c.released }

// Move displaces the capsule center by disp. The capsule bottom is kept on
// the positive side of every plane it collides with.
func (c *Controller) Move(disp mgl32.Vec3, minDist, dt float32, filter native.FilterData) native.CollisionFlags {
	c.scene.physics.guard("move controller")
	c.moves = append(c.moves, disp)
	c.position = c.position.Add(disp)

	flags, forced := c.scene.takeCollisionFlags()
	if !forced {
		flags = c.resolvePlanes(filter)
	}
	c.actor.pose = xform.NewPose(c.position, mgl32.QuatIdent())
	return flags
}

func (c *Controller) resolvePlanes(filter native.FilterData) native.CollisionFlags {
	var flags native.CollisionFlags
	up := c.desc.UpDirection
	if up.Len() == 0 {
		up = mgl32.Vec3{0, 1, 0}
	}
	// The capsule is treated as upright: it reaches extent along any normal.
	extent := c.desc.Height/2 + c.desc.Radius
	for _, pl := range c.scene.planes() {
		if c.scene.desc.Shader(filter, pl.shape.filter, false, false).Has(native.PairSuppress) {
			continue
		}
		dist := pl.normal.Dot(c.position.Sub(pl.point))
		if depth := extent - dist; depth > -contactSlop {
			if depth > 0 {
				c.position = c.position.Add(pl.normal.Mul(depth))
			}
			switch facing := pl.normal.Dot(up); {
			case facing > 0.5:
				flags |= native.CollisionDown
			case facing < -0.5:
				flags |= native.CollisionUp
			default:
				flags |= native.CollisionSides
			}
		}
	}
	return flags
}

func (c *Controller) Position() mgl32.Vec3 { return c.position }

func (c *Controller) SetPosition(p mgl32.Vec3) {
	c.scene.physics.guard("set controller position")
	c.position = p
	c.actor.pose = xform.NewPose(p, mgl32.QuatIdent())
}

func (c *Controller) Resize(height float32) {
	c.scene.physics.guard("resize controller")
	c.desc.Height = height
}

func (c *Controller) SetRadius(radius float32) {
	c.scene.physics.guard("set controller radius")
	c.desc.Radius = radius
}

func (c *Controller) Actor() native.RigidDynamic { return c.actor }

func (c *Controller) Release() {
	c.scene.physics.guard("release controller")
	if c.released {
		c.scene.physics.violate("controller released twice")
		return
	}
	c.released = true
	c.scene.RemoveActor(c.actor)
	for i, cur := range c.scene.controllers {
		if cur == c {
			c.scene.controllers = append(c.scene.controllers[:i], c.scene.controllers[i+1:]...)
			break
		}
	}
}
