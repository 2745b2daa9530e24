package backend

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/roach88/physync/internal/native"
	"github.com/roach88/physync/internal/scene"
	"github.com/roach88/physync/internal/xform"
)

// executeCommands drains the node's command queue and applies every command
// in submission order. Commands whose preconditions fail are logged and
// consumed; they are never retried.
func (a *Actor) executeCommands(env *Env) {
	body := a.node.Dynamic
	for _, cmd := range body.Commands.Drain() {
		if err := a.execute(env, body, cmd); err != nil {
			env.logger().Warn("command ignored", "node", a.name, "command", cmd.Kind.String(), "error", err)
		}
		if env != nil && env.OnCommand != nil {
			env.OnCommand(a.node, cmd)
		}
	}
}

func (a *Actor) execute(env *Env, body *scene.DynamicBody, cmd scene.Command) error {
	d := a.dynamic
	staticOnly := a.node.HasStaticOnlyShapes()

	switch cmd.Kind {
	case scene.CmdApplyCentralForce:
		d.AddForce(cmd.Vector, native.ModeForce)
	case scene.CmdApplyForce:
		d.AddForceAtPosition(cmd.Vector, cmd.Position, native.ModeForce)
	case scene.CmdApplyTorque:
		d.AddTorque(cmd.Vector, native.ModeForce)
	case scene.CmdApplyCentralImpulse:
		d.AddForce(cmd.Vector, native.ModeImpulse)
	case scene.CmdApplyImpulse:
		d.AddForceAtPosition(cmd.Vector, cmd.Position, native.ModeImpulse)
	case scene.CmdApplyTorqueImpulse:
		d.AddTorque(cmd.Vector, native.ModeImpulse)
	case scene.CmdSetAngularVelocity:
		d.SetAngularVelocity(cmd.Vector)
	case scene.CmdSetLinearVelocity:
		d.SetLinearVelocity(cmd.Vector)

	case scene.CmdSetMass:
		if staticOnly {
			return a.staticOnlyError("mass")
		}
		body.MassMode, body.Mass = scene.MassExplicit, cmd.Scalar
		d.SetMassAndUpdateInertia(cmd.Scalar)

	case scene.CmdSetDensity:
		if staticOnly {
			return a.staticOnlyError("density")
		}
		density := cmd.Scalar
		if density <= 0 {
			body.MassMode = scene.MassDefaultDensity
			density = env.DefaultDensity
		} else {
			body.MassMode, body.Density = scene.MassCustomDensity, density
		}
		d.UpdateMassAndInertia(density)

	case scene.CmdSetMassAndInertiaTensor:
		if staticOnly {
			return a.staticOnlyError("mass and inertia tensor")
		}
		body.MassMode, body.Mass, body.InertiaTensor = scene.MassAndInertiaTensor, cmd.Scalar, cmd.Vector
		d.SetMass(cmd.Scalar)
		d.SetMassSpaceInertiaTensor(cmd.Vector)
		d.SetCenterOfMassLocalPose(body.CenterOfMass)

	case scene.CmdSetMassAndInertiaMatrix:
		if staticOnly {
			return a.staticOnlyError("mass and inertia matrix")
		}
		body.MassMode, body.Mass, body.InertiaMatrix = scene.MassAndInertiaMatrix, cmd.Scalar, cmd.Matrix
		tensor, frame := Diagonalize(cmd.Matrix)
		d.SetMass(cmd.Scalar)
		d.SetMassSpaceInertiaTensor(tensor)
		d.SetCenterOfMassLocalPose(xform.NewPose(body.CenterOfMass.Position, body.CenterOfMass.Rotation.Mul(frame)))

	case scene.CmdSetKinematic:
		kinematic := cmd.Flag
		var err error
		if !kinematic && staticOnly {
			kinematic = true
			err = a.staticOnlyError("non-kinematic")
		}
		body.Kinematic = kinematic
		d.SetKinematic(kinematic)
		return err

	case scene.CmdSetGravityEnabled:
		body.GravityEnabled = cmd.Flag
		d.SetGravityEnabled(cmd.Flag)

	case scene.CmdReset:
		d.SetGlobalPose(xform.NewPose(cmd.Position, cmd.Rotation))
		d.SetLinearVelocity(mgl32.Vec3{})
		d.SetAngularVelocity(mgl32.Vec3{})

	default:
		return newError(ErrCodeNativeFailure, a.name, "unknown command kind %d", cmd.Kind)
	}
	return nil
}

func (a *Actor) staticOnlyError(what string) error {
	return newError(ErrCodeStaticOnlyShapes, a.name,
		"cannot set %s on a body with plane, triangle mesh or heightfield shapes", what)
}
