package scene

import (
	"sync"

	"github.com/go-gl/mathgl/mgl32"
)

// CommandKind distinguishes queued rigid body commands.
type CommandKind int

const (
	CmdApplyCentralForce CommandKind = iota + 1
	CmdApplyForce
	CmdApplyTorque
	CmdApplyCentralImpulse
	CmdApplyImpulse
	CmdApplyTorqueImpulse
	CmdSetAngularVelocity
	CmdSetLinearVelocity
	CmdSetMass
	CmdSetDensity
	CmdSetMassAndInertiaTensor
	CmdSetMassAndInertiaMatrix
	CmdSetKinematic
	CmdSetGravityEnabled
	CmdReset
)

var commandNames = map[CommandKind]string{
	CmdApplyCentralForce:       "apply_central_force",
	CmdApplyForce:              "apply_force",
	CmdApplyTorque:             "apply_torque",
	CmdApplyCentralImpulse:     "apply_central_impulse",
	CmdApplyImpulse:            "apply_impulse",
	CmdApplyTorqueImpulse:      "apply_torque_impulse",
	CmdSetAngularVelocity:      "set_angular_velocity",
	CmdSetLinearVelocity:       "set_linear_velocity",
	CmdSetMass:                 "set_mass",
	CmdSetDensity:              "set_density",
	CmdSetMassAndInertiaTensor: "set_mass_and_inertia_tensor",
	CmdSetMassAndInertiaMatrix: "set_mass_and_inertia_matrix",
	CmdSetKinematic:            "set_kinematic",
	CmdSetGravityEnabled:       "set_gravity_enabled",
	CmdReset:                   "reset",
}

func (k CommandKind) String() string {
	if s, ok := commandNames[k]; ok {
		return s
	}
	return "unknown"
}

// ParseCommandKind maps a command name back to a CommandKind.
func ParseCommandKind(s string) (CommandKind, bool) {
	for k, name := range commandNames {
		if name == s {
			return k, true
		}
	}
	return 0, false
}

// Command is one deferred mutation of a dynamic body.
//
// Only the fields relevant to Kind are meaningful:
//   - Vector: force, torque, impulse, velocity, inertia tensor
//   - Position: application point (ApplyForce, ApplyImpulse); reset position
//   - Rotation: reset rotation
//   - Scalar: mass or density
//   - Matrix: inertia matrix
//   - Flag: kinematic or gravity-enabled
type Command struct {
	Kind     CommandKind
	Vector   mgl32.Vec3
	Position mgl32.Vec3
	Rotation mgl32.Quat
	Scalar   float32
	Matrix   mgl32.Mat3
	Flag     bool
}

// CommandQueue is a FIFO of commands for one dynamic body.
//
// Commands are appended on the consuming goroutine between ticks and
// drained by the backend at the start of its sync. Enqueue is also safe from
// other goroutines; the drain happens only on the consuming goroutine.
type CommandQueue struct {
	mu       sync.Mutex
	commands []Command
}

// Enqueue appends c to the back of the queue.
func (q *CommandQueue) Enqueue(c Command) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.commands = append(q.commands, c)
}

// Drain removes and returns all queued commands in submission order.
func (q *CommandQueue) Drain() []Command {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.commands
	q.commands = nil
	return out
}

// Len returns the number of queued commands.
func (q *CommandQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.commands)
}

// Clear discards all queued commands.
func (q *CommandQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.commands = nil
}

// Convenience constructors used by the scene file loader and by callers.

func (d *DynamicBody) ApplyCentralForce(f mgl32.Vec3) {
	d.Commands.Enqueue(Command{Kind: CmdApplyCentralForce, Vector: f})
}

func (d *DynamicBody) ApplyForce(f, position mgl32.Vec3) {
	d.Commands.Enqueue(Command{Kind: CmdApplyForce, Vector: f, Position: position})
}

func (d *DynamicBody) ApplyTorque(t mgl32.Vec3) {
	d.Commands.Enqueue(Command{Kind: CmdApplyTorque, Vector: t})
}

func (d *DynamicBody) ApplyCentralImpulse(i mgl32.Vec3) {
	d.Commands.Enqueue(Command{Kind: CmdApplyCentralImpulse, Vector: i})
}

func (d *DynamicBody) ApplyImpulse(i, position mgl32.Vec3) {
	d.Commands.Enqueue(Command{Kind: CmdApplyImpulse, Vector: i, Position: position})
}

func (d *DynamicBody) ApplyTorqueImpulse(i mgl32.Vec3) {
	d.Commands.Enqueue(Command{Kind: CmdApplyTorqueImpulse, Vector: i})
}

func (d *DynamicBody) SetAngularVelocity(v mgl32.Vec3) {
	d.Commands.Enqueue(Command{Kind: CmdSetAngularVelocity, Vector: v})
}

func (d *DynamicBody) SetLinearVelocity(v mgl32.Vec3) {
	d.Commands.Enqueue(Command{Kind: CmdSetLinearVelocity, Vector: v})
}

func (d *DynamicBody) SetMass(mass float32) {
	d.Commands.Enqueue(Command{Kind: CmdSetMass, Scalar: mass})
}

func (d *DynamicBody) SetDensity(density float32) {
	d.Commands.Enqueue(Command{Kind: CmdSetDensity, Scalar: density})
}

func (d *DynamicBody) SetMassAndInertiaTensor(mass float32, tensor mgl32.Vec3) {
	d.Commands.Enqueue(Command{Kind: CmdSetMassAndInertiaTensor, Scalar: mass, Vector: tensor})
}

func (d *DynamicBody) SetMassAndInertiaMatrix(mass float32, m mgl32.Mat3) {
	d.Commands.Enqueue(Command{Kind: CmdSetMassAndInertiaMatrix, Scalar: mass, Matrix: m})
}

func (d *DynamicBody) SetKinematicCommand(kinematic bool) {
	d.Commands.Enqueue(Command{Kind: CmdSetKinematic, Flag: kinematic})
}

func (d *DynamicBody) SetGravityEnabledCommand(enabled bool) {
	d.Commands.Enqueue(Command{Kind: CmdSetGravityEnabled, Flag: enabled})
}

// Reset teleports the body to a scene-space pose and zeroes its velocities.
func (d *DynamicBody) Reset(position mgl32.Vec3, rotation mgl32.Quat) {
	d.Commands.Enqueue(Command{Kind: CmdReset, Position: position, Rotation: rotation})
}
