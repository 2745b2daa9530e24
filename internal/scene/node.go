package scene

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/roach88/physync/internal/xform"
)

// Kind selects the backend variant built for a node.
type Kind int

const (
	// KindGroup is a plain transform node; it never gets a backend actor.
	KindGroup Kind = iota
	KindStatic
	KindDynamic
	KindTrigger
	KindController
)

var kindNames = map[Kind]string{
	KindGroup:      "group",
	KindStatic:     "static",
	KindDynamic:    "dynamic",
	KindTrigger:    "trigger",
	KindController: "controller",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// ParseKind maps a kind name back to a Kind.
func ParseKind(s string) (Kind, bool) {
	for k, name := range kindNames {
		if name == s {
			return k, true
		}
	}
	return KindGroup, false
}

// IsPhysics reports whether nodes of this kind are simulated.
func (k Kind) IsPhysics() bool {
	return k != KindGroup
}

// ActorHandle is the non-owning reference from a node to its backend actor.
// The zero value means unbound.
type ActorHandle uint64

// ReportFlags select which contact/trigger reports a node takes part in.
type ReportFlags struct {
	SendsContactReports    bool
	ReceivesContactReports bool
	SendsTriggerReports    bool
	ReceivesTriggerReports bool
}

// Node is a frontend scene node owned by the declarative layer.
//
// A node is mutated only on the consuming goroutine. Its binding to a
// backend actor is set and cleared by the world; the node never creates or
// destroys actors itself.
type Node struct {
	id   string
	name string
	kind Kind

	parent   *Node
	children []*Node

	local   xform.Transform
	enabled bool

	shapes   []*Shape
	material *Material

	Reports     ReportFlags
	filterGroup uint8
	ignoreMask  uint32

	// DebugDraw requests debug geometry for this node's shapes even when the
	// world does not force debug drawing.
	DebugDraw bool

	// Kind-specific blocks; exactly the one matching kind is non-nil.
	Dynamic    *DynamicBody
	Controller *ControllerBody
	Trigger    *TriggerBody

	OnBodyContact func(ContactEvent)
	OnBodyEntered func(other *Node)
	OnBodyExited  func(other *Node)

	actor ActorHandle

	shapesChanged  bool
	filtersChanged bool
}

// NewNode creates a node with a generated id.
func NewNode(kind Kind, name string) *Node {
	return NewNodeWithID(kind, name, DefaultIDs.Generate())
}

// NewNodeWithID creates a node with an explicit id.
func NewNodeWithID(kind Kind, name, id string) *Node {
	n := &Node{
		id:      id,
		name:    NormalizeName(name),
		kind:    kind,
		local:   xform.IdentityTransform(),
		enabled: true,
	}
	switch kind {
	case KindDynamic:
		n.Dynamic = newDynamicBody()
	case KindController:
		n.Controller = newControllerBody()
	case KindTrigger:
		n.Trigger = newTriggerBody()
	}
	return n
}

func (n *Node) ID() string   { return n.id }
func (n *Node) Name() string { return n.name }
func (n *Node) Kind() Kind   { return n.kind }

func (n *Node) String() string {
	if n == nil {
		return "<nil>"
	}
	if n.name != "" {
		return n.name
	}
	return n.id
}

// Parent returns the parent node or nil for a root.
func (n *Node) Parent() *Node { return n.parent }

// Children returns the child nodes in insertion order.
func (n *Node) Children() []*Node { return n.children }

// AddChild reparents child under n.
func (n *Node) AddChild(child *Node) {
	if child.parent != nil {
		child.parent.RemoveChild(child)
	}
	child.parent = n
	n.children = append(n.children, child)
}

// RemoveChild detaches child from n. It is a no-op if child is not a child of n.
func (n *Node) RemoveChild(child *Node) {
	for i, c := range n.children {
		if c == child {
			n.children = append(n.children[:i], n.children[i+1:]...)
			child.parent = nil
			return
		}
	}
}

// Walk visits n and all its descendants depth-first.
func (n *Node) Walk(fn func(*Node)) {
	fn(n)
	for _, c := range n.children {
		c.Walk(fn)
	}
}

// Position returns the local position.
func (n *Node) Position() mgl32.Vec3 { return n.local.Position }

// Rotation returns the local rotation.
func (n *Node) Rotation() mgl32.Quat { return n.local.Rotation }

// Scale returns the local scale.
func (n *Node) Scale() mgl32.Vec3 { return n.local.Scale }

func (n *Node) SetPosition(p mgl32.Vec3) { n.local.Position = p }
func (n *Node) SetRotation(q mgl32.Quat) { n.local.Rotation = q.Normalize() }
func (n *Node) SetScale(s mgl32.Vec3)    { n.local.Scale = s }

// LocalTransform returns the local transform.
func (n *Node) LocalTransform() xform.Transform { return n.local }

// SceneTransform composes the local transforms from the root down to n.
func (n *Node) SceneTransform() xform.Transform {
	if n.parent == nil {
		return n.local
	}
	return n.parent.SceneTransform().Compose(n.local)
}

// ScenePose returns the scene-space pose of n.
func (n *Node) ScenePose() xform.Pose {
	return n.SceneTransform().Pose()
}

// SetScenePose moves n so that its scene-space pose equals p, keeping the
// local scale. The parent transform is looked up through cache when given.
func (n *Node) SetScenePose(p xform.Pose, cache *TransformCache) {
	if n.parent == nil {
		n.local.Position = p.Position
		n.local.Rotation = p.Rotation
		return
	}
	parent := cache.SceneTransform(n.parent)
	n.local.Position, n.local.Rotation = parent.LocalFrom(p)
}

// Enabled reports whether the node takes part in simulation.
func (n *Node) Enabled() bool { return n.enabled }

func (n *Node) SetEnabled(enabled bool) { n.enabled = enabled }

// Shapes returns the collision shape descriptors in order.
func (n *Node) Shapes() []*Shape { return n.shapes }

// AddShape appends a collision shape descriptor.
func (n *Node) AddShape(s *Shape) {
	n.shapes = append(n.shapes, s)
	n.shapesChanged = true
}

// RemoveShape removes a collision shape descriptor.
func (n *Node) RemoveShape(s *Shape) {
	for i, cur := range n.shapes {
		if cur == s {
			n.shapes = append(n.shapes[:i], n.shapes[i+1:]...)
			n.shapesChanged = true
			return
		}
	}
}

// SetShapes replaces all collision shape descriptors.
func (n *Node) SetShapes(shapes ...*Shape) {
	n.shapes = append([]*Shape(nil), shapes...)
	n.shapesChanged = true
}

// Material returns the explicit physics material or nil for the default.
func (n *Node) Material() *Material { return n.material }

// SetMaterial changes the physics material. Native shapes are rebuilt.
func (n *Node) SetMaterial(m *Material) {
	n.material = m
	n.shapesChanged = true
}

// FilterGroup returns the collision group (0-31).
func (n *Node) FilterGroup() uint8 { return n.filterGroup }

// SetFilterGroup sets the collision group; values above 31 wrap.
func (n *Node) SetFilterGroup(group uint8) {
	group %= 32
	if group == n.filterGroup {
		return
	}
	n.filterGroup = group
	n.filtersChanged = true
}

// IgnoredGroups returns the bit mask of groups this node does not collide with.
func (n *Node) IgnoredGroups() uint32 { return n.ignoreMask }

func (n *Node) SetIgnoredGroups(mask uint32) {
	if mask == n.ignoreMask {
		return
	}
	n.ignoreMask = mask
	n.filtersChanged = true
}

// Actor returns the bound actor handle.
func (n *Node) Actor() (ActorHandle, bool) {
	return n.actor, n.actor != 0
}

// Bind records the backend actor handle. Only the world calls this.
func (n *Node) Bind(h ActorHandle) { n.actor = h }

// Unbind clears the backend actor handle. Only the world calls this.
func (n *Node) Unbind() { n.actor = 0 }

// TakeShapesChanged returns and clears the shapes-changed notification.
func (n *Node) TakeShapesChanged() bool {
	changed := n.shapesChanged
	n.shapesChanged = false
	return changed
}

// TakeFiltersChanged returns and clears the filters-changed notification.
func (n *Node) TakeFiltersChanged() bool {
	changed := n.filtersChanged
	n.filtersChanged = false
	return changed
}

// HasStaticOnlyShapes reports whether any shape can only live on a static or
// kinematic body.
func (n *Node) HasStaticOnlyShapes() bool {
	for _, s := range n.shapes {
		if s.Kind().StaticOnly() {
			return true
		}
	}
	return false
}
