package world

import (
	"slices"

	"github.com/roach88/physync/internal/scene"
)

// Manager tracks every world and the physics nodes that no world claims.
//
// A node belongs to the world whose scene root is its nearest ancestor
// (the node itself included). Nodes registered before any world claims
// them wait in the orphan list and are matched at the start of each tick.
//
// CRITICAL: Manager is used from the consuming goroutine only.
type Manager struct {
	worlds     []*World
	orphans    []*scene.Node
	nextHandle scene.ActorHandle
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{}
}

var defaultManager = NewManager()

// DefaultManager returns the process-wide manager used when a world is
// created without WithManager.
func DefaultManager() *Manager {
	return defaultManager
}

// Worlds returns the registered worlds in registration order.
func (m *Manager) Worlds() []*World {
	return slices.Clone(m.worlds)
}

// Orphans returns the nodes no world has claimed yet.
func (m *Manager) Orphans() []*scene.Node {
	return slices.Clone(m.orphans)
}

// RegisterNode announces a physics node. Plain group nodes are ignored.
func (m *Manager) RegisterNode(node *scene.Node) {
	if node == nil || !node.Kind().IsPhysics() {
		return
	}
	if w := m.worldFor(node); w != nil {
		w.enqueue(node)
		return
	}
	if !slices.Contains(m.orphans, node) {
		m.orphans = append(m.orphans, node)
	}
}

// RegisterTree registers every physics node in the subtree rooted at root.
func (m *Manager) RegisterTree(root *scene.Node) {
	root.Walk(m.RegisterNode)
}

// DeregisterNode withdraws a node from every world. A bound node loses its
// actor binding on both sides, and every world records it as removed so
// reports captured for it are never delivered.
func (m *Manager) DeregisterNode(node *scene.Node) {
	if node == nil {
		return
	}
	for _, w := range m.worlds {
		w.forget(node)
	}
	m.dropOrphan(node)
}

// DeregisterTree deregisters every physics node in the subtree.
func (m *Manager) DeregisterTree(root *scene.Node) {
	root.Walk(func(n *scene.Node) {
		if n.Kind().IsPhysics() {
			m.DeregisterNode(n)
		}
	})
}

// worldFor finds the world owning node. When two worlds share a scene root
// the first registered wins.
func (m *Manager) worldFor(node *scene.Node) *World {
	for cur := node; cur != nil; cur = cur.Parent() {
		for _, w := range m.worlds {
			if w.root != nil && w.root == cur {
				return w
			}
		}
	}
	return nil
}

func (m *Manager) add(w *World) {
	m.worlds = append(m.worlds, w)
}

func (m *Manager) remove(w *World) {
	m.worlds = slices.DeleteFunc(m.worlds, func(x *World) bool { return x == w })
}

func (m *Manager) dropOrphan(node *scene.Node) {
	m.orphans = slices.DeleteFunc(m.orphans, func(x *scene.Node) bool { return x == node })
}

func (m *Manager) addOrphan(node *scene.Node) {
	if !slices.Contains(m.orphans, node) {
		m.orphans = append(m.orphans, node)
	}
}

// claimOrphans moves every orphan owned by w into w's new-node queue.
func (m *Manager) claimOrphans(w *World) {
	if len(m.orphans) == 0 {
		return
	}
	kept := m.orphans[:0]
	for _, n := range m.orphans {
		if m.worldFor(n) == w {
			w.enqueue(n)
			continue
		}
		kept = append(kept, n)
	}
	clear(m.orphans[len(kept):])
	m.orphans = kept
}

// sceneInUse reports whether another world already uses root.
func (m *Manager) sceneInUse(w *World, root *scene.Node) bool {
	for _, x := range m.worlds {
		if x != w && x.root == root {
			return true
		}
	}
	return false
}

func (m *Manager) allocHandle() scene.ActorHandle {
	m.nextHandle++
	return m.nextHandle
}
