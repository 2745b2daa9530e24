package scene

import (
	"github.com/roach88/physync/internal/xform"
)

// TransformCache memoizes scene transforms for the duration of one sync
// window. Poses only change on the consuming goroutine, and a backend that
// writes a pose back into a node invalidates that node's subtree.
type TransformCache struct {
	entries map[*Node]xform.Transform
}

// NewTransformCache returns an empty cache.
func NewTransformCache() *TransformCache {
	return &TransformCache{entries: make(map[*Node]xform.Transform)}
}

// SceneTransform returns the scene transform of n. A nil cache computes it
// directly.
func (c *TransformCache) SceneTransform(n *Node) xform.Transform {
	if c == nil {
		return n.SceneTransform()
	}
	if t, ok := c.entries[n]; ok {
		return t
	}
	var t xform.Transform
	if n.parent == nil {
		t = n.local
	} else {
		t = c.SceneTransform(n.parent).Compose(n.local)
	}
	c.entries[n] = t
	return t
}

// Invalidate drops n and its descendants from the cache.
func (c *TransformCache) Invalidate(n *Node) {
	if c == nil {
		return
	}
	n.Walk(func(m *Node) { delete(c.entries, m) })
}

// Clear drops every entry.
func (c *TransformCache) Clear() {
	if c == nil {
		return
	}
	clear(c.entries)
}

// Len returns the number of cached transforms.
func (c *TransformCache) Len() int {
	if c == nil {
		return 0
	}
	return len(c.entries)
}
