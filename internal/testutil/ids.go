package testutil

import (
	"fmt"
	"sync"
)

// SequenceGenerator generates node ids "<prefix>-0001", "<prefix>-0002", ...
//
// This enables deterministic traces and golden snapshot comparison: the same
// scenario built with a fresh SequenceGenerator produces identical ids.
//
// Implements scene.IDGenerator.
//
// Thread-safety: safe for concurrent use.
type SequenceGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceGenerator creates a generator. An empty prefix uses "node".
func NewSequenceGenerator(prefix string) *SequenceGenerator {
	if prefix == "" {
		prefix = "node"
	}
	return &SequenceGenerator{prefix: prefix}
}

// Generate returns the next id.
func (g *SequenceGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}
