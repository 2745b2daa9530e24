// Package scene is the declarative side of the physics bridge: the node
// graph that callers build and mutate, the collision shape descriptors
// attached to it, and the commands queued against dynamic bodies.
//
// Nothing in this package talks to the native engine. A node learns about
// its backend actor only through an opaque ActorHandle set by the world, so
// the node graph can outlive, or be outlived by, the simulation.
//
// Thread-safety: nodes are owned by the consuming goroutine. The only type
// here that tolerates concurrent use is CommandQueue.
package scene
