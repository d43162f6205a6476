// Package model defines the engine's in-memory entities (spec.md §3) and
// the monotonic id generators that back their identity invariants.
package model

import (
	"fmt"
	"sync/atomic"
)

// IDGenerator produces process-unique monotonic ids with a fixed prefix,
// satisfying the invariant that Task, DynamicAgent, Conversation, and
// PendingQuestion ids never repeat within a process lifetime.
type IDGenerator struct {
	prefix  string
	counter atomic.Uint64
}

// NewIDGenerator returns a generator that yields "<prefix>-<n>" starting at 1.
func NewIDGenerator(prefix string) *IDGenerator {
	return &IDGenerator{prefix: prefix}
}

// Next returns the next id in sequence.
func (g *IDGenerator) Next() string {
	n := g.counter.Add(1)
	return fmt.Sprintf("%s-%d", g.prefix, n)
}
