package testutil

import (
	"fmt"
	"sync/atomic"
)

// SequentialIDs generates attempt ids "<prefix>-0001", "<prefix>-0002", ...
//
// Seeded scenarios use it so that two runs produce byte-identical logs.
//
// Thread-safety: SequentialIDs is safe for concurrent use (atomic counter).
type SequentialIDs struct {
	prefix string
	n      atomic.Int64
}

// NewSequentialIDs creates a generator. An empty prefix becomes "attempt".
func NewSequentialIDs(prefix string) *SequentialIDs {
	if prefix == "" {
		prefix = "attempt"
	}
	return &SequentialIDs{prefix: prefix}
}

// Generate returns the next id.
//
// Implements engine.AttemptIDGenerator.
func (g *SequentialIDs) Generate() string {
	return fmt.Sprintf("%s-%04d", g.prefix, g.n.Add(1))
}
