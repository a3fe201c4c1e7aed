package testutil

import (
	"encoding/binary"
	"math/rand/v2"
	"sync"
)

// SeededReader is a deterministic io.Reader for reproducible seeds, serial
// numbers and salts in tests.
//
// Thread-safety: SeededReader is safe for concurrent use via internal mutex.
type SeededReader struct {
	mu  sync.Mutex
	rng *rand.ChaCha8
}

// NewSeededReader creates a reader whose byte stream depends only on seed.
func NewSeededReader(seed uint64) *SeededReader {
	var s [32]byte
	binary.LittleEndian.PutUint64(s[:], seed)
	return &SeededReader{rng: rand.NewChaCha8(s)}
}

// Read fills p with deterministic bytes. Never fails.
func (r *SeededReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Read(p)
}

// Seed32 draws a 32-byte seed.
func (r *SeededReader) Seed32() [32]byte {
	var s [32]byte
	_, _ = r.Read(s[:])
	return s
}

// Seed15 draws a 15-byte seed, the width of an account id.
func (r *SeededReader) Seed15() [15]byte {
	var s [15]byte
	_, _ = r.Read(s[:])
	return s
}
