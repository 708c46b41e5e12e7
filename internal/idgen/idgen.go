// Package idgen provides interval correlation id generators.
package idgen

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/google/uuid"
)

// UUID generates random (version 4) ids.
type UUID struct{}

// NewID returns a fresh random UUID.
func (UUID) NewID() uuid.UUID {
	return uuid.New()
}

// Sequential generates predictable ids for tests: the counter is written into
// the last eight bytes of an otherwise zero UUID, starting at 1.
type Sequential struct {
	n atomic.Uint64
}

// NewID returns the next id in sequence.
func (s *Sequential) NewID() uuid.UUID {
	var id uuid.UUID
	binary.BigEndian.PutUint64(id[8:], s.n.Add(1))
	return id
}
