package orders

import (
	"crypto/rand"
	"encoding/binary"
	"sync/atomic"
	"time"
)

// IDGenerator issues client correlation IDs that are unique within the
// process: a random per-instance salt in the high 32 bits plus a monotonic
// counter in the low 32. Two bot instances sharing a venue account get
// different salts, so their ID spaces never collide.
type IDGenerator struct {
	salt    uint64
	counter atomic.Uint64
}

func NewIDGenerator() *IDGenerator {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		binary.BigEndian.PutUint32(buf[:], uint32(time.Now().UnixNano()))
	}
	return &IDGenerator{salt: uint64(binary.BigEndian.Uint32(buf[:])) << 32}
}

func (g *IDGenerator) Next() uint64 {
	return g.salt | (g.counter.Add(1) & 0xFFFFFFFF)
}
