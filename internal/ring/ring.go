// Package ring implements the receiver's reordering buffer: a fixed-size
// ring of optional payload slots addressed by position, adapted from the
// teacher's internal/fifo circular-index arithmetic (wraparound via "if pos
// == len(buf) { pos = 0 }") but slotted rather than byte-sequential, since
// the receiver must place an out-of-order DATA segment at an arbitrary
// offset from the current head rather than only ever appending at a tail.
package ring

// Ring is a fixed-size circular array of optional byte-slice slots, per
// spec.md §3's ReceiverBuffer.
type Ring struct {
	slots [][]byte
}

// New returns a ring with the given number of slots, all empty.
func New(size int) *Ring {
	return &Ring{slots: make([][]byte, size)}
}

// Size returns the number of slots.
func (r *Ring) Size() int { return len(r.slots) }

// Offset returns (pos + k) mod size, the wraparound index arithmetic
// spec.md §3 requires for mapping a seqno distance to a ring position.
func (r *Ring) Offset(pos, k int) int {
	size := len(r.slots)
	return ((pos+k)%size + size) % size
}

// Empty reports whether slot pos holds no payload.
func (r *Ring) Empty(pos int) bool { return r.slots[pos] == nil }

// Put stores payload at pos. Callers must check Empty first; placing into
// an occupied slot indicates a peer bug (spec.md §7 ProtocolViolation) and
// is intentionally not guarded here so the caller can attach seqno context
// to the error.
func (r *Ring) Put(pos int, payload []byte) { r.slots[pos] = payload }

// Take returns and clears the payload at pos.
func (r *Ring) Take(pos int) []byte {
	p := r.slots[pos]
	r.slots[pos] = nil
	return p
}
