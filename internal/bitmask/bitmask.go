// Package bitmask implements the fixed-size bit vector used by the block
// engine's pending/repair masks.
package bitmask

import "math/bits"

const wordBits = 64

// Mask is a fixed-size bit vector indexed [0, size). It is not safe for
// concurrent use; callers serialize access the same way they serialize all
// other block-engine operations.
type Mask struct {
	words []uint64
	size  int
}

// New allocates a Mask able to hold `size` bits, all initially clear.
func New(size int) *Mask {
	return &Mask{
		words: make([]uint64, (size+wordBits-1)/wordBits),
		size:  size,
	}
}

// Init resizes m in place to hold `size` bits, clearing all of them. It lets
// a Mask obtained from a pool be reused at a different symbol count.
func (m *Mask) Init(size int) {
	needWords := (size + wordBits - 1) / wordBits
	if cap(m.words) >= needWords {
		m.words = m.words[:needWords]
	} else {
		m.words = make([]uint64, needWords)
	}
	m.size = size
	m.Clear()
}

// Size returns the number of addressable bits.
func (m *Mask) Size() int { return m.size }

func (m *Mask) wordIndex(i int) (int, uint64) {
	return i / wordBits, uint64(1) << uint(i%wordBits)
}

// Set sets bit i.
func (m *Mask) Set(i int) {
	w, bit := m.wordIndex(i)
	m.words[w] |= bit
}

// Unset clears bit i.
func (m *Mask) Unset(i int) {
	w, bit := m.wordIndex(i)
	m.words[w] &^= bit
}

// Test reports whether bit i is set.
func (m *Mask) Test(i int) bool {
	w, bit := m.wordIndex(i)
	return m.words[w]&bit != 0
}

// SetBits sets the n bits starting at start. n may be zero or negative, in
// which case it is a no-op (mirrors the C++ source tolerating count==0).
func (m *Mask) SetBits(start, n int) {
	m.rangeBits(start, n, true)
}

// UnsetBits clears the n bits starting at start.
func (m *Mask) UnsetBits(start, n int) {
	m.rangeBits(start, n, false)
}

func (m *Mask) rangeBits(start, n int, value bool) {
	if n <= 0 {
		return
	}
	for i := start; i < start+n; i++ {
		if value {
			m.Set(i)
		} else {
			m.Unset(i)
		}
	}
}

// Clear unsets every bit.
func (m *Mask) Clear() {
	for i := range m.words {
		m.words[i] = 0
	}
}

// IsSet reports whether any bit is set.
func (m *Mask) IsSet() bool {
	for _, w := range m.words {
		if w != 0 {
			return true
		}
	}
	return false
}

// GetFirstSet finds the lowest set bit and reports it via *i, returning
// false if the mask is entirely clear.
func (m *Mask) GetFirstSet(i *int) bool {
	*i = 0
	return m.GetNextSet(i)
}

// GetNextSet finds the lowest set bit at position >= *i, stores it in *i and
// returns true; returns false (leaving *i unspecified) if none exists.
func (m *Mask) GetNextSet(i *int) bool {
	start := *i
	if start < 0 {
		start = 0
	}
	if start >= m.size {
		return false
	}
	w := start / wordBits
	off := uint(start % wordBits)
	first := m.words[w] >> off
	if first != 0 {
		pos := start + bits.TrailingZeros64(first)
		if pos < m.size {
			*i = pos
			return true
		}
		return false
	}
	for w++; w < len(m.words); w++ {
		if m.words[w] != 0 {
			pos := w*wordBits + bits.TrailingZeros64(m.words[w])
			if pos < m.size {
				*i = pos
				return true
			}
			return false
		}
	}
	return false
}

// Xor sets m := m XOR other. The two masks must share size.
func (m *Mask) Xor(other *Mask) {
	for i := range m.words {
		m.words[i] ^= other.words[i]
	}
}

// Add sets m := m OR other (the C++ source calls bitwise-OR "Add" because it
// accumulates repair bits into a pending set without losing existing ones).
func (m *Mask) Add(other *Mask) {
	for i := range m.words {
		m.words[i] |= other.words[i]
	}
}

// XCopy sets m := other XOR m. IsRepairPending uses it to combine a
// "what's covered" mask with pending_mask: the caller first fills m with the
// covered set, then XCopies pending_mask into it, leaving m holding the
// pending bits that are not covered plus the covered bits that are not
// pending.
func (m *Mask) XCopy(other *Mask) {
	for i := range m.words {
		m.words[i] = other.words[i] ^ m.words[i]
	}
}
