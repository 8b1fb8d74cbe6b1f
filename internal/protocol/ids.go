package protocol

// BlockId identifies a block of source and parity symbols within an object.
// It wraps like a TCP sequence number: callers must compare blocks with
// BlockIdLess/BlockIdDistance rather than plain integer ordering once a session has run
// long enough for the counter to wrap.
type BlockId uint32

// ObjectId identifies an object (a file, stream segment, or other unit a
// session transfers). It has the same wraparound semantics as BlockId.
type ObjectId uint32

// SegmentId indexes a symbol position within a single block. Unlike BlockId
// and ObjectId, it never wraps: it is bounded by the block's total symbol
// count, which is always far smaller than the id's range.
type SegmentId uint16

// BlockIdLess reports whether a comes before b in sequence-number order, using
// signed-distance (modulo-2^32) comparison: a is "less than" b if advancing
// from a to b the short way around the ring moves forward, not backward.
// This is the standard wraparound ordering TCP sequence numbers use.
func BlockIdLess(a, b BlockId) bool {
	return int32(a-b) < 0
}

// BlockIdDistance returns b-a as a signed quantity in the half-open ring of
// sequence numbers, i.e. how far forward a must advance to reach b.
func BlockIdDistance(a, b BlockId) int32 {
	return int32(b - a)
}

func ObjectIdLess(a, b ObjectId) bool {
	return int32(a-b) < 0
}

func ObjectIdDistance(a, b ObjectId) int32 {
	return int32(b - a)
}
