package block

import "github.com/normkit/norm/internal/protocol"

// BlockBuffer is a bounded sliding-window index mapping BlockId to live
// Blocks, using a hashed chain layout with incremental tracking of the
// occupied identifier range so range queries never need a full table scan.
type BlockBuffer struct {
	table    []*Block
	hashMask uint32
	rangeMax int

	count    int
	rangeLo  protocol.BlockId
	rangeHi  protocol.BlockId
	rng      int // occupied span, 0 when empty
}

// NewBlockBuffer allocates a buffer bounded to rangeMax live ids, backed by
// a hash table of tableSize buckets rounded up to the next power of two.
func NewBlockBuffer(rangeMax, tableSize int) *BlockBuffer {
	b := &BlockBuffer{}
	b.Init(rangeMax, tableSize)
	return b
}

// Init (re)configures b, discarding any live entries.
func (b *BlockBuffer) Init(rangeMax, tableSize int) {
	size := nextPowerOfTwo(tableSize)
	b.table = make([]*Block, size)
	b.hashMask = uint32(size - 1)
	b.rangeMax = rangeMax
	b.count = 0
	b.rng = 0
}

func nextPowerOfTwo(n int) int {
	if n < 1 {
		n = 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Range reports the current occupied id span (0 when empty).
func (b *BlockBuffer) Range() int { return b.rng }

// RangeLo and RangeHi report the smallest/largest live id, valid only when
// Range() > 0.
func (b *BlockBuffer) RangeLo() protocol.BlockId { return b.rangeLo }
func (b *BlockBuffer) RangeHi() protocol.BlockId { return b.rangeHi }

func (b *BlockBuffer) bucket(id protocol.BlockId) uint32 {
	return uint32(id) & b.hashMask
}

// inRange reports whether id falls within [range_lo, range_hi] using
// wraparound-safe signed-distance comparisons.
func (b *BlockBuffer) inRange(id protocol.BlockId) bool {
	if b.rng == 0 {
		return false
	}
	return !protocol.BlockIdLess(id, b.rangeLo) && !protocol.BlockIdLess(b.rangeHi, id)
}

// Find returns the live block with the given id, or nil.
func (b *BlockBuffer) Find(id protocol.BlockId) *Block {
	if !b.inRange(id) {
		return nil
	}
	for cur := b.table[b.bucket(id)]; cur != nil; cur = cur.next {
		if cur.id == id {
			return cur
		}
		if protocol.BlockIdLess(id, cur.id) {
			break // bucket chains are kept in ascending id order
		}
	}
	return nil
}

// CanInsert reports whether inserting id would keep the occupied span
// within rangeMax.
func (b *BlockBuffer) CanInsert(id protocol.BlockId) bool {
	var span int
	switch {
	case b.rng == 0:
		span = 1
	case protocol.BlockIdLess(id, b.rangeLo):
		span = int(protocol.BlockIdDistance(id, b.rangeLo)) + b.rng
	case protocol.BlockIdLess(b.rangeHi, id):
		span = int(protocol.BlockIdDistance(b.rangeHi, id)) + b.rng
	default:
		span = b.rng
	}
	return span <= b.rangeMax
}

// Insert threads blk into its bucket chain at the position that keeps the
// chain ascending by id, and extends the tracked range. It returns false
// (RangeOverflow) without modifying anything if the resulting span would
// exceed rangeMax.
func (b *BlockBuffer) Insert(blk *Block) bool {
	if !b.CanInsert(blk.id) {
		return false
	}

	bucket := b.bucket(blk.id)
	var prev *Block
	cur := b.table[bucket]
	for cur != nil && protocol.BlockIdLess(cur.id, blk.id) {
		prev = cur
		cur = cur.next
	}
	blk.next = cur
	if prev == nil {
		b.table[bucket] = blk
	} else {
		prev.next = blk
	}

	switch {
	case b.rng == 0:
		b.rangeLo = blk.id
		b.rangeHi = blk.id
		b.rng = 1
	case protocol.BlockIdLess(blk.id, b.rangeLo):
		b.rangeLo = blk.id
		b.rng = int(protocol.BlockIdDistance(b.rangeLo, b.rangeHi)) + 1
	case protocol.BlockIdLess(b.rangeHi, blk.id):
		b.rangeHi = blk.id
		b.rng = int(protocol.BlockIdDistance(b.rangeLo, b.rangeHi)) + 1
	}
	b.count++
	return true
}

// Remove unlinks blk from its bucket and, if blk held an extremum,
// recomputes range_lo/range_hi via the two-pronged hash-probe-plus-chain-
// scan search: an exact probe at id+offset (or id-offset) per step, with a
// fallback tracking the closest id seen in the relevant interval while
// walking each visited chain. It reports false (NotFound) and leaves the
// buffer untouched if blk is not present in its bucket chain, mirroring the
// `if (!entry) return false;` guard the C++ source checks before any
// mutation.
func (b *BlockBuffer) Remove(blk *Block) bool {
	bucket := b.bucket(blk.id)
	var prev *Block
	cur := b.table[bucket]
	for cur != nil && cur != blk {
		prev = cur
		cur = cur.next
	}
	if cur == nil {
		return false
	}
	if prev == nil {
		b.table[bucket] = cur.next
	} else {
		prev.next = cur.next
	}
	blk.next = nil
	b.count--

	if b.rng > 1 {
		if blk.id == b.rangeLo {
			b.rangeLo = b.reseekLo(blk.id)
			b.rng = int(protocol.BlockIdDistance(b.rangeLo, b.rangeHi)) + 1
		} else if blk.id == b.rangeHi {
			b.rangeHi = b.reseekHi(blk.id)
			b.rng = int(protocol.BlockIdDistance(b.rangeLo, b.rangeHi)) + 1
		}
	} else {
		b.rng = 0
	}
	return true
}

// reseekLo finds the new range_lo after removing id, which was the old
// range_lo. It scans buckets in ascending order from id's bucket for
// range-1 steps, or for one full circuit of the table (hashMask+1 steps,
// ending back at id's own bucket) when the range is wider than that,
// probing for the exact id that would hash to each visited bucket and lie
// in (id, range_hi].
func (b *BlockBuffer) reseekLo(id protocol.BlockId) protocol.BlockId {
	steps := b.rng - 1
	if steps > int(b.hashMask) {
		steps = int(b.hashMask) + 1
	}
	nextId := b.rangeHi
	for offset := 1; offset <= steps; offset++ {
		target := id + protocol.BlockId(offset)
		bucket := b.bucket(target)
		for cur := b.table[bucket]; cur != nil; cur = cur.next {
			if cur.id == target {
				return target
			}
			if protocol.BlockIdLess(id, cur.id) && protocol.BlockIdLess(cur.id, nextId) {
				nextId = cur.id
			}
		}
	}
	return nextId
}

// reseekHi is reseekLo's descending-direction mirror.
func (b *BlockBuffer) reseekHi(id protocol.BlockId) protocol.BlockId {
	steps := b.rng - 1
	if steps > int(b.hashMask) {
		steps = int(b.hashMask) + 1
	}
	nextId := b.rangeLo
	for offset := 1; offset <= steps; offset++ {
		target := id - protocol.BlockId(offset)
		bucket := b.bucket(target)
		for cur := b.table[bucket]; cur != nil; cur = cur.next {
			if cur.id == target {
				return target
			}
			if protocol.BlockIdLess(cur.id, id) && protocol.BlockIdLess(nextId, cur.id) {
				nextId = cur.id
			}
		}
	}
	return nextId
}

// Iterator walks a BlockBuffer's live blocks in ascending id order.
type Iterator struct {
	buf     *BlockBuffer
	index   protocol.BlockId
	started bool
}

// NewIterator returns an Iterator over buf's current contents.
func NewIterator(buf *BlockBuffer) *Iterator {
	return &Iterator{buf: buf}
}

// GetNextBlock returns the next live block in ascending id order, or nil
// once exhausted.
func (it *Iterator) GetNextBlock() *Block {
	if it.buf.rng == 0 {
		return nil
	}
	if !it.started {
		it.started = true
		it.index = it.buf.rangeLo
		return it.buf.Find(it.index)
	}
	if !protocol.BlockIdLess(it.index, it.buf.rangeHi) {
		return nil
	}
	nextId := it.buf.reseekLo(it.index)
	it.index = nextId
	return it.buf.Find(nextId)
}
