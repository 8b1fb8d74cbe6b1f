package block

import "fmt"

// BlockPool is a bounded LIFO free-list of preallocated Blocks, the same
// shape as SegmentPool but for whole blocks. Preallocating avoids per-block
// heap churn once a session is running steady-state.
type BlockPool struct {
	blockSize int
	top       *Block
	total     int
	count     int

	peakUsage int
	overruns  int
	overrun   bool
}

// NewBlockPool preallocates count Blocks, each sized for blockSize symbols.
func NewBlockPool(count, blockSize int) (*BlockPool, error) {
	if count < 0 || blockSize < 0 {
		return nil, fmt.Errorf("block: NewBlockPool: count (%d) and blockSize (%d) must be non-negative", count, blockSize)
	}
	p := &BlockPool{blockSize: blockSize}
	for i := 0; i < count; i++ {
		b, err := NewBlock(blockSize)
		if err != nil {
			p.Destroy()
			return nil, fmt.Errorf("block: NewBlockPool: allocation %d/%d failed: %w", i, count, err)
		}
		b.next = p.top
		p.top = b
		p.count++
	}
	p.total = p.count
	return p, nil
}

// Destroy drops the pool's reference to every block it holds. It does not
// recursively verify that blocks removed from the pool have been returned;
// that guarantee belongs to the BlockBuffer that owns them while checked out.
func (p *BlockPool) Destroy() {
	p.top = nil
	p.count = 0
	p.total = 0
	p.blockSize = 0
	p.peakUsage = 0
	p.overruns = 0
	p.overrun = false
}

// BlockSize returns the fixed per-block symbol capacity.
func (p *BlockPool) BlockSize() int { return p.blockSize }

// Total returns the pool's fixed capacity.
func (p *BlockPool) Total() int { return p.total }

// Count returns the number of blocks currently free.
func (p *BlockPool) Count() int { return p.count }

// PeakUsage returns the maximum number of blocks ever simultaneously
// outstanding.
func (p *BlockPool) PeakUsage() int { return p.peakUsage }

// Overruns returns the number of distinct exhaustion episodes observed so
// far (an episode ends the moment a Get succeeds again), the same
// one-shot-warning suppression SegmentPool applies.
func (p *BlockPool) Overruns() int { return p.overruns }

// Get pops a block LIFO, re-initializing it for immediate reuse, or returns
// (nil, false) if the pool is exhausted. On exhaustion it increments
// Overruns exactly once per episode and leaves the overrun flag set until
// the next successful Get.
func (p *BlockPool) Get() (*Block, bool) {
	if p.top == nil {
		if !p.overrun {
			p.overruns++
			p.overrun = true
		}
		return nil, false
	}
	b := p.top
	p.top = b.next
	b.next = nil
	p.count--
	p.overrun = false
	if usage := p.total - p.count; usage > p.peakUsage {
		p.peakUsage = usage
	}
	if err := b.Init(p.blockSize); err != nil {
		// blockSize was validated non-negative at pool construction; Init
		// cannot fail here.
		panic(err)
	}
	return b, true
}

// Put pushes b back onto the free-list. The caller must have already
// returned every segment b held to the SegmentPool (e.g. via EmptyToPool);
// BlockPool does not do this itself since it has no SegmentPool reference.
// b must satisfy IsEmpty; a non-empty block is a PreconditionViolation and
// panics rather than silently leaking the segments it still holds.
func (p *BlockPool) Put(b *Block) {
	if !b.IsEmpty() {
		panic("block: BlockPool.Put: block still holds segments, must be emptied before returning to the pool")
	}
	b.next = p.top
	p.top = b
	p.count++
}
