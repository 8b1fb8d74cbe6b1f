// Package block implements the transmission-block state engine: the
// segment pool, block, block pool, and block buffer that together track
// pending/repair symbol state for a NORM-style reliable-multicast session.
package block

import (
	"fmt"
)

// Segment is an opaque, uniformly sized payload buffer. Its contents are
// never interpreted by this package; callers (the FEC codec, the object
// layer) own what's inside.
type Segment []byte

// SegmentPool is a bounded LIFO free-list of uniformly sized Segments. LIFO
// reuse keeps recently-touched buffers warm in cache and makes exhaustion
// deterministic under sustained load, matching the original NORM pool.
type SegmentPool struct {
	segmentSize int
	free        []Segment

	total int
	count int

	peakUsage int
	overruns  int
	overrun   bool
}

// NewSegmentPool allocates count buffers of at least size bytes, rounded up
// to pointer alignment the way the C++ source rounds up to sizeof(char*).
// It returns an error (and releases any partially allocated state) if any
// individual allocation fails, mirroring spec.md §7's AllocationFailure
// handling.
func NewSegmentPool(count, size int) (*SegmentPool, error) {
	if count < 0 || size < 0 {
		return nil, fmt.Errorf("block: NewSegmentPool: count (%d) and size (%d) must be non-negative", count, size)
	}
	alignedSize := alignUp(size)
	p := &SegmentPool{
		segmentSize: alignedSize,
		free:        make([]Segment, 0, count),
	}
	for i := 0; i < count; i++ {
		seg, err := allocSegment(alignedSize)
		if err != nil {
			p.total = p.count
			p.Destroy()
			return nil, fmt.Errorf("block: NewSegmentPool: allocation %d/%d failed: %w", i, count, err)
		}
		p.free = append(p.free, seg)
		p.count++
	}
	p.total = p.count
	return p, nil
}

const pointerSize = 8

func alignUp(size int) int {
	words := size / pointerSize
	if words*pointerSize < size {
		words++
	}
	return words * pointerSize
}

func allocSegment(size int) (Segment, error) {
	return make(Segment, size), nil
}

// Destroy releases every buffer in the pool. Its precondition — that every
// segment handed out has been returned — is a PreconditionViolation per
// spec.md §7; callers that violate it get a descriptive panic rather than
// silent data loss, since recovering from "lost track of a live buffer" is
// not something the caller can sensibly continue past.
func (p *SegmentPool) Destroy() {
	if p.count != p.total {
		panic(fmt.Sprintf("block: SegmentPool.Destroy: %d of %d segments still outstanding", p.total-p.count, p.total))
	}
	p.free = nil
	p.count = 0
	p.total = 0
	p.segmentSize = 0
}

// SegmentSize returns the pool's (aligned) per-segment byte size.
func (p *SegmentPool) SegmentSize() int { return p.segmentSize }

// Total returns the pool's fixed capacity.
func (p *SegmentPool) Total() int { return p.total }

// Count returns the number of segments currently free.
func (p *SegmentPool) Count() int { return p.count }

// PeakUsage returns the maximum number of segments ever simultaneously
// outstanding.
func (p *SegmentPool) PeakUsage() int { return p.peakUsage }

// Overruns returns the number of distinct exhaustion episodes observed so
// far (an episode ends the moment a Get succeeds again).
func (p *SegmentPool) Overruns() int { return p.overruns }

// Get pops a free segment LIFO, or returns (nil, false) if the pool is
// exhausted. On exhaustion it increments Overruns exactly once per episode
// and leaves the overrun flag set until the next successful Get.
func (p *SegmentPool) Get() (Segment, bool) {
	n := len(p.free)
	if n == 0 {
		if !p.overrun {
			p.overruns++
			p.overrun = true
		}
		return nil, false
	}
	seg := p.free[n-1]
	p.free = p.free[:n-1]
	p.count--
	p.overrun = false
	if usage := p.total - p.count; usage > p.peakUsage {
		p.peakUsage = usage
	}
	return seg, true
}

// Put returns seg to the free-list. The caller must guarantee seg was
// obtained from this pool and is not already free; violating either is a
// PreconditionViolation this layer cannot detect cheaply and does not try
// to.
func (p *SegmentPool) Put(seg Segment) {
	p.free = append(p.free, seg)
	p.count++
}
