// Package repairqueue holds outbound repair-symbol messages (NormRepairMsg)
// awaiting transmission, bridging the block engine's synchronous repair
// computation and the asynchronous packet-sending loop that drains it.
package repairqueue

import (
	"sync"

	"github.com/normkit/norm/internal/wire"
)

// MaxLen bounds how many repair messages the queue holds before Add starts
// evicting the oldest entry to make room for the newest. Repair symbols are
// generated on a hot path a blocked Add would stall, and the oldest
// queued repair is also the most likely to already be stale (superseded by
// a subsequent repair cycle for the same block), so drop-oldest is the
// right eviction policy here, unlike the teacher's original panic-on-full.
const MaxLen = 32

// Queue is a bounded FIFO of *wire.NormRepairMsg awaiting transmission.
type Queue struct {
	mu      sync.Mutex
	buf     RingBuffer[*wire.NormRepairMsg]
	hasData func()
}

// New returns an empty Queue. hasData, if non-nil, is invoked after every
// successful Add to wake a sender loop blocked waiting for work.
func New(hasData func()) *Queue {
	if hasData == nil {
		hasData = func() {}
	}
	return &Queue{hasData: hasData}
}

// Add enqueues msg, evicting the oldest queued message first if the queue
// is already at MaxLen.
func (q *Queue) Add(msg *wire.NormRepairMsg) {
	q.mu.Lock()
	if q.buf.Len() >= MaxLen {
		q.buf.PopFront()
	}
	q.buf.PushBack(msg)
	q.mu.Unlock()
	q.hasData()
}

// Peek returns the oldest queued message without removing it, or nil if
// the queue is empty.
func (q *Queue) Peek() *wire.NormRepairMsg {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.buf.Empty() {
		return nil
	}
	return q.buf.PeekFront()
}

// Pop removes the oldest queued message. The caller must already have
// obtained it via Peek.
func (q *Queue) Pop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.buf.Empty() {
		q.buf.PopFront()
	}
}

// Len reports the number of messages currently queued.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.buf.Len()
}
