// Package normlog implements the structured per-event protocol log
// referenced abstractly as a logging sink in the block engine's
// collaborator contracts: a small qlog-style journal, built on gojay the
// way quic-go's own qlog package is, that pool/block/buffer code can emit
// trace events into.
package normlog

import (
	"encoding/hex"
	"io"
	"sync"

	"github.com/francoispqt/gojay"
)

// EventType names one kind of traced occurrence.
type EventType string

const (
	EventBlockOpened        EventType = "block_opened"
	EventRepairRequested    EventType = "repair_requested"
	EventRepairCommitted    EventType = "repair_committed"
	EventSegmentPoolOverrun EventType = "segment_pool_overrun"
)

// Event is anything normlog can journal: a gojay object marshaler tagged
// with the event type it represents.
type Event interface {
	gojay.MarshalerJSONObject
	Type() EventType
}

// BlockOpened traces a block being armed for a new transmission or repair
// cycle (TxReset returning true).
type BlockOpened struct {
	BlockId      uint32
	Size         int
	AutoParity   uint16
	SegmentCount int
}

func (e BlockOpened) Type() EventType { return EventBlockOpened }

func (e BlockOpened) MarshalJSONObject(enc *gojay.Encoder) {
	enc.AddStringKey("event_type", string(e.Type()))
	enc.AddUint32Key("block_id", e.BlockId)
	enc.AddIntKey("size", e.Size)
	enc.AddUint16Key("auto_parity", e.AutoParity)
	enc.AddIntKey("segment_count", e.SegmentCount)
}

func (e BlockOpened) IsNil() bool { return false }

// RepairRequested traces a NACK synthesized by AppendRepairRequest: the
// window it was drawn from, how many ITEMS/RANGES entries resulted, and a
// content digest of the inbound NACK datagram that triggered it (for
// correlating retransmitted NACKs across a trace without keeping payloads).
type RepairRequested struct {
	BlockId      uint32
	ObjectId     uint32
	ErasureCount int
	NumParity    uint16
	ItemCount    int
	RangeCount   int
	NackDigest   [16]byte
}

func (e RepairRequested) Type() EventType { return EventRepairRequested }

func (e RepairRequested) MarshalJSONObject(enc *gojay.Encoder) {
	enc.AddStringKey("event_type", string(e.Type()))
	enc.AddUint32Key("block_id", e.BlockId)
	enc.AddUint32Key("object_id", e.ObjectId)
	enc.AddIntKey("erasure_count", e.ErasureCount)
	enc.AddUint16Key("num_parity", e.NumParity)
	enc.AddIntKey("item_count", e.ItemCount)
	enc.AddIntKey("range_count", e.RangeCount)
	enc.AddStringKey("nack_digest", hex.EncodeToString(e.NackDigest[:]))
}

func (e RepairRequested) IsNil() bool { return false }

// RepairCommitted traces ActivateRepairs committing staged repair_mask
// bits into pending_mask.
type RepairCommitted struct {
	BlockId uint32
}

func (e RepairCommitted) Type() EventType { return EventRepairCommitted }

func (e RepairCommitted) MarshalJSONObject(enc *gojay.Encoder) {
	enc.AddStringKey("event_type", string(e.Type()))
	enc.AddUint32Key("block_id", e.BlockId)
}

func (e RepairCommitted) IsNil() bool { return false }

// SegmentPoolOverrun traces a SegmentPool.Get exhaustion episode.
type SegmentPoolOverrun struct {
	Total     int
	PeakUsage int
	Overruns  int
}

func (e SegmentPoolOverrun) Type() EventType { return EventSegmentPoolOverrun }

func (e SegmentPoolOverrun) MarshalJSONObject(enc *gojay.Encoder) {
	enc.AddStringKey("event_type", string(e.Type()))
	enc.AddIntKey("total", e.Total)
	enc.AddIntKey("peak_usage", e.PeakUsage)
	enc.AddIntKey("overruns", e.Overruns)
}

func (e SegmentPoolOverrun) IsNil() bool { return false }

// Logger serializes Events as newline-delimited JSON onto w, one gojay
// Encode call per event. It is safe for concurrent use across the
// goroutines the demo sender/receiver run the block engine from.
type Logger struct {
	mu sync.Mutex
	w  io.Writer
}

// NewLogger returns a Logger writing to w. A nil w discards every event,
// letting callers unconditionally log without a nil check at each call
// site.
func NewLogger(w io.Writer) *Logger {
	return &Logger{w: w}
}

// Log journals ev, ignoring the encoder error the same way a discarded
// trace log ordinarily would: a failed write here must never fail the
// protocol operation that triggered it.
func (l *Logger) Log(ev Event) {
	if l == nil || l.w == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	enc := gojay.NewEncoder(l.w)
	_ = enc.EncodeObject(ev)
	_, _ = l.w.Write([]byte("\n"))
}
