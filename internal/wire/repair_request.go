// Package wire implements the on-the-wire NORM message types the block
// engine treats as collaborators: NACKs, repair advertisements, and the
// repair-request payload both are built from.
package wire

import (
	"github.com/quic-go/quic-go/quicvarint"

	"github.com/normkit/norm/internal/protocol"
)

// repairItem is one ITEMS-form entry: a single requested symbol.
type repairItem struct {
	objectId protocol.ObjectId
	blockId  protocol.BlockId
	numData  uint16
	symbolId protocol.SegmentId
}

// repairRange is one RANGES-form entry: a first/last pair spanning a run of
// consecutive requested symbols.
type repairRange struct {
	firstObjectId protocol.ObjectId
	firstBlockId  protocol.BlockId
	firstNumData  uint16
	firstId       protocol.SegmentId
	lastObjectId  protocol.ObjectId
	lastBlockId   protocol.BlockId
	lastNumData   uint16
	lastId        protocol.SegmentId
}

// NormRepairRequest accumulates one run of repair items or ranges sharing a
// single RepairForm, the unit AttachRepairRequest/PackRepairRequest operate
// on. It implements block.RepairRequest.
type NormRepairRequest struct {
	flag   protocol.RepairFlag
	form   protocol.RepairForm
	items  []repairItem
	ranges []repairRange
}

func (r *NormRepairRequest) SetFlag(f protocol.RepairFlag) { r.flag |= f }
func (r *NormRepairRequest) SetForm(f protocol.RepairForm) { r.form = f }

func (r *NormRepairRequest) AppendRepairItem(objectId protocol.ObjectId, blockId protocol.BlockId, numData uint16, symbolId protocol.SegmentId) {
	r.items = append(r.items, repairItem{objectId: objectId, blockId: blockId, numData: numData, symbolId: symbolId})
}

func (r *NormRepairRequest) AppendRepairRange(
	firstObjectId protocol.ObjectId, firstBlockId protocol.BlockId, firstNumData uint16, firstId protocol.SegmentId,
	lastObjectId protocol.ObjectId, lastBlockId protocol.BlockId, lastNumData uint16, lastId protocol.SegmentId,
) {
	r.ranges = append(r.ranges, repairRange{
		firstObjectId: firstObjectId, firstBlockId: firstBlockId, firstNumData: firstNumData, firstId: firstId,
		lastObjectId: lastObjectId, lastBlockId: lastBlockId, lastNumData: lastNumData, lastId: lastId,
	})
}

// Form returns the RepairForm this request was built with.
func (r *NormRepairRequest) Form() protocol.RepairForm { return r.form }

// ItemCount returns the number of ITEMS-form entries accumulated so far.
func (r *NormRepairRequest) ItemCount() int { return len(r.items) }

// RangeCount returns the number of RANGES-form entries accumulated so far.
func (r *NormRepairRequest) RangeCount() int { return len(r.ranges) }

// ItemSymbolIds returns the symbol id of each accumulated ITEMS-form entry,
// in append order.
func (r *NormRepairRequest) ItemSymbolIds() []protocol.SegmentId {
	ids := make([]protocol.SegmentId, len(r.items))
	for i, it := range r.items {
		ids[i] = it.symbolId
	}
	return ids
}

// reset clears form and accumulated content for reuse across a
// Block's synthesis loop, deliberately leaving r.flag untouched: the
// SEGMENT/INFO flag is set once by the caller before the loop starts and
// must survive every subsequent re-attach.
func (r *NormRepairRequest) reset() {
	r.form = protocol.RepairFormInvalid
	r.items = r.items[:0]
	r.ranges = r.ranges[:0]
}

// appendTo serializes r onto b: flag byte, form byte, varint entry count,
// then each entry's fields as varints.
func (r *NormRepairRequest) appendTo(b []byte) []byte {
	b = append(b, byte(r.flag), byte(r.form))
	switch r.form {
	case protocol.RepairFormItems:
		b = quicvarint.Append(b, uint64(len(r.items)))
		for _, it := range r.items {
			b = quicvarint.Append(b, uint64(it.objectId))
			b = quicvarint.Append(b, uint64(it.blockId))
			b = quicvarint.Append(b, uint64(it.numData))
			b = quicvarint.Append(b, uint64(it.symbolId))
		}
	case protocol.RepairFormRanges:
		b = quicvarint.Append(b, uint64(len(r.ranges)))
		for _, rg := range r.ranges {
			b = quicvarint.Append(b, uint64(rg.firstObjectId))
			b = quicvarint.Append(b, uint64(rg.firstBlockId))
			b = quicvarint.Append(b, uint64(rg.firstNumData))
			b = quicvarint.Append(b, uint64(rg.firstId))
			b = quicvarint.Append(b, uint64(rg.lastObjectId))
			b = quicvarint.Append(b, uint64(rg.lastBlockId))
			b = quicvarint.Append(b, uint64(rg.lastNumData))
			b = quicvarint.Append(b, uint64(rg.lastId))
		}
	}
	return b
}
