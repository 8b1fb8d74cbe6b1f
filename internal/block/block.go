package block

import (
	"fmt"

	"github.com/normkit/norm/internal/bitmask"
	"github.com/normkit/norm/internal/protocol"
)

// Flag holds per-block state bits. IN_REPAIR marks a block that TxReset has
// (re)armed for transmission this cycle.
type Flag uint8

const (
	FlagInRepair Flag = 1 << 0
)

// Segment is defined in segmentpool.go.

// RepairRequest is the collaborator contract a Block packs NACK/advert
// content into. Concrete implementations live in internal/wire.
type RepairRequest interface {
	SetFlag(protocol.RepairFlag)
	SetForm(protocol.RepairForm)
	AppendRepairItem(objectId protocol.ObjectId, blockId protocol.BlockId, numData uint16, symbolId protocol.SegmentId)
	AppendRepairRange(
		firstObjectId protocol.ObjectId, firstBlockId protocol.BlockId, firstNumData uint16, firstId protocol.SegmentId,
		lastObjectId protocol.ObjectId, lastBlockId protocol.BlockId, lastNumData uint16, lastId protocol.SegmentId,
	)
}

// RepairMessage is the collaborator contract for the enclosing NACK or
// repair-advertisement message a Block appends requests into.
type RepairMessage interface {
	// NewRepairRequest returns a fresh, detached RepairRequest the caller
	// will configure and then Attach/Pack across one or more runs.
	NewRepairRequest() RepairRequest
	// AttachRepairRequest initializes req inside the message, ready to
	// receive AppendRepairItem/AppendRepairRange calls.
	AttachRepairRequest(req RepairRequest, segmentSize uint16) error
	// PackRepairRequest finalizes req into the message's wire buffer.
	PackRepairRequest(req RepairRequest) error
}

// Block holds one block's per-symbol pending/repair state: which symbols
// still need (re)transmission or are missing at a receiver, and the parity
// bookkeeping needed to decide how much of a NACK fresh parity can satisfy
// without requesting explicit retransmission.
type Block struct {
	id   protocol.BlockId
	next *Block // intrusive link: BlockPool stack xor BlockBuffer bucket chain, never both

	size int // numData + numParity, fixed for the block's lifetime

	segmentTable []Segment
	pendingMask  *bitmask.Mask
	repairMask   *bitmask.Mask

	erasureCount int
	parityCount  int
	parityOffset int
	flags        Flag
}

// NewBlock allocates a Block with masks and a segment table sized for
// totalSize symbols.
func NewBlock(totalSize int) (*Block, error) {
	b := &Block{}
	if err := b.Init(totalSize); err != nil {
		return nil, err
	}
	return b, nil
}

// Init (re)sizes b for totalSize symbols, clearing all state. It lets a
// Block drawn from a BlockPool be resized lazily rather than reallocated.
func (b *Block) Init(totalSize int) error {
	if totalSize < 0 {
		return fmt.Errorf("block: Init: totalSize (%d) must be non-negative", totalSize)
	}
	if cap(b.segmentTable) >= totalSize {
		b.segmentTable = b.segmentTable[:totalSize]
		for i := range b.segmentTable {
			b.segmentTable[i] = nil
		}
	} else {
		b.segmentTable = make([]Segment, totalSize)
	}
	if b.pendingMask == nil {
		b.pendingMask = bitmask.New(totalSize)
	} else {
		b.pendingMask.Init(totalSize)
	}
	if b.repairMask == nil {
		b.repairMask = bitmask.New(totalSize)
	} else {
		b.repairMask.Init(totalSize)
	}
	b.size = totalSize
	b.id = 0
	b.erasureCount = 0
	b.parityCount = 0
	b.parityOffset = 0
	b.flags = 0
	return nil
}

// Id returns the block's identifier.
func (b *Block) Id() protocol.BlockId { return b.id }

// SetId sets the block's identifier. Callers set this once, immediately
// after taking the block from its BlockPool and before inserting it into a
// BlockBuffer.
func (b *Block) SetId(id protocol.BlockId) { b.id = id }

// Size returns numData+numParity for this block.
func (b *Block) Size() int { return b.size }

// ErasureCount returns the number of missing data symbols (receiver side)
// or, equivalently, the parity count currently needed for recovery.
func (b *Block) ErasureCount() int { return b.erasureCount }

// SetErasureCount lets the object/FEC layer report how many data symbols
// are currently missing for this block.
func (b *Block) SetErasureCount(n int) { b.erasureCount = n }

// ParityCount returns the number of parity symbols committed this repair
// cycle.
func (b *Block) ParityCount() int { return b.parityCount }

// ParityOffset returns the index, relative to the parity region, of the
// first fresh parity symbol not yet consumed this repair cycle.
func (b *Block) ParityOffset() int { return b.parityOffset }

// HasFlag reports whether f is set.
func (b *Block) HasFlag(f Flag) bool { return b.flags&f != 0 }

func (b *Block) setFlag(f Flag)   { b.flags |= f }
func (b *Block) unsetFlag(f Flag) { b.flags &^= f }

// Segment returns the buffer occupying slot i, or nil if the slot is empty.
func (b *Block) Segment(i int) Segment { return b.segmentTable[i] }

// SetSegment installs seg into slot i, transferring ownership to the Block.
func (b *Block) SetSegment(i int, seg Segment) { b.segmentTable[i] = seg }

// EmptyToPool returns every owned segment to pool, nulling each slot.
func (b *Block) EmptyToPool(pool *SegmentPool) {
	for i, seg := range b.segmentTable {
		if seg != nil {
			pool.Put(seg)
			b.segmentTable[i] = nil
		}
	}
}

// IsEmpty reports whether no slot is occupied.
func (b *Block) IsEmpty() bool {
	for _, seg := range b.segmentTable {
		if seg != nil {
			return false
		}
	}
	return true
}

// ParityReady reports whether every parity slot [numData, size) already
// holds a segment, i.e. this block's parity has already been computed and
// TxReset must not clear it out from under an in-flight transmission.
func (b *Block) ParityReady(numData int) bool {
	for i := numData; i < b.size; i++ {
		if b.segmentTable[i] == nil {
			return false
		}
	}
	return true
}

// clearParitySegmentLen is the number of leading bytes TxReset zeros in a
// parity segment to erase stale incremental-parity state: the stream
// payload header plus the caller-supplied segment size, plus one byte of
// slack matching the C++ source's "payloadMax+1".
func clearParitySegmentLen(segmentSize, dataMsgHeaderLen uint16) int {
	return int(segmentSize) + int(dataMsgHeaderLen) + 1
}

// TxReset resets the block for a new transmission cycle: it marks pending
// the first numData+autoParity symbols (all data, plus a configured prefix
// of auto-generated parity) and unmarks the rest of the parity region. It
// returns false (and touches nothing else) if that pending set is already
// exactly what's installed, so callers can skip scheduling a redundant
// repair timer.
//
// dataMsgHeaderLen is the stream payload header length collaborator
// (spec.md §6's NormDataMsg constant); it is only used to size the stale
// parity buffer clear below.
func (b *Block) TxReset(numData, numParity, autoParity, segmentSize, dataMsgHeaderLen uint16) bool {
	b.repairMask.SetBits(0, int(numData+autoParity))
	b.repairMask.UnsetBits(int(numData+autoParity), int(numParity-autoParity))
	b.repairMask.Xor(b.pendingMask)
	if !b.repairMask.IsSet() {
		return false
	}

	b.repairMask.Clear()
	b.pendingMask.SetBits(0, int(numData+autoParity))
	b.pendingMask.UnsetBits(int(numData+autoParity), int(numParity-autoParity))
	b.parityOffset = int(autoParity)
	b.parityCount = int(numParity)
	b.setFlag(FlagInRepair)

	if !b.ParityReady(int(numData)) {
		clearLen := clearParitySegmentLen(segmentSize, dataMsgHeaderLen)
		for i := int(numData); i < int(numData)+int(numParity) && i < b.size; i++ {
			seg := b.segmentTable[i]
			if seg == nil {
				continue
			}
			n := clearLen
			if n > len(seg) {
				n = len(seg)
			}
			clear(seg[:n])
		}
		b.erasureCount = 0
	}
	return true
}

// TxUpdate applies a received NACK directly to pending_mask during the
// repair holdoff window, when no new repair output should actually be
// emitted yet. nextId/lastId describe the requested segment range.
func (b *Block) TxUpdate(nextId, lastId protocol.SegmentId, numData, numParity, erasureCount uint16) bool {
	return b.applyRequest(b.pendingMask, nextId, lastId, numData, numParity, erasureCount)
}

// HandleSegmentRequest has the same control structure as TxUpdate but
// stages bits into repair_mask instead of pending_mask, accumulating repair
// intentions until ActivateRepairs commits them.
func (b *Block) HandleSegmentRequest(nextId, lastId protocol.SegmentId, numData, numParity, erasureCount uint16) bool {
	return b.applyRequest(b.repairMask, nextId, lastId, numData, numParity, erasureCount)
}

func (b *Block) applyRequest(mask *bitmask.Mask, nextId, lastId protocol.SegmentId, numData, numParity, erasureCount uint16) bool {
	increasedRepair := false
	if nextId < protocol.SegmentId(numData) {
		b.parityOffset = int(numParity)
		b.parityCount = int(numParity)
		for id := nextId; id <= lastId; id++ {
			if !mask.Test(int(id)) {
				mask.Set(int(id))
				increasedRepair = true
			}
		}
		return increasedRepair
	}

	parityAvailable := int(numParity) - b.parityOffset
	if int(erasureCount) <= parityAvailable {
		if int(erasureCount) > b.parityCount {
			mask.SetBits(int(numData)+b.parityOffset+b.parityCount, int(erasureCount)-b.parityCount)
			b.parityCount = int(erasureCount)
			increasedRepair = true
		}
		return increasedRepair
	}

	if b.parityCount < parityAvailable {
		count := parityAvailable - b.parityCount
		mask.SetBits(int(numData)+b.parityOffset+b.parityCount, count)
		b.parityCount = parityAvailable
		nextId += protocol.SegmentId(parityAvailable)
		increasedRepair = true
	}
	for id := nextId; id <= lastId; id++ {
		if !mask.Test(int(id)) {
			mask.Set(int(id))
			increasedRepair = true
		}
	}
	return increasedRepair
}

// ActivateRepairs commits any staged repair bits into pending_mask and
// clears repair_mask, reporting whether a commit happened.
func (b *Block) ActivateRepairs() bool {
	if !b.repairMask.IsSet() {
		return false
	}
	b.pendingMask.Add(b.repairMask)
	b.repairMask.Clear()
	return true
}

// IsRepairPending computes whether this block still requires a NACK and, as
// a documented side effect, leaves repair_mask holding pending_mask XOR the
// set the erasure/parity policy covers: the pending bits not covered, plus
// the covered bits that are not pending. AppendRepairAdv advertises that
// mask.
func (b *Block) IsRepairPending(numData, numParity uint16) bool {
	if b.erasureCount > int(numParity) {
		if numParity > 0 {
			i := int(numParity)
			nextId := 0
			b.pendingMask.GetFirstSet(&nextId)
			for i > 0 {
				i--
				b.repairMask.Set(nextId)
				nextId++
				b.pendingMask.GetNextSet(&nextId)
			}
		} else if b.size > int(numData) {
			b.repairMask.SetBits(int(numData), b.size-int(numData))
		}
	} else {
		b.repairMask.SetBits(0, int(numData))
		b.repairMask.SetBits(int(numData)+b.erasureCount, int(numParity)-b.erasureCount)
	}
	b.repairMask.XCopy(b.pendingMask)
	return b.repairMask.IsSet()
}

// protocol.RepairFormFor and the item/range append helper below are shared between
// AppendRepairRequest and AppendRepairAdv; only the source mask, window,
// and SetForm/Attach ordering differ between the two.
func appendRun(req RepairRequest, objectId protocol.ObjectId, blockId protocol.BlockId, numData uint16, form protocol.RepairForm, firstId, currentId int, runLength int) {
	switch form {
	case protocol.RepairFormItems:
		req.AppendRepairItem(objectId, blockId, numData, protocol.SegmentId(firstId))
		if runLength == 2 {
			req.AppendRepairItem(objectId, blockId, numData, protocol.SegmentId(currentId))
		}
	case protocol.RepairFormRanges:
		req.AppendRepairRange(objectId, blockId, numData, protocol.SegmentId(firstId), objectId, blockId, numData, protocol.SegmentId(currentId))
	}
}

// AppendRepairRequest packs this block's still-missing symbols, within the
// window the erasure/parity policy selects, into msg as a NACK. The window
// mirrors IsRepairPending's policy: when there isn't enough parity to cover
// every erasure, skip the first numParity pending ids (parity will cover
// those) and request explicit repair up to numData+numParity; otherwise
// request only the parity actually needed, numData..numData+erasureCount.
func (b *Block) AppendRepairRequest(msg RepairMessage, numData, numParity uint16, objectId protocol.ObjectId, pendingInfo bool, segmentSize uint16) error {
	var nextId, endId int
	if b.erasureCount > int(numParity) {
		b.pendingMask.GetFirstSet(&nextId)
		i := int(numParity)
		for i > 0 {
			i--
			nextId++
			b.pendingMask.GetNextSet(&nextId)
		}
		endId = int(numData) + int(numParity)
	} else {
		nextId = int(numData)
		b.pendingMask.GetNextSet(&nextId)
		endId = int(numData) + b.erasureCount
	}

	req := msg.NewRepairRequest()
	req.SetFlag(protocol.RepairFlagSegment)
	if pendingInfo {
		req.SetFlag(protocol.RepairFlagInfo)
	}

	prevForm := protocol.RepairFormInvalid
	segmentCount := 0
	firstId := 0
	for nextId < endId {
		currentId := nextId
		nextId++
		if !b.pendingMask.GetNextSet(&nextId) {
			nextId = endId
		}
		if segmentCount == 0 {
			firstId = currentId
		}
		segmentCount++
		if (nextId-currentId) > 1 || nextId >= endId {
			form := protocol.RepairFormFor(segmentCount)
			if form != prevForm {
				if prevForm != protocol.RepairFormInvalid {
					if err := msg.PackRepairRequest(req); err != nil {
						return err
					}
				}
				if err := msg.AttachRepairRequest(req, segmentSize); err != nil {
					return err
				}
				req.SetForm(form)
				prevForm = form
			}
			appendRun(req, objectId, b.id, numData, form, firstId, currentId, segmentCount)
			segmentCount = 0
		}
	}
	if prevForm != protocol.RepairFormInvalid {
		return msg.PackRepairRequest(req)
	}
	return nil
}

// AppendRepairAdv advertises the block's staged repair_mask (populated by a
// prior IsRepairPending call) for NACK suppression. Note the SetForm/Attach
// call order here is the opposite of AppendRepairRequest's — SetForm before
// Attach, rather than after — a literal, deliberately preserved asymmetry
// from the NORM reference implementation (see DESIGN.md).
func (b *Block) AppendRepairAdv(msg RepairMessage, objectId protocol.ObjectId, repairInfo bool, numData, segmentSize uint16) error {
	nextId := 0
	if !b.repairMask.GetFirstSet(&nextId) {
		return nil
	}

	req := msg.NewRepairRequest()
	req.SetFlag(protocol.RepairFlagSegment)
	if repairInfo {
		req.SetFlag(protocol.RepairFlagInfo)
	}

	prevForm := protocol.RepairFormInvalid
	segmentCount := 0
	firstId := 0
	for nextId < b.size {
		currentId := nextId
		nextId++
		if !b.repairMask.GetNextSet(&nextId) {
			nextId = b.size
		}
		if segmentCount == 0 {
			firstId = currentId
		}
		segmentCount++
		if (nextId-currentId) > 1 || nextId >= b.size {
			form := protocol.RepairFormFor(segmentCount)
			if form != prevForm {
				if prevForm != protocol.RepairFormInvalid {
					if err := msg.PackRepairRequest(req); err != nil {
						return err
					}
				}
				req.SetForm(form)
				if err := msg.AttachRepairRequest(req, segmentSize); err != nil {
					return err
				}
				prevForm = form
			}
			appendRun(req, objectId, b.id, numData, form, firstId, currentId, segmentCount)
			segmentCount = 0
		}
	}
	if prevForm != protocol.RepairFormInvalid {
		return msg.PackRepairRequest(req)
	}
	return nil
}
