package block

import (
	"testing"

	"github.com/normkit/norm/internal/protocol"
)

const testHeaderLen = 4

func newTestBlock(t *testing.T, size int) *Block {
	t.Helper()
	b, err := NewBlock(size)
	if err != nil {
		t.Fatalf("NewBlock: %v", err)
	}
	return b
}

func TestTxResetFirstCallInstallsPendingAndReturnsTrue(t *testing.T) {
	b := newTestBlock(t, 6) // numData=4, numParity=2
	changed := b.TxReset(4, 2, 1, 8, testHeaderLen)
	if !changed {
		t.Fatal("first TxReset on a fresh block must report a change")
	}
	for i := 0; i < 5; i++ { // numData + autoParity
		if !b.pendingMask.Test(i) {
			t.Fatalf("expected pending bit %d set", i)
		}
	}
	if b.pendingMask.Test(5) {
		t.Fatal("expected parity slot beyond autoParity to stay clear")
	}
	if !b.HasFlag(FlagInRepair) {
		t.Fatal("expected IN_REPAIR flag set after TxReset commits")
	}
}

func TestTxResetIdempotentSecondCallReturnsFalse(t *testing.T) {
	b := newTestBlock(t, 6)
	if !b.TxReset(4, 2, 1, 8, testHeaderLen) {
		t.Fatal("first TxReset should change state")
	}
	if b.TxReset(4, 2, 1, 8, testHeaderLen) {
		t.Fatal("second TxReset with identical parameters must be a no-op")
	}
}

func TestTxResetZerosStaleParityWhenNotReady(t *testing.T) {
	b := newTestBlock(t, 6)
	stale := make(Segment, 16)
	for i := range stale {
		stale[i] = 0xFF
	}
	b.SetSegment(4, stale)
	b.erasureCount = 3

	b.TxReset(4, 2, 1, 8, testHeaderLen)

	clearLen := clearParitySegmentLen(8, testHeaderLen)
	for i := 0; i < clearLen; i++ {
		if stale[i] != 0 {
			t.Fatalf("expected byte %d of stale parity segment cleared, got %#x", i, stale[i])
		}
	}
	if b.erasureCount != 0 {
		t.Fatalf("expected erasureCount reset to 0, got %d", b.erasureCount)
	}
}

func TestTxResetLeavesParityAloneWhenReady(t *testing.T) {
	b := newTestBlock(t, 6)
	p1 := make(Segment, 16)
	p2 := make(Segment, 16)
	for i := range p1 {
		p1[i] = 0xAA
		p2[i] = 0xBB
	}
	b.SetSegment(4, p1)
	b.SetSegment(5, p2)

	b.TxReset(4, 2, 1, 8, testHeaderLen)

	if p1[0] != 0xAA || p2[0] != 0xBB {
		t.Fatal("TxReset must not clear parity already computed for this cycle")
	}
}

func TestHandleSegmentRequestDataRangeStagesRepairMask(t *testing.T) {
	b := newTestBlock(t, 6)
	changed := b.HandleSegmentRequest(1, 2, 4, 2, 0)
	if !changed {
		t.Fatal("expected repair_mask to grow")
	}
	if !b.repairMask.Test(1) || !b.repairMask.Test(2) {
		t.Fatal("expected repair_mask bits 1 and 2 set")
	}
	if b.pendingMask.Test(1) {
		t.Fatal("HandleSegmentRequest must not touch pending_mask directly")
	}
}

func TestTxUpdateDataRangeStagesPendingMask(t *testing.T) {
	b := newTestBlock(t, 6)
	changed := b.TxUpdate(0, 1, 4, 2, 0)
	if !changed {
		t.Fatal("expected pending_mask to grow")
	}
	if !b.pendingMask.Test(0) || !b.pendingMask.Test(1) {
		t.Fatal("expected pending_mask bits 0 and 1 set")
	}
}

func TestActivateRepairsCommitsAndClears(t *testing.T) {
	b := newTestBlock(t, 6)
	b.HandleSegmentRequest(0, 1, 4, 2, 0)
	if !b.ActivateRepairs() {
		t.Fatal("expected ActivateRepairs to report a commit")
	}
	if !b.pendingMask.Test(0) || !b.pendingMask.Test(1) {
		t.Fatal("expected repair bits committed into pending_mask")
	}
	if b.repairMask.IsSet() {
		t.Fatal("expected repair_mask cleared after commit")
	}
	if b.ActivateRepairs() {
		t.Fatal("second ActivateRepairs with nothing staged must report no commit")
	}
}

func TestIsRepairPendingWithinParityBudget(t *testing.T) {
	b := newTestBlock(t, 6) // numData=4 numParity=2
	b.pendingMask.Set(1)
	b.erasureCount = 1

	pending := b.IsRepairPending(4, 2)
	if !pending {
		t.Fatal("expected repair pending for a missing data symbol within parity budget")
	}
	if b.repairMask.Test(1) {
		t.Fatal("expected the pending data id to be covered by requested parity, not left in repair_mask")
	}
}

func TestIsRepairPendingExceedsParityUsesFirstNPendingIds(t *testing.T) {
	b := newTestBlock(t, 8) // numData=4 numParity=4
	b.pendingMask.Set(0)
	b.pendingMask.Set(1)
	b.pendingMask.Set(2)
	b.erasureCount = 3 // > numParity(2) in this scenario

	pending := b.IsRepairPending(4, 2)
	if !pending {
		t.Fatal("expected repair pending")
	}
	count := 0
	for i := 0; i < b.size; i++ {
		if b.repairMask.Test(i) {
			count++
		}
	}
	// The first numParity=2 pending ids (0, 1) are covered by parity and
	// XORed away, leaving only id 2 for explicit request.
	if count != 1 {
		t.Fatalf("expected exactly 1 pending id left beyond the first numParity=2, got %d", count)
	}
}

// stubRepairRequest and stubRepairMessage let AppendRepairRequest/AppendRepairAdv
// be exercised without a concrete wire type.
type repairItem struct {
	kind                               string // "item" or "range"
	objectId                           protocol.ObjectId
	blockId                            protocol.BlockId
	numData                            uint16
	firstId, lastId                    protocol.SegmentId
}

type stubRepairRequest struct {
	flags RepairRequestFlags
	form  protocol.RepairForm
	items []repairItem
}

type RepairRequestFlags struct {
	segment bool
	info    bool
}

func (r *stubRepairRequest) SetFlag(f protocol.RepairFlag) {
	if f&protocol.RepairFlagSegment != 0 {
		r.flags.segment = true
	}
	if f&protocol.RepairFlagInfo != 0 {
		r.flags.info = true
	}
}

func (r *stubRepairRequest) SetForm(f protocol.RepairForm) { r.form = f }

func (r *stubRepairRequest) AppendRepairItem(objectId protocol.ObjectId, blockId protocol.BlockId, numData uint16, symbolId protocol.SegmentId) {
	r.items = append(r.items, repairItem{kind: "item", objectId: objectId, blockId: blockId, numData: numData, firstId: symbolId, lastId: symbolId})
}

func (r *stubRepairRequest) AppendRepairRange(firstObjectId protocol.ObjectId, firstBlockId protocol.BlockId, firstNumData uint16, firstId protocol.SegmentId, lastObjectId protocol.ObjectId, lastBlockId protocol.BlockId, lastNumData uint16, lastId protocol.SegmentId) {
	r.items = append(r.items, repairItem{kind: "range", objectId: firstObjectId, blockId: firstBlockId, numData: firstNumData, firstId: firstId, lastId: lastId})
}

type stubRepairMessage struct {
	packed []*stubRepairRequest
}

func (m *stubRepairMessage) NewRepairRequest() RepairRequest { return &stubRepairRequest{} }

func (m *stubRepairMessage) AttachRepairRequest(req RepairRequest, segmentSize uint16) error {
	return nil
}

func (m *stubRepairMessage) PackRepairRequest(req RepairRequest) error {
	m.packed = append(m.packed, req.(*stubRepairRequest))
	return nil
}

func TestAppendRepairRequestUsesItemsFormForShortRun(t *testing.T) {
	// numParity=0 and erasureCount>numParity puts AppendRepairRequest on
	// the unrestricted pending-id scan, walking pendingMask directly; with
	// numParity>0 the window instead requests fresh parity ids, exercised
	// separately below.
	b := newTestBlock(t, 6)
	b.pendingMask.Set(1)
	b.pendingMask.Set(2)
	b.erasureCount = 1

	msg := &stubRepairMessage{}
	if err := b.AppendRepairRequest(msg, 4, 0, protocol.ObjectId(7), false, 8); err != nil {
		t.Fatalf("AppendRepairRequest: %v", err)
	}
	if len(msg.packed) != 1 {
		t.Fatalf("expected exactly one packed request, got %d", len(msg.packed))
	}
	if msg.packed[0].form != protocol.RepairFormItems {
		t.Fatalf("expected ITEMS form for a 2-symbol run, got %v", msg.packed[0].form)
	}
}

func TestAppendRepairRequestUsesRangesFormForLongRun(t *testing.T) {
	b := newTestBlock(t, 10)
	b.pendingMask.Set(1)
	b.pendingMask.Set(2)
	b.pendingMask.Set(3)
	b.erasureCount = 1

	msg := &stubRepairMessage{}
	if err := b.AppendRepairRequest(msg, 6, 0, protocol.ObjectId(7), false, 8); err != nil {
		t.Fatalf("AppendRepairRequest: %v", err)
	}
	if len(msg.packed) != 1 {
		t.Fatalf("expected exactly one packed request, got %d", len(msg.packed))
	}
	if msg.packed[0].form != protocol.RepairFormRanges {
		t.Fatalf("expected RANGES form for a 3-symbol run, got %v", msg.packed[0].form)
	}
	got := msg.packed[0].items[0]
	if got.firstId != 1 || got.lastId != 3 {
		t.Fatalf("expected range [1,3], got [%d,%d]", got.firstId, got.lastId)
	}
}

// TestAppendRepairRequestUsesParityWindowWhenErasuresFitBudget mirrors
// spec.md §4.2.7's "otherwise" branch: with erasure_count <= numParity the
// window requests fresh parity ids [numData, numData+erasure_count)
// instead of the missing data ids directly.
func TestAppendRepairRequestUsesParityWindowWhenErasuresFitBudget(t *testing.T) {
	b := newTestBlock(t, 6) // numData=3 numParity=3 (size=6)
	b.pendingMask.Set(1)
	b.pendingMask.Set(2)
	b.pendingMask.SetBits(3, 2) // parity ids 3,4 pending
	b.erasureCount = 2

	msg := &stubRepairMessage{}
	if err := b.AppendRepairRequest(msg, 3, 3, protocol.ObjectId(7), false, 8); err != nil {
		t.Fatalf("AppendRepairRequest: %v", err)
	}
	if len(msg.packed) != 1 {
		t.Fatalf("expected exactly one packed request, got %d", len(msg.packed))
	}
	ids := msg.packed[0].items
	if len(ids) != 2 || ids[0].firstId != 3 || ids[1].firstId != 4 {
		t.Fatalf("expected parity ids {3,4} requested, got %+v", ids)
	}
}

func TestAppendRepairAdvNoOpWhenRepairMaskEmpty(t *testing.T) {
	b := newTestBlock(t, 6)
	msg := &stubRepairMessage{}
	if err := b.AppendRepairAdv(msg, protocol.ObjectId(1), false, 4, 8); err != nil {
		t.Fatalf("AppendRepairAdv: %v", err)
	}
	if len(msg.packed) != 0 {
		t.Fatal("expected no packed requests when repair_mask is empty")
	}
}

func TestAppendRepairAdvPacksStagedRepairMask(t *testing.T) {
	b := newTestBlock(t, 6)
	b.repairMask.Set(0)
	b.repairMask.Set(1)

	msg := &stubRepairMessage{}
	if err := b.AppendRepairAdv(msg, protocol.ObjectId(1), true, 4, 8); err != nil {
		t.Fatalf("AppendRepairAdv: %v", err)
	}
	if len(msg.packed) != 1 {
		t.Fatalf("expected exactly one packed advertisement, got %d", len(msg.packed))
	}
	if !msg.packed[0].flags.info {
		t.Fatal("expected INFO flag set when repairInfo is requested")
	}
}

func TestEmptyToPoolReturnsAllSegments(t *testing.T) {
	b := newTestBlock(t, 4)
	pool, err := NewSegmentPool(4, 8)
	if err != nil {
		t.Fatalf("NewSegmentPool: %v", err)
	}
	for i := 0; i < 4; i++ {
		seg, ok := pool.Get()
		if !ok {
			t.Fatal("Get should succeed")
		}
		b.SetSegment(i, seg)
	}
	if b.IsEmpty() {
		t.Fatal("block with segments installed must not be empty")
	}
	b.EmptyToPool(pool)
	if !b.IsEmpty() {
		t.Fatal("expected block empty after EmptyToPool")
	}
	if pool.Count() != 4 {
		t.Fatalf("expected all 4 segments returned to pool, got %d", pool.Count())
	}
}
