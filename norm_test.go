package norm_test

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/normkit/norm/internal/block"
	"github.com/normkit/norm/internal/fec"
	"github.com/normkit/norm/internal/protocol"
	"github.com/normkit/norm/internal/wire"
)

// fakeRepairMessage is a minimal block.RepairMessage that simply records
// every packed NormRepairRequest, letting the test assert on which forms
// and how many symbols were requested.
type fakeRepairMessage struct {
	segmentSize uint16
	requests    []*wire.NormRepairRequest
}

func (m *fakeRepairMessage) NewRepairRequest() block.RepairRequest {
	return &wire.NormRepairRequest{}
}

func (m *fakeRepairMessage) AttachRepairRequest(req block.RepairRequest, segmentSize uint16) error {
	m.segmentSize = segmentSize
	return nil
}

func (m *fakeRepairMessage) PackRepairRequest(req block.RepairRequest) error {
	m.requests = append(m.requests, req.(*wire.NormRepairRequest))
	return nil
}

var _ = Describe("end-to-end NACK and FEC recovery round trip", func() {
	const numData, numParity = 3, 2

	It("synthesizes a parity-window NACK and recovers missing data via Reed-Solomon", func() {
		pool, err := block.NewSegmentPool(8, 32)
		Expect(err).NotTo(HaveOccurred())

		sender, err := block.NewBlock(numData + numParity)
		Expect(err).NotTo(HaveOccurred())
		sender.SetId(protocol.BlockId(1))

		payloads := [][]byte{
			[]byte("source segment zero....."),
			[]byte("source segment one......"),
			[]byte("source segment two......"),
		}
		for i, p := range payloads {
			seg, ok := pool.Get()
			Expect(ok).To(BeTrue())
			copy(seg, p)
			sender.SetSegment(i, seg)
		}

		scheme, err := fec.NewReedSolomonScheme(numData, numParity)
		Expect(err).NotTo(HaveOccurred())
		codec := fec.NewBlockCodec(scheme, numData, numParity)
		Expect(codec.EncodeBlock(sender, pool)).To(Succeed())

		// Receiver got both parity segments but lost data segments 1 and 2;
		// exactly as many erasures as it has spare parity to cover.
		receiver, err := block.NewBlock(numData + numParity)
		Expect(err).NotTo(HaveOccurred())
		receiver.SetId(protocol.BlockId(1))
		receiver.SetSegment(0, sender.Segment(0))
		receiver.SetSegment(numData, sender.Segment(numData))
		receiver.SetSegment(numData+1, sender.Segment(numData+1))
		receiver.TxUpdate(1, 2, numData, numParity, numParity)
		receiver.TxUpdate(numData, numData+1, numData, numParity, numParity)
		receiver.SetErasureCount(numParity)

		// With erasureCount == numParity, the repair-request policy asks
		// for fresh parity symbols (ids [numData, numData+erasureCount))
		// rather than re-requesting the missing data ids directly, since
		// that much parity alone is already sufficient to recover them.
		nack := &fakeRepairMessage{}
		Expect(receiver.AppendRepairRequest(nack, numData, numParity, protocol.ObjectId(9), false, 32)).To(Succeed())
		Expect(nack.requests).To(HaveLen(1))
		Expect(nack.requests[0].Form()).To(Equal(protocol.RepairFormItems))
		Expect(nack.requests[0].ItemSymbolIds()).To(ConsistOf(protocol.SegmentId(numData), protocol.SegmentId(numData+1)))

		// The sender independently tracks the same missing-symbol state
		// and can synthesize a suppression advertisement for it.
		sender.TxUpdate(1, 2, numData, numParity, numParity)
		sender.TxUpdate(numData, numData+1, numData, numParity, numParity)
		sender.SetErasureCount(numParity)
		Expect(sender.IsRepairPending(numData, numParity)).To(BeTrue())

		adv := &fakeRepairMessage{}
		Expect(sender.AppendRepairAdv(adv, protocol.ObjectId(9), false, numData, 32)).To(Succeed())
		Expect(len(adv.requests)).To(BeNumerically(">=", 1))

		// Reconstruct the missing data at the receiver from what it has.
		Expect(codec.ReconstructBlock(receiver)).To(Succeed())
		Expect(bytes.TrimRight(receiver.Segment(1), "\x00")).To(Equal(payloads[1]))
		Expect(bytes.TrimRight(receiver.Segment(2), "\x00")).To(Equal(payloads[2]))
	})
})
