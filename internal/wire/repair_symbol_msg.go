package wire

import (
	"bytes"
	"io"

	"github.com/quic-go/quic-go/quicvarint"

	"github.com/normkit/norm/internal/protocol"
)

// NormRepairMsg carries one reconstructed or freshly computed parity
// segment's payload, tagged with the block and parity-slot coordinates a
// receiver needs to install it into the right Block slot.
type NormRepairMsg struct {
	BlockId   protocol.BlockId
	SegmentId protocol.SegmentId
	Payload   []byte
}

// ParseNormRepairMsg decodes a NormRepairMsg from r.
func ParseNormRepairMsg(r *bytes.Reader) (*NormRepairMsg, error) {
	blockId, err := quicvarint.Read(r)
	if err != nil {
		return nil, err
	}
	segmentId, err := quicvarint.Read(r)
	if err != nil {
		return nil, err
	}
	payloadLen, err := quicvarint.Read(r)
	if err != nil {
		return nil, err
	}
	if payloadLen > uint64(r.Len()) {
		return nil, io.EOF
	}
	msg := &NormRepairMsg{
		BlockId:   protocol.BlockId(blockId),
		SegmentId: protocol.SegmentId(segmentId),
	}
	if payloadLen != 0 {
		msg.Payload = make([]byte, payloadLen)
		if _, err := io.ReadFull(r, msg.Payload); err != nil {
			return nil, err
		}
	}
	return msg, nil
}

// Append serializes msg onto b.
func (msg *NormRepairMsg) Append(b []byte) []byte {
	b = quicvarint.Append(b, uint64(msg.BlockId))
	b = quicvarint.Append(b, uint64(msg.SegmentId))
	b = quicvarint.Append(b, uint64(len(msg.Payload)))
	b = append(b, msg.Payload...)
	return b
}

// Len returns the serialized size of msg.
func (msg *NormRepairMsg) Len() int {
	return int(quicvarint.Len(uint64(msg.BlockId))) +
		int(quicvarint.Len(uint64(msg.SegmentId))) +
		int(quicvarint.Len(uint64(len(msg.Payload)))) +
		len(msg.Payload)
}
