package wire

import (
	"bytes"
	"io"

	"github.com/quic-go/quic-go/quicvarint"

	"github.com/normkit/norm/internal/protocol"
)

// NormDataMsgHeaderLen is a nominal header length for NormDataMsg: a flag
// byte, 4 bytes each for the object and block ids, and 2 bytes each for the
// segment id and the payload length. The encoded header is varint-coded, so
// its real length varies with the field values. Block.TxReset uses this
// constant to size how much of a stale parity segment's leading bytes need
// zeroing before recomputation.
const NormDataMsgHeaderLen = 1 + 4 + 4 + 2 + 2

// NormDataMsg carries one source or parity segment's payload on the wire,
// tagged with the object/block/segment coordinates a receiver needs to
// place it into the right Block slot.
type NormDataMsg struct {
	Flag      byte
	ObjectId  protocol.ObjectId
	BlockId   protocol.BlockId
	SegmentId protocol.SegmentId
	Payload   []byte
}

// ParseNormDataMsg decodes a NormDataMsg from r.
func ParseNormDataMsg(r *bytes.Reader) (*NormDataMsg, error) {
	flag, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	objectId, err := quicvarint.Read(r)
	if err != nil {
		return nil, err
	}
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
	msg := &NormDataMsg{
		Flag:      flag,
		ObjectId:  protocol.ObjectId(objectId),
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
func (msg *NormDataMsg) Append(b []byte) []byte {
	b = append(b, msg.Flag)
	b = quicvarint.Append(b, uint64(msg.ObjectId))
	b = quicvarint.Append(b, uint64(msg.BlockId))
	b = quicvarint.Append(b, uint64(msg.SegmentId))
	b = quicvarint.Append(b, uint64(len(msg.Payload)))
	b = append(b, msg.Payload...)
	return b
}

// Len returns the serialized size of msg.
func (msg *NormDataMsg) Len() int {
	return 1 +
		int(quicvarint.Len(uint64(msg.ObjectId))) +
		int(quicvarint.Len(uint64(msg.BlockId))) +
		int(quicvarint.Len(uint64(msg.SegmentId))) +
		int(quicvarint.Len(uint64(len(msg.Payload)))) +
		len(msg.Payload)
}
