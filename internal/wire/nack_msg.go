package wire

import (
	"fmt"

	"github.com/normkit/norm/internal/block"
)

// MaxMessagePayload bounds how much repair-request content a single
// NormNackMsg/NormCmdRepairAdvMsg may carry before PackRepairRequest starts
// refusing further requests, standing in for the path MTU a real endpoint
// would negotiate.
const MaxMessagePayload = 1400

// NormNackMsg is the repair-request (NACK) message a receiver sends a
// sender. It implements block.RepairMessage.
type NormNackMsg struct {
	buf         []byte
	segmentSize uint16
}

// NewNormNackMsg returns an empty NACK message ready to accumulate repair
// requests.
func NewNormNackMsg() *NormNackMsg {
	return &NormNackMsg{}
}

// NewRepairRequest returns a fresh, detached repair request.
func (m *NormNackMsg) NewRepairRequest() block.RepairRequest {
	return &NormRepairRequest{}
}

// AttachRepairRequest resets req for reuse and records segmentSize for the
// MTU budget check PackRepairRequest performs.
func (m *NormNackMsg) AttachRepairRequest(req block.RepairRequest, segmentSize uint16) error {
	rr, ok := req.(*NormRepairRequest)
	if !ok {
		return fmt.Errorf("wire: AttachRepairRequest: unexpected request type %T", req)
	}
	rr.reset()
	m.segmentSize = segmentSize
	return nil
}

// PackRepairRequest finalizes req into the message's wire buffer, rejecting
// the append if it would exceed MaxMessagePayload.
func (m *NormNackMsg) PackRepairRequest(req block.RepairRequest) error {
	rr, ok := req.(*NormRepairRequest)
	if !ok {
		return fmt.Errorf("wire: PackRepairRequest: unexpected request type %T", req)
	}
	packed := rr.appendTo(nil)
	if len(m.buf)+len(packed) > MaxMessagePayload {
		return fmt.Errorf("wire: PackRepairRequest: message payload would exceed %d bytes", MaxMessagePayload)
	}
	m.buf = append(m.buf, packed...)
	return nil
}

// Bytes returns the message's packed wire payload.
func (m *NormNackMsg) Bytes() []byte { return m.buf }

// Reset clears the message for reuse, e.g. when drawn from a sync.Pool.
func (m *NormNackMsg) Reset() {
	m.buf = m.buf[:0]
	m.segmentSize = 0
}
