package wire

import (
	"fmt"

	"github.com/normkit/norm/internal/block"
)

// NormCmdRepairAdvMsg is the repair-advertisement message a node emits to
// describe its pending repair set for NACK suppression. It has the same
// accumulate/pack shape as NormNackMsg but is kept as a distinct wire type
// since senders and receivers populate it under different policies.
type NormCmdRepairAdvMsg struct {
	buf         []byte
	segmentSize uint16
}

// NewNormCmdRepairAdvMsg returns an empty repair advertisement.
func NewNormCmdRepairAdvMsg() *NormCmdRepairAdvMsg {
	return &NormCmdRepairAdvMsg{}
}

func (m *NormCmdRepairAdvMsg) NewRepairRequest() block.RepairRequest {
	return &NormRepairRequest{}
}

func (m *NormCmdRepairAdvMsg) AttachRepairRequest(req block.RepairRequest, segmentSize uint16) error {
	rr, ok := req.(*NormRepairRequest)
	if !ok {
		return fmt.Errorf("wire: AttachRepairRequest: unexpected request type %T", req)
	}
	rr.reset()
	m.segmentSize = segmentSize
	return nil
}

func (m *NormCmdRepairAdvMsg) PackRepairRequest(req block.RepairRequest) error {
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

// Bytes returns the advertisement's packed wire payload.
func (m *NormCmdRepairAdvMsg) Bytes() []byte { return m.buf }

// Reset clears the message for reuse.
func (m *NormCmdRepairAdvMsg) Reset() {
	m.buf = m.buf[:0]
	m.segmentSize = 0
}
