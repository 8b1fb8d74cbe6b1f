package block

import (
	"reflect"
	"testing"

	"go.uber.org/mock/gomock"

	"github.com/normkit/norm/internal/protocol"
)

// MockRepairMessage is a hand-written gomock mock of the RepairMessage
// collaborator interface, in the same style as the teacher's generated
// MockStreamSender: it lets a test assert exactly how many times a block
// attaches and packs a repair request without standing up a real wire
// message buffer.
type MockRepairMessage struct {
	ctrl     *gomock.Controller
	recorder *MockRepairMessageMockRecorder
}

type MockRepairMessageMockRecorder struct {
	mock *MockRepairMessage
}

func NewMockRepairMessage(ctrl *gomock.Controller) *MockRepairMessage {
	m := &MockRepairMessage{ctrl: ctrl}
	m.recorder = &MockRepairMessageMockRecorder{m}
	return m
}

func (m *MockRepairMessage) EXPECT() *MockRepairMessageMockRecorder {
	return m.recorder
}

func (m *MockRepairMessage) NewRepairRequest() RepairRequest {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "NewRepairRequest")
	ret0, _ := ret[0].(RepairRequest)
	return ret0
}

func (mr *MockRepairMessageMockRecorder) NewRepairRequest() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "NewRepairRequest", reflect.TypeOf((*MockRepairMessage)(nil).NewRepairRequest))
}

func (m *MockRepairMessage) AttachRepairRequest(req RepairRequest, segmentSize uint16) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "AttachRepairRequest", req, segmentSize)
	ret0, _ := ret[0].(error)
	return ret0
}

func (mr *MockRepairMessageMockRecorder) AttachRepairRequest(req, segmentSize interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "AttachRepairRequest", reflect.TypeOf((*MockRepairMessage)(nil).AttachRepairRequest), req, segmentSize)
}

func (m *MockRepairMessage) PackRepairRequest(req RepairRequest) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "PackRepairRequest", req)
	ret0, _ := ret[0].(error)
	return ret0
}

func (mr *MockRepairMessageMockRecorder) PackRepairRequest(req interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "PackRepairRequest", reflect.TypeOf((*MockRepairMessage)(nil).PackRepairRequest), req)
}

// TestAppendRepairRequestAttachesAndPacksExactlyOnceForASingleRun drives
// AppendRepairRequest against a mocked RepairMessage to assert the
// attach/pack call counts directly, rather than inferring them from the
// packed request's contents the way the plain-testing cases in
// block_test.go do.
func TestAppendRepairRequestAttachesAndPacksExactlyOnceForASingleRun(t *testing.T) {
	ctrl := gomock.NewController(t)
	msg := NewMockRepairMessage(ctrl)

	b := newTestBlock(t, 4)
	b.pendingMask.Set(1)
	b.pendingMask.Set(2)
	b.erasureCount = 1

	req := &stubRepairRequest{}
	msg.EXPECT().NewRepairRequest().Return(req)
	msg.EXPECT().AttachRepairRequest(req, uint16(8)).Return(nil).Times(1)
	msg.EXPECT().PackRepairRequest(req).Return(nil).Times(1)

	if err := b.AppendRepairRequest(msg, 4, 0, protocol.ObjectId(7), false, 8); err != nil {
		t.Fatalf("AppendRepairRequest: %v", err)
	}
	if req.form != protocol.RepairFormItems {
		t.Fatalf("expected ITEMS form, got %v", req.form)
	}
}
