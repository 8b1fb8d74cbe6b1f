package wire

import "sync"

var nackMsgPool sync.Pool

func init() {
	nackMsgPool.New = func() interface{} {
		return &NormNackMsg{buf: make([]byte, 0, MaxMessagePayload)}
	}
}

// GetNormNackMsg returns a reset NormNackMsg drawn from a shared pool,
// avoiding a fresh buffer allocation per repair cycle.
func GetNormNackMsg() *NormNackMsg {
	m := nackMsgPool.Get().(*NormNackMsg)
	m.Reset()
	return m
}

// PutNormNackMsg returns m to the pool once its caller is done with it.
func PutNormNackMsg(m *NormNackMsg) {
	nackMsgPool.Put(m)
}

var repairAdvMsgPool sync.Pool

func init() {
	repairAdvMsgPool.New = func() interface{} {
		return &NormCmdRepairAdvMsg{buf: make([]byte, 0, MaxMessagePayload)}
	}
}

// GetNormCmdRepairAdvMsg returns a reset NormCmdRepairAdvMsg drawn from a
// shared pool.
func GetNormCmdRepairAdvMsg() *NormCmdRepairAdvMsg {
	m := repairAdvMsgPool.Get().(*NormCmdRepairAdvMsg)
	m.Reset()
	return m
}

// PutNormCmdRepairAdvMsg returns m to the pool once its caller is done with it.
func PutNormCmdRepairAdvMsg(m *NormCmdRepairAdvMsg) {
	repairAdvMsgPool.Put(m)
}
