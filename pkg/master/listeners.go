package master

import (
	"avaneesh/dcp-go/pkg/seq"
	"avaneesh/dcp-go/pkg/types"
)

type entry[F any] struct {
	mode types.OperationMode
	fn   F
}

// listeners holds the registered listeners per PDU kind. Guarded by Master.mu.
type listeners struct {
	acks          []entry[AckListener]
	nacks         []entry[NackListener]
	stateAcks     []entry[StateAckListener]
	errorAcks     []entry[ErrorAckListener]
	logAcks       []entry[LogAckListener]
	stateChanges  []entry[StateChangedListener]
	logs          []entry[LogListener]
	datas         []entry[DataListener]
	parameters    []entry[ParameterListener]
	missedCtl     []entry[MissedControlPduListener]
	missedData    []entry[MissedDataPduListener]
	errors        []entry[ErrorListener]
	configuration []entry[ConfiguredListener]
}

// notify queues call for every entry, to run once mu is released. Async
// entries run on their own goroutine. Callers must hold mu.
func notify[F any](m *Master, entries []entry[F], call func(F)) {
	for _, e := range entries {
		fn := e.fn
		if e.mode == types.Async {
			m.after(func() { go call(fn) })
			continue
		}
		m.after(func() { call(fn) })
	}
}

func (l *listeners) ack(m *Master, dcpID uint8, respSeq uint16) {
	notify(m, l.acks, func(fn AckListener) { fn(dcpID, respSeq) })
}

func (l *listeners) nack(m *Master, dcpID uint8, respSeq uint16, code types.DcpError) {
	notify(m, l.nacks, func(fn NackListener) { fn(dcpID, respSeq, code) })
}

func (l *listeners) stateAck(m *Master, dcpID uint8, respSeq uint16, state types.DcpState) {
	notify(m, l.stateAcks, func(fn StateAckListener) { fn(dcpID, respSeq, state) })
}

func (l *listeners) errorAck(m *Master, dcpID uint8, respSeq uint16, code types.DcpError) {
	notify(m, l.errorAcks, func(fn ErrorAckListener) { fn(dcpID, respSeq, code) })
}

func (l *listeners) logAck(m *Master, dcpID uint8, respSeq uint16, entries []byte) {
	notify(m, l.logAcks, func(fn LogAckListener) { fn(dcpID, respSeq, entries) })
}

func (l *listeners) stateChanged(m *Master, dcpID uint8, state types.DcpState) {
	notify(m, l.stateChanges, func(fn StateChangedListener) { fn(dcpID, state) })
}

func (l *listeners) log(m *Master, dcpID uint8, t types.DcpTime, templateID uint8, args []byte) {
	notify(m, l.logs, func(fn LogListener) { fn(dcpID, t, templateID, args) })
}

func (l *listeners) data(m *Master, dataID uint16, payload []byte) {
	notify(m, l.datas, func(fn DataListener) { fn(dataID, payload) })
}

func (l *listeners) parameter(m *Master, paramID uint16, payload []byte) {
	notify(m, l.parameters, func(fn ParameterListener) { fn(paramID, payload) })
}

func (l *listeners) missedControl(m *Master, dcpID uint8, respSeq uint16, d seq.Delta) {
	notify(m, l.missedCtl, func(fn MissedControlPduListener) { fn(dcpID, respSeq, d) })
}

func (l *listeners) missedDataPdu(m *Master, ch seq.Channel, received uint16, d seq.Delta) {
	notify(m, l.missedData, func(fn MissedDataPduListener) { fn(ch, received, d) })
}

func (l *listeners) errorRaised(m *Master, code types.DcpError) {
	notify(m, l.errors, func(fn ErrorListener) { fn(code) })
}

func (l *listeners) configured(m *Master, dcpID uint8, code types.DcpError) {
	notify(m, l.configuration, func(fn ConfiguredListener) { fn(dcpID, code) })
}

// AddAckListener is notified of every RSP_ack
func (m *Master) AddAckListener(mode types.OperationMode, fn AckListener) {
	m.mu.Lock()
	m.listeners.acks = append(m.listeners.acks, entry[AckListener]{mode, fn})
	m.mu.Unlock()
}

// AddNackListener is notified of every RSP_nack
func (m *Master) AddNackListener(mode types.OperationMode, fn NackListener) {
	m.mu.Lock()
	m.listeners.nacks = append(m.listeners.nacks, entry[NackListener]{mode, fn})
	m.mu.Unlock()
}

// AddStateAckListener is notified of every RSP_state_ack
func (m *Master) AddStateAckListener(mode types.OperationMode, fn StateAckListener) {
	m.mu.Lock()
	m.listeners.stateAcks = append(m.listeners.stateAcks, entry[StateAckListener]{mode, fn})
	m.mu.Unlock()
}

// AddErrorAckListener is notified of every RSP_error_ack
func (m *Master) AddErrorAckListener(mode types.OperationMode, fn ErrorAckListener) {
	m.mu.Lock()
	m.listeners.errorAcks = append(m.listeners.errorAcks, entry[ErrorAckListener]{mode, fn})
	m.mu.Unlock()
}

// AddLogAckListener is notified of every RSP_log_ack
func (m *Master) AddLogAckListener(mode types.OperationMode, fn LogAckListener) {
	m.mu.Lock()
	m.listeners.logAcks = append(m.listeners.logAcks, entry[LogAckListener]{mode, fn})
	m.mu.Unlock()
}

// AddStateChangedListener is notified of every NTF_state_changed
func (m *Master) AddStateChangedListener(mode types.OperationMode, fn StateChangedListener) {
	m.mu.Lock()
	m.listeners.stateChanges = append(m.listeners.stateChanges, entry[StateChangedListener]{mode, fn})
	m.mu.Unlock()
}

// AddLogListener is notified of every NTF_log
func (m *Master) AddLogListener(mode types.OperationMode, fn LogListener) {
	m.mu.Lock()
	m.listeners.logs = append(m.listeners.logs, entry[LogListener]{mode, fn})
	m.mu.Unlock()
}

// AddDataListener is notified of every DAT_input_output addressed to the master
func (m *Master) AddDataListener(mode types.OperationMode, fn DataListener) {
	m.mu.Lock()
	m.listeners.datas = append(m.listeners.datas, entry[DataListener]{mode, fn})
	m.mu.Unlock()
}

// AddParameterListener is notified of every DAT_parameter addressed to the master
func (m *Master) AddParameterListener(mode types.OperationMode, fn ParameterListener) {
	m.mu.Lock()
	m.listeners.parameters = append(m.listeners.parameters, entry[ParameterListener]{mode, fn})
	m.mu.Unlock()
}

// AddMissedControlPduListener is notified when a response does not answer the request after the last answered one
func (m *Master) AddMissedControlPduListener(mode types.OperationMode, fn MissedControlPduListener) {
	m.mu.Lock()
	m.listeners.missedCtl = append(m.listeners.missedCtl, entry[MissedControlPduListener]{mode, fn})
	m.mu.Unlock()
}

// AddMissedDataPduListener is notified when a data or parameter PDU does not directly follow the last one
func (m *Master) AddMissedDataPduListener(mode types.OperationMode, fn MissedDataPduListener) {
	m.mu.Lock()
	m.listeners.missedData = append(m.listeners.missedData, entry[MissedDataPduListener]{mode, fn})
	m.mu.Unlock()
}

// AddErrorListener is notified of transport errors reported by the driver
func (m *Master) AddErrorListener(mode types.OperationMode, fn ErrorListener) {
	m.mu.Lock()
	m.listeners.errors = append(m.listeners.errors, entry[ErrorListener]{mode, fn})
	m.mu.Unlock()
}

// AddConfiguredListener is notified when a configuration burst completes,
// with ErrNone, or fails with the code of the rejected PDU
func (m *Master) AddConfiguredListener(mode types.OperationMode, fn ConfiguredListener) {
	m.mu.Lock()
	m.listeners.configuration = append(m.listeners.configuration, entry[ConfiguredListener]{mode, fn})
	m.mu.Unlock()
}
