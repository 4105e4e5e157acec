package slave

import (
	"avaneesh/dcp-go/pkg/seq"
	"avaneesh/dcp-go/pkg/types"
)

type (
	missedControlEntry struct {
		mode types.OperationMode
		fn   MissedControlPduListener
	}
	missedDataEntry struct {
		mode types.OperationMode
		fn   MissedDataPduListener
	}
	heartbeatEntry struct {
		mode types.OperationMode
		fn   HeartbeatTimeoutListener
	}
	stateChangedEntry struct {
		mode types.OperationMode
		fn   StateChangedListener
	}
	errorEntry struct {
		mode types.OperationMode
		fn   ErrorListener
	}
)

// listeners holds the registered notification listeners. Guarded by Slave.mu.
type listeners struct {
	missedCtl    []missedControlEntry
	missedData   []missedDataEntry
	hbTimeout    []heartbeatEntry
	stateChanges []stateChangedEntry
	errors       []errorEntry
}

// invoke runs fn after mu is released, inline for Sync or on a new goroutine for Async
func invoke(s *Slave, mode types.OperationMode, fn func()) {
	if mode == types.Async {
		s.after(func() { go fn() })
		return
	}
	s.after(fn)
}

func (l *listeners) missedControl(s *Slave, dcpID uint8, received uint16, d seq.Delta) {
	for _, e := range l.missedCtl {
		fn := e.fn
		invoke(s, e.mode, func() { fn(dcpID, received, d) })
	}
}

func (l *listeners) missedDataPdu(s *Slave, ch seq.Channel, received uint16, d seq.Delta) {
	for _, e := range l.missedData {
		fn := e.fn
		invoke(s, e.mode, func() { fn(ch, received, d) })
	}
}

func (l *listeners) heartbeatTimeout(s *Slave) {
	for _, e := range l.hbTimeout {
		invoke(s, e.mode, e.fn)
	}
}

func (l *listeners) stateChanged(s *Slave, from, to types.DcpState) {
	for _, e := range l.stateChanges {
		fn := e.fn
		invoke(s, e.mode, func() { fn(from, to) })
	}
}

func (l *listeners) errorRaised(s *Slave, code types.DcpError) {
	for _, e := range l.errors {
		fn := e.fn
		invoke(s, e.mode, func() { fn(code) })
	}
}

// AddMissedControlPduListener is notified when a control PDU does not directly follow the last one
func (s *Slave) AddMissedControlPduListener(mode types.OperationMode, fn MissedControlPduListener) {
	s.mu.Lock()
	s.listeners.missedCtl = append(s.listeners.missedCtl, missedControlEntry{mode, fn})
	s.mu.Unlock()
}

// AddMissedDataPduListener is notified when a data or parameter PDU does not directly follow the last one
func (s *Slave) AddMissedDataPduListener(mode types.OperationMode, fn MissedDataPduListener) {
	s.mu.Lock()
	s.listeners.missedData = append(s.listeners.missedData, missedDataEntry{mode, fn})
	s.mu.Unlock()
}

// AddHeartbeatTimeoutListener is notified when no INF_state arrived within the heartbeat interval
func (s *Slave) AddHeartbeatTimeoutListener(mode types.OperationMode, fn HeartbeatTimeoutListener) {
	s.mu.Lock()
	s.listeners.hbTimeout = append(s.listeners.hbTimeout, heartbeatEntry{mode, fn})
	s.mu.Unlock()
}

// AddStateChangedListener is notified after every transition
func (s *Slave) AddStateChangedListener(mode types.OperationMode, fn StateChangedListener) {
	s.mu.Lock()
	s.listeners.stateChanges = append(s.listeners.stateChanges, stateChangedEntry{mode, fn})
	s.mu.Unlock()
}

// AddErrorListener is notified of transport errors and of every move to ERROR_HANDLING
func (s *Slave) AddErrorListener(mode types.OperationMode, fn ErrorListener) {
	s.mu.Lock()
	s.listeners.errors = append(s.listeners.errors, errorEntry{mode, fn})
	s.mu.Unlock()
}
