package master

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"avaneesh/dcp-go/pkg/channel"
	"avaneesh/dcp-go/pkg/internal/logger"
	"avaneesh/dcp-go/pkg/pdu"
	"avaneesh/dcp-go/pkg/seq"
	"avaneesh/dcp-go/pkg/types"
)

var (
	ErrNoDriver        = errors.New("master: no driver")
	ErrUnknownSlave    = errors.New("master: unknown slave")
	ErrSlaveExists     = errors.New("master: slave already added")
	ErrBurstInProgress = errors.New("master: configuration burst in progress")
	ErrNotConfigPdu    = errors.New("master: not a CFG PDU")
)

// Master drives the slaves added to it through the DCP state machine.
// Responses and notifications are matched to per-slave sessions and
// surfaced through listeners.
type Master struct {
	config  MasterConfig
	driver  channel.Driver
	logger  logger.Logger
	tracker *seq.Tracker

	// txMu keeps wire order equal to pdu_seq_id order
	txMu sync.Mutex

	mu        sync.Mutex
	pending   []func()
	sessions  map[uint8]*session
	listeners listeners

	ctx     context.Context
	cancel  context.CancelFunc
	started atomic.Bool
}

// New creates a new master on drv
func New(config MasterConfig, drv channel.Driver, log logger.Logger) (*Master, error) {
	if drv == nil {
		return nil, ErrNoDriver
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Master{
		config:   config,
		driver:   drv,
		logger:   log,
		tracker:  seq.NewTracker(),
		sessions: make(map[uint8]*session),
		ctx:      ctx,
		cancel:   cancel,
	}
	drv.SetReceiver(m)

	m.logger.Info("Master %s created", config.ID)
	return m, nil
}

// Start starts receiving responses
func (m *Master) Start() error {
	if m.started.Swap(true) {
		return nil
	}
	if err := m.driver.StartReceiving(); err != nil {
		m.started.Store(false)
		return fmt.Errorf("master %s: %w", m.config.ID, err)
	}
	m.logger.Info("Master %s started", m.config.ID)
	return nil
}

// Stop stops every heartbeat sender and stops receiving
func (m *Master) Stop() error {
	if !m.started.Swap(false) {
		return nil
	}
	m.mu.Lock()
	var beats []*heartbeat
	for _, sess := range m.sessions {
		if sess.hb != nil {
			beats = append(beats, sess.hb)
			sess.hb = nil
		}
	}
	m.mu.Unlock()
	for _, hb := range beats {
		hb.stop()
	}

	err := m.driver.StopReceiving()
	m.cancel()
	m.logger.Info("Master %s stopped", m.config.ID)
	return err
}

// AddSlave makes dcpID known to the master and tells the driver where it lives
func (m *Master) AddSlave(dcpID uint8, addr pdu.NetworkAddress) error {
	m.mu.Lock()
	if _, ok := m.sessions[dcpID]; ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrSlaveExists, dcpID)
	}
	m.sessions[dcpID] = newSession(dcpID)
	m.mu.Unlock()

	m.driver.SetSlaveNetworkInformation(dcpID, addr)
	if err := m.driver.ConnectToSlave(dcpID); err != nil {
		m.mu.Lock()
		delete(m.sessions, dcpID)
		m.mu.Unlock()
		return fmt.Errorf("master %s: connect to slave %d: %w", m.config.ID, dcpID, err)
	}
	m.logger.Info("Master %s: slave %d added at %s", m.config.ID, dcpID, addr)
	return nil
}

// RemoveSlave stops the heartbeat of dcpID and forgets it
func (m *Master) RemoveSlave(dcpID uint8) error {
	m.mu.Lock()
	sess, ok := m.sessions[dcpID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrUnknownSlave, dcpID)
	}
	delete(m.sessions, dcpID)
	hb := sess.hb
	sess.hb = nil
	m.mu.Unlock()

	if hb != nil {
		hb.stop()
	}
	m.tracker.ResetInbound(seq.ControlChannel(dcpID))
	return m.driver.DisconnectFromSlave(dcpID)
}

// SlaveState returns the last state dcpID reported, and whether any was reported
func (m *Master) SlaveState(dcpID uint8) (types.DcpState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[dcpID]
	if !ok || !sess.stateKnown {
		return 0, false
	}
	return sess.state, true
}

// Registered reports whether dcpID acknowledged STC_register and has not deregistered since
func (m *Master) Registered(dcpID uint8) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[dcpID]
	return ok && sess.registered
}

// Receive handles one PDU delivered by the driver
func (m *Master) Receive(p pdu.PDU) {
	switch v := p.(type) {
	case *pdu.DatInputOutput:
		m.handleData(seq.DataChannel(v.DataID), v.SeqID, func() {
			m.listeners.data(m, v.DataID, v.Payload)
		})
		return
	case *pdu.DatParameter:
		m.handleData(seq.ParamChannel(v.ParamID), v.SeqID, func() {
			m.listeners.parameter(m, v.ParamID, v.Payload)
		})
		return
	}

	sender, ok := pdu.Sender(p)
	if !ok {
		m.logger.Debug("Master %s: ignoring %s", m.config.ID, p.Type())
		return
	}

	m.lock()
	defer m.unlock()

	sess, ok := m.sessions[sender]
	if !ok {
		m.logger.Debug("Master %s: %s from unknown slave %d", m.config.ID, p.Type(), sender)
		return
	}

	if respSeq, _, isResponse := pdu.ResponseHeader(p); isResponse {
		m.checkResponseSequence(sess, respSeq)
		m.handleResponse(sess, p, respSeq)
		return
	}

	switch v := p.(type) {
	case *pdu.NtfStateChanged:
		m.observeState(sess, v.State)
		m.listeners.stateChanged(m, sender, v.State)
	case *pdu.NtfLog:
		m.listeners.log(m, sender, v.Time, v.TemplateID, v.Args)
	}
}

// ReportError is called by the driver on transport faults
func (m *Master) ReportError(code types.DcpError) {
	m.logger.Warn("Master %s: transport error %s", m.config.ID, code)
	m.lock()
	m.listeners.errorRaised(m, code)
	m.unlock()
}

// checkResponseSequence compares resp_seq_id against the control channel of
// sess. The responses to STC_register and CFG_clear reseed the baseline.
// Callers must hold mu.
func (m *Master) checkResponseSequence(sess *session, respSeq uint16) {
	ch := seq.ControlChannel(sess.dcpID)
	switch {
	case sess.registering && respSeq == sess.lastRegisterSeq:
		m.tracker.Resync(ch, respSeq)
		return
	case sess.clearing && respSeq == sess.lastClearSeq:
		m.tracker.Resync(ch, respSeq)
		return
	}
	if d := m.tracker.CheckInbound(ch, respSeq); !d.InOrder() {
		m.logger.Warn("Master %s: slave %d response %d out of order (delta %d)", m.config.ID, sess.dcpID, respSeq, d)
		m.listeners.missedControl(m, sess.dcpID, respSeq, d)
	}
}

// handleResponse updates the session for the response to request respSeq
// and notifies listeners. Callers must hold mu.
func (m *Master) handleResponse(sess *session, p pdu.PDU, respSeq uint16) {
	req, known := sess.requests[respSeq]
	delete(sess.requests, respSeq)
	if !known {
		m.logger.Debug("Master %s: slave %d answered unknown request %d", m.config.ID, sess.dcpID, respSeq)
	}

	switch v := p.(type) {
	case *pdu.RspAck:
		m.acknowledged(sess, req, respSeq)
		m.listeners.ack(m, sess.dcpID, respSeq)
	case *pdu.RspNack:
		m.logger.Warn("Master %s: slave %d rejected %s: %s", m.config.ID, sess.dcpID, req, v.ErrorCode)
		m.rejected(sess, req, respSeq, v.ErrorCode)
		m.listeners.nack(m, sess.dcpID, respSeq, v.ErrorCode)
	case *pdu.RspStateAck:
		m.observeState(sess, v.State)
		m.listeners.stateAck(m, sess.dcpID, respSeq, v.State)
	case *pdu.RspErrorAck:
		m.listeners.errorAck(m, sess.dcpID, respSeq, v.ErrorCode)
	case *pdu.RspLogAck:
		m.listeners.logAck(m, sess.dcpID, respSeq, v.Entries)
	}
}

// acknowledged applies the effect of an acknowledged request. Callers must hold mu.
func (m *Master) acknowledged(sess *session, req types.PduType, respSeq uint16) {
	switch {
	case sess.registering && respSeq == sess.lastRegisterSeq:
		sess.registering = false
		sess.registered = true
		sess.setState(types.StateConfiguration)
		m.logger.Info("Master %s: slave %d registered", m.config.ID, sess.dcpID)
	case sess.clearing && respSeq == sess.lastClearSeq:
		sess.clearing = false
		m.tracker.ResetKind(seq.Data)
		m.tracker.ResetKind(seq.Param)
	case req == types.PduStcDeregister:
		sess.registered = false
		sess.burst = nil
		sess.setState(types.StateAlive)
		m.tracker.ResetInbound(seq.ControlChannel(sess.dcpID))
	}
	if sess.burst != nil {
		m.burstAcked(sess, respSeq)
	}
}

// rejected applies the effect of a rejected request. Callers must hold mu.
func (m *Master) rejected(sess *session, req types.PduType, respSeq uint16, code types.DcpError) {
	switch {
	case sess.registering && respSeq == sess.lastRegisterSeq:
		sess.registering = false
	case sess.clearing && respSeq == sess.lastClearSeq:
		sess.clearing = false
	}
	if sess.burst != nil {
		m.burstRejected(sess, respSeq, code)
	}
}

// observeState records a state reported by the slave. Callers must hold mu.
func (m *Master) observeState(sess *session, state types.DcpState) {
	sess.setState(state)
	if sess.burst != nil && sess.burst.waitPrepared && state == types.StatePrepared {
		sess.burst.waitPrepared = false
		m.sendConfigure(sess, false)
	}
}

// handleData checks the sequence of a data or parameter PDU and runs
// deliver unless the PDU is older than the last one seen
func (m *Master) handleData(ch seq.Channel, seqID uint16, deliver func()) {
	d := m.tracker.CheckInbound(ch, seqID)
	m.lock()
	defer m.unlock()
	if !d.InOrder() {
		m.logger.Debug("Master %s: %s pdu %d missed %d", m.config.ID, ch, seqID, d.Lost())
		m.listeners.missedDataPdu(m, ch, seqID, d)
		if d.Stale() {
			return
		}
	}
	deliver()
}

// lock acquires mu
func (m *Master) lock() { m.mu.Lock() }

// unlock releases mu and runs the work queued while it was held, in order
func (m *Master) unlock() {
	work := m.pending
	m.pending = nil
	m.mu.Unlock()
	for _, fn := range work {
		fn()
	}
}

// after queues fn to run once mu is released. Callers must hold mu.
func (m *Master) after(fn func()) {
	m.pending = append(m.pending, fn)
}

// String returns a summary for logging
func (m *Master) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fmt.Sprintf("Master{ID: %s, Slaves: %d}", m.config.ID, len(m.sessions))
}
