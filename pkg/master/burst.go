package master

import (
	"fmt"

	"avaneesh/dcp-go/pkg/pdu"
	"avaneesh/dcp-go/pkg/types"
)

// burst tracks a configuration burst: CFG_* PDUs and STC_prepare sent back
// to back, completed once every one of them was acknowledged
type burst struct {
	// open while the burst PDUs are being sent
	open bool

	outstanding map[uint16]struct{}
	numOfCmd    int
	acked       int

	prepareSeq   uint16
	prepareSent  bool
	prepareAcked bool

	configuring   bool
	configureSeq  uint16
	configureSent bool
	// STC_configure waits for the slave to report PREPARED
	waitPrepared bool
}

func (b *burst) track(t types.PduType, seqID uint16) {
	switch {
	case t == types.PduStcConfigure:
		b.configureSeq = seqID
		b.configureSent = true
	case !b.open:
	case t == types.PduStcPrepare:
		b.prepareSeq = seqID
		b.prepareSent = true
	default:
		b.outstanding[seqID] = struct{}{}
	}
}

func (b *burst) owns(seqID uint16) bool {
	if _, ok := b.outstanding[seqID]; ok {
		return true
	}
	return (b.prepareSent && seqID == b.prepareSeq) || (b.configureSent && seqID == b.configureSeq)
}

// complete reports whether every CFG_* PDU and STC_prepare were acknowledged
func (b *burst) complete() bool {
	return b.acked == b.numOfCmd && b.prepareAcked
}

// ConfigureSlave sends cfgs to slave dcpID followed by STC_prepare without
// waiting for responses. Acknowledgments are counted; once all arrived the
// master sends STC_configure when AutoConfigure is set. The count covers the
// STC_prepare ack too: with 7 cfgs, STC_configure follows the 8th RSP_ack,
// since a slave still in CONFIGURATION would reject it. Listeners added with
// AddConfiguredListener learn the outcome.
func (m *Master) ConfigureSlave(dcpID uint8, cfgs []pdu.PDU) error {
	for _, p := range cfgs {
		if !p.Type().IsCfg() {
			return fmt.Errorf("%w: %s", ErrNotConfigPdu, p.Type())
		}
	}

	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	sess, ok := m.sessions[dcpID]
	switch {
	case !ok:
		m.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrUnknownSlave, dcpID)
	case sess.burst != nil:
		m.mu.Unlock()
		return fmt.Errorf("%w: slave %d", ErrBurstInProgress, dcpID)
	}
	b := &burst{
		open:        true,
		outstanding: make(map[uint16]struct{}, len(cfgs)),
		numOfCmd:    len(cfgs),
	}
	sess.burst = b
	m.mu.Unlock()

	fail := func(err error) error {
		m.mu.Lock()
		if sess.burst == b {
			sess.burst = nil
		}
		m.mu.Unlock()
		return err
	}

	for _, p := range cfgs {
		if _, err := m.sendControlLocked(dcpID, p); err != nil {
			return fail(err)
		}
	}
	if _, err := m.sendControlLocked(dcpID, &pdu.StcPrepare{State: types.StateConfiguration}); err != nil {
		return fail(err)
	}

	m.mu.Lock()
	b.open = false
	m.mu.Unlock()

	m.logger.Info("Master %s: configuration burst of %d PDUs sent to slave %d", m.config.ID, len(cfgs), dcpID)
	return nil
}

// burstAcked counts an acknowledgment of the burst of sess. Callers must hold mu.
func (m *Master) burstAcked(sess *session, respSeq uint16) {
	b := sess.burst
	switch {
	case b.configureSent && respSeq == b.configureSeq:
		sess.burst = nil
		m.logger.Info("Master %s: slave %d configuring", m.config.ID, sess.dcpID)
		m.listeners.configured(m, sess.dcpID, types.ErrNone)
		return
	case b.prepareSent && respSeq == b.prepareSeq:
		b.prepareAcked = true
	default:
		if _, ok := b.outstanding[respSeq]; !ok {
			return
		}
		delete(b.outstanding, respSeq)
		b.acked++
	}

	if !b.complete() || b.configuring {
		return
	}
	m.logger.Debug("Master %s: slave %d acknowledged %d/%d configuration PDUs", m.config.ID, sess.dcpID, b.acked, b.numOfCmd)
	if !m.config.AutoConfigure {
		sess.burst = nil
		m.listeners.configured(m, sess.dcpID, types.ErrNone)
		return
	}
	m.sendConfigure(sess, false)
}

// burstRejected ends the burst of sess on a nack of one of its PDUs.
// STC_configure rejected while the slave is still preparing is sent again
// once it reports PREPARED. Callers must hold mu.
func (m *Master) burstRejected(sess *session, respSeq uint16, code types.DcpError) {
	b := sess.burst
	if !b.owns(respSeq) {
		return
	}
	if b.configureSent && respSeq == b.configureSeq && code == types.ErrProtocolStateTransitionInProgress {
		b.configuring = false
		b.configureSent = false
		m.sendConfigure(sess, true)
		return
	}
	sess.burst = nil
	m.logger.Warn("Master %s: configuration of slave %d failed: %s", m.config.ID, sess.dcpID, code)
	m.listeners.configured(m, sess.dcpID, code)
}

// sendConfigure queues STC_configure for sess. On retry it waits until the
// slave reported PREPARED. Callers must hold mu.
func (m *Master) sendConfigure(sess *session, retry bool) {
	b := sess.burst
	if (retry && sess.state != types.StatePrepared) || (sess.stateKnown && sess.state == types.StatePreparing) {
		b.waitPrepared = true
		m.logger.Debug("Master %s: slave %d still preparing, STC_configure deferred", m.config.ID, sess.dcpID)
		return
	}
	b.configuring = true
	dcpID := sess.dcpID
	m.after(func() {
		if _, err := m.Configure(dcpID); err != nil {
			m.logger.Warn("Master %s: %v", m.config.ID, err)
			m.lock()
			if s, ok := m.sessions[dcpID]; ok && s.burst == b {
				s.burst = nil
			}
			m.unlock()
		}
	})
}
