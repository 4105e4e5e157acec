package slave

import (
	"avaneesh/dcp-go/pkg/pdu"
	"avaneesh/dcp-go/pkg/seq"
	"avaneesh/dcp-go/pkg/types"
	"avaneesh/dcp-go/pkg/value"
)

// maxStashedInputs bounds the data PDUs kept while a step holds the input gate
const maxStashedInputs = 64

// target is one position of a received data or parameter PDU
type target struct {
	vr     uint64
	mv     *value.MultiDimValue
	source types.DataType
}

// pendingInput is a received payload waiting for the input gate
type pendingInput struct {
	ch      seq.Channel
	targets []target
	payload []byte
}

// inInitialization returns true for the states of the initialization superstate
func inInitialization(state types.DcpState) bool {
	switch state {
	case types.StateConfigured, types.StateInitializing, types.StateInitialized, types.StateSendingI:
		return true
	default:
		return false
	}
}

// acceptsInputs reports whether data with scope is applied in state
func acceptsInputs(scope types.Scope, state types.DcpState) bool {
	switch {
	case inInitialization(state):
		return scope.InInitialization()
	case state.IsRunPhase():
		return scope.InRun()
	default:
		return false
	}
}

func (s *Slave) handleData(p *pdu.DatInputOutput) {
	s.lock()
	positions, ok := s.cfg.inputs[p.DataID]
	scope, hasScope := s.cfg.scopes[p.DataID]
	if !hasScope {
		scope = types.ScopeInitRunNRT
	}
	if !ok || !acceptsInputs(scope, s.state) {
		s.logger.Debug("Slave %s: data id %d not accepted in %s", s.config.ID, p.DataID, s.state)
		s.unlock()
		return
	}
	ch := seq.DataChannel(p.DataID)
	s.checkDataSequence(ch, p.SeqID)
	in := pendingInput{ch: ch, targets: s.targetsFor(positions), payload: p.Payload}
	s.unlock()

	s.apply(in)
}

func (s *Slave) handleParameter(p *pdu.DatParameter) {
	s.lock()
	positions, ok := s.cfg.tunables[p.ParamID]
	if !ok || !(inInitialization(s.state) || s.state.IsRunPhase()) {
		s.logger.Debug("Slave %s: param id %d not accepted in %s", s.config.ID, p.ParamID, s.state)
		s.unlock()
		return
	}
	ch := seq.ParamChannel(p.ParamID)
	s.checkDataSequence(ch, p.SeqID)
	in := pendingInput{ch: ch, targets: s.targetsFor(positions), payload: p.Payload}
	s.unlock()

	s.apply(in)
}

// checkDataSequence reports gaps on a data or param channel. The PDU is
// applied regardless. Callers must hold mu.
func (s *Slave) checkDataSequence(ch seq.Channel, received uint16) {
	d := s.tracker.CheckInbound(ch, received)
	if !d.Missed() {
		return
	}
	s.logger.Debug("Slave %s: %s pdu_seq_id %d out of order (%d lost)", s.config.ID, ch, received, d.Lost())
	s.listeners.missedDataPdu(s, ch, received, d)
}

// targetsFor resolves positions in order. Callers must hold mu.
func (s *Slave) targetsFor(positions map[uint16]mapping) []target {
	targets := make([]target, 0, len(positions))
	for pos := 0; pos < len(positions); pos++ {
		m, ok := positions[uint16(pos)]
		if !ok {
			break
		}
		targets = append(targets, target{vr: m.vr, mv: s.values[m.vr], source: m.source})
	}
	return targets
}

// apply writes in once the input gate is free. While a step holds the
// gate the payload is stashed and applied when the step releases it.
func (s *Slave) apply(in pendingInput) {
	if !s.inGate.TryAcquire(1) {
		s.mu.Lock()
		if len(s.stash) >= maxStashedInputs {
			s.stash = s.stash[1:]
		}
		s.stash = append(s.stash, in)
		s.mu.Unlock()
		if !s.inGate.TryAcquire(1) {
			return
		}
		s.drainInputs()
		s.inGate.Release(1)
		return
	}
	s.drainInputs()
	s.applyInput(in)
	s.inGate.Release(1)
}

// drainInputs applies stashed payloads in arrival order. Callers must hold the input gate.
func (s *Slave) drainInputs() {
	s.mu.Lock()
	stash := s.stash
	s.stash = nil
	s.mu.Unlock()
	for _, in := range stash {
		s.applyInput(in)
	}
}

// applyInput writes every position of in, or none of them. Positions are
// staged on copies first; a rejected payload leaves all variables unchanged.
func (s *Slave) applyInput(in pendingInput) {
	staged := make(map[*value.MultiDimValue]*value.MultiDimValue, len(in.targets))
	off := 0
	for _, t := range in.targets {
		if t.mv == nil {
			continue
		}
		c, ok := staged[t.mv]
		if !ok {
			c = t.mv.Clone()
			staged[t.mv] = c
		}
		n, err := c.Update(in.payload[off:], t.source)
		if err != nil {
			s.logger.Warn("Slave %s: %s vr %d: %v", s.config.ID, in.ch, t.vr, err)
			return
		}
		off += n
	}
	for mv, c := range staged {
		if err := mv.CopyFrom(c); err != nil {
			s.logger.Warn("Slave %s: %s commit %s: %v", s.config.ID, in.ch, mv, err)
		}
	}
	if off != len(in.payload) {
		s.logger.Debug("Slave %s: %s payload has %d trailing bytes", s.config.ID, in.ch, len(in.payload)-off)
	}
}
