package slave

import (
	"time"

	"avaneesh/dcp-go/pkg/pdu"
	"avaneesh/dcp-go/pkg/seq"
	"avaneesh/dcp-go/pkg/types"
)

// transitional returns true for states that wait on a phase to complete
func transitional(s types.DcpState) bool {
	switch s {
	case types.StatePreparing, types.StateConfiguring, types.StateInitializing,
		types.StateSendingI, types.StateComputing, types.StateSendingD, types.StateStopping:
		return true
	default:
		return false
	}
}

// expectedState returns the state field of an STC PDU
func expectedState(p pdu.PDU) (types.DcpState, bool) {
	switch v := p.(type) {
	case *pdu.StcDeregister:
		return v.State, true
	case *pdu.StcPrepare:
		return v.State, true
	case *pdu.StcConfigure:
		return v.State, true
	case *pdu.StcInitialize:
		return v.State, true
	case *pdu.StcRun:
		return v.State, true
	case *pdu.StcDoStep:
		return v.State, true
	case *pdu.StcSendOutputs:
		return v.State, true
	case *pdu.StcStop:
		return v.State, true
	case *pdu.StcReset:
		return v.State, true
	}
	return 0, false
}

// handleControl handles STC and CFG requests of a registered slave and
// returns the nack code, or ErrNone once the request was acknowledged.
// Callers must hold mu.
func (s *Slave) handleControl(p pdu.PDU) types.DcpError {
	seqID, _, _ := pdu.ControlHeader(p)
	expected, isSTC := expectedState(p)
	if !isSTC {
		return s.handleConfig(p, seqID)
	}

	_, isStop := p.(*pdu.StcStop)
	if transitional(s.state) && !(isStop && s.state.AllowsStop()) {
		return types.ErrProtocolStateTransitionInProgress
	}
	if expected != s.state {
		return types.ErrInvalidStateID
	}

	switch v := p.(type) {
	case *pdu.StcDeregister:
		switch s.state {
		case types.StateConfiguration, types.StateStopped, types.StateErrorResolved:
			s.ack(seqID)
			s.deregister()
			return types.ErrNone
		}

	case *pdu.StcPrepare:
		if s.state == types.StateConfiguration {
			if err := s.driver.Prepare(); err != nil {
				s.logger.Warn("Slave %s: driver prepare: %v", s.config.ID, err)
				return types.ErrInvalidNetworkInformation
			}
			s.ack(seqID)
			s.setState(types.StatePreparing)
			s.startPhase(phasePrepare, 0)
			return types.ErrNone
		}

	case *pdu.StcConfigure:
		if s.state == types.StatePrepared {
			if code := s.cfg.check(s.desc); code != types.ErrNone {
				return code
			}
			if err := s.driver.Configure(); err != nil {
				s.logger.Warn("Slave %s: driver configure: %v", s.config.ID, err)
				return types.ErrInvalidNetworkInformation
			}
			s.ack(seqID)
			s.setState(types.StateConfiguring)
			s.startPhase(phaseConfigure, 0)
			return types.ErrNone
		}

	case *pdu.StcInitialize:
		if s.state == types.StateConfigured {
			s.ack(seqID)
			s.setState(types.StateInitializing)
			s.startPhase(phaseInitialize, 0)
			return types.ErrNone
		}

	case *pdu.StcSendOutputs:
		switch s.state {
		case types.StateInitialized:
			s.ack(seqID)
			s.startSending(types.StateSendingI, types.StateInitialized, types.Scope.InInitialization)
			return types.ErrNone
		case types.StateComputed:
			s.ack(seqID)
			s.startSending(types.StateSendingD, types.StateRunning, types.Scope.InRun)
			return types.ErrNone
		}

	case *pdu.StcRun:
		switch s.state {
		case types.StateInitialized, types.StateSynchronized:
			start := time.Time{}
			if !v.StartTime.IsImmediate() {
				start = v.StartTime.ToTime()
				if time.Until(start) < -time.Second {
					return types.ErrInvalidStartTime
				}
			}
			s.ack(seqID)
			s.scheduleRun(s.state, start)
			return types.ErrNone
		}

	case *pdu.StcDoStep:
		if s.state == types.StateRunning && !s.opMode.IsRealTime() {
			if v.Steps == 0 {
				return types.ErrInvalidSteps
			}
			if s.step.inFlight {
				return types.ErrProtocolStateTransitionInProgress
			}
			s.ack(seqID)
			s.setState(types.StateComputing)
			s.beginStep(phaseCompute, 0)
			steps := v.Steps
			s.after(func() { s.runStep(phaseCompute, steps) })
			return types.ErrNone
		}

	case *pdu.StcStop:
		if s.state.AllowsStop() {
			s.ack(seqID)
			s.stopRealtime()
			s.setState(types.StateStopping)
			s.startPhase(phaseStop, 0)
			return types.ErrNone
		}

	case *pdu.StcReset:
		if s.state == types.StateStopped || s.state == types.StateErrorResolved {
			s.ack(seqID)
			s.reset()
			return types.ErrNone
		}
	}
	return types.ErrProtocolPduNotAllowed
}

// scheduleRun performs the STC_run transition out of from at start, or now
// for a zero start. Callers must hold mu.
func (s *Slave) scheduleRun(from types.DcpState, start time.Time) {
	gen := s.gen
	enter := func() {
		if s.state != from || s.gen != gen {
			return
		}
		if from == types.StateSynchronized {
			s.setState(types.StateRunning)
			return
		}
		s.setState(types.StateSynchronizing)
		if s.opMode.IsRealTime() {
			s.startRealtime(start)
			return
		}
		// NRT slaves are synchronized on entry
		s.setState(types.StateSynchronized)
	}

	if d := time.Until(start); !start.IsZero() && d > 0 {
		s.logger.Debug("Slave %s: run scheduled in %v", s.config.ID, d)
		time.AfterFunc(d, func() {
			s.lock()
			defer s.unlock()
			enter()
		})
		return
	}
	enter()
}

// startSending enters sending, sends the outputs whose scope matches and
// returns to back. Callers must hold mu.
func (s *Slave) startSending(sending, back types.DcpState, inScope func(types.Scope) bool) {
	s.setState(sending)
	gen := s.gen
	frames := s.outputsFor(inScope, 0)
	s.after(func() {
		s.sendOutputs(frames)
		s.lock()
		defer s.unlock()
		if s.state == sending && s.gen == gen {
			s.setState(back)
		}
	})
}

// deregister returns to ALIVE and forgets everything learned since STC_register.
// Callers must hold mu.
func (s *Slave) deregister() {
	s.hb.stop()
	s.stopRealtime()
	s.clearConfiguration()
	s.tracker.Reset()
	s.logBuffer.Clear()
	if values, err := s.initialValues(); err == nil {
		s.values = values
	}
	s.setState(types.StateAlive)
	s.logger.Info("Slave %s deregistered (dcp id %d)", s.config.ID, s.dcpID)
	s.dcpID = 0
}

// reset returns to CONFIGURATION keeping the configuration and variable
// values; data sequence state starts over. Callers must hold mu.
func (s *Slave) reset() {
	s.resetDataSequences()
	s.lastError = types.ErrNone
	s.setState(types.StateConfiguration)
	s.hb.start()
}

func (s *Slave) resetDataSequences() {
	s.tracker.ResetKind(seq.Data)
	s.tracker.ResetKind(seq.Param)
}
