package slave

import (
	"context"
	"time"

	"avaneesh/dcp-go/pkg/pdu"
	"avaneesh/dcp-go/pkg/seq"
	"avaneesh/dcp-go/pkg/types"
	"avaneesh/dcp-go/pkg/value"
)

// stepState is the step currently holding the gates
type stepState struct {
	inFlight bool
	phase    phase
	gen      uint64
	count    uint64
}

// realtimeLoop is the step clock of a real-time run
type realtimeLoop struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (l *realtimeLoop) wait() { <-l.done }

// stepPhaseFor returns the step phase driven by the real-time clock in state
func stepPhaseFor(state types.DcpState) (phase, bool) {
	switch state {
	case types.StateSynchronizing:
		return phaseSynchronizingStep, true
	case types.StateSynchronized:
		return phaseSynchronizedStep, true
	case types.StateRunning:
		return phaseRunningStep, true
	default:
		return 0, false
	}
}

// startRealtime starts the step clock at start, or now for a zero start.
// Callers must hold mu.
func (s *Slave) startRealtime(start time.Time) {
	if s.rt != nil {
		return
	}
	period := s.timeResolution().Duration(1)
	if period <= 0 {
		s.logger.Error("Slave %s: invalid time resolution %v", s.config.ID, s.timeResolution())
		return
	}
	ctx, cancel := context.WithCancel(s.ctx)
	l := &realtimeLoop{cancel: cancel, done: make(chan struct{})}
	s.rt = l
	go s.runRealtime(ctx, l, start, period)
	s.logger.Debug("Slave %s: step clock started, period %v", s.config.ID, period)
}

// stopRealtime cancels the step clock and returns it for waiting.
// Callers must hold mu.
func (s *Slave) stopRealtime() *realtimeLoop {
	l := s.rt
	s.rt = nil
	if l != nil {
		l.cancel()
	}
	return l
}

// runRealtime ticks on absolute deadlines start + n*period so a slow tick
// does not shift the ones after it
func (s *Slave) runRealtime(ctx context.Context, l *realtimeLoop, start time.Time, period time.Duration) {
	defer close(l.done)

	next := start
	if next.IsZero() {
		next = time.Now()
	}
	timer := time.NewTimer(time.Until(next))
	defer timer.Stop()

	var count uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		count++
		s.tick(count)
		next = next.Add(period)
		timer.Reset(time.Until(next))
	}
}

// tick runs one real-time step of the callback belonging to the current state
func (s *Slave) tick(count uint64) {
	s.lock()
	p, ok := stepPhaseFor(s.state)
	if !ok {
		s.unlock()
		return
	}
	if !s.beginStep(p, count) {
		s.logger.Warn("Slave %s: step %d skipped, %s still running", s.config.ID, count, s.step.phase)
		s.unlock()
		return
	}
	s.unlock()
	s.runStep(p, 1)
}

// beginStep marks a step of p as in flight. Callers must hold mu.
func (s *Slave) beginStep(p phase, count uint64) bool {
	if s.step.inFlight {
		return false
	}
	s.step = stepState{inFlight: true, phase: p, gen: s.gen, count: count}
	return true
}

// runStep takes both gates and runs the callback of p. Inline and missing
// callbacks complete immediately; Async callbacks complete via *Finished.
func (s *Slave) runStep(p phase, steps uint32) {
	if err := s.inGate.Acquire(s.ctx, 1); err != nil {
		s.abortStep()
		return
	}
	if err := s.outGate.Acquire(s.ctx, 1); err != nil {
		s.inGate.Release(1)
		s.abortStep()
		return
	}

	s.mu.Lock()
	cb := s.callbacks[p]
	s.mu.Unlock()

	switch {
	case cb.fn == nil:
		s.finishStep(p)
	case cb.mode == types.Async:
		go cb.fn(steps)
	default:
		cb.fn(steps)
		s.finishStep(p)
	}
}

func (s *Slave) abortStep() {
	s.mu.Lock()
	s.step.inFlight = false
	s.mu.Unlock()
}

// finishStep releases the gates of the step of p. If the slave is still in
// the state the step started in, the compute step moves to COMPUTED and
// real-time steps send the outputs due at this tick.
func (s *Slave) finishStep(p phase) bool {
	s.lock()
	if !s.step.inFlight || s.step.phase != p {
		s.unlock()
		return false
	}
	st := s.step
	s.step.inFlight = false
	current := s.state == phaseInfo[p].from && s.gen == st.gen

	var frames []outputFrame
	switch {
	case !current:
		s.logger.Debug("Slave %s: %s finished after leaving %s, ignored", s.config.ID, p, phaseInfo[p].from)
	case p == phaseCompute:
		s.setState(types.StateComputed)
	default:
		frames = s.outputsFor(types.Scope.InRun, st.count)
	}
	s.unlock()

	s.drainInputs()
	s.outGate.Release(1)
	s.inGate.Release(1)

	if len(frames) > 0 {
		s.sendOutputs(frames)
	}
	return current
}

// outputFrame is one DAT_input_output to send
type outputFrame struct {
	dataID uint16
	values []*value.MultiDimValue
}

// outputsFor collects the outputs whose scope matches. A non-zero count
// selects the data ids whose steps divide it. Callers must hold mu.
func (s *Slave) outputsFor(inScope func(types.Scope) bool, count uint64) []outputFrame {
	var frames []outputFrame
	for _, id := range sortedIDs(s.cfg.outputs) {
		scope, ok := s.cfg.scopes[id]
		if !ok {
			scope = types.ScopeInitRunNRT
		}
		if !inScope(scope) {
			continue
		}
		if count > 0 {
			steps := uint64(s.cfg.steps[id])
			if steps == 0 {
				steps = 1
			}
			if count%steps != 0 {
				continue
			}
		}
		positions := s.cfg.outputs[id]
		f := outputFrame{dataID: id, values: make([]*value.MultiDimValue, len(positions))}
		for pos, vr := range positions {
			if int(pos) < len(f.values) {
				f.values[pos] = s.values[vr]
			}
		}
		frames = append(frames, f)
	}
	return frames
}

// sendOutputs serializes frames under the output gate and sends them
func (s *Slave) sendOutputs(frames []outputFrame) {
	if len(frames) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, s.config.GateTimeout)
	defer cancel()
	if err := s.outGate.Acquire(ctx, 1); err != nil {
		s.logger.Warn("Slave %s: outputs dropped: %v", s.config.ID, err)
		return
	}
	payloads := make([][]byte, len(frames))
	for i, f := range frames {
		var b []byte
		for _, v := range f.values {
			if v != nil {
				b = v.AppendTo(b)
			}
		}
		payloads[i] = b
	}
	s.outGate.Release(1)

	for i, f := range frames {
		s.send(&pdu.DatInputOutput{
			SeqID:   s.tracker.NextOutbound(seq.DataChannel(f.dataID)),
			DataID:  f.dataID,
			Payload: payloads[i],
		})
	}
}
