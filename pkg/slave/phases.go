package slave

import (
	"avaneesh/dcp-go/pkg/types"
)

// phase identifies a callback slot
type phase int

const (
	phasePrepare phase = iota
	phaseConfigure
	phaseInitialize
	phaseCompute
	phaseStop
	phaseSynchronizingStep
	phaseSynchronizedStep
	phaseRunningStep
	numPhases
)

// phaseInfo is the state a phase runs in and the state it completes to.
// Step phases do not change state.
var phaseInfo = [numPhases]struct {
	name     string
	from, to types.DcpState
}{
	phasePrepare:           {"prepare", types.StatePreparing, types.StatePrepared},
	phaseConfigure:         {"configure", types.StateConfiguring, types.StateConfigured},
	phaseInitialize:        {"initialize", types.StateInitializing, types.StateInitialized},
	phaseCompute:           {"compute", types.StateComputing, types.StateComputed},
	phaseStop:              {"stop", types.StateStopping, types.StateStopped},
	phaseSynchronizingStep: {"synchronizing step", types.StateSynchronizing, types.StateSynchronizing},
	phaseSynchronizedStep:  {"synchronized step", types.StateSynchronized, types.StateSynchronized},
	phaseRunningStep:       {"running step", types.StateRunning, types.StateRunning},
}

func (p phase) String() string { return phaseInfo[p].name }

func (p phase) isStep() bool { return p >= phaseSynchronizingStep }

func (s *Slave) setCallback(p phase, mode types.OperationMode, fn StepFunc) {
	s.mu.Lock()
	s.callbacks[p] = callback{mode: mode, fn: fn}
	s.mu.Unlock()
}

func phaseFunc(fn PhaseFunc) StepFunc {
	if fn == nil {
		return nil
	}
	return func(uint32) { fn() }
}

// SetPrepareCallback runs fn in PREPARING. An Async fn must call PrepareFinished.
func (s *Slave) SetPrepareCallback(mode types.OperationMode, fn PhaseFunc) {
	s.setCallback(phasePrepare, mode, phaseFunc(fn))
}

// SetConfigureCallback runs fn in CONFIGURING. An Async fn must call ConfigureFinished.
func (s *Slave) SetConfigureCallback(mode types.OperationMode, fn PhaseFunc) {
	s.setCallback(phaseConfigure, mode, phaseFunc(fn))
}

// SetInitializeCallback runs fn in INITIALIZING. An Async fn must call InitializeFinished.
func (s *Slave) SetInitializeCallback(mode types.OperationMode, fn PhaseFunc) {
	s.setCallback(phaseInitialize, mode, phaseFunc(fn))
}

// SetStopCallback runs fn in STOPPING. An Async fn must call StopFinished.
func (s *Slave) SetStopCallback(mode types.OperationMode, fn PhaseFunc) {
	s.setCallback(phaseStop, mode, phaseFunc(fn))
}

// SetComputeCallback runs fn in COMPUTING with the steps of STC_do_step.
// An Async fn must call ComputeFinished.
func (s *Slave) SetComputeCallback(mode types.OperationMode, fn StepFunc) {
	s.setCallback(phaseCompute, mode, fn)
}

// SetSynchronizingStepCallback runs fn on every real-time tick in SYNCHRONIZING.
// An Async fn must call SynchronizingStepFinished.
func (s *Slave) SetSynchronizingStepCallback(mode types.OperationMode, fn StepFunc) {
	s.setCallback(phaseSynchronizingStep, mode, fn)
}

// SetSynchronizedStepCallback runs fn on every real-time tick in SYNCHRONIZED.
// An Async fn must call SynchronizedStepFinished.
func (s *Slave) SetSynchronizedStepCallback(mode types.OperationMode, fn StepFunc) {
	s.setCallback(phaseSynchronizedStep, mode, fn)
}

// SetRunningStepCallback runs fn on every real-time tick in RUNNING.
// An Async fn must call RunningStepFinished.
func (s *Slave) SetRunningStepCallback(mode types.OperationMode, fn StepFunc) {
	s.setCallback(phaseRunningStep, mode, fn)
}

// PrepareFinished completes an Async prepare callback.
// It returns false, and does nothing, if the slave left PREPARING meanwhile.
func (s *Slave) PrepareFinished() bool { return s.finishPhase(phasePrepare, nil) }

// ConfigureFinished completes an Async configure callback
func (s *Slave) ConfigureFinished() bool { return s.finishPhase(phaseConfigure, nil) }

// InitializeFinished completes an Async initialize callback
func (s *Slave) InitializeFinished() bool { return s.finishPhase(phaseInitialize, nil) }

// ComputeFinished completes an Async compute callback
func (s *Slave) ComputeFinished() bool { return s.finishPhase(phaseCompute, nil) }

// StopFinished completes an Async stop callback
func (s *Slave) StopFinished() bool { return s.finishPhase(phaseStop, nil) }

// SynchronizingStepFinished completes an Async synchronizing step
func (s *Slave) SynchronizingStepFinished() bool { return s.finishStep(phaseSynchronizingStep) }

// SynchronizedStepFinished completes an Async synchronized step
func (s *Slave) SynchronizedStepFinished() bool { return s.finishStep(phaseSynchronizedStep) }

// RunningStepFinished completes an Async running step
func (s *Slave) RunningStepFinished() bool { return s.finishStep(phaseRunningStep) }

// startPhase records the generation of the state p runs in and schedules its
// callback. Callers must hold mu and have just entered phaseInfo[p].from.
func (s *Slave) startPhase(p phase, steps uint32) {
	gen := s.gen
	s.phaseGen[p] = gen
	cb := s.callbacks[p]
	s.logger.Debug("Slave %s: %s phase started (%s)", s.config.ID, p, cb.mode)
	s.after(func() {
		switch {
		case cb.fn == nil:
			s.finishPhase(p, &gen)
		case cb.mode == types.Async:
			go cb.fn(steps)
		default:
			cb.fn(steps)
			s.finishPhase(p, &gen)
		}
	})
}

// finishPhase moves from phaseInfo[p].from to phaseInfo[p].to if the slave is
// still in the visit the phase was started for. gen pins that visit for
// inline callbacks; nil uses the generation recorded by startPhase.
func (s *Slave) finishPhase(p phase, gen *uint64) bool {
	s.lock()
	defer s.unlock()
	want := s.phaseGen[p]
	if gen != nil {
		want = *gen
	}
	info := phaseInfo[p]
	if s.state != info.from || s.gen != want {
		s.logger.Debug("Slave %s: %s finished after leaving %s, ignored", s.config.ID, p, info.from)
		return false
	}
	s.setState(info.to)
	if p == phaseStop {
		s.after(func() {
			if err := s.driver.Stop(); err != nil {
				s.logger.Warn("Slave %s: driver stop: %v", s.config.ID, err)
			}
		})
	}
	return true
}
