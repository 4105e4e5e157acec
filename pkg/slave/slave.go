// Package slave implements the DCP slave state machine.
//
// A slave is driven by the PDUs its driver delivers: state transition
// commands move it through the state graph, configuration requests fill its
// data id, parameter and logging tables and information requests are answered
// in every registered state. Application code plugs in through phase and step
// callbacks, each of which runs inline (Sync) or on its own goroutine (Async).
package slave

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	uuid "github.com/satori/go.uuid"
	"golang.org/x/sync/semaphore"

	"avaneesh/dcp-go/pkg/channel"
	"avaneesh/dcp-go/pkg/dcplog"
	"avaneesh/dcp-go/pkg/description"
	"avaneesh/dcp-go/pkg/internal/logger"
	"avaneesh/dcp-go/pkg/pdu"
	"avaneesh/dcp-go/pkg/seq"
	"avaneesh/dcp-go/pkg/types"
	"avaneesh/dcp-go/pkg/value"
)

var (
	ErrNoDescription   = errors.New("slave: description required")
	ErrNoDriver        = errors.New("slave: driver required")
	ErrUnknownVariable = errors.New("slave: unknown value reference")
	ErrNotRegistered   = errors.New("slave: not registered")
)

// callback is one registered phase or step callback
type callback struct {
	mode types.OperationMode
	fn   StepFunc
}

// Slave is one DCP slave
type Slave struct {
	config   Config
	desc     *description.SlaveDescription
	driver   channel.Driver
	logger   logger.Logger
	registry *dcplog.Registry
	tracker  *seq.Tracker

	// mu guards the state machine and the configuration tables.
	// Work queued in pending runs after mu is released.
	mu        sync.Mutex
	pending   []func()
	state     types.DcpState
	gen       uint64
	phaseGen  [numPhases]uint64
	dcpID     uint8
	opMode    types.OpMode
	lastError types.DcpError
	cfg       *configuration
	values    map[uint64]*value.MultiDimValue
	callbacks [numPhases]callback

	// inGate serializes data application with steps, outGate steps with output serialization
	inGate  *semaphore.Weighted
	outGate *semaphore.Weighted
	step    stepState
	stash   []pendingInput
	rt      *realtimeLoop

	hb *heartbeatMonitor

	logBuffer *dcplog.Buffer
	logCfg    map[types.LogCategory]logSetting

	listeners listeners

	ctx     context.Context
	cancel  context.CancelFunc
	started atomic.Bool
}

// New creates a slave for desc on top of drv. desc must have been validated.
func New(config Config, desc *description.SlaveDescription, drv channel.Driver, log logger.Logger) (*Slave, error) {
	if desc == nil {
		return nil, ErrNoDescription
	}
	if drv == nil {
		return nil, ErrNoDriver
	}
	log = logger.OrDefault(log)

	reg := config.Registry
	if reg == nil {
		var err error
		if reg, err = dcplog.FromDescription(desc); err != nil {
			return nil, fmt.Errorf("slave %s: %w", config.ID, err)
		}
	}
	if config.GateTimeout <= 0 {
		config.GateTimeout = time.Second
	}
	config.StateChangedNotification = config.StateChangedNotification || desc.NtfStateChanged
	bufSize := config.LogBufferSize
	if bufSize == 0 && desc.Logging.BufferSize > 0 {
		bufSize = uint(desc.Logging.BufferSize)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Slave{
		config:    config,
		desc:      desc,
		driver:    drv,
		logger:    log,
		registry:  reg,
		tracker:   seq.NewTracker(),
		state:     types.StateAlive,
		cfg:       newConfiguration(),
		inGate:    semaphore.NewWeighted(1),
		outGate:   semaphore.NewWeighted(1),
		logBuffer: dcplog.NewBuffer(bufSize),
		logCfg:    make(map[types.LogCategory]logSetting),
		ctx:       ctx,
		cancel:    cancel,
	}
	s.hb = newHeartbeatMonitor(s)
	values, err := s.initialValues()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("slave %s: %w", config.ID, err)
	}
	s.values = values
	drv.SetReceiver(s)

	s.logger.Info("Slave %s created: %s (%s)", config.ID, desc.Name, desc.SlaveUUID())
	return s, nil
}

// Start starts receiving PDUs
func (s *Slave) Start() error {
	if s.started.Swap(true) {
		return nil
	}
	if err := s.driver.StartReceiving(); err != nil {
		s.started.Store(false)
		return fmt.Errorf("slave %s: %w", s.config.ID, err)
	}
	s.logger.Info("Slave %s started", s.config.ID)
	return nil
}

// Stop stops receiving PDUs and terminates heartbeat monitoring and the step loop.
// Async callbacks still running are detached.
func (s *Slave) Stop() error {
	if !s.started.Swap(false) {
		return nil
	}
	s.lock()
	rt := s.stopRealtime()
	s.unlock()
	s.hb.stop()
	if rt != nil {
		rt.wait()
	}
	err := s.driver.StopReceiving()
	s.cancel()
	s.logger.Info("Slave %s stopped", s.config.ID)
	return err
}

// State returns the current state
func (s *Slave) State() types.DcpState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// DcpID returns the id assigned at registration, 0 in ALIVE
func (s *Slave) DcpID() uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dcpID
}

// OpMode returns the operating mode requested at registration
func (s *Slave) OpMode() types.OpMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opMode
}

// LastError returns the error reported by INF_error
func (s *Slave) LastError() types.DcpError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// Description returns the slave description
func (s *Slave) Description() *description.SlaveDescription { return s.desc }

// Registry returns the log template registry
func (s *Slave) Registry() *dcplog.Registry { return s.registry }

// Value returns the storage of variable vr. Inputs and outputs must only be
// accessed from step callbacks or while no run phase is active.
func (s *Slave) Value(vr uint64) (*value.MultiDimValue, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[vr]
	return v, ok
}

// Receive implements channel.Receiver
func (s *Slave) Receive(p pdu.PDU) {
	switch v := p.(type) {
	case *pdu.DatInputOutput:
		s.handleData(v)
		return
	case *pdu.DatParameter:
		s.handleParameter(v)
		return
	}

	seqID, receiver, ok := pdu.ControlHeader(p)
	if !ok {
		s.logger.Debug("Slave %s: ignoring %s", s.config.ID, p.Type())
		return
	}

	s.lock()
	defer s.unlock()

	if reg, isRegister := p.(*pdu.StcRegister); isRegister && s.state == types.StateAlive {
		s.handleRegister(reg)
		return
	}
	if s.state == types.StateAlive {
		s.logger.Debug("Slave %s: ignoring %s while ALIVE", s.config.ID, p.Type())
		return
	}
	if receiver != s.dcpID {
		return
	}

	if d := s.tracker.CheckInbound(seq.ControlChannel(s.dcpID), seqID); d.Missed() {
		s.logger.Warn("Slave %s: control pdu_seq_id %d out of order (delta %d)", s.config.ID, seqID, d)
		s.listeners.missedControl(s, s.dcpID, seqID, d)
	}

	s.dispatch(p, seqID)
}

// ReportError implements channel.Receiver
func (s *Slave) ReportError(code types.DcpError) {
	s.logger.Warn("Slave %s: transport error %s", s.config.ID, code)
	s.lock()
	s.lastError = code
	s.listeners.errorRaised(s, code)
	s.unlock()
}

func (s *Slave) dispatch(p pdu.PDU, seqID uint16) {
	switch v := p.(type) {
	case *pdu.InfState:
		s.hb.touch()
		s.respond(&pdu.RspStateAck{RespSeqID: seqID, Sender: s.dcpID, State: s.state})
	case *pdu.InfError:
		s.respond(&pdu.RspErrorAck{RespSeqID: seqID, Sender: s.dcpID, ErrorCode: s.lastError})
	case *pdu.InfLog:
		s.handleInfLog(v)
	case *pdu.StcRegister:
		s.nack(seqID, types.ErrProtocolPduNotAllowed)
	default:
		if code := s.handleControl(p); code != types.ErrNone {
			s.nack(seqID, code)
		}
	}
}

func (s *Slave) handleRegister(p *pdu.StcRegister) {
	nack := func(code types.DcpError) {
		s.logger.Warn("Slave %s: STC_register rejected: %s", s.config.ID, code)
		s.send(&pdu.RspNack{RespSeqID: p.SeqID, Sender: p.Receiver, ErrorCode: code})
	}
	switch {
	case p.State != types.StateAlive:
		nack(types.ErrInvalidStateID)
	case !uuid.Equal(p.SlaveUUID, s.desc.SlaveUUID()):
		nack(types.ErrInvalidUUID)
	case !s.desc.SupportsOpMode(p.OpMode):
		nack(types.ErrInvalidOpMode)
	case p.MajorVersion != s.desc.MajorVersion:
		nack(types.ErrInvalidMajorVersion)
	case p.MinorVersion > s.desc.MinorVersion:
		nack(types.ErrInvalidMinorVersion)
	default:
		s.dcpID = p.Receiver
		s.opMode = p.OpMode
		s.tracker.Resync(seq.ControlChannel(s.dcpID), p.SeqID)
		s.driver.RegisterSuccessful()
		s.respond(&pdu.RspAck{RespSeqID: p.SeqID, Sender: s.dcpID})
		s.setState(types.StateConfiguration)
		s.hb.start()
		s.logger.Info("Slave %s registered as dcp id %d in %s", s.config.ID, s.dcpID, s.opMode)
	}
}

func (s *Slave) ack(seqID uint16) {
	s.respond(&pdu.RspAck{RespSeqID: seqID, Sender: s.dcpID})
}

func (s *Slave) nack(seqID uint16, code types.DcpError) {
	s.logger.Debug("Slave %s: nack %d: %s", s.config.ID, seqID, code)
	s.respond(&pdu.RspNack{RespSeqID: seqID, Sender: s.dcpID, ErrorCode: code})
}

// respond sends p once mu is released so responses never overtake the transition they report
func (s *Slave) respond(p pdu.PDU) {
	s.after(func() { s.send(p) })
}

func (s *Slave) send(p pdu.PDU) {
	if err := s.driver.Send(p); err != nil {
		s.logger.Warn("Slave %s: send %s failed: %v", s.config.ID, p.Type(), err)
	}
}

// lock acquires mu
func (s *Slave) lock() { s.mu.Lock() }

// unlock releases mu and runs the work queued while it was held, in order
func (s *Slave) unlock() {
	work := s.pending
	s.pending = nil
	s.mu.Unlock()
	for _, fn := range work {
		fn()
	}
}

// after queues fn to run once mu is released. Callers must hold mu.
func (s *Slave) after(fn func()) {
	s.pending = append(s.pending, fn)
}

// setState moves to next, invalidating every running phase. Callers must hold mu.
func (s *Slave) setState(next types.DcpState) {
	prev := s.state
	s.state = next
	s.gen++
	s.logger.Debug("Slave %s: %s -> %s", s.config.ID, prev, next)
	if s.config.StateChangedNotification && next != types.StateAlive {
		s.respond(&pdu.NtfStateChanged{Sender: s.dcpID, State: next})
	}
	s.listeners.stateChanged(s, prev, next)
}

// GotoErrorHandling reports code and moves to ERROR_HANDLING from any registered state
func (s *Slave) GotoErrorHandling(code types.DcpError) {
	s.lock()
	defer s.unlock()
	s.gotoErrorHandling(code)
}

func (s *Slave) gotoErrorHandling(code types.DcpError) {
	if s.state == types.StateAlive || s.state == types.StateErrorHandling {
		return
	}
	s.logger.Error("Slave %s: error %s in %s", s.config.ID, code, s.state)
	s.lastError = code
	s.stopRealtime()
	s.setState(types.StateErrorHandling)
	s.listeners.errorRaised(s, code)
}

// GotoErrorResolved leaves ERROR_HANDLING once the application resolved the error
func (s *Slave) GotoErrorResolved() bool {
	s.lock()
	defer s.unlock()
	if s.state != types.StateErrorHandling {
		return false
	}
	s.setState(types.StateErrorResolved)
	return true
}

// GotoSynchronized leaves SYNCHRONIZING once the application is in sync
func (s *Slave) GotoSynchronized() bool {
	s.lock()
	defer s.unlock()
	if s.state != types.StateSynchronizing {
		return false
	}
	s.setState(types.StateSynchronized)
	return true
}

// initialValues creates every variable of the description with its start value.
// Structural parameters are created first so linked dimensions resolve.
func (s *Slave) initialValues() (map[uint64]*value.MultiDimValue, error) {
	values := make(map[uint64]*value.MultiDimValue, len(s.desc.Variables))
	for i := range s.desc.Variables {
		v := &s.desc.Variables[i]
		if v.Causality != description.CausalityStructuralParameter {
			continue
		}
		mv, err := v.NewValue(nil)
		if err != nil {
			return nil, err
		}
		values[v.VR] = mv
	}
	dimOf := structuralDim(values)
	for i := range s.desc.Variables {
		v := &s.desc.Variables[i]
		if _, done := values[v.VR]; done {
			continue
		}
		mv, err := v.NewValue(dimOf)
		if err != nil {
			return nil, err
		}
		values[v.VR] = mv
	}
	return values, nil
}

// structuralDim reads the first element of a structural parameter as a dimension
func structuralDim(values map[uint64]*value.MultiDimValue) func(vr uint64) int {
	return func(vr uint64) int {
		mv, ok := values[vr]
		if !ok {
			return 1
		}
		n, err := mv.Int64At(0)
		if err != nil {
			return 1
		}
		return int(n)
	}
}

// String returns a short description of the slave
func (s *Slave) String() string {
	return fmt.Sprintf("slave %s (%s)", s.config.ID, s.State())
}
