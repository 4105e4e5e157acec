package channel

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"sync"
	"sync/atomic"

	"github.com/sourcegraph/conc"
	"go.uber.org/multierr"

	"avaneesh/dcp-go/pkg/internal/logger"
	"avaneesh/dcp-go/pkg/pdu"
	"avaneesh/dcp-go/pkg/types"
)

var (
	ErrChannelClosed = errors.New("channel is closed")
	ErrChannelOpen   = errors.New("channel is already open")
	ErrNoNetworkInfo = errors.New("no network information for slave")
)

// Listener is implemented by physical channels that can receive on
// additional local endpoints, e.g. the data ports a slave is told about in
// CFG_source_network_information.
type Listener interface {
	Listen(addr netip.AddrPort) error
	CloseListeners() error
}

// Channel is the transport driver: it owns a physical channel, decodes
// inbound frames for its Receiver and routes outbound PDUs by their ids.
type Channel struct {
	id              string
	physicalChannel PhysicalChannel
	addressed       AddressedChannel
	router          *Router
	stats           *Statistics
	logger          logger.Logger

	receiver  Receiver
	rxMu      sync.RWMutex
	receiving atomic.Bool
	tracer    atomic.Pointer[tracerHolder]

	// State
	state   ChannelState
	stateMu sync.RWMutex

	// Concurrency
	ctx       context.Context
	cancel    context.CancelFunc
	wg        conc.WaitGroup
	closeOnce sync.Once

	// Write queue for serializing writes
	writeQueue chan *writeRequest
}

type tracerHolder struct {
	FrameTracer
}

// writeRequest represents a write request
type writeRequest struct {
	data []byte
	addr netip.AddrPort
	resp chan error
}

var _ Driver = (*Channel)(nil)

// New creates a new channel
func New(id string, physical PhysicalChannel, log logger.Logger) *Channel {
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())

	c := &Channel{
		id:              id,
		physicalChannel: physical,
		router:          NewRouter(),
		stats:           NewStatistics(),
		logger:          log,
		state:           ChannelStateClosed,
		ctx:             ctx,
		cancel:          cancel,
		writeQueue:      make(chan *writeRequest, 100),
	}
	if a, ok := physical.(AddressedChannel); ok {
		c.addressed = a
	}
	return c
}

// ID returns the channel ID
func (c *Channel) ID() string {
	return c.id
}

// Router returns the network information table
func (c *Channel) Router() *Router {
	return c.router
}

// SetTracer installs a frame tracer; nil removes it
func (c *Channel) SetTracer(t FrameTracer) {
	if t == nil {
		c.tracer.Store(nil)
		return
	}
	c.tracer.Store(&tracerHolder{t})
}

// SetReceiver implements Driver.SetReceiver
func (c *Channel) SetReceiver(r Receiver) {
	c.rxMu.Lock()
	c.receiver = r
	c.rxMu.Unlock()
}

// Open opens the channel and starts processing
func (c *Channel) Open() error {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	if c.state == ChannelStateOpen {
		return ErrChannelOpen
	}
	if c.ctx.Err() != nil {
		return ErrChannelClosed
	}

	c.state = ChannelStateOpen
	c.logger.Info("Channel %s opening", c.id)

	c.wg.Go(c.readLoop)
	c.wg.Go(c.writeLoop)

	c.logger.Info("Channel %s opened", c.id)
	return nil
}

// Close closes the channel and its physical channel
func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() { err = c.close() })
	return err
}

func (c *Channel) close() error {
	c.stateMu.Lock()
	c.state = ChannelStateClosed
	c.stateMu.Unlock()

	c.logger.Info("Channel %s closing", c.id)
	c.receiving.Store(false)

	// Cancel context to stop goroutines
	c.cancel()

	var err error
	if l, ok := c.physicalChannel.(Listener); ok {
		err = l.CloseListeners()
	}
	if cerr := c.physicalChannel.Close(); cerr != nil {
		c.logger.Error("Error closing physical channel: %v", cerr)
		err = multierr.Append(err, cerr)
	}

	c.wg.Wait()

	c.logger.Info("Channel %s closed", c.id)
	return err
}

// readLoop continuously reads from physical channel
func (c *Channel) readLoop() {
	c.logger.Debug("Channel %s read loop started", c.id)
	defer c.logger.Debug("Channel %s read loop stopped", c.id)

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		var (
			data []byte
			peer netip.AddrPort
			err  error
		)
		if c.addressed != nil {
			data, peer, err = c.addressed.ReadFrom(c.ctx)
		} else {
			data, err = c.physicalChannel.Read(c.ctx)
		}
		if err != nil {
			if c.ctx.Err() != nil {
				// Context cancelled, normal shutdown
				return
			}
			c.logger.Error("Channel %s read error: %v", c.id, err)
			c.stats.BadFrame()
			c.reportError(types.ErrProtocolGeneric)
			continue
		}

		c.handleFrame(data, peer)
	}
}

func (c *Channel) handleFrame(data []byte, peer netip.AddrPort) {
	logger.Frame(c.logger, fmt.Sprintf("Channel %s RX %s", c.id, peer), data)
	c.trace(DirectionRx, data, peer)

	p, err := pdu.Decode(data)
	if err != nil {
		c.stats.BadFrame()
		if pdu.IsSizeMismatch(err) {
			c.stats.SizeMismatch()
			c.logger.Warn("Channel %s dropped frame: %v", c.id, err)
			c.reportError(types.ErrInvalidLength)
			return
		}
		c.logger.Error("Channel %s decode error: %v", c.id, err)
		return
	}
	c.stats.FrameRx()

	if _, _, ok := pdu.ControlHeader(p); ok {
		c.router.ObservePeer(peer)
	}

	if !c.receiving.Load() {
		c.stats.Dropped()
		c.logger.Debug("Channel %s not receiving, dropped %s", c.id, pdu.String(p))
		return
	}

	c.logger.Debug("Channel %s received %s", c.id, pdu.String(p))
	c.rxMu.RLock()
	r := c.receiver
	c.rxMu.RUnlock()
	if r != nil {
		r.Receive(p)
	}
}

func (c *Channel) reportError(code types.DcpError) {
	c.rxMu.RLock()
	r := c.receiver
	c.rxMu.RUnlock()
	if r != nil {
		r.ReportError(code)
	}
}

func (c *Channel) trace(dir Direction, data []byte, peer netip.AddrPort) {
	h := c.tracer.Load()
	if h == nil {
		return
	}
	if err := h.Record(dir, data, peer); err != nil {
		c.logger.Warn("Channel %s trace error: %v", c.id, err)
	}
}

// writeLoop processes write requests
func (c *Channel) writeLoop() {
	c.logger.Debug("Channel %s write loop started", c.id)
	defer c.logger.Debug("Channel %s write loop stopped", c.id)

	for {
		select {
		case <-c.ctx.Done():
			// Drain remaining requests with error
			for {
				select {
				case req := <-c.writeQueue:
					req.resp <- ErrChannelClosed
				default:
					return
				}
			}

		case req := <-c.writeQueue:
			var err error
			if req.addr.IsValid() && c.addressed != nil {
				err = c.addressed.WriteTo(c.ctx, req.data, req.addr)
			} else {
				err = c.physicalChannel.Write(c.ctx, req.data)
			}
			if err != nil {
				c.stats.WriteError()
				c.logger.Error("Channel %s write error: %v", c.id, err)
			} else {
				c.stats.FrameTx()
				c.trace(DirectionTx, req.data, req.addr)
			}
			req.resp <- err
		}
	}
}

// write queues data for the physical channel and waits for the result
func (c *Channel) write(data []byte, addr netip.AddrPort) error {
	c.stateMu.RLock()
	if c.state != ChannelStateOpen {
		c.stateMu.RUnlock()
		return ErrChannelClosed
	}
	c.stateMu.RUnlock()

	req := &writeRequest{
		data: data,
		addr: addr,
		resp: make(chan error, 1),
	}

	select {
	case c.writeQueue <- req:
		return <-req.resp
	case <-c.ctx.Done():
		return ErrChannelClosed
	}
}

// Send implements Driver.Send
func (c *Channel) Send(p pdu.PDU) error {
	addr, ok := c.router.Destination(p)
	if !ok && c.addressed != nil {
		c.stats.Unroutable()
	}
	data := pdu.Encode(p)
	logger.Frame(c.logger, fmt.Sprintf("Channel %s TX %s", c.id, addr), data)
	c.logger.Debug("Channel %s sending %s", c.id, pdu.String(p))
	return c.write(data, addr)
}

// SendParameter sends a DAT_parameter PDU to the tunable parameter endpoint of one slave
func (c *Channel) SendParameter(dcpID uint8, p *pdu.DatParameter) error {
	addr, _ := c.router.DestinationForParam(dcpID, p.ParamID)
	return c.write(pdu.Encode(p), addr)
}

// SetSlaveNetworkInformation implements Driver
func (c *Channel) SetSlaveNetworkInformation(dcpID uint8, addr pdu.NetworkAddress) {
	c.router.SetSlave(dcpID, addr)
	c.logger.Debug("Channel %s slave %d at %s", c.id, dcpID, addr)
}

// SetSourceNetworkInformation implements Driver
func (c *Channel) SetSourceNetworkInformation(dataID uint16, addr pdu.NetworkAddress) {
	c.router.SetSource(dataID, addr)
	c.logger.Debug("Channel %s source %d at %s", c.id, dataID, addr)
}

// SetTargetNetworkInformation implements Driver
func (c *Channel) SetTargetNetworkInformation(dataID uint16, addr pdu.NetworkAddress) {
	c.router.SetTarget(dataID, addr)
	c.logger.Debug("Channel %s target %d at %s", c.id, dataID, addr)
}

// SetParamNetworkInformation implements Driver
func (c *Channel) SetParamNetworkInformation(paramID uint16, addr pdu.NetworkAddress) {
	c.router.SetParam(paramID, addr)
	c.logger.Debug("Channel %s param %d at %s", c.id, paramID, addr)
}

// SetTargetParamNetworkInformation implements Driver
func (c *Channel) SetTargetParamNetworkInformation(dcpID uint8, paramID uint16, addr pdu.NetworkAddress) {
	c.router.SetTargetParam(dcpID, paramID, addr)
	c.logger.Debug("Channel %s slave %d param %d at %s", c.id, dcpID, paramID, addr)
}

// StartReceiving implements Driver.StartReceiving.
// The channel is opened on first use.
func (c *Channel) StartReceiving() error {
	if c.State() != ChannelStateOpen {
		if err := c.Open(); err != nil && !errors.Is(err, ErrChannelOpen) {
			return err
		}
	}
	if c.receiving.Swap(true) {
		return nil
	}
	c.logger.Debug("Channel %s receiving", c.id)
	return nil
}

// StopReceiving implements Driver.StopReceiving
func (c *Channel) StopReceiving() error {
	c.receiving.Store(false)
	c.logger.Debug("Channel %s stopped receiving", c.id)
	return nil
}

// IsReceiving reports whether inbound frames are delivered
func (c *Channel) IsReceiving() bool {
	return c.receiving.Load()
}

// ConnectToSlave implements Driver.ConnectToSlave
func (c *Channel) ConnectToSlave(dcpID uint8) error {
	c.router.mu.RLock()
	_, known := c.router.slaves[dcpID]
	c.router.mu.RUnlock()
	if !known && c.addressed != nil {
		return fmt.Errorf("%w %d", ErrNoNetworkInfo, dcpID)
	}
	c.router.SetConnected(dcpID, true)
	c.logger.Info("Channel %s connected to slave %d", c.id, dcpID)
	return nil
}

// DisconnectFromSlave implements Driver.DisconnectFromSlave
func (c *Channel) DisconnectFromSlave(dcpID uint8) error {
	c.router.SetConnected(dcpID, false)
	c.logger.Info("Channel %s disconnected from slave %d", c.id, dcpID)
	return nil
}

// RegisterSuccessful implements Driver.RegisterSuccessful
func (c *Channel) RegisterSuccessful() {
	c.router.PinMaster()
	if m, ok := c.router.Master(); ok {
		c.logger.Info("Channel %s registered with master %s", c.id, m)
	}
}

// Prepare implements Driver.Prepare.
// Listening channels open the configured input and parameter ports.
func (c *Channel) Prepare() error {
	l, ok := c.physicalChannel.(Listener)
	if !ok {
		return nil
	}

	c.router.mu.RLock()
	var ports []uint16
	for _, a := range c.router.sources {
		if ap, ok := a.AddrPort(); ok {
			ports = append(ports, ap.Port())
		}
	}
	for _, a := range c.router.params {
		if ap, ok := a.AddrPort(); ok {
			ports = append(ports, ap.Port())
		}
	}
	c.router.mu.RUnlock()

	for _, port := range ports {
		if err := l.Listen(netip.AddrPortFrom(netip.IPv4Unspecified(), port)); err != nil {
			return fmt.Errorf("channel %s: listen on data port %d: %w", c.id, port, err)
		}
	}
	return nil
}

// Configure implements Driver.Configure
func (c *Channel) Configure() error {
	c.logger.Debug("Channel %s configured: %s", c.id, c.router)
	return nil
}

// Stop implements Driver.Stop
func (c *Channel) Stop() error {
	if l, ok := c.physicalChannel.(Listener); ok {
		return l.CloseListeners()
	}
	return nil
}

// Disconnect implements Driver.Disconnect.
// Data network information is forgotten; the control endpoint stays open.
func (c *Channel) Disconnect() error {
	err := c.Stop()
	c.router.ClearData()
	return err
}

// GetStatistics returns channel statistics
func (c *Channel) GetStatistics() *Statistics {
	return c.stats
}

// GetPhysicalStatistics returns physical channel statistics
func (c *Channel) GetPhysicalStatistics() TransportStats {
	return c.physicalChannel.Statistics()
}

// State returns the current channel state
func (c *Channel) State() ChannelState {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

// String returns string representation of channel
func (c *Channel) String() string {
	return fmt.Sprintf("Channel{ID=%s, State=%s, Receiving=%t}",
		c.id, c.State(), c.receiving.Load())
}
