package channel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc"
	"golang.org/x/net/ipv4"

	"avaneesh/dcp-go/pkg/pdu"
)

// maxDatagramSize bounds one DCP frame carried in a UDP datagram
const maxDatagramSize = 64 * 1024

type datagram struct {
	data []byte
	from netip.AddrPort
}

// UDPChannel implements AddressedChannel for UDP sockets.
// Every datagram carries exactly one frame.
type UDPChannel struct {
	// Connection
	conn     *net.UDPConn
	connLock sync.RWMutex
	extra    map[netip.AddrPort]*net.UDPConn

	// Configuration
	address      string
	isServer     bool
	remoteAddr   netip.AddrPort // Used for client mode to know where to send
	lastPeerAddr netip.AddrPort // Used for server mode to remember last peer
	peerLock     sync.RWMutex
	readTimeout  time.Duration
	writeTimeout time.Duration
	tos          int

	rx chan datagram

	// Statistics
	stats struct {
		bytesSent     atomic.Uint64
		bytesReceived atomic.Uint64
		writeErrors   atomic.Uint64
		readErrors    atomic.Uint64
		connects      atomic.Uint64
		disconnects   atomic.Uint64
	}

	listener   ConnectionStateListener
	listenerMu sync.RWMutex

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     conc.WaitGroup
	closed atomic.Bool
}

// UDPChannelConfig configures a UDP channel
type UDPChannelConfig struct {
	Address      string        // "host:port" format
	IsServer     bool          // true = bind and listen, false = bind and send to remote
	ReadTimeout  time.Duration // Read timeout (0 = no timeout)
	WriteTimeout time.Duration // Write timeout (0 = no timeout)
	TOS          int           // IPv4 type-of-service byte for sent datagrams (0 = leave unset)
}

// NewUDPChannel creates a new UDP channel
func NewUDPChannel(config UDPChannelConfig) (*UDPChannel, error) {
	if config.Address == "" {
		return nil, fmt.Errorf("address is required")
	}

	// Set defaults
	if config.ReadTimeout == 0 {
		config.ReadTimeout = 1 * time.Second
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	uc := &UDPChannel{
		address:      config.Address,
		isServer:     config.IsServer,
		readTimeout:  config.ReadTimeout,
		writeTimeout: config.WriteTimeout,
		tos:          config.TOS,
		extra:        make(map[netip.AddrPort]*net.UDPConn),
		rx:           make(chan datagram, 256),
		ctx:          ctx,
		cancel:       cancel,
	}

	// Initialize connection
	if err := uc.initialize(); err != nil {
		cancel()
		return nil, err
	}

	return uc, nil
}

// initialize sets up the UDP connection
func (uc *UDPChannel) initialize() error {
	addr, err := net.ResolveUDPAddr("udp", uc.address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address %s: %w", uc.address, err)
	}

	var conn *net.UDPConn
	if uc.isServer {
		// Server mode: bind to local address to receive from any client
		conn, err = net.ListenUDP("udp", addr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", uc.address, err)
		}
	} else {
		// Client mode: bind to any local address and remember remote address
		uc.remoteAddr = addr.AddrPort()
		conn, err = net.ListenUDP("udp", &net.UDPAddr{})
		if err != nil {
			return fmt.Errorf("failed to create UDP connection: %w", err)
		}
	}

	if err := uc.applyTOS(conn); err != nil {
		conn.Close()
		return err
	}

	uc.conn = conn
	uc.stats.connects.Add(1)
	uc.wg.Go(func() { uc.socketLoop(conn) })
	return nil
}

func (uc *UDPChannel) applyTOS(conn *net.UDPConn) error {
	if uc.tos == 0 {
		return nil
	}
	if err := ipv4.NewConn(conn).SetTOS(uc.tos); err != nil {
		return fmt.Errorf("failed to set TOS %#x: %w", uc.tos, err)
	}
	return nil
}

// socketLoop reads datagrams from one socket into the receive queue
func (uc *UDPChannel) socketLoop(conn *net.UDPConn) {
	buffer := make([]byte, maxDatagramSize)
	for {
		if uc.readTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(uc.readTimeout))
		}

		n, from, err := conn.ReadFromUDPAddrPort(buffer)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				// Timeout, continue to check context
				if uc.ctx.Err() != nil {
					return
				}
				continue
			}
			if uc.closed.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			uc.stats.readErrors.Add(1)
			continue
		}

		if n < pdu.MinFrameSize {
			uc.stats.readErrors.Add(1)
			continue
		}

		frame := make([]byte, n)
		copy(frame, buffer[:n])
		uc.stats.bytesReceived.Add(uint64(n))

		select {
		case uc.rx <- datagram{data: frame, from: netip.AddrPortFrom(from.Addr().Unmap(), from.Port())}:
		case <-uc.ctx.Done():
			return
		}
	}
}

// ReadFrom implements AddressedChannel.ReadFrom
func (uc *UDPChannel) ReadFrom(ctx context.Context) ([]byte, netip.AddrPort, error) {
	select {
	case <-ctx.Done():
		return nil, netip.AddrPort{}, ctx.Err()
	case <-uc.ctx.Done():
		return nil, netip.AddrPort{}, fmt.Errorf("channel closed")
	case d := <-uc.rx:
		// Store the remote address for server mode (to reply to the same peer)
		if uc.isServer {
			uc.peerLock.Lock()
			if uc.lastPeerAddr != d.from {
				uc.lastPeerAddr = d.from
				uc.peerLock.Unlock()
				uc.notifyConnectionEstablished()
			} else {
				uc.peerLock.Unlock()
			}
		}
		return d.data, d.from, nil
	}
}

// Read implements PhysicalChannel.Read
func (uc *UDPChannel) Read(ctx context.Context) ([]byte, error) {
	data, _, err := uc.ReadFrom(ctx)
	return data, err
}

// Write implements PhysicalChannel.Write
func (uc *UDPChannel) Write(ctx context.Context, data []byte) error {
	// Determine the destination address
	var destAddr netip.AddrPort
	if uc.isServer {
		// Server mode: send to the last peer we received from
		uc.peerLock.RLock()
		destAddr = uc.lastPeerAddr
		uc.peerLock.RUnlock()

		if !destAddr.IsValid() {
			uc.stats.writeErrors.Add(1)
			return fmt.Errorf("no peer address available (no data received yet)")
		}
	} else {
		// Client mode: send to the configured remote address
		destAddr = uc.remoteAddr
	}
	return uc.WriteTo(ctx, data, destAddr)
}

// WriteTo implements AddressedChannel.WriteTo
func (uc *UDPChannel) WriteTo(ctx context.Context, data []byte, addr netip.AddrPort) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-uc.ctx.Done():
		return fmt.Errorf("channel closed")
	default:
	}

	uc.connLock.RLock()
	conn := uc.conn
	uc.connLock.RUnlock()

	if conn == nil {
		uc.stats.writeErrors.Add(1)
		return fmt.Errorf("no connection")
	}

	// Set write deadline
	if uc.writeTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(uc.writeTimeout))
	}

	_, err := conn.WriteToUDPAddrPort(data, addr)
	if err != nil {
		uc.stats.writeErrors.Add(1)
		return err
	}

	uc.stats.bytesSent.Add(uint64(len(data)))
	return nil
}

// Listen implements Listener.Listen.
// The port of the main socket is skipped.
func (uc *UDPChannel) Listen(addr netip.AddrPort) error {
	uc.connLock.Lock()
	defer uc.connLock.Unlock()

	if uc.closed.Load() {
		return fmt.Errorf("channel closed")
	}
	if local, ok := uc.conn.LocalAddr().(*net.UDPAddr); ok && local.Port == int(addr.Port()) {
		return nil
	}
	if _, exists := uc.extra[addr]; exists {
		return nil
	}

	conn, err := net.ListenUDP("udp", net.UDPAddrFromAddrPort(addr))
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	uc.extra[addr] = conn
	uc.wg.Go(func() { uc.socketLoop(conn) })
	return nil
}

// CloseListeners implements Listener.CloseListeners
func (uc *UDPChannel) CloseListeners() error {
	uc.connLock.Lock()
	defer uc.connLock.Unlock()

	var firstErr error
	for addr, conn := range uc.extra {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(uc.extra, addr)
	}
	return firstErr
}

// Close implements PhysicalChannel.Close
func (uc *UDPChannel) Close() error {
	if !uc.closed.CompareAndSwap(false, true) {
		return nil // Already closed
	}

	// Cancel context
	uc.cancel()
	uc.CloseListeners()

	// Close connection
	uc.connLock.Lock()
	if uc.conn != nil {
		uc.conn.Close()
		uc.stats.disconnects.Add(1)
		uc.conn = nil
	}
	uc.connLock.Unlock()

	uc.wg.Wait()
	return nil
}

// Statistics implements PhysicalChannel.Statistics
func (uc *UDPChannel) Statistics() TransportStats {
	return TransportStats{
		BytesSent:     uc.stats.bytesSent.Load(),
		BytesReceived: uc.stats.bytesReceived.Load(),
		WriteErrors:   uc.stats.writeErrors.Load(),
		ReadErrors:    uc.stats.readErrors.Load(),
		Connects:      uc.stats.connects.Load(),
		Disconnects:   uc.stats.disconnects.Load(),
	}
}

// SetConnectionStateListener implements PhysicalChannel.SetConnectionStateListener.
// A UDP server reports a new peer as an established connection.
func (uc *UDPChannel) SetConnectionStateListener(listener ConnectionStateListener) {
	uc.listenerMu.Lock()
	defer uc.listenerMu.Unlock()
	uc.listener = listener
}

func (uc *UDPChannel) notifyConnectionEstablished() {
	uc.listenerMu.RLock()
	listener := uc.listener
	uc.listenerMu.RUnlock()

	if listener != nil {
		go listener.OnConnectionEstablished()
	}
}

// IsConnected returns true if the connection is open
// Note: For UDP, this just means the socket is bound
func (uc *UDPChannel) IsConnected() bool {
	uc.connLock.RLock()
	defer uc.connLock.RUnlock()
	return uc.conn != nil
}

// LocalAddr returns the local address of the connection
func (uc *UDPChannel) LocalAddr() net.Addr {
	uc.connLock.RLock()
	defer uc.connLock.RUnlock()
	if uc.conn != nil {
		return uc.conn.LocalAddr()
	}
	return nil
}

// LocalAddrPort returns the local address of the main socket
func (uc *UDPChannel) LocalAddrPort() netip.AddrPort {
	if a, ok := uc.LocalAddr().(*net.UDPAddr); ok {
		return a.AddrPort()
	}
	return netip.AddrPort{}
}

// RemoteAddr returns the remote address
// For server mode, this returns the last peer address
// For client mode, this returns the configured remote address
func (uc *UDPChannel) RemoteAddr() netip.AddrPort {
	if uc.isServer {
		uc.peerLock.RLock()
		defer uc.peerLock.RUnlock()
		return uc.lastPeerAddr
	}
	return uc.remoteAddr
}
