package channel

import (
	"context"
	"net/netip"
)

// ConnectionStateListener receives notifications about connection state changes
type ConnectionStateListener interface {
	// OnConnectionEstablished is called when a new connection is established
	OnConnectionEstablished()

	// OnConnectionLost is called when a connection is lost
	OnConnectionLost()
}

// PhysicalChannel represents a pluggable transport.
// Implementations carry complete DCP frames (length prefix included).
type PhysicalChannel interface {
	// Read reads the next complete frame from the physical medium.
	// Should block until data is available or context is cancelled.
	// Stream transports reassemble frames from the byte stream.
	Read(ctx context.Context) ([]byte, error)

	// Write writes one frame to the default peer.
	// Must be thread-safe.
	Write(ctx context.Context, data []byte) error

	// Close closes the physical connection
	// Should cleanup all resources and unblock any pending Read/Write
	Close() error

	// Statistics returns transport-level statistics
	// Optional - can return zero values if not tracked
	Statistics() TransportStats

	// SetConnectionStateListener sets a listener for connection state changes
	// Optional - channels that don't support connection state notifications can ignore this
	SetConnectionStateListener(listener ConnectionStateListener)
}

// AddressedChannel is implemented by datagram channels that reach several
// peers through one socket. The driver uses it to honour network information
// received in CFG_*_network_information PDUs.
type AddressedChannel interface {
	PhysicalChannel

	// ReadFrom is Read that also reports the sender
	ReadFrom(ctx context.Context) ([]byte, netip.AddrPort, error)

	// WriteTo writes one frame to addr
	WriteTo(ctx context.Context, data []byte, addr netip.AddrPort) error
}

// TransportStats provides transport-level statistics
type TransportStats struct {
	BytesSent     uint64 // Total bytes sent
	BytesReceived uint64 // Total bytes received
	WriteErrors   uint64 // Number of write errors
	ReadErrors    uint64 // Number of read errors
	Connects      uint64 // Number of connections (for connection-oriented transports)
	Disconnects   uint64 // Number of disconnections
}

// ChannelState represents the state of a channel
type ChannelState int

const (
	ChannelStateOpen ChannelState = iota
	ChannelStateClosed
)

// String returns string representation of ChannelState
func (s ChannelState) String() string {
	switch s {
	case ChannelStateOpen:
		return "Open"
	case ChannelStateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Direction of a frame relative to this endpoint
type Direction int

const (
	DirectionRx Direction = iota
	DirectionTx
)

// String returns string representation of Direction
func (d Direction) String() string {
	if d == DirectionTx {
		return "TX"
	}
	return "RX"
}

// FrameTracer records raw frames, e.g. to a capture file
type FrameTracer interface {
	Record(dir Direction, data []byte, peer netip.AddrPort) error
}
