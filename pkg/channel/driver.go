package channel

import (
	"avaneesh/dcp-go/pkg/pdu"
	"avaneesh/dcp-go/pkg/types"
)

// Receiver is the protocol side of a driver. The driver calls Receive for
// every decoded PDU and ReportError for transport faults and malformed frames.
type Receiver interface {
	Receive(p pdu.PDU)
	ReportError(code types.DcpError)
}

// Driver is the transport driver consumed by the master and slave state machines
type Driver interface {
	// SetReceiver installs the protocol endpoint frames are delivered to
	SetReceiver(r Receiver)

	// Send encodes p and writes it to the peer its ids resolve to
	Send(p pdu.PDU) error

	// Network information, applied as received in CFG_* PDUs or set by a master
	SetSlaveNetworkInformation(dcpID uint8, addr pdu.NetworkAddress)
	SetSourceNetworkInformation(dataID uint16, addr pdu.NetworkAddress)
	SetTargetNetworkInformation(dataID uint16, addr pdu.NetworkAddress)
	SetParamNetworkInformation(paramID uint16, addr pdu.NetworkAddress)
	SetTargetParamNetworkInformation(dcpID uint8, paramID uint16, addr pdu.NetworkAddress)

	// StartReceiving starts delivering frames to the receiver
	StartReceiving() error
	// StopReceiving stops delivering frames; the transport stays open
	StopReceiving() error

	ConnectToSlave(dcpID uint8) error
	DisconnectFromSlave(dcpID uint8) error

	// RegisterSuccessful pins the peer of the last control PDU as master
	RegisterSuccessful()

	// Endpoint lifecycle hooks
	Prepare() error
	Configure() error
	Stop() error
	Disconnect() error
}
