package master

import (
	"avaneesh/dcp-go/pkg/seq"
	"avaneesh/dcp-go/pkg/types"
)

// MasterConfig configures a master
type MasterConfig struct {
	// Identity
	ID string

	// AutoConfigure sends STC_configure once every PDU of a configuration
	// burst and its STC_prepare have been acknowledged.
	AutoConfigure bool
}

// DefaultMasterConfig returns default master configuration
func DefaultMasterConfig() MasterConfig {
	return MasterConfig{
		ID:            "master",
		AutoConfigure: true,
	}
}

// Listener signatures for PDUs and events surfaced to the application.
// respSeq is the pdu_seq_id of the request a response answers.
type (
	AckListener              func(dcpID uint8, respSeq uint16)
	NackListener             func(dcpID uint8, respSeq uint16, code types.DcpError)
	StateAckListener         func(dcpID uint8, respSeq uint16, state types.DcpState)
	ErrorAckListener         func(dcpID uint8, respSeq uint16, code types.DcpError)
	LogAckListener           func(dcpID uint8, respSeq uint16, entries []byte)
	StateChangedListener     func(dcpID uint8, state types.DcpState)
	LogListener              func(dcpID uint8, t types.DcpTime, templateID uint8, args []byte)
	DataListener             func(dataID uint16, payload []byte)
	ParameterListener        func(paramID uint16, payload []byte)
	MissedControlPduListener func(dcpID uint8, respSeq uint16, d seq.Delta)
	MissedDataPduListener    func(ch seq.Channel, received uint16, d seq.Delta)
	ErrorListener            func(code types.DcpError)
	ConfiguredListener       func(dcpID uint8, code types.DcpError)
)
