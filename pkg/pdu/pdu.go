package pdu

import (
	"fmt"

	uuid "github.com/satori/go.uuid"

	"avaneesh/dcp-go/pkg/types"
)

// PDU is one decoded DCP frame. The set of implementations is closed:
// every variant lives in this package.
type PDU interface {
	// Type returns the type_id of the PDU
	Type() types.PduType

	appendBody(b []byte) []byte
	decodeBody(r *reader) error
}

// State transition commands

// StcRegister requests a slave to leave ALIVE
type StcRegister struct {
	SeqID        uint16
	Receiver     uint8
	State        types.DcpState
	SlaveUUID    uuid.UUID
	OpMode       types.OpMode
	MajorVersion uint8
	MinorVersion uint8
}

// StcDeregister returns a slave to ALIVE
type StcDeregister struct {
	SeqID    uint16
	Receiver uint8
	State    types.DcpState
}

// StcPrepare moves a configured slave to PREPARING
type StcPrepare struct {
	SeqID    uint16
	Receiver uint8
	State    types.DcpState
}

// StcConfigure moves a prepared slave to CONFIGURING
type StcConfigure struct {
	SeqID    uint16
	Receiver uint8
	State    types.DcpState
}

// StcInitialize moves a configured slave to INITIALIZING
type StcInitialize struct {
	SeqID    uint16
	Receiver uint8
	State    types.DcpState
}

// StcRun starts (or synchronizes) the simulation at StartTime
type StcRun struct {
	SeqID     uint16
	Receiver  uint8
	State     types.DcpState
	StartTime types.DcpTime
}

// StcDoStep advances a non real-time slave by Steps steps
type StcDoStep struct {
	SeqID    uint16
	Receiver uint8
	State    types.DcpState
	Steps    uint32
}

// StcSendOutputs asks an initialized or computed slave to send its outputs
type StcSendOutputs struct {
	SeqID    uint16
	Receiver uint8
	State    types.DcpState
}

// StcStop stops the simulation
type StcStop struct {
	SeqID    uint16
	Receiver uint8
	State    types.DcpState
}

// StcReset returns a stopped or recovered slave to CONFIGURATION
type StcReset struct {
	SeqID    uint16
	Receiver uint8
	State    types.DcpState
}

// Configuration requests

// CfgTimeRes sets the time resolution numerator/denominator seconds
type CfgTimeRes struct {
	SeqID       uint16
	Receiver    uint8
	Numerator   uint32
	Denominator uint32
}

// CfgSteps sets the step count between two data PDUs of DataID
type CfgSteps struct {
	SeqID    uint16
	Receiver uint8
	DataID   uint16
	Steps    uint32
}

// CfgInput maps position Pos of DataID to input TargetVR
type CfgInput struct {
	SeqID          uint16
	Receiver       uint8
	DataID         uint16
	Pos            uint16
	TargetVR       uint64
	SourceDataType types.DataType
}

// CfgOutput maps position Pos of DataID to output SourceVR
type CfgOutput struct {
	SeqID    uint16
	Receiver uint8
	DataID   uint16
	Pos      uint16
	SourceVR uint64
}

// CfgClear drops all configuration applied since registration
type CfgClear struct {
	SeqID    uint16
	Receiver uint8
}

// NetworkAddress is the transport-specific tail of network information PDUs.
// Port and IP are only meaningful when Protocol carries an IPv4 address;
// otherwise Opaque holds the uninterpreted tail.
type NetworkAddress struct {
	Protocol types.TransportProtocol
	Port     uint16
	IP       uint32
	Opaque   []byte
}

// CfgTargetNetworkInformation tells a slave where to send output DataID
type CfgTargetNetworkInformation struct {
	SeqID    uint16
	Receiver uint8
	DataID   uint16
	Address  NetworkAddress
}

// CfgSourceNetworkInformation tells a slave where input DataID arrives
type CfgSourceNetworkInformation struct {
	SeqID    uint16
	Receiver uint8
	DataID   uint16
	Address  NetworkAddress
}

// CfgParameter writes Configuration directly into parameter ParameterVR
type CfgParameter struct {
	SeqID          uint16
	Receiver       uint8
	ParameterVR    uint64
	SourceDataType types.DataType
	Configuration  []byte
}

// CfgTunableParameter maps position Pos of ParamID to parameter ParameterVR
type CfgTunableParameter struct {
	SeqID          uint16
	Receiver       uint8
	ParamID        uint16
	Pos            uint16
	ParameterVR    uint64
	SourceDataType types.DataType
}

// CfgParamNetworkInformation tells a slave where tunable parameters ParamID arrive
type CfgParamNetworkInformation struct {
	SeqID    uint16
	Receiver uint8
	ParamID  uint16
	Address  NetworkAddress
}

// CfgLogging sets level and mode of a log category
type CfgLogging struct {
	SeqID       uint16
	Receiver    uint8
	LogCategory types.LogCategory
	LogLevel    types.LogLevel
	LogMode     types.LogMode
}

// CfgScope sets the scope of DataID
type CfgScope struct {
	SeqID    uint16
	Receiver uint8
	DataID   uint16
	Scope    types.Scope
}

// Information requests

// InfState requests the slave state. It doubles as the heartbeat.
type InfState struct {
	SeqID    uint16
	Receiver uint8
}

// InfError requests the last error of the slave
type InfError struct {
	SeqID    uint16
	Receiver uint8
}

// InfLog requests up to LogMaxNum buffered log entries of LogCategory
type InfLog struct {
	SeqID       uint16
	Receiver    uint8
	LogCategory types.LogCategory
	LogMaxNum   uint8
}

// Responses

// RspAck acknowledges the request with pdu_seq_id RespSeqID
type RspAck struct {
	RespSeqID uint16
	Sender    uint8
}

// RspNack rejects the request with pdu_seq_id RespSeqID
type RspNack struct {
	RespSeqID uint16
	Sender    uint8
	ErrorCode types.DcpError
}

// RspStateAck answers INF_state
type RspStateAck struct {
	RespSeqID uint16
	Sender    uint8
	State     types.DcpState
}

// RspErrorAck answers INF_error
type RspErrorAck struct {
	RespSeqID uint16
	Sender    uint8
	ErrorCode types.DcpError
}

// RspLogAck answers INF_log. Entries holds packed log entries, see EncodeLogEntry.
type RspLogAck struct {
	RespSeqID uint16
	Sender    uint8
	Entries   []byte
}

// Notifications

// NtfStateChanged announces a new slave state
type NtfStateChanged struct {
	Sender uint8
	State  types.DcpState
}

// NtfLog pushes one log entry
type NtfLog struct {
	Sender     uint8
	Time       types.DcpTime
	TemplateID uint8
	Args       []byte
}

// Data

// DatInputOutput carries the packed values of DataID
type DatInputOutput struct {
	SeqID   uint16
	DataID  uint16
	Payload []byte
}

// DatParameter carries the packed tunable parameters of ParamID
type DatParameter struct {
	SeqID   uint16
	ParamID uint16
	Payload []byte
}

// Raw is a frame whose type_id this implementation does not interpret
type Raw struct {
	TypeID types.PduType
	Body   []byte
}

// Type implementations

func (*StcRegister) Type() types.PduType                 { return types.PduStcRegister }
func (*StcDeregister) Type() types.PduType               { return types.PduStcDeregister }
func (*StcPrepare) Type() types.PduType                  { return types.PduStcPrepare }
func (*StcConfigure) Type() types.PduType                { return types.PduStcConfigure }
func (*StcInitialize) Type() types.PduType               { return types.PduStcInitialize }
func (*StcRun) Type() types.PduType                      { return types.PduStcRun }
func (*StcDoStep) Type() types.PduType                   { return types.PduStcDoStep }
func (*StcSendOutputs) Type() types.PduType              { return types.PduStcSendOutputs }
func (*StcStop) Type() types.PduType                     { return types.PduStcStop }
func (*StcReset) Type() types.PduType                    { return types.PduStcReset }
func (*CfgTimeRes) Type() types.PduType                  { return types.PduCfgTimeRes }
func (*CfgSteps) Type() types.PduType                    { return types.PduCfgSteps }
func (*CfgInput) Type() types.PduType                    { return types.PduCfgInput }
func (*CfgOutput) Type() types.PduType                   { return types.PduCfgOutput }
func (*CfgClear) Type() types.PduType                    { return types.PduCfgClear }
func (*CfgTargetNetworkInformation) Type() types.PduType { return types.PduCfgTargetNetworkInformation }
func (*CfgSourceNetworkInformation) Type() types.PduType { return types.PduCfgSourceNetworkInformation }
func (*CfgParameter) Type() types.PduType                { return types.PduCfgParameter }
func (*CfgTunableParameter) Type() types.PduType         { return types.PduCfgTunableParameter }
func (*CfgParamNetworkInformation) Type() types.PduType  { return types.PduCfgParamNetworkInformation }
func (*CfgLogging) Type() types.PduType                  { return types.PduCfgLogging }
func (*CfgScope) Type() types.PduType                    { return types.PduCfgScope }
func (*InfState) Type() types.PduType                    { return types.PduInfState }
func (*InfError) Type() types.PduType                    { return types.PduInfError }
func (*InfLog) Type() types.PduType                      { return types.PduInfLog }
func (*RspAck) Type() types.PduType                      { return types.PduRspAck }
func (*RspNack) Type() types.PduType                     { return types.PduRspNack }
func (*RspStateAck) Type() types.PduType                 { return types.PduRspStateAck }
func (*RspErrorAck) Type() types.PduType                 { return types.PduRspErrorAck }
func (*RspLogAck) Type() types.PduType                   { return types.PduRspLogAck }
func (*NtfStateChanged) Type() types.PduType             { return types.PduNtfStateChanged }
func (*NtfLog) Type() types.PduType                      { return types.PduNtfLog }
func (*DatInputOutput) Type() types.PduType              { return types.PduDatInputOutput }
func (*DatParameter) Type() types.PduType                { return types.PduDatParameter }
func (r *Raw) Type() types.PduType                       { return r.TypeID }

// ControlHeader returns pdu_seq_id and receiver of master requests (STC, CFG, INF).
// ok is false for every other PDU.
func ControlHeader(p PDU) (seq uint16, receiver uint8, ok bool) {
	switch v := p.(type) {
	case *StcRegister:
		return v.SeqID, v.Receiver, true
	case *StcDeregister:
		return v.SeqID, v.Receiver, true
	case *StcPrepare:
		return v.SeqID, v.Receiver, true
	case *StcConfigure:
		return v.SeqID, v.Receiver, true
	case *StcInitialize:
		return v.SeqID, v.Receiver, true
	case *StcRun:
		return v.SeqID, v.Receiver, true
	case *StcDoStep:
		return v.SeqID, v.Receiver, true
	case *StcSendOutputs:
		return v.SeqID, v.Receiver, true
	case *StcStop:
		return v.SeqID, v.Receiver, true
	case *StcReset:
		return v.SeqID, v.Receiver, true
	case *CfgTimeRes:
		return v.SeqID, v.Receiver, true
	case *CfgSteps:
		return v.SeqID, v.Receiver, true
	case *CfgInput:
		return v.SeqID, v.Receiver, true
	case *CfgOutput:
		return v.SeqID, v.Receiver, true
	case *CfgClear:
		return v.SeqID, v.Receiver, true
	case *CfgTargetNetworkInformation:
		return v.SeqID, v.Receiver, true
	case *CfgSourceNetworkInformation:
		return v.SeqID, v.Receiver, true
	case *CfgParameter:
		return v.SeqID, v.Receiver, true
	case *CfgTunableParameter:
		return v.SeqID, v.Receiver, true
	case *CfgParamNetworkInformation:
		return v.SeqID, v.Receiver, true
	case *CfgLogging:
		return v.SeqID, v.Receiver, true
	case *CfgScope:
		return v.SeqID, v.Receiver, true
	case *InfState:
		return v.SeqID, v.Receiver, true
	case *InfError:
		return v.SeqID, v.Receiver, true
	case *InfLog:
		return v.SeqID, v.Receiver, true
	}
	return 0, 0, false
}

// SetControlHeader overwrites pdu_seq_id and receiver of a master request.
// It returns false for PDUs without a control header.
func SetControlHeader(p PDU, seq uint16, receiver uint8) bool {
	switch v := p.(type) {
	case *StcRegister:
		v.SeqID, v.Receiver = seq, receiver
	case *StcDeregister:
		v.SeqID, v.Receiver = seq, receiver
	case *StcPrepare:
		v.SeqID, v.Receiver = seq, receiver
	case *StcConfigure:
		v.SeqID, v.Receiver = seq, receiver
	case *StcInitialize:
		v.SeqID, v.Receiver = seq, receiver
	case *StcRun:
		v.SeqID, v.Receiver = seq, receiver
	case *StcDoStep:
		v.SeqID, v.Receiver = seq, receiver
	case *StcSendOutputs:
		v.SeqID, v.Receiver = seq, receiver
	case *StcStop:
		v.SeqID, v.Receiver = seq, receiver
	case *StcReset:
		v.SeqID, v.Receiver = seq, receiver
	case *CfgTimeRes:
		v.SeqID, v.Receiver = seq, receiver
	case *CfgSteps:
		v.SeqID, v.Receiver = seq, receiver
	case *CfgInput:
		v.SeqID, v.Receiver = seq, receiver
	case *CfgOutput:
		v.SeqID, v.Receiver = seq, receiver
	case *CfgClear:
		v.SeqID, v.Receiver = seq, receiver
	case *CfgTargetNetworkInformation:
		v.SeqID, v.Receiver = seq, receiver
	case *CfgSourceNetworkInformation:
		v.SeqID, v.Receiver = seq, receiver
	case *CfgParameter:
		v.SeqID, v.Receiver = seq, receiver
	case *CfgTunableParameter:
		v.SeqID, v.Receiver = seq, receiver
	case *CfgParamNetworkInformation:
		v.SeqID, v.Receiver = seq, receiver
	case *CfgLogging:
		v.SeqID, v.Receiver = seq, receiver
	case *CfgScope:
		v.SeqID, v.Receiver = seq, receiver
	case *InfState:
		v.SeqID, v.Receiver = seq, receiver
	case *InfError:
		v.SeqID, v.Receiver = seq, receiver
	case *InfLog:
		v.SeqID, v.Receiver = seq, receiver
	default:
		return false
	}
	return true
}

// ResponseHeader returns resp_seq_id and sender of RSP PDUs
func ResponseHeader(p PDU) (respSeq uint16, sender uint8, ok bool) {
	switch v := p.(type) {
	case *RspAck:
		return v.RespSeqID, v.Sender, true
	case *RspNack:
		return v.RespSeqID, v.Sender, true
	case *RspStateAck:
		return v.RespSeqID, v.Sender, true
	case *RspErrorAck:
		return v.RespSeqID, v.Sender, true
	case *RspLogAck:
		return v.RespSeqID, v.Sender, true
	}
	return 0, 0, false
}

// Sender returns the dcp id of the slave that sent a response or notification
func Sender(p PDU) (uint8, bool) {
	if _, sender, ok := ResponseHeader(p); ok {
		return sender, true
	}
	switch v := p.(type) {
	case *NtfStateChanged:
		return v.Sender, true
	case *NtfLog:
		return v.Sender, true
	}
	return 0, false
}

// String returns a short description of p for logging
func String(p PDU) string {
	if p == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s%+v", p.Type(), p)
}
