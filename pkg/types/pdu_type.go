package types

// PduType is the type_id tag carried in byte 5 of every frame
type PduType uint8

const (
	// State transition commands (master -> slave)
	PduStcRegister    PduType = 0x01
	PduStcDeregister  PduType = 0x02
	PduStcPrepare     PduType = 0x03
	PduStcConfigure   PduType = 0x04
	PduStcInitialize  PduType = 0x05
	PduStcRun         PduType = 0x06
	PduStcDoStep      PduType = 0x07
	PduStcSendOutputs PduType = 0x08
	PduStcStop        PduType = 0x09
	PduStcReset       PduType = 0x0A

	// Configuration requests (master -> slave)
	PduCfgTimeRes                  PduType = 0x20
	PduCfgSteps                    PduType = 0x21
	PduCfgInput                    PduType = 0x22
	PduCfgOutput                   PduType = 0x23
	PduCfgClear                    PduType = 0x24
	PduCfgTargetNetworkInformation PduType = 0x25
	PduCfgSourceNetworkInformation PduType = 0x26
	PduCfgParameter                PduType = 0x27
	PduCfgTunableParameter         PduType = 0x28
	PduCfgParamNetworkInformation  PduType = 0x29
	PduCfgLogging                  PduType = 0x2A
	PduCfgScope                    PduType = 0x2B

	// Information requests (master -> slave)
	PduInfState PduType = 0x80
	PduInfError PduType = 0x81
	PduInfLog   PduType = 0x82

	// Responses (slave -> master)
	PduRspAck      PduType = 0xB0
	PduRspNack     PduType = 0xB1
	PduRspStateAck PduType = 0xB2
	PduRspErrorAck PduType = 0xB3
	PduRspLogAck   PduType = 0xB4

	// Notifications (slave -> master)
	PduNtfStateChanged PduType = 0xE0
	PduNtfLog          PduType = 0xE1

	// Data (any direction)
	PduDatInputOutput PduType = 0xF0
	PduDatParameter   PduType = 0xF1
)

var pduTypeNames = map[PduType]string{
	PduStcRegister:                 "STC_register",
	PduStcDeregister:               "STC_deregister",
	PduStcPrepare:                  "STC_prepare",
	PduStcConfigure:                "STC_configure",
	PduStcInitialize:               "STC_initialize",
	PduStcRun:                      "STC_run",
	PduStcDoStep:                   "STC_do_step",
	PduStcSendOutputs:              "STC_send_outputs",
	PduStcStop:                     "STC_stop",
	PduStcReset:                    "STC_reset",
	PduCfgTimeRes:                  "CFG_time_res",
	PduCfgSteps:                    "CFG_steps",
	PduCfgInput:                    "CFG_input",
	PduCfgOutput:                   "CFG_output",
	PduCfgClear:                    "CFG_clear",
	PduCfgTargetNetworkInformation: "CFG_target_network_information",
	PduCfgSourceNetworkInformation: "CFG_source_network_information",
	PduCfgParameter:                "CFG_parameter",
	PduCfgTunableParameter:         "CFG_tunable_parameter",
	PduCfgParamNetworkInformation:  "CFG_param_network_information",
	PduCfgLogging:                  "CFG_logging",
	PduCfgScope:                    "CFG_scope",
	PduInfState:                    "INF_state",
	PduInfError:                    "INF_error",
	PduInfLog:                      "INF_log",
	PduRspAck:                      "RSP_ack",
	PduRspNack:                     "RSP_nack",
	PduRspStateAck:                 "RSP_state_ack",
	PduRspErrorAck:                 "RSP_error_ack",
	PduRspLogAck:                   "RSP_log_ack",
	PduNtfStateChanged:             "NTF_state_changed",
	PduNtfLog:                      "NTF_log",
	PduDatInputOutput:              "DAT_input_output",
	PduDatParameter:                "DAT_parameter",
}

// String returns string representation of PduType
func (t PduType) String() string {
	if name, ok := pduTypeNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// Known returns true if t is a PDU type this implementation interprets
func (t PduType) Known() bool {
	_, ok := pduTypeNames[t]
	return ok
}

// IsStc returns true for state transition commands
func (t PduType) IsStc() bool {
	return t >= PduStcRegister && t <= PduStcReset
}

// IsCfg returns true for configuration requests
func (t PduType) IsCfg() bool {
	return t >= PduCfgTimeRes && t <= PduCfgScope
}

// IsInf returns true for information requests
func (t PduType) IsInf() bool {
	return t >= PduInfState && t <= PduInfLog
}

// IsRsp returns true for responses
func (t PduType) IsRsp() bool {
	return t >= PduRspAck && t <= PduRspLogAck
}

// IsNtf returns true for notifications
func (t PduType) IsNtf() bool {
	return t == PduNtfStateChanged || t == PduNtfLog
}

// IsData returns true for data PDUs
func (t PduType) IsData() bool {
	return t == PduDatInputOutput || t == PduDatParameter
}

// IsControl returns true for PDUs travelling on the control channel
// (everything a master sends that carries a pdu_seq_id and a receiver)
func (t PduType) IsControl() bool {
	return t.IsStc() || t.IsCfg() || t.IsInf()
}
