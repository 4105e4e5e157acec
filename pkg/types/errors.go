package types

import "fmt"

// DcpError is the error code carried in RSP_nack, RSP_error_ack and reportError
type DcpError uint16

const (
	ErrNone DcpError = 0x0000

	// Protocol errors
	ErrProtocolGeneric                   DcpError = 0x1000
	ErrProtocolHeartbeatMissed           DcpError = 0x1001
	ErrProtocolPduNotAllowed             DcpError = 0x1002
	ErrProtocolPropertyViolated          DcpError = 0x1003
	ErrProtocolStateTransitionInProgress DcpError = 0x1004

	// Validation errors
	ErrInvalidLength             DcpError = 0x2001
	ErrInvalidLogCategory        DcpError = 0x2002
	ErrInvalidLogLevel           DcpError = 0x2003
	ErrInvalidLogMode            DcpError = 0x2004
	ErrInvalidMajorVersion       DcpError = 0x2005
	ErrInvalidMinorVersion       DcpError = 0x2006
	ErrInvalidNetworkInformation DcpError = 0x2007
	ErrInvalidOpMode             DcpError = 0x2008
	ErrInvalidPayload            DcpError = 0x2009
	ErrInvalidScope              DcpError = 0x200A
	ErrInvalidSourceDataType     DcpError = 0x200B
	ErrInvalidStartTime          DcpError = 0x200C
	ErrInvalidStateID            DcpError = 0x200D
	ErrInvalidSteps              DcpError = 0x200E
	ErrInvalidTimeResolution     DcpError = 0x200F
	ErrInvalidTransportProtocol  DcpError = 0x2010
	ErrInvalidUUID               DcpError = 0x2011
	ErrInvalidValueReference     DcpError = 0x2012
	ErrInvalidPort               DcpError = 0x2013

	// Incomplete configuration errors
	ErrIncompleteConfigGapInputPos   DcpError = 0x3001
	ErrIncompleteConfigGapOutputPos  DcpError = 0x3002
	ErrIncompleteConfigGapTunablePos DcpError = 0x3003
	ErrIncompleteConfigNwInfoInput   DcpError = 0x3004
	ErrIncompleteConfigNwInfoOutput  DcpError = 0x3005
	ErrIncompleteConfigNwInfoTunable DcpError = 0x3006
	ErrIncompleteConfigScope         DcpError = 0x3007
	ErrIncompleteConfigSteps         DcpError = 0x3008
	ErrIncompleteConfigTimeRes       DcpError = 0x3009

	// Not supported errors
	ErrNotSupportedLogOnNotification DcpError = 0x4001
	ErrNotSupportedLogOnRequest      DcpError = 0x4002
	ErrNotSupportedVariableSteps     DcpError = 0x4003
	ErrNotSupportedTransportProtocol DcpError = 0x4004
	ErrNotSupportedPdu               DcpError = 0x4005
	ErrNotSupportedPduSize           DcpError = 0x4006
)

// ErrorCategory groups DcpError codes by their high nibble
type ErrorCategory uint8

const (
	CategoryNone ErrorCategory = iota
	CategoryProtocol
	CategoryValidation
	CategoryIncompleteConfig
	CategoryNotSupported
)

// String returns string representation of ErrorCategory
func (c ErrorCategory) String() string {
	switch c {
	case CategoryNone:
		return "NONE"
	case CategoryProtocol:
		return "PROTOCOL_ERROR"
	case CategoryValidation:
		return "INVALID"
	case CategoryIncompleteConfig:
		return "INCOMPLETE_CONFIG"
	case CategoryNotSupported:
		return "NOT_SUPPORTED"
	default:
		return "UNKNOWN"
	}
}

var dcpErrorNames = map[DcpError]string{
	ErrNone:                              "NONE",
	ErrProtocolGeneric:                   "PROTOCOL_ERROR_GENERIC",
	ErrProtocolHeartbeatMissed:           "PROTOCOL_ERROR_HEARTBEAT_MISSED",
	ErrProtocolPduNotAllowed:             "PROTOCOL_ERROR_PDU_NOT_ALLOWED_IN_THIS_STATE",
	ErrProtocolPropertyViolated:          "PROTOCOL_ERROR_PROPERTY_VIOLATED",
	ErrProtocolStateTransitionInProgress: "PROTOCOL_ERROR_STATE_TRANSITION_IN_PROGRESS",
	ErrInvalidLength:                     "INVALID_LENGTH",
	ErrInvalidLogCategory:                "INVALID_LOG_CATEGORY",
	ErrInvalidLogLevel:                   "INVALID_LOG_LEVEL",
	ErrInvalidLogMode:                    "INVALID_LOG_MODE",
	ErrInvalidMajorVersion:               "INVALID_MAJOR_VERSION",
	ErrInvalidMinorVersion:               "INVALID_MINOR_VERSION",
	ErrInvalidNetworkInformation:         "INVALID_NETWORK_INFORMATION",
	ErrInvalidOpMode:                     "INVALID_OP_MODE",
	ErrInvalidPayload:                    "INVALID_PAYLOAD",
	ErrInvalidScope:                      "INVALID_SCOPE",
	ErrInvalidSourceDataType:             "INVALID_SOURCE_DATA_TYPE",
	ErrInvalidStartTime:                  "INVALID_START_TIME",
	ErrInvalidStateID:                    "INVALID_STATE_ID",
	ErrInvalidSteps:                      "INVALID_STEPS",
	ErrInvalidTimeResolution:             "INVALID_TIME_RESOLUTION",
	ErrInvalidTransportProtocol:          "INVALID_TRANSPORT_PROTOCOL",
	ErrInvalidUUID:                       "INVALID_UUID",
	ErrInvalidValueReference:             "INVALID_VALUE_REFERENCE",
	ErrInvalidPort:                       "INVALID_PORT",
	ErrIncompleteConfigGapInputPos:       "INCOMPLETE_CONFIG_GAP_INPUT_POS",
	ErrIncompleteConfigGapOutputPos:      "INCOMPLETE_CONFIG_GAP_OUTPUT_POS",
	ErrIncompleteConfigGapTunablePos:     "INCOMPLETE_CONFIG_GAP_TUNABLE_POS",
	ErrIncompleteConfigNwInfoInput:       "INCOMPLETE_CONFIG_NW_INFO_INPUT",
	ErrIncompleteConfigNwInfoOutput:      "INCOMPLETE_CONFIG_NW_INFO_OUTPUT",
	ErrIncompleteConfigNwInfoTunable:     "INCOMPLETE_CONFIG_NW_INFO_TUNABLE",
	ErrIncompleteConfigScope:             "INCOMPLETE_CONFIG_SCOPE",
	ErrIncompleteConfigSteps:             "INCOMPLETE_CONFIG_STEPS",
	ErrIncompleteConfigTimeRes:           "INCOMPLETE_CONFIG_TIME_RESOLUTION",
	ErrNotSupportedLogOnNotification:     "NOT_SUPPORTED_LOG_ON_NOTIFICATION",
	ErrNotSupportedLogOnRequest:          "NOT_SUPPORTED_LOG_ON_REQUEST",
	ErrNotSupportedVariableSteps:         "NOT_SUPPORTED_VARIABLE_STEPS",
	ErrNotSupportedTransportProtocol:     "NOT_SUPPORTED_TRANSPORT_PROTOCOL",
	ErrNotSupportedPdu:                   "NOT_SUPPORTED_PDU",
	ErrNotSupportedPduSize:               "NOT_SUPPORTED_PDU_SIZE",
}

// String returns string representation of DcpError
func (e DcpError) String() string {
	if name, ok := dcpErrorNames[e]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN_ERROR(0x%04X)", uint16(e))
}

// Category returns the category of the error code
func (e DcpError) Category() ErrorCategory {
	switch e >> 12 {
	case 0:
		return CategoryNone
	case 1:
		return CategoryProtocol
	case 2:
		return CategoryValidation
	case 3:
		return CategoryIncompleteConfig
	case 4:
		return CategoryNotSupported
	default:
		return CategoryNone
	}
}

// IsError returns true for every code except ErrNone
func (e DcpError) IsError() bool {
	return e != ErrNone
}

// ProtocolError wraps a DcpError as a Go error
type ProtocolError struct {
	Code DcpError
	Msg  string
}

// NewProtocolError creates a ProtocolError with an optional formatted message
func NewProtocolError(code DcpError, format string, args ...interface{}) *ProtocolError {
	return &ProtocolError{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Error implements error
func (e *ProtocolError) Error() string {
	if e.Msg == "" {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}
