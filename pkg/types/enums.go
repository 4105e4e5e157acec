package types

// OpMode is the operating mode requested in STC_register
type OpMode uint8

const (
	OpModeHRT OpMode = 0 // hard real-time
	OpModeSRT OpMode = 1 // soft real-time
	OpModeNRT OpMode = 2 // non real-time
)

// String returns string representation of OpMode
func (m OpMode) String() string {
	switch m {
	case OpModeHRT:
		return "HRT"
	case OpModeSRT:
		return "SRT"
	case OpModeNRT:
		return "NRT"
	default:
		return "UNKNOWN"
	}
}

// IsRealTime returns true for HRT and SRT
func (m OpMode) IsRealTime() bool {
	return m == OpModeHRT || m == OpModeSRT
}

// ParseOpMode converts "HRT", "SRT" or "NRT" to an OpMode
func ParseOpMode(s string) (OpMode, bool) {
	switch s {
	case "HRT", "hrt":
		return OpModeHRT, true
	case "SRT", "srt":
		return OpModeSRT, true
	case "NRT", "nrt":
		return OpModeNRT, true
	default:
		return 0, false
	}
}

// TransportProtocol selects the address tail of network information PDUs
type TransportProtocol uint8

const (
	ProtocolUDPIPv4   TransportProtocol = 0
	ProtocolCANBased  TransportProtocol = 1
	ProtocolUSB       TransportProtocol = 2
	ProtocolBluetooth TransportProtocol = 3
	ProtocolTCPIPv4   TransportProtocol = 4
)

// String returns string representation of TransportProtocol
func (p TransportProtocol) String() string {
	switch p {
	case ProtocolUDPIPv4:
		return "UDP_IPv4"
	case ProtocolCANBased:
		return "CAN_BASED"
	case ProtocolUSB:
		return "USB"
	case ProtocolBluetooth:
		return "BLUETOOTH"
	case ProtocolTCPIPv4:
		return "TCP_IPv4"
	default:
		return "UNKNOWN"
	}
}

// HasIPv4Address returns true if network information for p carries port and IPv4 address
func (p TransportProtocol) HasIPv4Address() bool {
	return p == ProtocolUDPIPv4 || p == ProtocolTCPIPv4
}

// Scope limits in which states a data id exchanges data
type Scope uint8

const (
	ScopeInitRunNRT Scope = 0
	ScopeInit       Scope = 1
	ScopeRunNRT     Scope = 2
)

// String returns string representation of Scope
func (s Scope) String() string {
	switch s {
	case ScopeInitRunNRT:
		return "Initialization_Run_NonRealTime"
	case ScopeInit:
		return "Initialization"
	case ScopeRunNRT:
		return "Run_NonRealTime"
	default:
		return "UNKNOWN"
	}
}

// Valid returns true if s is a defined scope
func (s Scope) Valid() bool {
	return s <= ScopeRunNRT
}

// InInitialization returns true if the scope covers the initialization superstate
func (s Scope) InInitialization() bool {
	return s == ScopeInitRunNRT || s == ScopeInit
}

// InRun returns true if the scope covers the run and NRT superstates
func (s Scope) InRun() bool {
	return s == ScopeInitRunNRT || s == ScopeRunNRT
}

// LogLevel is the severity of a log entry
type LogLevel uint8

const (
	LogLevelFatal   LogLevel = 0
	LogLevelError   LogLevel = 1
	LogLevelWarning LogLevel = 2
	LogLevelInfo    LogLevel = 3
)

// String returns string representation of LogLevel
func (l LogLevel) String() string {
	switch l {
	case LogLevelFatal:
		return "FATAL"
	case LogLevelError:
		return "ERROR"
	case LogLevelWarning:
		return "WARNING"
	case LogLevelInfo:
		return "INFO"
	default:
		return "UNKNOWN"
	}
}

// LogMode selects how log entries of a category reach the master
type LogMode uint8

const (
	LogModeOnRequest      LogMode = 0 // buffered, answered via INF_log
	LogModeOnNotification LogMode = 1 // pushed via NTF_log
)

// String returns string representation of LogMode
func (m LogMode) String() string {
	switch m {
	case LogModeOnRequest:
		return "LOG_ON_REQUEST"
	case LogModeOnNotification:
		return "LOG_ON_NOTIFICATION"
	default:
		return "UNKNOWN"
	}
}

// LogCategory identifies a group of log templates. 0 addresses all categories in CFG_logging.
type LogCategory uint8

// LogCategoryAll is the wildcard category in CFG_logging and INF_log
const LogCategoryAll LogCategory = 0

// OperationMode selects whether a callback runs inline or on its own goroutine
type OperationMode uint8

const (
	Sync  OperationMode = 0
	Async OperationMode = 1
)

// String returns string representation of OperationMode
func (m OperationMode) String() string {
	if m == Async {
		return "ASYNC"
	}
	return "SYNC"
}
