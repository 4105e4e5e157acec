package types

// DcpState is the state of a slave's DCP state machine
type DcpState uint8

const (
	StateAlive         DcpState = 0x00
	StateConfiguration DcpState = 0x01
	StatePreparing     DcpState = 0x02
	StatePrepared      DcpState = 0x03
	StateConfiguring   DcpState = 0x04
	StateConfigured    DcpState = 0x05
	StateInitializing  DcpState = 0x06
	StateInitialized   DcpState = 0x07
	StateSendingI      DcpState = 0x08
	StateSynchronizing DcpState = 0x09
	StateSynchronized  DcpState = 0x0A
	StateRunning       DcpState = 0x0B
	StateComputing     DcpState = 0x0C
	StateComputed      DcpState = 0x0D
	StateSendingD      DcpState = 0x0E
	StateStopping      DcpState = 0x0F
	StateStopped       DcpState = 0x10
	StateErrorHandling DcpState = 0x11
	StateErrorResolved DcpState = 0x12
)

var stateNames = map[DcpState]string{
	StateAlive:         "ALIVE",
	StateConfiguration: "CONFIGURATION",
	StatePreparing:     "PREPARING",
	StatePrepared:      "PREPARED",
	StateConfiguring:   "CONFIGURING",
	StateConfigured:    "CONFIGURED",
	StateInitializing:  "INITIALIZING",
	StateInitialized:   "INITIALIZED",
	StateSendingI:      "SENDING_I",
	StateSynchronizing: "SYNCHRONIZING",
	StateSynchronized:  "SYNCHRONIZED",
	StateRunning:       "RUNNING",
	StateComputing:     "COMPUTING",
	StateComputed:      "COMPUTED",
	StateSendingD:      "SENDING_D",
	StateStopping:      "STOPPING",
	StateStopped:       "STOPPED",
	StateErrorHandling: "ERROR_HANDLING",
	StateErrorResolved: "ERROR_RESOLVED",
}

// String returns string representation of DcpState
func (s DcpState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// Valid returns true if s is a defined state
func (s DcpState) Valid() bool {
	_, ok := stateNames[s]
	return ok
}

// IsRunPhase returns true for states in which periodic data exchange happens
func (s DcpState) IsRunPhase() bool {
	switch s {
	case StateSynchronizing, StateSynchronized, StateRunning,
		StateComputing, StateComputed, StateSendingD:
		return true
	default:
		return false
	}
}

// AllowsStop returns true if STC_stop is accepted in s
func (s DcpState) AllowsStop() bool {
	switch s {
	case StatePrepared, StateConfiguring, StateConfigured, StateInitializing,
		StateInitialized, StateSendingI, StateSynchronizing, StateSynchronized,
		StateRunning, StateComputing, StateComputed, StateSendingD:
		return true
	default:
		return false
	}
}
