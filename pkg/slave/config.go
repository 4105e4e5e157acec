package slave

import (
	"time"

	"avaneesh/dcp-go/pkg/dcplog"
	"avaneesh/dcp-go/pkg/seq"
	"avaneesh/dcp-go/pkg/types"
)

// Config configures a slave
type Config struct {
	ID string

	// StateChangedNotification sends NTF_state_changed after every transition.
	// It is also enabled by ntf_state_changed in the description.
	StateChangedNotification bool

	// Heartbeat overrides the heartbeat interval of the description.
	// Zero uses the description; a negative value or a description without
	// heartbeat disables monitoring. The slave expires one interval after
	// the last INF_state, so masters should poll faster than the interval.
	Heartbeat time.Duration

	// LogBufferSize bounds the LOG_ON_REQUEST entries kept per category.
	// Zero uses the description's logging.buffer_size.
	LogBufferSize uint

	// Registry holds the log templates. Nil builds one from the description.
	Registry *dcplog.Registry

	// GateTimeout bounds how long a data PDU waits for a running step
	// before it is dropped.
	GateTimeout time.Duration
}

// DefaultSlaveConfig returns default slave configuration
func DefaultSlaveConfig() Config {
	return Config{
		ID:            "slave",
		LogBufferSize: 0,
		GateTimeout:   time.Second,
	}
}

// PhaseFunc is the callback of the prepare, configure, initialize and stop phases
type PhaseFunc func()

// StepFunc is the callback of the step phases; steps is the number of steps to compute
type StepFunc func(steps uint32)

// Listener signatures for notifications surfaced to the application
type (
	MissedControlPduListener func(dcpID uint8, received uint16, d seq.Delta)
	MissedDataPduListener    func(ch seq.Channel, received uint16, d seq.Delta)
	HeartbeatTimeoutListener func()
	StateChangedListener     func(from, to types.DcpState)
	ErrorListener            func(code types.DcpError)
)
