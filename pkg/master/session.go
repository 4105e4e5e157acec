package master

import (
	"avaneesh/dcp-go/pkg/types"
)

// session is the master's bookkeeping of one slave
type session struct {
	dcpID uint8

	// last state reported through NTF_state_changed or RSP_state_ack
	state      types.DcpState
	stateKnown bool

	registered      bool
	registering     bool
	lastRegisterSeq uint16
	clearing        bool
	lastClearSeq    uint16

	// requests maps pdu_seq_id of unanswered requests to their type
	requests map[uint16]types.PduType

	burst *burst
	hb    *heartbeat
}

func newSession(dcpID uint8) *session {
	return &session{
		dcpID:    dcpID,
		requests: make(map[uint16]types.PduType),
	}
}

func (s *session) setState(state types.DcpState) {
	s.state = state
	s.stateKnown = true
}

// sent records a request of type t sent with pdu_seq_id seqID
func (s *session) sent(t types.PduType, seqID uint16) {
	switch t {
	case types.PduStcRegister:
		// requests of an earlier registration will not be answered
		s.requests = make(map[uint16]types.PduType)
		s.registering = true
		s.lastRegisterSeq = seqID
	case types.PduCfgClear:
		s.clearing = true
		s.lastClearSeq = seqID
	}
	s.requests[seqID] = t
}
