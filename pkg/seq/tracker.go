// Package seq tracks DCP sequence numbers.
//
// Every channel (the control channel of a slave, each data id and each
// param id) owns an independent outbound counter and an inbound
// last-seen value. The control channel is strict: its last-seen value
// only advances on an exact +1 step. Data and parameter channels are best
// effort: they always move forward to the newest sequence number and only
// report gaps.
package seq

import (
	"fmt"
	"sync"
)

// Kind distinguishes the three sequence number spaces
type Kind uint8

const (
	Control Kind = iota // keyed by dcp id
	Data                // keyed by data id
	Param               // keyed by param id
)

// String returns string representation of Kind
func (k Kind) String() string {
	switch k {
	case Control:
		return "control"
	case Data:
		return "data"
	case Param:
		return "param"
	default:
		return "unknown"
	}
}

// Channel identifies one sequence number space
type Channel struct {
	Kind Kind
	ID   uint16
}

// ControlChannel returns the control channel of dcpID
func ControlChannel(dcpID uint8) Channel { return Channel{Kind: Control, ID: uint16(dcpID)} }

// DataChannel returns the channel of dataID
func DataChannel(dataID uint16) Channel { return Channel{Kind: Data, ID: dataID} }

// ParamChannel returns the channel of paramID
func ParamChannel(paramID uint16) Channel { return Channel{Kind: Param, ID: paramID} }

// String returns string representation of Channel
func (c Channel) String() string {
	return fmt.Sprintf("%s/%d", c.Kind, c.ID)
}

// Delta is seq - last_seen in wrapping u16 arithmetic.
// 1 means in order; 0 a duplicate; values above 0x7FFF an older frame.
type Delta uint16

// InOrder returns true if the frame directly follows the last one
func (d Delta) InOrder() bool {
	return d == 1
}

// Missed returns true if the frame did not directly follow the last one
func (d Delta) Missed() bool {
	return d != 1
}

// Lost returns the number of frames skipped ahead of this one,
// 0 for in-order, duplicate or older frames.
func (d Delta) Lost() int {
	if d == 0 || int16(d) < 0 {
		return 0
	}
	return int(d) - 1
}

// Stale returns true for duplicates and frames older than the last one
func (d Delta) Stale() bool {
	return d == 0 || int16(d) < 0
}

type inbound struct {
	seeded bool
	last   uint16
}

// Tracker keeps outbound counters and inbound last-seen values per channel.
// It is safe for concurrent use.
type Tracker struct {
	mu       sync.Mutex
	outbound map[Channel]*Counter
	inbound  map[Channel]*inbound
}

// NewTracker creates an empty tracker
func NewTracker() *Tracker {
	return &Tracker{
		outbound: make(map[Channel]*Counter),
		inbound:  make(map[Channel]*inbound),
	}
}

func (t *Tracker) counter(ch Channel) *Counter {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.outbound[ch]
	if !ok {
		c = NewCounter()
		t.outbound[ch] = c
	}
	return c
}

// NextOutbound returns the next outbound sequence number of ch
func (t *Tracker) NextOutbound(ch Channel) uint16 {
	return t.counter(ch).Next()
}

// SetOutbound sets the value NextOutbound will return for ch
func (t *Tracker) SetOutbound(ch Channel, next uint16) {
	t.counter(ch).Set(next)
}

// CheckInbound records seq as received on ch and returns seq - last_seen.
//
// The first observation on a channel seeds last_seen and reports 1.
// Control channels only advance last_seen when the delta is exactly 1.
// Data and param channels advance to seq whenever it is newer.
func (t *Tracker) CheckInbound(ch Channel, seq uint16) Delta {
	t.mu.Lock()
	defer t.mu.Unlock()

	in, ok := t.inbound[ch]
	if !ok {
		in = &inbound{}
		t.inbound[ch] = in
	}
	if !in.seeded {
		in.seeded = true
		in.last = seq
		return 1
	}

	d := Delta(seq - in.last)
	switch ch.Kind {
	case Control:
		if d == 1 {
			in.last = seq
		}
	default:
		if !d.Stale() {
			in.last = seq
		}
	}
	return d
}

// Resync makes seq the inbound baseline of ch: the next in-order frame is seq+1
func (t *Tracker) Resync(ch Channel, seq uint16) {
	t.mu.Lock()
	t.inbound[ch] = &inbound{seeded: true, last: seq}
	t.mu.Unlock()
}

// LastInbound returns the inbound baseline of ch and whether it has been seeded
func (t *Tracker) LastInbound(ch Channel) (uint16, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	in, ok := t.inbound[ch]
	if !ok || !in.seeded {
		return 0, false
	}
	return in.last, true
}

// ResetInbound forgets the inbound baseline of ch; the next frame seeds it again
func (t *Tracker) ResetInbound(ch Channel) {
	t.mu.Lock()
	delete(t.inbound, ch)
	t.mu.Unlock()
}

// ResetKind forgets inbound baselines and outbound counters of every channel of kind k
func (t *Tracker) ResetKind(k Kind) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for ch := range t.inbound {
		if ch.Kind == k {
			delete(t.inbound, ch)
		}
	}
	for ch := range t.outbound {
		if ch.Kind == k {
			delete(t.outbound, ch)
		}
	}
}

// Reset forgets all channels
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.outbound = make(map[Channel]*Counter)
	t.inbound = make(map[Channel]*inbound)
	t.mu.Unlock()
}
