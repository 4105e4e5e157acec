package seq

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCounter_Wraps(t *testing.T) {
	c := NewCounter()
	c.Set(0xFFFE)

	assert.Equal(t, uint16(0xFFFE), c.Next())
	assert.Equal(t, uint16(0xFFFF), c.Next())
	assert.Equal(t, uint16(0), c.Next())
	assert.Equal(t, uint16(1), c.Current())

	c.Reset()
	assert.Equal(t, uint16(0), c.Next())
}

func TestTracker_OutboundPerChannel(t *testing.T) {
	tr := NewTracker()

	assert.Equal(t, uint16(0), tr.NextOutbound(DataChannel(1)))
	assert.Equal(t, uint16(1), tr.NextOutbound(DataChannel(1)))
	assert.Equal(t, uint16(0), tr.NextOutbound(DataChannel(2)))
	assert.Equal(t, uint16(0), tr.NextOutbound(ParamChannel(1)))
	assert.Equal(t, uint16(0), tr.NextOutbound(ControlChannel(1)))

	tr.SetOutbound(ControlChannel(1), 40)
	assert.Equal(t, uint16(40), tr.NextOutbound(ControlChannel(1)))
}

// TestTracker_ControlStrict tests that the control channel only advances on +1
func TestTracker_ControlStrict(t *testing.T) {
	tr := NewTracker()
	ch := ControlChannel(3)

	tests := []struct {
		seq   uint16
		delta Delta
		last  uint16
	}{
		{10, 1, 10}, // seeds
		{11, 1, 11},
		{13, 2, 11}, // gap, baseline stays
		{14, 3, 11}, // still stalled
		{12, 1, 12}, // the missing one
		{12, 0, 12}, // duplicate
		{13, 1, 13},
	}

	for i, tt := range tests {
		d := tr.CheckInbound(ch, tt.seq)
		if d != tt.delta {
			t.Errorf("step %d: CheckInbound(%d) = %d, want %d", i, tt.seq, d, tt.delta)
		}
		last, _ := tr.LastInbound(ch)
		if last != tt.last {
			t.Errorf("step %d: last = %d, want %d", i, last, tt.last)
		}
	}
}

// TestTracker_DataBestEffort tests forward-only update on data channels
func TestTracker_DataBestEffort(t *testing.T) {
	tr := NewTracker()
	ch := DataChannel(2)

	assert.Equal(t, Delta(1), tr.CheckInbound(ch, 3))

	d := tr.CheckInbound(ch, 5)
	assert.Equal(t, Delta(2), d)
	assert.True(t, d.Missed())
	assert.Equal(t, 1, d.Lost())

	// older frame does not move the baseline back
	d = tr.CheckInbound(ch, 4)
	assert.True(t, d.Stale())
	assert.Equal(t, 0, d.Lost())
	last, ok := tr.LastInbound(ch)
	assert.True(t, ok)
	assert.Equal(t, uint16(5), last)

	assert.Equal(t, Delta(1), tr.CheckInbound(ch, 6))
}

func TestTracker_Wrap(t *testing.T) {
	tr := NewTracker()
	ch := ParamChannel(1)

	tr.CheckInbound(ch, 0xFFFF)
	assert.Equal(t, Delta(1), tr.CheckInbound(ch, 0))
	assert.Equal(t, Delta(2), tr.CheckInbound(ch, 2))
}

// TestTracker_MissedExactlyOnce tests that a single skipped frame is reported once
func TestTracker_MissedExactlyOnce(t *testing.T) {
	tr := NewTracker()
	ch := DataChannel(7)

	missed := 0
	for _, s := range []uint16{1, 2, 3, 5, 6, 7} {
		if tr.CheckInbound(ch, s).Missed() {
			missed++
		}
	}
	assert.Equal(t, 1, missed)
}

func TestTracker_ResyncAndReset(t *testing.T) {
	tr := NewTracker()
	ctl := ControlChannel(1)

	tr.CheckInbound(ctl, 5)
	tr.Resync(ctl, 100)
	assert.Equal(t, Delta(1), tr.CheckInbound(ctl, 101))

	tr.CheckInbound(DataChannel(1), 9)
	tr.NextOutbound(DataChannel(1))
	tr.ResetKind(Data)
	_, ok := tr.LastInbound(DataChannel(1))
	assert.False(t, ok)
	assert.Equal(t, uint16(0), tr.NextOutbound(DataChannel(1)))

	_, ok = tr.LastInbound(ctl)
	assert.True(t, ok)

	tr.ResetInbound(ctl)
	assert.Equal(t, Delta(1), tr.CheckInbound(ctl, 7))

	tr.Reset()
	_, ok = tr.LastInbound(ctl)
	assert.False(t, ok)
}
