package master

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sourcegraph/conc"

	"avaneesh/dcp-go/pkg/types"
)

var ErrInvalidHeartbeat = errors.New("master: invalid heartbeat interval")

// heartbeat sends INF_state to one slave every interval
type heartbeat struct {
	interval time.Duration
	cancel   context.CancelFunc
	wg       conc.WaitGroup
}

func startHeartbeat(parent context.Context, interval time.Duration, beat func()) *heartbeat {
	ctx, cancel := context.WithCancel(parent)
	h := &heartbeat{interval: interval, cancel: cancel}
	h.wg.Go(func() { h.run(ctx, beat) })
	return h
}

// run beats on absolute deadlines start + n*interval
func (h *heartbeat) run(ctx context.Context, beat func()) {
	next := time.Now().Add(h.interval)
	timer := time.NewTimer(h.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		beat()
		next = next.Add(h.interval)
		timer.Reset(time.Until(next))
	}
}

// stop cancels the sender and waits for it to return
func (h *heartbeat) stop() {
	h.cancel()
	h.wg.Wait()
}

// EnableHeartbeat sends INF_state to dcpID every num/den seconds. Enabling
// a running heartbeat with the same interval does nothing; a different
// interval restarts it.
func (m *Master) EnableHeartbeat(dcpID uint8, num, den uint32) error {
	interval := types.Resolution{Numerator: num, Denominator: den}.Duration(1)
	if interval <= 0 {
		return fmt.Errorf("%w: %d/%d", ErrInvalidHeartbeat, num, den)
	}

	m.mu.Lock()
	sess, ok := m.sessions[dcpID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrUnknownSlave, dcpID)
	}
	old := sess.hb
	if old != nil && old.interval == interval {
		m.mu.Unlock()
		return nil
	}
	sess.hb = startHeartbeat(m.ctx, interval, func() {
		if _, err := m.InfState(dcpID); err != nil {
			m.logger.Warn("Master %s: heartbeat to slave %d: %v", m.config.ID, dcpID, err)
		}
	})
	m.mu.Unlock()

	if old != nil {
		old.stop()
	}
	m.logger.Info("Master %s: heartbeat to slave %d every %v", m.config.ID, dcpID, interval)
	return nil
}

// DisableHeartbeat stops the heartbeat of dcpID and waits for the sender to exit
func (m *Master) DisableHeartbeat(dcpID uint8) error {
	m.mu.Lock()
	sess, ok := m.sessions[dcpID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrUnknownSlave, dcpID)
	}
	hb := sess.hb
	sess.hb = nil
	m.mu.Unlock()

	if hb != nil {
		hb.stop()
		m.logger.Info("Master %s: heartbeat to slave %d disabled", m.config.ID, dcpID)
	}
	return nil
}
