package slave

import (
	"context"
	"sync"
	"time"

	"avaneesh/dcp-go/pkg/types"
)

// heartbeatMonitor moves the slave to ERROR_HANDLING when no INF_state
// arrives within the heartbeat interval
type heartbeatMonitor struct {
	s *Slave

	mu     sync.Mutex
	last   time.Time
	cancel context.CancelFunc
	run    uint64
}

func newHeartbeatMonitor(s *Slave) *heartbeatMonitor {
	return &heartbeatMonitor{s: s}
}

func (h *heartbeatMonitor) interval() time.Duration {
	switch {
	case h.s.config.Heartbeat < 0:
		return 0
	case h.s.config.Heartbeat > 0:
		return h.s.config.Heartbeat
	}
	if hb := h.s.desc.Heartbeat; hb != nil {
		return hb.Resolution().Duration(1)
	}
	return 0
}

// start begins monitoring, or refreshes the last heartbeat if already running
func (h *heartbeatMonitor) start() {
	interval := h.interval()
	if interval <= 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = time.Now()
	if h.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(h.s.ctx)
	h.cancel = cancel
	h.run++
	go h.monitor(ctx, h.run, interval)
}

// stop ends monitoring without waiting for the monitor goroutine
func (h *heartbeatMonitor) stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// touch records an INF_state
func (h *heartbeatMonitor) touch() {
	h.mu.Lock()
	h.last = time.Now()
	h.mu.Unlock()
}

// monitor sleeps until the last INF_state plus interval. Every touch moves
// that deadline, so the slave expires only after a full interval of silence.
func (h *heartbeatMonitor) monitor(ctx context.Context, run uint64, interval time.Duration) {
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		h.mu.Lock()
		last := h.last
		h.mu.Unlock()
		if wait := time.Until(last.Add(interval)); wait > 0 {
			timer.Reset(wait)
			continue
		}
		h.expire(run, time.Since(last))
		return
	}
}

func (h *heartbeatMonitor) expire(run uint64, gap time.Duration) {
	h.mu.Lock()
	if h.run != run || h.cancel == nil {
		h.mu.Unlock()
		return
	}
	h.cancel()
	h.cancel = nil
	h.mu.Unlock()

	s := h.s
	s.lock()
	defer s.unlock()
	s.logger.Warn("Slave %s: heartbeat missed, last INF_state %v ago", s.config.ID, gap.Round(time.Millisecond))
	s.listeners.heartbeatTimeout(s)
	s.gotoErrorHandling(types.ErrProtocolHeartbeatMissed)
}
