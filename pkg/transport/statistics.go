package transport

import (
	"sync/atomic"
	"time"
)

// Statistics tracks stream reassembly metrics
type Statistics struct {
	RxChunks        uint64
	RxFrames        uint64
	BadFrames       uint64
	BufferOverflows uint64
	Stalls          uint64

	// Timing (stored as Unix nano for atomic operations)
	lastRxTimeNano int64
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	return &Statistics{}
}

// IncrementRxChunks increments received chunk count
func (s *Statistics) IncrementRxChunks() {
	atomic.AddUint64(&s.RxChunks, 1)
}

// IncrementRxFrames increments completed frame count
func (s *Statistics) IncrementRxFrames() {
	atomic.AddUint64(&s.RxFrames, 1)
	atomic.StoreInt64(&s.lastRxTimeNano, time.Now().UnixNano())
}

// IncrementBadFrames increments corrupt length prefix count
func (s *Statistics) IncrementBadFrames() {
	atomic.AddUint64(&s.BadFrames, 1)
}

// IncrementBufferOverflows increments buffer overflow count
func (s *Statistics) IncrementBufferOverflows() {
	atomic.AddUint64(&s.BufferOverflows, 1)
}

// IncrementStalls increments discarded stalled frame count
func (s *Statistics) IncrementStalls() {
	atomic.AddUint64(&s.Stalls, 1)
}

// GetRxChunks returns received chunk count
func (s *Statistics) GetRxChunks() uint64 {
	return atomic.LoadUint64(&s.RxChunks)
}

// GetRxFrames returns completed frame count
func (s *Statistics) GetRxFrames() uint64 {
	return atomic.LoadUint64(&s.RxFrames)
}

// GetBadFrames returns corrupt length prefix count
func (s *Statistics) GetBadFrames() uint64 {
	return atomic.LoadUint64(&s.BadFrames)
}

// GetBufferOverflows returns buffer overflow count
func (s *Statistics) GetBufferOverflows() uint64 {
	return atomic.LoadUint64(&s.BufferOverflows)
}

// GetStalls returns discarded stalled frame count
func (s *Statistics) GetStalls() uint64 {
	return atomic.LoadUint64(&s.Stalls)
}

// GetLastRxTime returns the time the last frame completed
func (s *Statistics) GetLastRxTime() time.Time {
	nano := atomic.LoadInt64(&s.lastRxTimeNano)
	if nano == 0 {
		return time.Time{}
	}
	return time.Unix(0, nano)
}

// Reset resets all statistics to zero
func (s *Statistics) Reset() {
	atomic.StoreUint64(&s.RxChunks, 0)
	atomic.StoreUint64(&s.RxFrames, 0)
	atomic.StoreUint64(&s.BadFrames, 0)
	atomic.StoreUint64(&s.BufferOverflows, 0)
	atomic.StoreUint64(&s.Stalls, 0)
	atomic.StoreInt64(&s.lastRxTimeNano, 0)
}
