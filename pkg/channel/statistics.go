package channel

import "sync/atomic"

// Statistics tracks channel-level statistics
type Statistics struct {
	// Frame statistics
	numFramesTx     uint64
	numFramesRx     uint64
	numBadFrames    uint64
	numSizeMismatch uint64

	// Delivery statistics
	numDropped     uint64
	numUnroutable  uint64
	numWriteErrors uint64
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	return &Statistics{}
}

// FrameTx increments transmitted frames
func (s *Statistics) FrameTx() {
	atomic.AddUint64(&s.numFramesTx, 1)
}

// FrameRx increments received frames
func (s *Statistics) FrameRx() {
	atomic.AddUint64(&s.numFramesRx, 1)
}

// BadFrame increments frames that could not be read or decoded
func (s *Statistics) BadFrame() {
	atomic.AddUint64(&s.numBadFrames, 1)
}

// SizeMismatch increments frames dropped for a wrong length
func (s *Statistics) SizeMismatch() {
	atomic.AddUint64(&s.numSizeMismatch, 1)
}

// Dropped increments frames received while not receiving
func (s *Statistics) Dropped() {
	atomic.AddUint64(&s.numDropped, 1)
}

// Unroutable increments PDUs sent without network information
func (s *Statistics) Unroutable() {
	atomic.AddUint64(&s.numUnroutable, 1)
}

// WriteError increments failed writes
func (s *Statistics) WriteError() {
	atomic.AddUint64(&s.numWriteErrors, 1)
}

// GetFramesTx returns transmitted frames
func (s *Statistics) GetFramesTx() uint64 {
	return atomic.LoadUint64(&s.numFramesTx)
}

// GetFramesRx returns received frames
func (s *Statistics) GetFramesRx() uint64 {
	return atomic.LoadUint64(&s.numFramesRx)
}

// GetBadFrames returns bad frames
func (s *Statistics) GetBadFrames() uint64 {
	return atomic.LoadUint64(&s.numBadFrames)
}

// GetSizeMismatches returns frames dropped for a wrong length
func (s *Statistics) GetSizeMismatches() uint64 {
	return atomic.LoadUint64(&s.numSizeMismatch)
}

// GetDropped returns frames received while not receiving
func (s *Statistics) GetDropped() uint64 {
	return atomic.LoadUint64(&s.numDropped)
}

// GetUnroutable returns PDUs sent without network information
func (s *Statistics) GetUnroutable() uint64 {
	return atomic.LoadUint64(&s.numUnroutable)
}

// GetWriteErrors returns failed writes
func (s *Statistics) GetWriteErrors() uint64 {
	return atomic.LoadUint64(&s.numWriteErrors)
}

// Reset resets all statistics
func (s *Statistics) Reset() {
	atomic.StoreUint64(&s.numFramesTx, 0)
	atomic.StoreUint64(&s.numFramesRx, 0)
	atomic.StoreUint64(&s.numBadFrames, 0)
	atomic.StoreUint64(&s.numSizeMismatch, 0)
	atomic.StoreUint64(&s.numDropped, 0)
	atomic.StoreUint64(&s.numUnroutable, 0)
	atomic.StoreUint64(&s.numWriteErrors, 0)
}
