// Package transport splits byte streams into complete DCP frames.
//
// Datagram transports deliver whole frames; stream transports (TCP, QUIC)
// deliver arbitrary chunks that are cut at the length prefix here.
package transport

import (
	"bytes"
	"errors"
	"time"

	"avaneesh/dcp-go/pkg/pdu"
)

var (
	ErrFrameTooLarge  = errors.New("transport: announced frame exceeds maximum size")
	ErrFrameTooSmall  = errors.New("transport: announced frame smaller than minimum size")
	ErrBufferOverflow = errors.New("transport: reassembly buffer overflow")
)

// DefaultMaxFrameSize is the default maximum frame size on streams
const DefaultMaxFrameSize = 64 * 1024

// Reassembler cuts length-prefixed frames out of a byte stream
type Reassembler struct {
	cfg        Config
	buffer     bytes.Buffer
	lastGrowth time.Time
	stats      *Statistics
	now        func() time.Time
}

// NewReassembler creates a new stream reassembler
func NewReassembler(cfg Config) *Reassembler {
	if cfg.MaxFrameSize <= 0 {
		cfg.MaxFrameSize = DefaultMaxFrameSize
	}
	return &Reassembler{
		cfg:   cfg,
		stats: NewStatistics(),
		now:   time.Now,
	}
}

// Process appends chunk to the stream and returns every frame it completes.
// On a corrupt length prefix the buffered bytes are dropped and an error is
// returned together with the frames completed before it.
func (r *Reassembler) Process(chunk []byte) ([][]byte, error) {
	now := r.now()
	if r.cfg.StallTimeout > 0 && r.buffer.Len() > 0 && now.Sub(r.lastGrowth) > r.cfg.StallTimeout {
		r.stats.IncrementStalls()
		r.buffer.Reset()
	}
	if len(chunk) > 0 {
		r.lastGrowth = now
		r.stats.IncrementRxChunks()
	}
	if r.buffer.Len()+len(chunk) > 2*r.cfg.MaxFrameSize {
		r.stats.IncrementBufferOverflows()
		r.Reset()
		return nil, ErrBufferOverflow
	}
	r.buffer.Write(chunk)

	var frames [][]byte
	for {
		data := r.buffer.Bytes()
		size := pdu.PeekLength(data)
		if size == 0 {
			return frames, nil
		}
		if size < pdu.MinFrameSize {
			r.stats.IncrementBadFrames()
			r.Reset()
			return frames, ErrFrameTooSmall
		}
		if size > r.cfg.MaxFrameSize {
			r.stats.IncrementBadFrames()
			r.Reset()
			return frames, ErrFrameTooLarge
		}
		if len(data) < size {
			return frames, nil
		}

		frame := make([]byte, size)
		copy(frame, data[:size])
		r.buffer.Next(size)
		r.stats.IncrementRxFrames()
		frames = append(frames, frame)
	}
}

// Reset drops any partially received frame
func (r *Reassembler) Reset() {
	r.buffer.Reset()
}

// Pending returns the number of buffered bytes not yet forming a frame
func (r *Reassembler) Pending() int {
	return r.buffer.Len()
}

// Statistics returns the reassembler counters
func (r *Reassembler) Statistics() *Statistics {
	return r.stats
}
