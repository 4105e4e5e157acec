package channel

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

var errPipeClosed = errors.New("pipe closed")

// PipeChannel is an in-memory PhysicalChannel. NewPipe returns two
// connected ends; each frame written on one end is read on the other.
type PipeChannel struct {
	in   chan []byte
	peer *PipeChannel

	closeChan chan struct{}
	closeOnce sync.Once

	bytesSent     atomic.Uint64
	bytesReceived atomic.Uint64
	writeErrors   atomic.Uint64

	listener   ConnectionStateListener
	listenerMu sync.RWMutex
}

// NewPipe creates a connected pair of pipe channels
func NewPipe() (*PipeChannel, *PipeChannel) {
	a := newPipeEnd()
	b := newPipeEnd()
	a.peer = b
	b.peer = a
	return a, b
}

func newPipeEnd() *PipeChannel {
	return &PipeChannel{
		in:        make(chan []byte, 128),
		closeChan: make(chan struct{}),
	}
}

// Read implements PhysicalChannel.Read
func (p *PipeChannel) Read(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.closeChan:
		return nil, errPipeClosed
	case data := <-p.in:
		p.bytesReceived.Add(uint64(len(data)))
		return data, nil
	}
}

// Write implements PhysicalChannel.Write
func (p *PipeChannel) Write(ctx context.Context, data []byte) error {
	frame := make([]byte, len(data))
	copy(frame, data)

	select {
	case <-p.closeChan:
		p.writeErrors.Add(1)
		return errPipeClosed
	case <-p.peer.closeChan:
		p.writeErrors.Add(1)
		return errPipeClosed
	default:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.peer.closeChan:
		p.writeErrors.Add(1)
		return errPipeClosed
	case p.peer.in <- frame:
		p.bytesSent.Add(uint64(len(data)))
		return nil
	}
}

// Inject queues a frame as if the peer had written it
func (p *PipeChannel) Inject(data []byte) {
	p.in <- data
}

// Close implements PhysicalChannel.Close
func (p *PipeChannel) Close() error {
	p.closeOnce.Do(func() {
		close(p.closeChan)

		p.peer.listenerMu.RLock()
		listener := p.peer.listener
		p.peer.listenerMu.RUnlock()
		if listener != nil {
			go listener.OnConnectionLost()
		}
	})
	return nil
}

// Statistics implements PhysicalChannel.Statistics
func (p *PipeChannel) Statistics() TransportStats {
	return TransportStats{
		BytesSent:     p.bytesSent.Load(),
		BytesReceived: p.bytesReceived.Load(),
		WriteErrors:   p.writeErrors.Load(),
		Connects:      1,
	}
}

// SetConnectionStateListener implements PhysicalChannel.SetConnectionStateListener
func (p *PipeChannel) SetConnectionStateListener(listener ConnectionStateListener) {
	p.listenerMu.Lock()
	p.listener = listener
	p.listenerMu.Unlock()
}
