package seq

import "sync"

// Counter hands out outbound pdu_seq_id values.
// Next post-increments and wraps at the u16 boundary.
type Counter struct {
	mu      sync.Mutex
	current uint16
}

// NewCounter creates a new sequence counter starting at 0
func NewCounter() *Counter {
	return &Counter{}
}

// Next returns the next sequence number and increments the counter
func (c *Counter) Next() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.current
	c.current++
	return v
}

// Current returns the value the next call to Next will return
func (c *Counter) Current() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Reset resets the sequence counter to 0
func (c *Counter) Reset() {
	c.Set(0)
}

// Set sets the value the next call to Next will return
func (c *Counter) Set(v uint16) {
	c.mu.Lock()
	c.current = v
	c.mu.Unlock()
}
