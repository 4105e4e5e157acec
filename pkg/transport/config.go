package transport

import "time"

// Config holds configuration for stream reassembly
type Config struct {
	// MaxFrameSize is the largest frame (length prefix included) accepted
	// from a stream. Larger announcements reset the stream state.
	// Default: 64 KiB
	MaxFrameSize int

	// StallTimeout discards a partial frame that has not grown for this long.
	// Zero disables the check.
	// Default: 5 seconds
	StallTimeout time.Duration
}

// DefaultConfig returns default reassembly configuration
func DefaultConfig() Config {
	return Config{
		MaxFrameSize: DefaultMaxFrameSize,
		StallTimeout: 5 * time.Second,
	}
}
