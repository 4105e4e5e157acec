package logger

import (
	"encoding/hex"
	"strings"
	"sync/atomic"
)

var frameDebug atomic.Bool

// SetFrameDebug enables or disables hex dumps of every frame
func SetFrameDebug(enable bool) {
	frameDebug.Store(enable)
}

// FrameDebugEnabled reports whether frame dumps are enabled
func FrameDebugEnabled() bool {
	return frameDebug.Load()
}

// Frame logs a hex dump of data at debug level when frame debug is enabled
func Frame(l Logger, prefix string, data []byte) {
	if !frameDebug.Load() {
		return
	}
	dump := strings.TrimRight(hex.Dump(data), "\n")
	l.Debug("%s (%d bytes)\n%s", prefix, len(data), dump)
}
