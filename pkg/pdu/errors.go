package pdu

import (
	"errors"
	"fmt"

	"avaneesh/dcp-go/pkg/types"
)

// FrameErrorKind classifies decode failures
type FrameErrorKind int

const (
	// SizeMismatch means the frame size does not fit its declared length or its type's size
	SizeMismatch FrameErrorKind = iota
)

// String returns string representation of FrameErrorKind
func (k FrameErrorKind) String() string {
	switch k {
	case SizeMismatch:
		return "size mismatch"
	default:
		return "unknown"
	}
}

// FrameError is returned by Decode for malformed frames
type FrameError struct {
	Kind     FrameErrorKind
	TypeID   types.PduType
	Expected int // bytes counted from type_id
	Received int // bytes counted from type_id
}

// Error implements error
func (e *FrameError) Error() string {
	return fmt.Sprintf("pdu: %s for %s (0x%02X): expected %d bytes, received %d",
		e.Kind, e.TypeID, uint8(e.TypeID), e.Expected, e.Received)
}

func sizeMismatch(t types.PduType, expected, received int) *FrameError {
	return &FrameError{Kind: SizeMismatch, TypeID: t, Expected: expected, Received: received}
}

// IsSizeMismatch reports whether err is a FrameError of kind SizeMismatch
func IsSizeMismatch(err error) bool {
	var fe *FrameError
	return errors.As(err, &fe) && fe.Kind == SizeMismatch
}
