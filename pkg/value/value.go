// Package value holds strongly typed, possibly multi-dimensional DCP variables.
//
// Numeric values are kept packed little-endian in a byte buffer of exactly
// ElementSize * Count bytes. String and binary values keep one byte slice
// per element, each bounded by MaxSize.
package value

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"avaneesh/dcp-go/pkg/types"
)

// Errors
var (
	ErrRange           = errors.New("value: element exceeds declared max size")
	ErrShortPayload    = errors.New("value: payload shorter than value")
	ErrInvalidCast     = errors.New("value: source data type cannot be cast to stored type")
	ErrIndexOutOfRange = errors.New("value: index out of range")
	ErrTypeMismatch    = errors.New("value: accessor does not match stored type")
	ErrInvalidDims     = errors.New("value: dimensions must be positive")
	ErrBufferTooSmall  = errors.New("value: output buffer too small")
)

// MultiDimValue is one variable of a slave
type MultiDimValue struct {
	dataType types.DataType
	dims     []int
	maxSize  int // string/binary only; 0 means limited by the length prefix
	data     []byte
	elems    [][]byte
}

// New creates a zero-valued variable. A nil or empty dims slice is a scalar.
func New(dt types.DataType, dims []int, maxSize int) (*MultiDimValue, error) {
	if !dt.Valid() {
		return nil, fmt.Errorf("value: unknown data type %d", dt)
	}
	for _, d := range dims {
		if d <= 0 {
			return nil, ErrInvalidDims
		}
	}
	v := &MultiDimValue{
		dataType: dt,
		dims:     append([]int(nil), dims...),
		maxSize:  maxSize,
	}
	v.alloc(v.Count())
	return v, nil
}

// MustNew is like New but panics on error
func MustNew(dt types.DataType, dims []int, maxSize int) *MultiDimValue {
	v, err := New(dt, dims, maxSize)
	if err != nil {
		panic(err)
	}
	return v
}

func (v *MultiDimValue) alloc(count int) {
	if v.dataType.IsVariableLength() {
		v.elems = make([][]byte, count)
		return
	}
	v.data = make([]byte, count*v.dataType.Size())
}

// DataType returns the stored type
func (v *MultiDimValue) DataType() types.DataType { return v.dataType }

// ElementSize returns the size of one element in bytes, or MaxSize for string and binary
func (v *MultiDimValue) ElementSize() int {
	if v.dataType.IsVariableLength() {
		return v.maxSize
	}
	return v.dataType.Size()
}

// MaxSize returns the declared maximum element size of string and binary values
func (v *MultiDimValue) MaxSize() int { return v.maxSize }

// Dims returns a copy of the dimensions
func (v *MultiDimValue) Dims() []int { return append([]int(nil), v.dims...) }

// Count returns the number of elements (product of dimensions)
func (v *MultiDimValue) Count() int {
	n := 1
	for _, d := range v.dims {
		n *= d
	}
	return n
}

// Len returns the size of the numeric buffer in bytes, or the sum of element lengths
func (v *MultiDimValue) Len() int {
	if !v.dataType.IsVariableLength() {
		return len(v.data)
	}
	n := 0
	for _, e := range v.elems {
		n += len(e)
	}
	return n
}

// Resize changes the dimensions and reallocates storage for the new element count.
// Elements are kept in flat order up to the smaller count; new elements are zero.
func (v *MultiDimValue) Resize(dims []int) error {
	for _, d := range dims {
		if d <= 0 {
			return ErrInvalidDims
		}
	}
	oldData, oldElems := v.data, v.elems
	v.dims = append([]int(nil), dims...)
	v.alloc(v.Count())
	if v.dataType.IsVariableLength() {
		copy(v.elems, oldElems)
	} else {
		copy(v.data, oldData)
	}
	return nil
}

// Clone returns a deep copy
func (v *MultiDimValue) Clone() *MultiDimValue {
	c := &MultiDimValue{
		dataType: v.dataType,
		dims:     append([]int(nil), v.dims...),
		maxSize:  v.maxSize,
		data:     append([]byte(nil), v.data...),
	}
	if v.elems != nil {
		c.elems = make([][]byte, len(v.elems))
		for i, e := range v.elems {
			c.elems[i] = append([]byte(nil), e...)
		}
	}
	return c
}

// CopyFrom overwrites the elements of v with those of src. Both must hold the
// same data type and element count.
func (v *MultiDimValue) CopyFrom(src *MultiDimValue) error {
	if src.dataType != v.dataType || src.Count() != v.Count() {
		return fmt.Errorf("%w: %s to %s", ErrTypeMismatch, src, v)
	}
	if v.dataType.IsVariableLength() {
		for i, e := range src.elems {
			v.elems[i] = append([]byte(nil), e...)
		}
		return nil
	}
	copy(v.data, src.data)
	return nil
}

// Update writes payload, encoded as elements of sourceType, into v and returns
// the number of payload bytes consumed. Numeric elements are cast to the stored
// type. For string and binary a length-prefixed element longer than MaxSize
// rejects the whole payload with ErrRange and leaves v unchanged.
func (v *MultiDimValue) Update(payload []byte, sourceType types.DataType) (int, error) {
	if !sourceType.CanCastTo(v.dataType) {
		return 0, fmt.Errorf("%w: %s to %s", ErrInvalidCast, sourceType, v.dataType)
	}
	if v.dataType.IsVariableLength() {
		return v.updateVariable(payload)
	}

	count := v.Count()
	srcSize := sourceType.Size()
	need := count * srcSize
	if len(payload) < need {
		return 0, fmt.Errorf("%w: need %d bytes, have %d", ErrShortPayload, need, len(payload))
	}

	dstSize := v.dataType.Size()
	for i := 0; i < count; i++ {
		src := payload[i*srcSize : (i+1)*srcSize]
		dst := v.data[i*dstSize : (i+1)*dstSize]
		castElement(dst, v.dataType, src, sourceType)
	}
	return need, nil
}

func (v *MultiDimValue) updateVariable(payload []byte) (int, error) {
	prefix := 2
	if v.dataType == types.TypeBinary {
		prefix = 4
	}

	count := v.Count()
	next := make([][]byte, count)
	off := 0
	for i := 0; i < count; i++ {
		if len(payload)-off < prefix {
			return 0, ErrShortPayload
		}
		var n int
		if prefix == 2 {
			n = int(binary.LittleEndian.Uint16(payload[off:]))
		} else {
			n = int(binary.LittleEndian.Uint32(payload[off:]))
		}
		off += prefix
		if len(payload)-off < n {
			return 0, ErrShortPayload
		}
		if v.maxSize > 0 && n > v.maxSize {
			return 0, fmt.Errorf("%w: element %d has %d bytes, max %d", ErrRange, i, n, v.maxSize)
		}
		next[i] = append([]byte(nil), payload[off:off+n]...)
		off += n
	}
	v.elems = next
	return off, nil
}

// castElement widens one little-endian element of type st into dst of type dt
func castElement(dst []byte, dt types.DataType, src []byte, st types.DataType) {
	switch {
	case st.IsFloat():
		f := readFloat(src, st)
		writeFloat(dst, dt, f)
	case st.IsSigned():
		writeInt(dst, dt, uint64(readInt(src, st)))
	default:
		writeInt(dst, dt, readUint(src, st))
	}
}

func readUint(b []byte, dt types.DataType) uint64 {
	switch dt.Size() {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(b))
	case 4:
		return uint64(binary.LittleEndian.Uint32(b))
	default:
		return binary.LittleEndian.Uint64(b)
	}
}

func readInt(b []byte, dt types.DataType) int64 {
	switch dt.Size() {
	case 1:
		return int64(int8(b[0]))
	case 2:
		return int64(int16(binary.LittleEndian.Uint16(b)))
	case 4:
		return int64(int32(binary.LittleEndian.Uint32(b)))
	default:
		return int64(binary.LittleEndian.Uint64(b))
	}
}

func readFloat(b []byte, dt types.DataType) float64 {
	if dt == types.TypeFloat32 {
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}

// writeInt stores the low bytes of bits; sign extension already happened in readInt
func writeInt(b []byte, dt types.DataType, bits uint64) {
	switch dt.Size() {
	case 1:
		b[0] = byte(bits)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(bits))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(bits))
	default:
		binary.LittleEndian.PutUint64(b, bits)
	}
}

func writeFloat(b []byte, dt types.DataType, f float64) {
	if dt == types.TypeFloat32 {
		binary.LittleEndian.PutUint32(b, math.Float32bits(float32(f)))
		return
	}
	binary.LittleEndian.PutUint64(b, math.Float64bits(f))
}

// SerializedSize returns the number of bytes Serialize writes
func (v *MultiDimValue) SerializedSize() int {
	if !v.dataType.IsVariableLength() {
		return len(v.data)
	}
	prefix := 2
	if v.dataType == types.TypeBinary {
		prefix = 4
	}
	return v.Len() + prefix*len(v.elems)
}

// Serialize packs v in its stored type into out and returns the bytes written
func (v *MultiDimValue) Serialize(out []byte) (int, error) {
	n := v.SerializedSize()
	if len(out) < n {
		return 0, ErrBufferTooSmall
	}
	copy(out, v.AppendTo(nil))
	return n, nil
}

// AppendTo appends the packed value to b
func (v *MultiDimValue) AppendTo(b []byte) []byte {
	if !v.dataType.IsVariableLength() {
		return append(b, v.data...)
	}
	for _, e := range v.elems {
		if v.dataType == types.TypeString {
			b = binary.LittleEndian.AppendUint16(b, uint16(len(e)))
		} else {
			b = binary.LittleEndian.AppendUint32(b, uint32(len(e)))
		}
		b = append(b, e...)
	}
	return b
}

// String returns a short description for logging
func (v *MultiDimValue) String() string {
	return fmt.Sprintf("%s%v", v.dataType, v.dims)
}
