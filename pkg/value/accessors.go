package value

import (
	"encoding/hex"
	"fmt"
	"strconv"

	"avaneesh/dcp-go/pkg/types"
)

func (v *MultiDimValue) numeric(i int) ([]byte, error) {
	if !v.dataType.IsNumeric() {
		return nil, ErrTypeMismatch
	}
	if i < 0 || i >= v.Count() {
		return nil, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, i, v.Count())
	}
	sz := v.dataType.Size()
	return v.data[i*sz : (i+1)*sz], nil
}

func (v *MultiDimValue) variable(i int) error {
	if !v.dataType.IsVariableLength() {
		return ErrTypeMismatch
	}
	if i < 0 || i >= len(v.elems) {
		return fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, i, len(v.elems))
	}
	return nil
}

// Uint64At returns element i of an unsigned variable
func (v *MultiDimValue) Uint64At(i int) (uint64, error) {
	if !v.dataType.IsUnsigned() {
		return 0, ErrTypeMismatch
	}
	b, err := v.numeric(i)
	if err != nil {
		return 0, err
	}
	return readUint(b, v.dataType), nil
}

// SetUint64At stores x, truncated to the element width, into element i of an unsigned variable
func (v *MultiDimValue) SetUint64At(i int, x uint64) error {
	if !v.dataType.IsUnsigned() {
		return ErrTypeMismatch
	}
	b, err := v.numeric(i)
	if err != nil {
		return err
	}
	writeInt(b, v.dataType, x)
	return nil
}

// Int64At returns element i of a signed or unsigned variable
func (v *MultiDimValue) Int64At(i int) (int64, error) {
	if v.dataType.IsFloat() {
		return 0, ErrTypeMismatch
	}
	b, err := v.numeric(i)
	if err != nil {
		return 0, err
	}
	if v.dataType.IsUnsigned() {
		return int64(readUint(b, v.dataType)), nil
	}
	return readInt(b, v.dataType), nil
}

// SetInt64At stores x, truncated to the element width, into element i of an integer variable
func (v *MultiDimValue) SetInt64At(i int, x int64) error {
	if v.dataType.IsFloat() {
		return ErrTypeMismatch
	}
	b, err := v.numeric(i)
	if err != nil {
		return err
	}
	writeInt(b, v.dataType, uint64(x))
	return nil
}

// Float64At returns element i of any numeric variable converted to float64
func (v *MultiDimValue) Float64At(i int) (float64, error) {
	b, err := v.numeric(i)
	if err != nil {
		return 0, err
	}
	switch {
	case v.dataType.IsFloat():
		return readFloat(b, v.dataType), nil
	case v.dataType.IsSigned():
		return float64(readInt(b, v.dataType)), nil
	default:
		return float64(readUint(b, v.dataType)), nil
	}
}

// SetFloat64At stores x into element i of any numeric variable.
// Integer variables receive x truncated toward zero.
func (v *MultiDimValue) SetFloat64At(i int, x float64) error {
	b, err := v.numeric(i)
	if err != nil {
		return err
	}
	switch {
	case v.dataType.IsFloat():
		writeFloat(b, v.dataType, x)
	case v.dataType.IsSigned():
		writeInt(b, v.dataType, uint64(int64(x)))
	default:
		writeInt(b, v.dataType, uint64(x))
	}
	return nil
}

// StringAt returns element i of a string variable
func (v *MultiDimValue) StringAt(i int) (string, error) {
	if v.dataType != types.TypeString {
		return "", ErrTypeMismatch
	}
	if err := v.variable(i); err != nil {
		return "", err
	}
	return string(v.elems[i]), nil
}

// SetStringAt stores s into element i of a string variable
func (v *MultiDimValue) SetStringAt(i int, s string) error {
	if v.dataType != types.TypeString {
		return ErrTypeMismatch
	}
	return v.setVariable(i, []byte(s))
}

// BytesAt returns a copy of element i of a string or binary variable
func (v *MultiDimValue) BytesAt(i int) ([]byte, error) {
	if err := v.variable(i); err != nil {
		return nil, err
	}
	return append([]byte(nil), v.elems[i]...), nil
}

// SetBytesAt stores a copy of b into element i of a string or binary variable
func (v *MultiDimValue) SetBytesAt(i int, b []byte) error {
	return v.setVariable(i, b)
}

func (v *MultiDimValue) setVariable(i int, b []byte) error {
	if err := v.variable(i); err != nil {
		return err
	}
	if v.maxSize > 0 && len(b) > v.maxSize {
		return fmt.Errorf("%w: %d bytes, max %d", ErrRange, len(b), v.maxSize)
	}
	v.elems[i] = append([]byte(nil), b...)
	return nil
}

// FormatAt renders element i as text: decimal numbers, the raw string, or hex for binary
func (v *MultiDimValue) FormatAt(i int) string {
	switch {
	case v.dataType == types.TypeString:
		s, err := v.StringAt(i)
		if err != nil {
			return "?"
		}
		return s
	case v.dataType == types.TypeBinary:
		b, err := v.BytesAt(i)
		if err != nil {
			return "?"
		}
		return hex.EncodeToString(b)
	case v.dataType.IsUnsigned():
		x, err := v.Uint64At(i)
		if err != nil {
			return "?"
		}
		return strconv.FormatUint(x, 10)
	case v.dataType.IsSigned():
		x, err := v.Int64At(i)
		if err != nil {
			return "?"
		}
		return strconv.FormatInt(x, 10)
	default:
		x, err := v.Float64At(i)
		if err != nil {
			return "?"
		}
		bits := 64
		if v.dataType == types.TypeFloat32 {
			bits = 32
		}
		return strconv.FormatFloat(x, 'g', -1, bits)
	}
}
