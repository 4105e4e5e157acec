package types

// DataType is the wire type of a variable or payload element
type DataType uint8

const (
	TypeUint8   DataType = 0
	TypeUint16  DataType = 1
	TypeUint32  DataType = 2
	TypeUint64  DataType = 3
	TypeInt8    DataType = 4
	TypeInt16   DataType = 5
	TypeInt32   DataType = 6
	TypeInt64   DataType = 7
	TypeFloat32 DataType = 8
	TypeFloat64 DataType = 9
	TypeString  DataType = 10
	TypeBinary  DataType = 11
)

var dataTypeNames = map[DataType]string{
	TypeUint8:   "uint8",
	TypeUint16:  "uint16",
	TypeUint32:  "uint32",
	TypeUint64:  "uint64",
	TypeInt8:    "int8",
	TypeInt16:   "int16",
	TypeInt32:   "int32",
	TypeInt64:   "int64",
	TypeFloat32: "float32",
	TypeFloat64: "float64",
	TypeString:  "string",
	TypeBinary:  "binary",
}

// String returns string representation of DataType
func (d DataType) String() string {
	if name, ok := dataTypeNames[d]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseDataType converts a name such as "uint16" to a DataType
func ParseDataType(name string) (DataType, bool) {
	for dt, n := range dataTypeNames {
		if n == name {
			return dt, true
		}
	}
	return 0, false
}

// Valid returns true if d is a defined data type
func (d DataType) Valid() bool {
	return d <= TypeBinary
}

// Size returns the element size in bytes for fixed-size types, 0 for string and binary
func (d DataType) Size() int {
	switch d {
	case TypeUint8, TypeInt8:
		return 1
	case TypeUint16, TypeInt16:
		return 2
	case TypeUint32, TypeInt32, TypeFloat32:
		return 4
	case TypeUint64, TypeInt64, TypeFloat64:
		return 8
	default:
		return 0
	}
}

// IsUnsigned returns true for uint8..uint64
func (d DataType) IsUnsigned() bool {
	return d <= TypeUint64
}

// IsSigned returns true for int8..int64
func (d DataType) IsSigned() bool {
	return d >= TypeInt8 && d <= TypeInt64
}

// IsFloat returns true for float32 and float64
func (d DataType) IsFloat() bool {
	return d == TypeFloat32 || d == TypeFloat64
}

// IsNumeric returns true for all fixed-size types
func (d DataType) IsNumeric() bool {
	return d <= TypeFloat64
}

// IsVariableLength returns true for string and binary
func (d DataType) IsVariableLength() bool {
	return d == TypeString || d == TypeBinary
}

// CanCastTo reports whether a payload element of type d may be written to
// a variable of type target.
//
// Allowed: identity, unsigned widening, signed widening, float widening and
// signed targets fed from unsigned sources of equal or smaller width.
func (d DataType) CanCastTo(target DataType) bool {
	if d == target {
		return true
	}
	switch {
	case d.IsUnsigned() && target.IsUnsigned():
		return d < target
	case d.IsSigned() && target.IsSigned():
		return d < target
	case d.IsFloat() && target.IsFloat():
		return d < target
	case d.IsUnsigned() && target.IsSigned():
		return d.Size() <= target.Size()
	}
	return false
}
