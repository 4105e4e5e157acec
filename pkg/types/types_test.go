package types

import (
	"testing"
	"time"
)

// TestDataType_CanCastTo tests the widening lattice
func TestDataType_CanCastTo(t *testing.T) {
	tests := []struct {
		name string
		from DataType
		to   DataType
		want bool
	}{
		{"identity uint8", TypeUint8, TypeUint8, true},
		{"identity string", TypeString, TypeString, true},
		{"uint8 to uint64", TypeUint8, TypeUint64, true},
		{"uint32 to uint16", TypeUint32, TypeUint16, false},
		{"int8 to int32", TypeInt8, TypeInt32, true},
		{"int64 to int8", TypeInt64, TypeInt8, false},
		{"float32 to float64", TypeFloat32, TypeFloat64, true},
		{"float64 to float32", TypeFloat64, TypeFloat32, false},
		{"uint16 to int16", TypeUint16, TypeInt16, true},
		{"uint8 to int64", TypeUint8, TypeInt64, true},
		{"uint32 to int16", TypeUint32, TypeInt16, false},
		{"int8 to uint8", TypeInt8, TypeUint8, false},
		{"int32 to float64", TypeInt32, TypeFloat64, false},
		{"string to binary", TypeString, TypeBinary, false},
		{"uint8 to string", TypeUint8, TypeString, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanCastTo(tt.to); got != tt.want {
				t.Errorf("%v.CanCastTo(%v) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

// TestDataType_Size tests element sizes
func TestDataType_Size(t *testing.T) {
	tests := []struct {
		dt   DataType
		want int
	}{
		{TypeUint8, 1}, {TypeInt8, 1},
		{TypeUint16, 2}, {TypeInt16, 2},
		{TypeUint32, 4}, {TypeInt32, 4}, {TypeFloat32, 4},
		{TypeUint64, 8}, {TypeInt64, 8}, {TypeFloat64, 8},
		{TypeString, 0}, {TypeBinary, 0},
	}

	for _, tt := range tests {
		if got := tt.dt.Size(); got != tt.want {
			t.Errorf("%v.Size() = %d, want %d", tt.dt, got, tt.want)
		}
	}
}

func TestParseDataType(t *testing.T) {
	for dt := TypeUint8; dt <= TypeBinary; dt++ {
		got, ok := ParseDataType(dt.String())
		if !ok || got != dt {
			t.Errorf("ParseDataType(%q) = %v, %v", dt.String(), got, ok)
		}
	}
	if _, ok := ParseDataType("complex128"); ok {
		t.Error("ParseDataType accepted unknown name")
	}
}

// TestPduType_Classification tests the PDU family helpers
func TestPduType_Classification(t *testing.T) {
	tests := []struct {
		pt   PduType
		stc  bool
		cfg  bool
		inf  bool
		rsp  bool
		ntf  bool
		data bool
	}{
		{PduStcRegister, true, false, false, false, false, false},
		{PduStcReset, true, false, false, false, false, false},
		{PduCfgTimeRes, false, true, false, false, false, false},
		{PduCfgScope, false, true, false, false, false, false},
		{PduInfLog, false, false, true, false, false, false},
		{PduRspAck, false, false, false, true, false, false},
		{PduRspLogAck, false, false, false, true, false, false},
		{PduNtfLog, false, false, false, false, true, false},
		{PduDatParameter, false, false, false, false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.pt.String(), func(t *testing.T) {
			if tt.pt.IsStc() != tt.stc || tt.pt.IsCfg() != tt.cfg || tt.pt.IsInf() != tt.inf ||
				tt.pt.IsRsp() != tt.rsp || tt.pt.IsNtf() != tt.ntf || tt.pt.IsData() != tt.data {
				t.Errorf("classification of %v is wrong", tt.pt)
			}
		})
	}

	if PduType(0x55).Known() {
		t.Error("0x55 should not be a known PDU type")
	}
	if PduType(0x55).String() != "UNKNOWN" {
		t.Errorf("String() = %q, want UNKNOWN", PduType(0x55).String())
	}
}

func TestDcpState_String(t *testing.T) {
	if StateSendingI.String() != "SENDING_I" {
		t.Errorf("String() = %q", StateSendingI.String())
	}
	if DcpState(0x13).Valid() {
		t.Error("0x13 should not be a valid state")
	}
	if !StateRunning.AllowsStop() || StateAlive.AllowsStop() {
		t.Error("AllowsStop mismatch")
	}
}

// TestDcpError_Category tests category derivation from the code range
func TestDcpError_Category(t *testing.T) {
	tests := []struct {
		code DcpError
		want ErrorCategory
	}{
		{ErrNone, CategoryNone},
		{ErrProtocolHeartbeatMissed, CategoryProtocol},
		{ErrInvalidUUID, CategoryValidation},
		{ErrIncompleteConfigScope, CategoryIncompleteConfig},
		{ErrNotSupportedPdu, CategoryNotSupported},
	}

	for _, tt := range tests {
		if got := tt.code.Category(); got != tt.want {
			t.Errorf("%v.Category() = %v, want %v", tt.code, got, tt.want)
		}
	}

	err := NewProtocolError(ErrInvalidSteps, "steps %d", 0)
	if err.Error() != "INVALID_STEPS: steps 0" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestResolution_Duration(t *testing.T) {
	r := Resolution{Numerator: 1, Denominator: 100}
	if got := r.Duration(1); got != 10*time.Millisecond {
		t.Errorf("Duration(1) = %v, want 10ms", got)
	}
	if got := r.Duration(5); got != 50*time.Millisecond {
		t.Errorf("Duration(5) = %v, want 50ms", got)
	}
	if (Resolution{}).Valid() {
		t.Error("zero resolution should be invalid")
	}
}
