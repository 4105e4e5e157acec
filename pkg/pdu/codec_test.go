package pdu

import (
	"net/netip"
	"testing"

	uuid "github.com/satori/go.uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"avaneesh/dcp-go/pkg/types"
)

var testUUID = uuid.FromStringOrNil("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

func samplePDUs() []PDU {
	udp := IPv4Address(types.ProtocolUDPIPv4, netip.MustParseAddrPort("192.168.1.20:5500"))
	return []PDU{
		&StcRegister{SeqID: 1, Receiver: 2, State: types.StateAlive, SlaveUUID: testUUID, OpMode: types.OpModeSRT, MajorVersion: 1, MinorVersion: 0},
		&StcDeregister{SeqID: 2, Receiver: 2, State: types.StateStopped},
		&StcPrepare{SeqID: 3, Receiver: 2, State: types.StateConfiguration},
		&StcConfigure{SeqID: 4, Receiver: 2, State: types.StatePrepared},
		&StcInitialize{SeqID: 5, Receiver: 2, State: types.StateConfigured},
		&StcRun{SeqID: 6, Receiver: 2, State: types.StateInitialized, StartTime: types.DcpTime(1700000000)},
		&StcDoStep{SeqID: 7, Receiver: 2, State: types.StateRunning, Steps: 10},
		&StcSendOutputs{SeqID: 8, Receiver: 2, State: types.StateInitialized},
		&StcStop{SeqID: 9, Receiver: 2, State: types.StateRunning},
		&StcReset{SeqID: 10, Receiver: 2, State: types.StateStopped},
		&CfgTimeRes{SeqID: 11, Receiver: 2, Numerator: 1, Denominator: 1000},
		&CfgSteps{SeqID: 12, Receiver: 2, DataID: 3, Steps: 5},
		&CfgInput{SeqID: 13, Receiver: 2, DataID: 3, Pos: 1, TargetVR: 0xDEADBEEF, SourceDataType: types.TypeUint16},
		&CfgOutput{SeqID: 14, Receiver: 2, DataID: 4, Pos: 0, SourceVR: 42},
		&CfgClear{SeqID: 15, Receiver: 2},
		&CfgTargetNetworkInformation{SeqID: 16, Receiver: 2, DataID: 4, Address: udp},
		&CfgSourceNetworkInformation{SeqID: 17, Receiver: 2, DataID: 3, Address: NetworkAddress{Protocol: types.ProtocolBluetooth, Opaque: []byte{1, 2, 3, 4, 5, 6, 7}}},
		&CfgParameter{SeqID: 18, Receiver: 2, ParameterVR: 7, SourceDataType: types.TypeFloat64, Configuration: []byte{0, 0, 0, 0, 0, 0, 0xF0, 0x3F}},
		&CfgTunableParameter{SeqID: 19, Receiver: 2, ParamID: 1, Pos: 2, ParameterVR: 9, SourceDataType: types.TypeInt32},
		&CfgParamNetworkInformation{SeqID: 20, Receiver: 2, ParamID: 1, Address: IPv4Address(types.ProtocolTCPIPv4, netip.MustParseAddrPort("10.0.0.1:8080"))},
		&CfgLogging{SeqID: 21, Receiver: 2, LogCategory: 1, LogLevel: types.LogLevelWarning, LogMode: types.LogModeOnNotification},
		&CfgScope{SeqID: 22, Receiver: 2, DataID: 3, Scope: types.ScopeRunNRT},
		&InfState{SeqID: 23, Receiver: 2},
		&InfError{SeqID: 24, Receiver: 2},
		&InfLog{SeqID: 25, Receiver: 2, LogCategory: 1, LogMaxNum: 10},
		&RspAck{RespSeqID: 1, Sender: 2},
		&RspNack{RespSeqID: 2, Sender: 2, ErrorCode: types.ErrInvalidUUID},
		&RspStateAck{RespSeqID: 3, Sender: 2, State: types.StateRunning},
		&RspErrorAck{RespSeqID: 4, Sender: 2, ErrorCode: types.ErrProtocolHeartbeatMissed},
		&RspLogAck{RespSeqID: 5, Sender: 2, Entries: []byte{9, 8, 7}},
		&NtfStateChanged{Sender: 2, State: types.StateComputed},
		&NtfLog{Sender: 2, Time: types.DcpTime(123), TemplateID: 4, Args: []byte{0xAA}},
		&DatInputOutput{SeqID: 30, DataID: 3, Payload: []byte{1, 0, 2, 0}},
		&DatParameter{SeqID: 31, ParamID: 1, Payload: []byte{5}},
	}
}

// TestRoundTrip tests decode(encode(p)) == p and encode(decode(x)) == x for every PDU type
func TestRoundTrip(t *testing.T) {
	for _, p := range samplePDUs() {
		t.Run(p.Type().String(), func(t *testing.T) {
			wire := Encode(p)
			assert.Equal(t, len(wire)-LengthSize, PeekLength(wire)-LengthSize)
			assert.Equal(t, byte(p.Type()), wire[LengthSize])

			decoded, err := Decode(wire)
			require.NoError(t, err)
			assert.Equal(t, p, decoded)
			assert.Equal(t, wire, Encode(decoded))
		})
	}
}

// TestFixedSizes tests that encoded fixed-size PDUs have their declared size
func TestFixedSizes(t *testing.T) {
	for _, p := range samplePDUs() {
		if IsVariableSize(p.Type()) {
			continue
		}
		wire := Encode(p)
		if got := len(wire) - LengthSize; got != MinSize(p.Type()) {
			t.Errorf("%s: size = %d, want %d", p.Type(), got, MinSize(p.Type()))
		}
	}
}

func TestEncode_StcRegisterLayout(t *testing.T) {
	wire := Encode(&StcRegister{SeqID: 0x0102, Receiver: 7, State: types.StateAlive, SlaveUUID: testUUID, OpMode: types.OpModeNRT, MajorVersion: 1, MinorVersion: 2})

	require.Len(t, wire, 28)
	assert.Equal(t, []byte{24, 0, 0, 0, 0x01, 0x02, 0x01, 7, 0}, wire[:9])
	assert.Equal(t, testUUID.Bytes(), wire[9:25])
	assert.Equal(t, []byte{2, 1, 2}, wire[25:])
}

func TestDecode_SizeMismatch(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected int
		received int
	}{
		{
			name:     "length prefix larger than frame",
			data:     []byte{9, 0, 0, 0, byte(types.PduRspAck), 1, 0, 2},
			expected: 9,
			received: 4,
		},
		{
			name:     "fixed size PDU too long",
			data:     []byte{5, 0, 0, 0, byte(types.PduRspAck), 1, 0, 2, 0},
			expected: 4,
			received: 5,
		},
		{
			name:     "fixed size PDU too short",
			data:     []byte{3, 0, 0, 0, byte(types.PduRspAck), 1, 0},
			expected: 4,
			received: 3,
		},
		{
			name:     "data PDU below minimum",
			data:     []byte{4, 0, 0, 0, byte(types.PduDatInputOutput), 1, 0, 2},
			expected: 5,
			received: 4,
		},
		{
			name:     "IPv4 network information without address",
			data:     []byte{7, 0, 0, 0, byte(types.PduCfgTargetNetworkInformation), 1, 0, 2, 3, 0, byte(types.ProtocolUDPIPv4)},
			expected: 13,
			received: 7,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			require.Error(t, err)
			assert.True(t, IsSizeMismatch(err))

			var fe *FrameError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tt.expected, fe.Expected)
			assert.Equal(t, tt.received, fe.Received)
		})
	}
}

func TestDecode_TooShort(t *testing.T) {
	_, err := Decode([]byte{1, 0, 0})
	assert.ErrorIs(t, err, ErrFrameTooShort)
	assert.False(t, IsSizeMismatch(err))
}

func TestDecode_VariablePayload(t *testing.T) {
	wire := Encode(&DatInputOutput{SeqID: 1, DataID: 2})
	p, err := Decode(wire)
	require.NoError(t, err)
	assert.Nil(t, p.(*DatInputOutput).Payload)

	wire = Encode(&DatInputOutput{SeqID: 1, DataID: 2, Payload: make([]byte, 1000)})
	p, err = Decode(wire)
	require.NoError(t, err)
	assert.Len(t, p.(*DatInputOutput).Payload, 1000)
}

// TestDecode_UnknownType tests that unknown type ids decode to Raw
func TestDecode_UnknownType(t *testing.T) {
	data := []byte{4, 0, 0, 0, 0x55, 1, 2, 3}

	p, err := Decode(data)
	require.NoError(t, err)

	raw, ok := p.(*Raw)
	require.True(t, ok)
	assert.Equal(t, types.PduType(0x55), raw.Type())
	assert.Equal(t, []byte{1, 2, 3}, raw.Body)
	assert.Equal(t, data, Encode(raw))
}

func TestDecode_DoesNotAliasInput(t *testing.T) {
	data := Encode(&DatParameter{SeqID: 1, ParamID: 1, Payload: []byte{1, 2}})
	p, err := Decode(data)
	require.NoError(t, err)

	data[len(data)-1] = 0xFF
	assert.Equal(t, []byte{1, 2}, p.(*DatParameter).Payload)
}

func TestControlHeader(t *testing.T) {
	for _, p := range samplePDUs() {
		seq, recv, ok := ControlHeader(p)
		if ok != p.Type().IsControl() {
			t.Errorf("%s: ControlHeader ok = %v, want %v", p.Type(), ok, p.Type().IsControl())
			continue
		}
		if !ok {
			continue
		}
		assert.Equal(t, uint8(2), recv, p.Type().String())

		require.True(t, SetControlHeader(p, seq+100, 9))
		seq2, recv2, _ := ControlHeader(p)
		assert.Equal(t, seq+100, seq2)
		assert.Equal(t, uint8(9), recv2)
	}

	assert.False(t, SetControlHeader(&RspAck{}, 1, 1))
}

func TestSender(t *testing.T) {
	sender, ok := Sender(&NtfStateChanged{Sender: 4})
	assert.True(t, ok)
	assert.Equal(t, uint8(4), sender)

	sender, ok = Sender(&RspNack{Sender: 5})
	assert.True(t, ok)
	assert.Equal(t, uint8(5), sender)

	_, ok = Sender(&DatInputOutput{})
	assert.False(t, ok)
}

func TestNetworkAddress(t *testing.T) {
	ap := netip.MustParseAddrPort("192.168.1.20:5500")
	a := IPv4Address(types.ProtocolUDPIPv4, ap)
	assert.Equal(t, uint32(0xC0A80114), a.IP)

	back, ok := a.AddrPort()
	require.True(t, ok)
	assert.Equal(t, ap, back)
	assert.Equal(t, "UDP_IPv4://192.168.1.20:5500", a.String())

	_, ok = NetworkAddress{Protocol: types.ProtocolUSB}.AddrPort()
	assert.False(t, ok)
}
