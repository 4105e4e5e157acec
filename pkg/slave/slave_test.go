package slave

import (
	"encoding/binary"
	"math"
	"net/netip"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	uuid "github.com/satori/go.uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"avaneesh/dcp-go/pkg/channel"
	"avaneesh/dcp-go/pkg/dcplog"
	"avaneesh/dcp-go/pkg/description"
	"avaneesh/dcp-go/pkg/internal/logger"
	"avaneesh/dcp-go/pkg/pdu"
	"avaneesh/dcp-go/pkg/seq"
	"avaneesh/dcp-go/pkg/types"
)

const dcpID = 3

// fakeDriver records everything the slave sends
type fakeDriver struct {
	mu         sync.Mutex
	receiver   channel.Receiver
	sent       []pdu.PDU
	targets    map[uint16]pdu.NetworkAddress
	registered bool
	prepared   int
	disconnect int
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{targets: make(map[uint16]pdu.NetworkAddress)}
}

func (d *fakeDriver) SetReceiver(r channel.Receiver) { d.receiver = r }

func (d *fakeDriver) Send(p pdu.PDU) error {
	d.mu.Lock()
	d.sent = append(d.sent, p)
	d.mu.Unlock()
	return nil
}

func (d *fakeDriver) SetSlaveNetworkInformation(uint8, pdu.NetworkAddress)   {}
func (d *fakeDriver) SetSourceNetworkInformation(uint16, pdu.NetworkAddress) {}
func (d *fakeDriver) SetTargetNetworkInformation(id uint16, a pdu.NetworkAddress) {
	d.mu.Lock()
	d.targets[id] = a
	d.mu.Unlock()
}
func (d *fakeDriver) SetParamNetworkInformation(uint16, pdu.NetworkAddress)              {}
func (d *fakeDriver) SetTargetParamNetworkInformation(uint8, uint16, pdu.NetworkAddress) {}
func (d *fakeDriver) StartReceiving() error                                              { return nil }
func (d *fakeDriver) StopReceiving() error                                               { return nil }
func (d *fakeDriver) ConnectToSlave(uint8) error                                         { return nil }
func (d *fakeDriver) DisconnectFromSlave(uint8) error                                    { return nil }
func (d *fakeDriver) Configure() error                                                   { return nil }
func (d *fakeDriver) Stop() error                                                        { return nil }

func (d *fakeDriver) RegisterSuccessful() {
	d.mu.Lock()
	d.registered = true
	d.mu.Unlock()
}

func (d *fakeDriver) Prepare() error {
	d.mu.Lock()
	d.prepared++
	d.mu.Unlock()
	return nil
}

func (d *fakeDriver) Disconnect() error {
	d.mu.Lock()
	d.disconnect++
	d.mu.Unlock()
	return nil
}

func (d *fakeDriver) all() []pdu.PDU {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]pdu.PDU(nil), d.sent...)
}

// response returns the last response to the request with pdu_seq_id seqID
func (d *fakeDriver) response(seqID uint16) pdu.PDU {
	var found pdu.PDU
	for _, p := range d.all() {
		if rs, _, ok := pdu.ResponseHeader(p); ok && rs == seqID {
			found = p
		}
	}
	return found
}

func (d *fakeDriver) data() []*pdu.DatInputOutput {
	var out []*pdu.DatInputOutput
	for _, p := range d.all() {
		if v, ok := p.(*pdu.DatInputOutput); ok {
			out = append(out, v)
		}
	}
	return out
}

type harness struct {
	t   *testing.T
	s   *Slave
	drv *fakeDriver
	seq uint16
}

func loadDescription(t *testing.T) *description.SlaveDescription {
	t.Helper()
	desc, err := description.Load("../description/testdata/slave.yaml")
	require.NoError(t, err)
	return desc
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()
	cfg := DefaultSlaveConfig()
	cfg.Heartbeat = -1
	if mutate != nil {
		mutate(&cfg)
	}
	drv := newFakeDriver()
	s, err := New(cfg, loadDescription(t), drv, logger.NewNoOpLogger())
	require.NoError(t, err)
	require.NoError(t, s.Start())
	t.Cleanup(func() { _ = s.Stop() })
	return &harness{t: t, s: s, drv: drv}
}

func (h *harness) next() uint16 {
	h.seq++
	return h.seq
}

func (h *harness) expectAck(p pdu.PDU) {
	h.t.Helper()
	seqID, _, _ := pdu.ControlHeader(p)
	h.s.Receive(p)
	rsp := h.drv.response(seqID)
	require.IsType(h.t, &pdu.RspAck{}, rsp, "response to %s: %v", p.Type(), rsp)
}

func (h *harness) expectNack(p pdu.PDU, code types.DcpError) {
	h.t.Helper()
	seqID, _, _ := pdu.ControlHeader(p)
	h.s.Receive(p)
	rsp, ok := h.drv.response(seqID).(*pdu.RspNack)
	require.True(h.t, ok, "expected nack to %s", p.Type())
	assert.Equal(h.t, code, rsp.ErrorCode)
}

func (h *harness) register(mode types.OpMode) {
	h.t.Helper()
	h.expectAck(&pdu.StcRegister{
		SeqID:        h.next(),
		Receiver:     dcpID,
		State:        types.StateAlive,
		SlaveUUID:    h.s.Description().SlaveUUID(),
		OpMode:       mode,
		MajorVersion: 1,
	})
	require.Equal(h.t, types.StateConfiguration, h.s.State())
}

func udpAddr(port uint16) pdu.NetworkAddress {
	return pdu.IPv4Address(types.ProtocolUDPIPv4, netip.AddrPortFrom(netip.MustParseAddr("127.0.0.1"), port))
}

// configure maps input data id 1 to vr 2 and output data id 2 to vrs 3 and 5
func (h *harness) configure() {
	h.t.Helper()
	for _, p := range []pdu.PDU{
		&pdu.CfgTimeRes{SeqID: h.next(), Receiver: dcpID, Numerator: 1, Denominator: 100},
		&pdu.CfgInput{SeqID: h.next(), Receiver: dcpID, DataID: 1, Pos: 0, TargetVR: 2, SourceDataType: types.TypeFloat32},
		&pdu.CfgOutput{SeqID: h.next(), Receiver: dcpID, DataID: 2, Pos: 0, SourceVR: 3},
		&pdu.CfgOutput{SeqID: h.next(), Receiver: dcpID, DataID: 2, Pos: 1, SourceVR: 5},
		&pdu.CfgSteps{SeqID: h.next(), Receiver: dcpID, DataID: 2, Steps: 1},
		&pdu.CfgScope{SeqID: h.next(), Receiver: dcpID, DataID: 1, Scope: types.ScopeInitRunNRT},
		&pdu.CfgScope{SeqID: h.next(), Receiver: dcpID, DataID: 2, Scope: types.ScopeInitRunNRT},
		&pdu.CfgSourceNetworkInformation{SeqID: h.next(), Receiver: dcpID, DataID: 1, Address: udpAddr(6001)},
		&pdu.CfgTargetNetworkInformation{SeqID: h.next(), Receiver: dcpID, DataID: 2, Address: udpAddr(6002)},
	} {
		h.expectAck(p)
	}
}

// advance walks CONFIGURATION -> CONFIGURED
func (h *harness) advance() {
	h.t.Helper()
	h.expectAck(&pdu.StcPrepare{SeqID: h.next(), Receiver: dcpID, State: types.StateConfiguration})
	require.Equal(h.t, types.StatePrepared, h.s.State())
	h.expectAck(&pdu.StcConfigure{SeqID: h.next(), Receiver: dcpID, State: types.StatePrepared})
	require.Equal(h.t, types.StateConfigured, h.s.State())
}

func float32Payload(vals ...float32) []byte {
	var b []byte
	for _, v := range vals {
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(v))
	}
	return b
}

func TestSlave_NonRealTimeLifecycle(t *testing.T) {
	h := newHarness(t, nil)

	var computed atomic.Uint32
	h.s.SetComputeCallback(types.Sync, func(steps uint32) {
		computed.Add(steps)
		out, ok := h.s.Value(3)
		require.True(t, ok)
		require.NoError(t, out.SetFloat64At(0, 1.5))
	})

	var transitions []types.DcpState
	h.s.AddStateChangedListener(types.Sync, func(_, to types.DcpState) {
		transitions = append(transitions, to)
	})

	h.register(types.OpModeNRT)
	assert.True(t, h.drv.registered)
	h.configure()
	h.advance()

	h.expectAck(&pdu.StcInitialize{SeqID: h.next(), Receiver: dcpID, State: types.StateConfigured})
	require.Equal(t, types.StateInitialized, h.s.State())

	h.expectAck(&pdu.StcRun{SeqID: h.next(), Receiver: dcpID, State: types.StateInitialized})
	require.Equal(t, types.StateSynchronized, h.s.State())
	h.expectAck(&pdu.StcRun{SeqID: h.next(), Receiver: dcpID, State: types.StateSynchronized})
	require.Equal(t, types.StateRunning, h.s.State())

	h.expectAck(&pdu.StcDoStep{SeqID: h.next(), Receiver: dcpID, State: types.StateRunning, Steps: 5})
	require.Equal(t, types.StateComputed, h.s.State())
	assert.Equal(t, uint32(5), computed.Load())

	h.expectAck(&pdu.StcSendOutputs{SeqID: h.next(), Receiver: dcpID, State: types.StateComputed})
	require.Equal(t, types.StateRunning, h.s.State())

	data := h.drv.data()
	require.Len(t, data, 1)
	assert.Equal(t, uint16(2), data[0].DataID)
	assert.Equal(t, uint16(0), data[0].SeqID)
	want := float32Payload(1.5)
	want = binary.LittleEndian.AppendUint16(want, 5)
	want = append(want, "plant"...)
	assert.Equal(t, want, data[0].Payload)

	h.expectAck(&pdu.StcStop{SeqID: h.next(), Receiver: dcpID, State: types.StateRunning})
	require.Equal(t, types.StateStopped, h.s.State())

	h.expectAck(&pdu.StcDeregister{SeqID: h.next(), Receiver: dcpID, State: types.StateStopped})
	require.Equal(t, types.StateAlive, h.s.State())
	assert.Equal(t, uint8(0), h.s.DcpID())

	assert.Equal(t, []types.DcpState{
		types.StateConfiguration, types.StatePreparing, types.StatePrepared,
		types.StateConfiguring, types.StateConfigured, types.StateInitializing,
		types.StateInitialized, types.StateSynchronizing, types.StateSynchronized,
		types.StateRunning, types.StateComputing, types.StateComputed,
		types.StateSendingD, types.StateRunning, types.StateStopping,
		types.StateStopped, types.StateAlive,
	}, transitions)
}

func TestSlave_StateChangedNotification(t *testing.T) {
	h := newHarness(t, nil)
	h.register(types.OpModeNRT)

	var ntf []*pdu.NtfStateChanged
	for _, p := range h.drv.all() {
		if n, ok := p.(*pdu.NtfStateChanged); ok {
			ntf = append(ntf, n)
		}
	}
	require.Len(t, ntf, 1)
	assert.Equal(t, uint8(dcpID), ntf[0].Sender)
	assert.Equal(t, types.StateConfiguration, ntf[0].State)

	// the ack precedes the notification
	all := h.drv.all()
	require.Len(t, all, 2)
	assert.IsType(t, &pdu.RspAck{}, all[0])
}

func TestSlave_RegisterRejected(t *testing.T) {
	tests := []struct {
		name string
		edit func(*pdu.StcRegister)
		want types.DcpError
	}{
		{"state", func(p *pdu.StcRegister) { p.State = types.StateConfiguration }, types.ErrInvalidStateID},
		{"uuid", func(p *pdu.StcRegister) { p.SlaveUUID = uuid.NewV5(uuid.NamespaceDNS, "other.example") }, types.ErrInvalidUUID},
		{"op mode", func(p *pdu.StcRegister) { p.OpMode = types.OpModeHRT }, types.ErrInvalidOpMode},
		{"major version", func(p *pdu.StcRegister) { p.MajorVersion = 2 }, types.ErrInvalidMajorVersion},
		{"minor version", func(p *pdu.StcRegister) { p.MinorVersion = 1 }, types.ErrInvalidMinorVersion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			p := &pdu.StcRegister{
				SeqID:        7,
				Receiver:     dcpID,
				State:        types.StateAlive,
				SlaveUUID:    h.s.Description().SlaveUUID(),
				OpMode:       types.OpModeNRT,
				MajorVersion: 1,
			}
			tt.edit(p)
			h.expectNack(p, tt.want)
			assert.Equal(t, types.StateAlive, h.s.State())
		})
	}
}

func TestSlave_IgnoresOtherPdusWhileAlive(t *testing.T) {
	h := newHarness(t, nil)
	h.s.Receive(&pdu.InfState{SeqID: 1, Receiver: dcpID})
	h.s.Receive(&pdu.CfgClear{SeqID: 2, Receiver: dcpID})
	assert.Empty(t, h.drv.all())
}

func TestSlave_ConfigurationRejected(t *testing.T) {
	tests := []struct {
		name string
		pdu  pdu.PDU
		want types.DcpError
	}{
		{"time res", &pdu.CfgTimeRes{Numerator: 1, Denominator: 7}, types.ErrInvalidTimeResolution},
		{"zero steps", &pdu.CfgSteps{DataID: 2, Steps: 0}, types.ErrInvalidSteps},
		{"variable steps", &pdu.CfgSteps{DataID: 2, Steps: 2}, types.ErrNotSupportedVariableSteps},
		{"input to output vr", &pdu.CfgInput{DataID: 1, TargetVR: 3, SourceDataType: types.TypeFloat32}, types.ErrInvalidValueReference},
		{"unknown vr", &pdu.CfgInput{DataID: 1, TargetVR: 99, SourceDataType: types.TypeFloat32}, types.ErrInvalidValueReference},
		{"narrowing source", &pdu.CfgInput{DataID: 1, TargetVR: 2, SourceDataType: types.TypeInt64}, types.ErrInvalidSourceDataType},
		{"output to input vr", &pdu.CfgOutput{DataID: 2, SourceVR: 2}, types.ErrInvalidValueReference},
		{"scope", &pdu.CfgScope{DataID: 1, Scope: 9}, types.ErrInvalidScope},
		{"unsupported protocol", &pdu.CfgTargetNetworkInformation{DataID: 2, Address: pdu.NetworkAddress{Protocol: types.ProtocolCANBased}}, types.ErrNotSupportedTransportProtocol},
		{"unknown protocol", &pdu.CfgSourceNetworkInformation{DataID: 1, Address: pdu.NetworkAddress{Protocol: 9}}, types.ErrInvalidTransportProtocol},
		{"zero port", &pdu.CfgTargetNetworkInformation{DataID: 2, Address: udpAddr(0)}, types.ErrInvalidPort},
		{"fixed parameter not tunable", &pdu.CfgTunableParameter{ParamID: 1, ParameterVR: 1, SourceDataType: types.TypeUint16}, types.ErrInvalidValueReference},
		{"short parameter", &pdu.CfgParameter{ParameterVR: 4, SourceDataType: types.TypeInt32, Configuration: []byte{1}}, types.ErrInvalidLength},
		{"log category", &pdu.CfgLogging{LogCategory: 9, LogLevel: types.LogLevelInfo}, types.ErrInvalidLogCategory},
		{"log level", &pdu.CfgLogging{LogCategory: 1, LogLevel: 7}, types.ErrInvalidLogLevel},
		{"log mode", &pdu.CfgLogging{LogCategory: 1, LogLevel: types.LogLevelInfo, LogMode: 5}, types.ErrInvalidLogMode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			h.register(types.OpModeNRT)
			pdu.SetControlHeader(tt.pdu, h.next(), dcpID)
			h.expectNack(tt.pdu, tt.want)
			assert.Equal(t, types.StateConfiguration, h.s.State())
		})
	}
}

func TestSlave_StateChecks(t *testing.T) {
	h := newHarness(t, nil)
	h.register(types.OpModeNRT)

	// wrong state field
	h.expectNack(&pdu.StcPrepare{SeqID: h.next(), Receiver: dcpID, State: types.StatePrepared}, types.ErrInvalidStateID)
	// matching state field, not allowed here
	h.expectNack(&pdu.StcInitialize{SeqID: h.next(), Receiver: dcpID, State: types.StateConfiguration}, types.ErrProtocolPduNotAllowed)
	// STC_register after registration
	h.expectNack(&pdu.StcRegister{SeqID: h.next(), Receiver: dcpID}, types.ErrProtocolPduNotAllowed)

	h.configure()
	h.advance()
	// configuration only in CONFIGURATION
	h.expectNack(&pdu.CfgScope{SeqID: h.next(), Receiver: dcpID, DataID: 1}, types.ErrProtocolPduNotAllowed)
	// STC_do_step before RUNNING
	h.expectNack(&pdu.StcDoStep{SeqID: h.next(), Receiver: dcpID, State: types.StateConfigured, Steps: 1}, types.ErrProtocolPduNotAllowed)

	// other receivers are ignored
	before := len(h.drv.all())
	h.s.Receive(&pdu.InfState{SeqID: 999, Receiver: dcpID + 1})
	assert.Len(t, h.drv.all(), before)
}

func TestSlave_InformationRequests(t *testing.T) {
	h := newHarness(t, nil)
	h.register(types.OpModeNRT)

	seqID := h.next()
	h.s.Receive(&pdu.InfState{SeqID: seqID, Receiver: dcpID})
	rsp, ok := h.drv.response(seqID).(*pdu.RspStateAck)
	require.True(t, ok)
	assert.Equal(t, types.StateConfiguration, rsp.State)
	assert.Equal(t, uint8(dcpID), rsp.Sender)

	seqID = h.next()
	h.s.Receive(&pdu.InfError{SeqID: seqID, Receiver: dcpID})
	errRsp, ok := h.drv.response(seqID).(*pdu.RspErrorAck)
	require.True(t, ok)
	assert.Equal(t, types.ErrNone, errRsp.ErrorCode)
}

func TestSlave_MissedControlPdu(t *testing.T) {
	h := newHarness(t, nil)
	var missed []seq.Delta
	h.s.AddMissedControlPduListener(types.Sync, func(id uint8, received uint16, d seq.Delta) {
		assert.Equal(t, uint8(dcpID), id)
		missed = append(missed, d)
	})
	h.register(types.OpModeNRT)

	h.seq += 2
	seqID := h.next()
	h.s.Receive(&pdu.InfState{SeqID: seqID, Receiver: dcpID})
	require.Len(t, missed, 1)
	assert.Equal(t, 2, missed[0].Lost())
	// still answered
	assert.IsType(t, &pdu.RspStateAck{}, h.drv.response(seqID))
}

func TestSlave_IncompleteConfiguration(t *testing.T) {
	h := newHarness(t, nil)
	h.register(types.OpModeNRT)
	h.expectAck(&pdu.CfgInput{SeqID: h.next(), Receiver: dcpID, DataID: 1, Pos: 0, TargetVR: 2, SourceDataType: types.TypeFloat64})
	h.expectAck(&pdu.CfgScope{SeqID: h.next(), Receiver: dcpID, DataID: 1, Scope: types.ScopeRunNRT})
	h.expectAck(&pdu.StcPrepare{SeqID: h.next(), Receiver: dcpID, State: types.StateConfiguration})

	h.expectNack(&pdu.StcConfigure{SeqID: h.next(), Receiver: dcpID, State: types.StatePrepared}, types.ErrIncompleteConfigNwInfoInput)
	assert.Equal(t, types.StatePrepared, h.s.State())

	// recover via STC_stop and STC_reset
	h.expectAck(&pdu.StcStop{SeqID: h.next(), Receiver: dcpID, State: types.StatePrepared})
	h.expectAck(&pdu.StcReset{SeqID: h.next(), Receiver: dcpID, State: types.StateStopped})
	require.Equal(t, types.StateConfiguration, h.s.State())

	h.expectAck(&pdu.CfgSourceNetworkInformation{SeqID: h.next(), Receiver: dcpID, DataID: 1, Address: udpAddr(6001)})
	h.advance()
}

func TestSlave_ConfigurationGaps(t *testing.T) {
	h := newHarness(t, nil)
	h.register(types.OpModeNRT)
	h.expectAck(&pdu.CfgOutput{SeqID: h.next(), Receiver: dcpID, DataID: 2, Pos: 1, SourceVR: 3})
	h.expectAck(&pdu.StcPrepare{SeqID: h.next(), Receiver: dcpID, State: types.StateConfiguration})
	h.expectNack(&pdu.StcConfigure{SeqID: h.next(), Receiver: dcpID, State: types.StatePrepared}, types.ErrIncompleteConfigGapOutputPos)
}

func TestSlave_ClearConfiguration(t *testing.T) {
	h := newHarness(t, nil)
	h.register(types.OpModeNRT)
	h.configure()
	h.expectAck(&pdu.CfgClear{SeqID: h.next(), Receiver: dcpID})
	assert.Equal(t, 1, h.drv.disconnect)
	assert.Equal(t, uint32(0), h.s.Steps(2))
	assert.Equal(t, types.StateConfiguration, h.s.State())
	// an empty configuration is complete
	h.advance()
}

func TestSlave_MissedDataPduStillApplied(t *testing.T) {
	h := newHarness(t, nil)
	var lost []int
	h.s.AddMissedDataPduListener(types.Sync, func(ch seq.Channel, _ uint16, d seq.Delta) {
		assert.Equal(t, seq.DataChannel(1), ch)
		lost = append(lost, d.Lost())
	})
	h.register(types.OpModeNRT)
	h.configure()
	h.advance()

	h.s.Receive(&pdu.DatInputOutput{SeqID: 1, DataID: 1, Payload: float32Payload(1, 2)})
	h.s.Receive(&pdu.DatInputOutput{SeqID: 3, DataID: 1, Payload: float32Payload(3, 4)})

	assert.Equal(t, []int{1}, lost)
	v, ok := h.s.Value(2)
	require.True(t, ok)
	x, err := v.Float64At(1)
	require.NoError(t, err)
	assert.Equal(t, 4.0, x)
}

func TestSlave_DataOutsideScopeDropped(t *testing.T) {
	h := newHarness(t, nil)
	h.register(types.OpModeNRT)
	h.configure()

	// still CONFIGURATION
	h.s.Receive(&pdu.DatInputOutput{SeqID: 1, DataID: 1, Payload: float32Payload(9, 9)})
	v, _ := h.s.Value(2)
	x, err := v.Float64At(0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, x)
}

func TestSlave_StructuralParameterResizes(t *testing.T) {
	h := newHarness(t, nil)
	h.register(types.OpModeNRT)

	v, _ := h.s.Value(2)
	require.Equal(t, 2, v.Count())

	h.expectAck(&pdu.CfgParameter{
		SeqID:          h.next(),
		Receiver:       dcpID,
		ParameterVR:    1,
		SourceDataType: types.TypeUint8,
		Configuration:  []byte{4},
	})
	v, _ = h.s.Value(2)
	assert.Equal(t, 4, v.Count())
	assert.Equal(t, []int{4}, v.Dims())
}

func TestSlave_StructuralParameterRejected(t *testing.T) {
	h := newHarness(t, nil)
	h.register(types.OpModeNRT)

	tests := []struct {
		name    string
		payload []byte
	}{
		{"zero", []byte{0, 0}},
		{"above max", []byte{65, 0}},
		{"huge", []byte{0xff, 0xff}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h.expectNack(&pdu.CfgParameter{
				SeqID:          h.next(),
				Receiver:       dcpID,
				ParameterVR:    1,
				SourceDataType: types.TypeUint16,
				Configuration:  tt.payload,
			}, types.ErrInvalidPayload)

			dim, _ := h.s.Value(1)
			n, err := dim.Uint64At(0)
			require.NoError(t, err)
			assert.Equal(t, uint64(2), n)
			temps, _ := h.s.Value(2)
			assert.Equal(t, []int{2}, temps.Dims())
		})
	}

	h.expectAck(&pdu.CfgParameter{
		SeqID:          h.next(),
		Receiver:       dcpID,
		ParameterVR:    1,
		SourceDataType: types.TypeUint16,
		Configuration:  []byte{64, 0},
	})
	temps, _ := h.s.Value(2)
	assert.Equal(t, 64, temps.Count())
}

func TestSlave_RejectedPayloadLeavesInputsUnchanged(t *testing.T) {
	h := newHarness(t, nil)
	h.register(types.OpModeNRT)
	for _, p := range []pdu.PDU{
		&pdu.CfgTimeRes{SeqID: h.next(), Receiver: dcpID, Numerator: 1, Denominator: 100},
		&pdu.CfgInput{SeqID: h.next(), Receiver: dcpID, DataID: 1, Pos: 0, TargetVR: 2, SourceDataType: types.TypeFloat32},
		&pdu.CfgInput{SeqID: h.next(), Receiver: dcpID, DataID: 1, Pos: 1, TargetVR: 2, SourceDataType: types.TypeFloat32},
		&pdu.CfgScope{SeqID: h.next(), Receiver: dcpID, DataID: 1, Scope: types.ScopeInitRunNRT},
		&pdu.CfgSourceNetworkInformation{SeqID: h.next(), Receiver: dcpID, DataID: 1, Address: udpAddr(6001)},
	} {
		h.expectAck(p)
	}
	h.advance()

	temps, _ := h.s.Value(2)
	read := func() []float64 {
		out := make([]float64, temps.Count())
		for i := range out {
			out[i], _ = temps.Float64At(i)
		}
		return out
	}

	// position 1 needs two more floats than the payload carries
	h.s.Receive(&pdu.DatInputOutput{SeqID: 1, DataID: 1, Payload: float32Payload(7, 8, 9)})
	assert.Equal(t, []float64{0, 0}, read())

	h.s.Receive(&pdu.DatInputOutput{SeqID: 2, DataID: 1, Payload: float32Payload(7, 8, 9, 10)})
	assert.Equal(t, []float64{9, 10}, read())
}

func TestSlave_AsyncPhases(t *testing.T) {
	h := newHarness(t, nil)
	started := make(chan struct{}, 1)
	h.s.SetPrepareCallback(types.Async, func() { started <- struct{}{} })
	h.register(types.OpModeNRT)

	h.expectAck(&pdu.StcPrepare{SeqID: h.next(), Receiver: dcpID, State: types.StateConfiguration})
	<-started
	assert.Equal(t, types.StatePreparing, h.s.State())

	h.expectNack(&pdu.StcConfigure{SeqID: h.next(), Receiver: dcpID, State: types.StatePreparing}, types.ErrProtocolStateTransitionInProgress)

	assert.False(t, h.s.ConfigureFinished())
	assert.True(t, h.s.PrepareFinished())
	assert.Equal(t, types.StatePrepared, h.s.State())
	assert.False(t, h.s.PrepareFinished())
}

func TestSlave_StopDuringAsyncConfigure(t *testing.T) {
	h := newHarness(t, nil)
	started := make(chan struct{}, 1)
	h.s.SetConfigureCallback(types.Async, func() { started <- struct{}{} })
	h.register(types.OpModeNRT)

	h.expectAck(&pdu.StcPrepare{SeqID: h.next(), Receiver: dcpID, State: types.StateConfiguration})
	h.expectAck(&pdu.StcConfigure{SeqID: h.next(), Receiver: dcpID, State: types.StatePrepared})
	<-started
	require.Equal(t, types.StateConfiguring, h.s.State())

	h.expectAck(&pdu.StcStop{SeqID: h.next(), Receiver: dcpID, State: types.StateConfiguring})
	require.Equal(t, types.StateStopped, h.s.State())

	assert.False(t, h.s.ConfigureFinished())
	assert.Equal(t, types.StateStopped, h.s.State())
}

func TestSlave_HeartbeatTimeout(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Heartbeat = 50 * time.Millisecond })
	var fired atomic.Int32
	h.s.AddHeartbeatTimeoutListener(types.Sync, func() { fired.Add(1) })
	var codes []types.DcpError
	var codesMu sync.Mutex
	h.s.AddErrorListener(types.Sync, func(code types.DcpError) {
		codesMu.Lock()
		codes = append(codes, code)
		codesMu.Unlock()
	})
	h.register(types.OpModeNRT)

	require.Eventually(t, func() bool {
		codesMu.Lock()
		defer codesMu.Unlock()
		return len(codes) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, types.StateErrorHandling, h.s.State())
	assert.Equal(t, int32(1), fired.Load())
	codesMu.Lock()
	assert.Equal(t, []types.DcpError{types.ErrProtocolHeartbeatMissed}, codes)
	codesMu.Unlock()

	seqID := h.next()
	h.s.Receive(&pdu.InfError{SeqID: seqID, Receiver: dcpID})
	rsp, ok := h.drv.response(seqID).(*pdu.RspErrorAck)
	require.True(t, ok)
	assert.Equal(t, types.ErrProtocolHeartbeatMissed, rsp.ErrorCode)

	// STC PDUs are not accepted until the error is resolved
	h.expectNack(&pdu.StcReset{SeqID: h.next(), Receiver: dcpID, State: types.StateErrorHandling}, types.ErrProtocolPduNotAllowed)
	require.True(t, h.s.GotoErrorResolved())
	h.expectAck(&pdu.StcReset{SeqID: h.next(), Receiver: dcpID, State: types.StateErrorResolved})
	assert.Equal(t, types.StateConfiguration, h.s.State())
}

func TestSlave_HeartbeatKeptAlive(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Heartbeat = 80 * time.Millisecond })
	h.register(types.OpModeNRT)

	deadline := time.Now().Add(400 * time.Millisecond)
	for time.Now().Before(deadline) {
		h.s.Receive(&pdu.InfState{SeqID: h.next(), Receiver: dcpID})
		time.Sleep(20 * time.Millisecond)
	}
	assert.Equal(t, types.StateConfiguration, h.s.State())
}

func TestSlave_HeartbeatDeadlineFollowsLastRequest(t *testing.T) {
	const interval = 100 * time.Millisecond
	h := newHarness(t, func(c *Config) { c.Heartbeat = interval })
	expired := make(chan time.Time, 1)
	h.s.AddHeartbeatTimeoutListener(types.Sync, func() { expired <- time.Now() })
	h.register(types.OpModeNRT)

	time.Sleep(70 * time.Millisecond)
	touched := time.Now()
	h.s.Receive(&pdu.InfState{SeqID: h.next(), Receiver: dcpID})

	select {
	case at := <-expired:
		assert.GreaterOrEqual(t, at.Sub(touched), interval)
		assert.Less(t, at.Sub(touched), 2*interval)
	case <-time.After(time.Second):
		t.Fatal("heartbeat did not expire")
	}
	assert.Equal(t, types.StateErrorHandling, h.s.State())
}

func TestSlave_LogOnRequest(t *testing.T) {
	h := newHarness(t, nil)
	h.register(types.OpModeNRT)
	h.expectAck(&pdu.CfgLogging{SeqID: h.next(), Receiver: dcpID, LogCategory: 1, LogLevel: types.LogLevelWarning, LogMode: types.LogModeOnRequest})

	require.NoError(t, h.s.Log(1, 80.5, 75.0))
	_, err := h.s.Registry().NewEntry(9, time.Now())
	require.ErrorIs(t, err, dcplog.ErrUnknownTemplate)
	require.ErrorIs(t, h.s.Log(9), dcplog.ErrUnknownTemplate)

	seqID := h.next()
	h.s.Receive(&pdu.InfLog{SeqID: seqID, Receiver: dcpID, LogCategory: 1, LogMaxNum: 10})
	rsp, ok := h.drv.response(seqID).(*pdu.RspLogAck)
	require.True(t, ok)
	entries, err := h.s.Registry().ParseEntries(rsp.Entries)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	msg, err := h.s.Registry().Format(entries[0])
	require.NoError(t, err)
	assert.Equal(t, "temperature 80.5 exceeds 75", msg)
}

func TestSlave_LogOnNotification(t *testing.T) {
	h := newHarness(t, nil)
	h.register(types.OpModeNRT)

	// below the configured level
	h.expectAck(&pdu.CfgLogging{SeqID: h.next(), Receiver: dcpID, LogCategory: types.LogCategoryAll, LogLevel: types.LogLevelError, LogMode: types.LogModeOnNotification})
	require.NoError(t, h.s.Log(1, 1.0, 2.0))

	h.expectAck(&pdu.CfgLogging{SeqID: h.next(), Receiver: dcpID, LogCategory: 1, LogLevel: types.LogLevelInfo, LogMode: types.LogModeOnNotification})
	require.NoError(t, h.s.Log(1, 3.0, 4.0))

	var logs []*pdu.NtfLog
	for _, p := range h.drv.all() {
		if n, ok := p.(*pdu.NtfLog); ok {
			logs = append(logs, n)
		}
	}
	require.Len(t, logs, 1)
	assert.Equal(t, uint8(1), logs[0].TemplateID)
	assert.Equal(t, uint8(dcpID), logs[0].Sender)
}

func TestSlave_SoftRealTimeRun(t *testing.T) {
	h := newHarness(t, nil)
	var synchronizing, running atomic.Int32
	h.s.SetSynchronizingStepCallback(types.Sync, func(uint32) {
		if synchronizing.Add(1) == 3 {
			go h.s.GotoSynchronized()
		}
	})
	h.s.SetRunningStepCallback(types.Sync, func(steps uint32) {
		assert.Equal(t, uint32(1), steps)
		running.Add(1)
	})

	h.register(types.OpModeSRT)
	h.configure()
	h.advance()
	h.expectAck(&pdu.StcInitialize{SeqID: h.next(), Receiver: dcpID, State: types.StateConfigured})
	h.expectAck(&pdu.StcRun{SeqID: h.next(), Receiver: dcpID, State: types.StateInitialized})

	require.Eventually(t, func() bool {
		return h.s.State() == types.StateSynchronized
	}, 2*time.Second, 5*time.Millisecond)

	h.expectAck(&pdu.StcRun{SeqID: h.next(), Receiver: dcpID, State: types.StateSynchronized})
	require.Eventually(t, func() bool {
		return running.Load() >= 5
	}, 2*time.Second, 5*time.Millisecond)

	h.expectNack(&pdu.StcDoStep{SeqID: h.next(), Receiver: dcpID, State: types.StateRunning, Steps: 1}, types.ErrProtocolPduNotAllowed)

	data := h.drv.data()
	require.NotEmpty(t, data)
	for i, d := range data {
		assert.Equal(t, uint16(i), d.SeqID)
	}

	h.expectAck(&pdu.StcStop{SeqID: h.next(), Receiver: dcpID, State: types.StateRunning})
	require.Equal(t, types.StateStopped, h.s.State())
	time.Sleep(20 * time.Millisecond)
	n := running.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, n, running.Load())
}

func TestSlave_AsyncStepOverrun(t *testing.T) {
	h := newHarness(t, nil)
	var calls atomic.Int32
	h.s.SetSynchronizingStepCallback(types.Async, func(uint32) { calls.Add(1) })

	h.register(types.OpModeSRT)
	h.advance()
	h.expectAck(&pdu.StcInitialize{SeqID: h.next(), Receiver: dcpID, State: types.StateConfigured})
	h.expectAck(&pdu.StcRun{SeqID: h.next(), Receiver: dcpID, State: types.StateInitialized})

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	// ticks are skipped while the step is running
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())

	assert.False(t, h.s.RunningStepFinished())
	assert.True(t, h.s.SynchronizingStepFinished())
	require.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
}
