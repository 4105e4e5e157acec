package channel

import (
	"context"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"avaneesh/dcp-go/pkg/pdu"
	"avaneesh/dcp-go/pkg/types"
)

type recordingReceiver struct {
	mu     sync.Mutex
	pdus   []pdu.PDU
	errors []types.DcpError
	notify chan struct{}
}

func newRecordingReceiver() *recordingReceiver {
	return &recordingReceiver{notify: make(chan struct{}, 64)}
}

func (r *recordingReceiver) Receive(p pdu.PDU) {
	r.mu.Lock()
	r.pdus = append(r.pdus, p)
	r.mu.Unlock()
	r.notify <- struct{}{}
}

func (r *recordingReceiver) ReportError(code types.DcpError) {
	r.mu.Lock()
	r.errors = append(r.errors, code)
	r.mu.Unlock()
	r.notify <- struct{}{}
}

func (r *recordingReceiver) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.notify:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for receiver")
	}
}

func (r *recordingReceiver) received() []pdu.PDU {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]pdu.PDU(nil), r.pdus...)
}

func (r *recordingReceiver) reported() []types.DcpError {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.DcpError(nil), r.errors...)
}

type recordingTracer struct {
	mu     sync.Mutex
	frames []Direction
}

func (t *recordingTracer) Record(dir Direction, data []byte, peer netip.AddrPort) error {
	t.mu.Lock()
	t.frames = append(t.frames, dir)
	t.mu.Unlock()
	return nil
}

func newPipeChannels(t *testing.T) (*Channel, *Channel, *recordingReceiver, *recordingReceiver) {
	t.Helper()
	a, b := NewPipe()
	master := New("master", a, nil)
	slave := New("slave", b, nil)
	mr, sr := newRecordingReceiver(), newRecordingReceiver()
	master.SetReceiver(mr)
	slave.SetReceiver(sr)
	require.NoError(t, master.StartReceiving())
	require.NoError(t, slave.StartReceiving())
	t.Cleanup(func() {
		master.Close()
		slave.Close()
	})
	return master, slave, mr, sr
}

func TestChannel_SendReceive(t *testing.T) {
	master, slave, mr, sr := newPipeChannels(t)

	reg := &pdu.StcRegister{SeqID: 0, Receiver: 1, State: types.StateAlive, OpMode: types.OpModeSRT}
	require.NoError(t, master.Send(reg))
	sr.wait(t)
	require.Len(t, sr.received(), 1)
	assert.Equal(t, reg, sr.received()[0])

	require.NoError(t, slave.Send(&pdu.RspAck{RespSeqID: 0, Sender: 1}))
	mr.wait(t)
	assert.Equal(t, &pdu.RspAck{RespSeqID: 0, Sender: 1}, mr.received()[0])

	assert.Equal(t, uint64(1), master.GetStatistics().GetFramesTx())
	assert.Equal(t, uint64(1), master.GetStatistics().GetFramesRx())
	assert.Equal(t, ChannelStateOpen, master.State())
}

func TestChannel_SizeMismatchReported(t *testing.T) {
	a, b := NewPipe()
	c := New("slave", b, nil)
	r := newRecordingReceiver()
	c.SetReceiver(r)
	require.NoError(t, c.StartReceiving())
	defer c.Close()
	defer a.Close()

	frame := pdu.Encode(&pdu.InfState{SeqID: 1, Receiver: 1})
	frame = append(frame, 0x00)
	frame[0]++ // keep the length prefix consistent with the extra byte
	b.Inject(frame)

	r.wait(t)
	assert.Equal(t, []types.DcpError{types.ErrInvalidLength}, r.reported())
	assert.Empty(t, r.received())
	assert.Equal(t, uint64(1), c.GetStatistics().GetSizeMismatches())
}

func TestChannel_DropsWhileNotReceiving(t *testing.T) {
	master, slave, _, sr := newPipeChannels(t)
	require.NoError(t, slave.StopReceiving())
	assert.False(t, slave.IsReceiving())

	require.NoError(t, master.Send(&pdu.InfState{SeqID: 1, Receiver: 1}))
	require.Eventually(t, func() bool {
		return slave.GetStatistics().GetDropped() == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, sr.received())

	require.NoError(t, slave.StartReceiving())
	require.NoError(t, master.Send(&pdu.InfState{SeqID: 2, Receiver: 1}))
	sr.wait(t)
	assert.Len(t, sr.received(), 1)
}

func TestChannel_Tracer(t *testing.T) {
	master, _, _, sr := newPipeChannels(t)
	tr := &recordingTracer{}
	master.SetTracer(tr)

	require.NoError(t, master.Send(&pdu.InfState{SeqID: 1, Receiver: 1}))
	sr.wait(t)

	tr.mu.Lock()
	defer tr.mu.Unlock()
	assert.Equal(t, []Direction{DirectionTx}, tr.frames)
}

func TestChannel_SendAfterClose(t *testing.T) {
	master, _, _, _ := newPipeChannels(t)
	require.NoError(t, master.Close())
	assert.ErrorIs(t, master.Send(&pdu.InfState{}), ErrChannelClosed)
	assert.ErrorIs(t, master.Open(), ErrChannelClosed)
}

func TestChannel_ConnectToSlave(t *testing.T) {
	uc, err := NewUDPChannel(UDPChannelConfig{Address: "127.0.0.1:0", IsServer: true})
	require.NoError(t, err)
	c := New("master", uc, nil)
	defer c.Close()

	assert.ErrorIs(t, c.ConnectToSlave(3), ErrNoNetworkInfo)

	c.SetSlaveNetworkInformation(3, pdu.IPv4Address(types.ProtocolUDPIPv4, netip.MustParseAddrPort("127.0.0.1:5500")))
	require.NoError(t, c.ConnectToSlave(3))
	assert.True(t, c.Router().IsConnected(3))
	require.NoError(t, c.DisconnectFromSlave(3))
	assert.False(t, c.Router().IsConnected(3))
}

func TestChannel_UDPRouting(t *testing.T) {
	slavePhys, err := NewUDPChannel(UDPChannelConfig{Address: "127.0.0.1:0", IsServer: true})
	require.NoError(t, err)
	masterPhys, err := NewUDPChannel(UDPChannelConfig{Address: "127.0.0.1:0", IsServer: true})
	require.NoError(t, err)

	slave := New("slave", slavePhys, nil)
	master := New("master", masterPhys, nil)
	sr, mr := newRecordingReceiver(), newRecordingReceiver()
	slave.SetReceiver(sr)
	master.SetReceiver(mr)
	require.NoError(t, slave.StartReceiving())
	require.NoError(t, master.StartReceiving())
	defer slave.Close()
	defer master.Close()

	master.SetSlaveNetworkInformation(1, pdu.IPv4Address(types.ProtocolUDPIPv4, slavePhys.LocalAddrPort()))
	require.NoError(t, master.ConnectToSlave(1))

	require.NoError(t, master.Send(&pdu.InfState{SeqID: 0, Receiver: 1}))
	sr.wait(t)
	require.Len(t, sr.received(), 1)

	// the slave answers the peer it heard the control PDU from
	slave.RegisterSuccessful()
	m, ok := slave.Router().Master()
	require.True(t, ok)
	assert.Equal(t, masterPhys.LocalAddrPort().Port(), m.Port())

	require.NoError(t, slave.Send(&pdu.RspStateAck{RespSeqID: 0, Sender: 1, State: types.StateAlive}))
	mr.wait(t)
	assert.Equal(t, &pdu.RspStateAck{RespSeqID: 0, Sender: 1, State: types.StateAlive}, mr.received()[0])
}

func TestUDPChannel_Listen(t *testing.T) {
	uc, err := NewUDPChannel(UDPChannelConfig{Address: "127.0.0.1:0", IsServer: true})
	require.NoError(t, err)
	defer uc.Close()

	sender, err := NewUDPChannel(UDPChannelConfig{Address: "127.0.0.1:0", IsServer: true})
	require.NoError(t, err)
	defer sender.Close()

	// bind a data port on an ephemeral address and find out which one it got
	probe, err := NewUDPChannel(UDPChannelConfig{Address: "127.0.0.1:0", IsServer: true})
	require.NoError(t, err)
	port := probe.LocalAddrPort().Port()
	require.NoError(t, probe.Close())

	dataAddr := netip.AddrPortFrom(netip.MustParseAddr("127.0.0.1"), port)
	require.NoError(t, uc.Listen(dataAddr))
	require.NoError(t, uc.Listen(dataAddr))

	frame := pdu.Encode(&pdu.DatInputOutput{SeqID: 1, DataID: 2, Payload: []byte{1, 2}})
	require.NoError(t, sender.WriteTo(context.Background(), frame, dataAddr))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	got, from, err := uc.ReadFrom(ctx)
	require.NoError(t, err)
	assert.Equal(t, frame, got)
	assert.Equal(t, sender.LocalAddrPort().Port(), from.Port())
	assert.True(t, from.Addr().Is4(), "peer address %s should be unmapped", from)

	require.NoError(t, uc.CloseListeners())
}

type stateRecorder struct {
	established chan struct{}
	lost        chan struct{}
}

func (r *stateRecorder) OnConnectionEstablished() { r.established <- struct{}{} }
func (r *stateRecorder) OnConnectionLost()        { r.lost <- struct{}{} }

func TestTCPChannel_ConnectionStateListener(t *testing.T) {
	server, err := NewTCPChannel(TCPChannelConfig{Address: "127.0.0.1:0", IsServer: true})
	require.NoError(t, err)
	defer server.Close()

	states := &stateRecorder{established: make(chan struct{}, 4), lost: make(chan struct{}, 4)}
	server.SetConnectionStateListener(states)

	client, err := NewTCPChannel(TCPChannelConfig{
		Address:        server.listener.Addr().String(),
		ReconnectDelay: 50 * time.Millisecond,
	})
	require.NoError(t, err)
	defer client.Close()

	select {
	case <-states.established:
	case <-time.After(3 * time.Second):
		t.Fatal("connection was not reported")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	frame := pdu.Encode(&pdu.InfState{SeqID: 4, Receiver: 1})
	require.NoError(t, client.Write(ctx, frame))
	got, err := server.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, frame, got)
}
