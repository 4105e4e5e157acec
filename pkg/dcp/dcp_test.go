package dcp

import (
	"net/netip"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"avaneesh/dcp-go/pkg/channel"
	"avaneesh/dcp-go/pkg/description"
	"avaneesh/dcp-go/pkg/master"
	"avaneesh/dcp-go/pkg/pdu"
	"avaneesh/dcp-go/pkg/slave"
	"avaneesh/dcp-go/pkg/trace"
	"avaneesh/dcp-go/pkg/types"
)

const slaveID = 1

func loadDescription(t *testing.T) *description.SlaveDescription {
	t.Helper()
	desc, err := description.Load("../description/testdata/slave.yaml")
	require.NoError(t, err)
	return desc
}

// pair wires a master and a slave through an in-memory pipe
func pair(t *testing.T, mgr *Manager) (*master.Master, *slave.Slave, Channel) {
	t.Helper()
	masterEnd, slaveEnd := channel.NewPipe()

	mch, err := mgr.AddChannel("master", masterEnd)
	require.NoError(t, err)
	sch, err := mgr.AddChannel("slave", slaveEnd)
	require.NoError(t, err)

	m, err := mch.AddMaster(DefaultMasterConfig())
	require.NoError(t, err)

	scfg := DefaultSlaveConfig()
	scfg.Heartbeat = -1
	s, err := sch.AddSlave(scfg, loadDescription(t))
	require.NoError(t, err)

	require.NoError(t, s.Start())
	require.NoError(t, m.Start())
	require.NoError(t, m.AddSlave(slaveID, pdu.NetworkAddress{Protocol: types.ProtocolTCPIPv4}))
	return m, s, mch
}

func TestManager_Channels(t *testing.T) {
	mgr := NewManagerWithLogger(NoOpLogger())
	a, _ := channel.NewPipe()

	_, err := mgr.AddChannel("a", a)
	require.NoError(t, err)
	assert.Equal(t, 1, mgr.ChannelCount())

	_, err = mgr.AddChannel("a", a)
	assert.Error(t, err)

	ch, ok := mgr.GetChannel("a")
	require.True(t, ok)
	_, ok = mgr.GetChannel("b")
	assert.False(t, ok)

	_, err = ch.AddMaster(DefaultMasterConfig())
	require.NoError(t, err)
	_, err = ch.AddMaster(DefaultMasterConfig())
	assert.ErrorIs(t, err, ErrEndpointBound)
	_, err = ch.AddSlave(DefaultSlaveConfig(), loadDescription(t))
	assert.ErrorIs(t, err, ErrEndpointBound)

	require.NoError(t, ch.Shutdown())
	assert.Equal(t, 0, mgr.ChannelCount())
	assert.Error(t, mgr.RemoveChannel("a"))
	_, err = ch.AddMaster(DefaultMasterConfig())
	assert.Error(t, err)
}

func TestManager_RegisterAndConfigure(t *testing.T) {
	mgr := NewManagerWithLogger(NoOpLogger())
	t.Cleanup(func() { _ = mgr.Shutdown() })
	m, s, mch := pair(t, mgr)

	path := filepath.Join(t.TempDir(), "master.pcap")
	require.NoError(t, mch.Trace(path, netip.MustParseAddrPort("127.0.0.1:5500")))

	configured := make(chan types.DcpError, 1)
	m.AddConfiguredListener(types.Sync, func(_ uint8, code types.DcpError) {
		configured <- code
	})

	_, err := m.Register(slaveID, s.Description().SlaveUUID(), types.OpModeNRT, 1, 0)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return m.Registered(slaveID) }, time.Second, 5*time.Millisecond)
	assert.Equal(t, types.StateConfiguration, s.State())
	assert.Equal(t, uint8(slaveID), s.DcpID())

	source := pdu.IPv4Address(types.ProtocolUDPIPv4, netip.MustParseAddrPort("127.0.0.1:6001"))
	target := pdu.IPv4Address(types.ProtocolUDPIPv4, netip.MustParseAddrPort("127.0.0.1:6002"))
	require.NoError(t, m.ConfigureSlave(slaveID, []pdu.PDU{
		&pdu.CfgTimeRes{Numerator: 1, Denominator: 100},
		&pdu.CfgInput{DataID: 1, Pos: 0, TargetVR: 2, SourceDataType: types.TypeFloat32},
		&pdu.CfgScope{DataID: 1, Scope: types.ScopeInitRunNRT},
		&pdu.CfgSourceNetworkInformation{DataID: 1, Address: source},
		&pdu.CfgOutput{DataID: 2, Pos: 0, SourceVR: 3},
		&pdu.CfgSteps{DataID: 2, Steps: 1},
		&pdu.CfgScope{DataID: 2, Scope: types.ScopeInitRunNRT},
		&pdu.CfgTargetNetworkInformation{DataID: 2, Address: target},
	}))

	select {
	case code := <-configured:
		assert.Equal(t, types.ErrNone, code)
	case <-time.After(2 * time.Second):
		t.Fatal("configuration burst did not complete")
	}
	require.Eventually(t, func() bool { return s.State() == types.StateConfigured }, time.Second, 5*time.Millisecond)

	stats := mch.Statistics()
	assert.GreaterOrEqual(t, stats.FramesTx, uint64(11))
	assert.GreaterOrEqual(t, stats.FramesRx, uint64(11))
	assert.Zero(t, stats.BadFrames)

	require.NoError(t, mgr.Shutdown())
	frames, err := trace.ReadFile(path)
	require.NoError(t, err)
	assert.NotEmpty(t, frames)
}
