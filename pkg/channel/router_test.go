package channel

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"

	"avaneesh/dcp-go/pkg/pdu"
	"avaneesh/dcp-go/pkg/types"
)

func TestRouter_Destination(t *testing.T) {
	r := NewRouter()
	slaveAddr := netip.MustParseAddrPort("10.0.0.2:5000")
	targetAddr := netip.MustParseAddrPort("10.0.0.3:6000")
	paramAddr := netip.MustParseAddrPort("10.0.0.2:7000")
	r.SetSlave(1, pdu.IPv4Address(types.ProtocolUDPIPv4, slaveAddr))
	r.SetTarget(4, pdu.IPv4Address(types.ProtocolUDPIPv4, targetAddr))
	r.SetTargetParam(1, 9, pdu.IPv4Address(types.ProtocolUDPIPv4, paramAddr))

	tests := []struct {
		name string
		p    pdu.PDU
		want netip.AddrPort
		ok   bool
	}{
		{"control to slave", &pdu.StcPrepare{Receiver: 1}, slaveAddr, true},
		{"control to unknown slave", &pdu.StcPrepare{Receiver: 2}, netip.AddrPort{}, false},
		{"output data", &pdu.DatInputOutput{DataID: 4}, targetAddr, true},
		{"unknown data id", &pdu.DatInputOutput{DataID: 5}, netip.AddrPort{}, false},
		{"parameter", &pdu.DatParameter{ParamID: 9}, paramAddr, true},
		{"response before any peer", &pdu.RspAck{}, netip.AddrPort{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := r.Destination(tt.p)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRouter_ResponsesFollowMaster(t *testing.T) {
	r := NewRouter()
	first := netip.MustParseAddrPort("10.0.0.1:4000")
	second := netip.MustParseAddrPort("10.0.0.9:4000")

	r.ObservePeer(first)
	got, ok := r.Destination(&pdu.RspAck{})
	assert.True(t, ok)
	assert.Equal(t, first, got)

	r.PinMaster()
	r.ObservePeer(second)
	got, _ = r.Destination(&pdu.NtfStateChanged{})
	assert.Equal(t, first, got)
}

func TestRouter_UnspecifiedHostUsesMaster(t *testing.T) {
	r := NewRouter()
	r.SetTarget(1, pdu.IPv4Address(types.ProtocolUDPIPv4, netip.MustParseAddrPort("0.0.0.0:6000")))

	_, ok := r.Destination(&pdu.DatInputOutput{DataID: 1})
	assert.False(t, ok)

	r.ObservePeer(netip.MustParseAddrPort("10.0.0.1:4000"))
	r.PinMaster()
	got, ok := r.Destination(&pdu.DatInputOutput{DataID: 1})
	assert.True(t, ok)
	assert.Equal(t, netip.MustParseAddrPort("10.0.0.1:6000"), got)
}

func TestRouter_ClearData(t *testing.T) {
	r := NewRouter()
	r.SetSlave(1, pdu.IPv4Address(types.ProtocolUDPIPv4, netip.MustParseAddrPort("10.0.0.2:5000")))
	r.SetSource(2, pdu.IPv4Address(types.ProtocolUDPIPv4, netip.MustParseAddrPort("10.0.0.2:5001")))
	r.SetParam(3, pdu.IPv4Address(types.ProtocolUDPIPv4, netip.MustParseAddrPort("10.0.0.2:5002")))

	r.ClearData()
	_, ok := r.Source(2)
	assert.False(t, ok)
	_, ok = r.Param(3)
	assert.False(t, ok)
	_, ok = r.Destination(&pdu.StcStop{Receiver: 1})
	assert.True(t, ok)
}
