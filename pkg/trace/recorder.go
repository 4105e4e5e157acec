// Package trace records DCP frames to pcap files.
//
// Each frame is wrapped in a synthetic Ethernet/IPv4/UDP packet so that the
// capture opens in standard tools. The UDP endpoints are the real local and
// peer endpoints when known, placeholders otherwise.
package trace

import (
	"fmt"
	"io"
	"net"
	"net/netip"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"avaneesh/dcp-go/pkg/channel"
)

const snapLen = 65535

var (
	placeholderLocal = netip.MustParseAddrPort("127.0.0.1:49152")
	placeholderPeer  = netip.MustParseAddrPort("127.0.0.2:49153")

	localMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	peerMAC  = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
)

// Recorder implements channel.FrameTracer on top of a pcap writer
type Recorder struct {
	mu     sync.Mutex
	w      *pcapgo.Writer
	closer io.Closer
	local  netip.AddrPort
	count  int
	now    func() time.Time
}

var _ channel.FrameTracer = (*Recorder)(nil)

// NewRecorder writes a pcap header to w and returns a recorder.
// local is the endpoint frames are sent from; zero uses a placeholder.
func NewRecorder(w io.Writer, local netip.AddrPort) (*Recorder, error) {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(snapLen, layers.LinkTypeEthernet); err != nil {
		return nil, fmt.Errorf("write pcap header: %w", err)
	}
	if !local.IsValid() || !local.Addr().Unmap().Is4() {
		local = placeholderLocal
	}
	r := &Recorder{w: pw, local: local, now: time.Now}
	if c, ok := w.(io.Closer); ok {
		r.closer = c
	}
	return r, nil
}

// Create opens path for writing and returns a recorder owning the file
func Create(path string, local netip.AddrPort) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create pcap: %w", err)
	}
	r, err := NewRecorder(f, local)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

// Record implements channel.FrameTracer
func (r *Recorder) Record(dir channel.Direction, data []byte, peer netip.AddrPort) error {
	if !peer.IsValid() || !peer.Addr().Unmap().Is4() {
		peer = placeholderPeer
	}

	src, dst := r.local, peer
	srcMAC, dstMAC := localMAC, peerMAC
	if dir == channel.DirectionRx {
		src, dst = dst, src
		srcMAC, dstMAC = dstMAC, srcMAC
	}

	ethernet := &layers.Ethernet{
		SrcMAC:       srcMAC,
		DstMAC:       dstMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    src.Addr().Unmap().AsSlice(),
		DstIP:    dst.Addr().Unmap().AsSlice(),
	}
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(src.Port()),
		DstPort: layers.UDPPort(dst.Port()),
	}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		return fmt.Errorf("set checksum layer: %w", err)
	}

	buffer := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{
		FixLengths:       true,
		ComputeChecksums: true,
	}
	if err := gopacket.SerializeLayers(buffer, opts, ethernet, ip, udp, gopacket.Payload(data)); err != nil {
		return fmt.Errorf("serialize packet: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.w == nil {
		return fmt.Errorf("recorder closed")
	}
	if err := r.w.WritePacket(gopacket.CaptureInfo{
		Timestamp:     r.now(),
		CaptureLength: len(buffer.Bytes()),
		Length:        len(buffer.Bytes()),
	}, buffer.Bytes()); err != nil {
		return fmt.Errorf("write packet: %w", err)
	}
	r.count++
	return nil
}

// Count returns the number of recorded frames
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Close closes the underlying writer if the recorder owns one
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.w = nil
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}
