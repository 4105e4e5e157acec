package trace

import (
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"avaneesh/dcp-go/pkg/pdu"
)

// Frame is one DCP frame read back from a capture
type Frame struct {
	Time time.Time
	Src  netip.AddrPort
	Dst  netip.AddrPort
	Data []byte
	// PDU is nil when Data does not decode, see Err
	PDU pdu.PDU
	Err error
}

// ReadFile reads all UDP payloads of a capture as DCP frames
func ReadFile(path string) ([]Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pcap: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// Read reads all UDP payloads of a capture as DCP frames
func Read(r io.Reader) ([]Frame, error) {
	pr, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("read pcap header: %w", err)
	}

	var frames []Frame
	for {
		data, ci, err := pr.ReadPacketData()
		if errors.Is(err, io.EOF) {
			return frames, nil
		}
		if err != nil {
			return frames, fmt.Errorf("read packet: %w", err)
		}

		packet := gopacket.NewPacket(data, pr.LinkType(), gopacket.Default)
		ipLayer, _ := packet.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
		udpLayer, _ := packet.Layer(layers.LayerTypeUDP).(*layers.UDP)
		if ipLayer == nil || udpLayer == nil {
			continue
		}

		src, _ := netip.AddrFromSlice(ipLayer.SrcIP)
		dst, _ := netip.AddrFromSlice(ipLayer.DstIP)
		fr := Frame{
			Time: ci.Timestamp,
			Src:  netip.AddrPortFrom(src.Unmap(), uint16(udpLayer.SrcPort)),
			Dst:  netip.AddrPortFrom(dst.Unmap(), uint16(udpLayer.DstPort)),
			Data: append([]byte(nil), udpLayer.Payload...),
		}
		fr.PDU, fr.Err = pdu.Decode(fr.Data)
		frames = append(frames, fr)
	}
}
