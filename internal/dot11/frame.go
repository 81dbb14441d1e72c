// Package dot11 implements the link-layer transceiver (spec §4.1, §4.2):
// framing GhostFrame payloads inside raw 802.11 data frames and
// sending/sniffing them on a monitor-mode interface via libpcap.
//
// Grounded on other_examples/lcalzada-xor-wmap's injector.go (RadioTap +
// Dot11 construction, gopacket.SerializeLayers) and handshake_manager.go
// (pcap handle + gopacket.NewPacketSource sniff loop), since the teacher
// repo itself operates over a mix-net transport rather than raw 802.11 and
// has no comparable file; google/gopacket is nonetheless a real (indirect)
// dependency of the teacher's own go.mod.
package dot11

import (
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// SentinelBSSID is the fixed addr3 value GhostFrame uses in place of a real
// access point BSSID, letting every participant recognize frames belonging
// to this protocol regardless of which physical network they overlap with
// (spec §4.1).
var SentinelBSSID = net.HardwareAddr{0x02, 0x07, 0x08, 0x15, 0x19, 0x20}

// etherTypeGhostFrame is the SNAP ethertype GhostFrame uses to mark its
// payload behind a fixed LLC/SNAP header, matching the convention of encapsulating an arbitrary ethertype
// inside an 802.11 data frame's body (RFC 1042 encapsulation, as used by
// layers.LLC/layers.SNAP in gopacket).
const etherTypeGhostFrame = 0x88B5 // IEEE 802 "Local Experimental Ethertype 1"

// buildFrame serializes one GhostFrame wire payload into a raw 802.11 data
// frame: RadioTap + Dot11 (ToDS=false, FromDS=false, ad-hoc framing) + LLC +
// SNAP + payload bytes.
func buildFrame(src, dst net.HardwareAddr, payload []byte) ([]byte, error) {
	radiotap := &layers.RadioTap{}

	dot11 := &layers.Dot11{
		Type:     layers.Dot11TypeData,
		Address1: dst,
		Address2: src,
		Address3: SentinelBSSID,
	}

	llc := &layers.LLC{
		DSAP:    0xaa,
		IG:      false,
		SSAP:    0xaa,
		CR:      false,
		Control: 0x03,
	}

	snap := &layers.SNAP{
		OrganizationalCode: []byte{0x00, 0x00, 0x00},
		Type:               etherTypeGhostFrame,
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	err := gopacket.SerializeLayers(buf, opts, radiotap, dot11, llc, snap, gopacket.Payload(payload))
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Received is one accepted incoming frame, decoded down to its source MAC
// and GhostFrame payload bytes.
type Received struct {
	SrcMAC  net.HardwareAddr
	Payload []byte
}

// parseFrame extracts the source address and SNAP payload from a captured
// 802.11 packet, returning ok=false for anything that isn't a GhostFrame
// data frame addressed to our sentinel BSSID (spec §4.1 "accept filter").
func parseFrame(packet gopacket.Packet) (Received, bool) {
	dot11Layer := packet.Layer(layers.LayerTypeDot11)
	if dot11Layer == nil {
		return Received{}, false
	}
	dot11, ok := dot11Layer.(*layers.Dot11)
	if !ok || dot11.Type.MainType() != layers.Dot11TypeData {
		return Received{}, false
	}
	if !macEqual(dot11.Address3, SentinelBSSID) {
		return Received{}, false
	}

	snapLayer := packet.Layer(layers.LayerTypeSNAP)
	if snapLayer == nil {
		return Received{}, false
	}
	snap, ok := snapLayer.(*layers.SNAP)
	if !ok || snap.Type != etherTypeGhostFrame {
		return Received{}, false
	}

	return Received{
		SrcMAC:  append(net.HardwareAddr(nil), dot11.Address2...),
		Payload: append([]byte(nil), snap.LayerPayload()...),
	}, true
}

func macEqual(a, b net.HardwareAddr) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
