package dot11

import (
	"fmt"
	"net"

	"github.com/charmbracelet/log"
	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"

	"github.com/mattcspeights/ghostframes/internal/worker"
)

// snapLen is large enough for any GhostFrame payload plus 802.11/RadioTap
// overhead; the wire format has no hard upper bound on DATA length, but
// frames in practice stay well under this (spec §4.1, §4.6 chunking keeps
// FILE_CHUNK payloads near 1000 bytes pre-encryption).
const snapLen = 1 << 16

// Transceiver sends and receives GhostFrame-encapsulated 802.11 frames on
// one monitor-mode interface (spec §4.1, §4.2). It embeds worker.Worker so
// its sniff loop participates in the same halt/wait lifecycle as the rest
// of the messenger's background goroutines (grounded on client2/arq.go's
// ARQ.timerQueue embedding the same Worker idiom).
type Transceiver struct {
	worker.Worker

	iface  string
	selfID net.HardwareAddr
	handle *pcap.Handle
	log    *log.Logger
}

// New opens a pcap handle on iface in promiscuous mode and returns a
// Transceiver bound to selfMAC, the local interface's hardware address used
// as addr2 on every frame we send and to filter out our own transmissions
// while sniffing (spec §4.2 "loopback suppression").
func New(iface string, selfMAC net.HardwareAddr, mylog *log.Logger) (*Transceiver, error) {
	handle, err := pcap.OpenLive(iface, snapLen, true, pcap.BlockForever)
	if err != nil {
		return nil, fmt.Errorf("dot11: open %s: %w", iface, err)
	}

	return &Transceiver{
		iface:  iface,
		selfID: selfMAC,
		handle: handle,
		log:    mylog.WithPrefix("_DOT11_"),
	}, nil
}

// Close releases the underlying pcap handle. Call Halt/Wait first if Sniff
// was started.
func (t *Transceiver) Close() {
	if t.handle != nil {
		t.handle.Close()
		t.handle = nil
	}
}

// Send serializes payload into a GhostFrame 802.11 data frame addressed to
// dst and injects it on the interface (spec §4.2 "transmit").
func (t *Transceiver) Send(dst net.HardwareAddr, payload []byte) error {
	raw, err := buildFrame(t.selfID, dst, payload)
	if err != nil {
		return fmt.Errorf("dot11: build frame: %w", err)
	}
	if err := t.handle.WritePacketData(raw); err != nil {
		return fmt.Errorf("dot11: write packet: %w", err)
	}
	return nil
}

// Sniff starts the background capture loop and returns a channel of
// accepted, loopback-filtered GhostFrame frames (spec §4.2 "receive"). The
// channel is closed when the Transceiver is halted or the pcap handle is
// closed.
func (t *Transceiver) Sniff() <-chan Received {
	out := make(chan Received, 64)
	source := gopacket.NewPacketSource(t.handle, t.handle.LinkType())
	packets := source.Packets()

	t.Go(func() {
		defer close(out)
		t.log.Info("sniff loop started")
		for {
			select {
			case <-t.HaltCh():
				t.log.Info("sniff loop halted")
				return
			case packet, ok := <-packets:
				if !ok {
					return
				}
				received, accepted := parseFrame(packet)
				if !accepted {
					continue
				}
				if macEqual(received.SrcMAC, t.selfID) {
					// Our own transmission looped back by the monitor
					// interface; drop it (spec §4.2).
					continue
				}
				select {
				case out <- received:
				case <-t.HaltCh():
					return
				}
			}
		}
	})

	return out
}
