// Package messenger wires the frame codec, transceiver, protocol router,
// reliability engine, peer table, file transfer engine, and discovery
// announcer into one running node (spec §2 "System overview"), and
// implements internal/bridge.Bridge so an external façade can drive it.
//
// Grounded on client2/connection.go's Client/connection wiring (a central
// type owning sub-workers and a sync.Mutex-protected Worker lifecycle) and
// the Python original's Me class (messenger/peer.py), which performs the
// equivalent wiring of sniffer + reliability + announcer threads.
package messenger

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/mattcspeights/ghostframes/internal/bridge"
	"github.com/mattcspeights/ghostframes/internal/codec"
	"github.com/mattcspeights/ghostframes/internal/cryptobox"
	"github.com/mattcspeights/ghostframes/internal/dedup"
	"github.com/mattcspeights/ghostframes/internal/discovery"
	"github.com/mattcspeights/ghostframes/internal/dot11"
	"github.com/mattcspeights/ghostframes/internal/filetransfer"
	"github.com/mattcspeights/ghostframes/internal/peertable"
	"github.com/mattcspeights/ghostframes/internal/reliability"
	"github.com/mattcspeights/ghostframes/internal/router"
)

// Broadcast is the link-layer broadcast address used for HANDSHAKE_REQ
// and HEARTBEAT (spec §4.7).
var Broadcast = router.Broadcast

// frameSender is the capability Messenger needs to emit a frame, narrowed
// so tests can substitute a fake in place of a real dot11.Transceiver.
type frameSender interface {
	SendFrame(dst net.HardwareAddr, f codec.Frame) error
}

// frameIO adapts a dot11.Transceiver plus the shared AES key into the
// narrow FrameSender capability consumed by router, reliability, and
// filetransfer — encode-then-transmit in one place (spec §4.1, §4.2).
type frameIO struct {
	tx  *dot11.Transceiver
	key cryptobox.Key
}

func (f *frameIO) SendFrame(dst net.HardwareAddr, frame codec.Frame) error {
	raw, err := codec.Encode(frame, f.key)
	if err != nil {
		return fmt.Errorf("messenger: encode: %w", err)
	}
	return f.tx.Send(dst, raw)
}

// Messenger is one running Ghost Frame node (spec §2). It implements
// bridge.Bridge.
type Messenger struct {
	selfName atomic.Value // string

	key cryptobox.Key
	tx  *dot11.Transceiver
	io  frameSender

	table     *peertable.Table
	dedupSet  *dedup.Set
	transfers *filetransfer.ReceiveTable
	reliab    *reliability.Engine
	rtr       *router.Router
	announcer *discovery.Announcer

	msgIDCounter uint32

	mu        sync.Mutex
	listeners []bridge.MessageListener

	log *log.Logger
}

// Options configures New.
type Options struct {
	Name      string
	Interface string
	Key       cryptobox.Key
	Debug     bool
}

// New opens the transceiver on opts.Interface and wires every subsystem
// together, but does not yet start any background goroutine; call Start.
func New(opts Options) (*Messenger, error) {
	iface, err := net.InterfaceByName(opts.Interface)
	if err != nil {
		return nil, fmt.Errorf("messenger: lookup interface %s: %w", opts.Interface, err)
	}
	selfMAC := iface.HardwareAddr
	if len(selfMAC) == 0 {
		// Fall back to a fixed pseudo-MAC when the interface reports
		// none (spec §4.2 "fall back to a fixed pseudo-MAC if
		// unavailable").
		selfMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	}

	level := log.InfoLevel
	if opts.Debug {
		level = log.DebugLevel
	}
	mylog := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "ghostframes",
	})
	mylog.SetLevel(level)

	tx, err := dot11.New(opts.Interface, selfMAC, mylog)
	if err != nil {
		return nil, err
	}

	m := &Messenger{
		key: opts.Key,
		tx:  tx,
		log: mylog.WithPrefix("_MESSENGER_"),
	}
	m.selfName.Store(opts.Name)
	m.io = &frameIO{tx: tx, key: opts.Key}

	m.table = peertable.New(func(p *peertable.Peer) {
		m.log.Infof("%s has joined the network", p.ID)
	})
	m.dedupSet = dedup.New()
	m.transfers = filetransfer.NewReceiveTable()
	m.reliab = reliability.New(m.table, m.io, m.onAckExhausted, mylog)

	m.rtr = router.New(router.Config{
		SelfName:   opts.Name,
		Key:        opts.Key,
		Table:      m.table,
		Dedup:      m.dedupSet,
		Transfers:  m.transfers,
		Reliab:     m.reliab,
		Sender:     m.io,
		NextMsgID:  m.nextMsgID,
		OnPeerLeft: m.onPeerLeft,
		Log:        mylog,
	})
	m.rtr.RegisterMessageListener(m.dispatchToListeners)

	m.announcer = discovery.New(opts.Name, Broadcast, m.io, m.nextMsgID, mylog)

	return m, nil
}

// Start launches the sniffer, reliability timer loop, and announcer (spec
// §5 "Scheduling model").
func (m *Messenger) Start() {
	m.reliab.Start()

	received := m.tx.Sniff()
	go func() {
		for r := range received {
			m.rtr.HandleReceived(r.SrcMAC, r.Payload)
		}
	}()

	m.announcer.Start()
}

// Stop broadcasts TERMINATE to every known peer, then halts all
// background goroutines (spec §4.7 "On graceful shutdown").
func (m *Messenger) Stop() {
	for _, p := range m.table.Snapshot() {
		_ = m.io.SendFrame(p.MAC, codec.Frame{Type: codec.MsgTypeTerminate, MsgID: m.nextMsgID(), Seq: 0})
	}

	m.announcer.Halt()
	m.announcer.Wait()
	m.reliab.Stop()
	m.tx.Halt()
	m.tx.Wait()
	m.tx.Close()
}

func (m *Messenger) nextMsgID() uint32 {
	return atomic.AddUint32(&m.msgIDCounter, 1)
}

func (m *Messenger) onAckExhausted(peerID string, kind peertable.AckKind) {
	if kind == peertable.AckKindRegular {
		m.log.Warnf("%s has left the network (ack exhaustion)", peerID)
	} else {
		m.log.Warnf("file transfer to %s failed (ack exhaustion)", peerID)
	}
}

func (m *Messenger) onPeerLeft(peerID string) {
	m.log.Infof("%s has left the network", peerID)
}

func (m *Messenger) dispatchToListeners(senderPeerID, body string) {
	m.mu.Lock()
	cbs := append([]bridge.MessageListener(nil), m.listeners...)
	m.mu.Unlock()
	for _, cb := range cbs {
		cb(senderPeerID, body)
	}
}

// KnownPeers implements bridge.Bridge.
func (m *Messenger) KnownPeers() []bridge.PeerSnapshot {
	peers := m.table.Snapshot()
	out := make([]bridge.PeerSnapshot, 0, len(peers))
	for _, p := range peers {
		mac := ""
		if p.MAC != nil {
			mac = p.MAC.String()
		}
		out = append(out, bridge.PeerSnapshot{ID: p.ID, MAC: mac, LastSeen: p.LastSeen})
	}
	return out
}

// SendMessage implements bridge.Bridge (spec §4.6 note / §6 "send_message").
// The expected-ack is installed before the frame is transmitted, per the
// resolved race documented in spec §5/§9.
func (m *Messenger) SendMessage(peerID, text string) error {
	peer, ok := m.table.Get(peerID)
	if !ok {
		return fmt.Errorf("messenger: %q: %w", peerID, peertable.ErrUnknownPeer)
	}
	if peer.MAC == nil {
		return fmt.Errorf("messenger: %q: %w", peerID, peertable.ErrNoMAC)
	}

	seq, err := m.table.NextMessageSeq(peerID)
	if err != nil {
		return fmt.Errorf("messenger: %w", err)
	}
	frame := codec.Frame{Type: codec.MsgTypeMsg, MsgID: m.nextMsgID(), Seq: seq, Data: text}

	if err := m.reliab.Install(peerID, peer.MAC, peertable.AckKindRegular, frame); err != nil {
		return fmt.Errorf("messenger: install expected-ack: %w", err)
	}
	if err := m.io.SendFrame(peer.MAC, frame); err != nil {
		return fmt.Errorf("messenger: send: %w", err)
	}
	return nil
}

// SendFile implements bridge.Bridge (spec §4.6).
func (m *Messenger) SendFile(ctx context.Context, peerID, path string) error {
	peer, ok := m.table.Get(peerID)
	if !ok {
		return fmt.Errorf("messenger: %q: %w", peerID, peertable.ErrUnknownPeer)
	}
	if peer.MAC == nil {
		return fmt.Errorf("messenger: %q: %w", peerID, peertable.ErrNoMAC)
	}

	msgID := m.nextMsgID()
	endSeq, err := filetransfer.Send(m.io, peer.MAC, msgID, path, func(p filetransfer.Progress) {
		m.log.Debugf("sending %s: %d/%d chunks", p.Filename, p.ChunksSent, p.ChunksTotal)
	})
	if err != nil {
		return fmt.Errorf("messenger: send file: %w", err)
	}

	endFrame := codec.Frame{Type: codec.MsgTypeFileEnd, MsgID: msgID, Seq: endSeq, Data: ""}
	if err := m.reliab.Install(peerID, peer.MAC, peertable.AckKindFile, endFrame); err != nil {
		return fmt.Errorf("messenger: install file expected-ack: %w", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// Rename implements bridge.Bridge (spec §4.3 "RENAME").
func (m *Messenger) Rename(newName string) error {
	old := m.selfName.Load().(string)
	m.selfName.Store(newName)
	for _, p := range m.table.Snapshot() {
		_ = m.io.SendFrame(p.MAC, codec.Frame{Type: codec.MsgTypeRename, MsgID: m.nextMsgID(), Seq: 0, Data: newName})
	}
	m.log.Infof("renamed %s -> %s", old, newName)
	return nil
}

// RegisterMessageListener implements bridge.Bridge.
func (m *Messenger) RegisterMessageListener(cb bridge.MessageListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, cb)
}

// RemoveMessageListener implements bridge.Bridge, matching by the function
// value's pointer representation (the same approach internal/router's
// RemoveMessageListener uses): %p of a func value is its code pointer, so
// it removes every listener created from the same function literal (or the
// same method) as cb. Listeners from distinct function literals compare
// unequal even when their bodies are identical.
func (m *Messenger) RemoveMessageListener(cb bridge.MessageListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	target := fmt.Sprintf("%p", cb)
	filtered := m.listeners[:0]
	for _, l := range m.listeners {
		if fmt.Sprintf("%p", l) != target {
			filtered = append(filtered, l)
		}
	}
	m.listeners = filtered
}

var _ bridge.Bridge = (*Messenger)(nil)
