package messenger

import (
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"

	"github.com/mattcspeights/ghostframes/internal/bridge"
	"github.com/mattcspeights/ghostframes/internal/codec"
	"github.com/mattcspeights/ghostframes/internal/dedup"
	"github.com/mattcspeights/ghostframes/internal/discovery"
	"github.com/mattcspeights/ghostframes/internal/filetransfer"
	"github.com/mattcspeights/ghostframes/internal/peertable"
	"github.com/mattcspeights/ghostframes/internal/reliability"
	"github.com/mattcspeights/ghostframes/internal/router"
)

// fakeTransport implements frameSender without requiring a real pcap
// interface, letting this package's wiring be exercised end-to-end.
type fakeTransport struct {
	mu     sync.Mutex
	frames []sentFrame
}

type sentFrame struct {
	dst   net.HardwareAddr
	frame codec.Frame
}

func (f *fakeTransport) SendFrame(dst net.HardwareAddr, frame codec.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, sentFrame{dst: dst, frame: frame})
	return nil
}

func (f *fakeTransport) snapshot() []sentFrame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentFrame(nil), f.frames...)
}

// newTestMessenger builds a Messenger with every subsystem New would wire,
// substituting fakeTransport for the real dot11.Transceiver so tests don't
// need a monitor-mode interface.
func newTestMessenger(t *testing.T, name string) (*Messenger, *fakeTransport) {
	t.Helper()
	mylog := log.New(io.Discard)
	fake := &fakeTransport{}

	m := &Messenger{
		io:  fake,
		log: mylog.WithPrefix("_MESSENGER_"),
	}
	m.selfName.Store(name)

	m.table = peertable.New(nil)
	m.dedupSet = dedup.New()
	m.transfers = filetransfer.NewReceiveTable()
	m.reliab = reliability.New(m.table, fake, m.onAckExhausted, mylog)
	m.reliab.Start()
	t.Cleanup(m.reliab.Stop)

	m.rtr = router.New(router.Config{
		SelfName:   name,
		Table:      m.table,
		Dedup:      m.dedupSet,
		Transfers:  m.transfers,
		Reliab:     m.reliab,
		Sender:     fake,
		NextMsgID:  m.nextMsgID,
		OnPeerLeft: m.onPeerLeft,
		Log:        mylog,
	})
	m.rtr.RegisterMessageListener(m.dispatchToListeners)

	m.announcer = discovery.New(name, Broadcast, fake, m.nextMsgID, mylog)

	return m, fake
}

func TestSendMessageUnknownPeer(t *testing.T) {
	m, _ := newTestMessenger(t, "alice")
	err := m.SendMessage("bob", "hi")
	require.Error(t, err)
}

func TestSendMessageInstallsAckBeforeTransmit(t *testing.T) {
	m, fake := newTestMessenger(t, "alice")
	mac, _ := net.ParseMAC("aa:bb:cc:dd:ee:01")
	m.table.Upsert("bob", "bob", mac, time.Now())

	require.NoError(t, m.SendMessage("bob", "hello"))
	require.True(t, m.table.AnyExpectedAck(), "expected-ack must be installed for the outbound MSG")

	sent := fake.snapshot()
	require.Len(t, sent, 1)
	require.Equal(t, codec.MsgTypeMsg, sent[0].frame.Type)
}

func TestRegisterMessageListenerReceivesDeliveredMsg(t *testing.T) {
	m, _ := newTestMessenger(t, "alice")
	mac, _ := net.ParseMAC("aa:bb:cc:dd:ee:01")
	m.table.Upsert("bob", "bob", mac, time.Now())

	var got string
	m.RegisterMessageListener(func(senderPeerID, body string) {
		got = body
	})

	var key [32]byte
	raw, err := codec.Encode(codec.Frame{Type: codec.MsgTypeMsg, MsgID: 1, Seq: 0, Data: "yo"}, key)
	require.NoError(t, err)
	m.rtr.HandleReceived(mac, raw)

	require.Equal(t, "yo", got)
}

func TestRemoveMessageListenerStopsDelivery(t *testing.T) {
	m, _ := newTestMessenger(t, "alice")
	mac, _ := net.ParseMAC("aa:bb:cc:dd:ee:01")
	m.table.Upsert("bob", "bob", mac, time.Now())

	var got string
	var cb bridge.MessageListener = func(senderPeerID, body string) {
		got = body
	}
	m.RegisterMessageListener(cb)
	m.RemoveMessageListener(cb)

	var key [32]byte
	raw, err := codec.Encode(codec.Frame{Type: codec.MsgTypeMsg, MsgID: 1, Seq: 0, Data: "yo"}, key)
	require.NoError(t, err)
	m.rtr.HandleReceived(mac, raw)

	require.Empty(t, got, "removed listener must not be invoked")
}

func TestRenameBroadcastsToKnownPeers(t *testing.T) {
	m, fake := newTestMessenger(t, "alice")
	mac, _ := net.ParseMAC("aa:bb:cc:dd:ee:01")
	m.table.Upsert("bob", "bob", mac, time.Now())

	require.NoError(t, m.Rename("alice2"))

	sent := fake.snapshot()
	require.Len(t, sent, 1)
	require.Equal(t, codec.MsgTypeRename, sent[0].frame.Type)
	require.Equal(t, "alice2", sent[0].frame.Data)
}

func TestSendFileUnknownPeer(t *testing.T) {
	m, _ := newTestMessenger(t, "alice")
	err := m.SendFile(context.Background(), "bob", "nonexistent.bin")
	require.Error(t, err)
}

func TestSendFileInstallsFileAck(t *testing.T) {
	m, fake := newTestMessenger(t, "alice")
	mac, _ := net.ParseMAC("aa:bb:cc:dd:ee:01")
	m.table.Upsert("bob", "bob", mac, time.Now())

	dir := t.TempDir()
	path := filepath.Join(dir, "payload.bin")
	require.NoError(t, os.WriteFile(path, []byte("some file contents"), 0o644))

	require.NoError(t, m.SendFile(context.Background(), "bob", path))
	require.True(t, m.table.AnyExpectedAck())

	sent := fake.snapshot()
	require.True(t, len(sent) >= 3, "expect FILE_INIT, >=1 FILE_CHUNK, FILE_END")
	require.Equal(t, codec.MsgTypeFileInit, sent[0].frame.Type)
	require.Equal(t, codec.MsgTypeFileEnd, sent[len(sent)-1].frame.Type)
}

func TestKnownPeersSnapshot(t *testing.T) {
	m, _ := newTestMessenger(t, "alice")
	mac, _ := net.ParseMAC("aa:bb:cc:dd:ee:01")
	m.table.Upsert("bob", "bob", mac, time.Now())

	peers := m.KnownPeers()
	require.Len(t, peers, 1)
	require.Equal(t, "bob", peers[0].ID)
	require.Equal(t, mac.String(), peers[0].MAC)
}
