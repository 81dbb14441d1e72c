package reliability

import (
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"

	"github.com/mattcspeights/ghostframes/internal/codec"
	"github.com/mattcspeights/ghostframes/internal/peertable"
)

type recordingSender struct {
	mu     sync.Mutex
	frames []codec.Frame
}

func (r *recordingSender) SendFrame(dst net.HardwareAddr, f codec.Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, f)
	return nil
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

func discardLogger() *log.Logger {
	return log.New(io.Discard)
}

func TestAckClearsBeforeExhaustion(t *testing.T) {
	table := peertable.New(nil)
	mac, _ := net.ParseMAC("aa:bb:cc:dd:ee:ff")
	table.Upsert("bob", "bob", mac, time.Now())

	sender := &recordingSender{}
	var exhausted []string
	engine := New(table, sender, func(id string, kind peertable.AckKind) {
		exhausted = append(exhausted, id)
	}, discardLogger())
	engine.Start()
	defer engine.Stop()

	frame := codec.Frame{Type: codec.MsgTypeMsg, MsgID: 1, Seq: 0, Data: "hello"}
	require.NoError(t, engine.Install("bob", mac, peertable.AckKindRegular, frame))
	require.True(t, table.AnyExpectedAck())

	require.True(t, engine.Clear("bob", 1))
	require.False(t, table.AnyExpectedAck())

	time.Sleep(200 * time.Millisecond)
	require.Empty(t, exhausted, "cleared ack must not fire exhaustion")
	require.Equal(t, 0, sender.count(), "no retransmission after a clean ack")
}

func TestExhaustionRemovesRegularPeer(t *testing.T) {
	table := peertable.New(nil)
	mac, _ := net.ParseMAC("aa:bb:cc:dd:ee:ff")
	table.Upsert("bob", "bob", mac, time.Now())

	sender := &recordingSender{}
	done := make(chan string, 1)
	engine := New(table, sender, func(id string, kind peertable.AckKind) {
		done <- id
	}, discardLogger())
	engine.Start()
	defer engine.Stop()

	frame := codec.Frame{Type: codec.MsgTypeMsg, MsgID: 1, Seq: 0, Data: "hello"}
	require.NoError(t, engine.Install("bob", mac, peertable.AckKindRegular, frame))

	select {
	case id := <-done:
		require.Equal(t, "bob", id)
	case <-time.After(3 * time.Second):
		t.Fatal("exhaustion callback never fired")
	}

	_, ok := table.Get("bob")
	require.False(t, ok, "regular-message exhaustion removes the peer")
	require.GreaterOrEqual(t, sender.count(), 4, "expect retransmissions on attempts 1-4 before exhaustion")
}

func TestExhaustionKeepsFilePeer(t *testing.T) {
	table := peertable.New(nil)
	mac, _ := net.ParseMAC("aa:bb:cc:dd:ee:ff")
	table.Upsert("bob", "bob", mac, time.Now())

	sender := &recordingSender{}
	done := make(chan peertable.AckKind, 1)
	engine := New(table, sender, func(id string, kind peertable.AckKind) {
		done <- kind
	}, discardLogger())
	engine.Start()
	defer engine.Stop()

	frame := codec.Frame{Type: codec.MsgTypeFileEnd, MsgID: 2, Seq: 6, Data: ""}
	require.NoError(t, engine.Install("bob", mac, peertable.AckKindFile, frame))

	select {
	case kind := <-done:
		require.Equal(t, peertable.AckKindFile, kind)
	case <-time.After(20 * time.Second):
		t.Fatal("exhaustion callback never fired")
	}

	p, ok := table.Get("bob")
	require.True(t, ok, "file-transfer exhaustion preserves the peer")
	require.Nil(t, p.ExpectedAck)
}
