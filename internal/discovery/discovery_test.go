package discovery

import (
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"

	"github.com/mattcspeights/ghostframes/internal/codec"
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

func (r *recordingSender) snapshot() []codec.Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]codec.Frame(nil), r.frames...)
}

func TestStartupEmitsHandshakeThenHeartbeats(t *testing.T) {
	sender := &recordingSender{}
	broadcast := net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
	n := uint32(0)
	a := New("alice", broadcast, sender, func() uint32 { n++; return n }, log.New(io.Discard))
	a.tickInterval = 30 * time.Millisecond

	a.Start()
	defer func() {
		a.Halt()
		a.Wait()
	}()

	require.Eventually(t, func() bool {
		return len(sender.snapshot()) >= 1
	}, time.Second, 5*time.Millisecond)

	first := sender.snapshot()[0]
	require.Equal(t, codec.MsgTypeHandshakeReq, first.Type)
	require.Equal(t, "0|alice", first.Data)

	require.Eventually(t, func() bool {
		return len(sender.snapshot()) >= 3
	}, time.Second, 5*time.Millisecond)

	frames := sender.snapshot()
	for _, f := range frames[1:] {
		require.Equal(t, codec.MsgTypeHeartbeat, f.Type)
	}
}
