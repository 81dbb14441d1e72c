// Package reliability implements per-peer retransmission with exponential
// backoff (spec §4.4): a single timer loop gated by "does any peer have an
// outstanding expected-ack", grounded on client2/arq.go's ARQ type and its
// embedded TimerQueue.
//
// Like the teacher ARQ's resend path, this engine retransmits the original
// frame on every attempt deadline rather than only advancing timers.
package reliability

import (
	"net"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/mattcspeights/ghostframes/internal/codec"
	"github.com/mattcspeights/ghostframes/internal/peertable"
	"github.com/mattcspeights/ghostframes/internal/timerqueue"
)

// MaxAttempts is the number of backoff attempts before a pending
// acknowledgement is declared failed (spec §3 Constants).
const MaxAttempts = 5

// RegularBase and FileBase are the initial per-kind backoff durations
// (spec §3 Constants, §4.4).
const (
	RegularBase = 50 * time.Millisecond
	FileBase    = 500 * time.Millisecond
)

// FrameSender is the narrow capability the engine needs to retransmit a
// frame, mirroring the teacher's SphinxComposerSender seam (client2/arq.go)
// so tests can substitute a recording fake.
type FrameSender interface {
	SendFrame(dst net.HardwareAddr, f codec.Frame) error
}

// ExhaustionHandler is invoked when a peer's expected-ack backoff runs out
// of attempts, after the engine has already applied the failure: for a
// regular message it has removed the peer, for a file transfer it has only
// cleared the expected-ack slot and the peer record is preserved. kind
// tells the handler which of the two happened.
type ExhaustionHandler func(peerID string, kind peertable.AckKind)

// key identifies one outstanding retransmission timer.
type key struct {
	PeerID string
	MsgID  uint32
}

type pendingSend struct {
	dst   net.HardwareAddr
	frame codec.Frame
	kind  peertable.AckKind
}

// Engine drives retransmission timers for one peer table (spec §4.4). It
// embeds no worker directly; its background loop lives inside the
// internal timerqueue.TimerQueue it owns. A second, detached goroutine
// bridges the peer table's condition variable (spec §9's "ack-waiting
// signal") into that queue's wake channel, so installing or clearing an
// expected-ack nudges retransmission scheduling immediately rather than
// waiting for the queue's next poll tick.
type Engine struct {
	table     *peertable.Table
	sender    FrameSender
	onExhaust ExhaustionHandler
	log       *log.Logger

	tq *timerqueue.TimerQueue

	// mu protects pending, which is engine-local retransmission
	// bookkeeping distinct from the peer table's own lock.
	mu      sync.Mutex
	pending map[key]*pendingSend

	stopWatch chan struct{}
	stopOnce  sync.Once
}

func New(table *peertable.Table, sender FrameSender, onExhaust ExhaustionHandler, mylog *log.Logger) *Engine {
	e := &Engine{
		table:     table,
		sender:    sender,
		onExhaust: onExhaust,
		log:       mylog.WithPrefix("_RELIABILITY_"),
		pending:   make(map[key]*pendingSend),
		stopWatch: make(chan struct{}),
	}
	e.tq = timerqueue.NewTimerQueue(e.onTimer)
	return e
}

// Start begins the retransmission timer loop. Call once before Install.
func (e *Engine) Start() {
	e.log.Info("start")
	e.tq.Start()
	go e.watchAckSignal()
}

// Stop halts the retransmission timer loop.
func (e *Engine) Stop() {
	e.log.Info("stop")
	e.stopOnce.Do(func() { close(e.stopWatch) })
	// sync.Cond.Wait cannot be select-interrupted; broadcast once so
	// watchAckSignal, if currently blocked in Wait, observes stopWatch
	// closed and exits. watchAckSignal is intentionally not tracked by a
	// WaitGroup: a broadcast racing with a not-yet-waiting goroutine is a
	// known, harmless lost wakeup (the goroutine simply never wakes again),
	// so Stop must not block on its return.
	e.table.Cond().Broadcast()
	e.tq.Halt()
	e.tq.Wait()
}

// watchAckSignal loops on the peer table's condition variable, waking the
// timer queue (spec §9: "the timer 'event' variable becomes a condition
// variable bound to the state mutex") whenever any peer's expected-ack
// slot is installed or cleared.
func (e *Engine) watchAckSignal() {
	mu := e.table.Mutex()
	cond := e.table.Cond()
	for {
		select {
		case <-e.stopWatch:
			return
		default:
		}

		mu.Lock()
		cond.Wait()
		mu.Unlock()

		select {
		case <-e.stopWatch:
			return
		default:
			e.tq.Wake()
		}
	}
}

// Install arms an expected-ack for frame sent to dst under peerID, and
// schedules the first retransmission deadline (spec §4.4, §4.6 step 5).
// Messenger.SendMessage calls it before transmitting the MSG frame the
// first time; Messenger.SendFile calls it after the FILE_END frame has been
// sent.
func (e *Engine) Install(peerID string, dst net.HardwareAddr, kind peertable.AckKind, frame codec.Frame) error {
	base := backoffBase(kind)
	deadline := time.Now().Add(base)

	if err := e.table.InstallExpectedAck(peerID, peertable.ExpectedAck{
		MsgID:    frame.MsgID,
		Kind:     kind,
		Attempt:  0,
		Deadline: deadline,
	}); err != nil {
		return err
	}

	k := key{PeerID: peerID, MsgID: frame.MsgID}
	e.mu.Lock()
	e.pending[k] = &pendingSend{dst: dst, frame: frame, kind: kind}
	e.mu.Unlock()

	e.tq.Push(uint64(deadline.UnixNano()), k)
	return nil
}

// Clear cancels the pending retransmission for peerID/msgID, called when a
// matching ack arrives (spec §4.3 "MSG_ACK"/"FILE_ACK"). Reports whether
// anything was cleared.
func (e *Engine) Clear(peerID string, msgID uint32) bool {
	cleared := e.table.ClearExpectedAck(peerID, msgID)
	k := key{PeerID: peerID, MsgID: msgID}
	e.mu.Lock()
	delete(e.pending, k)
	e.mu.Unlock()
	e.tq.Remove(k)
	return cleared
}

func (e *Engine) onTimer(raw interface{}) {
	k, ok := raw.(key)
	if !ok {
		e.log.Warn("reliability timer fired with unexpected value type")
		return
	}

	e.mu.Lock()
	ps, havePending := e.pending[k]
	e.mu.Unlock()
	if !havePending {
		// Already acked and cleared; nothing to do.
		return
	}

	peer, ok := e.table.Get(k.PeerID)
	if !ok {
		// Peer vanished concurrently (e.g. TERMINATE); drop bookkeeping.
		e.mu.Lock()
		delete(e.pending, k)
		e.mu.Unlock()
		return
	}
	if peer.ExpectedAck == nil || peer.ExpectedAck.MsgID != k.MsgID {
		// Cleared between the timer firing and this callback running.
		e.mu.Lock()
		delete(e.pending, k)
		e.mu.Unlock()
		return
	}

	newAttempt := peer.ExpectedAck.Attempt + 1
	if newAttempt >= MaxAttempts {
		e.log.Warnf("peer %s exhausted %d attempts for msg %d", k.PeerID, MaxAttempts, k.MsgID)
		e.mu.Lock()
		delete(e.pending, k)
		e.mu.Unlock()

		switch ps.kind {
		case peertable.AckKindFile:
			e.table.ClearExpectedAckSlot(k.PeerID)
		default:
			e.table.Remove(k.PeerID)
		}
		if e.onExhaust != nil {
			e.onExhaust(k.PeerID, ps.kind)
		}
		return
	}

	if err := e.sender.SendFrame(ps.dst, ps.frame); err != nil {
		e.log.Warnf("retransmit to %s failed: %v", k.PeerID, err)
	}

	base := backoffBase(ps.kind)
	deadline := time.Now().Add(base << uint(newAttempt))
	e.table.AdvanceAck(k.PeerID, k.MsgID, newAttempt, deadline)
	e.tq.Push(uint64(deadline.UnixNano()), k)
}

func backoffBase(kind peertable.AckKind) time.Duration {
	if kind == peertable.AckKindFile {
		return FileBase
	}
	return RegularBase
}
