// Package discovery implements the announcer (spec §4.7): an initial
// broadcast HANDSHAKE_REQ at startup followed by a periodic broadcast
// HEARTBEAT every 5 s, run on its own goroutine via internal/worker.
//
// Grounded on client2/arq.go's Worker-embedding background-loop idiom;
// katzenpost has no direct announcer analogue since its peer discovery
// goes through a directory-authority PKI rather than broadcast liveness.
package discovery

import (
	"net"
	"time"

	"github.com/charmbracelet/log"

	"github.com/mattcspeights/ghostframes/internal/codec"
	"github.com/mattcspeights/ghostframes/internal/worker"
)

// HeartbeatInterval is the steady-state broadcast interval (spec §3
// Constants, §4.7).
const HeartbeatInterval = 5 * time.Second

// FrameSender is the narrow capability the announcer needs to emit
// broadcast frames.
type FrameSender interface {
	SendFrame(dst net.HardwareAddr, f codec.Frame) error
}

// Announcer runs the startup-handshake-then-heartbeat loop.
type Announcer struct {
	worker.Worker

	selfName     string
	broadcast    net.HardwareAddr
	sender       FrameSender
	nextMsgID    func() uint32
	log          *log.Logger
	tickInterval time.Duration
}

// New constructs an Announcer. broadcast is the destination address used
// for both the startup handshake and every heartbeat (ff:ff:ff:ff:ff:ff).
func New(selfName string, broadcast net.HardwareAddr, sender FrameSender, nextMsgID func() uint32, mylog *log.Logger) *Announcer {
	return &Announcer{
		selfName:     selfName,
		broadcast:    broadcast,
		sender:       sender,
		nextMsgID:    nextMsgID,
		log:          mylog.WithPrefix("_ANNOUNCER_"),
		tickInterval: HeartbeatInterval,
	}
}

// Start emits the startup HANDSHAKE_REQ synchronously, then launches the
// heartbeat loop in the background (spec §4.7).
func (a *Announcer) Start() {
	a.emitHandshake()
	a.Go(a.loop)
}

func (a *Announcer) loop() {
	ticker := time.NewTicker(a.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-a.HaltCh():
			a.log.Info("announcer halted")
			return
		case <-ticker.C:
			a.emitHeartbeat()
		}
	}
}

func (a *Announcer) emitHandshake() {
	frame := codec.Frame{Type: codec.MsgTypeHandshakeReq, MsgID: a.nextMsgID(), Seq: 0, Data: "0|" + a.selfName}
	if err := a.sender.SendFrame(a.broadcast, frame); err != nil {
		a.log.Warnf("startup handshake broadcast failed: %v", err)
	}
}

func (a *Announcer) emitHeartbeat() {
	frame := codec.Frame{Type: codec.MsgTypeHeartbeat, MsgID: a.nextMsgID(), Seq: 0, Data: ""}
	if err := a.sender.SendFrame(a.broadcast, frame); err != nil {
		a.log.Warnf("heartbeat broadcast failed: %v", err)
	}
}
