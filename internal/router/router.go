// Package router implements the protocol dispatch table (spec §4.3):
// deduplicate each parsed frame, then drive peer-table, reliability, and
// file-transfer state transitions according to its type.
//
// Grounded on the dispatch shape of client2/connection.go (a big type
// switch over incoming command/response kinds feeding into ARQ/peer
// state) and stream/stream.go's StreamStart/StreamData/StreamEnd sequence
// handling for the file-transfer branches.
package router

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/mattcspeights/ghostframes/internal/codec"
	"github.com/mattcspeights/ghostframes/internal/cryptobox"
	"github.com/mattcspeights/ghostframes/internal/dedup"
	"github.com/mattcspeights/ghostframes/internal/filetransfer"
	"github.com/mattcspeights/ghostframes/internal/peertable"
	"github.com/mattcspeights/ghostframes/internal/reliability"
)

// Broadcast is the link-layer broadcast address.
var Broadcast = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// FrameSender is the narrow capability the router needs to emit replies —
// encode-and-transmit is handled by the caller (internal/messenger), the
// router only decides what and where to send.
type FrameSender interface {
	SendFrame(dst net.HardwareAddr, f codec.Frame) error
}

// MessageListener receives delivered MSG bodies (spec §6 "bridge
// interface", register_message_listener).
type MessageListener func(senderPeerID, body string)

// Router dispatches decoded, deduplicated frames to the rest of the
// messenger's state (spec §4.3).
type Router struct {
	selfName string
	key      cryptobox.Key

	table     *peertable.Table
	dedupSet  *dedup.Set
	transfers *filetransfer.ReceiveTable
	reliab    *reliability.Engine
	sender    FrameSender
	nextMsgID func() uint32
	log       *log.Logger

	mu        sync.Mutex
	listeners []MessageListener

	onPeerLeft func(peerID string)
}

// Config bundles Router's collaborators.
type Config struct {
	SelfName   string
	Key        cryptobox.Key
	Table      *peertable.Table
	Dedup      *dedup.Set
	Transfers  *filetransfer.ReceiveTable
	Reliab     *reliability.Engine
	Sender     FrameSender
	NextMsgID  func() uint32
	OnPeerLeft func(peerID string) // called on TERMINATE reception (spec §4.3, §8 scenario 6)
	Log        *log.Logger
}

// New constructs a Router from cfg.
func New(cfg Config) *Router {
	return &Router{
		selfName:   cfg.SelfName,
		key:        cfg.Key,
		table:      cfg.Table,
		dedupSet:   cfg.Dedup,
		transfers:  cfg.Transfers,
		reliab:     cfg.Reliab,
		sender:     cfg.Sender,
		nextMsgID:  cfg.NextMsgID,
		onPeerLeft: cfg.OnPeerLeft,
		log:        cfg.Log.WithPrefix("_ROUTER_"),
	}
}

// RegisterMessageListener adds cb to the set invoked on every delivered
// MSG (spec §6).
func (r *Router) RegisterMessageListener(cb MessageListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, cb)
}

// RemoveMessageListener removes every registered listener whose function
// value formats with %p to the same code pointer as cb (the same approach
// internal/messenger uses). Func values created from the same function
// literal or the same method share a code pointer, so they all match.
func (r *Router) RemoveMessageListener(cb MessageListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	filtered := r.listeners[:0]
	target := fmt.Sprintf("%p", cb)
	for _, l := range r.listeners {
		if fmt.Sprintf("%p", l) != target {
			filtered = append(filtered, l)
		}
	}
	r.listeners = filtered
}

// HandleReceived decodes and dispatches one frame observed from srcMAC
// (spec §4.3). Malformed frames are logged and dropped; they never
// propagate (spec §7).
func (r *Router) HandleReceived(srcMAC net.HardwareAddr, payload []byte) {
	frame, err := codec.Decode(payload, r.key)
	if err != nil {
		r.log.Debugf("dropping malformed frame from %s: %v", srcMAC, err)
		return
	}

	if frame.Type.DuplicateChecked() {
		dupKey := dedup.Key{SrcMAC: srcMAC.String(), MsgID: frame.MsgID, Seq: frame.Seq}
		if r.dedupSet.CheckAndRecord(dupKey, time.Now()) {
			return
		}
	}

	switch frame.Type {
	case codec.MsgTypeHandshakeReq:
		r.handleHandshakeReq(srcMAC, frame)
	case codec.MsgTypeHandshakeAck:
		r.handleHandshakeAck(srcMAC, frame)
	case codec.MsgTypeMsg:
		r.handleMsg(srcMAC, frame)
	case codec.MsgTypeMsgAck:
		r.handleMsgAck(srcMAC, frame)
	case codec.MsgTypeRename:
		r.handleRename(srcMAC, frame)
	case codec.MsgTypeRenameAck:
		// no-op (spec §4.3 "RENAME_ACK")
	case codec.MsgTypeHeartbeat:
		r.handleHeartbeat(srcMAC)
	case codec.MsgTypeTerminate:
		r.handleTerminate(srcMAC)
	case codec.MsgTypeFileInit:
		r.handleFileInit(srcMAC, frame)
	case codec.MsgTypeFileChunk:
		r.handleFileChunk(srcMAC, frame)
	case codec.MsgTypeFileEnd:
		r.handleFileEnd(srcMAC, frame)
	case codec.MsgTypeFileAck:
		r.handleFileAck(srcMAC, frame)
	default:
		r.log.Debugf("no handler for frame type %s from %s", frame.Type, srcMAC)
	}
}

func (r *Router) handleHandshakeReq(srcMAC net.HardwareAddr, frame codec.Frame) {
	_, name, ok := splitHandshakeData(frame.Data)
	if !ok || name == r.selfName {
		return
	}

	_, existed := r.table.Get(name)
	r.table.Upsert(name, name, srcMAC, time.Now())

	r.send(srcMAC, codec.MsgTypeHandshakeAck, handshakeData(r.selfName))

	if !existed {
		// Mutual discovery within one round trip even if our own
		// broadcast was missed (spec §4.3 "HANDSHAKE_REQ").
		r.send(srcMAC, codec.MsgTypeHandshakeReq, handshakeData(r.selfName))
	}
}

func (r *Router) handleHandshakeAck(srcMAC net.HardwareAddr, frame codec.Frame) {
	_, name, ok := splitHandshakeData(frame.Data)
	if !ok || name == r.selfName {
		return
	}
	r.table.Upsert(name, name, srcMAC, time.Now())
}

func (r *Router) handleMsg(srcMAC net.HardwareAddr, frame codec.Frame) {
	r.send(srcMAC, codec.MsgTypeMsgAck, fmt.Sprintf("%d|%d", frame.MsgID, frame.Seq))

	peerID, ok := r.table.LookupByMAC(srcMAC)
	if !ok {
		peerID = srcMAC.String()
	}

	r.mu.Lock()
	listeners := append([]MessageListener(nil), r.listeners...)
	r.mu.Unlock()
	for _, cb := range listeners {
		cb(peerID, frame.Data)
	}
}

func (r *Router) handleMsgAck(srcMAC net.HardwareAddr, frame codec.Frame) {
	peerID, ok := r.table.LookupByMAC(srcMAC)
	if !ok {
		r.log.Debugf("MSG_ACK from unknown MAC %s", srcMAC)
		return
	}
	ackedMsgID, _, err := splitAckData(frame.Data)
	if err != nil {
		r.log.Debugf("malformed MSG_ACK data %q: %v", frame.Data, err)
		return
	}
	if !r.reliab.Clear(peerID, ackedMsgID) {
		r.log.Debugf("MSG_ACK for %d does not match pending ack on %s", ackedMsgID, peerID)
	}
}

func (r *Router) handleRename(srcMAC net.HardwareAddr, frame codec.Frame) {
	oldID, ok := r.table.LookupByMAC(srcMAC)
	if !ok {
		return
	}
	newName := frame.Data
	r.table.Rekey(oldID, newName)
	r.send(srcMAC, codec.MsgTypeRenameAck, "")
}

func (r *Router) handleHeartbeat(srcMAC net.HardwareAddr) {
	if peerID, ok := r.table.LookupByMAC(srcMAC); ok {
		r.table.Upsert(peerID, "", srcMAC, time.Now())
	}
}

func (r *Router) handleTerminate(srcMAC net.HardwareAddr) {
	peerID, ok := r.table.LookupByMAC(srcMAC)
	if !ok {
		return
	}
	r.table.Remove(peerID)
	if r.onPeerLeft != nil {
		r.onPeerLeft(peerID)
	}
}

func (r *Router) handleFileInit(srcMAC net.HardwareAddr, frame codec.Frame) {
	filename, size, ok := splitFileInitData(frame.Data)
	if !ok {
		r.log.Debugf("malformed FILE_INIT data %q", frame.Data)
		return
	}
	key := filetransfer.TransferKey{SrcMAC: srcMAC.String(), MsgID: frame.MsgID}
	r.transfers.Init(key, filename, size)
}

func (r *Router) handleFileChunk(srcMAC net.HardwareAddr, frame codec.Frame) {
	chunk, err := filetransfer.DecodeChunk(frame.Data)
	if err != nil {
		r.log.Debugf("malformed FILE_CHUNK data: %v", err)
		return
	}
	key := filetransfer.TransferKey{SrcMAC: srcMAC.String(), MsgID: frame.MsgID}
	r.transfers.AddChunk(key, frame.Seq, chunk)
}

func (r *Router) handleFileEnd(srcMAC net.HardwareAddr, frame codec.Frame) {
	key := filetransfer.TransferKey{SrcMAC: srcMAC.String(), MsgID: frame.MsgID}
	seqs, ok := r.transfers.AddEnd(key, frame.Seq)
	if !ok {
		r.log.Debugf("FILE_END for unknown transfer %+v", key)
		return
	}

	r.send(srcMAC, codec.MsgTypeFileAck, fmt.Sprintf("%d|%s", frame.MsgID, joinSeqs(seqs)))

	result, err := r.transfers.Reassemble(key)
	if err != nil {
		r.log.Warnf("reassembly failed for %+v: %v", key, err)
		return
	}
	if result.SizeMismatch {
		r.log.Warnf("size mismatch reassembling %s: got %d bytes", result.Filename, result.Bytes)
	}
	r.log.Infof("received file %s (%d bytes) -> %s", result.Filename, result.Bytes, result.SavedPath)
}

func (r *Router) handleFileAck(srcMAC net.HardwareAddr, frame codec.Frame) {
	peerID, ok := r.table.LookupByMAC(srcMAC)
	if !ok {
		return
	}
	ackedMsgID, err := splitFileAckData(frame.Data)
	if err != nil {
		r.log.Debugf("malformed FILE_ACK data %q: %v", frame.Data, err)
		return
	}
	r.reliab.Clear(peerID, ackedMsgID)
}

// send emits a control frame of type typ with the given plaintext data,
// consuming one message id (spec §3 "every emitted frame ... consumes an
// id").
func (r *Router) send(dst net.HardwareAddr, typ codec.MsgType, data string) {
	frame := codec.Frame{Type: typ, MsgID: r.nextMsgID(), Seq: 0, Data: data}
	if err := r.sender.SendFrame(dst, frame); err != nil {
		r.log.Warnf("send %s to %s failed: %v", typ, dst, err)
	}
}

func handshakeData(name string) string {
	return "0|" + name
}

func splitHandshakeData(data string) (port string, name string, ok bool) {
	parts := strings.SplitN(data, "|", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func splitAckData(data string) (msgID uint32, seq uint32, err error) {
	parts := strings.SplitN(data, "|", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected 2 fields, got %d", len(parts))
	}
	m, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return 0, 0, err
	}
	s, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return 0, 0, err
	}
	return uint32(m), uint32(s), nil
}

func splitFileInitData(data string) (filename string, size int, ok bool) {
	parts := strings.SplitN(data, "|", 2)
	if len(parts) != 2 {
		return "", 0, false
	}
	n, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", 0, false
	}
	return parts[0], n, true
}

// splitFileAckData parses FILE_ACK's "msg_id|comma-separated-seq-list" data,
// returning only msg_id: the seq list is informational and has no fixed
// field count, unlike MSG_ACK's "msg_id|seq" pair handled by splitAckData.
func splitFileAckData(data string) (msgID uint32, err error) {
	parts := strings.SplitN(data, "|", 2)
	if len(parts) < 1 || parts[0] == "" {
		return 0, fmt.Errorf("expected a msg_id field")
	}
	m, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(m), nil
}

func joinSeqs(seqs []uint32) string {
	parts := make([]string, len(seqs))
	for i, s := range seqs {
		parts[i] = strconv.FormatUint(uint64(s), 10)
	}
	return strings.Join(parts, ",")
}
