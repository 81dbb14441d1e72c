package codec

// MsgType is the frame's TYPE field (spec §4.1). Numeric values are wire
// values and must be preserved bit-exactly across peers.
type MsgType uint8

const (
	MsgTypeHandshakeReq MsgType = 1
	MsgTypeHandshakeAck MsgType = 2
	MsgTypeMsg          MsgType = 3
	MsgTypeMsgAck       MsgType = 4
	MsgTypeMsgRetry     MsgType = 5 // reserved; currently unused by receiver
	MsgTypeRename       MsgType = 6
	MsgTypeRenameAck    MsgType = 7
	MsgTypeFileInit     MsgType = 8
	MsgTypeFileChunk    MsgType = 9
	MsgTypeFileEnd      MsgType = 10
	MsgTypeFileAck      MsgType = 11
	MsgTypeHeartbeat    MsgType = 12
	MsgTypeTerminate    MsgType = 13
)

func (t MsgType) String() string {
	switch t {
	case MsgTypeHandshakeReq:
		return "HANDSHAKE_REQ"
	case MsgTypeHandshakeAck:
		return "HANDSHAKE_ACK"
	case MsgTypeMsg:
		return "MSG"
	case MsgTypeMsgAck:
		return "MSG_ACK"
	case MsgTypeMsgRetry:
		return "MSG_RETRY"
	case MsgTypeRename:
		return "RENAME"
	case MsgTypeRenameAck:
		return "RENAME_ACK"
	case MsgTypeFileInit:
		return "FILE_INIT"
	case MsgTypeFileChunk:
		return "FILE_CHUNK"
	case MsgTypeFileEnd:
		return "FILE_END"
	case MsgTypeFileAck:
		return "FILE_ACK"
	case MsgTypeHeartbeat:
		return "HEARTBEAT"
	case MsgTypeTerminate:
		return "TERMINATE"
	default:
		return "UNKNOWN"
	}
}

// DuplicateChecked reports whether frames of this type are subject to the
// per-frame duplicate suppression of spec §4.3 step 1.
func (t MsgType) DuplicateChecked() bool {
	switch t {
	case MsgTypeHandshakeReq, MsgTypeHandshakeAck, MsgTypeMsg,
		MsgTypeFileInit, MsgTypeFileChunk, MsgTypeFileEnd:
		return true
	default:
		return false
	}
}
