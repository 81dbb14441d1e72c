// Package codec implements the Ghost Frame on-air payload format (spec
// §4.1): an ASCII record "GF|TYPE|MSG_ID|SEQ|DATA" with DATA optionally
// AES-256-CBC encrypted (via internal/cryptobox) and base64-encoded.
package codec

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mattcspeights/ghostframes/internal/cryptobox"
)

// Prefix discriminates Ghost Frames from unrelated 802.11 traffic.
const Prefix = "GF"

const sep = "|"

// ErrMalformed wraps any codec parse failure: wrong prefix, bad field
// count, bad integer, or a base64/decrypt failure in DATA. Per spec §7 the
// router must never let this escape the dispatch loop; it logs and drops.
var ErrMalformed = errors.New("codec: malformed frame")

// Frame is the decoded application payload of a single Ghost Frame.
type Frame struct {
	Type  MsgType
	MsgID uint32
	Seq   uint32
	Data  string
}

// Encode serializes f into the on-air ASCII record, encrypting Data under
// key unless it is empty (spec §4.1: "Empty plaintext yields empty DATA").
func Encode(f Frame, key cryptobox.Key) ([]byte, error) {
	encrypted, err := cryptobox.Encrypt(key, []byte(f.Data))
	if err != nil {
		return nil, fmt.Errorf("codec: encode: %w", err)
	}
	s := fmt.Sprintf("%s|%02d|%04d|%04d|%s", Prefix, uint8(f.Type), f.MsgID, f.Seq, encrypted)
	return []byte(s), nil
}

// Decode parses and decrypts raw into a Frame. It fails softly: any
// malformed input returns ErrMalformed and the caller should log and drop
// rather than propagate.
func Decode(raw []byte, key cryptobox.Key) (Frame, error) {
	s := string(raw)
	parts := strings.SplitN(s, sep, 5)
	if len(parts) < 4 {
		return Frame{}, fmt.Errorf("%w: field count %d", ErrMalformed, len(parts))
	}
	if parts[0] != Prefix {
		return Frame{}, fmt.Errorf("%w: bad prefix %q", ErrMalformed, parts[0])
	}

	typeVal, err := strconv.ParseUint(parts[1], 10, 8)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: type: %v", ErrMalformed, err)
	}
	msgID, err := strconv.ParseUint(parts[2], 10, 32)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: msg_id: %v", ErrMalformed, err)
	}
	seq, err := strconv.ParseUint(parts[3], 10, 32)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: seq: %v", ErrMalformed, err)
	}

	var encryptedData string
	if len(parts) == 5 {
		encryptedData = parts[4]
	}

	plaintext, err := cryptobox.Decrypt(key, encryptedData)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: data: %v", ErrMalformed, err)
	}

	return Frame{
		Type:  MsgType(typeVal),
		MsgID: uint32(msgID),
		Seq:   uint32(seq),
		Data:  string(plaintext),
	}, nil
}
