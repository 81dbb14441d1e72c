package codec

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mattcspeights/ghostframes/internal/cryptobox"
)

func testKey() cryptobox.Key {
	var k cryptobox.Key
	copy(k[:], []byte("0123456789abcdef0123456789abcdef"))
	return k
}

func TestRoundTrip(t *testing.T) {
	key := testKey()
	cases := []string{
		"",
		"hello",
		"multi-byte: héllo wörld 日本語",
		"contains | a pipe | and another",
		"contains\nnewline",
	}

	for _, plaintext := range cases {
		plaintext := plaintext
		t.Run(plaintext, func(t *testing.T) {
			in := Frame{Type: MsgTypeMsg, MsgID: 42, Seq: 7, Data: plaintext}
			raw, err := Encode(in, key)
			require.NoError(t, err)

			out, err := Decode(raw, key)
			require.NoError(t, err)
			require.Equal(t, in.Type, out.Type)
			require.Equal(t, in.MsgID, out.MsgID)
			require.Equal(t, in.Seq, out.Seq)
			require.Equal(t, plaintext, out.Data)
		})
	}
}

var formatPattern = regexp.MustCompile(`^GF\|\d{2}\|\d{4}\|\d{4}\|`)

func TestFormatInvariant(t *testing.T) {
	key := testKey()
	raw, err := Encode(Frame{Type: MsgTypeFileChunk, MsgID: 3, Seq: 9, Data: "abc|def"}, key)
	require.NoError(t, err)
	require.Regexp(t, formatPattern, string(raw))
}

func TestDecodeMalformed(t *testing.T) {
	key := testKey()

	_, err := Decode([]byte("not-a-ghost-frame"), key)
	require.ErrorIs(t, err, ErrMalformed)

	_, err = Decode([]byte("GF|99"), key)
	require.ErrorIs(t, err, ErrMalformed)

	_, err = Decode([]byte("GF|xx|0001|0001|"), key)
	require.ErrorIs(t, err, ErrMalformed)

	_, err = Decode([]byte("GF|03|0001|0001|not-valid-base64!!"), key)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeWrongKeyFails(t *testing.T) {
	key := testKey()
	var other cryptobox.Key
	copy(other[:], []byte("zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz"))

	raw, err := Encode(Frame{Type: MsgTypeMsg, MsgID: 1, Seq: 1, Data: "secret"}, key)
	require.NoError(t, err)

	_, err = Decode(raw, other)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestEmptyDataNotEncrypted(t *testing.T) {
	key := testKey()
	raw, err := Encode(Frame{Type: MsgTypeHeartbeat, MsgID: 1, Seq: 0, Data: ""}, key)
	require.NoError(t, err)
	require.Equal(t, "GF|12|0001|0000|", string(raw))
}
