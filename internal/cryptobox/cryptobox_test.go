package cryptobox

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testKey() Key {
	var k Key
	copy(k[:], []byte("0123456789abcdef0123456789abcdef"))
	return k
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := testKey()
	plaintexts := [][]byte{
		[]byte("hello world"),
		[]byte(""),
		make([]byte, 1000),
		[]byte("exactly16bytes!!"),
	}

	for _, pt := range plaintexts {
		encoded, err := Encrypt(key, pt)
		require.NoError(t, err)
		if len(pt) == 0 {
			require.Empty(t, encoded)
		}

		decoded, err := Decrypt(key, encoded)
		require.NoError(t, err)
		require.Equal(t, pt, decoded)
	}
}

func TestEncryptIsRandomized(t *testing.T) {
	key := testKey()
	a, err := Encrypt(key, []byte("same plaintext"))
	require.NoError(t, err)
	b, err := Encrypt(key, []byte("same plaintext"))
	require.NoError(t, err)
	require.NotEqual(t, a, b, "fresh IV per frame should make ciphertexts differ")
}

func TestDecryptRejectsGarbage(t *testing.T) {
	key := testKey()
	_, err := Decrypt(key, "not base64!!")
	require.ErrorIs(t, err, ErrDecrypt)
}
