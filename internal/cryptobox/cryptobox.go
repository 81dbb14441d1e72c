// Package cryptobox implements the symmetric cipher primitive the wire
// format treats as a black box (spec §1, §6): AES-256 in CBC mode with
// PKCS#7 padding and a fresh random IV prepended to the ciphertext, the
// whole thing base64-encoded. There is no suitable third-party library in
// the retrieval pack for raw CBC + manual padding (the pack's
// crypto-heaviest repo, the teacher, builds its own statefile/ratchet
// encryption on golang.org/x/crypto's nacl/secretbox, an authenticated
// construction incompatible with this wire format's bit-exact CBC
// requirement), so this is one of the few places the module reaches for
// the standard library directly; see DESIGN.md.
package cryptobox

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"errors"
	"fmt"
)

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

// Key is the pre-shared symmetric key. Key rotation and distribution are
// out of scope for the core (spec §6).
type Key [KeySize]byte

// ErrDecrypt is returned when a ciphertext cannot be decoded, is too short
// to contain an IV, or fails to unpad.
var ErrDecrypt = errors.New("cryptobox: decryption failed")

// Encrypt pads plaintext to the cipher block size, encrypts it under
// AES-256-CBC with a fresh random IV, prepends the IV, and base64-encodes
// the result. Empty plaintext yields an empty string, matching the wire
// format's "empty plaintext yields empty DATA" rule.
func Encrypt(key Key, plaintext []byte) (string, error) {
	if len(plaintext) == 0 {
		return "", nil
	}

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return "", fmt.Errorf("cryptobox: new cipher: %w", err)
	}

	padded := pkcs7Pad(plaintext, block.BlockSize())
	iv, err := randomIV(block.BlockSize())
	if err != nil {
		return "", fmt.Errorf("cryptobox: iv: %w", err)
	}

	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	combined := append(iv, ciphertext...)
	return base64.StdEncoding.EncodeToString(combined), nil
}

// Decrypt reverses Encrypt. An empty input yields empty plaintext.
func Decrypt(key Key, encoded string) ([]byte, error) {
	if encoded == "" {
		return []byte{}, nil
	}

	combined, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %v", ErrDecrypt, err)
	}

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("cryptobox: new cipher: %w", err)
	}

	blockSize := block.BlockSize()
	if len(combined) < blockSize || (len(combined)-blockSize)%blockSize != 0 {
		return nil, fmt.Errorf("%w: bad ciphertext length", ErrDecrypt)
	}

	iv := combined[:blockSize]
	ciphertext := combined[blockSize:]
	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ciphertext)

	plaintext, err := pkcs7Unpad(padded, blockSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return plaintext, nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padding := bytes.Repeat([]byte{byte(padLen)}, padLen)
	return append(append([]byte{}, data...), padding...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	n := len(data)
	if n == 0 || n%blockSize != 0 {
		return nil, errors.New("invalid padded length")
	}
	padLen := int(data[n-1])
	if padLen == 0 || padLen > blockSize || padLen > n {
		return nil, errors.New("invalid padding")
	}
	for _, b := range data[n-padLen:] {
		if int(b) != padLen {
			return nil, errors.New("invalid padding bytes")
		}
	}
	return data[:n-padLen], nil
}
