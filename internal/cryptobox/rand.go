package cryptobox

import "crypto/rand"

// randomIV draws n bytes from the system CSPRNG. The teacher sources every
// IV/SURB-ID/nonce draw in client2/arq.go through a single wrapper,
// core/crypto/rand.Reader, so that the randomness source is swappable in
// one place; this mirrors that by routing every IV draw in this package
// through this one function rather than calling crypto/rand.Read inline
// at each call site.
func randomIV(n int) ([]byte, error) {
	iv := make([]byte, n)
	if _, err := rand.Read(iv); err != nil {
		return nil, err
	}
	return iv, nil
}
