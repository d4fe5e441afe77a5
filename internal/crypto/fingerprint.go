// Package crypto implements server-side login fingerprinting.
package crypto

import (
	"encoding/hex"
	"errors"

	"golang.org/x/crypto/blake2b"
)

// MinKeyLen is the shortest fingerprint key accepted.
const MinKeyLen = 16

var ErrKeyLength = errors.New("fingerprint key must be 16 to 64 bytes")

// Fingerprinter derives stable login subjects with keyed BLAKE2b-256, so the
// raw provider credential is never stored.
type Fingerprinter struct {
	key []byte
}

// NewFingerprinter validates key and returns a Fingerprinter.
func NewFingerprinter(key []byte) (*Fingerprinter, error) {
	if len(key) < MinKeyLen || len(key) > blake2b.Size {
		return nil, ErrKeyLength
	}
	return &Fingerprinter{key: append([]byte(nil), key...)}, nil
}

// Subject returns the hex fingerprint of credential for provider.
func (f *Fingerprinter) Subject(provider, credential string) string {
	h, _ := blake2b.New256(f.key)
	h.Write([]byte(provider))
	h.Write([]byte{0})
	h.Write([]byte(credential))
	return hex.EncodeToString(h.Sum(nil))
}

