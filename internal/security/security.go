// Package security signs and verifies packet bytes with a shared key.
//
// It provides integrity and origin checks only. Payloads stay in the clear.
package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"hash"
	"sync"
)

// DefaultKey is used when no shared key is configured. Signatures are still
// computed, but any peer using the default can forge them.
var DefaultKey = []byte("remotesync.default.key")

// SignatureSize is the length in bytes of a signature produced by Signer.
const SignatureSize = sha256.Size

// Signer computes and checks HMAC-SHA256 signatures. It is safe for
// concurrent use.
type Signer struct {
	key    []byte
	pool   sync.Pool
	isDflt bool
}

// NewSigner builds a signer for key. An empty key selects DefaultKey.
func NewSigner(key []byte) *Signer {
	s := &Signer{}
	if len(key) == 0 {
		s.key = append([]byte(nil), DefaultKey...)
		s.isDflt = true
	} else {
		s.key = append([]byte(nil), key...)
	}
	s.pool.New = func() any {
		return hmac.New(sha256.New, s.key)
	}
	return s
}

// UsesDefaultKey reports whether the signer fell back to DefaultKey.
func (s *Signer) UsesDefaultKey() bool {
	return s.isDflt
}

// Sign returns the signature over data.
func (s *Signer) Sign(data []byte) []byte {
	mac := s.pool.Get().(hash.Hash)
	defer s.pool.Put(mac)
	mac.Reset()
	mac.Write(data)
	return mac.Sum(nil)
}

// Verify reports whether signature matches data. Malformed or truncated
// input yields false.
func (s *Signer) Verify(data, signature []byte) bool {
	if len(signature) != SignatureSize {
		return false
	}
	return hmac.Equal(s.Sign(data), signature)
}
