package cryptosession

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrAuthenticationFailed is returned when a received ciphertext fails GCM
// authentication. The session must be torn down; this implementation never
// attempts to resynchronize after a forged or corrupted frame.
var ErrAuthenticationFailed = errors.New("cryptosession: authentication failed")

// ErrSequenceExhausted is returned when a direction's sequence counter would
// wrap past its maximum value. The session must be renegotiated or torn
// down; nonces are never reused.
var ErrSequenceExhausted = errors.New("cryptosession: sequence counter exhausted")

// AeadSession seals or opens frames in one direction using AES-256-GCM. A
// secured session owns two independent AeadSessions, one per direction,
// each with its own monotonic sequence counter.
type AeadSession struct {
	aead   cipher.AEAD
	key    [aeadKeySize]byte
	base   [aeadNonceSize]byte
	seq    uint64
	maxSeq uint64
}

func newAeadSession(key [aeadKeySize]byte, base [aeadNonceSize]byte) (*AeadSession, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("cryptosession: new aes cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cryptosession: new gcm: %w", err)
	}
	return &AeadSession{
		aead:   aead,
		key:    key,
		base:   base,
		maxSeq: math.MaxUint64,
	}, nil
}

// nonceFor XORs the base nonce with the big-endian encoding of seq in its
// last 8 bytes, per the session's nonce derivation scheme.
func (s *AeadSession) nonceFor(seq uint64) [aeadNonceSize]byte {
	var n [aeadNonceSize]byte
	n = s.base
	var seqBytes [8]byte
	binary.BigEndian.PutUint64(seqBytes[:], seq)
	for i := 0; i < 8; i++ {
		n[aeadNonceSize-8+i] ^= seqBytes[i]
	}
	return n
}

// Seal encrypts plaintext, binding msgType as the one-byte additional
// authenticated data, and advances the send sequence counter. It returns
// the ciphertext with the GCM tag appended; the caller is responsible for
// framing it.
func (s *AeadSession) Seal(msgType uint8, plaintext []byte) ([]byte, error) {
	if s.seq >= s.maxSeq {
		return nil, ErrSequenceExhausted
	}
	nonce := s.nonceFor(s.seq)
	aad := []byte{msgType}
	ct := s.aead.Seal(nil, nonce[:], plaintext, aad)
	s.seq++
	return ct, nil
}

// Open decrypts and authenticates ciphertext sealed by the peer's matching
// AeadSession for the given message type, advancing the receive sequence
// counter on success. On authentication failure the sequence counter is
// still advanced and ErrAuthenticationFailed is returned; the caller must
// tear down the session rather than retry.
func (s *AeadSession) Open(msgType uint8, ciphertext []byte) ([]byte, error) {
	if s.seq >= s.maxSeq {
		return nil, ErrSequenceExhausted
	}
	nonce := s.nonceFor(s.seq)
	aad := []byte{msgType}
	pt, err := s.aead.Open(nil, nonce[:], ciphertext, aad)
	s.seq++
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}
	return pt, nil
}

// Sequence returns the next sequence number this session will use, for
// diagnostics and tests.
func (s *AeadSession) Sequence() uint64 {
	return s.seq
}

// Zeroize wipes the session's key and base nonce so they do not linger in
// memory after the session is torn down.
func (s *AeadSession) Zeroize() {
	zero(s.key[:])
	zero(s.base[:])
}
