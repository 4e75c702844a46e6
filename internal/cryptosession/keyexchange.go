// Package cryptosession implements the cryptographic handshake and the
// authenticated transport that rides on top of it once a session is
// secured: ECDH key agreement on P-256, HKDF-SHA256 key derivation into
// two directional keys and two directional nonces plus a short
// authentication string, and AES-256-GCM
// sealing with per-direction sequence counters.
package cryptosession

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// ErrCurveMismatch is returned when a peer's public key does not decode as
// a valid point on P-256.
var ErrCurveMismatch = errors.New("cryptosession: peer public key is not a valid P-256 point")

// HKDF info strings. Each derived secret is bound to the protocol version
// and its specific role so that a bug swapping two derivations produces
// garbage rather than a plausible-looking key.
const (
	infoKeyC2S   = "local-p2p v1.1 key c2s"
	infoKeyS2C   = "local-p2p v1.1 key s2c"
	infoNonceC2S = "local-p2p v1.1 nonce c2s"
	infoNonceS2C = "local-p2p v1.1 nonce s2c"
	infoSas      = "local-p2p v1.1 sas"
)

const (
	aeadKeySize   = 32 // AES-256
	aeadNonceSize = 12 // GCM standard nonce size
)

// SessionCrypto holds the local ECDH keypair and, once Derive has run, the
// directional keys and nonces produced for this session.
type SessionCrypto struct {
	private *ecdh.PrivateKey
	public  *ecdh.PublicKey

	localSalt [32]byte

	derived bool

	keyC2S   [aeadKeySize]byte
	keyS2C   [aeadKeySize]byte
	nonceC2S [aeadNonceSize]byte
	nonceS2C [aeadNonceSize]byte
	sas      [sasTokenCount]byte
}

// NewSessionCrypto generates a fresh P-256 ECDH keypair and a random 32-byte
// local salt to contribute to the session's HKDF input.
func NewSessionCrypto() (*SessionCrypto, error) {
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("cryptosession: generate keypair: %w", err)
	}
	sc := &SessionCrypto{private: priv, public: priv.PublicKey()}
	if _, err := io.ReadFull(rand.Reader, sc.localSalt[:]); err != nil {
		return nil, fmt.Errorf("cryptosession: generate salt: %w", err)
	}
	return sc, nil
}

// PublicKeyBytes returns the local public key encoded as SubjectPublicKeyInfo
// DER, as produced by crypto/x509.MarshalPKIXPublicKey. This is sent to the
// peer verbatim in the KeyExchange frame.
func (sc *SessionCrypto) PublicKeyBytes() []byte {
	der, err := x509.MarshalPKIXPublicKey(sc.public)
	if err != nil {
		// sc.public is always a valid *ecdh.PublicKey on P-256; x509 supports
		// marshaling this type unconditionally.
		panic(fmt.Sprintf("cryptosession: marshal SPKI public key: %v", err))
	}
	return der
}

// LocalSalt returns the local 32-byte salt contributed to HKDF's salt
// parameter.
func (sc *SessionCrypto) LocalSalt() [32]byte {
	return sc.localSalt
}

// Derive performs the ECDH agreement against the peer's public key and
// HKDF-SHA256 derivation of the session's directional keys, nonces, and SAS.
//
// The combined HKDF salt is client_salt || server_salt regardless of which
// side calls Derive, so both peers derive identical secrets. isServer
// selects which of the two derived (key, nonce) pairs this side uses to
// send versus receive: the client sends with the c2s pair and receives with
// s2c; the server does the opposite.
func (sc *SessionCrypto) Derive(peerPublicKey []byte, peerSalt [32]byte, isServer bool) error {
	peerPub, err := parseSpkiP256PublicKey(peerPublicKey)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCurveMismatch, err)
	}

	shared, err := sc.private.ECDH(peerPub)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCurveMismatch, err)
	}
	defer zero(shared)

	var combinedSalt []byte
	if isServer {
		combinedSalt = append(append([]byte(nil), peerSalt[:]...), sc.localSalt[:]...)
	} else {
		combinedSalt = append(append([]byte(nil), sc.localSalt[:]...), peerSalt[:]...)
	}
	defer zero(combinedSalt)

	clientKey, err := deriveBytes(shared, combinedSalt, infoKeyC2S, aeadKeySize)
	if err != nil {
		return err
	}
	serverKey, err := deriveBytes(shared, combinedSalt, infoKeyS2C, aeadKeySize)
	if err != nil {
		return err
	}
	clientNonce, err := deriveBytes(shared, combinedSalt, infoNonceC2S, aeadNonceSize)
	if err != nil {
		return err
	}
	serverNonce, err := deriveBytes(shared, combinedSalt, infoNonceS2C, aeadNonceSize)
	if err != nil {
		return err
	}
	sasBytes, err := deriveBytes(shared, combinedSalt, infoSas, sasTokenCount)
	if err != nil {
		return err
	}
	defer func() {
		zero(clientKey)
		zero(serverKey)
		zero(clientNonce)
		zero(serverNonce)
		zero(sasBytes)
	}()

	copy(sc.keyC2S[:], clientKey)
	copy(sc.keyS2C[:], serverKey)
	copy(sc.nonceC2S[:], clientNonce)
	copy(sc.nonceS2C[:], serverNonce)
	copy(sc.sas[:], sasBytes)
	sc.derived = true
	return nil
}

// SasTokens returns the four human-readable SAS tokens. Derive must have
// run first.
func (sc *SessionCrypto) SasTokens() [sasTokenCount]string {
	return sasToTokens(sc.sas)
}

// SasBytes returns the raw 4-byte SAS value, primarily for tests that need
// to compare two sides' derivations directly.
func (sc *SessionCrypto) SasBytes() [sasTokenCount]byte {
	return sc.sas
}

// AeadSessions builds the send/receive AEAD sessions for this side of the
// connection. isServer must match the value passed to Derive.
func (sc *SessionCrypto) AeadSessions(isServer bool) (send *AeadSession, recv *AeadSession, err error) {
	if !sc.derived {
		return nil, nil, errors.New("cryptosession: AeadSessions called before Derive")
	}
	if isServer {
		send, err = newAeadSession(sc.keyS2C, sc.nonceS2C)
		if err != nil {
			return nil, nil, err
		}
		recv, err = newAeadSession(sc.keyC2S, sc.nonceC2S)
		if err != nil {
			return nil, nil, err
		}
		return send, recv, nil
	}
	send, err = newAeadSession(sc.keyC2S, sc.nonceC2S)
	if err != nil {
		return nil, nil, err
	}
	recv, err = newAeadSession(sc.keyS2C, sc.nonceS2C)
	if err != nil {
		return nil, nil, err
	}
	return send, recv, nil
}

// Zeroize wipes the derived directional keys, nonces, and SAS from memory
// and discards the local ECDH private key. Call this once a session is
// torn down; it is safe to call even if Derive was never reached.
func (sc *SessionCrypto) Zeroize() {
	zero(sc.keyC2S[:])
	zero(sc.keyS2C[:])
	zero(sc.nonceC2S[:])
	zero(sc.nonceS2C[:])
	zero(sc.sas[:])
	sc.private = nil
}

// parseSpkiP256PublicKey decodes a SubjectPublicKeyInfo DER blob and
// verifies it names a P-256 point, mapping any parse or curve mismatch to
// a single error class for the caller. x509.ParsePKIXPublicKey hands back
// NIST-curve keys as *ecdsa.PublicKey, since the EC public key OID doesn't
// distinguish ECDSA from ECDH use; (*ecdsa.PublicKey).ECDH converts it.
func parseSpkiP256PublicKey(der []byte) (*ecdh.PublicKey, error) {
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("parse SPKI public key: %w", err)
	}

	var ecdhPub *ecdh.PublicKey
	switch k := pub.(type) {
	case *ecdsa.PublicKey:
		ecdhPub, err = k.ECDH()
		if err != nil {
			return nil, fmt.Errorf("convert to ECDH key: %w", err)
		}
	case *ecdh.PublicKey:
		ecdhPub = k
	default:
		return nil, fmt.Errorf("unexpected public key type %T", pub)
	}

	if ecdhPub.Curve() != ecdh.P256() {
		return nil, fmt.Errorf("unexpected curve, want P-256")
	}
	return ecdhPub, nil
}

func deriveBytes(secret, salt []byte, info string, n int) ([]byte, error) {
	reader := hkdf.New(sha256.New, secret, salt, []byte(info))
	out := make([]byte, n)
	if _, err := io.ReadFull(reader, out); err != nil {
		return nil, fmt.Errorf("cryptosession: hkdf derive %q: %w", info, err)
	}
	return out, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
