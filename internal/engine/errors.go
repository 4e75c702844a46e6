package engine

import "errors"

// Sentinel errors surfaced through Observer.OnError. All are fatal and
// terminate the engine except where noted: DuplicateAuthVerify and stray
// frames after Terminated are tolerated and never reach here.
var (
	ErrCodecOversize         = errors.New("engine: frame exceeds maximum size")
	ErrCodecInvalidLength    = errors.New("engine: invalid frame length")
	ErrAuthenticationFailed  = errors.New("engine: AEAD authentication failed")
	ErrSequenceExhausted     = errors.New("engine: AEAD sequence counter exhausted")
	ErrVersionMismatch       = errors.New("engine: peer protocol version mismatch")
	ErrProtocolViolation     = errors.New("engine: protocol violation")
	ErrSasRejected           = errors.New("engine: local user rejected the SAS")
	ErrPeerRejectedSas       = errors.New("engine: peer rejected the SAS")
	ErrCurveMismatch         = errors.New("engine: peer key is not a valid P-256 point")
	ErrTransportDisconnected = errors.New("engine: transport disconnected")
	ErrEmptyFrame            = errors.New("engine: received empty frame payload")
)
