// Package protocol defines the wire protocol for lansync's peer-to-peer
// file-synchronization sessions: the length-prefixed frame codec and the
// typed encode/decode for each message kind exchanged during a session.
package protocol

import "fmt"

// Message type tags, sent as the first byte of every frame payload.
const (
	TypeHello         uint8 = 0x01 // Hello, always sent in the clear
	TypeKeyExchange   uint8 = 0x02 // KeyExchange, always sent in the clear
	TypeAuthVerify    uint8 = 0x03 // AuthVerify, encrypted once AwaitingSas
	TypeRequestTree   uint8 = 0x04 // RequestTree, encrypted
	TypeFileTreeChunk uint8 = 0x05 // FileTreeChunk, encrypted
	TypeFileRequest   uint8 = 0x06 // FileRequest, encrypted
	TypeFileChunk     uint8 = 0x07 // FileChunk, encrypted
	TypeFileComplete  uint8 = 0x08 // FileComplete, encrypted
)

// ProtocolVersion is the only version this implementation speaks.
const ProtocolVersion = "1.1"

// Frame size limits. The 4-byte length field counts the type byte plus
// payload, so the minimum valid length is 1.
const (
	LengthFieldSize = 4
	MaxFrameSize    = 10 * 1024 * 1024 // 10 MiB, counts type + payload
	MinFrameLength  = 1
)

// TypeName returns a human-readable name for a message type tag, for logging.
func TypeName(t uint8) string {
	switch t {
	case TypeHello:
		return "Hello"
	case TypeKeyExchange:
		return "KeyExchange"
	case TypeAuthVerify:
		return "AuthVerify"
	case TypeRequestTree:
		return "RequestTree"
	case TypeFileTreeChunk:
		return "FileTreeChunk"
	case TypeFileRequest:
		return "FileRequest"
	case TypeFileChunk:
		return "FileChunk"
	case TypeFileComplete:
		return "FileComplete"
	default:
		return fmt.Sprintf("Unknown(0x%02x)", t)
	}
}

// EncryptedFromCutover reports whether frames of this type carry AEAD
// ciphertext once the session has reached AwaitingSas or later. Only Hello
// and KeyExchange are ever sent in the clear.
func EncryptedFromCutover(t uint8) bool {
	return t >= TypeAuthVerify
}
