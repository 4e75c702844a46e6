package protocol

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidPayload is returned when a typed message payload is malformed.
var ErrInvalidPayload = errors.New("protocol: invalid message payload")

// Hello is the payload for TypeHello.
type Hello struct {
	Version    string `json:"version"`
	DeviceName string `json:"device_name"`
}

// Encode serializes a Hello to JSON.
func (h *Hello) Encode() ([]byte, error) {
	return json.Marshal(h)
}

// DecodeHello parses a Hello payload.
func DecodeHello(payload []byte) (*Hello, error) {
	var h Hello
	if err := json.Unmarshal(payload, &h); err != nil {
		return nil, fmt.Errorf("%w: hello: %v", ErrInvalidPayload, err)
	}
	return &h, nil
}

// KeyExchange is the payload for TypeKeyExchange: a SPKI-DER ECDH public key
// and a 32-byte salt.
type KeyExchange struct {
	PublicKey []byte
	Salt      [32]byte
}

// Encode serializes a KeyExchange as [4B length][pubkey][32B salt].
func (k *KeyExchange) Encode() []byte {
	out := make([]byte, 4+len(k.PublicKey)+32)
	binary.BigEndian.PutUint32(out[0:4], uint32(len(k.PublicKey)))
	copy(out[4:4+len(k.PublicKey)], k.PublicKey)
	copy(out[4+len(k.PublicKey):], k.Salt[:])
	return out
}

// DecodeKeyExchange parses a KeyExchange payload.
func DecodeKeyExchange(payload []byte) (*KeyExchange, error) {
	if len(payload) < 4 {
		return nil, fmt.Errorf("%w: key exchange too short", ErrInvalidPayload)
	}
	pubLen := int(binary.BigEndian.Uint32(payload[0:4]))
	if pubLen < 0 || 4+pubLen+32 != len(payload) {
		return nil, fmt.Errorf("%w: key exchange length mismatch", ErrInvalidPayload)
	}
	k := &KeyExchange{
		PublicKey: append([]byte(nil), payload[4:4+pubLen]...),
	}
	copy(k.Salt[:], payload[4+pubLen:])
	return k, nil
}

// AuthVerify is the payload for TypeAuthVerify: a single accept/reject byte.
type AuthVerify struct {
	Accepted bool
}

// Encode serializes an AuthVerify to its single byte.
func (a *AuthVerify) Encode() []byte {
	if a.Accepted {
		return []byte{1}
	}
	return []byte{0}
}

// DecodeAuthVerify parses an AuthVerify payload.
func DecodeAuthVerify(payload []byte) (*AuthVerify, error) {
	if len(payload) != 1 {
		return nil, fmt.Errorf("%w: auth verify must be one byte", ErrInvalidPayload)
	}
	return &AuthVerify{Accepted: payload[0] == 1}, nil
}

// FileEntry is a single manifest entry exchanged in a FileTreeChunk.
type FileEntry struct {
	RelativePath   string  `json:"relative_path"`
	Size           uint64  `json:"size"`
	LastWriteTicks int64   `json:"last_write_ticks"`
	Hash           *string `json:"hash,omitempty"`
}

// FileTree is the payload for TypeFileTreeChunk: a JSON array of FileEntry.
type FileTree struct {
	Files []FileEntry
}

// Encode serializes a FileTree to a JSON array.
func (t *FileTree) Encode() ([]byte, error) {
	if t.Files == nil {
		return json.Marshal([]FileEntry{})
	}
	return json.Marshal(t.Files)
}

// DecodeFileTree parses a FileTreeChunk payload.
func DecodeFileTree(payload []byte) (*FileTree, error) {
	var files []FileEntry
	if err := json.Unmarshal(payload, &files); err != nil {
		return nil, fmt.Errorf("%w: file tree: %v", ErrInvalidPayload, err)
	}
	return &FileTree{Files: files}, nil
}

// FileRequest is the payload for TypeFileRequest.
type FileRequest struct {
	RelativePath string `json:"relative_path"`
}

// Encode serializes a FileRequest to JSON.
func (r *FileRequest) Encode() ([]byte, error) {
	return json.Marshal(r)
}

// DecodeFileRequest parses a FileRequest payload.
func DecodeFileRequest(payload []byte) (*FileRequest, error) {
	var r FileRequest
	if err := json.Unmarshal(payload, &r); err != nil {
		return nil, fmt.Errorf("%w: file request: %v", ErrInvalidPayload, err)
	}
	return &r, nil
}

// FileChunk is the payload for TypeFileChunk: a path, an offset, and data.
type FileChunk struct {
	RelativePath string
	Offset       uint64
	Data         []byte
}

// Encode serializes a FileChunk as [2B path_len][path][8B offset][data].
func (c *FileChunk) Encode() []byte {
	path := []byte(c.RelativePath)
	out := make([]byte, 2+len(path)+8+len(c.Data))
	binary.BigEndian.PutUint16(out[0:2], uint16(len(path)))
	copy(out[2:2+len(path)], path)
	binary.BigEndian.PutUint64(out[2+len(path):2+len(path)+8], c.Offset)
	copy(out[2+len(path)+8:], c.Data)
	return out
}

// DecodeFileChunk parses a FileChunk payload. It rejects payloads shorter
// than the fixed header, a path_len exceeding the payload bounds, and
// (structurally, via the unsigned offset field) a negative offset.
func DecodeFileChunk(payload []byte) (*FileChunk, error) {
	if len(payload) < 10 {
		return nil, fmt.Errorf("%w: file chunk shorter than 10 bytes", ErrInvalidPayload)
	}
	pathLen := int(binary.BigEndian.Uint16(payload[0:2]))
	if 2+pathLen+8 > len(payload) {
		return nil, fmt.Errorf("%w: file chunk path_len out of bounds", ErrInvalidPayload)
	}
	path := string(payload[2 : 2+pathLen])
	offset := binary.BigEndian.Uint64(payload[2+pathLen : 2+pathLen+8])
	data := append([]byte(nil), payload[2+pathLen+8:]...)
	return &FileChunk{RelativePath: path, Offset: offset, Data: data}, nil
}

// FileComplete is the payload for TypeFileComplete.
type FileComplete struct {
	RelativePath string `json:"relative_path"`
}

// Encode serializes a FileComplete to JSON.
func (c *FileComplete) Encode() ([]byte, error) {
	return json.Marshal(c)
}

// DecodeFileComplete parses a FileComplete payload.
func DecodeFileComplete(payload []byte) (*FileComplete, error) {
	var c FileComplete
	if err := json.Unmarshal(payload, &c); err != nil {
		return nil, fmt.Errorf("%w: file complete: %v", ErrInvalidPayload, err)
	}
	return &c, nil
}
