package engine

import (
	"errors"
	"fmt"

	"github.com/lansync/lansync/internal/cryptosession"
	"github.com/lansync/lansync/internal/logging"
	"github.com/lansync/lansync/internal/protocol"
)

// mapCodecError translates a protocol.Codec error into the matching engine
// sentinel so Observer.OnError distinguishes an oversized or malformed frame
// from an ordinary transport disconnect.
func mapCodecError(err error) error {
	switch {
	case errors.Is(err, protocol.ErrFrameTooLarge):
		return fmt.Errorf("%w: %v", ErrCodecOversize, err)
	case errors.Is(err, protocol.ErrInvalidFrameLength):
		return fmt.Errorf("%w: %v", ErrCodecInvalidLength, err)
	default:
		return err
	}
}

// handleFrame implements NetworkFrameReceived: split the type tag off the
// payload, decrypt it if the session has cut over to AEAD, and dispatch by
// message type. Any error returned here is fatal and terminates the
// engine.
func (e *Engine) handleFrame(payload []byte) error {
	if len(payload) == 0 {
		return ErrEmptyFrame
	}
	msgType := payload[0]
	body := payload[1:]

	e.logger.Debug("frame received",
		logging.KeyRole, e.role,
		logging.KeyFrameType, protocol.TypeName(msgType),
		logging.KeyState, e.state.String(),
		logging.KeyBytes, len(payload),
	)

	if e.state.atLeast(AwaitingSas) {
		if e.recvAead == nil {
			return fmt.Errorf("%w: no receive session at AwaitingSas", ErrProtocolViolation)
		}
		pt, err := e.recvAead.Open(msgType, body)
		if err != nil {
			return ErrAuthenticationFailed
		}
		body = pt
	}

	switch msgType {
	case protocol.TypeHello:
		return e.handleHello(body)
	case protocol.TypeKeyExchange:
		return e.handleKeyExchange(body)
	case protocol.TypeAuthVerify:
		return e.handleAuthVerify(body)
	case protocol.TypeRequestTree:
		return e.handleRequestTree()
	case protocol.TypeFileTreeChunk:
		return e.handleFileTreeChunk(body)
	case protocol.TypeFileRequest:
		return e.handleFileRequest(body)
	case protocol.TypeFileChunk:
		return e.handleFileChunk(body)
	case protocol.TypeFileComplete:
		return e.handleFileComplete(body)
	default:
		return fmt.Errorf("%w: unknown message type 0x%02x", ErrProtocolViolation, msgType)
	}
}

func (e *Engine) handleHello(body []byte) error {
	if !e.state.atLeast(HandshakingCrypto) {
		e.sendHelloClear()
		e.transitionTo(HandshakingCrypto)
	}
	if e.state != HandshakingCrypto {
		return fmt.Errorf("%w: Hello outside HandshakingCrypto", ErrProtocolViolation)
	}

	hello, err := protocol.DecodeHello(body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProtocolViolation, err)
	}
	if hello.Version != protocol.ProtocolVersion {
		return fmt.Errorf("%w: peer version %q", ErrVersionMismatch, hello.Version)
	}

	if e.crypto == nil {
		sc, err := cryptosession.NewSessionCrypto()
		if err != nil {
			return fmt.Errorf("generate session crypto: %w", err)
		}
		e.crypto = sc
	}

	kx := &protocol.KeyExchange{PublicKey: e.crypto.PublicKeyBytes(), Salt: e.crypto.LocalSalt()}
	e.sendClear(protocol.TypeKeyExchange, kx.Encode())
	return nil
}

func (e *Engine) handleKeyExchange(body []byte) error {
	if e.state != HandshakingCrypto {
		return fmt.Errorf("%w: KeyExchange outside HandshakingCrypto", ErrProtocolViolation)
	}
	kx, err := protocol.DecodeKeyExchange(body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProtocolViolation, err)
	}
	if e.crypto == nil {
		sc, err := cryptosession.NewSessionCrypto()
		if err != nil {
			return fmt.Errorf("generate session crypto: %w", err)
		}
		e.crypto = sc
	}

	if err := e.crypto.Derive(kx.PublicKey, kx.Salt, e.isServer); err != nil {
		if err == cryptosession.ErrCurveMismatch {
			return ErrCurveMismatch
		}
		return fmt.Errorf("%w: %v", ErrCurveMismatch, err)
	}

	send, recv, err := e.crypto.AeadSessions(e.isServer)
	if err != nil {
		return fmt.Errorf("build aead sessions: %w", err)
	}
	e.sendAead = send
	e.recvAead = recv

	e.transitionTo(AwaitingSas)
	e.observer.OnSasGenerated(e.crypto.SasTokens())
	return nil
}

func (e *Engine) handleAuthVerify(body []byte) error {
	if e.state == SessionSecured {
		return nil // DuplicateAuthVerify: tolerated, non-fatal
	}
	if e.state != AwaitingSas {
		return fmt.Errorf("%w: AuthVerify outside AwaitingSas", ErrProtocolViolation)
	}
	av, err := protocol.DecodeAuthVerify(body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProtocolViolation, err)
	}
	if !av.Accepted {
		return ErrPeerRejectedSas
	}
	e.transitionTo(SessionSecured)
	e.observer.OnSessionSecured()
	return nil
}

func (e *Engine) handleRequestTree() error {
	if e.state != SessionSecured {
		return fmt.Errorf("%w: RequestTree outside SessionSecured", ErrProtocolViolation)
	}
	e.observer.OnRemoteTreeRequested()
	return nil
}

func (e *Engine) handleFileTreeChunk(body []byte) error {
	if e.state != SessionSecured {
		return fmt.Errorf("%w: FileTreeChunk outside SessionSecured", ErrProtocolViolation)
	}
	tree, err := protocol.DecodeFileTree(body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProtocolViolation, err)
	}
	e.observer.OnRemoteTreeReceived(tree.Files)
	return nil
}

func (e *Engine) handleFileRequest(body []byte) error {
	if e.state != SessionSecured {
		return fmt.Errorf("%w: FileRequest outside SessionSecured", ErrProtocolViolation)
	}
	req, err := protocol.DecodeFileRequest(body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProtocolViolation, err)
	}
	e.observer.OnFileRequested(req.RelativePath)
	return nil
}

func (e *Engine) handleFileChunk(body []byte) error {
	if e.state != SessionSecured {
		return fmt.Errorf("%w: FileChunk outside SessionSecured", ErrProtocolViolation)
	}
	chunk, err := protocol.DecodeFileChunk(body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProtocolViolation, err)
	}
	e.observer.OnFileChunkReceived(chunk.RelativePath, chunk.Offset, chunk.Data)
	return nil
}

func (e *Engine) handleFileComplete(body []byte) error {
	if e.state != SessionSecured {
		return fmt.Errorf("%w: FileComplete outside SessionSecured", ErrProtocolViolation)
	}
	c, err := protocol.DecodeFileComplete(body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProtocolViolation, err)
	}
	e.observer.OnFileCompleteReceived(c.RelativePath)
	return nil
}
