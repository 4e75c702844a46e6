package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lansync/lansync/internal/cryptosession"
	"github.com/lansync/lansync/internal/logging"
	"github.com/lansync/lansync/internal/protocol"
	"github.com/lansync/lansync/internal/recovery"
	"github.com/lansync/lansync/internal/transport"
)

// Config configures a new Engine.
type Config struct {
	// DeviceName is advertised in Hello.
	DeviceName string

	// Conn is the established transport connection this engine drives.
	// The engine calls Conn.Start itself; the caller must not.
	Conn transport.Conn

	// Observer receives application-layer events from the consumer.
	Observer Observer

	// Logger receives structured transition and error logs. Defaults to a
	// discarding logger if nil.
	Logger *slog.Logger

	// Role is a free-form label ("client" or "server") for logging only;
	// it has no effect on protocol behavior, which is fully symmetric.
	Role string

	// IsServer selects which derived (key, nonce) pair this side sends
	// versus receives with, per cryptosession.SessionCrypto.Derive. The
	// dialing side passes false, the accepting side passes true.
	IsServer bool
}

// Engine drives one peer connection's handshake and session state through
// its single-consumer command loop. The command methods enqueue a command
// on a queue of capacity 256 and return; they wait only while that queue
// is full. CurrentState is the exception: it waits for the consumer's reply.
type Engine struct {
	conn     transport.Conn
	observer Observer
	logger   *slog.Logger
	role     string
	device   string

	codec *protocol.Codec

	commands chan command
	done     chan struct{}

	state    State
	crypto   *cryptosession.SessionCrypto
	sendAead *cryptosession.AeadSession
	recvAead *cryptosession.AeadSession
	isServer bool
}

// New creates an Engine bound to conn. Run must be called to start the
// consumer goroutine.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Engine{
		conn:     cfg.Conn,
		observer: cfg.Observer,
		logger:   logger,
		role:     cfg.Role,
		device:   cfg.DeviceName,
		isServer: cfg.IsServer,
		codec:    protocol.NewCodec(),
		commands: make(chan command, 256),
		done:     make(chan struct{}),
		state:    Idle,
	}
}

// Run starts the consumer goroutine and the transport's event delivery. It
// returns immediately; the engine runs until TransportDisconnected or a
// fatal error reaches Terminated, or ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	e.conn.Start(&transportBridge{engine: e})
	go e.consume(ctx)
}

// CurrentState returns the engine's state. It blocks until the consumer
// goroutine answers, so it must not be called from that goroutine,
// including from inside an Observer callback. The result is a snapshot
// that may be stale by the time the caller observes it; production code
// should rely on Observer events rather than polling this.
func (e *Engine) CurrentState() State {
	return e.snapshotState()
}

// StartConnection enqueues a start-connection command, which the consumer
// ignores: it dials nothing and changes no state. The loopback and TCP
// transports in this module already connect before an Engine is
// constructed, so this command exists for symmetry with a
// lazily-connecting transport.
func (e *Engine) StartConnection() { e.enqueue(cmdStartConnection{}) }

// ConfirmSas reports the local user's accept/reject decision after
// OnSasGenerated. Only valid in AwaitingSas.
func (e *Engine) ConfirmSas(accepted bool) { e.enqueue(cmdConfirmSas{accepted: accepted}) }

// RequestTree asks the peer for its file tree. Requires SessionSecured.
func (e *Engine) RequestTree() { e.enqueue(cmdRequestTree{}) }

// SendTree responds to a tree request with the local file list. Requires
// SessionSecured.
func (e *Engine) SendTree(files []protocol.FileEntry) { e.enqueue(cmdSendTree{files: files}) }

// RequestFile asks the peer to stream a file. Requires SessionSecured.
func (e *Engine) RequestFile(path string) { e.enqueue(cmdRequestFile{path: path}) }

// SendFileChunk sends one chunk of file data. Requires SessionSecured.
func (e *Engine) SendFileChunk(path string, offset uint64, data []byte) {
	e.enqueue(cmdSendFileChunk{path: path, offset: offset, data: data})
}

// SendFileComplete signals the end of a file transfer. Requires SessionSecured.
func (e *Engine) SendFileComplete(path string) { e.enqueue(cmdSendFileComplete{path: path}) }

func (e *Engine) enqueue(c command) {
	select {
	case e.commands <- c:
	case <-e.done:
	}
}

// transportBridge adapts transport.EventHandler callbacks into engine
// commands, keeping all network-to-engine translation on the producer
// side of the queue.
type transportBridge struct {
	engine *Engine
}

func (b *transportBridge) OnBytesReceived(chunk []byte) {
	frames, err := b.engine.codec.Feed(chunk)
	if err != nil {
		b.engine.enqueue(cmdCodecError{err: err})
		return
	}
	for _, f := range frames {
		b.engine.enqueue(cmdNetworkFrameReceived{payload: f})
	}
}

func (b *transportBridge) OnDisconnected(error) {
	b.engine.enqueue(cmdTransportDisconnected{})
}

// NotifyTransportConnected enqueues TransportConnected. The dialing side of
// a connection calls this once after Run to kick off the handshake by
// sending the first Hello; the accepting side never needs to call it, since
// an inbound Hello in any state before HandshakingCrypto (the accepting side
// is still Idle) triggers its own Hello in response.
func (e *Engine) NotifyTransportConnected() { e.enqueue(cmdTransportConnected{}) }

func (e *Engine) snapshotState() State {
	reply := make(chan State, 1)
	select {
	case e.commands <- cmdSnapshotState{reply: reply}:
	case <-e.done:
		return Terminated
	}
	select {
	case s := <-reply:
		return s
	case <-e.done:
		return Terminated
	}
}

type cmdSnapshotState struct {
	reply chan State
}

func (cmdSnapshotState) isCommand() {}

// consume is the single consumer goroutine. It owns every mutable engine
// field; nothing outside this function may touch e.state, e.crypto,
// e.sendAead, or e.recvAead.
func (e *Engine) consume(ctx context.Context) {
	defer recovery.RecoverWithLog(e.logger, "engine.consume")
	defer close(e.done)

	for {
		select {
		case <-ctx.Done():
			e.terminate(ctx.Err())
			return
		case cmd := <-e.commands:
			if done := e.handle(ctx, cmd); done {
				return
			}
		}
	}
}

// handle processes one command and returns true if the consumer should
// stop (reached Terminated via disconnect or fatal error).
func (e *Engine) handle(ctx context.Context, cmd command) bool {
	if e.state == Terminated {
		return true
	}

	switch c := cmd.(type) {
	case cmdSnapshotState:
		c.reply <- e.state
		return false
	case cmdStartConnection:
		// Nothing to do: Conn is already connected by construction in this
		// module's transports. Present for API symmetry with the spec.
		return false
	case cmdTransportConnected:
		e.handleTransportConnected()
		return false
	case cmdNetworkFrameReceived:
		if err := e.handleFrame(c.payload); err != nil {
			e.terminate(err)
			return true
		}
		return false
	case cmdConfirmSas:
		if err := e.handleConfirmSas(c.accepted); err != nil {
			e.terminate(err)
			return true
		}
		return false
	case cmdRequestTree:
		if !e.requireSecured() {
			return true
		}
		e.sendEncrypted(protocol.TypeRequestTree, nil)
		return false
	case cmdSendTree:
		if !e.requireSecured() {
			return true
		}
		e.sendTree(c.files)
		return false
	case cmdRequestFile:
		if !e.requireSecured() {
			return true
		}
		e.sendFileRequest(c.path)
		return false
	case cmdSendFileChunk:
		if !e.requireSecured() {
			return true
		}
		e.sendFileChunk(c.path, c.offset, c.data)
		return false
	case cmdSendFileComplete:
		if !e.requireSecured() {
			return true
		}
		e.sendFileComplete(c.path)
		return false
	case cmdTransportDisconnected:
		e.transitionTo(Terminated)
		e.observer.OnError(ErrTransportDisconnected)
		return true
	case cmdCodecError:
		e.terminate(mapCodecError(c.err))
		return true
	default:
		return false
	}
}

// requireSecured terminates the engine with a protocol violation and
// returns false if the current state is not SessionSecured, the
// precondition for every application-layer send command.
func (e *Engine) requireSecured() bool {
	if e.state != SessionSecured {
		e.terminate(fmt.Errorf("%w: command requires SessionSecured, state is %s", ErrProtocolViolation, e.state))
		return false
	}
	return true
}

func (e *Engine) transitionTo(next State) {
	if e.state == Terminated {
		return
	}
	prev := e.state
	e.state = next
	e.logger.Debug("state transition",
		logging.KeyRole, e.role,
		logging.KeyPrevState, prev.String(),
		logging.KeyState, next.String(),
	)
}

func (e *Engine) terminate(err error) {
	if e.state == Terminated {
		return
	}
	e.transitionTo(Terminated)
	e.logger.Error("engine terminated",
		logging.KeyRole, e.role,
		logging.KeyError, err,
	)
	e.zeroizeCrypto()
	e.observer.OnError(err)
	e.conn.Close()
}

// zeroizeCrypto wipes any key material the handshake has produced so far.
// It is safe to call regardless of how far the handshake progressed.
func (e *Engine) zeroizeCrypto() {
	if e.crypto != nil {
		e.crypto.Zeroize()
	}
	if e.sendAead != nil {
		e.sendAead.Zeroize()
	}
	if e.recvAead != nil {
		e.recvAead.Zeroize()
	}
}

func (e *Engine) handleTransportConnected() {
	if e.state.atLeast(HandshakingCrypto) {
		return
	}
	e.transitionTo(TcpConnected)
	e.sendHelloClear()
	e.transitionTo(HandshakingCrypto)
}

func (e *Engine) sendHelloClear() {
	hello := &protocol.Hello{Version: protocol.ProtocolVersion, DeviceName: e.device}
	payload, err := hello.Encode()
	if err != nil {
		e.terminate(fmt.Errorf("encode hello: %w", err))
		return
	}
	e.sendClear(protocol.TypeHello, payload)
}

func (e *Engine) sendClear(msgType uint8, payload []byte) {
	frame, err := protocol.Encode(msgType, payload)
	if err != nil {
		e.terminate(fmt.Errorf("encode frame: %w", err))
		return
	}
	if err := e.conn.Send(frame); err != nil {
		e.terminate(fmt.Errorf("send frame: %w", err))
	}
}

func (e *Engine) sendEncrypted(msgType uint8, plaintext []byte) {
	if e.sendAead == nil {
		e.terminate(fmt.Errorf("%w: send before session secured", ErrProtocolViolation))
		return
	}
	ct, err := e.sendAead.Seal(msgType, plaintext)
	if err != nil {
		e.terminate(err)
		return
	}
	frame, err := protocol.Encode(msgType, ct)
	if err != nil {
		e.terminate(fmt.Errorf("encode frame: %w", err))
		return
	}
	if err := e.conn.Send(frame); err != nil {
		e.terminate(fmt.Errorf("send frame: %w", err))
	}
}

func (e *Engine) sendTree(files []protocol.FileEntry) {
	tree := &protocol.FileTree{Files: files}
	payload, err := tree.Encode()
	if err != nil {
		e.terminate(fmt.Errorf("encode file tree: %w", err))
		return
	}
	e.sendEncrypted(protocol.TypeFileTreeChunk, payload)
}

func (e *Engine) sendFileRequest(path string) {
	req := &protocol.FileRequest{RelativePath: path}
	payload, err := req.Encode()
	if err != nil {
		e.terminate(fmt.Errorf("encode file request: %w", err))
		return
	}
	e.sendEncrypted(protocol.TypeFileRequest, payload)
}

func (e *Engine) sendFileChunk(path string, offset uint64, data []byte) {
	chunk := &protocol.FileChunk{RelativePath: path, Offset: offset, Data: data}
	e.sendEncrypted(protocol.TypeFileChunk, chunk.Encode())
}

func (e *Engine) sendFileComplete(path string) {
	c := &protocol.FileComplete{RelativePath: path}
	payload, err := c.Encode()
	if err != nil {
		e.terminate(fmt.Errorf("encode file complete: %w", err))
		return
	}
	e.sendEncrypted(protocol.TypeFileComplete, payload)
}

func (e *Engine) handleConfirmSas(accepted bool) error {
	if e.state != AwaitingSas {
		return fmt.Errorf("%w: ConfirmSas outside AwaitingSas", ErrProtocolViolation)
	}
	if !accepted {
		return ErrSasRejected
	}
	av := &protocol.AuthVerify{Accepted: true}
	e.sendEncrypted(protocol.TypeAuthVerify, av.Encode())
	return nil
}
