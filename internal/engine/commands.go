package engine

import "github.com/lansync/lansync/internal/protocol"

// command is the tagged-union queue element the consumer drains in FIFO
// order. Each concrete type below implements command by way of being
// accepted into the unexported field of that name.
type command interface {
	isCommand()
}

type cmdStartConnection struct{}

type cmdTransportConnected struct{}

type cmdNetworkFrameReceived struct {
	payload []byte
}

type cmdConfirmSas struct {
	accepted bool
}

type cmdRequestTree struct{}

type cmdSendTree struct {
	files []protocol.FileEntry
}

type cmdRequestFile struct {
	path string
}

type cmdSendFileChunk struct {
	path   string
	offset uint64
	data   []byte
}

type cmdSendFileComplete struct {
	path string
}

type cmdTransportDisconnected struct{}

type cmdCodecError struct {
	err error
}

func (cmdStartConnection) isCommand()       {}
func (cmdTransportConnected) isCommand()    {}
func (cmdNetworkFrameReceived) isCommand()  {}
func (cmdConfirmSas) isCommand()            {}
func (cmdRequestTree) isCommand()           {}
func (cmdSendTree) isCommand()              {}
func (cmdRequestFile) isCommand()           {}
func (cmdSendFileChunk) isCommand()         {}
func (cmdSendFileComplete) isCommand()      {}
func (cmdTransportDisconnected) isCommand() {}
func (cmdCodecError) isCommand()            {}
