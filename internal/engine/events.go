package engine

import "github.com/lansync/lansync/internal/protocol"

// Observer receives application-layer events as the consumer processes
// frames. Every method fires on the engine's single consumer goroutine, so
// an Observer must not block. A callback may call the engine's command
// methods, which enqueue and return but wait while the 256-slot queue is
// full; it must not call CurrentState, which waits for this same goroutine.
type Observer interface {
	OnSasGenerated(sas [4]string)
	OnSessionSecured()
	OnError(err error)
	OnRemoteTreeRequested()
	OnRemoteTreeReceived(files []protocol.FileEntry)
	OnFileRequested(path string)
	OnFileChunkReceived(path string, offset uint64, data []byte)
	OnFileCompleteReceived(path string)
}

// NopObserver implements Observer with no-op methods, useful as an
// embeddable base for callers that only care about a handful of events.
type NopObserver struct{}

func (NopObserver) OnSasGenerated([4]string)                   {}
func (NopObserver) OnSessionSecured()                          {}
func (NopObserver) OnError(error)                              {}
func (NopObserver) OnRemoteTreeRequested()                     {}
func (NopObserver) OnRemoteTreeReceived([]protocol.FileEntry)  {}
func (NopObserver) OnFileRequested(string)                     {}
func (NopObserver) OnFileChunkReceived(string, uint64, []byte) {}
func (NopObserver) OnFileCompleteReceived(string)              {}
