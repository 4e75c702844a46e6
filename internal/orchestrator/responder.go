package orchestrator

import (
	"context"
	"io"
	"os"

	"github.com/lansync/lansync/internal/logging"
	"github.com/lansync/lansync/internal/protocol"
	"github.com/lansync/lansync/internal/syncfs"
)

const responderChunkSize = 64 * 1024

// OnRemoteTreeRequested implements the server-side responder half of
// Observer: scan the local root and answer with its manifest.
func (o *Orchestrator) OnRemoteTreeRequested() {
	entries, err := syncfs.Scan(o.root)
	if err != nil {
		o.logger.Error("scan failed answering tree request", logging.KeyError, err)
		return
	}
	files := make([]protocol.FileEntry, len(entries))
	for i, e := range entries {
		files[i] = e.FileEntry
	}
	o.engine.SendTree(files)
}

// OnFileRequested implements the server-side responder half of Observer:
// stream the requested file in fixed-size chunks with monotonically
// increasing offsets, then announce completion. The read happens off the
// engine's consumer goroutine so a slow disk never blocks the state
// machine.
func (o *Orchestrator) OnFileRequested(path string) {
	go o.streamFile(path)
}

func (o *Orchestrator) streamFile(path string) {
	full, err := syncfs.ResolvePath(o.root, path)
	if err != nil {
		o.logger.Error("rejected file request outside root", logging.KeyPath, path, logging.KeyError, err)
		return
	}
	// The wire path is case-folded; open the file under its on-disk case.
	if entries, scanErr := syncfs.Scan(o.root); scanErr == nil {
		for _, entry := range entries {
			if entry.RelativePath == path {
				full = entry.DiskPath()
				break
			}
		}
	}

	f, err := os.Open(full)
	if err != nil {
		o.logger.Error("failed to open requested file", logging.KeyPath, path, logging.KeyError, err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		o.logger.Error("failed to stat requested file", logging.KeyPath, path, logging.KeyError, err)
		return
	}
	total := uint64(info.Size())

	buf := make([]byte, responderChunkSize)
	var offset uint64
	ctx := context.Background()
	for {
		n, readErr := f.Read(buf)
		if n > 0 {
			if o.limiter != nil {
				if err := o.limiter.WaitN(ctx, n); err != nil {
					o.logger.Error("rate limiter wait failed", logging.KeyPath, path, logging.KeyError, err)
					return
				}
			}
			chunk := append([]byte(nil), buf[:n]...)
			o.engine.SendFileChunk(path, offset, chunk)
			offset += uint64(n)
			o.reportProgress(path, offset, total)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			o.logger.Error("read failed streaming file", logging.KeyPath, path, logging.KeyError, readErr)
			return
		}
	}
	o.engine.SendFileComplete(path)
}

// OnRemoteTreeReceived implements the client-side pull half of Observer:
// deliver the peer's manifest to whichever Sync call is awaiting it.
func (o *Orchestrator) OnRemoteTreeReceived(files []protocol.FileEntry) {
	o.mu.Lock()
	ch := o.pullTreeCh
	o.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- files:
	default:
	}
}

// OnSasGenerated, OnSessionSecured, and OnError complete the engine.Observer
// interface. Orchestrator has no opinion on SAS confirmation or session
// lifecycle; callers that need those events should observe the engine
// directly alongside the orchestrator, or wrap Orchestrator to fan events
// out further.
func (o *Orchestrator) OnSasGenerated([4]string) {}

func (o *Orchestrator) OnSessionSecured() {}

func (o *Orchestrator) OnError(err error) {
	o.logger.Error("engine reported fatal error", logging.KeyError, err)
	o.resolvePull(err)
}
