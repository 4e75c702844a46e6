package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/lansync/lansync/internal/logging"
	"github.com/lansync/lansync/internal/protocol"
	"github.com/lansync/lansync/internal/syncfs"
)

// IncomingTransfer tracks the one file the sequential pump currently has in
// flight: its destination, the exclusive writer to its temp file, and the
// offset the next chunk must match exactly.
type IncomingTransfer struct {
	relPath        string
	finalPath      string
	tmpPath        string
	file           *os.File
	expectedOffset uint64
	totalSize      uint64
}

// ErrOffsetMismatch aborts the active transfer: the peer sent a chunk whose
// offset did not match the writer's current position.
var ErrOffsetMismatch = fmt.Errorf("orchestrator: file chunk offset mismatch")

// startNextDownload pops the next entry off the queue and issues
// RequestFile for it, or resolves the pull if the queue is empty.
func (o *Orchestrator) startNextDownload() {
	o.mu.Lock()
	if len(o.downloadQueue) == 0 {
		o.mu.Unlock()
		o.resolvePull(nil)
		return
	}
	next := o.downloadQueue[0]
	o.downloadQueue = o.downloadQueue[1:]
	o.mu.Unlock()

	if err := o.beginTransfer(next); err != nil {
		o.resolvePull(err)
		return
	}
	o.engine.RequestFile(next.RelativePath)
}

func (o *Orchestrator) beginTransfer(entry protocol.FileEntry) error {
	finalPath, err := syncfs.ResolvePath(o.root, entry.RelativePath)
	if err != nil {
		return err
	}
	tmpPath := finalPath + ".tmp"

	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return fmt.Errorf("create parent directory: %w", err)
	}

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if removeErr := os.Remove(tmpPath); removeErr == nil {
			f, err = os.OpenFile(tmpPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		}
		if err != nil {
			return fmt.Errorf("open temp file: %w", err)
		}
	}

	o.mu.Lock()
	o.activeIncoming = &IncomingTransfer{
		relPath:   entry.RelativePath,
		finalPath: finalPath,
		tmpPath:   tmpPath,
		file:      f,
		totalSize: entry.Size,
	}
	o.mu.Unlock()

	o.reportProgress(entry.RelativePath, 0, entry.Size)
	return nil
}

// OnFileChunkReceived implements engine.Observer for the pump half of the
// orchestrator.
func (o *Orchestrator) OnFileChunkReceived(path string, offset uint64, data []byte) {
	o.mu.Lock()
	active := o.activeIncoming
	o.mu.Unlock()

	if active == nil || path != active.relPath {
		return // StrayChunk: not the active file, ignored
	}
	if offset != active.expectedOffset {
		o.abortActiveTransfer(ErrOffsetMismatch)
		return
	}

	if _, err := active.file.Write(data); err != nil {
		o.abortActiveTransfer(fmt.Errorf("write chunk: %w", err))
		return
	}
	active.expectedOffset += uint64(len(data))
	o.reportProgress(active.relPath, active.expectedOffset, active.totalSize)
}

// OnFileCompleteReceived implements engine.Observer for the pump half of
// the orchestrator.
func (o *Orchestrator) OnFileCompleteReceived(path string) {
	o.mu.Lock()
	active := o.activeIncoming
	o.mu.Unlock()

	if active == nil || path != active.relPath {
		return // StrayComplete: not the active file, ignored
	}

	if err := active.file.Sync(); err != nil {
		o.abortActiveTransfer(fmt.Errorf("fsync: %w", err))
		return
	}
	if err := active.file.Close(); err != nil {
		o.abortActiveTransfer(fmt.Errorf("close temp file: %w", err))
		return
	}
	if err := os.Remove(active.finalPath); err != nil && !os.IsNotExist(err) {
		o.abortActiveTransfer(fmt.Errorf("remove stale final path: %w", err))
		return
	}
	if err := os.Rename(active.tmpPath, active.finalPath); err != nil {
		o.abortActiveTransfer(fmt.Errorf("rename into place: %w", err))
		return
	}

	o.mu.Lock()
	o.activeIncoming = nil
	o.completedCount++
	o.mu.Unlock()

	o.startNextDownload()
}

func (o *Orchestrator) abortActiveTransfer(err error) {
	o.mu.Lock()
	active := o.activeIncoming
	o.activeIncoming = nil
	o.mu.Unlock()

	if active != nil {
		active.file.Close()
		os.Remove(active.tmpPath)
	}
	o.logger.Error("transfer aborted",
		logging.KeyError, err,
	)
	o.resolvePull(err)
}

func (o *Orchestrator) resolvePull(err error) {
	o.mu.Lock()
	done := o.pullDone
	o.mu.Unlock()
	if done == nil {
		return
	}
	select {
	case done <- err:
	default:
	}
}

func (o *Orchestrator) reportProgress(path string, transferred, total uint64) {
	o.logger.Debug("transfer progress",
		logging.KeyPath, path,
		"progress", humanizeProgress(transferred, total),
	)
	if o.progress != nil {
		o.progress(path, transferred, total)
	}
}

func removeIfExists(path string) error {
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
