// Package orchestrator drives a sync session on top of an engine.Engine: a
// client-side one-shot pull (request the peer's tree, diff it against the
// local filesystem, download what differs, delete what the peer no longer
// has) and a server-side responder (answer tree requests and stream
// requested files), both registered unconditionally so either role works
// on either side of a connection.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/time/rate"

	"github.com/lansync/lansync/internal/engine"
	"github.com/lansync/lansync/internal/logging"
	"github.com/lansync/lansync/internal/protocol"
	"github.com/lansync/lansync/internal/syncfs"
)

// ErrSyncTimeout is returned when the peer does not answer a RequestTree
// within the configured timeout.
var ErrSyncTimeout = fmt.Errorf("orchestrator: timed out waiting for remote tree")

// ProgressFunc receives human-scale progress updates during a pull. path is
// the file currently transferring, transferred and total are byte counts.
type ProgressFunc func(path string, transferred, total uint64)

// Config configures an Orchestrator.
type Config struct {
	// Engine is the secured engine this orchestrator drives. It must
	// already have reached SessionSecured before Sync is called.
	Engine *engine.Engine

	// Root is the local directory both scanned for the responder and
	// written into by the pull pump.
	Root string

	// TreeTimeout bounds how long Sync waits for the peer's response to
	// RequestTree. Zero selects a 30 second default.
	TreeTimeout time.Duration

	// OutboundBytesPerSecond paces the server-side file-streaming
	// responder. Zero or negative disables pacing.
	OutboundBytesPerSecond int64

	// Progress, if set, is called as the pull pump advances.
	Progress ProgressFunc

	Logger *slog.Logger
}

// Orchestrator implements engine.Observer, combining the client-side pull
// state machine with the server-side responder. Both halves are always
// active: a connection is symmetric, and either side may request the
// other's tree or files.
type Orchestrator struct {
	engine *engine.Engine
	root   string
	logger *slog.Logger

	treeTimeout time.Duration
	limiter     *rate.Limiter
	progress    ProgressFunc

	mu sync.Mutex

	// pull state, client role
	pullActive     bool
	pullTreeCh     chan []protocol.FileEntry
	pullDone       chan error
	activeIncoming *IncomingTransfer
	downloadQueue  []protocol.FileEntry
	completedCount int
}

// New creates an Orchestrator bound to eng. The caller must route eng's
// Observer to the returned value (pass it as Config.Observer when
// constructing the engine, or via whatever composition the caller uses if
// multiple observers are needed).
func New(cfg Config) *Orchestrator {
	timeout := cfg.TreeTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}

	var limiter *rate.Limiter
	if cfg.OutboundBytesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.OutboundBytesPerSecond), 64*1024)
	}

	return &Orchestrator{
		engine:      cfg.Engine,
		root:        cfg.Root,
		logger:      logger,
		treeTimeout: timeout,
		limiter:     limiter,
		progress:    cfg.Progress,
	}
}

// Sync runs the client's server-authoritative one-shot pull: request the
// peer's tree, diff it against the local filesystem, delete what the peer
// no longer has, then sequentially download everything that differs. It
// blocks until the pull completes or fails.
func (o *Orchestrator) Sync(ctx context.Context) error {
	o.mu.Lock()
	if o.pullActive {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator: sync already in progress")
	}
	o.pullActive = true
	o.pullTreeCh = make(chan []protocol.FileEntry, 1)
	o.pullDone = make(chan error, 1)
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.pullActive = false
		o.mu.Unlock()
	}()

	o.engine.RequestTree()

	var remote []protocol.FileEntry
	select {
	case remote = <-o.pullTreeCh:
	case <-time.After(o.treeTimeout):
		return ErrSyncTimeout
	case <-ctx.Done():
		return ctx.Err()
	}

	local, err := syncfs.Scan(o.root)
	if err != nil {
		return fmt.Errorf("orchestrator: scan local root: %w", err)
	}
	plan := syncfs.Diff(local, remote)

	diskPaths := make(map[string]string, len(local))
	for _, entry := range local {
		diskPaths[entry.RelativePath] = entry.DiskPath()
	}
	for _, relPath := range plan.ToDelete {
		if err := o.deleteLocal(relPath, diskPaths[relPath]); err != nil {
			o.logger.Warn("delete failed during sync",
				logging.KeyPath, relPath,
				logging.KeyError, err,
			)
		}
	}

	if len(plan.ToDownload) == 0 {
		return nil
	}

	o.mu.Lock()
	o.downloadQueue = plan.ToDownload
	o.completedCount = 0
	o.mu.Unlock()

	o.startNextDownload()

	select {
	case err := <-o.pullDone:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// BindEngine attaches the engine this orchestrator drives. It exists for
// callers that must construct the Orchestrator (to pass it as Observer)
// before the Engine it will drive can itself be constructed; Config.Engine
// covers the common case where the engine already exists.
func (o *Orchestrator) BindEngine(eng *engine.Engine) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.engine = eng
}

func (o *Orchestrator) deleteLocal(relPath, diskPath string) error {
	full, err := syncfs.ResolvePath(o.root, relPath)
	if err != nil {
		return err
	}
	if diskPath != "" {
		full = diskPath
	}
	return removeIfExists(full)
}

// humanizeProgress formats a progress line the way the pump reports it in
// logs; go-humanize keeps log output readable for large transfers.
func humanizeProgress(transferred, total uint64) string {
	return fmt.Sprintf("%s / %s", humanize.Bytes(transferred), humanize.Bytes(total))
}
