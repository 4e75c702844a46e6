package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lansync/lansync/internal/engine"
	"github.com/lansync/lansync/internal/logging"
	"github.com/lansync/lansync/internal/protocol"
	"github.com/lansync/lansync/internal/transport"
)

func protocolFileEntry(relPath string, size uint64) protocol.FileEntry {
	return protocol.FileEntry{RelativePath: relPath, Size: size, LastWriteTicks: 1}
}

// secureSession builds two engines over a loopback pair, drives the
// handshake to SessionSecured with both sides auto-accepting the SAS, and
// returns orchestrators rooted at clientRoot and serverRoot wired to each
// engine as its Observer.
func secureSession(t *testing.T, clientRoot, serverRoot string) (clientOrch, serverOrch *Orchestrator, clientEng, serverEng *engine.Engine) {
	t.Helper()
	clientConn, serverConn := transport.NewLoopbackPair()

	clientOrch = &Orchestrator{root: clientRoot, logger: logging.NopLogger(), treeTimeout: 5 * time.Second}
	serverOrch = &Orchestrator{root: serverRoot, logger: logging.NopLogger(), treeTimeout: 5 * time.Second}

	clientEng = engine.New(engine.Config{DeviceName: "client", Conn: clientConn, Observer: sasAutoAccept{clientOrch}, Role: "client", IsServer: false})
	serverEng = engine.New(engine.Config{DeviceName: "server", Conn: serverConn, Observer: sasAutoAccept{serverOrch}, Role: "server", IsServer: true})

	clientOrch.engine = clientEng
	serverOrch.engine = serverEng

	ctx := context.Background()
	clientEng.Run(ctx)
	serverEng.Run(ctx)
	clientEng.NotifyTransportConnected()

	waitForSecured(t, clientEng)
	waitForSecured(t, serverEng)

	return clientOrch, serverOrch, clientEng, serverEng
}

func waitForSecured(t *testing.T, e *engine.Engine) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if e.CurrentState() == engine.SessionSecured {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("engine never reached SessionSecured (state=%v)", e.CurrentState())
}

// sasAutoAccept wraps an Orchestrator's Observer methods and confirms the
// SAS automatically as soon as it is generated, simulating a user who
// always accepts the displayed tokens.
type sasAutoAccept struct {
	*Orchestrator
}

func (s sasAutoAccept) OnSasGenerated(sas [4]string) {
	s.Orchestrator.OnSasGenerated(sas)
	s.Orchestrator.engine.ConfirmSas(true)
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func waitSyncDone(t *testing.T, clientOrch *Orchestrator) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return clientOrch.Sync(ctx)
}

func TestSync_EndToEndPullWritesFilesAndDeletesStale(t *testing.T) {
	clientRoot := t.TempDir()
	serverRoot := t.TempDir()

	writeFile(t, serverRoot, "keep.txt", "server content")
	writeFile(t, serverRoot, "nested/deep.txt", "nested content")
	writeFile(t, clientRoot, "stale.txt", "should be deleted")

	clientOrch, _, _, _ := secureSession(t, clientRoot, serverRoot)

	if err := waitSyncDone(t, clientOrch); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(clientRoot, "keep.txt"))
	if err != nil {
		t.Fatalf("expected keep.txt to be downloaded: %v", err)
	}
	if string(got) != "server content" {
		t.Fatalf("keep.txt content mismatch: got %q", got)
	}

	got, err = os.ReadFile(filepath.Join(clientRoot, "nested", "deep.txt"))
	if err != nil {
		t.Fatalf("expected nested/deep.txt to be downloaded: %v", err)
	}
	if string(got) != "nested content" {
		t.Fatalf("nested/deep.txt content mismatch: got %q", got)
	}

	if _, err := os.Stat(filepath.Join(clientRoot, "stale.txt")); !os.IsNotExist(err) {
		t.Fatalf("expected stale.txt to be deleted, stat err=%v", err)
	}

	if _, err := os.Stat(filepath.Join(clientRoot, "keep.txt.tmp")); !os.IsNotExist(err) {
		t.Fatal("expected no leftover temp file after completion")
	}
}

func TestSync_NoDifferencesProducesNoWrites(t *testing.T) {
	clientRoot := t.TempDir()
	serverRoot := t.TempDir()
	writeFile(t, clientRoot, "same.txt", "identical")
	writeFile(t, serverRoot, "same.txt", "identical")
	same := time.Unix(1700000000, 0)
	for _, root := range []string{clientRoot, serverRoot} {
		if err := os.Chtimes(filepath.Join(root, "same.txt"), same, same); err != nil {
			t.Fatalf("Chtimes: %v", err)
		}
	}

	clientOrch, _, _, _ := secureSession(t, clientRoot, serverRoot)
	if err := waitSyncDone(t, clientOrch); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(clientRoot, "same.txt"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "identical" {
		t.Fatalf("same.txt should not have been rewritten, got %q", got)
	}
}

func TestSync_TimesOutWhenPeerNeverAnswers(t *testing.T) {
	clientRoot := t.TempDir()
	serverRoot := t.TempDir()
	clientConn, _ := transport.NewLoopbackPair()

	clientOrch := &Orchestrator{root: clientRoot, logger: logging.NopLogger(), treeTimeout: 50 * time.Millisecond}
	clientEng := engine.New(engine.Config{DeviceName: "client", Conn: clientConn, Observer: sasAutoAccept{clientOrch}, Role: "client", IsServer: false})
	clientOrch.engine = clientEng
	_ = serverRoot

	ctx := context.Background()
	clientEng.Run(ctx)
	clientEng.NotifyTransportConnected()

	syncCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := clientOrch.Sync(syncCtx); err != ErrSyncTimeout {
		t.Fatalf("expected ErrSyncTimeout, got %v", err)
	}
}

func TestOnFileChunkReceived_OffsetMismatchAbortsAndRemovesTemp(t *testing.T) {
	root := t.TempDir()
	o := &Orchestrator{root: root, logger: logging.NopLogger(), treeTimeout: time.Second, pullDone: make(chan error, 1)}

	if err := o.beginTransfer(protocolFileEntry("a.txt", 10)); err != nil {
		t.Fatalf("beginTransfer: %v", err)
	}
	tmpPath := o.activeIncoming.tmpPath

	o.OnFileChunkReceived("a.txt", 5, []byte("xxxxx"))

	select {
	case err := <-o.pullDone:
		if err != ErrOffsetMismatch {
			t.Fatalf("expected ErrOffsetMismatch, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("expected pull to resolve with an error")
	}

	if o.activeIncoming != nil {
		t.Fatal("expected activeIncoming to be cleared after abort")
	}
	if _, err := os.Stat(tmpPath); !os.IsNotExist(err) {
		t.Fatal("expected temp file to be removed after abort")
	}
}

func TestOnFileChunkReceived_StrayChunkIgnored(t *testing.T) {
	root := t.TempDir()
	o := &Orchestrator{root: root, logger: logging.NopLogger(), treeTimeout: time.Second, pullDone: make(chan error, 1)}

	o.OnFileChunkReceived("nonexistent.txt", 0, []byte("data"))

	select {
	case err := <-o.pullDone:
		t.Fatalf("expected stray chunk to be silently ignored, got %v", err)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestOnFileCompleteReceived_StrayCompleteIgnored(t *testing.T) {
	root := t.TempDir()
	o := &Orchestrator{root: root, logger: logging.NopLogger(), treeTimeout: time.Second, pullDone: make(chan error, 1)}

	o.OnFileCompleteReceived("nonexistent.txt")

	select {
	case err := <-o.pullDone:
		t.Fatalf("expected stray complete to be silently ignored, got %v", err)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBeginTransfer_RejectsPathTraversal(t *testing.T) {
	root := t.TempDir()
	o := &Orchestrator{root: root, logger: logging.NopLogger()}

	err := o.beginTransfer(protocolFileEntry("../outside.txt", 1))
	if err == nil {
		t.Fatal("expected path traversal to be rejected")
	}
}

func TestAtomicWrite_NoTruncatedFinalFileOnAbort(t *testing.T) {
	root := t.TempDir()
	o := &Orchestrator{root: root, logger: logging.NopLogger(), treeTimeout: time.Second, pullDone: make(chan error, 1)}

	if err := o.beginTransfer(protocolFileEntry("big.bin", 20)); err != nil {
		t.Fatalf("beginTransfer: %v", err)
	}
	o.OnFileChunkReceived("big.bin", 0, []byte("0123456789"))
	o.OnFileChunkReceived("big.bin", 99, []byte("wrong-offset"))

	<-o.pullDone

	if _, err := os.Stat(filepath.Join(root, "big.bin")); !os.IsNotExist(err) {
		t.Fatal("final path must not exist when the transfer aborted mid-stream")
	}
}
