// Package syncfs scans a local directory into the wire-level FileEntry
// manifest and computes the remote-wins diff against a peer's manifest.
package syncfs

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/lansync/lansync/internal/protocol"
)

// Entry extends protocol.FileEntry with the unexported, unserialized
// original-case filesystem path needed to actually read or write the file.
// The wire-level RelativePath is case-folded so two peers on
// case-sensitive and case-insensitive filesystems agree on identity; diskPath
// preserves whatever case the local filesystem actually uses.
type Entry struct {
	protocol.FileEntry
	diskPath string
}

// DiskPath returns the original-case, OS-native path used for local I/O.
// It is empty for entries that did not come from a local Scan (e.g. a
// manifest received from a peer), since only the peer's filesystem knows
// that mapping.
func (e Entry) DiskPath() string { return e.diskPath }

// Scan walks root and returns one Entry per regular file found. Symlinks
// and other non-regular files are skipped; walking does not follow
// symlinks, so no defined behavior exists for symlink loops. RelativePath
// is forward-slash separated and case-folded to lower case; DiskPath keeps
// the path exactly as the filesystem reports it, relative to root joined
// back onto root for I/O.
func Scan(root string) ([]Entry, error) {
	var entries []Entry
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		relSlash := strings.ToLower(filepath.ToSlash(rel))

		entries = append(entries, Entry{
			FileEntry: protocol.FileEntry{
				RelativePath:   relSlash,
				Size:           uint64(info.Size()),
				LastWriteTicks: info.ModTime().UnixNano(),
			},
			diskPath: path,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// SyncPlan is the result of diffing a local manifest against a remote one.
type SyncPlan struct {
	ToDownload []protocol.FileEntry
	ToDelete   []string
}

// Diff computes the remote-wins plan: every remote entry absent locally or
// differing in size or modification time is queued for download; every
// local path absent from the remote manifest is queued for deletion. Diff
// does no I/O and is deterministic given its two inputs.
func Diff(local []Entry, remote []protocol.FileEntry) SyncPlan {
	localByPath := make(map[string]Entry, len(local))
	for _, e := range local {
		localByPath[e.RelativePath] = e
	}
	remoteByPath := make(map[string]struct{}, len(remote))

	var plan SyncPlan
	for _, r := range remote {
		remoteByPath[r.RelativePath] = struct{}{}
		l, ok := localByPath[r.RelativePath]
		if !ok || l.Size != r.Size || l.LastWriteTicks != r.LastWriteTicks {
			plan.ToDownload = append(plan.ToDownload, r)
		}
	}
	for _, l := range local {
		if _, ok := remoteByPath[l.RelativePath]; !ok {
			plan.ToDelete = append(plan.ToDelete, l.RelativePath)
		}
	}
	return plan
}

// ResolvePath joins a case-folded, forward-slash relative path onto root,
// rejecting any path whose resolved form escapes root. Every orchestrator
// operation that turns a peer-supplied relative path into a filesystem path
// must go through this.
func ResolvePath(root, relativePath string) (string, error) {
	cleanRel := filepath.Clean(filepath.FromSlash(relativePath))
	if cleanRel == "." || strings.HasPrefix(cleanRel, ".."+string(os.PathSeparator)) || cleanRel == ".." || filepath.IsAbs(cleanRel) {
		return "", ErrPathTraversal
	}
	full := filepath.Join(root, cleanRel)
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	absFull, err := filepath.Abs(full)
	if err != nil {
		return "", err
	}
	if absFull != absRoot && !strings.HasPrefix(absFull, absRoot+string(os.PathSeparator)) {
		return "", ErrPathTraversal
	}
	return full, nil
}
