package syncfs

import "errors"

// ErrPathTraversal is returned when a relative path, once resolved against
// a sync root, would escape that root.
var ErrPathTraversal = errors.New("syncfs: resolved path escapes root")
