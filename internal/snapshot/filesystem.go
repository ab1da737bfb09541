package snapshot

import (
	"trackable/internal/infra/snapshot/fs"
)

// NewFilesystem constructs a filesystem-backed snapshot.Store rooted at the
// provided path. Returns snapshot.Store so call sites depend on the interface
// instead of the concrete implementation.
func NewFilesystem(root string) (Store, error) {
	return fs.New(root)
}
