package workspace

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/justapithecus/resourcedriver/rderr"
)

// DirectoryTree is a handle to an extracted driver-files tree. It scopes
// all path resolution to its root, so callers can never escape the tree
// by constructing a relative path with ".." segments.
type DirectoryTree struct {
	root string
}

// Root returns the tree's extraction directory.
func (t *DirectoryTree) Root() string {
	return t.root
}

// Resolve returns the absolute path of rel within the tree, refusing
// any rel that would resolve outside the tree root.
func (t *DirectoryTree) Resolve(rel string) (string, error) {
	joined := filepath.Join(t.root, rel)
	cleanRoot := filepath.Clean(t.root) + string(os.PathSeparator)
	if filepath.Clean(joined) != filepath.Clean(t.root) && !strings.HasPrefix(joined+string(os.PathSeparator), cleanRoot) {
		return "", rderr.New(rderr.ErrInvalidArgument, "tree.resolve", nil)
	}
	return joined, nil
}

// List returns the names of entries directly under the tree root.
func (t *DirectoryTree) List() ([]string, error) {
	entries, err := os.ReadDir(t.root)
	if err != nil {
		return nil, rderr.New(rderr.ErrResourceDriverError, "tree.list", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

// Release deletes the tree from disk. Safe to call more than once.
func (t *DirectoryTree) Release() error {
	if err := os.RemoveAll(t.root); err != nil {
		return rderr.New(rderr.ErrResourceDriverError, "tree.release", err)
	}
	return nil
}
