package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Workspace is a private directory for one request. Close removes it along
// with everything written inside.
type Workspace struct {
	id  string
	dir string
}

// NewWorkspace creates a fresh directory under root.
func NewWorkspace(root string) (*Workspace, error) {
	if root == "" {
		root = filepath.Join(os.TempDir(), "audiocut")
	}
	if err := os.MkdirAll(root, 0750); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}

	id := uuid.NewString()
	dir := filepath.Join(root, "req-"+id)
	if err := os.Mkdir(dir, 0750); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}

	return &Workspace{id: id, dir: dir}, nil
}

// ID returns the workspace identifier, also used to namespace artifact keys.
func (w *Workspace) ID() string {
	return w.id
}

// Dir returns the workspace directory.
func (w *Workspace) Dir() string {
	return w.dir
}

// Path returns the path of name inside the workspace.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.dir, filepath.Base(name))
}

// Close removes the workspace directory. It is safe to call more than once.
func (w *Workspace) Close() error {
	if err := os.RemoveAll(w.dir); err != nil {
		return fmt.Errorf("remove workspace %s: %w", w.dir, err)
	}
	return nil
}
