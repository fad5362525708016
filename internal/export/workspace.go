package export

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kikiluvv/splice/pkg/util"
)

// Workspace is the scratch directory of one export. Close removes it and
// everything staged inside.
type Workspace struct {
	Dir string
}

// NewWorkspace creates a fresh directory under parent, or under the
// system temp dir when parent is empty.
func NewWorkspace(parent string) (*Workspace, error) {
	if parent != "" {
		if err := util.EnsureDir(parent); err != nil {
			return nil, fmt.Errorf("failed to create temp dir: %w", err)
		}
	}
	dir, err := os.MkdirTemp(parent, "splice-export-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	return &Workspace{Dir: dir}, nil
}

// Path returns the location of name inside the workspace.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.Dir, name)
}

// Close removes the workspace. It is safe to call more than once.
func (w *Workspace) Close() error {
	if w.Dir == "" {
		return nil
	}
	err := os.RemoveAll(w.Dir)
	w.Dir = ""
	return err
}
