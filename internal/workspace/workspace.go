// Package workspace owns the per-job scratch directories. Every path a
// job writes during processing lives under a workspace and vanishes with it.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pulpitlabs/sermonpipe/internal/fault"
)

// Workspace is an exclusively-owned scratch directory for one job.
type Workspace struct {
	dir      string
	released bool
}

// Dir returns the workspace root directory.
func (w *Workspace) Dir() string {
	return w.dir
}

// Join resolves a file name inside the workspace.
func (w *Workspace) Join(name string) string {
	return filepath.Join(w.dir, name)
}

// Manager creates and destroys workspaces under a configured root.
type Manager struct {
	root   string
	logger *zap.Logger
}

// NewManager verifies the root is usable and returns a manager. An
// unwritable root is a resource fault: nothing can run without scratch space.
func NewManager(root string, logger *zap.Logger) (*Manager, error) {
	if root == "" {
		return nil, fault.New(fault.Resource, "workspace", "root directory is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fault.Wrap(fault.Resource, "workspace", fmt.Errorf("create root %s: %w", root, err))
	}
	return &Manager{root: root, logger: logger}, nil
}

// Acquire creates a fresh uniquely-named directory for one job.
func (m *Manager) Acquire() (*Workspace, error) {
	dir := filepath.Join(m.root, "job-"+uuid.NewString())
	if err := os.Mkdir(dir, 0o755); err != nil {
		return nil, fault.Wrap(fault.Resource, "workspace", fmt.Errorf("create workspace: %w", err))
	}
	m.logger.Debug("workspace acquired", zap.String("dir", dir))
	return &Workspace{dir: dir}, nil
}

// Release removes the workspace and everything in it. Safe to call more
// than once and tolerant of partially-deleted state.
func (m *Manager) Release(ws *Workspace) error {
	if ws == nil || ws.released {
		return nil
	}

	err := os.RemoveAll(ws.dir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		m.logger.Warn("workspace release failed", zap.String("dir", ws.dir), zap.Error(err))
		return fmt.Errorf("release workspace %s: %w", ws.dir, err)
	}

	ws.released = true
	m.logger.Debug("workspace released", zap.String("dir", ws.dir))
	return nil
}
