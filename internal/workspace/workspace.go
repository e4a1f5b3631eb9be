// Package workspace manages the per-request scratch directories that are
// bind-mounted into sandbox containers.
//
// LIFECYCLE:
//
//	ws, err := mgr.Create()
//	if err != nil { ... }
//	defer mgr.Destroy(ws)
//
// Destroy must run on every exit path: a leaked directory under /dev/shm pins
// memory until the host reboots.
package workspace

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/sakif/gradebox/internal/apperror"
	"github.com/sakif/gradebox/internal/language"
)

// dirMode lets the container's user, which may differ from ours, write
// compile output into the directory.
const dirMode = 0o777

// Workspace is an exclusively owned scratch directory.
type Workspace struct {
	ID  string
	Dir string

	once sync.Once
}

// Manager creates and destroys workspaces under a root directory.
type Manager struct {
	root   string
	logger *slog.Logger
}

// NewManager returns a Manager rooted at root. When root does not exist
// (no /dev/shm on macOS, for example) it falls back to os.TempDir().
func NewManager(root string, logger *slog.Logger) *Manager {
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		fallback := os.TempDir()
		logger.Warn("workspace root unavailable, falling back",
			slog.String("root", root),
			slog.String("fallback", fallback),
		)
		root = fallback
	}
	return &Manager{root: root, logger: logger}
}

// Root returns the directory workspaces are created in.
func (m *Manager) Root() string {
	return m.root
}

// Create allocates a uniquely named directory.
func (m *Manager) Create() (*Workspace, error) {
	id := uuid.NewString()
	dir := filepath.Join(m.root, id)

	if err := os.Mkdir(dir, dirMode); err != nil {
		return nil, apperror.Workspace("creation", err)
	}
	// Mkdir is subject to the umask; Chmod is not.
	if err := os.Chmod(dir, dirMode); err != nil {
		_ = os.RemoveAll(dir)
		return nil, apperror.Workspace("creation", err)
	}

	m.logger.Debug("workspace created", slog.String("dir", dir))
	return &Workspace{ID: id, Dir: dir}, nil
}

// Destroy removes the workspace recursively. It is safe to call more than
// once and on a nil workspace.
func (m *Manager) Destroy(ws *Workspace) {
	if ws == nil {
		return
	}
	ws.once.Do(func() {
		if err := os.RemoveAll(ws.Dir); err != nil {
			m.logger.Error("failed to remove workspace",
				slog.String("dir", ws.Dir),
				slog.String("error", err.Error()),
			)
			return
		}
		m.logger.Debug("workspace removed", slog.String("dir", ws.Dir))
	})
}

// WriteSource writes the assembled code to user_code<ext>. Exactly one
// source file is written per workspace.
func (ws *Workspace) WriteSource(code, ext string) (string, error) {
	path := filepath.Join(ws.Dir, language.SourceBase+ext)
	if filepath.Dir(path) != ws.Dir {
		return "", apperror.Workspace("write", errors.New("extension escapes workspace"))
	}
	if err := os.WriteFile(path, []byte(code), 0o644); err != nil {
		return "", apperror.Workspace("write", err)
	}
	return path, nil
}

// Exists reports whether name is present in the workspace.
func (ws *Workspace) Exists(name string) bool {
	_, err := os.Stat(filepath.Join(ws.Dir, name))
	return err == nil
}
