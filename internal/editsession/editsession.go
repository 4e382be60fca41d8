// Package editsession is the stateful, at-most-one-per-user file edit flow:
// list files in a directory, open one for editing, replace its content from
// the next chat message, or cancel without writing.
package editsession

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const pageSize = 20

// ErrEditOpen is returned by Open when the user already has an edit session
// open. Other commands are not checked against an open session.
var ErrEditOpen = errors.New("editsession: finish edit first")

// ErrNoSession is returned when save/cancel is called with no open session.
var ErrNoSession = errors.New("editsession: no open session")

// State mirrors userstate.EditState without importing that package, so
// editsession stays a leaf component.
type State string

const (
	AwaitingContent State = "awaiting_content"
	Saving          State = "saving"
	Closed          State = "closed"
)

// Session is one user's in-flight edit.
type Session struct {
	EditID    string
	Path      string
	StartedAt time.Time
	State     State
}

// Entry is one directory listing row — regular files only, no recursion.
type Entry struct {
	Name    string
	ModTime time.Time
}

// Manager tracks at most one edit Session per user. Sessions are never
// persisted across restart.
type Manager struct {
	mu       sync.Mutex
	root     string // containment root, e.g. the process user's home directory
	sessions map[int64]*Session
}

func New(root string) *Manager {
	return &Manager{root: root, sessions: make(map[int64]*Session)}
}

// validatePath resolves symlinks and requires the result to stay under the
// manager's containment root.
func (m *Manager) validatePath(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		parent, derr := filepath.EvalSymlinks(filepath.Dir(path))
		if derr != nil {
			return "", fmt.Errorf("access denied: cannot resolve path")
		}
		resolved = filepath.Join(parent, filepath.Base(path))
	}

	rootResolved, err := filepath.EvalSymlinks(m.root)
	if err != nil {
		return "", fmt.Errorf("access denied: cannot resolve root")
	}

	if resolved == rootResolved {
		return resolved, nil
	}
	prefix := rootResolved + string(filepath.Separator)
	if strings.HasPrefix(resolved+string(filepath.Separator), prefix) {
		return resolved, nil
	}
	return "", fmt.Errorf("access denied: path must be under %s", m.root)
}

// ListFiles returns regular files (no recursion) in dir, one page at a
// fixed page size.
func (m *Manager) ListFiles(dir string, page int) ([]Entry, error) {
	abs := filepath.Join(m.root, dir)
	resolved, err := m.validatePath(abs)
	if err != nil {
		return nil, err
	}

	dirEntries, err := os.ReadDir(resolved)
	if err != nil {
		return nil, fmt.Errorf("editsession: read dir: %w", err)
	}

	var files []Entry
	for _, e := range dirEntries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, Entry{Name: e.Name(), ModTime: info.ModTime()})
	}

	start := page * pageSize
	if start >= len(files) {
		return nil, nil
	}
	end := start + pageSize
	if end > len(files) {
		end = len(files)
	}
	return files[start:end], nil
}

// Open reads path's content, starts an edit_session{awaiting_content}, and
// returns the content to show the user. Fails if the user already has an
// open session (EditConflict, per spec §7).
func (m *Manager) Open(userID int64, relPath string) (content string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[userID]; ok && s.State != Closed {
		return "", ErrEditOpen
	}

	abs := filepath.Join(m.root, relPath)
	resolved, err := m.validatePath(abs)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", fmt.Errorf("editsession: read file: %w", err)
	}

	m.sessions[userID] = &Session{
		EditID:    uuid.NewString(),
		Path:      resolved,
		StartedAt: time.Now(),
		State:     AwaitingContent,
	}
	return string(data), nil
}

// IsOpen reports whether userID has a non-closed edit session.
func (m *Manager) IsOpen(userID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	return ok && s.State != Closed
}

// Save writes newContent to the open session's path atomically, then
// closes the session. The next non-slash message from a user with an open
// edit session should be routed here by the dispatcher.
func (m *Manager) Save(userID int64, newContent string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[userID]
	if !ok || s.State != AwaitingContent {
		return ErrNoSession
	}
	s.State = Saving

	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, []byte(newContent), 0o644); err != nil {
		return fmt.Errorf("editsession: write tmp: %w", err)
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("editsession: rename: %w", err)
	}

	s.State = Closed
	delete(m.sessions, userID)
	return nil
}

// Cancel closes the session without writing anything.
func (m *Manager) Cancel(userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[userID]; !ok {
		return ErrNoSession
	}
	delete(m.sessions, userID)
	return nil
}

// Get returns a copy of the user's open session, if any.
func (m *Manager) Get(userID int64) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	if !ok {
		return Session{}, false
	}
	return *s, true
}
