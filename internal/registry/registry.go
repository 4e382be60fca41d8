// Package registry is the durable tab_id <-> session_name <-> display_name
// map, plus startup reconciliation against the live terminal driver.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/loppo-llc/tgbotctl/internal/terminal"
)

const schemaVersion = 1

// ErrDuplicateDisplayName is returned when a user already has a tab with the
// requested display name.
var ErrDuplicateDisplayName = errors.New("registry: duplicate display name for user")

// ErrNotFound is returned when a tab_id has no entry.
var ErrNotFound = errors.New("registry: tab not found")

// Tab is one persisted registry record.
type Tab struct {
	TabID       string    `json:"tab_id"`
	UserID      int64     `json:"user_id"`
	DisplayName string    `json:"display_name"`
	SessionName string    `json:"session_name"`
	CreatedAt   time.Time `json:"created_at"`
	LastUsedAt  time.Time `json:"last_used_at"`
	Broken      bool      `json:"broken"`
}

type document struct {
	SchemaVersion int            `json:"schema_version"`
	Tabs          map[string]Tab `json:"tabs"`
}

// Driver is the subset of internal/terminal.Driver the registry needs.
type Driver interface {
	CreateSession(tabID, workDir string) error
	HasSession(tabID string) bool
	KillSession(tabID string) error
	ListSessions() ([]string, error)
}

// Registry is the durable tab registry. Single writer under mu; readers take
// the same mutex, so they never observe a half-applied mutation.
type Registry struct {
	mu     sync.Mutex
	path   string
	logger *slog.Logger
	driver Driver
	tabs   map[string]Tab
}

func New(path string, driver Driver, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		path:   path,
		driver: driver,
		logger: logger,
		tabs:   make(map[string]Tab),
	}
}

// Load reads the persisted document, tolerating absence as empty.
func (r *Registry) Load() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			r.tabs = make(map[string]Tab)
			return nil
		}
		return fmt.Errorf("registry: load: %w", err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("registry: parse: %w", err)
	}
	if doc.Tabs == nil {
		doc.Tabs = make(map[string]Tab)
	}
	r.tabs = doc.Tabs
	return nil
}

// save serializes the registry atomically. Caller must hold mu.
func (r *Registry) save() error {
	doc := document{SchemaVersion: schemaVersion, Tabs: r.tabs}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("registry: marshal: %w", err)
	}
	dir := filepath.Dir(r.path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("registry: mkdir: %w", err)
		}
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("registry: write tmp: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("registry: rename: %w", err)
	}
	return nil
}

// CreateTag creates a new tab for userID, failing if the display name is
// already taken for that user.
func (r *Registry) CreateTag(userID int64, displayName string) (Tab, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range r.tabs {
		if t.UserID == userID && t.DisplayName == displayName {
			return Tab{}, ErrDuplicateDisplayName
		}
	}

	tabID := uuid.NewString()
	now := time.Now()
	tab := Tab{
		TabID:       tabID,
		UserID:      userID,
		DisplayName: displayName,
		SessionName: terminal.SessionName(tabID),
		CreatedAt:   now,
		LastUsedAt:  now,
	}
	if err := r.driver.CreateSession(tabID, ""); err != nil {
		return Tab{}, fmt.Errorf("registry: create session: %w", err)
	}
	r.tabs[tabID] = tab
	if err := r.save(); err != nil {
		return Tab{}, err
	}
	return tab, nil
}

// RenameTag changes a tab's display name.
func (r *Registry) RenameTag(tabID, newName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tab, ok := r.tabs[tabID]
	if !ok {
		return ErrNotFound
	}
	for id, t := range r.tabs {
		if id != tabID && t.UserID == tab.UserID && t.DisplayName == newName {
			return ErrDuplicateDisplayName
		}
	}
	tab.DisplayName = newName
	r.tabs[tabID] = tab
	return r.save()
}

// CloseTag kills the backing session and removes the registry entry.
func (r *Registry) CloseTag(tabID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tabs[tabID]; !ok {
		return ErrNotFound
	}
	if err := r.driver.KillSession(tabID); err != nil {
		return fmt.Errorf("registry: kill session: %w", err)
	}
	delete(r.tabs, tabID)
	return r.save()
}

// ListTags returns all tabs for a user, in creation order.
func (r *Registry) ListTags(userID int64) []Tab {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Tab
	for _, t := range r.tabs {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	sortTabsByCreatedAt(out)
	return out
}

func sortTabsByCreatedAt(tabs []Tab) {
	for i := 1; i < len(tabs); i++ {
		for j := i; j > 0 && tabs[j].CreatedAt.Before(tabs[j-1].CreatedAt); j-- {
			tabs[j], tabs[j-1] = tabs[j-1], tabs[j]
		}
	}
}

// Get returns a single tab by id.
func (r *Registry) Get(tabID string) (Tab, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tabs[tabID]
	return t, ok
}

// Touch updates last_used_at for a tab.
func (r *Registry) Touch(tabID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tabs[tabID]
	if !ok {
		return ErrNotFound
	}
	t.LastUsedAt = time.Now()
	r.tabs[tabID] = t
	return r.save()
}

// ReconcileResult reports the outcome of a reconciliation pass.
type ReconcileResult struct {
	Recreated []string // tab_ids whose session was recreated
	Broken    []string // tab_ids whose session is absent and was not recreated
	Orphans   []string // live session names with no registry entry
}

// Reconcile aligns the persisted registry with live sessions. For each
// persisted tab whose session is missing: create it if createMissing,
// otherwise mark it broken. For each live tgbot_ session with no registry
// entry: report as an orphan, never delete it.
func (r *Registry) Reconcile(createMissing bool) (ReconcileResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	live, err := r.driver.ListSessions()
	if err != nil {
		return ReconcileResult{}, fmt.Errorf("registry: list sessions: %w", err)
	}
	liveSet := make(map[string]bool, len(live))
	for _, name := range live {
		liveSet[name] = true
	}

	var result ReconcileResult
	claimed := make(map[string]bool, len(r.tabs))
	for id, tab := range r.tabs {
		claimed[tab.SessionName] = true
		if liveSet[tab.SessionName] {
			tab.Broken = false
			r.tabs[id] = tab
			continue
		}
		if createMissing {
			if err := r.driver.CreateSession(id, ""); err != nil {
				r.logger.Warn("reconcile: recreate failed", "tab_id", id, "err", err)
				tab.Broken = true
				r.tabs[id] = tab
				result.Broken = append(result.Broken, id)
				continue
			}
			tab.Broken = false
			r.tabs[id] = tab
			result.Recreated = append(result.Recreated, id)
		} else {
			tab.Broken = true
			r.tabs[id] = tab
			result.Broken = append(result.Broken, id)
		}
	}

	for _, name := range live {
		if !claimed[name] {
			result.Orphans = append(result.Orphans, name)
		}
	}

	if err := r.save(); err != nil {
		return result, err
	}
	return result, nil
}
