// Package userstate is the durable per-user preference store: active tab,
// poll interval, mode, authorization, and the last authenticated IP.
package userstate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Interval is a scheduler tick period.
type Interval string

const (
	Interval1m   Interval = "1m"
	Interval5m   Interval = "5m"
	Interval1h   Interval = "1h"
	IntervalNone Interval = "never"
)

// Duration returns the time.Duration a cron expression should use, and
// whether the interval is active at all (false for "never").
func (i Interval) Duration() (time.Duration, bool) {
	switch i {
	case Interval1m:
		return time.Minute, true
	case Interval5m:
		return 5 * time.Minute, true
	case Interval1h:
		return time.Hour, true
	default:
		return 0, false
	}
}

// Mode selects scheduler emission behavior.
type Mode string

const (
	ModeNormal Mode = "normal"
	ModeClaude Mode = "claude"
)

// EditState is the lifecycle state of a user's edit session.
type EditState string

const (
	EditAwaitingContent EditState = "awaiting_content"
	EditSaving          EditState = "saving"
	EditClosed          EditState = "closed"
)

// EditSession is the per-user single-file edit flow state. Never persisted
// across restart.
type EditSession struct {
	EditID    string    `json:"edit_id"`
	Path      string    `json:"path"`
	StartedAt time.Time `json:"started_at"`
	State     EditState `json:"state"`
}

// State is one user's preferences and runtime flags.
type State struct {
	UserID          int64                `json:"user_id"`
	ActiveTabID     string               `json:"active_tab_id,omitempty"`
	Interval        Interval             `json:"interval"`
	Mode            Mode                 `json:"mode"`
	Authorized      bool                 `json:"authorized"`
	ServerIP        string               `json:"server_ip,omitempty"`
	LastCaptureHash map[string]string    `json:"last_capture_hash,omitempty"`
	EditSession     *EditSession         `json:"-"`
	PromptOverride  *PromptOverride      `json:"prompt_override,omitempty"`
}

// PromptOverride is a user-level override of the prompt-rule engine.
type PromptOverride struct {
	Enabled          *bool `json:"enabled,omitempty"`
	ForceIncremental bool  `json:"force_incremental,omitempty"`
}

func defaultState(userID int64) State {
	return State{
		UserID:   userID,
		Interval: Interval5m,
		Mode:     ModeNormal,
	}
}

type document struct {
	Users map[int64]State `json:"users"`
}

// Store is the durable user-state document. Single writer under mu.
type Store struct {
	mu    sync.Mutex
	path  string
	users map[int64]State
}

func New(path string) *Store {
	return &Store{path: path, users: make(map[int64]State)}
}

// Load reads the persisted document, tolerating absence as empty.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.users = make(map[int64]State)
			return nil
		}
		return fmt.Errorf("userstate: load: %w", err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("userstate: parse: %w", err)
	}
	if doc.Users == nil {
		doc.Users = make(map[int64]State)
	}
	s.users = doc.Users
	return nil
}

func (s *Store) save() error {
	doc := document{Users: s.users}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("userstate: marshal: %w", err)
	}
	dir := filepath.Dir(s.path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("userstate: mkdir: %w", err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("userstate: write tmp: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("userstate: rename: %w", err)
	}
	return nil
}

// Get returns the user's state, or defaults on miss. The edit session field
// is preserved in the in-memory copy only (never persisted).
func (s *Store) Get(userID int64) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.users[userID]
	if !ok {
		return defaultState(userID)
	}
	return st
}

func (s *Store) mutate(userID int64, fn func(*State)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.users[userID]
	if !ok {
		st = defaultState(userID)
	}
	fn(&st)
	s.users[userID] = st
	return s.save()
}

// SetActiveTab updates the active tab. Pass "" to clear it.
func (s *Store) SetActiveTab(userID int64, tabID string) error {
	return s.mutate(userID, func(st *State) { st.ActiveTabID = tabID })
}

// SetInterval updates the scheduler interval.
func (s *Store) SetInterval(userID int64, interval Interval) error {
	return s.mutate(userID, func(st *State) { st.Interval = interval })
}

// SetMode updates normal/claude mode.
func (s *Store) SetMode(userID int64, mode Mode) error {
	return s.mutate(userID, func(st *State) { st.Mode = mode })
}

// MarkAuthorized flips authorized=true and records the authenticating IP.
func (s *Store) MarkAuthorized(userID int64, serverIP string) error {
	return s.mutate(userID, func(st *State) {
		st.Authorized = true
		st.ServerIP = serverIP
	})
}

// Revoke flips authorized=false, clearing the active tab per reconciliation
// rules (no command-execution path reachable while unauthorized).
func (s *Store) Revoke(userID int64) error {
	return s.mutate(userID, func(st *State) {
		st.Authorized = false
		st.ActiveTabID = ""
	})
}

// SetLastCaptureHash records the diffing hash for one tab.
func (s *Store) SetLastCaptureHash(userID int64, tabID, hash string) error {
	return s.mutate(userID, func(st *State) {
		if st.LastCaptureHash == nil {
			st.LastCaptureHash = make(map[string]string)
		}
		st.LastCaptureHash[tabID] = hash
	})
}

// ClearActiveTabIfMissing clears active_tab_id when reconciliation finds it
// no longer refers to a live tab.
func (s *Store) ClearActiveTabIfMissing(userID int64, stillLive func(tabID string) bool) error {
	s.mu.Lock()
	st, ok := s.users[userID]
	s.mu.Unlock()
	if !ok || st.ActiveTabID == "" || stillLive(st.ActiveTabID) {
		return nil
	}
	return s.mutate(userID, func(st *State) { st.ActiveTabID = "" })
}
