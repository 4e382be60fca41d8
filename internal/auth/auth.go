// Package auth is the whitelist lookup, key/IP/expiry validator, and
// sliding-window lockout tracker. It also gates the admin credential
// rotation commands behind an optional TOTP second factor.
package auth

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Entry is one whitelist record. Entries are seeded from the main config
// document's whitelist_keys and then owned (read and rewritten) by this
// package, since admin commands mutate them at runtime. Changes are saved to
// this package's own whitelist file, not written back into the config
// document.
type Entry struct {
	UserID      int64      `json:"user_id"`
	AccessKey   string     `json:"access_key"`
	ServerIP    string     `json:"server_ip,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Admin       bool       `json:"admin,omitempty"`
	TOTPSecret  string     `json:"totp_secret,omitempty"`
}

// DenyReason classifies a Denied outcome.
type DenyReason string

const (
	ReasonNotWhitelisted DenyReason = "not_whitelisted"
	ReasonIPMismatch     DenyReason = "ip_mismatch"
	ReasonExpired        DenyReason = "expired"
	ReasonBadKey         DenyReason = "bad_key"
)

// OutcomeKind distinguishes the three login outcomes.
type OutcomeKind int

const (
	Granted OutcomeKind = iota
	Denied
	LockedOut
)

// Outcome is the result of Login.
type Outcome struct {
	Kind   OutcomeKind
	Reason DenyReason // set when Kind == Denied
	Until  time.Time  // set when Kind == LockedOut
}

// Config controls lockout bookkeeping.
type Config struct {
	MaxFailures          int
	FailureWindowSeconds int
	LockoutSeconds       int
}

type lockoutState struct {
	failures []time.Time
	lockedUntil time.Time
}

// Manager owns the whitelist and the per-IP lockout ring.
type Manager struct {
	mu      sync.Mutex
	path    string
	cfg     Config
	entries map[int64]Entry
	lockout map[string]*lockoutState
	now     func() time.Time
}

func New(path string, cfg Config) *Manager {
	return &Manager{
		path:    path,
		cfg:     cfg,
		entries: make(map[int64]Entry),
		lockout: make(map[string]*lockoutState),
		now:     time.Now,
	}
}

type document struct {
	Whitelist map[int64]Entry `json:"whitelist"`
}

// Load reads the persisted whitelist, tolerating absence as empty.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("auth: load: %w", err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("auth: parse: %w", err)
	}
	if doc.Whitelist != nil {
		m.entries = doc.Whitelist
	}
	return nil
}

// Seed installs initial whitelist entries from config, without overwriting
// entries already present (e.g. reloaded from a prior rotation).
func (m *Manager) Seed(entries []Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		if _, exists := m.entries[e.UserID]; !exists {
			m.entries[e.UserID] = e
		}
	}
}

func (m *Manager) save() error {
	doc := document{Whitelist: m.entries}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("auth: marshal: %w", err)
	}
	dir := filepath.Dir(m.path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("auth: mkdir: %w", err)
		}
	}
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("auth: write tmp: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("auth: rename: %w", err)
	}
	return nil
}

func (m *Manager) recordFailure(claimedIP string) {
	st, ok := m.lockout[claimedIP]
	if !ok {
		st = &lockoutState{}
		m.lockout[claimedIP] = st
	}
	now := m.now()
	window := time.Duration(m.cfg.FailureWindowSeconds) * time.Second
	cutoff := now.Add(-window)
	kept := st.failures[:0]
	for _, t := range st.failures {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	st.failures = kept
	if m.cfg.MaxFailures > 0 && len(st.failures) >= m.cfg.MaxFailures {
		st.lockedUntil = now.Add(time.Duration(m.cfg.LockoutSeconds) * time.Second)
	}
}

func (m *Manager) lockedUntil(claimedIP string) (time.Time, bool) {
	st, ok := m.lockout[claimedIP]
	if !ok {
		return time.Time{}, false
	}
	if st.lockedUntil.IsZero() || !st.lockedUntil.After(m.now()) {
		return time.Time{}, false
	}
	return st.lockedUntil, true
}

// Login runs the full §4.D decision sequence: lockout short-circuit,
// whitelist lookup, IP pin, expiry, constant-time key compare.
func (m *Manager) Login(userID int64, claimedIP, key string) Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()

	if until, locked := m.lockedUntil(claimedIP); locked {
		return Outcome{Kind: LockedOut, Until: until}
	}

	entry, ok := m.entries[userID]
	if !ok {
		m.recordFailure(claimedIP)
		return Outcome{Kind: Denied, Reason: ReasonNotWhitelisted}
	}
	if entry.ServerIP != "" && entry.ServerIP != claimedIP {
		m.recordFailure(claimedIP)
		return Outcome{Kind: Denied, Reason: ReasonIPMismatch}
	}
	if entry.ExpiresAt != nil && entry.ExpiresAt.Before(m.now()) {
		m.recordFailure(claimedIP)
		return Outcome{Kind: Denied, Reason: ReasonExpired}
	}
	if subtle.ConstantTimeCompare([]byte(entry.AccessKey), []byte(key)) != 1 {
		m.recordFailure(claimedIP)
		return Outcome{Kind: Denied, Reason: ReasonBadKey}
	}
	return Outcome{Kind: Granted}
}

// IsAdmin reports whether userID's whitelist entry carries the admin flag.
func (m *Manager) IsAdmin(userID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[userID]
	return ok && e.Admin
}

// Get returns a copy of a whitelist entry.
func (m *Manager) Get(userID int64) (Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[userID]
	return e, ok
}

// UpdateKey sets a new access key (and optional expiry) for userID.
func (m *Manager) UpdateKey(userID int64, newKey string, expiresAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[userID]
	if !ok {
		e = Entry{UserID: userID}
	}
	e.AccessKey = newKey
	e.ExpiresAt = expiresAt
	m.entries[userID] = e
	return m.save()
}

// SetEntryFlags sets the server-IP pin and admin flag on an existing entry.
// An empty serverIP leaves any existing pin in place.
func (m *Manager) SetEntryFlags(userID int64, serverIP string, admin bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[userID]
	if !ok {
		return fmt.Errorf("auth: unknown user %d", userID)
	}
	if serverIP != "" {
		e.ServerIP = serverIP
	}
	e.Admin = admin
	m.entries[userID] = e
	return m.save()
}

// RevokeKey removes a whitelist entry entirely.
func (m *Manager) RevokeKey(userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, userID)
	return m.save()
}

// SetTOTPSecret installs a TOTP secret for an admin entry (enrollment).
func (m *Manager) SetTOTPSecret(userID int64, secret string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[userID]
	if !ok {
		return fmt.Errorf("auth: unknown user %d", userID)
	}
	e.TOTPSecret = secret
	m.entries[userID] = e
	return m.save()
}

// RequiresTOTP reports whether userID has a TOTP secret enrolled.
func (m *Manager) RequiresTOTP(userID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[userID]
	return ok && e.TOTPSecret != ""
}
