package auth

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m := New(filepath.Join(t.TempDir(), "whitelist.json"), Config{
		MaxFailures:          3,
		FailureWindowSeconds: 60,
		LockoutSeconds:       120,
	})
	if err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	m.Seed([]Entry{{UserID: 42, AccessKey: "k", ServerIP: "1.2.3.4"}})
	return m
}

func TestLogin_HappyPath(t *testing.T) {
	m := newTestManager(t)
	out := m.Login(42, "1.2.3.4", "k")
	if out.Kind != Granted {
		t.Fatalf("expected Granted, got %+v", out)
	}
}

func TestLogin_IPMismatch(t *testing.T) {
	m := newTestManager(t)
	out := m.Login(42, "9.9.9.9", "k")
	if out.Kind != Denied || out.Reason != ReasonIPMismatch {
		t.Fatalf("expected ip_mismatch, got %+v", out)
	}
}

func TestLogin_NotWhitelisted(t *testing.T) {
	m := newTestManager(t)
	out := m.Login(999, "1.2.3.4", "k")
	if out.Kind != Denied || out.Reason != ReasonNotWhitelisted {
		t.Fatalf("expected not_whitelisted, got %+v", out)
	}
}

func TestLogin_Expired(t *testing.T) {
	m := newTestManager(t)
	past := time.Now().Add(-time.Hour)
	m.entries[42] = Entry{UserID: 42, AccessKey: "k", ExpiresAt: &past}
	out := m.Login(42, "", "k")
	if out.Kind != Denied || out.Reason != ReasonExpired {
		t.Fatalf("expected expired, got %+v", out)
	}
}

func TestLogin_BadKey(t *testing.T) {
	m := newTestManager(t)
	out := m.Login(42, "1.2.3.4", "wrong")
	if out.Kind != Denied || out.Reason != ReasonBadKey {
		t.Fatalf("expected bad_key, got %+v", out)
	}
}

func TestLogin_LockoutAfterMaxFailures(t *testing.T) {
	m := newTestManager(t)
	for i := 0; i < 3; i++ {
		out := m.Login(42, "1.2.3.4", "wrong")
		if out.Kind != Denied {
			t.Fatalf("attempt %d: expected Denied, got %+v", i, out)
		}
	}
	out := m.Login(42, "1.2.3.4", "k") // even with the correct key now
	if out.Kind != LockedOut {
		t.Fatalf("expected LockedOut after max failures, got %+v", out)
	}
	if !out.Until.After(time.Now()) {
		t.Fatalf("expected lockout to extend into the future, got %v", out.Until)
	}
}

func TestLogin_LockoutIsPerIP(t *testing.T) {
	m := newTestManager(t)
	for i := 0; i < 3; i++ {
		m.Login(42, "1.2.3.4", "wrong")
	}
	// A different claimed IP is unaffected by 1.2.3.4's lockout.
	out := m.Login(42, "5.6.7.8", "k")
	if out.Kind == LockedOut {
		t.Fatalf("lockout must be scoped to the offending IP, got %+v", out)
	}
}

func TestUpdateKey_PersistsAcrossReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "whitelist.json")
	m := New(path, Config{MaxFailures: 3, FailureWindowSeconds: 60, LockoutSeconds: 120})
	if err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	m.Seed([]Entry{{UserID: 1, AccessKey: "old"}})
	if err := m.UpdateKey(1, "new", nil); err != nil {
		t.Fatalf("UpdateKey: %v", err)
	}

	m2 := New(path, Config{})
	if err := m2.Load(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	entry, ok := m2.Get(1)
	if !ok || entry.AccessKey != "new" {
		t.Fatalf("expected updated key to persist, got %+v", entry)
	}
}

func TestRevokeKey_RemovesEntry(t *testing.T) {
	m := newTestManager(t)
	if err := m.RevokeKey(42); err != nil {
		t.Fatalf("RevokeKey: %v", err)
	}
	out := m.Login(42, "1.2.3.4", "k")
	if out.Kind != Denied || out.Reason != ReasonNotWhitelisted {
		t.Fatalf("expected revoked user to be not_whitelisted, got %+v", out)
	}
}

func TestIsAdmin(t *testing.T) {
	m := newTestManager(t)
	m.Seed([]Entry{{UserID: 1, Admin: true}})
	if !m.IsAdmin(1) {
		t.Fatalf("expected user 1 to be admin")
	}
	if m.IsAdmin(42) {
		t.Fatalf("expected user 42 to not be admin")
	}
}
