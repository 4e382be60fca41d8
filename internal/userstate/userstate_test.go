package userstate

import (
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New(filepath.Join(t.TempDir(), "users.json"))
	if err := s.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return s
}

func TestGet_DefaultsOnMiss(t *testing.T) {
	s := newTestStore(t)
	st := s.Get(7)
	if st.Interval != Interval5m || st.Mode != ModeNormal || st.Authorized {
		t.Fatalf("unexpected defaults: %+v", st)
	}
}

func TestMarkAuthorized_PersistsAcrossReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	s := New(path)
	if err := s.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := s.MarkAuthorized(1, "1.2.3.4"); err != nil {
		t.Fatalf("MarkAuthorized: %v", err)
	}

	s2 := New(path)
	if err := s2.Load(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	st := s2.Get(1)
	if !st.Authorized || st.ServerIP != "1.2.3.4" {
		t.Fatalf("authorization did not persist: %+v", st)
	}
}

func TestRevoke_ClearsActiveTab(t *testing.T) {
	s := newTestStore(t)
	if err := s.MarkAuthorized(1, "1.2.3.4"); err != nil {
		t.Fatalf("MarkAuthorized: %v", err)
	}
	if err := s.SetActiveTab(1, "tab-1"); err != nil {
		t.Fatalf("SetActiveTab: %v", err)
	}
	if err := s.Revoke(1); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	st := s.Get(1)
	if st.Authorized || st.ActiveTabID != "" {
		t.Fatalf("revoke did not clear state: %+v", st)
	}
}

func TestClearActiveTabIfMissing(t *testing.T) {
	s := newTestStore(t)
	if err := s.SetActiveTab(1, "gone"); err != nil {
		t.Fatalf("SetActiveTab: %v", err)
	}
	if err := s.ClearActiveTabIfMissing(1, func(tabID string) bool { return false }); err != nil {
		t.Fatalf("ClearActiveTabIfMissing: %v", err)
	}
	if got := s.Get(1).ActiveTabID; got != "" {
		t.Fatalf("expected cleared active tab, got %q", got)
	}
}

func TestSetLastCaptureHash(t *testing.T) {
	s := newTestStore(t)
	if err := s.SetLastCaptureHash(1, "tab-a", "abc123"); err != nil {
		t.Fatalf("SetLastCaptureHash: %v", err)
	}
	st := s.Get(1)
	if st.LastCaptureHash["tab-a"] != "abc123" {
		t.Fatalf("hash not recorded: %+v", st.LastCaptureHash)
	}
}
