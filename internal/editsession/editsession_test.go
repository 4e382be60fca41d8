package editsession

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestManager(t *testing.T) (*Manager, string) {
	t.Helper()
	root := t.TempDir()
	return New(root), root
}

func TestOpenThenSave_WritesContent(t *testing.T) {
	m, root := newTestManager(t)
	path := filepath.Join(root, "notes.txt")
	if err := os.WriteFile(path, []byte("original"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	content, err := m.Open(1, "notes.txt")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if content != "original" {
		t.Fatalf("expected original content, got %q", content)
	}

	if err := m.Save(1, "hello"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("expected replaced content, got %q", data)
	}
	if m.IsOpen(1) {
		t.Fatalf("expected session closed after save")
	}
}

func TestOpen_RejectsSecondConcurrentSession(t *testing.T) {
	m, root := newTestManager(t)
	os.WriteFile(filepath.Join(root, "a.txt"), []byte("a"), 0o644)
	os.WriteFile(filepath.Join(root, "b.txt"), []byte("b"), 0o644)

	if _, err := m.Open(1, "a.txt"); err != nil {
		t.Fatalf("first Open: %v", err)
	}
	if _, err := m.Open(1, "b.txt"); err != ErrEditOpen {
		t.Fatalf("expected ErrEditOpen, got %v", err)
	}
}

func TestCancel_NoWriteOccurs(t *testing.T) {
	m, root := newTestManager(t)
	path := filepath.Join(root, "notes.txt")
	os.WriteFile(path, []byte("original"), 0o644)

	if _, err := m.Open(1, "notes.txt"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := m.Cancel(1); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	data, _ := os.ReadFile(path)
	if string(data) != "original" {
		t.Fatalf("cancel must not write; got %q", data)
	}
	if m.IsOpen(1) {
		t.Fatalf("expected no open session after cancel")
	}
}

func TestValidatePath_RejectsEscape(t *testing.T) {
	m, _ := newTestManager(t)
	if _, err := m.Open(1, "../../etc/passwd"); err == nil {
		t.Fatalf("expected path escape to be rejected")
	}
}

func TestListFiles_ExcludesDirsAndRecursion(t *testing.T) {
	m, root := newTestManager(t)
	os.WriteFile(filepath.Join(root, "a.txt"), []byte("a"), 0o644)
	os.Mkdir(filepath.Join(root, "subdir"), 0o755)
	os.WriteFile(filepath.Join(root, "subdir", "nested.txt"), []byte("n"), 0o644)

	entries, err := m.ListFiles(".", 0)
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "a.txt" {
		t.Fatalf("expected only a.txt, got %+v", entries)
	}
}
