package identity

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/eihwaz/internal/apperr"
	"github.com/starford/eihwaz/internal/models"
)

func writeFile(t *testing.T, dir, rel string) string {
	t.Helper()
	full := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	return full
}

func TestResolve_DirectStat(t *testing.T) {
	root := t.TempDir()
	full := writeFile(t, root, "docs/report.txt")
	r := NewResolver(root, 2, nil)
	st := models.NewStore()

	inode, dirty, err := r.Resolve(full, st)
	if err != nil {
		t.Fatal(err)
	}
	if inode == 0 {
		t.Fatal("inode must be non-zero")
	}
	if !dirty {
		t.Fatal("first resolve should register a record")
	}

	rec := st.RecordByInode(inode)
	if rec == nil {
		t.Fatal("record missing after resolve")
	}
	if rec.LastKnownName != filepath.Join("docs", "report.txt") {
		t.Errorf("path should be root-relative, got %q", rec.LastKnownName)
	}
	if rec.ParentDirInode == 0 {
		t.Error("parent dir inode must be recorded")
	}
}

func TestResolve_RegistryFastPath(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt")
	r := NewResolver(root, 2, nil)
	st := models.NewStore()
	st.UpsertRecord(models.FileRecord{LastKnownName: "ghost.txt", FileInode: 99, ParentDirInode: 1})

	// The registry answers by last known name without touching the disk.
	inode, dirty, err := r.Resolve("ghost.txt", st)
	if err != nil {
		t.Fatal(err)
	}
	if inode != 99 {
		t.Errorf("inode = %d, want registry value 99", inode)
	}
	if dirty {
		t.Error("fast path must not mark the store dirty")
	}
}

func TestResolve_ScanByNameCaseInsensitive(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "deep/nested/Report.PDF")
	r := NewResolver(root, 2, nil)
	st := models.NewStore()

	// Wrong directory and wrong case; only the basename matches.
	inode, _, err := r.Resolve(filepath.Join(root, "elsewhere", "report.pdf"), st)
	if err != nil {
		t.Fatal(err)
	}
	rec := st.RecordByInode(inode)
	if rec == nil || rec.LastKnownName != filepath.Join("deep", "nested", "Report.PDF") {
		t.Fatalf("scan should find the real file, got %+v", rec)
	}
}

func TestResolve_NotFound(t *testing.T) {
	r := NewResolver(t.TempDir(), 2, nil)
	_, _, err := r.Resolve("absent.txt", models.NewStore())
	if !errors.Is(err, apperr.ErrFileNotFound) {
		t.Fatalf("err = %v, want ErrFileNotFound", err)
	}
}

func TestPathByInode(t *testing.T) {
	root := t.TempDir()
	full := writeFile(t, root, "old/name.txt")
	r := NewResolver(root, 2, nil)
	st := models.NewStore()

	inode, _, err := r.Resolve(full, st)
	if err != nil {
		t.Fatal(err)
	}

	// Move the file; the inode survives the rename.
	moved := filepath.Join(root, "new-name.txt")
	if err := os.Rename(full, moved); err != nil {
		t.Fatal(err)
	}

	got, err := r.PathByInode(inode)
	if err != nil {
		t.Fatal(err)
	}
	if got != "new-name.txt" {
		t.Errorf("PathByInode = %q, want %q", got, "new-name.txt")
	}
}

func TestPathByInode_Gone(t *testing.T) {
	r := NewResolver(t.TempDir(), 2, nil)
	_, err := r.PathByInode(123456789)
	if !errors.Is(err, apperr.ErrFileNotFound) {
		t.Fatalf("err = %v, want ErrFileNotFound", err)
	}
}
