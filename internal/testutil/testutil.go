// Package testutil provides shared test helpers for setting up stores,
// scratch file trees, and databases.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/eihwaz/internal/index"
	"github.com/starford/eihwaz/internal/models"
	"github.com/starford/eihwaz/internal/storage"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "eihwaz-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestStore creates a temporary registry file with a storage.Provider.
func TestStore(t *testing.T) (string, storage.Provider) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tags.json")
	return path, storage.NewJSONFile(path)
}

// WriteFile creates a file under dir with the given relative path,
// creating parent directories as needed, and returns its full path.
func WriteFile(t *testing.T, dir, rel, content string) string {
	t.Helper()
	full := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return full
}

// Forest builds a store from kind/name pairs in document order, wiring
// parent-child links from the given ancestry paths. Each spec entry is
// {Name, Kind, Ancestry}.
func Forest(t *testing.T, tags ...*models.Tag) *models.Store {
	t.Helper()
	st := models.NewStore()
	byName := make(map[string]*models.Tag, len(tags))
	for _, tag := range tags {
		if tag.Files == nil {
			tag.Files = []string{}
		}
		if tag.Show == nil {
			shown := true
			tag.Show = &shown
		}
		st.Tags = append(st.Tags, tag)
		byName[tag.Name] = tag
	}
	for _, tag := range tags {
		if n := len(tag.Ancestry); n > 0 {
			parent := byName[tag.Ancestry[n-1]]
			if parent == nil {
				t.Fatalf("unknown parent %q for tag %q", tag.Ancestry[n-1], tag.Name)
			}
			parent.Children = append(parent.Children, tag.Name)
		}
	}
	st.Reindex()
	return st
}
