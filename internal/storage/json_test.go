package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/eihwaz/internal/models"
)

func TestJSONFile_LoadMissing(t *testing.T) {
	p := NewJSONFile(filepath.Join(t.TempDir(), "tags.json"))

	if p.Exists() {
		t.Fatal("Exists should be false before first save")
	}
	st, err := p.Load()
	if err != nil {
		t.Fatalf("missing file should load as empty store: %v", err)
	}
	if len(st.Tags) != 0 || len(st.Files) != 0 {
		t.Fatal("empty store expected")
	}
	if st.Aliases == nil {
		t.Fatal("aliases map must be initialised")
	}
}

func TestJSONFile_RoundTrip(t *testing.T) {
	p := NewJSONFile(filepath.Join(t.TempDir(), "tags.json"))

	st := models.NewStore()
	shown := true
	st.Tags = append(st.Tags,
		&models.Tag{Name: "media", Kind: models.KindNormal, Children: []string{"video"}, Show: &shown},
		&models.Tag{Name: "video", Kind: models.KindDud, Ancestry: []string{"media"}, Show: &shown, Files: []string{"11"}},
	)
	st.Aliases["m"] = "media"
	st.Files = append(st.Files, models.FileRecord{LastKnownName: "a.txt", FileInode: 11, ParentDirInode: 4})

	if err := p.Save(st); err != nil {
		t.Fatal(err)
	}
	if !p.Exists() {
		t.Fatal("Exists should be true after save")
	}

	loaded, err := p.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded.Tags) != 2 {
		t.Fatalf("got %d tags, want 2", len(loaded.Tags))
	}
	if loaded.Tag("video") == nil {
		t.Fatal("name index must be rebuilt on load")
	}
	if loaded.CanonicalName("m") != "media" {
		t.Error("aliases lost in round trip")
	}
	rec := loaded.RecordByInode(11)
	if rec == nil || rec.LastKnownName != "a.txt" || rec.ParentDirInode != 4 {
		t.Errorf("file record lost in round trip: %+v", rec)
	}
}

func TestJSONFile_SaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	p := NewJSONFile(filepath.Join(dir, "tags.json"))
	if err := p.Save(models.NewStore()); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".eihwaz-tmp-") {
			t.Errorf("stray temp file %s", e.Name())
		}
	}
}

func TestJSONFile_SaveCreatesParentDir(t *testing.T) {
	p := NewJSONFile(filepath.Join(t.TempDir(), "nested", "deep", "tags.json"))
	if err := p.Save(models.NewStore()); err != nil {
		t.Fatal(err)
	}
	if !p.Exists() {
		t.Fatal("store document missing after save into nested dir")
	}
}

func TestJSONFile_LoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tags.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewJSONFile(path).Load(); err == nil {
		t.Fatal("corrupt document should fail to load")
	}
}
