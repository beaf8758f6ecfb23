package tagservice

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/eihwaz/internal/apperr"
	"github.com/starford/eihwaz/internal/identity"
	"github.com/starford/eihwaz/internal/relation"
	"github.com/starford/eihwaz/internal/storage"
	"github.com/starford/eihwaz/internal/testutil"
)

const groceryDoc = `+- fruit:
    - apple (a)
    - banana
+ kitchen:
    - pantry
`

// fixture sets up a scan root with a definition document already applied
// and a couple of files on disk.
type fixture struct {
	svc      *Service
	root     string
	defPath  string
	provider storage.Provider
	files    map[string]string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	_, provider := testutil.TestStore(t)

	defPath := testutil.WriteFile(t, root, "tags.ents", groceryDoc)
	f := &fixture{
		svc:      New(provider, identity.NewResolver(root, 2, nil), nil, nil),
		root:     root,
		defPath:  defPath,
		provider: provider,
		files: map[string]string{
			"list": testutil.WriteFile(t, root, "list.txt", "milk"),
			"memo": testutil.WriteFile(t, root, "notes/memo.txt", "memo"),
		},
	}
	if err := f.svc.ApplyDefinition(context.Background(), defPath); err != nil {
		t.Fatal(err)
	}
	return f
}

func TestApplyDefinition(t *testing.T) {
	f := newFixture(t)

	st, err := f.provider.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(st.Tags) != 5 {
		t.Fatalf("got %d tags, want 5", len(st.Tags))
	}
	if st.ResolveVisible("a") == nil {
		t.Error("alias from the definition should resolve")
	}
	if !f.provider.Exists() {
		t.Error("store document should be persisted")
	}
}

func TestApplyDefinition_ParseErrorLeavesStoreUntouched(t *testing.T) {
	f := newFixture(t)
	bad := testutil.WriteFile(t, f.root, "bad.ents", "  - wrong indent\n")

	err := f.svc.ApplyDefinition(context.Background(), bad)
	if err == nil {
		t.Fatal("bad document must fail")
	}
	st, _ := f.provider.Load()
	if len(st.Tags) != 5 {
		t.Error("failed apply must not alter the store")
	}
}

func TestFileToTags_AssignAndPersist(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reports, err := f.svc.FileToTags(ctx, relation.OpAdd, f.files["list"], []string{"apple"})
	if err != nil {
		t.Fatal(err)
	}
	if len(reports) != 1 || reports[0].Rejected() {
		t.Fatalf("reports = %+v", reports)
	}

	// A second service instance sees the persisted link.
	files, err := f.svc.Filter(ctx, []string{"apple"})
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files[0] != "list.txt" {
		t.Errorf("files = %v", files)
	}
}

func TestFileToTags_BatchContinuesPastRejection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// kitchen is a dud: rejected, but banana after it still succeeds and
	// the accumulated change is persisted.
	reports, err := f.svc.FileToTags(ctx, relation.OpAdd, f.files["list"],
		[]string{"apple", "kitchen", "banana"})
	if err != nil {
		t.Fatal(err)
	}
	if len(reports) != 3 {
		t.Fatalf("got %d reports, want 3", len(reports))
	}
	if reports[0].Rejected() || !reports[1].Rejected() || reports[2].Rejected() {
		t.Fatalf("reports = %+v", reports)
	}
	if !strings.Contains(reports[1].Err.Error(), "dud") {
		t.Errorf("rejection = %v", reports[1].Err)
	}

	out, err := f.svc.Inspect(ctx, []string{f.files["list"]})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"fruit/apple", "fruit/banana"}
	if strings.Join(out[0].Tags, ",") != strings.Join(want, ",") {
		t.Errorf("tags = %v, want %v", out[0].Tags, want)
	}
}

func TestFileToTags_MissingFileIsDomainError(t *testing.T) {
	f := newFixture(t)

	reports, err := f.svc.FileToTags(context.Background(), relation.OpAdd,
		filepath.Join(f.root, "ghost.txt"), []string{"apple"})
	if err != nil {
		t.Fatal(err)
	}
	if len(reports) != 1 || !errors.Is(reports[0].Err, apperr.ErrFileNotFound) {
		t.Fatalf("reports = %+v, want file-not-found rejection", reports)
	}
}

func TestTagToFiles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reports, err := f.svc.TagToFiles(ctx, relation.OpAdd, "banana",
		[]string{f.files["list"], f.files["memo"]})
	if err != nil {
		t.Fatal(err)
	}
	if len(reports) != 2 {
		t.Fatalf("got %d reports, want 2", len(reports))
	}

	files, err := f.svc.Filter(ctx, []string{"banana"})
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 {
		t.Errorf("files = %v, want both", files)
	}
}

func TestTagToFiles_DudRejectsWholeBatch(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.TagToFiles(context.Background(), relation.OpAdd, "kitchen",
		[]string{f.files["list"]})
	if !errors.Is(err, apperr.ErrConstraint) {
		t.Fatalf("err = %v, want upfront dud rejection", err)
	}

	files, _ := f.svc.Filter(context.Background(), []string{"fruit"})
	if len(files) != 0 {
		t.Error("no link may be created by a rejected batch")
	}
}

func TestTagToFiles_UnknownTag(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.TagToFiles(context.Background(), relation.OpAdd, "vegetable",
		[]string{f.files["list"]})
	if !errors.Is(err, apperr.ErrTagNotFound) {
		t.Fatalf("err = %v, want ErrTagNotFound", err)
	}
	if !strings.Contains(err.Error(), "tag does not exist") {
		t.Errorf("message = %q", err.Error())
	}
}

func TestTagToFiles_RemoveDudAllowed(t *testing.T) {
	f := newFixture(t)

	// Removal from a dud is a no-op per file, not an upfront rejection.
	reports, err := f.svc.TagToFiles(context.Background(), relation.OpRemove, "kitchen",
		[]string{f.files["list"]})
	if err != nil {
		t.Fatal(err)
	}
	if len(reports) != 1 || reports[0].Rejected() {
		t.Fatalf("reports = %+v", reports)
	}
}

func TestIntersect(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.FileToTags(ctx, relation.OpAdd, f.files["list"], []string{"apple", "pantry"}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.FileToTags(ctx, relation.OpAdd, f.files["memo"], []string{"pantry"}); err != nil {
		t.Fatal(err)
	}

	files, err := f.svc.Intersect(ctx, []string{"apple", "pantry"})
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files[0] != "list.txt" {
		t.Errorf("files = %v, want only list.txt", files)
	}
}

func TestListTags(t *testing.T) {
	f := newFixture(t)

	tags, err := f.svc.ListTags(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(tags) != 5 {
		t.Fatalf("got %d tags, want 5", len(tags))
	}
	if tags[0].Name != "fruit" || tags[0].Path != "fruit" {
		t.Errorf("first tag = %+v, want store order", tags[0])
	}
	if tags[1].Path != "fruit/apple" {
		t.Errorf("path = %q", tags[1].Path)
	}
}

func TestListTags_SkipsHidden(t *testing.T) {
	f := newFixture(t)

	// Re-apply a definition that drops banana.
	slim := testutil.WriteFile(t, f.root, "slim.ents", "+- fruit:\n    - apple (a)\n")
	if err := f.svc.ApplyDefinition(context.Background(), slim); err != nil {
		t.Fatal(err)
	}

	tags, err := f.svc.ListTags(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	for _, tag := range tags {
		if tag.Name == "banana" {
			t.Error("hidden tag leaked into listing")
		}
	}
}

func TestSearch_NoIndexConfigured(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Search(context.Background(), "x", 10); err == nil {
		t.Fatal("search without an index must error")
	}
}

func TestSearch_WithIndex(t *testing.T) {
	root := t.TempDir()
	_, provider := testutil.TestStore(t)
	db := testutil.TestDB(t)
	svc := New(provider, identity.NewResolver(root, 2, nil), db, nil)

	defPath := testutil.WriteFile(t, root, "tags.ents", groceryDoc)
	if err := svc.ApplyDefinition(context.Background(), defPath); err != nil {
		t.Fatal(err)
	}

	results, err := svc.Search(context.Background(), "apple", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Path != "fruit/apple" {
		t.Errorf("results = %+v", results)
	}
}

func TestWatchDefinition_AppliesOnChange(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	applied := make(chan string, 1)
	done := make(chan error, 1)
	go func() {
		done <- f.svc.WatchDefinition(ctx, f.defPath, func(p string) { applied <- p })
	}()

	// Give the watcher a moment to install, then rewrite the document.
	time.Sleep(300 * time.Millisecond)
	if err := os.WriteFile(f.defPath, []byte(groceryDoc+"- extra\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-applied:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not apply the changed definition")
	}

	st, _ := f.provider.Load()
	if st.VisibleTag("extra") == nil {
		t.Error("reconciled store missing the new tag")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("watcher returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop on cancel")
	}
}
