package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/starford/eihwaz/internal/identity"
	"github.com/starford/eihwaz/internal/tagservice"
	"github.com/starford/eihwaz/internal/testutil"
)

const testDoc = `+- fruit:
    - apple
    - banana
`

type testEnv struct {
	router  http.Handler
	root    string
	file    string
	changes []string
}

func newEnv(t *testing.T, authEnabled bool, token string) *testEnv {
	t.Helper()
	root := t.TempDir()
	_, provider := testutil.TestStore(t)
	svc := tagservice.New(provider, identity.NewResolver(root, 2, nil), nil, nil)

	defPath := testutil.WriteFile(t, root, "tags.ents", testDoc)
	env := &testEnv{
		root: root,
		file: testutil.WriteFile(t, root, "list.txt", "x"),
	}
	h := NewHandler(svc, defPath, func(kind, detail string) {
		env.changes = append(env.changes, kind)
	})
	env.router = NewRouter(h, authEnabled, token, nil)
	return env
}

func (e *testEnv) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(data)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, rd)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) apply(t *testing.T) {
	t.Helper()
	if w := e.do(t, http.MethodPost, "/apply", nil); w.Code != http.StatusOK {
		t.Fatalf("apply: status %d: %s", w.Code, w.Body)
	}
}

func TestApplyAndListTags(t *testing.T) {
	env := newEnv(t, false, "")
	env.apply(t)

	w := env.do(t, http.MethodGet, "/tags", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var resp TagListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Tags) != 3 {
		t.Fatalf("tags = %+v, want 3", resp.Tags)
	}
	if resp.Tags[0].Kind != "exclusive" {
		t.Errorf("first tag kind = %q", resp.Tags[0].Kind)
	}
}

func TestApply_BadDocument(t *testing.T) {
	env := newEnv(t, false, "")
	bad := testutil.WriteFile(t, env.root, "bad.ents", "  - nope\n")

	w := env.do(t, http.MethodPost, "/apply", ApplyRequest{Definition: bad})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status %d, want 422", w.Code)
	}
}

func TestAssignFlow(t *testing.T) {
	env := newEnv(t, false, "")
	env.apply(t)

	w := env.do(t, http.MethodPost, "/assign", AssignRequest{File: env.file, Tags: []string{"apple"}})
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body)
	}
	var resp AssignResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Reports) != 1 || resp.Reports[0].Rejected {
		t.Fatalf("reports = %+v", resp.Reports)
	}

	w = env.do(t, http.MethodGet, "/filter?tag=fruit", nil)
	var files FilesResponse
	if err := json.Unmarshal(w.Body.Bytes(), &files); err != nil {
		t.Fatal(err)
	}
	if len(files.Files) != 1 || files.Files[0] != "list.txt" {
		t.Errorf("files = %+v", files.Files)
	}

	// apply + assign mutations both notified.
	if len(env.changes) != 2 {
		t.Errorf("changes = %v, want apply + assign", env.changes)
	}
}

func TestAssign_ConstraintReportedNotError(t *testing.T) {
	env := newEnv(t, false, "")
	env.apply(t)

	if w := env.do(t, http.MethodPost, "/assign", AssignRequest{File: env.file, Tags: []string{"apple"}}); w.Code != http.StatusOK {
		t.Fatal(w.Code)
	}

	// Exclusive parent over a held child: a per-op rejection, HTTP 200.
	w := env.do(t, http.MethodPost, "/assign", AssignRequest{File: env.file, Tags: []string{"fruit"}})
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var resp AssignResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Reports) != 1 || !resp.Reports[0].Rejected {
		t.Fatalf("reports = %+v, want a rejection", resp.Reports)
	}
}

func TestAssign_BadRequests(t *testing.T) {
	env := newEnv(t, false, "")
	env.apply(t)

	if w := env.do(t, http.MethodPost, "/assign", AssignRequest{}); w.Code != http.StatusBadRequest {
		t.Errorf("empty body fields: status %d", w.Code)
	}
	req := httptest.NewRequest(http.MethodPost, "/assign", bytes.NewReader([]byte("{bad")))
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("malformed JSON: status %d", w.Code)
	}
}

func TestRemove(t *testing.T) {
	env := newEnv(t, false, "")
	env.apply(t)

	env.do(t, http.MethodPost, "/assign", AssignRequest{File: env.file, Tags: []string{"banana"}})
	w := env.do(t, http.MethodPost, "/remove", AssignRequest{File: env.file, Tags: []string{"banana"}})
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}

	w = env.do(t, http.MethodGet, "/filter?tag=banana", nil)
	var files FilesResponse
	if err := json.Unmarshal(w.Body.Bytes(), &files); err != nil {
		t.Fatal(err)
	}
	if len(files.Files) != 0 {
		t.Errorf("files = %+v, want none", files.Files)
	}
}

func TestFilter_UnknownTag(t *testing.T) {
	env := newEnv(t, false, "")
	env.apply(t)

	w := env.do(t, http.MethodGet, "/filter?tag=nope", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status %d, want 404", w.Code)
	}
}

func TestFilter_MissingParam(t *testing.T) {
	env := newEnv(t, false, "")
	if w := env.do(t, http.MethodGet, "/filter", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", w.Code)
	}
}

func TestIntersect(t *testing.T) {
	env := newEnv(t, false, "")
	env.apply(t)

	other := testutil.WriteFile(t, env.root, "other.txt", "y")
	env.do(t, http.MethodPost, "/assign", AssignRequest{File: env.file, Tags: []string{"apple", "banana"}})
	env.do(t, http.MethodPost, "/assign", AssignRequest{File: other, Tags: []string{"banana"}})

	w := env.do(t, http.MethodGet, "/intersect?tag=apple&tag=banana", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var files FilesResponse
	if err := json.Unmarshal(w.Body.Bytes(), &files); err != nil {
		t.Fatal(err)
	}
	if len(files.Files) != 1 || files.Files[0] != "list.txt" {
		t.Errorf("files = %+v", files.Files)
	}
}

func TestInspect(t *testing.T) {
	env := newEnv(t, false, "")
	env.apply(t)
	env.do(t, http.MethodPost, "/assign", AssignRequest{File: env.file, Tags: []string{"apple"}})

	w := env.do(t, http.MethodGet, "/inspect?file="+env.file, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var resp InspectResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Files) != 1 || len(resp.Files[0].Tags) != 1 || resp.Files[0].Tags[0] != "fruit/apple" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestAuth(t *testing.T) {
	env := newEnv(t, true, "secret")

	w := env.do(t, http.MethodGet, "/tags", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status %d, want 401", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/tags", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token: status %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/tags", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("valid token: status %d, want 200", rec.Code)
	}
}

func TestSearch_WithoutIndex(t *testing.T) {
	env := newEnv(t, false, "")
	// No index configured in the test service: surfaced as 500.
	if w := env.do(t, http.MethodGet, "/search?q=x", nil); w.Code != http.StatusInternalServerError {
		t.Fatalf("status %d, want 500", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/search", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("missing q: status %d, want 400", w.Code)
	}
}

func TestInspect_MissingFileYieldsEmptyTags(t *testing.T) {
	env := newEnv(t, false, "")
	env.apply(t)

	target := "/inspect?file=" + filepath.Join(env.root, "ghost.txt")
	w := env.do(t, http.MethodGet, target, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var resp InspectResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Files) != 1 || len(resp.Files[0].Tags) != 0 {
		t.Errorf("resp = %+v, want empty tag list", resp)
	}
}
