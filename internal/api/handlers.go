package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/starford/eihwaz/internal/apperr"
	"github.com/starford/eihwaz/internal/index"
	"github.com/starford/eihwaz/internal/relation"
	"github.com/starford/eihwaz/internal/tagservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc *tagservice.Service
	// defPath is the server's configured definition document, used when
	// an apply request names none.
	defPath string
	// onChange, if non-nil, runs after any mutation (SSE notification).
	onChange func(kind, detail string)
}

// NewHandler creates a new Handler.
func NewHandler(svc *tagservice.Service, defPath string, onChange func(kind, detail string)) *Handler {
	return &Handler{svc: svc, defPath: defPath, onChange: onChange}
}

func (h *Handler) notify(kind, detail string) {
	if h.onChange != nil {
		h.onChange(kind, detail)
	}
}

// ListTags handles GET /api/tags.
func (h *Handler) ListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.svc.ListTags(r.Context())
	if err != nil {
		slog.Error("list tags failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if tags == nil {
		tags = []tagservice.TagInfo{}
	}
	writeJSON(w, http.StatusOK, TagListResponse{Tags: tags})
}

// Filter handles GET /api/filter?tag=a&tag=b (union mode).
func (h *Handler) Filter(w http.ResponseWriter, r *http.Request) {
	h.runQuery(w, r, h.svc.Filter)
}

// Intersect handles GET /api/intersect?tag=a&tag=b.
func (h *Handler) Intersect(w http.ResponseWriter, r *http.Request) {
	h.runQuery(w, r, h.svc.Intersect)
}

func (h *Handler) runQuery(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, tags []string) ([]string, error)) {
	tags := r.URL.Query()["tag"]
	if len(tags) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("at least one tag query parameter is required"))
		return
	}
	files, err := fn(r.Context(), tags)
	if err != nil {
		if errors.Is(err, apperr.ErrTagNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody(err.Error()))
			return
		}
		slog.Error("query failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if files == nil {
		files = []string{}
	}
	writeJSON(w, http.StatusOK, FilesResponse{Files: files})
}

// Inspect handles GET /api/inspect?file=a&file=b.
func (h *Handler) Inspect(w http.ResponseWriter, r *http.Request) {
	files := r.URL.Query()["file"]
	if len(files) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("at least one file query parameter is required"))
		return
	}
	out, err := h.svc.Inspect(r.Context(), files)
	if err != nil {
		slog.Error("inspect failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if out == nil {
		out = []tagservice.FileTags{}
	}
	writeJSON(w, http.StatusOK, InspectResponse{Files: out})
}

// Search handles GET /api/search?q=&limit=.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("q is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		slog.Error("search failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if results == nil {
		results = []index.SearchResult{}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// Assign handles POST /api/assign.
func (h *Handler) Assign(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, relation.OpAdd)
}

// Remove handles POST /api/remove.
func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, relation.OpRemove)
}

func (h *Handler) mutate(w http.ResponseWriter, r *http.Request, op relation.Op) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req AssignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.File == "" || len(req.Tags) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("file and tags are required"))
		return
	}

	reports, err := h.svc.FileToTags(r.Context(), op, req.File, req.Tags)
	if err != nil {
		if tagservice.IsDomain(err) {
			writeJSON(w, http.StatusConflict, errorBody(err.Error()))
			return
		}
		slog.Error("assign failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}

	out := make([]OpReport, len(reports))
	accepted := false
	for i, rep := range reports {
		out[i] = reportDTO(rep)
		if !rep.Rejected() {
			accepted = true
		}
	}
	if accepted {
		h.notify("updated", req.File)
	}
	writeJSON(w, http.StatusOK, AssignResponse{Reports: out})
}

// Apply handles POST /api/apply.
func (h *Handler) Apply(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req ApplyRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
			return
		}
	}
	defPath := req.Definition
	if defPath == "" {
		defPath = h.defPath
	}

	if err := h.svc.ApplyDefinition(r.Context(), defPath); err != nil {
		slog.Error("apply failed", slog.String("definition", defPath), slog.String("error", err.Error()))
		writeJSON(w, http.StatusUnprocessableEntity, errorBody(err.Error()))
		return
	}
	h.notify("applied", defPath)
	writeJSON(w, http.StatusOK, map[string]string{"status": "applied", "definition": defPath})
}
