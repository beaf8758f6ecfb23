// Package tagservice coordinates storage, identity resolution, and the
// relationship/query/reconciliation engines behind one API shared by the
// CLI, the HTTP API, and the MCP server.
//
// Every method follows the store lifecycle from the persistence design:
// load the document, mutate in memory, save atomically when dirty.
package tagservice

import (
	"context"
	"errors"
	"log/slog"

	"github.com/starford/eihwaz/internal/apperr"
	"github.com/starford/eihwaz/internal/identity"
	"github.com/starford/eihwaz/internal/index"
	"github.com/starford/eihwaz/internal/models"
	"github.com/starford/eihwaz/internal/parser"
	"github.com/starford/eihwaz/internal/query"
	"github.com/starford/eihwaz/internal/reconcile"
	"github.com/starford/eihwaz/internal/relation"
	"github.com/starford/eihwaz/internal/storage"
)

// Service is the shared application service.
type Service struct {
	provider storage.Provider
	relation *relation.Engine
	query    *query.Engine
	idx      *index.DB // optional; nil disables search indexing
	logger   *slog.Logger
}

// New creates a Service. idx may be nil when no search index is configured.
func New(provider storage.Provider, resolver *identity.Resolver, idx *index.DB, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		provider: provider,
		relation: relation.NewEngine(resolver),
		query:    query.NewEngine(resolver, logger),
		idx:      idx,
		logger:   logger,
	}
}

// Report is the outcome of one assign/remove operation in a batch.
// Exactly one of Result and Err is set; Err always matches one of the
// apperr domain sentinels.
type Report struct {
	Result *relation.Result
	Err    error
}

// Rejected reports whether the operation was a domain rejection.
func (r Report) Rejected() bool { return r.Err != nil }

// TagInfo is a summary row for tag listings.
type TagInfo struct {
	Name     string         `json:"name"`
	Kind     models.TagKind `json:"kind"`
	Path     string         `json:"path"`
	Children []string       `json:"children,omitempty"`
	Files    int            `json:"files"`
}

// FileTags is the inspection result for one file.
type FileTags struct {
	File string   `json:"file"`
	Tags []string `json:"tags"`
}

// ApplyDefinition parses the definition document at defPath and
// reconciles it into the persisted store.
func (s *Service) ApplyDefinition(_ context.Context, defPath string) error {
	def, err := parser.ParseFile(defPath)
	if err != nil {
		return err
	}
	existing, err := s.provider.Load()
	if err != nil {
		return err
	}
	merged := reconcile.Merge(def, existing)
	if err := s.provider.Save(merged); err != nil {
		return err
	}
	index.Sync(s.idx, merged, s.logger)
	s.logger.Info("definition applied",
		slog.String("definition", defPath),
		slog.Int("tags", len(merged.Tags)))
	return nil
}

// FileToTags applies op between one file and many tags (the ftt shape).
// Domain rejections are carried per-operation in the reports; accumulated
// store changes are persisted even when later operations are rejected.
func (s *Service) FileToTags(_ context.Context, op relation.Op, filePath string, tags []string) ([]Report, error) {
	st, err := s.provider.Load()
	if err != nil {
		return nil, err
	}

	var reports []Report
	dirty := false
	for _, tagToken := range tags {
		res, changed, err := s.relation.Apply(op, filePath, tagToken, st)
		if changed {
			dirty = true
		}
		if err != nil {
			if IsDomain(err) {
				reports = append(reports, Report{Err: err})
				continue
			}
			return reports, err
		}
		reports = append(reports, Report{Result: res})
	}

	if err := s.saveIfDirty(st, dirty); err != nil {
		return reports, err
	}
	return reports, nil
}

// TagToFiles applies op between one tag and many files (the ttf shape).
// The tag is checked up front so a missing or dud tag rejects the whole
// batch before any file is touched.
func (s *Service) TagToFiles(_ context.Context, op relation.Op, tagToken string, files []string) ([]Report, error) {
	st, err := s.provider.Load()
	if err != nil {
		return nil, err
	}

	tag := st.ResolveVisible(tagToken)
	if tag == nil {
		return nil, &notFoundTag{token: tagToken}
	}
	if op == relation.OpAdd && tag.Kind == models.KindDud {
		return nil, &apperr.ConstraintError{Reason: apperr.ReasonDud, Tag: tag.Name}
	}

	var reports []Report
	dirty := false
	for _, filePath := range files {
		res, changed, err := s.relation.Apply(op, filePath, tagToken, st)
		if changed {
			dirty = true
		}
		if err != nil {
			if IsDomain(err) {
				reports = append(reports, Report{Err: err})
				continue
			}
			return reports, err
		}
		reports = append(reports, Report{Result: res})
	}

	if err := s.saveIfDirty(st, dirty); err != nil {
		return reports, err
	}
	return reports, nil
}

// Filter returns the union of files under the given tags.
func (s *Service) Filter(_ context.Context, tags []string) ([]string, error) {
	st, err := s.provider.Load()
	if err != nil {
		return nil, err
	}
	paths, dirty, err := s.query.Filter(st, tags)
	if err != nil {
		return nil, err
	}
	if err := s.saveIfDirty(st, dirty); err != nil {
		return nil, err
	}
	return paths, nil
}

// Intersect returns the files common to every given tag.
func (s *Service) Intersect(_ context.Context, tags []string) ([]string, error) {
	st, err := s.provider.Load()
	if err != nil {
		return nil, err
	}
	paths, dirty, err := s.query.Intersect(st, tags)
	if err != nil {
		return nil, err
	}
	if err := s.saveIfDirty(st, dirty); err != nil {
		return nil, err
	}
	return paths, nil
}

// Inspect returns the full tag paths carried by each given file.
func (s *Service) Inspect(_ context.Context, files []string) ([]FileTags, error) {
	st, err := s.provider.Load()
	if err != nil {
		return nil, err
	}

	var out []FileTags
	dirty := false
	for _, f := range files {
		tags, changed, err := s.query.Inspect(st, f)
		if changed {
			dirty = true
		}
		if err != nil {
			if IsDomain(err) {
				out = append(out, FileTags{File: f, Tags: []string{}})
				s.logger.Warn("inspect: file not resolvable", slog.String("file", f))
				continue
			}
			return out, err
		}
		if tags == nil {
			tags = []string{}
		}
		out = append(out, FileTags{File: f, Tags: tags})
	}

	if err := s.saveIfDirty(st, dirty); err != nil {
		return out, err
	}
	return out, nil
}

// ListTags returns a summary of every visible tag in store order.
func (s *Service) ListTags(_ context.Context) ([]TagInfo, error) {
	st, err := s.provider.Load()
	if err != nil {
		return nil, err
	}
	var out []TagInfo
	for _, t := range st.Tags {
		if !t.Visible() {
			continue
		}
		out = append(out, TagInfo{
			Name:     t.Name,
			Kind:     t.Kind,
			Path:     t.Path(),
			Children: t.Children,
			Files:    len(t.Files),
		})
	}
	return out, nil
}

// Search queries the sqlite index over tag and file paths.
func (s *Service) Search(_ context.Context, q string, limit int) ([]index.SearchResult, error) {
	if s.idx == nil {
		return nil, errors.New("search index not configured")
	}
	return s.idx.Search(q, limit)
}

// SyncIndex rebuilds the search index from the current store.
func (s *Service) SyncIndex(_ context.Context) error {
	if s.idx == nil {
		return nil
	}
	st, err := s.provider.Load()
	if err != nil {
		return err
	}
	index.Sync(s.idx, st, s.logger)
	return nil
}

func (s *Service) saveIfDirty(st *models.Store, dirty bool) error {
	if !dirty {
		return nil
	}
	if err := s.provider.Save(st); err != nil {
		return err
	}
	index.Sync(s.idx, st, s.logger)
	return nil
}

// IsDomain reports whether err is an expected user-facing rejection
// rather than a failure of the tool.
func IsDomain(err error) bool {
	return errors.Is(err, apperr.ErrConstraint) ||
		errors.Is(err, apperr.ErrTagNotFound) ||
		errors.Is(err, apperr.ErrFileNotFound) ||
		errors.Is(err, apperr.ErrInvalidOperation)
}

type notFoundTag struct{ token string }

func (e *notFoundTag) Error() string { return "tag does not exist: " + e.token }
func (e *notFoundTag) Is(target error) bool {
	return target == apperr.ErrTagNotFound
}
