// Package query answers set-theoretic questions over the tag/file graph:
// recursive closure expansion, union filtering, intersection, and
// per-file inspection.
package query

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"

	"github.com/starford/eihwaz/internal/apperr"
	"github.com/starford/eihwaz/internal/identity"
	"github.com/starford/eihwaz/internal/models"
)

// Closure expands a tag token into its full descendant closure, following
// only visible tags. allNames includes duds; queryableNames holds only
// normal and exclusive descendants, the ones that can actually carry
// files.
func Closure(st *models.Store, token string) (allNames, queryableNames map[string]struct{}, err error) {
	root := st.ResolveVisible(token)
	if root == nil {
		return nil, nil, fmt.Errorf("tag '%s' is not in tags: %w", token, apperr.ErrTagNotFound)
	}

	allNames = make(map[string]struct{})
	queryableNames = make(map[string]struct{})

	var walk func(t *models.Tag)
	walk = func(t *models.Tag) {
		if _, seen := allNames[t.Name]; seen {
			return
		}
		allNames[t.Name] = struct{}{}
		if t.Kind == models.KindNormal || t.Kind == models.KindExclusive {
			queryableNames[t.Name] = struct{}{}
		}
		for _, childName := range t.Children {
			if child := st.VisibleTag(childName); child != nil {
				walk(child)
			}
		}
	}
	walk(root)
	return allNames, queryableNames, nil
}

// Engine runs queries that may need to re-resolve file paths on disk.
type Engine struct {
	resolver *identity.Resolver
	logger   *slog.Logger
}

// NewEngine creates an Engine.
func NewEngine(resolver *identity.Resolver, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{resolver: resolver, logger: logger}
}

// Filter returns the sorted, deduplicated paths of every file assigned to
// any of the requested tags or their queryable descendants (union mode).
//
// Stale last-known paths are re-resolved by inode and the file registry
// is updated in place; the dirty flag tells the caller the store needs
// saving. Files that cannot be located anywhere are dropped from the
// result.
func (e *Engine) Filter(st *models.Store, tags []string) ([]string, bool, error) {
	union := make(map[string]struct{})
	for _, token := range tags {
		_, queryable, err := Closure(st, token)
		if err != nil {
			return nil, false, err
		}
		for name := range queryable {
			union[name] = struct{}{}
		}
	}

	inodes := make(map[string]struct{})
	for name := range union {
		if t := st.VisibleTag(name); t != nil {
			for _, f := range t.Files {
				inodes[f] = struct{}{}
			}
		}
	}

	dirty := false
	seen := make(map[string]struct{})
	var paths []string
	for key := range inodes {
		path, changed, ok := e.currentPath(st, key)
		if changed {
			dirty = true
		}
		if !ok {
			continue
		}
		if _, dup := seen[path]; dup {
			continue
		}
		seen[path] = struct{}{}
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths, dirty, nil
}

// currentPath maps an inode key to a path that exists on disk right now,
// refreshing the file record when the file moved. ok is false when the
// file cannot be located anywhere.
func (e *Engine) currentPath(st *models.Store, inodeKey string) (path string, changed, ok bool) {
	inode, err := strconv.ParseUint(inodeKey, 10, 64)
	if err != nil {
		return "", false, false
	}
	rec := st.RecordByInode(inode)
	if rec == nil {
		return "", false, false
	}
	if info, err := os.Stat(rec.LastKnownName); err == nil && !info.IsDir() {
		return rec.LastKnownName, false, true
	}

	current, err := e.resolver.PathByInode(inode)
	if err != nil {
		if !errors.Is(err, apperr.ErrFileNotFound) {
			e.logger.Warn("filter: inode lookup failed",
				slog.String("inode", inodeKey),
				slog.String("error", err.Error()))
		}
		return "", false, false
	}
	if rec.LastKnownName != current {
		rec.LastKnownName = current
		changed = true
	}
	return current, changed, true
}

// Intersect runs Filter once per tag in isolation and intersects the
// resulting path sets. A single tag degenerates to plain Filter.
func (e *Engine) Intersect(st *models.Store, tags []string) ([]string, bool, error) {
	if len(tags) == 0 {
		return nil, false, fmt.Errorf("intersect: need at least one tag: %w", apperr.ErrInvalidOperation)
	}

	dirty := false
	var acc map[string]struct{}
	for _, token := range tags {
		paths, changed, err := e.Filter(st, []string{token})
		if changed {
			dirty = true
		}
		if err != nil {
			return nil, dirty, err
		}
		set := make(map[string]struct{}, len(paths))
		for _, p := range paths {
			set[p] = struct{}{}
		}
		if acc == nil {
			acc = set
			continue
		}
		for p := range acc {
			if _, ok := set[p]; !ok {
				delete(acc, p)
			}
		}
	}

	out := models.SortedNames(acc)
	return out, dirty, nil
}

// Inspect resolves a file and returns every visible tag that carries it,
// rendered as full ancestry paths ("ancestor1/ancestor2/tag"), sorted.
func (e *Engine) Inspect(st *models.Store, filePath string) ([]string, bool, error) {
	inode, dirty, err := e.resolver.Resolve(filePath, st)
	if err != nil {
		return nil, dirty, err
	}
	key := models.InodeKey(inode)

	var paths []string
	for _, t := range st.Tags {
		if t.Visible() && t.HasFile(key) {
			paths = append(paths, t.Path())
		}
	}
	sort.Strings(paths)
	return paths, dirty, nil
}
