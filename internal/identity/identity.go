// Package identity maps human-supplied file paths to stable inode-based
// identities that survive renames and moves.
package identity

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"

	"github.com/starford/eihwaz/internal/apperr"
	"github.com/starford/eihwaz/internal/models"
)

// DefaultWorkers bounds the fallback tree-scan worker pool.
const DefaultWorkers = 4

// Resolver resolves file paths against the registry in a Store, probing
// the filesystem under Root when the registry has no answer.
type Resolver struct {
	root    string
	workers int
	logger  *slog.Logger
}

// Location describes a file found on disk.
type Location struct {
	Path           string
	FileInode      uint64
	ParentDirInode uint64
}

// NewResolver creates a Resolver scanning from root. workers bounds the
// fallback scan pool; values below one fall back to DefaultWorkers.
func NewResolver(root string, workers int, logger *slog.Logger) *Resolver {
	if root == "" {
		root = "."
	}
	if workers < 1 {
		workers = DefaultWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{root: root, workers: workers, logger: logger}
}

// Resolve returns the stable inode identity for path, registering it in
// the store's file registry when new. The returned dirty flag reports
// whether the registry changed.
//
// Resolution order: registry fast path on last known name, direct stat,
// then a recursive case-insensitive filename scan from the resolver root.
func (r *Resolver) Resolve(path string, st *models.Store) (uint64, bool, error) {
	if rec := st.RecordByPath(path); rec != nil {
		return rec.FileInode, false, nil
	}

	loc, err := r.locate(path)
	if err != nil {
		return 0, false, err
	}
	dirty := st.UpsertRecord(models.FileRecord{
		LastKnownName:  loc.Path,
		FileInode:      loc.FileInode,
		ParentDirInode: loc.ParentDirInode,
	})
	return loc.FileInode, dirty, nil
}

// locate finds path on disk: direct stat first, filename scan second.
func (r *Resolver) locate(path string) (*Location, error) {
	if _, err := os.Stat(path); err == nil {
		return r.describe(path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("identity: stat %s: %w", path, err)
	}

	name := filepath.Base(path)
	if name == "." || name == string(filepath.Separator) {
		return nil, fmt.Errorf("identity: %s: %w", path, apperr.ErrFileNotFound)
	}
	found, err := r.scanByName(name)
	if err != nil {
		return nil, err
	}
	if found == "" {
		return nil, fmt.Errorf("identity: %s: %w", path, apperr.ErrFileNotFound)
	}
	return r.describe(found)
}

// PathByInode returns the current path of the file with the given inode,
// scanning the tree from the resolver root. Returns ErrFileNotFound when
// no file carries the inode anymore.
func (r *Resolver) PathByInode(inode uint64) (string, error) {
	found, err := r.scanByInode(inode)
	if err != nil {
		return "", err
	}
	if found == "" {
		return "", fmt.Errorf("identity: inode %d: %w", inode, apperr.ErrFileNotFound)
	}
	return r.relativize(found), nil
}

// describe stats path and its parent directory and normalises the path
// relative to the resolver root when possible.
func (r *Resolver) describe(path string) (*Location, error) {
	ino, err := inodeOf(path)
	if err != nil {
		return nil, err
	}
	parent := filepath.Dir(path)
	if parent == "" {
		parent = "."
	}
	parentIno, err := inodeOf(parent)
	if err != nil {
		return nil, err
	}
	return &Location{
		Path:           r.relativize(path),
		FileInode:      ino,
		ParentDirInode: parentIno,
	}, nil
}

// relativize rewrites an absolute path relative to the resolver root when
// the file sits inside it; other paths pass through unchanged.
func (r *Resolver) relativize(path string) string {
	if !filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	absRoot, err := filepath.Abs(r.root)
	if err != nil {
		return path
	}
	rel, err := filepath.Rel(absRoot, path)
	if err != nil || rel == ".." || len(rel) > 2 && rel[:3] == ".."+string(filepath.Separator) {
		return path
	}
	return rel
}

func inodeOf(path string) (uint64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("identity: stat %s: %w", path, err)
	}
	sys, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, fmt.Errorf("identity: no inode information for %s", path)
	}
	return sys.Ino, nil
}
