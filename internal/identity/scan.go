package identity

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// treeScan walks the tree under root with a bounded worker pool, calling
// visit for every regular file until visit reports a match. Directories
// that cannot be read are logged and skipped. The first match wins; ties
// among candidates are resolved by whichever worker gets there first.
type treeScan struct {
	g      *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger

	mu     sync.Mutex
	result string

	visit func(path string, d fs.DirEntry) bool
}

func (r *Resolver) newScan(visit func(path string, d fs.DirEntry) bool) *treeScan {
	ctx, cancel := context.WithCancel(context.Background())
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	return &treeScan{g: g, ctx: gCtx, cancel: cancel, logger: r.logger, visit: visit}
}

func (s *treeScan) run(root string) string {
	s.walkDir(root)
	_ = s.g.Wait()
	s.cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

func (s *treeScan) found(path string) {
	s.mu.Lock()
	if s.result == "" {
		s.result = path
	}
	s.mu.Unlock()
	s.cancel()
}

func (s *treeScan) walkDir(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		// Traversal errors do not abort the scan.
		s.logger.Warn("scan: read dir failed",
			slog.String("path", dir),
			slog.String("error", err.Error()))
		return
	}
	for _, e := range entries {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		path := filepath.Join(dir, e.Name())
		if e.IsDir() {
			// TryGo keeps recursion deadlock-free: when the pool is
			// saturated the subtree is walked inline instead.
			if !s.g.TryGo(func() error { s.walkDir(path); return nil }) {
				s.walkDir(path)
			}
			continue
		}
		if s.visit(path, e) {
			s.found(path)
			return
		}
	}
}

// scanByName searches the tree for a file whose name matches
// case-insensitively, returning its path or "" when absent.
func (r *Resolver) scanByName(name string) (string, error) {
	scan := r.newScan(func(_ string, d fs.DirEntry) bool {
		return strings.EqualFold(d.Name(), name)
	})
	return scan.run(r.root), nil
}

// scanByInode searches the tree for the file carrying the given inode,
// returning its path or "" when absent.
func (r *Resolver) scanByInode(inode uint64) (string, error) {
	scan := r.newScan(func(path string, d fs.DirEntry) bool {
		ino, err := inodeOf(path)
		return err == nil && ino == inode
	})
	return scan.run(r.root), nil
}
