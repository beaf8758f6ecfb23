package index

import (
	"log/slog"
	"path/filepath"

	"github.com/starford/eihwaz/internal/models"
)

// FromStore flattens a store into index entries: every visible tag as its
// ancestry path, every tracked file as its last known path.
func FromStore(st *models.Store) []Entry {
	var out []Entry
	for _, t := range st.Tags {
		if !t.Visible() {
			continue
		}
		out = append(out, Entry{
			Kind:   KindTag,
			Name:   t.Name,
			Path:   t.Path(),
			Detail: string(t.Kind),
		})
	}
	for _, rec := range st.Files {
		out = append(out, Entry{
			Kind:   KindFile,
			Name:   filepath.Base(rec.LastKnownName),
			Path:   rec.LastKnownName,
			Detail: models.InodeKey(rec.FileInode),
		})
	}
	return out
}

// Sync rebuilds the index from the store. Failures are logged, not fatal:
// the index is a cache and the next mutation retries the rebuild.
func Sync(db *DB, st *models.Store, logger *slog.Logger) {
	if db == nil {
		return
	}
	if err := db.Rebuild(FromStore(st)); err != nil {
		logger.Warn("index: rebuild failed", slog.String("error", err.Error()))
		return
	}
	logger.Debug("index: rebuilt",
		slog.Int("tags", countKind(st)),
		slog.Int("files", len(st.Files)))
}

func countKind(st *models.Store) int {
	n := 0
	for _, t := range st.Tags {
		if t.Visible() {
			n++
		}
	}
	return n
}
