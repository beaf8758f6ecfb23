package index

import "fmt"

// Entry is one searchable row: a visible tag rendered as its ancestry
// path, or a tracked file path.
type Entry struct {
	Kind   string // KindTag or KindFile
	Name   string // tag name or file basename
	Path   string // full tag path or file path
	Detail string // tag kind, or inode string for files
}

// SearchResult is one search hit.
type SearchResult struct {
	Kind   string `json:"kind"`
	Name   string `json:"name"`
	Path   string `json:"path"`
	Detail string `json:"detail,omitempty"`
}

// Rebuild replaces the whole index with the given entries in one
// transaction. The index is a cache, so full replacement is the only
// write path.
func (db *DB) Rebuild(entries []Entry) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if _, err := tx.Exec(`DELETE FROM entries`); err != nil {
		return fmt.Errorf("index: clear: %w", err)
	}
	ftsClear(tx)

	stmt, err := tx.Prepare(`INSERT INTO entries (id, kind, name, path, detail) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("index: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		id := e.Kind + ":" + e.Path
		if _, err := stmt.Exec(id, e.Kind, e.Name, e.Path, e.Detail); err != nil {
			return fmt.Errorf("index: insert %s: %w", id, err)
		}
		if err := ftsInsert(tx, id, e.Name, e.Path); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Count returns the number of indexed entries, optionally restricted to
// one kind.
func (db *DB) Count(kind string) (int, error) {
	var n int
	var err error
	if kind == "" {
		err = db.conn.QueryRow(`SELECT COUNT(*) FROM entries`).Scan(&n)
	} else {
		err = db.conn.QueryRow(`SELECT COUNT(*) FROM entries WHERE kind = ?`, kind).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("index: count: %w", err)
	}
	return n, nil
}
