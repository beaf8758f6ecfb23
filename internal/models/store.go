// Package models defines the domain types for Eihwaz: the tag forest,
// the tracked-file registry, and the aggregate store.
package models

import (
	"sort"
	"strconv"
)

// TagKind classifies a tag node.
type TagKind string

const (
	// KindNormal tags are queryable and freely assignable.
	KindNormal TagKind = "normal"
	// KindDud tags exist purely as hierarchy scaffolding and never
	// receive file assignments.
	KindDud TagKind = "dud"
	// KindExclusive tags conflict with assignment of any of their
	// descendants.
	KindExclusive TagKind = "exclusive"
)

// Tag is a node in the forest-shaped hierarchy. The store owns all tags in
// a flat registry keyed by name; Children and Ancestry hold names only.
type Tag struct {
	Name string  `json:"name"`
	Kind TagKind `json:"type"`
	// Children lists direct child tag names in definition order.
	Children []string `json:"children"`
	// Ancestry lists ancestor tag names from root to direct parent.
	// Computed at definition time, never edited afterwards.
	Ancestry []string `json:"ancestry"`
	// Show is the visibility flag; nil means visible. A tag removed from
	// the latest definition is hidden rather than deleted so its file
	// associations survive.
	Show *bool `json:"show,omitempty"`
	// Files holds the inodes (as decimal strings) assigned to this tag.
	Files []string `json:"files,omitempty"`
}

// Visible reports whether the tag participates in queries and assignment.
func (t *Tag) Visible() bool {
	return t.Show == nil || *t.Show
}

// Path renders the tag as its full ancestry path, e.g. "media/video/clips".
func (t *Tag) Path() string {
	if len(t.Ancestry) == 0 {
		return t.Name
	}
	out := ""
	for _, a := range t.Ancestry {
		out += a + "/"
	}
	return out + t.Name
}

// HasFile reports whether the inode string is assigned to this tag.
func (t *Tag) HasFile(inode string) bool {
	for _, f := range t.Files {
		if f == inode {
			return true
		}
	}
	return false
}

// AddFile assigns the inode string to this tag. Returns false when the
// link already existed.
func (t *Tag) AddFile(inode string) bool {
	if t.HasFile(inode) {
		return false
	}
	t.Files = append(t.Files, inode)
	return true
}

// RemoveFile drops the inode string from this tag. Returns false when no
// link existed.
func (t *Tag) RemoveFile(inode string) bool {
	for i, f := range t.Files {
		if f == inode {
			t.Files = append(t.Files[:i], t.Files[i+1:]...)
			return true
		}
	}
	return false
}

// FileRecord is the persisted identity record for a tracked file.
type FileRecord struct {
	LastKnownName  string `json:"last_known_name"`
	FileInode      uint64 `json:"file_inode"`
	ParentDirInode uint64 `json:"parent_dir_inode"`
}

// Store is the aggregate persisted state: tracked files, alias map, and
// the flat tag registry. It is threaded explicitly through every
// operation; there is no ambient current store.
type Store struct {
	Files   []FileRecord      `json:"files"`
	Aliases map[string]string `json:"aliases"`
	Tags    []*Tag            `json:"tags"`

	byName map[string]*Tag
}

// NewStore returns an empty store ready for use.
func NewStore() *Store {
	s := &Store{Aliases: map[string]string{}}
	s.Reindex()
	return s
}

// Reindex rebuilds the name→tag index. Must be called after loading or
// after replacing the Tags slice.
func (s *Store) Reindex() {
	s.byName = make(map[string]*Tag, len(s.Tags))
	for _, t := range s.Tags {
		s.byName[t.Name] = t
	}
	if s.Aliases == nil {
		s.Aliases = map[string]string{}
	}
}

// CanonicalName resolves an alias to its tag name. Unknown tokens are
// returned unchanged: a tag name is always resolvable without an alias.
func (s *Store) CanonicalName(token string) string {
	if name, ok := s.Aliases[token]; ok {
		return name
	}
	return token
}

// Tag returns the tag with the given canonical name, or nil.
func (s *Store) Tag(name string) *Tag {
	return s.byName[name]
}

// VisibleTag returns the visible tag with the given canonical name, or nil.
func (s *Store) VisibleTag(name string) *Tag {
	if t := s.byName[name]; t != nil && t.Visible() {
		return t
	}
	return nil
}

// ResolveVisible resolves an alias or name token to a visible tag, or nil.
func (s *Store) ResolveVisible(token string) *Tag {
	return s.VisibleTag(s.CanonicalName(token))
}

// RecordByPath returns the file record whose last known name matches path.
func (s *Store) RecordByPath(path string) *FileRecord {
	for i := range s.Files {
		if s.Files[i].LastKnownName == path {
			return &s.Files[i]
		}
	}
	return nil
}

// RecordByInode returns the file record with the given inode.
func (s *Store) RecordByInode(inode uint64) *FileRecord {
	for i := range s.Files {
		if s.Files[i].FileInode == inode {
			return &s.Files[i]
		}
	}
	return nil
}

// UpsertRecord registers or refreshes a file record, keyed by inode.
// Returns true when the registry changed.
func (s *Store) UpsertRecord(rec FileRecord) bool {
	if existing := s.RecordByInode(rec.FileInode); existing != nil {
		if existing.LastKnownName == rec.LastKnownName && existing.ParentDirInode == rec.ParentDirInode {
			return false
		}
		existing.LastKnownName = rec.LastKnownName
		existing.ParentDirInode = rec.ParentDirInode
		return true
	}
	s.Files = append(s.Files, rec)
	return true
}

// AssignedNames returns the names of every visible tag that carries the
// given inode string.
func (s *Store) AssignedNames(inode string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, t := range s.Tags {
		if t.Visible() && t.HasFile(inode) {
			out[t.Name] = struct{}{}
		}
	}
	return out
}

// InodeKey renders an inode as the decimal string used in Tag.Files.
func InodeKey(inode uint64) string {
	return strconv.FormatUint(inode, 10)
}

// Definition is the unpersisted output of parsing a tag-definition
// document: alias map plus the flattened tag forest in definition order.
// It carries no file assignments.
type Definition struct {
	Aliases map[string]string
	Tags    []*Tag
}

// SortedNames returns the keys of a string set in lexical order.
func SortedNames(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
