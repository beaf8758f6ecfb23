// Package reconcile merges a freshly parsed tag-hierarchy definition into
// the persisted store without losing existing file↔tag links.
package reconcile

import "github.com/starford/eihwaz/internal/models"

// Merge produces the merged store for a new definition against the
// existing one:
//
//   - tags present in the definition adopt its structure (kind, children,
//     ancestry) and are marked visible, keeping any files they carried;
//   - tags absent from the definition are kept but hidden, files intact;
//   - aliases are unioned with the definition winning collisions;
//   - the file registry is carried over unchanged (definitions carry no
//     file assignments).
//
// Merging an unchanged definition against an already-merged store is a
// fixed point: definition-order tags first, then hidden leftovers in
// their previous order.
func Merge(def *models.Definition, existing *models.Store) *models.Store {
	merged := models.NewStore()

	inDef := make(map[string]struct{}, len(def.Tags))
	for _, t := range def.Tags {
		inDef[t.Name] = struct{}{}
	}

	for _, t := range def.Tags {
		nt := cloneTag(t)
		nt.Show = boolPtr(true)
		if prev := existing.Tag(t.Name); prev != nil {
			nt.Files = append([]string(nil), prev.Files...)
		}
		merged.Tags = append(merged.Tags, nt)
	}

	for _, prev := range existing.Tags {
		if _, ok := inDef[prev.Name]; ok {
			continue
		}
		hidden := cloneTag(prev)
		hidden.Show = boolPtr(false)
		merged.Tags = append(merged.Tags, hidden)
	}

	// Existing aliases survive unless the definition redefines them.
	for alias, name := range existing.Aliases {
		merged.Aliases[alias] = name
	}
	for alias, name := range def.Aliases {
		merged.Aliases[alias] = name
	}

	// File registry is unioned by inode; the definition never carries
	// records, so this is a straight copy.
	for _, rec := range existing.Files {
		merged.UpsertRecord(rec)
	}

	merged.Reindex()
	return merged
}

func cloneTag(t *models.Tag) *models.Tag {
	return &models.Tag{
		Name:     t.Name,
		Kind:     t.Kind,
		Children: append([]string(nil), t.Children...),
		Ancestry: append([]string(nil), t.Ancestry...),
		Files:    append([]string(nil), t.Files...),
	}
}

func boolPtr(v bool) *bool { return &v }
