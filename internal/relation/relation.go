// Package relation implements the assign/remove state machine between
// files and tags, enforcing the hierarchy-derived exclusivity rules.
package relation

import (
	"fmt"

	"github.com/starford/eihwaz/internal/apperr"
	"github.com/starford/eihwaz/internal/identity"
	"github.com/starford/eihwaz/internal/models"
	"github.com/starford/eihwaz/internal/query"
)

// Op is an assignment operation.
type Op int

const (
	OpUnknown Op = iota
	OpAdd
	OpRemove
)

// ParseOp maps a command token to an Op.
func ParseOp(token string) Op {
	switch token {
	case "assign", "add":
		return OpAdd
	case "remove", "rm":
		return OpRemove
	}
	return OpUnknown
}

// Outcome classifies what an accepted operation actually did.
type Outcome int

const (
	// OutcomeAssigned: a new file↔tag link was created.
	OutcomeAssigned Outcome = iota
	// OutcomePreExisting: the link already existed; assignment is a no-op.
	OutcomePreExisting
	// OutcomeRemoved: an existing link was deleted.
	OutcomeRemoved
	// OutcomeNotLinked: removal found no link; reported, not an error.
	OutcomeNotLinked
)

// Result reports an accepted operation.
type Result struct {
	Outcome Outcome
	File    string
	Tag     string // canonical tag name
}

// String renders the single-line report the CLI prints.
func (r *Result) String() string {
	switch r.Outcome {
	case OutcomeAssigned:
		return fmt.Sprintf("assigned  file, tag: \t%s \t%s", r.File, r.Tag)
	case OutcomePreExisting:
		return fmt.Sprintf("pre-exist file, tag: \t%s \t%s", r.File, r.Tag)
	case OutcomeRemoved:
		return fmt.Sprintf("removed file, tag: \t%s \t%s", r.File, r.Tag)
	case OutcomeNotLinked:
		return fmt.Sprintf("there is no correlation between file '%s' and tag '%s'", r.File, r.Tag)
	}
	return ""
}

// Engine applies operations to a store, resolving file identities through
// the given resolver.
type Engine struct {
	resolver *identity.Resolver
}

// NewEngine creates an Engine.
func NewEngine(resolver *identity.Resolver) *Engine {
	return &Engine{resolver: resolver}
}

// Apply runs one operation on the (file, tag) pair. The returned dirty
// flag reports whether the in-memory store changed (link mutations and
// file-registry upserts both count); persistence is the caller's
// responsibility.
//
// Rejections surface as errors matching apperr.ErrTagNotFound,
// apperr.ErrFileNotFound, apperr.ErrInvalidOperation, or
// apperr.ErrConstraint; they are expected user-facing outcomes.
func (e *Engine) Apply(op Op, filePath, tagToken string, st *models.Store) (*Result, bool, error) {
	if op == OpUnknown {
		return nil, false, apperr.ErrInvalidOperation
	}

	inode, dirty, err := e.resolver.Resolve(filePath, st)
	if err != nil {
		return nil, dirty, err
	}
	key := models.InodeKey(inode)

	tag := st.ResolveVisible(tagToken)
	if tag == nil {
		return nil, dirty, fmt.Errorf("tag or alias does not exist: %s: %w", tagToken, apperr.ErrTagNotFound)
	}

	switch op {
	case OpAdd:
		if err := e.checkAssign(tag, filePath, key, st); err != nil {
			return nil, dirty, err
		}
		outcome := OutcomePreExisting
		if tag.AddFile(key) {
			outcome = OutcomeAssigned
			dirty = true
		}
		return &Result{Outcome: outcome, File: filePath, Tag: tag.Name}, dirty, nil

	default: // OpRemove
		outcome := OutcomeNotLinked
		if tag.RemoveFile(key) {
			outcome = OutcomeRemoved
			dirty = true
		}
		return &Result{Outcome: outcome, File: filePath, Tag: tag.Name}, dirty, nil
	}
}

// checkAssign enforces the kind-specific assignment rules.
func (e *Engine) checkAssign(tag *models.Tag, filePath, inodeKey string, st *models.Store) error {
	switch tag.Kind {
	case models.KindDud:
		// Duds are scaffolding only, independent of any other constraint.
		return &apperr.ConstraintError{
			Reason: apperr.ReasonDud,
			Tag:    tag.Name,
			File:   filePath,
		}

	case models.KindExclusive:
		// The file must hold nothing in this tag's closure, above or
		// below: descendants conflict through the queryable closure,
		// exclusive ancestors through the same walk normal tags use.
		_, queryable, err := query.Closure(st, tag.Name)
		if err != nil {
			return err
		}
		assigned := st.AssignedNames(inodeKey)
		var conflicts []string
		for name := range assigned {
			if name == tag.Name {
				// Re-assigning the exclusive tag itself stays idempotent.
				continue
			}
			if _, ok := queryable[name]; ok {
				conflicts = append(conflicts, name)
			}
		}
		if len(conflicts) > 0 {
			return &apperr.ConstraintError{
				Reason:    apperr.ReasonExclusiveChildren,
				Tag:       tag.Name,
				File:      filePath,
				Conflicts: models.SortedNames(toSet(conflicts)),
			}
		}
		return e.checkExclusiveAncestor(tag, filePath, assigned, st)

	case models.KindNormal:
		return e.checkExclusiveAncestor(tag, filePath, st.AssignedNames(inodeKey), st)
	}
	return nil
}

// checkExclusiveAncestor rejects when the file already holds an exclusive
// ancestor of tag. Only a directly assigned exclusive ancestor blocks;
// holding a sibling under the same exclusive parent does not.
func (e *Engine) checkExclusiveAncestor(tag *models.Tag, filePath string, assigned map[string]struct{}, st *models.Store) error {
	for _, ancestor := range tag.Ancestry {
		if _, ok := assigned[ancestor]; !ok {
			continue
		}
		if at := st.VisibleTag(ancestor); at != nil && at.Kind == models.KindExclusive {
			return &apperr.ConstraintError{
				Reason:    apperr.ReasonExclusiveAncestor,
				Tag:       tag.Name,
				File:      filePath,
				Conflicts: []string{ancestor},
			}
		}
	}
	return nil
}

func toSet(names []string) map[string]struct{} {
	out := make(map[string]struct{}, len(names))
	for _, n := range names {
		out[n] = struct{}{}
	}
	return out
}
