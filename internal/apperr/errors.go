// Package apperr defines the sentinel errors shared across the application.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrFileNotFound     = errors.New("file not found")
	ErrTagNotFound      = errors.New("tag not found")
	ErrInvalidOperation = errors.New("invalid operation")
	ErrConstraint       = errors.New("constraint violation")
)

// Constraint reasons.
const (
	ReasonDud               = "dud"
	ReasonExclusiveChildren = "exclusive_children"
	ReasonExclusiveAncestor = "exclusive_ancestor"
)

// ConstraintError reports a rejected assignment. It matches ErrConstraint
// via errors.Is so callers can treat all rejection kinds uniformly.
type ConstraintError struct {
	Reason    string
	Tag       string
	File      string
	Conflicts []string
}

func (e *ConstraintError) Error() string {
	switch e.Reason {
	case ReasonDud:
		return fmt.Sprintf("cannot assign dud tag to files: %s", e.Tag)
	case ReasonExclusiveChildren:
		return fmt.Sprintf("cannot assign exclusive tag %s to file %s due to children %s",
			e.Tag, e.File, strings.Join(e.Conflicts, ", "))
	case ReasonExclusiveAncestor:
		return fmt.Sprintf("cannot assign normal tag %s to file %s due to it having been assigned ancestor exclusive tag %s",
			e.Tag, e.File, strings.Join(e.Conflicts, ", "))
	}
	return fmt.Sprintf("constraint violation on tag %s", e.Tag)
}

func (e *ConstraintError) Is(target error) bool {
	return target == ErrConstraint
}
