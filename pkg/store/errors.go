package store

import (
	"errors"
	"fmt"
)

// InvariantCode identifies which structural rule a mutation broke.
type InvariantCode string

const (
	// InvalidParent: the referenced parent block does not exist or lives on a
	// different page than the block being created or moved.
	InvalidParent InvariantCode = "invalid_parent"
	// SelfParent: a block was asked to become its own parent.
	SelfParent InvariantCode = "self_parent"
	// CycleDetected: the proposed parent is a descendant of the block being
	// moved, so the move would close a cycle.
	CycleDetected InvariantCode = "cycle_detected"
	// InvalidMove: a block that currently has children was asked to change
	// its owning page, which would split its subtree across pages.
	InvalidMove InvariantCode = "invalid_move"
	// SlugTaken: the page slug is already in use.
	SlugTaken InvariantCode = "slug_taken"
)

// NotFoundError reports a referenced id that has no record. Inside a batch it
// aborts and rolls back the whole transaction.
type NotFoundError struct {
	Kind string // "page", "block", "media"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// InvariantError reports a structural rule breach. Inside a batch it aborts
// and rolls back the whole transaction.
type InvariantError struct {
	Code    InvariantCode
	Message string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func invariant(code InvariantCode, format string, args ...any) error {
	return &InvariantError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ErrInvalidParent builds the InvalidParent violation for the given parent id.
func ErrInvalidParent(parentID string, reason string) error {
	return invariant(InvalidParent, "parent block %s %s", parentID, reason)
}

// ErrSelfParent builds the SelfParent violation.
func ErrSelfParent(id string) error {
	return invariant(SelfParent, "block %s cannot be its own parent", id)
}

// ErrCycleDetected builds the CycleDetected violation.
func ErrCycleDetected(id, parentID string) error {
	return invariant(CycleDetected, "block %s is a descendant of %s", parentID, id)
}

// ErrInvalidMove builds the InvalidMove violation.
func ErrInvalidMove(id string) error {
	return invariant(InvalidMove, "block %s has children and cannot change page", id)
}

// ErrSlugTaken builds the SlugTaken violation.
func ErrSlugTaken(slug string) error {
	return invariant(SlugTaken, "slug %q is already in use", slug)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsInvariantViolation reports whether err is (or wraps) an InvariantError.
func IsInvariantViolation(err error) bool {
	var iv *InvariantError
	return errors.As(err, &iv)
}
