// Package errors defines the typed failures surfaced by repository
// operations. Every fallible step either returns one of these directly or
// wraps an underlying cause with operation context via fmt.Errorf and %w.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

type Kind string

const (
	KindNotARepository        Kind = "NOT_A_REPOSITORY"
	KindRepositoryExists      Kind = "REPOSITORY_ALREADY_EXISTS"
	KindFileNotFound          Kind = "FILE_NOT_FOUND"
	KindObjectNotFound        Kind = "OBJECT_NOT_FOUND"
	KindCorruptObject         Kind = "CORRUPT_OBJECT"
	KindNotTracked            Kind = "NOT_TRACKED"
	KindAlreadyStaged         Kind = "ALREADY_STAGED"
	KindStagedChangesConflict Kind = "STAGED_CHANGES_CONFLICT"
	KindBranchExists          Kind = "BRANCH_EXISTS"
	KindBranchNotFound        Kind = "BRANCH_NOT_FOUND"
	KindBranchCheckedOut      Kind = "BRANCH_CHECKED_OUT"
	KindAlreadyOnBranch       Kind = "ALREADY_ON_BRANCH"
	KindSelfMerge             Kind = "SELF_MERGE"
	KindUnstagedChanges       Kind = "UNSTAGED_CHANGES"
	KindUncommittedChanges    Kind = "UNCOMMITTED_CHANGES"
	KindCheckoutConflict      Kind = "CHECKOUT_CONFLICT"
	KindNothingToCommit       Kind = "NOTHING_TO_COMMIT"
	KindIO                    Kind = "IO"
)

// Error carries the failure kind alongside a human-readable message. Paths is
// populated only for checkout conflicts, which report every conflicting path.
type Error struct {
	Kind    Kind
	Message string
	Paths   []string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is (or wraps) an Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// ConflictPaths returns the conflicting paths carried by a checkout-conflict
// error, or nil if err is not one.
func ConflictPaths(err error) []string {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindCheckoutConflict {
		return e.Paths
	}
	return nil
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func NotARepository() *Error {
	return New(KindNotARepository, "not a grit repository (no .grit directory found)")
}

func RepositoryExists(dir string) *Error {
	return New(KindRepositoryExists, fmt.Sprintf("a grit repository already exists in %s", dir))
}

func FileNotFound(path string) *Error {
	return New(KindFileNotFound, fmt.Sprintf("file does not exist: %s", path))
}

func ObjectNotFound(hash string) *Error {
	return New(KindObjectNotFound, fmt.Sprintf("object not found: %s", hash))
}

func CorruptObject(detail string, err error) *Error {
	return Wrap(KindCorruptObject, "corrupt object: "+detail, err)
}

func NotTracked(path string) *Error {
	return New(KindNotTracked, fmt.Sprintf("cannot remove %s: the file is not tracked", path))
}

func AlreadyStaged(path string) *Error {
	return New(KindAlreadyStaged, fmt.Sprintf("%s is already staged for removal", path))
}

func StagedChangesConflict(path string) *Error {
	return New(KindStagedChangesConflict, fmt.Sprintf("cannot remove %s: it has staged changes", path))
}

func BranchExists(name string) *Error {
	return New(KindBranchExists, fmt.Sprintf("a branch named '%s' already exists", name))
}

func BranchNotFound(name string) *Error {
	return New(KindBranchNotFound, fmt.Sprintf("branch '%s' not found", name))
}

func BranchCheckedOut(name string) *Error {
	return New(KindBranchCheckedOut, fmt.Sprintf("cannot delete branch '%s' while it is checked out", name))
}

func AlreadyOnBranch(name string) *Error {
	return New(KindAlreadyOnBranch, fmt.Sprintf("already on '%s'", name))
}

func SelfMerge(name string) *Error {
	return New(KindSelfMerge, fmt.Sprintf("cannot merge branch '%s' into itself", name))
}

func UnstagedChanges() *Error {
	return New(KindUnstagedChanges, "working tree has unstaged modifications")
}

func UncommittedChanges() *Error {
	return New(KindUncommittedChanges, "staging area has uncommitted changes")
}

func NothingToCommit() *Error {
	return New(KindNothingToCommit, "nothing to commit")
}

func CheckoutConflict(paths []string) *Error {
	return &Error{
		Kind: KindCheckoutConflict,
		Message: "your local changes to the following files would be overwritten by checkout:\n\t" +
			strings.Join(paths, "\n\t"),
		Paths: paths,
	}
}
