package core

import (
	"errors"
	"fmt"
)

// Error kinds. Match with errors.Is.
var (
	// ErrStorage indicates the index could not be loaded or saved.
	ErrStorage = errors.New("storage error")

	// ErrEmbedding indicates the embedding provider failed or timed out.
	ErrEmbedding = errors.New("embedding error")

	// ErrRetrieval indicates the search pipeline failed.
	ErrRetrieval = errors.New("retrieval error")

	// ErrInvalidDate indicates a date argument is not YYYY-MM-DD.
	ErrInvalidDate = errors.New("invalid date")

	// ErrInvalidInput indicates any other malformed argument.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")
)

// Error attaches an error kind and the failing operation to a cause.
type Error struct {
	Kind error
	Op   string
	Err  error
}

// E builds an *Error. err may be nil.
func E(kind error, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Is reports whether target is this error's kind.
func (e *Error) Is(target error) bool {
	return e.Kind == target
}

func (e *Error) Unwrap() error {
	return e.Err
}
