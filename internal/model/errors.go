package model

import "errors"

// Error categories shared by the HTTP and socket surfaces. Engines keep their
// own sentinels; adapters tag them with one of these.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
	ErrRejected        = errors.New("rejected")
)

type taggedError struct {
	kind error
	err  error
}

func (e *taggedError) Error() string   { return e.err.Error() }
func (e *taggedError) Unwrap() []error { return []error{e.kind, e.err} }

// Tag marks err as belonging to kind while keeping its message and chain.
// A nil err stays nil.
func Tag(kind, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, kind) {
		return err
	}
	return &taggedError{kind: kind, err: err}
}
