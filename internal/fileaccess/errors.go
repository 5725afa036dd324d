package fileaccess

import (
	"errors"
	"fmt"
	"os"
)

// ErrorKind classifies a collaborator failure. The core only ever inspects the
// kind and the message; host-specific error values stay wrapped inside Error.
type ErrorKind string

const (
	KindNotFound         ErrorKind = "not_found"
	KindAlreadyExists    ErrorKind = "already_exists"
	KindPermissionDenied ErrorKind = "permission_denied"
	KindNotDirectory     ErrorKind = "not_directory"
	KindIsDirectory      ErrorKind = "is_directory"
	KindInvalidPath      ErrorKind = "invalid_path"
	KindTooLarge         ErrorKind = "too_large"
	KindCanceled         ErrorKind = "canceled"
	KindOther            ErrorKind = "other"
)

// Error is the typed failure returned by every Collaborator call.
type Error struct {
	Op      string    `json:"op"`
	Kind    ErrorKind `json:"kind"`
	Path    string    `json:"path"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("%s %s: %s", e.Op, e.Path, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of a collaborator error, or KindOther for any
// error that did not originate here. A nil error has no kind.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var faErr *Error
	if errors.As(err, &faErr) {
		return faErr.Kind
	}
	return KindOther
}

// MessageOf returns the human-readable part of a collaborator error.
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var faErr *Error
	if errors.As(err, &faErr) {
		return faErr.Message
	}
	return err.Error()
}

func newError(op string, kind ErrorKind, path string, message string) *Error {
	return &Error{Op: op, Kind: kind, Path: path, Message: message}
}

// classify maps an os/billy error onto the collaborator taxonomy.
func classify(op string, path string, err error) *Error {
	if err == nil {
		return nil
	}
	var faErr *Error
	if errors.As(err, &faErr) {
		return faErr
	}
	kind := KindOther
	switch {
	case errors.Is(err, os.ErrNotExist):
		kind = KindNotFound
	case errors.Is(err, os.ErrExist):
		kind = KindAlreadyExists
	case errors.Is(err, os.ErrPermission):
		kind = KindPermissionDenied
	}
	message := err.Error()
	var pathErr *os.PathError
	if errors.As(err, &pathErr) && pathErr.Err != nil {
		message = pathErr.Err.Error()
	}
	var linkErr *os.LinkError
	if errors.As(err, &linkErr) && linkErr.Err != nil {
		message = linkErr.Err.Error()
	}
	return &Error{Op: op, Kind: kind, Path: path, Message: message, Err: err}
}
