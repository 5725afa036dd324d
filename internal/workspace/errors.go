package workspace

import (
	"errors"
	"fmt"

	"mini-ide/internal/fileaccess"
)

// ErrorKind is the failure taxonomy reported by Controller operations.
type ErrorKind string

const (
	KindWorkspaceUnreadable ErrorKind = "workspace_unreadable"
	KindDirectoryUnreadable ErrorKind = "directory_unreadable"
	KindReadError           ErrorKind = "read_error"
	KindWriteError          ErrorKind = "write_error"
	KindRenameError         ErrorKind = "rename_error"
	KindDeleteError         ErrorKind = "delete_error"
	KindCreateError         ErrorKind = "create_error"
	KindAlreadyExists       ErrorKind = "already_exists"
	KindNoActiveDocument    ErrorKind = "no_active_document"
	KindNotOpen             ErrorKind = "not_open"
)

var (
	// ErrNoWorkspace is returned by tree and document operations before a
	// workspace has been opened.
	ErrNoWorkspace = errors.New("no workspace is open")
	// ErrSuperseded marks a request whose result was discarded because the
	// workspace was replaced while it ran.
	ErrSuperseded = errors.New("workspace changed while the request was running")

	// ErrNoActiveDocument and ErrNotOpen match any *Error of the same kind
	// under errors.Is.
	ErrNoActiveDocument = &Error{Kind: KindNoActiveDocument, Message: "no active document"}
	ErrNotOpen          = &Error{Kind: KindNotOpen, Message: "document is not open"}
)

// Error is a typed operation failure. Path names the subject of the
// operation; Err carries the collaborator error when there is one.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Path    string    `json:"path"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s %s: %s", e.Kind, e.Path, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches kind-only sentinels such as ErrNotOpen.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Path != "" {
		return false
	}
	return e.Kind == t.Kind
}

// KindOf returns the kind of a Controller error, or "" for foreign errors.
func KindOf(err error) ErrorKind {
	var wsErr *Error
	if errors.As(err, &wsErr) {
		return wsErr.Kind
	}
	return ""
}

func newError(kind ErrorKind, path string, message string) *Error {
	return &Error{Kind: kind, Path: path, Message: message}
}

// wrapCollaboratorError maps a collaborator failure onto kind. An
// AlreadyExists failure from a mutating call keeps its own kind so the
// caller can tell name collisions apart from I/O trouble.
func wrapCollaboratorError(kind ErrorKind, path string, err error) *Error {
	if err == nil {
		return nil
	}
	if fileaccess.KindOf(err) == fileaccess.KindAlreadyExists {
		switch kind {
		case KindRenameError, KindCreateError:
			kind = KindAlreadyExists
		}
	}
	return &Error{Kind: kind, Path: path, Message: fileaccess.MessageOf(err), Err: err}
}
