// Package ipc forwards a second launch's request to the running instance
// over a per-user local channel: a named pipe on Windows, a unix socket
// elsewhere. One JSON request line and one JSON response line per
// connection.
package ipc

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

const (
	// ActionActivate raises the running window.
	ActionActivate = "activate"
	// ActionOpenWorkspace raises the window and opens Request.Workspace.
	ActionOpenWorkspace = "open-workspace"
)

// addressEnv overrides DefaultAddress when its value is a valid address.
const addressEnv = "MINI_IDE_IPC"

const (
	maxRequestBytes  = 16 * 1024
	maxResponseBytes = 16 * 1024
)

// Request is one forwarded launch.
type Request struct {
	Action    string `json:"action"`
	Workspace string `json:"workspace,omitempty"`
}

// Response reports whether the running instance accepted the request.
type Response struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Handler serves decoded requests. Handle runs on a connection goroutine.
type Handler interface {
	Handle(req Request) Response
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(req Request) Response

// Handle calls f(req).
func (f HandlerFunc) Handle(req Request) Response {
	return f(req)
}

// Validate checks the action and its arguments.
func (r Request) Validate() error {
	switch r.Action {
	case ActionActivate:
		return nil
	case ActionOpenWorkspace:
		if strings.TrimSpace(r.Workspace) == "" {
			return errors.New("open-workspace requires a workspace path")
		}
		return nil
	case "":
		return errors.New("action is required")
	default:
		return fmt.Errorf("unknown action %q", r.Action)
	}
}

// DefaultAddress returns the per-user channel address. A valid MINI_IDE_IPC
// value wins; an invalid one is logged and ignored.
func DefaultAddress() string {
	if v := strings.TrimSpace(os.Getenv(addressEnv)); v != "" {
		if validAddress(v) {
			return v
		}
		slog.Warn("[ipc] "+addressEnv+" rejected: value does not match allowed pattern", "value", v)
	}
	return defaultAddress()
}

func encodeRequest(req Request) ([]byte, error) {
	return json.Marshal(req)
}

func decodeRequest(raw []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return Request{}, err
	}
	req.Workspace = strings.TrimSpace(req.Workspace)
	return req, req.Validate()
}

func encodeResponse(resp Response) ([]byte, error) {
	return json.Marshal(resp)
}

func decodeResponse(raw []byte) (Response, error) {
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Response{}, err
	}
	return resp, nil
}

// readFrame reads one newline-delimited frame. A final frame without the
// delimiter is accepted at EOF.
func readFrame(reader *bufio.Reader, maxBytes int) ([]byte, error) {
	raw, err := reader.ReadSlice('\n')
	if errors.Is(err, bufio.ErrBufferFull) {
		return nil, fmt.Errorf("frame exceeds %d bytes", maxBytes)
	}
	if errors.Is(err, io.EOF) {
		if len(raw) == 0 {
			return nil, io.EOF
		}
		return raw, nil
	}
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// writeFrame writes raw followed by the delimiter.
func writeFrame(w io.Writer, raw []byte) error {
	if _, err := w.Write(append(raw, '\n')); err != nil {
		return err
	}
	return nil
}
