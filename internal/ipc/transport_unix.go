//go:build !windows

package ipc

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"mini-ide/internal/userutil"
)

var socketNamePattern = regexp.MustCompile(`^mini-ide-[A-Za-z0-9._-]{1,128}\.sock$`)

func defaultAddress() string {
	return filepath.Join(os.TempDir(), "mini-ide-"+userutil.CurrentUsername()+".sock")
}

func validAddress(address string) bool {
	return filepath.IsAbs(address) && socketNamePattern.MatchString(filepath.Base(address))
}

func dial(address string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("unix", address, timeout)
}

// listen binds the unix socket, replacing a stale socket file left by a
// crashed instance. Callers hold the single-instance lock, so any existing
// file is stale.
func listen(address string) (net.Listener, error) {
	if err := os.Remove(address); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}
	ln, err := net.Listen("unix", address)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(address, 0o600); err != nil {
		ln.Close()
		return nil, fmt.Errorf("restrict socket permissions: %w", err)
	}
	return ln, nil
}

func cleanupAddress(address string) {
	if err := os.Remove(address); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Debug("[ipc] failed to remove socket file", "address", address, "error", err)
	}
}
