//go:build windows

package ipc

import (
	"errors"
	"fmt"
	"net"
	"os/user"
	"regexp"
	"strings"
	"time"

	"github.com/Microsoft/go-winio"

	"mini-ide/internal/userutil"
)

const defaultPipePrefix = `\\.\pipe\mini-ide-`

var pipeNamePattern = regexp.MustCompile(`(?i)^\\\\\.\\pipe\\mini-ide-[a-z0-9._-]{1,128}$`)

func defaultAddress() string {
	return defaultPipePrefix + userutil.CurrentUsername()
}

func validAddress(address string) bool {
	return pipeNamePattern.MatchString(address)
}

func dial(address string, timeout time.Duration) (net.Conn, error) {
	return winio.DialPipe(address, &timeout)
}

// listen creates a named pipe restricted to the current user. The DACL
// grants full access only to SYSTEM and the current user's SID.
func listen(address string) (net.Listener, error) {
	securityDescriptor, err := pipeSecurityDescriptor()
	if err != nil {
		return nil, err
	}
	return winio.ListenPipe(address, &winio.PipeConfig{
		SecurityDescriptor: securityDescriptor,
		MessageMode:        false,
		InputBufferSize:    int32(maxRequestBytes),
		OutputBufferSize:   int32(maxResponseBytes),
	})
}

var validSIDPattern = regexp.MustCompile(`^S-1(-\d+)+$`)

func pipeSecurityDescriptor() (string, error) {
	current, err := user.Current()
	if err != nil {
		return "", fmt.Errorf("resolve current user: %w", err)
	}
	sid := strings.TrimSpace(current.Uid)
	if sid == "" {
		return "", errors.New("current user SID is unavailable")
	}
	if !validSIDPattern.MatchString(sid) {
		return "", fmt.Errorf("current user SID has unexpected format: %s", sid)
	}
	// D:P protected DACL; GA for SYSTEM and the current user.
	return fmt.Sprintf("D:P(A;;GA;;;SY)(A;;GA;;;%s)", sid), nil
}

// cleanupAddress is a no-op; the pipe disappears with its last handle.
func cleanupAddress(string) {}
