// Package singleinstance keeps one IDE process per user. A second launch
// forwards its request to the running instance and exits.
package singleinstance

import "errors"

// ErrAlreadyRunning is returned by TryLock when another instance holds the lock.
var ErrAlreadyRunning = errors.New("another instance is already running")
