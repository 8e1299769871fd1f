package lock

import "errors"

// ErrLockTimeout is returned when a user's lock cannot be acquired within the timeout.
var ErrLockTimeout = errors.New("lock acquisition timeout")
