package domain

import "errors"

// ErrInvalidTask marks input that would violate a task invariant. It is a
// caller error; unknown ids are never reported through it.
var ErrInvalidTask = errors.New("invalid task")
