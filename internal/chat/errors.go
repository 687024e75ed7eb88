package chat

import "errors"

// ErrEmptyMessage reports a send with no message content after trimming.
var ErrEmptyMessage = errors.New("message must not be empty")
