package conversation

import "errors"

// Sentinel errors for conversation storage.
// These errors are part of the Store's public API and should be checked
// using errors.Is().
//
// Example:
//
//	conv, err := store.Get(ctx, id)
//	if errors.Is(err, conversation.ErrNotFound) {
//	    // Handle missing conversation
//	}
var (
	// ErrNotFound indicates the requested conversation does not exist.
	ErrNotFound = errors.New("conversation not found")

	// ErrForbidden indicates the conversation is owned by a different student.
	ErrForbidden = errors.New("conversation owned by another student")
)
