package generate

import "strings"

// Turn is one prior exchange handed to the provider.
type Turn struct {
	Role    string // "user" or "assistant"
	Content string
}

// Request is the assembled input for one generation call.
type Request struct {
	// System is the standing instruction block.
	System string

	// GroundingContext is retrieved reference text; empty when retrieval
	// returned nothing.
	GroundingContext string

	// History is the prior turn history, oldest first.
	History []Turn

	// UserMessage is the new user turn.
	UserMessage string
}

// SystemInstruction renders the full system block: the standing instruction
// with the grounding context appended only when retrieval returned results.
func (r Request) SystemInstruction() string {
	if r.GroundingContext == "" {
		return r.System
	}
	var b strings.Builder
	b.WriteString(r.System)
	b.WriteString("\n\nUse the following course material to ground your answer:\n\n")
	b.WriteString(r.GroundingContext)
	return b.String()
}

// Result is the outcome of a non-streaming generation call.
type Result struct {
	Content    string
	TokensUsed int
	Model      string
}
