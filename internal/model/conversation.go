package model

// ConversationEntry is one turn of a console conversation's transcript.
type ConversationEntry struct {
	Role string // "user" or "console"
	Text string
}

// Conversation is a console session that may drive a Task
// (SPEC_FULL.md §10). It is never destroyed proactively; the engine is
// in-memory only and conversations live for the process lifetime.
type Conversation struct {
	ID           string
	ActiveTaskID string
	Transcript   []ConversationEntry
}
