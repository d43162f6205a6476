package model

import "sync"

// MaxQuestionPromptBytes bounds an ask_user question's prompt text
// (SPEC_FULL.md §4: 10KB).
const MaxQuestionPromptBytes = 10 * 1024

// MaxSuggestedAnswers bounds the suggested-options list on ask_user.
const MaxSuggestedAnswers = 20

// PendingQuestion is a blocking ask_user call awaiting a human answer
// (spec.md §3).
type PendingQuestion struct {
	ID        string
	TaskID    string
	Prompt    string
	Suggested []string
	Done      *Signal

	mu     sync.Mutex
	answer *string
}

// SetAnswer writes the answer exactly once and fires the completion
// signal immediately after, per the invariant in spec.md §3.
// Returns false if an answer was already set.
func (q *PendingQuestion) SetAnswer(answer string) bool {
	q.mu.Lock()
	if q.answer != nil {
		q.mu.Unlock()
		return false
	}
	q.answer = &answer
	q.mu.Unlock()
	q.Done.Fire()
	return true
}

// Answer returns the recorded answer, or "", false if none yet.
func (q *PendingQuestion) Answer() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.answer == nil {
		return "", false
	}
	return *q.answer, true
}

// IsAnswered reports whether an answer has been written.
func (q *PendingQuestion) IsAnswered() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.answer != nil
}
