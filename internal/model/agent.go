package model

import (
	"sync"
	"time"
)

// AgentStatus is a DynamicAgent's lifecycle state (spec.md §4.6).
type AgentStatus string

const (
	AgentPending   AgentStatus = "pending"
	AgentRunning   AgentStatus = "running"
	AgentCompleted AgentStatus = "completed"
	AgentFailed    AgentStatus = "failed"
)

// OutputCap bounds how many of an agent's output lines are returned by
// status/result API responses (spec.md §4.6 "output retention policy").
const OutputCap = 500

// Signal is a broadcast one-shot completion primitive. It is set exactly
// once; any number of goroutines may wait on it concurrently, with or
// without a deadline. This is the primitive spec.md §9 calls for: "the
// agent record holds the signal; callers borrow the signal by id."
type Signal struct {
	ch   chan struct{}
	once sync.Once
}

// NewSignal returns a fresh, unset Signal.
func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{})}
}

// Fire sets the signal. Safe to call more than once; only the first
// call has any effect.
func (s *Signal) Fire() {
	s.once.Do(func() { close(s.ch) })
}

// Done returns the channel that closes when Fire is called, for use in
// a select alongside a timer.
func (s *Signal) Done() <-chan struct{} {
	return s.ch
}

// DynamicAgent is a child agent process record
// (spec.md §3). The owning scheduler's per-task lock guards table
// membership; this struct's own mutex guards the mutable fields below
// since the launch goroutine writes them concurrently with readers
// calling the status/result accessors.
type DynamicAgent struct {
	ID     string
	TaskID string
	Role   string
	Name   string
	Task   string
	Color  string
	Icon   string

	SpawnedAt time.Time
	Done      *Signal

	mu            sync.Mutex
	status        AgentStatus
	output        []string
	filesModified []string
	filesRead     []string
	completedAt   *time.Time
}

// Status returns the agent's current lifecycle state.
func (a *DynamicAgent) Status() AgentStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// SetStatus moves the agent to a non-terminal status (pending/running).
// Terminal transitions go through Finish.
func (a *DynamicAgent) SetStatus(s AgentStatus) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.status = s
}

// CompletedAt returns the completion timestamp, or nil if still running.
func (a *DynamicAgent) CompletedAt() *time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.completedAt
}

// AppendOutput appends a line to the agent's retained output.
func (a *DynamicAgent) AppendOutput(line string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.output = append(a.output, line)
}

// TailOutput returns at most the most recent OutputCap lines.
func (a *DynamicAgent) TailOutput() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.output) <= OutputCap {
		return append([]string(nil), a.output...)
	}
	return append([]string(nil), a.output[len(a.output)-OutputCap:]...)
}

// recordFile appends path to list if not already present.
func recordFile(list []string, path string) []string {
	for _, p := range list {
		if p == path {
			return list
		}
	}
	return append(list, path)
}

// RecordFileRead appends path to the read set, deduplicated.
func (a *DynamicAgent) RecordFileRead(path string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.filesRead = recordFile(a.filesRead, path)
}

// RecordFileModified appends path to the modified set, deduplicated.
func (a *DynamicAgent) RecordFileModified(path string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.filesModified = recordFile(a.filesModified, path)
}

// FilesModified returns the deduplicated set of paths this agent modified.
func (a *DynamicAgent) FilesModified() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.filesModified...)
}

// FilesRead returns the deduplicated set of paths this agent read.
func (a *DynamicAgent) FilesRead() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.filesRead...)
}

// Finish transitions the agent to a terminal status, stamps the
// completion time, and fires the completion signal — in that order,
// per the invariant in spec.md §3: "the signal is set exactly once,
// and only after status and completed_time are written."
func (a *DynamicAgent) Finish(status AgentStatus) {
	now := time.Now()
	a.mu.Lock()
	a.status = status
	a.completedAt = &now
	a.mu.Unlock()
	a.Done.Fire()
}

// IsTerminal reports whether the agent has reached a terminal status.
func (a *DynamicAgent) IsTerminal() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status == AgentCompleted || a.status == AgentFailed
}
