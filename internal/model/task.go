package model

import (
	"sync"
	"time"
)

// TaskStatus is a Task's lifecycle state.
type TaskStatus string

const (
	TaskQueued    TaskStatus = "queued"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// ExecutionMode records the sandbox decision a Task was admitted under
// (SPEC_FULL.md §4, sandbox.Status.Mode).
type ExecutionMode string

const (
	ModeNative        ExecutionMode = "native"
	ModeHostOverride  ExecutionMode = "host-override"
	ModeContainerWrap ExecutionMode = "container-wrap"
	ModeBlocked       ExecutionMode = "blocked"
)

// PhaseStatus is a fallback-pipeline Phase's lifecycle state.
type PhaseStatus string

const (
	PhasePending   PhaseStatus = "pending"
	PhaseRunning   PhaseStatus = "running"
	PhaseCompleted PhaseStatus = "completed"
	PhaseFailed    PhaseStatus = "failed"
	PhaseSkipped   PhaseStatus = "skipped"
)

// Phase is one node of the Static Fallback Pipeline's fixed DAG
// (spec.md §4.9).
type Phase struct {
	Name        string
	Group       int
	Status      PhaseStatus
	Role        string
	StartedAt   *time.Time
	CompletedAt *time.Time
	Output      []string
}

// Task is a user-submitted work item (spec.md §3). The engine's task
// table lock guards table membership; this struct's own mutex guards
// the mutable fields below, since the executor goroutine writes them
// concurrently with readers calling the status/result accessors from
// the API and websocket gateway — the same two-level scheme as
// DynamicAgent.
type Task struct {
	ID        string
	Text      string
	Model     string
	WorkDir   string
	CreatedAt time.Time

	mu            sync.Mutex
	status        TaskStatus
	executionMode ExecutionMode
	startedAt     *time.Time
	completedAt   *time.Time
	pipeline      []*Phase
	findingIDs    []string
	filesModified []string
}

// Status returns the task's current lifecycle state.
func (t *Task) Status() TaskStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// SetStatus moves the task to a non-terminal status (queued/running).
// Terminal transitions go through Finish.
func (t *Task) SetStatus(s TaskStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = s
}

// ExecutionMode returns the sandbox mode the task was admitted under.
func (t *Task) ExecutionMode() ExecutionMode {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.executionMode
}

// SetExecutionMode records the sandbox mode the task was admitted
// under.
func (t *Task) SetExecutionMode(m ExecutionMode) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.executionMode = m
}

// MarkStarted stamps the task's start time and moves it to running.
func (t *Task) MarkStarted() {
	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = TaskRunning
	t.startedAt = &now
}

// StartedAt returns the task's start time, or nil if not yet started.
func (t *Task) StartedAt() *time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.startedAt
}

// CompletedAt returns the task's completion time, or nil if not yet
// terminal.
func (t *Task) CompletedAt() *time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.completedAt
}

// Finish transitions the task to a terminal status and stamps the
// completion time, mirroring DynamicAgent.Finish's ordering.
func (t *Task) Finish(status TaskStatus) {
	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = status
	t.completedAt = &now
}

// SetPipeline records the Static Fallback Pipeline's phases, when it
// ran.
func (t *Task) SetPipeline(phases []*Phase) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pipeline = phases
}

// Pipeline returns the fallback pipeline's phases, or nil if it never
// ran.
func (t *Task) Pipeline() []*Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*Phase(nil), t.pipeline...)
}

// AddFindingID appends a finding id raised against this task.
func (t *Task) AddFindingID(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.findingIDs = append(t.findingIDs, id)
}

// FindingIDs returns every finding id raised against this task.
func (t *Task) FindingIDs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.findingIDs...)
}

// SetFilesModified records the union of files modified across every
// child agent spawned for this task (spec.md §4.8).
func (t *Task) SetFilesModified(files []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.filesModified = files
}

// FilesModified returns the files modified while executing this task.
func (t *Task) FilesModified() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.filesModified...)
}
