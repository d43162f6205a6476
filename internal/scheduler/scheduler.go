// Package scheduler implements the Dynamic Agent Scheduler (spec.md
// §4.6): spawn, status, await-one, and await-many over per-task
// DynamicAgent tables, plus the launcher that actually runs each
// agent's subprocess and dispatches its stream.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kandev/agentexec/internal/bus"
	"github.com/kandev/agentexec/internal/errs"
	"github.com/kandev/agentexec/internal/model"
	"github.com/kandev/agentexec/internal/obslog"
	"github.com/kandev/agentexec/internal/roles"
	"github.com/kandev/agentexec/internal/runner"
	"go.uber.org/zap"
)

// MaxAgentsPerTask bounds how many DynamicAgents a single task may
// accumulate (spec.md §3 invariant, default 100).
const MaxAgentsPerTask = 100

// AwaitOneDeadline is the long-poll window for a single-agent wait
// (spec.md §4.6).
const AwaitOneDeadline = 30 * time.Second

// MaxWaitTimeout is the ceiling on a caller-supplied wait_for_agents
// timeout (spec.md §4.6, §5).
const MaxWaitTimeout = 900 * time.Second

// MinWaitTimeout is the floor on a caller-supplied timeout
// (SPEC_FULL.md §4, supplemented from original_source/).
const MinWaitTimeout = 1 * time.Second

type taskAgents struct {
	mu   sync.Mutex
	byID map[string]*model.DynamicAgent
}

// FinishedFinding is emitted by the launcher when a result line matches
// a finding rule; the caller (Task Executor/engine) assigns it an id
// and records it against the task.
type FinishedFinding struct {
	TaskID  string
	Finding model.Finding
}

// FindingSink receives findings as they are parsed from agent output.
type FindingSink func(FinishedFinding)

// Scheduler owns every task's DynamicAgent table and launches their
// subprocesses.
type Scheduler struct {
	mu         sync.RWMutex
	tasks      map[string]*taskAgents
	agentIndex map[string]*model.DynamicAgent // id -> agent, for O(1) status/result lookup

	idGen   *model.IDGenerator
	roles   *roles.Registry
	bus     *bus.Bus
	runner  *runner.Runner
	logger  *obslog.Logger
	onFind  FindingSink
}

// New builds a Scheduler.
func New(roleReg *roles.Registry, b *bus.Bus, r *runner.Runner, onFind FindingSink, logger *obslog.Logger) *Scheduler {
	return &Scheduler{
		tasks:      make(map[string]*taskAgents),
		agentIndex: make(map[string]*model.DynamicAgent),
		idGen:      model.NewIDGenerator("agent"),
		roles:      roleReg,
		bus:        b,
		runner:     r,
		onFind:     onFind,
		logger:     logger.WithFields(zap.String("component", "scheduler")),
	}
}

func (s *Scheduler) tableFor(taskID string) *taskAgents {
	s.mu.Lock()
	defer s.mu.Unlock()
	ta, ok := s.tasks[taskID]
	if !ok {
		ta = &taskAgents{byID: make(map[string]*model.DynamicAgent)}
		s.tasks[taskID] = ta
	}
	return ta
}

// SpawnRequest describes one agent to launch.
type SpawnRequest struct {
	TaskID  string
	Role    string
	Name    string
	Task    string
	Model   string
	WorkDir string
	CredsDir string
	Mode    model.ExecutionMode
}

// Spawn implements the spawn algorithm of spec.md §4.6: the per-task
// cap is checked, and rejection on exceeding it leaves the table
// untouched, before any id is allocated (an ordering improvement over
// original_source/backend/routes/internal_dynamic.py, which allocates
// the id before checking the cap; spec.md §8's boundary test requires
// the rejected call not mutate the agent table at all).
func (s *Scheduler) Spawn(ctx context.Context, req SpawnRequest) (*model.DynamicAgent, error) {
	ta := s.tableFor(req.TaskID)

	ta.mu.Lock()
	if len(ta.byID) >= MaxAgentsPerTask {
		ta.mu.Unlock()
		return nil, fmt.Errorf("%w: task %s already has %d agents", errs.ErrClientResourceLimit, req.TaskID, MaxAgentsPerTask)
	}

	rec := s.roles.Resolve(req.Role)
	agent := &model.DynamicAgent{
		ID:        s.idGen.Next(),
		TaskID:    req.TaskID,
		Role:      req.Role,
		Name:      req.Name,
		Task:      req.Task,
		Color:     rec.Color,
		Icon:      rec.Icon,
		SpawnedAt: time.Now(),
		Done:      model.NewSignal(),
	}
	agent.SetStatus(model.AgentPending)
	ta.byID[agent.ID] = agent
	ta.mu.Unlock()

	s.mu.Lock()
	s.agentIndex[agent.ID] = agent
	s.mu.Unlock()

	s.bus.PublishToTask(req.TaskID, bus.NewMessage("agent-spawn", map[string]any{
		"agentId": agent.ID,
		"taskId":  req.TaskID,
		"role":    agent.Role,
		"name":    agent.Name,
		"color":   agent.Color,
		"icon":    agent.Icon,
		"status":  string(agent.Status()),
	}))

	go s.launch(context.WithoutCancel(ctx), agent, req, rec)

	return agent, nil
}

// Status returns the agent's current snapshot without blocking
// (spec.md §4.5 GET /agent/{id}/status).
func (s *Scheduler) Status(agentID string) (*model.DynamicAgent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.agentIndex[agentID]
	return a, ok
}

// Count returns how many agents are currently tracked for taskID.
func (s *Scheduler) Count(taskID string) int {
	s.mu.RLock()
	ta, ok := s.tasks[taskID]
	s.mu.RUnlock()
	if !ok {
		return 0
	}
	ta.mu.Lock()
	defer ta.mu.Unlock()
	return len(ta.byID)
}

// AllForTask returns every agent spawned for taskID, for use by the
// Task Executor collecting the union of filesModified on exit.
func (s *Scheduler) AllForTask(taskID string) []*model.DynamicAgent {
	s.mu.RLock()
	ta, ok := s.tasks[taskID]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	ta.mu.Lock()
	defer ta.mu.Unlock()
	out := make([]*model.DynamicAgent, 0, len(ta.byID))
	for _, a := range ta.byID {
		out = append(out, a)
	}
	return out
}
