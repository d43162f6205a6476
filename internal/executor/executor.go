// Package executor implements the Task Executor (spec.md §4.8): the
// component that takes an admitted Task, runs its orchestrator
// invocation to completion, and falls back to the Static Fallback
// Pipeline when the orchestrator made no progress.
package executor

import (
	"context"
	"time"

	"github.com/kandev/agentexec/internal/bus"
	"github.com/kandev/agentexec/internal/fallback"
	"github.com/kandev/agentexec/internal/model"
	"github.com/kandev/agentexec/internal/obslog"
	"github.com/kandev/agentexec/internal/roles"
	"github.com/kandev/agentexec/internal/runner"
	"github.com/kandev/agentexec/internal/sandbox"
	"github.com/kandev/agentexec/internal/scheduler"
	"github.com/kandev/agentexec/internal/streamparser"
	"go.uber.org/zap"
)

// orchestratorRole is the role name the executor resolves through the
// role registry to pick up the full read-write tool allowlist (the
// orchestrator's own system prompt comes from buildOrchestratorPrompt,
// not the role record).
const orchestratorRole = "orchestrator"

// Executor runs one task's orchestrator invocation and, when it spawns
// no child agents, the Static Fallback Pipeline.
type Executor struct {
	roles    *roles.Registry
	sched    *scheduler.Scheduler
	runner   *runner.Runner
	fallback *fallback.Pipeline
	bus      *bus.Bus
	logger   *obslog.Logger
}

// New builds an Executor.
func New(roleReg *roles.Registry, sched *scheduler.Scheduler, r *runner.Runner, fb *fallback.Pipeline, b *bus.Bus, logger *obslog.Logger) *Executor {
	return &Executor{
		roles:    roleReg,
		sched:    sched,
		runner:   r,
		fallback: fb,
		bus:      b,
		logger:   logger.WithFields(zap.String("component", "executor")),
	}
}

// Execute runs task to completion: sandbox gate, orchestrator
// invocation, then the fallback pipeline if the orchestrator spawned
// nothing (spec.md §4.8/§4.9).
func (e *Executor) Execute(ctx context.Context, task *model.Task, sb sandbox.Status) {
	task.SetExecutionMode(sb.Mode)

	if sb.Mode == model.ModeBlocked {
		task.Finish(model.TaskFailed)
		e.bus.PublishToTask(task.ID, bus.NewMessage("complete", map[string]any{
			"taskId":     task.ID,
			"status":     string(model.TaskFailed),
			"diagnostic": sandbox.BlockedDiagnostic("task " + task.ID),
		}))
		return
	}

	task.MarkStarted()
	e.bus.PublishToTask(task.ID, bus.NewMessage("task-status", map[string]any{
		"taskId": task.ID,
		"status": string(model.TaskRunning),
	}))

	rec := e.roles.Resolve(orchestratorRole)
	prompt := buildOrchestratorPrompt(task.Text, task.WorkDir)

	inv := runner.Invocation{
		TaskID:         task.ID,
		IsOrchestrator: true,
		Prompt:         prompt,
		Model:          task.Model,
		WorkDir:        task.WorkDir,
		Mode:           sb.Mode,
		AllowedTools:   rec.AllowedTools,
	}

	_, runErr := e.runner.Run(ctx, inv, func(line string) {
		e.dispatchOrchestratorLine(task.ID, line)
	})

	status := model.TaskCompleted
	if runErr != nil {
		status = model.TaskFailed
	}

	if e.sched.Count(task.ID) == 0 {
		e.logger.Info("orchestrator made no progress, engaging fallback pipeline",
			zap.String("taskId", task.ID))
		phases, fallbackStatus := e.fallback.Run(ctx, task.ID, task.Text, task.WorkDir, "", sb.Mode)
		task.SetPipeline(phases)
		status = fallbackStatus
	}

	task.SetFilesModified(e.collectFilesModified(task.ID))
	task.Finish(status)

	e.bus.PublishToTask(task.ID, bus.NewMessage("complete", map[string]any{
		"taskId":        task.ID,
		"status":        string(status),
		"filesModified": task.FilesModified(),
	}))
}

// collectFilesModified returns the deduplicated union of filesModified
// across every DynamicAgent spawned for taskID (spec.md §4.8).
func (e *Executor) collectFilesModified(taskID string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, agent := range e.sched.AllForTask(taskID) {
		for _, path := range agent.FilesModified() {
			if _, ok := seen[path]; ok {
				continue
			}
			seen[path] = struct{}{}
			out = append(out, path)
		}
	}
	return out
}

// dispatchOrchestratorLine parses one stdout line from the
// orchestrator's own subprocess and publishes it directly to the task
// stream; the orchestrator is not itself tracked in the scheduler's
// DynamicAgent table (spec.md §4.8: "the orchestrator is itself an
// ordinary agent invocation", but it is the root of the table, not a
// member of it).
func (e *Executor) dispatchOrchestratorLine(taskID, line string) {
	parsed := streamparser.Parse(line)
	for _, text := range parsed.Output {
		e.bus.PublishToTask(taskID, bus.NewMessage("orchestrator-output", map[string]any{
			"taskId": taskID,
			"text":   text,
			"ts":     time.Now().UnixMilli(),
		}))
	}
}
