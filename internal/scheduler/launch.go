package scheduler

import (
	"context"
	"time"

	"github.com/kandev/agentexec/internal/bus"
	"github.com/kandev/agentexec/internal/model"
	"github.com/kandev/agentexec/internal/roles"
	"github.com/kandev/agentexec/internal/runner"
	"github.com/kandev/agentexec/internal/streamparser"
)

// launch runs agent's subprocess to completion and dispatches every
// parsed stream event to the bus, mirroring the stream-dispatch loop
// of dynamic_orchestrator.py but with Go types instead of an untyped
// dict switch.
func (s *Scheduler) launch(ctx context.Context, agent *model.DynamicAgent, req SpawnRequest, rec roles.Record) {
	agent.SetStatus(model.AgentRunning)
	s.bus.PublishToTask(req.TaskID, bus.NewMessage("agent-status", map[string]any{
		"agentId": agent.ID,
		"status":  string(model.AgentRunning),
	}))

	inv := runner.Invocation{
		TaskID:       req.TaskID,
		AgentID:      agent.ID,
		Prompt:       req.Task,
		Model:        req.Model,
		WorkDir:      req.WorkDir,
		CredsDir:     req.CredsDir,
		Mode:         req.Mode,
		AllowedTools: rec.AllowedTools,
	}

	_, runErr := s.runner.Run(ctx, inv, func(line string) {
		s.dispatchLine(agent, req.TaskID, line)
	})

	final := model.AgentCompleted
	if runErr != nil {
		final = model.AgentFailed
	}
	agent.Finish(final)

	s.bus.PublishToTask(req.TaskID, bus.NewMessage("agent-complete", map[string]any{
		"agentId":       agent.ID,
		"status":        string(final),
		"filesModified": agent.FilesModified(),
	}))
}

func (s *Scheduler) dispatchLine(agent *model.DynamicAgent, taskID, line string) {
	parsed := streamparser.Parse(line)

	for _, text := range parsed.Output {
		agent.AppendOutput(text)
		s.bus.PublishToTask(taskID, bus.NewMessage("agent-output", map[string]any{
			"agentId": agent.ID,
			"text":    text,
			"ts":      time.Now().UnixMilli(),
		}))
	}

	for _, tu := range parsed.ToolUses {
		if action, ok := streamparser.FileAffectingAction(tu.Name); ok {
			path := streamparser.ToolFilePath(tu.Input)
			if path == "" {
				continue
			}
			switch action {
			case "read":
				agent.RecordFileRead(path)
			case "edit", "create":
				agent.RecordFileModified(path)
			}
			s.bus.PublishToTask(taskID, bus.NewMessage("file-activity", map[string]any{
				"agentId": agent.ID,
				"action":  action,
				"path":    path,
			}))
		}
	}

	if parsed.IsResult && s.onFind != nil {
		for _, outLine := range parsed.Output {
			finding, ok := streamparser.ParseFinding(outLine, agent.Role)
			if !ok {
				continue
			}
			s.onFind(FinishedFinding{TaskID: taskID, Finding: finding})
			s.bus.PublishToTask(taskID, bus.NewMessage("finding", map[string]any{
				"agentId":  agent.ID,
				"severity": string(finding.Severity),
				"title":    finding.Title,
			}))
		}
	}
}
