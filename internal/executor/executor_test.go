package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kandev/agentexec/internal/bus"
	"github.com/kandev/agentexec/internal/config"
	"github.com/kandev/agentexec/internal/fallback"
	"github.com/kandev/agentexec/internal/model"
	"github.com/kandev/agentexec/internal/obslog"
	"github.com/kandev/agentexec/internal/roles"
	"github.com/kandev/agentexec/internal/runner"
	"github.com/kandev/agentexec/internal/sandbox"
	"github.com/kandev/agentexec/internal/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeAgentBinary(t *testing.T, lines []string, exitCode int) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-agent.sh")
	script := "#!/bin/sh\n"
	for _, l := range lines {
		script += "echo '" + l + "'\n"
	}
	script += fmt.Sprintf("exit %d\n", exitCode)
	require.NoError(t, os.WriteFile(path, []byte(script), 0755))
	return path
}

func newTestExecutor(t *testing.T, binaryPath string) *Executor {
	logger := obslog.Default()
	agentCfg := config.AgentConfig{BinaryPath: binaryPath, DefaultModel: "default"}
	r := runner.New(agentCfg, config.DockerConfig{}, config.InternalConfig{Host: "127.0.0.1", Port: 8801, Token: "t"}, "img", logger)
	b := bus.New(logger)
	roleReg := roles.NewRegistry()
	sched := scheduler.New(roleReg, b, r, nil, logger)
	fb := fallback.New(r, b, logger)
	return New(roleReg, sched, r, fb, b, logger)
}

func TestExecuteRejectsBlockedSandbox(t *testing.T) {
	e := newTestExecutor(t, "/does/not/matter")
	task := &model.Task{ID: "task-blocked", Text: "do the thing", WorkDir: t.TempDir(), CreatedAt: time.Now()}

	e.Execute(context.Background(), task, sandbox.Status{Mode: model.ModeBlocked})

	assert.Equal(t, model.TaskFailed, task.Status())
	assert.Equal(t, model.ModeBlocked, task.ExecutionMode())
	assert.NotNil(t, task.CompletedAt())
}

func TestExecuteEngagesFallbackWhenOrchestratorSpawnsNothing(t *testing.T) {
	bin := fakeAgentBinary(t, []string{`{"type":"result","result":"no sub-agents needed"}`}, 0)
	e := newTestExecutor(t, bin)
	task := &model.Task{ID: "task-no-progress", Text: "do the thing", WorkDir: t.TempDir(), CreatedAt: time.Now()}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	e.Execute(ctx, task, sandbox.Status{Mode: model.ModeNative})

	assert.NotEmpty(t, task.Pipeline(), "fallback pipeline should have run and recorded phases")
	assert.Contains(t, []model.TaskStatus{model.TaskCompleted, model.TaskFailed}, task.Status())
}

func TestExecuteSkipsFallbackWhenOrchestratorSpawnedAgents(t *testing.T) {
	bin := fakeAgentBinary(t, []string{`{"type":"result","result":"done"}`}, 0)
	e := newTestExecutor(t, bin)
	task := &model.Task{ID: "task-progress", Text: "do the thing", WorkDir: t.TempDir(), CreatedAt: time.Now()}

	_, err := e.sched.Spawn(context.Background(), scheduler.SpawnRequest{
		TaskID: task.ID, Role: "developer", Task: "sub-task", WorkDir: task.WorkDir,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	e.Execute(ctx, task, sandbox.Status{Mode: model.ModeNative})

	assert.Empty(t, task.Pipeline(), "fallback pipeline must not run when the orchestrator made progress")
	assert.Equal(t, model.TaskCompleted, task.Status())
}
