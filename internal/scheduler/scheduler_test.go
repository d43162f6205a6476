package scheduler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kandev/agentexec/internal/bus"
	"github.com/kandev/agentexec/internal/config"
	"github.com/kandev/agentexec/internal/errs"
	"github.com/kandev/agentexec/internal/model"
	"github.com/kandev/agentexec/internal/obslog"
	"github.com/kandev/agentexec/internal/roles"
	"github.com/kandev/agentexec/internal/runner"
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

func newTestScheduler(t *testing.T, binaryPath string, onFind FindingSink) *Scheduler {
	logger := obslog.Default()
	agentCfg := config.AgentConfig{BinaryPath: binaryPath, DefaultModel: "default"}
	r := runner.New(agentCfg, config.DockerConfig{}, config.InternalConfig{Host: "127.0.0.1", Port: 8801, Token: "t"}, "img", logger)
	b := bus.New(logger)
	return New(roles.NewRegistry(), b, r, onFind, logger)
}

func TestSpawnAssignsRoleAppearance(t *testing.T) {
	bin := fakeAgentBinary(t, []string{`{"type":"result","result":"done"}`}, 0)
	s := newTestScheduler(t, bin, nil)

	agent, err := s.Spawn(context.Background(), SpawnRequest{TaskID: "task-1", Role: "tester", Name: "t1", Task: "write tests", WorkDir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, "#22c55e", agent.Color)
	assert.Equal(t, "TestTube2", agent.Icon)
}

func TestSpawnRejectsOverCapWithoutMutatingTable(t *testing.T) {
	bin := fakeAgentBinary(t, nil, 0)
	s := newTestScheduler(t, bin, nil)

	for i := 0; i < MaxAgentsPerTask; i++ {
		_, err := s.Spawn(context.Background(), SpawnRequest{TaskID: "task-cap", Role: "developer", Task: "x", WorkDir: t.TempDir()})
		require.NoError(t, err)
	}
	before := s.Count("task-cap")

	_, err := s.Spawn(context.Background(), SpawnRequest{TaskID: "task-cap", Role: "developer", Task: "x", WorkDir: t.TempDir()})
	assert.ErrorIs(t, err, errs.ErrClientResourceLimit)
	assert.Equal(t, before, s.Count("task-cap"), "rejected spawn must not mutate the agent table")
	assert.Equal(t, MaxAgentsPerTask, before)
}

func TestAwaitOneReturnsOnceTerminal(t *testing.T) {
	bin := fakeAgentBinary(t, []string{`{"type":"result","result":"ok"}`}, 0)
	s := newTestScheduler(t, bin, nil)

	agent, err := s.Spawn(context.Background(), SpawnRequest{TaskID: "task-2", Role: "developer", Task: "x", WorkDir: t.TempDir()})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	got, err := s.AwaitOne(ctx, agent.ID)
	require.NoError(t, err)
	assert.True(t, got.IsTerminal())
}

func TestAwaitManySkipsUnknownIDsAndPreservesOrder(t *testing.T) {
	bin := fakeAgentBinary(t, []string{`{"type":"result","result":"ok"}`}, 0)
	s := newTestScheduler(t, bin, nil)

	a1, err := s.Spawn(context.Background(), SpawnRequest{TaskID: "task-3", Role: "developer", Task: "x", WorkDir: t.TempDir()})
	require.NoError(t, err)
	a2, err := s.Spawn(context.Background(), SpawnRequest{TaskID: "task-3", Role: "tester", Task: "y", WorkDir: t.TempDir()})
	require.NoError(t, err)

	results := s.AwaitMany(context.Background(), []string{a1.ID, "unknown-id", a2.ID}, 5*time.Second)
	require.Len(t, results, 2)
	assert.Equal(t, a1.ID, results[0].ID)
	assert.Equal(t, a2.ID, results[1].ID)
}

func TestClampWaitTimeoutBounds(t *testing.T) {
	assert.Equal(t, MinWaitTimeout, ClampWaitTimeout(0))
	assert.Equal(t, MaxWaitTimeout, ClampWaitTimeout(time.Hour))
	assert.Equal(t, 10*time.Second, ClampWaitTimeout(10*time.Second))
}

func TestFailedAgentPublishesFailedStatus(t *testing.T) {
	bin := fakeAgentBinary(t, nil, 1)
	s := newTestScheduler(t, bin, nil)

	agent, err := s.Spawn(context.Background(), SpawnRequest{TaskID: "task-4", Role: "developer", Task: "x", WorkDir: t.TempDir()})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	got, err := s.AwaitOne(ctx, agent.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AgentFailed, got.Status())
}
