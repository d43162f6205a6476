package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/kandev/agentexec/internal/config"
	"github.com/kandev/agentexec/internal/model"
	"github.com/kandev/agentexec/internal/obslog"
	"github.com/kandev/agentexec/internal/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSubscriber captures every frame delivered to it, standing
// in for a websocket client in tests that assert on event ordering.
type recordingSubscriber struct {
	id string
	mu sync.Mutex
	in []map[string]any
}

func (r *recordingSubscriber) ID() string { return r.id }

func (r *recordingSubscriber) Send(payload []byte) error {
	var frame map[string]any
	if err := json.Unmarshal(payload, &frame); err != nil {
		return err
	}
	r.mu.Lock()
	r.in = append(r.in, frame)
	r.mu.Unlock()
	return nil
}

func (r *recordingSubscriber) framesOfType(msgType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, f := range r.in {
		if f["type"] == msgType {
			n++
		}
	}
	return n
}

func fakeAgentBinary(t *testing.T, lines []string, exitCode int) string {
	t.Helper()
	return fakeAgentBinaryWithSleep(t, lines, exitCode, 0)
}

func fakeAgentBinaryWithSleep(t *testing.T, lines []string, exitCode int, sleep time.Duration) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-agent.sh")
	script := "#!/bin/sh\n"
	if sleep > 0 {
		script += fmt.Sprintf("sleep %g\n", sleep.Seconds())
	}
	for _, l := range lines {
		script += "echo '" + l + "'\n"
	}
	script += fmt.Sprintf("exit %d\n", exitCode)
	require.NoError(t, os.WriteFile(path, []byte(script), 0755))
	return path
}

func newTestEngine(t *testing.T, binaryPath string) *Engine {
	cfg := &config.Config{
		Server:   config.ServerConfig{Host: "127.0.0.1"},
		Sandbox:  config.SandboxConfig{ContainerImage: "img"},
		Agent:    config.AgentConfig{BinaryPath: binaryPath, DefaultModel: "default", SidechannelPath: "agentexec-sidechannel"},
		Internal: config.InternalConfig{Host: "127.0.0.1", Port: 8801},
	}
	e, err := New(cfg, obslog.Default())
	require.NoError(t, err)
	return e
}

func TestSubmitTaskRunsToCompletion(t *testing.T) {
	bin := fakeAgentBinary(t, []string{`{"type":"result","result":"no sub-agents needed"}`}, 0)
	e := newTestEngine(t, bin)

	task := e.SubmitTask(context.Background(), "do the thing", t.TempDir(), "")
	assert.NotEmpty(t, task.ID)

	require.Eventually(t, func() bool {
		return task.Status() == model.TaskCompleted || task.Status() == model.TaskFailed
	}, 30*time.Second, 50*time.Millisecond)

	got, ok := e.Task(task.ID)
	require.True(t, ok)
	assert.Equal(t, task.ID, got.ID)
}

// TestHappyPathMultiWaveCompletion simulates the orchestrator spawning
// a developer in one wave and a tester plus security-reviewer in a
// second wave (the sub-agent spawns a real MCP-driven orchestrator
// would make via the sidechannel's spawn_agent/spawn_agents tools are
// stood in for here by calling the scheduler directly, the same
// simulation the executor package's own tests use) while its own
// subprocess is still running, then asserts the task completes with
// at least three agents tracked and exactly one "complete" frame.
func TestHappyPathMultiWaveCompletion(t *testing.T) {
	// Give the fake orchestrator subprocess long enough to still be
	// "running" while the simulated waves below are spawned on its
	// engine's own scheduler — standing in for the spawn_agent/
	// spawn_agents tool calls a real orchestrator would make over the
	// sidechannel, the same simulation internal/executor's own tests
	// use.
	slowBin := fakeAgentBinaryWithSleep(t, []string{
		`{"type":"result","result":"spawned developer then tester and security-reviewer"}`,
	}, 0, 300*time.Millisecond)

	e := newTestEngine(t, slowBin)
	task := e.SubmitTask(context.Background(), "add /healthz endpoint", t.TempDir(), "")

	sub := &recordingSubscriber{id: "test-subscriber"}
	_, err := e.bus.Subscribe("task/"+task.ID, sub)
	require.NoError(t, err)

	for _, req := range []scheduler.SpawnRequest{
		{TaskID: task.ID, Role: "developer", Task: "add the endpoint", WorkDir: task.WorkDir},
		{TaskID: task.ID, Role: "tester", Task: "test the endpoint", WorkDir: task.WorkDir},
		{TaskID: task.ID, Role: "security-reviewer", Task: "review the endpoint", WorkDir: task.WorkDir},
	} {
		_, err := e.scheduler.Spawn(context.Background(), req)
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		return task.Status() == model.TaskCompleted || task.Status() == model.TaskFailed
	}, 30*time.Second, 50*time.Millisecond)

	assert.Equal(t, model.TaskCompleted, task.Status())
	assert.GreaterOrEqual(t, e.scheduler.Count(task.ID), 3)
	assert.Equal(t, 1, sub.framesOfType("complete"), "complete must broadcast exactly once")
}

func TestConversationLinksDualBroadcast(t *testing.T) {
	e := newTestEngine(t, "/does/not/matter")

	conv := e.StartConversation()
	require.NotEmpty(t, conv.ID)

	ok := e.AttachConversationToTask(conv.ID, "task-xyz")
	require.True(t, ok)

	linked := e.conversationsForTask("task/task-xyz")
	require.Len(t, linked, 1)
	assert.Equal(t, conv.ID, linked[0])
}

func TestAttachConversationToUnknownIDFails(t *testing.T) {
	e := newTestEngine(t, "/does/not/matter")
	assert.False(t, e.AttachConversationToTask("no-such-conversation", "task-1"))
}

func TestTokenIsGeneratedWhenConfigOmitsOne(t *testing.T) {
	e := newTestEngine(t, "/does/not/matter")
	assert.NotEmpty(t, e.cfg.Internal.Token)
}
