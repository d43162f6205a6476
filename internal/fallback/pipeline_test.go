package fallback

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/kandev/agentexec/internal/bus"
	"github.com/kandev/agentexec/internal/config"
	"github.com/kandev/agentexec/internal/model"
	"github.com/kandev/agentexec/internal/obslog"
	"github.com/kandev/agentexec/internal/runner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeAgentBinary(t *testing.T, exitCode int) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-agent.sh")
	script := fmt.Sprintf("#!/bin/sh\necho '{\"type\":\"result\",\"result\":\"done\"}'\nexit %d\n", exitCode)
	require.NoError(t, os.WriteFile(path, []byte(script), 0755))
	return path
}

func newTestPipeline(t *testing.T, exitCode int) *Pipeline {
	logger := obslog.Default()
	bin := fakeAgentBinary(t, exitCode)
	agentCfg := config.AgentConfig{BinaryPath: bin, DefaultModel: "default"}
	r := runner.New(agentCfg, config.DockerConfig{}, config.InternalConfig{}, "img", logger)
	b := bus.New(logger)
	return New(r, b, logger)
}

func TestAllSixPhasesRunAndCompleteOnSuccess(t *testing.T) {
	p := newTestPipeline(t, 0)
	phases, status := p.Run(context.Background(), "task-1", "build the widget", t.TempDir(), "", model.ModeNative)

	require.Len(t, phases, 6)
	assert.Equal(t, model.TaskCompleted, status)
	for _, ph := range phases {
		assert.Equal(t, model.PhaseCompleted, ph.Status)
	}
}

func TestAnyFailedPhaseFailsTheTask(t *testing.T) {
	p := newTestPipeline(t, 1)
	_, status := p.Run(context.Background(), "task-2", "build the widget", t.TempDir(), "", model.ModeNative)
	assert.Equal(t, model.TaskFailed, status)
}

func TestPhaseNamesMatchFixedDAG(t *testing.T) {
	p := newTestPipeline(t, 0)
	phases, _ := p.Run(context.Background(), "task-3", "x", t.TempDir(), "", model.ModeNative)

	names := make(map[string]int)
	for _, ph := range phases {
		names[ph.Name] = ph.Group
	}
	assert.Equal(t, 0, names["plan"])
	assert.Equal(t, 1, names["develop"])
	assert.Equal(t, 1, names["develop-2"])
	assert.Equal(t, 2, names["test"])
	assert.Equal(t, 2, names["security"])
	assert.Equal(t, 3, names["report"])
}
