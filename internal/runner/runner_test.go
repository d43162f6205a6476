package runner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kandev/agentexec/internal/config"
	"github.com/kandev/agentexec/internal/errs"
	"github.com/kandev/agentexec/internal/obslog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAgentBinary writes a tiny shell script that ignores its flags
// and emits the given stdout lines before exiting with exitCode. This
// stands in for the real agent binary, a black box per spec.md §1.
func fakeAgentBinary(t *testing.T, lines []string, exitCode int, sleep time.Duration) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-agent.sh")

	script := "#!/bin/sh\n"
	if sleep > 0 {
		script += "sleep " + sleep.String() + "\n"
	}
	for _, l := range lines {
		script += "echo '" + l + "'\n"
	}
	script += "exit " + itoa(exitCode) + "\n"

	require.NoError(t, os.WriteFile(path, []byte(script), 0755))
	return path
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf []byte
	for n > 0 {
		buf = append([]byte{byte('0' + n%10)}, buf...)
		n /= 10
	}
	if neg {
		buf = append([]byte{'-'}, buf...)
	}
	return string(buf)
}

func newTestRunner(t *testing.T, binaryPath string) *Runner {
	agentCfg := config.AgentConfig{BinaryPath: binaryPath, DefaultModel: "default", SidechannelPath: "sidechannel"}
	dockerCfg := config.DockerConfig{}
	internalCfg := config.InternalConfig{Host: "127.0.0.1", Port: 8801, Token: "secret"}
	return New(agentCfg, dockerCfg, internalCfg, "agentexec-runner:latest", obslog.Default())
}

func TestRunSuccessDispatchesLines(t *testing.T) {
	bin := fakeAgentBinary(t, []string{
		`{"type":"assistant","message":{"content":[{"type":"text","text":"hi"}]}}`,
	}, 0, 0)
	r := newTestRunner(t, bin)

	var lines []string
	res, err := r.Run(context.Background(), Invocation{
		TaskID: "task-1", WorkDir: t.TempDir(), Prompt: "do the thing",
	}, func(line string) { lines = append(lines, line) })

	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	require.Len(t, lines, 1)
}

func TestRunNonZeroExitIsSubprocessFailure(t *testing.T) {
	bin := fakeAgentBinary(t, nil, 1, 0)
	r := newTestRunner(t, bin)

	_, err := r.Run(context.Background(), Invocation{TaskID: "task-2", WorkDir: t.TempDir(), Prompt: "x"}, func(string) {})
	assert.ErrorIs(t, err, errs.ErrSubprocessFailure)
}

func TestRunMissingBinaryIsMissingCollaborator(t *testing.T) {
	agentCfg := config.AgentConfig{BinaryPath: "/nonexistent/agent-binary-xyz", DefaultModel: "default"}
	r := New(agentCfg, config.DockerConfig{}, config.InternalConfig{}, "img", obslog.Default())

	_, err := r.Run(context.Background(), Invocation{TaskID: "task-3", WorkDir: t.TempDir(), Prompt: "x"}, func(string) {})
	assert.ErrorIs(t, err, errs.ErrMissingCollaborator)
}

func TestRunTimeoutKillsProcessAndReturnsErrTimeout(t *testing.T) {
	bin := fakeAgentBinary(t, []string{`{"type":"output","text":"should never be seen"}`}, 0, 2*time.Second)
	r := newTestRunner(t, bin)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	var lines []string
	res, err := r.Run(ctx, Invocation{TaskID: "task-4", WorkDir: t.TempDir(), Prompt: "x"}, func(line string) {
		lines = append(lines, line)
	})

	assert.ErrorIs(t, err, errs.ErrTimeout)
	assert.True(t, res.TimedOut)
	assert.Equal(t, -1, res.ExitCode)
	require.Len(t, lines, 1, "a synthetic timeout line should be delivered to the caller")
}

func TestContainerWrapRewritesArgv(t *testing.T) {
	inner := []string{"/usr/local/bin/agent", "-p", "hello", "--sidechannel-config", "/tmp/sc.json"}
	argv := wrapForContainer("agentexec-runner:latest", "/home/me/proj", "/home/me/.creds", "/tmp/sc.json", inner)

	assert.Contains(t, argv, "agentexec-runner:latest")
	assert.Contains(t, argv, "agent")
	found := false
	for _, a := range argv {
		if a == containerSidechannelConfigPath {
			found = true
		}
	}
	assert.True(t, found, "inner config path should be rewritten to the in-container mount point")
}
