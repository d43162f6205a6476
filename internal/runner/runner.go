// Package runner implements the Subprocess Runner component
// (spec.md §4.3): prepares a hermetic invocation of the agent binary,
// optionally wraps it in a container runtime, enforces the per-kind
// wall-clock timeout, and dispatches parsed stdout lines to the caller.
package runner

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kandev/agentexec/internal/config"
	"github.com/kandev/agentexec/internal/errs"
	"github.com/kandev/agentexec/internal/model"
	"github.com/kandev/agentexec/internal/obslog"
	"go.uber.org/zap"
)

// Timeouts for each invocation kind (spec.md §4.3/§5).
const (
	OrchestratorTimeout = 30 * time.Minute
	ChildTimeout        = 15 * time.Minute
)

// Invocation describes one agent process to launch.
type Invocation struct {
	TaskID         string
	AgentID        string
	IsOrchestrator bool
	Prompt         string
	Model          string
	WorkDir        string
	CredsDir       string
	Mode           model.ExecutionMode
	AllowedTools   []string
}

// Result is what the caller learns once the process exits or is
// killed for timeout.
type Result struct {
	ExitCode int
	TimedOut bool
}

// Runner launches agent subprocesses per Invocation.
type Runner struct {
	agentCfg       config.AgentConfig
	dockerCfg      config.DockerConfig
	internalCfg    config.InternalConfig
	containerImage string
	logger         *obslog.Logger
}

// New builds a Runner from the engine's configuration.
func New(agentCfg config.AgentConfig, dockerCfg config.DockerConfig, internalCfg config.InternalConfig, containerImage string, logger *obslog.Logger) *Runner {
	return &Runner{
		agentCfg:       agentCfg,
		dockerCfg:      dockerCfg,
		internalCfg:    internalCfg,
		containerImage: containerImage,
		logger:         logger.WithFields(zap.String("component", "runner")),
	}
}

// Run launches inv, streams its stdout line by line to onLine, and
// blocks until it exits or the invocation's wall-clock timeout
// elapses. On timeout the process is SIGKILLed and a synthetic
// timeout line is delivered to onLine before Run returns
// errs.ErrTimeout (spec.md §4.3).
func (r *Runner) Run(ctx context.Context, inv Invocation, onLine func(line string)) (Result, error) {
	token := r.internalCfg.Token
	scCfg := sidechannelConfig{
		Command: r.agentCfg.SidechannelPath,
		Args:    []string{},
		Env: map[string]string{
			"AGENTEXEC_API_BASE_URL":    fmt.Sprintf("http://%s:%d", r.internalCfg.Host, r.internalCfg.Port),
			"AGENTEXEC_TASK_ID":         inv.TaskID,
			"AGENTEXEC_TOKEN":           token,
			"AGENTEXEC_IS_ORCHESTRATOR": strconv.FormatBool(inv.IsOrchestrator),
		},
	}
	if inv.Mode == model.ModeContainerWrap {
		scCfg.Env["AGENTEXEC_API_BASE_URL"] = sidechannelBaseURLForContainer(r.internalCfg.Port)
	}

	scPath, err := writeSidechannelConfig(os.TempDir(), scCfg)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", errs.ErrSubprocessFailure, err)
	}
	defer os.Remove(scPath)

	argv, err := r.buildArgv(inv, scPath)
	if err != nil {
		return Result{}, err
	}

	timeout := ChildTimeout
	if inv.IsOrchestrator {
		timeout = OrchestratorTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Dir = inv.WorkDir
	cmd.Stdin = nil

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", errs.ErrSubprocessFailure, err)
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		if isNotFoundErr(err) {
			return Result{}, fmt.Errorf("%w: %v", errs.ErrMissingCollaborator, err)
		}
		return Result{}, fmt.Errorf("%w: %v", errs.ErrSubprocessFailure, err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			onLine(scanner.Text())
		}
	}()

	waitErr := cmd.Wait()
	wg.Wait()

	if runCtx.Err() == context.DeadlineExceeded {
		_ = cmd.Process.Kill()
		// Plain text, not a JSON line: streamparser.Parse treats
		// unrecognized "type" values as ignored, but falls back to
		// EventOpaque (surfaced as output) for anything that isn't
		// valid JSON at all, so this is what actually reaches
		// subscribers (spec.md §4.3/§7).
		onLine(fmt.Sprintf("agent timed out after %s and was terminated", timeout))
		return Result{ExitCode: -1, TimedOut: true}, errs.ErrTimeout
	}

	exitCode := 0
	if waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return Result{}, fmt.Errorf("%w: %v", errs.ErrSubprocessFailure, waitErr)
		}
	}
	if exitCode != 0 {
		return Result{ExitCode: exitCode}, fmt.Errorf("%w: exit code %d", errs.ErrSubprocessFailure, exitCode)
	}
	return Result{ExitCode: 0}, nil
}

func (r *Runner) buildArgv(inv Invocation, sidechannelConfigPath string) ([]string, error) {
	selectedModel := inv.Model
	if selectedModel == "" {
		selectedModel = r.agentCfg.DefaultModel
	}

	argv := []string{
		r.agentCfg.BinaryPath,
		"-p", inv.Prompt,
		"--output-format", "stream-json",
		"--verbose",
		"--model", selectedModel,
		"--sidechannel-config", sidechannelConfigPath,
		"--dangerously-skip-permissions",
	}
	if len(inv.AllowedTools) > 0 {
		argv = append(argv, "--allowedTools", strings.Join(inv.AllowedTools, ","))
	}

	if inv.Mode == model.ModeContainerWrap {
		return wrapForContainer(r.containerImage, inv.WorkDir, inv.CredsDir, sidechannelConfigPath, argv), nil
	}
	return argv, nil
}

func isNotFoundErr(err error) bool {
	return os.IsNotExist(err) || err == exec.ErrNotFound
}
