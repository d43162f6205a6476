// Package fallback implements the Static Fallback Pipeline (spec.md
// §4.9): a fixed DAG of phases that runs once, as a contingency, when
// the orchestrator agent makes no progress. Phase prompt preludes are
// loaded from an embedded YAML document (SPEC_FULL.md §9/§11) rather
// than hardcoded as Go string literals, so operators can retune wave
// prompts without a rebuild.
package fallback

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/kandev/agentexec/internal/bus"
	"github.com/kandev/agentexec/internal/model"
	"github.com/kandev/agentexec/internal/obslog"
	"github.com/kandev/agentexec/internal/runner"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

//go:embed phases.yaml
var phasesYAML []byte

// phaseDef is one entry of the embedded phase-prompt document.
type phaseDef struct {
	Role    string `yaml:"role"`
	Prelude string `yaml:"prelude"`
}

// wave is one group of phase names launched concurrently and joined
// before the next wave starts (spec.md §4.9).
var waves = [][]string{
	{"plan"},
	{"develop", "develop-2"},
	{"test", "security"},
	{"report"},
}

func loadPhaseDefs() (map[string]phaseDef, error) {
	var defs map[string]phaseDef
	if err := yaml.Unmarshal(phasesYAML, &defs); err != nil {
		return nil, fmt.Errorf("parse embedded phase prompts: %w", err)
	}
	return defs, nil
}

// Pipeline runs the fixed DAG for one task.
type Pipeline struct {
	runner *runner.Runner
	bus    *bus.Bus
	logger *obslog.Logger
	defs   map[string]phaseDef
}

// New builds a Pipeline. Panics only if the embedded phase document
// fails to parse, which would mean the binary itself is broken.
func New(r *runner.Runner, b *bus.Bus, logger *obslog.Logger) *Pipeline {
	defs, err := loadPhaseDefs()
	if err != nil {
		panic(err)
	}
	return &Pipeline{
		runner: r,
		bus:    b,
		logger: logger.WithFields(zap.String("component", "fallback")),
		defs:   defs,
	}
}

// Run executes every wave in order, joining each before the next
// starts, and returns the terminal task status: completed iff no
// phase ended failed (spec.md §4.9). mode and credsDir are the same
// sandbox admission the orchestrator ran under, so phase agents are
// never less contained than the orchestrator whose lack of progress
// triggered this pipeline (spec.md §4.2).
func (p *Pipeline) Run(ctx context.Context, taskID, taskText, workDir, credsDir string, mode model.ExecutionMode) ([]*model.Phase, model.TaskStatus) {
	p.logger.Info("static fallback pipeline engaged", zap.String("taskId", taskID))
	p.bus.PublishToTask(taskID, bus.NewMessage("fallback-start", map[string]any{"taskId": taskID}))

	var allPhases []*model.Phase
	anyFailed := false

	for group, names := range waves {
		phases := make([]*model.Phase, len(names))
		for i, name := range names {
			phases[i] = &model.Phase{Name: name, Group: group, Status: model.PhasePending, Role: p.defs[name].Role}
		}

		var eg errgroup.Group
		for i, name := range names {
			i, name := i, name
			eg.Go(func() error {
				p.runPhase(ctx, taskID, taskText, workDir, credsDir, mode, phases[i], name)
				return nil
			})
		}
		_ = eg.Wait()

		for _, ph := range phases {
			if ph.Status == model.PhaseFailed {
				anyFailed = true
			}
		}
		allPhases = append(allPhases, phases...)
	}

	final := model.TaskCompleted
	if anyFailed {
		final = model.TaskFailed
	}
	p.bus.PublishToTask(taskID, bus.NewMessage("fallback-complete", map[string]any{
		"taskId": taskID,
		"status": string(final),
	}))
	return allPhases, final
}

func (p *Pipeline) runPhase(ctx context.Context, taskID, taskText, workDir, credsDir string, mode model.ExecutionMode, phase *model.Phase, name string) {
	now := time.Now()
	phase.Status = model.PhaseRunning
	phase.StartedAt = &now
	p.bus.PublishToTask(taskID, bus.NewMessage("phase-status", map[string]any{
		"taskId": taskID, "phase": name, "status": string(model.PhaseRunning),
	}))

	def := p.defs[name]
	prompt := fmt.Sprintf("%s\n\nTask:\n%s", def.Prelude, taskText)

	_, err := p.runner.Run(ctx, runner.Invocation{
		TaskID:   taskID,
		Prompt:   prompt,
		WorkDir:  workDir,
		CredsDir: credsDir,
		Mode:     mode,
	}, func(line string) {
		phase.Output = append(phase.Output, line)
	})

	completedAt := time.Now()
	phase.CompletedAt = &completedAt
	if err != nil {
		phase.Status = model.PhaseFailed
	} else {
		phase.Status = model.PhaseCompleted
	}

	p.bus.PublishToTask(taskID, bus.NewMessage("phase-status", map[string]any{
		"taskId": taskID, "phase": name, "status": string(phase.Status),
	}))
}
