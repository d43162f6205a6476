// Package engine wires every component (Event Bus, Sandbox Policy,
// Subprocess Runner, Dynamic Agent Scheduler, Sidechannel Bridge's
// server-side counterpart, Static Fallback Pipeline, Task Executor,
// Internal Coordination API, websocket gateway) into one runnable
// process, and owns the task/conversation tables spec.md §3 describes
// but assigns no single owner to.
package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/kandev/agentexec/internal/bus"
	"github.com/kandev/agentexec/internal/config"
	"github.com/kandev/agentexec/internal/coordinator"
	"github.com/kandev/agentexec/internal/executor"
	"github.com/kandev/agentexec/internal/fallback"
	"github.com/kandev/agentexec/internal/model"
	"github.com/kandev/agentexec/internal/obslog"
	"github.com/kandev/agentexec/internal/roles"
	"github.com/kandev/agentexec/internal/runner"
	"github.com/kandev/agentexec/internal/sandbox"
	"github.com/kandev/agentexec/internal/scheduler"
	"github.com/kandev/agentexec/internal/ws"
	"go.uber.org/zap"
)

// Engine is the process's root object.
type Engine struct {
	cfg    *config.Config
	logger *obslog.Logger

	bus        *bus.Bus
	roles      *roles.Registry
	runner     *runner.Runner
	scheduler  *scheduler.Scheduler
	fallback   *fallback.Pipeline
	executor   *executor.Executor
	coord      *coordinator.Server
	wsHandler  *ws.Handler

	taskIDGen *model.IDGenerator
	convIDGen *model.IDGenerator
	findIDGen *model.IDGenerator

	mu            sync.RWMutex
	tasks         map[string]*model.Task
	conversations map[string]*model.Conversation
	findings      map[string]*model.Finding
}

// New builds an Engine from a loaded Config. The internal coordination
// token is generated here (32 random bytes from crypto/rand, hex
// encoded) if cfg.Internal.Token is empty.
func New(cfg *config.Config, logger *obslog.Logger) (*Engine, error) {
	token := cfg.Internal.Token
	if token == "" {
		generated, err := randomToken()
		if err != nil {
			return nil, fmt.Errorf("generate internal coordination token: %w", err)
		}
		token = generated
		cfg.Internal.Token = generated
	}

	b := bus.New(logger)
	roleReg := roles.NewRegistry()
	r := runner.New(cfg.Agent, cfg.Docker, cfg.Internal, cfg.Sandbox.ContainerImage, logger)

	e := &Engine{
		cfg:           cfg,
		logger:        logger.WithFields(zap.String("component", "engine")),
		bus:           b,
		roles:         roleReg,
		runner:        r,
		taskIDGen:     model.NewIDGenerator("task"),
		convIDGen:     model.NewIDGenerator("conversation"),
		findIDGen:     model.NewIDGenerator("finding"),
		tasks:         make(map[string]*model.Task),
		conversations: make(map[string]*model.Conversation),
		findings:      make(map[string]*model.Finding),
	}

	e.scheduler = scheduler.New(roleReg, b, r, e.recordFinding, logger)
	e.fallback = fallback.New(r, b, logger)
	e.executor = executor.New(roleReg, e.scheduler, r, e.fallback, b, logger)
	e.coord = coordinator.New(token, e.scheduler, e.resolveWorkDir, e.publishQuestion, logger)
	e.wsHandler = ws.NewHandler(b, cfg.Server.AllowedOrigins, logger)

	b.SetConversationLinker(e.conversationsForTask)

	return e, nil
}

func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// Bus exposes the Event Bus for the websocket gateway's HTTP routes.
func (e *Engine) Bus() *bus.Bus { return e.bus }

// WebsocketHandler exposes the gateway's gin-compatible handlers.
func (e *Engine) WebsocketHandler() *ws.Handler { return e.wsHandler }

// Coordinator exposes the Internal Coordination API server for the
// process entrypoint to Start/Shutdown.
func (e *Engine) Coordinator() *coordinator.Server { return e.coord }

// SubmitTask is the minimal local admission surface (SPEC_FULL.md
// §12): a direct Go method, not an HTTP route, that runs the sandbox
// gate synchronously and launches the Task Executor in the background.
func (e *Engine) SubmitTask(ctx context.Context, text, workDir, modelOverride string) *model.Task {
	task := &model.Task{
		ID:        e.taskIDGen.Next(),
		Text:      text,
		Model:     modelOverride,
		WorkDir:   workDir,
		CreatedAt: time.Now(),
	}
	task.SetStatus(model.TaskQueued)

	e.mu.Lock()
	e.tasks[task.ID] = task
	e.mu.Unlock()

	e.bus.PublishToTask(task.ID, bus.NewMessage("task-status", map[string]any{
		"taskId": task.ID,
		"status": string(model.TaskQueued),
	}))

	sb := sandbox.Detect(sandbox.DetectInputs(e.cfg.Server.Host, e.cfg.Sandbox.AllowHost, sandbox.ProbeDocker))

	go e.executor.Execute(context.WithoutCancel(ctx), task, sb)

	return task
}

// Task returns the task tracked under id, if any.
func (e *Engine) Task(id string) (*model.Task, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.tasks[id]
	return t, ok
}

// resolveWorkDir implements coordinator.WorkDirResolver: every child
// agent spawned through the Internal Coordination API runs under the
// same sandbox mode the Task Executor already resolved for this task's
// orchestrator, not a hardcoded native mode (spec.md §4.2).
func (e *Engine) resolveWorkDir(taskID string) (workDir, credsDir string, mode model.ExecutionMode) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.tasks[taskID]
	if !ok {
		return "", "", model.ModeNative
	}
	return t.WorkDir, "", t.ExecutionMode()
}

// publishQuestion is invoked synchronously by the question table on
// creation, publishing an "ask-user" event to the owning task's stream
// so the websocket gateway's subscribers see it.
func (e *Engine) publishQuestion(q *model.PendingQuestion) {
	e.bus.PublishToTask(q.TaskID, bus.NewMessage("ask-user", map[string]any{
		"questionId":       q.ID,
		"taskId":           q.TaskID,
		"prompt":           q.Prompt,
		"suggestedAnswers": q.Suggested,
	}))
}

// recordFinding implements scheduler.FindingSink: it assigns the
// finding an id and records it against its task. It publishes nothing;
// the scheduler publishes the "finding" frame after calling it.
func (e *Engine) recordFinding(ff scheduler.FinishedFinding) {
	finding := ff.Finding
	finding.ID = e.findIDGen.Next()
	finding.TaskID = ff.TaskID
	if finding.Status == "" {
		finding.Status = model.FindingOpen
	}

	e.mu.Lock()
	e.findings[finding.ID] = &finding
	if t, ok := e.tasks[ff.TaskID]; ok {
		t.AddFindingID(finding.ID)
	}
	e.mu.Unlock()
}

// StartConversation creates a new Conversation with a fresh id.
func (e *Engine) StartConversation() *model.Conversation {
	c := &model.Conversation{ID: e.convIDGen.Next()}
	e.mu.Lock()
	e.conversations[c.ID] = c
	e.mu.Unlock()
	return c
}

// AttachConversationToTask sets conv's activeTaskID, establishing the
// dual-broadcast link (SPEC_FULL.md §4/§10), and publishes the update.
func (e *Engine) AttachConversationToTask(convID, taskID string) bool {
	e.mu.Lock()
	c, ok := e.conversations[convID]
	if ok {
		c.ActiveTaskID = taskID
	}
	e.mu.Unlock()
	if !ok {
		return false
	}
	e.bus.PublishToTask(taskID, bus.NewMessage("conversation-update", map[string]any{
		"conversationId": convID,
		"activeTaskId":   taskID,
	}))
	return true
}

// AppendConversationEntry appends a transcript entry and publishes the
// update to the conversation's own stream.
func (e *Engine) AppendConversationEntry(convID string, entry model.ConversationEntry) bool {
	e.mu.Lock()
	c, ok := e.conversations[convID]
	if ok {
		c.Transcript = append(c.Transcript, entry)
	}
	e.mu.Unlock()
	if !ok {
		return false
	}
	e.bus.Publish("conversation/"+convID, bus.NewMessage("conversation-update", map[string]any{
		"conversationId": convID,
		"role":           entry.Role,
		"text":           entry.Text,
	}))
	return true
}

// conversationsForTask implements bus.ConversationLinker: every
// conversation whose activeTaskID matches the task half of
// taskStreamID ("task/<id>") is linked for dual broadcast.
func (e *Engine) conversationsForTask(taskStreamID string) []string {
	const prefix = "task/"
	if len(taskStreamID) <= len(prefix) || taskStreamID[:len(prefix)] != prefix {
		return nil
	}
	taskID := taskStreamID[len(prefix):]

	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []string
	for _, c := range e.conversations {
		if c.ActiveTaskID == taskID {
			out = append(out, c.ID)
		}
	}
	return out
}
