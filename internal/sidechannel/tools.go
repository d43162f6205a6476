package sidechannel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// registerTools registers ask_user unconditionally and the spawn/
// status/wait surface only for the orchestrator's bridge — a child
// agent's sidechannel exposes ask_user alone, since only the
// orchestrator is allowed to manage sub-agents (spec.md §4.4/§4.8,
// SPEC_FULL.md §11).
func registerTools(s *server.MCPServer, b *Bridge) {
	s.AddTool(
		mcp.NewTool("ask_user",
			mcp.WithDescription("Ask the user a clarifying question and block until they answer. Use sparingly, only when you genuinely cannot proceed without the user's input."),
			mcp.WithString("prompt", mcp.Required(), mcp.Description("The question to ask, at most 10KB")),
			mcp.WithArray("suggested_answers", mcp.Description("Optional list of up to 20 suggested answers the user can pick from instead of typing free text")),
		),
		b.askUserHandler(),
	)

	if !b.cfg.IsOrchestrator {
		return
	}

	s.AddTool(
		mcp.NewTool("spawn_agent",
			mcp.WithDescription("Spawn a single child agent to work on a sub-task."),
			mcp.WithString("role", mcp.Required(), mcp.Description("The agent's role, e.g. developer, tester, security-reviewer")),
			mcp.WithString("name", mcp.Description("A short human-readable name for this agent")),
			mcp.WithString("task", mcp.Required(), mcp.Description("The task description to hand the agent")),
			mcp.WithString("model", mcp.Description("Override the default model for this agent")),
			mcp.WithBoolean("wait", mcp.Description("Block until the agent finishes before returning its final output; default true")),
		),
		b.spawnAgentHandler(),
	)

	s.AddTool(
		mcp.NewTool("get_agent_status",
			mcp.WithDescription("Get a previously spawned agent's current status without blocking."),
			mcp.WithString("agent_id", mcp.Required(), mcp.Description("The agent id returned by spawn_agent")),
		),
		b.getAgentStatusHandler(),
	)

	s.AddTool(
		mcp.NewTool("spawn_agents",
			mcp.WithDescription("Spawn up to 20 child agents at once."),
			mcp.WithArray("agents", mcp.Required(), mcp.Description("Up to 20 objects, each with role (required), task (required), name, model")),
		),
		b.spawnAgentsHandler(),
	)

	s.AddTool(
		mcp.NewTool("wait_for_agents",
			mcp.WithDescription("Block until every listed agent reaches a terminal status or the timeout elapses, whichever is first."),
			mcp.WithArray("agent_ids", mcp.Required(), mcp.Description("Up to 50 agent ids to wait for")),
			mcp.WithNumber("timeout_seconds", mcp.Description("Wait timeout in seconds, clamped to [1, 900]; default 900")),
		),
		b.waitForAgentsHandler(),
	)
}

type createQuestionResponse struct {
	QuestionID string `json:"questionId"`
}

type questionAnswerResponse struct {
	Answer string `json:"answer"`
}

// askUserOverallTimeout bounds the whole ask_user call, across however
// many 30s /question/{id}/answer polls it takes, at roughly five
// minutes (spec.md §4.4): past that the tool returns a timeout
// sentinel instead of blocking the orchestrator indefinitely.
const askUserOverallTimeout = 5 * time.Minute

func (b *Bridge) askUserHandler() server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		prompt, err := req.RequireString("prompt")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		var suggested []string
		if raw, ok := req.GetArguments()["suggested_answers"]; ok {
			encoded, _ := json.Marshal(raw)
			_ = json.Unmarshal(encoded, &suggested)
		}

		var created createQuestionResponse
		err = b.doJSON(ctx, "POST", "/internal/question", map[string]any{
			"taskId":           b.cfg.TaskID,
			"prompt":           prompt,
			"suggestedAnswers": suggested,
		}, &created)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to submit question: %v", err)), nil
		}

		waitCtx, cancel := context.WithTimeout(ctx, askUserOverallTimeout)
		defer cancel()

		path := fmt.Sprintf("/internal/question/%s/answer", created.QuestionID)
		for {
			var answered questionAnswerResponse
			status, err := b.doJSONStatus(waitCtx, "GET", path, nil, &answered)
			if err != nil {
				if waitCtx.Err() != nil {
					return mcp.NewToolResultText("no answer received within the timeout"), nil
				}
				return mcp.NewToolResultError(fmt.Sprintf("failed to wait for answer: %v", err)), nil
			}
			switch status {
			case http.StatusOK:
				return mcp.NewToolResultText(answered.Answer), nil
			case http.StatusNotFound:
				return mcp.NewToolResultError("question was removed before it was answered"), nil
			}
			select {
			case <-waitCtx.Done():
				return mcp.NewToolResultText("no answer received within the timeout"), nil
			default:
			}
		}
	}
}

type spawnAgentResponse struct {
	AgentID string `json:"agentId"`
}

// spawnAgentHandler implements spawn_agent. By default (wait=true) it
// long-polls /agent/{id}/result in 30s windows until the agent reaches
// a terminal status, then returns the agent id plus its final output;
// with wait=false it returns the agent id immediately, reporting the
// agent as still running (spec.md §4.4).
func (b *Bridge) spawnAgentHandler() server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		role, err := req.RequireString("role")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		task, err := req.RequireString("task")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		wait := true
		if raw, ok := req.GetArguments()["wait"]; ok {
			if w, ok := raw.(bool); ok {
				wait = w
			}
		}

		var spawned spawnAgentResponse
		err = b.doJSON(ctx, "POST", "/internal/spawn-agent", map[string]any{
			"taskId": b.cfg.TaskID,
			"role":   role,
			"name":   req.GetString("name", ""),
			"task":   task,
			"model":  req.GetString("model", ""),
		}, &spawned)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to spawn agent: %v", err)), nil
		}
		if !wait {
			return mcp.NewToolResultText(fmt.Sprintf("%s running", spawned.AgentID)), nil
		}

		path := fmt.Sprintf("/internal/agent/%s/result", spawned.AgentID)
		for {
			var result json.RawMessage
			status, err := b.doJSONStatus(ctx, "GET", path, nil, &result)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("failed waiting for agent result: %v", err)), nil
			}
			if status == http.StatusNotFound {
				return mcp.NewToolResultError("agent disappeared before completing"), nil
			}
			var snapshot struct {
				Status string `json:"status"`
			}
			_ = json.Unmarshal(result, &snapshot)
			if snapshot.Status == "completed" || snapshot.Status == "failed" {
				formatted, _ := json.MarshalIndent(result, "", "  ")
				return mcp.NewToolResultText(string(formatted)), nil
			}
			select {
			case <-ctx.Done():
				return mcp.NewToolResultError("cancelled while waiting for the agent to finish"), nil
			default:
			}
		}
	}
}

func (b *Bridge) getAgentStatusHandler() server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		agentID, err := req.RequireString("agent_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		var status json.RawMessage
		path := fmt.Sprintf("/internal/agent/%s/status", agentID)
		if err := b.doJSON(ctx, "GET", path, nil, &status); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to fetch agent status: %v", err)), nil
		}
		formatted, _ := json.MarshalIndent(status, "", "  ")
		return mcp.NewToolResultText(string(formatted)), nil
	}
}

// MaxBatchSpawn caps how many agents a single spawn_agents call may
// request (spec.md §4.4/§8).
const MaxBatchSpawn = 20

type spawnAgentsResponse struct {
	AgentIDs []string `json:"agentIds"`
}

func (b *Bridge) spawnAgentsHandler() server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw, ok := req.GetArguments()["agents"]
		if !ok {
			return mcp.NewToolResultError("agents is required"), nil
		}
		encoded, err := json.Marshal(raw)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse agents: %v", err)), nil
		}
		var agents []map[string]any
		if err := json.Unmarshal(encoded, &agents); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse agents: %v", err)), nil
		}
		if len(agents) == 0 {
			return mcp.NewToolResultError("agents must not be empty"), nil
		}
		if len(agents) > MaxBatchSpawn {
			return mcp.NewToolResultError(fmt.Sprintf("at most %d agents per spawn_agents call", MaxBatchSpawn)), nil
		}

		var spawned spawnAgentsResponse
		err = b.doJSON(ctx, "POST", "/internal/spawn-agents", map[string]any{
			"taskId": b.cfg.TaskID,
			"agents": agents,
		}, &spawned)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to spawn agents: %v", err)), nil
		}
		formatted, _ := json.Marshal(spawned.AgentIDs)
		return mcp.NewToolResultText(string(formatted)), nil
	}
}

// MaxBatchWait caps how many ids a single wait_for_agents call may
// list (spec.md §4.4/§8).
const MaxBatchWait = 50

func (b *Bridge) waitForAgentsHandler() server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw, ok := req.GetArguments()["agent_ids"]
		if !ok {
			return mcp.NewToolResultError("agent_ids is required"), nil
		}
		encoded, err := json.Marshal(raw)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse agent_ids: %v", err)), nil
		}
		var ids []string
		if err := json.Unmarshal(encoded, &ids); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse agent_ids: %v", err)), nil
		}
		if len(ids) > MaxBatchWait {
			return mcp.NewToolResultError(fmt.Sprintf("at most %d agent ids per wait_for_agents call", MaxBatchWait)), nil
		}

		timeoutSeconds := MaxWaitTimeoutSeconds
		if raw, ok := req.GetArguments()["timeout_seconds"]; ok {
			if f, ok := raw.(float64); ok {
				timeoutSeconds = int(f)
			}
		}

		var out json.RawMessage
		err = b.doJSON(ctx, "POST", "/internal/agents/wait", map[string]any{
			"agentIds":       ids,
			"timeoutSeconds": timeoutSeconds,
		}, &out)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to wait for agents: %v", err)), nil
		}
		formatted, _ := json.MarshalIndent(out, "", "  ")
		return mcp.NewToolResultText(string(formatted)), nil
	}
}

// MaxWaitTimeoutSeconds mirrors scheduler.MaxWaitTimeout, duplicated
// here (in seconds) to keep this package free of a dependency on the
// scheduler package it does not otherwise need.
const MaxWaitTimeoutSeconds = 900
