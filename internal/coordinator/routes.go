package coordinator

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kandev/agentexec/internal/errs"
	"github.com/kandev/agentexec/internal/model"
	"github.com/kandev/agentexec/internal/obslog"
	"github.com/kandev/agentexec/internal/scheduler"
	"go.uber.org/zap"
)

func requestLogger(log *obslog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("internal api request",
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

func (s *Server) registerRoutes(r *gin.Engine) {
	internal := r.Group("/internal")
	internal.POST("/question", s.createQuestion)
	internal.GET("/question/:id/answer", s.pollQuestionAnswer)
	internal.POST("/question/:id/answer", s.submitQuestionAnswer)
	internal.POST("/spawn-agent", s.spawnAgent)
	internal.GET("/agent/:id/status", s.agentStatus)
	internal.GET("/agent/:id/result", s.agentResult)
	internal.POST("/spawn-agents", s.spawnAgentsBatch)
	internal.POST("/agents/wait", s.waitAgents)
}

type createQuestionRequest struct {
	TaskID           string   `json:"taskId" binding:"required"`
	Prompt           string   `json:"prompt" binding:"required"`
	SuggestedAnswers []string `json:"suggestedAnswers"`
}

func (s *Server) createQuestion(c *gin.Context) {
	var req createQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	q, err := s.questions.Create(req.TaskID, req.Prompt, req.SuggestedAnswers)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"questionId": q.ID})
}

// pollQuestionAnswer implements GET /question/{id}/answer: a 30s
// long-poll that returns 200 with the answer once set, 204 while the
// question is still pending, and 404 for an unknown id (spec.md §4.5).
func (s *Server) pollQuestionAnswer(c *gin.Context) {
	q, ok := s.questions.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown question id"})
		return
	}

	if answer, answered := q.Answer(); answered {
		c.JSON(http.StatusOK, gin.H{"answer": answer})
		return
	}

	timer := time.NewTimer(scheduler.AwaitOneDeadline)
	defer timer.Stop()
	select {
	case <-q.Done.Done():
	case <-timer.C:
	case <-c.Request.Context().Done():
		return
	}

	if answer, answered := q.Answer(); answered {
		c.JSON(http.StatusOK, gin.H{"answer": answer})
		return
	}
	c.Status(http.StatusNoContent)
}

type submitQuestionAnswerRequest struct {
	Answer string `json:"answer" binding:"required"`
}

// submitQuestionAnswer implements the REST fallback POST
// /question/{id}/answer: sets the answer, wakes any long-poll waiter,
// and removes the question from the table (spec.md §4.5).
func (s *Server) submitQuestionAnswer(c *gin.Context) {
	id := c.Param("id")
	q, ok := s.questions.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown question id"})
		return
	}

	var req submitQuestionAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	q.SetAnswer(req.Answer)
	s.questions.Delete(id)
	c.Status(http.StatusNoContent)
}

type spawnAgentRequest struct {
	TaskID string `json:"taskId" binding:"required"`
	Role   string `json:"role" binding:"required"`
	Name   string `json:"name"`
	Task   string `json:"task" binding:"required"`
	Model  string `json:"model"`
}

func (s *Server) spawnRequestFor(req spawnAgentRequest) scheduler.SpawnRequest {
	workDir, credsDir, mode := "", "", model.ModeNative
	if s.workDirs != nil {
		workDir, credsDir, mode = s.workDirs(req.TaskID)
	}
	return scheduler.SpawnRequest{
		TaskID:   req.TaskID,
		Role:     req.Role,
		Name:     req.Name,
		Task:     req.Task,
		Model:    req.Model,
		WorkDir:  workDir,
		CredsDir: credsDir,
		Mode:     mode,
	}
}

func (s *Server) spawnAgent(c *gin.Context) {
	var req spawnAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	agent, err := s.sched.Spawn(c.Request.Context(), s.spawnRequestFor(req))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"agentId": agent.ID})
}

// agentStatus implements GET /agent/{id}/status: an immediate
// snapshot, never blocking (spec.md §4.5).
func (s *Server) agentStatus(c *gin.Context) {
	agent, ok := s.sched.Status(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown agent id"})
		return
	}
	c.JSON(http.StatusOK, agentStatusPayload(agent))
}

// agentResult implements GET /agent/{id}/result: a 30s long-poll on
// the agent's completion signal, distinct from the non-blocking
// /status endpoint (spec.md §4.5).
func (s *Server) agentResult(c *gin.Context) {
	if _, ok := s.sched.Status(c.Param("id")); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown agent id"})
		return
	}
	agent, err := s.sched.AwaitOne(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, agentStatusPayload(agent))
}

func agentStatusPayload(agent *model.DynamicAgent) gin.H {
	return gin.H{
		"agentId":       agent.ID,
		"status":        string(agent.Status()),
		"output":        agent.TailOutput(),
		"filesModified": agent.FilesModified(),
		"filesRead":     agent.FilesRead(),
	}
}

type spawnAgentsBatchRequest struct {
	TaskID string              `json:"taskId" binding:"required"`
	Agents []spawnAgentRequest `json:"agents" binding:"required"`
}

func (s *Server) spawnAgentsBatch(c *gin.Context) {
	var req spawnAgentsBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Agents) == 0 || len(req.Agents) > 20 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "agents must contain between 1 and 20 entries"})
		return
	}

	ids := make([]string, 0, len(req.Agents))
	for _, a := range req.Agents {
		a.TaskID = req.TaskID
		agent, err := s.sched.Spawn(c.Request.Context(), s.spawnRequestFor(a))
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error(), "spawned": ids})
			return
		}
		ids = append(ids, agent.ID)
	}
	c.JSON(http.StatusCreated, gin.H{"agentIds": ids})
}

type waitAgentsRequest struct {
	AgentIDs       []string `json:"agentIds" binding:"required"`
	TimeoutSeconds float64  `json:"timeoutSeconds"`
}

func (s *Server) waitAgents(c *gin.Context) {
	var req waitAgentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.AgentIDs) > 50 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at most 50 agent ids per wait"})
		return
	}

	timeout := scheduler.ClampWaitTimeout(time.Duration(req.TimeoutSeconds * float64(time.Second)))
	agents := s.sched.AwaitMany(c.Request.Context(), req.AgentIDs, timeout)

	results := make([]gin.H, 0, len(agents))
	for _, a := range agents {
		results = append(results, agentStatusPayload(a))
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errs.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, errs.ErrClientResourceLimit):
		return http.StatusTooManyRequests
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
