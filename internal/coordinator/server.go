// Package coordinator implements the Internal Coordination API
// (spec.md §4.5): the loopback-only HTTP surface the Sidechannel
// Bridge calls into on behalf of an agent subprocess, backed by the
// Dynamic Agent Scheduler and the pending-question table.
//
// Grounded on the teacher's internal/orchestrator/api package: gin
// router, a Recovery/request-logger/token-auth middleware chain, and
// the same handler-returns-AppError-shaped-JSON convention.
package coordinator

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kandev/agentexec/internal/model"
	"github.com/kandev/agentexec/internal/obslog"
	"github.com/kandev/agentexec/internal/scheduler"
	"go.uber.org/zap"
)

// WorkDirResolver resolves a taskID to the working directory, optional
// credentials directory, and sandbox execution mode its agents should
// run under — the same mode the Task Executor resolved at admission,
// so child agents spawned through this API are never less contained
// than the orchestrator that spawned them (spec.md §4.2).
type WorkDirResolver func(taskID string) (workDir, credsDir string, mode model.ExecutionMode)

// Server is the Internal Coordination API's HTTP server.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	sched      *scheduler.Scheduler
	questions  *QuestionTable
	workDirs   WorkDirResolver
	logger     *obslog.Logger
}

// New builds a Server. onAsk is invoked synchronously whenever a new
// question is created, so the engine can publish it to the event bus
// and surface it to the user.
func New(token string, sched *scheduler.Scheduler, workDirs WorkDirResolver, onAsk func(q *model.PendingQuestion), logger *obslog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	s := &Server{
		engine:    r,
		sched:     sched,
		questions: newQuestionTable(onAsk),
		workDirs:  workDirs,
		logger:    logger.WithFields(zap.String("component", "coordinator")),
	}

	r.Use(gin.Recovery())
	r.Use(requestLogger(s.logger))
	r.Use(tokenAuth(token))
	s.registerRoutes(r)

	s.httpServer = &http.Server{Handler: r}
	return s
}

// Questions exposes the pending-question table so the engine's answer
// path (typically reached from the websocket gateway, not HTTP) can
// record an answer directly.
func (s *Server) Questions() *QuestionTable {
	return s.questions
}

// Start binds addr and serves until ctx is cancelled or Shutdown is
// called (spec.md §4.5: "loopback only" — callers are expected to pass
// a 127.0.0.1 address).
func (s *Server) Start(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("internal coordination api error", zap.Error(err))
		}
	}()
	<-ctx.Done()
	return s.Shutdown(context.Background())
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
