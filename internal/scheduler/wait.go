package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/kandev/agentexec/internal/errs"
	"github.com/kandev/agentexec/internal/model"
)

// AwaitOne blocks until agentID reaches a terminal status, the
// AwaitOneDeadline elapses, or ctx is cancelled — whichever comes
// first — then returns the agent's current snapshot (spec.md §4.5
// get_agent_status's long-poll variant, §4.6).
func (s *Scheduler) AwaitOne(ctx context.Context, agentID string) (*model.DynamicAgent, error) {
	agent, ok := s.Status(agentID)
	if !ok {
		return nil, fmt.Errorf("%w: agent %s", errs.ErrNotFound, agentID)
	}
	if agent.IsTerminal() {
		return agent, nil
	}

	timer := time.NewTimer(AwaitOneDeadline)
	defer timer.Stop()

	select {
	case <-agent.Done.Done():
	case <-timer.C:
	case <-ctx.Done():
		return agent, ctx.Err()
	}
	return agent, nil
}

// ClampWaitTimeout bounds a caller-supplied wait_for_agents timeout to
// [MinWaitTimeout, MaxWaitTimeout] (spec.md §4.6, SPEC_FULL.md §4).
func ClampWaitTimeout(d time.Duration) time.Duration {
	if d < MinWaitTimeout {
		return MinWaitTimeout
	}
	if d > MaxWaitTimeout {
		return MaxWaitTimeout
	}
	return d
}

// AwaitMany waits for every agent in ids to reach a terminal status or
// for timeout to elapse, whichever is first for each agent
// individually, and returns their snapshots in the same order as ids.
// Unknown ids are skipped entirely rather than erroring, matching
// original_source/backend/routes/internal_dynamic.py's wait_for_agents
// behavior of silently ignoring ids it cannot resolve.
func (s *Scheduler) AwaitMany(ctx context.Context, ids []string, timeout time.Duration) []*model.DynamicAgent {
	timeout = ClampWaitTimeout(timeout)

	type slot struct {
		idx   int
		agent *model.DynamicAgent
	}

	resolved := make([]slot, 0, len(ids))
	for i, id := range ids {
		if a, ok := s.Status(id); ok {
			resolved = append(resolved, slot{idx: i, agent: a})
		}
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results := make([]*model.DynamicAgent, len(resolved))
	done := make(chan int, len(resolved))

	for i, sl := range resolved {
		go func(i int, a *model.DynamicAgent) {
			if !a.IsTerminal() {
				select {
				case <-a.Done.Done():
				case <-waitCtx.Done():
				}
			}
			results[i] = a
			done <- i
		}(i, sl.agent)
	}
	for range resolved {
		<-done
	}

	return results
}
