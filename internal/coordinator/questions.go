package coordinator

import (
	"fmt"
	"sync"

	"github.com/kandev/agentexec/internal/errs"
	"github.com/kandev/agentexec/internal/model"
)

// MaxPendingQuestions bounds how many unanswered questions the
// process will hold at once, across every task (spec.md §3/§8).
const MaxPendingQuestions = 100

// QuestionTable tracks every PendingQuestion awaiting a human answer.
type QuestionTable struct {
	mu    sync.RWMutex
	byID  map[string]*model.PendingQuestion
	idGen *model.IDGenerator
	onAsk func(q *model.PendingQuestion)
}

func newQuestionTable(onAsk func(q *model.PendingQuestion)) *QuestionTable {
	return &QuestionTable{
		byID:  make(map[string]*model.PendingQuestion),
		idGen: model.NewIDGenerator("question"),
		onAsk: onAsk,
	}
}

func (t *QuestionTable) Create(taskID, prompt string, suggested []string) (*model.PendingQuestion, error) {
	if len(prompt) > model.MaxQuestionPromptBytes {
		return nil, fmt.Errorf("%w: prompt exceeds %d bytes", errs.ErrInvalidRequest, model.MaxQuestionPromptBytes)
	}
	if len(suggested) > model.MaxSuggestedAnswers {
		return nil, fmt.Errorf("%w: more than %d suggested answers", errs.ErrInvalidRequest, model.MaxSuggestedAnswers)
	}

	t.mu.Lock()
	if len(t.byID) >= MaxPendingQuestions {
		t.mu.Unlock()
		return nil, fmt.Errorf("%w: already holding %d pending questions", errs.ErrClientResourceLimit, MaxPendingQuestions)
	}
	q := &model.PendingQuestion{
		ID:        t.idGen.Next(),
		TaskID:    taskID,
		Prompt:    prompt,
		Suggested: suggested,
		Done:      model.NewSignal(),
	}
	t.byID[q.ID] = q
	t.mu.Unlock()

	if t.onAsk != nil {
		t.onAsk(q)
	}
	return q, nil
}

func (t *QuestionTable) Get(id string) (*model.PendingQuestion, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	q, ok := t.byID[id]
	return q, ok
}

// Delete removes a question from the table once it has been answered
// through the REST fallback (spec.md §4.5).
func (t *QuestionTable) Delete(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.byID, id)
}
