package bus

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/kandev/agentexec/internal/obslog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubscriber struct {
	id       string
	mu       sync.Mutex
	received [][]byte
	failAt   int
}

func (f *fakeSubscriber) ID() string { return f.id }

func (f *fakeSubscriber) Send(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAt > 0 && len(f.received)+1 == f.failAt {
		return fmt.Errorf("boom")
	}
	f.received = append(f.received, payload)
	return nil
}

func (f *fakeSubscriber) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.received)
}

func newTestBus() *Bus {
	return New(obslog.Default())
}

func TestPublishBeforeSubscribeReplays(t *testing.T) {
	b := newTestBus()
	b.Publish("task/1", NewMessage("output", map[string]any{"line": "hello"}))
	b.Publish("task/1", NewMessage("output", map[string]any{"line": "world"}))

	sub := &fakeSubscriber{id: "c1"}
	replay, err := b.Subscribe("task/1", sub)
	require.NoError(t, err)
	require.Len(t, replay, 2)

	var first map[string]any
	require.NoError(t, json.Unmarshal(replay[0], &first))
	assert.Equal(t, "hello", first["line"])
}

func TestReplayBufferEvictsOldest(t *testing.T) {
	b := newTestBus()
	for i := 0; i < ReplayCap+1; i++ {
		b.Publish("task/2", NewMessage("output", map[string]any{"n": i}))
	}
	sub := &fakeSubscriber{id: "c1"}
	replay, err := b.Subscribe("task/2", sub)
	require.NoError(t, err)
	require.Len(t, replay, ReplayCap)

	var oldest map[string]any
	require.NoError(t, json.Unmarshal(replay[0], &oldest))
	assert.Equal(t, float64(1), oldest["n"])
}

func TestSubscriberCapRejectsEleventh(t *testing.T) {
	b := newTestBus()
	for i := 0; i < MaxSubscribers; i++ {
		sub := &fakeSubscriber{id: fmt.Sprintf("c%d", i)}
		_, err := b.Subscribe("task/3", sub)
		require.NoError(t, err)
	}
	_, err := b.Subscribe("task/3", &fakeSubscriber{id: "eleventh"})
	assert.ErrorIs(t, err, ErrStreamFull)
}

func TestSendErrorDropsOnlyThatSubscriber(t *testing.T) {
	b := newTestBus()
	good := &fakeSubscriber{id: "good"}
	bad := &fakeSubscriber{id: "bad", failAt: 1}
	_, err := b.Subscribe("task/4", good)
	require.NoError(t, err)
	_, err = b.Subscribe("task/4", bad)
	require.NoError(t, err)

	b.Publish("task/4", NewMessage("output", nil))
	b.Publish("task/4", NewMessage("output", nil))

	assert.Equal(t, 2, good.count())
	assert.Equal(t, 0, bad.count())
}

func TestDualBroadcastToLinkedConversation(t *testing.T) {
	b := newTestBus()
	b.SetConversationLinker(func(taskStream string) []string {
		if taskStream == "task/9" {
			return []string{"42"}
		}
		return nil
	})

	convSub := &fakeSubscriber{id: "console"}
	_, err := b.Subscribe("conversation/42", convSub)
	require.NoError(t, err)

	b.PublishToTask("9", NewMessage("agent-spawn", nil))
	assert.Equal(t, 1, convSub.count())
}

func TestUnsubscribeRemovesEmptyStream(t *testing.T) {
	b := newTestBus()
	sub := &fakeSubscriber{id: "only"}
	_, err := b.Subscribe("task/5", sub)
	require.NoError(t, err)
	b.Unsubscribe("task/5", "only")

	b.mu.RLock()
	_, exists := b.streams["task/5"]
	b.mu.RUnlock()
	assert.False(t, exists)
}
