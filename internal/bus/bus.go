// Package bus implements the Event Bus & Replay Buffers component
// (spec.md §4.1): per-stream append-only ring buffers fronting
// websocket fan-out, with the "replay before send" ordering guarantee
// and a per-stream subscriber cap.
package bus

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/kandev/agentexec/internal/obslog"
	"go.uber.org/zap"
)

// ReplayCap is the per-stream replay-buffer capacity (spec.md §3).
const ReplayCap = 500

// MaxSubscribers is the per-stream live-subscriber cap (spec.md §3/§8).
const MaxSubscribers = 10

// ErrStreamFull is returned by Subscribe when a stream already has
// MaxSubscribers live subscribers.
var ErrStreamFull = errors.New("stream has reached its subscriber cap")

// Message is a JSON-serializable event frame. Every frame carries a
// "type" discriminator (spec.md §4.7, §6).
type Message map[string]any

// NewMessage builds a Message with the given type and extra fields.
func NewMessage(msgType string, fields map[string]any) Message {
	m := make(Message, len(fields)+1)
	for k, v := range fields {
		m[k] = v
	}
	m["type"] = msgType
	return m
}

// Subscriber is anything that can receive a raw JSON frame. The
// websocket gateway's per-connection client implements this.
type Subscriber interface {
	ID() string
	Send(payload []byte) error
}

type streamState struct {
	mu     sync.Mutex
	replay [][]byte
	subs   map[string]Subscriber
}

func newStreamState() *streamState {
	return &streamState{subs: make(map[string]Subscriber)}
}

func (s *streamState) appendReplay(payload []byte) {
	s.replay = append(s.replay, payload)
	if len(s.replay) > ReplayCap {
		s.replay = s.replay[len(s.replay)-ReplayCap:]
	}
}

func (s *streamState) replaySnapshot() [][]byte {
	out := make([][]byte, len(s.replay))
	copy(out, s.replay)
	return out
}

// ConversationLinker resolves, for a given task stream id, the set of
// conversation stream ids currently "active" on that task — used for
// the dual task+console broadcast rule (SPEC_FULL.md §4).
type ConversationLinker func(taskStreamID string) []string

// Bus is the process-wide event bus. One Bus instance is owned by the
// engine and shared by every component that publishes or subscribes.
type Bus struct {
	mu      sync.RWMutex
	streams map[string]*streamState
	logger  *obslog.Logger
	linker  ConversationLinker
}

// New returns an empty Bus.
func New(logger *obslog.Logger) *Bus {
	return &Bus{
		streams: make(map[string]*streamState),
		logger:  logger.WithFields(zap.String("component", "bus")),
	}
}

// SetConversationLinker installs the function used to find conversation
// streams linked to a task stream for dual broadcast. Optional; if
// unset, Publish only reaches the stream it was called with.
func (b *Bus) SetConversationLinker(fn ConversationLinker) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.linker = fn
}

func (b *Bus) stateFor(streamID string) *streamState {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.streams[streamID]
	if !ok {
		s = newStreamState()
		b.streams[streamID] = s
	}
	return s
}

// Publish appends msg to streamID's replay buffer and forwards it to
// every current subscriber. A subscriber send error drops only that
// subscriber; publish itself never fails (spec.md §4.1 failure
// semantics). The replay append always happens before any send
// attempt.
func (b *Bus) Publish(streamID string, msg Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error("failed to marshal event", zap.String("stream", streamID), zap.Error(err))
		return
	}
	b.publishRaw(streamID, payload)
}

func (b *Bus) publishRaw(streamID string, payload []byte) {
	s := b.stateFor(streamID)
	s.mu.Lock()
	s.appendReplay(payload)
	subs := make([]Subscriber, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Send(payload); err != nil {
			b.logger.Debug("dropping subscriber after send error",
				zap.String("stream", streamID), zap.String("subscriber", sub.ID()), zap.Error(err))
			b.Unsubscribe(streamID, sub.ID())
		}
	}
}

// PublishToTask publishes to "task/<taskID>" and, if a conversation
// linker is installed, to every conversation stream currently active
// on that task (SPEC_FULL.md §4's dual-broadcast rule).
func (b *Bus) PublishToTask(taskID string, msg Message) {
	taskStream := "task/" + taskID
	payload, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error("failed to marshal event", zap.String("stream", taskStream), zap.Error(err))
		return
	}
	b.publishRaw(taskStream, payload)

	b.mu.RLock()
	linker := b.linker
	b.mu.RUnlock()
	if linker == nil {
		return
	}
	for _, convID := range linker(taskStream) {
		b.publishRaw("conversation/"+convID, payload)
	}
}

// Subscribe registers sub on streamID, enforcing the subscriber cap,
// and returns the current replay buffer. The caller must deliver the
// returned frames, in order, before relying on subsequent live
// delivery — Subscribe itself only guarantees sub is registered to
// receive anything published after this call returns.
func (b *Bus) Subscribe(streamID string, sub Subscriber) ([][]byte, error) {
	s := b.stateFor(streamID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.subs) >= MaxSubscribers {
		return nil, ErrStreamFull
	}
	s.subs[sub.ID()] = sub
	return s.replaySnapshot(), nil
}

// Unsubscribe removes sub from streamID. The stream entry is pruned
// only when it has no more subscribers and an empty replay buffer; a
// stream with a non-empty replay buffer is kept, so a later subscribe
// to the same id receives the same replay tail.
func (b *Bus) Unsubscribe(streamID string, subID string) {
	b.mu.Lock()
	s, ok := b.streams[streamID]
	if !ok {
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()

	s.mu.Lock()
	delete(s.subs, subID)
	empty := len(s.subs) == 0 && len(s.replay) == 0
	s.mu.Unlock()

	if empty {
		b.mu.Lock()
		delete(b.streams, streamID)
		b.mu.Unlock()
	}
}
