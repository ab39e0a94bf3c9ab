// Package events implements the per-debate publish/subscribe topic: an
// append-only event log plus a set of subscribers with bounded buffers.
//
// Subscribing atomically captures the retained log and registers for live
// events, so every subscriber sees an ordered, gap-free sequence exactly
// once regardless of when it attaches. Slow subscribers are disconnected
// rather than allowed to stall the publisher.
package events

import (
	"sync"

	"github.com/neo/arbiter_backend/internal/logging"
)

// DefaultBufferSize is the per-subscriber live-event buffer
const DefaultBufferSize = 64

type subscriber struct {
	ch chan Event
}

type topic struct {
	mu     sync.Mutex
	log    []Event
	subs   map[*subscriber]struct{}
	closed bool
}

// Broadcaster fans debate events out to subscribers, one independent topic
// per debate
type Broadcaster struct {
	mu         sync.RWMutex
	topics     map[string]*topic
	bufferSize int
}

// NewBroadcaster creates an empty broadcaster
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		topics:     make(map[string]*topic),
		bufferSize: DefaultBufferSize,
	}
}

// Subscription is one subscriber's view of a debate topic. Events replays
// the retained log from the beginning and then carries live events until
// the topic closes or the subscription is cancelled.
type Subscription struct {
	Events <-chan Event
	// Backlog is the number of already-published events queued at
	// subscribe time
	Backlog int

	cancel func()
}

// Close detaches the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// Open creates the topic for a debate if it does not exist yet. Publishing
// requires an open topic; a removed debate stays removed even if a stray
// publish races the removal.
func (b *Broadcaster) Open(debateID string) {
	b.topicFor(debateID)
}

// Publish appends the event to the debate's log and delivers it to every
// active subscriber. Publishing to an unknown or removed topic is a no-op,
// so topics only come into being through Open or Subscribe. Delivery never
// blocks: a subscriber whose buffer is full is marked lagging and
// disconnected without affecting anyone else.
func (b *Broadcaster) Publish(debateID string, event Event) {
	b.mu.RLock()
	t, exists := b.topics[debateID]
	b.mu.RUnlock()
	if !exists {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}
	t.log = append(t.log, event)

	var lagging []*subscriber
	for sub := range t.subs {
		select {
		case sub.ch <- event:
		default:
			lagging = append(lagging, sub)
		}
	}

	for _, sub := range lagging {
		delete(t.subs, sub)
		close(sub.ch)
		logging.LogWebSocketEvent("subscriber_lagging_disconnected", debateID, map[string]interface{}{
			"buffer_size": cap(sub.ch),
		})
	}
}

// Subscribe attaches to a debate's topic. The returned stream starts with
// the full retained log and continues with live events; on a closed
// (terminal) topic the stream ends after the replay.
func (b *Broadcaster) Subscribe(debateID string) *Subscription {
	t := b.topicFor(debateID)

	t.mu.Lock()
	defer t.mu.Unlock()

	ch := make(chan Event, len(t.log)+b.bufferSize)
	for _, event := range t.log {
		ch <- event
	}

	if t.closed {
		close(ch)
		return &Subscription{Events: ch, Backlog: len(t.log)}
	}

	sub := &subscriber{ch: ch}
	t.subs[sub] = struct{}{}

	return &Subscription{
		Events:  ch,
		Backlog: len(t.log),
		cancel: func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			if _, active := t.subs[sub]; active {
				delete(t.subs, sub)
				close(sub.ch)
			}
		},
	}
}

// CloseTopic marks a debate's topic terminal: active streams end once their
// buffered events drain, and the log stays retained for late subscribers.
func (b *Broadcaster) CloseTopic(debateID string) {
	b.mu.RLock()
	t, exists := b.topics[debateID]
	b.mu.RUnlock()
	if !exists {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	for sub := range t.subs {
		delete(t.subs, sub)
		close(sub.ch)
	}
}

// Remove drops a debate's topic entirely, including its retained log
func (b *Broadcaster) Remove(debateID string) {
	b.mu.Lock()
	t, exists := b.topics[debateID]
	delete(b.topics, debateID)
	b.mu.Unlock()
	if !exists {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for sub := range t.subs {
		delete(t.subs, sub)
		close(sub.ch)
	}
	t.closed = true
}

// EventLog returns a copy of the retained log for a debate
func (b *Broadcaster) EventLog(debateID string) []Event {
	b.mu.RLock()
	t, exists := b.topics[debateID]
	b.mu.RUnlock()
	if !exists {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Event, len(t.log))
	copy(out, t.log)
	return out
}

func (b *Broadcaster) topicFor(debateID string) *topic {
	b.mu.RLock()
	t, exists := b.topics[debateID]
	b.mu.RUnlock()
	if exists {
		return t
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if t, exists = b.topics[debateID]; exists {
		return t
	}
	t = &topic{subs: make(map[*subscriber]struct{})}
	b.topics[debateID] = t
	return t
}
