/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package dragonseeker

import (
	"encoding/json"
	"sync"
)

// Subscriber is a live real-time channel for one session. Deliver must not
// block: implementations queue the payload or fail. Close is called once a
// subscriber is dropped and must tolerate repeated calls.
type Subscriber interface {
	Deliver(payload []byte) error
	Close()
}

// topic holds one session's subscribers. mu also serializes broadcasts, so
// the last frame any subscriber receives is the newest state.
type topic struct {
	mu   sync.Mutex
	subs map[Subscriber]struct{}
	dead bool // removed from Broadcaster.topics
}

// Broadcaster fans a session's public state out to its subscribers.
type Broadcaster struct {
	mu     sync.Mutex
	topics map[string]*topic
	logf   func(format string, args ...any)
}

// NewBroadcaster returns an empty Broadcaster. logf may be nil.
func NewBroadcaster(logf func(format string, args ...any)) *Broadcaster {
	if logf == nil {
		logf = func(string, ...any) {}
	}

	return &Broadcaster{
		topics: make(map[string]*topic),
		logf:   logf,
	}
}

func (b *Broadcaster) topic(sessionID string, create bool) *topic {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[sessionID]
	if !ok && create {
		t = &topic{subs: make(map[Subscriber]struct{})}
		b.topics[sessionID] = t
	}

	return t
}

// Subscribe registers sub for updates to sessionID.
func (b *Broadcaster) Subscribe(sessionID string, sub Subscriber) {
	for {
		t := b.topic(sessionID, true)

		t.mu.Lock()
		if !t.dead {
			t.subs[sub] = struct{}{}
			t.mu.Unlock()

			return
		}
		t.mu.Unlock()
	}
}

// Unsubscribe removes sub, and the topic with its last subscriber.
// Removing an unknown or already removed subscriber is a no-op.
func (b *Broadcaster) Unsubscribe(sessionID string, sub Subscriber) {
	t := b.topic(sessionID, false)
	if t == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.subs, sub)
	if len(t.subs) > 0 || t.dead {
		return
	}

	// Lock order is topic.mu then b.mu. A Subscribe that fetched t before
	// this point sees dead and retries on a fresh topic.
	b.mu.Lock()
	if b.topics[sessionID] == t {
		delete(b.topics, sessionID)
	}
	b.mu.Unlock()

	t.dead = true
}

// Count returns the number of subscribers for sessionID.
func (b *Broadcaster) Count(sessionID string) int {
	t := b.topic(sessionID, false)
	if t == nil {
		return 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.subs)
}

// Broadcast serializes s's public state once and delivers the same bytes to
// every subscriber. Subscribers that fail are dropped and closed.
func (b *Broadcaster) Broadcast(s *Session) {
	t := b.topic(s.ID(), false)
	if t == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.subs) == 0 {
		return
	}

	payload, err := json.Marshal(s.PublicState())
	if err != nil {
		b.logf("ERROR: Encoding state of %s: %v", s.ID(), err)

		return
	}

	for sub := range t.subs {
		if err := sub.Deliver(payload); err != nil {
			delete(t.subs, sub)
			sub.Close()
			b.logf("GAMES: Dropped subscriber from %s: %v", s.ID(), err)
		}
	}
}

// Close drops and closes every subscriber of sessionID.
func (b *Broadcaster) Close(sessionID string) {
	b.mu.Lock()
	t, ok := b.topics[sessionID]
	delete(b.topics, sessionID)
	b.mu.Unlock()

	if !ok {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.dead = true
	for sub := range t.subs {
		delete(t.subs, sub)
		sub.Close()
	}
}
