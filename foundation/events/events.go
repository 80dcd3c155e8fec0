// Package events fans the node's event messages out to the websocket
// clients subscribed to them.
package events

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
)

// Event messages start with the subsystem that raised them, for example
// "runtime: Transfer: ..." or "state: ImportBlock: ...". That prefix is the
// topic a client can subscribe to.

// Topic returns the subsystem that raised the message, empty if the message
// carries none.
func Topic(msg string) string {
	topic, _, found := strings.Cut(msg, ":")
	if !found || strings.ContainsAny(topic, " \t") {
		return ""
	}
	return topic
}

// messageBuffer is how many messages a subscriber can fall behind before
// messages to it are dropped. Websocket writes can be slow.
const messageBuffer = 100

type subscriber struct {
	ch     chan string
	topics map[string]struct{}
}

func (s subscriber) wants(topic string) bool {
	if len(s.topics) == 0 {
		return true
	}
	_, exists := s.topics[topic]
	return exists
}

// Events maintains the subscribers by unique id.
type Events struct {
	mu      sync.RWMutex
	subs    map[string]subscriber
	dropped atomic.Uint64
}

// New constructs the event fan out.
func New() *Events {
	return &Events{
		subs: make(map[string]subscriber),
	}
}

// Shutdown closes and removes every subscriber.
func (evt *Events) Shutdown() {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	for id, sub := range evt.subs {
		delete(evt.subs, id)
		close(sub.ch)
	}
}

// Acquire subscribes id to the topics, every topic when none are given, and
// returns the channel the messages arrive on. Acquiring an id again returns
// the channel it already has.
func (evt *Events) Acquire(id string, topics ...string) <-chan string {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	if sub, exists := evt.subs[id]; exists {
		return sub.ch
	}

	sub := subscriber{
		ch:     make(chan string, messageBuffer),
		topics: make(map[string]struct{}, len(topics)),
	}
	for _, topic := range topics {
		if topic = strings.TrimSpace(topic); topic != "" {
			sub.topics[topic] = struct{}{}
		}
	}

	evt.subs[id] = sub
	return sub.ch
}

// Release closes and removes the subscriber.
func (evt *Events) Release(id string) error {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	sub, exists := evt.subs[id]
	if !exists {
		return fmt.Errorf("id %q does not exist", id)
	}

	delete(evt.subs, id)
	close(sub.ch)
	return nil
}

// Send delivers the message to every subscriber of its topic. It never
// blocks, a subscriber that fell behind misses the message.
func (evt *Events) Send(msg string) {
	topic := Topic(msg)

	evt.mu.RLock()
	defer evt.mu.RUnlock()

	for _, sub := range evt.subs {
		if !sub.wants(topic) {
			continue
		}

		select {
		case sub.ch <- msg:
		default:
			evt.dropped.Add(1)
		}
	}
}

// Dropped returns how many messages were lost to slow subscribers.
func (evt *Events) Dropped() uint64 {
	return evt.dropped.Load()
}
