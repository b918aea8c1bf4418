// Package broadcaster manages subscribers and distributes project lifecycle
// events.
package broadcaster

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of project event.
type EventType int

const (
	EventUploaded EventType = iota
	EventDeleted
	EventReclaimed
)

// String returns the event name.
func (t EventType) String() string {
	switch t {
	case EventUploaded:
		return "uploaded"
	case EventDeleted:
		return "deleted"
	case EventReclaimed:
		return "reclaimed"
	default:
		return "unknown"
	}
}

// ProjectEvent reports a change to the project repository.
type ProjectEvent struct {
	Type      EventType
	ProjectID string
	Time      time.Time
}

// Subscriber represents a client subscribed to project events. An empty
// Projects set receives every event.
type Subscriber struct {
	ID       string
	Projects map[string]bool
	Events   chan *ProjectEvent
}

// Broadcaster manages subscribers and distributes project events.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	closed      bool
}

// New creates a new Broadcaster.
func New() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[string]*Subscriber),
	}
}

// Subscribe creates a new subscription, optionally limited to the given
// project ids. It returns nil once the broadcaster is closed.
func (b *Broadcaster) Subscribe(projects ...string) *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	sub := &Subscriber{
		ID:       uuid.New().String(),
		Projects: make(map[string]bool, len(projects)),
		Events:   make(chan *ProjectEvent, 100),
	}
	for _, id := range projects {
		sub.Projects[id] = true
	}

	b.subscribers[sub.ID] = sub
	return sub
}

// Unsubscribe removes a subscription.
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subscribers[id]; ok {
		close(sub.Events)
		delete(b.subscribers, id)
	}
}

// Notify sends an event to all matching subscribers. Slow subscribers drop
// events rather than block the repository.
func (b *Broadcaster) Notify(eventType EventType, projectID string) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	event := &ProjectEvent{Type: eventType, ProjectID: projectID, Time: time.Now().UTC()}
	for _, sub := range b.subscribers {
		if len(sub.Projects) > 0 && !sub.Projects[projectID] {
			continue
		}
		select {
		case sub.Events <- event:
		default:
			// Channel full, event dropped
		}
	}
}

// Close closes the broadcaster and all subscriptions.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.closed = true
	for _, sub := range b.subscribers {
		close(sub.Events)
	}
	b.subscribers = make(map[string]*Subscriber)
}

// SubscriberCount returns the number of active subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
