package broker

import "sync"

// Event is a server-side event broadcast to WebSocket clients (agent run
// progress, task lifecycle transitions, health changes).
type Event struct {
	Name    string `json:"name"`
	Payload any    `json:"payload,omitempty"`
}

// Event names.
const (
	EventAgentStarted  = "agent.started"
	EventAgentStopped  = "agent.stopped"
	EventRunStarted    = "run.started"
	EventRunCompleted  = "run.completed"
	EventRunFailed     = "run.failed"
	EventToolCall      = "tool.call"
	EventToolResult    = "tool.result"
	EventTaskCreated   = "task.created"
	EventTaskAssigned  = "task.assigned"
	EventTaskProgress  = "task.progress"
	EventTaskCompleted = "task.completed"
	EventTaskFailed    = "task.failed"
	EventTaskBlocked   = "task.blocked"
)

// EventHandler handles one broadcast event.
type EventHandler func(Event)

// EventPublisher abstracts event broadcast + subscription so components can
// emit without knowing about the WebSocket layer.
type EventPublisher interface {
	Subscribe(id string, handler EventHandler)
	Unsubscribe(id string)
	Broadcast(event Event)
}

// EventBus is the in-process EventPublisher. Handlers run on the caller's
// goroutine; they must not block.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[string]EventHandler
}

// NewEventBus creates an empty event bus.
func NewEventBus() *EventBus {
	return &EventBus{handlers: make(map[string]EventHandler)}
}

func (e *EventBus) Subscribe(id string, handler EventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[id] = handler
}

func (e *EventBus) Unsubscribe(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.handlers, id)
}

func (e *EventBus) Broadcast(event Event) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, h := range e.handlers {
		h(event)
	}
}
