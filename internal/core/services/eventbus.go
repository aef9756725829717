package services

import (
	"log/slog"
	"sync"
)

type EventType string

const (
	EventExecutionStarted   EventType = "execution.started"
	EventExecutionCompleted EventType = "execution.completed"
	EventExecutionFailed    EventType = "execution.failed"
	EventStepStarted        EventType = "step.started"
	EventStepCompleted      EventType = "step.completed"
	EventStepFailed         EventType = "step.failed"
)

type Event struct {
	ExecutionID string
	Type        EventType
	Data        string // JSON payload or raw text
	Timestamp   int64
}

type EventBus struct {
	logger *slog.Logger
	mu     sync.RWMutex
	subs   map[string][]chan Event // Key: ExecutionID
}

func NewEventBus(logger *slog.Logger) *EventBus {
	return &EventBus{
		logger: logger,
		subs:   make(map[string][]chan Event),
	}
}

// Subscribe returns a channel that receives events for one execution
func (b *EventBus) Subscribe(executionID string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, 100) // Buffer to prevent blocking publisher
	b.subs[executionID] = append(b.subs[executionID], ch)

	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		subscribers := b.subs[executionID]
		for i, sub := range subscribers {
			if sub == ch {
				close(ch)
				b.subs[executionID] = append(subscribers[:i], subscribers[i+1:]...)
				break
			}
		}
		if len(b.subs[executionID]) == 0 {
			delete(b.subs, executionID)
		}
	}

	return ch, unsub
}

// Publish sends an event to all subscribers of the execution
func (b *EventBus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	subscribers, ok := b.subs[e.ExecutionID]
	if !ok {
		return
	}

	for _, ch := range subscribers {
		select {
		case ch <- e:
		default:
			// If channel is full, drop event to prevent blocking application
			b.logger.Warn("event bus channel full, dropping event", "execution_id", e.ExecutionID)
		}
	}
}
