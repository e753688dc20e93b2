package events

import (
	"sync"
	"time"
)

const (
	TypeOptimizing = "planning.optimizing"
	TypeReady      = "planning.ready"
	TypeFailed     = "planning.failed"
	TypeCancelled  = "planning.cancelled"
	TypeRestored   = "planning.restored"
	TypeExecuted   = "planning.executed"
)

// Event is a planning lifecycle notification delivered to stream subscribers.
type Event struct {
	Type       string         `json:"type"`
	PlanningID string         `json:"planningId"`
	Data       map[string]any `json:"data,omitempty"`
	At         time.Time      `json:"at"`
}

// Broker fans out events per planning.
type Broker interface {
	Subscribe(planningID string) chan Event
	Unsubscribe(planningID string, ch chan Event)
	Publish(planningID string, evt Event)
}

// Memory is a process-local Broker. Slow subscribers drop events rather
// than block publishers.
type Memory struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{}
}

func NewMemory() *Memory {
	return &Memory{subs: map[string]map[chan Event]struct{}{}}
}

func (b *Memory) Subscribe(planningID string) chan Event {
	ch := make(chan Event, 8)
	b.mu.Lock()
	if b.subs[planningID] == nil {
		b.subs[planningID] = map[chan Event]struct{}{}
	}
	b.subs[planningID][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Memory) Unsubscribe(planningID string, ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.subs[planningID]
	if _, ok := m[ch]; !ok {
		return
	}
	delete(m, ch)
	if len(m) == 0 {
		delete(b.subs, planningID)
	}
	close(ch)
}

func (b *Memory) Publish(planningID string, evt Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[planningID] {
		select {
		case ch <- evt:
		default:
		}
	}
}
