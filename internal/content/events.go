package content

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Event types sent to subscribers.
const (
	EventTreeUpdated     = "treeUpdated"
	EventPageUpdated     = "pageUpdated"
	EventDeleted         = "deleted"
	EventPreambleUpdated = "preambleUpdated"
	EventSettingsUpdated = "settingsUpdated"
)

// Event describes a change notification.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	Path      string    `json:"path,omitempty"`
}

// subscriberBuffer is how many events a slow subscriber may fall behind
// before further events are dropped for it.
const subscriberBuffer = 8

type subscriber struct {
	ctx context.Context
	ch  chan Event
}

type hub struct {
	mu          sync.Mutex
	subscribers map[uint64]*subscriber
	next        atomic.Uint64
}

// Subscribe registers for change events. The channel closes when ctx is done
// or the service shuts down.
func (s *Service) Subscribe(ctx context.Context) <-chan Event {
	sub := &subscriber{ctx: ctx, ch: make(chan Event, subscriberBuffer)}
	id := s.hub.next.Add(1)

	s.hub.mu.Lock()
	s.hub.subscribers[id] = sub
	s.hub.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-s.ctx.Done():
		}
		s.hub.remove(id)
	}()
	return sub.ch
}

// SettingsChanged drops every cached document and tells subscribers to
// reload, since diagram colors depend on the persisted settings.
func (s *Service) SettingsChanged() {
	s.renderer.InvalidateAll()
	s.broadcast(Event{Type: EventSettingsUpdated})
}

func (s *Service) broadcast(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	for id, sub := range s.hub.subscribers {
		if sub.ctx.Err() != nil || s.ctx.Err() != nil {
			close(sub.ch)
			delete(s.hub.subscribers, id)
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			s.logger.Debug("subscriber lagging, event dropped", slog.String("type", evt.Type), slog.String("path", evt.Path))
		}
	}
}

func (h *hub) remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.subscribers[id]; ok {
		close(sub.ch)
		delete(h.subscribers, id)
	}
}
