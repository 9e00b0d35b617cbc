package diag

import "sync"

// Sink is the diagnostic channel handed to a renderer. Listeners registered
// with Subscribe receive every line written, in write order per writer.
type Sink struct {
	listeners map[uint64]func(string)
	next      uint64
	mu        sync.RWMutex
}

// NewSink returns an empty sink.
func NewSink() *Sink {
	return &Sink{listeners: make(map[uint64]func(string))}
}

// Subscribe registers fn and returns a func that removes it again.
func (s *Sink) Subscribe(fn func(line string)) (unsubscribe func()) {
	s.mu.Lock()
	s.next++
	id := s.next
	s.listeners[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// WriteLine delivers line to every listener.
func (s *Sink) WriteLine(line string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, fn := range s.listeners {
		fn(line)
	}
}

// Listeners returns the number of registered listeners.
func (s *Sink) Listeners() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.listeners)
}
