package session

import "github.com/gatherhq/gather/internal/types"

// EventKind classifies a session-changed notification.
type EventKind string

const (
	SignedIn  EventKind = "signed_in"
	SignedOut EventKind = "signed_out"
	Refreshed EventKind = "refreshed"
)

// Event is delivered to subscribers whenever the session state changes.
type Event struct {
	Kind EventKind
	User *types.User // nil for SignedOut
}

// Subscribe registers a buffered channel for session-changed events.
// Slow subscribers drop events rather than block the manager.
func (m *Manager) Subscribe() chan Event {
	ch := make(chan Event, 8)
	m.subMu.Lock()
	m.subs[ch] = struct{}{}
	m.subMu.Unlock()
	return ch
}

// Unsubscribe removes and closes a channel returned by Subscribe.
func (m *Manager) Unsubscribe(ch chan Event) {
	m.subMu.Lock()
	if _, ok := m.subs[ch]; ok {
		delete(m.subs, ch)
		close(ch)
	}
	m.subMu.Unlock()
}

// publish fans an event out to all subscribers without blocking.
func (m *Manager) publish(ev Event) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for ch := range m.subs {
		select {
		case ch <- ev:
		default:
			m.logger.Printf("dropping %s event for slow subscriber", ev.Kind)
		}
	}
}
