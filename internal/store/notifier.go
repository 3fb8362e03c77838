package store

import "sync"

// Notifier is the change-notification bus: a registry of continuous
// change-feed listeners keyed by database name and subscription id.
// Notification is level-triggered - Notify tells every listener for a
// database that something changed, and each listener re-polls from its
// own cursor. It is an injected dependency, not a process global, so
// tests and callers can hold isolated instances.
type Notifier struct {
	mu        sync.Mutex
	listeners map[string]map[string]func()
}

// NewNotifier returns an empty bus.
func NewNotifier() *Notifier {
	return &Notifier{listeners: make(map[string]map[string]func())}
}

// AddListener registers fn under (name, id). fn must be cheap; it is the
// wake-up signal, not the delivery itself.
func (n *Notifier) AddListener(name, id string, fn func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	byID, ok := n.listeners[name]
	if !ok {
		byID = make(map[string]func())
		n.listeners[name] = byID
	}
	byID[id] = fn
}

// RemoveListener cancels one subscription. Removal stops future
// deliveries; an in-flight poll is not aborted.
func (n *Notifier) RemoveListener(name, id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if byID, ok := n.listeners[name]; ok {
		delete(byID, id)
		if len(byID) == 0 {
			delete(n.listeners, name)
		}
	}
}

// RemoveAllListeners drops every subscription for the named database.
func (n *Notifier) RemoveAllListeners(name string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.listeners, name)
}

// Notify wakes all listeners registered for the named database.
func (n *Notifier) Notify(name string) {
	n.mu.Lock()
	fns := make([]func(), 0, len(n.listeners[name]))
	for _, fn := range n.listeners[name] {
		fns = append(fns, fn)
	}
	n.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
