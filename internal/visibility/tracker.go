// Package visibility reports when lazy image elements enter the viewport.
package visibility

import (
	"github.com/timmy/lazyimg/internal/domain"
	"github.com/timmy/lazyimg/internal/logger"
)

// Entry is one intersection change reported by an Observer.
type Entry struct {
	Target       domain.ElementID
	Ratio        float64
	Intersecting bool
}

// Observer is the shared observation mechanism behind a Tracker.
type Observer interface {
	Observe(id domain.ElementID)
	Unobserve(id domain.ElementID)
}

// Tracker maps watched elements to a visibility callback. Not safe for
// concurrent use; it is owned by the event loop.
//
// The tracker never removes a registration on its own: callbacks that want
// single delivery call Unwatch themselves.
type Tracker struct {
	observer  Observer
	listeners map[domain.ElementID]func(Entry)
	log       *logger.Logger
}

// NewTracker creates a tracker. Attach must be called before Watch.
func NewTracker(log *logger.Logger) *Tracker {
	if log == nil {
		log = logger.GetDefault()
	}
	return &Tracker{
		listeners: make(map[domain.ElementID]func(Entry)),
		log:       log.WithComponent("visibility"),
	}
}

// Attach binds the observation mechanism.
func (t *Tracker) Attach(o Observer) {
	t.observer = o
}

// Watch registers onVisible for id, replacing any previous registration,
// and starts observing it.
func (t *Tracker) Watch(id domain.ElementID, onVisible func(Entry)) {
	t.listeners[id] = onVisible
	if t.observer != nil {
		t.observer.Observe(id)
	}
}

// Unwatch drops the registration for id and stops observing it. Unknown ids
// are ignored.
func (t *Tracker) Unwatch(id domain.ElementID) {
	if _, ok := t.listeners[id]; !ok {
		return
	}
	delete(t.listeners, id)
	if t.observer != nil {
		t.observer.Unobserve(id)
	}
}

// Watching reports whether id currently has a registration.
func (t *Tracker) Watching(id domain.ElementID) bool {
	_, ok := t.listeners[id]
	return ok
}

// Len returns the number of registrations.
func (t *Tracker) Len() int {
	return len(t.listeners)
}

// HandleEntries is the observer's change handler. Only intersecting entries
// with a registered callback are dispatched.
func (t *Tracker) HandleEntries(entries []Entry) {
	for _, e := range entries {
		if !e.Intersecting {
			continue
		}
		cb, ok := t.listeners[e.Target]
		if !ok {
			continue
		}
		t.log.WithFields(logger.Fields{
			logger.FieldElementID: string(e.Target),
			"ratio":               e.Ratio,
		}).Debug("Element entered viewport")
		cb(e)
	}
}
