// Package priority gates background prefetching behind on-screen loads.
package priority

import (
	"time"

	"github.com/timmy/lazyimg/internal/logger"
	"github.com/timmy/lazyimg/internal/loop"
)

// DefaultWindow is the quiet period after the last priority load finishes
// before pending prefetches are released.
const DefaultWindow = 500 * time.Millisecond

// Scheduler creates timers whose callbacks run on the gate's owning loop.
// *loop.Loop satisfies it.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) loop.Timer
}

// Listener is a pending-prefetch registration.
type Listener struct {
	url    string
	fn     func()
	active bool
}

// URL returns the image URL the listener was registered for.
func (l *Listener) URL() string {
	return l.url
}

// Gate counts in-flight priority loads and, once the count drops below one
// and stays there for the debounce window, releases every pending listener.
//
// Not safe for concurrent use; it is owned by the event loop.
type Gate struct {
	count     int
	window    time.Duration
	scheduler Scheduler
	timer     loop.Timer
	listeners []*Listener
	openings  int
	log       *logger.Logger
}

// NewGate creates a gate. A non-positive window falls back to DefaultWindow.
func NewGate(scheduler Scheduler, window time.Duration, log *logger.Logger) *Gate {
	if window <= 0 {
		window = DefaultWindow
	}
	if log == nil {
		log = logger.GetDefault()
	}
	return &Gate{
		window:    window,
		scheduler: scheduler,
		log:       log.WithComponent("priority"),
	}
}

// Count returns the number of in-flight priority loads.
func (g *Gate) Count() int {
	return g.count
}

// Openings returns how many times the debounced signal released listeners.
func (g *Gate) Openings() int {
	return g.openings
}

// Pending returns the number of registered listeners.
func (g *Gate) Pending() int {
	return len(g.listeners)
}

// BeginPriorityLoad records a visible element starting its load.
func (g *Gate) BeginPriorityLoad() {
	g.count++
}

// EndPriorityLoad records a priority load finishing. Dropping below one
// (re)starts the debounce timer. A call with nothing in flight is ignored.
func (g *Gate) EndPriorityLoad() {
	if g.count <= 0 {
		g.log.Warn("EndPriorityLoad without a matching BeginPriorityLoad")
		return
	}
	g.count--
	if g.count < 1 {
		g.reschedule()
	}
}

// reschedule cancels any pending timer and starts a fresh window.
func (g *Gate) reschedule() {
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	g.timer = g.scheduler.AfterFunc(g.window, g.fire)
}

func (g *Gate) fire() {
	g.timer = nil
	if g.count >= 1 {
		return
	}
	g.openings++

	snapshot := make([]*Listener, len(g.listeners))
	copy(snapshot, g.listeners)

	g.log.WithField(logger.FieldCount, len(snapshot)).Debug("Prefetch window open")

	for _, l := range snapshot {
		// Earlier listeners may have removed later ones.
		if !l.active {
			continue
		}
		l.fn()
	}
}

// AddListener registers fn to run when the prefetch window opens. Listeners
// stay registered until removed; fn is expected to remove itself.
func (g *Gate) AddListener(url string, fn func()) *Listener {
	l := &Listener{url: url, fn: fn, active: true}
	g.listeners = append(g.listeners, l)
	return l
}

// RemoveListener unregisters l. Nil or already removed listeners are ignored.
func (g *Gate) RemoveListener(l *Listener) {
	if l == nil || !l.active {
		return
	}
	l.active = false
	for i, x := range g.listeners {
		if x == l {
			g.listeners = append(g.listeners[:i], g.listeners[i+1:]...)
			return
		}
	}
}
