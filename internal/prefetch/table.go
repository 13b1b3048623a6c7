// Package prefetch dedupes background image fetches by URL and runs them on
// a worker pool off the event loop.
package prefetch

import (
	"strings"

	"github.com/timmy/lazyimg/internal/logger"
)

// Waiter is a callback registered on a not-yet-cached URL.
type Waiter struct {
	e    *entry
	fn   func()
	done bool
}

// Cancel drops the callback if it has not run yet. The fetch itself keeps
// going and still populates the table.
func (w *Waiter) Cancel() {
	if w == nil || w.done {
		return
	}
	w.done = true
	if w.e == nil {
		return
	}
	for i, x := range w.e.waiters {
		if x == w {
			w.e.waiters = append(w.e.waiters[:i], w.e.waiters[i+1:]...)
			return
		}
	}
}

type entry struct {
	cached  bool
	failed  bool
	waiters []*Waiter
}

// Stats is a point-in-time view of the table.
type Stats struct {
	Entries    int `json:"entries"`
	Cached     int `json:"cached"`
	Waiting    int `json:"waiting"`
	Dispatched int `json:"dispatched"`
	Failed     int `json:"failed"`
}

// Table maps URLs to their prefetch state. Exactly one job is dispatched per
// distinct non-empty URL for the life of the table; entries never expire.
//
// Not safe for concurrent use; it is owned by the event loop.
type Table struct {
	origin     string
	dispatch   func(Job)
	onFailure  func(Result)
	entries    map[string]*entry
	dispatched int
	log        *logger.Logger
}

// NewTable creates a table. Relative URLs are resolved against origin and
// handed to dispatch.
func NewTable(origin string, dispatch func(Job), log *logger.Logger) *Table {
	if log == nil {
		log = logger.GetDefault()
	}
	return &Table{
		origin:   origin,
		dispatch: dispatch,
		entries:  make(map[string]*entry),
		log:      log.WithComponent("prefetch"),
	}
}

// OnFailure registers a hook for fetch attempts that ended in an error.
// Waiters are completed either way.
func (t *Table) OnFailure(fn func(Result)) {
	t.onFailure = fn
}

// Request asks for url to be prefetched and cb to run once it is cached.
//
// The first request for a URL creates its entry and dispatches a job (an
// empty URL only creates the entry). Later requests queue behind it. Once
// cached, cb runs synchronously before Request returns.
func (t *Table) Request(url string, cb func()) *Waiter {
	e, ok := t.entries[url]
	if !ok {
		e = &entry{}
		t.entries[url] = e
		w := &Waiter{e: e, fn: cb}
		e.waiters = append(e.waiters, w)
		if url != "" {
			t.dispatched++
			job := Job{URL: url, Location: Resolve(t.origin, url)}
			t.log.WithFields(logger.Fields{
				logger.FieldURL:      url,
				logger.FieldLocation: job.Location,
			}).Debug("Dispatching prefetch job")
			t.dispatch(job)
		}
		return w
	}

	if e.cached {
		w := &Waiter{done: true}
		cb()
		return w
	}

	w := &Waiter{e: e, fn: cb}
	e.waiters = append(e.waiters, w)
	return w
}

// Complete marks the URL of r as cached and runs its waiters in
// registration order. Failed attempts complete the entry as well.
func (t *Table) Complete(r Result) {
	e, ok := t.entries[r.URL]
	if !ok || e.cached {
		return
	}
	e.cached = true

	if r.Err != nil {
		e.failed = true
		t.log.WithField(logger.FieldURL, r.URL).WithError(r.Err).Warn("Prefetch attempt failed")
		if t.onFailure != nil {
			t.onFailure(r)
		}
	}

	waiters := e.waiters
	e.waiters = nil
	for _, w := range waiters {
		if w.done {
			continue
		}
		w.done = true
		w.fn()
	}
}

// Cached reports whether url has completed.
func (t *Table) Cached(url string) bool {
	e, ok := t.entries[url]
	return ok && e.cached
}

// Stats summarizes the table.
func (t *Table) Stats() Stats {
	s := Stats{Entries: len(t.entries), Dispatched: t.dispatched}
	for _, e := range t.entries {
		if e.cached {
			s.Cached++
		}
		if e.failed {
			s.Failed++
		}
		s.Waiting += len(e.waiters)
	}
	return s
}

// Resolve turns url into an absolute fetch location. Anything containing
// "http" is taken as absolute; everything else is joined onto origin.
func Resolve(origin, url string) string {
	if strings.Contains(url, "http") {
		return url
	}
	origin = strings.TrimSuffix(origin, "/")
	if strings.HasPrefix(url, "/") {
		return origin + url
	}
	return origin + "/" + url
}
