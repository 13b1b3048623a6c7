package element

import (
	"fmt"
	"testing"
	"time"

	"github.com/timmy/lazyimg/internal/clock"
	"github.com/timmy/lazyimg/internal/dom"
	"github.com/timmy/lazyimg/internal/domain"
	"github.com/timmy/lazyimg/internal/prefetch"
	"github.com/timmy/lazyimg/internal/priority"
	"github.com/timmy/lazyimg/internal/visibility"
)

type fakeRenderer struct {
	isolated     bool
	previews     int
	placeholders int
	sources      []string
	onLoad       []func()
	removed      int
	attrs        map[string]string
}

func (r *fakeRenderer) RenderPreview(req domain.ImageRequest) {
	if req.HasPreview() {
		r.previews++
	}
}

func (r *fakeRenderer) RenderPlaceholder(domain.ImageRequest) { r.placeholders++ }

func (r *fakeRenderer) SetPrimarySource(req domain.ImageRequest, onLoad func()) {
	r.sources = append(r.sources, req.Src)
	r.onLoad = append(r.onLoad, onLoad)
}

func (r *fakeRenderer) RemovePreview() { r.removed++ }

func (r *fakeRenderer) UpdateAttribute(name, value string) {
	if r.attrs == nil {
		r.attrs = make(map[string]string)
	}
	r.attrs[name] = value
}

// finish completes the most recent load.
func (r *fakeRenderer) finish() {
	r.onLoad[len(r.onLoad)-1]()
}

type fakeObserver struct {
	observed map[domain.ElementID]bool
}

func (o *fakeObserver) Observe(id domain.ElementID)   { o.observed[id] = true }
func (o *fakeObserver) Unobserve(id domain.ElementID) { delete(o.observed, id) }

type harness struct {
	t        *testing.T
	clock    *clock.Manual
	observer *fakeObserver
	tracker  *visibility.Tracker
	gate     *priority.Gate
	table    *prefetch.Table
	jobs     []prefetch.Job
	elems    map[domain.ElementID]*Controller
}

func newHarness(t *testing.T) *harness {
	h := &harness{
		t:        t,
		clock:    clock.NewManual(),
		observer: &fakeObserver{observed: make(map[domain.ElementID]bool)},
		tracker:  visibility.NewTracker(nil),
		elems:    make(map[domain.ElementID]*Controller),
	}
	h.tracker.Attach(h.observer)
	h.gate = priority.NewGate(h.clock, priority.DefaultWindow, nil)
	h.table = prefetch.NewTable("http://example.test", func(j prefetch.Job) { h.jobs = append(h.jobs, j) }, nil)
	return h
}

func (h *harness) services() Services {
	return Services{Visibility: h.tracker, Gate: h.gate, Prefetch: h.table}
}

func (h *harness) add(id string, attrs map[string]string, opts Options) (*Controller, *dom.Node, *fakeRenderer) {
	host := dom.NewElement(dom.HostTag)
	for k, v := range attrs {
		host.SetAttribute(k, v)
	}
	r := &fakeRenderer{}
	c := New(domain.ElementID(id), host, h.services(), opts, func(isolated bool) Renderer {
		r.isolated = isolated
		return r
	}, nil)
	c.Connect()
	h.elems[c.ID()] = c
	return c, host, r
}

func (h *harness) show(id string) {
	h.tracker.HandleEntries([]visibility.Entry{{Target: domain.ElementID(id), Ratio: 1, Intersecting: true}})
}

// openGate releases pending prefetch listeners without any element loading.
func (h *harness) openGate() {
	h.gate.BeginPriorityLoad()
	h.gate.EndPriorityLoad()
	h.clock.Advance(priority.DefaultWindow)
}

func (h *harness) complete(url string) {
	h.table.Complete(prefetch.Result{URL: url})
}

// checkCounter asserts the counter equals the number of loading elements
// that were not precached.
func (h *harness) checkCounter() {
	h.t.Helper()
	want := 0
	for _, c := range h.elems {
		if c.State().Loading && !c.State().PreCached {
			want++
		}
	}
	if got := h.gate.Count(); got != want {
		h.t.Errorf("priority counter = %d, want %d", got, want)
	}
}

func TestController_NoSourceIsInert(t *testing.T) {
	h := newHarness(t)
	c, host, r := h.add("a", map[string]string{"alt": "nothing"}, Options{})

	if c.State() != (domain.ElementState{}) {
		t.Errorf("expected idle state, got %+v", c.State())
	}
	if c.Phase() != domain.PhaseIdle {
		t.Errorf("expected idle phase, got %s", c.Phase())
	}
	if h.tracker.Len() != 0 || h.gate.Pending() != 0 {
		t.Error("inert element must not register anywhere")
	}
	if r.placeholders != 0 || len(r.sources) != 0 {
		t.Error("inert element must not render")
	}

	h.openGate()
	h.show("a")
	if len(h.jobs) != 0 || c.State() != (domain.ElementState{}) {
		t.Error("inert element must stay idle")
	}
	if host.HasAttribute(domain.AttrLoaded) {
		t.Error("inert element must not be marked loaded")
	}
}

func TestController_RegistersPendingPrecache(t *testing.T) {
	h := newHarness(t)
	c, _, _ := h.add("a", map[string]string{"src": "/a.jpg"}, Options{})

	if !c.Watching() || !h.tracker.Watching("a") || !h.observer.observed["a"] {
		t.Error("expected element to be watched")
	}
	if h.gate.Pending() != 1 {
		t.Errorf("expected one pending prefetch listener, got %d", h.gate.Pending())
	}
	if c.Phase() != domain.PhasePendingPrecache {
		t.Errorf("expected pending_precache, got %s", c.Phase())
	}
}

func TestController_SharedURLPrecachedOnce(t *testing.T) {
	h := newHarness(t)
	a, _, _ := h.add("a", map[string]string{"src": "/a.jpg"}, Options{})
	b, _, _ := h.add("b", map[string]string{"src": "/a.jpg"}, Options{})

	h.openGate()

	if len(h.jobs) != 1 {
		t.Fatalf("expected one job for /a.jpg, got %d", len(h.jobs))
	}
	if h.jobs[0].Location != "http://example.test/a.jpg" {
		t.Errorf("unexpected location %q", h.jobs[0].Location)
	}
	if !a.State().PreCaching || !b.State().PreCaching {
		t.Error("both elements should be precaching")
	}
	if h.gate.Pending() != 0 {
		t.Error("fired listeners should remove themselves")
	}

	h.complete("/a.jpg")

	for _, c := range []*Controller{a, b} {
		s := c.State()
		if !s.PreCached || s.PreCaching {
			t.Errorf("%s: expected precached, got %+v", c.ID(), s)
		}
		if s.Rendered || s.Loading {
			t.Errorf("%s: render-on-precache is off, got %+v", c.ID(), s)
		}
	}

	// Fired listeners are gone, so a second opening dispatches nothing.
	h.openGate()
	if len(h.jobs) != 1 {
		t.Errorf("expected no further jobs, got %d", len(h.jobs))
	}
}

func TestController_VisibleLoadDrivesCounter(t *testing.T) {
	h := newHarness(t)
	fired := 0
	h.gate.AddListener("/other.jpg", func() { fired++ })

	c, host, r := h.add("c", map[string]string{"src": "/c.jpg", "src-preview": "/c-small.jpg"}, Options{})

	h.show("c")

	if h.gate.Count() != 1 {
		t.Fatalf("expected counter 1 while loading, got %d", h.gate.Count())
	}
	s := c.State()
	if !s.Rendered || !s.Loading || s.Loaded || !s.Priority {
		t.Errorf("unexpected state %+v", s)
	}
	if c.Watching() || h.tracker.Watching("c") || h.observer.observed["c"] {
		t.Error("element should stop watching once visible")
	}
	if h.gate.Pending() != 1 {
		t.Error("visible element should drop its pending prefetch listener")
	}
	if r.previews != 1 || r.placeholders != 1 {
		t.Errorf("expected preview and placeholder, got %d/%d", r.previews, r.placeholders)
	}
	if len(r.sources) != 1 || r.sources[0] != "/c.jpg" {
		t.Errorf("unexpected sources %v", r.sources)
	}
	if h.clock.Pending() != 0 {
		t.Error("no timer while a priority load is outstanding")
	}

	r.finish()

	if h.gate.Count() != 0 {
		t.Errorf("expected counter 0 after load, got %d", h.gate.Count())
	}
	if !c.Loaded() || c.State().Loading {
		t.Errorf("expected loaded state, got %+v", c.State())
	}
	if !host.HasAttribute(domain.AttrLoaded) {
		t.Error("expected loaded attribute on host")
	}
	if r.removed != 1 {
		t.Error("expected preview removal")
	}
	if h.clock.Pending() != 1 {
		t.Fatalf("expected the prefetch timer to be scheduled, got %d", h.clock.Pending())
	}

	h.clock.Advance(priority.DefaultWindow - time.Millisecond)
	if fired != 0 {
		t.Fatal("prefetch window opened too early")
	}
	h.clock.Advance(time.Millisecond)
	if fired != 1 {
		t.Errorf("expected prefetch window to open once, got %d", fired)
	}

	// Late duplicate visibility and load signals are ignored.
	h.show("c")
	r.finish()
	if h.gate.Count() != 0 || len(r.sources) != 1 {
		t.Error("duplicate signals must have no effect")
	}
}

func TestController_SourceChangeWhileLoading(t *testing.T) {
	h := newHarness(t)
	c, host, r := h.add("a", map[string]string{"src": "/old.jpg"}, Options{})

	h.show("a")
	if h.gate.Count() != 1 {
		t.Fatalf("expected counter 1, got %d", h.gate.Count())
	}
	staleLoad := r.onLoad[0]

	c.SetAttribute(domain.AttrSrc, "/new.jpg")

	if host.GetAttribute(domain.AttrSrc) != "/new.jpg" {
		t.Error("host attribute not updated")
	}
	if c.State() != (domain.ElementState{}) {
		t.Errorf("expected flags reset, got %+v", c.State())
	}
	if h.gate.Count() != 0 {
		t.Errorf("abandoned priority load must be ended, got %d", h.gate.Count())
	}
	if !c.Watching() || c.Request().Src != "/new.jpg" {
		t.Error("expected re-initialization with the new URL")
	}
	if h.gate.Pending() != 1 {
		t.Errorf("expected one pending listener for the new URL, got %d", h.gate.Pending())
	}

	staleLoad()
	if c.Loaded() || h.gate.Count() != 0 {
		t.Error("stale load completion must be discarded")
	}
	h.checkCounter()

	h.openGate()
	if len(h.jobs) != 1 || h.jobs[0].URL != "/new.jpg" {
		t.Errorf("expected precache of the new URL only, got %+v", h.jobs)
	}
}

func TestController_SourceChangeAbandonsPrecache(t *testing.T) {
	h := newHarness(t)
	c, _, _ := h.add("a", map[string]string{"src": "/old.jpg"}, Options{RenderOnPreCached: true})

	h.openGate()
	if !c.State().PreCaching {
		t.Fatal("expected precaching")
	}

	c.SetAttribute(domain.AttrSrc, "/new.jpg")
	h.complete("/old.jpg")

	if c.State().PreCached || c.State().Rendered {
		t.Errorf("orphaned precache completion must be dropped, got %+v", c.State())
	}
	if !h.table.Cached("/old.jpg") {
		t.Error("the table still records the completed fetch")
	}
}

func TestController_UnchangedAttributeIgnored(t *testing.T) {
	h := newHarness(t)
	c, _, _ := h.add("a", map[string]string{"src": "/a.jpg"}, Options{})
	h.openGate()

	c.SetAttribute(domain.AttrSrc, "/a.jpg")
	c.AttributeChanged(domain.AttrSizes, "100vw", "100vw")

	if !c.State().PreCaching {
		t.Error("setting an identical value must not reset the element")
	}
}

func TestController_RenderAll(t *testing.T) {
	h := newHarness(t)
	c, _, r := h.add("a", map[string]string{"src": "/a.jpg"}, Options{RenderAll: true})

	if h.tracker.Len() != 0 || h.gate.Pending() != 0 {
		t.Error("render-all must skip visibility and precache registration")
	}
	if !c.State().Rendered || !c.State().Loading {
		t.Errorf("expected immediate render and load, got %+v", c.State())
	}
	if h.gate.Count() != 1 {
		t.Errorf("render-all loads count as priority, got %d", h.gate.Count())
	}
	r.finish()
	if h.gate.Count() != 0 || !c.Loaded() {
		t.Error("expected load to complete and release the counter")
	}
}

func TestController_RenderOnPreCached(t *testing.T) {
	h := newHarness(t)
	c, host, r := h.add("a", map[string]string{"src": "/a.jpg", "render-on-pre-cached": "true"}, Options{})

	if !c.Options().RenderOnPreCached {
		t.Fatal("expected attribute override to enable render-on-precache")
	}

	h.openGate()
	h.complete("/a.jpg")

	s := c.State()
	if !s.PreCached || !s.Rendered || !s.Loading || s.Priority {
		t.Errorf("expected non-priority load after precache, got %+v", s)
	}
	if h.gate.Count() != 0 {
		t.Errorf("precached loads must not touch the counter, got %d", h.gate.Count())
	}

	r.finish()
	if !c.Loaded() || !host.HasAttribute(domain.AttrLoaded) {
		t.Error("expected loaded")
	}
	if h.gate.Count() != 0 {
		t.Errorf("expected counter 0, got %d", h.gate.Count())
	}

	// Becoming visible afterwards only drops the watch.
	h.show("a")
	if len(r.sources) != 1 || c.Watching() {
		t.Errorf("expected no reload, got sources %v", r.sources)
	}
}

func TestController_AttributeOverrideDisables(t *testing.T) {
	h := newHarness(t)
	c, _, r := h.add("a", map[string]string{
		"src":                    "/a.jpg",
		"render-on-pre-cached":   "false",
		"render-with-shadow-dom": "true",
	}, Options{RenderOnPreCached: true})

	if c.Options().RenderOnPreCached {
		t.Error("attribute should disable render-on-precache")
	}
	if !r.isolated {
		t.Error("attribute should select the isolated renderer")
	}
}

func TestController_VisibleAfterPrecacheIsNotPriority(t *testing.T) {
	h := newHarness(t)
	c, _, r := h.add("a", map[string]string{"src": "/a.jpg"}, Options{})

	h.openGate()
	h.complete("/a.jpg")
	h.show("a")

	if h.gate.Count() != 0 || c.State().Priority {
		t.Errorf("precached element must load without priority, got count %d", h.gate.Count())
	}
	r.finish()
	if h.gate.Count() != 0 || !c.Loaded() {
		t.Error("expected load without counter change")
	}
}

func TestController_VisibleWhilePrecaching(t *testing.T) {
	h := newHarness(t)
	c, _, _ := h.add("a", map[string]string{"src": "/a.jpg"}, Options{RenderOnPreCached: true})

	h.openGate()
	h.show("a")

	if h.gate.Count() != 1 || !c.State().Priority {
		t.Fatalf("expected a priority load, got count %d", h.gate.Count())
	}
	if c.State().PreCaching {
		t.Error("precache registration should be dropped")
	}
	if h.table.Stats().Waiting != 0 {
		t.Errorf("expected the waiter to be cancelled, got %d", h.table.Stats().Waiting)
	}

	h.complete("/a.jpg")
	if c.State().PreCached {
		t.Error("cancelled precache must not reach the element")
	}
	h.checkCounter()
}

func TestController_AltForwardedOnlyOnceRendered(t *testing.T) {
	h := newHarness(t)
	c, _, r := h.add("a", map[string]string{"src": "/a.jpg", "alt": "one"}, Options{})

	c.SetAttribute(domain.AttrAlt, "two")
	if _, ok := r.attrs[domain.AttrAlt]; ok {
		t.Error("alt must not be forwarded before render")
	}

	h.show("a")
	c.SetAttribute(domain.AttrAlt, "three")
	if r.attrs[domain.AttrAlt] != "three" {
		t.Errorf("expected alt forwarded, got %q", r.attrs[domain.AttrAlt])
	}
	if len(r.sources) != 1 {
		t.Error("alt change must not restart the element")
	}
}

func TestController_Disconnect(t *testing.T) {
	h := newHarness(t)
	c, _, r := h.add("a", map[string]string{"src": "/a.jpg"}, Options{})
	h.add("b", map[string]string{"src": "/b.jpg"}, Options{})

	h.show("a")
	c.Disconnect()
	c.Disconnect()

	if h.gate.Count() != 0 {
		t.Errorf("disconnect must end the priority load, got %d", h.gate.Count())
	}
	r.finish()
	if c.Loaded() {
		t.Error("completion after disconnect must be ignored")
	}
	if h.tracker.Watching("a") {
		t.Error("disconnected element must not be watched")
	}

	c.Connect()
	if !c.Watching() || h.gate.Pending() != 2 {
		t.Errorf("reconnect should register again, pending=%d", h.gate.Pending())
	}
}

func TestController_CounterMatchesLoadingElements(t *testing.T) {
	h := newHarness(t)
	renderers := map[string]*fakeRenderer{}
	for i := 0; i < 6; i++ {
		id := fmt.Sprintf("e%d", i)
		_, _, r := h.add(id, map[string]string{"src": fmt.Sprintf("/%d.jpg", i%3)}, Options{RenderOnPreCached: i%2 == 0})
		renderers[id] = r
	}

	steps := []func(){
		func() { h.show("e0") },
		func() { h.show("e1") },
		func() { renderers["e0"].finish() },
		func() { h.clock.Advance(priority.DefaultWindow) },
		func() { renderers["e1"].finish() },
		func() { h.clock.Advance(priority.DefaultWindow) },
		func() { h.complete("/2.jpg") },
		func() { h.show("e5") },
		func() { h.elems["e3"].SetAttribute(domain.AttrSrc, "/9.jpg") },
		func() { h.show("e3") },
		func() { h.complete("/0.jpg") },
		func() { renderers["e5"].finish() },
		func() { h.elems["e3"].Disconnect() },
	}
	for i, step := range steps {
		step()
		if h.gate.Count() < 0 {
			t.Fatalf("step %d: counter went negative", i)
		}
		h.checkCounter()
	}
}
