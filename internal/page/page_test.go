package page

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/timmy/lazyimg/internal/dom"
	"github.com/timmy/lazyimg/internal/domain"
	"github.com/timmy/lazyimg/internal/render"
	"github.com/timmy/lazyimg/internal/storage"
	"github.com/timmy/lazyimg/internal/transport"
)

const gallery = `<html><head><title>Gallery</title></head><body>
<img-2 id="one" src="/1.jpg" src-preview="/1-small.jpg"></img-2>
<img-2 id="two" src="/2.jpg"></img-2>
<img-2 id="three" src="/3.jpg"></img-2>
<img-2 id="four" src="/4.jpg"></img-2>
<img-2 id="five" src="/4.jpg"></img-2>
<img-2 id="empty"></img-2>
</body></html>`

type hitCounter struct {
	mu   sync.Mutex
	hits map[string]int
}

func (h *hitCounter) count(path string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hits[path]
}

func newImageServer(t *testing.T) (*httptest.Server, *hitCounter) {
	t.Helper()
	hc := &hitCounter{hits: make(map[string]int)}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hc.mu.Lock()
		hc.hits[r.URL.Path]++
		hc.mu.Unlock()
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte("jpeg:" + r.URL.Path))
	}))
	t.Cleanup(srv.Close)
	return srv, hc
}

func parse(t *testing.T, markup string) *dom.Document {
	t.Helper()
	doc, err := dom.Parse(strings.NewReader(markup))
	if err != nil {
		t.Fatalf("failed to parse page: %v", err)
	}
	return doc
}

// newTestPage builds a page whose primary loads complete right away.
func newTestPage(t *testing.T, markup string, cfg *Config) (*Page, *hitCounter) {
	t.Helper()
	srv, hc := newImageServer(t)
	if cfg.Origin == "" {
		cfg.Origin = srv.URL
	}
	var p *Page
	deps := Deps{
		Fetcher: transport.NewClient(&transport.Config{Timeout: 5 * time.Second}),
		Store:   storage.NewMemoryStore(),
		Loader: render.LoaderFunc(func(url string, done func()) {
			_ = p.loop.Post(done)
		}),
	}
	p = New(parse(t, markup), cfg, deps, nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		p.Wait()
	})
	if err := p.Start(ctx); err != nil {
		t.Fatalf("failed to start page: %v", err)
	}
	return p, hc
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func phases(t *testing.T, p *Page) map[domain.ElementID]ElementView {
	t.Helper()
	views, err := p.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	out := make(map[domain.ElementID]ElementView, len(views))
	for _, v := range views {
		out[v.ID] = v
	}
	return out
}

func TestPage_LoadsVisibleThenPrecachesRest(t *testing.T) {
	p, hc := newTestPage(t, gallery, &Config{
		ViewportHeight: 800,
		ElementHeight:  300,
		DebounceWindow: 20 * time.Millisecond,
	})

	if p.Len() != 6 || p.Title() != "Gallery" {
		t.Fatalf("unexpected page: %d elements, title %q", p.Len(), p.Title())
	}

	eventually(t, "visible elements to load", func() bool {
		v := phases(t, p)
		return v["one"].Loaded && v["two"].Loaded && v["three"].Loaded
	})

	eventually(t, "off-screen elements to precache", func() bool {
		v := phases(t, p)
		return v["four"].State.PreCached && v["five"].State.PreCached
	})

	v := phases(t, p)
	if v["four"].Loaded || v["four"].State.Rendered {
		t.Error("render-on-precache is off; four must not render yet")
	}
	if v["empty"].Phase != domain.PhaseIdle {
		t.Errorf("element without src should stay idle, got %s", v["empty"].Phase)
	}
	if v["two"].Bounds.Top != 300 || v["two"].Bounds.Height != 300 {
		t.Errorf("unexpected layout %+v", v["two"].Bounds)
	}
	if hc.count("/4.jpg") != 1 {
		t.Errorf("shared URL must be fetched once, got %d", hc.count("/4.jpg"))
	}

	stats, err := p.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.PriorityLoads != 0 || stats.Openings < 1 {
		t.Errorf("unexpected gate stats %+v", stats)
	}
	if stats.Prefetch.Dispatched != 1 {
		t.Errorf("expected one prefetch job, got %+v", stats.Prefetch)
	}

	if err := p.Scroll(context.Background(), 900); err != nil {
		t.Fatalf("Scroll failed: %v", err)
	}
	eventually(t, "scrolled elements to load", func() bool {
		v := phases(t, p)
		return v["four"].Loaded && v["five"].Loaded
	})
	stats, _ = p.Stats(context.Background())
	if stats.PriorityLoads != 0 {
		t.Errorf("precached loads must not count as priority, got %d", stats.PriorityLoads)
	}
}

func TestPage_SetAttribute(t *testing.T) {
	p, _ := newTestPage(t, gallery, &Config{ViewportHeight: 100, ElementHeight: 300, DebounceWindow: time.Hour})
	ctx := context.Background()

	eventually(t, "first element to load", func() bool {
		return phases(t, p)["one"].Loaded
	})

	v, err := p.SetAttribute(ctx, "one", domain.AttrSrc, "/other.jpg")
	if err != nil {
		t.Fatalf("SetAttribute failed: %v", err)
	}
	if v.Src != "/other.jpg" {
		t.Errorf("expected new src, got %q", v.Src)
	}
	eventually(t, "element to reload the new source", func() bool {
		return phases(t, p)["one"].Loaded
	})

	v, err = p.SetAttribute(ctx, "two", domain.AttrHeight, "50")
	if err != nil {
		t.Fatalf("SetAttribute failed: %v", err)
	}
	if v.Bounds.Height != 50 {
		t.Errorf("expected relayout to height 50, got %+v", v.Bounds)
	}
	if three := phases(t, p)["three"]; three.Bounds.Top != 350 {
		t.Errorf("expected following element to move to 350, got %d", three.Bounds.Top)
	}

	el, err := p.Element(ctx, "one")
	if err != nil {
		t.Fatalf("Element failed: %v", err)
	}
	if !strings.Contains(el.Markup, `src="/other.jpg"`) || !strings.Contains(el.Markup, "img2-src") {
		t.Errorf("unexpected markup %s", el.Markup)
	}

	if _, err := p.SetAttribute(ctx, "missing", domain.AttrSrc, "/x.jpg"); !errors.Is(err, ErrElementNotFound) {
		t.Errorf("expected ErrElementNotFound, got %v", err)
	}
}

func TestPage_RenderAllDirective(t *testing.T) {
	markup := `<html><head><meta name="X-DYNAMIC-RENDERER" content="true"></head><body>
<img-2 height="5000"></img-2>
<img-2 id="far" src="/far.jpg"></img-2>
</body></html>`
	p, _ := newTestPage(t, markup, &Config{ViewportHeight: 10})

	eventually(t, "off-screen element to load eagerly", func() bool {
		return phases(t, p)["far"].Loaded
	})
	if top := phases(t, p)["far"].Bounds.Top; top != 5000 {
		t.Errorf("expected far element at 5000, got %d", top)
	}
}

func TestPage_WarmDetached(t *testing.T) {
	p, hc := newTestPage(t, gallery, &Config{Detached: true})

	stats, err := p.Warm(context.Background())
	if err != nil {
		t.Fatalf("Warm failed: %v", err)
	}
	if stats.Cached != 4 || stats.Dispatched != 4 {
		t.Errorf("expected 4 distinct URLs cached, got %+v", stats)
	}
	if hc.count("/4.jpg") != 1 || hc.count("/1.jpg") != 1 {
		t.Error("each URL must be fetched exactly once")
	}

	v := phases(t, p)
	if v["one"].Phase != domain.PhaseIdle || v["one"].Watching {
		t.Errorf("detached elements must stay idle, got %s", v["one"].Phase)
	}

	// Warming again is answered from the table.
	if _, err := p.Warm(context.Background()); err != nil {
		t.Fatalf("second Warm failed: %v", err)
	}
	if hc.count("/1.jpg") != 1 {
		t.Error("second warm must not refetch")
	}
}

func TestPage_NotStarted(t *testing.T) {
	p := New(parse(t, gallery), nil, Deps{Fetcher: transport.NewClient(nil)}, nil)
	if _, err := p.Snapshot(context.Background()); !errors.Is(err, ErrNotStarted) {
		t.Errorf("expected ErrNotStarted, got %v", err)
	}
	if _, err := p.Element(context.Background(), "nope"); !errors.Is(err, ErrElementNotFound) {
		t.Errorf("expected ErrElementNotFound, got %v", err)
	}
}
