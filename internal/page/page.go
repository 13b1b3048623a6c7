// Package page hosts the img-2 elements of one document: it owns the event
// loop and every shared service, and exposes loop-safe operations to the
// HTTP API and the CLIs.
package page

import (
	"context"
	"errors"
	"image"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/timmy/lazyimg/internal/dom"
	"github.com/timmy/lazyimg/internal/domain"
	"github.com/timmy/lazyimg/internal/element"
	"github.com/timmy/lazyimg/internal/logger"
	"github.com/timmy/lazyimg/internal/loop"
	"github.com/timmy/lazyimg/internal/prefetch"
	"github.com/timmy/lazyimg/internal/priority"
	"github.com/timmy/lazyimg/internal/render"
	"github.com/timmy/lazyimg/internal/storage"
	"github.com/timmy/lazyimg/internal/visibility"
)

var (
	// ErrElementNotFound is returned for unknown element ids.
	ErrElementNotFound = errors.New("element not found")

	// ErrNotStarted is returned when an operation needs a running page.
	ErrNotStarted = errors.New("page not started")
)

// Default layout values.
const (
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 800
	DefaultElementHeight  = 300
)

// Config controls layout and element defaults.
type Config struct {
	Origin         string
	ViewportWidth  int
	ViewportHeight int
	ElementHeight  int
	DebounceWindow time.Duration
	Workers        int
	Options        element.Options

	// Detached keeps the elements disconnected. Only the prefetch table and
	// worker run; used for warming caches.
	Detached bool
}

// Deps are the page's external collaborators.
type Deps struct {
	Fetcher  prefetch.Fetcher
	Store    storage.BlobStore // optional
	Recorder prefetch.Recorder // optional

	// Loader overrides the primary image loader; nil uses an HTTPLoader.
	Loader render.Loader
}

type hostEntry struct {
	ctrl   *element.Controller
	host   *dom.Node
	bounds image.Rectangle
}

// Page owns one loop and the services shared by its elements.
type Page struct {
	cfg  Config
	deps Deps

	loop     *loop.Loop
	tracker  *visibility.Tracker
	viewport *visibility.Viewport
	gate     *priority.Gate
	table    *prefetch.Table
	worker   *prefetch.Worker
	loader   render.Loader

	title  string
	hosts  []*hostEntry
	byID   map[domain.ElementID]*hostEntry
	failed []string

	startOnce sync.Once
	started   chan struct{}

	log *logger.Logger
}

// New builds a page for doc. A render-all directive in the document
// overrides cfg.Options.RenderAll.
func New(doc *dom.Document, cfg *Config, deps Deps, log *logger.Logger) *Page {
	if log == nil {
		log = logger.GetDefault()
	}
	c := Config{}
	if cfg != nil {
		c = *cfg
	}
	if c.ViewportWidth <= 0 {
		c.ViewportWidth = DefaultViewportWidth
	}
	if c.ViewportHeight <= 0 {
		c.ViewportHeight = DefaultViewportHeight
	}
	if c.ElementHeight <= 0 {
		c.ElementHeight = DefaultElementHeight
	}
	if doc.RenderAll != nil {
		c.Options.RenderAll = *doc.RenderAll
	}

	p := &Page{
		cfg:     c,
		deps:    deps,
		title:   doc.Title,
		byID:    make(map[domain.ElementID]*hostEntry),
		started: make(chan struct{}),
		log:     log.WithComponent("page"),
	}

	p.loop = loop.New(log)
	p.tracker = visibility.NewTracker(log)
	p.viewport = visibility.NewViewport(image.Rect(0, 0, c.ViewportWidth, c.ViewportHeight), p.tracker.HandleEntries)
	p.viewport.Deliver(func(fn func()) { _ = p.loop.Post(fn) })
	p.tracker.Attach(p.viewport)
	p.gate = priority.NewGate(p.loop, c.DebounceWindow, log)

	p.worker = prefetch.NewWorker(deps.Fetcher, p.report, &prefetch.WorkerConfig{
		Workers:  c.Workers,
		Store:    deps.Store,
		Recorder: deps.Recorder,
	}, log)
	p.table = prefetch.NewTable(c.Origin, p.worker.Submit, log)
	p.table.OnFailure(func(r prefetch.Result) {
		p.failed = append(p.failed, r.URL)
	})

	svc := element.Services{Visibility: p.tracker, Gate: p.gate, Prefetch: p.table}
	for _, host := range doc.Hosts {
		id := domain.ElementID(host.GetAttribute("id"))
		if id == "" || p.byID[id] != nil {
			id = domain.ElementID(uuid.NewString())
		}
		e := &hostEntry{host: host}
		e.ctrl = element.New(id, host, svc, c.Options, p.rendererFor(host), log)
		p.hosts = append(p.hosts, e)
		p.byID[id] = e
	}
	p.layout()

	return p
}

func (p *Page) rendererFor(host *dom.Node) element.RendererFactory {
	return func(isolated bool) element.Renderer {
		if isolated {
			return render.NewIsolated(host, p.loader)
		}
		return render.NewPlain(host, p.loader)
	}
}

// report runs on a worker goroutine and hands the result to the loop.
func (p *Page) report(r prefetch.Result) {
	if err := p.loop.Post(func() { p.table.Complete(r) }); err != nil {
		p.log.WithField(logger.FieldURL, r.URL).WithError(err).Debug("Dropped prefetch result")
	}
}

// layout stacks hosts vertically. Width and height come from the host
// attributes when they parse as positive integers.
func (p *Page) layout() {
	y := 0
	for _, e := range p.hosts {
		w := intAttr(e.host, domain.AttrWidth, p.cfg.ViewportWidth)
		h := intAttr(e.host, domain.AttrHeight, p.cfg.ElementHeight)
		e.bounds = image.Rect(0, y, w, y+h)
		p.viewport.SetBounds(e.ctrl.ID(), e.bounds)
		y += h
	}
}

func intAttr(n *dom.Node, name string, def int) int {
	v, err := strconv.Atoi(n.GetAttribute(name))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

// Start runs the loop and the prefetch worker until ctx is done, then
// connects every element on the loop.
func (p *Page) Start(ctx context.Context) error {
	var err error
	p.startOnce.Do(func() {
		if p.deps.Loader != nil {
			p.loader = p.deps.Loader
		} else {
			p.loader = render.NewHTTPLoader(ctx, p.cfg.Origin, p.deps.Fetcher, p.deps.Store, p.loop.Post, p.log)
		}

		p.worker.Start(ctx)
		go func() {
			if err := p.loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				p.log.WithError(err).Warn("Event loop exited")
			}
		}()

		err = p.loop.Post(func() {
			if !p.cfg.Detached {
				for _, e := range p.hosts {
					e.ctrl.Connect()
				}
			}
			p.log.WithFields(logger.Fields{
				logger.FieldCount: len(p.hosts),
				"render_all":      p.cfg.Options.RenderAll,
				"detached":        p.cfg.Detached,
			}).Info("Page started")
		})
		close(p.started)
	})
	return err
}

// Wait blocks until the loop and the worker have stopped.
func (p *Page) Wait() {
	<-p.loop.Done()
	p.worker.Wait()
}

func (p *Page) do(ctx context.Context, fn func()) error {
	select {
	case <-p.started:
	default:
		return ErrNotStarted
	}
	return p.loop.Do(ctx, fn)
}

// Len returns the number of hosted elements.
func (p *Page) Len() int {
	return len(p.hosts)
}

// Title returns the document title.
func (p *Page) Title() string {
	return p.title
}
