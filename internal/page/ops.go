package page

import (
	"context"
	"fmt"
	"image"

	"github.com/timmy/lazyimg/internal/domain"
	"github.com/timmy/lazyimg/internal/logger"
	"github.com/timmy/lazyimg/internal/prefetch"
)

// Bounds is an element's layout box.
type Bounds struct {
	Top    int `json:"top"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ElementView is a snapshot of one element.
type ElementView struct {
	ID       domain.ElementID    `json:"id"`
	Src      string              `json:"src"`
	Phase    domain.Phase        `json:"phase"`
	State    domain.ElementState `json:"state"`
	Loaded   bool                `json:"loaded"`
	Watching bool                `json:"watching"`
	Bounds   Bounds              `json:"bounds"`
	Markup   string              `json:"markup,omitempty"`
}

// Stats summarizes the shared services.
type Stats struct {
	PriorityLoads    int            `json:"priority_loads"`
	Openings         int            `json:"openings"`
	PendingListeners int            `json:"pending_listeners"`
	Watching         int            `json:"watching"`
	Queued           int            `json:"queued"`
	Viewport         Bounds         `json:"viewport"`
	Prefetch         prefetch.Stats `json:"prefetch"`
	FailedURLs       []string       `json:"failed_urls,omitempty"`
}

func (p *Page) view(e *hostEntry, markup bool) ElementView {
	v := ElementView{
		ID:       e.ctrl.ID(),
		Src:      e.ctrl.Request().Src,
		Phase:    e.ctrl.Phase(),
		State:    e.ctrl.State(),
		Loaded:   e.ctrl.Loaded(),
		Watching: e.ctrl.Watching(),
		Bounds:   toBounds(e.bounds),
	}
	if markup {
		v.Markup = e.host.HTML()
	}
	return v
}

func toBounds(r image.Rectangle) Bounds {
	return Bounds{Top: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
}

// Snapshot returns every element in document order.
func (p *Page) Snapshot(ctx context.Context) ([]ElementView, error) {
	var out []ElementView
	err := p.do(ctx, func() {
		out = make([]ElementView, 0, len(p.hosts))
		for _, e := range p.hosts {
			out = append(out, p.view(e, false))
		}
	})
	return out, err
}

// Element returns one element including its rendered markup.
func (p *Page) Element(ctx context.Context, id domain.ElementID) (ElementView, error) {
	e, ok := p.byID[id]
	if !ok {
		return ElementView{}, ErrElementNotFound
	}
	var v ElementView
	err := p.do(ctx, func() { v = p.view(e, true) })
	return v, err
}

// SetAttribute mutates an element attribute. Width and height changes
// re-run the layout.
func (p *Page) SetAttribute(ctx context.Context, id domain.ElementID, name, value string) (ElementView, error) {
	e, ok := p.byID[id]
	if !ok {
		return ElementView{}, ErrElementNotFound
	}
	var v ElementView
	err := p.do(ctx, func() {
		e.ctrl.SetAttribute(name, value)
		if name == domain.AttrWidth || name == domain.AttrHeight {
			p.layout()
		}
		p.log.WithFields(logger.Fields{
			logger.FieldElementID: string(id),
			"attribute":           name,
		}).Debug("Attribute set")
		v = p.view(e, false)
	})
	if err != nil {
		return ElementView{}, fmt.Errorf("failed to set attribute: %w", err)
	}
	return v, nil
}

// Scroll moves the viewport top to y.
func (p *Page) Scroll(ctx context.Context, y int) error {
	return p.do(ctx, func() { p.viewport.ScrollTo(y) })
}

// Resize changes the viewport height, keeping its width and position.
func (p *Page) Resize(ctx context.Context, height int) error {
	return p.do(ctx, func() { p.viewport.Resize(p.viewport.Rect().Dx(), height) })
}

// Stats returns counters of the shared services.
func (p *Page) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := p.do(ctx, func() {
		s = Stats{
			PriorityLoads:    p.gate.Count(),
			Openings:         p.gate.Openings(),
			PendingListeners: p.gate.Pending(),
			Watching:         p.tracker.Len(),
			Queued:           p.worker.Queued(),
			Viewport:         toBounds(p.viewport.Rect()),
			Prefetch:         p.table.Stats(),
			FailedURLs:       append([]string(nil), p.failed...),
		}
	})
	return s, err
}

// Warm requests every element's primary URL from the prefetch table and
// waits until all of them completed, successfully or not.
func (p *Page) Warm(ctx context.Context) (prefetch.Stats, error) {
	done := make(chan struct{})
	var stats prefetch.Stats

	err := p.do(ctx, func() {
		remaining := 0
		finish := func() {
			remaining--
			if remaining == 0 {
				stats = p.table.Stats()
				close(done)
			}
		}
		var urls []string
		for _, e := range p.hosts {
			if src := e.host.GetAttribute(domain.AttrSrc); src != "" {
				urls = append(urls, src)
			}
		}
		remaining = len(urls) + 1
		for _, u := range urls {
			p.table.Request(u, finish)
		}
		finish()
	})
	if err != nil {
		return prefetch.Stats{}, err
	}

	select {
	case <-done:
		return stats, nil
	case <-ctx.Done():
		return prefetch.Stats{}, ctx.Err()
	}
}
