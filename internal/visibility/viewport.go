package visibility

import (
	"image"

	"github.com/timmy/lazyimg/internal/domain"
)

// Viewport is a geometric Observer. Elements have layout rectangles; an
// element intersects when a non-zero part of its area lies inside the
// viewport rectangle.
type Viewport struct {
	rect    image.Rectangle
	bounds  map[domain.ElementID]image.Rectangle
	order   []domain.ElementID
	state   map[domain.ElementID]bool // observed id -> last reported intersecting
	handler func([]Entry)
	post    func(func())
}

// NewViewport creates a viewport over rect reporting changes to handler.
func NewViewport(rect image.Rectangle, handler func([]Entry)) *Viewport {
	return &Viewport{
		rect:    rect.Canon(),
		bounds:  make(map[domain.ElementID]image.Rectangle),
		state:   make(map[domain.ElementID]bool),
		handler: handler,
	}
}

// Deliver makes the viewport hand entries to post instead of calling the
// handler inline, so notifications arrive asynchronously like a browser
// intersection observer.
func (v *Viewport) Deliver(post func(func())) {
	v.post = post
}

// Rect returns the current viewport rectangle.
func (v *Viewport) Rect() image.Rectangle {
	return v.rect
}

// SetBounds places an element. Observed elements are re-evaluated.
func (v *Viewport) SetBounds(id domain.ElementID, r image.Rectangle) {
	v.bounds[id] = r.Canon()
	if _, ok := v.state[id]; ok {
		v.report(v.changed([]domain.ElementID{id}))
	}
}

// Observe starts observing id and delivers its initial state.
func (v *Viewport) Observe(id domain.ElementID) {
	if _, ok := v.state[id]; !ok {
		v.order = append(v.order, id)
	}
	e := v.entry(id)
	v.state[id] = e.Intersecting
	v.report([]Entry{e})
}

// Unobserve stops observing id.
func (v *Viewport) Unobserve(id domain.ElementID) {
	if _, ok := v.state[id]; !ok {
		return
	}
	delete(v.state, id)
	for i, o := range v.order {
		if o == id {
			v.order = append(v.order[:i], v.order[i+1:]...)
			break
		}
	}
}

// Observed returns the number of observed elements.
func (v *Viewport) Observed() int {
	return len(v.state)
}

// ScrollTo moves the viewport so its top edge is at y.
func (v *Viewport) ScrollTo(y int) {
	v.Move(image.Pt(v.rect.Min.X, y))
}

// Move places the viewport's top-left corner at p.
func (v *Viewport) Move(p image.Point) {
	v.rect = v.rect.Add(p.Sub(v.rect.Min))
	v.report(v.changed(v.order))
}

// Resize changes the viewport size, keeping its top-left corner.
func (v *Viewport) Resize(width, height int) {
	v.rect.Max = v.rect.Min.Add(image.Pt(width, height))
	v.report(v.changed(v.order))
}

func (v *Viewport) entry(id domain.ElementID) Entry {
	ratio := intersectionRatio(v.bounds[id], v.rect)
	return Entry{Target: id, Ratio: ratio, Intersecting: ratio > 0}
}

// changed returns entries for the given observed ids whose intersecting
// state flipped since the last report.
func (v *Viewport) changed(ids []domain.ElementID) []Entry {
	var entries []Entry
	for _, id := range ids {
		prev, ok := v.state[id]
		if !ok {
			continue
		}
		e := v.entry(id)
		if e.Intersecting == prev {
			continue
		}
		v.state[id] = e.Intersecting
		entries = append(entries, e)
	}
	return entries
}

func (v *Viewport) report(entries []Entry) {
	if len(entries) == 0 || v.handler == nil {
		return
	}
	if v.post != nil {
		v.post(func() { v.handler(entries) })
		return
	}
	v.handler(entries)
}

// intersectionRatio is the fraction of elem's area inside view.
func intersectionRatio(elem, view image.Rectangle) float64 {
	area := elem.Dx() * elem.Dy()
	if area == 0 {
		return 0
	}
	in := elem.Intersect(view)
	return float64(in.Dx()*in.Dy()) / float64(area)
}
