// Package element drives one img-2 host through its load lifecycle:
// pending precache, visible render, priority load and loaded.
package element

import (
	"github.com/timmy/lazyimg/internal/domain"
	"github.com/timmy/lazyimg/internal/logger"
	"github.com/timmy/lazyimg/internal/prefetch"
	"github.com/timmy/lazyimg/internal/priority"
	"github.com/timmy/lazyimg/internal/visibility"
)

// Host is the attribute surface of the element being controlled.
// *dom.Node satisfies it.
type Host interface {
	GetAttribute(name string) string
	HasAttribute(name string) bool
	SetAttribute(name, value string)
	RemoveAttribute(name string)
}

// Renderer builds and loads the image nodes of a host.
type Renderer interface {
	RenderPreview(req domain.ImageRequest)
	RenderPlaceholder(req domain.ImageRequest)
	SetPrimarySource(req domain.ImageRequest, onLoad func())
	RemovePreview()
	UpdateAttribute(name, value string)
}

// RendererFactory returns the renderer strategy for a host.
type RendererFactory func(isolated bool) Renderer

// Visibility is the registry the controller watches through.
type Visibility interface {
	Watch(id domain.ElementID, onVisible func(visibility.Entry))
	Unwatch(id domain.ElementID)
}

// Gate is the priority counter and pending-prefetch list.
type Gate interface {
	BeginPriorityLoad()
	EndPriorityLoad()
	AddListener(url string, fn func()) *priority.Listener
	RemoveListener(l *priority.Listener)
}

// Prefetcher dedupes background fetches.
type Prefetcher interface {
	Request(url string, cb func()) *prefetch.Waiter
}

// Services are the shared subsystems every controller of a page uses.
type Services struct {
	Visibility Visibility
	Gate       Gate
	Prefetch   Prefetcher
}

// Options are the process-wide render settings. Host attributes may
// override RenderOnPreCached and RenderWithShadowDOM per element.
type Options struct {
	RenderOnPreCached   bool
	RenderWithShadowDOM bool
	RenderAll           bool
}

// Controller is the per-element state machine. Every method must be called
// from the event loop that owns the shared services.
type Controller struct {
	id          domain.ElementID
	host        Host
	svc         Services
	opts        Options
	newRenderer RendererFactory
	renderer    Renderer

	req      domain.ImageRequest
	state    domain.ElementState
	watching bool
	listener *priority.Listener
	waiter   *prefetch.Waiter

	// gen invalidates callbacks registered before the last reset.
	gen       uint64
	connected bool

	log *logger.Logger
}

// New creates a controller for host. Nothing happens until Connect.
func New(id domain.ElementID, host Host, svc Services, opts Options, newRenderer RendererFactory, log *logger.Logger) *Controller {
	if log == nil {
		log = logger.GetDefault()
	}
	return &Controller{
		id:          id,
		host:        host,
		svc:         svc,
		opts:        opts,
		newRenderer: newRenderer,
		log:         log.WithComponent("element").WithField(logger.FieldElementID, string(id)),
	}
}

// ID returns the element handle.
func (c *Controller) ID() domain.ElementID {
	return c.id
}

// Request returns the image resources read at the last initialization.
func (c *Controller) Request() domain.ImageRequest {
	return c.req
}

// State returns a copy of the flag record.
func (c *Controller) State() domain.ElementState {
	return c.state
}

// Phase returns the display label of the current state.
func (c *Controller) Phase() domain.Phase {
	return c.state.Phase(c.watching)
}

// Loaded reports whether the primary image finished loading.
func (c *Controller) Loaded() bool {
	return c.state.Loaded
}

// Watching reports whether the element still waits for visibility.
func (c *Controller) Watching() bool {
	return c.watching
}

// Options returns the effective settings after per-element overrides.
func (c *Controller) Options() Options {
	return c.opts
}

// Connect applies attribute overrides, picks the renderer strategy and
// initializes the element.
func (c *Controller) Connect() {
	if c.connected {
		return
	}
	c.connected = true

	if c.host.HasAttribute(domain.AttrRenderOnPreCached) {
		c.opts.RenderOnPreCached = c.host.GetAttribute(domain.AttrRenderOnPreCached) == "true"
	}
	if c.host.HasAttribute(domain.AttrRenderWithShadowDOM) {
		c.opts.RenderWithShadowDOM = c.host.GetAttribute(domain.AttrRenderWithShadowDOM) == "true"
	}
	if c.renderer == nil {
		c.renderer = c.newRenderer(c.opts.RenderWithShadowDOM)
	}

	c.reset()
	c.init()
}

// Disconnect drops every registration. A priority load in flight is ended
// so the shared counter stays exact.
func (c *Controller) Disconnect() {
	if !c.connected {
		return
	}
	c.connected = false
	c.reset()
	c.log.Debug("Element disconnected")
}

// SetAttribute writes name on the host and reacts to the change.
func (c *Controller) SetAttribute(name, value string) {
	old, had := c.hostAttr(name)
	c.host.SetAttribute(name, value)
	if had && old == value {
		return
	}
	c.AttributeChanged(name, old, value)
}

// AttributeChanged reacts to a host attribute mutation. Source changes
// restart the element from scratch.
func (c *Controller) AttributeChanged(name, oldValue, newValue string) {
	if oldValue == newValue {
		return
	}

	switch name {
	case domain.AttrSrc, domain.AttrSrcSet, domain.AttrSizes:
		if !c.connected {
			return
		}
		c.log.WithFields(logger.Fields{
			"attribute": name,
			"old":       oldValue,
			"new":       newValue,
		}).Debug("Source changed, restarting element")
		c.reset()
		c.init()
	case domain.AttrAlt:
		if c.state.Rendered {
			c.renderer.UpdateAttribute(domain.AttrAlt, newValue)
		}
	case domain.AttrRenderOnPreCached:
		c.opts.RenderOnPreCached = newValue == "true"
	}
}

func (c *Controller) hostAttr(name string) (string, bool) {
	if !c.host.HasAttribute(name) {
		return "", false
	}
	return c.host.GetAttribute(name), true
}

// reset drops registrations and clears the flag record.
func (c *Controller) reset() {
	c.gen++
	if c.state.Loaded {
		c.host.RemoveAttribute(domain.AttrLoaded)
	}
	if c.state.Loading && c.state.Priority {
		c.svc.Gate.EndPriorityLoad()
	}
	c.svc.Gate.RemoveListener(c.listener)
	c.listener = nil
	c.waiter.Cancel()
	c.waiter = nil
	c.unwatch()
	c.state = domain.ElementState{}
}

func (c *Controller) init() {
	c.req = readRequest(c.host)
	if !c.req.Enabled() {
		return
	}

	if c.opts.RenderAll {
		c.render()
		c.load()
		return
	}

	gen := c.gen
	// Register for precache before watching: an already visible element
	// removes this listener from its visibility callback.
	c.listener = c.svc.Gate.AddListener(c.req.Src, func() { c.precache(gen) })
	c.watching = true
	c.svc.Visibility.Watch(c.id, func(visibility.Entry) { c.onVisible(gen) })
}

func readRequest(h Host) domain.ImageRequest {
	req := domain.ImageRequest{
		Src:        h.GetAttribute(domain.AttrSrc),
		SrcSet:     h.GetAttribute(domain.AttrSrcSet),
		Preview:    h.GetAttribute(domain.AttrPreview),
		PreviewSet: h.GetAttribute(domain.AttrPreviewSet),
		Sizes:      h.GetAttribute(domain.AttrSizes),
	}
	if h.HasAttribute(domain.AttrAlt) {
		req.Alt = h.GetAttribute(domain.AttrAlt)
		req.HasAlt = true
	}
	return req
}

// precache runs when the prefetch window opens.
func (c *Controller) precache(gen uint64) {
	if gen != c.gen {
		return
	}
	c.svc.Gate.RemoveListener(c.listener)
	c.listener = nil

	c.state.PreCaching = true
	w := c.svc.Prefetch.Request(c.req.Src, func() { c.onPreCached(gen) })
	if c.state.PreCaching {
		c.waiter = w
	}
}

func (c *Controller) onPreCached(gen uint64) {
	if gen != c.gen {
		return
	}
	c.waiter = nil
	c.state.PreCaching = false
	c.state.PreCached = true
	c.log.Debug("Image precached")

	if c.opts.RenderOnPreCached && !c.state.Loading && !c.state.Loaded {
		c.render()
		c.load()
	}
}

func (c *Controller) onVisible(gen uint64) {
	if gen != c.gen {
		return
	}
	c.svc.Gate.RemoveListener(c.listener)
	c.listener = nil
	if c.waiter != nil {
		c.waiter.Cancel()
		c.waiter = nil
		c.state.PreCaching = false
	}

	c.render()
	if !c.state.Loading && !c.state.Loaded {
		c.load()
	}
	c.unwatch()
}

func (c *Controller) unwatch() {
	if !c.watching {
		return
	}
	c.watching = false
	c.svc.Visibility.Unwatch(c.id)
}

func (c *Controller) render() {
	if c.state.Rendered {
		return
	}
	if !c.state.Loaded {
		c.renderer.RenderPreview(c.req)
	}
	c.renderer.RenderPlaceholder(c.req)
	c.state.Rendered = true
}

// load starts the primary image. Elements not yet precached count as a
// priority load.
func (c *Controller) load() {
	if !c.state.PreCached {
		c.svc.Gate.BeginPriorityLoad()
		c.state.Priority = true
	}
	c.state.Loading = true

	gen := c.gen
	c.log.WithFields(logger.Fields{
		logger.FieldURL: c.req.Src,
		"priority":      c.state.Priority,
	}).Debug("Loading image")
	c.renderer.SetPrimarySource(c.req, func() { c.onLoaded(gen) })
}

func (c *Controller) onLoaded(gen uint64) {
	if gen != c.gen || !c.state.Loading {
		return
	}
	c.state.Loading = false
	c.state.Loaded = true
	c.renderer.RemovePreview()
	if c.state.Priority {
		c.state.Priority = false
		c.svc.Gate.EndPriorityLoad()
	}
	c.host.SetAttribute(domain.AttrLoaded, "")
	c.log.WithField(logger.FieldURL, c.req.Src).Debug("Image loaded")
}
