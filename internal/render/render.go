// Package render builds the image nodes of an img-2 host, either directly in
// the host's light tree or inside an isolated shadow root.
package render

import (
	"github.com/timmy/lazyimg/internal/dom"
	"github.com/timmy/lazyimg/internal/domain"
)

// Class names of the nodes a renderer creates.
const (
	ClassPreview = "img2-preview"
	ClassSource  = "img2-src"
)

// Loader fetches a primary image and calls done once it is displayable.
// done is never called on failure.
type Loader interface {
	Load(url string, done func())
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(url string, done func())

// Load calls f.
func (f LoaderFunc) Load(url string, done func()) {
	f(url, done)
}

// base holds the node bookkeeping shared by both strategies. The nodes
// survive a source change; only the element's flags are reset.
type base struct {
	host    *dom.Node
	root    *dom.Node
	preview *dom.Node
	img     *dom.Node
	loader  Loader
}

// RenderPreview adds the blurred preview image unless one is already shown
// or the request has none.
func (b *base) RenderPreview(req domain.ImageRequest) {
	if b.preview != nil || !req.HasPreview() {
		return
	}
	p := dom.NewElement("img")
	p.AddClass(ClassPreview)
	p.SetAttribute("src", req.Preview)
	if req.PreviewSet != "" {
		p.SetAttribute("srcset", req.PreviewSet)
	}
	if req.Sizes != "" {
		p.SetAttribute("sizes", req.Sizes)
	}
	p.SetStyle("width", "100%")
	p.SetStyle("filter", "blur(0.05vw)")
	b.root.AppendChild(p)
	b.preview = p
}

// RenderPlaceholder adds the primary image node without a source. Leftover
// prerendered primary nodes in the host are removed first.
func (b *base) RenderPlaceholder(req domain.ImageRequest) {
	if b.img != nil {
		return
	}
	stale := b.host.ElementsByClass(ClassSource)
	for i := len(stale) - 1; i >= 0; i-- {
		stale[i].Remove()
	}

	img := dom.NewElement("img")
	img.AddClass(ClassSource)
	img.SetStyle("width", "100%")
	if req.HasAlt {
		img.SetAttribute("alt", req.Alt)
	}
	b.root.AppendChild(img)
	b.img = img
}

// SetPrimarySource points the primary image at req and starts loading it.
func (b *base) SetPrimarySource(req domain.ImageRequest, onLoad func()) {
	if b.img == nil {
		b.RenderPlaceholder(req)
	}
	b.img.SetAttribute("src", req.Src)
	if req.SrcSet != "" {
		b.img.SetAttribute("srcset", req.SrcSet)
	}
	if req.Sizes != "" {
		b.img.SetAttribute("sizes", req.Sizes)
	}
	if b.loader != nil {
		b.loader.Load(req.Src, onLoad)
	}
}

// RemovePreview drops the preview image if present.
func (b *base) RemovePreview() {
	if b.preview == nil {
		return
	}
	b.preview.Remove()
	b.preview = nil
}

// UpdateAttribute mirrors an attribute onto the primary image once it exists.
func (b *base) UpdateAttribute(name, value string) {
	if b.img == nil {
		return
	}
	b.img.SetAttribute(name, value)
}

// Image returns the primary image node, nil before the first render.
func (b *base) Image() *dom.Node {
	return b.img
}

// Preview returns the preview node, nil when none is shown.
func (b *base) Preview() *dom.Node {
	return b.preview
}

// Plain renders straight into the host element.
type Plain struct {
	base
}

// NewPlain creates a light-tree renderer for host.
func NewPlain(host *dom.Node, loader Loader) *Plain {
	return &Plain{base{host: host, root: host, loader: loader}}
}

const shadowStyle = `:host { position: relative; overflow: hidden; display: inline-block; outline: none; }
img { position: relative; }
img.img2-src { z-index: 1; opacity: 0; }
img.img2-preview { z-index: 2; top: 0; left: 0; }
:host([loaded]) img.img2-src { opacity: 1; }`

// Isolated renders into a shadow root carrying its own style sheet.
type Isolated struct {
	base
}

// NewIsolated creates a shadow-root renderer for host. The root and its
// style node are attached on the first render.
func NewIsolated(host *dom.Node, loader Loader) *Isolated {
	return &Isolated{base{host: host, loader: loader}}
}

func (r *Isolated) attach() {
	if r.root != nil {
		return
	}
	r.root = r.host.AttachShadow()
	style := dom.NewElement("style")
	style.Text = shadowStyle
	r.root.AppendChild(style)
}

// RenderPreview attaches the shadow root if needed, then renders the preview.
func (r *Isolated) RenderPreview(req domain.ImageRequest) {
	r.attach()
	r.base.RenderPreview(req)
}

// RenderPlaceholder attaches the shadow root if needed, then renders the
// primary image node.
func (r *Isolated) RenderPlaceholder(req domain.ImageRequest) {
	r.attach()
	r.base.RenderPlaceholder(req)
}

// SetPrimarySource attaches the shadow root if needed, then loads req.
func (r *Isolated) SetPrimarySource(req domain.ImageRequest, onLoad func()) {
	r.attach()
	r.base.SetPrimarySource(req, onLoad)
}
