package domain

// ElementID is the stable handle of a lazy image element.
type ElementID string

// Attribute names read from an img-2 host.
const (
	AttrSrc                 = "src"
	AttrSrcSet              = "srcset"
	AttrSizes               = "sizes"
	AttrPreview             = "src-preview"
	AttrPreviewSet          = "srcset-preview"
	AttrAlt                 = "alt"
	AttrWidth               = "width"
	AttrHeight              = "height"
	AttrLoaded              = "loaded"
	AttrRenderOnPreCached   = "render-on-pre-cached"
	AttrRenderWithShadowDOM = "render-with-shadow-dom"
)

// ObservedAttributes lists the host attributes whose mutation the element reacts to.
var ObservedAttributes = []string{AttrSrc, AttrSrcSet, AttrSizes, AttrWidth, AttrHeight, AttrAlt}

// ImageRequest identifies one image resource of an element.
type ImageRequest struct {
	Src        string `json:"src"`
	SrcSet     string `json:"srcset,omitempty"`
	Preview    string `json:"preview,omitempty"`
	PreviewSet string `json:"preview_set,omitempty"`
	Sizes      string `json:"sizes,omitempty"`
	Alt        string `json:"alt,omitempty"`
	HasAlt     bool   `json:"-"`
}

// Enabled reports whether the request has a primary URL. A disabled request
// leaves its element inert.
func (r ImageRequest) Enabled() bool {
	return r.Src != ""
}

// HasPreview reports whether a preview URL was given.
func (r ImageRequest) HasPreview() bool {
	return r.Preview != ""
}
