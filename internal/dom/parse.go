package dom

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// HostTag is the custom element handled by this module.
const HostTag = "img-2"

// DynamicRendererMeta is the meta name of the page-level render-all directive.
const DynamicRendererMeta = "X-DYNAMIC-RENDERER"

// ErrNoDocument is returned when the input holds no markup at all.
var ErrNoDocument = errors.New("no document")

// Document is a parsed page.
type Document struct {
	Title string
	// Hosts are the img-2 elements in document order.
	Hosts []*Node
	// RenderAll holds the dynamic renderer directive; nil when the page has
	// no such meta tag.
	RenderAll *bool
}

// Parse reads an HTML page and collects its img-2 hosts.
func Parse(r io.Reader) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrNoDocument
	}

	root, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}

	doc := &Document{}
	walk(root, doc)
	return doc, nil
}

// ParseFile parses the HTML page at path.
func ParseFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open document: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

func walk(n *html.Node, doc *Document) {
	if n.Type == html.ElementNode {
		switch {
		case n.Data == HostTag:
			doc.Hosts = append(doc.Hosts, convert(n))
			return
		case n.DataAtom == atom.Meta:
			if name := attr(n, "name"); strings.EqualFold(name, DynamicRendererMeta) {
				v := attr(n, "content") == "true"
				doc.RenderAll = &v
			}
		case n.DataAtom == atom.Title:
			if doc.Title == "" && n.FirstChild != nil {
				doc.Title = strings.TrimSpace(n.FirstChild.Data)
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, doc)
	}
}

// convert copies an element subtree. Text nodes are kept only as the text of
// their parent element.
func convert(n *html.Node) *Node {
	out := NewElement(n.Data)
	for _, a := range n.Attr {
		out.SetAttribute(a.Key, a.Val)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.ElementNode:
			out.AppendChild(convert(c))
		case html.TextNode:
			out.Text += c.Data
		}
	}
	out.Text = strings.TrimSpace(out.Text)
	return out
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// HTML serializes n. A shadow root is written as a declarative
// <template shadowrootmode="open">.
func (n *Node) HTML() string {
	var buf bytes.Buffer
	if err := html.Render(&buf, toHTML(n)); err != nil {
		return ""
	}
	return buf.String()
}

func toHTML(n *Node) *html.Node {
	out := &html.Node{Type: html.ElementNode, Data: n.Tag, DataAtom: atom.Lookup([]byte(n.Tag))}
	for _, a := range n.attrs {
		out.Attr = append(out.Attr, html.Attribute{Key: a.Name, Val: a.Value})
	}
	if n.shadow != nil {
		tmpl := &html.Node{
			Type:     html.ElementNode,
			Data:     "template",
			DataAtom: atom.Template,
			Attr:     []html.Attribute{{Key: "shadowrootmode", Val: "open"}},
		}
		for _, c := range n.shadow.children {
			tmpl.AppendChild(toHTML(c))
		}
		out.AppendChild(tmpl)
	}
	if n.Text != "" {
		out.AppendChild(&html.Node{Type: html.TextNode, Data: n.Text})
	}
	for _, c := range n.children {
		out.AppendChild(toHTML(c))
	}
	return out
}
