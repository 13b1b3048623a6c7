// Package dom is a small element tree for img-2 hosts and the nodes the
// renderers attach to them.
package dom

import (
	"strings"
)

// Attr is a single attribute. Order of insertion is preserved.
type Attr struct {
	Name  string
	Value string
}

// Node is an element. Text is only used by leaf nodes such as <style>.
type Node struct {
	Tag      string
	Text     string
	attrs    []Attr
	children []*Node
	parent   *Node
	shadow   *Node
}

// NewElement creates a detached element.
func NewElement(tag string) *Node {
	return &Node{Tag: strings.ToLower(tag)}
}

// Attr returns the value of name and whether it is present.
func (n *Node) Attr(name string) (string, bool) {
	for _, a := range n.attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// GetAttribute returns the value of name or "" when absent.
func (n *Node) GetAttribute(name string) string {
	v, _ := n.Attr(name)
	return v
}

// HasAttribute reports whether name is present.
func (n *Node) HasAttribute(name string) bool {
	_, ok := n.Attr(name)
	return ok
}

// SetAttribute sets name to value, adding it if missing.
func (n *Node) SetAttribute(name, value string) {
	for i, a := range n.attrs {
		if a.Name == name {
			n.attrs[i].Value = value
			return
		}
	}
	n.attrs = append(n.attrs, Attr{Name: name, Value: value})
}

// RemoveAttribute deletes name. Missing attributes are ignored.
func (n *Node) RemoveAttribute(name string) {
	for i, a := range n.attrs {
		if a.Name == name {
			n.attrs = append(n.attrs[:i], n.attrs[i+1:]...)
			return
		}
	}
}

// Attrs returns a copy of the attribute list.
func (n *Node) Attrs() []Attr {
	out := make([]Attr, len(n.attrs))
	copy(out, n.attrs)
	return out
}

// Classes returns the class list.
func (n *Node) Classes() []string {
	return strings.Fields(n.GetAttribute("class"))
}

// HasClass reports whether class is in the class list.
func (n *Node) HasClass(class string) bool {
	for _, c := range n.Classes() {
		if c == class {
			return true
		}
	}
	return false
}

// AddClass appends class unless already present.
func (n *Node) AddClass(class string) {
	if n.HasClass(class) {
		return
	}
	n.SetAttribute("class", strings.TrimSpace(n.GetAttribute("class")+" "+class))
}

// Style returns the value of an inline style property.
func (n *Node) Style(prop string) string {
	for _, decl := range strings.Split(n.GetAttribute("style"), ";") {
		k, v, ok := strings.Cut(decl, ":")
		if ok && strings.TrimSpace(k) == prop {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// SetStyle sets an inline style property, keeping declaration order.
func (n *Node) SetStyle(prop, value string) {
	var decls []string
	found := false
	for _, decl := range strings.Split(n.GetAttribute("style"), ";") {
		k, _, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		if strings.TrimSpace(k) == prop {
			decls = append(decls, prop+": "+value)
			found = true
			continue
		}
		decls = append(decls, strings.TrimSpace(decl))
	}
	if !found {
		decls = append(decls, prop+": "+value)
	}
	n.SetAttribute("style", strings.Join(decls, "; "))
}

// Parent returns the parent node, nil when detached.
func (n *Node) Parent() *Node {
	return n.parent
}

// Children returns a copy of the child list.
func (n *Node) Children() []*Node {
	out := make([]*Node, len(n.children))
	copy(out, n.children)
	return out
}

// AppendChild adds c as the last child, detaching it from any old parent.
func (n *Node) AppendChild(c *Node) {
	if c.parent != nil {
		c.parent.RemoveChild(c)
	}
	c.parent = n
	n.children = append(n.children, c)
}

// RemoveChild detaches c. Nodes that are not children of n are ignored.
func (n *Node) RemoveChild(c *Node) {
	for i, x := range n.children {
		if x == c {
			n.children = append(n.children[:i], n.children[i+1:]...)
			c.parent = nil
			return
		}
	}
}

// Remove detaches n from its parent.
func (n *Node) Remove() {
	if n.parent != nil {
		n.parent.RemoveChild(n)
	}
}

// AttachShadow returns the shadow root, creating it on first use.
func (n *Node) AttachShadow() *Node {
	if n.shadow == nil {
		n.shadow = &Node{Tag: "#shadow-root", parent: n}
	}
	return n.shadow
}

// ShadowRoot returns the shadow root or nil.
func (n *Node) ShadowRoot() *Node {
	return n.shadow
}

// ElementsByClass returns light-tree descendants carrying class, in
// document order. Shadow trees are not searched.
func (n *Node) ElementsByClass(class string) []*Node {
	var out []*Node
	var walk func(*Node)
	walk = func(p *Node) {
		for _, c := range p.children {
			if c.HasClass(class) {
				out = append(out, c)
			}
			walk(c)
		}
	}
	walk(n)
	return out
}
