package sandbox

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// simpleName matches ids, classes and tags the selector subset accepts
var simpleName = regexp.MustCompile(`^[A-Za-z][\w-]*$`)

// Document is the headless frame's view of the host page. It supports the
// lookups generated components make before mounting and records what gets
// mounted.
type Document struct {
	mu     sync.RWMutex
	root   *html.Node
	mounts []Mount
}

// Mount records markup rendered into an element
type Mount struct {
	ElementID string
	HTML      string
}

// Element is a node of the document
type Element struct {
	doc  *Document
	node *html.Node
}

// ParseDocument builds a document from page markup
func ParseDocument(page []byte) (*Document, error) {
	root, err := htmlquery.Parse(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	return &Document{root: root}, nil
}

// GetElementByID finds the element with the given id
func (d *Document) GetElementByID(elementID string) *Element {
	if !simpleName.MatchString(elementID) {
		return nil
	}
	return d.find(fmt.Sprintf("//*[@id='%s']", elementID))
}

// QuerySelector supports "#id", ".class" and "tag" selectors
func (d *Document) QuerySelector(selector string) *Element {
	all := d.QuerySelectorAll(selector)
	if len(all) == 0 {
		return nil
	}
	return all[0]
}

// QuerySelectorAll supports "#id", ".class" and "tag" selectors
func (d *Document) QuerySelectorAll(selector string) []*Element {
	expr, ok := xpathFor(strings.TrimSpace(selector))
	if !ok {
		return nil
	}

	d.mu.RLock()
	nodes := htmlquery.Find(d.root, expr)
	d.mu.RUnlock()

	elems := make([]*Element, 0, len(nodes))
	for _, n := range nodes {
		elems = append(elems, &Element{doc: d, node: n})
	}
	return elems
}

// Body returns the body element
func (d *Document) Body() *Element {
	return d.find("//body")
}

// Mounts returns what has been mounted so far, in order
func (d *Document) Mounts() []Mount {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]Mount(nil), d.mounts...)
}

// InnerHTML renders the children of the element with the given id
func (d *Document) InnerHTML(elementID string) string {
	el := d.GetElementByID(elementID)
	if el == nil {
		return ""
	}
	return el.InnerHTML()
}

func (d *Document) find(expr string) *Element {
	d.mu.RLock()
	n := htmlquery.FindOne(d.root, expr)
	d.mu.RUnlock()
	if n == nil {
		return nil
	}
	return &Element{doc: d, node: n}
}

func xpathFor(selector string) (string, bool) {
	switch {
	case strings.HasPrefix(selector, "#") && simpleName.MatchString(selector[1:]):
		return fmt.Sprintf("//*[@id='%s']", selector[1:]), true
	case strings.HasPrefix(selector, ".") && simpleName.MatchString(selector[1:]):
		return fmt.Sprintf("//*[contains(concat(' ', normalize-space(@class), ' '), ' %s ')]", selector[1:]), true
	case simpleName.MatchString(selector):
		return "//" + strings.ToLower(selector), true
	default:
		return "", false
	}
}

// TagName returns the upper-case tag name, as browsers report it
func (e *Element) TagName() string {
	return strings.ToUpper(e.node.Data)
}

// ID returns the id attribute
func (e *Element) ID() string {
	return e.GetAttribute("id")
}

// GetAttribute returns an attribute value
func (e *Element) GetAttribute(name string) string {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return htmlquery.SelectAttr(e.node, name)
}

// SetAttribute sets an attribute value
func (e *Element) SetAttribute(name, value string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	for i, a := range e.node.Attr {
		if a.Key == name {
			e.node.Attr[i].Val = value
			return
		}
	}
	e.node.Attr = append(e.node.Attr, html.Attribute{Key: name, Val: value})
}

// TextContent returns the concatenated text of the element
func (e *Element) TextContent() string {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return htmlquery.InnerText(e.node)
}

// InnerHTML renders the element's children
func (e *Element) InnerHTML() string {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return htmlquery.OutputHTML(e.node, false)
}

// Mount replaces the element's children with markup
func (e *Element) Mount(markup string) error {
	parent := &html.Node{Type: html.ElementNode, Data: e.node.Data, DataAtom: atom.Lookup([]byte(e.node.Data))}
	nodes, err := html.ParseFragment(strings.NewReader(markup), parent)
	if err != nil {
		return fmt.Errorf("parse mounted markup: %w", err)
	}

	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()

	for c := e.node.FirstChild; c != nil; {
		next := c.NextSibling
		e.node.RemoveChild(c)
		c = next
	}
	for _, n := range nodes {
		e.node.AppendChild(n)
	}
	e.doc.mounts = append(e.doc.mounts, Mount{
		ElementID: htmlquery.SelectAttr(e.node, "id"),
		HTML:      markup,
	})
	return nil
}
