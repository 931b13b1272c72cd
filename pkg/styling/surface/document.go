package surface

import (
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/aymerick/douceur/parser"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const blankDocument = "<!DOCTYPE html><html><head></head><body></body></html>"

// HTMLDocument is an in-process document built on an x/net/html parse
// tree. Style containers are real <style> elements in the tree; their
// compiled rule lists are kept beside the tree, the way a browser keeps
// the CSSOM beside the DOM.
type HTMLDocument struct {
	root *html.Node
	head *html.Node

	// withoutRuleAPI simulates a surface lacking insertRule
	withoutRuleAPI bool
}

// Option configures an HTMLDocument.
type Option func(*HTMLDocument)

// WithoutRuleAPI makes every container report a nil RuleList, forcing
// stylesheets onto the direct-mutation backend.
func WithoutRuleAPI() Option {
	return func(d *HTMLDocument) {
		d.withoutRuleAPI = true
	}
}

// NewHTMLDocument creates an empty document.
func NewHTMLDocument(opts ...Option) *HTMLDocument {
	doc, err := ParseHTML(strings.NewReader(blankDocument), opts...)
	if err != nil {
		// the blank document always parses
		panic(err)
	}
	return doc
}

// ParseHTML parses pre-rendered markup into a document.
func ParseHTML(r io.Reader, opts ...Option) (*HTMLDocument, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}

	head := findElement(atom.Head, root)
	if head == nil {
		return nil, fmt.Errorf("document has no head element")
	}

	d := &HTMLDocument{root: root, head: head}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// CreateContainer appends a new <style> element to the head.
func (d *HTMLDocument) CreateContainer(name string) Container {
	el := &html.Node{
		Type:     html.ElementNode,
		Data:     "style",
		DataAtom: atom.Style,
		Attr: []html.Attribute{
			{Key: "type", Val: "text/css"},
			{Key: "data-" + name, Val: ""},
		},
	}
	d.head.AppendChild(el)

	c := &styleContainer{el: el}
	if !d.withoutRuleAPI {
		c.rules = &ruleList{}
	}
	return c
}

// QueryPrefix finds elements by id prefix with a cascadia attribute selector.
func (d *HTMLDocument) QueryPrefix(prefix string) []Node {
	sel, err := cascadia.Compile(fmt.Sprintf("[id^=%q]", prefix))
	if err != nil {
		return nil
	}

	matches := cascadia.QueryAll(d.root, sel)
	nodes := make([]Node, 0, len(matches))
	for _, el := range matches {
		nodes = append(nodes, &htmlNode{el: el})
	}
	return nodes
}

// Render writes the document markup. Compiled rule lists are not part of
// the markup, exactly like insertRule output in a browser.
func (d *HTMLDocument) Render(w io.Writer) error {
	return html.Render(w, d.root)
}

// Head returns the head element of the parse tree.
func (d *HTMLDocument) Head() *html.Node {
	return d.head
}

type styleContainer struct {
	el    *html.Node
	rules *ruleList
}

func (c *styleContainer) InsertText(text string, at int) error {
	n := &html.Node{Type: html.TextNode, Data: text}
	if at == childCount(c.el) {
		c.el.AppendChild(n)
		return nil
	}

	ref := childAt(c.el, at)
	if ref == nil {
		return fmt.Errorf("insert text at %d: %w", at, ErrIndexSize)
	}
	c.el.InsertBefore(n, ref)
	return nil
}

func (c *styleContainer) SetText(at int, text string) error {
	n := childAt(c.el, at)
	if n == nil {
		return fmt.Errorf("set text at %d: %w", at, ErrIndexSize)
	}
	n.Data = text
	return nil
}

func (c *styleContainer) Texts() []string {
	var texts []string
	for n := c.el.FirstChild; n != nil; n = n.NextSibling {
		texts = append(texts, n.Data)
	}
	return texts
}

func (c *styleContainer) Rules() RuleList {
	if c.rules == nil {
		return nil
	}
	return c.rules
}

func (c *styleContainer) Remove() {
	if c.el.Parent != nil {
		c.el.Parent.RemoveChild(c.el)
	}
}

// ruleList accepts exactly one well-formed rule per insertion, which is
// what CSSStyleSheet.insertRule requires.
type ruleList struct {
	rules []string
}

func (l *ruleList) InsertRule(rule string, at int) error {
	if at < 0 || at > len(l.rules) {
		return fmt.Errorf("insert rule at %d: %w", at, ErrIndexSize)
	}

	sheet, err := parser.Parse(rule)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSyntax, err)
	}
	if len(sheet.Rules) != 1 {
		return fmt.Errorf("%w: expected one rule, found %d", ErrSyntax, len(sheet.Rules))
	}

	l.rules = append(l.rules, "")
	copy(l.rules[at+1:], l.rules[at:])
	l.rules[at] = strings.TrimSpace(rule)
	return nil
}

func (l *ruleList) DeleteRule(at int) error {
	if at < 0 || at >= len(l.rules) {
		return fmt.Errorf("delete rule at %d: %w", at, ErrIndexSize)
	}
	l.rules = append(l.rules[:at], l.rules[at+1:]...)
	return nil
}

func (l *ruleList) CSSRules() []string {
	out := make([]string, len(l.rules))
	copy(out, l.rules)
	return out
}

func (l *ruleList) Len() int {
	return len(l.rules)
}

type htmlNode struct {
	el *html.Node
}

func (n *htmlNode) ID() string {
	for _, a := range n.el.Attr {
		if a.Key == "id" {
			return a.Val
		}
	}
	return ""
}

func (n *htmlNode) Text() string {
	var sb strings.Builder
	for c := n.el.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	}
	return sb.String()
}

func (n *htmlNode) Remove() {
	if n.el.Parent != nil {
		n.el.Parent.RemoveChild(n.el)
	}
}

func childAt(el *html.Node, at int) *html.Node {
	if at < 0 {
		return nil
	}
	n := el.FirstChild
	for i := 0; n != nil && i < at; i++ {
		n = n.NextSibling
	}
	return n
}

func childCount(el *html.Node) int {
	count := 0
	for n := el.FirstChild; n != nil; n = n.NextSibling {
		count++
	}
	return count
}

func findElement(a atom.Atom, h *html.Node) *html.Node {
	if h == nil {
		return nil
	}
	if h.Type == html.ElementNode && h.DataAtom == a {
		return h
	}
	for ch := h.FirstChild; ch != nil; ch = ch.NextSibling {
		if r := findElement(a, ch); r != nil {
			return r
		}
	}
	return nil
}

var (
	_ Document  = (*HTMLDocument)(nil)
	_ Container = (*styleContainer)(nil)
	_ RuleList  = (*ruleList)(nil)
	_ Node      = (*htmlNode)(nil)
)
