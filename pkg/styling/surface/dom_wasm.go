//go:build js && wasm
// +build js,wasm

package surface

import (
	"fmt"
	"syscall/js"
)

// BrowserDocument is the live browser document.
type BrowserDocument struct {
	document js.Value
}

// NewBrowserDocument binds to the global document.
func NewBrowserDocument() *BrowserDocument {
	return &BrowserDocument{
		document: js.Global().Get("document"),
	}
}

// CreateContainer creates a <style> tag in the head.
func (d *BrowserDocument) CreateContainer(name string) Container {
	tag := d.document.Call("createElement", "style")
	tag.Set("type", "text/css")
	tag.Call("setAttribute", "data-"+name, "")

	head := d.document.Get("head")
	if head.IsNull() || head.IsUndefined() {
		head = d.document.Call("getElementsByTagName", "head").Index(0)
	}
	head.Call("appendChild", tag)

	return &domContainer{document: d.document, tag: tag}
}

// QueryPrefix runs querySelectorAll with an id prefix selector.
func (d *BrowserDocument) QueryPrefix(prefix string) []Node {
	elements := d.document.Call("querySelectorAll", fmt.Sprintf(`[id^="%s"]`, prefix))
	length := elements.Get("length").Int()

	nodes := make([]Node, 0, length)
	for i := 0; i < length; i++ {
		nodes = append(nodes, domNode{el: elements.Index(i)})
	}
	return nodes
}

type domContainer struct {
	document js.Value
	tag      js.Value
}

func (c *domContainer) InsertText(text string, at int) error {
	node := c.document.Call("createTextNode", text)
	children := c.tag.Get("childNodes")
	length := children.Get("length").Int()

	switch {
	case at == length:
		c.tag.Call("appendChild", node)
	case at >= 0 && at < length:
		c.tag.Call("insertBefore", node, children.Index(at))
	default:
		return fmt.Errorf("insert text at %d: %w", at, ErrIndexSize)
	}
	return nil
}

func (c *domContainer) SetText(at int, text string) error {
	children := c.tag.Get("childNodes")
	if at < 0 || at >= children.Get("length").Int() {
		return fmt.Errorf("set text at %d: %w", at, ErrIndexSize)
	}
	children.Index(at).Set("textContent", text)
	return nil
}

func (c *domContainer) Texts() []string {
	children := c.tag.Get("childNodes")
	length := children.Get("length").Int()
	texts := make([]string, 0, length)
	for i := 0; i < length; i++ {
		texts = append(texts, children.Index(i).Get("textContent").String())
	}
	return texts
}

func (c *domContainer) Rules() RuleList {
	sheet := c.sheet()
	if !sheet.Truthy() || !sheet.Get("insertRule").Truthy() {
		return nil
	}
	return domRuleList{sheet: sheet}
}

// sheet resolves the CSSStyleSheet owned by the tag. Some engines leave
// tag.sheet unset, so document.styleSheets is searched as a fallback.
func (c *domContainer) sheet() js.Value {
	if sheet := c.tag.Get("sheet"); sheet.Truthy() {
		return sheet
	}
	sheets := c.document.Get("styleSheets")
	for i := 0; i < sheets.Get("length").Int(); i++ {
		sheet := sheets.Index(i)
		if sheet.Get("ownerNode").Equal(c.tag) {
			return sheet
		}
	}
	return js.Undefined()
}

func (c *domContainer) Remove() {
	parent := c.tag.Get("parentNode")
	if !parent.IsNull() && !parent.IsUndefined() {
		parent.Call("removeChild", c.tag)
	}
}

type domRuleList struct {
	sheet js.Value
}

// InsertRule converts the DOMException thrown by insertRule into an error.
func (l domRuleList) InsertRule(rule string, at int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrSyntax, r)
		}
	}()
	l.sheet.Call("insertRule", rule, at)
	return nil
}

func (l domRuleList) DeleteRule(at int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("delete rule at %d: %w", at, ErrIndexSize)
		}
	}()
	l.sheet.Call("deleteRule", at)
	return nil
}

func (l domRuleList) CSSRules() []string {
	rules := l.sheet.Get("cssRules")
	length := rules.Get("length").Int()
	out := make([]string, 0, length)
	for i := 0; i < length; i++ {
		out = append(out, rules.Index(i).Get("cssText").String())
	}
	return out
}

func (l domRuleList) Len() int {
	return l.sheet.Get("cssRules").Get("length").Int()
}

type domNode struct {
	el js.Value
}

func (n domNode) ID() string {
	return n.el.Get("id").String()
}

func (n domNode) Text() string {
	return n.el.Get("textContent").String()
}

func (n domNode) Remove() {
	parent := n.el.Get("parentNode")
	if !parent.IsNull() && !parent.IsUndefined() {
		parent.Call("removeChild", n.el)
	}
}

var (
	_ Document  = (*BrowserDocument)(nil)
	_ Container = (*domContainer)(nil)
	_ RuleList  = domRuleList{}
	_ Node      = domNode{}
)
