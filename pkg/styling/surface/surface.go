// Package surface describes the rendering surfaces a stylesheet can be
// injected into.
//
// A Document owns style containers. Every container carries text nodes
// (the direct-mutation view) and, when the surface offers one, a compiled
// RuleList (the insertRule view). Pre-rendered containers emitted by a
// server pass are discovered with QueryPrefix and handed out as Nodes.
//
// Two documents ship with this package: HTMLDocument, an in-process
// document backed by golang.org/x/net/html, and (under js/wasm) the
// browser DOM.
package surface

import "errors"

var (
	// ErrSyntax is returned by RuleList.InsertRule for rules the surface
	// refuses to parse.
	ErrSyntax = errors.New("surface: syntax error in rule")

	// ErrIndexSize is returned when a position lies outside a container
	// or rule list.
	ErrIndexSize = errors.New("surface: index out of range")
)

// Document is a surface that can host style containers.
type Document interface {
	// CreateContainer creates an empty style container marked with
	// data-<name> and attaches it to the document head.
	CreateContainer(name string) Container

	// QueryPrefix returns the elements whose id starts with prefix, in
	// document order.
	QueryPrefix(prefix string) []Node
}

// Container is a single style element.
type Container interface {
	// InsertText inserts a text node holding text before the child at
	// position at. at == number of children appends.
	InsertText(text string, at int) error

	// SetText replaces the content of the text node at position at.
	SetText(at int, text string) error

	// Texts returns the content of every text node in child order.
	Texts() []string

	// Rules returns the compiled rule list of the container, or nil when
	// the surface has no native rule insertion primitive.
	Rules() RuleList

	// Remove detaches the container from its document.
	Remove()
}

// RuleList is the compiled rule list of a container.
type RuleList interface {
	InsertRule(rule string, at int) error
	DeleteRule(at int) error
	CSSRules() []string
	Len() int
}

// Node is an element found on the surface.
type Node interface {
	ID() string
	Text() string
	Remove()
}
