// Package server serializes registry state into pre-rendered markup.
//
// Every identity becomes one <style id="__<styleId>"> element, the same
// id convention the registry scans for when it hydrates, so a page
// rendered here is adopted by the client without re-inserting rules.
package server

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/zeebo/blake3"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/recera/stylejsx/pkg/styling/registry"
)

// Drainer is the part of a registry needed to flush it. Drain must take
// the snapshot and reset atomically.
type Drainer interface {
	Drain() ([]registry.Entry, error)
}

// FlushToHTML drains r into markup and resets it for the next request.
func FlushToHTML(r Drainer) (string, error) {
	entries, err := r.Drain()
	if err != nil {
		return "", fmt.Errorf("failed to flush registry: %w", err)
	}

	var sb strings.Builder
	if err := WriteHTML(&sb, entries); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// WriteHTML renders one style element per entry.
func WriteHTML(w io.Writer, entries []registry.Entry) error {
	for _, node := range Elements(entries) {
		if err := html.Render(w, node); err != nil {
			return fmt.Errorf("failed to render style %s: %w", idOf(node), err)
		}
	}
	return nil
}

// Elements builds detached style nodes, ready to append to a document
// head.
func Elements(entries []registry.Entry) []*html.Node {
	nodes := make([]*html.Node, 0, len(entries))
	for _, e := range entries {
		style := &html.Node{
			Type:     html.ElementNode,
			DataAtom: atom.Style,
			Data:     "style",
			Attr:     []html.Attribute{{Key: "id", Val: "__" + e.ID}},
		}
		style.AppendChild(&html.Node{Type: html.TextNode, Data: escapeRawText(e.CSS)})
		nodes = append(nodes, style)
	}
	return nodes
}

// CSS concatenates entry css as a standalone stylesheet.
func CSS(entries []registry.Entry) string {
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, e.CSS)
	}
	return strings.Join(parts, "\n")
}

// Fingerprint is a content hash over ids and css, stable for equal
// entry lists.
func Fingerprint(entries []registry.Entry) string {
	h := blake3.New()
	for _, e := range entries {
		h.Write([]byte(e.ID))
		h.Write([]byte{0})
		h.Write([]byte(e.CSS))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// escapeRawText keeps css from closing its style element. Style content
// is raw text, so the renderer writes it verbatim; "<\/" is the same
// css as "</".
func escapeRawText(css string) string {
	return strings.ReplaceAll(css, "</", `<\/`)
}

func idOf(n *html.Node) string {
	for _, a := range n.Attr {
		if a.Key == "id" {
			return a.Val
		}
	}
	return ""
}
