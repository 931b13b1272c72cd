package server

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"golang.org/x/net/html"

	"github.com/recera/stylejsx/pkg/styling/registry"
	"github.com/recera/stylejsx/pkg/styling/surface"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFlushToHTML(t *testing.T) {
	r, err := registry.New(registry.Options{Logger: quietLogger()})
	if err != nil {
		t.Fatalf("failed to create registry: %v", err)
	}

	payloads := []registry.Payload{
		{StyleID: "a", CSS: registry.Single(".a.jsx-a{color:red}")},
		{StyleID: "b", CSS: registry.Grouped{".b.jsx-b{color:blue}", "@media print{.b.jsx-b{color:black}}"}},
	}
	for _, p := range payloads {
		if err := r.Add(p); err != nil {
			t.Fatalf("add failed: %v", err)
		}
	}

	markup, err := FlushToHTML(r)
	if err != nil {
		t.Fatalf("flush failed: %v", err)
	}

	want := `<style id="__jsx-a">.a.jsx-a{color:red}</style>` +
		"<style id=\"__jsx-b\">.b.jsx-b{color:blue}\n@media print{.b.jsx-b{color:black}}</style>"
	if markup != want {
		t.Errorf("unexpected markup:\n got: %s\nwant: %s", markup, want)
	}

	if len(r.CSSRules()) != 0 {
		t.Error("expected registry to be drained")
	}
}

func TestFlushToHTML_Hydrates(t *testing.T) {
	server, err := registry.New(registry.Options{Logger: quietLogger()})
	if err != nil {
		t.Fatalf("failed to create registry: %v", err)
	}
	p := registry.Payload{StyleID: "card", CSS: registry.Single(".card.jsx-card{padding:1rem}")}
	if err := server.Add(p); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	markup, err := FlushToHTML(server)
	if err != nil {
		t.Fatalf("flush failed: %v", err)
	}

	page := "<html><head>" + markup + "</head><body></body></html>"
	doc, err := surface.ParseHTML(strings.NewReader(page))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	client, err := registry.New(registry.Options{Document: doc, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("failed to create registry: %v", err)
	}
	if err := client.Add(p); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	if client.Sheet().Len() != 0 {
		t.Errorf("expected hydrated style not to be inserted again, got %d rules", client.Sheet().Len())
	}
	entries := client.CSSRules()
	if len(entries) != 1 || !entries[0].Hydrated || entries[0].CSS != ".card.jsx-card{padding:1rem}" {
		t.Errorf("unexpected entries %+v", entries)
	}
}

func TestElements(t *testing.T) {
	nodes := Elements([]registry.Entry{{ID: "jsx-1", CSS: "a>b{}"}})
	if len(nodes) != 1 {
		t.Fatalf("expected one node, got %d", len(nodes))
	}

	var sb strings.Builder
	if err := WriteHTML(&sb, []registry.Entry{{ID: "jsx-1", CSS: "a>b{}"}}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if sb.String() != `<style id="__jsx-1">a>b{}</style>` {
		t.Errorf("expected raw css, got %s", sb.String())
	}
	if idOf(nodes[0]) != "__jsx-1" {
		t.Errorf("unexpected id %q", idOf(nodes[0]))
	}
}

func TestElements_ClosingTagInCSS(t *testing.T) {
	css := `.a{content:"</style><script>alert(1)</script>"}`

	var sb strings.Builder
	if err := WriteHTML(&sb, []registry.Entry{{ID: "jsx-1", CSS: css}}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	doc, err := html.Parse(strings.NewReader("<html><head>" + sb.String() + "</head></html>"))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	var styles, scripts int
	var text string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "style":
				styles++
				if n.FirstChild != nil {
					text = n.FirstChild.Data
				}
			case "script":
				scripts++
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if styles != 1 || scripts != 0 {
		t.Fatalf("css escaped its element: %d styles, %d scripts in %s", styles, scripts, sb.String())
	}
	if want := `.a{content:"<\/style><script>alert(1)<\/script>"}`; text != want {
		t.Errorf("style text = %q, want %q", text, want)
	}
}

func TestFlushToHTML_ConcurrentAdds(t *testing.T) {
	r, err := registry.New(registry.Options{Logger: quietLogger()})
	if err != nil {
		t.Fatalf("failed to create registry: %v", err)
	}

	const workers, perWorker = 4, 200
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id := fmt.Sprintf("w%d-%d", w, i)
				p := registry.Payload{StyleID: id, CSS: registry.Single("." + id + "{}")}
				if err := r.Add(p); err != nil {
					t.Errorf("add %s failed: %v", id, err)
				}
			}
		}(w)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	var markup strings.Builder
	for drained := false; !drained; {
		select {
		case <-done:
			drained = true
		default:
		}
		out, err := FlushToHTML(r)
		if err != nil {
			t.Fatalf("flush failed: %v", err)
		}
		markup.WriteString(out)
	}

	if got := strings.Count(markup.String(), "<style "); got != workers*perWorker {
		t.Errorf("expected %d flushed styles, got %d", workers*perWorker, got)
	}
}

func TestCSS(t *testing.T) {
	got := CSS([]registry.Entry{{ID: "a", CSS: ".a{}"}, {ID: "b", CSS: ".b{}"}})
	if got != ".a{}\n.b{}" {
		t.Errorf("got %q", got)
	}
}

func TestFingerprint(t *testing.T) {
	a := []registry.Entry{{ID: "jsx-1", CSS: ".a{}"}}
	b := []registry.Entry{{ID: "jsx-1", CSS: ".b{}"}}

	if Fingerprint(a) != Fingerprint(a) {
		t.Error("expected fingerprint to be stable")
	}
	if Fingerprint(a) == Fingerprint(b) {
		t.Error("expected fingerprint to change with css")
	}
	if len(Fingerprint(nil)) != 64 {
		t.Errorf("expected 32 byte hex digest, got %q", Fingerprint(nil))
	}
}
