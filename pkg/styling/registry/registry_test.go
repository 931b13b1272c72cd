package registry

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/recera/stylejsx/pkg/styling/sheet"
	"github.com/recera/stylejsx/pkg/styling/surface"
)

func newRegistry(t *testing.T, opts Options) *Registry {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	r, err := New(opts)
	if err != nil {
		t.Fatalf("failed to create registry: %v", err)
	}
	return r
}

func mustAdd(t *testing.T, r *Registry, p Payload) {
	t.Helper()
	if err := r.Add(p); err != nil {
		t.Fatalf("add %s failed: %v", p.StyleID, err)
	}
}

func mustRemove(t *testing.T, r *Registry, p Payload) {
	t.Helper()
	if err := r.Remove(p); err != nil {
		t.Fatalf("remove %s failed: %v", p.StyleID, err)
	}
}

var errSurface = errors.New("surface unavailable")

// failingDocument rejects text writes while fail is set.
type failingDocument struct {
	*surface.HTMLDocument
	fail bool
}

func (d *failingDocument) CreateContainer(name string) surface.Container {
	return &failingContainer{Container: d.HTMLDocument.CreateContainer(name), doc: d}
}

type failingContainer struct {
	surface.Container
	doc *failingDocument
}

func (c *failingContainer) InsertText(text string, at int) error {
	if c.doc.fail {
		return errSurface
	}
	return c.Container.InsertText(text, at)
}

func (c *failingContainer) SetText(at int, text string) error {
	if c.doc.fail {
		return errSurface
	}
	return c.Container.SetText(at, text)
}

func TestRegistry_RoundTrip(t *testing.T) {
	for _, doc := range []struct {
		name string
		doc  surface.Document
	}{
		{"server", nil},
		{"document", surface.NewHTMLDocument()},
	} {
		t.Run(doc.name, func(t *testing.T) {
			r := newRegistry(t, Options{Document: doc.doc})
			p := Payload{StyleID: "a", CSS: Single(".a{color:red}")}

			mustAdd(t, r, p)
			mustAdd(t, r, p)

			if r.Sheet().Len() != 1 {
				t.Errorf("expected 1 rule, got %d", r.Sheet().Len())
			}
			if r.Count("jsx-a") != 2 {
				t.Errorf("expected count 2, got %d", r.Count("jsx-a"))
			}

			mustRemove(t, r, p)
			if r.Count("jsx-a") != 1 {
				t.Errorf("expected count 1, got %d", r.Count("jsx-a"))
			}
			if !strings.Contains(strings.Join(r.Sheet().Rules(), ""), ".a{color:red}") {
				t.Error("expected rule to survive the first remove")
			}

			mustRemove(t, r, p)
			if r.Count("jsx-a") != 0 {
				t.Errorf("expected count to be gone, got %d", r.Count("jsx-a"))
			}
			if strings.Contains(strings.Join(r.Sheet().Rules(), ""), ".a{color:red}") {
				t.Error("expected rule to be deleted")
			}
			if got := r.Sheet().Rules(); len(got) != 1 || got[0] != sheet.EmptyRule {
				t.Errorf("expected inert placeholder, got %v", got)
			}
			if len(r.CSSRules()) != 0 {
				t.Errorf("expected no entries, got %v", r.CSSRules())
			}

			if err := r.Remove(p); !errors.Is(err, ErrNotRegistered) {
				t.Errorf("expected ErrNotRegistered, got %v", err)
			}
		})
	}
}

func TestRegistry_Dedup(t *testing.T) {
	r := newRegistry(t, Options{Document: surface.NewHTMLDocument()})
	p := Payload{StyleID: "btn", CSS: Single(".jsx-btn{padding:0}")}

	for i := 1; i <= 50; i++ {
		mustAdd(t, r, p)
		if r.Count("jsx-btn") != i {
			t.Fatalf("expected count %d, got %d", i, r.Count("jsx-btn"))
		}
	}
	if r.Sheet().Len() != 1 {
		t.Errorf("expected a single insertion, got %d", r.Sheet().Len())
	}

	for i := 0; i < 49; i++ {
		mustRemove(t, r, p)
	}
	if got, _ := r.Sheet().Rule(0); got != ".jsx-btn{padding:0}" {
		t.Errorf("rule deleted before the last remove: %q", got)
	}
	mustRemove(t, r, p)
	if got, _ := r.Sheet().Rule(0); got != sheet.EmptyRule {
		t.Errorf("expected rule deleted at the last remove, got %q", got)
	}
}

func TestRegistry_Grouped(t *testing.T) {
	r := newRegistry(t, Options{Document: surface.NewHTMLDocument()})
	mustAdd(t, r, Payload{StyleID: "first", CSS: Single(".x{}")})

	p := Payload{StyleID: "b", CSS: Grouped{".b1{}", ".b2{}"}}
	mustAdd(t, r, p)

	rec := r.indices["jsx-b"]
	if !rec.span || rec.indices[0] != 1 || rec.indices[1] != 2 {
		t.Fatalf("expected span [1, 2], got %+v", rec)
	}

	entries := r.CSSRules()
	if len(entries) != 2 || entries[1].CSS != ".b1{}\n.b2{}" {
		t.Errorf("unexpected entries: %+v", entries)
	}

	mustRemove(t, r, p)
	for _, index := range []int{1, 2} {
		if got, _ := r.Sheet().Rule(index); got != sheet.EmptyRule {
			t.Errorf("expected rule %d deleted, got %q", index, got)
		}
	}
	if got, _ := r.Sheet().Rule(0); got != ".x{}" {
		t.Errorf("unrelated rule touched: %q", got)
	}
}

func TestRegistry_SpeedyAuto(t *testing.T) {
	tests := []struct {
		name   string
		mode   SpeedyMode
		first  Payload
		speedy bool
	}{
		{"auto grouped", SpeedyAuto, Payload{StyleID: "g", CSS: Grouped{".g{}"}}, true},
		{"auto single", SpeedyAuto, Payload{StyleID: "s", CSS: Single(".s{}")}, false},
		{"forced on", SpeedyOn, Payload{StyleID: "s", CSS: Single(".s{}")}, true},
		{"forced off", SpeedyOff, Payload{StyleID: "g", CSS: Grouped{".g{}"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRegistry(t, Options{Document: surface.NewHTMLDocument(), Speedy: tt.mode})
			mustAdd(t, r, tt.first)
			if r.Sheet().Speedy() != tt.speedy {
				t.Errorf("expected speedy=%v, got %v", tt.speedy, r.Sheet().Speedy())
			}
		})
	}
}

func TestRegistry_Dynamic(t *testing.T) {
	r := newRegistry(t, Options{Document: surface.NewHTMLDocument()})

	css := Single(".__jsx-style-dynamic-selector{color:red}")
	red := Payload{StyleID: "d", CSS: css, Dynamic: []any{"red"}}
	blue := Payload{StyleID: "d", CSS: css, Dynamic: []any{"blue"}}

	mustAdd(t, r, red)
	mustAdd(t, r, red)
	mustAdd(t, r, blue)

	redID := r.Identity(red)
	blueID := r.Identity(blue)
	if redID == blueID {
		t.Fatal("expected distinct identities")
	}
	if r.Count(redID) != 2 || r.Count(blueID) != 1 {
		t.Errorf("unexpected counts: %d %d", r.Count(redID), r.Count(blueID))
	}

	entries := r.CSSRules()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].CSS != "."+redID+"{color:red}" {
		t.Errorf("placeholder not substituted: %q", entries[0].CSS)
	}
}

func TestRegistry_DynamicAmbiguousIdentity(t *testing.T) {
	r := newRegistry(t, Options{})

	red := Payload{StyleID: "12", CSS: Single(".__jsx-style-dynamic-selector{color:red}"), Dynamic: []any{"3px"}}
	blue := Payload{StyleID: "123", CSS: Single(".__jsx-style-dynamic-selector{color:blue}"), Dynamic: []any{"px"}}
	mustAdd(t, r, red)
	mustAdd(t, r, blue)

	redID, blueID := r.Identity(red), r.Identity(blue)
	if redID == blueID {
		t.Fatalf("expected distinct identities, both are %q", redID)
	}
	if r.Count(redID) != 1 || r.Count(blueID) != 1 {
		t.Errorf("unexpected counts: red=%d blue=%d", r.Count(redID), r.Count(blueID))
	}

	entries := r.CSSRules()
	if len(entries) != 2 || entries[1].CSS != "."+blueID+"{color:blue}" {
		t.Errorf("expected both rules stored, got %+v", entries)
	}
}

func TestRegistry_Hydration(t *testing.T) {
	markup := `<!DOCTYPE html><html><head>` +
		`<style id="__jsx-x">.jsx-x{color:red}</style>` +
		`<style id="__jsx-y">.jsx-y{color:blue}</style>` +
		`</head><body></body></html>`
	doc, err := surface.ParseHTML(strings.NewReader(markup))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	r := newRegistry(t, Options{Document: doc})
	x := Payload{StyleID: "x", CSS: Single(".jsx-x{color:red}")}

	mustAdd(t, r, x)
	mustAdd(t, r, x)

	if r.Sheet().Len() != 0 {
		t.Errorf("expected no insertion for hydrated style, got %d", r.Sheet().Len())
	}
	if r.Count("jsx-x") != 2 {
		t.Errorf("expected count 2, got %d", r.Count("jsx-x"))
	}

	entries := r.CSSRules()
	if len(entries) != 2 || !entries[0].Hydrated || entries[0].ID != "jsx-x" || entries[1].ID != "jsx-y" {
		t.Fatalf("unexpected entries: %+v", entries)
	}

	mustRemove(t, r, x)
	if len(doc.QueryPrefix(HydrationPrefix)) != 2 {
		t.Error("hydrated node removed too early")
	}
	mustRemove(t, r, x)
	if remaining := doc.QueryPrefix(HydrationPrefix); len(remaining) != 1 || remaining[0].ID() != "__jsx-y" {
		t.Errorf("expected hydrated node detached, remaining %d", len(remaining))
	}
	if r.Sheet().Len() != 0 {
		t.Error("store must not be touched when removing hydrated styles")
	}

	// adopted but never mounted
	if err := r.Remove(Payload{StyleID: "y", CSS: Single("")}); !errors.Is(err, ErrNotRegistered) {
		t.Errorf("expected ErrNotRegistered for unmounted hydrated style, got %v", err)
	}

	// after takeover a fresh add inserts again
	mustAdd(t, r, x)
	if r.Sheet().Len() != 1 {
		t.Errorf("expected re-insertion after takeover, got %d", r.Sheet().Len())
	}
}

func TestRegistry_ExplicitHydrate(t *testing.T) {
	doc, err := surface.ParseHTML(strings.NewReader(`<html><head><style id="__jsx-z">.z{}</style></head></html>`))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	r := newRegistry(t, Options{Document: doc})
	if len(r.CSSRules()) != 0 {
		t.Fatal("expected no entries before the scan")
	}

	r.Hydrate()
	r.Hydrate()

	entries := r.CSSRules()
	if len(entries) != 1 || entries[0].ID != "jsx-z" || entries[0].CSS != ".z{}" {
		t.Errorf("unexpected entries %+v", entries)
	}
	if r.Count("jsx-z") != 0 {
		t.Errorf("expected adopted style to have no instances, got %d", r.Count("jsx-z"))
	}

	mustAdd(t, r, Payload{StyleID: "z", CSS: Single(".z{}")})
	if r.Count("jsx-z") != 1 || r.Sheet().Len() != 0 {
		t.Error("expected add to reuse the adopted style")
	}
}

func TestRegistry_UpdateInPlace(t *testing.T) {
	r := newRegistry(t, Options{Document: surface.NewHTMLDocument()})

	css := Single(".__jsx-style-dynamic-selector{color:red}")
	prev := Payload{StyleID: "u", CSS: css, Dynamic: []any{1}}
	next := Payload{StyleID: "u", CSS: Single(".__jsx-style-dynamic-selector{color:blue}"), Dynamic: []any{2}}

	mustAdd(t, r, prev)
	if err := r.Update(prev, next); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	if r.Sheet().Len() != 1 {
		t.Errorf("expected the slot to be reused, got %d insertions", r.Sheet().Len())
	}
	nextID := r.Identity(next)
	if r.Count(nextID) != 1 || r.Count(r.Identity(prev)) != 0 {
		t.Errorf("expected identity to be re-keyed")
	}
	if got, _ := r.Sheet().Rule(0); got != "."+nextID+"{color:blue}" {
		t.Errorf("expected rule rewritten in place, got %q", got)
	}
}

func TestRegistry_UpdateToLiveIdentity(t *testing.T) {
	r := newRegistry(t, Options{Document: surface.NewHTMLDocument()})

	a := Payload{StyleID: "a", CSS: Single(".a{}")}
	b := Payload{StyleID: "b", CSS: Single(".b{}")}
	mustAdd(t, r, a)
	mustAdd(t, r, b)

	if err := r.Update(a, b); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	if r.Count("jsx-b") != 2 || r.Count("jsx-a") != 0 {
		t.Errorf("unexpected counts: a=%d b=%d", r.Count("jsx-a"), r.Count("jsx-b"))
	}
	if got, _ := r.Sheet().Rule(0); got != sheet.EmptyRule {
		t.Errorf("expected old slot deleted, got %q", got)
	}
	if r.Sheet().Len() != 2 {
		t.Errorf("expected no new insertion, got %d", r.Sheet().Len())
	}
}

func TestRegistry_UpdateFailureKeepsTracking(t *testing.T) {
	doc := &failingDocument{HTMLDocument: surface.NewHTMLDocument()}
	r := newRegistry(t, Options{Document: doc, Speedy: SpeedyOff})

	prev := Payload{StyleID: "u", CSS: Single(".__jsx-style-dynamic-selector{color:red}"), Dynamic: []any{1}}
	next := Payload{StyleID: "u", CSS: Single(".__jsx-style-dynamic-selector{color:blue}"), Dynamic: []any{2}}
	live := Payload{StyleID: "v", CSS: Single(".v{}")}
	mustAdd(t, r, prev)
	mustAdd(t, r, live)

	doc.fail = true
	for _, target := range []Payload{next, live} {
		if err := r.Update(prev, target); !errors.Is(err, errSurface) {
			t.Fatalf("expected surface error, got %v", err)
		}
		if got := r.Count(r.Identity(prev)); got != 1 {
			t.Errorf("expected previous identity to stay tracked, got count %d", got)
		}
	}
	if r.Count(r.Identity(next)) != 0 || r.Count("jsx-v") != 1 {
		t.Errorf("unexpected counts after failed update")
	}

	doc.fail = false
	mustRemove(t, r, prev)
	if got, _ := r.Sheet().Rule(0); got != sheet.EmptyRule {
		t.Errorf("expected the old rule to be removable, got %q", got)
	}
}

func TestRegistry_UpdateFallback(t *testing.T) {
	r := newRegistry(t, Options{Document: surface.NewHTMLDocument()})

	a := Payload{StyleID: "a", CSS: Single(".a{}")}
	c := Payload{StyleID: "c", CSS: Single(".c{}")}
	mustAdd(t, r, a)
	mustAdd(t, r, a)

	// two live instances: add then remove
	if err := r.Update(a, c); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if r.Count("jsx-a") != 1 || r.Count("jsx-c") != 1 {
		t.Errorf("unexpected counts: a=%d c=%d", r.Count("jsx-a"), r.Count("jsx-c"))
	}
	if r.Sheet().Len() != 2 {
		t.Errorf("expected a new insertion, got %d", r.Sheet().Len())
	}

	g := Payload{StyleID: "g", CSS: Grouped{".g1{}", ".g2{}"}}
	h := Payload{StyleID: "h", CSS: Grouped{".h1{}"}}
	mustAdd(t, r, g)
	if err := r.Update(g, h); err != nil {
		t.Fatalf("grouped update failed: %v", err)
	}
	if r.Count("jsx-g") != 0 || r.Count("jsx-h") != 1 {
		t.Errorf("unexpected grouped counts: g=%d h=%d", r.Count("jsx-g"), r.Count("jsx-h"))
	}

	missing := Payload{StyleID: "missing", CSS: Single(".m{}")}
	if err := r.Update(missing, a); !errors.Is(err, ErrNotRegistered) {
		t.Errorf("expected ErrNotRegistered, got %v", err)
	}
}

func TestRegistry_Flush(t *testing.T) {
	markup := `<html><head><style id="__jsx-s">.s{}</style></head><body></body></html>`
	doc, err := surface.ParseHTML(strings.NewReader(markup))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	r := newRegistry(t, Options{Document: doc})
	mustAdd(t, r, Payload{StyleID: "g", CSS: Grouped{".g{}"}})
	mustAdd(t, r, Payload{StyleID: "d", CSS: Single(".x{}"), Dynamic: []any{"v"}})

	if err := r.Flush(); err != nil {
		t.Fatalf("flush failed: %v", err)
	}

	if r.Sheet().Len() != 0 || len(r.counts) != 0 || len(r.indices) != 0 || len(r.memo.ids) != 0 {
		t.Error("expected every record to be cleared")
	}
	if len(r.CSSRules()) != 0 {
		t.Errorf("expected no entries after flush, got %v", r.CSSRules())
	}

	// a new generation re-decides the backend and re-scans the document
	mustAdd(t, r, Payload{StyleID: "n", CSS: Single(".n{}")})
	if r.Sheet().Speedy() {
		t.Error("expected speedy to be re-decided after flush")
	}
	if entries := r.CSSRules(); len(entries) != 2 || entries[0].ID != "jsx-s" {
		t.Errorf("expected re-scan of hydrated styles, got %+v", entries)
	}
}

func TestRegistry_InsertionOrder(t *testing.T) {
	r := newRegistry(t, Options{MaxLength: 2})

	ids := []string{"c", "a", "b", "d", "e"}
	for _, id := range ids {
		mustAdd(t, r, Payload{StyleID: id, CSS: Single("." + id + "{}")})
	}
	mustRemove(t, r, Payload{StyleID: "b", CSS: Single(".b{}")})

	var got []string
	for _, e := range r.CSSRules() {
		got = append(got, e.ID)
	}
	if strings.Join(got, ",") != "jsx-c,jsx-a,jsx-d,jsx-e" {
		t.Errorf("unexpected order: %v", got)
	}
}

func TestParseSpeedyMode(t *testing.T) {
	tests := []struct {
		in      string
		want    SpeedyMode
		wantErr bool
	}{
		{"", SpeedyAuto, false},
		{"auto", SpeedyAuto, false},
		{"ON", SpeedyOn, false},
		{"off", SpeedyOff, false},
		{"fast", SpeedyAuto, true},
	}

	for _, tt := range tests {
		got, err := ParseSpeedyMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseSpeedyMode(%q) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseSpeedyMode(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
