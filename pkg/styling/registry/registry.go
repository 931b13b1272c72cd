// Package registry deduplicates component style payloads on top of a
// sheet.StyleSheet.
//
// Every payload resolves to a style identity. The first live instance of
// an identity inserts its rules, later instances only bump a reference
// count, and the rules are deleted when the last instance is removed.
// Styles pre-rendered by a server pass are adopted on the first Add so
// that they are neither inserted twice nor leaked.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/recera/stylejsx/pkg/styling/sheet"
	"github.com/recera/stylejsx/pkg/styling/surface"
)

// HydrationPrefix marks pre-rendered style elements: id="__<styleId>".
const HydrationPrefix = "__jsx-"

// DefaultName is the container marker used by the registry.
const DefaultName = "styled-jsx"

// ErrNotRegistered is returned when removing or updating an identity
// that has no live instance.
var ErrNotRegistered = errors.New("registry: style not registered")

// SpeedyMode controls backend selection.
type SpeedyMode int

const (
	// SpeedyAuto enables the compiled backend when the first payload of a
	// generation is grouped.
	SpeedyAuto SpeedyMode = iota
	SpeedyOn
	SpeedyOff
)

func (m SpeedyMode) String() string {
	switch m {
	case SpeedyOn:
		return "on"
	case SpeedyOff:
		return "off"
	default:
		return "auto"
	}
}

// ParseSpeedyMode parses "auto", "on" or "off".
func ParseSpeedyMode(s string) (SpeedyMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return SpeedyAuto, nil
	case "on", "true":
		return SpeedyOn, nil
	case "off", "false":
		return SpeedyOff, nil
	}
	return SpeedyAuto, fmt.Errorf("invalid speedy mode %q", s)
}

// Options configures a Registry.
type Options struct {
	Name       string
	Speedy     SpeedyMode
	MaxLength  int
	Document   surface.Document
	Logger     *slog.Logger
	Production bool
}

// Entry is one identity and its current css.
type Entry struct {
	ID       string
	CSS      string
	Hydrated bool
}

// indexRecord holds the indices of one identity: a plain list, or a
// [start, end] span for grouped payloads.
type indexRecord struct {
	seq     int
	span    bool
	indices []int
}

func (r indexRecord) all() []int {
	if !r.span {
		return r.indices
	}
	out := make([]int, 0, r.indices[1]-r.indices[0]+1)
	for i := r.indices[0]; i <= r.indices[1]; i++ {
		out = append(out, i)
	}
	return out
}

// Registry is the deduplicating style registry.
type Registry struct {
	mu       sync.Mutex
	sheet    *sheet.StyleSheet
	document surface.Document
	logger   *slog.Logger

	speedyMode    SpeedyMode
	speedyDecided bool

	scanned     bool
	fromServer  map[string]surface.Node
	serverOrder []string

	indices map[string]indexRecord
	counts  map[string]int
	seq     int

	memo *memo
}

// New creates a registry and injects its stylesheet.
func New(opts Options) (*Registry, error) {
	if opts.Name == "" {
		opts.Name = DefaultName
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := sheet.New(sheet.Options{
		Name:       opts.Name,
		Speedy:     opts.Speedy == SpeedyOn,
		MaxLength:  opts.MaxLength,
		Document:   opts.Document,
		Logger:     opts.Logger,
		Production: opts.Production,
	})
	if err := s.Inject(); err != nil {
		return nil, fmt.Errorf("failed to inject stylesheet: %w", err)
	}

	r := &Registry{
		sheet:      s,
		document:   opts.Document,
		logger:     opts.Logger.With("component", "registry"),
		speedyMode: opts.Speedy,
	}
	r.reset()
	return r, nil
}

func (r *Registry) reset() {
	r.speedyDecided = r.speedyMode != SpeedyAuto
	r.scanned = false
	r.fromServer = make(map[string]surface.Node)
	r.serverOrder = nil
	r.indices = make(map[string]indexRecord)
	r.counts = make(map[string]int)
	r.seq = 0
	r.memo = newMemo()
}

// Add registers one instance of p.
func (r *Registry) Add(p Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.add(p)
}

func (r *Registry) add(p Payload) error {
	if !r.speedyDecided {
		if err := r.sheet.SetSpeedy(p.IsGrouped()); err != nil {
			return err
		}
		r.speedyDecided = true
	}

	r.hydrate()

	id, rules := r.resolve(p)
	if _, ok := r.counts[id]; ok {
		r.counts[id]++
		return nil
	}

	indices := make([]int, 0, len(rules))
	for _, rule := range rules {
		index, err := r.sheet.Insert(rule)
		if err != nil {
			for _, inserted := range indices {
				_ = r.sheet.Delete(inserted)
			}
			return fmt.Errorf("add %s: %w", id, err)
		}
		indices = append(indices, index)
	}

	rec := indexRecord{seq: r.seq, indices: indices}
	if p.IsGrouped() && len(indices) > 0 {
		rec.span = true
		rec.indices = []int{indices[0], indices[len(indices)-1]}
	}
	r.seq++

	r.counts[id] = 1
	r.indices[id] = rec
	return nil
}

// Hydrate adopts pre-rendered styles now rather than on the first Add.
// Adopted identities have no live instance until added.
func (r *Registry) Hydrate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hydrate()
}

// hydrate adopts pre-rendered style elements once per generation.
func (r *Registry) hydrate() {
	if r.scanned || r.document == nil {
		return
	}
	r.scanned = true

	for _, node := range r.document.QueryPrefix(HydrationPrefix) {
		id := strings.TrimPrefix(node.ID(), "__")
		if _, ok := r.fromServer[id]; ok {
			continue
		}
		r.fromServer[id] = node
		r.serverOrder = append(r.serverOrder, id)
		r.counts[id] = 0
	}

	if len(r.serverOrder) > 0 {
		r.logger.Debug("adopted server styles", "count", len(r.serverOrder))
	}
}

// resolve computes the identity of p and its insertable rules.
func (r *Registry) resolve(p Payload) (string, []string) {
	rules := p.Rules()
	if len(p.Dynamic) == 0 {
		return r.memo.computeID(p.StyleID, nil), rules
	}

	id := r.memo.computeID(p.StyleID, p.Dynamic)
	resolved := make([]string, len(rules))
	for i, rule := range rules {
		resolved[i] = r.memo.computeSelector(id, rule)
	}
	return id, resolved
}

// Remove drops one instance of p. The last instance deletes its rules,
// or detaches the pre-rendered element it was hydrated from.
func (r *Registry) Remove(p Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.remove(p)
}

func (r *Registry) remove(p Payload) error {
	id := r.memo.computeID(p.StyleID, p.Dynamic)

	count, ok := r.counts[id]
	if !ok || count < 1 {
		return fmt.Errorf("remove %s: %w", id, ErrNotRegistered)
	}

	count--
	if count > 0 {
		r.counts[id] = count
		return nil
	}
	delete(r.counts, id)

	if node, ok := r.fromServer[id]; ok {
		node.Remove()
		delete(r.fromServer, id)
		r.serverOrder = without(r.serverOrder, id)
		return nil
	}

	rec := r.indices[id]
	delete(r.indices, id)
	for _, index := range rec.all() {
		if err := r.sheet.Delete(index); err != nil {
			return fmt.Errorf("remove %s: %w", id, err)
		}
	}
	return nil
}

// Update moves one instance from prev to next. A single instance of a
// singular style is rewritten in place; anything else is an Add of next
// followed by a Remove of prev.
func (r *Registry) Update(prev, next Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev.IsGrouped() || next.IsGrouped() || next.CSS == nil {
		return r.fallbackUpdate(prev, next)
	}

	id := r.memo.computeID(prev.StyleID, prev.Dynamic)
	rec, ok := r.indices[id]
	if !ok || r.counts[id] != 1 || len(rec.indices) != 1 {
		return r.fallbackUpdate(prev, next)
	}

	index := rec.indices[0]
	nextID, rules := r.resolve(next)

	// The old identity stays tracked until the sheet accepts the change.
	if _, live := r.counts[nextID]; live && nextID != id {
		if err := r.sheet.Delete(index); err != nil {
			return fmt.Errorf("update %s: %w", id, err)
		}
		delete(r.indices, id)
		delete(r.counts, id)
		r.counts[nextID]++
		return nil
	}

	if _, err := r.sheet.Replace(index, rules[0]); err != nil {
		return fmt.Errorf("update %s: %w", id, err)
	}
	delete(r.indices, id)
	delete(r.counts, id)
	r.indices[nextID] = indexRecord{seq: rec.seq, indices: []int{index}}
	r.counts[nextID] = 1
	return nil
}

func (r *Registry) fallbackUpdate(prev, next Payload) error {
	if err := r.add(next); err != nil {
		return err
	}
	return r.remove(prev)
}

// Flush empties the stylesheet and forgets every identity.
func (r *Registry) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flush()
}

func (r *Registry) flush() error {
	r.sheet.Flush()
	if err := r.sheet.Inject(); err != nil {
		return fmt.Errorf("failed to re-inject stylesheet: %w", err)
	}
	r.reset()
	return nil
}

// Drain snapshots CSSRules and flushes under one lock, so no Add can
// land between the two.
func (r *Registry) Drain() ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.cssRules()
	if err := r.flush(); err != nil {
		return nil, err
	}
	return entries, nil
}

// CSSRules lists hydrated identities in document order followed by
// inserted identities in insertion order.
func (r *Registry) CSSRules() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cssRules()
}

func (r *Registry) cssRules() []Entry {
	entries := make([]Entry, 0, len(r.serverOrder)+len(r.indices))
	for _, id := range r.serverOrder {
		entries = append(entries, Entry{ID: id, CSS: r.fromServer[id].Text(), Hydrated: true})
	}

	ids := make([]string, 0, len(r.indices))
	for id := range r.indices {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return r.indices[ids[i]].seq < r.indices[ids[j]].seq
	})

	for _, id := range ids {
		var rules []string
		for _, index := range r.indices[id].all() {
			rule, err := r.sheet.Rule(index)
			if err != nil {
				r.logger.Warn("missing rule", "id", id, "index", index, "error", err)
				continue
			}
			rules = append(rules, rule)
		}
		entries = append(entries, Entry{ID: id, CSS: strings.Join(rules, "\n")})
	}
	return entries
}

// Count returns the number of live instances of an identity.
func (r *Registry) Count(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[id]
}

// Identity returns the identity p resolves to.
func (r *Registry) Identity(p Payload) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.memo.computeID(p.StyleID, p.Dynamic)
}

// ComputeID returns the identity for a base id and its dynamic values.
func (r *Registry) ComputeID(base string, dynamic []any) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.memo.computeID(base, dynamic)
}

// ComputeSelector resolves the dynamic placeholder in css for id.
func (r *Registry) ComputeSelector(id, css string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.memo.computeSelector(id, css)
}

// Sheet exposes the underlying stylesheet for inspection. Mutating it
// directly bypasses reference counting.
func (r *Registry) Sheet() *sheet.StyleSheet {
	return r.sheet
}

func without(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
