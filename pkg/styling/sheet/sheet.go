// Package sheet implements a high performance stylesheet for css-in-go
// runtimes.
//
// A StyleSheet spreads its rules over several style containers so that
// no container grows past MaxLength rules, and addresses every rule by a
// global index that stays valid until Flush. Rules are written either as
// text nodes (inspectable in developer tools) or, in speedy mode, through
// the surface's compiled insertRule primitive. Without a document the
// sheet falls back to an in-memory list that is only good for server-side
// serialization.
package sheet

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/recera/stylejsx/pkg/styling/surface"
)

var (
	ErrAlreadyInjected = errors.New("sheet: already injected")
	ErrNotInjected     = errors.New("sheet: not injected")
	ErrSpeedyLocked    = errors.New("sheet: cannot change speedy mode after rules were inserted; flush first")
	ErrRuleNotFound    = errors.New("sheet: rule container not found")
)

const (
	// DefaultMaxLength is the per-container rule ceiling.
	DefaultMaxLength = 65000

	// DefaultName marks containers as data-stylesheet.
	DefaultName = "stylesheet"

	// EmptyRule fills deleted slots. The compiled backend cannot hold an
	// empty rule, so a selector that matches nothing stands in for one.
	EmptyRule = "#___stylesheet-empty-rule____{}"
)

// Options configures a StyleSheet.
type Options struct {
	// Name is used for the data-<name> marker on containers.
	Name string

	// Speedy selects the compiled backend when the surface supports it.
	Speedy bool

	// MaxLength caps the number of rules per container.
	MaxLength int

	// Document is the surface to inject into. Nil means server-side.
	Document surface.Document

	Logger *slog.Logger

	// Production silences illegal rule warnings.
	Production bool
}

// StyleSheet is the multi-container rule store.
type StyleSheet struct {
	name       string
	speedy     bool
	maxLength  int
	document   surface.Document
	logger     *slog.Logger
	production bool

	injected   bool
	ctr        int
	containers []*container
	memory     []string
}

// container pairs a surface container with the backend chosen for it
// and the position of each of its slots. Positions move when an @import
// is prepended, slots never do.
type container struct {
	handle surface.Container
	rules  surface.RuleList
	pos    []int
}

// New creates a stylesheet. Call Inject before inserting.
func New(opts Options) *StyleSheet {
	if opts.Name == "" {
		opts.Name = DefaultName
	}
	if opts.MaxLength <= 0 {
		opts.MaxLength = DefaultMaxLength
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &StyleSheet{
		name:       opts.Name,
		speedy:     opts.Speedy,
		maxLength:  opts.MaxLength,
		document:   opts.Document,
		production: opts.Production,
		logger:     opts.Logger.With("component", "stylesheet", "name", opts.Name),
	}
}

// Inject binds the sheet to its document, or to the in-memory list when
// there is none.
func (s *StyleSheet) Inject() error {
	if s.injected {
		return ErrAlreadyInjected
	}
	if s.document == nil {
		s.memory = []string{}
	}
	s.injected = true
	return nil
}

// Injected reports whether Inject has been called since the last Flush.
func (s *StyleSheet) Injected() bool {
	return s.injected
}

// SetSpeedy switches between the compiled and the direct-mutation
// backend. Mixing both in one sheet would corrupt addressing, so this
// fails once any rule has been inserted.
func (s *StyleSheet) SetSpeedy(speedy bool) error {
	if s.ctr != 0 {
		return ErrSpeedyLocked
	}
	s.speedy = speedy
	return nil
}

// Speedy reports whether the compiled backend is requested.
func (s *StyleSheet) Speedy() bool {
	return s.speedy
}

// Len is the number of indices issued since the last flush.
func (s *StyleSheet) Len() int {
	return s.ctr
}

// Containers is the number of containers attached to the document.
func (s *StyleSheet) Containers() int {
	return len(s.containers)
}

// Insert appends a rule and returns its global index.
func (s *StyleSheet) Insert(rule string) (int, error) {
	if !s.injected {
		return 0, ErrNotInjected
	}

	if s.document == nil {
		s.memory = append(s.memory, rule)
		s.ctr++
		return s.ctr - 1, nil
	}

	fresh := len(s.containers) == 0 || s.ctr%s.maxLength == 0
	var c *container
	if fresh {
		c = s.newContainer()
	} else {
		c = s.containers[len(s.containers)-1]
	}

	at := len(c.pos)
	if isImport(rule) {
		at = 0
	}

	var err error
	if c.rules != nil {
		err = s.insertRule(c.rules, rule, at)
	} else {
		err = c.handle.InsertText(rule, at)
	}
	if err != nil {
		if fresh {
			c.handle.Remove()
		}
		return 0, fmt.Errorf("insert rule %d: %w", s.ctr, err)
	}
	if fresh {
		s.containers = append(s.containers, c)
	}

	if at == 0 {
		for i := range c.pos {
			c.pos[i]++
		}
	}
	c.pos = append(c.pos, at)

	s.ctr++
	return s.ctr - 1, nil
}

// insertRule writes through the compiled backend. A rule the surface
// rejects is replaced by EmptyRule so that the slot keeps its position.
func (s *StyleSheet) insertRule(rules surface.RuleList, rule string, at int) error {
	err := rules.InsertRule(rule, at)
	if err == nil {
		return nil
	}
	if !errors.Is(err, surface.ErrSyntax) {
		return err
	}

	if !s.production {
		s.logger.Warn("illegal rule", "rule", rule, "error", err)
	}
	return rules.InsertRule(EmptyRule, at)
}

func (s *StyleSheet) newContainer() *container {
	handle := s.document.CreateContainer(s.name)
	c := &container{handle: handle}
	if s.speedy {
		c.rules = handle.Rules()
	}
	return c
}

// Replace overwrites the rule at index and returns index. Blank text is
// stored as EmptyRule.
func (s *StyleSheet) Replace(index int, rule string) (int, error) {
	if !s.injected {
		return 0, ErrNotInjected
	}
	if strings.TrimSpace(rule) == "" {
		rule = EmptyRule
	}

	if s.document == nil {
		if index < 0 || index >= len(s.memory) {
			return 0, fmt.Errorf("rule %d: %w", index, ErrRuleNotFound)
		}
		s.memory[index] = rule
		return index, nil
	}

	c, offset, err := s.locate(index)
	if err != nil {
		return 0, err
	}
	at := c.pos[offset]

	if c.rules != nil {
		if err := c.rules.DeleteRule(at); err != nil {
			return 0, fmt.Errorf("replace rule %d: %w", index, err)
		}
		if err := s.insertRule(c.rules, rule, at); err != nil {
			return 0, fmt.Errorf("replace rule %d: %w", index, err)
		}
		return index, nil
	}

	if err := c.handle.SetText(at, rule); err != nil {
		return 0, fmt.Errorf("replace rule %d: %w", index, err)
	}
	return index, nil
}

// Delete empties the rule at index. Indices are never compacted.
func (s *StyleSheet) Delete(index int) error {
	_, err := s.Replace(index, "")
	return err
}

// locate maps a global index to its container and local offset.
func (s *StyleSheet) locate(index int) (*container, int, error) {
	if index < 0 || index >= s.ctr {
		return nil, 0, fmt.Errorf("rule %d: %w", index, ErrRuleNotFound)
	}

	if len(s.containers) == 1 {
		return s.containers[0], index, nil
	}

	ci := index / s.maxLength
	if ci >= len(s.containers) {
		return nil, 0, fmt.Errorf("rule %d: %w", index, ErrRuleNotFound)
	}
	return s.containers[ci], index - ci*s.maxLength, nil
}

// Rule returns the text stored at index.
func (s *StyleSheet) Rule(index int) (string, error) {
	if !s.injected {
		return "", ErrNotInjected
	}

	if s.document == nil {
		if index < 0 || index >= len(s.memory) {
			return "", fmt.Errorf("rule %d: %w", index, ErrRuleNotFound)
		}
		return s.memory[index], nil
	}

	c, offset, err := s.locate(index)
	if err != nil {
		return "", err
	}
	texts := c.texts()
	at := c.pos[offset]
	if at >= len(texts) {
		return "", fmt.Errorf("rule %d: %w", index, ErrRuleNotFound)
	}
	return texts[at], nil
}

// Rules lists every rule, container by container, in the order the
// surface holds them.
func (s *StyleSheet) Rules() []string {
	if s.document == nil {
		out := make([]string, len(s.memory))
		copy(out, s.memory)
		return out
	}

	var out []string
	for _, c := range s.containers {
		out = append(out, c.texts()...)
	}
	return out
}

func (c *container) texts() []string {
	if c.rules != nil {
		return c.rules.CSSRules()
	}
	return c.handle.Texts()
}

// Flush detaches every container and resets the sheet. Inject must be
// called again before the next insertion.
func (s *StyleSheet) Flush() {
	for _, c := range s.containers {
		c.handle.Remove()
	}
	s.containers = nil
	s.memory = nil
	s.ctr = 0
	s.injected = false
}

func isImport(rule string) bool {
	return strings.HasPrefix(strings.TrimSpace(rule), "@import")
}
