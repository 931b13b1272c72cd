// Package transform scopes component css to a class prefix.
//
// Every call carries its own Options: the source file, the offset of the
// css inside that file and the optional source map sink travel with the
// call instead of living in package state, so concurrent transforms never
// see each other's positions.
package transform

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aymerick/douceur/css"
	"github.com/aymerick/douceur/parser"
)

var (
	ErrInvalidCSS = errors.New("transform: invalid css")
	ErrNesting    = errors.New("transform: nesting is not supported")
)

// Position is a 1-based line and 0-based column.
type Position struct {
	Line   int
	Column int
}

// Mapping links a generated position to its origin.
type Mapping struct {
	Generated Position
	Original  Position
	Source    string
}

// SourceMapper receives mappings as css is generated.
type SourceMapper interface {
	AddMapping(m Mapping)
}

// Options is the per-call transform context.
type Options struct {
	Filename string
	Offset   Position

	// SplitRules returns one self-contained rule per entry, suitable for
	// insertRule.
	SplitRules bool

	Mapper SourceMapper
}

// Result is the output of Transform.
type Result struct {
	rules []string
	split bool
}

// String is the whole stylesheet as one blob.
func (r Result) String() string {
	return strings.Join(r.rules, "")
}

// Rules lists the top-level rules in source order. Without SplitRules
// the whole stylesheet is the single entry.
func (r Result) Rules() []string {
	if !r.split {
		if len(r.rules) == 0 {
			return nil
		}
		return []string{r.String()}
	}
	out := make([]string, len(r.rules))
	copy(out, r.rules)
	return out
}

// Transform scopes styles with prefix, e.g. ".jsx-123".
func Transform(prefix, styles string, opts Options) (Result, error) {
	sheet, err := parser.Parse(styles)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w: %v", sourceName(opts), ErrInvalidCSS, err)
	}

	if opts.Mapper != nil {
		opts.Mapper.AddMapping(Mapping{
			Generated: Position{Line: 1, Column: 0},
			Original:  opts.Offset,
			Source:    opts.Filename,
		})
	}

	var rules []string
	for _, rule := range sheet.Rules {
		out, err := writeRule(rule, prefix)
		if err != nil {
			return Result{}, fmt.Errorf("%s: %w", sourceName(opts), err)
		}
		if out != "" {
			rules = append(rules, out)
		}
	}
	return Result{rules: rules, split: opts.SplitRules}, nil
}

func sourceName(opts Options) string {
	if opts.Filename == "" {
		return "<inline>"
	}
	return fmt.Sprintf("%s:%d:%d", opts.Filename, opts.Offset.Line, opts.Offset.Column)
}

func writeRule(rule *css.Rule, prefix string) (string, error) {
	if rule.Kind == css.QualifiedRule {
		if err := checkNesting(rule); err != nil {
			return "", err
		}
		selectors := make([]string, len(rule.Selectors))
		for i, sel := range rule.Selectors {
			selectors[i] = scopeSelector(sel, prefix)
		}
		return strings.Join(selectors, ",") + "{" + declarations(rule.Declarations) + "}", nil
	}

	head := rule.Name
	if rule.Prelude != "" {
		head += " " + rule.Prelude
	}

	switch {
	case rule.EmbedsRules():
		var sb strings.Builder
		sb.WriteString(head)
		sb.WriteString("{")
		for _, inner := range rule.Rules {
			innerPrefix := prefix
			if rule.Name == "@keyframes" || strings.HasSuffix(rule.Name, "-keyframes") {
				innerPrefix = ""
			}
			out, err := writeRule(inner, innerPrefix)
			if err != nil {
				return "", err
			}
			sb.WriteString(out)
		}
		sb.WriteString("}")
		return sb.String(), nil

	case len(rule.Declarations) > 0:
		return head + "{" + declarations(rule.Declarations) + "}", nil

	default:
		return head + ";", nil
	}
}

func checkNesting(rule *css.Rule) error {
	for _, d := range rule.Declarations {
		if strings.ContainsAny(d.Property, "{}") || strings.ContainsAny(d.Value, "{}") {
			return fmt.Errorf("%w: in %q", ErrNesting, rule.Prelude)
		}
	}
	return nil
}

func declarations(decls []*css.Declaration) string {
	parts := make([]string, 0, len(decls))
	for _, d := range decls {
		value := d.Value
		if d.Important {
			value += "!important"
		}
		parts = append(parts, d.Property+":"+value)
	}
	return strings.Join(parts, ";")
}

// scopeSelector appends prefix to every compound selector, ahead of any
// pseudo class or element. :global(...) compounds are left unscoped. An
// empty prefix leaves the selector untouched apart from whitespace.
func scopeSelector(sel, prefix string) string {
	compounds, combinators := splitCompounds(strings.TrimSpace(sel))

	var sb strings.Builder
	for i, compound := range compounds {
		if i > 0 {
			sb.WriteString(combinators[i-1])
		}
		sb.WriteString(scopeCompound(compound, prefix))
	}
	return sb.String()
}

func scopeCompound(compound, prefix string) string {
	if strings.HasPrefix(compound, ":global(") && strings.HasSuffix(compound, ")") {
		return compound[len(":global(") : len(compound)-1]
	}
	if prefix == "" {
		return compound
	}

	depth := 0
	for i, c := range compound {
		switch c {
		case '(', '[':
			depth++
		case ')', ']':
			depth--
		case ':':
			if depth == 0 {
				return compound[:i] + prefix + compound[i:]
			}
		}
	}
	return compound + prefix
}

// splitCompounds splits a complex selector on top-level combinators.
func splitCompounds(sel string) ([]string, []string) {
	var (
		compounds   []string
		combinators []string
		current     strings.Builder
		pending     string
		depth       int
	)

	flush := func() {
		if current.Len() == 0 {
			return
		}
		if len(compounds) > 0 {
			if pending == "" {
				pending = " "
			}
			combinators = append(combinators, pending)
		}
		compounds = append(compounds, current.String())
		current.Reset()
		pending = ""
	}

	for _, c := range sel {
		switch {
		case c == '(' || c == '[':
			depth++
			current.WriteRune(c)
		case c == ')' || c == ']':
			depth--
			current.WriteRune(c)
		case depth == 0 && (c == ' ' || c == '\t' || c == '\n' || c == '\r'):
			flush()
		case depth == 0 && (c == '>' || c == '+' || c == '~'):
			flush()
			pending = string(c)
		default:
			current.WriteRune(c)
		}
	}
	flush()
	return compounds, combinators
}
