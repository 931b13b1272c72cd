package styling

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/recera/stylejsx/pkg/styling/registry"
	"github.com/recera/stylejsx/pkg/styling/transform"
)

// ComponentStyle is a component's scoped stylesheet. Every selector is
// scoped with the .jsx-<hash> class, so elements rendered by the
// component carry Class() next to their own class names.
type ComponentStyle struct {
	// Hash is the base style id, derived from the source css.
	Hash string

	// CSS is the source as written.
	CSS string

	rules []string
}

// Style scopes css to a new ComponentStyle.
func Style(css string, opts ...transform.Options) (*ComponentStyle, error) {
	hash := hashCSS(css)

	result, err := transform.Transform("."+scopedClass(hash), css, options(opts))
	if err != nil {
		return nil, fmt.Errorf("failed to scope style %s: %w", hash, err)
	}

	return &ComponentStyle{
		Hash:  hash,
		CSS:   css,
		rules: result.Rules(),
	}, nil
}

// MustStyle is like Style but panics on invalid css. Intended for
// package-level variables.
func MustStyle(css string) *ComponentStyle {
	s, err := Style(css)
	if err != nil {
		panic(err)
	}
	return s
}

// Payload is the registry payload for one mounted instance.
func (c *ComponentStyle) Payload() registry.Payload {
	return registry.Payload{StyleID: c.Hash, CSS: registry.Grouped(c.rules)}
}

// Rules lists the scoped rules.
func (c *ComponentStyle) Rules() []string {
	return append([]string(nil), c.rules...)
}

// Class returns the scoping class name.
// Falls back to an empty string for a nil style to avoid nils in templates.
func (c *ComponentStyle) Class() string {
	if c == nil {
		return ""
	}
	return scopedClass(c.Hash)
}

// Classes returns the scoping class followed by names, space separated.
func (c *ComponentStyle) Classes(names ...string) string {
	return joinClasses(c.Class(), names)
}

// DynamicComponentStyle is a stylesheet whose css depends on runtime
// values. Format is a fmt format string; every distinct set of values
// resolves to its own identity.
type DynamicComponentStyle struct {
	Hash   string
	Format string

	opts transform.Options
}

// DynamicStyle creates a dynamic style from a fmt format string, e.g.
// ".btn { color: %s }".
func DynamicStyle(format string, opts ...transform.Options) *DynamicComponentStyle {
	return &DynamicComponentStyle{
		Hash:   hashCSS(format),
		Format: format,
		opts:   options(opts),
	}
}

// Payload renders the format with values and scopes the result with the
// dynamic placeholder, which the registry resolves to the identity.
func (d *DynamicComponentStyle) Payload(values ...any) (registry.Payload, error) {
	css := fmt.Sprintf(d.Format, values...)
	result, err := transform.Transform("."+registry.DynamicSelector, css, d.opts)
	if err != nil {
		return registry.Payload{}, fmt.Errorf("failed to scope dynamic style %s: %w", d.Hash, err)
	}
	return registry.Payload{
		StyleID: d.Hash,
		CSS:     registry.Grouped(result.Rules()),
		Dynamic: values,
	}, nil
}

// Class returns the scoping class for values as resolved by r.
func (d *DynamicComponentStyle) Class(r *registry.Registry, values ...any) string {
	return r.ComputeID(d.Hash, values)
}

// Classes returns the scoping class for values followed by names.
func (d *DynamicComponentStyle) Classes(r *registry.Registry, values []any, names ...string) string {
	return joinClasses(d.Class(r, values...), names)
}

func hashCSS(css string) string {
	h := sha256.New()
	h.Write([]byte(css))
	return hex.EncodeToString(h.Sum(nil))[:8]
}

func scopedClass(hash string) string {
	return "jsx-" + hash
}

func options(opts []transform.Options) transform.Options {
	var o transform.Options
	if len(opts) > 0 {
		o = opts[0]
	}
	o.SplitRules = true
	return o
}

func joinClasses(scope string, names []string) string {
	parts := make([]string, 0, len(names)+1)
	if scope != "" {
		parts = append(parts, scope)
	}
	for _, name := range names {
		if name = strings.TrimSpace(name); name != "" {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, " ")
}
