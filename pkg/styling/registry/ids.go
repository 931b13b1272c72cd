package registry

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf16"
)

// DynamicSelector is the placeholder that compiled dynamic styles carry
// in place of their final scope class.
const DynamicSelector = "__jsx-style-dynamic-selector"

// memo caches identities and resolved selectors for one registry
// generation.
type memo struct {
	ids       map[idKey]string
	selectors map[selectorKey]string
}

type idKey struct {
	base   string
	values string
}

type selectorKey struct {
	id  string
	css string
}

func newMemo() *memo {
	return &memo{
		ids:       make(map[idKey]string),
		selectors: make(map[selectorKey]string),
	}
}

// computeID returns jsx-<base> for static styles and a hashed identity
// for styles with dynamic values.
func (m *memo) computeID(base string, dynamic []any) string {
	if len(dynamic) == 0 {
		return "jsx-" + base
	}

	values := stringForm(dynamic)
	key := idKey{base: base, values: values}
	if id, ok := m.ids[key]; ok {
		return id
	}

	id := "jsx-" + strconv.FormatUint(uint64(stringHash(base+"-"+values)), 10)
	m.ids[key] = id
	return id
}

// computeSelector substitutes every placeholder occurrence in css with id.
func (m *memo) computeSelector(id, css string) string {
	key := selectorKey{id: id, css: css}
	if out, ok := m.selectors[key]; ok {
		return out
	}

	out := strings.ReplaceAll(css, DynamicSelector, id)
	m.selectors[key] = out
	return out
}

// stringForm renders values the way a JavaScript array stringifies, so
// identities match those computed by other styled-jsx runtimes.
func stringForm(values []any) string {
	parts := make([]string, len(values))
	for i, v := range values {
		if v == nil {
			continue
		}
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, ",")
}

// stringHash is the djb2-xor hash of the string-hash package, walking the
// string backwards over UTF-16 code units.
func stringHash(s string) uint32 {
	units := utf16.Encode([]rune(s))
	hash := uint32(5381)
	for i := len(units) - 1; i >= 0; i-- {
		hash = (hash * 33) ^ uint32(units[i])
	}
	return hash
}
