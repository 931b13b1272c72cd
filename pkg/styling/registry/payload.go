package registry

// CSS is the style text carried by a payload: either Single or Grouped.
type CSS interface {
	rules() []string
	grouped() bool
}

// Single is one blob of css inserted as a single rule.
type Single string

func (s Single) rules() []string { return []string{string(s)} }
func (Single) grouped() bool     { return false }

// Grouped is a batch of self-contained rules inserted one by one and
// addressed as a contiguous span.
type Grouped []string

func (g Grouped) rules() []string { return g }
func (Grouped) grouped() bool     { return true }

// Payload is what a component instance hands to the registry on mount,
// update and unmount.
type Payload struct {
	// StyleID is the base identity assigned when the css was compiled.
	StyleID string

	CSS CSS

	// Dynamic holds interpolated values. Instances with different values
	// get different identities.
	Dynamic []any
}

// IsGrouped reports whether the payload uses grouped insertion.
func (p Payload) IsGrouped() bool {
	return p.CSS != nil && p.CSS.grouped()
}

// Rules returns the raw rules of the payload.
func (p Payload) Rules() []string {
	if p.CSS == nil {
		return nil
	}
	return p.CSS.rules()
}
