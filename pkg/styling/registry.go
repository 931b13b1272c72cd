package styling

import (
	"fmt"
	"sync"

	"github.com/recera/stylejsx/pkg/styling/registry"
	"github.com/recera/stylejsx/pkg/styling/server"
)

var (
	defaultMu       sync.RWMutex
	defaultRegistry *registry.Registry
)

// Default returns the process-wide registry, creating a server-side one
// on first use.
func Default() *registry.Registry {
	defaultMu.RLock()
	r := defaultRegistry
	defaultMu.RUnlock()
	if r != nil {
		return r
	}

	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultRegistry == nil {
		r, err := registry.New(registry.Options{})
		if err != nil {
			// a registry without a document cannot fail to inject
			panic(fmt.Sprintf("styling: failed to create default registry: %v", err))
		}
		defaultRegistry = r
	}
	return defaultRegistry
}

// SetDefault replaces the process-wide registry, e.g. with one bound to
// a browser document.
func SetDefault(r *registry.Registry) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultRegistry = r
}

// Mount registers one instance of a component style.
func Mount(style *ComponentStyle) error {
	if style == nil {
		return nil
	}
	return Default().Add(style.Payload())
}

// Unmount releases one instance of a component style.
func Unmount(style *ComponentStyle) error {
	if style == nil {
		return nil
	}
	return Default().Remove(style.Payload())
}

// MountDynamic registers one instance of a dynamic style and returns
// the class the instance should carry.
func MountDynamic(style *DynamicComponentStyle, values ...any) (string, error) {
	p, err := style.Payload(values...)
	if err != nil {
		return "", err
	}
	r := Default()
	if err := r.Add(p); err != nil {
		return "", err
	}
	return r.ComputeID(p.StyleID, p.Dynamic), nil
}

// UnmountDynamic releases one instance of a dynamic style.
func UnmountDynamic(style *DynamicComponentStyle, values ...any) error {
	p, err := style.Payload(values...)
	if err != nil {
		return err
	}
	return Default().Remove(p)
}

// GetAllCSS returns every registered rule as a single stylesheet.
func GetAllCSS() string {
	return server.CSS(Default().CSSRules())
}

// FlushHTML drains the default registry into <style> markup.
func FlushHTML() (string, error) {
	return server.FlushToHTML(Default())
}

// Reset clears all registered styles (useful for testing)
func Reset() error {
	return Default().Flush()
}
