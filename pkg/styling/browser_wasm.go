//go:build js && wasm
// +build js,wasm

package styling

import (
	"github.com/recera/stylejsx/pkg/styling/registry"
	"github.com/recera/stylejsx/pkg/styling/surface"
)

// UseBrowser binds the default registry to the page document, adopting
// the styles the server rendered into it.
func UseBrowser(opts registry.Options) error {
	opts.Document = surface.NewBrowserDocument()
	r, err := registry.New(opts)
	if err != nil {
		return err
	}
	SetDefault(r)
	return nil
}
