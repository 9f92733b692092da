// Package assets provides the embedded static files of the loopcast web
// UI. The UI is a single hand-written page, embedded at compile time so
// the binary is self-contained.
package assets

import (
	"embed"
	"io/fs"
)

//go:embed all:static
var staticFS embed.FS

// StaticFS returns the UI filesystem rooted at the static directory.
func StaticFS() (fs.FS, error) {
	return fs.Sub(staticFS, "static")
}
