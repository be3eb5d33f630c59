// Package web embeds the browser front-end.
package web

import (
	"embed"
	"io/fs"
)

//go:embed templates/index.html
var index []byte

//go:embed static
var static embed.FS

// Index returns the front-end page.
func Index() []byte {
	return index
}

// Static returns the static assets rooted at the static directory.
func Static() fs.FS {
	sub, err := fs.Sub(static, "static")
	if err != nil {
		panic(err) // embedded path is fixed at build time
	}
	return sub
}
