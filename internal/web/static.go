package web

import (
	"embed"
	"io/fs"
)

// static holds the embedded HTML, CSS, and JS files.
// The final binary includes all files under static/.
//
//go:embed static/*
var staticFiles embed.FS

// staticFS returns the embedded files rooted at static/.
func staticFS() fs.FS {
	sub, err := fs.Sub(staticFiles, "static")
	if err != nil {
		// The directory is embedded above, so this cannot fail at runtime.
		panic("web: static fs: " + err.Error())
	}
	return sub
}
