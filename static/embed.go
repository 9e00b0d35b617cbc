// Package static embeds the browser assets: the page and report stylesheets,
// the generated Chroma theme, and the script that applies settings and
// follows server-sent change events.
package static

import (
	"embed"
	"io/fs"
	"net/http"
	"path"
)

//go:embed css/*.css js/*.js
var assets embed.FS

// HTTP serves the embedded assets under their css/ and js/ paths.
func HTTP() http.FileSystem {
	return http.FS(assets)
}

// Has reports whether name is an embedded regular file. A leading slash is
// ignored so URL paths can be checked directly.
func Has(name string) bool {
	name = path.Clean("/" + name)[1:]
	info, err := fs.Stat(assets, name)
	return err == nil && !info.IsDir()
}
