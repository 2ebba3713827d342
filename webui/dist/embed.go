//go:build !debug

// Package dist holds the web UI assets.
package dist

import (
	"embed"
	"io/fs"
)

//go:embed index.html player.html app.js style.css
var files embed.FS

var Content fs.FS = files
