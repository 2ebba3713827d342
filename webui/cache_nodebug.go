//go:build !debug

package webui

import (
	"fmt"
	"net/http"
	"path/filepath"
	"time"
)

func MaxAge(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var age time.Duration
		ext := filepath.Ext(r.URL.Path)

		switch ext {
		case ".css", ".js":
			age = (time.Hour * 24 * 30) / time.Second
		case ".jpg", ".jpeg", ".gif", ".png", ".ico", ".svg", ".svgz",
			".ttf", ".otf", ".woff", ".woff2":
			age = (time.Hour * 24 * 365) / time.Second
		default:
			age = 0
		}

		if age > 0 {
			w.Header().Add("Cache-Control", fmt.Sprintf("max-age=%d, public, must-revalidate, proxy-revalidate", age))
		}

		h.ServeHTTP(w, r)
	})
}
