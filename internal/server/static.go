package server

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// spaHandler serves files from dir and falls back to index.html for paths
// that do not name a file, so client-side routes resolve.
type spaHandler struct {
	dir string
}

func (h spaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clean := path.Clean("/" + r.URL.Path)
	full := filepath.Join(h.dir, filepath.FromSlash(clean))
	if fi, err := os.Stat(full); err == nil && !fi.IsDir() {
		http.ServeFile(w, r, full)
		return
	}
	index := filepath.Join(h.dir, "index.html")
	if _, err := os.Stat(index); err != nil {
		http.NotFound(w, r)
		return
	}
	// Missing assets are real 404s, not routes.
	if ext := path.Ext(clean); ext != "" && !strings.EqualFold(ext, ".html") {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFile(w, r, index)
}

// dataHandler serves the generated output root under /data.
func dataHandler(root string) http.Handler {
	fs := http.FileServer(http.Dir(root))
	return http.StripPrefix("/data", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Dot files (caches) stay private.
		for _, seg := range strings.Split(r.URL.Path, "/") {
			if strings.HasPrefix(seg, ".") && seg != "." && seg != ".." {
				http.NotFound(w, r)
				return
			}
		}
		fs.ServeHTTP(w, r)
	}))
}
