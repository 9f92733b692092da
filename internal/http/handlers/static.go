package handlers

import (
	"io/fs"
	"net/http"

	"github.com/go-chi/chi/v5"

	"loopcast/internal/assets"
)

// RegisterStatic mounts the embedded web UI on the router root. API
// routes are registered first and take precedence.
func RegisterStatic(router *chi.Mux) error {
	fsys, err := assets.StaticFS()
	if err != nil {
		return err
	}

	fileServer := http.FileServer(http.FS(fsys))

	router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		serveIndex(w, r, fsys)
	})
	router.Get("/*", fileServer.ServeHTTP)

	return nil
}

func serveIndex(w http.ResponseWriter, r *http.Request, fsys fs.FS) {
	data, err := fs.ReadFile(fsys, "index.html")
	if err != nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}
