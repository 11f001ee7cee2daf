package server

import (
	"bytes"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/conneroisu/koisite/internal/build"
)

func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := s.resolve(r.URL.Path)
	info, err := os.Stat(name)
	if err == nil && info.IsDir() {
		name = filepath.Join(name, "index.html")
		info, err = os.Stat(name)
	}

	isHTML := strings.EqualFold(filepath.Ext(name), ".html") || strings.EqualFold(filepath.Ext(name), ".htm")

	if isHTML {
		if failures := s.currentFailures(); len(failures) > 0 {
			s.serveOverlay(w, r, failures)
			return
		}
	}

	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}

	if !isHTML || !s.config.Server.LiveReload {
		http.ServeFile(w, r, name)
		return
	}

	doc, err := os.ReadFile(name)
	if err != nil {
		s.logger.Warn(r.Context(), err, "Failed to read page", "path", name)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Cache-Control", "no-cache")
	http.ServeContent(w, r, name, info.ModTime(), bytes.NewReader(InjectScript(doc, reloadScript)))
}

// resolve maps a request path to a file under the output directory. The
// cleaned path never climbs above it.
func (s *Server) resolve(urlPath string) string {
	clean := path.Clean("/" + urlPath)
	return filepath.Join(s.config.OutputPath(), filepath.FromSlash(clean))
}

func (s *Server) serveOverlay(w http.ResponseWriter, r *http.Request, failures []build.Result) {
	script := ""
	if s.config.Server.LiveReload {
		script = reloadScript
	}

	var buf bytes.Buffer
	if err := Overlay(failures, script).Render(r.Context(), &buf); err != nil {
		s.logger.Error(r.Context(), err, "Failed to render overlay")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusInternalServerError)
	if r.Method != http.MethodHead {
		_, _ = w.Write(buf.Bytes())
	}
}
