package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/MJE43/idleforge/internal/blueprint"
	"github.com/MJE43/idleforge/internal/config"
	"github.com/MJE43/idleforge/internal/export"
)

// handleExport downloads the playable HTML for the editor blueprint, or for
// a stored project when ?project= is given. Clients that accept brotli get a
// compressed body.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var bp *blueprint.GameBlueprint
	if id := r.URL.Query().Get("project"); id != "" {
		if s.db == nil {
			s.errorHandler.HandleValidationError(w, r, "project", "project storage is not configured")
			return
		}
		p, err := s.db.GetProject(id)
		if err != nil {
			s.errorHandler.HandleError(w, r, err)
			return
		}
		bp = p.Blueprint
	} else {
		bp = s.editor.Blueprint()
	}

	art, err := s.exporter.Render(bp)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}

	etag := `"` + art.Hash + `"`
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	body := art.HTML
	if acceptsBrotli(r.Header.Get("Accept-Encoding")) {
		packed, err := export.Compress(art.HTML)
		if err != nil {
			s.errorHandler.HandleError(w, r, fmt.Errorf("compress export: %w", err))
			return
		}
		body = packed
		w.Header().Set("Content-Encoding", "br")
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", art.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.Header().Set("ETag", etag)
	w.Header().Set("Vary", "Accept-Encoding")
	w.Header().Set("X-Engine-Version", config.Version)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		s.logger.Printf("export_write_failed error=%v", err)
		return
	}
	s.logger.Printf("export_download filename=%s bytes=%d encoding=%s", art.Filename, len(body), w.Header().Get("Content-Encoding"))
}

func acceptsBrotli(header string) bool {
	for _, part := range strings.Split(header, ",") {
		enc, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		if strings.TrimSpace(enc) != "br" {
			continue
		}
		return strings.ReplaceAll(strings.TrimSpace(params), " ", "") != "q=0"
	}
	return false
}
