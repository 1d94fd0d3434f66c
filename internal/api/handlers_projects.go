package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/MJE43/idleforge/internal/store"
)

// handleSaveProject stores the current editor blueprint as a new project.
func (s *Server) handleSaveProject(w http.ResponseWriter, r *http.Request) {
	var req SaveProjectRequest
	if r.ContentLength != 0 && !s.decodeJSON(w, r, &req) {
		return
	}
	p := &store.Project{Title: req.Title, Blueprint: s.editor.Blueprint()}
	err := s.db.SaveProject(p)
	s.auditMutation(r, "save_project", "project", err)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := store.ProjectsQuery{Title: q.Get("title")}

	for name, dst := range map[string]*int{"page": &query.Page, "perPage": &query.PerPage} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.errorHandler.HandleValidationError(w, r, name, "must be a non-negative integer")
			return
		}
		*dst = n
	}
	if query.PerPage > 200 {
		query.PerPage = 200
	}

	list, err := s.db.ListProjects(query)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.db.GetProject(chi.URLParam(r, "id"))
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

// handleUpdateProject overwrites a project with the current editor
// blueprint.
func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	var req SaveProjectRequest
	if r.ContentLength != 0 && !s.decodeJSON(w, r, &req) {
		return
	}
	p := &store.Project{ID: chi.URLParam(r, "id"), Title: req.Title, Blueprint: s.editor.Blueprint()}
	err := s.db.UpdateProject(p)
	s.auditMutation(r, "update_project", "project", err)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

// handleLoadProject replaces the editor blueprint with a stored project.
func (s *Server) handleLoadProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.db.GetProject(chi.URLParam(r, "id"))
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.mutate(w, r, "load_project", http.StatusOK, func() error { return s.editor.Load(p.Blueprint) })
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	err := s.db.DeleteProject(chi.URLParam(r, "id"))
	s.auditMutation(r, "delete_project", "project", err)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
