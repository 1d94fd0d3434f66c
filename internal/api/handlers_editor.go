package api

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MJE43/idleforge/internal/blueprint"
)

// mutate runs an editor operation and answers with the resulting blueprint.
func (s *Server) mutate(w http.ResponseWriter, r *http.Request, action string, status int, fn func() error) {
	err := fn()
	s.auditMutation(r, action, "blueprint", err)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, status, s.editor.Blueprint())
}

func addItem[T any](s *Server, w http.ResponseWriter, r *http.Request, action string, fn func(T) error) {
	var item T
	if !s.decodeJSON(w, r, &item) {
		return
	}
	s.mutate(w, r, action, http.StatusCreated, func() error { return fn(item) })
}

// updateItem decodes a component and applies the id from the path to it.
func updateItem[T any](s *Server, w http.ResponseWriter, r *http.Request, action string, setID func(*T, string), fn func(T) error) {
	var item T
	if !s.decodeJSON(w, r, &item) {
		return
	}
	setID(&item, chi.URLParam(r, "id"))
	s.mutate(w, r, action, http.StatusOK, func() error { return fn(item) })
}

func (s *Server) removeItem(w http.ResponseWriter, r *http.Request, action string, fn func(string) error) {
	id := chi.URLParam(r, "id")
	s.mutate(w, r, action, http.StatusOK, func() error { return fn(id) })
}

func (s *Server) handleGetBlueprint(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.editor.Blueprint())
}

// handlePutBlueprint replaces the blueprint. Older documents are migrated.
func (s *Server) handlePutBlueprint(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.errorHandler.HandleValidationError(w, r, "body", err.Error())
		return
	}
	bp, err := blueprint.Decode(raw)
	if err != nil {
		s.auditMutation(r, "load_blueprint", "blueprint", err)
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.mutate(w, r, "load_blueprint", http.StatusOK, func() error { return s.editor.Load(bp) })
}

func (s *Server) handleResetBlueprint(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, "reset_blueprint", http.StatusOK, func() error {
		s.editor.Reset()
		return nil
	})
}

func (s *Server) handleBlueprintSchema(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, blueprint.Schema())
}

func (s *Server) handleSetTitle(w http.ResponseWriter, r *http.Request) {
	var req TitleRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	s.mutate(w, r, "set_title", http.StatusOK, func() error { return s.editor.SetGameTitle(req.Title) })
}

func (s *Server) handleSetSettings(w http.ResponseWriter, r *http.Request) {
	var settings blueprint.Settings
	if !s.decodeJSON(w, r, &settings) {
		return
	}
	s.mutate(w, r, "set_settings", http.StatusOK, func() error { return s.editor.SetSettings(settings) })
}

func (s *Server) handleResourceNames(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.editor.ResourceNames())
}

func (s *Server) handleAddResource(w http.ResponseWriter, r *http.Request) {
	addItem(s, w, r, "add_resource", s.editor.AddResource)
}

func (s *Server) handleUpdateResource(w http.ResponseWriter, r *http.Request) {
	updateItem(s, w, r, "update_resource", func(v *blueprint.Resource, id string) { v.ID = id }, s.editor.UpdateResource)
}

func (s *Server) handleRemoveResource(w http.ResponseWriter, r *http.Request) {
	s.removeItem(w, r, "remove_resource", s.editor.RemoveResource)
}

func (s *Server) handleAddGenerator(w http.ResponseWriter, r *http.Request) {
	addItem(s, w, r, "add_generator", s.editor.AddGenerator)
}

func (s *Server) handleUpdateGenerator(w http.ResponseWriter, r *http.Request) {
	updateItem(s, w, r, "update_generator", func(v *blueprint.Generator, id string) { v.ID = id }, s.editor.UpdateGenerator)
}

func (s *Server) handleRemoveGenerator(w http.ResponseWriter, r *http.Request) {
	s.removeItem(w, r, "remove_generator", s.editor.RemoveGenerator)
}

func (s *Server) handleAddUpgrade(w http.ResponseWriter, r *http.Request) {
	addItem(s, w, r, "add_upgrade", s.editor.AddUpgrade)
}

func (s *Server) handleUpdateUpgrade(w http.ResponseWriter, r *http.Request) {
	updateItem(s, w, r, "update_upgrade", func(v *blueprint.Upgrade, id string) { v.ID = id }, s.editor.UpdateUpgrade)
}

func (s *Server) handleRemoveUpgrade(w http.ResponseWriter, r *http.Request) {
	s.removeItem(w, r, "remove_upgrade", s.editor.RemoveUpgrade)
}

func (s *Server) handleAddTier(w http.ResponseWriter, r *http.Request) {
	addItem(s, w, r, "add_tier", s.editor.AddTier)
}

func (s *Server) handleUpdateTier(w http.ResponseWriter, r *http.Request) {
	updateItem(s, w, r, "update_tier", func(v *blueprint.Tier, id string) { v.ID = id }, s.editor.UpdateTier)
}

func (s *Server) handleRemoveTier(w http.ResponseWriter, r *http.Request) {
	s.removeItem(w, r, "remove_tier", s.editor.RemoveTier)
}

func (s *Server) handleAddTierItem(w http.ResponseWriter, r *http.Request) {
	var req TierItemRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	tierID := chi.URLParam(r, "id")
	s.mutate(w, r, "add_tier_item", http.StatusOK, func() error {
		return s.editor.AddItemToTier(tierID, req.Kind, req.ItemID)
	})
}

func (s *Server) handleRemoveTierItem(w http.ResponseWriter, r *http.Request) {
	tierID := chi.URLParam(r, "id")
	kind := blueprint.ItemKind(chi.URLParam(r, "kind"))
	item := chi.URLParam(r, "item")
	s.mutate(w, r, "remove_tier_item", http.StatusOK, func() error {
		return s.editor.RemoveItemFromTier(tierID, kind, item)
	})
}

func (s *Server) handleAddAutomation(w http.ResponseWriter, r *http.Request) {
	addItem(s, w, r, "add_automation", s.editor.AddAutomation)
}

func (s *Server) handleUpdateAutomation(w http.ResponseWriter, r *http.Request) {
	updateItem(s, w, r, "update_automation", func(v *blueprint.Automation, id string) { v.ID = id }, s.editor.UpdateAutomation)
}

func (s *Server) handleRemoveAutomation(w http.ResponseWriter, r *http.Request) {
	s.removeItem(w, r, "remove_automation", s.editor.RemoveAutomation)
}
