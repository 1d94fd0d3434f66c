package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MJE43/idleforge/internal/blueprint"
	"github.com/MJE43/idleforge/internal/runtime"
	"github.com/MJE43/idleforge/internal/store"
)

// maxAdvanceTicks bounds a single advance request.
const maxAdvanceTicks = 100000

// handleCreateSession hydrates and starts a game.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if r.ContentLength != 0 && !s.decodeJSON(w, r, &req) {
		return
	}

	opts := []runtime.Option{runtime.WithEmitter(s.hub), runtime.WithLogger(s.runtimeLog)}
	var (
		bp    *blueprint.GameBlueprint
		saved *store.Save
	)
	if req.ProjectID != "" {
		if s.db == nil {
			s.errorHandler.HandleValidationError(w, r, "projectId", "project storage is not configured")
			return
		}
		p, err := s.db.GetProject(req.ProjectID)
		if err != nil {
			s.errorHandler.HandleError(w, r, err)
			return
		}
		bp = p.Blueprint
		if req.Resume {
			saved, err = s.db.LatestState(req.ProjectID)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				s.errorHandler.HandleError(w, r, err)
				return
			}
		}
		opts = append(opts, runtime.WithSaver(store.SessionSaver{DB: s.db, ProjectID: req.ProjectID}, s.autosave))
	} else {
		if req.Resume {
			s.errorHandler.HandleValidationError(w, r, "resume", "resume requires a projectId")
			return
		}
		bp = s.editor.Blueprint()
	}

	var state *runtime.State
	if saved != nil {
		state = saved.State
	}
	sess, err := s.sessions.Create(bp, state, opts...)
	s.auditMutation(r, "create_session", "session", err)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	if saved != nil && req.Offline {
		sess.CatchUp(time.Since(saved.CreatedAt))
	}
	if err := sess.Start(); err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}

	s.mu.Lock()
	s.projects[sess.ID()] = req.ProjectID
	s.mu.Unlock()

	s.logger.Printf("session_created session=%s project=%s resumed=%t request_id=%s",
		sess.ID(), req.ProjectID, saved != nil, middleware.GetReqID(r.Context()))
	s.writeJSON(w, http.StatusCreated, s.sessionResponse(sess))
}

func (s *Server) sessionResponse(sess *runtime.Session) SessionResponse {
	s.mu.Lock()
	project := s.projects[sess.ID()]
	s.mu.Unlock()
	return SessionResponse{ProjectID: project, Snapshot: sess.Snapshot()}
}

// snapshotOf serves initial snapshots to stream subscribers.
func (s *Server) snapshotOf(id string) (runtime.Snapshot, bool) {
	sess, err := s.sessions.Get(id)
	if err != nil {
		return runtime.Snapshot{}, false
	}
	return sess.Snapshot(), true
}

// session loads the session named in the path, writing a 404 when missing.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*runtime.Session, bool) {
	sess, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return nil, false
	}
	return sess, true
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	out := []SessionResponse{}
	for _, id := range s.sessions.List() {
		if sess, err := s.sessions.Get(id); err == nil {
			out = append(out, s.sessionResponse(sess))
		}
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, s.sessionResponse(sess))
}

func (s *Server) handleStopSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if sess.Status() != runtime.StatusRunning {
		apiErr := NewError(ErrTypeConflict, "Session is not running").
			WithRequestID(middleware.GetReqID(r.Context())).
			WithContext("status", sess.Status()).
			Build()
		s.errorHandler.writeErrorResponse(w, http.StatusConflict, apiErr)
		return
	}
	err := sess.Stop()
	s.auditMutation(r, "stop_session", "session", err)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.sessionResponse(sess))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := s.sessions.Remove(id)
	s.auditMutation(r, "delete_session", "session", err)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.mu.Lock()
	delete(s.projects, id)
	s.mu.Unlock()
	s.hub.CloseSession(id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAdvanceSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req AdvanceRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.Ticks <= 0 || req.Ticks > maxAdvanceTicks {
		s.errorHandler.HandleValidationError(w, r, "ticks", "must be between 1 and 100000")
		return
	}
	sess.Advance(req.Ticks)
	s.writeJSON(w, http.StatusOK, s.sessionResponse(sess))
}

func (s *Server) handlePurchaseGenerator(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "item")
	if !sess.Blueprint().HasGenerator(id) {
		s.errorHandler.HandleNotFound(w, r, "generator "+id)
		return
	}
	s.writeJSON(w, http.StatusOK, PurchaseResponse{
		Purchased: sess.PurchaseGenerator(id),
		Snapshot:  sess.Snapshot(),
	})
}

func (s *Server) handlePurchaseUpgrade(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "item")
	if !sess.Blueprint().HasUpgrade(id) {
		s.errorHandler.HandleNotFound(w, r, "upgrade "+id)
		return
	}
	s.writeJSON(w, http.StatusOK, PurchaseResponse{
		Purchased: sess.PurchaseUpgrade(id),
		Snapshot:  sess.Snapshot(),
	})
}

func (s *Server) handlePrestige(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "item")
	if _, found := sess.Blueprint().Tier(id); !found {
		s.errorHandler.HandleNotFound(w, r, "tier "+id)
		return
	}
	payout, done := sess.Prestige(id)
	s.auditMutation(r, "prestige", "session", nil)
	s.writeJSON(w, http.StatusOK, PrestigeResponse{
		Prestiged: done,
		Payout:    payout,
		Snapshot:  sess.Snapshot(),
	})
}

func (s *Server) handleSessionStream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.sessions.Get(id); err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.hub.Serve(w, r, id)
}
