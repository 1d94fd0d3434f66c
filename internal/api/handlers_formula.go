package api

import (
	"net/http"

	"github.com/MJE43/idleforge/internal/formula"
)

func (s *Server) handleFormulaRegistry(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, FormulaRegistryResponse{
		Sources:    formula.Sources(),
		Operations: formula.Operations(),
	})
}

// handleEvaluateFormula previews a formula for the editor.
func (s *Server) handleEvaluateFormula(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	value := formula.Evaluate(req.Formula, formula.Vars{
		Self:       req.Level,
		Resources:  req.Resources,
		Generators: req.Generators,
		Upgrades:   req.Upgrades,
	})
	s.writeJSON(w, http.StatusOK, EvaluateResponse{
		Value:       value,
		Formatted:   value.Format(),
		Description: formula.Describe(req.Formula),
	})
}

// handleCheckFormula reports authoring problems, resolving references
// against the blueprint being edited.
func (s *Server) handleCheckFormula(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	issues := formula.Check(req.Formula, s.editor.Blueprint())
	if issues == nil {
		issues = []formula.Issue{}
	}
	s.writeJSON(w, http.StatusOK, CheckResponse{
		Valid:       len(issues) == 0,
		Issues:      issues,
		Description: formula.Describe(req.Formula),
	})
}
