package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/askdocs/askdocs/internal/retrieval"
)

type QueryHandler struct {
	generator    *retrieval.Generator
	orchestrator *retrieval.Orchestrator
}

func NewQueryHandler(g *retrieval.Generator, o *retrieval.Orchestrator) *QueryHandler {
	return &QueryHandler{generator: g, orchestrator: o}
}

type queryRequest struct {
	Question string `json:"question"`
}

func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Question == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "question required"})
		return
	}

	ans, err := h.generator.Ask(r.Context(), req.Question)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, ans)
}

func (h *QueryHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Question == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "question required"})
		return
	}

	ev, err := h.orchestrator.Search(r.Context(), req.Question)
	if err != nil {
		if errors.Is(err, retrieval.ErrNoMatch) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no matching documents"})
			return
		}
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"results":  ev.Results,
		"count":    len(ev.Results),
		"fallback": ev.Fallback,
	})
}
