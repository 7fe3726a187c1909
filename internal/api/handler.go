// Package api exposes the engine over a small REST surface.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/kestrelworks/agentlab/internal/agent"
	"github.com/kestrelworks/agentlab/internal/discussion"
	"github.com/kestrelworks/agentlab/internal/provider"
	"github.com/kestrelworks/agentlab/internal/store"
	"go.uber.org/zap"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	store  *store.Store
	engine *agent.Engine
	runner *discussion.Runner
	logger *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(s *store.Store, engine *agent.Engine, runner *discussion.Runner, logger *zap.Logger) *Handler {
	return &Handler{store: s, engine: engine, runner: runner, logger: logger}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)

		r.Get("/agents", h.listAgents)
		r.Post("/agents", h.createAgent)
		r.Get("/agents/{id}", h.getAgent)
		r.Delete("/agents/{id}", h.deleteAgent)
		r.Put("/agents/{id}/position", h.updatePosition)
		r.Get("/agents/{id}/memories", h.listMemories)
		r.Get("/agents/{id}/reflections", h.listReflections)
		r.Post("/agents/{id}/talk", h.talk)

		r.Post("/interactions", h.pairwiseInteraction)

		r.Post("/discussions", h.startDiscussion)
		r.Get("/discussions", h.listDiscussions)
		r.Delete("/discussions/{id}", h.stopDiscussion)
		r.Get("/discussions/tail", h.tailDiscussion)
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) listAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := h.store.ListAgents(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	if agents == nil {
		agents = []*store.Agent{}
	}
	writeJSON(w, http.StatusOK, agents)
}

type createAgentRequest struct {
	Name string  `json:"name"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

func (h *Handler) createAgent(w http.ResponseWriter, r *http.Request) {
	var req createAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	id, err := h.store.CreateAgent(r.Context(), req.Name, req.X, req.Y)
	if err != nil {
		h.writeError(w, err)
		return
	}
	a, err := h.store.GetAgent(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (h *Handler) getAgent(w http.ResponseWriter, r *http.Request) {
	id, ok := h.agentID(w, r)
	if !ok {
		return
	}
	a, err := h.store.GetAgent(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) deleteAgent(w http.ResponseWriter, r *http.Request) {
	id, ok := h.agentID(w, r)
	if !ok {
		return
	}
	deleted, err := h.store.DeleteAgent(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": deleted})
}

type positionRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (h *Handler) updatePosition(w http.ResponseWriter, r *http.Request) {
	id, ok := h.agentID(w, r)
	if !ok {
		return
	}
	var req positionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := h.store.UpdatePosition(r.Context(), id, req.X, req.Y); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) listMemories(w http.ResponseWriter, r *http.Request) {
	id, ok := h.agentID(w, r)
	if !ok {
		return
	}
	if _, err := h.store.GetAgent(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	memories, err := h.store.RecentMemories(r.Context(), id, queryLimit(r, 20))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if memories == nil {
		memories = []*store.Memory{}
	}
	writeJSON(w, http.StatusOK, memories)
}

func (h *Handler) listReflections(w http.ResponseWriter, r *http.Request) {
	id, ok := h.agentID(w, r)
	if !ok {
		return
	}
	if _, err := h.store.GetAgent(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	reflections, err := h.store.RecentReflections(r.Context(), id, queryLimit(r, 20))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if reflections == nil {
		reflections = []*store.Reflection{}
	}
	writeJSON(w, http.StatusOK, reflections)
}

type talkRequest struct {
	Input string `json:"input"`
}

func (h *Handler) talk(w http.ResponseWriter, r *http.Request) {
	id, ok := h.agentID(w, r)
	if !ok {
		return
	}
	var req talkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	resp, err := h.engine.Talk(r.Context(), id, req.Input)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"response": resp})
}

type interactionRequest struct {
	AgentA    int64 `json:"agent_a"`
	AgentB    int64 `json:"agent_b"`
	Exchanges int   `json:"exchanges"`
}

func (h *Handler) pairwiseInteraction(w http.ResponseWriter, r *http.Request) {
	var req interactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.Exchanges <= 0 {
		req.Exchanges = 1
	}

	result, err := h.engine.PairwiseInteraction(r.Context(), req.AgentA, req.AgentB, req.Exchanges)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type startDiscussionRequest struct {
	AgentIDs []int64 `json:"agent_ids"`
	TopicURL string  `json:"topic_url"`
}

func (h *Handler) startDiscussion(w http.ResponseWriter, r *http.Request) {
	var req startDiscussionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	id, err := h.runner.Start(r.Context(), req.AgentIDs, req.TopicURL)
	if err != nil {
		if errors.Is(err, discussion.ErrTooFewAgents) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *Handler) listDiscussions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"active": h.runner.Active()})
}

func (h *Handler) stopDiscussion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	stopped := h.runner.Stop(id)
	writeJSON(w, http.StatusOK, map[string]bool{"stopped": stopped})
}

func (h *Handler) tailDiscussion(w http.ResponseWriter, r *http.Request) {
	after, _ := strconv.ParseInt(r.URL.Query().Get("after"), 10, 64)
	lines, err := h.store.TailDiscussion(r.Context(), after, queryLimit(r, 100))
	if err != nil {
		h.writeError(w, err)
		return
	}

	next := after
	for _, l := range lines {
		if l.ID > next {
			next = l.ID
		}
	}
	if lines == nil {
		lines = []*store.DiscussionLine{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"lines": lines, "next": next})
}

// writeError maps the error taxonomy onto status codes: unknown ids are
// 404, capability failures 502, everything else 500.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var capErr *provider.CapabilityError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.As(err, &capErr):
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (h *Handler) agentID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid agent id"})
		return 0, false
	}
	return id, true
}

func queryLimit(r *http.Request, def int) int {
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
