package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/dshills/ragflow/graph/store"
	"github.com/dshills/ragflow/rag"
)

// maxRequestBytes bounds a chat request body.
const maxRequestBytes = 64 << 10

// ChatRequest is the body of the chat endpoints.
type ChatRequest struct {
	Query     string `json:"query"`
	UserID    string `json:"user_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

func (c ChatRequest) toRAG() rag.Request {
	return rag.Request{Query: c.Query, UserID: c.UserID, SessionID: c.SessionID}
}

type errorBody struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorBody{Detail: detail})
}

// decodeChat reads and validates a chat request. It writes the error
// response itself and reports whether the caller should continue.
func (s *Server) decodeChat(w http.ResponseWriter, r *http.Request) (rag.Request, bool) {
	if s.runner == nil {
		writeError(w, http.StatusServiceUnavailable, "Agent not loaded. Please check server logs.")
		return rag.Request{}, false
	}
	var body ChatRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes))
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return rag.Request{}, false
	}
	req := body.toRAG()
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return rag.Request{}, false
	}
	return req, true
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"name":    "ragflow",
		"version": Version,
		"status":  "operational",
		"health":  "/health",
	})
}

type healthResponse struct {
	Status      string            `json:"status"`
	Timestamp   string            `json:"timestamp"`
	AgentLoaded bool              `json:"agent_loaded"`
	Version     string            `json:"version"`
	Checks      map[string]string `json:"checks,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:      "healthy",
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		AgentLoaded: s.runner != nil,
		Version:     Version,
	}
	if !resp.AgentLoaded {
		resp.Status = "degraded"
	}
	if len(s.checks) > 0 {
		resp.Checks = make(map[string]string, len(s.checks))
		for name, p := range s.checks {
			if err := p.Ping(r.Context()); err != nil {
				s.logger.Warn("health check failed", zap.String("check", name), zap.Error(err))
				resp.Checks[name] = "error: " + err.Error()
				resp.Status = "degraded"
				continue
			}
			resp.Checks[name] = "ok"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeChat(w, r)
	if !ok {
		return
	}
	resp, err := s.runner.Invoke(r.Context(), req)
	if err != nil {
		s.logger.Error("chat failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type llmMetrics struct {
	Calls        int64              `json:"calls"`
	InputTokens  int64              `json:"input_tokens"`
	OutputTokens int64              `json:"output_tokens"`
	TotalCostUSD float64            `json:"total_cost_usd"`
	CostByModel  map[string]float64 `json:"cost_by_model"`
}

type metricsResponse struct {
	rag.StatsSnapshot
	LLM           *llmMetrics `json:"llm,omitempty"`
	UptimeSeconds float64     `json:"uptime_seconds"`
	Timestamp     string      `json:"timestamp"`
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	resp := metricsResponse{
		StatsSnapshot: s.stats.Snapshot(),
		UptimeSeconds: time.Since(s.started).Seconds(),
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	}
	if s.costs != nil {
		in, out := s.costs.TokenUsage()
		resp.LLM = &llmMetrics{
			Calls:        s.costs.Calls(),
			InputTokens:  in,
			OutputTokens: out,
			TotalCostUSD: s.costs.TotalCost(),
			CostByModel:  s.costs.CostByModel(),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type runResponse struct {
	RunID string    `json:"run_id"`
	Step  int       `json:"step"`
	State rag.State `json:"state"`
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "run history is not enabled")
		return
	}
	runID := mux.Vars(r)["id"]
	state, step, err := s.history.LoadLatest(r.Context(), runID)
	if err != nil {
		s.historyError(w, runID, err)
		return
	}
	writeJSON(w, http.StatusOK, runResponse{RunID: runID, Step: step, State: state})
}

func (s *Server) handleRunSteps(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "run history is not enabled")
		return
	}
	runID := mux.Vars(r)["id"]
	steps, err := s.history.LoadSteps(r.Context(), runID)
	if err != nil {
		s.historyError(w, runID, err)
		return
	}
	writeJSON(w, http.StatusOK, steps)
}

func (s *Server) historyError(w http.ResponseWriter, runID string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("run %s not found", runID))
		return
	}
	s.logger.Error("history lookup failed", zap.String("run_id", runID), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "history lookup failed")
}
