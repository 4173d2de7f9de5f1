package handlers

import (
	"encoding/json"
	"net/http"

	"tradingagent/internal/analyzer"
)

// AnalysisHandler выставляет on-demand запуск анализатора эффективности.
type AnalysisHandler struct {
	analyzer *analyzer.Analyzer
}

func NewAnalysisHandler(a *analyzer.Analyzer) *AnalysisHandler {
	return &AnalysisHandler{analyzer: a}
}

type analysisResult struct {
	Summary    string      `json:"summary"`
	Suggestion interface{} `json:"suggestion,omitempty"`
	Insight    interface{} `json:"insight,omitempty"`
}

func (h *AnalysisHandler) AnalyzeAgent(w http.ResponseWriter, r *http.Request) {
	id, err := idFromVars(r)
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid_id", err.Error())
		return
	}

	summary, suggestion, err := h.analyzer.AnalyzeAgentPerformance(r.Context(), id)
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	h.respondWithJSON(w, http.StatusOK, analysisResult{Summary: summary, Suggestion: suggestion})
}

func (h *AnalysisHandler) AnalyzeGroup(w http.ResponseWriter, r *http.Request) {
	id, err := idFromVars(r)
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid_id", err.Error())
		return
	}

	summary, insight, err := h.analyzer.AnalyzeGroupPerformance(r.Context(), id)
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	h.respondWithJSON(w, http.StatusOK, analysisResult{Summary: summary, Insight: insight})
}

func (h *AnalysisHandler) respondWithJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *AnalysisHandler) respondWithError(w http.ResponseWriter, status int, code, details string) {
	h.respondWithJSON(w, status, ErrorResponse{Error: code, Code: code, Details: details})
}
