package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"tradingagent/internal/manager"
	"tradingagent/internal/models"
	"tradingagent/internal/repository"
	"tradingagent/pkg/utils"
)

// AgentHandler отдает CRUD и жизненный цикл агентов. Старт/стоп делегируются
// менеджеру; персистентные операции - репозиторию.
type AgentHandler struct {
	agents  *repository.AgentRepository
	trades  *repository.TradeRepository
	manager *manager.Manager
}

func NewAgentHandler(agents *repository.AgentRepository, trades *repository.TradeRepository, mgr *manager.Manager) *AgentHandler {
	return &AgentHandler{agents: agents, trades: trades, manager: mgr}
}

type CreateAgentRequest struct {
	Name    string          `json:"name"`
	Kind    string          `json:"kind"`
	Config  json.RawMessage `json:"config"`
	GroupID *int            `json:"group_id,omitempty"`
}

type UpdateAgentRequest struct {
	Name       *string         `json:"name,omitempty"`
	Config     json.RawMessage `json:"config,omitempty"`
	GroupID    *int            `json:"group_id,omitempty"`
	ClearGroup bool            `json:"clear_group,omitempty"`
}

func (h *AgentHandler) ListAgents(w http.ResponseWriter, r *http.Request) {
	skip, limit := paginationParams(r)

	agents, err := h.agents.List(skip, limit)
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	h.respondWithJSON(w, http.StatusOK, agents)
}

func (h *AgentHandler) CreateAgent(w http.ResponseWriter, r *http.Request) {
	var req CreateAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	if req.Name == "" || req.Kind == "" {
		h.respondWithError(w, http.StatusBadRequest, "validation_error", "name and kind are required")
		return
	}
	if err := utils.ValidateOneOf(req.Kind, []string{models.AgentKindGrid, models.AgentKindArbitrage}); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "validation_error", "unsupported agent kind: "+req.Kind)
		return
	}

	agent, err := h.agents.Create(req.Name, req.Kind, req.Config, req.GroupID)
	if err != nil {
		h.handleRepoError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusCreated, agent)
}

// GetAgent возвращает агента, согласовав персистентный статус с тем, что
// реально отслеживает менеджер - до ответа клиенту.
func (h *AgentHandler) GetAgent(w http.ResponseWriter, r *http.Request) {
	id, err := idFromVars(r)
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid_id", err.Error())
		return
	}

	agent, err := h.agents.GetByID(id)
	if err != nil {
		h.handleRepoError(w, err)
		return
	}

	if corrected, message, needsFix := h.manager.ReconcileStatus(agent.ID, agent.Status); needsFix {
		updated, err := h.agents.UpdateStatus(agent.ID, corrected, message)
		if err == nil {
			agent = updated
		}
	}

	h.respondWithJSON(w, http.StatusOK, agent)
}

func (h *AgentHandler) UpdateAgent(w http.ResponseWriter, r *http.Request) {
	id, err := idFromVars(r)
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid_id", err.Error())
		return
	}

	var req UpdateAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	agent, err := h.agents.Update(id, req.Name, req.Config, req.GroupID, req.ClearGroup)
	if err != nil {
		h.handleRepoError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, agent)
}

func (h *AgentHandler) StartAgent(w http.ResponseWriter, r *http.Request) {
	id, err := idFromVars(r)
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid_id", err.Error())
		return
	}

	agent, err := h.agents.GetByID(id)
	if err != nil {
		h.handleRepoError(w, err)
		return
	}

	if h.manager.IsAgentRunning(id) {
		h.respondWithError(w, http.StatusConflict, "already_running", "agent is already running")
		return
	}

	if err := h.manager.StartAgentProcess(agent.ID, agent.Kind, agent.Config, agent.GroupID); err != nil {
		h.respondWithError(w, http.StatusConflict, "start_failed", err.Error())
		return
	}

	h.respondWithJSON(w, http.StatusOK, SuccessResponse{Message: "agent start requested"})
}

func (h *AgentHandler) StopAgent(w http.ResponseWriter, r *http.Request) {
	id, err := idFromVars(r)
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid_id", err.Error())
		return
	}

	if !h.manager.StopAgentProcess(id) {
		h.respondWithError(w, http.StatusNotFound, "not_running", "agent is not tracked as running")
		return
	}

	h.respondWithJSON(w, http.StatusOK, SuccessResponse{Message: "agent stop requested"})
}

// DeleteAgent останавливает агента (если запущен), затем удаляет его запись.
func (h *AgentHandler) DeleteAgent(w http.ResponseWriter, r *http.Request) {
	id, err := idFromVars(r)
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid_id", err.Error())
		return
	}

	h.manager.StopAgentProcess(id)

	deleted, err := h.agents.Delete(id)
	if err != nil {
		h.handleRepoError(w, err)
		return
	}
	if !deleted {
		h.respondWithError(w, http.StatusNotFound, "not_found", repository.ErrAgentNotFound.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *AgentHandler) GetAgentPerformance(w http.ResponseWriter, r *http.Request) {
	id, err := idFromVars(r)
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid_id", err.Error())
		return
	}

	summary, err := h.trades.AgentPnLSummary(id)
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	h.respondWithJSON(w, http.StatusOK, summary)
}

func (h *AgentHandler) GetAgentPnL(w http.ResponseWriter, r *http.Request) {
	h.GetAgentPerformance(w, r)
}

func (h *AgentHandler) handleRepoError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrAgentNotFound):
		h.respondWithError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, repository.ErrGroupNotFound):
		h.respondWithError(w, http.StatusBadRequest, "invalid_group", err.Error())
	default:
		h.respondWithError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func (h *AgentHandler) respondWithJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *AgentHandler) respondWithError(w http.ResponseWriter, status int, code, details string) {
	h.respondWithJSON(w, status, ErrorResponse{Error: code, Code: code, Details: details})
}
