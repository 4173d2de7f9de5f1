package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"tradingagent/internal/repository"
)

// GroupHandler отдает CRUD над agent_groups, а также членов группы и
// сводку P&L по ней.
type GroupHandler struct {
	groups *repository.GroupRepository
	agents *repository.AgentRepository
	trades *repository.TradeRepository
}

func NewGroupHandler(groups *repository.GroupRepository, agents *repository.AgentRepository, trades *repository.TradeRepository) *GroupHandler {
	return &GroupHandler{groups: groups, agents: agents, trades: trades}
}

type CreateGroupRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type UpdateGroupRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

func (h *GroupHandler) ListGroups(w http.ResponseWriter, r *http.Request) {
	skip, limit := paginationParams(r)

	groups, err := h.groups.List(skip, limit)
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	h.respondWithJSON(w, http.StatusOK, groups)
}

func (h *GroupHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req CreateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	if req.Name == "" {
		h.respondWithError(w, http.StatusBadRequest, "validation_error", "name is required")
		return
	}

	group, err := h.groups.Create(req.Name, req.Description)
	if err != nil {
		h.handleRepoError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusCreated, group)
}

func (h *GroupHandler) GetGroup(w http.ResponseWriter, r *http.Request) {
	id, err := idFromVars(r)
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid_id", err.Error())
		return
	}

	group, err := h.groups.GetByID(id)
	if err != nil {
		h.handleRepoError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, group)
}

func (h *GroupHandler) UpdateGroup(w http.ResponseWriter, r *http.Request) {
	id, err := idFromVars(r)
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid_id", err.Error())
		return
	}

	var req UpdateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	group, err := h.groups.Update(id, req.Name, req.Description)
	if err != nil {
		h.handleRepoError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, group)
}

func (h *GroupHandler) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	id, err := idFromVars(r)
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid_id", err.Error())
		return
	}

	deleted, err := h.groups.Delete(id)
	if err != nil {
		h.handleRepoError(w, err)
		return
	}
	if !deleted {
		h.respondWithError(w, http.StatusNotFound, "not_found", repository.ErrGroupNotFound.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *GroupHandler) GetGroupMembers(w http.ResponseWriter, r *http.Request) {
	id, err := idFromVars(r)
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid_id", err.Error())
		return
	}

	if _, err := h.groups.GetByID(id); err != nil {
		h.handleRepoError(w, err)
		return
	}

	members, err := h.agents.ListInGroup(id)
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	h.respondWithJSON(w, http.StatusOK, members)
}

func (h *GroupHandler) GetGroupPerformance(w http.ResponseWriter, r *http.Request) {
	id, err := idFromVars(r)
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid_id", err.Error())
		return
	}

	if _, err := h.groups.GetByID(id); err != nil {
		h.handleRepoError(w, err)
		return
	}

	members, err := h.agents.ListInGroup(id)
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	agentIDs := make([]int, len(members))
	for i, m := range members {
		agentIDs[i] = m.ID
	}

	summary, err := h.trades.GroupPnLSummary(id, agentIDs)
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	h.respondWithJSON(w, http.StatusOK, summary)
}

func (h *GroupHandler) handleRepoError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrGroupNotFound):
		h.respondWithError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, repository.ErrGroupDuplicateName):
		h.respondWithError(w, http.StatusConflict, "duplicate_name", err.Error())
	case errors.Is(err, repository.ErrGroupNotEmpty):
		h.respondWithError(w, http.StatusConflict, "group_not_empty", err.Error())
	default:
		h.respondWithError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func (h *GroupHandler) respondWithJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *GroupHandler) respondWithError(w http.ResponseWriter, status int, code, details string) {
	h.respondWithJSON(w, status, ErrorResponse{Error: code, Code: code, Details: details})
}

func idFromVars(r *http.Request) (int, error) {
	return strconv.Atoi(mux.Vars(r)["id"])
}

func paginationParams(r *http.Request) (skip, limit int) {
	skip = 0
	limit = 100

	if v := r.URL.Query().Get("skip"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			skip = n
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	return skip, limit
}
