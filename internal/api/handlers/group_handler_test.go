package handlers

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gorilla/mux"

	"tradingagent/internal/repository"
)

func newGroupHandler(t *testing.T) (*GroupHandler, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}

	h := NewGroupHandler(
		repository.NewGroupRepository(db),
		repository.NewAgentRepository(db),
		repository.NewTradeRepository(db),
	)
	return h, mock, func() { db.Close() }
}

func withIDVar(r *http.Request, id string) *http.Request {
	return mux.SetURLVars(r, map[string]string{"id": id})
}

func TestGroupHandler_CreateGroup_MissingName(t *testing.T) {
	h, _, done := newGroupHandler(t)
	defer done()

	body := bytes.NewBufferString(`{"description":"no name here"}`)
	req := httptest.NewRequest(http.MethodPost, "/groups", body)
	rec := httptest.NewRecorder()

	h.CreateGroup(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestGroupHandler_CreateGroup_InvalidBody(t *testing.T) {
	h, _, done := newGroupHandler(t)
	defer done()

	req := httptest.NewRequest(http.MethodPost, "/groups", bytes.NewBufferString(`not json`))
	rec := httptest.NewRecorder()

	h.CreateGroup(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestGroupHandler_CreateGroup_Success(t *testing.T) {
	h, mock, done := newGroupHandler(t)
	defer done()

	mock.ExpectQuery(`INSERT INTO agent_groups`).
		WithArgs("scalpers", "a group", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))

	body := bytes.NewBufferString(`{"name":"scalpers","description":"a group"}`)
	req := httptest.NewRequest(http.MethodPost, "/groups", body)
	rec := httptest.NewRecorder()

	h.CreateGroup(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestGroupHandler_GetGroup_InvalidID(t *testing.T) {
	h, _, done := newGroupHandler(t)
	defer done()

	req := withIDVar(httptest.NewRequest(http.MethodGet, "/groups/abc", nil), "abc")
	rec := httptest.NewRecorder()

	h.GetGroup(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestGroupHandler_GetGroup_NotFound(t *testing.T) {
	h, mock, done := newGroupHandler(t)
	defer done()

	mock.ExpectQuery(`SELECT .+ FROM agent_groups WHERE id = \$1`).
		WithArgs(42).
		WillReturnError(sql.ErrNoRows)

	req := withIDVar(httptest.NewRequest(http.MethodGet, "/groups/42", nil), "42")
	rec := httptest.NewRecorder()

	h.GetGroup(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Code != "not_found" {
		t.Errorf("expected not_found code, got %q", resp.Code)
	}
}

func TestGroupHandler_DeleteGroup_NotEmpty(t *testing.T) {
	h, mock, done := newGroupHandler(t)
	defer done()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM agents WHERE group_id = \$1`).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	req := withIDVar(httptest.NewRequest(http.MethodDelete, "/groups/3", nil), "3")
	rec := httptest.NewRecorder()

	h.DeleteGroup(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestGroupHandler_ListGroups_DefaultsPagination(t *testing.T) {
	h, mock, done := newGroupHandler(t)
	defer done()

	mock.ExpectQuery(`SELECT .+ FROM agent_groups`).
		WithArgs(0, 100).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description", "created_at", "updated_at"}))

	req := httptest.NewRequest(http.MethodGet, "/groups", nil)
	rec := httptest.NewRecorder()

	h.ListGroups(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestGroupHandler_ListGroups_CustomPagination(t *testing.T) {
	h, mock, done := newGroupHandler(t)
	defer done()

	mock.ExpectQuery(`SELECT .+ FROM agent_groups`).
		WithArgs(5, 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description", "created_at", "updated_at"}))

	req := httptest.NewRequest(http.MethodGet, "/groups?skip=5&limit=10", nil)
	rec := httptest.NewRecorder()

	h.ListGroups(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
