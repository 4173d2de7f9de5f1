package repository

import (
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestNewAgentRepository(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	repo := NewAgentRepository(db)
	if repo == nil {
		t.Fatal("NewAgentRepository returned nil")
	}
	if repo.db != db {
		t.Error("db not set correctly")
	}
}

func TestAgentRepositoryCreate(t *testing.T) {
	cfg := json.RawMessage(`{"symbol":"BTCUSDT"}`)

	tests := []struct {
		name        string
		groupID     *int
		mockSetup   func(mock sqlmock.Sqlmock)
		expectError error
	}{
		{
			name:    "success without group",
			groupID: nil,
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`INSERT INTO agents`).
					WithArgs("grid-1", "grid", []byte(cfg), "created", nil, sqlmock.AnyArg()).
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
			},
			expectError: nil,
		},
		{
			name:    "group does not exist",
			groupID: intPtr(99),
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT .+ FROM agent_groups WHERE id = \$1`).
					WithArgs(99).
					WillReturnError(sql.ErrNoRows)
			},
			expectError: ErrGroupNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("failed to create mock: %v", err)
			}
			defer db.Close()

			tt.mockSetup(mock)

			repo := NewAgentRepository(db)
			_, err = repo.Create("grid-1", "grid", cfg, tt.groupID)

			if tt.expectError != nil {
				if !errors.Is(err, tt.expectError) {
					t.Errorf("expected %v, got %v", tt.expectError, err)
				}
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}

			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}

func TestAgentRepositoryGetByID(t *testing.T) {
	now := time.Now()
	cfg := json.RawMessage(`{"symbol":"BTCUSDT"}`)

	tests := []struct {
		name        string
		id          int
		mockSetup   func(mock sqlmock.Sqlmock)
		expectError error
	}{
		{
			name: "success",
			id:   1,
			mockSetup: func(mock sqlmock.Sqlmock) {
				rows := sqlmock.NewRows([]string{"id", "name", "kind", "config", "status", "status_message", "group_id", "created_at", "updated_at"}).
					AddRow(1, "grid-1", "grid", []byte(cfg), "running", "", nil, now, now)
				mock.ExpectQuery(`SELECT .+ FROM agents WHERE id = \$1`).
					WithArgs(1).
					WillReturnRows(rows)
			},
			expectError: nil,
		},
		{
			name: "not found",
			id:   42,
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT .+ FROM agents WHERE id = \$1`).
					WithArgs(42).
					WillReturnError(sql.ErrNoRows)
			},
			expectError: ErrAgentNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("failed to create mock: %v", err)
			}
			defer db.Close()

			tt.mockSetup(mock)

			repo := NewAgentRepository(db)
			agent, err := repo.GetByID(tt.id)

			if tt.expectError != nil {
				if !errors.Is(err, tt.expectError) {
					t.Errorf("expected %v, got %v", tt.expectError, err)
				}
			} else {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if agent.Kind != "grid" {
					t.Errorf("expected kind grid, got %s", agent.Kind)
				}
			}

			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}

func TestAgentRepositoryUpdateStatus(t *testing.T) {
	tests := []struct {
		name        string
		id          int
		mockSetup   func(mock sqlmock.Sqlmock)
		expectError error
	}{
		{
			name: "no rows affected",
			id:   1,
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`UPDATE agents`).
					WithArgs("error", "exchange client not ready", sqlmock.AnyArg(), 1).
					WillReturnResult(sqlmock.NewResult(0, 0))
			},
			expectError: ErrAgentNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("failed to create mock: %v", err)
			}
			defer db.Close()

			tt.mockSetup(mock)

			repo := NewAgentRepository(db)
			_, err = repo.UpdateStatus(tt.id, "error", "exchange client not ready")

			if !errors.Is(err, tt.expectError) {
				t.Errorf("expected %v, got %v", tt.expectError, err)
			}

			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}

func intPtr(i int) *int { return &i }
