package repository

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"tradingagent/internal/models"
)

var (
	ErrAgentNotFound = errors.New("agent not found")
)

// AgentRepository - работа с таблицей agents.
type AgentRepository struct {
	db *sql.DB
}

func NewAgentRepository(db *sql.DB) *AgentRepository {
	return &AgentRepository{db: db}
}

// Create создает агента. groupID=nil означает отсутствие группы.
// Возвращает ErrGroupNotFound если указанная группа не существует.
func (r *AgentRepository) Create(name, kind string, config json.RawMessage, groupID *int) (*models.Agent, error) {
	if groupID != nil {
		if _, err := (&GroupRepository{db: r.db}).GetByID(*groupID); err != nil {
			if errors.Is(err, ErrGroupNotFound) {
				return nil, ErrGroupNotFound
			}
			return nil, err
		}
	}

	query := `
		INSERT INTO agents (name, kind, config, status, status_message, group_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, '', $5, $6, $6)
		RETURNING id`

	now := time.Now()
	agent := &models.Agent{
		Name:      name,
		Kind:      kind,
		Config:    config,
		Status:    models.AgentStatusCreated,
		GroupID:   groupID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := r.db.QueryRow(query, name, kind, []byte(config), models.AgentStatusCreated, groupID, now).Scan(&agent.ID)
	if err != nil {
		return nil, err
	}

	return agent, nil
}

func (r *AgentRepository) GetByID(id int) (*models.Agent, error) {
	query := `
		SELECT id, name, kind, config, status, status_message, group_id, created_at, updated_at
		FROM agents
		WHERE id = $1`

	agent := &models.Agent{}
	var rawConfig []byte
	err := r.db.QueryRow(query, id).Scan(
		&agent.ID, &agent.Name, &agent.Kind, &rawConfig, &agent.Status,
		&agent.StatusMessage, &agent.GroupID, &agent.CreatedAt, &agent.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAgentNotFound
		}
		return nil, err
	}
	agent.Config = rawConfig

	return agent, nil
}

func (r *AgentRepository) List(skip, limit int) ([]*models.Agent, error) {
	query := `
		SELECT id, name, kind, config, status, status_message, group_id, created_at, updated_at
		FROM agents
		ORDER BY id
		OFFSET $1 LIMIT $2`

	return r.queryAgents(query, skip, limit)
}

func (r *AgentRepository) ListInGroup(groupID int) ([]*models.Agent, error) {
	query := `
		SELECT id, name, kind, config, status, status_message, group_id, created_at, updated_at
		FROM agents
		WHERE group_id = $1
		ORDER BY id`

	return r.queryAgents(query, groupID)
}

func (r *AgentRepository) queryAgents(query string, args ...interface{}) ([]*models.Agent, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agents []*models.Agent
	for rows.Next() {
		agent := &models.Agent{}
		var rawConfig []byte
		if err := rows.Scan(
			&agent.ID, &agent.Name, &agent.Kind, &rawConfig, &agent.Status,
			&agent.StatusMessage, &agent.GroupID, &agent.CreatedAt, &agent.UpdatedAt,
		); err != nil {
			return nil, err
		}
		agent.Config = rawConfig
		agents = append(agents, agent)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return agents, nil
}

// Update обновляет имя/конфиг/группу. Kind никогда не меняется - иммутабелен
// после создания. clearGroup=true отсоединяет агента от любой группы,
// игнорируя groupID.
func (r *AgentRepository) Update(id int, name *string, config json.RawMessage, groupID *int, clearGroup bool) (*models.Agent, error) {
	existing, err := r.GetByID(id)
	if err != nil {
		return nil, err
	}

	newName := existing.Name
	if name != nil {
		newName = *name
	}
	newConfig := existing.Config
	if config != nil {
		newConfig = config
	}
	newGroupID := existing.GroupID
	if clearGroup {
		newGroupID = nil
	} else if groupID != nil {
		if _, err := (&GroupRepository{db: r.db}).GetByID(*groupID); err != nil {
			if errors.Is(err, ErrGroupNotFound) {
				return nil, ErrGroupNotFound
			}
			return nil, err
		}
		newGroupID = groupID
	}

	query := `
		UPDATE agents
		SET name = $1, config = $2, group_id = $3, updated_at = $4
		WHERE id = $5`

	now := time.Now()
	if _, err := r.db.Exec(query, newName, []byte(newConfig), newGroupID, now, id); err != nil {
		return nil, err
	}

	existing.Name = newName
	existing.Config = newConfig
	existing.GroupID = newGroupID
	existing.UpdatedAt = now

	return existing, nil
}

// UpdateStatus обновляет статус и сообщение. message=="" всегда очищает
// status_message (симметрично crud.update_agent_status оригинала - поле
// не оставляет устаревшее сообщение от предыдущего статуса).
func (r *AgentRepository) UpdateStatus(id int, status, message string) (*models.Agent, error) {
	query := `
		UPDATE agents
		SET status = $1, status_message = $2, updated_at = $3
		WHERE id = $4`

	now := time.Now()
	result, err := r.db.Exec(query, status, message, now, id)
	if err != nil {
		return nil, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rowsAffected == 0 {
		return nil, ErrAgentNotFound
	}

	return r.GetByID(id)
}

// Delete удаляет агента. Сделки каскадно удаляются на уровне БД (FK
// trades.agent_id ON DELETE CASCADE).
func (r *AgentRepository) Delete(id int) (bool, error) {
	result, err := r.db.Exec(`DELETE FROM agents WHERE id = $1`, id)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rowsAffected > 0, nil
}
