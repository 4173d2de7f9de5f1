package repository

import (
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"tradingagent/internal/models"
)

var (
	ErrGroupNotFound     = errors.New("group not found")
	ErrGroupDuplicateName = errors.New("group name already exists")
	ErrGroupNotEmpty     = errors.New("group still owns agents")
)

// pqUniqueViolation - код ошибки уникальности Postgres (23505).
const pqUniqueViolation = "23505"

// GroupRepository - работа с таблицей agent_groups.
type GroupRepository struct {
	db *sql.DB
}

func NewGroupRepository(db *sql.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

func (r *GroupRepository) Create(name, description string) (*models.AgentGroup, error) {
	query := `
		INSERT INTO agent_groups (name, description, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		RETURNING id`

	now := time.Now()
	group := &models.AgentGroup{Name: name, Description: description, CreatedAt: now, UpdatedAt: now}

	err := r.db.QueryRow(query, name, description, now).Scan(&group.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrGroupDuplicateName
		}
		return nil, err
	}

	return group, nil
}

func (r *GroupRepository) GetByID(id int) (*models.AgentGroup, error) {
	query := `SELECT id, name, description, created_at, updated_at FROM agent_groups WHERE id = $1`

	group := &models.AgentGroup{}
	err := r.db.QueryRow(query, id).Scan(&group.ID, &group.Name, &group.Description, &group.CreatedAt, &group.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrGroupNotFound
		}
		return nil, err
	}

	return group, nil
}

func (r *GroupRepository) GetByName(name string) (*models.AgentGroup, error) {
	query := `SELECT id, name, description, created_at, updated_at FROM agent_groups WHERE name = $1`

	group := &models.AgentGroup{}
	err := r.db.QueryRow(query, name).Scan(&group.ID, &group.Name, &group.Description, &group.CreatedAt, &group.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrGroupNotFound
		}
		return nil, err
	}

	return group, nil
}

func (r *GroupRepository) List(skip, limit int) ([]*models.AgentGroup, error) {
	query := `
		SELECT id, name, description, created_at, updated_at
		FROM agent_groups
		ORDER BY id
		OFFSET $1 LIMIT $2`

	rows, err := r.db.Query(query, skip, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []*models.AgentGroup
	for rows.Next() {
		group := &models.AgentGroup{}
		if err := rows.Scan(&group.ID, &group.Name, &group.Description, &group.CreatedAt, &group.UpdatedAt); err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return groups, nil
}

// Update обновляет имя и/или описание. name=nil или description=nil оставляет поле без изменений.
func (r *GroupRepository) Update(id int, name, description *string) (*models.AgentGroup, error) {
	existing, err := r.GetByID(id)
	if err != nil {
		return nil, err
	}

	newName := existing.Name
	if name != nil {
		newName = *name
	}
	newDescription := existing.Description
	if description != nil {
		newDescription = *description
	}

	query := `
		UPDATE agent_groups
		SET name = $1, description = $2, updated_at = $3
		WHERE id = $4`

	now := time.Now()
	_, err = r.db.Exec(query, newName, newDescription, now, id)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrGroupDuplicateName
		}
		return nil, err
	}

	existing.Name = newName
	existing.Description = newDescription
	existing.UpdatedAt = now

	return existing, nil
}

// Delete удаляет группу. Отказывает с ErrGroupNotEmpty, если за ней числится
// хотя бы один агент - согласование на уровне приложения, не через FK
// constraint, поскольку agents.group_id допускает SET NULL.
func (r *GroupRepository) Delete(id int) (bool, error) {
	var count int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM agents WHERE group_id = $1`, id).Scan(&count); err != nil {
		return false, err
	}
	if count > 0 {
		return false, ErrGroupNotEmpty
	}

	result, err := r.db.Exec(`DELETE FROM agent_groups WHERE id = $1`, id)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rowsAffected > 0, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pqUniqueViolation
	}
	return false
}
