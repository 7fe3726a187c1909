package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Agent is a persistent agent row.
type Agent struct {
	ID               int64   `json:"id"`
	Name             string  `json:"name"`
	XPosition        float64 `json:"x_position"`
	YPosition        float64 `json:"y_position"`
	InteractionCount int64   `json:"interaction_count"`
}

// CreateAgent inserts a new agent and returns its id.
func (s *Store) CreateAgent(ctx context.Context, name string, x, y float64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO agents (name, x_position, y_position) VALUES (?, ?, ?)`,
		name, x, y)
	if err != nil {
		return 0, fmt.Errorf("create agent %q: %w", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create agent %q: %w", name, err)
	}
	return id, nil
}

// GetAgent retrieves a single agent by id.
func (s *Store) GetAgent(ctx context.Context, id int64) (*Agent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, x_position, y_position, interaction_count
		FROM agents WHERE id = ?`, id)

	var a Agent
	err := row.Scan(&a.ID, &a.Name, &a.XPosition, &a.YPosition, &a.InteractionCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get agent %d: %w", id, err)
	}
	return &a, nil
}

// ListAgents returns all agents in creation order.
func (s *Store) ListAgents(ctx context.Context) ([]*Agent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, x_position, y_position, interaction_count
		FROM agents ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var agents []*Agent
	for rows.Next() {
		var a Agent
		if err := rows.Scan(&a.ID, &a.Name, &a.XPosition, &a.YPosition, &a.InteractionCount); err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		agents = append(agents, &a)
	}
	return agents, rows.Err()
}

// UpdatePosition moves an agent.
func (s *Store) UpdatePosition(ctx context.Context, id int64, x, y float64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE agents SET x_position = ?, y_position = ? WHERE id = ?`, x, y, id)
	if err != nil {
		return fmt.Errorf("update position %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update position %d: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAgent removes an agent together with all of its memories and
// reflections in a single transaction. Returns false when the agent did
// not exist; "delete if present" is not an error.
func (s *Store) DeleteAgent(ctx context.Context, id int64) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("delete agent %d: %w", id, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM reflections WHERE agent_id = ?`, id); err != nil {
		return false, fmt.Errorf("delete reflections for %d: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM memories WHERE agent_id = ?`, id); err != nil {
		return false, fmt.Errorf("delete memories for %d: %w", id, err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM agents WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete agent %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete agent %d: %w", id, err)
	}
	if n == 0 {
		return false, nil
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("delete agent %d: %w", id, err)
	}
	return true, nil
}

// IncrementInteractionCount bumps the agent's counter by one and returns
// the post-increment value. The single UPDATE keeps increment-then-check
// reflection scheduling atomic for callers holding the agent's lock.
func (s *Store) IncrementInteractionCount(ctx context.Context, id int64) (int64, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE agents SET interaction_count = interaction_count + 1
		WHERE id = ? RETURNING interaction_count`, id)

	var count int64
	err := row.Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("increment interaction count %d: %w", id, err)
	}
	return count, nil
}
