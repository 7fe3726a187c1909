package store

import (
	"context"
	"fmt"
	"time"
)

// Reflection is one synthesized insight derived from recent memories.
type Reflection struct {
	ID        int64     `json:"id"`
	AgentID   int64     `json:"agent_id"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// AddReflection appends one reflection row for the agent.
func (s *Store) AddReflection(ctx context.Context, agentID int64, content string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("add reflection: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM agents WHERE id = ?`, agentID).Scan(&exists); err != nil {
		return 0, fmt.Errorf("add reflection for %d: %w", agentID, err)
	}
	if exists == 0 {
		return 0, ErrNotFound
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO reflections (agent_id, content, timestamp) VALUES (?, ?, ?)`,
		agentID, content, time.Now().UTC().Format(tsLayout))
	if err != nil {
		return 0, fmt.Errorf("add reflection for %d: %w", agentID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("add reflection for %d: %w", agentID, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("add reflection for %d: %w", agentID, err)
	}
	return id, nil
}

// RecentReflections returns the agent's newest reflections first, at most
// limit rows.
func (s *Store) RecentReflections(ctx context.Context, agentID int64, limit int) ([]*Reflection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent_id, content, timestamp
		FROM reflections WHERE agent_id = ?
		ORDER BY timestamp DESC, id DESC LIMIT ?`, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent reflections for %d: %w", agentID, err)
	}
	defer rows.Close()

	var reflections []*Reflection
	for rows.Next() {
		var r Reflection
		var ts string
		if err := rows.Scan(&r.ID, &r.AgentID, &r.Content, &ts); err != nil {
			return nil, fmt.Errorf("scan reflection: %w", err)
		}
		r.Timestamp, err = time.Parse(tsLayout, ts)
		if err != nil {
			return nil, fmt.Errorf("parse timestamp %q: %w", ts, err)
		}
		reflections = append(reflections, &r)
	}
	return reflections, rows.Err()
}

// CountReflections returns the number of reflection rows owned by the agent.
func (s *Store) CountReflections(ctx context.Context, agentID int64) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM reflections WHERE agent_id = ?`, agentID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count reflections for %d: %w", agentID, err)
	}
	return n, nil
}
