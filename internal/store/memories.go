package store

import (
	"context"
	"fmt"
	"time"
)

// Memory type tags written by the engine. The tag is opaque to storage and
// retrieval; only the viewer filters on TypeDiscussion.
const (
	TypeUserInput     = "user_input"
	TypeAgentResponse = "agent_response"
	TypeInteraction   = "interaction"
	TypeWebContent    = "web_content"
	TypeDiscussion    = "discussion"
)

// Memory is one immutable event in an agent's experience log.
type Memory struct {
	ID             int64     `json:"id"`
	AgentID        int64     `json:"agent_id"`
	Type           string    `json:"type"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
	EmotionalState string    `json:"emotional_state"`
	Relevance      float64   `json:"relevance"`
}

// MemoryParams holds the caller-supplied fields of a new memory.
// EmotionalState defaults to "neutral" and Relevance to 0.5 when zero.
type MemoryParams struct {
	AgentID        int64
	Type           string
	Content        string
	EmotionalState string
	// Relevance in (0.0, 1.0]. The zero value means unset and is stored
	// as 0.5; an explicit 0.0 is not representable.
	Relevance float64
}

// Timestamps are stored as fixed-width UTC text so lexical order inside
// SQLite matches chronological order. RFC3339Nano would trim trailing
// zeros and break that.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

// AddMemory appends one memory row. The owning agent is verified inside
// the insert transaction; an unknown agent yields ErrNotFound.
func (s *Store) AddMemory(ctx context.Context, p MemoryParams) (int64, error) {
	if p.EmotionalState == "" {
		p.EmotionalState = "neutral"
	}
	if p.Relevance == 0 {
		p.Relevance = 0.5
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("add memory: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM agents WHERE id = ?`, p.AgentID).Scan(&exists); err != nil {
		return 0, fmt.Errorf("add memory for %d: %w", p.AgentID, err)
	}
	if exists == 0 {
		return 0, ErrNotFound
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO memories (agent_id, type, content, timestamp, emotional_state, relevance)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.AgentID, p.Type, p.Content, time.Now().UTC().Format(tsLayout),
		p.EmotionalState, p.Relevance)
	if err != nil {
		return 0, fmt.Errorf("add memory for %d: %w", p.AgentID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("add memory for %d: %w", p.AgentID, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("add memory for %d: %w", p.AgentID, err)
	}
	return id, nil
}

// RecentMemories returns the agent's newest memories first, at most limit
// rows, ties on timestamp broken by insertion order.
func (s *Store) RecentMemories(ctx context.Context, agentID int64, limit int) ([]*Memory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent_id, type, content, timestamp, emotional_state, relevance
		FROM memories WHERE agent_id = ?
		ORDER BY timestamp DESC, id DESC LIMIT ?`, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent memories for %d: %w", agentID, err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// SearchMemories returns the agent's newest memories whose content
// contains substr, case-insensitively. This is a naive substring match,
// kept as the documented retrieval contract.
func (s *Store) SearchMemories(ctx context.Context, agentID int64, substr string, limit int) ([]*Memory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent_id, type, content, timestamp, emotional_state, relevance
		FROM memories
		WHERE agent_id = ? AND content LIKE '%' || ? || '%'
		ORDER BY timestamp DESC, id DESC LIMIT ?`, agentID, substr, limit)
	if err != nil {
		return nil, fmt.Errorf("search memories for %d: %w", agentID, err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// DiscussionLine is one discussion memory joined with its speaker's name.
type DiscussionLine struct {
	Memory
	AgentName string `json:"agent_name"`
}

// TailDiscussion returns discussion-typed memories across all agents with
// id greater than afterID, oldest first. A zero limit means no cap.
func (s *Store) TailDiscussion(ctx context.Context, afterID int64, limit int) ([]*DiscussionLine, error) {
	q := `
		SELECT m.id, m.agent_id, m.type, m.content, m.timestamp,
		       m.emotional_state, m.relevance, a.name
		FROM memories m JOIN agents a ON a.id = m.agent_id
		WHERE m.type = ? AND m.id > ?
		ORDER BY m.timestamp ASC, m.id ASC`
	args := []any{TypeDiscussion, afterID}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("tail discussion after %d: %w", afterID, err)
	}
	defer rows.Close()

	var lines []*DiscussionLine
	for rows.Next() {
		var l DiscussionLine
		var ts string
		if err := rows.Scan(&l.ID, &l.AgentID, &l.Type, &l.Content, &ts,
			&l.EmotionalState, &l.Relevance, &l.AgentName); err != nil {
			return nil, fmt.Errorf("scan discussion line: %w", err)
		}
		l.Timestamp, err = time.Parse(tsLayout, ts)
		if err != nil {
			return nil, fmt.Errorf("parse timestamp %q: %w", ts, err)
		}
		lines = append(lines, &l)
	}
	return lines, rows.Err()
}

// CountMemories returns the number of memory rows owned by the agent.
func (s *Store) CountMemories(ctx context.Context, agentID int64) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM memories WHERE agent_id = ?`, agentID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count memories for %d: %w", agentID, err)
	}
	return n, nil
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanMemories(rows rowScanner) ([]*Memory, error) {
	var memories []*Memory
	for rows.Next() {
		var m Memory
		var ts string
		if err := rows.Scan(&m.ID, &m.AgentID, &m.Type, &m.Content, &ts,
			&m.EmotionalState, &m.Relevance); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		var err error
		m.Timestamp, err = time.Parse(tsLayout, ts)
		if err != nil {
			return nil, fmt.Errorf("parse timestamp %q: %w", ts, err)
		}
		memories = append(memories, &m)
	}
	return memories, rows.Err()
}
