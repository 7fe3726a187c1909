package discussion

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kestrelworks/agentlab/internal/store"
	"go.uber.org/zap"
)

// DefaultPollInterval is the viewer's idle polling cadence.
const DefaultPollInterval = time.Second

// maxLineRunes bounds a rendered line's content for display.
const maxLineRunes = 200

// Viewer tails the discussion stream across all agents with a
// monotonically advancing cursor. It never mutates the store and
// tolerates any number of empty polls.
type Viewer struct {
	store  *store.Store
	logger *zap.Logger

	mu         sync.Mutex
	lastSeenID int64
}

// NewViewer creates a viewer with its cursor at the start of the stream.
func NewViewer(s *store.Store, logger *zap.Logger) *Viewer {
	return &Viewer{store: s, logger: logger}
}

// Line is one rendered discussion event.
type Line struct {
	ID        int64     `json:"id"`
	AgentID   int64     `json:"agent_id"`
	AgentName string    `json:"agent_name"`
	Timestamp time.Time `json:"timestamp"`
	Content   string    `json:"content"`
}

// Poll returns the discussion events written since the previous poll,
// oldest first, and advances the cursor past them. An empty result is
// normal, not an error.
func (v *Viewer) Poll(ctx context.Context) ([]Line, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	rows, err := v.store.TailDiscussion(ctx, v.lastSeenID, 0)
	if err != nil {
		return nil, fmt.Errorf("poll discussion: %w", err)
	}

	lines := make([]Line, 0, len(rows))
	for _, row := range rows {
		lines = append(lines, Line{
			ID:        row.ID,
			AgentID:   row.AgentID,
			AgentName: row.AgentName,
			Timestamp: row.Timestamp,
			Content:   row.Content,
		})
		if row.ID > v.lastSeenID {
			v.lastSeenID = row.ID
		}
	}
	return lines, nil
}

// Cursor returns the highest event id observed so far.
func (v *Viewer) Cursor() int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastSeenID
}

// Run polls until ctx is cancelled, handing each new line to fn in
// order. Poll errors are logged and the loop keeps going.
func (v *Viewer) Run(ctx context.Context, interval time.Duration, fn func(Line)) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			lines, err := v.Poll(ctx)
			if err != nil {
				v.logger.Warn("viewer poll failed", zap.Error(err))
				continue
			}
			for _, l := range lines {
				fn(l)
			}
		}
	}
}

// Format renders a line for terminal display.
func Format(l Line) string {
	content := l.Content
	if runes := []rune(content); len(runes) > maxLineRunes {
		content = string(runes[:maxLineRunes]) + "..."
	}
	return fmt.Sprintf("[%s] %s: %s", l.Timestamp.Local().Format("15:04:05"), l.AgentName, content)
}
