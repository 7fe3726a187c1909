// Package memory assembles the bounded context block injected into every
// generation call: a token-overlap filtered slice of recent memories plus
// the agent's latest reflections.
package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/kestrelworks/agentlab/internal/store"
	"go.uber.org/zap"
)

// Options bound the context window.
type Options struct {
	CandidateWindow int // recent memories considered for overlap
	MemoryLines     int // matched memories emitted
	ReflectionLines int // reflections emitted, unconditionally
}

// DefaultOptions mirrors the engine's historical window sizes.
func DefaultOptions() Options {
	return Options{CandidateWindow: 10, MemoryLines: 3, ReflectionLines: 3}
}

// Context is the text block pair primed into a generation call.
type Context struct {
	MemoryBlock     string
	ReflectionBlock string
}

// Retriever is the pure read path over the store.
type Retriever struct {
	store  *store.Store
	opts   Options
	logger *zap.Logger
}

// NewRetriever creates a retriever. Zero option fields fall back to defaults.
func NewRetriever(s *store.Store, opts Options, logger *zap.Logger) *Retriever {
	def := DefaultOptions()
	if opts.CandidateWindow <= 0 {
		opts.CandidateWindow = def.CandidateWindow
	}
	if opts.MemoryLines <= 0 {
		opts.MemoryLines = def.MemoryLines
	}
	if opts.ReflectionLines <= 0 {
		opts.ReflectionLines = def.ReflectionLines
	}
	return &Retriever{store: s, opts: opts, logger: logger}
}

// BuildContext selects memories from the recent candidate window that
// share at least one token with probe, keeps the newest MemoryLines of
// them (oldest first in the emitted block), and always appends the latest
// reflections. No matching memory yields an empty memory block, not an
// error.
func (r *Retriever) BuildContext(ctx context.Context, agentID int64, probe string) (Context, error) {
	candidates, err := r.store.RecentMemories(ctx, agentID, r.opts.CandidateWindow)
	if err != nil {
		return Context{}, fmt.Errorf("fetch candidates: %w", err)
	}

	probeTokens := tokenize(probe)
	var matched []*store.Memory // newest first, as returned by the store
	for _, m := range candidates {
		if overlaps(m.Content, probeTokens) {
			matched = append(matched, m)
		}
	}
	if len(matched) > r.opts.MemoryLines {
		matched = matched[:r.opts.MemoryLines]
	}
	// Emit chronologically: oldest of the kept matches first.
	for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
		matched[i], matched[j] = matched[j], matched[i]
	}

	reflections, err := r.store.RecentReflections(ctx, agentID, r.opts.ReflectionLines)
	if err != nil {
		return Context{}, fmt.Errorf("fetch reflections: %w", err)
	}

	c := Context{
		MemoryBlock:     FormatMemories(matched),
		ReflectionBlock: FormatReflections(reflections),
	}
	r.logger.Debug("built context",
		zap.Int64("agent", agentID),
		zap.Int("memories", len(matched)),
		zap.Int("reflections", len(reflections)))
	return c, nil
}

// FormatMemories renders memories one per line with a readable timestamp.
func FormatMemories(memories []*store.Memory) string {
	var b strings.Builder
	for i, m := range memories {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "- [%s] %s: %s",
			m.Timestamp.Format("2006-01-02 15:04:05"), m.Type, m.Content)
	}
	return b.String()
}

// FormatReflections renders reflections one per line.
func FormatReflections(reflections []*store.Reflection) string {
	var b strings.Builder
	for i, r := range reflections {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "- [%s] Reflection: %s",
			r.Timestamp.Format("2006-01-02 15:04:05"), r.Content)
	}
	return b.String()
}

func tokenize(s string) []string {
	return strings.Fields(strings.ToLower(s))
}

// overlaps reports whether content contains any of the probe tokens.
func overlaps(content string, probeTokens []string) bool {
	lower := strings.ToLower(content)
	for _, tok := range probeTokens {
		if strings.Contains(lower, tok) {
			return true
		}
	}
	return false
}
