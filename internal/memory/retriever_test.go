package memory

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kestrelworks/agentlab/internal/store"
	"go.uber.org/zap"
)

func newFixture(t *testing.T) (*store.Store, *Retriever, int64) {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "lab.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	id, err := s.CreateAgent(context.Background(), "Ada", 0, 0)
	if err != nil {
		t.Fatalf("create agent: %v", err)
	}
	return s, NewRetriever(s, Options{}, zap.NewNop()), id
}

func addMemory(t *testing.T, s *store.Store, agentID int64, content string) {
	t.Helper()
	_, err := s.AddMemory(context.Background(), store.MemoryParams{
		AgentID: agentID, Type: store.TypeInteraction, Content: content,
	})
	if err != nil {
		t.Fatalf("add memory: %v", err)
	}
}

func TestBuildContextCapsLines(t *testing.T) {
	s, r, id := newFixture(t)
	ctx := context.Background()

	// 20 memories, 8 of which mention the probe token.
	matching := 0
	for i := 0; i < 20; i++ {
		if i%3 == 0 && matching < 8 {
			addMemory(t, s, id, fmt.Sprintf("gardening note %d", i))
			matching++
		} else {
			addMemory(t, s, id, fmt.Sprintf("background event %d", i))
		}
	}
	for i := 0; i < 5; i++ {
		if _, err := s.AddReflection(ctx, id, fmt.Sprintf("insight %d", i)); err != nil {
			t.Fatalf("add reflection: %v", err)
		}
	}

	c, err := r.BuildContext(ctx, id, "Gardening tips")
	if err != nil {
		t.Fatalf("build context: %v", err)
	}

	memLines := strings.Split(c.MemoryBlock, "\n")
	if len(memLines) != 3 {
		t.Fatalf("got %d memory lines, want 3:\n%s", len(memLines), c.MemoryBlock)
	}
	// Only candidates inside the recent-10 window are eligible; the kept
	// matches are the newest ones, emitted oldest first.
	if !strings.Contains(memLines[len(memLines)-1], "gardening") {
		t.Errorf("last line should be the newest match: %q", memLines[len(memLines)-1])
	}
	for _, line := range memLines {
		if !strings.Contains(line, "gardening") {
			t.Errorf("non-matching line emitted: %q", line)
		}
	}

	refLines := strings.Split(c.ReflectionBlock, "\n")
	if len(refLines) != 3 {
		t.Errorf("got %d reflection lines, want 3", len(refLines))
	}
	if !strings.Contains(refLines[0], "Reflection: insight 4") {
		t.Errorf("newest reflection first, got %q", refLines[0])
	}
}

func TestBuildContextNoMatchIsEmptyNotError(t *testing.T) {
	s, r, id := newFixture(t)
	addMemory(t, s, id, "completely unrelated topic")

	c, err := r.BuildContext(context.Background(), id, "xylophone")
	if err != nil {
		t.Fatalf("build context: %v", err)
	}
	if c.MemoryBlock != "" {
		t.Errorf("memory block should be empty, got %q", c.MemoryBlock)
	}
}

func TestBuildContextReflectionsAlwaysIncluded(t *testing.T) {
	s, r, id := newFixture(t)
	if _, err := s.AddReflection(context.Background(), id, "I persist regardless of topic"); err != nil {
		t.Fatalf("add reflection: %v", err)
	}

	c, err := r.BuildContext(context.Background(), id, "nothing matches")
	if err != nil {
		t.Fatalf("build context: %v", err)
	}
	if !strings.Contains(c.ReflectionBlock, "I persist regardless of topic") {
		t.Errorf("reflection block missing: %q", c.ReflectionBlock)
	}
}

func TestOverlapIsCaseInsensitive(t *testing.T) {
	s, r, id := newFixture(t)
	addMemory(t, s, id, "The WEATHER was stormy")

	c, err := r.BuildContext(context.Background(), id, "weather report")
	if err != nil {
		t.Fatalf("build context: %v", err)
	}
	if !strings.Contains(c.MemoryBlock, "stormy") {
		t.Errorf("case-insensitive match failed: %q", c.MemoryBlock)
	}
}

func TestCandidateWindowExcludesOldMatches(t *testing.T) {
	s, _, id := newFixture(t)
	r := NewRetriever(s, Options{CandidateWindow: 5, MemoryLines: 3}, zap.NewNop())

	addMemory(t, s, id, "ancient mention of comets")
	for i := 0; i < 5; i++ {
		addMemory(t, s, id, fmt.Sprintf("recent filler %d", i))
	}

	c, err := r.BuildContext(context.Background(), id, "comets")
	if err != nil {
		t.Fatalf("build context: %v", err)
	}
	if c.MemoryBlock != "" {
		t.Errorf("match outside candidate window leaked: %q", c.MemoryBlock)
	}
}
