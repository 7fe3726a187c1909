package agent

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/kestrelworks/agentlab/internal/memory"
	"github.com/kestrelworks/agentlab/internal/provider"
	"github.com/kestrelworks/agentlab/internal/store"
	"go.uber.org/zap"
)

// scriptedProvider returns canned replies and can be told to start
// failing after a number of calls.
type scriptedProvider struct {
	mu        sync.Mutex
	calls     int
	failAfter int // 0 means never fail
}

func (p *scriptedProvider) ID() string   { return "scripted" }
func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Chat(_ context.Context, req *provider.ChatRequest) (*provider.ChatResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.failAfter > 0 && p.calls > p.failAfter {
		return nil, &provider.CapabilityError{
			Capability: "generation", Backend: "scripted", Err: errors.New("scripted failure"),
		}
	}
	return &provider.ChatResponse{Content: fmt.Sprintf("reply %d", p.calls)}, nil
}

func newTestEngine(t *testing.T, opts Options, prov provider.Provider) (*Engine, *store.Store) {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "lab.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	router := provider.NewRouter(zap.NewNop())
	router.Register(prov)
	retriever := memory.NewRetriever(s, memory.Options{}, zap.NewNop())
	return NewEngine(s, router, retriever, opts, zap.NewNop()), s
}

func createAgent(t *testing.T, s *store.Store, name string) int64 {
	t.Helper()
	id, err := s.CreateAgent(context.Background(), name, 0, 0)
	if err != nil {
		t.Fatalf("create agent: %v", err)
	}
	return id
}

func TestTalkCountsAndReflectsAtThreshold(t *testing.T) {
	for _, threshold := range []int{3, 5, 10} {
		t.Run(fmt.Sprintf("threshold_%d", threshold), func(t *testing.T) {
			e, s := newTestEngine(t, Options{ReflectionThreshold: threshold}, &scriptedProvider{})
			ctx := context.Background()
			id := createAgent(t, s, "Ada")

			for i := 1; i <= threshold; i++ {
				if _, err := e.Talk(ctx, id, fmt.Sprintf("hello %d", i)); err != nil {
					t.Fatalf("talk %d: %v", i, err)
				}

				a, err := s.GetAgent(ctx, id)
				if err != nil {
					t.Fatalf("get agent: %v", err)
				}
				if a.InteractionCount != int64(i) {
					t.Errorf("after %d talks count = %d", i, a.InteractionCount)
				}

				n, _ := s.CountReflections(ctx, id)
				wantReflections := int64(0)
				if i == threshold {
					wantReflections = 1
				}
				if n != wantReflections {
					t.Errorf("after %d talks reflections = %d, want %d", i, n, wantReflections)
				}
			}
		})
	}
}

// Concurrent talks for one agent must each count exactly once: the
// per-agent lock serializes increment-then-check, so the final count is
// exact and a reflection fires at every threshold multiple.
func TestConcurrentTalksCountExactly(t *testing.T) {
	const threshold = 5
	const talks = 20

	e, s := newTestEngine(t, Options{ReflectionThreshold: threshold}, &scriptedProvider{})
	ctx := context.Background()
	id := createAgent(t, s, "Ada")

	var wg sync.WaitGroup
	errc := make(chan error, talks)
	for i := 0; i < talks; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if _, err := e.Talk(ctx, id, fmt.Sprintf("hello %d", n)); err != nil {
				errc <- err
			}
		}(i)
	}
	wg.Wait()
	close(errc)
	for err := range errc {
		t.Errorf("concurrent talk failed: %v", err)
	}

	a, err := s.GetAgent(ctx, id)
	if err != nil {
		t.Fatalf("get agent: %v", err)
	}
	if a.InteractionCount != talks {
		t.Errorf("interaction count = %d, want %d", a.InteractionCount, talks)
	}
	if n, _ := s.CountMemories(ctx, id); n != 2*talks {
		t.Errorf("got %d memories, want %d", n, 2*talks)
	}
	if n, _ := s.CountReflections(ctx, id); n != talks/threshold {
		t.Errorf("got %d reflections, want %d", n, talks/threshold)
	}
}

func TestTalkPersistsBothSidesInOrder(t *testing.T) {
	e, s := newTestEngine(t, Options{}, &scriptedProvider{})
	ctx := context.Background()
	id := createAgent(t, s, "Ada")

	resp, err := e.Talk(ctx, id, "what do you remember?")
	if err != nil {
		t.Fatalf("talk: %v", err)
	}
	if resp != "reply 1" {
		t.Errorf("response = %q", resp)
	}

	mems, err := s.RecentMemories(ctx, id, 10)
	if err != nil {
		t.Fatalf("recent memories: %v", err)
	}
	if len(mems) != 2 {
		t.Fatalf("got %d memories, want 2", len(mems))
	}
	// Newest first: the response follows the input.
	if mems[0].Type != store.TypeAgentResponse || mems[1].Type != store.TypeUserInput {
		t.Errorf("memory order wrong: %s then %s", mems[1].Type, mems[0].Type)
	}
}

func TestTalkUnknownAgent(t *testing.T) {
	e, _ := newTestEngine(t, Options{}, &scriptedProvider{})
	if _, err := e.Talk(context.Background(), 42, "anyone there?"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestTalkGenerationFailurePersistsNothing(t *testing.T) {
	e, s := newTestEngine(t, Options{}, &scriptedProvider{failAfter: 1})
	ctx := context.Background()
	id := createAgent(t, s, "Ada")

	if _, err := e.Talk(ctx, id, "first works"); err != nil {
		t.Fatalf("first talk: %v", err)
	}

	_, err := e.Talk(ctx, id, "second fails")
	var capErr *provider.CapabilityError
	if !errors.As(err, &capErr) {
		t.Fatalf("got %v, want CapabilityError", err)
	}

	n, _ := s.CountMemories(ctx, id)
	if n != 2 {
		t.Errorf("failed turn persisted memories: %d rows, want 2 from the first turn", n)
	}
	a, _ := s.GetAgent(ctx, id)
	if a.InteractionCount != 1 {
		t.Errorf("failed turn counted: %d", a.InteractionCount)
	}
}

func TestPairwiseInteractionTranscript(t *testing.T) {
	e, s := newTestEngine(t, Options{ReflectionThreshold: 10}, &scriptedProvider{})
	ctx := context.Background()
	ada := createAgent(t, s, "Ada")
	grace := createAgent(t, s, "Grace")

	result, err := e.PairwiseInteraction(ctx, ada, grace, 3)
	if err != nil {
		t.Fatalf("pairwise: %v", err)
	}

	if len(result.Transcript) != 6 {
		t.Fatalf("transcript has %d lines, want 6", len(result.Transcript))
	}
	for i, u := range result.Transcript {
		wantName := "Ada"
		if i%2 == 1 {
			wantName = "Grace"
		}
		if u.Name != wantName {
			t.Errorf("line %d spoken by %s, want %s", i, u.Name, wantName)
		}
	}

	nA, _ := s.CountMemories(ctx, ada)
	nB, _ := s.CountMemories(ctx, grace)
	if nA != 3 || nB != 3 {
		t.Errorf("interaction memories split %d/%d, want 3/3", nA, nB)
	}

	// One counted interaction each; threshold 10 not hit.
	if result.ReflectionA != "" || result.ReflectionB != "" {
		t.Errorf("unexpected reflections: %+v", result)
	}
	a, _ := s.GetAgent(ctx, ada)
	if a.InteractionCount != 1 {
		t.Errorf("pairwise counted %d interactions, want 1", a.InteractionCount)
	}
}

func TestPairwiseMidRoundFailureReturnsPartialTranscript(t *testing.T) {
	e, s := newTestEngine(t, Options{ReflectionThreshold: 10}, &scriptedProvider{failAfter: 3})
	ctx := context.Background()
	ada := createAgent(t, s, "Ada")
	grace := createAgent(t, s, "Grace")

	result, err := e.PairwiseInteraction(ctx, ada, grace, 3)
	if err == nil {
		t.Fatal("expected a mid-round failure")
	}
	var capErr *provider.CapabilityError
	if !errors.As(err, &capErr) {
		t.Errorf("got %v, want CapabilityError", err)
	}
	if len(result.Transcript) != 3 {
		t.Errorf("partial transcript has %d lines, want 3", len(result.Transcript))
	}
	if !strings.Contains(err.Error(), "Grace") {
		t.Errorf("error should name the failed speaker: %v", err)
	}
}

func TestReflectionSkippedWithoutMemories(t *testing.T) {
	e, s := newTestEngine(t, Options{ReflectionThreshold: 1}, &scriptedProvider{})
	ctx := context.Background()
	id := createAgent(t, s, "Ada")

	// Counter hits the threshold but there is nothing to reflect on.
	got, err := e.CheckAndReflect(ctx, id)
	if err != nil {
		t.Fatalf("check and reflect: %v", err)
	}
	if got != "" {
		t.Errorf("reflection synthesized from zero memories: %q", got)
	}
	if n, _ := s.CountReflections(ctx, id); n != 0 {
		t.Errorf("reflection row written: %d", n)
	}
}
