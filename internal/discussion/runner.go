// Package discussion owns the autonomous group-discussion loops: each
// running discussion rotates speakers among a fixed agent set with an
// inter-turn delay, independently of the caller that started it, until
// cancelled. The package also provides the tailing viewer for the
// discussion stream.
package discussion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kestrelworks/agentlab/internal/memory"
	"github.com/kestrelworks/agentlab/internal/provider"
	"github.com/kestrelworks/agentlab/internal/store"
	"go.uber.org/zap"
)

// DefaultTurnDelay is the pause between discussion turns.
const DefaultTurnDelay = 5 * time.Second

// ErrTooFewAgents is returned when a discussion is started with fewer
// than two distinct agents.
var ErrTooFewAgents = errors.New("discussion needs at least 2 distinct agents")

// Fetcher seeds discussion topics; failures come back as error strings,
// never error values.
type Fetcher interface {
	Fetch(ctx context.Context, url string) string
}

// Options configures the runner.
type Options struct {
	ProviderID string
	Model      string
	MaxTokens  int
	TurnDelay  time.Duration
}

// Runner owns the registry of running discussions, keyed by discussion
// id. Loops for different ids never share state beyond the store.
type Runner struct {
	store     *store.Store
	router    *provider.Router
	retriever *memory.Retriever
	fetcher   Fetcher
	opts      Options
	logger    *zap.Logger

	mu     sync.Mutex
	active map[string]*running
}

type running struct {
	agentIDs []int64
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewRunner creates a runner. A zero TurnDelay falls back to the default.
func NewRunner(s *store.Store, router *provider.Router, retriever *memory.Retriever, fetcher Fetcher, opts Options, logger *zap.Logger) *Runner {
	if opts.TurnDelay <= 0 {
		opts.TurnDelay = DefaultTurnDelay
	}
	return &Runner{
		store:     s,
		router:    router,
		retriever: retriever,
		fetcher:   fetcher,
		opts:      opts,
		logger:    logger,
		active:    make(map[string]*running),
	}
}

// Start validates the participants, seeds each of them with the topic
// excerpt, launches the background loop, and returns its discussion id
// immediately. A fetch failure seeds the error string as content rather
// than blocking startup.
func (r *Runner) Start(ctx context.Context, agentIDs []int64, topicURL string) (string, error) {
	// Repeated ids collapse to one participant: one seed memory and one
	// rotation slot each.
	seen := make(map[int64]bool, len(agentIDs))
	participants := make([]int64, 0, len(agentIDs))
	for _, id := range agentIDs {
		if seen[id] {
			continue
		}
		if _, err := r.store.GetAgent(ctx, id); err != nil {
			return "", fmt.Errorf("participant %d: %w", id, err)
		}
		seen[id] = true
		participants = append(participants, id)
	}
	if len(participants) < 2 {
		return "", ErrTooFewAgents
	}

	excerpt := r.fetcher.Fetch(ctx, topicURL)
	seed := fmt.Sprintf("Topic URL: %s\nContent: %s", topicURL, excerpt)
	for _, id := range participants {
		if _, err := r.store.AddMemory(ctx, store.MemoryParams{
			AgentID: id, Type: store.TypeWebContent, Content: seed,
		}); err != nil {
			return "", fmt.Errorf("seed participant %d: %w", id, err)
		}
	}

	id := uuid.New().String()
	loopCtx, cancel := context.WithCancel(context.Background())
	entry := &running{
		agentIDs: participants,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	r.mu.Lock()
	r.active[id] = entry
	r.mu.Unlock()

	go r.loop(loopCtx, id, entry)

	r.logger.Info("discussion started",
		zap.String("id", id),
		zap.Int64s("agents", participants),
		zap.String("topic", topicURL))
	return id, nil
}

// loop rotates speakers until cancelled. A generation failure skips the
// turn; a persistence failure ends the loop.
func (r *Runner) loop(ctx context.Context, id string, entry *running) {
	defer close(entry.done)
	defer r.deregister(id)

	idx := 0
	for {
		speakerID := entry.agentIDs[idx%len(entry.agentIDs)]
		nextID := entry.agentIDs[(idx+1)%len(entry.agentIDs)]

		if err := r.turn(ctx, speakerID, nextID); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			var capErr *provider.CapabilityError
			if errors.As(err, &capErr) || errors.Is(err, store.ErrNotFound) {
				r.logger.Warn("discussion turn skipped",
					zap.String("id", id),
					zap.Int64("speaker", speakerID),
					zap.Error(err))
			} else {
				r.logger.Error("discussion stopped on persistence failure",
					zap.String("id", id), zap.Error(err))
				return
			}
		}

		idx++
		select {
		case <-ctx.Done():
			return
		case <-time.After(r.opts.TurnDelay):
		}
	}
}

// turn generates one line for the speaker, addressed to the next speaker,
// and stores it as a discussion memory of the speaker only. Listeners do
// not get a copy; the viewer reads the stream across all agents.
func (r *Runner) turn(ctx context.Context, speakerID, nextID int64) error {
	next, err := r.store.GetAgent(ctx, nextID)
	if err != nil {
		return err
	}

	c, err := r.retriever.BuildContext(ctx, speakerID, next.Name)
	if err != nil {
		return err
	}

	resp, err := r.router.Chat(ctx, r.opts.ProviderID, &provider.ChatRequest{
		Model:     r.opts.Model,
		MaxTokens: r.opts.MaxTokens,
		Messages: []provider.Message{
			{Role: provider.RoleSystem, Content: "You are participating in a group discussion about a topic. " +
				"Use the provided context and memories to contribute meaningfully to the conversation."},
			{Role: provider.RoleSystem, Content: fmt.Sprintf(
				"Memories:\n%s\n\nReflections:\n%s", c.MemoryBlock, c.ReflectionBlock)},
			{Role: provider.RoleUser, Content: fmt.Sprintf(
				"Continue the discussion, addressing %s. Keep your response focused and concise.", next.Name)},
		},
	})
	if err != nil {
		return err
	}

	_, err = r.store.AddMemory(ctx, store.MemoryParams{
		AgentID: speakerID, Type: store.TypeDiscussion, Content: resp.Content,
	})
	return err
}

// Stop cancels the discussion's loop. The loop observes cancellation
// within at most one turn delay and then appends nothing further.
// Stopping an unknown or already-stopped id is a no-op returning false.
func (r *Runner) Stop(id string) bool {
	r.mu.Lock()
	entry, ok := r.active[id]
	r.mu.Unlock()
	if !ok {
		return false
	}

	entry.cancel()
	<-entry.done
	r.logger.Info("discussion stopped", zap.String("id", id))
	return true
}

// StopAll stops every running discussion; used during shutdown.
func (r *Runner) StopAll() {
	for _, id := range r.Active() {
		r.Stop(id)
	}
}

// Active returns the ids of the running discussions.
func (r *Runner) Active() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.active))
	for id := range r.active {
		ids = append(ids, id)
	}
	return ids
}

// IsActive reports whether the discussion id is still running.
func (r *Runner) IsActive(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.active[id]
	return ok
}

func (r *Runner) deregister(id string) {
	r.mu.Lock()
	delete(r.active, id)
	r.mu.Unlock()
}
