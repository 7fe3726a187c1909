// Package agent drives agent interactions: single-turn talk exchanges,
// bounded pairwise conversations, and the reflection cadence that turns
// accumulated memories into insights.
package agent

import (
	"context"
	"fmt"

	"github.com/kestrelworks/agentlab/internal/memory"
	"github.com/kestrelworks/agentlab/internal/provider"
	"github.com/kestrelworks/agentlab/internal/store"
	"go.uber.org/zap"
)

// DefaultReflectionThreshold is the interaction cadence at which a
// reflection is synthesized.
const DefaultReflectionThreshold = 5

const defaultPersona = "You are a thoughtful agent with memory of past interactions. " +
	"Use this context to inform your responses."

// Options configures the engine.
type Options struct {
	ProviderID          string // empty routes to the default provider
	Model               string
	MaxTokens           int
	ReflectionThreshold int
	Persona             string
}

// Engine orchestrates interactions between agents, the store, and the
// generation capability.
type Engine struct {
	store     *store.Store
	router    *provider.Router
	retriever *memory.Retriever
	opts      Options
	locks     lockTable
	logger    *zap.Logger
}

// NewEngine creates an engine. Zero option fields fall back to defaults.
func NewEngine(s *store.Store, router *provider.Router, retriever *memory.Retriever, opts Options, logger *zap.Logger) *Engine {
	if opts.ReflectionThreshold <= 0 {
		opts.ReflectionThreshold = DefaultReflectionThreshold
	}
	if opts.Persona == "" {
		opts.Persona = defaultPersona
	}
	return &Engine{
		store:     s,
		router:    router,
		retriever: retriever,
		opts:      opts,
		logger:    logger,
	}
}

// Talk runs one user-to-agent exchange: retrieve context, generate a
// response, persist both sides of the turn, then run the reflection
// check. Generation failure propagates and persists nothing.
func (e *Engine) Talk(ctx context.Context, agentID int64, userInput string) (string, error) {
	if _, err := e.store.GetAgent(ctx, agentID); err != nil {
		return "", err
	}

	c, err := e.retriever.BuildContext(ctx, agentID, userInput)
	if err != nil {
		return "", fmt.Errorf("build context: %w", err)
	}

	resp, err := e.generate(ctx, []provider.Message{
		{Role: provider.RoleSystem, Content: e.opts.Persona},
		{Role: provider.RoleSystem, Content: contextPrompt(c)},
		{Role: provider.RoleUser, Content: userInput},
	})
	if err != nil {
		return "", err
	}

	if _, err := e.store.AddMemory(ctx, store.MemoryParams{
		AgentID: agentID, Type: store.TypeUserInput, Content: userInput,
	}); err != nil {
		return "", err
	}
	if _, err := e.store.AddMemory(ctx, store.MemoryParams{
		AgentID: agentID, Type: store.TypeAgentResponse, Content: resp,
	}); err != nil {
		return "", err
	}

	if _, err := e.CheckAndReflect(ctx, agentID); err != nil {
		return "", err
	}
	return resp, nil
}

// Utterance is one transcript line of a pairwise exchange.
type Utterance struct {
	AgentID int64  `json:"agent_id"`
	Name    string `json:"name"`
	Content string `json:"content"`
}

// ExchangeResult is the outcome of a pairwise interaction. The reflection
// fields are empty when the threshold was not hit.
type ExchangeResult struct {
	Transcript  []Utterance `json:"transcript"`
	ReflectionA string      `json:"reflection_a,omitempty"`
	ReflectionB string      `json:"reflection_b,omitempty"`
}

// PairwiseInteraction runs exchanges rounds of alternating speech between
// two agents. Each line is stored as an interaction memory for its
// speaker. A mid-round failure aborts the remaining rounds and returns
// the partial transcript together with the error.
func (e *Engine) PairwiseInteraction(ctx context.Context, idA, idB int64, exchanges int) (*ExchangeResult, error) {
	a, err := e.store.GetAgent(ctx, idA)
	if err != nil {
		return nil, err
	}
	b, err := e.store.GetAgent(ctx, idB)
	if err != nil {
		return nil, err
	}

	result := &ExchangeResult{}
	for round := 0; round < exchanges; round++ {
		for _, pair := range [][2]*store.Agent{{a, b}, {b, a}} {
			speaker, listener := pair[0], pair[1]
			line, err := e.speak(ctx, speaker, listener)
			if err != nil {
				return result, fmt.Errorf("round %d, %s speaking: %w", round+1, speaker.Name, err)
			}
			result.Transcript = append(result.Transcript, Utterance{
				AgentID: speaker.ID, Name: speaker.Name, Content: line,
			})
		}
	}

	if result.ReflectionA, err = e.CheckAndReflect(ctx, idA); err != nil {
		return result, err
	}
	if result.ReflectionB, err = e.CheckAndReflect(ctx, idB); err != nil {
		return result, err
	}
	return result, nil
}

// speak generates one conversational line addressed to listener and
// persists it as an interaction memory of the speaker.
func (e *Engine) speak(ctx context.Context, speaker, listener *store.Agent) (string, error) {
	c, err := e.retriever.BuildContext(ctx, speaker.ID, listener.Name)
	if err != nil {
		return "", fmt.Errorf("build context: %w", err)
	}

	line, err := e.generate(ctx, []provider.Message{
		{Role: provider.RoleSystem, Content: fmt.Sprintf(
			"You are %s, having a conversation with %s. Stay in character.", speaker.Name, listener.Name)},
		{Role: provider.RoleSystem, Content: contextPrompt(c)},
		{Role: provider.RoleUser, Content: fmt.Sprintf(
			"Continue the conversation with %s. Keep your response focused and concise.", listener.Name)},
	})
	if err != nil {
		return "", err
	}

	if _, err := e.store.AddMemory(ctx, store.MemoryParams{
		AgentID: speaker.ID, Type: store.TypeInteraction, Content: line,
	}); err != nil {
		return "", err
	}
	return line, nil
}

func (e *Engine) generate(ctx context.Context, messages []provider.Message) (string, error) {
	resp, err := e.router.Chat(ctx, e.opts.ProviderID, &provider.ChatRequest{
		Model:     e.opts.Model,
		Messages:  messages,
		MaxTokens: e.opts.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func contextPrompt(c memory.Context) string {
	return fmt.Sprintf("Memories:\n%s\n\nReflections:\n%s", c.MemoryBlock, c.ReflectionBlock)
}
