package agent

import (
	"context"
	"fmt"

	"github.com/kestrelworks/agentlab/internal/memory"
	"github.com/kestrelworks/agentlab/internal/provider"
	"go.uber.org/zap"
)

// reflectionWindow is the fixed-size suffix of recent memories a
// reflection is synthesized from.
const reflectionWindow = 10

// CheckAndReflect counts one interaction for the agent, and when the
// count reaches a multiple of the configured threshold, synthesizes a
// reflection from the agent's recent memories. The increment and the
// threshold check run under the agent's lock so two concurrent
// interactions can never observe the same pre-increment value.
//
// Returns the reflection content, or "" when the threshold was not hit
// or there was nothing to reflect on. Synthesis failure is logged, not
// returned: the interaction that triggered it already succeeded and the
// counter stands.
func (e *Engine) CheckAndReflect(ctx context.Context, agentID int64) (string, error) {
	mu := e.locks.get(agentID)
	mu.Lock()
	defer mu.Unlock()

	count, err := e.store.IncrementInteractionCount(ctx, agentID)
	if err != nil {
		return "", err
	}
	if count%int64(e.opts.ReflectionThreshold) != 0 {
		return "", nil
	}

	reflection, err := e.synthesizeReflection(ctx, agentID)
	if err != nil {
		e.logger.Warn("reflection synthesis failed",
			zap.Int64("agent", agentID), zap.Error(err))
		return "", nil
	}
	return reflection, nil
}

// synthesizeReflection generates and stores one reflection from the
// agent's most recent memories. With zero memories there is nothing to
// reflect on and nothing is written.
func (e *Engine) synthesizeReflection(ctx context.Context, agentID int64) (string, error) {
	a, err := e.store.GetAgent(ctx, agentID)
	if err != nil {
		return "", err
	}

	recent, err := e.store.RecentMemories(ctx, agentID, reflectionWindow)
	if err != nil {
		return "", err
	}
	if len(recent) == 0 {
		return "", nil
	}

	content, err := e.generate(ctx, []provider.Message{
		{Role: provider.RoleSystem, Content: fmt.Sprintf(
			"You are %s. Reflect on your recent experiences and draw insights or conclusions "+
				"based on the following recent memories:\n\n%s",
			a.Name, memory.FormatMemories(recent))},
		{Role: provider.RoleUser, Content: "Based on these recent experiences, what insights can you draw? " +
			"How might these experiences influence your future actions or decisions?"},
	})
	if err != nil {
		return "", err
	}

	if _, err := e.store.AddReflection(ctx, agentID, content); err != nil {
		return "", err
	}
	e.logger.Info("reflection stored", zap.Int64("agent", agentID))
	return content, nil
}
