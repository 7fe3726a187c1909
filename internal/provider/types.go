// Package provider abstracts text-generation backends behind a single
// chat-completion interface. The engine depends only on Provider; concrete
// backends are selected at construction time from configuration.
package provider

import (
	"context"
	"fmt"
	"time"
)

// Message roles accepted by every provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Provider is the generation capability consumed by the engine.
type Provider interface {
	ID() string
	Name() string
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
}

// ChatRequest is an ordered sequence of role-tagged turns.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// Message is one role-tagged turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatResponse is a single completion.
type ChatResponse struct {
	ID           string `json:"id"`
	Model        string `json:"model"`
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason"`
	Usage        Usage  `json:"usage"`
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Config holds configuration for a provider instance.
type Config struct {
	ID       string        `json:"id"`
	Type     string        `json:"type"`
	Name     string        `json:"name"`
	Endpoint string        `json:"endpoint"`
	APIKey   string        `json:"api_key"`
	Model    string        `json:"model"`
	Timeout  time.Duration `json:"timeout,omitempty"`
}

// CapabilityError marks a failure (or timeout) of an external capability
// call. Foreground operations propagate it; the discussion loop logs it
// and moves on.
type CapabilityError struct {
	Capability string // "generation" or "fetch"
	Backend    string
	Err        error
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("%s capability (%s): %v", e.Capability, e.Backend, e.Err)
}

func (e *CapabilityError) Unwrap() error { return e.Err }
