package provider

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"go.uber.org/zap"
)

type stubProvider struct {
	id    string
	reply string
	err   error
}

func (s *stubProvider) ID() string   { return s.id }
func (s *stubProvider) Name() string { return s.id }

func (s *stubProvider) Chat(_ context.Context, _ *ChatRequest) (*ChatResponse, error) {
	if s.err != nil {
		return nil, &CapabilityError{Capability: "generation", Backend: s.id, Err: s.err}
	}
	return &ChatResponse{Content: s.reply}, nil
}

func TestRouterDefaultAndExplicit(t *testing.T) {
	r := NewRouter(zap.NewNop())
	r.Register(&stubProvider{id: "a", reply: "from a"})
	r.Register(&stubProvider{id: "b", reply: "from b"})

	if r.DefaultID() != "a" {
		t.Errorf("default = %q, want first registered", r.DefaultID())
	}

	resp, err := r.Chat(context.Background(), "", &ChatRequest{})
	if err != nil || resp.Content != "from a" {
		t.Errorf("default route: resp=%v err=%v", resp, err)
	}

	resp, err = r.Chat(context.Background(), "b", &ChatRequest{})
	if err != nil || resp.Content != "from b" {
		t.Errorf("explicit route: resp=%v err=%v", resp, err)
	}

	r.SetDefault("b")
	resp, err = r.Chat(context.Background(), "", &ChatRequest{})
	if err != nil || resp.Content != "from b" {
		t.Errorf("after SetDefault: resp=%v err=%v", resp, err)
	}
}

func TestRouterUnknownProvider(t *testing.T) {
	r := NewRouter(zap.NewNop())
	_, err := r.Chat(context.Background(), "ghost", &ChatRequest{})

	var capErr *CapabilityError
	if !errors.As(err, &capErr) {
		t.Fatalf("got %v, want CapabilityError", err)
	}
	if capErr.Capability != "generation" {
		t.Errorf("capability = %q", capErr.Capability)
	}
}

func TestCapabilityErrorUnwrap(t *testing.T) {
	inner := fmt.Errorf("boom")
	err := &CapabilityError{Capability: "generation", Backend: "x", Err: inner}
	if !errors.Is(err, inner) {
		t.Error("Unwrap should expose the inner error")
	}
}
