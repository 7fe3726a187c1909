package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestFetchStripsMarkup(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head>
			<style>body { color: red }</style>
			<script>var hidden = "nope";</script>
		</head><body>
			<h1>Steam   Engines</h1>
			<p>A short   history.</p>
		</body></html>`))
	}))
	defer ts.Close()

	c := New(0, 0, zap.NewNop())
	got := c.Fetch(context.Background(), ts.URL)

	if got != "Steam Engines A short history." {
		t.Errorf("got %q", got)
	}
	if strings.Contains(got, "hidden") || strings.Contains(got, "color") {
		t.Errorf("script/style content leaked: %q", got)
	}
}

func TestFetchTruncates(t *testing.T) {
	long := strings.Repeat("word ", 200)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>" + long + "</body></html>"))
	}))
	defer ts.Close()

	c := New(0, 50, zap.NewNop())
	got := c.Fetch(context.Background(), ts.URL)
	if len(got) > 50 {
		t.Errorf("excerpt length %d exceeds bound", len(got))
	}
}

func TestFetchFailureReturnsErrorString(t *testing.T) {
	c := New(time.Second, 0, zap.NewNop())
	got := c.Fetch(context.Background(), "http://127.0.0.1:1/unreachable")

	if !strings.HasPrefix(got, "error fetching http://127.0.0.1:1/unreachable:") {
		t.Errorf("got %q, want error string, never an error value", got)
	}
}

func TestFetchNon200ReturnsErrorString(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer ts.Close()

	c := New(0, 0, zap.NewNop())
	got := c.Fetch(context.Background(), ts.URL)
	if !strings.Contains(got, "status 404") {
		t.Errorf("got %q", got)
	}
}
