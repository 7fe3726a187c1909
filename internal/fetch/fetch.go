// Package fetch provides the content-fetch capability: a bounded
// plain-text excerpt of a web page, used to seed discussion topics.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// DefaultMaxChars bounds the excerpt length.
const DefaultMaxChars = 2000

// Client fetches bounded text excerpts. On any failure Fetch returns a
// human-readable error string instead of an error value; seeding a
// discussion must never abort on a bad URL.
type Client struct {
	http     *http.Client
	maxChars int
	logger   *zap.Logger
}

// New creates a fetch client. Zero timeout defaults to 15s, zero maxChars
// to DefaultMaxChars.
func New(timeout time.Duration, maxChars int, logger *zap.Logger) *Client {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	return &Client{
		http:     &http.Client{Timeout: timeout},
		maxChars: maxChars,
		logger:   logger,
	}
}

// Fetch downloads url and returns its visible text, whitespace collapsed
// and truncated to the configured bound.
func (c *Client) Fetch(ctx context.Context, url string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return c.errString(url, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return c.errString(url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.errString(url, fmt.Errorf("status %d", resp.StatusCode))
	}

	text, err := extractText(resp.Body, c.maxChars)
	if err != nil {
		return c.errString(url, err)
	}
	return text
}

func (c *Client) errString(url string, err error) string {
	c.logger.Warn("fetch failed", zap.String("url", url), zap.Error(err))
	return fmt.Sprintf("error fetching %s: %v", url, err)
}

// extractText walks the HTML token stream, skipping script and style
// subtrees, and joins the remaining text with single spaces.
func extractText(r io.Reader, maxChars int) (string, error) {
	z := html.NewTokenizer(r)
	var b strings.Builder
	skipDepth := 0

	for {
		switch z.Next() {
		case html.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				return b.String(), nil
			}
			// A partial page is still usable once the bound is reached.
			if b.Len() >= maxChars {
				return b.String(), nil
			}
			return b.String(), z.Err()
		case html.StartTagToken:
			name, _ := z.TagName()
			if tag := string(name); tag == "script" || tag == "style" {
				skipDepth++
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if tag := string(name); (tag == "script" || tag == "style") && skipDepth > 0 {
				skipDepth--
			}
		case html.TextToken:
			if skipDepth > 0 {
				continue
			}
			for _, field := range strings.Fields(string(z.Text())) {
				if b.Len() > 0 {
					b.WriteByte(' ')
				}
				b.WriteString(field)
				if b.Len() >= maxChars {
					return truncate(b.String(), maxChars), nil
				}
			}
		}
	}
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && s[n]&0xC0 == 0x80 {
		n--
	}
	return s[:n]
}
