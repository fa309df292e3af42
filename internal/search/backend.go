// Package search is the external web search used when the bot has no local
// answer.
package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/tools/duckduckgo"
)

// DefaultUserAgent is sent to the search provider
const DefaultUserAgent = "chatbuddy/1.0"

// Backend performs one search call
type Backend interface {
	Search(ctx context.Context, query string) ([]string, error)
}

// DuckDuckGo searches through langchaingo's DuckDuckGo tool
type DuckDuckGo struct {
	tool *duckduckgo.Tool
}

func NewDuckDuckGo(maxResults int, userAgent string) (*DuckDuckGo, error) {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	tool, err := duckduckgo.New(maxResults, userAgent)
	if err != nil {
		return nil, fmt.Errorf("failed to create duckduckgo tool: %w", err)
	}
	return &DuckDuckGo{tool: tool}, nil
}

func (d *DuckDuckGo) Search(ctx context.Context, query string) ([]string, error) {
	out, err := d.tool.Call(ctx, query)
	if err != nil {
		return nil, err
	}
	if strings.HasPrefix(strings.ToLower(out), "no good") {
		return nil, ErrNoResults
	}
	return splitResults(out), nil
}

// splitResults breaks the tool's text output into one snippet per result
func splitResults(out string) []string {
	var snippets []string
	for _, block := range strings.Split(strings.ReplaceAll(out, "\r\n", "\n"), "\n\n") {
		if block = strings.TrimSpace(block); block != "" {
			snippets = append(snippets, block)
		}
	}
	return snippets
}
