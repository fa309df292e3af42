// Package prompts holds the fixed texts the bot answers with and the builders
// for composed answers.
package prompts

import (
	"fmt"
	"strings"

	"github.com/avvvet/chatbuddy/internal/models"
)

const (
	BlankInputMessage = "Please type something to start our conversation."

	ErrorMessage = "Sorry, I'm having trouble understanding right now."

	SearchConfirmPrompt = "I'm not sure how to answer that. Would you like me to search the web for an answer? (yes/no)"

	SearchDeclinedMessage = "Okay, I won't search the web. Is there anything else I can help you with?"

	// SearchDisclosure prefixes every answer built from search results
	SearchDisclosure = "I couldn't find this in my own knowledge, so here is what a web search returned (these results are not verified by me):"

	GreetingTemplate = "Hello, %s! How can I help you today?"
)

// BuildSearchResponse composes a search-based answer. The disclosure always
// comes first.
func BuildSearchResponse(query string, snippets []string) string {
	var builder strings.Builder

	builder.WriteString(SearchDisclosure)
	builder.WriteString("\n")
	if query = strings.TrimSpace(query); query != "" {
		builder.WriteString(fmt.Sprintf("Search: %q\n", query))
	}
	for _, snippet := range snippets {
		builder.WriteString(fmt.Sprintf("\n- %s", strings.ReplaceAll(strings.TrimSpace(snippet), "\n", "\n  ")))
	}

	return builder.String()
}

// BuildGreeting addresses the user by name
func BuildGreeting(name string) string {
	return fmt.Sprintf(GreetingTemplate, strings.TrimSpace(name))
}

// BuildTranscript renders a conversation, one turn per line
func BuildTranscript(turns []models.Turn) string {
	var builder strings.Builder

	for _, turn := range turns {
		speaker := "User"
		if turn.Role == models.RoleBot {
			speaker = "Bot"
		}
		builder.WriteString(fmt.Sprintf("%s: %s\n", speaker, turn.Text))
	}

	return builder.String()
}
