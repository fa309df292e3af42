package prompts

import (
	"strings"
	"testing"

	"github.com/avvvet/chatbuddy/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestBuildSearchResponse_StartsWithDisclosure(t *testing.T) {
	got := BuildSearchResponse("capital of france", []string{"Title: Paris\nURL: https://example.org", "Second"})

	assert.True(t, strings.HasPrefix(got, SearchDisclosure))
	assert.Contains(t, got, `Search: "capital of france"`)
	assert.Contains(t, got, "- Title: Paris\n  URL: https://example.org")
	assert.Contains(t, got, "- Second")
}

func TestBuildGreeting(t *testing.T) {
	assert.Equal(t, "Hello, Ada! How can I help you today?", BuildGreeting(" Ada "))
}

func TestBuildTranscript(t *testing.T) {
	got := BuildTranscript([]models.Turn{
		{Role: models.RoleUser, Text: "hi"},
		{Role: models.RoleBot, Text: "Hello!"},
	})

	assert.Equal(t, "User: hi\nBot: Hello!\n", got)
}
