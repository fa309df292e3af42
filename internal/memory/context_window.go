package memory

import (
	"context"
	"sync"

	"github.com/avvvet/chatbuddy/internal/models"
	"github.com/tmc/langchaingo/llms"
	lcmemory "github.com/tmc/langchaingo/memory"
)

// DefaultWindowSize is the number of turns kept when no size is configured
const DefaultWindowSize = 3

// ContextWindow keeps the most recent turns of one conversation on top of a
// LangChainGo chat history. Length never exceeds the configured size; the
// oldest turn is dropped first.
type ContextWindow struct {
	mu      sync.Mutex
	size    int
	history *lcmemory.ChatMessageHistory
}

// NewContextWindow creates an empty window holding at most size turns
func NewContextWindow(size int) *ContextWindow {
	if size < 1 {
		size = DefaultWindowSize
	}
	return &ContextWindow{
		size:    size,
		history: lcmemory.NewChatMessageHistory(),
	}
}

// Size returns the capacity of the window
func (w *ContextWindow) Size() int {
	return w.size
}

// AddUserQuery appends a user turn
func (w *ContextWindow) AddUserQuery(text string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.push(llms.HumanChatMessage{Content: text})
}

// AddBotResponse appends a bot turn. Empty text is a legal bot turn.
func (w *ContextWindow) AddBotResponse(text string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.push(llms.AIChatMessage{Content: text})
}

// Append adds a raw turn, used when restoring a saved history
func (w *ContextWindow) Append(turn models.Turn) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.push(toChatMessage(turn))
}

// GetContext returns a copy of the turns, oldest first
func (w *ContextWindow) GetContext() []models.Turn {
	w.mu.Lock()
	defer w.mu.Unlock()

	// The in-memory history never returns an error.
	messages, _ := w.history.Messages(context.Background())
	turns := make([]models.Turn, 0, len(messages))
	for _, msg := range messages {
		turns = append(turns, toTurn(msg))
	}
	return turns
}

// Len returns the number of turns currently held
func (w *ContextWindow) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	messages, _ := w.history.Messages(context.Background())
	return len(messages)
}

// Clear empties the window
func (w *ContextWindow) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.history.Clear(context.Background())
}

// Restore replaces the window content with turns, keeping only the newest
// ones that fit.
func (w *ContextWindow) Restore(turns []models.Turn) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if over := len(turns) - w.size; over > 0 {
		turns = turns[over:]
	}
	messages := make([]llms.ChatMessage, 0, len(turns))
	for _, turn := range turns {
		messages = append(messages, toChatMessage(turn))
	}
	_ = w.history.SetMessages(context.Background(), messages)
}

// push must be called with w.mu held
func (w *ContextWindow) push(msg llms.ChatMessage) {
	ctx := context.Background()
	current, _ := w.history.Messages(ctx)
	if over := len(current) + 1 - w.size; over > 0 {
		current = current[over:]
	}

	next := make([]llms.ChatMessage, 0, w.size)
	next = append(next, current...)
	next = append(next, msg)
	_ = w.history.SetMessages(ctx, next)
}

func toChatMessage(turn models.Turn) llms.ChatMessage {
	if turn.Role == models.RoleBot {
		return llms.AIChatMessage{Content: turn.Text}
	}
	return llms.HumanChatMessage{Content: turn.Text}
}

func toTurn(msg llms.ChatMessage) models.Turn {
	role := models.RoleUser
	if msg.GetType() == llms.ChatMessageTypeAI {
		role = models.RoleBot
	}
	return models.Turn{Role: role, Text: msg.GetContent()}
}
