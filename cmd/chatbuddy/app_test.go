package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/avvvet/chatbuddy/internal/audit"
	"github.com/avvvet/chatbuddy/internal/classifier"
	"github.com/avvvet/chatbuddy/internal/config"
	"github.com/avvvet/chatbuddy/internal/models"
	"github.com/avvvet/chatbuddy/internal/nlp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const testIntents = `{"intents": [
  {"tag": "greeting", "patterns": ["hello", "hi there", "good morning"], "responses": ["Hello!"]},
  {"tag": "goodbye", "patterns": ["bye", "see you later", "goodbye"], "responses": ["Goodbye!"]},
  {"tag": "hours", "patterns": ["opening hours", "when do you open", "closing time"], "responses": ["We open at nine."]}
]}`

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	dir := t.TempDir()
	intents := filepath.Join(dir, "intents")
	require.NoError(t, os.MkdirAll(intents, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(intents, "intents.json"), []byte(testIntents), 0o644))

	cfg := config.Default()
	cfg.IntentsDir = intents
	cfg.ModelPath = filepath.Join(dir, "model", "svm.json")
	cfg.DBPath = filepath.Join(dir, "chatbuddy.db")
	cfg.GoogleFallbackEnabled = false
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestApp_TrainsThenLoadsSavedModel(t *testing.T) {
	cfg := testConfig(t)

	a, err := newApp(cfg, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, a.loadModel(context.Background(), true))
	assert.True(t, a.facade.Ready())
	assert.FileExists(t, cfg.ModelPath)
	a.Close()

	b, err := newApp(cfg, zap.NewNop())
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.loadModel(context.Background(), false))
	assert.True(t, b.facade.Ready())
	assert.Equal(t, uint64(1), b.coordinator.Generation())
}

func TestApp_ProcessesMessages(t *testing.T) {
	a, err := newApp(testConfig(t), zap.NewNop())
	require.NoError(t, err)
	defer a.Close()
	require.NoError(t, a.loadModel(context.Background(), true))

	resp, err := a.chat.Process(context.Background(), "u1", "   ")
	require.NoError(t, err)
	assert.Equal(t, models.IntentNone, resp.Intent)

	resp, err = a.chat.Process(context.Background(), "u1", "hello")
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Response)
	assert.Nil(t, resp.ErrorCode)

	turns, err := a.chat.GetContext("u1")
	require.NoError(t, err)
	assert.Len(t, turns, 2)
}

func TestApp_RejectsMissingIntents(t *testing.T) {
	cfg := testConfig(t)
	cfg.IntentsDir = filepath.Join(t.TempDir(), "missing")

	_, err := newApp(cfg, zap.NewNop())
	require.Error(t, err)
}

func TestRunChat_Commands(t *testing.T) {
	a, err := newApp(testConfig(t), zap.NewNop())
	require.NoError(t, err)
	defer a.Close()
	require.NoError(t, a.loadModel(context.Background(), true))

	in := strings.NewReader(strings.Join([]string{
		"hello",
		"/save first",
		"/save spare",
		"/delete spare",
		"/sessions",
		"/history",
		"/clear",
		"/history",
		"/load first",
		"/bogus",
		"/quit",
		"never read",
	}, "\n"))
	var out bytes.Buffer

	require.NoError(t, runChat(context.Background(), a, "cli", in, &out))

	text := out.String()
	assert.Contains(t, text, `Saved conversation "first"`)
	assert.Contains(t, text, "  first\n")
	assert.Contains(t, text, `Deleted conversation "spare"`)
	assert.NotContains(t, text, "  spare\n")
	assert.Contains(t, text, "User: hello\n")
	assert.Contains(t, text, "Conversation cleared")
	assert.Contains(t, text, `Loaded conversation "first"`)
	assert.Contains(t, text, "Error: unknown command /bogus")
	assert.NotContains(t, text, "never read")

	turns, err := a.chat.GetContext("cli")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "hello", turns[0].Text)
}

func TestRunChat_EndsAtEOF(t *testing.T) {
	a, err := newApp(testConfig(t), zap.NewNop())
	require.NoError(t, err)
	defer a.Close()
	require.NoError(t, a.loadModel(context.Background(), true))

	var out bytes.Buffer
	require.NoError(t, runChat(context.Background(), a, "cli", strings.NewReader("/sessions\n"), &out))
	assert.Contains(t, out.String(), "No saved conversations")
}

func TestPreprocessOptions_FollowConfig(t *testing.T) {
	cfg := config.Default()
	assert.Equal(t, []string{"opening", "hour"},
		nlp.NewPreprocessor(preprocessOptions(cfg)).Preprocess("What are the opening hours?"))

	cfg.PreprocessStopwords = false
	cfg.PreprocessLemmatize = false
	assert.Equal(t, []string{"what", "are", "the", "opening", "hours"},
		nlp.NewPreprocessor(preprocessOptions(cfg)).Preprocess("What are the opening hours?"))
}

func TestEventFanout(t *testing.T) {
	f := &eventFanout{logger: zap.NewNop()}

	var got []classifier.Event
	f.Add(classifier.NotifierFunc(func(_ context.Context, e classifier.Event) {
		got = append(got, e)
	}))

	event := classifier.Event{Type: classifier.EventRetrainSucceeded, Generation: 3, Model: classifier.ModelSVM}
	f.Notify(context.Background(), event)

	assert.Equal(t, []classifier.Event{event}, got)
}

func TestRunChat_ResetStartsOver(t *testing.T) {
	a, err := newApp(testConfig(t), zap.NewNop())
	require.NoError(t, err)
	defer a.Close()
	require.NoError(t, a.loadModel(context.Background(), true))

	var out bytes.Buffer
	in := strings.NewReader("hello\n/reset\n/history\n")
	require.NoError(t, runChat(context.Background(), a, "cli", in, &out))
	assert.Contains(t, out.String(), "Session reset")

	turns, err := a.chat.GetContext("cli")
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestApp_EvictionReleasesRateLimiter(t *testing.T) {
	cfg := testConfig(t)
	cfg.APIRatePerMinute = 60000
	core, logs := observer.New(zapcore.DebugLevel)

	a, err := newApp(cfg, zap.New(core))
	require.NoError(t, err)
	defer a.Close()
	ctx := context.Background()

	raw, err := a.keys.Generate(ctx, "u1")
	require.NoError(t, err)
	key, err := a.keys.Verify(ctx, raw)
	require.NoError(t, err)
	require.True(t, a.keys.Allow(key))

	_, err = a.chat.GetContext("u1")
	require.NoError(t, err)

	// one token per millisecond, so the limiter is full again quickly
	time.Sleep(20 * time.Millisecond)
	require.True(t, a.chat.ResetSession("u1"))

	assert.Equal(t, 1, logs.FilterMessage("rate limiter released").Len())
}

func TestApp_HealthChecks(t *testing.T) {
	a, err := newApp(testConfig(t), zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	require.Contains(t, a.health, "database")
	assert.NotContains(t, a.health, "redis")
	assert.NoError(t, a.health["database"](context.Background()))
}

func TestPrintAudit(t *testing.T) {
	a, err := newApp(testConfig(t), zap.NewNop())
	require.NoError(t, err)
	defer a.Close()
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, printUnmatched(ctx, a.audit, 10, &out))
	assert.Equal(t, "No unmatched queries\n", out.String())

	require.NoError(t, a.audit.RecordUnmatched(ctx, audit.UnmatchedQuery{
		UserID: "u1", Query: "capital of peru", Intent: "unknown", Confidence: 0.12,
	}))
	require.NoError(t, a.audit.RecordAPISession(ctx, audit.APISession{
		UserID: "u1", Request: `{"message":"hi"}`, Response: `{"response":"Hello!"}`,
	}))

	out.Reset()
	require.NoError(t, printUnmatched(ctx, a.audit, 10, &out))
	assert.Contains(t, out.String(), "QUERY")
	assert.Contains(t, out.String(), "capital of peru")
	assert.Contains(t, out.String(), "0.12")

	out.Reset()
	require.NoError(t, printAPISessions(ctx, a.audit, "u1", 10, &out))
	assert.Contains(t, out.String(), `{"message":"hi"}`)

	out.Reset()
	require.NoError(t, printAPISessions(ctx, a.audit, "nobody", 10, &out))
	assert.Equal(t, "No API calls for nobody\n", out.String())
}
