package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/avvvet/chatbuddy/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestNew_SynthesisesDefault(t *testing.T) {
	c, err := New([]Intent{{Tag: "greeting", Patterns: []string{"hi"}, Responses: []string{"Hello!"}}})
	require.NoError(t, err)

	assert.True(t, c.Has(models.IntentDefault))
	assert.Equal(t, []string{DefaultFallbackResponse}, c.Defaults())
	assert.Equal(t, []string{"default", "greeting"}, c.Tags())
}

func TestNew_RejectsDuplicateAndEmptyTags(t *testing.T) {
	_, err := New([]Intent{{Tag: "a"}, {Tag: "a"}})
	require.ErrorIs(t, err, ErrDuplicateTag)

	_, err = New([]Intent{{Tag: ""}})
	require.ErrorIs(t, err, ErrEmptyTag)
}

func TestTrainingSet_ExcludesDefault(t *testing.T) {
	c, err := New([]Intent{
		{Tag: "default", Patterns: []string{"should not train"}, Responses: []string{"Hmm."}},
		{Tag: "greeting", Patterns: []string{"hi", "hello"}},
		{Tag: "goodbye", Patterns: []string{"bye"}},
	})
	require.NoError(t, err)

	examples := c.TrainingSet()
	require.Len(t, examples, 3)
	for _, ex := range examples {
		assert.NotEqual(t, models.IntentDefault, ex.Label)
	}
	assert.Equal(t, []string{"Hmm."}, c.Defaults())
}

func TestParse_Formats(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		tags []string
	}{
		{
			name: "wrapped json",
			doc:  `{"intents": [{"tag": "a", "patterns": ["x"], "responses": ["y"]}, {"tag": "b"}]}`,
			tags: []string{"a", "b"},
		},
		{
			name: "single json object",
			doc:  `{"tag": "thanks", "patterns": ["thank you"], "responses": ["Any time!"]}`,
			tags: []string{"thanks"},
		},
		{
			name: "json list skips untagged",
			doc:  `[{"tag": "a"}, {"patterns": ["orphan"]}, {"tag": "c"}]`,
			tags: []string{"a", "c"},
		},
		{
			name: "yaml",
			doc:  "intents:\n  - tag: weather\n    patterns: [\"is it raining\"]\n    responses: [\"Look outside!\"]\n",
			tags: []string{"weather"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intents, err := Parse([]byte(tt.doc))
			require.NoError(t, err)

			var tags []string
			for _, intent := range intents {
				tags = append(tags, intent.Tag)
			}
			assert.Equal(t, tt.tags, tags)
		})
	}
}

func TestParse_RejectsUnknownShape(t *testing.T) {
	_, err := Parse([]byte(`{"name": "not an intent"}`))
	require.Error(t, err)
}

func TestLoadDir_MergesFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "greetings.json", `{"intents": [{"tag": "greeting", "patterns": ["hi"], "responses": ["Hello!"]}]}`)
	writeFile(t, dir, "other.json", `{"tag": "default", "responses": ["Sorry, come again?"]}`)
	writeFile(t, dir, "small_talk.yaml", "- tag: mood\n  patterns: [\"how are you\"]\n  responses: [\"Great!\"]\n")
	writeFile(t, dir, "README.md", "ignored")

	c, err := LoadDir(dir)
	require.NoError(t, err)

	assert.Equal(t, []string{"default", "greeting", "mood"}, c.Tags())
	assert.Equal(t, []string{"Sorry, come again?"}, c.Defaults())
	assert.Equal(t, []string{"Hello!"}, c.Responses("greeting"))
}

func TestLoadDir_ReportsBadFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "broken.json", `{"intents": [`)

	_, err := LoadDir(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.json")
}

func TestHolder(t *testing.T) {
	first, err := New(nil)
	require.NoError(t, err)
	second, err := New([]Intent{{Tag: "x"}})
	require.NoError(t, err)

	h := NewHolder(first)
	assert.Same(t, first, h.Get())
	h.Set(second)
	assert.Same(t, second, h.Get())
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	writeFile(t, dir, "intents.json", `{"intents": [{"tag": "greeting", "responses": ["Hello!"]}]}`)

	initial, err := LoadDir(dir)
	require.NoError(t, err)
	holder := NewHolder(initial)

	reloaded := make(chan *Catalog, 1)
	w := NewWatcher(dir, holder, func(c *Catalog) {
		if !c.Has("goodbye") {
			return
		}
		select {
		case reloaded <- c:
		default:
		}
	}, zap.NewNop())
	w.debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// give the watcher a moment to register the directory
	time.Sleep(100 * time.Millisecond)
	writeFile(t, dir, "extra.json", `{"tag": "goodbye", "responses": ["Bye!"]}`)

	select {
	case c := <-reloaded:
		assert.True(t, c.Has("goodbye"))
		assert.Same(t, c, holder.Get())
	case <-time.After(5 * time.Second):
		t.Fatal("catalog was not reloaded")
	}

	cancel()
	require.NoError(t, <-done)
}
