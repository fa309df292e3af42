package nlp

import (
	"testing"

	"github.com/avvvet/chatbuddy/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"Hello, world!", []string{"Hello", "world"}},
		{"don't stop", []string{"don't", "stop"}},
		{"  ...  ", nil},
		{"order #42 now", []string{"order", "42", "now"}},
		{"it’s fine", []string{"it's", "fine"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Tokenize(tt.in))
		})
	}
}

func TestPreprocess_DefaultOptions(t *testing.T) {
	p := NewPreprocessor(DefaultOptions())

	assert.Equal(t, []string{"hello"}, p.Preprocess("Hello!"))
	assert.Equal(t, []string{"opening", "hour"}, p.Preprocess("What are the opening hours?"))
	assert.Equal(t, []string{"library", "book"}, p.Preprocess("Libraries and books"))
	assert.Empty(t, p.Preprocess("the a an"))
	assert.Empty(t, p.Preprocess("?!"))
}

func TestPreprocess_StepsCanBeDisabled(t *testing.T) {
	p := NewPreprocessor(Options{})

	assert.Equal(t, []string{"The", "Books"}, p.Preprocess("The Books"))
}

func TestPreprocess_NormalisesCompatibilityForms(t *testing.T) {
	p := NewPreprocessor(Options{Lowercase: true})

	// full-width letters fold to ASCII under NFKC
	assert.Equal(t, []string{"hello"}, p.Preprocess("ＨＥＬＬＯ"))
}

func TestLemmatize(t *testing.T) {
	cases := map[string]string{
		"cities":   "city",
		"boxes":    "box",
		"classes":  "class",
		"glass":    "glass",
		"bus":      "bus",
		"status":   "status",
		"analysis": "analysis",
		"dogs":     "dog",
		"people":   "person",
		"is":       "is",
	}
	for in, want := range cases {
		assert.Equal(t, want, lemmatize(in), in)
	}
}

func TestRuleExtractor(t *testing.T) {
	text := "Hi there, my name is Ada Lovelace"
	got := NewRuleExtractor().Extract(text)

	assert.Equal(t, []models.Entity{{
		Text:  "Ada Lovelace",
		Label: models.EntityPerson,
		Start: 21,
		End:   33,
	}}, got)
	assert.Equal(t, "Ada Lovelace", text[got[0].Start:got[0].End])
}

func TestRuleExtractor_NoMatch(t *testing.T) {
	e := NewRuleExtractor()

	assert.Empty(t, e.Extract("hello"))
	assert.Empty(t, e.Extract("my name is lowercase"))
	assert.Empty(t, e.Extract("him Bob"))
}

func TestRuleExtractor_CaseInsensitiveTrigger(t *testing.T) {
	got := NewRuleExtractor().Extract("I'M Grace")

	if assert.Len(t, got, 1) {
		assert.Equal(t, "Grace", got[0].Text)
	}
}
