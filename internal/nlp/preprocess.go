// Package nlp turns raw user text into classifier tokens and pulls named
// entities out of it.
package nlp

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Options switches individual preprocessing steps
type Options struct {
	Lowercase       bool
	RemoveStopwords bool
	Lemmatize       bool
	// CustomStopwords are added to the built-in English list
	CustomStopwords []string
}

// DefaultOptions enables every step with the bot's custom stopwords
func DefaultOptions() Options {
	return Options{
		Lowercase:       true,
		RemoveStopwords: true,
		Lemmatize:       true,
		CustomStopwords: []string{"a", "an", "the", "is", "are", "i", "you", "am"},
	}
}

// Preprocessor is a pure text → tokens function, safe for concurrent use
type Preprocessor struct {
	opts      Options
	stopwords map[string]struct{}
}

// NewPreprocessor builds a preprocessor from opts
func NewPreprocessor(opts Options) *Preprocessor {
	p := &Preprocessor{opts: opts, stopwords: make(map[string]struct{})}
	if opts.RemoveStopwords {
		for _, w := range englishStopwords {
			p.stopwords[w] = struct{}{}
		}
		for _, w := range opts.CustomStopwords {
			p.stopwords[strings.ToLower(w)] = struct{}{}
		}
	}
	return p
}

// Preprocess tokenises text and applies the configured steps. The result is
// empty when nothing meaningful is left.
func (p *Preprocessor) Preprocess(text string) []string {
	text = norm.NFKC.String(text)
	if p.opts.Lowercase {
		// cases.Caser is stateful, one per call
		text = cases.Lower(language.English).String(text)
	}

	var tokens []string
	for _, token := range Tokenize(text) {
		if p.opts.RemoveStopwords {
			if _, stop := p.stopwords[strings.ToLower(token)]; stop {
				continue
			}
		}
		if p.opts.Lemmatize {
			token = lemmatize(token)
		}
		tokens = append(tokens, token)
	}
	return tokens
}

// Tokenize splits text into word tokens, dropping punctuation. Apostrophes
// inside a word are kept ("don't").
func Tokenize(text string) []string {
	var (
		tokens  []string
		current strings.Builder
	)
	flush := func() {
		word := strings.Trim(current.String(), "'")
		if word != "" {
			tokens = append(tokens, word)
		}
		current.Reset()
	}

	for _, r := range text {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			current.WriteRune(r)
		case r == '\'' || r == '’':
			current.WriteRune('\'')
		default:
			flush()
		}
	}
	flush()
	return tokens
}

// lemmatize reduces regular English plurals to their singular form
func lemmatize(token string) string {
	if irregular, ok := irregularPlurals[token]; ok {
		return irregular
	}
	if len(token) <= 3 || !isLower(token) {
		return token
	}

	switch {
	case strings.HasSuffix(token, "ies") && len(token) > 4:
		return token[:len(token)-3] + "y"
	case strings.HasSuffix(token, "sses"),
		strings.HasSuffix(token, "shes"),
		strings.HasSuffix(token, "ches"),
		strings.HasSuffix(token, "xes"):
		return token[:len(token)-2]
	case strings.HasSuffix(token, "ss"),
		strings.HasSuffix(token, "us"),
		strings.HasSuffix(token, "is"),
		strings.HasSuffix(token, "'s"):
		return token
	case strings.HasSuffix(token, "s"):
		return token[:len(token)-1]
	}
	return token
}

func isLower(s string) bool {
	for _, r := range s {
		if !unicode.IsLower(r) && r != '\'' {
			return false
		}
	}
	return true
}

var irregularPlurals = map[string]string{
	"children": "child",
	"people":   "person",
	"men":      "man",
	"women":    "woman",
	"mice":     "mouse",
	"feet":     "foot",
	"teeth":    "tooth",
	"geese":    "goose",
}

var englishStopwords = []string{
	"a", "about", "above", "after", "again", "against", "all", "am", "an", "and",
	"any", "are", "as", "at", "be", "because", "been", "before", "being", "below",
	"between", "both", "but", "by", "can", "did", "do", "does", "doing", "down",
	"during", "each", "few", "for", "from", "further", "had", "has", "have",
	"having", "he", "her", "here", "hers", "herself", "him", "himself", "his",
	"i", "if", "in", "into", "is", "it", "its", "itself", "just", "me", "more",
	"most", "my", "myself", "no", "nor", "not", "now", "of", "off", "on", "once",
	"only", "or", "other", "our", "ours", "ourselves", "out", "over", "own",
	"same", "she", "should", "so", "some", "such", "than", "that", "the",
	"their", "theirs", "them", "themselves", "then", "there", "these", "they",
	"this", "those", "through", "to", "too", "under", "until", "up", "very",
	"was", "we", "were", "what", "when", "where", "which", "while", "who",
	"whom", "why", "how", "will", "with", "you", "your",
	"yours", "yourself", "yourselves",
}
