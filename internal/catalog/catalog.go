// Package catalog holds the intent definitions the bot is trained on and
// answers from.
package catalog

import (
	"errors"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/avvvet/chatbuddy/internal/models"
)

// DefaultFallbackResponse is used when no "default" intent is defined
const DefaultFallbackResponse = "I'm not sure how to respond to that."

var (
	ErrDuplicateTag = errors.New("duplicate intent tag")
	ErrEmptyTag     = errors.New("intent tag is required")
)

// Intent is one intent definition. Patterns are only used for training.
type Intent struct {
	Tag       string   `json:"tag" yaml:"tag"`
	Patterns  []string `json:"patterns" yaml:"patterns"`
	Responses []string `json:"responses" yaml:"responses"`
}

// Catalog is an immutable set of intents keyed by tag
type Catalog struct {
	intents  map[string]Intent
	tags     []string
	defaults []string
}

// New builds a catalog. A "default" intent is synthesised when absent.
func New(intents []Intent) (*Catalog, error) {
	c := &Catalog{intents: make(map[string]Intent, len(intents)+1)}

	for _, intent := range intents {
		if intent.Tag == "" {
			return nil, ErrEmptyTag
		}
		if _, exists := c.intents[intent.Tag]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTag, intent.Tag)
		}
		c.intents[intent.Tag] = Intent{
			Tag:       intent.Tag,
			Patterns:  append([]string(nil), intent.Patterns...),
			Responses: append([]string(nil), intent.Responses...),
		}
		c.tags = append(c.tags, intent.Tag)
	}

	def, ok := c.intents[models.IntentDefault]
	if !ok || len(def.Responses) == 0 {
		def = Intent{Tag: models.IntentDefault, Responses: []string{DefaultFallbackResponse}}
		if !ok {
			c.tags = append(c.tags, models.IntentDefault)
		}
		c.intents[models.IntentDefault] = def
	}
	c.defaults = def.Responses

	sort.Strings(c.tags)
	return c, nil
}

// Responses returns the configured responses for tag
func (c *Catalog) Responses(tag string) []string {
	return c.intents[tag].Responses
}

// Has reports whether tag is defined
func (c *Catalog) Has(tag string) bool {
	_, ok := c.intents[tag]
	return ok
}

// Defaults returns the fallback responses of the "default" intent
func (c *Catalog) Defaults() []string {
	return c.defaults
}

// Tags returns every tag, including "default", sorted
func (c *Catalog) Tags() []string {
	return append([]string(nil), c.tags...)
}

// Example is one labelled training pattern
type Example struct {
	Label string
	Text  string
}

// TrainingSet returns every pattern of every trainable intent. The "default"
// intent is never a label.
func (c *Catalog) TrainingSet() []Example {
	var examples []Example
	for _, tag := range c.tags {
		if tag == models.IntentDefault {
			continue
		}
		for _, pattern := range c.intents[tag].Patterns {
			examples = append(examples, Example{Label: tag, Text: pattern})
		}
	}
	return examples
}

// Holder publishes the current catalog to concurrent readers
type Holder struct {
	current atomic.Pointer[Catalog]
}

// NewHolder creates a holder with an initial catalog
func NewHolder(c *Catalog) *Holder {
	h := &Holder{}
	h.current.Store(c)
	return h
}

// Get returns the current catalog
func (h *Holder) Get() *Catalog {
	return h.current.Load()
}

// Set replaces the current catalog
func (h *Holder) Set(c *Catalog) {
	h.current.Store(c)
}
