package nlp

import (
	"regexp"

	"github.com/avvvet/chatbuddy/internal/models"
)

// Extractor finds named entities in raw text
type Extractor interface {
	Extract(text string) []models.Entity
}

// personPattern matches self-introductions such as "my name is Ada Lovelace".
// The trigger phrase is case-insensitive, the name must be capitalised.
var personPattern = regexp.MustCompile(
	`(?:^|\b)(?i:my name is|my name's|i am|i'm|im|call me|this is)\s+([A-Z][\p{L}'-]+(?:\s+[A-Z][\p{L}'-]+)?)`)

// RuleExtractor recognises PERSON entities from introduction phrases
type RuleExtractor struct{}

// NewRuleExtractor creates a rule based extractor
func NewRuleExtractor() *RuleExtractor {
	return &RuleExtractor{}
}

// Extract returns every PERSON entity with byte offsets into text
func (RuleExtractor) Extract(text string) []models.Entity {
	var entities []models.Entity
	for _, m := range personPattern.FindAllStringSubmatchIndex(text, -1) {
		start, end := m[2], m[3]
		entities = append(entities, models.Entity{
			Text:  text[start:end],
			Label: models.EntityPerson,
			Start: start,
			End:   end,
		})
	}
	return entities
}
