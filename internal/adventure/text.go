// File: internal/adventure/text.go
package adventure

import (
	"sort"
	"strings"

	"github.com/xkilldash9x/advbot/internal/discord"
)

// Text is the readable part of a message: its content and embeds.
type Text struct {
	Content string
	Embeds  []discord.Embed
}

// Combined joins content, embed titles, descriptions and field names and values,
// lowercased. Classification runs over this.
func (t Text) Combined() string {
	parts := []string{t.Content}
	for _, e := range t.Embeds {
		parts = append(parts, e.Title, e.Description)
		for _, f := range e.Fields {
			parts = append(parts, f.Name, f.Value)
		}
	}
	return strings.ToLower(joinNonEmpty(parts))
}

// Narrative joins content, embed descriptions and titles, lowercased. Fields are left
// out since they usually hold inventory listings rather than story text.
func (t Text) Narrative() string {
	parts := []string{t.Content}
	for _, e := range t.Embeds {
		parts = append(parts, e.Description, e.Title)
	}
	return strings.ToLower(joinNonEmpty(parts))
}

func joinNonEmpty(parts []string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}

// ContainsAny reports whether s contains any of the phrases.
func ContainsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

var fingerprintVocabulary = []string{
	"alien", "probe", "spaceship", "planet", "toxic", "dangerous", "kitchen", "food",
	"telescope", "repair", "star", "fuel", "transmission", "signal", "blob",
	"radioactive", "chemicals", "odd eyes",
}

const fingerprintFallbackLen = 50

// Fingerprint derives the memory key for a scenario: the vocabulary words present in the
// narrative text, sorted and joined with "_", or the first 50 characters of it when none
// are present. Embed fields change with inventory and are not part of the key.
func Fingerprint(t Text) string {
	text := t.Narrative()

	var found []string
	for _, kw := range fingerprintVocabulary {
		if strings.Contains(text, kw) {
			found = append(found, kw)
		}
	}
	if len(found) > 0 {
		sort.Strings(found)
		return strings.Join(found, "_")
	}

	runes := []rune(text)
	if len(runes) > fingerprintFallbackLen {
		runes = runes[:fingerprintFallbackLen]
	}
	return strings.TrimSpace(string(runes))
}
