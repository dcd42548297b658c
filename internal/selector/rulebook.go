// File: internal/selector/rulebook.go
package selector

import (
	"fmt"
	"os"
	"strings"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

// Scenario is one named situation with label preferences. Phrases are matched as
// lowercase substrings of a button label.
type Scenario struct {
	Name      string         `yaml:"name"`
	Keywords  []string       `yaml:"keywords"`
	Preferred map[string]int `yaml:"preferred"`
	Avoided   map[string]int `yaml:"avoided"`
}

// Rulebook is the ordered scenario table plus the generic fallback keyword lists.
type Rulebook struct {
	Scenarios     []Scenario `yaml:"scenarios"`
	BaselineScore int        `yaml:"baseline_score"`
	GoodKeywords  []string   `yaml:"good_keywords"`
	BadKeywords   []string   `yaml:"bad_keywords"`
}

// DefaultRulebook returns the built-in table.
func DefaultRulebook() Rulebook {
	return Rulebook{
		BaselineScore: 5,
		GoodKeywords:  []string{"help", "yes", "accept", "try", "start", "continue", "ok", "do", "inspect"},
		BadKeywords:   []string{"no", "refuse", "ignore", "give up"},
		Scenarios: []Scenario{
			{
				Name:      "choose_items",
				Keywords:  []string{"choose items", "bring along", "recommended"},
				Preferred: map[string]int{"start": 15, "begin": 15, "go": 14},
				Avoided:   map[string]int{"equip all": 2, "cancel": 1},
			},
			{
				Name:      "alien",
				Keywords:  []string{"alien", "probe", "abduct", "space", "extraterrestrial"},
				Preferred: map[string]int{"talk": 10, "sit back": 10, "enjoy": 10, "cooperate": 9, "be friendly": 8, "do": 7, "try": 6},
				Avoided:   map[string]int{"attack": 1, "fight": 2, "resist": 3, "probe": 4},
			},
			{
				Name:      "blob_planet",
				Keywords:  []string{"blob-like planet", "blob", "elusive blob", "grab one"},
				Preferred: map[string]int{"grab one": 10, "take": 9, "collect": 8, "inspect": 7},
				Avoided:   map[string]int{"ignore": 2, "flee": 3},
			},
			{
				Name:      "dangerous_planet",
				Keywords:  []string{"toxic", "radioactive", "dangerous", "chemicals", "poison"},
				Preferred: map[string]int{"distant scan": 10, "scan": 9, "observe": 8, "avoid": 8, "leave": 7},
				Avoided:   map[string]int{"land": 2, "explore": 3, "approach": 3},
			},
			{
				Name:      "kitchen_alien",
				Keywords:  []string{"kitchen", "food", "eat", "cook", "shady stuff", "angry alien"},
				Preferred: map[string]int{"flee": 15, "leave": 10, "run": 10},
				Avoided:   map[string]int{"inspect": 2, "ignore": 3, "eat": 1, "approach": 1},
			},
			{
				Name:      "technical_repair",
				Keywords:  []string{"telescope", "repair", "fix", "broken", "technical"},
				Preferred: map[string]int{"try and fix": 10, "repair": 9, "fix": 9, "examine": 7},
				Avoided:   map[string]int{"flee": 2, "ignore": 3, "destroy": 1},
			},
			{
				Name:      "space_objects",
				Keywords:  []string{"star", "object", "strange", "floating", "shooting star"},
				Preferred: map[string]int{"reach for it": 10, "collect": 10, "inspect": 9, "wish": 8, "take picture": 7, "grab": 7},
				Avoided:   map[string]int{"flee": 2, "ignore": 3, "avoid": 3},
			},
			{
				Name:      "fuel_resources",
				Keywords:  []string{"fuel", "ran out", "empty", "resource", "energy"},
				Preferred: map[string]int{"search planet": 10, "search": 9, "look for": 8, "find": 7},
				Avoided:   map[string]int{"give up": 1, "urinate": 2},
			},
			{
				Name:      "communication",
				Keywords:  []string{"transmission", "signal", "communication", "message", "deep space"},
				Preferred: map[string]int{"respond": 10, "answer": 9, "investigate": 8, "decode": 8},
				Avoided:   map[string]int{"ignore": 3},
			},
			{
				Name:      "odd_eyes",
				Keywords:  []string{"odd eyes"},
				Preferred: map[string]int{"flee": 15},
				Avoided:   map[string]int{"attack": 1, "fight": 1, "approach": 1, "inspect": 1},
			},
		},
	}
}

// LoadRulebook reads a YAML rulebook. Fields left out keep their default values.
func LoadRulebook(path string) (Rulebook, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return Rulebook{}, fmt.Errorf("failed to expand rulebook path %q: %w", path, err)
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		return Rulebook{}, fmt.Errorf("failed to read rulebook: %w", err)
	}

	rb := DefaultRulebook()
	var loaded Rulebook
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return Rulebook{}, fmt.Errorf("failed to parse rulebook %s: %w", expanded, err)
	}
	if len(loaded.Scenarios) > 0 {
		rb.Scenarios = loaded.Scenarios
	}
	if loaded.BaselineScore != 0 {
		rb.BaselineScore = loaded.BaselineScore
	}
	if loaded.GoodKeywords != nil {
		rb.GoodKeywords = loaded.GoodKeywords
	}
	if loaded.BadKeywords != nil {
		rb.BadKeywords = loaded.BadKeywords
	}
	if err := rb.Validate(); err != nil {
		return Rulebook{}, fmt.Errorf("invalid rulebook %s: %w", expanded, err)
	}
	return rb.normalized(), nil
}

// Validate rejects unnamed or keyword-less scenarios.
func (rb Rulebook) Validate() error {
	seen := make(map[string]bool, len(rb.Scenarios))
	for i, sc := range rb.Scenarios {
		if sc.Name == "" {
			return fmt.Errorf("scenario %d has no name", i)
		}
		if seen[sc.Name] {
			return fmt.Errorf("duplicate scenario %q", sc.Name)
		}
		seen[sc.Name] = true
		if len(sc.Keywords) == 0 {
			return fmt.Errorf("scenario %q has no keywords", sc.Name)
		}
	}
	return nil
}

func (rb Rulebook) normalized() Rulebook {
	out := rb
	out.Scenarios = make([]Scenario, len(rb.Scenarios))
	for i, sc := range rb.Scenarios {
		n := Scenario{Name: sc.Name, Preferred: map[string]int{}, Avoided: map[string]int{}}
		for _, kw := range sc.Keywords {
			n.Keywords = append(n.Keywords, strings.ToLower(kw))
		}
		for phrase, score := range sc.Preferred {
			n.Preferred[strings.ToLower(phrase)] = score
		}
		for phrase, score := range sc.Avoided {
			n.Avoided[strings.ToLower(phrase)] = score
		}
		out.Scenarios[i] = n
	}
	out.GoodKeywords = lowerAll(rb.GoodKeywords)
	out.BadKeywords = lowerAll(rb.BadKeywords)
	return out
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}
