// File: internal/selector/selector.go
package selector

import (
	"strings"

	"github.com/xkilldash9x/advbot/internal/adventure"
	"github.com/xkilldash9x/advbot/internal/memory"
	"go.uber.org/zap"
)

// Reason records which rule produced a decision.
type Reason string

const (
	ReasonNavigation Reason = "navigation"
	ReasonMemory     Reason = "memory"
	ReasonScenario   Reason = "scenario"
	ReasonHeuristic  Reason = "heuristic"
	ReasonSafe       Reason = "safe"
	ReasonFallback   Reason = "fallback"
)

// Decision is the chosen button and why it was chosen.
type Decision struct {
	Button      adventure.Button
	Reason      Reason
	Score       float64
	Fingerprint string
	// Scenario is the matched rulebook scenario for ReasonScenario.
	Scenario string
}

// MemoryReader is the read side of the choice memory.
type MemoryReader interface {
	BestMatch(fingerprint string, candidates []string) (memory.Match, bool)
}

// Selector picks at most one button per event.
type Selector struct {
	rules  Rulebook
	memory MemoryReader
	logger *zap.Logger
}

// New creates a selector. A nil memory disables the memory step.
func New(rules Rulebook, mem MemoryReader, logger *zap.Logger) *Selector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Selector{
		rules:  rules.normalized(),
		memory: mem,
		logger: logger.Named("selector"),
	}
}

// Select applies, in order: navigation-only mode, navigation priority, the inventory
// exclusion, remembered outcomes, the scenario table and the generic fallbacks. It
// returns false when no enabled candidate survives.
func (s *Selector) Select(buttons []adventure.Button, text adventure.Text, navigationOnly bool) (Decision, bool) {
	enabled := adventure.EnabledButtons(buttons)

	if nav, ok := adventure.FirstEnabled(enabled, adventure.KindNavigation); ok {
		return Decision{Button: nav, Reason: ReasonNavigation}, true
	}
	if navigationOnly {
		return Decision{}, false
	}

	candidates := adventure.Filter(enabled, func(b adventure.Button) bool {
		return b.Kind != adventure.KindInventory
	})
	if len(candidates) == 0 {
		return Decision{}, false
	}

	fp := adventure.Fingerprint(text)

	if d, ok := s.fromMemory(fp, candidates); ok {
		return d, true
	}
	if d, ok := s.fromScenario(fp, text.Combined(), candidates); ok {
		return d, true
	}
	return s.fallback(fp, candidates), true
}

func (s *Selector) fromMemory(fp string, candidates []adventure.Button) (Decision, bool) {
	if s.memory == nil {
		return Decision{}, false
	}
	labels := make([]string, len(candidates))
	for i, b := range candidates {
		labels[i] = b.Label
	}
	match, ok := s.memory.BestMatch(fp, labels)
	if !ok {
		return Decision{}, false
	}
	for _, b := range candidates {
		if b.Label == match.Label {
			s.logger.Debug("Choice from memory",
				zap.String("fingerprint", fp),
				zap.String("label", b.Label),
				zap.String("remembered", match.Remembered),
				zap.Float64("score", match.Score))
			return Decision{Button: b, Reason: ReasonMemory, Score: match.Score, Fingerprint: fp}, true
		}
	}
	return Decision{}, false
}

func (s *Selector) fromScenario(fp, text string, candidates []adventure.Button) (Decision, bool) {
	for _, sc := range s.rules.Scenarios {
		if !adventure.ContainsAny(text, sc.Keywords) {
			continue
		}
		best, bestScore := 0, -1
		for i, b := range candidates {
			if score := s.scoreLabel(sc, b.Label); score > bestScore {
				best, bestScore = i, score
			}
		}
		s.logger.Debug("Choice from scenario",
			zap.String("scenario", sc.Name),
			zap.String("label", candidates[best].Label),
			zap.Int("score", bestScore))
		return Decision{
			Button:      candidates[best],
			Reason:      ReasonScenario,
			Score:       float64(bestScore),
			Fingerprint: fp,
			Scenario:    sc.Name,
		}, true
	}
	return Decision{}, false
}

// scoreLabel starts at the baseline, raises it to the best preferred bonus contained in
// the label, then lowers it to the worst avoided penalty contained in the label.
func (s *Selector) scoreLabel(sc Scenario, label string) int {
	label = strings.ToLower(label)
	score := s.rules.BaselineScore
	for phrase, bonus := range sc.Preferred {
		if bonus > score && strings.Contains(label, phrase) {
			score = bonus
		}
	}
	for phrase, penalty := range sc.Avoided {
		if penalty < score && strings.Contains(label, phrase) {
			score = penalty
		}
	}
	return score
}

func (s *Selector) fallback(fp string, candidates []adventure.Button) Decision {
	for _, b := range candidates {
		if adventure.ContainsAny(strings.ToLower(b.Label), s.rules.GoodKeywords) {
			return Decision{Button: b, Reason: ReasonHeuristic, Fingerprint: fp}
		}
	}
	for _, b := range candidates {
		if !adventure.ContainsAny(strings.ToLower(b.Label), s.rules.BadKeywords) {
			return Decision{Button: b, Reason: ReasonSafe, Fingerprint: fp}
		}
	}
	return Decision{Button: candidates[0], Reason: ReasonFallback, Fingerprint: fp}
}
