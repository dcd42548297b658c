// File: internal/classifier/classifier.go
package classifier

import (
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/xkilldash9x/advbot/internal/adventure"
)

// IsRandomDistractor reports an unrelated interstitial event: a known distractor phrase,
// a button labelled exactly like a distractor answer, or a price guessing prompt.
func IsRandomDistractor(t adventure.Text, buttons []adventure.Button) bool {
	text := t.Combined()
	if adventure.ContainsAny(text, distractorPhrases) {
		return true
	}
	for _, b := range buttons {
		if distractorLabels[strings.ToLower(strings.TrimSpace(b.Label))] {
			return true
		}
	}
	if pricePattern.MatchString(text) && (strings.Contains(text, "guess") || strings.Contains(text, "price")) {
		return true
	}
	return false
}

// IsAdventureRelevant reports whether an event belongs to the adventure. Anything is
// accepted once a round is in progress.
func IsAdventureRelevant(t adventure.Text, buttons []adventure.Button, hasSelectMenu, inAdventure bool) bool {
	if inAdventure {
		return true
	}
	if adventure.ContainsAny(t.Combined(), adventureKeywords) {
		return true
	}

	adventureStyle := hasSelectMenu
	for _, b := range buttons {
		label := strings.ToLower(b.Label)
		if adventure.ContainsAny(label, nonAdventureLabelPatterns) {
			return false
		}
		if adventure.ContainsAny(label, adventureLabelPatterns) {
			adventureStyle = true
		}
	}
	return adventureStyle
}

// NeedsStartControl reports the item selection screen that precedes the first choice.
func NeedsStartControl(t adventure.Text) bool {
	return adventure.ContainsAny(t.Combined(), startIndicators)
}

// IsCooldownNotice reports a cooldown message. A live navigation button means the
// adventure is still running, so it never counts as a cooldown.
func IsCooldownNotice(t adventure.Text, buttons []adventure.Button) bool {
	if adventure.HasEnabled(buttons, adventure.KindNavigation) {
		return false
	}
	if adventure.ContainsAny(t.Combined(), cooldownKeywords) {
		return true
	}
	for _, b := range buttons {
		if b.Disabled && strings.Contains(strings.ToLower(b.Label), "adventure again in") {
			return true
		}
	}
	return false
}

// CooldownOptions controls the default and the random safety buffer added to every
// extracted cooldown.
type CooldownOptions struct {
	Default   time.Duration
	BufferMin time.Duration
	BufferMax time.Duration
	// Rand returns a value in [0, n). Nil uses math/rand/v2.
	Rand func(n int64) int64
}

// DefaultCooldownOptions mirrors the configuration defaults.
func DefaultCooldownOptions() CooldownOptions {
	return CooldownOptions{
		Default:   240 * time.Second,
		BufferMin: 30 * time.Second,
		BufferMax: 90 * time.Second,
	}
}

func (o CooldownOptions) buffer() time.Duration {
	span := int64((o.BufferMax - o.BufferMin) / time.Second)
	if span <= 0 {
		return o.BufferMin
	}
	draw := o.Rand
	if draw == nil {
		draw = rand.Int64N
	}
	return o.BufferMin + time.Duration(draw(span))*time.Second
}

// ExtractCooldown reads the wait before the next round from the text, then from the
// labels of disabled "adventure again in" buttons, trying each pattern in order. The
// result always includes the random buffer; with no match it is the default plus buffer.
func ExtractCooldown(t adventure.Text, buttons []adventure.Button, opts CooldownOptions) time.Duration {
	text := t.Combined()

	var labels []string
	for _, b := range buttons {
		label := strings.ToLower(b.Label)
		if b.Disabled && strings.Contains(label, "adventure again in") &&
			(strings.Contains(label, "minute") || strings.Contains(label, "hour") || strings.Contains(label, "second")) {
			labels = append(labels, label)
		}
	}

	for _, p := range cooldownPatterns {
		for _, candidate := range append([]string{text}, labels...) {
			m := p.re.FindStringSubmatch(candidate)
			if m == nil {
				continue
			}
			n, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			return time.Duration(n*p.multiplier)*time.Second + opts.buffer()
		}
	}
	return opts.Default + opts.buffer()
}

// IsTrulyComplete reports the end of an adventure: a disabled "adventure again in N
// minutes" button or a completion phrase, provided no live navigation button remains.
func IsTrulyComplete(t adventure.Text, buttons []adventure.Button) bool {
	if adventure.HasEnabled(buttons, adventure.KindNavigation) {
		return false
	}
	for _, b := range buttons {
		label := strings.ToLower(strings.TrimSpace(b.Label))
		if b.Disabled && strings.HasPrefix(label, "adventure again in") && strings.Contains(label, "minute") {
			return true
		}
	}
	return adventure.ContainsAny(t.Combined(), completionPhrases)
}

// NeedsNavigationAfterChoice reports transitional narration, after which the next message
// carries a plain continue button before the next real choice.
func NeedsNavigationAfterChoice(t adventure.Text) bool {
	return adventure.ContainsAny(t.Combined(), navigationNarration)
}

// NeedsInteraction reports a message that asks for input, so an adventure started outside
// the scheduler can still be picked up.
func NeedsInteraction(t adventure.Text) bool {
	return adventure.ContainsAny(t.Combined(), interactionTriggers)
}
