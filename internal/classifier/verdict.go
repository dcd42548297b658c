// File: internal/classifier/verdict.go
package classifier

import (
	"time"

	"github.com/xkilldash9x/advbot/internal/adventure"
)

// Label is the single outcome of classifying one event.
type Label string

const (
	// LabelDistractor events are dropped without touching the session.
	LabelDistractor Label = "distractor"
	// LabelIgnored events are not part of the adventure.
	LabelIgnored    Label = "ignored"
	LabelCooldown   Label = "cooldown"
	LabelComplete   Label = "complete"
	LabelStart      Label = "start"
	LabelActionable Label = "actionable"
)

// Verdict is what the agent acts on.
type Verdict struct {
	Label Label
	// Cooldown is set for LabelCooldown and LabelComplete.
	Cooldown time.Duration
	// NeedsNavigation is set for LabelActionable when the narration says a continue
	// button follows the next choice.
	NeedsNavigation bool
}

// Classify runs the checks in their fixed order: the distractor veto first, then
// relevance, cooldown, completion, start screen and finally the actionable case.
func Classify(ev adventure.Event, inAdventure bool, opts CooldownOptions) Verdict {
	if IsRandomDistractor(ev.Text, ev.Buttons) {
		return Verdict{Label: LabelDistractor}
	}
	if !IsAdventureRelevant(ev.Text, ev.Buttons, ev.HasSelectMenu, inAdventure) {
		return Verdict{Label: LabelIgnored}
	}
	if IsCooldownNotice(ev.Text, ev.Buttons) {
		return Verdict{Label: LabelCooldown, Cooldown: ExtractCooldown(ev.Text, ev.Buttons, opts)}
	}
	if IsTrulyComplete(ev.Text, ev.Buttons) {
		return Verdict{Label: LabelComplete, Cooldown: ExtractCooldown(ev.Text, ev.Buttons, opts)}
	}
	if NeedsStartControl(ev.Text) {
		return Verdict{Label: LabelStart}
	}
	return Verdict{Label: LabelActionable, NeedsNavigation: NeedsNavigationAfterChoice(ev.Text)}
}
