// File: internal/adventure/button.go
package adventure

import (
	"fmt"
	"strconv"
	"strings"

	json "github.com/json-iterator/go"
	"github.com/xkilldash9x/advbot/internal/discord"
)

// Kind is the role a button plays in an adventure message.
type Kind string

const (
	KindGeneric    Kind = "generic"
	KindStart      Kind = "start"
	KindNavigation Kind = "navigation"
	KindInventory  Kind = "inventory"
)

// Button styles as sent by Discord.
const (
	StylePrimary = 1
	StyleDanger  = 4
)

const (
	backpackGlyph  = "🎒"
	arrowEmojiName = "ArrowRightui"
	arrowEmojiID   = "1379166099895091251"
)

// Emoji is the optional emoji attached to a button.
type Emoji struct {
	ID       string
	Name     string
	Animated bool
}

// Button is one clickable control, flattened out of a message's component tree.
type Button struct {
	CustomID string
	Label    string
	Style    int
	Disabled bool
	Emoji    *Emoji
	URL      string
	Kind     Kind
	Raw      map[string]any
}

// Enabled reports whether the button can be pressed.
func (b Button) Enabled() bool { return !b.Disabled }

func (b Button) String() string {
	state := "enabled"
	if b.Disabled {
		state = "disabled"
	}
	return fmt.Sprintf("%q[%s,%s,%s]", b.Label, b.CustomID, b.Kind, state)
}

// ExtractButtons flattens action rows and bare top level buttons into a button list.
// Anything that is not a component object is skipped.
func ExtractButtons(components []any) []Button {
	var out []Button
	for _, node := range components {
		comp, ok := node.(map[string]any)
		if !ok {
			continue
		}
		switch intField(comp, "type") {
		case discord.ComponentTypeActionRow:
			children, _ := comp["components"].([]any)
			for _, child := range children {
				if c, ok := child.(map[string]any); ok && intField(c, "type") == discord.ComponentTypeButton {
					out = append(out, newButton(c))
				}
			}
		case discord.ComponentTypeButton:
			out = append(out, newButton(comp))
		}
	}
	return out
}

// HasSelectMenu reports a string select component, either at the top level or inside
// an action row.
func HasSelectMenu(components []any) bool {
	for _, node := range components {
		comp, ok := node.(map[string]any)
		if !ok {
			continue
		}
		switch intField(comp, "type") {
		case discord.ComponentTypeStringSelect:
			return true
		case discord.ComponentTypeActionRow:
			children, _ := comp["components"].([]any)
			for _, child := range children {
				if c, ok := child.(map[string]any); ok && intField(c, "type") == discord.ComponentTypeStringSelect {
					return true
				}
			}
		}
	}
	return false
}

func newButton(raw map[string]any) Button {
	b := Button{
		CustomID: stringField(raw, "custom_id"),
		Label:    stringField(raw, "label"),
		Style:    intField(raw, "style"),
		URL:      stringField(raw, "url"),
		Raw:      raw,
	}
	b.Disabled, _ = raw["disabled"].(bool)
	if e, ok := raw["emoji"].(map[string]any); ok {
		b.Emoji = &Emoji{ID: stringField(e, "id"), Name: stringField(e, "name")}
		b.Emoji.Animated, _ = e["animated"].(bool)
	}
	b.Kind = classify(b)
	return b
}

func classify(b Button) Kind {
	switch {
	case isInventory(b):
		return KindInventory
	case isNavigation(b):
		return KindNavigation
	case isStart(b):
		return KindStart
	default:
		return KindGeneric
	}
}

func isInventory(b Button) bool {
	id := strings.ToLower(b.CustomID)
	label := strings.ToLower(b.Label)
	if b.Emoji != nil && strings.Contains(b.Emoji.Name, backpackGlyph) {
		return true
	}
	return strings.Contains(b.Label, backpackGlyph) ||
		b.Style == StyleDanger ||
		strings.Contains(id, "inventory") ||
		strings.Contains(id, "bag") ||
		strings.Contains(label, "backpack") ||
		strings.HasPrefix(id, "adventure-progress:") ||
		strings.HasPrefix(id, "adventure-backpackitem:")
}

var arrowLabels = map[string]bool{">": true, "→": true, "▶": true}

func isNavigation(b Button) bool {
	id := strings.ToLower(b.CustomID)
	label := strings.ToLower(strings.TrimSpace(b.Label))

	if arrowLabels[label] {
		return true
	}
	if b.Style == StylePrimary && (label == "continue" || label == "next") {
		return true
	}
	if strings.HasPrefix(id, "adventure-next:") || strings.HasPrefix(id, "adventure-continue:") {
		return true
	}
	for _, kw := range []string{"next", "continue", "forward"} {
		if strings.Contains(id, kw) {
			return true
		}
	}
	if b.Emoji != nil && (b.Emoji.Name == arrowEmojiName || b.Emoji.ID == arrowEmojiID) {
		return true
	}
	return label == "" && !b.Disabled && b.URL == ""
}

var startLabels = map[string]bool{"start": true, "begin": true, "go": true, "start adventure": true}

func isStart(b Button) bool {
	id := strings.ToLower(b.CustomID)
	label := strings.ToLower(strings.TrimSpace(b.Label))
	return startLabels[label] ||
		strings.HasPrefix(id, "adventure-start:") ||
		strings.Contains(id, "start") ||
		strings.Contains(id, "begin")
}

// Filter returns the buttons for which keep returns true.
func Filter(buttons []Button, keep func(Button) bool) []Button {
	out := make([]Button, 0, len(buttons))
	for _, b := range buttons {
		if keep(b) {
			out = append(out, b)
		}
	}
	return out
}

// EnabledButtons drops disabled buttons.
func EnabledButtons(buttons []Button) []Button {
	return Filter(buttons, Button.Enabled)
}

// HasEnabled reports whether any enabled button has the given kind.
func HasEnabled(buttons []Button, kind Kind) bool {
	for _, b := range buttons {
		if b.Kind == kind && b.Enabled() {
			return true
		}
	}
	return false
}

// FirstEnabled returns the first enabled button of the given kind.
func FirstEnabled(buttons []Button, kind Kind) (Button, bool) {
	for _, b := range buttons {
		if b.Kind == kind && b.Enabled() {
			return b, true
		}
	}
	return Button{}, false
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func intField(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	default:
		return 0
	}
}
