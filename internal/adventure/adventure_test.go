// File: internal/adventure/adventure_test.go
package adventure

import (
	"strings"
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/advbot/internal/discord"
)

func decodeComponents(t *testing.T, raw string) []any {
	t.Helper()
	var comps []any
	require.NoError(t, json.Unmarshal([]byte(raw), &comps))
	return comps
}

func TestExtractButtons(t *testing.T) {
	comps := decodeComponents(t, `[
		{"type":1,"components":[
			{"type":2,"style":2,"label":"Scan","custom_id":"adv:scan"},
			{"type":2,"style":2,"label":"Land","custom_id":"adv:land","disabled":true},
			"not a component",
			{"type":3,"custom_id":"menu"}
		]},
		{"type":2,"style":1,"label":">","custom_id":"adventure-next:7"},
		42,
		{"type":1}
	]`)

	buttons := ExtractButtons(comps)
	require.Len(t, buttons, 3)

	assert.Equal(t, "Scan", buttons[0].Label)
	assert.Equal(t, "adv:scan", buttons[0].CustomID)
	assert.Equal(t, KindGeneric, buttons[0].Kind)
	assert.True(t, buttons[0].Enabled())

	assert.Equal(t, "Land", buttons[1].Label)
	assert.False(t, buttons[1].Enabled())

	assert.Equal(t, KindNavigation, buttons[2].Kind)
	assert.Equal(t, StylePrimary, buttons[2].Style)
	assert.NotNil(t, buttons[2].Raw)

	assert.True(t, HasSelectMenu(comps))
	assert.False(t, HasSelectMenu(decodeComponents(t, `[{"type":1,"components":[{"type":2,"label":"x"}]}]`)))
	assert.Empty(t, ExtractButtons(nil))
}

func TestButtonKinds(t *testing.T) {
	tests := []struct {
		name string
		btn  Button
		want Kind
	}{
		{"backpack emoji", Button{Label: "Items", Emoji: &Emoji{Name: "🎒"}}, KindInventory},
		{"backpack glyph in label", Button{Label: "🎒 Bag"}, KindInventory},
		{"danger style", Button{Label: "Quit", Style: StyleDanger}, KindInventory},
		{"inventory id", Button{Label: "x", CustomID: "show-inventory"}, KindInventory},
		{"backpack label", Button{Label: "Backpack"}, KindInventory},
		{"progress prefix", Button{Label: "x", CustomID: "adventure-progress:1"}, KindInventory},
		{"backpack item prefix unlabeled", Button{CustomID: "adventure-backpackitem:2"}, KindInventory},
		{"arrow label", Button{Label: "→", CustomID: "a"}, KindNavigation},
		{"play label", Button{Label: "▶", CustomID: "a"}, KindNavigation},
		{"primary continue", Button{Label: "Continue", Style: StylePrimary, CustomID: "a"}, KindNavigation},
		{"next prefix", Button{Label: "Onwards", CustomID: "adventure-next:1"}, KindNavigation},
		{"forward id", Button{Label: "Onwards", CustomID: "go-forward"}, KindNavigation},
		{"animated arrow emoji", Button{Label: "", Emoji: &Emoji{Name: "ArrowRightui", ID: arrowEmojiID, Animated: true}, Disabled: true}, KindNavigation},
		{"unlabeled enabled", Button{CustomID: "abc"}, KindNavigation},
		{"unlabeled disabled", Button{CustomID: "abc", Disabled: true}, KindGeneric},
		{"start label", Button{Label: "Start", CustomID: "x"}, KindStart},
		{"go label", Button{Label: "Go", CustomID: "x"}, KindStart},
		{"start prefix", Button{Label: "Space", CustomID: "adventure-start:space"}, KindStart},
		{"begin id", Button{Label: "Space", CustomID: "adv-begin"}, KindStart},
		{"plain", Button{Label: "Talk", CustomID: "adv:talk"}, KindGeneric},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.btn))
		})
	}
}

func TestTextViews(t *testing.T) {
	txt := Text{
		Content: "  You Approach ",
		Embeds: []discord.Embed{{
			Title:       "Space Adventure",
			Description: "A Toxic planet",
			Fields:      []discord.EmbedField{{Name: "Backpack", Value: "Fuel Can"}},
		}},
	}
	assert.Equal(t, "you approach space adventure a toxic planet backpack fuel can", txt.Combined())
	assert.Equal(t, "you approach a toxic planet space adventure", txt.Narrative())
}

func TestFingerprint(t *testing.T) {
	t.Run("sorted vocabulary matches", func(t *testing.T) {
		txt := Text{Content: "A toxic Alien waves from its radioactive planet"}
		assert.Equal(t, "alien_planet_radioactive_toxic", Fingerprint(txt))
	})

	t.Run("fields are ignored", func(t *testing.T) {
		txt := Text{Embeds: []discord.Embed{{Fields: []discord.EmbedField{{Name: "Odd eyes", Value: "blink"}}}}}
		assert.Equal(t, "", Fingerprint(txt))
	})

	t.Run("stable across inventory changes", func(t *testing.T) {
		scene := func(item string) Text {
			return Text{Embeds: []discord.Embed{{
				Description: "You encounter an alien. What do you do?",
				Fields:      []discord.EmbedField{{Name: "Backpack", Value: item}},
			}}}
		}
		assert.Equal(t, "alien", Fingerprint(scene("Fuel Can")))
		assert.Equal(t, "alien", Fingerprint(scene("Telescope")))
	})

	t.Run("fallback is the first fifty characters", func(t *testing.T) {
		txt := Text{Content: strings.Repeat("Nothing happens here. ", 5)}
		fp := Fingerprint(txt)
		assert.Equal(t, strings.TrimSpace(strings.ToLower(strings.Repeat("Nothing happens here. ", 5))[:50]), fp)
		assert.LessOrEqual(t, len([]rune(fp)), 50)
	})

	t.Run("empty text", func(t *testing.T) {
		assert.Equal(t, "", Fingerprint(Text{}))
	})
}

// FuzzFingerprintDeterministic checks that equal inputs always produce equal keys.
func FuzzFingerprintDeterministic(f *testing.F) {
	f.Add([]byte("you encounter a toxic, radioactive planet"))
	f.Add([]byte{0xff, 0x00, 0x10})
	f.Fuzz(func(t *testing.T, data []byte) {
		var msg struct {
			Content string
			Embeds  []discord.Embed
		}
		if err := fuzz.NewConsumer(data).GenerateStruct(&msg); err != nil {
			return
		}
		txt := Text{Content: msg.Content, Embeds: msg.Embeds}
		copyTxt := Text{Content: msg.Content, Embeds: append([]discord.Embed(nil), msg.Embeds...)}
		if Fingerprint(txt) != Fingerprint(copyTxt) {
			t.Fatalf("fingerprint not deterministic for %q", msg.Content)
		}
	})
}

func TestFromMessage(t *testing.T) {
	var msg discord.Message
	require.NoError(t, json.Unmarshal([]byte(`{
		"id":"1","channel_id":"2","guild_id":"3","author":{"id":"4"},
		"content":"What do you do?",
		"components":[{"type":1,"components":[
			{"type":2,"label":"Talk","custom_id":"adv:talk"},
			{"type":2,"label":"Attack","custom_id":"adv:attack","disabled":true}]}]
	}`), &msg))

	ev := FromMessage(&msg)
	assert.Equal(t, "1", ev.MessageID)
	assert.Equal(t, "2", ev.ChannelID)
	assert.Equal(t, "3", ev.GuildID)
	assert.Equal(t, "4", ev.AuthorID)
	assert.Len(t, ev.Buttons, 2)
	assert.Len(t, ev.Enabled(), 1)
	assert.False(t, ev.HasSelectMenu)
	assert.Equal(t, Event{}, FromMessage(nil))
}
