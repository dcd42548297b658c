// File: internal/adventure/event.go
package adventure

import "github.com/xkilldash9x/advbot/internal/discord"

// Event is a message reduced to what the classifier and selector look at.
type Event struct {
	MessageID     string
	ChannelID     string
	GuildID       string
	AuthorID      string
	Text          Text
	Buttons       []Button
	HasSelectMenu bool
}

// FromMessage builds an Event from a gateway or REST message.
func FromMessage(m *discord.Message) Event {
	if m == nil {
		return Event{}
	}
	return Event{
		MessageID:     m.ID,
		ChannelID:     m.ChannelID,
		GuildID:       m.GuildID,
		AuthorID:      m.AuthorID(),
		Text:          Text{Content: m.Content, Embeds: m.Embeds},
		Buttons:       ExtractButtons(m.Components),
		HasSelectMenu: HasSelectMenu(m.Components),
	}
}

// Enabled returns the event's enabled buttons.
func (e Event) Enabled() []Button {
	return EnabledButtons(e.Buttons)
}
