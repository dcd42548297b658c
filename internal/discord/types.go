// File: internal/discord/types.go
package discord

// User is the subset of a Discord user object the bot reads.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Bot      bool   `json:"bot,omitempty"`
}

// EmbedField is one name/value block inside an embed.
type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// Embed is a rich content block attached to a message.
type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
}

// Message is a channel message as delivered by MESSAGE_CREATE, MESSAGE_UPDATE and the
// REST message history endpoint. Components are left as a generic tree; the adventure
// package turns them into buttons.
type Message struct {
	ID         string  `json:"id"`
	ChannelID  string  `json:"channel_id"`
	GuildID    string  `json:"guild_id,omitempty"`
	Author     *User   `json:"author,omitempty"`
	Content    string  `json:"content"`
	Embeds     []Embed `json:"embeds,omitempty"`
	Components []any   `json:"components,omitempty"`
}

// AuthorID returns the author's ID, or "" for partial updates that omit the author.
func (m *Message) AuthorID() string {
	if m == nil || m.Author == nil {
		return ""
	}
	return m.Author.ID
}

// Interaction types and component types used when invoking a message component.
const (
	InteractionTypeMessageComponent = 3
	ComponentTypeActionRow          = 1
	ComponentTypeButton             = 2
	ComponentTypeStringSelect       = 3
)

// Interaction identifies the component to invoke.
type Interaction struct {
	ApplicationID string
	GuildID       string
	ChannelID     string
	MessageID     string
	SessionID     string
	CustomID      string
}

type interactionPayload struct {
	Type          int                  `json:"type"`
	Nonce         string               `json:"nonce"`
	GuildID       string               `json:"guild_id,omitempty"`
	ChannelID     string               `json:"channel_id"`
	MessageFlags  int                  `json:"message_flags"`
	MessageID     string               `json:"message_id"`
	ApplicationID string               `json:"application_id"`
	SessionID     string               `json:"session_id"`
	Data          interactionComponent `json:"data"`
}

type interactionComponent struct {
	ComponentType int    `json:"component_type"`
	CustomID      string `json:"custom_id"`
}
