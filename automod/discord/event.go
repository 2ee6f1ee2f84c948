package discord

import (
	"slices"

	"github.com/guildwarden/warden/automod/event"

	"github.com/bwmarrin/discordgo"
)

// Converts a gateway message to a pipeline event. Returns false for messages which are not from a guild member (DMs, system messages without an author).
func MessageEvent(m *discordgo.Message, botID string) (*event.MessageEvent, bool) {
	if m == nil || m.GuildID == "" || m.Author == nil {
		return nil, false
	}
	evt := &event.MessageEvent{
		WorkspaceID: m.GuildID,
		ChannelID:   m.ChannelID,
		MessageID:   m.ID,
		AuthorID:    m.Author.ID,
		AuthorName:  m.Author.GlobalName,
		Text:        m.Content,
		Timestamp:   m.Timestamp,
		IsBotAuthor: m.Author.Bot || m.WebhookID != "",
	}
	if evt.AuthorName == "" {
		evt.AuthorName = m.Author.Username
	}
	if m.Member != nil {
		evt.AuthorRoles = slices.Clone(m.Member.Roles)
	}
	if botID != "" {
		evt.MentionsBot = slices.ContainsFunc(m.Mentions, func(u *discordgo.User) bool {
			return u != nil && u.ID == botID
		})
	}
	// discord ids embed their creation time
	if created, err := discordgo.SnowflakeTimestamp(m.Author.ID); err == nil {
		evt.AuthorCreatedAt = &created
	}
	return evt, true
}
