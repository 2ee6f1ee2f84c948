// Discord implementation of the enforcement platform, and conversion of gateway messages to pipeline events.
package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/guildwarden/warden/automod/engine"
	"github.com/guildwarden/warden/automod/event"

	"github.com/bwmarrin/discordgo"
)

// discord allows at most 7 days of message purge on ban
const maxBanPurgeDays = 7

type Platform struct {
	Session *discordgo.Session
}

var _ engine.Platform = (*Platform)(nil)

func NewPlatform(s *discordgo.Session) *Platform {
	return &Platform{Session: s}
}

// Wraps permission failures (HTTP 403, or discord's "missing permissions" code) with engine.ErrPermissionDenied
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var rerr *discordgo.RESTError
	if errors.As(err, &rerr) {
		denied := rerr.Response != nil && rerr.Response.StatusCode == http.StatusForbidden
		if rerr.Message != nil && rerr.Message.Code == discordgo.ErrCodeMissingPermissions {
			denied = true
		}
		if denied {
			return fmt.Errorf("%s: %w: %w", op, engine.ErrPermissionDenied, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (p *Platform) DeleteMessage(ctx context.Context, ref event.MessageRef) error {
	return wrapErr("deleting message", p.Session.ChannelMessageDelete(ref.ChannelID, ref.MessageID, discordgo.WithContext(ctx)))
}

func (p *Platform) TimeoutMember(ctx context.Context, workspaceID, userID string, duration time.Duration, reason string) error {
	until := time.Now().Add(duration)
	opts := []discordgo.RequestOption{discordgo.WithContext(ctx), discordgo.WithAuditLogReason(reason)}
	return wrapErr("timing out member", p.Session.GuildMemberTimeout(workspaceID, userID, &until, opts...))
}

func (p *Platform) KickMember(ctx context.Context, workspaceID, userID, reason string) error {
	return wrapErr("kicking member", p.Session.GuildMemberDeleteWithReason(workspaceID, userID, reason, discordgo.WithContext(ctx)))
}

func (p *Platform) BanMember(ctx context.Context, workspaceID, userID, reason string, purgeWindow time.Duration) error {
	days := min(max(int(purgeWindow.Hours()/24), 0), maxBanPurgeDays)
	return wrapErr("banning member", p.Session.GuildBanCreateWithReason(workspaceID, userID, reason, days, discordgo.WithContext(ctx)))
}

func (p *Platform) SendMessage(ctx context.Context, channelID, text string, pingUsers []string) error {
	send := &discordgo.MessageSend{
		Content: text,
		// an empty Parse list turns off @everyone, @here and role pings
		AllowedMentions: &discordgo.MessageAllowedMentions{
			Parse: []discordgo.AllowedMentionType{},
			Users: pingUsers,
		},
	}
	_, err := p.Session.ChannelMessageSendComplex(channelID, send, discordgo.WithContext(ctx))
	return wrapErr("sending message", err)
}

func (p *Platform) SendEmbed(ctx context.Context, channelID string, embed *engine.Embed) error {
	_, err := p.Session.ChannelMessageSendEmbed(channelID, ToMessageEmbed(embed), discordgo.WithContext(ctx))
	return wrapErr("sending embed", err)
}

func (p *Platform) FetchChannel(ctx context.Context, channelID string) (*engine.Channel, error) {
	ch, err := p.Session.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, wrapErr("fetching channel", err)
	}
	return &engine.Channel{ID: ch.ID, WorkspaceID: ch.GuildID, Name: ch.Name}, nil
}

// Text channels only, in the order discord returns them
func (p *Platform) ListChannels(ctx context.Context, workspaceID string) ([]engine.Channel, error) {
	chans, err := p.Session.GuildChannels(workspaceID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, wrapErr("listing channels", err)
	}
	var out []engine.Channel
	for _, ch := range chans {
		if ch.Type != discordgo.ChannelTypeGuildText {
			continue
		}
		out = append(out, engine.Channel{ID: ch.ID, WorkspaceID: ch.GuildID, Name: ch.Name})
	}
	return out, nil
}

func ToMessageEmbed(e *engine.Embed) *discordgo.MessageEmbed {
	me := &discordgo.MessageEmbed{
		Title:       e.Title,
		Description: e.Description,
		Color:       e.Color,
	}
	if !e.Timestamp.IsZero() {
		me.Timestamp = e.Timestamp.Format(time.RFC3339)
	}
	if e.Footer != "" {
		me.Footer = &discordgo.MessageEmbedFooter{Text: e.Footer}
	}
	for _, f := range e.Fields {
		me.Fields = append(me.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	return me
}
