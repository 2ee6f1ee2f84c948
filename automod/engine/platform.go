package engine

import (
	"context"
	"errors"
	"time"

	"github.com/guildwarden/warden/automod/event"
)

// The bot lacks a platform permission needed for an enforcement step. Platform implementations wrap their errors with this.
var ErrPermissionDenied = errors.New("permission denied")

type Channel struct {
	ID          string
	WorkspaceID string
	Name        string
}

type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

// Rich message posted to audit channels. Platform adapters convert this to their native format.
type Embed struct {
	Title       string
	Description string
	Color       int
	Fields      []EmbedField
	Footer      string
	Timestamp   time.Time
}

// Enforcement primitives of the chat platform. All methods are independent, fallible I/O.
type Platform interface {
	DeleteMessage(ctx context.Context, ref event.MessageRef) error
	TimeoutMember(ctx context.Context, workspaceID, userID string, duration time.Duration, reason string) error
	KickMember(ctx context.Context, workspaceID, userID, reason string) error
	// Messages from the member within purgeWindow are removed as well
	BanMember(ctx context.Context, workspaceID, userID, reason string, purgeWindow time.Duration) error
	// Only the listed users may be pinged by mentions in text; @everyone, @here and role mentions never ping
	SendMessage(ctx context.Context, channelID, text string, pingUsers []string) error
	SendEmbed(ctx context.Context, channelID string, embed *Embed) error
	FetchChannel(ctx context.Context, channelID string) (*Channel, error)
	ListChannels(ctx context.Context, workspaceID string) ([]Channel, error)
}
