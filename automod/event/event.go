package event

import (
	"slices"
	"time"
)

// Identifies a single message on the chat platform. Enforcement primitives (delete) are addressed by this reference.
type MessageRef struct {
	WorkspaceID string
	ChannelID   string
	MessageID   string
}

// A message posted in a workspace, as delivered by the chat platform gateway. One event is processed as one independent unit of work.
//
// Events are immutable once constructed; the pipeline never mutates them.
type MessageEvent struct {
	WorkspaceID string
	ChannelID   string
	MessageID   string
	AuthorID    string
	// Display name of the author, if known. Only used for audit output.
	AuthorName string
	// Role ids the author holds in the workspace
	AuthorRoles []string
	Text        string
	Timestamp   time.Time
	// True if the message was posted by any bot account (including this one)
	IsBotAuthor bool
	// True if the message directly mentions this bot
	MentionsBot bool
	// Creation time of the author's platform account, if the platform exposes it. Used for the account-age fake-account signal.
	AuthorCreatedAt *time.Time
}

func (m *MessageEvent) Ref() MessageRef {
	return MessageRef{
		WorkspaceID: m.WorkspaceID,
		ChannelID:   m.ChannelID,
		MessageID:   m.MessageID,
	}
}

// Whether the author holds at least one of the given roles
func (m *MessageEvent) HasAnyRole(roles []string) bool {
	for _, r := range m.AuthorRoles {
		if slices.Contains(roles, r) {
			return true
		}
	}
	return false
}
