package main

import (
	"context"

	"github.com/guildwarden/warden/automod/discord"

	"github.com/bwmarrin/discordgo"
)

// Gateway callback. discordgo runs each handler invocation on its own goroutine, so blocking on the semaphore here bounds the number of messages in the pipeline.
func (s *Server) handleMessage(ctx context.Context, m *discordgo.Message) {
	messagesReceived.Inc()
	evt, ok := discord.MessageEvent(m, s.engine.BotID)
	if !ok {
		return
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		// shutting down
		messagesDropped.Inc()
		return
	}
	defer s.sem.Release(1)

	// a message that started processing runs to completion, even across shutdown
	if err := s.engine.ProcessMessage(context.WithoutCancel(ctx), evt); err != nil {
		s.logger.Error("failed to process message", "err", err, "workspace", evt.WorkspaceID, "message", evt.MessageID)
	}
}
