package bot

import (
	"context"
	"errors"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/snowflake/v2"
	"github.com/google/uuid"
	"github.com/robalyx/chronicle/internal/archive"
	"github.com/robalyx/chronicle/internal/bot/constants"
	"github.com/robalyx/chronicle/internal/cache"
	"github.com/robalyx/chronicle/internal/relay"
	"go.uber.org/zap"
)

func (b *Bot) onMessageCreate(event *events.GuildMessageCreate) {
	b.guard("message_create", admissionTimeout, func(ctx context.Context) {
		b.recordMessage(ctx, event.Message, event.GuildID, time.Now())
	})
}

func (b *Bot) onMessageUpdate(event *events.GuildMessageUpdate) {
	b.guard("message_update", b.requestTimeout, func(ctx context.Context) {
		b.editMessage(ctx, event.Message, event.OldMessage, event.GuildID)
	})
}

func (b *Bot) onMessageDelete(event *events.GuildMessageDelete) {
	b.guard("message_delete", b.requestTimeout, func(ctx context.Context) {
		b.deleteMessage(ctx, event.MessageID, event.ChannelID, event.GuildID)
	})
}

func (b *Bot) onGuildLeave(event *events.GuildLeave) {
	b.guard("guild_leave", b.requestTimeout, func(ctx context.Context) {
		b.leaveGuild(ctx, event.Guild.ID)
	})
}

func (b *Bot) onChannelDelete(event *events.GuildChannelDelete) {
	b.guard("channel_delete", b.requestTimeout, func(ctx context.Context) {
		b.deleteChannel(ctx, event.ChannelID, event.GuildID)
	})
}

// recordMessage admits a freshly posted guild message.
func (b *Bot) recordMessage(ctx context.Context, msg discord.Message, guildID snowflake.ID, now time.Time) {
	if !shouldRecord(msg, now) {
		return
	}

	if err := b.archive.Record(ctx, toCacheMessage(msg, guildID)); err != nil {
		b.logger.Error("Failed to record message",
			zap.Uint64("messageID", uint64(msg.ID)),
			zap.Uint64("guildID", uint64(guildID)),
			zap.Error(err))
	}
}

// editMessage stores the new content of an edited message and reports the edit.
func (b *Bot) editMessage(ctx context.Context, msg, old discord.Message, guildID snowflake.ID) {
	if msg.Author.Bot || msg.WebhookID != nil {
		return
	}

	// Embed unfurls arrive as updates with the same text
	if old.ID != 0 && old.Content == msg.Content {
		return
	}

	previous, err := b.archive.Edit(ctx, toCacheMessage(msg, guildID))
	if err != nil {
		b.logger.Error("Failed to store message edit",
			zap.Uint64("messageID", uint64(msg.ID)),
			zap.Error(err))
	}

	// The gateway cache keeps no messages, so the retained copy is the old version
	if previous != nil && cache.SameContent(previous.Content, msg.Content) {
		return
	}

	b.send(ctx, &relay.Event{
		Kind:      relay.KindMessageUpdate,
		GuildID:   guildID,
		ChannelID: msg.ChannelID,
		MessageID: msg.ID,
		AuthorID:  msg.Author.ID,
		Known:     previous != nil,
	})
}

// deleteMessage reports a deleted message. The retained copy stays in place
// so moderators can still view it.
func (b *Bot) deleteMessage(ctx context.Context, messageID, channelID, guildID snowflake.ID) {
	event := &relay.Event{
		Kind:      relay.KindMessageDelete,
		GuildID:   guildID,
		ChannelID: channelID,
		MessageID: messageID,
	}

	retained, err := b.archive.Lookup(ctx, messageID)
	switch {
	case err == nil:
		event.Known = true
		event.AuthorID = retained.AuthorID
	case errors.Is(err, archive.ErrNotFound):
	default:
		b.logger.Warn("Failed to look up deleted message",
			zap.Uint64("messageID", uint64(messageID)),
			zap.Error(err))
	}

	b.send(ctx, event)
}

func (b *Bot) leaveGuild(ctx context.Context, guildID snowflake.ID) {
	count, err := b.archive.ForgetGuild(ctx, guildID)
	if err != nil {
		b.logger.Error("Failed to forget guild",
			zap.Uint64("guildID", uint64(guildID)),
			zap.Error(err))
		return
	}

	b.send(ctx, &relay.Event{
		Kind:    relay.KindGuildLeave,
		GuildID: guildID,
		Count:   count,
	})
}

func (b *Bot) deleteChannel(ctx context.Context, channelID, guildID snowflake.ID) {
	count, err := b.archive.ForgetChannel(ctx, channelID)
	if err != nil {
		b.logger.Error("Failed to forget channel",
			zap.Uint64("channelID", uint64(channelID)),
			zap.Error(err))
		return
	}

	b.send(ctx, &relay.Event{
		Kind:      relay.KindChannelDelete,
		GuildID:   guildID,
		ChannelID: channelID,
		Count:     count,
	})
}

func (b *Bot) send(ctx context.Context, event *relay.Event) {
	event.ID = uuid.NewString()
	event.OccurredAt = time.Now()

	if err := b.relay.Send(ctx, event); err != nil {
		b.logger.Warn("Failed to relay event",
			zap.String("eventID", event.ID),
			zap.String("kind", string(event.Kind)),
			zap.Error(err))
	}
}

// shouldRecord reports whether a message is a live, human-authored message.
// Messages older than the replay window are redelivered history.
func shouldRecord(msg discord.Message, now time.Time) bool {
	if msg.Author.Bot || msg.WebhookID != nil {
		return false
	}

	if msg.Type != discord.MessageTypeDefault && msg.Type != discord.MessageTypeReply {
		return false
	}

	return now.Sub(msg.CreatedAt) <= constants.ReplayWindow
}

// toCacheMessage converts a gateway message into the form the cache admits.
func toCacheMessage(msg discord.Message, guildID snowflake.ID) *cache.Message {
	m := &cache.Message{
		ID:        msg.ID,
		GuildID:   guildID,
		ChannelID: msg.ChannelID,
		AuthorID:  msg.Author.ID,
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
	}

	if msg.GuildID != nil {
		m.GuildID = *msg.GuildID
	}
	if msg.WebhookID != nil {
		m.WebhookID = *msg.WebhookID
	}

	m.Attachments = make([]cache.Attachment, 0, len(msg.Attachments))
	for _, a := range msg.Attachments {
		attachment := cache.Attachment{
			Filename: a.Filename,
			Size:     a.Size,
			URL:      a.URL,
		}
		if a.ContentType != nil {
			attachment.ContentType = *a.ContentType
		}

		m.Attachments = append(m.Attachments, attachment)
	}

	return m
}
