package bot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/chronicle/internal/archive"
	"github.com/robalyx/chronicle/internal/bot/constants"
	"github.com/robalyx/chronicle/internal/cache"
	"github.com/robalyx/chronicle/pkg/utils"
	"go.uber.org/zap"
)

// onCommand dispatches slash commands. Every response is ephemeral.
func (b *Bot) onCommand(event *events.ApplicationCommandInteractionCreate) {
	data, ok := event.Data.(discord.SlashCommandInteractionData)
	if !ok {
		return
	}

	cooldowns, ok := b.cooldowns[data.CommandName()]
	if !ok {
		b.logger.Warn("Unknown command", zap.String("command", data.CommandName()))
		return
	}

	b.guard("command_"+data.CommandName(), b.requestTimeout, func(ctx context.Context) {
		if wait, ok := cooldowns.Acquire(event.User().ID, struct{}{}); !ok {
			b.reply(event, textResponse(fmt.Sprintf(constants.CooldownResponse, int(math.Ceil(wait.Seconds())))))
			return
		}

		if err := event.DeferCreateMessage(true); err != nil {
			b.logger.Error("Failed to defer interaction response", zap.Error(err))
			return
		}

		var isAdmin bool
		if member := event.Member(); member != nil {
			isAdmin = member.Permissions.Has(discord.PermissionAdministrator)
		}

		var update discord.MessageUpdate
		switch data.CommandName() {
		case constants.ViewCommandName:
			update = b.viewCommand(ctx, event.GuildID(), isAdmin, data.String(constants.MessageIDOptionName))
		case constants.ClearMyDataCommandName:
			update = b.clearMyDataCommand(ctx, event.User().ID)
		case constants.ForgetCommandName:
			update = b.forgetCommand(ctx, event.GuildID(), isAdmin, data.String(constants.MessageIDOptionName))
		}

		b.update(event, update)
	})
}

// viewCommand shows the retained copy of a message from the current guild.
func (b *Bot) viewCommand(ctx context.Context, guildID *snowflake.ID, isAdmin bool, rawID string) discord.MessageUpdate {
	if guildID == nil {
		return errorUpdate(constants.GuildOnly)
	}
	if !isAdmin {
		return errorUpdate(constants.AdministratorOnly)
	}

	messageID, err := snowflake.Parse(rawID)
	if err != nil {
		return errorUpdate(constants.InvalidMessageID)
	}

	msg, err := b.archive.Lookup(ctx, messageID)
	switch {
	case errors.Is(err, archive.ErrNotFound):
		return errorUpdate(constants.MessageNotFound)
	case errors.Is(err, archive.ErrUnavailable):
		return errorUpdate(constants.MessageUnavailable)
	case err != nil:
		b.logger.Error("Failed to look up message",
			zap.Uint64("messageID", uint64(messageID)),
			zap.Error(err))
		return errorUpdate(constants.InternalError)
	}

	// Messages from other guilds are treated as absent
	if msg.GuildID != *guildID {
		return errorUpdate(constants.MessageNotAvailable)
	}

	return b.messageView(msg)
}

// messageView renders a retained message with its attachments as files.
func (b *Bot) messageView(msg *cache.DecryptedMessage) discord.MessageUpdate {
	embed := discord.NewEmbedBuilder().
		SetColor(constants.ViewEmbedColor).
		SetDescription(fmt.Sprintf("[**Go to message**](https://discord.com/channels/%s/%s/%s)",
			msg.GuildID, msg.ChannelID, msg.ID)).
		SetTimestamp(msg.CreatedAt)

	chunks := utils.ChunkString(msg.Content, constants.ContentChunkSize)
	if len(chunks) > constants.MaxContentFields {
		rest := strings.Join(chunks[constants.MaxContentFields-1:], "")
		chunks = append(chunks[:constants.MaxContentFields-1], utils.Truncate(rest, constants.ContentChunkSize))
	}

	for i, chunk := range chunks {
		name := "Content"
		if len(chunks) > 1 {
			name = fmt.Sprintf("Content (%d/%d)", i+1, len(chunks))
		}
		embed.AddField(name, chunk, false)
	}

	embed.AddField("Author", fmt.Sprintf("<@%s>", msg.AuthorID), true)
	embed.AddField("Channel", fmt.Sprintf("<#%s>", msg.ChannelID), true)

	if msg.AttachmentCount > 0 {
		embed.AddField("Attachments", fmt.Sprintf("%d of %d retained", len(msg.Attachments), msg.AttachmentCount), true)
	}

	embed.AddField("IDs", fmt.Sprintf("```ini\nMessage=%s\nAuthor=%s\nChannel=%s\nGuild=%s```",
		msg.ID, msg.AuthorID, msg.ChannelID, msg.GuildID), false)

	files := make([]*discord.File, 0, len(msg.Attachments))
	for _, blob := range msg.Attachments {
		attachment, err := cache.ParseAttachment(blob)
		if err != nil {
			b.logger.Warn("Skipping malformed attachment",
				zap.Uint64("messageID", uint64(msg.ID)),
				zap.Error(err))
			continue
		}

		files = append(files, discord.NewFile(attachment.Name, "", bytes.NewReader(attachment.Data)))
	}

	return discord.NewMessageUpdateBuilder().
		SetEmbeds(embed.Build()).
		AddFiles(files...).
		Build()
}

// clearMyDataCommand removes every retained message of the calling user.
func (b *Bot) clearMyDataCommand(ctx context.Context, userID snowflake.ID) discord.MessageUpdate {
	count, err := b.archive.ForgetAuthor(ctx, userID)
	if err != nil {
		b.logger.Error("Failed to clear user data",
			zap.Uint64("userID", uint64(userID)),
			zap.Error(err))
		return errorUpdate(constants.InternalError)
	}

	return embedUpdate(constants.SuccessEmbedColor, fmt.Sprintf(constants.DataClearedResponse, count))
}

// forgetCommand removes one retained message belonging to the current guild.
func (b *Bot) forgetCommand(ctx context.Context, guildID *snowflake.ID, isAdmin bool, rawID string) discord.MessageUpdate {
	if guildID == nil {
		return errorUpdate(constants.GuildOnly)
	}
	if !isAdmin {
		return errorUpdate(constants.AdministratorOnly)
	}

	messageID, err := snowflake.Parse(rawID)
	if err != nil {
		return errorUpdate(constants.InvalidMessageID)
	}

	msg, err := b.archive.Lookup(ctx, messageID)
	switch {
	case errors.Is(err, archive.ErrNotFound):
		return errorUpdate(constants.MessageAlreadyRemoved)
	case errors.Is(err, archive.ErrUnavailable):
		return errorUpdate(constants.MessageUnavailable)
	case err != nil:
		b.logger.Error("Failed to look up message",
			zap.Uint64("messageID", uint64(messageID)),
			zap.Error(err))
		return errorUpdate(constants.InternalError)
	}

	if msg.GuildID != *guildID {
		return errorUpdate(constants.MessageNotAvailable)
	}

	removed, err := b.archive.Forget(ctx, messageID)
	if err != nil {
		b.logger.Error("Failed to forget message",
			zap.Uint64("messageID", uint64(messageID)),
			zap.Error(err))
		return errorUpdate(constants.InternalError)
	}
	if !removed {
		return errorUpdate(constants.MessageAlreadyRemoved)
	}

	return embedUpdate(constants.SuccessEmbedColor, constants.MessageForgotten)
}

func (b *Bot) reply(event *events.ApplicationCommandInteractionCreate, msg discord.MessageCreate) {
	if err := event.CreateMessage(msg); err != nil {
		b.logger.Error("Failed to respond to interaction", zap.Error(err))
	}
}

func (b *Bot) update(event *events.ApplicationCommandInteractionCreate, update discord.MessageUpdate) {
	_, err := event.Client().Rest().UpdateInteractionResponse(event.ApplicationID(), event.Token(), update)
	if err != nil {
		b.logger.Error("Failed to update interaction response", zap.Error(err))
	}
}

func textResponse(content string) discord.MessageCreate {
	return discord.NewMessageCreateBuilder().
		SetContent(content).
		SetEphemeral(true).
		Build()
}

func errorUpdate(content string) discord.MessageUpdate {
	return embedUpdate(constants.ErrorEmbedColor, content)
}

func embedUpdate(color int, content string) discord.MessageUpdate {
	return discord.NewMessageUpdateBuilder().
		SetEmbeds(discord.NewEmbedBuilder().
			SetColor(color).
			SetDescription(content).
			Build()).
		Build()
}
