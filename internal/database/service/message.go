package service

import (
	"context"
	"slices"
	"time"

	"github.com/robalyx/chronicle/internal/database/dbretry"
	"github.com/robalyx/chronicle/internal/database/models"
	"github.com/robalyx/chronicle/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// MessageService handles message retention business logic.
type MessageService struct {
	db     *bun.DB
	guild  *models.GuildModel
	model  *models.MessageModel
	logger *zap.Logger
}

// NewMessage creates a new message service.
func NewMessage(
	db *bun.DB,
	guild *models.GuildModel,
	model *models.MessageModel,
	logger *zap.Logger,
) *MessageService {
	return &MessageService{
		db:     db,
		guild:  guild,
		model:  model,
		logger: logger.Named("message_service"),
	}
}

// FlushMessages stores a batch of buffered messages. Guild rows are created first and
// both writes share one transaction so a failure leaves nothing behind.
func (s *MessageService) FlushMessages(ctx context.Context, messages []*types.Message) error {
	if len(messages) == 0 {
		return nil
	}

	guildIDs := make([]uint64, 0, len(messages))
	for _, message := range messages {
		guildIDs = append(guildIDs, message.GuildID)
	}

	slices.Sort(guildIDs)
	guildIDs = slices.Compact(guildIDs)

	start := time.Now()

	err := dbretry.Transaction(ctx, s.db, func(ctx context.Context, tx bun.Tx) error {
		if err := s.guild.UpsertGuilds(ctx, tx, guildIDs); err != nil {
			return err
		}

		return s.model.InsertMessages(ctx, tx, messages)
	})
	if err != nil {
		return err
	}

	s.logger.Info("Flushed messages",
		zap.Int("messages", len(messages)),
		zap.Int("guilds", len(guildIDs)),
		zap.Duration("duration", time.Since(start)))

	return nil
}

// GetMessage retrieves a stored message.
func (s *MessageService) GetMessage(ctx context.Context, messageID uint64) (*types.Message, error) {
	return s.model.GetMessage(ctx, messageID)
}

// UpdateMessageContent replaces the encrypted content of a stored message.
func (s *MessageService) UpdateMessageContent(ctx context.Context, messageID uint64, content string) (bool, error) {
	return s.model.UpdateContent(ctx, messageID, content)
}

// DeleteMessagesByIDs removes the given stored messages.
func (s *MessageService) DeleteMessagesByIDs(ctx context.Context, messageIDs []uint64) (int, error) {
	return s.model.DeleteMessagesByIDs(ctx, messageIDs)
}

// DeleteMessagesByAuthor removes every stored message of a user.
func (s *MessageService) DeleteMessagesByAuthor(ctx context.Context, authorID uint64) (int, error) {
	return s.model.DeleteMessagesByAuthor(ctx, authorID)
}

// DeleteMessagesByChannel removes every stored message of a channel.
func (s *MessageService) DeleteMessagesByChannel(ctx context.Context, channelID uint64) (int, error) {
	return s.model.DeleteMessagesByChannel(ctx, channelID)
}

// DeleteGuild removes a guild and, through the cascade, all of its stored messages.
func (s *MessageService) DeleteGuild(ctx context.Context, guildID uint64) (int, error) {
	return s.guild.DeleteGuild(ctx, guildID)
}

// PurgeExpired removes stored messages older than the retention window.
func (s *MessageService) PurgeExpired(ctx context.Context, retention time.Duration) (int, error) {
	cutoff := time.Now().Add(-retention)
	start := time.Now()

	affected, err := s.model.DeleteMessagesOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	s.logger.Info("Purged expired messages",
		zap.Int("affected", affected),
		zap.Time("cutoffDate", cutoff),
		zap.Duration("duration", time.Since(start)))

	return affected, nil
}
