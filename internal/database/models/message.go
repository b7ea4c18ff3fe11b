package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/robalyx/chronicle/internal/database/dbretry"
	"github.com/robalyx/chronicle/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// ErrMessageNotFound is returned when a message is not stored.
var ErrMessageNotFound = errors.New("message not found")

// MessageModel handles database operations for retained messages.
type MessageModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewMessage creates a new message model instance.
func NewMessage(db *bun.DB, logger *zap.Logger) *MessageModel {
	return &MessageModel{
		db:     db,
		logger: logger.Named("db_message"),
	}
}

// InsertMessages bulk inserts messages on the given handle. A message that is already
// stored has its content, attachments and author replaced so a re-flushed record wins.
func (m *MessageModel) InsertMessages(ctx context.Context, db bun.IDB, messages []*types.Message) error {
	if len(messages) == 0 {
		return nil
	}

	_, err := db.NewInsert().
		Model(&messages).
		On("CONFLICT (id) DO UPDATE").
		Set("author_id = EXCLUDED.author_id").
		Set("content = EXCLUDED.content").
		Set("attachment_count = EXCLUDED.attachment_count").
		Set("attachments = EXCLUDED.attachments").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to insert messages: %w", err)
	}

	m.logger.Debug("Inserted messages", zap.Int("count", len(messages)))

	return nil
}

// GetMessage retrieves a stored message by ID.
func (m *MessageModel) GetMessage(ctx context.Context, messageID uint64) (*types.Message, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.Message, error) {
		var message types.Message

		err := m.db.NewSelect().
			Model(&message).
			Where("id = ?", messageID).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, ErrMessageNotFound
			}

			return nil, fmt.Errorf("failed to get message: %w", err)
		}

		return &message, nil
	})
}

// UpdateContent replaces the encrypted content of a stored message.
// Returns false when no message has the given ID.
func (m *MessageModel) UpdateContent(ctx context.Context, messageID uint64, content string) (bool, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (bool, error) {
		result, err := m.db.NewUpdate().
			Model((*types.Message)(nil)).
			Set("content = ?", content).
			Where("id = ?", messageID).
			Exec(ctx)
		if err != nil {
			return false, fmt.Errorf("failed to update message: %w", err)
		}

		affected, _ := result.RowsAffected()

		return affected > 0, nil
	})
}

// DeleteMessagesByIDs removes the given messages.
func (m *MessageModel) DeleteMessagesByIDs(ctx context.Context, messageIDs []uint64) (int, error) {
	if len(messageIDs) == 0 {
		return 0, nil
	}

	return m.deleteWhere(ctx, "deleted messages by id", "id IN (?)", bun.In(messageIDs))
}

// DeleteMessagesByAuthor removes every message written by the given user.
func (m *MessageModel) DeleteMessagesByAuthor(ctx context.Context, authorID uint64) (int, error) {
	return m.deleteWhere(ctx, "deleted messages by author", "author_id = ?", authorID)
}

// DeleteMessagesByGuild removes every message stored for the given guild.
func (m *MessageModel) DeleteMessagesByGuild(ctx context.Context, guildID uint64) (int, error) {
	return m.deleteWhere(ctx, "deleted messages by guild", "guild_id = ?", guildID)
}

// DeleteMessagesByChannel removes every message stored for the given channel.
func (m *MessageModel) DeleteMessagesByChannel(ctx context.Context, channelID uint64) (int, error) {
	return m.deleteWhere(ctx, "deleted messages by channel", "channel_id = ?", channelID)
}

// DeleteMessagesOlderThan removes messages created at or before the cutoff.
func (m *MessageModel) DeleteMessagesOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	return m.deleteWhere(ctx, "deleted old messages", "created_at <= ?", cutoff)
}

func (m *MessageModel) deleteWhere(ctx context.Context, action, query string, args ...any) (int, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (int, error) {
		result, err := m.db.NewDelete().
			Model((*types.Message)(nil)).
			Where(query, args...).
			Exec(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to delete messages: %w", err)
		}

		affected, _ := result.RowsAffected()

		m.logger.Debug("Deleted messages",
			zap.String("action", action),
			zap.Int64("affected", affected))

		return int(affected), nil
	})
}
