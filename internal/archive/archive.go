// Package archive answers questions about retained messages by consulting the
// write buffer first and the database second.
package archive

import (
	"context"
	"errors"
	"fmt"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/chronicle/internal/cache"
	"github.com/robalyx/chronicle/internal/database/models"
	"github.com/robalyx/chronicle/internal/database/types"
	"go.uber.org/zap"
)

var (
	// ErrNotFound is returned when a message is neither buffered nor stored.
	ErrNotFound = errors.New("message not found")
	// ErrUnavailable is returned when a retained message cannot be decrypted.
	ErrUnavailable = errors.New("message unavailable")
)

// Store is the part of the message service the archive needs.
type Store interface {
	GetMessage(ctx context.Context, messageID uint64) (*types.Message, error)
	UpdateMessageContent(ctx context.Context, messageID uint64, content string) (bool, error)
	DeleteMessagesByIDs(ctx context.Context, messageIDs []uint64) (int, error)
	DeleteMessagesByAuthor(ctx context.Context, authorID uint64) (int, error)
	DeleteMessagesByChannel(ctx context.Context, channelID uint64) (int, error)
	DeleteGuild(ctx context.Context, guildID uint64) (int, error)
}

// Archive combines the message cache with the database.
type Archive struct {
	cache  *cache.Cache
	store  Store
	cipher cache.Cipher
	logger *zap.Logger
}

// New creates an archive.
func New(c *cache.Cache, store Store, cipher cache.Cipher, logger *zap.Logger) *Archive {
	return &Archive{
		cache:  c,
		store:  store,
		cipher: cipher,
		logger: logger.Named("archive"),
	}
}

// Record admits a new message.
func (a *Archive) Record(ctx context.Context, msg *cache.Message) error {
	return a.cache.CacheMessage(ctx, msg)
}

// Lookup returns the retained copy of a message.
func (a *Archive) Lookup(ctx context.Context, id snowflake.ID) (*cache.DecryptedMessage, error) {
	msg, err := a.cache.GetCacheMessage(id)
	if err == nil {
		return msg, nil
	}

	if !errors.Is(err, cache.ErrNotFound) {
		a.logger.Warn("Buffered message is unreadable",
			zap.Error(err),
			zap.Uint64("messageID", uint64(id)))

		return nil, ErrUnavailable
	}

	row, err := a.store.GetMessage(ctx, uint64(id))
	if errors.Is(err, models.ErrMessageNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message %s: %w", id, err)
	}

	msg, err = cache.FromRow(row).Decrypt(a.cipher)
	if err != nil {
		a.logger.Warn("Stored message is unreadable",
			zap.Error(err),
			zap.Uint64("messageID", uint64(id)))

		return nil, ErrUnavailable
	}

	return msg, nil
}

// Edit applies an edited message and returns the version retained before the
// edit, or nil when none was known. The buffered copy is updated when present,
// then the stored row. A message known to neither is admitted as new.
// Nothing is written when the retained text already matches.
func (a *Archive) Edit(ctx context.Context, msg *cache.Message) (*cache.DecryptedMessage, error) {
	previous, err := a.Lookup(ctx, msg.ID)
	if err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrUnavailable) {
		return nil, err
	}

	if previous != nil && cache.SameContent(previous.Content, msg.Content) {
		return previous, nil
	}

	updated, err := a.cache.UpdateCacheMessage(ctx, msg.ID, msg.Content)
	if err != nil {
		return previous, err
	}
	if updated {
		return previous, nil
	}

	content := msg.Content
	if content == "" {
		content = cache.EmptyContent
	}

	encrypted, err := a.cipher.Encrypt(content)
	if err != nil {
		return previous, fmt.Errorf("failed to encrypt message %s: %w", msg.ID, err)
	}

	updated, err = a.store.UpdateMessageContent(ctx, uint64(msg.ID), encrypted)
	if err != nil {
		return previous, fmt.Errorf("failed to update message %s: %w", msg.ID, err)
	}
	if updated {
		return previous, nil
	}

	return previous, a.cache.CacheMessage(ctx, msg)
}

// Forget removes a single message from the buffer and the database.
func (a *Archive) Forget(ctx context.Context, id snowflake.ID) (bool, error) {
	buffered := a.cache.DeleteCacheMessage(ctx, id)

	stored, err := a.store.DeleteMessagesByIDs(ctx, []uint64{uint64(id)})
	if err != nil {
		return buffered, fmt.Errorf("failed to delete message %s: %w", id, err)
	}

	return buffered || stored > 0, nil
}

// ForgetAuthor removes every message of a user and returns how many were removed.
func (a *Archive) ForgetAuthor(ctx context.Context, authorID snowflake.ID) (int, error) {
	buffered := a.cache.DeleteCacheMessagesByAuthor(ctx, authorID)

	stored, err := a.store.DeleteMessagesByAuthor(ctx, uint64(authorID))
	if err != nil {
		return buffered, fmt.Errorf("failed to delete messages of author %s: %w", authorID, err)
	}

	a.logger.Info("Forgot author messages",
		zap.Uint64("authorID", uint64(authorID)),
		zap.Int("buffered", buffered),
		zap.Int("stored", stored))

	return buffered + stored, nil
}

// ForgetGuild removes a guild and all of its messages. Stored messages go with
// the guild row, so the returned count covers buffered messages only.
func (a *Archive) ForgetGuild(ctx context.Context, guildID snowflake.ID) (int, error) {
	buffered := a.cache.DeleteCacheMessagesByGuild(ctx, guildID)

	removed, err := a.store.DeleteGuild(ctx, uint64(guildID))
	if err != nil {
		return buffered, fmt.Errorf("failed to delete guild %s: %w", guildID, err)
	}

	a.logger.Info("Forgot guild messages",
		zap.Uint64("guildID", uint64(guildID)),
		zap.Int("buffered", buffered),
		zap.Bool("stored", removed > 0))

	return buffered, nil
}

// ForgetChannel removes every message of a channel.
func (a *Archive) ForgetChannel(ctx context.Context, channelID snowflake.ID) (int, error) {
	buffered := a.cache.DeleteCacheMessagesByChannel(ctx, channelID)

	stored, err := a.store.DeleteMessagesByChannel(ctx, uint64(channelID))
	if err != nil {
		return buffered, fmt.Errorf("failed to delete messages of channel %s: %w", channelID, err)
	}

	return buffered + stored, nil
}
